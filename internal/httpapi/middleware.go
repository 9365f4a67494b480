// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
)

// principalKey is the gin context key under which the session gate stores
// the authenticated principal. Read-only downstream.
const principalKey = "httpapi.principal"

// Gate decision labels for metrics.
const (
	gateAdmitted = "admitted"
	gateRejected = "rejected"
)

// Principal is the authenticated identity attached to a request after the
// session gate admits it.
type Principal struct {
	UserID    ulid.ULID
	SessionID ulid.ULID
}

// PrincipalFrom returns the principal attached by the session gate, if any.
func PrincipalFrom(c *gin.Context) (Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// RequireSession returns the session gate middleware. It admits requests
// bearing a cookie for a live session and rejects everything else with a
// fixed 401 body. Missing, expired and tampered cookies are
// indistinguishable to the client.
func (s *Server) RequireSession() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := c.Cookie(s.cfg.CookieName)
		if err != nil || token == "" {
			s.rejectUnauthenticated(c)
			return
		}

		session, err := s.svc.ValidateSession(c.Request.Context(), token)
		if err != nil {
			s.rejectUnauthenticated(c)
			return
		}

		if s.metrics != nil {
			s.metrics.RecordGateDecision(gateAdmitted)
		}
		c.Set(principalKey, Principal{
			UserID:    session.UserID,
			SessionID: session.ID,
		})
		c.Next()
	}
}

func (s *Server) rejectUnauthenticated(c *gin.Context) {
	if s.metrics != nil {
		s.metrics.RecordGateDecision(gateRejected)
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"message": "Not logged in.",
	})
}

// securityHeaders sets baseline response headers on every request.
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		c.Next()
	}
}
