// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// Login/registration outcome labels for metrics.
const (
	outcomeSuccess = "success"
	outcomeFailure = "failure"
)

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// userView is the client-facing projection of a user. The password hash
// never appears here.
type userView struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

func newUserView(u *auth.User) userView {
	return userView{
		ID:        u.ID.String(),
		Username:  u.Username,
		CreatedAt: u.CreatedAt,
	}
}

func (s *Server) handleWelcome(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "Welcome to our API",
	})
}

func (s *Server) handleRegister(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "username and password are required",
		})
		return
	}

	user, err := s.svc.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordRegistration(outcomeFailure)
		}
		s.respondError(c, err)
		return
	}

	if s.metrics != nil {
		s.metrics.RecordRegistration(outcomeSuccess)
	}
	c.JSON(http.StatusCreated, gin.H{
		"user": newUserView(user),
	})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req credentialsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"message": "username and password are required",
		})
		return
	}

	session, token, err := s.svc.Login(c.Request.Context(), req.Username, req.Password, c.Request.UserAgent(), c.ClientIP())
	if err != nil {
		if s.metrics != nil {
			s.metrics.RecordLogin(outcomeFailure)
		}
		s.respondError(c, err)
		return
	}

	if s.metrics != nil {
		s.metrics.RecordLogin(outcomeSuccess)
	}
	s.setSessionCookie(c, token, int(time.Until(session.ExpiresAt).Seconds()))
	c.JSON(http.StatusOK, gin.H{
		"message": "Welcome!",
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	principal, ok := PrincipalFrom(c)
	if !ok {
		s.rejectUnauthenticated(c)
		return
	}

	if err := s.svc.Logout(c.Request.Context(), principal.SessionID); err != nil {
		// The session may have been evicted between gate and handler;
		// logout is idempotent from the client's point of view.
		if errutil.Code(err) != "SESSION_NOT_FOUND" {
			s.respondError(c, err)
			return
		}
	}

	s.clearSessionCookie(c)
	c.Status(http.StatusNoContent)
}

func (s *Server) handleListUsers(c *gin.Context) {
	users, err := s.svc.ListUsers(c.Request.Context())
	if err != nil {
		s.respondError(c, err)
		return
	}

	views := make([]userView, 0, len(users))
	for _, u := range users {
		views = append(views, newUserView(u))
	}
	c.JSON(http.StatusOK, gin.H{
		"users": views,
	})
}

func (s *Server) handleMe(c *gin.Context) {
	principal, ok := PrincipalFrom(c)
	if !ok {
		s.rejectUnauthenticated(c)
		return
	}

	user, err := s.svc.GetUser(c.Request.Context(), principal.UserID)
	if err != nil {
		s.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user": newUserView(user),
	})
}

// respondError maps service errors to HTTP responses. Client-class errors
// carry safe messages; anything else is logged in full and answered with a
// generic failure so storage internals never reach the client.
func (s *Server) respondError(c *gin.Context, err error) {
	switch errutil.Code(err) {
	case "AUTH_INVALID_INPUT", "AUTH_INVALID_USERNAME", "AUTH_EMPTY_PASSWORD":
		c.JSON(http.StatusBadRequest, gin.H{
			"message": err.Error(),
		})
	case "AUTH_INVALID_CREDENTIALS":
		c.JSON(http.StatusUnauthorized, gin.H{
			"message": "Invalid credentials",
		})
	case "AUTH_USERNAME_TAKEN":
		c.JSON(http.StatusConflict, gin.H{
			"message": "Username is already taken",
		})
	default:
		errutil.LogError(s.logger, "request failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"message": "Something went wrong",
		})
	}
}

func (s *Server) setSessionCookie(c *gin.Context, token string, maxAge int) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(s.cfg.CookieName, token, maxAge, "/", "", s.cfg.CookieSecure, true)
}

func (s *Server) clearSessionCookie(c *gin.Context) {
	c.SetSameSite(http.SameSiteStrictMode)
	c.SetCookie(s.cfg.CookieName, "", -1, "/", "", s.cfg.CookieSecure, true)
}
