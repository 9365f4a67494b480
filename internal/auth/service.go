// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// DefaultStoreTimeout bounds each repository call so a hung store cannot
// leak the calling request.
const DefaultStoreTimeout = 5 * time.Second

// Service provides registration, login and session validation.
type Service struct {
	users        UserRepository
	sessions     SessionRepository
	hasher       PasswordHasher
	logger       *slog.Logger
	sessionTTL   time.Duration
	storeTimeout time.Duration
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithSessionTTL overrides the session lifetime.
func WithSessionTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) {
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithStoreTimeout overrides the per-call store timeout.
func WithStoreTimeout(d time.Duration) ServiceOption {
	return func(s *Service) {
		if d > 0 {
			s.storeTimeout = d
		}
	}
}

// WithLogger sets the logger used for internal fault detail.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewService creates a new Service.
func NewService(users UserRepository, sessions SessionRepository, hasher PasswordHasher, opts ...ServiceOption) (*Service, error) {
	if users == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("users repository is required")
	}
	if sessions == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("sessions repository is required")
	}
	if hasher == nil {
		return nil, oops.Code("AUTH_SERVICE_INVALID").Errorf("password hasher is required")
	}

	s := &Service{
		users:        users,
		sessions:     sessions,
		hasher:       hasher,
		logger:       slog.Default(),
		sessionTTL:   DefaultSessionExpiry,
		storeTimeout: DefaultStoreTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SessionTTL returns the configured session lifetime.
func (s *Service) SessionTTL() time.Duration {
	return s.sessionTTL
}

// dummyPasswordHash is used when a user doesn't exist to prevent timing attacks.
// We still run password verification to make response time consistent.
// This is NOT a real credential - it's a fake hash that will never match any password.
//
//nolint:gosec // G101: This is an intentionally fake hash for timing attack prevention, not a credential.
const dummyPasswordHash = "$argon2id$v=19$m=65536,t=1,p=4$AAAAAAAAAAAAAAAAAAAAAA$AAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

// Register creates a new user with a hashed password.
// The caller must never expose the returned PasswordHash to clients.
func (s *Service) Register(ctx context.Context, username, password string) (*User, error) {
	if err := ValidateUsername(username); err != nil {
		return nil, err
	}
	if password == "" {
		return nil, ErrEmptyPassword
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "hash password").
			Wrap(err)
	}

	user, err := NewUser(username, hash)
	if err != nil {
		return nil, err
	}

	if err := s.storeCall(ctx, func(ctx context.Context) error {
		return s.users.Create(ctx, user)
	}); err != nil {
		if errors.Is(err, ErrDuplicateUsername) {
			return nil, oops.Code("AUTH_USERNAME_TAKEN").
				With("username", username).
				Wrap(err)
		}
		return nil, oops.Code("AUTH_REGISTER_FAILED").
			With("operation", "create user").
			Wrap(err)
	}

	return user, nil
}

// Login authenticates a user and creates a session.
// Returns the session, plaintext token, and any error.
// Unknown usernames and wrong passwords yield the identical
// AUTH_INVALID_CREDENTIALS error, and verification runs against a dummy
// hash for unknown users so response timing carries no enumeration signal.
func (s *Service) Login(ctx context.Context, username, password, userAgent, ipAddress string) (*Session, string, error) {
	if username == "" || password == "" {
		return nil, "", oops.Code("AUTH_INVALID_INPUT").Errorf("username and password are required")
	}

	var user *User
	lookupErr := s.storeCall(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.users.GetByUsername(ctx, username)
		return err
	})

	targetHash := dummyPasswordHash
	userExists := false

	if lookupErr != nil {
		if !errors.Is(lookupErr, ErrNotFound) {
			return nil, "", oops.Code("AUTH_LOGIN_FAILED").
				With("operation", "get user by username").
				Wrap(lookupErr)
		}
	} else {
		targetHash = user.PasswordHash
		userExists = true
	}

	// Always verify, even against the dummy hash. A malformed stored hash
	// reads as a credential mismatch, never as a thrown fault.
	valid, verifyErr := s.hasher.Verify(password, targetHash)
	if verifyErr != nil {
		valid = false
	}

	if !userExists || !valid {
		return nil, "", oops.Code("AUTH_INVALID_CREDENTIALS").Errorf("invalid username or password")
	}

	token, tokenHash, err := GenerateSessionToken()
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "generate session token").
			Wrap(err)
	}

	session, err := NewSession(user.ID, tokenHash, userAgent, ipAddress, time.Now().Add(s.sessionTTL))
	if err != nil {
		return nil, "", oops.Code("AUTH_LOGIN_FAILED").
			With("operation", "create session").
			Wrap(err)
	}

	if err := s.storeCall(ctx, func(ctx context.Context) error {
		return s.sessions.Create(ctx, session)
	}); err != nil {
		return nil, "", oops.Code("AUTH_SESSION_CREATE_FAILED").
			With("operation", "persist session").
			Wrap(err)
	}

	return session, token, nil
}

// Logout invalidates a session.
func (s *Service) Logout(ctx context.Context, sessionID ulid.ULID) error {
	err := s.storeCall(ctx, func(ctx context.Context) error {
		return s.sessions.Delete(ctx, sessionID)
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return oops.Code("SESSION_NOT_FOUND").
				With("session_id", sessionID.String()).
				Wrap(err)
		}
		return oops.Code("AUTH_LOGOUT_FAILED").
			With("operation", "delete session").
			With("session_id", sessionID.String()).
			Wrap(err)
	}
	return nil
}

// ValidateSession validates a session token and returns the session if valid.
// Expired sessions are lazily evicted from the store. Also updates the
// LastSeenAt timestamp.
func (s *Service) ValidateSession(ctx context.Context, token string) (*Session, error) {
	if token == "" {
		return nil, oops.Code("SESSION_TOKEN_EMPTY").Errorf("session token cannot be empty")
	}

	tokenHash := HashSessionToken(token)

	var session *Session
	err := s.storeCall(ctx, func(ctx context.Context) error {
		var err error
		session, err = s.sessions.GetByTokenHash(ctx, tokenHash)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("SESSION_INVALID").Errorf("invalid session token")
		}
		return nil, oops.Code("SESSION_VALIDATE_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	if session.IsExpired() {
		// Lazy eviction, best effort
		if delErr := s.storeCall(ctx, func(ctx context.Context) error {
			return s.sessions.Delete(ctx, session.ID)
		}); delErr != nil && !errors.Is(delErr, ErrNotFound) {
			s.logger.Warn("failed to evict expired session",
				"session_id", session.ID.String(),
				"error", delErr,
			)
		}
		return nil, oops.Code("SESSION_EXPIRED").Errorf("session has expired")
	}

	// Update last seen timestamp (best effort, validation succeeds regardless)
	now := time.Now()
	if touchErr := s.storeCall(ctx, func(ctx context.Context) error {
		return s.sessions.UpdateLastSeen(ctx, session.ID, now)
	}); touchErr != nil {
		s.logger.Warn("failed to update session last seen",
			"session_id", session.ID.String(),
			"error", touchErr,
		)
	}

	return session, nil
}

// GetUser retrieves a user by ID.
func (s *Service) GetUser(ctx context.Context, id ulid.ULID) (*User, error) {
	var user *User
	err := s.storeCall(ctx, func(ctx context.Context) error {
		var err error
		user, err = s.users.GetByID(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, oops.Code("USER_NOT_FOUND").
				With("id", id.String()).
				Wrap(err)
		}
		return nil, oops.Code("USER_GET_FAILED").
			With("operation", "get user by id").
			Wrap(err)
	}
	return user, nil
}

// ListUsers retrieves all users.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	var users []*User
	err := s.storeCall(ctx, func(ctx context.Context) error {
		var err error
		users, err = s.users.List(ctx)
		return err
	})
	if err != nil {
		return nil, oops.Code("USER_LIST_FAILED").
			With("operation", "list users").
			Wrap(err)
	}
	return users, nil
}

// PurgeExpiredSessions removes all expired sessions from the store.
// Intended for periodic housekeeping; validation does not depend on it.
func (s *Service) PurgeExpiredSessions(ctx context.Context) (int64, error) {
	var deleted int64
	err := s.storeCall(ctx, func(ctx context.Context) error {
		var err error
		deleted, err = s.sessions.DeleteExpired(ctx)
		return err
	})
	if err != nil {
		return 0, oops.Code("SESSION_PURGE_FAILED").
			With("operation", "delete expired sessions").
			Wrap(err)
	}
	return deleted, nil
}

// storeCall bounds a repository invocation with the configured timeout.
// No lock is held across calls; each is an independently failing operation.
func (s *Service) storeCall(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	return fn(ctx)
}
