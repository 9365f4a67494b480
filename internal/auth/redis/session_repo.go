// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

// Package redis implements auth.SessionRepository using Redis. Records are
// JSON values keyed by token hash with a TTL matching the session expiry,
// so Redis itself evicts expired sessions.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"

	"github.com/gatehouse/gatehouse/internal/auth"
)

const (
	tokenKeyPrefix = "session:token:"
	idKeyPrefix    = "session:id:"
	userKeyPrefix  = "session:user:"
)

// SessionRepository implements auth.SessionRepository using Redis.
type SessionRepository struct {
	rdb *redis.Client
}

// NewSessionRepository creates a new SessionRepository.
func NewSessionRepository(rdb *redis.Client) *SessionRepository {
	return &SessionRepository{rdb: rdb}
}

// Create stores a new session under its token hash, with a secondary
// id -> token-hash index for deletion by ID and a per-user set for
// DeleteByUser. All keys share the session's remaining TTL.
func (r *SessionRepository) Create(ctx context.Context, session *auth.Session) error {
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return oops.Code("SESSION_CREATE_FAILED").Errorf("session already expired")
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "marshal session").
			Wrap(err)
	}

	pipe := r.rdb.TxPipeline()
	pipe.Set(ctx, tokenKeyPrefix+session.TokenHash, payload, ttl)
	pipe.Set(ctx, idKeyPrefix+session.ID.String(), session.TokenHash, ttl)
	pipe.SAdd(ctx, userKeyPrefix+session.UserID.String(), session.TokenHash)
	pipe.Expire(ctx, userKeyPrefix+session.UserID.String(), ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return oops.Code("SESSION_CREATE_FAILED").
			With("operation", "store session").
			With("user_id", session.UserID.String()).
			Wrap(err)
	}
	return nil
}

// GetByTokenHash retrieves a session by its token hash.
func (r *SessionRepository) GetByTokenHash(ctx context.Context, tokenHash string) (*auth.Session, error) {
	data, err := r.rdb.Get(ctx, tokenKeyPrefix+tokenHash).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_TOKEN_FAILED").
			With("operation", "get session by token hash").
			Wrap(err)
	}

	var session auth.Session
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, oops.Code("SESSION_CORRUPT_RECORD").
			With("operation", "unmarshal session").
			Wrap(err)
	}
	return &session, nil
}

// GetByUser retrieves all live sessions for a user.
func (r *SessionRepository) GetByUser(ctx context.Context, userID ulid.ULID) ([]*auth.Session, error) {
	hashes, err := r.rdb.SMembers(ctx, userKeyPrefix+userID.String()).Result()
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_USER_FAILED").
			With("operation", "get user session set").
			With("user_id", userID.String()).
			Wrap(err)
	}

	var sessions []*auth.Session
	for _, h := range hashes {
		session, err := r.GetByTokenHash(ctx, h)
		if errors.Is(err, auth.ErrNotFound) {
			// Token key expired; drop the stale set member.
			_ = r.rdb.SRem(ctx, userKeyPrefix+userID.String(), h).Err()
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// UpdateLastSeen rewrites the session record with a new LastSeenAt,
// preserving the remaining TTL.
func (r *SessionRepository) UpdateLastSeen(ctx context.Context, id ulid.ULID, lastSeen time.Time) error {
	session, err := r.getByID(ctx, id)
	if err != nil {
		return err
	}

	session.LastSeenAt = lastSeen
	ttl := time.Until(session.ExpiresAt)
	if ttl <= 0 {
		return oops.Code("SESSION_NOT_FOUND").Wrap(auth.ErrNotFound)
	}

	payload, err := json.Marshal(session)
	if err != nil {
		return oops.Code("SESSION_UPDATE_LAST_SEEN_FAILED").
			With("operation", "marshal session").
			Wrap(err)
	}

	if err := r.rdb.Set(ctx, tokenKeyPrefix+session.TokenHash, payload, ttl).Err(); err != nil {
		return oops.Code("SESSION_UPDATE_LAST_SEEN_FAILED").
			With("operation", "store session").
			With("id", id.String()).
			Wrap(err)
	}
	return nil
}

// Delete removes a session by ID.
func (r *SessionRepository) Delete(ctx context.Context, id ulid.ULID) error {
	session, err := r.getByID(ctx, id)
	if err != nil {
		return err
	}

	pipe := r.rdb.TxPipeline()
	pipe.Del(ctx, tokenKeyPrefix+session.TokenHash)
	pipe.Del(ctx, idKeyPrefix+id.String())
	pipe.SRem(ctx, userKeyPrefix+session.UserID.String(), session.TokenHash)
	if _, err := pipe.Exec(ctx); err != nil {
		return oops.Code("SESSION_DELETE_FAILED").
			With("operation", "delete session").
			With("id", id.String()).
			Wrap(err)
	}
	return nil
}

// DeleteByUser removes all sessions for a user.
func (r *SessionRepository) DeleteByUser(ctx context.Context, userID ulid.ULID) error {
	sessions, err := r.GetByUser(ctx, userID)
	if err != nil {
		return oops.Code("SESSION_DELETE_BY_USER_FAILED").
			With("operation", "list user sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}

	pipe := r.rdb.TxPipeline()
	for _, s := range sessions {
		pipe.Del(ctx, tokenKeyPrefix+s.TokenHash)
		pipe.Del(ctx, idKeyPrefix+s.ID.String())
	}
	pipe.Del(ctx, userKeyPrefix+userID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return oops.Code("SESSION_DELETE_BY_USER_FAILED").
			With("operation", "delete user sessions").
			With("user_id", userID.String()).
			Wrap(err)
	}
	return nil
}

// DeleteExpired is a no-op for Redis: keys carry TTLs and expire on their
// own. It always reports zero deletions.
func (r *SessionRepository) DeleteExpired(_ context.Context) (int64, error) {
	return 0, nil
}

func (r *SessionRepository) getByID(ctx context.Context, id ulid.ULID) (*auth.Session, error) {
	tokenHash, err := r.rdb.Get(ctx, idKeyPrefix+id.String()).Result()
	if errors.Is(err, redis.Nil) {
		return nil, oops.Code("SESSION_NOT_FOUND").
			With("id", id.String()).
			Wrap(auth.ErrNotFound)
	}
	if err != nil {
		return nil, oops.Code("SESSION_GET_BY_ID_FAILED").
			With("operation", "get session id index").
			With("id", id.String()).
			Wrap(err)
	}
	return r.GetByTokenHash(ctx, tokenHash)
}
