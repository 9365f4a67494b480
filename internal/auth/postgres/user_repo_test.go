// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/oklog/ulid/v2"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gatehouse/gatehouse/internal/auth"
)

func newUserRow(user *auth.User) *pgxmock.Rows {
	return pgxmock.NewRows([]string{"id", "username", "password_hash", "created_at", "updated_at"}).
		AddRow(user.ID.String(), user.Username, user.PasswordHash, user.CreatedAt, user.UpdatedAt)
}

func testUser(t *testing.T, username string) *auth.User {
	t.Helper()
	user, err := auth.NewUser(username, "$argon2id$stored")
	require.NoError(t, err)
	return user
}

func TestUserRepository_Create(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface, user *auth.User)
		wantErr   bool
		wantDupe  bool
	}{
		{
			name: "successful insert",
			setupMock: func(mock pgxmock.PgxPoolIface, user *auth.User) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(user.ID.String(), user.Username, user.PasswordHash, user.CreatedAt, user.UpdatedAt).
					WillReturnResult(pgxmock.NewResult("INSERT", 1))
			},
		},
		{
			name: "unique violation maps to ErrDuplicateUsername",
			setupMock: func(mock pgxmock.PgxPoolIface, user *auth.User) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(user.ID.String(), user.Username, user.PasswordHash, user.CreatedAt, user.UpdatedAt).
					WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})
			},
			wantErr:  true,
			wantDupe: true,
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface, user *auth.User) {
				mock.ExpectExec(`INSERT INTO users`).
					WithArgs(user.ID.String(), user.Username, user.PasswordHash, user.CreatedAt, user.UpdatedAt).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			user := testUser(t, "alice")
			tt.setupMock(mock, user)

			repo := NewUserRepository(mock)
			err = repo.Create(context.Background(), user)

			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.wantDupe, errors.Is(err, auth.ErrDuplicateUsername))
			} else {
				require.NoError(t, err)
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestUserRepository_GetByUsername(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(mock pgxmock.PgxPoolIface, user *auth.User)
		wantErr   bool
		notFound  bool
	}{
		{
			name: "returns user",
			setupMock: func(mock pgxmock.PgxPoolIface, user *auth.User) {
				mock.ExpectQuery(`SELECT id, username, password_hash, created_at, updated_at`).
					WithArgs(user.Username).
					WillReturnRows(newUserRow(user))
			},
		},
		{
			name: "missing user maps to ErrNotFound",
			setupMock: func(mock pgxmock.PgxPoolIface, user *auth.User) {
				mock.ExpectQuery(`SELECT id, username, password_hash, created_at, updated_at`).
					WithArgs(user.Username).
					WillReturnRows(pgxmock.NewRows([]string{"id", "username", "password_hash", "created_at", "updated_at"}))
			},
			wantErr:  true,
			notFound: true,
		},
		{
			name: "database error",
			setupMock: func(mock pgxmock.PgxPoolIface, user *auth.User) {
				mock.ExpectQuery(`SELECT id, username, password_hash, created_at, updated_at`).
					WithArgs(user.Username).
					WillReturnError(errors.New("connection refused"))
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock, err := pgxmock.NewPool()
			require.NoError(t, err, "failed to create mock")
			defer mock.Close()

			user := testUser(t, "alice")
			tt.setupMock(mock, user)

			repo := NewUserRepository(mock)
			got, err := repo.GetByUsername(context.Background(), user.Username)

			if tt.wantErr {
				require.Error(t, err)
				assert.Equal(t, tt.notFound, errors.Is(err, auth.ErrNotFound))
			} else {
				require.NoError(t, err)
				assert.Equal(t, user.ID, got.ID)
				assert.Equal(t, user.Username, got.Username)
				assert.Equal(t, user.PasswordHash, got.PasswordHash)
			}

			assert.NoError(t, mock.ExpectationsWereMet(), "unfulfilled expectations")
		})
	}
}

func TestUserRepository_GetByID(t *testing.T) {
	t.Run("returns user", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		user := testUser(t, "alice")
		mock.ExpectQuery(`SELECT id, username, password_hash, created_at, updated_at`).
			WithArgs(user.ID.String()).
			WillReturnRows(newUserRow(user))

		repo := NewUserRepository(mock)
		got, err := repo.GetByID(context.Background(), user.ID)
		require.NoError(t, err)
		assert.Equal(t, user.Username, got.Username)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing user maps to ErrNotFound", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		mock.ExpectQuery(`SELECT id, username, password_hash, created_at, updated_at`).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows([]string{"id", "username", "password_hash", "created_at", "updated_at"}))

		repo := NewUserRepository(mock)
		_, err = repo.GetByID(context.Background(), id)
		require.Error(t, err)
		assert.ErrorIs(t, err, auth.ErrNotFound)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("corrupt stored id is an error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		id := ulid.Make()
		now := time.Now()
		rows := pgxmock.NewRows([]string{"id", "username", "password_hash", "created_at", "updated_at"}).
			AddRow("not-a-ulid", "alice", "$argon2id$stored", now, now)
		mock.ExpectQuery(`SELECT id, username, password_hash, created_at, updated_at`).
			WithArgs(id.String()).
			WillReturnRows(rows)

		repo := NewUserRepository(mock)
		_, err = repo.GetByID(context.Background(), id)
		require.Error(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_List(t *testing.T) {
	t.Run("returns users in creation order", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		alice := testUser(t, "alice")
		bob := testUser(t, "bob")
		rows := pgxmock.NewRows([]string{"id", "username", "password_hash", "created_at", "updated_at"}).
			AddRow(alice.ID.String(), alice.Username, alice.PasswordHash, alice.CreatedAt, alice.UpdatedAt).
			AddRow(bob.ID.String(), bob.Username, bob.PasswordHash, bob.CreatedAt, bob.UpdatedAt)
		mock.ExpectQuery(`SELECT id, username, password_hash, created_at, updated_at`).
			WillReturnRows(rows)

		repo := NewUserRepository(mock)
		got, err := repo.List(context.Background())
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "alice", got[0].Username)
		assert.Equal(t, "bob", got[1].Username)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("empty store returns no users", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT id, username, password_hash, created_at, updated_at`).
			WillReturnRows(pgxmock.NewRows([]string{"id", "username", "password_hash", "created_at", "updated_at"}))

		repo := NewUserRepository(mock)
		got, err := repo.List(context.Background())
		require.NoError(t, err)
		assert.Empty(t, got)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT id, username, password_hash, created_at, updated_at`).
			WillReturnError(errors.New("connection refused"))

		repo := NewUserRepository(mock)
		_, err = repo.List(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "connection refused")

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestUserRepository_Count(t *testing.T) {
	t.Run("returns count", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT COUNT`).
			WithArgs("alice").
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(1)))

		repo := NewUserRepository(mock)
		count, err := repo.Count(context.Background(), "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(1), count)

		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mock.Close()

		mock.ExpectQuery(`SELECT COUNT`).
			WithArgs("alice").
			WillReturnError(errors.New("connection refused"))

		repo := NewUserRepository(mock)
		_, err = repo.Count(context.Background(), "alice")
		require.Error(t, err)

		assert.NoError(t, mock.ExpectationsWereMet())
	})
}
