//go:build integration

// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gatehouse/gatehouse/internal/store"
)

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2)),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgContainer.Terminate(ctx) })

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

func TestMigrator_FullCycle(t *testing.T) {
	connStr := startPostgres(t)

	migrator, err := store.NewMigrator(connStr)
	require.NoError(t, err)
	defer migrator.Close()

	// Fresh database reports version 0, clean.
	version, dirty, err := migrator.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)

	err = migrator.Up()
	require.NoError(t, err)

	version, dirty, err = migrator.Version()
	require.NoError(t, err)
	assert.Greater(t, version, uint(0), "Up() should apply at least one migration")
	assert.False(t, dirty)

	// Up is idempotent.
	require.NoError(t, migrator.Up())

	err = migrator.Down()
	require.NoError(t, err)

	version, dirty, err = migrator.Version()
	require.NoError(t, err)
	assert.Equal(t, uint(0), version)
	assert.False(t, dirty)
}

func TestConnect_Integration(t *testing.T) {
	connStr := startPostgres(t)
	ctx := context.Background()

	t.Run("connects and pings", func(t *testing.T) {
		db, err := store.Connect(ctx, connStr)
		require.NoError(t, err)
		defer db.Close()

		require.NotNil(t, db.Pool())
		assert.NoError(t, db.Pool().Ping(ctx))
	})

	t.Run("schema is queryable after migration", func(t *testing.T) {
		migrator, err := store.NewMigrator(connStr)
		require.NoError(t, err)
		require.NoError(t, migrator.Up())
		_ = migrator.Close()

		db, err := store.Connect(ctx, connStr)
		require.NoError(t, err)
		defer db.Close()

		var count int64
		err = db.Pool().QueryRow(ctx, `SELECT COUNT(*) FROM users`).Scan(&count)
		require.NoError(t, err)
		assert.Zero(t, count)
	})

	t.Run("invalid URL fails fast", func(t *testing.T) {
		_, err := store.Connect(ctx, "not a url \x00")
		assert.Error(t, err)
	})
}
