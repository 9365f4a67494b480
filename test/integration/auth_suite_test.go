// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package integration_test

import (
	"context"
	"log/slog"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/gatehouse/gatehouse/internal/auth"
	authpg "github.com/gatehouse/gatehouse/internal/auth/postgres"
	"github.com/gatehouse/gatehouse/internal/config"
	"github.com/gatehouse/gatehouse/internal/httpapi"
	"github.com/gatehouse/gatehouse/internal/store"
)

func TestAuthIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Auth API Integration Suite")
}

// testEnv holds all resources needed for the end-to-end tests.
type testEnv struct {
	container testcontainers.Container
	db        *store.Store
	server    *httpapi.Server
	cfg       *config.Config
	baseURL   string
}

var env *testEnv

var _ = BeforeSuite(func() {
	var err error
	env, err = setupAuthTestEnv()
	Expect(err).NotTo(HaveOccurred())
})

var _ = AfterSuite(func() {
	if env != nil {
		env.cleanup()
	}
})

func setupAuthTestEnv() (*testEnv, error) {
	ctx := context.Background()
	env := &testEnv{}

	container, err := pgcontainer.Run(ctx,
		"postgres:16-alpine",
		pgcontainer.WithDatabase("gatehouse_e2e"),
		pgcontainer.WithUsername("gatehouse"),
		pgcontainer.WithPassword("gatehouse"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		return nil, err
	}
	env.container = container

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		return nil, err
	}

	migrator, err := store.NewMigrator(connStr)
	if err != nil {
		return nil, err
	}
	if err := migrator.Up(); err != nil {
		_ = migrator.Close()
		return nil, err
	}
	_ = migrator.Close()

	env.db, err = store.Connect(ctx, connStr)
	if err != nil {
		return nil, err
	}

	// Cheap hash parameters keep the suite fast.
	hasher, err := auth.NewArgon2idHasherWithParams(auth.HashParams{
		Time:    1,
		Memory:  8 * 1024,
		Threads: 1,
	})
	if err != nil {
		return nil, err
	}

	svc, err := auth.NewService(
		authpg.NewUserRepository(env.db.Pool()),
		authpg.NewSessionRepository(env.db.Pool()),
		hasher,
		auth.WithSessionTTL(time.Hour),
	)
	if err != nil {
		return nil, err
	}

	cfg := config.Default()
	cfg.DatabaseURL = connStr
	cfg.ListenAddr = "127.0.0.1:0"
	cfg.CookieSecure = false
	env.cfg = &cfg

	env.server, err = httpapi.NewServer(&cfg, svc, nil, slog.Default())
	if err != nil {
		return nil, err
	}
	if _, err := env.server.Start(); err != nil {
		return nil, err
	}
	env.baseURL = "http://" + env.server.Addr()

	return env, nil
}

func (env *testEnv) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if env.server != nil {
		_ = env.server.Stop(ctx)
	}
	if env.db != nil {
		env.db.Close()
	}
	if env.container != nil {
		_ = env.container.Terminate(ctx)
	}
}
