// Package pgtest starts a throwaway PostgreSQL container for integration tests.
package pgtest

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/rs/zerolog"

	"kairopi/internal/infra"
)

// Runner returns a SQLRunner on a fresh database. The test is skipped under
// -short or when no Docker daemon is reachable.
func Runner(t testing.TB) *infra.SQLRunner {
	t.Helper()
	return infra.NewSQLRunner(Pool(t), zerolog.Nop())
}

// Pool starts postgres:16-alpine and returns a connected pool. The container
// is purged when the test finishes.
func Pool(t testing.TB) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	dockerPool, err := dockertest.NewPool("")
	if err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	if err := dockerPool.Client.Ping(); err != nil {
		t.Skipf("docker unavailable: %v", err)
	}
	dockerPool.MaxWait = 60 * time.Second

	resource, err := dockerPool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=kairopi",
			"POSTGRES_PASSWORD=kairopi",
			"POSTGRES_DB=kairopi",
		},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("start postgres: %v", err)
	}
	t.Cleanup(func() {
		_ = dockerPool.Purge(resource)
	})
	_ = resource.Expire(120)

	dsn := fmt.Sprintf("postgres://kairopi:kairopi@%s/kairopi?sslmode=disable", resource.GetHostPort("5432/tcp"))

	var pool *pgxpool.Pool
	err = dockerPool.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		p, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return err
		}
		if err := p.Ping(ctx); err != nil {
			p.Close()
			return err
		}
		pool = p
		return nil
	})
	if err != nil {
		t.Fatalf("connect postgres: %v", err)
	}
	t.Cleanup(pool.Close)
	return pool
}
