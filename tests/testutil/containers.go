// Package testutil starts the backing services used by integration tests.
package testutil

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	redisPort    = nat.Port("6379/tcp")
	postgresPort = nat.Port("5432/tcp")
)

// StartRedis starts a Redis container and returns its redis:// URL. The
// container is terminated when the test finishes.
func StartRedis(ctx context.Context, tb testing.TB) string {
	tb.Helper()

	container, err := redis.RunContainer(ctx,
		testcontainers.WithImage("redis:7-alpine"),
	)
	if err != nil {
		tb.Fatalf("failed to start redis container: %v", err)
	}
	tb.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			tb.Logf("failed to terminate redis: %v", err)
		}
	})

	host, port, err := endpoint(ctx, container, redisPort)
	if err != nil {
		tb.Fatalf("redis endpoint: %v", err)
	}
	return fmt.Sprintf("redis://%s:%s/0", host, port)
}

// StartPostgres starts a PostgreSQL container and returns its postgres://
// URL. The container is terminated when the test finishes.
func StartPostgres(ctx context.Context, tb testing.TB) string {
	tb.Helper()

	container, err := postgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		postgres.WithDatabase("userinfo"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		tb.Fatalf("failed to start postgres container: %v", err)
	}
	tb.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			tb.Logf("failed to terminate postgres: %v", err)
		}
	})

	host, port, err := endpoint(ctx, container, postgresPort)
	if err != nil {
		tb.Fatalf("postgres endpoint: %v", err)
	}
	return fmt.Sprintf("postgres://testuser:testpass@%s:%s/userinfo?sslmode=disable", host, port)
}

func endpoint(ctx context.Context, container testcontainers.Container, port nat.Port) (string, string, error) {
	host, err := container.Host(ctx)
	if err != nil {
		return "", "", fmt.Errorf("failed to get host: %w", err)
	}

	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		return "", "", fmt.Errorf("failed to get port: %w", err)
	}
	return host, mapped.Port(), nil
}
