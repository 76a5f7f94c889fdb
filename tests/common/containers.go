// Package common provides shared integration test fixtures.
package common

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const startDeadline = 60 * time.Second

// Container is a started service container and its mapped endpoint.
type Container struct {
	name      string
	container testcontainers.Container
	host      string
	port      string
}

// HostPort returns the mapped host:port of the service port.
func (c *Container) HostPort() string {
	return fmt.Sprintf("%s:%s", c.host, c.port)
}

// Cleanup terminates the container. Call from TestMain if needed.
func (c *Container) Cleanup() {
	if c != nil && c.container != nil {
		c.container.Terminate(context.Background())
	}
}

// shared starts one container per test process on first use.
type shared struct {
	once      sync.Once
	container *Container
	err       error
}

func (s *shared) get(t *testing.T, name string, port nat.Port, req testcontainers.ContainerRequest) *Container {
	t.Helper()

	if testing.Short() {
		t.Skipf("%s container tests skipped in short mode", name)
	}

	s.once.Do(func() {
		s.container, s.err = start(context.Background(), name, port, req)
	})
	if s.err != nil {
		t.Fatalf("%s container failed: %v", name, s.err)
	}
	return s.container
}

// start runs req with port exposed. The container is ready once port listens
// and the request's own wait strategy, if any, is satisfied.
func start(ctx context.Context, name string, port nat.Port, req testcontainers.ContainerRequest) (*Container, error) {
	req.ExposedPorts = []string{string(port)}
	strategies := []wait.Strategy{wait.ForListeningPort(port)}
	if req.WaitingFor != nil {
		strategies = append(strategies, req.WaitingFor)
	}
	req.WaitingFor = wait.ForAll(strategies...).WithDeadline(startDeadline)

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("start %s container: %w", name, err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("get %s host: %w", name, err)
	}

	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		container.Terminate(ctx)
		return nil, fmt.Errorf("get %s port: %w", name, err)
	}

	return &Container{name: name, container: container, host: host, port: mapped.Port()}, nil
}

var redis shared

// RedisContainer is the shared Redis server used by the full-stack tests.
type RedisContainer struct {
	*Container
}

// StartRedis starts one shared Redis container per test process.
// Tests calling it are skipped under -short.
func StartRedis(t *testing.T) *RedisContainer {
	t.Helper()
	c := redis.get(t, "Redis", "6379/tcp", testcontainers.ContainerRequest{
		Image:      "redis:7-alpine",
		WaitingFor: wait.ForLog("Ready to accept connections"),
	})
	return &RedisContainer{Container: c}
}

// Addr returns the host:port of the Redis server.
func (c *RedisContainer) Addr() string {
	return c.HostPort()
}
