package common

import (
	"testing"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var surreal shared

// SurrealDB root credentials of the test container.
const (
	SurrealUser = "root"
	SurrealPass = "root"
)

// SurrealDBContainer is the shared SurrealDB server used by the cache store tests.
type SurrealDBContainer struct {
	*Container
}

// StartSurrealDB starts one shared SurrealDB container per test process.
// Tests calling it are skipped under -short.
func StartSurrealDB(t *testing.T) *SurrealDBContainer {
	t.Helper()
	c := surreal.get(t, "SurrealDB", "8000/tcp", testcontainers.ContainerRequest{
		Image:      "surrealdb/surrealdb:v3.0.0",
		Cmd:        []string{"start", "--user", SurrealUser, "--pass", SurrealPass},
		WaitingFor: wait.ForLog("Started web server"),
	})
	return &SurrealDBContainer{Container: c}
}

// Address returns the WebSocket RPC address for SurrealDB.
func (c *SurrealDBContainer) Address() string {
	return "ws://" + c.HostPort() + "/rpc"
}
