package surrealdb

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"

	surreal "github.com/surrealdb/surrealdb.go"

	"github.com/bobmcallan/screener/internal/common"
	tcommon "github.com/bobmcallan/screener/tests/common"
)

var databaseSeq atomic.Int64

// testConfig points at the shared container with a database of its own.
func testConfig(t *testing.T) common.StorageConfig {
	t.Helper()
	sc := tcommon.StartSurrealDB(t)

	// SurrealDB rejects "/" in database names, which subtests produce
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	return common.StorageConfig{
		Address:   sc.Address(),
		Namespace: "screener_test",
		Database:  fmt.Sprintf("t_%s_%d", name, databaseSeq.Add(1)),
		Username:  tcommon.SurrealUser,
		Password:  tcommon.SurrealPass,
	}
}

// testDB opens a connection through the store's own connect path.
func testDB(t *testing.T) *surreal.DB {
	t.Helper()

	db, err := connect(context.Background(), testConfig(t))
	if err != nil {
		t.Fatalf("connect to SurrealDB: %v", err)
	}
	t.Cleanup(func() {
		db.Close(context.Background())
	})
	return db
}

func testLogger() *common.Logger {
	return common.NewSilentLogger()
}
