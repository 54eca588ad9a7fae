package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// SetupTestDB opens the database named by TEST_PG_DSN, drops the given tables
// so migrations start clean, and closes it when the test ends.
// It skips the test if TEST_PG_DSN environment variable is not set.
func SetupTestDB(t *testing.T, dropTables ...string) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := database.PingContext(ctx); err != nil {
		t.Fatalf("failed to reach database: %v", err)
	}
	for _, table := range dropTables {
		if _, err := database.ExecContext(ctx, `DROP TABLE IF EXISTS `+table); err != nil {
			t.Fatalf("failed to drop %s: %v", table, err)
		}
	}
	return database
}
