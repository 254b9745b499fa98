// Package testutil opens throwaway Postgres schemas for tests that need a
// real database. Tests skip when TEST_POSTGRES_DSN is not set.
package testutil

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sentinel/ledger/internal/infra"
)

var testSchemaNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// OpenTestDB creates a fresh schema, migrates it to the latest version and
// returns a pool whose search_path points at it. The schema is dropped when
// the test finishes.
func OpenTestDB(t *testing.T) *pgxpool.Pool {
	t.Helper()
	cfg, err := infra.LoadTestConfig()
	if err != nil {
		t.Skipf("skip test db: %v", err)
	}
	dsn := cfg.TestPostgresDSN
	schema := fmt.Sprintf("test_%d", time.Now().UnixNano())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := execSchemaDDL(ctx, dsn, "CREATE SCHEMA %s", schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}

	dsnWithSchema := withSearchPath(dsn, schema)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := infra.RunMigrations(dsnWithSchema, "", logger); err != nil {
		_ = execSchemaDDL(context.Background(), dsn, "DROP SCHEMA %s CASCADE", schema)
		t.Fatalf("apply migrations: %v", err)
	}

	pool, err := infra.NewPostgresPoolDSN(ctx, dsnWithSchema, 5)
	if err != nil {
		_ = execSchemaDDL(context.Background(), dsn, "DROP SCHEMA %s CASCADE", schema)
		t.Fatalf("open pool: %v", err)
	}

	t.Cleanup(func() {
		pool.Close()
		_ = execSchemaDDL(context.Background(), dsn, "DROP SCHEMA %s CASCADE", schema)
	})
	return pool
}

func execSchemaDDL(ctx context.Context, dsn, format, schema string) error {
	stmt, err := schemaDDL(format, schema)
	if err != nil {
		return err
	}
	base, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open base db: %w", err)
	}
	defer base.Close()
	_, err = base.Exec(ctx, stmt)
	return err
}

func withSearchPath(dsn, schema string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "search_path=" + url.QueryEscape(schema)
}

func schemaDDL(format, schema string) (string, error) {
	if !testSchemaNamePattern.MatchString(schema) {
		return "", fmt.Errorf("schema %q does not match required pattern", schema)
	}
	return fmt.Sprintf(format, pgx.Identifier{schema}.Sanitize()), nil
}
