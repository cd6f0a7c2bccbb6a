package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"

	"github.com/google/uuid"

	"evita/internal/protocol"
	"evita/internal/sim/tuning"
)

func TestDollarNumbers(t *testing.T) {
	got := dollarNumbers(`INSERT INTO t(a,b,c) VALUES(?,?,?)`)
	want := `INSERT INTO t(a,b,c) VALUES($1,$2,$3)`
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestOpenPostgres_Errors(t *testing.T) {
	if _, err := OpenPostgres("", Options{}); err == nil {
		t.Fatalf("expected error for empty dsn")
	}

	prev := sqlOpen
	sqlOpen = func(_, _ string) (*sql.DB, error) { return nil, errors.New("no driver") }
	defer func() { sqlOpen = prev }()

	if _, err := OpenPostgres("postgres://example/evita", Options{}); err == nil {
		t.Fatalf("expected open error to propagate")
	}
}

// TestPostgresIndex_Live runs against a real server when
// EVITA_TEST_POSTGRES_DSN is set.
func TestPostgresIndex_Live(t *testing.T) {
	dsn := os.Getenv("EVITA_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("EVITA_TEST_POSTGRES_DSN not set")
	}
	runID := uuid.NewString()
	idx, err := OpenPostgres(dsn, Options{RunID: runID})
	if err != nil {
		t.Fatalf("OpenPostgres: %v", err)
	}
	if err := idx.RecordRun(protocol.RunMsg{RunID: runID, Seed: 1, Dimension: 2}, tuning.Defaults()); err != nil {
		t.Fatalf("RecordRun: %v", err)
	}
	for _, ev := range sampleEvents() {
		_ = idx.WriteEvent(ev)
	}
	if err := idx.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open(postgresDriver, dsn)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	defer db.Close()
	var n int
	if err := db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM tasks WHERE run_id=$1`, runID).Scan(&n); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 2 {
		t.Fatalf("tasks=%d want 2", n)
	}
}
