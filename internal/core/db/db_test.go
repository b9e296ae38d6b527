package db

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
)

func openTestDB(t *testing.T) *Queries {
	t.Helper()

	dbURL := "sqlite://" + filepath.Join(t.TempDir(), "test.db")
	conn, err := Open(dbURL)
	if err != nil {
		t.Fatalf("Open() error = %v, want nil", err)
	}
	t.Cleanup(func() { conn.Close() })

	if err := MigrateUp(conn); err != nil {
		t.Fatalf("MigrateUp() error = %v, want nil", err)
	}

	q, err := LoadQueries(conn)
	if err != nil {
		t.Fatalf("LoadQueries() error = %v, want nil", err)
	}
	return q
}

func TestOpen_UnsupportedScheme(t *testing.T) {
	_, err := Open("mysql://localhost/db")
	if err == nil || !strings.Contains(err.Error(), "unsupported database scheme") {
		t.Errorf("Open() error = %v, want unsupported scheme", err)
	}
}

func TestMigrateUp_Idempotent(t *testing.T) {
	q := openTestDB(t)

	if err := MigrateUp(q.DB()); err != nil {
		t.Fatalf("second MigrateUp() error = %v, want nil", err)
	}

	statuses, err := MigrateStatus(q.DB())
	if err != nil {
		t.Fatalf("MigrateStatus() error = %v, want nil", err)
	}
	if len(statuses) == 0 {
		t.Fatalf("len(statuses) = 0, want > 0")
	}
	for _, s := range statuses {
		if !s.Applied {
			t.Errorf("migration %s Applied = false, want true", s.ID)
		}
		if s.AppliedAt == nil {
			t.Errorf("migration %s AppliedAt = nil, want timestamp", s.ID)
		}
	}
}

func TestMigrateUp_ChecksumMismatch(t *testing.T) {
	q := openTestDB(t)

	if _, err := q.DB().Exec("UPDATE migrations SET checksum = 'tampered'"); err != nil {
		t.Fatalf("tamper error = %v, want nil", err)
	}

	err := MigrateUp(q.DB())
	if err == nil || !strings.Contains(err.Error(), "checksum mismatch") {
		t.Errorf("MigrateUp() error = %v, want checksum mismatch", err)
	}
}

func TestQueries_VariableRoundTrip(t *testing.T) {
	q := openTestDB(t)
	ctx := context.Background()

	if _, err := q.ExecContext(ctx, "upsert-variable", "$_points", "10"); err != nil {
		t.Fatalf("ExecContext() error = %v, want nil", err)
	}
	if _, err := q.ExecContext(ctx, "upsert-variable", "$_points", "11"); err != nil {
		t.Fatalf("ExecContext() error = %v, want nil", err)
	}

	var value string
	if err := q.GetContext(ctx, "get-variable", &value, "$_points"); err != nil {
		t.Fatalf("GetContext() error = %v, want nil", err)
	}
	if value != "11" {
		t.Errorf("value = %q, want %q", value, "11")
	}
}

func TestQueries_UnknownName(t *testing.T) {
	q := openTestDB(t)

	_, err := q.Exec("no-such-query")
	if err == nil || !strings.Contains(err.Error(), "query not found") {
		t.Errorf("Exec() error = %v, want query not found", err)
	}
}

func TestStripComments(t *testing.T) {
	got := stripComments("-- header\n  CREATE TABLE t (x INT)\n")
	if got != "CREATE TABLE t (x INT)" {
		t.Errorf("stripComments() = %q", got)
	}
	if got := stripComments("\n-- only a comment\n"); got != "" {
		t.Errorf("stripComments() = %q, want empty", got)
	}
}
