package migrations

import (
	"context"
	"database/sql"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"

	rfp "github.com/goliatone/go-rfp"
	_ "github.com/mattn/go-sqlite3"
)

func TestSources_SplitsPostgresAndSQLite(t *testing.T) {
	sources, err := Sources()
	if err != nil {
		t.Fatalf("sources: %v", err)
	}
	if len(sources) != 2 || sources[0].Dialect != DialectPostgres || sources[1].Dialect != DialectSQLite {
		t.Fatalf("unexpected sources %+v", sources)
	}
	for _, source := range sources {
		if _, err := fs.Stat(source.FS, "00001_rfp_core.up.sql"); err != nil {
			t.Fatalf("expected %s core migration: %v", source.Dialect, err)
		}
	}
}

func TestRegister_OnlySelectedDialects(t *testing.T) {
	var calls []string
	registered, err := Register(context.Background(), func(_ context.Context, dialect string, label string, _ fs.FS) error {
		if label != SourceLabel {
			t.Fatalf("unexpected source label %q", label)
		}
		calls = append(calls, dialect)
		return nil
	}, WithDialects(" SQLite "))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(calls) != 1 || calls[0] != DialectSQLite || len(registered) != 1 {
		t.Fatalf("expected only sqlite registration, got %v", calls)
	}
}

func TestRegister_RejectsUnknownDialect(t *testing.T) {
	_, err := Register(context.Background(), func(context.Context, string, string, fs.FS) error {
		t.Fatalf("register func must not be called")
		return nil
	}, WithDialects("mysql"))
	if err == nil {
		t.Fatalf("expected unknown dialect to fail")
	}
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected missing register func to fail")
	}
}

func TestCoreMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := rfp.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/00001_rfp_core.up.sql",
		"data/sql/migrations/00001_rfp_core.down.sql",
		"data/sql/migrations/sqlite/00001_rfp_core.up.sql",
		"data/sql/migrations/sqlite/00001_rfp_core.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteCoreMigration_EnforcesSingleAcceptAndRollsBack(t *testing.T) {
	db, err := sql.Open("sqlite3", "file:migrations-rfp-core?mode=memory&cache=shared&_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()

	root := rfp.GetMigrationsFS()
	sqliteMigrations, err := fs.Sub(root, "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	ctx := context.Background()
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_rfp_core.up.sql"); err != nil {
		t.Fatalf("apply core migration up: %v", err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO rfp_requests (static_id, context, document_ids) VALUES (?, ?, ?)`,
		"rfp-1", `{"productId":"LOAN","subProductId":"BILATERAL"}`, "[]",
	); err != nil {
		t.Fatalf("insert rfp: %v", err)
	}
	insertAction := `
		INSERT INTO rfp_actions (
			static_id, rfp_id, type, sender_static_id, recipient_static_id, status, seq
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := db.ExecContext(ctx, insertAction, "accept-1", "rfp-1", "Accept", "bank1", "bank2", "Processed", 1); err != nil {
		t.Fatalf("insert first accept: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertAction, "accept-2", "rfp-1", "Accept", "bank1", "bank3", "Created", 2); err != nil {
		t.Fatalf("insert created accept: %v", err)
	}
	if _, err := db.ExecContext(ctx, `UPDATE rfp_actions SET status = 'Processed' WHERE static_id = ?`, "accept-2"); err == nil {
		t.Fatalf("expected single accept index violation")
	}
	if _, err := db.ExecContext(ctx, insertAction, "bad-type", "rfp-1", "Counter", "bank1", "bank3", "Created", 3); err == nil {
		t.Fatalf("expected type check violation")
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_rfp_core.down.sql"); err != nil {
		t.Fatalf("apply core migration down: %v", err)
	}
	var count int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name LIKE 'rfp_%'`,
	).Scan(&count); err != nil {
		t.Fatalf("query sqlite_master after down migration: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected rfp tables to be dropped after down migration, found %d", count)
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
