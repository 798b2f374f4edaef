package postgres

import (
	"errors"
	"strings"
	"testing"
	"testing/fstest"
)

func TestLoadMigrationsFromFS_Success(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql": {
			Data: []byte("CREATE TABLE test_a (id INT);"),
		},
		"sql/migrations/0001_init.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test_a;"),
		},
		"sql/migrations/0002_more.up.sql": {
			Data: []byte("CREATE TABLE test_b (id INT);"),
		},
		"sql/migrations/0002_more.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test_b;"),
		},
	}

	migrations, err := loadMigrationsFromFS(fsys)
	if err != nil {
		t.Fatalf("loadMigrationsFromFS failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}

	if migrations[0].Version != 1 || migrations[0].Name != "init" {
		t.Fatalf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[1].Version != 2 || migrations[1].Name != "more" {
		t.Fatalf("unexpected second migration: %+v", migrations[1])
	}
}

func TestLoadMigrationsFromFS_MissingDown(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql": {
			Data: []byte("CREATE TABLE test_a (id INT);"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for missing down migration")
	}
	if !strings.Contains(err.Error(), "both up and down") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestLoadMigrationsFromFS_InvalidFilename(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/not_a_migration.sql": {
			Data: []byte("SELECT 1;"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for invalid migration file name")
	}
}

func TestLoadMigrationsFromFS_EmptyFile(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0001_init.up.sql": {
			Data: []byte("   \n"),
		},
		"sql/migrations/0001_init.down.sql": {
			Data: []byte("DROP TABLE IF EXISTS test;"),
		},
	}

	_, err := loadMigrationsFromFS(fsys)
	if err == nil {
		t.Fatal("expected error for empty migration file body")
	}
}

func TestEmbeddedMigrationsAreComplete(t *testing.T) {
	t.Parallel()

	migrations, err := loadMigrationsFromFS(migrationsFS)
	if err != nil {
		t.Fatalf("load embedded migrations: %v", err)
	}
	if len(migrations) != 5 {
		t.Fatalf("expected 5 embedded migrations, got %d", len(migrations))
	}
	for i, m := range migrations {
		if m.Version != int64(i+1) {
			t.Fatalf("unexpected version order at %d: %+v", i, m)
		}
	}
	if !strings.Contains(migrations[1].UpSQL, "order_number_seq") {
		t.Fatal("orders migration must create order_number_seq")
	}
	if !strings.Contains(migrations[1].UpSQL, "ON DELETE CASCADE") {
		t.Fatal("order_items must cascade on order delete")
	}
	if !strings.Contains(migrations[4].UpSQL, "position") {
		t.Fatal("order_items must store item position")
	}
}

func TestSelectMigrations(t *testing.T) {
	t.Parallel()

	all := []migration{
		{Version: 1, Name: "a", UpSQL: "CREATE TABLE a (id INT);", DownSQL: "DROP TABLE a;"},
		{Version: 2, Name: "b", UpSQL: "CREATE TABLE b (id INT);", DownSQL: "DROP TABLE b;"},
		{Version: 3, Name: "c", UpSQL: "CREATE TABLE c (id INT);", DownSQL: "DROP TABLE c;"},
	}
	applied := map[int64]string{1: all[0].checksum(), 2: ""}

	up, err := selectMigrations(all, applied, migrationUp, 0)
	if err != nil {
		t.Fatalf("select up: %v", err)
	}
	if len(up) != 1 || up[0].Version != 3 {
		t.Fatalf("unexpected up selection: %+v", up)
	}

	down, err := selectMigrations(all, applied, migrationDown, 5)
	if err != nil {
		t.Fatalf("select down: %v", err)
	}
	if len(down) != 2 || down[0].Version != 2 || down[1].Version != 1 {
		t.Fatalf("down must go newest first: %+v", down)
	}

	one, _ := selectMigrations(all, map[int64]string{}, migrationUp, 1)
	if len(one) != 1 || one[0].Version != 1 {
		t.Fatalf("steps must limit up selection: %+v", one)
	}

	_, err = selectMigrations(all, map[int64]string{1: "stale"}, migrationUp, 0)
	if !errors.Is(err, ErrMigrationDrift) {
		t.Fatalf("expected drift error, got %v", err)
	}

	_, err = selectMigrations(all, map[int64]string{9: ""}, migrationDown, 1)
	if err == nil || !strings.Contains(err.Error(), "unknown migration version 9") {
		t.Fatalf("expected unknown version error, got %v", err)
	}
}

func TestMigrationChecksumIgnoresDownScript(t *testing.T) {
	t.Parallel()

	a := migration{UpSQL: "CREATE TABLE a (id INT);", DownSQL: "DROP TABLE a;"}
	b := a
	b.DownSQL = "DROP TABLE IF EXISTS a;"
	if a.checksum() != b.checksum() {
		t.Fatal("checksum must depend on up script only")
	}
	b.UpSQL = "CREATE TABLE a (id BIGINT);"
	if a.checksum() == b.checksum() {
		t.Fatal("checksum must change with up script")
	}
}
