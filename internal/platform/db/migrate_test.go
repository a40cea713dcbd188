package db

import (
	"context"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/ehr/visitrecon/migrations"
)

func TestLoadMigrations(t *testing.T) {
	source := fstest.MapFS{
		"001_processed_document.sql": {Data: []byte("CREATE TABLE processed_document (id UUID PRIMARY KEY);")},
		"002_review_queue.sql":       {Data: []byte("CREATE INDEX idx_review ON processed_document (id);")},
		"003_archive.sql":            {Data: []byte("CREATE TABLE archive (id UUID PRIMARY KEY);")},
	}

	migrator := NewMigrator(nil, source)
	migs, err := migrator.LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	if len(migs) != 3 {
		t.Fatalf("expected 3 migrations, got %d", len(migs))
	}
	if migs[0].Version != 1 {
		t.Errorf("expected version 1, got %d", migs[0].Version)
	}
	if migs[0].Name != "001_processed_document.sql" {
		t.Errorf("expected name 001_processed_document.sql, got %s", migs[0].Name)
	}
	if migs[0].SQL != "CREATE TABLE processed_document (id UUID PRIMARY KEY);" {
		t.Errorf("unexpected SQL content: %s", migs[0].SQL)
	}
	if migs[2].Version != 3 {
		t.Errorf("expected version 3, got %d", migs[2].Version)
	}
}

func TestLoadMigrations_SortOrder(t *testing.T) {
	source := fstest.MapFS{
		"010_tables.sql": {Data: []byte("SELECT 10;")},
		"002_second.sql": {Data: []byte("SELECT 2;")},
		"001_first.sql":  {Data: []byte("SELECT 1;")},
		"005_middle.sql": {Data: []byte("SELECT 5;")},
	}

	migs, err := NewMigrator(nil, source).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}

	expectedVersions := []int{1, 2, 5, 10}
	if len(migs) != len(expectedVersions) {
		t.Fatalf("expected %d migrations, got %d", len(expectedVersions), len(migs))
	}
	for i, expected := range expectedVersions {
		if migs[i].Version != expected {
			t.Errorf("migration[%d]: expected version %d, got %d", i, expected, migs[i].Version)
		}
	}
}

func TestLoadMigrations_InvalidFilename(t *testing.T) {
	source := fstest.MapFS{
		"001_valid.sql":       {Data: []byte("SELECT 1;")},
		"readme.sql":          {Data: []byte("-- this has no version prefix")},
		"notes.txt":           {Data: []byte("not a sql file")},
		"abc_invalid.sql":     {Data: []byte("-- non-numeric prefix")},
		"002_also_valid.sql":  {Data: []byte("SELECT 2;")},
		"nested/003_deep.sql": {Data: []byte("SELECT 3;")},
	}

	migs, err := NewMigrator(nil, source).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migs) != 2 {
		t.Fatalf("expected 2 valid migrations, got %d", len(migs))
	}
	if migs[0].Version != 1 || migs[1].Version != 2 {
		t.Errorf("unexpected versions %d, %d", migs[0].Version, migs[1].Version)
	}
}

func TestLoadMigrations_DuplicateVersion(t *testing.T) {
	source := fstest.MapFS{
		"001_first.sql":  {Data: []byte("SELECT 1;")},
		"001_second.sql": {Data: []byte("SELECT 1;")},
	}

	_, err := NewMigrator(nil, source).LoadMigrations()
	if err == nil || !strings.Contains(err.Error(), "duplicate migration version 1") {
		t.Fatalf("expected duplicate version error, got %v", err)
	}
}

func TestLoadMigrations_Empty(t *testing.T) {
	migs, err := NewMigrator(nil, fstest.MapFS{}).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migs) != 0 {
		t.Errorf("expected 0 migrations, got %d", len(migs))
	}
}

func TestLoadMigrations_Embedded(t *testing.T) {
	migs, err := NewMigrator(nil, migrations.FS).LoadMigrations()
	if err != nil {
		t.Fatalf("LoadMigrations() error: %v", err)
	}
	if len(migs) < 2 {
		t.Fatalf("expected the embedded migrations, got %d", len(migs))
	}
	for i, mig := range migs {
		if mig.Version != i+1 {
			t.Errorf("embedded migration %s: expected version %d, got %d", mig.Name, i+1, mig.Version)
		}
	}
	if !strings.Contains(migs[0].SQL, "processed_document") {
		t.Error("expected first migration to create processed_document")
	}
}

func TestValidateSchema(t *testing.T) {
	valid := []string{"public", "visitrecon", "_scratch", "tenant_01"}
	for _, s := range valid {
		if err := ValidateSchema(s); err != nil {
			t.Errorf("ValidateSchema(%q) unexpected error: %v", s, err)
		}
	}
	invalid := []string{"", "Public", "1abc", "a-b", "x; DROP TABLE y", strings.Repeat("a", 64)}
	for _, s := range invalid {
		if err := ValidateSchema(s); err == nil {
			t.Errorf("ValidateSchema(%q) expected error", s)
		}
	}
}

func TestMigrator_RejectsInvalidSchema(t *testing.T) {
	m := NewMigrator(nil, fstest.MapFS{})
	if _, err := m.Up(context.Background(), "bad schema"); err == nil {
		t.Fatal("expected invalid schema error before touching the pool")
	}
}

func TestMigrationVersion(t *testing.T) {
	tests := []struct {
		name    string
		version int
		ok      bool
	}{
		{"001_processed_document.sql", 1, true},
		{"12_review_index.sql", 12, true},
		{"001_processed_document.sql.bak", 0, false},
		{"readme.sql", 0, false},
		{"v1_init.sql", 0, false},
		{"-1_negative.sql", 0, false},
	}
	for _, tt := range tests {
		v, ok := migrationVersion(tt.name)
		if v != tt.version || ok != tt.ok {
			t.Errorf("migrationVersion(%q) = %d, %v; want %d, %v", tt.name, v, ok, tt.version, tt.ok)
		}
	}
}

func TestMigrator_StatusRejectsInvalidSchema(t *testing.T) {
	m := NewMigrator(nil, fstest.MapFS{})
	if _, err := m.Status(context.Background(), "Public"); err == nil {
		t.Fatal("expected invalid schema error before touching the pool")
	}
}
