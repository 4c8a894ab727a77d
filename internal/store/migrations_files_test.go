package store

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"testing/fstest"
)

var testMigrationsDir = filepath.Join("..", "..", "db", "migrations")

func TestMigrationsHaveMatchingUpAndDownFiles(t *testing.T) {
	entries, err := os.ReadDir(testMigrationsDir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}

	pattern := regexp.MustCompile(`^(\d+)_.*\.(up|down)\.sql$`)
	byVersion := map[string]map[string]bool{}
	for _, entry := range entries {
		match := pattern.FindStringSubmatch(entry.Name())
		if entry.IsDir() || match == nil {
			continue
		}
		version, direction := match[1], match[2]
		if byVersion[version] == nil {
			byVersion[version] = map[string]bool{}
		}
		if byVersion[version][direction] {
			t.Fatalf("duplicate %s migration file for version %s", direction, version)
		}
		byVersion[version][direction] = true
	}

	if len(byVersion) == 0 {
		t.Fatal("no migrations discovered")
	}
	for version, dirs := range byVersion {
		if !dirs["up"] || !dirs["down"] {
			t.Fatalf("version %s must include both up and down files", version)
		}
	}
}

func TestMigrationFilesOrderAndFilter(t *testing.T) {
	fsys := fstest.MapFS{
		"0002_templates.up.sql":   {Data: []byte("SELECT 2")},
		"0001_init.up.sql":        {Data: []byte("SELECT 1")},
		"0001_init.down.sql":      {Data: []byte("SELECT 0")},
		"README.md":               {Data: []byte("notes")},
		"archive/0000_old.up.sql": {Data: []byte("SELECT -1")},
	}

	files, err := MigrationFiles(fsys)
	if err != nil {
		t.Fatalf("MigrationFiles: %v", err)
	}
	want := []string{"0001_init.up.sql", "0002_templates.up.sql"}
	if len(files) != len(want) {
		t.Fatalf("expected %v, got %v", want, files)
	}
	for i := range want {
		if files[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, files)
		}
	}
}

func TestMigrationFilesFromRepo(t *testing.T) {
	files, err := MigrationFiles(os.DirFS(testMigrationsDir))
	if err != nil {
		t.Fatalf("MigrationFiles: %v", err)
	}
	if len(files) == 0 || files[0] != "0001_init.up.sql" {
		t.Fatalf("expected 0001_init.up.sql first, got %v", files)
	}
}
