package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"fooocus-orchestrator/internal/config"
)

func writeOutput(t *testing.T, dir, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
		t.Fatalf("writeOutput(%s): %v", name, err)
	}
}

func TestListWalksFlatFilesAndDateSubdirectories(t *testing.T) {
	outputs := t.TempDir()
	writeOutput(t, outputs, "2026-08-01_10-00-00_flat.png")

	subdir := filepath.Join(outputs, "2026-08-02")
	if err := os.Mkdir(subdir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeOutput(t, subdir, "2026-08-02_12-00-00_nested.png")

	r := NewReader(config.HistoryConfig{OutputsDir: outputs, DefaultLimit: 50, MaxLimit: 500}, zap.NewNop())
	page, err := r.List(50, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 2 {
		t.Fatalf("Total = %d, want 2", page.Total)
	}
	if page.Items[0].Filename != "2026-08-02_12-00-00_nested.png" {
		t.Errorf("Items[0] = %q, want the newer nested entry first", page.Items[0].Filename)
	}
}

func TestListIgnoresNonDateDirectories(t *testing.T) {
	outputs := t.TempDir()
	if err := os.Mkdir(filepath.Join(outputs, "not-a-date"), 0o755); err != nil {
		t.Fatal(err)
	}
	writeOutput(t, filepath.Join(outputs, "not-a-date"), "hidden.png")
	writeOutput(t, outputs, "2026-08-01_10-00-00_visible.png")

	r := NewReader(config.HistoryConfig{OutputsDir: outputs}, zap.NewNop())
	page, err := r.List(50, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Total != 1 {
		t.Fatalf("Total = %d, want 1 (non-date directory must be ignored)", page.Total)
	}
}

func TestListFallsBackToModTimeWithoutFilenamePrefix(t *testing.T) {
	outputs := t.TempDir()
	writeOutput(t, outputs, "no_timestamp_prefix.png")

	r := NewReader(config.HistoryConfig{OutputsDir: outputs}, zap.NewNop())
	page, err := r.List(50, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("Items = %v, want 1", page.Items)
	}
	if page.Items[0].CreatedEpochSeconds <= 0 {
		t.Errorf("CreatedEpochSeconds = %d, want mtime fallback > 0", page.Items[0].CreatedEpochSeconds)
	}
}

func TestListLimitIsClampedToAtLeastOne(t *testing.T) {
	outputs := t.TempDir()
	writeOutput(t, outputs, "2026-08-01_10-00-00_a.png")
	writeOutput(t, outputs, "2026-08-01_10-00-01_b.png")

	r := NewReader(config.HistoryConfig{OutputsDir: outputs}, zap.NewNop())
	page, err := r.List(0, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(page.Items) != 1 {
		t.Fatalf("Items = %v, want exactly 1 when limit<=0", page.Items)
	}
}

func TestListJoinsSidecarMetadataTolerantOfMissingFile(t *testing.T) {
	outputs := t.TempDir()
	writeOutput(t, outputs, "2026-08-01_10-00-00_a.png")

	r := NewReader(config.HistoryConfig{
		OutputsDir:    outputs,
		SidecarDBPath: filepath.Join(outputs, "does-not-exist.db"),
	}, zap.NewNop())

	page, err := r.List(50, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Items[0].Metadata != nil {
		t.Errorf("Metadata = %v, want nil when sidecar db is absent", page.Items[0].Metadata)
	}
}

func TestListJoinsSidecarMetadataWhenPresent(t *testing.T) {
	outputs := t.TempDir()
	writeOutput(t, outputs, "2026-08-01_10-00-00_a.png")

	dbPath := filepath.Join(outputs, "metadata.db")
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		t.Fatalf("open fixture db: %v", err)
	}
	if _, err := db.Exec(`CREATE TABLE history_metadata (filename TEXT PRIMARY KEY, metadata TEXT)`); err != nil {
		t.Fatalf("create fixture table: %v", err)
	}
	if _, err := db.Exec(`INSERT INTO history_metadata (filename, metadata) VALUES (?, ?)`,
		"2026-08-01_10-00-00_a.png", `{"prompt":"a cat"}`); err != nil {
		t.Fatalf("insert fixture row: %v", err)
	}
	db.Close()

	r := NewReader(config.HistoryConfig{OutputsDir: outputs, SidecarDBPath: dbPath}, zap.NewNop())
	page, err := r.List(50, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if page.Items[0].Metadata["prompt"] != "a cat" {
		t.Errorf("Metadata = %v, want prompt=a cat", page.Items[0].Metadata)
	}
}

func TestParseTimestampMatchesFilenamePrefix(t *testing.T) {
	ts := parseTimestamp("2026-08-01_10-00-00_test.png")
	if ts == 0 {
		t.Fatal("parseTimestamp() = 0, want a parsed timestamp")
	}
	want := time.Date(2026, 8, 1, 10, 0, 0, 0, time.Local).Unix()
	if ts != want {
		t.Errorf("parseTimestamp() = %d, want %d", ts, want)
	}
}

func TestParseTimestampReturnsZeroWithoutPrefix(t *testing.T) {
	if got := parseTimestamp("random_name.png"); got != 0 {
		t.Errorf("parseTimestamp() = %d, want 0", got)
	}
}
