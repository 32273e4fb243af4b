package configeditor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func writeSchema(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "schema.json")
	schema := map[string]FieldSchema{
		"theme":              {Type: "string", Default: "dark"},
		"default_image_number": {Type: "number", Default: 2.0},
	}
	data, err := json.Marshal(schema)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadAppliesSchemaDefaultsForMissingKeys(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeSchema(t, dir)
	configPath := filepath.Join(dir, "config.json")

	e := NewEditor(configPath, schemaPath)
	doc, err := e.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if doc["theme"] != "dark" {
		t.Errorf("theme = %v, want dark default", doc["theme"])
	}
}

func TestWriteRejectsUnknownKey(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeSchema(t, dir)
	configPath := filepath.Join(dir, "config.json")

	e := NewEditor(configPath, schemaPath)
	err := e.Write(map[string]interface{}{"not_a_field": "x"})
	if err == nil {
		t.Fatal("Write() error = nil, want rejection of unknown key")
	}
}

func TestWriteRejectsWrongType(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeSchema(t, dir)
	configPath := filepath.Join(dir, "config.json")

	e := NewEditor(configPath, schemaPath)
	err := e.Write(map[string]interface{}{"theme": 123.0})
	if err == nil {
		t.Fatal("Write() error = nil, want type mismatch rejection")
	}
}

func TestWriteThenReadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	schemaPath := writeSchema(t, dir)
	configPath := filepath.Join(dir, "config.json")

	e := NewEditor(configPath, schemaPath)
	if err := e.Write(map[string]interface{}{"theme": "light"}); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	doc, err := e.Read()
	if err != nil {
		t.Fatalf("Read() error = %v", err)
	}
	if doc["theme"] != "light" {
		t.Errorf("theme = %v, want light", doc["theme"])
	}
	if doc["default_image_number"] != 2.0 {
		t.Errorf("default_image_number = %v, want schema default 2.0", doc["default_image_number"])
	}
}
