// Package configeditor backs GET/POST /config/editor: a flat,
// user-editable settings document whose field types are discovered
// from a companion schema file, the Go analogue of Fooocus's
// config_modification_tutorial.txt convention (a document listing
// every tunable key, its type and its default, separate from the
// config file itself). Edits are written to disk but never applied
// to the running process; they take effect on the next restart.
package configeditor

import (
	"encoding/json"
	"fmt"
	"os"
)

// FieldSchema describes one editable key: its JSON type
// ("string", "number", "bool", "array") and its default value.
type FieldSchema struct {
	Type    string      `json:"type"`
	Default interface{} `json:"default,omitempty"`
}

type Editor struct {
	configPath string
	schemaPath string
}

func NewEditor(configPath, schemaPath string) *Editor {
	return &Editor{configPath: configPath, schemaPath: schemaPath}
}

func (e *Editor) loadSchema() (map[string]FieldSchema, error) {
	data, err := os.ReadFile(e.schemaPath)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]FieldSchema{}, nil
		}
		return nil, fmt.Errorf("read schema file: %w", err)
	}

	var schema map[string]FieldSchema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, fmt.Errorf("parse schema file: %w", err)
	}
	return schema, nil
}

// Read returns the current document, defaulting any schema key absent
// from the on-disk document to its schema default.
func (e *Editor) Read() (map[string]interface{}, error) {
	schema, err := e.loadSchema()
	if err != nil {
		return nil, err
	}

	doc := map[string]interface{}{}
	if data, err := os.ReadFile(e.configPath); err == nil {
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("parse config document: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config document: %w", err)
	}

	for key, field := range schema {
		if _, ok := doc[key]; !ok {
			doc[key] = field.Default
		}
	}
	return doc, nil
}

// Write type-checks every key in doc against the schema and, if every
// key passes, persists the whole document. Keys absent from the
// schema are rejected rather than silently accepted.
func (e *Editor) Write(doc map[string]interface{}) error {
	schema, err := e.loadSchema()
	if err != nil {
		return err
	}

	for key, value := range doc {
		field, ok := schema[key]
		if !ok {
			return fmt.Errorf("unknown configuration key %q", key)
		}
		if err := checkType(field.Type, value); err != nil {
			return fmt.Errorf("key %q: %w", key, err)
		}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config document: %w", err)
	}
	if err := os.WriteFile(e.configPath, data, 0o644); err != nil {
		return fmt.Errorf("write config document: %w", err)
	}
	return nil
}

func checkType(schemaType string, value interface{}) error {
	if value == nil {
		return nil
	}
	switch schemaType {
	case "string":
		if _, ok := value.(string); !ok {
			return fmt.Errorf("expected string, got %T", value)
		}
	case "number":
		if _, ok := value.(float64); !ok {
			return fmt.Errorf("expected number, got %T", value)
		}
	case "bool":
		if _, ok := value.(bool); !ok {
			return fmt.Errorf("expected bool, got %T", value)
		}
	case "array":
		if _, ok := value.([]interface{}); !ok {
			return fmt.Errorf("expected array, got %T", value)
		}
	default:
		return fmt.Errorf("unsupported schema type %q", schemaType)
	}
	return nil
}
