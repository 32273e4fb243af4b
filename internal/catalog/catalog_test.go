package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"fooocus-orchestrator/internal/config"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatalf("writeFile(%s): %v", name, err)
	}
}

func TestSnapshotScansModelDirectories(t *testing.T) {
	modelsDir := t.TempDir()
	lorasDir := t.TempDir()
	vaesDir := t.TempDir()
	presetsDir := t.TempDir()
	stylesDir := t.TempDir()

	writeFile(t, modelsDir, "juggernautXL_v8Rundiffusion.safetensors", "")
	writeFile(t, modelsDir, "readme.txt", "")
	writeFile(t, lorasDir, "sd_xl_offset_example-lora_1.0.safetensors", "")
	writeFile(t, vaesDir, "sdxl_vae.safetensors", "")

	r := NewReader(config.CatalogConfig{
		ModelsDir:  modelsDir,
		LorasDir:   lorasDir,
		VAEsDir:    vaesDir,
		PresetsDir: presetsDir,
		StylesDir:  stylesDir,
	}, zap.NewNop())

	snap := r.Snapshot()
	if len(snap.Models) != 1 || snap.Models[0] != "juggernautXL_v8Rundiffusion.safetensors" {
		t.Errorf("Models = %v, want exactly the one safetensors file", snap.Models)
	}
	if len(snap.VAEs) != 2 || snap.VAEs[0] != defaultVAEEntry {
		t.Errorf("VAEs = %v, want [%q, sdxl_vae.safetensors]", snap.VAEs, defaultVAEEntry)
	}
}

func TestSnapshotMissingDirectoriesReturnEmptyNotError(t *testing.T) {
	r := NewReader(config.CatalogConfig{
		ModelsDir: "/nonexistent/path/xyz",
		StylesDir: "/nonexistent/styles/xyz",
	}, zap.NewNop())

	snap := r.Snapshot()
	if len(snap.Models) != 0 {
		t.Errorf("Models = %v, want empty for missing directory", snap.Models)
	}
	if len(snap.Styles) != len(pseudoStyles) {
		t.Errorf("Styles = %v, want just the pseudo-styles for a missing directory", snap.Styles)
	}
}

func TestScanStylesTolerantOfBadFileAndAppendsPseudoStyles(t *testing.T) {
	stylesDir := t.TempDir()
	writeFile(t, stylesDir, "good.json", `[{"name":"Cinematic"},{"name":"Anime"}]`)
	writeFile(t, stylesDir, "broken.json", `not json`)

	r := NewReader(config.CatalogConfig{StylesDir: stylesDir}, zap.NewNop())
	styles := r.scanStyles()

	want := map[string]bool{"Cinematic": true, "Anime": true, "Fooocus V2": true, "Random Style": true}
	if len(styles) != len(want) {
		t.Fatalf("styles = %v, want 4 entries", styles)
	}
	for _, s := range styles {
		if !want[s] {
			t.Errorf("unexpected style %q", s)
		}
	}
}

func TestScanStylesDoesNotDuplicatePseudoStyleAlreadyDefined(t *testing.T) {
	stylesDir := t.TempDir()
	writeFile(t, stylesDir, "core.json", `[{"name":"Fooocus V2"}]`)

	r := NewReader(config.CatalogConfig{StylesDir: stylesDir}, zap.NewNop())
	styles := r.scanStyles()

	count := 0
	for _, s := range styles {
		if s == "Fooocus V2" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("Fooocus V2 appeared %d times, want 1", count)
	}
}
