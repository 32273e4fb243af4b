// Package catalog enumerates the filesystem directories the UI needs
// to populate its controls (models, LoRAs, VAEs, presets, styles) into
// a CatalogSnapshot. There is no caching layer: every Snapshot call
// recomputes from disk.
package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"

	"fooocus-orchestrator/internal/config"
	"fooocus-orchestrator/pkg/types"
)

var modelExtensions = []string{".safetensors", ".ckpt", ".pth", ".bin"}

const defaultVAEEntry = "Default (model)"

const (
	clipSkipMax      = 12
	defaultLoraCount = 5
)

var (
	aspectRatios = []string{
		"704×1408", "704×1344", "768×1344", "768×1280", "832×1216", "832×1152",
		"896×1152", "896×1088", "960×1088", "960×1024", "1024×1024", "1024×960",
		"1088×960", "1088×896", "1152×896", "1152×832", "1216×832", "1280×768",
		"1344×768", "1344×704", "1408×704", "1472×704", "1536×640", "1600×640",
		"1664×576", "1728×576",
	}
	performanceOptions = []string{"Quality", "Speed", "Extreme Speed", "Lightning"}
	samplers           = []string{"dpmpp_2m_sde_gpu", "dpmpp_2m_sde", "dpmpp_3m_sde_gpu", "dpmpp_3m_sde", "euler", "euler_ancestral", "ddim", "uni_pc"}
	schedulers         = []string{"karras", "exponential", "sgm_uniform", "simple", "ddim_uniform"}
	outputFormats      = []string{"png", "jpg", "webp"}
	refinerSwapMethods = []string{"joint", "separate", "vae"}
	metadataSchemes    = []string{"fooocus", "a1111"}
	pseudoStyles       = []string{"Fooocus V2", "Random Style"}
)

type Reader struct {
	cfg    config.CatalogConfig
	logger *zap.Logger
}

func NewReader(cfg config.CatalogConfig, logger *zap.Logger) *Reader {
	return &Reader{cfg: cfg, logger: logger}
}

func (r *Reader) Snapshot() types.CatalogSnapshot {
	return types.CatalogSnapshot{
		Models:             scanFiles(r.cfg.ModelsDir, modelExtensions),
		Loras:              scanFiles(r.cfg.LorasDir, modelExtensions),
		VAEs:               append([]string{defaultVAEEntry}, scanFiles(r.cfg.VAEsDir, modelExtensions)...),
		Presets:            scanFiles(r.cfg.PresetsDir, []string{".json"}),
		Styles:             r.scanStyles(),
		AspectRatios:       aspectRatios,
		PerformanceOptions: performanceOptions,
		Samplers:           samplers,
		Schedulers:         schedulers,
		OutputFormats:      outputFormats,
		ClipSkipMax:        clipSkipMax,
		DefaultLoraCount:   defaultLoraCount,
		RefinerSwapMethods: refinerSwapMethods,
		MetadataSchemes:    metadataSchemes,
	}
}

func scanFiles(dir string, extensions []string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return []string{}
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		for _, want := range extensions {
			if ext == want {
				names = append(names, e.Name())
				break
			}
		}
	}
	sort.Strings(names)
	return names
}

type styleEntry struct {
	Name string `json:"name"`
}

// scanStyles parses every style JSON file in the styles directory.
// A file that fails to parse is skipped rather than aborting the
// whole scan; the two pseudo-styles are appended if no file already
// defines them.
func (r *Reader) scanStyles() []string {
	entries, err := os.ReadDir(r.cfg.StylesDir)
	if err != nil {
		return append([]string{}, pseudoStyles...)
	}

	seen := make(map[string]struct{})
	var names []string
	for _, e := range entries {
		if e.IsDir() || strings.ToLower(filepath.Ext(e.Name())) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(r.cfg.StylesDir, e.Name()))
		if err != nil {
			r.logger.Warn("failed to read style file", zap.String("file", e.Name()), zap.Error(err))
			continue
		}

		var parsed []styleEntry
		if err := json.Unmarshal(data, &parsed); err != nil {
			r.logger.Warn("failed to parse style file", zap.String("file", e.Name()), zap.Error(err))
			continue
		}

		for _, s := range parsed {
			if s.Name == "" {
				continue
			}
			if _, ok := seen[s.Name]; ok {
				continue
			}
			seen[s.Name] = struct{}{}
			names = append(names, s.Name)
		}
	}

	for _, p := range pseudoStyles {
		if _, ok := seen[p]; !ok {
			names = append(names, p)
		}
	}

	sort.Strings(names)
	return names
}
