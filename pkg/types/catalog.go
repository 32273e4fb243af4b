package types

// CatalogSnapshot is the payload of GET /settings. It is
// recomputed from disk on every call; there is no caching layer.
type CatalogSnapshot struct {
	Models              []string `json:"models"`
	Loras               []string `json:"loras"`
	VAEs                []string `json:"vaes"`
	Presets             []string `json:"presets"`
	Styles              []string `json:"styles"`
	AspectRatios        []string `json:"aspect_ratios"`
	PerformanceOptions  []string `json:"performance_options"`
	Samplers            []string `json:"samplers"`
	Schedulers          []string `json:"schedulers"`
	OutputFormats       []string `json:"output_formats"`
	ClipSkipMax         int      `json:"clip_skip_max"`
	DefaultLoraCount    int      `json:"default_lora_count"`
	RefinerSwapMethods  []string `json:"refiner_swap_methods"`
	MetadataSchemes     []string `json:"metadata_schemes"`
}
