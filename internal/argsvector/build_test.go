package argsvector

import (
	"testing"

	"fooocus-orchestrator/pkg/types"
)

func TestBuildLength(t *testing.T) {
	req := &types.GenerateRequest{Prompt: "a cat"}
	vec, version := Build(req)
	if len(vec) != ExpectedLength {
		t.Fatalf("len(vec) = %d, want %d", len(vec), ExpectedLength)
	}
	if version != ContractVersion {
		t.Fatalf("version = %d, want %d", version, ContractVersion)
	}
}

func TestBuildRoundTripsValidate(t *testing.T) {
	req := &types.GenerateRequest{
		Prompt:                "a dog in a field",
		NegativePrompt:        "blurry",
		StyleSelections:       []string{"Fooocus V2"},
		PerformanceSelection:  "Quality",
		AspectRatiosSelection: "1024*1024",
		ImageNumber:           4,
		Loras: []types.LoraSelection{
			{Enabled: true, Name: "add_detail.safetensors", Weight: 0.8},
		},
	}
	vec, _ := Build(req)
	if err := Validate(vec); err != nil {
		t.Fatalf("Validate(Build(req)) = %v, want nil", err)
	}
}

func TestNormalizeAspectRatio(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"1152x896", "1152×896"},
		{"1152X896", "1152×896"},
		{"1152*896", "1152×896"},
		{"1152×896", "1152×896"},
		{"", "1152×896"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := normalizeAspectRatio(tt.in); got != tt.want {
				t.Errorf("normalizeAspectRatio(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestBuildLoraBlockPadsToFixedSlotCount(t *testing.T) {
	req := &types.GenerateRequest{
		Prompt: "x",
		Loras: []types.LoraSelection{
			{Enabled: true, Name: "one.safetensors", Weight: 1.0},
		},
	}
	vec, _ := Build(req)
	for i := 0; i < loraSlotCount; i++ {
		base := loraBlockStart + i*3
		if i == 0 {
			if vec[base] != true || vec[base+1] != "one.safetensors" {
				t.Fatalf("slot 0 = %v, %v, want enabled one.safetensors", vec[base], vec[base+1])
			}
			continue
		}
		if vec[base] != false || vec[base+1] != "None" || vec[base+2] != 1.0 {
			t.Fatalf("padding slot %d = %v,%v,%v, want false,None,1.0", i, vec[base], vec[base+1], vec[base+2])
		}
	}
}

func TestBuildLoraBlockTruncatesExcessSlots(t *testing.T) {
	loras := make([]types.LoraSelection, loraSlotCount+3)
	for i := range loras {
		loras[i] = types.LoraSelection{Enabled: true, Name: "extra", Weight: 1.0}
	}
	req := &types.GenerateRequest{Prompt: "x", Loras: loras}
	vec, _ := Build(req)
	if len(vec) != ExpectedLength {
		t.Fatalf("len(vec) = %d, want %d", len(vec), ExpectedLength)
	}
}

func TestBuildRefinerSwapMethodFallsBackOnUnknownValue(t *testing.T) {
	req := &types.GenerateRequest{Prompt: "x", RefinerSwapMethod: "not-a-real-method"}
	vec, _ := Build(req)
	if vec[refinerSwapIndex] != defaultRefinerSwapMethod {
		t.Fatalf("refiner swap method = %v, want default %q", vec[refinerSwapIndex], defaultRefinerSwapMethod)
	}
}

func TestBuildWiresSamplingFields(t *testing.T) {
	req := &types.GenerateRequest{
		Prompt:      "x",
		Sampler:     "euler",
		Scheduler:   "normal",
		VAE:         "ponyDiffusionV6.vae.safetensors",
		ClipSkip:    4,
		AdaptiveCFG: 10.5,
	}
	vec, _ := Build(req)
	if err := Validate(vec); err != nil {
		t.Fatalf("Validate(Build(req)) = %v, want nil", err)
	}

	if got := vec[samplingBlockStart+0]; got != req.AdaptiveCFG {
		t.Errorf("adaptive cfg = %v, want %v", got, req.AdaptiveCFG)
	}
	if got := vec[samplingBlockStart+1]; got != float64(req.ClipSkip) {
		t.Errorf("clip skip = %v, want %v", got, req.ClipSkip)
	}
	if got := vec[samplingBlockStart+2]; got != req.Sampler {
		t.Errorf("sampler = %v, want %v", got, req.Sampler)
	}
	if got := vec[samplingBlockStart+3]; got != req.Scheduler {
		t.Errorf("scheduler = %v, want %v", got, req.Scheduler)
	}
	if got := vec[samplingBlockStart+4]; got != req.VAE {
		t.Errorf("vae = %v, want %v", got, req.VAE)
	}
}

func TestBuildSamplingFieldsDefaultWhenAbsent(t *testing.T) {
	req := &types.GenerateRequest{Prompt: "x"}
	vec, _ := Build(req)

	if got := vec[samplingBlockStart+0]; got != 7.0 {
		t.Errorf("default adaptive cfg = %v, want 7.0", got)
	}
	if got := vec[samplingBlockStart+1]; got != float64(2) {
		t.Errorf("default clip skip = %v, want 2", got)
	}
	if got := vec[samplingBlockStart+2]; got != "dpmpp_2m_sde_gpu" {
		t.Errorf("default sampler = %v, want dpmpp_2m_sde_gpu", got)
	}
	if got := vec[samplingBlockStart+3]; got != "karras" {
		t.Errorf("default scheduler = %v, want karras", got)
	}
	if got := vec[samplingBlockStart+4]; got != "Default (model)" {
		t.Errorf("default vae = %v, want Default (model)", got)
	}
}

func TestBuildMetadataSchemeFallsBackOnUnknownValue(t *testing.T) {
	req := &types.GenerateRequest{Prompt: "x", MetadataScheme: "not-a-real-scheme"}
	vec, _ := Build(req)
	if vec[metadataSchemeIndex] != defaultMetadataScheme {
		t.Fatalf("metadata scheme = %v, want default %q", vec[metadataSchemeIndex], defaultMetadataScheme)
	}
}
