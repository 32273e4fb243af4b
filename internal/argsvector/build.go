package argsvector

import (
	"strings"

	"fooocus-orchestrator/pkg/types"
)

// aspectRatioReplacer normalizes the common separators a UI might send
// ("x", "X", "*") into the multiplication sign the worker splits on.
var aspectRatioReplacer = strings.NewReplacer("x", "×", "X", "×", "*", "×")

func normalizeAspectRatio(raw string) string {
	if raw == "" {
		return "1152×896"
	}
	return aspectRatioReplacer.Replace(raw)
}

// Build translates a structured GenerateRequest into an ArgsVector and
// its contract version. Construction never fails: every field has a
// typed default applied when the input is absent or of the wrong
// shape.
func Build(req *types.GenerateRequest) ([]interface{}, int) {
	vec := make([]interface{}, 0, ExpectedLength)

	vec = append(vec, false) // 0: generate image grid (no UI control surfaced here, always off)
	vec = append(vec, req.Prompt)         // 1
	vec = append(vec, req.NegativePrompt) // 2
	vec = append(vec, stringSeqOrEmpty(req.StyleSelections)) // 3

	performance := req.PerformanceSelection
	if performance == "" {
		performance = "Speed"
	}
	vec = append(vec, performance) // 4

	vec = append(vec, normalizeAspectRatio(req.AspectRatiosSelection)) // 5

	imageCount := req.ImageNumber
	if imageCount <= 0 {
		imageCount = 1
	}
	vec = append(vec, float64(imageCount)) // 6

	outputFormat := req.OutputFormat
	if outputFormat == "" {
		outputFormat = "png"
	}
	vec = append(vec, outputFormat) // 7

	vec = append(vec, float64(req.ImageSeed)) // 8
	vec = append(vec, req.SeedRandom)         // 9

	sharpness := req.Sharpness
	if sharpness == 0 {
		sharpness = 2.0
	}
	vec = append(vec, sharpness) // 10

	guidance := req.GuidanceScale
	if guidance == 0 {
		guidance = 4.0
	}
	vec = append(vec, guidance) // 11

	baseModel := req.BaseModel
	if baseModel == "" {
		baseModel = "juggernautXL_v8Rundiffusion.safetensors"
	}
	vec = append(vec, baseModel) // 12

	refinerModel := req.RefinerModel
	if refinerModel == "" {
		refinerModel = "None"
	}
	vec = append(vec, refinerModel) // 13

	vec = append(vec, req.RefinerSwitch) // 14

	vec = appendLoraBlock(vec, req.Loras) // 15..29

	overwriteStep := req.OverwriteStep
	if overwriteStep == 0 {
		overwriteStep = -1
	}
	overwriteSwitch := req.OverwriteSwitch
	if overwriteSwitch == 0 {
		overwriteSwitch = -1
	}
	vec = append(vec, float64(overwriteStep))      // 30
	vec = append(vec, float64(overwriteSwitch))    // 31
	vec = append(vec, float64(req.OverwriteWidth))  // 32
	vec = append(vec, float64(req.OverwriteHeight)) // 33

	vec = append(vec, req.DisableSeedIncrement) // 34

	vec = append(vec, req.ADMScalerPositive) // 35
	vec = append(vec, req.ADMScalerNegative) // 36
	vec = append(vec, req.ADMScalerEnd)      // 37

	vec = appendSamplingBlock(vec, req) // 38..42

	refinerSwap := req.RefinerSwapMethod
	if !isValidEnum(refinerSwap, refinerSwapMethods) {
		refinerSwap = defaultRefinerSwapMethod
	}
	vec = append(vec, refinerSwap) // 43

	vec = append(vec, req.ControlNetSoftness) // 44

	vec = append(vec, req.FreeUEnabled) // 45
	vec = append(vec, req.FreeUB1)      // 46
	vec = append(vec, req.FreeUB2)      // 47
	vec = append(vec, req.FreeUS1)      // 48
	vec = append(vec, req.FreeUS2)      // 49

	vec = append(vec, req.SaveMetadata) // 50

	metadataScheme := req.MetadataScheme
	if !isValidEnum(metadataScheme, metadataSchemes) {
		metadataScheme = defaultMetadataScheme
	}
	vec = append(vec, metadataScheme) // 51

	vec = appendControlNetImageBlock(vec)    // 52..55
	vec = appendEnhancementControlBlock(vec) // 56..63
	vec = appendEnhancementTabsBlock(vec)    // 64..111
	vec = appendReservedBlock(vec)           // 112..151

	return vec, ContractVersion
}

func stringSeqOrEmpty(styles []string) []string {
	if styles == nil {
		return []string{}
	}
	return styles
}

// appendLoraBlock pads/truncates the LoRA list to the fixed slot count,
// emitting (enabled, name, weight) per slot with defaults
// (false, "None", 1.0).
func appendLoraBlock(vec []interface{}, loras []types.LoraSelection) []interface{} {
	for i := 0; i < loraSlotCount; i++ {
		if i < len(loras) {
			l := loras[i]
			name := l.Name
			if name == "" {
				name = "None"
			}
			weight := l.Weight
			if weight == 0 {
				weight = 1.0
			}
			vec = append(vec, l.Enabled, name, weight)
		} else {
			vec = append(vec, false, "None", 1.0)
		}
	}
	return vec
}

// appendSamplingBlock appends the sampling knobs that sit between the
// ADM scaler triplet and the refiner swap method: adaptive CFG, clip
// skip, sampler, scheduler, and VAE name.
func appendSamplingBlock(vec []interface{}, req *types.GenerateRequest) []interface{} {
	adaptiveCFG := req.AdaptiveCFG
	if adaptiveCFG == 0 {
		adaptiveCFG = 7.0
	}

	clipSkip := req.ClipSkip
	if clipSkip == 0 {
		clipSkip = 2
	}

	sampler := req.Sampler
	if sampler == "" {
		sampler = "dpmpp_2m_sde_gpu"
	}

	scheduler := req.Scheduler
	if scheduler == "" {
		scheduler = "karras"
	}

	vae := req.VAE
	if vae == "" {
		vae = "Default (model)"
	}

	return append(vec, adaptiveCFG, float64(clipSkip), sampler, scheduler, vae)
}

// appendControlNetImageBlock appends the 4-entry ControlNet image
// block (image=null, weight=1.0, stop=1.0, type="ImagePrompt").
func appendControlNetImageBlock(vec []interface{}) []interface{} {
	return append(vec, nil, 1.0, 1.0, "ImagePrompt")
}

// enhancementControlSlotCount is the fixed shape of the enhancement
// control block.
const enhancementControlSlotCount = 8

func appendEnhancementControlBlock(vec []interface{}) []interface{} {
	for i := 0; i < enhancementControlSlotCount; i++ {
		vec = append(vec, nil)
	}
	return vec
}

// enhancementTabCount / enhancementTabSlotCount describe the "3-tab
// enhancement block (16 entries each)".
const enhancementTabCount = 3
const enhancementTabSlotCount = 16

func appendEnhancementTabsBlock(vec []interface{}) []interface{} {
	for t := 0; t < enhancementTabCount; t++ {
		for i := 0; i < enhancementTabSlotCount; i++ {
			vec = append(vec, nil)
		}
	}
	return vec
}

// appendReservedBlock pads the vector out to ExpectedLength with
// compile-time defaults reserved for future contract versions.
func appendReservedBlock(vec []interface{}) []interface{} {
	for len(vec) < ExpectedLength {
		vec = append(vec, float64(0))
	}
	return vec
}
