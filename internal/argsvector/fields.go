package argsvector

// Named offsets for the structural blocks that follow the scalar and
// LoRA regions. These exist so Build and tests can refer to a slot by
// name instead of a bare index; Validate only cares about typedIndex.
const (
	overwriteBlockStart  = 30 // step, switch, width, height
	disableSeedIndex     = 34
	admScalerStart       = 35 // positive, negative, end
	samplingBlockStart   = 38 // adaptive cfg, clip skip, sampler, scheduler, vae
	refinerSwapIndex     = 43
	controlNetSoftness   = 44
	freeUBlockStart      = 45 // enabled, b1, b2, s1, s2
	saveMetadataIndex    = 50
	metadataSchemeIndex  = 51
	controlNetImgStart   = 52 // image, weight, stop, type
	enhancementCtrlStart = 56
	enhancementTabsStart = 64
	reservedBlockStart   = 112
)
