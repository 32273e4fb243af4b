// Package argsvector implements the cross-language positional-argument
// contract between the orchestration backend and a Fooocus-style
// worker process. A single source-of-truth
// field table drives both Build and Validate so the two can never
// drift from each other within one contract version.
package argsvector

// ContractVersion is the pinned version of the positional contract.
// Any change to an index or its semantics requires bumping this and
// updating golden fixtures on both sides of the language boundary.
const ContractVersion = 1

// ExpectedLength is the fixed length of a valid ArgsVector under the
// current ContractVersion.
const ExpectedLength = 152

// Kind enumerates the scalar/sequence types the validator checks for
// at specific indexes.
type Kind int

const (
	KindAny Kind = iota
	KindBool
	KindString
	KindNumber
	KindStringSeq
)

// typedIndex names which indexes carry a type constraint the
// validator must enforce. Everything else is KindAny (defaults fill
// it, but its shape is not part of the stable contract).
var typedIndex = map[int]Kind{
	0:  KindBool,   // generate image grid
	1:  KindString, // prompt
	2:  KindString, // negative prompt
	3:  KindStringSeq,
	4:  KindString, // performance selection
	5:  KindString, // aspect ratio (W×H)
	6:  KindNumber, // image count
	7:  KindString, // output format
	8:  KindNumber, // seed
	9:  KindBool,   // seed random
	10: KindNumber, // sharpness
	11: KindNumber, // guidance scale
	12: KindString, // base model
	13: KindString, // refiner model
	14: KindNumber, // refiner switch

	samplingBlockStart + 0: KindNumber, // adaptive cfg
	samplingBlockStart + 1: KindNumber, // clip skip
	samplingBlockStart + 2: KindString, // sampler
	samplingBlockStart + 3: KindString, // scheduler
	samplingBlockStart + 4: KindString, // vae
}

// loraSlotCount is the fixed number of LoRA slots packed into the
// vector starting at index 15, three entries (enabled, name, weight)
// per slot.
const loraSlotCount = 5

const loraBlockStart = 15
const loraBlockLen = loraSlotCount * 3 // 15

// refinerSwapMethods and metadataSchemes are the closed enumerations
// that fall back to their default when a supplied value is not a
// member.
var refinerSwapMethods = []string{"joint", "separate", "vae"}
var metadataSchemes = []string{"fooocus", "a1111"}

const defaultRefinerSwapMethod = "joint"
const defaultMetadataScheme = "fooocus"

func isValidEnum(value string, set []string) bool {
	for _, v := range set {
		if v == value {
			return true
		}
	}
	return false
}
