package argsvector

import "testing"

func TestIsValidEnum(t *testing.T) {
	if !isValidEnum("joint", refinerSwapMethods) {
		t.Error("joint should be a valid refiner swap method")
	}
	if isValidEnum("bogus", refinerSwapMethods) {
		t.Error("bogus should not be a valid refiner swap method")
	}
	if !isValidEnum("a1111", metadataSchemes) {
		t.Error("a1111 should be a valid metadata scheme")
	}
}

func TestLoraBlockFitsBeforeOverwriteBlock(t *testing.T) {
	if loraBlockStart+loraBlockLen != overwriteBlockStart {
		t.Errorf("lora block end = %d, want to abut overwrite block at %d", loraBlockStart+loraBlockLen, overwriteBlockStart)
	}
}

func TestReservedBlockFillsToExpectedLength(t *testing.T) {
	total := reservedBlockStart + (ExpectedLength - reservedBlockStart)
	if total != ExpectedLength {
		t.Errorf("total = %d, want %d", total, ExpectedLength)
	}
	if reservedBlockStart >= ExpectedLength {
		t.Error("reserved block start must leave room for at least one reserved slot")
	}
}
