package argsvector

import (
	"testing"

	"fooocus-orchestrator/pkg/types"
)

func validVector() []interface{} {
	vec, _ := Build(&types.GenerateRequest{Prompt: "a cat", NegativePrompt: "blurry"})
	return vec
}

func TestValidateRejectsWrongLength(t *testing.T) {
	vec := make([]interface{}, ExpectedLength-1)
	err := Validate(vec)
	if err == nil {
		t.Fatal("expected error for short vector, got nil")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("err type = %T, want *ValidationError", err)
	}
	if ve.Index != -1 {
		t.Errorf("Index = %d, want -1 for a length mismatch", ve.Index)
	}
}

func TestValidateAcceptsBuiltVector(t *testing.T) {
	if err := Validate(validVector()); err != nil {
		t.Fatalf("Validate(validVector()) = %v, want nil", err)
	}
}

func TestValidateRejectsWrongTypeAtTypedIndex(t *testing.T) {
	tests := []struct {
		name  string
		index int
		value interface{}
	}{
		{"prompt not a string", 1, 42},
		{"seed_random not a bool", 9, "yes"},
		{"image count not a number", 6, "four"},
		{"styles not a sequence", 3, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vec := validVector()
			vec[tt.index] = tt.value
			err := Validate(vec)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			ve, ok := err.(*ValidationError)
			if !ok {
				t.Fatalf("err type = %T, want *ValidationError", err)
			}
			if ve.Index != tt.index {
				t.Errorf("Index = %d, want %d", ve.Index, tt.index)
			}
		})
	}
}

func TestValidateStopsAtFirstFailure(t *testing.T) {
	vec := validVector()
	vec[1] = 1
	vec[2] = 2
	err := Validate(vec).(*ValidationError)
	if err.Index != 1 {
		t.Errorf("Index = %d, want 1 (first failing index)", err.Index)
	}
}
