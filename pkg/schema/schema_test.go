package schema

import "testing"

func TestCompileEmptyDocIsNil(t *testing.T) {
	resolved, err := Compile(nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved != nil {
		t.Fatal("expected nil validator for empty schema document")
	}
}

func TestValidateNilValidatorAlwaysPasses(t *testing.T) {
	if err := Validate(nil, map[string]any{"anything": true}); err != nil {
		t.Fatalf("nil validator should never reject: %v", err)
	}
}

func TestCompileAndValidateRequiredField(t *testing.T) {
	resolved, err := Compile(map[string]any{
		"type":     "object",
		"required": []any{"name"},
		"properties": map[string]any{
			"name": map[string]any{"type": "string"},
		},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resolved == nil {
		t.Fatal("expected a compiled validator")
	}

	if err := Validate(resolved, map[string]any{"name": "widget"}); err != nil {
		t.Fatalf("valid arguments should pass: %v", err)
	}
	if err := Validate(resolved, map[string]any{}); err == nil {
		t.Fatal("missing required field should fail validation")
	}
}
