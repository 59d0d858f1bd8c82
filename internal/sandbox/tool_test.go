package sandbox

import "testing"

func TestValidateSchemaJSONFallsBackOnEmptyOrInvalid(t *testing.T) {
	if got := ValidateSchemaJSON(""); got != fallbackSchema {
		t.Fatalf("expected fallback for empty schema, got %s", got)
	}
	if got := ValidateSchemaJSON("not json"); got != fallbackSchema {
		t.Fatalf("expected fallback for invalid schema, got %s", got)
	}
}

func TestValidateSchemaJSONPassesThroughValidObject(t *testing.T) {
	valid := `{"type":"object","properties":{"x":{"type":"string"}}}`
	if got := ValidateSchemaJSON(valid); got != valid {
		t.Fatalf("expected passthrough, got %s", got)
	}
}

func TestSchemaTitleExtractsNonEmptyTitle(t *testing.T) {
	title, ok := SchemaTitle(`{"title":"My Tool"}`)
	if !ok || title != "My Tool" {
		t.Fatalf("unexpected result: %s, %v", title, ok)
	}
}

func TestSchemaTitleMissingReturnsFalse(t *testing.T) {
	if _, ok := SchemaTitle(`{"type":"object"}`); ok {
		t.Fatal("expected no title")
	}
	if _, ok := SchemaTitle(`not json`); ok {
		t.Fatal("expected no title for invalid json")
	}
}
