package secret

import (
	"errors"
	"reflect"
	"testing"
)

func staticResolver(values map[string]string) Resolver {
	return func(name string) (string, error) {
		v, ok := values[name]
		if !ok {
			return "", errors.New("missing secret: " + name)
		}
		return v, nil
	}
}

func TestResolvePlaceholdersSingle(t *testing.T) {
	out, resolved, err := ResolvePlaceholders("token={{SECRET:API_KEY}}", staticResolver(map[string]string{"API_KEY": "abc123"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "token=abc123" {
		t.Errorf("got %q", out)
	}
	if !reflect.DeepEqual(resolved, []string{"abc123"}) {
		t.Errorf("resolved = %v", resolved)
	}
}

func TestResolvePlaceholdersMultipleAndAdjacent(t *testing.T) {
	resolver := staticResolver(map[string]string{"A": "1", "B": "2"})
	out, resolved, err := ResolvePlaceholders("{{SECRET:A}}{{SECRET:B}}-end", resolver)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "12-end" {
		t.Errorf("got %q", out)
	}
	if !reflect.DeepEqual(resolved, []string{"1", "2"}) {
		t.Errorf("resolved = %v", resolved)
	}
}

func TestResolvePlaceholdersWholeString(t *testing.T) {
	out, _, err := ResolvePlaceholders("{{SECRET:ONLY}}", staticResolver(map[string]string{"ONLY": "value"}))
	if err != nil || out != "value" {
		t.Fatalf("got %q, err %v", out, err)
	}
}

func TestResolvePlaceholdersNoMarkersIsIdempotent(t *testing.T) {
	input := "nothing to see here"
	out, resolved, err := ResolvePlaceholders(input, staticResolver(nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != input {
		t.Errorf("got %q, want %q", out, input)
	}
	if len(resolved) != 0 {
		t.Errorf("expected no resolved secrets, got %v", resolved)
	}
}

func TestResolvePlaceholdersUnterminatedLeftLiteralAndStopsScanning(t *testing.T) {
	out, resolved, err := ResolvePlaceholders("prefix {{SECRET:NEVER_CLOSED and {{SECRET:OTHER}}", staticResolver(map[string]string{"OTHER": "x"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "prefix {{SECRET:NEVER_CLOSED and {{SECRET:OTHER}}"
	if out != want {
		t.Errorf("got %q, want %q", out, want)
	}
	if len(resolved) != 0 {
		t.Errorf("expected no placeholders resolved past an unterminated opener, got %v", resolved)
	}
}

func TestResolvePlaceholdersBracesInValuePreserved(t *testing.T) {
	out, _, err := ResolvePlaceholders("{{SECRET:JSON}}", staticResolver(map[string]string{"JSON": `{"a":1}`}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != `{"a":1}` {
		t.Errorf("got %q", out)
	}
}

func TestResolvePlaceholdersErrorPropagates(t *testing.T) {
	_, _, err := ResolvePlaceholders("{{SECRET:MISSING}}", staticResolver(nil))
	if err == nil {
		t.Fatal("expected error for missing secret")
	}
}

func TestResolvePlaceholdersEmptyName(t *testing.T) {
	out, resolved, err := ResolvePlaceholders("{{SECRET:}}", staticResolver(map[string]string{"": "empty-name-value"}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != "empty-name-value" {
		t.Errorf("got %q", out)
	}
	if len(resolved) != 1 {
		t.Errorf("resolved = %v", resolved)
	}
}
