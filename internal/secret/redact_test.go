package secret

import "testing"

func TestSanitizeRedactsSingleOccurrence(t *testing.T) {
	got := Sanitize("token is s3cret here", []string{"s3cret"})
	if got != "token is [REDACTED] here" {
		t.Errorf("got %q", got)
	}
}

func TestSanitizeRedactsMultipleOccurrences(t *testing.T) {
	got := Sanitize("s3cret and s3cret again", []string{"s3cret"})
	want := "[REDACTED] and [REDACTED] again"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSanitizeRedactsMultipleDifferentSecrets(t *testing.T) {
	got := Sanitize("key=abc token=xyz", []string{"abc", "xyz"})
	want := "key=[REDACTED] token=[REDACTED]"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestSanitizeHandlesEmptyList(t *testing.T) {
	got := Sanitize("unchanged output", nil)
	if got != "unchanged output" {
		t.Errorf("got %q", got)
	}
}

func TestSanitizeSkipsEmptyStrings(t *testing.T) {
	got := Sanitize("leave me alone", []string{"", "nonexistent"})
	if got != "leave me alone" {
		t.Errorf("got %q, expected empty secret to be skipped rather than matching everywhere", got)
	}
}
