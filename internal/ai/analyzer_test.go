package ai

import (
	"context"
	"errors"
	"testing"
)

func TestAnalyze_MissingKey(t *testing.T) {
	a := NewOpenAIAnalyzer(Config{Model: "gpt-4o-mini"})
	_, err := a.Analyze(context.Background(), "2+2=", nil)
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestFormatAnswer(t *testing.T) {
	if got := FormatAnswer("4", nil); got != "4" {
		t.Fatalf("unexpected answer: %q", got)
	}
	if got := FormatAnswer("", ErrNotConfigured); got != "Error: API key not configured" {
		t.Fatalf("unexpected not-configured text: %q", got)
	}
	if got := FormatAnswer("", errors.New("boom")); got != "Analysis failed: boom" {
		t.Fatalf("unexpected failure text: %q", got)
	}
}
