package gemini

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestFallbackTitle(t *testing.T) {
	tests := []struct {
		name    string
		message string
		want    string
	}{
		{"short stays whole", "Oi, tudo bem?", "Oi, tudo bem?"},
		{"whitespace trimmed", "  plano de mídia  ", "plano de mídia"},
		{
			"long ascii truncated",
			strings.Repeat("a", 60),
			strings.Repeat("a", 40) + "…",
		},
		{
			"accents count as one character",
			strings.Repeat("não ", 20),
			strings.TrimSpace(strings.Repeat("não ", 10)) + "…",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := fallbackTitle(tt.message)
			if got != tt.want {
				t.Errorf("fallbackTitle(%q) = %q, want %q", tt.message, got, tt.want)
			}
			if !utf8.ValidString(got) {
				t.Errorf("fallbackTitle(%q) produced invalid UTF-8: %q", tt.message, got)
			}
		})
	}
}
