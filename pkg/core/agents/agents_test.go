package agents

import (
	"strings"
	"testing"

	"github.com/hypley-ia/hypley-live/pkg/core"
)

func TestResolveBuiltins(t *testing.T) {
	for _, id := range []string{"default", "luzia", "traffic_manager", "google_ads"} {
		a, err := Resolve(id, nil)
		if err != nil {
			t.Errorf("resolve %q: %v", id, err)
			continue
		}
		if a.Instruction == "" {
			t.Errorf("builtin %q has empty instruction", id)
		}
	}
}

func TestResolveEmptyFallsBackToDefault(t *testing.T) {
	a, err := Resolve("", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if a.ID != DefaultAgentID {
		t.Errorf("resolved %q, want default", a.ID)
	}
}

func TestResolveCustomShadowsBuiltin(t *testing.T) {
	custom := []Agent{{ID: "luzia", Instruction: "versão personalizada"}}
	a, err := Resolve("luzia", custom)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if a.Instruction != "versão personalizada" {
		t.Errorf("instruction = %q, want the custom persona", a.Instruction)
	}
}

func TestResolveUnknown(t *testing.T) {
	_, err := Resolve("nope", nil)
	if !core.IsType(err, core.ErrNotFound) {
		t.Errorf("got %v, want not found", err)
	}
}

func TestInstructionSummarizedSuffix(t *testing.T) {
	a, _ := Resolve("default", nil)
	plain := Instruction(a, false)
	short := Instruction(a, true)
	if plain != a.Instruction {
		t.Error("plain mode altered the instruction")
	}
	if !strings.HasPrefix(short, a.Instruction) || len(short) <= len(plain) {
		t.Error("summarized mode did not append the suffix")
	}
}

func TestMatchTrigger(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		current string
		want    string
		ok      bool
	}{
		{"keyword hit", "preciso de ajuda com Google Ads hoje", "default", "google_ads", true},
		{"case insensitive", "fala com a LUZIA", "default", "luzia", true},
		{"current excluded", "google ads de novo", "google_ads", "", false},
		{"no keyword", "qual a previsão do tempo", "default", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := MatchTrigger(tt.text, tt.current, nil)
			if ok != tt.ok || got != tt.want {
				t.Errorf("MatchTrigger(%q) = %q, %v; want %q, %v", tt.text, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestMatchTriggerCustomFirst(t *testing.T) {
	custom := []Agent{{ID: "vendas", Triggers: []string{"campanha"}}}
	got, ok := MatchTrigger("como vai a campanha", "default", custom)
	if !ok || got != "vendas" {
		t.Errorf("got %q, %v; want custom persona to win", got, ok)
	}
}
