// Package agents holds the assistant personas: the builtin set every user
// gets plus per-user custom personas, and the rules for switching between
// them.
package agents

import (
	"strings"

	"github.com/hypley-ia/hypley-live/pkg/core"
)

// Agent is one assistant persona.
type Agent struct {
	ID          string
	Name        string
	Description string
	Instruction string
	// Triggers are keywords in user text that suggest switching to this
	// persona mid-conversation.
	Triggers []string
	Builtin  bool
}

// DefaultAgentID is the persona used when the client picks none.
const DefaultAgentID = "default"

// summarizedSuffix is appended to the instruction when the user enables
// short-answer mode.
const summarizedSuffix = "\n\nResponda sempre de forma curta e direta, em no máximo duas frases, a menos que o usuário peça detalhes."

var builtins = []Agent{
	{
		ID:          DefaultAgentID,
		Name:        "Assistente",
		Description: "Assistente geral por voz.",
		Instruction: "Você é um assistente de voz prestativo e natural. Fale em português brasileiro, num tom amigável e objetivo. Você pode ver imagens da câmera ou da tela quando o usuário compartilhar. Quando o assunto pedir um especialista, use a ferramenta de troca de agente.",
		Builtin:     true,
	},
	{
		ID:          "luzia",
		Name:        "Luzia",
		Description: "Companheira de conversa descontraída.",
		Instruction: "Você é a Luzia, uma companheira de conversa carismática e bem-humorada. Fale em português brasileiro, de forma leve e calorosa, como uma amiga próxima. Evite respostas longas; conversa boa é conversa que flui.",
		Triggers:    []string{"luzia"},
		Builtin:     true,
	},
	{
		ID:          "traffic_manager",
		Name:        "Gestor de Tráfego",
		Description: "Especialista em tráfego pago e métricas de campanha.",
		Instruction: "Você é um gestor de tráfego sênior. Domina campanhas de mídia paga, funis, CPA, ROAS, criativos e segmentação de público. Responda em português brasileiro com recomendações práticas e números sempre que possível.",
		Triggers:    []string{"tráfego pago", "trafego pago", "campanha", "roas"},
		Builtin:     true,
	},
	{
		ID:          "google_ads",
		Name:        "Especialista Google Ads",
		Description: "Especialista na plataforma Google Ads.",
		Instruction: "Você é um especialista certificado em Google Ads. Conhece a fundo pesquisa, display, Performance Max, lances inteligentes, palavras-chave e índice de qualidade. Responda em português brasileiro e seja específico sobre onde clicar e o que configurar.",
		Triggers:    []string{"google ads", "adwords"},
		Builtin:     true,
	},
}

// Builtins returns the builtin persona set.
func Builtins() []Agent {
	out := make([]Agent, len(builtins))
	copy(out, builtins)
	return out
}

// Resolve finds a persona by id, checking the user's custom personas first so
// a custom persona may shadow a builtin. Returns a not-found error otherwise.
func Resolve(id string, custom []Agent) (Agent, error) {
	if id == "" {
		id = DefaultAgentID
	}
	for _, a := range custom {
		if a.ID == id {
			return a, nil
		}
	}
	for _, a := range builtins {
		if a.ID == id {
			return a, nil
		}
	}
	return Agent{}, core.NewNotFoundError("unknown agent " + id)
}

// Instruction returns the persona's system instruction, with the
// short-answer suffix when summarized mode is on.
func Instruction(a Agent, summarized bool) string {
	if summarized {
		return a.Instruction + summarizedSuffix
	}
	return a.Instruction
}

// MatchTrigger scans user text for persona keywords and returns the first
// matching agent id. current is excluded so a persona never triggers itself.
func MatchTrigger(text, current string, custom []Agent) (string, bool) {
	lower := strings.ToLower(text)
	scan := func(list []Agent) (string, bool) {
		for _, a := range list {
			if a.ID == current {
				continue
			}
			for _, kw := range a.Triggers {
				if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
					return a.ID, true
				}
			}
		}
		return "", false
	}
	if id, ok := scan(custom); ok {
		return id, true
	}
	return scan(builtins)
}
