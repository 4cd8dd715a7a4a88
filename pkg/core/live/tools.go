package live

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Builtin tool names.
const (
	ToolSwitchActiveAgent = "switch_active_agent"
	ToolDateTimeBrazil    = "get_current_datetime_brazil"
	ToolToggleCamera      = "toggle_camera"
	ToolToggleScreenShare = "toggle_screen_share"
)

// ToolDeclaration describes one callable function to the model. Parameters is
// a JSON-schema object; nil means the tool takes no arguments.
type ToolDeclaration struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// ToolHandler executes one tool call. The returned map becomes the function
// response payload; a nil map means a plain acknowledgement.
type ToolHandler func(ctx context.Context, args map[string]any) (map[string]any, error)

// ToolRegistry maps declared tools to handlers. Dispatch always produces
// exactly one response per call, whatever the handler does.
type ToolRegistry struct {
	mu       sync.RWMutex
	decls    []ToolDeclaration
	handlers map[string]ToolHandler
	logger   *slog.Logger
}

// NewToolRegistry returns an empty registry. logger may be nil.
func NewToolRegistry(logger *slog.Logger) *ToolRegistry {
	if logger == nil {
		logger = slog.Default()
	}
	return &ToolRegistry{handlers: make(map[string]ToolHandler), logger: logger}
}

// Register adds a tool. Re-registering a name replaces its handler but keeps
// a single declaration.
func (r *ToolRegistry) Register(decl ToolDeclaration, handler ToolHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[decl.Name]; !exists {
		r.decls = append(r.decls, decl)
	}
	r.handlers[decl.Name] = handler
}

// Declarations returns the declared tools in registration order.
func (r *ToolRegistry) Declarations() []ToolDeclaration {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]ToolDeclaration, len(r.decls))
	copy(out, r.decls)
	return out
}

// Dispatch runs the handler for one call and always returns a response for
// its id: an error payload for unknown tools, handler errors, and handler
// panics, an ok payload otherwise. A stream must never be left waiting on a
// call id.
func (r *ToolRegistry) Dispatch(ctx context.Context, call ToolCall) (resp ToolResponse) {
	resp = ToolResponse{ID: call.ID, Name: call.Name}

	r.mu.RLock()
	handler, ok := r.handlers[call.Name]
	r.mu.RUnlock()
	if !ok {
		resp.Result = map[string]any{"error": fmt.Sprintf("unknown tool %q", call.Name)}
		return resp
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("tool handler panicked", "tool", call.Name, "panic", rec)
			resp.Result = map[string]any{"error": fmt.Sprintf("tool %q failed", call.Name)}
		}
	}()

	result, err := handler(ctx, call.Args)
	if err != nil {
		r.logger.Warn("tool handler failed", "tool", call.Name, "error", err)
		resp.Result = map[string]any{"error": err.Error()}
		return resp
	}
	if result == nil {
		result = map[string]any{"result": "ok"}
	}
	resp.Result = result
	return resp
}

// saoPaulo is loaded once; the datetime tool reports assistant-local time.
var saoPaulo = func() *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		return time.FixedZone("BRT", -3*60*60)
	}
	return loc
}()

// BuiltinDeclarations returns the tool set every live session exposes.
// Camera and screen toggles are acknowledged server-side; the client performs
// the actual device work and reports frames.
func BuiltinDeclarations() []ToolDeclaration {
	return []ToolDeclaration{
		{
			Name:        ToolSwitchActiveAgent,
			Description: "Switch the conversation to another assistant persona.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"agent_id": map[string]any{
						"type":        "string",
						"description": "Identifier of the persona to activate.",
					},
				},
				"required": []string{"agent_id"},
			},
		},
		{
			Name:        ToolDateTimeBrazil,
			Description: "Get the current date and time in Brazil (America/Sao_Paulo).",
		},
		{
			Name:        ToolToggleCamera,
			Description: "Turn the user's camera on or off.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"enabled": map[string]any{"type": "boolean"},
				},
				"required": []string{"enabled"},
			},
		},
		{
			Name:        ToolToggleScreenShare,
			Description: "Start or stop sharing the user's screen.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"enabled": map[string]any{"type": "boolean"},
				},
				"required": []string{"enabled"},
			},
		},
	}
}

// DateTimeBrazilHandler answers the builtin datetime tool.
func DateTimeBrazilHandler(ctx context.Context, args map[string]any) (map[string]any, error) {
	now := time.Now().In(saoPaulo)
	return map[string]any{
		"datetime": now.Format("2006-01-02 15:04:05"),
		"weekday":  now.Format("Monday"),
		"timezone": "America/Sao_Paulo",
	}, nil
}
