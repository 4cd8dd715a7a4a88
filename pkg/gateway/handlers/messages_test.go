package handlers

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hypley-ia/hypley-live/pkg/core"
	"github.com/hypley-ia/hypley-live/pkg/core/agents"
	"github.com/hypley-ia/hypley-live/pkg/core/gemini"
	"github.com/hypley-ia/hypley-live/pkg/core/live"
	"github.com/hypley-ia/hypley-live/pkg/gateway/config"
	"github.com/hypley-ia/hypley-live/pkg/store"
)

type fakeChatStore struct {
	user     store.User
	conv     store.Conversation
	messages []store.Message
	tokens   int64
	cost     float64
}

func (f *fakeChatStore) GetUser(_ context.Context, id string) (store.User, error) {
	if id != f.user.ID {
		return store.User{}, core.NewNotFoundError("user not found")
	}
	return f.user, nil
}

func (f *fakeChatStore) GetConversation(_ context.Context, userID, id string) (store.Conversation, error) {
	if id != f.conv.ID || userID != f.conv.UserID {
		return store.Conversation{}, core.NewNotFoundError("conversation not found")
	}
	return f.conv, nil
}

func (f *fakeChatStore) ListMessages(context.Context, string, string) ([]store.Message, error) {
	return f.messages, nil
}

func (f *fakeChatStore) AppendMessage(_ context.Context, m store.Message) (store.Message, error) {
	m.ID = fmt.Sprintf("m%d", len(f.messages)+1)
	f.messages = append(f.messages, m)
	return m, nil
}

func (f *fakeChatStore) SetConversationAgent(_ context.Context, _, _, agentID string) error {
	f.conv.AgentID = agentID
	return nil
}

func (f *fakeChatStore) SetConversationTitle(_ context.Context, _, _, title string) error {
	f.conv.Title = title
	return nil
}

func (f *fakeChatStore) SetMessageSummary(_ context.Context, userID, conversationID, messageID, summary string) error {
	if conversationID != f.conv.ID || userID != f.conv.UserID {
		return core.NewNotFoundError("message not found")
	}
	for i, m := range f.messages {
		if m.ID == messageID {
			f.messages[i].Summary = summary
			return nil
		}
	}
	return core.NewNotFoundError("message not found")
}

func (f *fakeChatStore) CustomAgents(context.Context, string) ([]agents.Agent, error) {
	return nil, nil
}

func (f *fakeChatStore) Increment(_ context.Context, _ string, tokens int64, cost float64) error {
	f.tokens += tokens
	f.cost += cost
	return nil
}

type fakeTextModel struct {
	lastReq gemini.TextRequest
	reply   string
	tokens  int64
	title   string
	err     error
}

func (f *fakeTextModel) GenerateText(_ context.Context, req gemini.TextRequest) (gemini.TextResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return gemini.TextResponse{}, f.err
	}
	return gemini.TextResponse{
		Text:  f.reply,
		Usage: live.Usage{PromptTokens: f.tokens / 2, ResponseTokens: f.tokens / 2, TotalTokens: f.tokens},
	}, nil
}

func (f *fakeTextModel) SummarizeTitle(context.Context, string) string { return f.title }

func chatFixture() (*fakeChatStore, *fakeTextModel, *MessagesHandler) {
	st := &fakeChatStore{
		user: testUser,
		conv: store.Conversation{ID: "c1", UserID: testUser.ID, AgentID: agents.DefaultAgentID},
	}
	model := &fakeTextModel{reply: "Oi! Tudo bem?", tokens: 200, title: "Primeiro papo"}
	h := &MessagesHandler{
		Store:  st,
		Model:  model,
		Config: config.Config{MaxBodyBytes: 1 << 20},
		Logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
	}
	return st, model, h
}

func sendMessage(t *testing.T, h *MessagesHandler, body map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	r := authedRequest(t, http.MethodPost, "/v1/conversations/c1/messages", body, testUser)
	r.SetPathValue("id", "c1")
	h.Send(rec, r)
	return rec
}

func TestSendPersistsBothTurnsAndBills(t *testing.T) {
	st, _, h := chatFixture()

	rec := sendMessage(t, h, map[string]string{"text": "Olá"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body)
	}

	if len(st.messages) != 2 {
		t.Fatalf("messages = %d, want 2", len(st.messages))
	}
	if st.messages[0].Role != store.RoleUser || st.messages[0].Content != "Olá" {
		t.Errorf("user turn = %+v", st.messages[0])
	}
	if st.messages[1].Role != store.RoleModel || st.messages[1].Content != "Oi! Tudo bem?" {
		t.Errorf("model turn = %+v", st.messages[1])
	}
	if st.tokens != 200 {
		t.Errorf("billed tokens = %d, want 200", st.tokens)
	}
	wantCost := 200 * textUSDPerMillionTokens / 1_000_000
	if st.cost != wantCost {
		t.Errorf("billed cost = %v, want %v", st.cost, wantCost)
	}

	resp := decodeBody[struct {
		Message messagePayload   `json:"message"`
		AgentID string           `json:"agent_id"`
		Usage   map[string]int64 `json:"usage"`
	}](t, rec)
	if resp.Message.Content != "Oi! Tudo bem?" {
		t.Errorf("reply = %q", resp.Message.Content)
	}
	if resp.Usage["total_tokens"] != 200 {
		t.Errorf("usage total = %d, want 200", resp.Usage["total_tokens"])
	}
}

func TestSendTitlesUntitledConversation(t *testing.T) {
	st, _, h := chatFixture()
	if rec := sendMessage(t, h, map[string]string{"text": "Olá"}); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if st.conv.Title != "Primeiro papo" {
		t.Errorf("title = %q, want %q", st.conv.Title, "Primeiro papo")
	}
}

func TestSendKeepsExistingTitle(t *testing.T) {
	st, _, h := chatFixture()
	st.conv.Title = "Já tem nome"
	if rec := sendMessage(t, h, map[string]string{"text": "Olá"}); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if st.conv.Title != "Já tem nome" {
		t.Errorf("title overwritten: %q", st.conv.Title)
	}
}

func TestSendRejectsExhaustedBalance(t *testing.T) {
	st, _, h := chatFixture()
	st.user.RemainingTokens = 0
	rec := sendMessage(t, h, map[string]string{"text": "Olá"})
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", rec.Code)
	}
	if got := errorType(t, rec); got != "quota_error" {
		t.Errorf("error type = %q, want quota_error", got)
	}
	if len(st.messages) != 0 {
		t.Error("message persisted despite quota rejection")
	}
}

func TestSendTriggerSwitchesPersona(t *testing.T) {
	st, model, h := chatFixture()
	rec := sendMessage(t, h, map[string]string{"text": "Quero falar com a Luzia agora"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if st.conv.AgentID != "luzia" {
		t.Errorf("conversation agent = %q, want luzia", st.conv.AgentID)
	}
	if !strings.Contains(model.lastReq.SystemInstruction, "Luzia") {
		t.Error("model did not receive the switched persona instruction")
	}

	var marker bool
	for _, m := range st.messages {
		if m.Kind == store.MessageKindSystem && m.Content == "agent_switch:luzia" {
			marker = true
		}
	}
	if !marker {
		t.Error("switch marker not persisted")
	}
}

func TestSendHistoryExcludesNonTextKinds(t *testing.T) {
	st, model, h := chatFixture()
	st.messages = []store.Message{
		{ID: "m0", Role: store.RoleUser, Kind: store.MessageKindText, Content: "antes"},
		{ID: "m1", Role: store.RoleSystem, Kind: store.MessageKindSystem, Content: "agent_switch:luzia"},
		{ID: "m2", Role: store.RoleModel, Kind: store.MessageKindImage, Content: "um gato"},
	}
	if rec := sendMessage(t, h, map[string]string{"text": "continua"}); rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if len(model.lastReq.History) != 1 || model.lastReq.History[0].Text != "antes" {
		t.Errorf("history = %+v, want only the text turn", model.lastReq.History)
	}
}

func TestSendTagsUserBlock(t *testing.T) {
	st, _, h := chatFixture()
	rec := sendMessage(t, h, map[string]string{"text": "SELECT 1;", "block": store.MessageBlockCode})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body)
	}
	if st.messages[0].Block != store.MessageBlockCode {
		t.Errorf("user block = %q, want code", st.messages[0].Block)
	}
}

func TestSendRejectsUnknownBlock(t *testing.T) {
	st, _, h := chatFixture()
	rec := sendMessage(t, h, map[string]string{"text": "oi", "block": "poem"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(st.messages) != 0 {
		t.Error("message persisted despite invalid block")
	}
}

func TestSetSummaryBackfillsMessage(t *testing.T) {
	st, _, h := chatFixture()
	st.messages = []store.Message{{ID: "m1", ConversationID: "c1", Role: store.RoleModel, Content: strings.Repeat("longa resposta ", 50)}}

	rec := httptest.NewRecorder()
	r := authedRequest(t, http.MethodPatch, "/v1/conversations/c1/messages/m1",
		map[string]string{"summary": "resposta resumida"}, testUser)
	r.SetPathValue("id", "c1")
	r.SetPathValue("messageID", "m1")
	h.SetSummary(rec, r)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204: %s", rec.Code, rec.Body)
	}
	if st.messages[0].Summary != "resposta resumida" {
		t.Errorf("summary = %q", st.messages[0].Summary)
	}
	// The content itself never changes.
	if !strings.HasPrefix(st.messages[0].Content, "longa resposta") {
		t.Errorf("content mutated: %q", st.messages[0].Content)
	}
}

func TestSetSummaryUnknownMessageIs404(t *testing.T) {
	_, _, h := chatFixture()
	rec := httptest.NewRecorder()
	r := authedRequest(t, http.MethodPatch, "/v1/conversations/c1/messages/ghost",
		map[string]string{"summary": "x"}, testUser)
	r.SetPathValue("id", "c1")
	r.SetPathValue("messageID", "ghost")
	h.SetSummary(rec, r)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestSendRequiresText(t *testing.T) {
	_, _, h := chatFixture()
	rec := sendMessage(t, h, map[string]string{})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestSendModelFailureSurfacesError(t *testing.T) {
	st, model, h := chatFixture()
	model.err = core.NewTransportError("upstream closed", nil)
	rec := sendMessage(t, h, map[string]string{"text": "Olá"})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if st.tokens != 0 {
		t.Error("tokens billed for a failed generation")
	}
}
