package local

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"parley/internal/gateway"
	"parley/internal/model"
	mockprovider "parley/internal/model/mock"
	"parley/internal/session"
)

func newTestGateway(t *testing.T, provider model.Provider) *Gateway {
	t.Helper()

	store, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	g, err := New(Config{
		Store:         store,
		Provider:      provider,
		Model:         "claude-sonnet-4-20250514",
		ThinkingLevel: "medium",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(g.Close)
	return g
}

func waitEvent(t *testing.T, g *Gateway) gjson.Result {
	t.Helper()

	select {
	case raw := <-g.Events():
		return gjson.ParseBytes(raw)
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for gateway event")
		return gjson.Result{}
	}
}

// waitTerminal drains events until a final or aborted event for runID arrives.
func waitTerminal(t *testing.T, g *Gateway, runID string) gjson.Result {
	t.Helper()

	for {
		event := waitEvent(t, g)
		if event.Get("runId").String() != runID {
			continue
		}
		if state := event.Get("state").String(); state == "final" || state == "aborted" {
			return event
		}
	}
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	store, err := session.NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	if _, err := New(Config{Provider: &mockprovider.Provider{}}); !errors.Is(err, ErrStoreRequired) {
		t.Fatalf("expected ErrStoreRequired, got %v", err)
	}
	if _, err := New(Config{Store: store}); !errors.Is(err, ErrProviderRequired) {
		t.Fatalf("expected ErrProviderRequired, got %v", err)
	}
}

func TestUnknownMethod(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, &mockprovider.Provider{})
	err := g.Request(context.Background(), "chat.rename", nil, nil)
	if !errors.Is(err, gateway.ErrUnknownMethod) {
		t.Fatalf("expected ErrUnknownMethod, got %v", err)
	}
}

func TestSendStreamsAndPersists(t *testing.T) {
	t.Parallel()

	usage := model.Usage{InputTokens: 12, OutputTokens: 30, TotalTokens: 42, CostUSD: 0.0008}
	provider := &mockprovider.Provider{Events: mockprovider.TextScript(usage, "Hello", ", world")}
	g := newTestGateway(t, provider)
	ctx := context.Background()

	var sent gateway.SendResult
	err := g.Request(ctx, gateway.MethodChatSend, gateway.SendParams{Key: "main", Text: "hi"}, &sent)
	if err != nil {
		t.Fatalf("chat.send: %v", err)
	}
	if sent.RunID == "" {
		t.Fatalf("chat.send returned empty run id")
	}

	first := waitEvent(t, g)
	if first.Get("state").String() != "delta" || first.Get("text").String() != "Hello" {
		t.Fatalf("unexpected first event: %s", first.Raw)
	}
	if first.Get("sessionKey").String() != "main" || first.Get("runId").String() != sent.RunID {
		t.Fatalf("delta not tagged with run/session: %s", first.Raw)
	}

	terminal := waitTerminal(t, g, sent.RunID)
	if terminal.Get("state").String() != "final" {
		t.Fatalf("expected final event, got %s", terminal.Raw)
	}
	message := terminal.Get("message")
	if message.Get("role").String() != "assistant" {
		t.Fatalf("final message role = %q", message.Get("role").String())
	}
	if got := message.Get("content.0.text").String(); got != "Hello, world" {
		t.Fatalf("final message text = %q", got)
	}

	var history gateway.HistoryResult
	if err := g.Request(ctx, gateway.MethodChatHistory, gateway.HistoryParams{Key: "main"}, &history); err != nil {
		t.Fatalf("chat.history: %v", err)
	}
	if len(history.Messages) != 2 {
		t.Fatalf("history length = %d, want 2", len(history.Messages))
	}
	if history.Messages[0].Role != gateway.RoleUser || history.Messages[1].Role != gateway.RoleAssistant {
		t.Fatalf("history roles = %v, %v", history.Messages[0].Role, history.Messages[1].Role)
	}
	if history.ThinkingLevel != "medium" {
		t.Fatalf("thinking level = %q", history.ThinkingLevel)
	}

	var timeseries gateway.UsageResult
	if err := g.Request(ctx, gateway.MethodUsageTimeseries, gateway.UsageParams{Key: "main"}, &timeseries); err != nil {
		t.Fatalf("usage.timeseries: %v", err)
	}
	if len(timeseries.Points) != 1 {
		t.Fatalf("timeseries length = %d, want 1", len(timeseries.Points))
	}
	point := timeseries.Points[0]
	if point.TotalTokens != 42 || point.CumulativeTokens != 42 {
		t.Fatalf("tokens = %d/%d, want 42/42", point.TotalTokens, point.CumulativeTokens)
	}
	if point.Cost != 0.0008 || point.CumulativeCost != 0.0008 {
		t.Fatalf("cost = %v/%v, want 0.0008/0.0008", point.Cost, point.CumulativeCost)
	}
}

func TestSendValidation(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, &mockprovider.Provider{})
	ctx := context.Background()

	err := g.Request(ctx, gateway.MethodChatSend, gateway.SendParams{Text: "hi"}, nil)
	if !errors.Is(err, gateway.ErrSessionKeyRequired) {
		t.Fatalf("expected ErrSessionKeyRequired, got %v", err)
	}
	err = g.Request(ctx, gateway.MethodChatSend, gateway.SendParams{Key: "main", Text: "   "}, nil)
	if !errors.Is(err, ErrTextRequired) {
		t.Fatalf("expected ErrTextRequired, got %v", err)
	}
}

func TestSecondSendWhileRunActive(t *testing.T) {
	t.Parallel()

	provider := &mockprovider.Provider{
		Events: mockprovider.TextScript(model.Usage{TotalTokens: 1}, "slow"),
		Delay:  100 * time.Millisecond,
	}
	g := newTestGateway(t, provider)
	ctx := context.Background()

	var sent gateway.SendResult
	if err := g.Request(ctx, gateway.MethodChatSend, gateway.SendParams{Key: "main", Text: "one"}, &sent); err != nil {
		t.Fatalf("chat.send: %v", err)
	}

	err := g.Request(ctx, gateway.MethodChatSend, gateway.SendParams{Key: "main", Text: "two"}, nil)
	if !errors.Is(err, gateway.ErrRunActive) {
		t.Fatalf("expected ErrRunActive, got %v", err)
	}

	// A different session key is not blocked, it fails independently or succeeds.
	if err := g.Request(ctx, gateway.MethodChatSend, gateway.SendParams{Key: "other", Text: "three"}, nil); err != nil {
		t.Fatalf("independent session blocked: %v", err)
	}

	waitTerminal(t, g, sent.RunID)
}

func TestAbortEmitsAbortedEventWithPartial(t *testing.T) {
	t.Parallel()

	provider := &mockprovider.Provider{
		Events: mockprovider.TextScript(model.Usage{TotalTokens: 9}, "partial ", "answer ", "tail"),
		Delay:  50 * time.Millisecond,
	}
	g := newTestGateway(t, provider)
	ctx := context.Background()

	var sent gateway.SendResult
	if err := g.Request(ctx, gateway.MethodChatSend, gateway.SendParams{Key: "main", Text: "go"}, &sent); err != nil {
		t.Fatalf("chat.send: %v", err)
	}

	// Wait for the first visible fragment, then abort mid-stream.
	first := waitEvent(t, g)
	if first.Get("state").String() != "delta" {
		t.Fatalf("expected delta before abort, got %s", first.Raw)
	}

	var aborted gateway.AbortResult
	err := g.Request(ctx, gateway.MethodChatAbort, gateway.AbortParams{Key: "main", RunID: sent.RunID}, &aborted)
	if err != nil {
		t.Fatalf("chat.abort: %v", err)
	}
	if !aborted.Aborted {
		t.Fatalf("abort reported Aborted=false")
	}

	terminal := waitTerminal(t, g, sent.RunID)
	if terminal.Get("state").String() != "aborted" {
		t.Fatalf("expected aborted event, got %s", terminal.Raw)
	}
	message := terminal.Get("message")
	if message.Exists() && message.Get("role").String() != "assistant" {
		t.Fatalf("aborted message role = %q", message.Get("role").String())
	}

	// The run entry is gone, so a second abort misses.
	err = g.Request(ctx, gateway.MethodChatAbort, gateway.AbortParams{Key: "main", RunID: sent.RunID}, nil)
	if !errors.Is(err, gateway.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound after run finished, got %v", err)
	}
}

func TestAbortUnknownRun(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, &mockprovider.Provider{})
	err := g.Request(context.Background(), gateway.MethodChatAbort, gateway.AbortParams{Key: "main", RunID: "nope"}, nil)
	if !errors.Is(err, gateway.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestHistoryMissingSessionIsEmpty(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, &mockprovider.Provider{})
	var history gateway.HistoryResult
	if err := g.Request(context.Background(), gateway.MethodChatHistory, gateway.HistoryParams{Key: "fresh"}, &history); err != nil {
		t.Fatalf("chat.history: %v", err)
	}
	if len(history.Messages) != 0 {
		t.Fatalf("expected empty history, got %d turns", len(history.Messages))
	}
}

func TestGatewayMethods(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, &mockprovider.Provider{})
	var methods gateway.MethodsResult
	if err := g.Request(context.Background(), gateway.MethodGatewayMethods, nil, &methods); err != nil {
		t.Fatalf("gateway.methods: %v", err)
	}
	if len(methods.Methods) != 4 {
		t.Fatalf("methods = %d, want 4", len(methods.Methods))
	}
	for _, spec := range methods.Methods {
		var schema map[string]json.RawMessage
		if err := json.Unmarshal(spec.Schema, &schema); err != nil {
			t.Fatalf("method %s schema invalid: %v", spec.Name, err)
		}
	}
}

func TestComposeTerminalEventCarriesStoreError(t *testing.T) {
	t.Parallel()

	message := json.RawMessage(`{"role":"assistant","content":[{"type":"text","text":"hi"}]}`)
	payload := composeTerminalEvent(eventStateFinal, "run-1", "main", message, errors.New("disk full"))

	parsed := gjson.ParseBytes(payload)
	if parsed.Get("state").String() != eventStateFinal || parsed.Get("runId").String() != "run-1" {
		t.Fatalf("unexpected terminal event: %s", payload)
	}
	if got := parsed.Get("message.role").String(); got != "assistant" {
		t.Fatalf("message.role = %q, want assistant", got)
	}
	if got := parsed.Get("errorText").String(); got != "failed to save reply: disk full" {
		t.Fatalf("errorText = %q", got)
	}

	clean := composeTerminalEvent(eventStateAborted, "run-2", "main", nil, nil)
	if gjson.GetBytes(clean, "errorText").Exists() {
		t.Fatalf("clean terminal event must not carry errorText: %s", clean)
	}
}
