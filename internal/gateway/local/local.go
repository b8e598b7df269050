// Package local implements an in-process gateway backed by a session
// store and a model provider. It serves the same request methods and
// push events a remote gateway would, so the client stack above it does
// not care which one it is talking to.
package local

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"parley/internal/gateway"
	"parley/internal/model"
	"parley/internal/session"
)

var (
	// ErrStoreRequired indicates the gateway was constructed without a session store.
	ErrStoreRequired = errors.New("session store is required")
	// ErrProviderRequired indicates the gateway was constructed without a model provider.
	ErrProviderRequired = errors.New("model provider is required")
	// ErrTextRequired indicates an empty chat.send text.
	ErrTextRequired = errors.New("text is required")
	// ErrGatewayClosed indicates a request after Close.
	ErrGatewayClosed = errors.New("gateway is closed")
)

const defaultEventBuffer = 64

// Config configures the local gateway.
type Config struct {
	Store         *session.Store
	Provider      model.Provider
	Model         string
	System        string
	MaxTokens     int
	ThinkingLevel string
	EventBuffer   int
}

// Gateway routes request methods to the store and provider and pushes
// run events to the Events channel.
type Gateway struct {
	store         *session.Store
	provider      model.Provider
	model         string
	system        string
	maxTokens     int
	thinkingLevel string

	mu     sync.Mutex
	runs   map[string]*activeRun
	closed bool

	events chan json.RawMessage
	done   chan struct{}
}

// activeRun tracks the single in-flight generation for a session key.
type activeRun struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
}

// New constructs a local gateway.
func New(cfg Config) (*Gateway, error) {
	if cfg.Store == nil {
		return nil, ErrStoreRequired
	}
	if cfg.Provider == nil {
		return nil, ErrProviderRequired
	}
	buffer := cfg.EventBuffer
	if buffer <= 0 {
		buffer = defaultEventBuffer
	}
	return &Gateway{
		store:         cfg.Store,
		provider:      cfg.Provider,
		model:         strings.TrimSpace(cfg.Model),
		system:        cfg.System,
		maxTokens:     cfg.MaxTokens,
		thinkingLevel: strings.TrimSpace(cfg.ThinkingLevel),
		runs:          map[string]*activeRun{},
		events:        make(chan json.RawMessage, buffer),
		done:          make(chan struct{}),
	}, nil
}

// Events returns the push event stream.
func (g *Gateway) Events() <-chan json.RawMessage {
	return g.events
}

// Close cancels all active runs and stops event delivery.
func (g *Gateway) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	runs := make([]*activeRun, 0, len(g.runs))
	for _, run := range g.runs {
		runs = append(runs, run)
	}
	g.mu.Unlock()

	close(g.done)
	for _, run := range runs {
		run.cancel()
		<-run.done
	}
}

// Request dispatches a gateway method. Params and result travel through
// JSON so the call shape matches a remote gateway exactly.
func (g *Gateway) Request(ctx context.Context, method string, params, result any) error {
	raw, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("encode params: %w", err)
	}

	var out any
	switch method {
	case gateway.MethodChatHistory:
		out, err = g.chatHistory(ctx, raw)
	case gateway.MethodChatSend:
		out, err = g.chatSend(ctx, raw)
	case gateway.MethodChatAbort:
		out, err = g.chatAbort(raw)
	case gateway.MethodUsageTimeseries:
		out, err = g.usageTimeseries(ctx, raw)
	case gateway.MethodGatewayMethods:
		out, err = g.methods()
	default:
		return fmt.Errorf("%w: %s", gateway.ErrUnknownMethod, method)
	}
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}

	encoded, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("encode result: %w", err)
	}
	if err := json.Unmarshal(encoded, result); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}

func (g *Gateway) chatHistory(ctx context.Context, raw []byte) (gateway.HistoryResult, error) {
	var params gateway.HistoryParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return gateway.HistoryResult{}, fmt.Errorf("decode params: %w", err)
	}
	key := strings.TrimSpace(params.Key)
	if key == "" {
		return gateway.HistoryResult{}, gateway.ErrSessionKeyRequired
	}

	turns, err := g.loadTurns(ctx, key)
	if err != nil {
		return gateway.HistoryResult{}, err
	}
	return gateway.HistoryResult{Messages: turns, ThinkingLevel: g.thinkingLevel}, nil
}

// loadTurns reads the persisted session transcript. A session that does
// not exist yet reads as an empty transcript.
func (g *Gateway) loadTurns(ctx context.Context, key string) ([]gateway.Turn, error) {
	records, err := g.store.Load(ctx, key)
	if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		return nil, err
	}

	turns := make([]gateway.Turn, 0, len(records))
	for _, record := range records {
		turns = append(turns, gateway.Turn{
			Role:      record.Role,
			Content:   record.Content,
			Timestamp: record.TS,
		})
	}
	return turns, nil
}

func (g *Gateway) chatSend(ctx context.Context, raw []byte) (gateway.SendResult, error) {
	var params gateway.SendParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return gateway.SendResult{}, fmt.Errorf("decode params: %w", err)
	}
	key := strings.TrimSpace(params.Key)
	if key == "" {
		return gateway.SendResult{}, gateway.ErrSessionKeyRequired
	}
	text := strings.TrimSpace(params.Text)
	if text == "" {
		return gateway.SendResult{}, ErrTextRequired
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return gateway.SendResult{}, ErrGatewayClosed
	}
	if _, busy := g.runs[key]; busy {
		g.mu.Unlock()
		return gateway.SendResult{}, fmt.Errorf("%w: session %s", gateway.ErrRunActive, key)
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	run := &activeRun{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	g.runs[key] = run
	g.mu.Unlock()

	if err := g.store.Append(ctx, key, session.Record{
		Role:    gateway.RoleUser,
		Content: []gateway.ContentBlock{{Type: gateway.ContentTypeText, Text: text}},
	}); err != nil {
		g.finishRun(key, run)
		cancel()
		return gateway.SendResult{}, err
	}

	history, err := g.loadTurns(ctx, key)
	if err != nil {
		g.finishRun(key, run)
		cancel()
		return gateway.SendResult{}, err
	}

	go g.streamRun(runCtx, key, run, gateway.CloneTurns(history))

	return gateway.SendResult{RunID: run.id}, nil
}

func (g *Gateway) chatAbort(raw []byte) (gateway.AbortResult, error) {
	var params gateway.AbortParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return gateway.AbortResult{}, fmt.Errorf("decode params: %w", err)
	}
	key := strings.TrimSpace(params.Key)
	if key == "" {
		return gateway.AbortResult{}, gateway.ErrSessionKeyRequired
	}

	g.mu.Lock()
	run, ok := g.runs[key]
	if ok && params.RunID != "" && run.id != params.RunID {
		ok = false
	}
	g.mu.Unlock()

	if !ok {
		return gateway.AbortResult{}, gateway.ErrRunNotFound
	}
	run.cancel()
	return gateway.AbortResult{Aborted: true}, nil
}

func (g *Gateway) usageTimeseries(ctx context.Context, raw []byte) (gateway.UsageResult, error) {
	var params gateway.UsageParams
	if err := json.Unmarshal(raw, &params); err != nil {
		return gateway.UsageResult{}, fmt.Errorf("decode params: %w", err)
	}
	key := strings.TrimSpace(params.Key)
	if key == "" {
		return gateway.UsageResult{}, gateway.ErrSessionKeyRequired
	}

	records, err := g.store.Load(ctx, key)
	if err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		return gateway.UsageResult{}, err
	}

	var cumulativeTokens int64
	var cumulativeCost float64
	points := make([]gateway.UsagePoint, 0)
	for _, record := range records {
		if record.Usage == nil {
			continue
		}
		cumulativeTokens += record.Usage.TotalTokens
		cumulativeCost += record.Usage.CostUSD
		points = append(points, gateway.UsagePoint{
			TotalTokens:      record.Usage.TotalTokens,
			Cost:             record.Usage.CostUSD,
			CumulativeTokens: cumulativeTokens,
			CumulativeCost:   cumulativeCost,
		})
	}
	return gateway.UsageResult{Points: points}, nil
}

func (g *Gateway) methods() (gateway.MethodsResult, error) {
	specs := []struct {
		name        string
		description string
		params      any
	}{
		{gateway.MethodChatHistory, "Load recorded conversation turns for a session.", gateway.HistoryParams{}},
		{gateway.MethodChatSend, "Send a user message and start a generation run.", gateway.SendParams{}},
		{gateway.MethodChatAbort, "Cancel the active generation run for a session.", gateway.AbortParams{}},
		{gateway.MethodUsageTimeseries, "Load per-turn and cumulative usage for a session.", gateway.UsageParams{}},
	}

	out := make([]gateway.MethodSpec, 0, len(specs))
	for _, spec := range specs {
		built, err := gateway.NewMethodSpec(spec.name, spec.description, spec.params)
		if err != nil {
			return gateway.MethodsResult{}, err
		}
		out = append(out, built)
	}
	return gateway.MethodsResult{Methods: out}, nil
}

// finishRun removes the run entry and signals waiters.
func (g *Gateway) finishRun(key string, run *activeRun) {
	g.mu.Lock()
	if current, ok := g.runs[key]; ok && current == run {
		delete(g.runs, key)
	}
	g.mu.Unlock()
	close(run.done)
}
