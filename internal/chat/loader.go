package chat

import (
	"context"
	"errors"

	"parley/internal/gateway"
)

// ErrClientRequired indicates a loader constructed without a gateway client.
var ErrClientRequired = errors.New("gateway client is required")

const historyLoadErrorText = "Failed to load conversation history."

// Loader rehydrates conversation state from the gateway at session-open
// time. The client handle is a long-lived injected dependency; the loader
// itself keeps no state of its own.
type Loader struct {
	client gateway.Client
}

// NewLoader constructs a loader bound to one gateway client.
func NewLoader(client gateway.Client) (*Loader, error) {
	if client == nil {
		return nil, ErrClientRequired
	}
	return &Loader{client: client}, nil
}

// LoadHistory replaces the transcript from chat.history, then refreshes the
// usage summary best-effort. A history failure surfaces through LastError
// and leaves Messages untouched; a usage failure is swallowed entirely and
// never overwrites LastError.
func (l *Loader) LoadHistory(ctx context.Context, state *ConversationState) {
	if state == nil {
		return
	}

	state.Loading = true
	state.LastError = ""

	var result gateway.HistoryResult
	err := l.client.Request(ctx, gateway.MethodChatHistory, gateway.HistoryParams{Key: state.SessionKey}, &result)
	if err != nil {
		state.LastError = historyLoadErrorText
	} else {
		state.Messages = result.Messages
		state.ThinkingLevel = result.ThinkingLevel
	}
	state.Loading = false

	// Usage is a secondary fetch; run it only after the history result is
	// committed so its failure cannot disturb what the user already sees.
	l.LoadUsageSummary(ctx, state)
}

// LoadUsageSummary derives the last-turn and cumulative usage view from
// sessions.usage.timeseries. An empty timeseries clears all four fields
// ("no usage yet"); a fetch failure leaves prior values untouched.
func (l *Loader) LoadUsageSummary(ctx context.Context, state *ConversationState) {
	if state == nil {
		return
	}

	state.UsageLoading = true
	defer func() { state.UsageLoading = false }()

	var result gateway.UsageResult
	err := l.client.Request(ctx, gateway.MethodUsageTimeseries, gateway.UsageParams{Key: state.SessionKey}, &result)
	if err != nil {
		return
	}

	if len(result.Points) == 0 {
		state.Usage = UsageSummary{}
		return
	}

	last := result.Points[len(result.Points)-1]
	lastTokens := last.TotalTokens
	lastCost := last.Cost
	cumTokens := last.CumulativeTokens
	cumCost := last.CumulativeCost
	state.Usage = UsageSummary{
		LastTurnTokens:   &lastTokens,
		LastTurnCost:     &lastCost,
		CumulativeTokens: &cumTokens,
		CumulativeCost:   &cumCost,
	}
}
