package chat

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"parley/internal/gateway"
)

type fakeClient struct {
	history func() (gateway.HistoryResult, error)
	usage   func() (gateway.UsageResult, error)
}

func (f *fakeClient) Request(ctx context.Context, method string, params any, result any) error {
	switch method {
	case gateway.MethodChatHistory:
		if f.history == nil {
			return gateway.ErrUnknownMethod
		}
		res, err := f.history()
		if err != nil {
			return err
		}
		*result.(*gateway.HistoryResult) = res
		return nil
	case gateway.MethodUsageTimeseries:
		if f.usage == nil {
			return gateway.ErrUnknownMethod
		}
		res, err := f.usage()
		if err != nil {
			return err
		}
		*result.(*gateway.UsageResult) = res
		return nil
	default:
		return fmt.Errorf("%w: %s", gateway.ErrUnknownMethod, method)
	}
}

func TestNewLoaderRequiresClient(t *testing.T) {
	t.Parallel()

	if _, err := NewLoader(nil); !errors.Is(err, ErrClientRequired) {
		t.Fatalf("NewLoader(nil) err = %v, want ErrClientRequired", err)
	}
}

func TestLoadHistoryPopulatesStateAndSwallowsUsageFailure(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		history: func() (gateway.HistoryResult, error) {
			return gateway.HistoryResult{
				Messages: []gateway.Turn{
					gateway.TextTurn(gateway.RoleUser, "hi"),
					gateway.TextTurn(gateway.RoleAssistant, "hello"),
				},
				ThinkingLevel: "medium",
			}, nil
		},
		usage: func() (gateway.UsageResult, error) {
			return gateway.UsageResult{}, errors.New("usage backend down")
		},
	}

	loader, err := NewLoader(client)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	state := NewConversationState("sess-1")
	loader.LoadHistory(context.Background(), state)

	if state.LastError != "" {
		t.Fatalf("LastError = %q, want empty (usage failure must be invisible)", state.LastError)
	}
	if len(state.Messages) != 2 {
		t.Fatalf("Messages length = %d, want 2", len(state.Messages))
	}
	if state.ThinkingLevel != "medium" {
		t.Fatalf("ThinkingLevel = %q, want medium", state.ThinkingLevel)
	}
	if state.Loading || state.UsageLoading {
		t.Fatalf("loading flags not dropped: loading=%v usageLoading=%v", state.Loading, state.UsageLoading)
	}
	if state.Usage != (UsageSummary{}) {
		t.Fatalf("Usage = %+v, want untouched zero value", state.Usage)
	}
}

func TestLoadHistoryFailureKeepsMessages(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		history: func() (gateway.HistoryResult, error) {
			return gateway.HistoryResult{}, errors.New("gateway unreachable")
		},
		usage: func() (gateway.UsageResult, error) {
			return gateway.UsageResult{}, nil
		},
	}

	loader, err := NewLoader(client)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	state := NewConversationState("sess-1")
	state.Messages = []gateway.Turn{gateway.TextTurn(gateway.RoleUser, "earlier")}
	loader.LoadHistory(context.Background(), state)

	if state.LastError == "" {
		t.Fatal("expected LastError after history failure")
	}
	if len(state.Messages) != 1 {
		t.Fatalf("Messages length = %d, want prior transcript retained", len(state.Messages))
	}
	if state.Loading {
		t.Fatal("Loading flag not dropped after failure")
	}
}

func TestLoadUsageSummaryDerivesLastAndCumulative(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		usage: func() (gateway.UsageResult, error) {
			return gateway.UsageResult{Points: []gateway.UsagePoint{
				{TotalTokens: 42, Cost: 0.0008, CumulativeTokens: 42, CumulativeCost: 0.0008},
				{TotalTokens: 128, Cost: 0.0024, CumulativeTokens: 170, CumulativeCost: 0.0032},
			}}, nil
		},
	}

	loader, err := NewLoader(client)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	state := NewConversationState("sess-1")
	loader.LoadUsageSummary(context.Background(), state)

	if state.Usage.LastTurnTokens == nil || *state.Usage.LastTurnTokens != 128 {
		t.Fatalf("LastTurnTokens = %v, want 128", state.Usage.LastTurnTokens)
	}
	if state.Usage.LastTurnCost == nil || *state.Usage.LastTurnCost != 0.0024 {
		t.Fatalf("LastTurnCost = %v, want 0.0024", state.Usage.LastTurnCost)
	}
	if state.Usage.CumulativeTokens == nil || *state.Usage.CumulativeTokens != 170 {
		t.Fatalf("CumulativeTokens = %v, want 170", state.Usage.CumulativeTokens)
	}
	if state.Usage.CumulativeCost == nil || *state.Usage.CumulativeCost != 0.0032 {
		t.Fatalf("CumulativeCost = %v, want 0.0032", state.Usage.CumulativeCost)
	}
	if state.UsageLoading {
		t.Fatal("UsageLoading flag not dropped")
	}
}

func TestLoadUsageSummaryEmptyTimeseriesClearsFields(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		usage: func() (gateway.UsageResult, error) {
			return gateway.UsageResult{}, nil
		},
	}

	loader, err := NewLoader(client)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	tokens := int64(99)
	state := NewConversationState("sess-1")
	state.Usage.CumulativeTokens = &tokens

	loader.LoadUsageSummary(context.Background(), state)
	if state.Usage != (UsageSummary{}) {
		t.Fatalf("Usage = %+v, want all fields cleared for empty timeseries", state.Usage)
	}
}

func TestLoadUsageSummaryFailureRetainsPriorValues(t *testing.T) {
	t.Parallel()

	client := &fakeClient{
		usage: func() (gateway.UsageResult, error) {
			return gateway.UsageResult{}, errors.New("timeout")
		},
	}

	loader, err := NewLoader(client)
	if err != nil {
		t.Fatalf("NewLoader: %v", err)
	}

	tokens := int64(170)
	state := NewConversationState("sess-1")
	state.Usage.CumulativeTokens = &tokens
	state.LastError = ""

	loader.LoadUsageSummary(context.Background(), state)
	if state.Usage.CumulativeTokens == nil || *state.Usage.CumulativeTokens != 170 {
		t.Fatalf("CumulativeTokens = %v, want prior value retained", state.Usage.CumulativeTokens)
	}
	if state.LastError != "" {
		t.Fatalf("LastError = %q, want untouched by usage failure", state.LastError)
	}
	if state.UsageLoading {
		t.Fatal("UsageLoading flag not dropped after failure")
	}
}
