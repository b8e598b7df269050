// Package anthropicprovider adapts the Anthropic Messages API to the
// model.Provider streaming contract.
package anthropicprovider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"parley/internal/model"
)

// Config configures the Anthropic provider.
type Config struct {
	APIKey     string
	BaseURL    string
	Version    string
	HTTPClient *http.Client
	Retry      model.RetryPolicy
	Pricing    map[string]model.Pricing
}

// Provider is a thin wrapper around the official anthropic-sdk-go client.
type Provider struct {
	apiKey  string
	retry   model.RetryPolicy
	pricing map[string]model.Pricing

	client anthropic.Client
}

// New constructs a provider with sane defaults.
func New(cfg Config) *Provider {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	version := strings.TrimSpace(cfg.Version)

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 90 * time.Second}
	}

	pricing := cfg.Pricing
	if pricing == nil {
		pricing = map[string]model.Pricing{}
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	clientOptions := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0), // explicit retry behavior in this package
	}
	if baseURL != "" {
		clientOptions = append(clientOptions, option.WithBaseURL(baseURL))
	}
	if version != "" {
		clientOptions = append(clientOptions, option.WithHeader("anthropic-version", version))
	}

	return &Provider{
		apiKey:  apiKey,
		retry:   cfg.Retry.Normalized(),
		pricing: pricing,
		client:  anthropic.NewClient(clientOptions...),
	}
}

// Stream executes a single Anthropic Messages API streaming request.
func (p *Provider) Stream(ctx context.Context, req *model.Request) (<-chan model.Event, error) {
	if p == nil {
		return nil, fmt.Errorf("anthropic provider is nil")
	}
	if strings.TrimSpace(p.apiKey) == "" {
		return nil, model.ErrMissingAPIKey
	}

	params, err := toAnthropicSDKParams(req)
	if err != nil {
		return nil, err
	}

	events := make(chan model.Event, 1)

	go func() {
		defer close(events)
		state := &streamState{reason: model.StopReasonStop}
		if err := p.streamWithRetry(ctx, params, req.Model, events, state); err != nil {
			reason := model.StopReasonError
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				reason = model.StopReasonAborted
			}
			model.SendTerminalEvent(events, model.Event{
				Type: model.EventError,
				Done: &model.DonePayload{
					Reason: reason,
					Usage:  state.usage,
				},
				Err: fmt.Errorf("anthropic stream: %w", err),
			})
		}
	}()

	return events, nil
}

// streamState tracks incremental response state across one logical stream request.
type streamState struct {
	usage          model.Usage
	reason         model.StopReason
	emittedVisible bool
	startEmitted   bool
	emittedDone    bool
}

// streamWithRetry retries failed streams only when no visible output has been emitted yet.
func (p *Provider) streamWithRetry(
	ctx context.Context,
	params anthropic.MessageNewParams,
	modelID string,
	events chan<- model.Event,
	state *streamState,
) error {
	attempt := 0
	for {
		attemptErr := p.streamOnce(ctx, params, modelID, events, state)
		if attemptErr == nil {
			return nil
		}
		if errors.Is(attemptErr, context.Canceled) || errors.Is(attemptErr, context.DeadlineExceeded) {
			return attemptErr
		}
		if !model.IsRetryableError(attemptErr) || state.emittedVisible || attempt >= p.retry.MaxRetries {
			return attemptErr
		}

		if err := p.retry.Wait(ctx, attempt); err != nil {
			return err
		}
		attempt++
	}
}

// streamOnce consumes one SDK stream and emits canonical events.
func (p *Provider) streamOnce(
	ctx context.Context,
	params anthropic.MessageNewParams,
	modelID string,
	events chan<- model.Event,
	state *streamState,
) error {
	stream := p.client.Messages.NewStreaming(ctx, params)
	defer func() {
		_ = stream.Close()
	}()

	if !state.startEmitted {
		if err := model.SendEvent(ctx, events, model.Event{Type: model.EventStart}); err != nil {
			return err
		}
		state.startEmitted = true
	}

	for stream.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}

		event := stream.Current()
		if err := p.handleSDKStreamEvent(ctx, event, modelID, events, state); err != nil {
			return err
		}
		if state.emittedDone {
			return nil
		}
	}

	if err := stream.Err(); err != nil {
		wrapped := fmt.Errorf("anthropic sdk stream: %w", err)
		if isRetryableProviderError(err) {
			return model.MarkRetryable(wrapped)
		}
		return wrapped
	}

	if state.emittedDone {
		return nil
	}

	return model.MarkRetryable(errors.New("anthropic stream ended without message_stop"))
}

// handleSDKStreamEvent maps raw Anthropic stream events into canonical event payloads.
func (p *Provider) handleSDKStreamEvent(
	ctx context.Context,
	event anthropic.MessageStreamEventUnion,
	modelID string,
	events chan<- model.Event,
	state *streamState,
) error {
	switch variant := event.AsAny().(type) {
	case anthropic.MessageStartEvent:
		applyStartUsage(&state.usage, variant.Message.Usage)
		state.usage.TotalTokens = state.usage.TokenCount()
		state.usage.CostUSD = p.calculateCost(modelID, state.usage)
		return model.SendEvent(ctx, events, model.Event{Type: model.EventUsage, Usage: state.usage.Clone()})

	case anthropic.ContentBlockDeltaEvent:
		delta, ok := variant.Delta.AsAny().(anthropic.TextDelta)
		if !ok {
			return nil
		}
		state.emittedVisible = true
		return model.SendEvent(ctx, events, model.Event{Type: model.EventTextDelta, TextDelta: delta.Text})

	case anthropic.MessageDeltaEvent:
		if variant.Delta.StopReason != "" {
			reason, err := mapStopReason(string(variant.Delta.StopReason))
			if err != nil {
				return err
			}
			state.reason = reason
		}
		applyDeltaUsage(&state.usage, variant.Usage)
		state.usage.TotalTokens = state.usage.TokenCount()
		state.usage.CostUSD = p.calculateCost(modelID, state.usage)
		return model.SendEvent(ctx, events, model.Event{Type: model.EventUsage, Usage: state.usage.Clone()})

	case anthropic.MessageStopEvent:
		state.emittedDone = true
		return model.SendEvent(ctx, events, model.Event{
			Type: model.EventDone,
			Done: &model.DonePayload{
				Reason: state.reason,
				Usage:  state.usage,
			},
		})
	}

	return nil
}

// calculateCost returns computed cost when pricing is configured for the requested model.
func (p *Provider) calculateCost(modelID string, usage model.Usage) float64 {
	pricing, ok := p.pricing[modelID]
	if !ok {
		return 0
	}
	return model.CalculateCost(usage, pricing)
}
