// Package model defines the provider-agnostic streaming contract used by
// the local gateway to generate assistant turns.
package model

import (
	"context"
	"errors"

	"parley/internal/gateway"
)

var (
	// ErrInvalidRequest indicates missing or malformed provider request input.
	ErrInvalidRequest = errors.New("invalid model request")
	// ErrMissingAPIKey indicates missing provider API key.
	ErrMissingAPIKey = errors.New("missing api key")
)

// Provider streams model events for a single request.
type Provider interface {
	Stream(ctx context.Context, req *Request) (<-chan Event, error)
}

// Request is the provider-agnostic streaming request.
type Request struct {
	Model       string
	System      string
	Messages    []gateway.Turn
	MaxTokens   int
	Temperature *float64
}

// EventType identifies stream event variants.
type EventType string

const (
	EventStart     EventType = "start"
	EventTextDelta EventType = "text_delta"
	EventUsage     EventType = "usage"
	EventDone      EventType = "done"
	EventError     EventType = "error"
)

// StopReason represents the canonical reason a model response stopped.
type StopReason string

const (
	StopReasonStop    StopReason = "stop"
	StopReasonLength  StopReason = "length"
	StopReasonError   StopReason = "error"
	StopReasonAborted StopReason = "aborted"
)

// Usage tracks provider token accounting and computed cost.
type Usage struct {
	InputTokens      int     `json:"input_tokens"`
	OutputTokens     int     `json:"output_tokens"`
	CacheReadTokens  int     `json:"cache_read_tokens"`
	CacheWriteTokens int     `json:"cache_write_tokens"`
	TotalTokens      int     `json:"total_tokens"`
	CostUSD          float64 `json:"cost_usd"`
}

// TokenCount returns the total tokens consumed across all usage buckets.
func (u Usage) TokenCount() int {
	return u.InputTokens + u.OutputTokens + u.CacheReadTokens + u.CacheWriteTokens
}

// Clone returns a copy safe to share as pointer payload.
func (u Usage) Clone() *Usage {
	copied := u
	return &copied
}

// DonePayload carries the final status when the stream ends normally.
type DonePayload struct {
	Reason StopReason
	Usage  Usage
}

// Event is the provider-agnostic streaming event.
type Event struct {
	Type      EventType
	TextDelta string
	Usage     *Usage
	Done      *DonePayload
	Err       error
}

// SendEvent forwards an event unless the context has already been canceled.
func SendEvent(ctx context.Context, events chan<- Event, event Event) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case events <- event:
		return nil
	}
}

// SendTerminalEvent emits a terminal event without cancellation checks.
// The events channel must have buffer capacity of at least 1 so that
// the goroutine does not hang when the consumer has stopped reading.
func SendTerminalEvent(events chan<- Event, event Event) {
	select {
	case events <- event:
	default:
	}
}
