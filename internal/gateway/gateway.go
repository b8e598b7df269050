// Package gateway defines the request/response and push-event contract
// between the parley client and a chat-assistant gateway.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
)

// Method names understood by a gateway.
const (
	MethodChatHistory     = "chat.history"
	MethodChatSend        = "chat.send"
	MethodChatAbort       = "chat.abort"
	MethodUsageTimeseries = "sessions.usage.timeseries"
	MethodGatewayMethods  = "gateway.methods"
)

var (
	// ErrUnknownMethod indicates a request for a method the gateway does not serve.
	ErrUnknownMethod = errors.New("unknown gateway method")
	// ErrSessionKeyRequired indicates a request without a session key.
	ErrSessionKeyRequired = errors.New("session key is required")
	// ErrRunActive indicates a send while the session already has a run in flight.
	ErrRunActive = errors.New("session already has an active run")
	// ErrRunNotFound indicates an abort for a run the gateway does not know.
	ErrRunNotFound = errors.New("run not found")
)

// Client issues one request and decodes the typed result.
type Client interface {
	Request(ctx context.Context, method string, params any, result any) error
}

// EventSource delivers raw push-event payloads one at a time.
type EventSource interface {
	Events() <-chan json.RawMessage
}

// HistoryParams selects the conversation for chat.history.
type HistoryParams struct {
	Key string `json:"key"`
}

// HistoryResult carries persisted turns plus derived session settings.
type HistoryResult struct {
	Messages      []Turn `json:"messages"`
	ThinkingLevel string `json:"thinkingLevel,omitempty"`
}

// UsageParams selects the conversation for sessions.usage.timeseries.
type UsageParams struct {
	Key string `json:"key"`
}

// UsagePoint is one entry of the per-turn cost/token timeseries.
// Cumulative fields are running totals as of that point.
type UsagePoint struct {
	TotalTokens      int64   `json:"totalTokens"`
	Cost             float64 `json:"cost"`
	CumulativeTokens int64   `json:"cumulativeTokens"`
	CumulativeCost   float64 `json:"cumulativeCost"`
}

// UsageResult is the ordered timeseries for one session.
type UsageResult struct {
	Points []UsagePoint `json:"points"`
}

// SendParams submits one user message for chat.send.
type SendParams struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// SendResult identifies the generation run started by chat.send.
type SendResult struct {
	RunID string `json:"runId"`
}

// AbortParams cancels one in-flight run.
type AbortParams struct {
	Key   string `json:"key"`
	RunID string `json:"runId"`
}

// AbortResult reports whether the run was still live when aborted.
type AbortResult struct {
	Aborted bool `json:"aborted"`
}

// MethodsResult lists the methods a gateway serves, with params schemas.
type MethodsResult struct {
	Methods []MethodSpec `json:"methods"`
}
