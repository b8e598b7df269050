package local

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/tidwall/sjson"

	"parley/internal/gateway"
	"parley/internal/model"
	"parley/internal/session"
)

// Event states pushed to clients.
const (
	eventStateDelta   = "delta"
	eventStateFinal   = "final"
	eventStateAborted = "aborted"
)

// streamRun drives one provider stream to completion and translates it
// into push events. The run entry is removed before the terminal event
// is pushed, so a client reacting to the terminal event never races an
// abort against a run that is already gone.
func (g *Gateway) streamRun(ctx context.Context, key string, run *activeRun, history []gateway.Turn) {
	state, message, storeErr := g.consumeStream(ctx, key, run.id, history)
	run.cancel()
	g.finishRun(key, run)
	g.pushEvent(composeTerminalEvent(state, run.id, key, message, storeErr))
}

// consumeStream runs one provider stream, pushing deltas as they come,
// and returns the terminal event state, its message payload, and any
// persistence failure for the assistant turn.
func (g *Gateway) consumeStream(ctx context.Context, key, runID string, history []gateway.Turn) (string, json.RawMessage, error) {
	req := &model.Request{
		Model:     g.model,
		System:    g.system,
		Messages:  history,
		MaxTokens: g.maxTokens,
	}

	events, err := g.provider.Stream(ctx, req)
	if err != nil {
		return eventStateFinal, nil, nil
	}

	var streamed strings.Builder
	var usage model.Usage

	for event := range events {
		switch event.Type {
		case model.EventTextDelta:
			streamed.WriteString(event.TextDelta)
			g.pushEvent(composeDeltaEvent(runID, key, event.TextDelta))

		case model.EventUsage:
			if event.Usage != nil {
				usage = *event.Usage
			}

		case model.EventDone:
			if event.Done != nil {
				usage = event.Done.Usage
			}
			message, storeErr := g.persistAssistantTurn(key, streamed.String(), usage)
			return eventStateFinal, message, storeErr

		case model.EventError:
			if event.Done != nil && event.Done.Usage != (model.Usage{}) {
				usage = event.Done.Usage
			}
			if event.Done != nil && event.Done.Reason == model.StopReasonAborted {
				message, storeErr := g.persistAssistantTurn(key, streamed.String(), usage)
				return eventStateAborted, message, storeErr
			}
			return eventStateFinal, nil, nil
		}
	}

	// Provider closed the channel without a terminal event.
	return eventStateFinal, nil, nil
}

// persistAssistantTurn appends the assistant reply to the session file
// and returns it as a message payload. Empty text persists nothing.
// Persistence failure must not lose the reply the user just watched
// stream in, so the message is returned either way and the write error
// travels on the terminal event for the client to surface.
func (g *Gateway) persistAssistantTurn(key, text string, usage model.Usage) (json.RawMessage, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	turn := gateway.TextTurn(gateway.RoleAssistant, text)
	turn.Timestamp = time.Now().UnixMilli()

	record := session.Record{
		Role:    turn.Role,
		Content: turn.Content,
		TS:      turn.Timestamp,
	}
	if usage != (model.Usage{}) {
		record.Usage = &session.UsageRecord{
			TotalTokens: int64(usage.TotalTokens),
			CostUSD:     usage.CostUSD,
		}
	}
	storeErr := g.store.Append(context.Background(), key, record)

	raw, err := json.Marshal(turn)
	if err != nil {
		return nil, storeErr
	}
	return raw, storeErr
}

// pushEvent delivers one event payload, blocking until a consumer takes
// it or the gateway shuts down.
func (g *Gateway) pushEvent(payload json.RawMessage) {
	if payload == nil {
		return
	}
	select {
	case g.events <- payload:
	case <-g.done:
	}
}

// composeDeltaEvent builds a streaming text fragment event.
func composeDeltaEvent(runID, key, text string) json.RawMessage {
	payload := []byte(`{}`)
	payload, _ = sjson.SetBytes(payload, "state", eventStateDelta)
	payload, _ = sjson.SetBytes(payload, "runId", runID)
	payload, _ = sjson.SetBytes(payload, "sessionKey", key)
	payload, _ = sjson.SetBytes(payload, "text", text)
	return payload
}

// composeTerminalEvent builds a final or aborted event, attaching the
// message payload when one exists and the persistence failure when one
// happened. Reducers that do not know the errorText field ignore it.
func composeTerminalEvent(state, runID, key string, message json.RawMessage, storeErr error) json.RawMessage {
	payload := []byte(`{}`)
	payload, _ = sjson.SetBytes(payload, "state", state)
	payload, _ = sjson.SetBytes(payload, "runId", runID)
	payload, _ = sjson.SetBytes(payload, "sessionKey", key)
	if len(message) > 0 {
		payload, _ = sjson.SetRawBytes(payload, "message", message)
	}
	if storeErr != nil {
		payload, _ = sjson.SetBytes(payload, "errorText", "failed to save reply: "+storeErr.Error())
	}
	return payload
}
