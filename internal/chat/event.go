package chat

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// RunState tags the lifecycle phase an event reports for its run.
type RunState string

const (
	RunStateDelta   RunState = "delta"
	RunStateFinal   RunState = "final"
	RunStateAborted RunState = "aborted"
)

// Outcome reports which reducer branch fired. It is purely informative;
// callers use it to trigger side effects such as a notification bell.
type Outcome string

const (
	// OutcomeNone means the event was ignored without mutation.
	OutcomeNone    Outcome = ""
	OutcomeDelta   Outcome = "delta"
	OutcomeFinal   Outcome = "final"
	OutcomeAborted Outcome = "aborted"
)

// EventPayload is one inbound push event. Message is kept raw because the
// channel is untyped; its shape is validated at apply time, never trusted.
type EventPayload struct {
	RunID      string
	SessionKey string
	State      RunState
	Text       string
	Message    json.RawMessage
}

// DecodeEvent parses one raw push payload. It tolerates missing or oddly
// typed fields and returns nil only when the payload is not a JSON object
// or carries no recognizable state tag.
func DecodeEvent(raw []byte) *EventPayload {
	if !gjson.ValidBytes(raw) {
		return nil
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return nil
	}

	state := RunState(strings.TrimSpace(root.Get("state").String()))
	switch state {
	case RunStateDelta, RunStateFinal, RunStateAborted:
	default:
		return nil
	}

	payload := &EventPayload{
		RunID:      root.Get("runId").String(),
		SessionKey: root.Get("sessionKey").String(),
		State:      state,
		Text:       root.Get("text").String(),
	}
	if message := root.Get("message"); message.Exists() {
		payload.Message = json.RawMessage(message.Raw)
	}
	return payload
}
