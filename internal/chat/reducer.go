package chat

import (
	"encoding/json"
	"time"

	"github.com/tidwall/gjson"

	"parley/internal/gateway"
)

// ApplyEvent folds one push event into the conversation state and reports
// which branch fired. It never returns an error: malformed input falls back
// to a safe default (ignore, or partial apply on terminal events).
//
// Rejection rules, in order: a nil payload, a payload for another session,
// and a delta for a run other than the active one are all ignored without
// mutation. Foreign-run terminal events may still append an out-of-band
// assistant announcement but never touch the run/stream fields.
func ApplyEvent(state *ConversationState, payload *EventPayload) Outcome {
	if state == nil || payload == nil {
		return OutcomeNone
	}
	if payload.SessionKey != state.SessionKey {
		return OutcomeNone
	}

	switch payload.State {
	case RunStateDelta:
		// With no run active, ActiveRunID is "" and a runId-less delta
		// would compare equal; idle state must never accumulate text.
		if state.ActiveRunID == "" || payload.RunID != state.ActiveRunID {
			return OutcomeNone
		}
		if state.StreamStartedAt.IsZero() {
			state.StreamStartedAt = time.Now()
		}
		state.StreamedText += payload.Text
		return OutcomeDelta

	case RunStateFinal:
		if turn, ok := assistantTurn(payload.Message); ok {
			state.Messages = append(state.Messages, turn)
		}
		if payload.RunID == state.ActiveRunID {
			// The run is finished even when no usable message arrived;
			// the live stream must stop either way.
			state.clearRun()
		}
		return OutcomeFinal

	case RunStateAborted:
		if payload.RunID != state.ActiveRunID {
			if turn, ok := assistantTurn(payload.Message); ok {
				state.Messages = append(state.Messages, turn)
			}
			return OutcomeAborted
		}
		if turn, ok := assistantTurn(payload.Message); ok {
			state.Messages = append(state.Messages, turn)
		} else if state.StreamedText != "" {
			state.Messages = append(state.Messages, gateway.TextTurn(gateway.RoleAssistant, state.StreamedText))
		}
		state.clearRun()
		return OutcomeAborted

	default:
		return OutcomeNone
	}
}

// assistantTurn validates a raw wire message as a structurally valid
// assistant turn: an object with role exactly "assistant" and a content
// field present. Block shape is not checked at this layer.
func assistantTurn(raw json.RawMessage) (gateway.Turn, bool) {
	if len(raw) == 0 || !gjson.ValidBytes(raw) {
		return gateway.Turn{}, false
	}
	root := gjson.ParseBytes(raw)
	if !root.IsObject() {
		return gateway.Turn{}, false
	}
	if root.Get("role").String() != string(gateway.RoleAssistant) {
		return gateway.Turn{}, false
	}
	if !root.Get("content").Exists() {
		return gateway.Turn{}, false
	}

	var turn gateway.Turn
	if err := json.Unmarshal(raw, &turn); err != nil {
		return gateway.Turn{}, false
	}
	return turn, true
}
