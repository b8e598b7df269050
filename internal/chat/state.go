// Package chat holds the per-conversation client state and the event
// reducer that folds gateway push events into it.
package chat

import (
	"time"

	"parley/internal/gateway"
)

// UsageSummary is the derived last-turn and cumulative token/cost view.
// Each field is independently nil until a usage fetch has produced it.
type UsageSummary struct {
	LastTurnTokens   *int64
	LastTurnCost     *float64
	CumulativeTokens *int64
	CumulativeCost   *float64
}

// ConversationState is the single mutable state of one open conversation.
// It is created once per opened session and mutated in place; the reducer
// and the loaders never replace the object.
type ConversationState struct {
	// SessionKey identifies the conversation this state belongs to.
	// Events carrying any other key are ignored entirely.
	SessionKey string

	// ActiveRunID is the in-flight generation run owned by this state,
	// empty when no run is active. It is set when the user's own request
	// is dispatched and cleared only by a terminal event for that run.
	ActiveRunID string

	// StreamedText accumulates the active run's in-progress assistant
	// output. StreamStartedAt marks when streaming began; its zero value
	// means streaming has not started.
	StreamedText    string
	StreamStartedAt time.Time

	// Messages is the ordered conversation transcript, insertion order =
	// chronological order. The reducer only ever appends at the tail.
	Messages []gateway.Turn

	// ThinkingLevel is the session's reasoning setting reported by the
	// gateway, empty when the gateway reports none.
	ThinkingLevel string

	Usage UsageSummary

	Loading      bool
	UsageLoading bool

	// LastError is the most recent user-visible fetch error, empty when
	// the last history load succeeded.
	LastError string
}

// NewConversationState creates state for one opened session.
func NewConversationState(sessionKey string) *ConversationState {
	return &ConversationState{SessionKey: sessionKey}
}

// StartRun marks a run as owned by this conversation. The first delta for
// the run begins the streaming buffer.
func (s *ConversationState) StartRun(runID string) {
	s.ActiveRunID = runID
	s.StreamedText = ""
	s.StreamStartedAt = time.Time{}
}

// clearRun drops the active run and its stream buffer together. The three
// fields always change as a unit.
func (s *ConversationState) clearRun() {
	s.ActiveRunID = ""
	s.StreamedText = ""
	s.StreamStartedAt = time.Time{}
}
