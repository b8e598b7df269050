// Package mockprovider provides a scripted model.Provider for tests.
package mockprovider

import (
	"context"
	"time"

	"parley/internal/model"
)

// Provider emits a predefined event script for deterministic tests.
type Provider struct {
	Events []model.Event
	Delay  time.Duration

	// LastRequest records the most recent request passed to Stream.
	LastRequest *model.Request
}

// Stream emits scripted events in order until exhaustion or cancellation.
func (m *Provider) Stream(ctx context.Context, req *model.Request) (<-chan model.Event, error) {
	m.LastRequest = req

	out := make(chan model.Event, 1)
	go func() {
		defer close(out)
		for _, ev := range m.Events {
			if m.Delay > 0 {
				timer := time.NewTimer(m.Delay)
				select {
				case <-ctx.Done():
					timer.Stop()
					model.SendTerminalEvent(out, model.Event{
						Type: model.EventError,
						Done: &model.DonePayload{Reason: model.StopReasonAborted},
						Err:  ctx.Err(),
					})
					return
				case <-timer.C:
				}
			}

			select {
			case <-ctx.Done():
				model.SendTerminalEvent(out, model.Event{
					Type: model.EventError,
					Done: &model.DonePayload{Reason: model.StopReasonAborted},
					Err:  ctx.Err(),
				})
				return
			case out <- ev:
			}
		}
	}()

	return out, nil
}

// TextScript builds the common happy-path script: start, one delta per
// fragment, then done with the given usage.
func TextScript(usage model.Usage, fragments ...string) []model.Event {
	events := make([]model.Event, 0, len(fragments)+2)
	events = append(events, model.Event{Type: model.EventStart})
	for _, fragment := range fragments {
		events = append(events, model.Event{Type: model.EventTextDelta, TextDelta: fragment})
	}
	events = append(events, model.Event{
		Type: model.EventDone,
		Done: &model.DonePayload{Reason: model.StopReasonStop, Usage: usage},
	})
	return events
}
