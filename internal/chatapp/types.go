package chatapp

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"parley/internal/chat"
	"parley/internal/session"
)

// SessionController is the shared command-facing session runtime contract.
type SessionController interface {
	SessionKey() string
	NewSession(ctx context.Context, requestedKey string) (string, error)
	ListSessions(ctx context.Context) ([]session.SessionInfo, error)
	SwitchSession(ctx context.Context, sessionKey string) error
	Usage() chat.UsageSummary
	ActiveRunID() string
	AbortRun(ctx context.Context) error
	MessageCount() int
}

// CommandEnv provides adapter hooks so command runtime stays UI-framework agnostic.
type CommandEnv struct {
	Session SessionController

	ActiveStream bool

	OpenResumeSelector func() tea.Cmd

	RebuildChatFromSession func()
	RefreshSessionStatus   func()

	AppendAssistant func(text string)
	AppendError     func(errText string)
}
