// Package chatapp implements the slash-command runtime shared by the
// terminal UI.
package chatapp

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"parley/internal/chat"
)

// ExecuteSlashCommand parses and handles one slash command.
func ExecuteSlashCommand(content string, env CommandEnv) tea.Cmd {
	if env.Session == nil {
		appendError(env, "session is not initialized")
		return nil
	}

	parts := strings.Fields(strings.TrimSpace(content))
	if len(parts) == 0 {
		return nil
	}
	command := strings.TrimPrefix(parts[0], "/")
	args := parts[1:]

	switch command {
	case "help":
		appendAssistant(env, strings.Join([]string{
			"Slash commands:",
			"/help",
			"/session",
			"/new [session-key]",
			"/resume [session-key|latest]",
			"/usage",
			"/abort",
		}, "\n"))
	case "session":
		run := env.Session.ActiveRunID()
		if run == "" {
			run = "-"
		}
		appendAssistant(env, fmt.Sprintf(
			"session=%s messages=%d run=%s",
			env.Session.SessionKey(),
			env.Session.MessageCount(),
			run,
		))
	case "new":
		if env.ActiveStream {
			appendError(env, "cannot create new session while a reply is streaming")
			return nil
		}
		requested := ""
		if len(args) > 0 {
			requested = args[0]
		}
		key, err := env.Session.NewSession(context.Background(), requested)
		if err != nil {
			appendError(env, err.Error())
			return nil
		}
		rebuildChat(env)
		refreshStatus(env)
		appendAssistant(env, "Started new session "+key+".")
	case "resume":
		if env.ActiveStream {
			appendError(env, "cannot resume session while a reply is streaming")
			return nil
		}
		if len(args) == 0 {
			if env.OpenResumeSelector == nil {
				appendError(env, "resume selector is not available")
				return nil
			}
			return env.OpenResumeSelector()
		}

		targetKey := strings.TrimSpace(args[0])
		if strings.EqualFold(targetKey, "latest") {
			infos, err := env.Session.ListSessions(context.Background())
			if err != nil {
				appendError(env, err.Error())
				return nil
			}
			if len(infos) == 0 {
				appendAssistant(env, "No sessions found.")
				return nil
			}
			current := env.Session.SessionKey()
			targetKey = infos[0].Key
			for _, info := range infos {
				if info.Key != current {
					targetKey = info.Key
					break
				}
			}
		}
		if err := env.Session.SwitchSession(context.Background(), targetKey); err != nil {
			appendError(env, err.Error())
			return nil
		}
		rebuildChat(env)
		refreshStatus(env)
		appendAssistant(env, "Resumed session "+targetKey+".")
	case "usage":
		appendAssistant(env, FormatUsage(env.Session.Usage()))
	case "abort":
		if env.Session.ActiveRunID() == "" {
			appendAssistant(env, "No run in flight.")
			return nil
		}
		if err := env.Session.AbortRun(context.Background()); err != nil {
			appendError(env, err.Error())
			return nil
		}
		appendAssistant(env, "Abort requested.")
	default:
		appendError(env, "unknown slash command: /"+command)
	}

	return nil
}

// FormatUsage renders the usage summary for display. Fields never
// reported by the gateway render as unavailable.
func FormatUsage(usage chat.UsageSummary) string {
	if usage.LastTurnTokens == nil && usage.CumulativeTokens == nil {
		return "No usage data for this session."
	}

	lastTokens := int64(0)
	if usage.LastTurnTokens != nil {
		lastTokens = *usage.LastTurnTokens
	}
	lastCost := 0.0
	if usage.LastTurnCost != nil {
		lastCost = *usage.LastTurnCost
	}
	totalTokens := int64(0)
	if usage.CumulativeTokens != nil {
		totalTokens = *usage.CumulativeTokens
	}
	totalCost := 0.0
	if usage.CumulativeCost != nil {
		totalCost = *usage.CumulativeCost
	}

	return fmt.Sprintf(
		"Last turn: %d tokens ($%.4f). Session total: %d tokens ($%.4f).",
		lastTokens, lastCost, totalTokens, totalCost,
	)
}

func appendAssistant(env CommandEnv, text string) {
	if env.AppendAssistant != nil {
		env.AppendAssistant(text)
	}
}

func appendError(env CommandEnv, errText string) {
	if env.AppendError != nil {
		env.AppendError(errText)
	}
}

func rebuildChat(env CommandEnv) {
	if env.RebuildChatFromSession != nil {
		env.RebuildChatFromSession()
	}
}

func refreshStatus(env CommandEnv) {
	if env.RefreshSessionStatus != nil {
		env.RefreshSessionStatus()
	}
}
