package tui

import (
	"fmt"
	"strings"
)

// StatusModel renders the top status bar.
type StatusModel struct {
	Version       string
	ModelName     string
	SessionKey    string
	ThinkingLevel string
	State         string
	CostUSD       *float64
}

// NewStatusModel constructs status data for rendering.
func NewStatusModel(version, modelName, sessionKey string) StatusModel {
	return StatusModel{
		Version:    strings.TrimSpace(version),
		ModelName:  strings.TrimSpace(modelName),
		SessionKey: strings.TrimSpace(sessionKey),
		State:      "idle",
	}
}

// SetState updates the runtime state token.
func (m *StatusModel) SetState(state string) {
	m.State = strings.TrimSpace(state)
	if m.State == "" {
		m.State = "idle"
	}
}

// Render draws a one-line status bar.
func (m StatusModel) Render(width int, theme Theme) string {
	parts := []string{
		"parley " + fallbackText(m.Version, "dev"),
		fallbackText(m.ModelName, "unknown-model"),
		"session: " + fallbackText(m.SessionKey, "new"),
		"state: " + fallbackText(m.State, "idle"),
	}
	if level := strings.TrimSpace(m.ThinkingLevel); level != "" {
		parts = append(parts, "thinking: "+level)
	}
	if m.CostUSD != nil {
		parts = append(parts, "cost: "+formatCostUSD(*m.CostUSD))
	}
	line := strings.Join(parts, " | ")
	style := theme.StatusBarStyle
	if width > 0 {
		style = style.Width(width)
	}
	return style.Render(line)
}

func fallbackText(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}

func formatCostUSD(cost float64) string {
	return fmt.Sprintf("$%.4f", cost)
}
