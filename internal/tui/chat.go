package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

const defaultTranscriptLimit = 500

// ChatEntry is one transcript item. Streaming marks the live tail of an
// in-flight run; it is rendered in the muted streaming style and replaced
// on every rebuild until the run's terminal event lands.
type ChatEntry struct {
	Role      string
	Content   string
	Streaming bool
}

// ChatModel holds the rendered transcript and its scroll position. The
// scrollback offset counts lines up from the bottom, so 0 means pinned to
// the newest output.
type ChatModel struct {
	entries    []ChatEntry
	maxEntries int

	scrollback     int
	viewportHeight int
}

// NewChatModel creates a transcript buffer with a retention limit.
func NewChatModel(maxEntries int) ChatModel {
	limit := maxEntries
	if limit <= 0 {
		limit = defaultTranscriptLimit
	}
	return ChatModel{maxEntries: limit}
}

// Append records one finished entry when content is non-empty.
func (m *ChatModel) Append(role, content string) {
	m.append(ChatEntry{Role: strings.TrimSpace(role), Content: strings.TrimSpace(content)})
}

// AppendStreaming records the live tail of the active run. The tail is not
// trimmed so partial whitespace keeps accumulating across rebuilds.
func (m *ChatModel) AppendStreaming(content string) {
	if strings.TrimSpace(content) == "" {
		return
	}
	m.append(ChatEntry{Role: "assistant", Content: content, Streaming: true})
}

func (m *ChatModel) append(entry ChatEntry) {
	if entry.Content == "" {
		return
	}
	m.entries = append(m.entries, entry)
	if overflow := len(m.entries) - m.maxEntries; overflow > 0 {
		m.entries = append([]ChatEntry(nil), m.entries[overflow:]...)
	}
	// New output while the user reads scrollback must not yank the view.
	// The offset is bottom-relative, so it grows by the lines just added;
	// a pinned view (offset 0) stays pinned.
	if m.scrollback > 0 {
		m.scrollback += 1 + strings.Count(entry.Content, "\n")
	}
	m.clampScrollback()
}

// Entries returns a defensive copy of the buffered transcript.
func (m ChatModel) Entries() []ChatEntry {
	return append([]ChatEntry(nil), m.entries...)
}

// Clear drops the transcript and re-pins the view to the bottom.
func (m *ChatModel) Clear() {
	m.entries = nil
	m.scrollback = 0
}

// SetViewportHeight configures the visible line count for the transcript.
func (m *ChatModel) SetViewportHeight(height int) {
	if height < 0 {
		height = 0
	}
	m.viewportHeight = height
	m.clampScrollback()
}

// ScrollUp moves the view toward older output.
func (m *ChatModel) ScrollUp(lines int) {
	if lines <= 0 {
		return
	}
	m.scrollback += lines
	m.clampScrollback()
}

// ScrollDown moves the view toward the newest output.
func (m *ChatModel) ScrollDown(lines int) {
	if lines <= 0 {
		return
	}
	m.scrollback -= lines
	m.clampScrollback()
}

// PageUp scrolls one viewport toward older output.
func (m *ChatModel) PageUp() {
	m.ScrollUp(m.pageStep())
}

// PageDown scrolls one viewport toward the newest output.
func (m *ChatModel) PageDown() {
	m.ScrollDown(m.pageStep())
}

// ScrollToTop jumps to the oldest buffered output.
func (m *ChatModel) ScrollToTop() {
	m.scrollback = m.maxScrollback()
}

// ScrollToBottom re-pins the view to the newest output.
func (m *ChatModel) ScrollToBottom() {
	m.scrollback = 0
}

// Render draws the visible transcript window inside a panel.
func (m ChatModel) Render(width int, theme Theme) string {
	lines := m.renderLines(theme)
	if len(lines) == 0 {
		return renderPanel(width, theme.PanelStyle, "No messages yet.")
	}

	if m.viewportHeight > 0 && len(lines) > m.viewportHeight {
		end := len(lines) - m.scrollback
		if end < m.viewportHeight {
			end = m.viewportHeight
		}
		if end > len(lines) {
			end = len(lines)
		}
		lines = lines[end-m.viewportHeight : end]
	}

	return renderPanel(width, theme.PanelStyle, strings.Join(lines, "\n"))
}

// renderLines flattens entries into display lines. Only the first line of
// a multi-line entry carries the role prefix.
func (m ChatModel) renderLines(theme Theme) []string {
	lines := make([]string, 0, len(m.entries))
	for _, entry := range m.entries {
		prefix, prefixStyle := rolePrefix(entry.Role, theme)
		body := strings.Split(entry.Content, "\n")
		if entry.Streaming {
			for i, line := range body {
				body[i] = theme.StreamingTextStyle.Render(line)
			}
		}
		lines = append(lines, prefixStyle.Render(prefix)+" "+body[0])
		lines = append(lines, body[1:]...)
	}
	return lines
}

func rolePrefix(role string, theme Theme) (string, lipgloss.Style) {
	if strings.EqualFold(strings.TrimSpace(role), "assistant") {
		return "assistant:", theme.AssistantPrefixStyle
	}
	return "user:", theme.UserPrefixStyle
}

func renderPanel(width int, style lipgloss.Style, content string) string {
	if width > 0 {
		return style.Width(width).Render(content)
	}
	return style.Render(content)
}

func (m *ChatModel) pageStep() int {
	if m.viewportHeight > 0 {
		return m.viewportHeight
	}
	return 10
}

func (m *ChatModel) maxScrollback() int {
	if m.viewportHeight <= 0 {
		return 0
	}
	total := 0
	for _, entry := range m.entries {
		total += 1 + strings.Count(entry.Content, "\n")
	}
	if total <= m.viewportHeight {
		return 0
	}
	return total - m.viewportHeight
}

func (m *ChatModel) clampScrollback() {
	if m.scrollback < 0 {
		m.scrollback = 0
		return
	}
	if max := m.maxScrollback(); m.scrollback > max {
		m.scrollback = max
	}
}
