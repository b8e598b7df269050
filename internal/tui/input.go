package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// InputModel is a single-line editor with a movable cursor. The buffer is
// held as runes so editing in the middle of multibyte text stays sane.
type InputModel struct {
	prompt      string
	placeholder string

	buffer []rune
	cursor int
}

// NewInputModel constructs the input state.
func NewInputModel(prompt, placeholder string) InputModel {
	p := strings.TrimSpace(prompt)
	if p == "" {
		p = ">"
	}
	return InputModel{
		prompt:      p,
		placeholder: strings.TrimSpace(placeholder),
	}
}

// Value returns the current raw input text.
func (m InputModel) Value() string {
	return string(m.buffer)
}

// SetValue replaces the input text and moves the cursor to the end.
func (m *InputModel) SetValue(value string) {
	m.buffer = []rune(value)
	m.cursor = len(m.buffer)
}

// Clear resets the input text.
func (m *InputModel) Clear() {
	m.buffer = nil
	m.cursor = 0
}

// HandleKey applies one key to the editor and reports the submit key.
func (m *InputModel) HandleKey(msg tea.KeyMsg) (submitted bool) {
	switch msg.Type {
	case tea.KeyEnter:
		return true
	case tea.KeyBackspace:
		if m.cursor > 0 {
			m.buffer = append(m.buffer[:m.cursor-1], m.buffer[m.cursor:]...)
			m.cursor--
		}
	case tea.KeyDelete:
		if m.cursor < len(m.buffer) {
			m.buffer = append(m.buffer[:m.cursor], m.buffer[m.cursor+1:]...)
		}
	case tea.KeyLeft:
		if m.cursor > 0 {
			m.cursor--
		}
	case tea.KeyRight:
		if m.cursor < len(m.buffer) {
			m.cursor++
		}
	case tea.KeyHome, tea.KeyCtrlA:
		m.cursor = 0
	case tea.KeyEnd, tea.KeyCtrlE:
		m.cursor = len(m.buffer)
	case tea.KeyCtrlU:
		m.buffer = append([]rune(nil), m.buffer[m.cursor:]...)
		m.cursor = 0
	case tea.KeySpace:
		m.insert([]rune{' '})
	default:
		if len(msg.Runes) > 0 {
			m.insert(msg.Runes)
		}
	}
	return false
}

func (m *InputModel) insert(runes []rune) {
	next := make([]rune, 0, len(m.buffer)+len(runes))
	next = append(next, m.buffer[:m.cursor]...)
	next = append(next, runes...)
	next = append(next, m.buffer[m.cursor:]...)
	m.buffer = next
	m.cursor += len(runes)
}

// Render draws the input line with the placeholder when empty.
func (m InputModel) Render(width int, theme Theme) string {
	value := string(m.buffer)
	valueStyle := theme.InputTextStyle
	if strings.TrimSpace(value) == "" && m.cursor == 0 {
		value = m.placeholder
		valueStyle = theme.InputPlaceholderTextStyle
	}

	line := theme.InputPromptStyle.Render(m.prompt+" ") + valueStyle.Render(value)
	if width > 0 {
		return lipgloss.NewStyle().Width(width).Render(line)
	}
	return line
}
