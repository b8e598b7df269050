// Package tui implements the BubbleTea terminal client on top of the
// gateway contract.
package tui

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/tidwall/gjson"

	"parley/internal/chat"
	"parley/internal/chatapp"
	"parley/internal/gateway"
	sessionstore "parley/internal/session"
)

const defaultAppWidth = 100

// AppConfig configures the root BubbleTea model.
type AppConfig struct {
	Version       string
	ModelName     string
	SessionKey    string
	ThemeName     string
	ThinkingLevel string
	Bell          bool
	Client        gateway.Client
	Events        gateway.EventSource
	Store         *sessionstore.Store
}

// gatewayEventMsg wraps one raw gateway push event for app updates.
type gatewayEventMsg struct {
	Raw    json.RawMessage
	Closed bool
}

type selectorItem struct {
	Value string
	Label string
}

type selectorState struct {
	Title  string
	Items  []selectorItem
	Cursor int
}

// App is the root TUI model.
type App struct {
	theme Theme
	bell  bool

	client gateway.Client
	events <-chan json.RawMessage
	store  *sessionstore.Store
	loader *chat.Loader

	width  int
	height int

	status   StatusModel
	chat     ChatModel
	input    InputModel
	selector *selectorState

	state   *chat.ConversationState
	initErr error
}

// NewApp constructs the root TUI model and loads the initial session.
func NewApp(cfg AppConfig) *App {
	sessionKey := strings.TrimSpace(cfg.SessionKey)
	if sessionKey == "" {
		sessionKey = "main"
	}

	model := &App{
		theme:     ResolveTheme(cfg.ThemeName),
		bell:      cfg.Bell,
		client:    cfg.Client,
		store:     cfg.Store,
		status:    NewStatusModel(cfg.Version, cfg.ModelName, sessionKey),
		chat:      NewChatModel(0),
		input:     NewInputModel(">", "Type message and press Enter"),
		state:     chat.NewConversationState(sessionKey),
	}
	model.width = defaultAppWidth
	model.status.ThinkingLevel = strings.TrimSpace(cfg.ThinkingLevel)

	if cfg.Events != nil {
		model.events = cfg.Events.Events()
	}

	if cfg.Client != nil {
		loader, err := chat.NewLoader(cfg.Client)
		if err != nil {
			model.initErr = err
		} else {
			model.loader = loader
			model.loadSession()
		}
	}

	return model
}

// Init starts reading gateway push events.
func (m *App) Init() tea.Cmd {
	return readGatewayEventCommand(m.events)
}

// Update applies state changes from user input and gateway events.
func (m *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.chat.SetViewportHeight(m.chatViewportHeight())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if m.selector != nil {
				return m, m.cancelSelector()
			}
			if strings.TrimSpace(m.input.Value()) == "" && m.state.ActiveRunID == "" {
				return m, tea.Quit
			}
		case "esc":
			if m.selector == nil && m.state.ActiveRunID != "" {
				if err := m.AbortRun(context.Background()); err != nil {
					m.appendErrorMessage(err.Error())
				}
				return m, nil
			}
		}

		if m.selector != nil {
			return m, m.handleSelectorKey(msg)
		}
		if m.handleChatScrollKey(msg) {
			return m, nil
		}

		if submitted := m.input.HandleKey(msg); submitted {
			content := strings.TrimSpace(m.input.Value())
			m.input.Clear()
			return m, m.handleInputSubmit(content)
		}
		return m, nil

	case gatewayEventMsg:
		if msg.Closed {
			m.events = nil
			return m, nil
		}
		cmd := m.handleGatewayEvent(msg.Raw)
		return m, tea.Batch(cmd, readGatewayEventCommand(m.events))
	}

	return m, nil
}

// View renders status bar, chat panel, and input line.
func (m *App) View() string {
	width := m.width
	if width <= 0 {
		width = defaultAppWidth
	}

	statusLine := m.status.Render(width, m.theme)
	body := m.renderBody(width)
	inputLine := m.input.Render(width, m.theme)
	return strings.Join([]string{statusLine, body, inputLine}, "\n")
}

func readGatewayEventCommand(events <-chan json.RawMessage) tea.Cmd {
	if events == nil {
		return nil
	}
	return func() tea.Msg {
		raw, ok := <-events
		if !ok {
			return gatewayEventMsg{Closed: true}
		}
		return gatewayEventMsg{Raw: raw}
	}
}

// handleGatewayEvent folds one push event into conversation state and
// refreshes the derived UI models.
func (m *App) handleGatewayEvent(raw json.RawMessage) tea.Cmd {
	payload := chat.DecodeEvent(raw)
	outcome := chat.ApplyEvent(m.state, payload)

	var cmd tea.Cmd
	switch outcome {
	case chat.OutcomeDelta:
		m.status.SetState("streaming")
		m.rebuildChatFromState()
	case chat.OutcomeFinal, chat.OutcomeAborted:
		m.rebuildChatFromState()
		m.status.SetState("idle")
		m.refreshUsage()
		if m.bell {
			cmd = tea.Printf("\a")
		}
	}

	// Gateway-side failures (such as a reply that could not be saved)
	// ride along on the event; surface them after the rebuild so the
	// error line is not wiped.
	if payload != nil && payload.SessionKey == m.state.SessionKey {
		if errText := gjson.GetBytes(raw, "errorText").String(); errText != "" {
			m.appendErrorMessage(errText)
		}
	}
	return cmd
}

func (m *App) handleInputSubmit(content string) tea.Cmd {
	if content == "" {
		return nil
	}
	if m.initErr != nil {
		m.appendErrorMessage(m.initErr.Error())
		return nil
	}
	if m.client == nil {
		m.appendErrorMessage("gateway client is not configured")
		return nil
	}

	if strings.HasPrefix(content, "/") {
		return m.handleSlashCommand(content)
	}

	if m.state.ActiveRunID != "" {
		m.appendErrorMessage("a reply is already streaming, /abort to cancel it")
		return nil
	}

	var sent gateway.SendResult
	err := m.client.Request(context.Background(), gateway.MethodChatSend, gateway.SendParams{
		Key:  m.state.SessionKey,
		Text: content,
	}, &sent)
	if err != nil {
		m.appendErrorMessage(err.Error())
		return nil
	}

	userTurn := gateway.TextTurn(gateway.RoleUser, content)
	userTurn.Timestamp = time.Now().UnixMilli()
	m.state.Messages = append(m.state.Messages, userTurn)
	m.state.StartRun(sent.RunID)

	m.rebuildChatFromState()
	m.status.SetState("streaming")
	return nil
}

func (m *App) handleSlashCommand(content string) tea.Cmd {
	return chatapp.ExecuteSlashCommand(content, chatapp.CommandEnv{
		Session:      m,
		ActiveStream: m.state.ActiveRunID != "",
		OpenResumeSelector: func() tea.Cmd {
			return m.openResumeSelector()
		},
		RebuildChatFromSession: func() {
			m.rebuildChatFromState()
		},
		RefreshSessionStatus: func() {
			m.refreshSessionStatus()
		},
		AppendAssistant: func(text string) {
			m.chat.Append("assistant", text)
		},
		AppendError: func(errText string) {
			m.appendErrorMessage(errText)
		},
	})
}

// SessionKey implements chatapp.SessionController.
func (m *App) SessionKey() string {
	return m.state.SessionKey
}

// NewSession implements chatapp.SessionController.
func (m *App) NewSession(ctx context.Context, requestedKey string) (string, error) {
	_ = ctx
	key := strings.TrimSpace(requestedKey)
	if key == "" {
		key = time.Now().UTC().Format("20060102-150405")
	}
	m.switchToSession(key)
	return key, nil
}

// ListSessions implements chatapp.SessionController.
func (m *App) ListSessions(ctx context.Context) ([]sessionstore.SessionInfo, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.List(ctx)
}

// SwitchSession implements chatapp.SessionController.
func (m *App) SwitchSession(ctx context.Context, sessionKey string) error {
	_ = ctx
	key := strings.TrimSpace(sessionKey)
	if key == "" {
		return gateway.ErrSessionKeyRequired
	}
	m.switchToSession(key)
	return nil
}

// Usage implements chatapp.SessionController.
func (m *App) Usage() chat.UsageSummary {
	return m.state.Usage
}

// ActiveRunID implements chatapp.SessionController.
func (m *App) ActiveRunID() string {
	return m.state.ActiveRunID
}

// AbortRun implements chatapp.SessionController.
func (m *App) AbortRun(ctx context.Context) error {
	if m.client == nil {
		return gateway.ErrRunNotFound
	}
	return m.client.Request(ctx, gateway.MethodChatAbort, gateway.AbortParams{
		Key:   m.state.SessionKey,
		RunID: m.state.ActiveRunID,
	}, nil)
}

// MessageCount implements chatapp.SessionController.
func (m *App) MessageCount() int {
	return len(m.state.Messages)
}

func (m *App) switchToSession(key string) {
	m.state = chat.NewConversationState(key)
	m.loadSession()
}

// loadSession populates conversation state through the history loader
// and syncs the derived UI models.
func (m *App) loadSession() {
	if m.loader != nil {
		m.loader.LoadHistory(context.Background(), m.state)
	}
	m.rebuildChatFromState()
	m.refreshSessionStatus()
	if m.state.LastError != "" {
		m.status.SetState("error")
	}
}

// refreshUsage re-fetches the usage summary after a terminal event.
// Failures keep the previous summary, matching the loader contract.
func (m *App) refreshUsage() {
	if m.loader == nil {
		return
	}
	m.loader.LoadUsageSummary(context.Background(), m.state)
	m.refreshSessionStatus()
}

func (m *App) openResumeSelector() tea.Cmd {
	infos, err := m.ListSessions(context.Background())
	if err != nil {
		m.appendErrorMessage(err.Error())
		return nil
	}
	if len(infos) == 0 {
		m.chat.Append("assistant", "No sessions found.")
		return nil
	}

	items := make([]selectorItem, 0, len(infos))
	current := m.state.SessionKey
	cursor := 0
	for index, info := range infos {
		label := fmt.Sprintf("%s  (%s)", info.Key, info.UpdatedAt.Format(time.DateTime))
		if info.Key == current {
			label = label + "  [current]"
			cursor = index
		}
		items = append(items, selectorItem{
			Value: info.Key,
			Label: label,
		})
	}

	m.selector = &selectorState{
		Title:  "Select Session",
		Items:  items,
		Cursor: cursor,
	}
	return nil
}

func (m *App) handleSelectorKey(msg tea.KeyMsg) tea.Cmd {
	if m.selector == nil {
		return nil
	}

	switch msg.Type {
	case tea.KeyEsc:
		return m.cancelSelector()
	case tea.KeyUp:
		m.selector.Cursor--
		if m.selector.Cursor < 0 {
			m.selector.Cursor = len(m.selector.Items) - 1
		}
		return nil
	case tea.KeyDown:
		m.selector.Cursor++
		if m.selector.Cursor >= len(m.selector.Items) {
			m.selector.Cursor = 0
		}
		return nil
	case tea.KeyEnter:
		return m.confirmSelector()
	default:
		return nil
	}
}

func (m *App) cancelSelector() tea.Cmd {
	if m.selector == nil {
		return nil
	}
	m.selector = nil
	m.chat.Append("assistant", "Selection cancelled.")
	return nil
}

func (m *App) confirmSelector() tea.Cmd {
	if m.selector == nil || len(m.selector.Items) == 0 {
		m.selector = nil
		return nil
	}
	selected := m.selector.Items[m.selector.Cursor]
	m.selector = nil

	m.switchToSession(selected.Value)
	m.chat.Append("assistant", "Resumed session "+selected.Value+".")
	return nil
}

func (m *App) appendErrorMessage(errText string) {
	message := "Error: " + strings.TrimSpace(errText)
	m.chat.Append("assistant", message)
	m.status.SetState("error")
}

// rebuildChatFromState re-renders the chat buffer from conversation
// state, appending the live streamed tail when a run is in flight.
func (m *App) rebuildChatFromState() {
	m.chat.Clear()
	for _, turn := range m.state.Messages {
		text := gateway.TurnText(turn)
		if text == "" {
			continue
		}
		switch turn.Role {
		case gateway.RoleAssistant:
			m.chat.Append("assistant", text)
		default:
			m.chat.Append("user", text)
		}
	}

	if m.state.ActiveRunID != "" && m.state.StreamedText != "" {
		m.chat.AppendStreaming(m.state.StreamedText)
	}
}

func (m *App) refreshSessionStatus() {
	m.status.SessionKey = m.state.SessionKey
	m.status.ThinkingLevel = m.state.ThinkingLevel
	m.status.CostUSD = m.state.Usage.CumulativeCost
}

func (m *App) renderBody(width int) string {
	m.chat.SetViewportHeight(m.chatViewportHeight())
	if m.selector != nil {
		return m.renderSelectorPanel(width)
	}
	return m.chat.Render(width, m.theme)
}

func (m *App) renderSelectorPanel(width int) string {
	if m.selector == nil || len(m.selector.Items) == 0 {
		return renderPanel(width, m.theme.PanelStyle, "No selectable items.")
	}
	lines := make([]string, 0, len(m.selector.Items)+2)
	lines = append(lines, m.selector.Title)
	lines = append(lines, "Use ↑/↓ to navigate, Enter to confirm, Esc to cancel.")
	for index, item := range m.selector.Items {
		prefix := "  "
		if index == m.selector.Cursor {
			prefix = "> "
		}
		lines = append(lines, prefix+item.Label)
	}
	return renderPanel(width, m.theme.PanelStyle, strings.Join(lines, "\n"))
}

func (m *App) handleChatScrollKey(msg tea.KeyMsg) bool {
	switch msg.Type {
	case tea.KeyUp:
		m.chat.ScrollUp(1)
		return true
	case tea.KeyDown:
		m.chat.ScrollDown(1)
		return true
	case tea.KeyPgUp:
		m.chat.PageUp()
		return true
	case tea.KeyPgDown:
		m.chat.PageDown()
		return true
	case tea.KeyHome:
		m.chat.ScrollToTop()
		return true
	case tea.KeyEnd:
		m.chat.ScrollToBottom()
		return true
	default:
		return false
	}
}

func (m *App) chatViewportHeight() int {
	if m.height <= 0 {
		return 0
	}

	const nonBodyRows = 2 // status + input
	bodyHeight := m.height - nonBodyRows
	if bodyHeight < 1 {
		return 1
	}

	contentHeight := bodyHeight - m.theme.PanelStyle.GetVerticalFrameSize()
	if contentHeight < 1 {
		return 1
	}
	return contentHeight
}
