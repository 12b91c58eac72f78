package tui

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// Controller is what the model needs from the daemon.
type Controller interface {
	GetSnapshot() Snapshot
	Refresh()
	SetToken(token string) error
	SetRepoSearchFilter(filter string) error
	SetRefreshInterval(minutes string) error
}

type promptKind int

const (
	promptNone promptKind = iota
	promptToken
	promptFilter
	promptInterval
)

type Model struct {
	ctrl            Controller
	snapshot        Snapshot
	refreshInterval time.Duration
	openURL         func(string) error

	cursor int

	prompt        promptKind
	input         []rune
	promptErr     string
	tokenPrompted bool
	status        string
}

type Option func(*Model)

// WithTokenPrompt opens the token prompt on start.
func WithTokenPrompt() Option {
	return func(m *Model) {
		m.openPrompt(promptToken)
		m.tokenPrompted = true
	}
}

// WithURLOpener replaces the browser launcher.
func WithURLOpener(fn func(string) error) Option {
	return func(m *Model) {
		m.openURL = fn
	}
}

type tickMsg time.Time

func NewModel(ctrl Controller, refreshInterval time.Duration, opts ...Option) Model {
	m := Model{
		ctrl:            ctrl,
		snapshot:        ctrl.GetSnapshot(),
		refreshInterval: refreshInterval,
		openURL:         OpenURL,
	}
	for _, opt := range opts {
		opt(&m)
	}
	return m
}

func (m Model) Init() tea.Cmd {
	return tickCmd(m.refreshInterval)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			return m, tea.Quit
		}
		if m.prompt != promptNone {
			return m.updatePrompt(msg), nil
		}
		return m.updateList(msg)

	case tickMsg:
		m.snapshot = m.ctrl.GetSnapshot()
		m.clampCursor()
		m.maybePromptToken()
		return m, tickCmd(m.refreshInterval)
	}

	return m, nil
}

func (m Model) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return m, tea.Quit
	case "r":
		m.ctrl.Refresh()
		m.status = "refreshing..."
	case "t":
		m.openPrompt(promptToken)
	case "f":
		m.openPrompt(promptFilter)
		m.input = []rune(m.snapshot.Filter)
	case "d":
		m.openPrompt(promptInterval)
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(visibleRows(m.snapshot))-1 {
			m.cursor++
		}
	case "enter", "o":
		rows := visibleRows(m.snapshot)
		if m.cursor >= 0 && m.cursor < len(rows) && rows[m.cursor].url != "" {
			if err := m.openURL(rows[m.cursor].url); err != nil {
				m.status = "open failed: " + err.Error()
			} else {
				m.status = "opened " + rows[m.cursor].url
			}
		}
	}
	return m, nil
}

func (m Model) updatePrompt(msg tea.KeyMsg) Model {
	switch msg.Type {
	case tea.KeyEsc:
		m.closePrompt()
	case tea.KeyEnter:
		if err := m.submit(string(m.input)); err != nil {
			m.promptErr = err.Error()
			return m
		}
		m.closePrompt()
		m.status = "saved, refreshing..."
	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
	case tea.KeySpace:
		m.input = append(m.input, ' ')
	case tea.KeyRunes:
		m.input = append(m.input, msg.Runes...)
	}
	return m
}

func (m *Model) submit(value string) error {
	switch m.prompt {
	case promptToken:
		return m.ctrl.SetToken(value)
	case promptFilter:
		return m.ctrl.SetRepoSearchFilter(value)
	case promptInterval:
		return m.ctrl.SetRefreshInterval(value)
	}
	return nil
}

func (m *Model) openPrompt(kind promptKind) {
	m.prompt = kind
	m.input = nil
	m.promptErr = ""
}

func (m *Model) closePrompt() {
	m.prompt = promptNone
	m.input = nil
	m.promptErr = ""
}

// maybePromptToken opens the token prompt once each time the token is rejected.
func (m *Model) maybePromptToken() {
	switch m.snapshot.State {
	case StateInvalidCredentials:
		if !m.tokenPrompted && m.prompt == promptNone {
			m.openPrompt(promptToken)
			m.tokenPrompted = true
		}
	case StateRefreshing:
	default:
		m.tokenPrompted = false
	}
}

func (m *Model) clampCursor() {
	n := len(visibleRows(m.snapshot))
	if m.cursor >= n {
		m.cursor = n - 1
	}
	if m.cursor < 0 {
		m.cursor = 0
	}
}

func (m Model) View() string {
	return renderView(m)
}

func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
