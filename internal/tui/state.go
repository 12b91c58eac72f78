package tui

import "time"

// AppState is the overall indicator shown in the title line.
type AppState int

const (
	StateNormal AppState = iota // no open pull requests
	StateUrgent
	StateNoActionNeeded
	StateInvalidCredentials
	StateNetworkError
	StateRefreshing
)

func (s AppState) String() string {
	switch s {
	case StateNormal:
		return "normal"
	case StateUrgent:
		return "urgent"
	case StateNoActionNeeded:
		return "no_action_needed"
	case StateInvalidCredentials:
		return "invalid_credentials"
	case StateNetworkError:
		return "network_error"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// Icon is the glyph that stands in for the menu bar icon.
func (s AppState) Icon() string {
	switch s {
	case StateUrgent:
		return "🔔"
	case StateNoActionNeeded:
		return "✅"
	case StateInvalidCredentials, StateNetworkError:
		return "⚠️"
	case StateRefreshing:
		return "⏳"
	default:
		return "💤"
	}
}

// Label is shown after the icon for error states.
func (s AppState) Label() string {
	switch s {
	case StateInvalidCredentials:
		return "(Invalid PAT)"
	case StateNetworkError:
		return "(Network Error)"
	default:
		return ""
	}
}

type Snapshot struct {
	Timestamp       time.Time
	LastUpdate      time.Time // zero until the first successful refresh
	State           AppState
	User            string
	Repos           []RepoState
	Filter          string
	RefreshInterval time.Duration
	Summary         string
	Notice          string // latest periodic summary notification
	Error           string
}

type RepoState struct {
	Name   string
	Line   string
	URL    string // pull request list of the repository
	Urgent bool
	PRs    []PRState
}

type PRState struct {
	Number int
	Title  string
	Line   string
	URL    string
	Status string
}
