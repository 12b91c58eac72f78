// Package review derives review-priority statuses for pull requests and
// repositories from raw review data. Everything here is pure and deterministic.
package review

// Status is a pull request's review priority. The ordinal is the priority:
// lower values are more urgent.
type Status int

const (
	// StatusUrgent means the pull request is waiting on the current user's review.
	StatusUrgent Status = iota
	// StatusNeedsResponse means the current user requested changes that are still outstanding.
	StatusNeedsResponse
	// StatusInformational means nothing is expected from the current user.
	StatusInformational
	// StatusApproved means the current user has already reviewed it.
	StatusApproved
	// StatusDraft means the pull request is a draft.
	StatusDraft
)

// Statuses lists every status, most urgent first.
var Statuses = []Status{StatusUrgent, StatusNeedsResponse, StatusInformational, StatusApproved, StatusDraft}

func (s Status) String() string {
	switch s {
	case StatusUrgent:
		return "urgent"
	case StatusNeedsResponse:
		return "needs_response"
	case StatusInformational:
		return "informational"
	case StatusApproved:
		return "approved"
	case StatusDraft:
		return "draft"
	default:
		return "unknown"
	}
}

// Symbol is the glyph shown next to a pull request.
func (s Status) Symbol() string {
	switch s {
	case StatusUrgent:
		return "🔴"
	case StatusNeedsResponse:
		return "💬"
	case StatusInformational:
		return "🟡"
	case StatusApproved:
		return "🟢"
	case StatusDraft:
		return "⚪"
	default:
		return "❓"
	}
}

// RepoSymbol is the glyph shown next to a repository whose roll-up status is s.
func (s Status) RepoSymbol() string {
	switch s {
	case StatusUrgent:
		return "🟥"
	case StatusNeedsResponse:
		return "🟧"
	case StatusInformational:
		return "🟨"
	case StatusApproved:
		return "🟩"
	case StatusDraft:
		return "⬜"
	default:
		return "❓"
	}
}

// IsUrgent reports whether s calls for the current user's attention.
func (s Status) IsUrgent() bool {
	return s == StatusUrgent || s == StatusNeedsResponse
}

// Outranks reports whether s has strictly higher priority than o.
func (s Status) Outranks(o Status) bool {
	return s < o
}
