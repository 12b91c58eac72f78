package review

import (
	"fmt"
	"slices"
	"strings"
)

// RepositoryInfo is a repository with its classified open pull requests.
type RepositoryInfo struct {
	Name         string
	URL          string
	PullRequests []PullRequestInfo // ascending by ID
	Status       Status
	IsUrgent     bool
}

// NewRepositoryInfo sorts prs by ID and computes the repository roll-up.
// The input slice is not modified.
func NewRepositoryInfo(name, url string, prs []PullRequestInfo) RepositoryInfo {
	sorted := slices.Clone(prs)
	slices.SortStableFunc(sorted, func(a, b PullRequestInfo) int { return a.ID - b.ID })

	status, urgent := rollUp(sorted)
	return RepositoryInfo{
		Name:         name,
		URL:          url,
		PullRequests: sorted,
		Status:       status,
		IsUrgent:     urgent,
	}
}

// rollUp keeps the single highest-priority status present. Repositories
// without pull requests roll up to Draft.
func rollUp(prs []PullRequestInfo) (Status, bool) {
	highest := StatusDraft
	for _, pr := range prs {
		if pr.Status.Outranks(highest) {
			highest = pr.Status
			if highest == StatusUrgent {
				break
			}
		}
	}
	return highest, highest.IsUrgent()
}

// PullsURL is the page listing the repository's pull requests.
func (r RepositoryInfo) PullsURL() string {
	if r.URL == "" {
		return ""
	}
	return strings.TrimSuffix(r.URL, "/") + "/pulls"
}

// Line formats the repository for display.
func (r RepositoryInfo) Line() string {
	return fmt.Sprintf("%s %s", r.Status.RepoSymbol(), r.Name)
}

// SortRepositories orders repositories by name, case-insensitively, with exact
// name as the tie-breaker so the order is deterministic.
func SortRepositories(repos []RepositoryInfo) {
	slices.SortFunc(repos, func(a, b RepositoryInfo) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
}

// HasPullRequests reports whether any repository has an open pull request.
func HasPullRequests(repos []RepositoryInfo) bool {
	for _, r := range repos {
		if len(r.PullRequests) > 0 {
			return true
		}
	}
	return false
}

// AnyUrgent reports whether any repository is urgent.
func AnyUrgent(repos []RepositoryInfo) bool {
	for _, r := range repos {
		if r.IsUrgent {
			return true
		}
	}
	return false
}

// Summary counts the pull requests that matter to the current user.
type Summary struct {
	ToReview  int
	Commented int
	Authored  int
}

// Summarize counts urgent, commented and authored pull requests.
func Summarize(repos []RepositoryInfo) Summary {
	var s Summary
	for _, r := range repos {
		for _, pr := range r.PullRequests {
			switch pr.Status {
			case StatusUrgent:
				s.ToReview++
			case StatusNeedsResponse:
				s.Commented++
			}
			if pr.IsAuthor {
				s.Authored++
			}
		}
	}
	return s
}

// Empty reports whether there is nothing to notify about.
func (s Summary) Empty() bool {
	return s.ToReview == 0 && s.Commented == 0 && s.Authored == 0
}

func (s Summary) String() string {
	var parts []string
	if s.ToReview > 0 {
		parts = append(parts, fmt.Sprintf("%s %d to review", StatusUrgent.Symbol(), s.ToReview))
	}
	if s.Commented > 0 {
		parts = append(parts, fmt.Sprintf("%s %d commented", StatusNeedsResponse.Symbol(), s.Commented))
	}
	if s.Authored > 0 {
		parts = append(parts, fmt.Sprintf("%s %d in progress", authorMark, s.Authored))
	}
	return strings.Join(parts, " · ")
}
