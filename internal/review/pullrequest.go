package review

import "fmt"

const (
	authorMark   = "👤"
	reviewerMark = "👁"
)

// PullRequestInfo is one classified pull request. Values are never mutated
// after construction.
type PullRequestInfo struct {
	Title     string
	URL       string
	ID        int
	IsDraft   bool
	IsAuthor  bool
	Reviewers ReviewersInfo
	Status    Status
}

// NewPullRequestInfo builds a PullRequestInfo and classifies it.
func NewPullRequestInfo(title, url string, id int, isDraft, isAuthor bool, reviewers ReviewersInfo) PullRequestInfo {
	return PullRequestInfo{
		Title:     title,
		URL:       url,
		ID:        id,
		IsDraft:   isDraft,
		IsAuthor:  isAuthor,
		Reviewers: reviewers,
		Status:    Classify(isDraft, isAuthor, reviewers),
	}
}

// Classify maps a pull request to its status. The first matching rule wins.
func Classify(isDraft, isAuthor bool, r ReviewersInfo) Status {
	switch {
	case isDraft:
		return StatusDraft
	case r.HasCurrentUserRequested:
		return StatusNeedsResponse
	case r.HasCurrentUserReviewed && (!isAuthor || r.IsMandatory):
		return StatusApproved
	case r.IsMandatory || (!isAuthor && r.NumberOfCompletedReviews < r.NumberOfRequestedReviewers):
		return StatusUrgent
	default:
		return StatusInformational
	}
}

// Line formats the pull request for display, e.g.
// "🔴   (1👁) [0 / 2] ➤ Fix flaky test".
func (p PullRequestInfo) Line() string {
	mark := "  "
	if p.IsAuthor {
		mark = authorMark
	}
	return fmt.Sprintf("%s%s (%d%s) [%d / %d] ➤ %s",
		p.Status.Symbol(), mark,
		p.Reviewers.NumberOfReviews, reviewerMark,
		p.Reviewers.NumberOfCompletedReviews, p.Reviewers.NumberOfRequestedReviewers,
		p.Title)
}
