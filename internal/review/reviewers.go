package review

import (
	"slices"
	"strings"
	"time"
)

// Review states as reported by the GitHub reviews API.
const (
	ReviewApproved         = "APPROVED"
	ReviewChangesRequested = "CHANGES_REQUESTED"
	ReviewCommented        = "COMMENTED"
	ReviewDismissed        = "DISMISSED"
	ReviewPending          = "PENDING"
)

// Review is one submitted review on a pull request.
type Review struct {
	Login       string
	State       string
	SubmittedAt time.Time
}

// BranchProtection holds the review rules of a protected base branch.
type BranchProtection struct {
	RequiredApprovingReviewCount int
	DismissalUsers               []string
}

// ReviewInput is the raw data gathered for one pull request.
// Reviews are expected oldest first, the order the API returns them.
type ReviewInput struct {
	Reviews             []Review
	RequestedReviewers  []string
	Protection          *BranchProtection // nil when the base branch is unprotected
	Author              string
	MaintainerCanModify bool
	CurrentUser         string
}

// ReviewersInfo summarizes the review state of a pull request from the
// current user's point of view.
type ReviewersInfo struct {
	NumberOfReviews            int
	NumberOfCompletedReviews   int
	NumberOfRequestedReviewers int
	HasCurrentUserReviewed     bool
	HasCurrentUserRequested    bool
	MandatoryReviewers         []string
	IsMandatory                bool
}

// NewReviewersInfo aggregates raw review data. Logins compare case-insensitively.
//
// Every submitted review counts its author as a reviewer. A reviewer's verdict
// is their latest approving, changes-requesting or dismissed review; comments
// do not replace an earlier verdict.
func NewReviewersInfo(in ReviewInput) ReviewersInfo {
	me := strings.ToLower(in.CurrentUser)

	reviewers := make(map[string]struct{})
	verdicts := make(map[string]string)
	for _, r := range in.Reviews {
		login := strings.ToLower(r.Login)
		state := strings.ToUpper(r.State)
		if login == "" || state == "" || state == ReviewPending {
			continue
		}
		reviewers[login] = struct{}{}
		if state != ReviewCommented {
			verdicts[login] = state
		}
	}

	completed := 0
	for _, v := range verdicts {
		if v == ReviewApproved {
			completed++
		}
	}

	requested := len(in.RequestedReviewers)
	if in.Protection != nil && in.Protection.RequiredApprovingReviewCount > requested {
		requested = in.Protection.RequiredApprovingReviewCount
	}

	mandatory := mandatoryReviewers(in)
	_, reviewed := reviewers[me]

	return ReviewersInfo{
		NumberOfReviews:            len(reviewers),
		NumberOfCompletedReviews:   completed,
		NumberOfRequestedReviewers: requested,
		HasCurrentUserReviewed:     me != "" && reviewed,
		HasCurrentUserRequested:    me != "" && verdicts[me] == ReviewChangesRequested,
		MandatoryReviewers:         mandatory,
		IsMandatory:                me != "" && slices.ContainsFunc(mandatory, func(l string) bool { return strings.EqualFold(l, me) }),
	}
}

func mandatoryReviewers(in ReviewInput) []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(login string) {
		key := strings.ToLower(login)
		if key == "" {
			return
		}
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, login)
	}

	if in.Protection != nil {
		for _, u := range in.Protection.DismissalUsers {
			add(u)
		}
	}
	if in.MaintainerCanModify {
		add(in.Author)
	}
	for _, u := range in.RequestedReviewers {
		add(u)
	}

	slices.SortFunc(out, func(a, b string) int {
		return strings.Compare(strings.ToLower(a), strings.ToLower(b))
	})
	return out
}
