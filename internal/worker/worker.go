package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/marcin-skalski/pr-monitor/internal/github"
	"github.com/marcin-skalski/pr-monitor/internal/review"
)

// API is the part of the GitHub client a worker needs.
type API interface {
	ListReviews(ctx context.Context, owner, repo string, number int) ([]review.Review, error)
	ListRequestedReviewers(ctx context.Context, owner, repo string, number int) ([]string, error)
	BranchProtection(ctx context.Context, owner, repo, branch string) (*review.BranchProtection, error)
}

type Worker struct {
	api         API
	repo        github.Repository
	pr          github.PullRequest
	currentUser string
	logger      *slog.Logger
}

func New(api API, repo github.Repository, pr github.PullRequest, currentUser string, logger *slog.Logger) *Worker {
	return &Worker{
		api:         api,
		repo:        repo,
		pr:          pr,
		currentUser: currentUser,
		logger:      logger.With("pr", pr.Number, "repo", repo.Owner+"/"+repo.Name),
	}
}

// Run gathers the review data of one pull request and classifies it. A
// resource that fails to load is treated as empty; only unauthorized and
// unreachable errors are returned.
func (w *Worker) Run(ctx context.Context) (review.PullRequestInfo, error) {
	reviews, err := w.api.ListReviews(ctx, w.repo.Owner, w.repo.Name, w.pr.Number)
	if err != nil {
		if err := w.check("reviews", err); err != nil {
			return review.PullRequestInfo{}, err
		}
		reviews = nil
	}

	requested, err := w.api.ListRequestedReviewers(ctx, w.repo.Owner, w.repo.Name, w.pr.Number)
	if err != nil {
		if err := w.check("requested reviewers", err); err != nil {
			return review.PullRequestInfo{}, err
		}
		requested = nil
	}

	var protection *review.BranchProtection
	if w.pr.BaseBranch != "" {
		protection, err = w.api.BranchProtection(ctx, w.repo.Owner, w.repo.Name, w.pr.BaseBranch)
		if err != nil {
			if err := w.check("branch protection", err); err != nil {
				return review.PullRequestInfo{}, err
			}
			protection = nil
		}
	}

	reviewers := review.NewReviewersInfo(review.ReviewInput{
		Reviews:             reviews,
		RequestedReviewers:  requested,
		Protection:          protection,
		Author:              w.pr.Author,
		MaintainerCanModify: w.pr.MaintainerCanModify,
		CurrentUser:         w.currentUser,
	})

	isAuthor := w.currentUser != "" && strings.EqualFold(w.pr.Author, w.currentUser)
	info := review.NewPullRequestInfo(w.pr.Title, w.pr.URL, w.pr.Number, w.pr.Draft, isAuthor, reviewers)

	w.logger.Debug("classified pull request",
		"status", info.Status.String(),
		"reviews", reviewers.NumberOfReviews,
		"completed", reviewers.NumberOfCompletedReviews,
		"requested", reviewers.NumberOfRequestedReviewers)
	return info, nil
}

// check returns err wrapped when it must abort the worker and logs it otherwise.
func (w *Worker) check(resource string, err error) error {
	if github.IsFatal(err) || ctxErr(err) {
		return fmt.Errorf("fetch %s: %w", resource, err)
	}
	w.logger.Warn("failed to fetch, using empty value", "resource", resource, "error", err)
	return nil
}

func ctxErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
