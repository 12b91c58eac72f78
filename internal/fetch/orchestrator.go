// Package fetch runs refresh cycles: it lists the user's repositories, fans
// out one task per repository and one per open pull request, and assembles
// the results into an ordered snapshot.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marcin-skalski/pr-monitor/internal/github"
	"github.com/marcin-skalski/pr-monitor/internal/pool"
	"github.com/marcin-skalski/pr-monitor/internal/review"
	"github.com/marcin-skalski/pr-monitor/internal/worker"
)

// API is the GitHub client surface used by a refresh cycle.
type API interface {
	worker.API
	CurrentUser(ctx context.Context) (string, error)
	ListRepositories(ctx context.Context, filter string) ([]github.Repository, error)
	InvalidateRepositories()
	ListOpenPullRequests(ctx context.Context, owner, repo string) ([]github.PullRequest, error)
}

// ClientFactory builds an API client for a token.
type ClientFactory func(token string) API

// Snapshot is the result of one refresh cycle.
type Snapshot struct {
	Repositories []review.RepositoryInfo
	User         string
	FetchedAt    time.Time
	// Aborted is set when a newer cycle superseded this one. Its data is incomplete.
	Aborted bool
}

// Orchestrator owns the refresh cycle. Only one cycle runs at a time; starting
// a new one aborts the current one.
type Orchestrator struct {
	newClient ClientFactory
	pool      *pool.Pool
	logger    *slog.Logger
	now       func() time.Time

	clientMu sync.Mutex
	client   API
	token    string

	cycleMu sync.Mutex
	aborted atomic.Bool

	groupMu sync.Mutex
	group   *pool.Group
}

func New(newClient ClientFactory, p *pool.Pool, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		newClient: newClient,
		pool:      p,
		logger:    logger,
		now:       time.Now,
	}
}

// Abort marks the running cycle as superseded and stops its tasks that have
// not started. Requests already in flight run to completion and their
// results are discarded.
func (o *Orchestrator) Abort() {
	o.aborted.Store(true)
	o.groupMu.Lock()
	if o.group != nil {
		o.group.Cancel()
	}
	o.groupMu.Unlock()
}

// InvalidateCache drops the cached repository listing of the current client.
func (o *Orchestrator) InvalidateCache() {
	o.clientMu.Lock()
	defer o.clientMu.Unlock()
	if o.client != nil {
		o.client.InvalidateRepositories()
	}
}

// Wait blocks until every task of every cycle has returned.
func (o *Orchestrator) Wait() {
	o.pool.Wait()
}

func (o *Orchestrator) clientFor(token string) API {
	o.clientMu.Lock()
	defer o.clientMu.Unlock()
	if o.client == nil || o.token != token {
		o.client = o.newClient(token)
		o.token = token
	}
	return o.client
}

// Snapshot aborts any running cycle, then fetches every repository matching
// filter with its open pull requests. Repositories come back sorted by name.
//
// If GitHub rejects the token or cannot be reached, the partial snapshot is
// returned together with an error wrapping github.ErrUnauthorized or
// github.ErrUnreachable.
func (o *Orchestrator) Snapshot(ctx context.Context, token, filter string) (Snapshot, error) {
	o.Abort()
	o.cycleMu.Lock()
	defer o.cycleMu.Unlock()
	o.aborted.Store(false)

	start := o.now()
	api := o.clientFor(token)

	user, err := api.CurrentUser(ctx)
	if err != nil {
		return Snapshot{FetchedAt: start, Aborted: o.aborted.Load()}, err
	}

	repos, err := api.ListRepositories(ctx, filter)
	if err != nil {
		return Snapshot{User: user, FetchedAt: start, Aborted: o.aborted.Load()}, err
	}
	if o.aborted.Load() {
		return Snapshot{User: user, FetchedAt: start, Aborted: true}, nil
	}

	g := o.pool.Group(ctx)
	o.setGroup(g)
	defer o.setGroup(nil)
	if o.aborted.Load() {
		g.Cancel()
	}

	acc := newAccumulator()
	for _, repo := range repos {
		g.Go(func() error {
			return o.fetchRepository(ctx, g, api, repo, user, acc)
		})
	}
	err = g.Wait()

	snap := Snapshot{
		Repositories: acc.repositories(),
		User:         user,
		FetchedAt:    start,
		Aborted:      o.aborted.Load(),
	}

	o.logger.Info("refresh cycle finished",
		"repos", len(snap.Repositories),
		"prs", acc.pullRequestCount(),
		"aborted", snap.Aborted,
		"elapsed", o.now().Sub(start).Round(time.Millisecond))

	if err != nil {
		return snap, fmt.Errorf("refresh: %w", err)
	}
	return snap, nil
}

func (o *Orchestrator) setGroup(g *pool.Group) {
	o.groupMu.Lock()
	o.group = g
	o.groupMu.Unlock()
}

func (o *Orchestrator) fetchRepository(ctx context.Context, g *pool.Group, api API, repo github.Repository, user string, acc *accumulator) error {
	if o.aborted.Load() {
		return nil
	}
	logger := o.logger.With("repo", repo.FullName)

	prs, err := api.ListOpenPullRequests(ctx, repo.Owner, repo.Name)
	if err != nil {
		if github.IsFatal(err) || isContextErr(err) {
			return err
		}
		logger.Warn("failed to list pull requests", "error", err)
		prs = nil
	}

	acc.addRepository(repo)
	for _, pr := range prs {
		g.Go(func() error {
			return o.fetchPullRequest(ctx, api, repo, pr, user, acc)
		})
	}
	return nil
}

func (o *Orchestrator) fetchPullRequest(ctx context.Context, api API, repo github.Repository, pr github.PullRequest, user string, acc *accumulator) error {
	if o.aborted.Load() {
		return nil
	}
	info, err := worker.New(api, repo, pr, user, o.logger).Run(ctx)
	if err != nil {
		return err
	}
	if o.aborted.Load() {
		return nil
	}
	acc.addPullRequest(repo.FullName, info)
	return nil
}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
