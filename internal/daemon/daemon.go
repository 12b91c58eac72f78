package daemon

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marcin-skalski/pr-monitor/internal/config"
	"github.com/marcin-skalski/pr-monitor/internal/credentials"
	"github.com/marcin-skalski/pr-monitor/internal/fetch"
	"github.com/marcin-skalski/pr-monitor/internal/github"
	"github.com/marcin-skalski/pr-monitor/internal/review"
	"github.com/marcin-skalski/pr-monitor/internal/settings"
	"github.com/marcin-skalski/pr-monitor/internal/tui"
)

// Fetcher produces snapshots; *fetch.Orchestrator implements it.
type Fetcher interface {
	Snapshot(ctx context.Context, token, filter string) (fetch.Snapshot, error)
	Abort()
	InvalidateCache()
	Wait()
}

// TokenStore holds the GitHub token.
type TokenStore interface {
	Token() (string, error)
	SetToken(token string) error
}

// SettingsStore holds the persisted user preferences.
type SettingsStore interface {
	RepoSearchFilter() string
	SetRepoSearchFilter(filter string) error
	RefreshInterval() (time.Duration, bool)
	SetRefreshInterval(d time.Duration) error
}

type Option func(*Daemon)

// WithFilterOverride replaces the persisted repository filter for this session.
func WithFilterOverride(filter string) Option {
	return func(d *Daemon) {
		d.filterOverride = &filter
	}
}

type Daemon struct {
	cfg      *config.Config
	fetcher  Fetcher
	tokens   TokenStore
	settings SettingsStore
	logger   *slog.Logger

	refreshCh   chan struct{}
	intervalCh  chan struct{}
	forceReload atomic.Bool
	wg          sync.WaitGroup

	mu             sync.Mutex
	generation     uint64
	state          tui.AppState
	snap           fetch.Snapshot
	lastErr        string
	notice         string
	filterOverride *string
}

func New(cfg *config.Config, fetcher Fetcher, tokens TokenStore, store SettingsStore, logger *slog.Logger, opts ...Option) *Daemon {
	d := &Daemon{
		cfg:        cfg,
		fetcher:    fetcher,
		tokens:     tokens,
		settings:   store,
		logger:     logger,
		refreshCh:  make(chan struct{}, 1),
		intervalCh: make(chan struct{}, 1),
		state:      tui.StateRefreshing,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Daemon) Run(ctx context.Context) error {
	interval := d.refreshInterval()
	d.logger.Info("daemon started",
		"refresh_interval", interval,
		"notification_interval", d.cfg.NotificationInterval,
		"filter", d.filter())

	// Initial refresh
	d.startRefresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	notifyTicker := time.NewTicker(d.cfg.NotificationInterval)
	defer notifyTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("shutting down, waiting for refreshes")
			d.fetcher.Abort()
			d.wg.Wait()
			d.fetcher.Wait()
			d.logger.Info("all fetches stopped")
			return nil
		case <-ticker.C:
			d.startRefresh(ctx)
		case <-d.refreshCh:
			d.startRefresh(ctx)
		case <-d.intervalCh:
			interval = d.refreshInterval()
			ticker.Reset(interval)
			d.logger.Info("refresh interval changed", "interval", interval)
		case <-notifyTicker.C:
			d.notify()
		}
	}
}

// Refresh requests a refresh that also re-lists repositories.
func (d *Daemon) Refresh() {
	d.forceReload.Store(true)
	d.requestRefresh()
}

func (d *Daemon) requestRefresh() {
	select {
	case d.refreshCh <- struct{}{}:
	default:
		// one is already pending
	}
}

func (d *Daemon) startRefresh(ctx context.Context) {
	if d.forceReload.Swap(false) {
		d.fetcher.InvalidateCache()
	}

	d.mu.Lock()
	d.generation++
	gen := d.generation
	d.state = tui.StateRefreshing
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.refresh(ctx, gen)
	}()
}

func (d *Daemon) refresh(ctx context.Context, gen uint64) {
	token, err := d.tokens.Token()
	if err != nil {
		d.logger.Error("read token failed", "err", err)
	}
	if token == "" {
		d.publish(gen, tui.StateInvalidCredentials, nil, "no GitHub token stored")
		return
	}

	start := time.Now()
	var snap fetch.Snapshot
	for {
		// A refresh that lost the race to a newer one must not start a
		// cycle, or it would abort the newer cycle.
		if !d.isCurrent(gen) {
			d.logger.Debug("discarding superseded refresh", "generation", gen)
			return
		}
		snap, err = d.fetcher.Snapshot(ctx, token, d.filter())
		if ctx.Err() != nil {
			return
		}
		if !snap.Aborted {
			break
		}
		if !d.isCurrent(gen) {
			d.logger.Debug("discarding superseded refresh", "generation", gen)
			return
		}
		d.logger.Debug("refresh aborted by an older cycle, restarting", "generation", gen)
	}

	switch {
	case errors.Is(err, github.ErrUnauthorized):
		d.logger.Warn("github rejected the token", "err", err)
		d.publish(gen, tui.StateInvalidCredentials, nil, err.Error())
	case errors.Is(err, github.ErrUnreachable):
		d.logger.Warn("github unreachable", "err", err)
		d.publish(gen, tui.StateNetworkError, nil, err.Error())
	case err != nil:
		d.logger.Error("refresh failed", "err", err)
		d.publish(gen, stateFor(snap.Repositories), &snap, err.Error())
	default:
		d.logger.Info("refresh finished", "repos", len(snap.Repositories), "elapsed", time.Since(start).Round(time.Millisecond))
		d.publish(gen, stateFor(snap.Repositories), &snap, "")
	}
}

func (d *Daemon) isCurrent(gen uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return gen == d.generation
}

func stateFor(repos []review.RepositoryInfo) tui.AppState {
	switch {
	case review.AnyUrgent(repos):
		return tui.StateUrgent
	case !review.HasPullRequests(repos):
		return tui.StateNormal
	default:
		return tui.StateNoActionNeeded
	}
}

// publish installs the outcome of refresh gen unless a newer refresh started.
// A nil snap keeps the previous data on screen.
func (d *Daemon) publish(gen uint64, state tui.AppState, snap *fetch.Snapshot, errMsg string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if gen != d.generation {
		d.logger.Debug("discarding stale refresh", "generation", gen, "current", d.generation)
		return
	}
	d.state = state
	d.lastErr = errMsg
	if snap == nil {
		return
	}
	d.snap = *snap

	for _, r := range snap.Repositories {
		if len(r.PullRequests) == 0 {
			continue
		}
		d.logger.Debug(r.Line(), "repo", r.Name, "prs", len(r.PullRequests), "urgent", r.IsUrgent)
		for _, pr := range r.PullRequests {
			d.logger.Debug(pr.Line(), "repo", r.Name, "pr", pr.ID, "status", pr.Status.String())
		}
	}
	if s := review.Summarize(snap.Repositories); !s.Empty() {
		d.logger.Info("snapshot updated", "state", state.String(), "summary", s.String())
	} else {
		d.logger.Info("snapshot updated", "state", state.String())
	}
}

func (d *Daemon) notify() {
	d.mu.Lock()
	summary := review.Summarize(d.snap.Repositories)
	d.mu.Unlock()

	if summary.Empty() {
		return
	}
	d.logger.Info("pull request status",
		"to_review", summary.ToReview,
		"commented", summary.Commented,
		"in_progress", summary.Authored)

	d.mu.Lock()
	d.notice = time.Now().Format("15:04") + " " + summary.String()
	d.mu.Unlock()
}

// SetToken validates and stores a new token, then refreshes.
func (d *Daemon) SetToken(input string) error {
	token, err := credentials.ValidateToken(input)
	if err != nil {
		return err
	}
	if err := d.tokens.SetToken(token); err != nil {
		return err
	}
	d.logger.Info("token updated", "token", github.MaskToken(token))
	d.Refresh()
	return nil
}

// SetRepoSearchFilter stores the filter, lowercased, and refreshes. An empty
// filter shows every repository. It replaces any session override.
func (d *Daemon) SetRepoSearchFilter(filter string) error {
	if err := d.settings.SetRepoSearchFilter(filter); err != nil {
		return err
	}
	d.mu.Lock()
	d.filterOverride = nil
	d.mu.Unlock()
	d.logger.Info("repository filter updated", "filter", d.filter())
	d.requestRefresh()
	return nil
}

// SetRefreshInterval takes whole minutes as typed by the user.
func (d *Daemon) SetRefreshInterval(minutes string) error {
	interval, err := settings.ParseRefreshMinutes(minutes)
	if err != nil {
		return err
	}
	if err := d.settings.SetRefreshInterval(interval); err != nil {
		return err
	}
	select {
	case d.intervalCh <- struct{}{}:
	default:
	}
	d.requestRefresh()
	return nil
}

func (d *Daemon) filter() string {
	d.mu.Lock()
	override := d.filterOverride
	d.mu.Unlock()
	if override != nil {
		return *override
	}
	return d.settings.RepoSearchFilter()
}

func (d *Daemon) refreshInterval() time.Duration {
	if iv, ok := d.settings.RefreshInterval(); ok {
		return iv
	}
	return d.cfg.RefreshInterval
}

func (d *Daemon) GetSnapshot() tui.Snapshot {
	filter := d.filter()
	interval := d.refreshInterval()

	d.mu.Lock()
	snap := d.snap
	state := d.state
	lastErr := d.lastErr
	notice := d.notice
	d.mu.Unlock()

	repos := make([]tui.RepoState, 0, len(snap.Repositories))
	for _, r := range snap.Repositories {
		prs := make([]tui.PRState, 0, len(r.PullRequests))
		for _, pr := range r.PullRequests {
			prs = append(prs, tui.PRState{
				Number: pr.ID,
				Title:  pr.Title,
				Line:   pr.Line(),
				URL:    pr.URL,
				Status: pr.Status.String(),
			})
		}
		repos = append(repos, tui.RepoState{
			Name:   r.Name,
			Line:   r.Line(),
			URL:    r.PullsURL(),
			Urgent: r.IsUrgent,
			PRs:    prs,
		})
	}

	return tui.Snapshot{
		Timestamp:       time.Now(),
		LastUpdate:      snap.FetchedAt,
		State:           state,
		User:            snap.User,
		Repos:           repos,
		Filter:          filter,
		RefreshInterval: interval,
		Summary:         review.Summarize(snap.Repositories).String(),
		Notice:          notice,
		Error:           lastErr,
	}
}
