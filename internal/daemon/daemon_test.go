package daemon

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marcin-skalski/pr-monitor/internal/config"
	"github.com/marcin-skalski/pr-monitor/internal/credentials"
	"github.com/marcin-skalski/pr-monitor/internal/fetch"
	"github.com/marcin-skalski/pr-monitor/internal/github"
	"github.com/marcin-skalski/pr-monitor/internal/pool"
	"github.com/marcin-skalski/pr-monitor/internal/review"
	"github.com/marcin-skalski/pr-monitor/internal/settings"
	"github.com/marcin-skalski/pr-monitor/internal/tui"
)

type fakeFetcher struct {
	mu          sync.Mutex
	snap        fetch.Snapshot
	err         error
	calls       []string // filters
	tokens      []string
	aborts      int
	invalidates int
	waits       int
	// abortedCalls is how many leading calls report an aborted cycle.
	abortedCalls int
	onSnapshot   func()
}

func (f *fakeFetcher) Snapshot(_ context.Context, token, filter string) (fetch.Snapshot, error) {
	if f.onSnapshot != nil {
		f.onSnapshot()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, filter)
	f.tokens = append(f.tokens, token)
	snap := f.snap
	if len(f.calls) <= f.abortedCalls {
		snap.Aborted = true
	}
	return snap, f.err
}

func (f *fakeFetcher) Abort() {
	f.mu.Lock()
	f.aborts++
	f.mu.Unlock()
}

func (f *fakeFetcher) InvalidateCache() {
	f.mu.Lock()
	f.invalidates++
	f.mu.Unlock()
}

func (f *fakeFetcher) Wait() {
	f.mu.Lock()
	f.waits++
	f.mu.Unlock()
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeTokens struct {
	mu    sync.Mutex
	token string
	err   error
}

func (f *fakeTokens) Token() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.token, f.err
}

func (f *fakeTokens) SetToken(token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = token
	return nil
}

func urgentSnapshot() fetch.Snapshot {
	pr := review.NewPullRequestInfo("Fix login", "https://github.com/acme/api/pull/3", 3, false, false,
		review.ReviewersInfo{NumberOfRequestedReviewers: 1, IsMandatory: true})
	return fetch.Snapshot{
		User:      "me",
		FetchedAt: time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC),
		Repositories: []review.RepositoryInfo{
			review.NewRepositoryInfo("api", "https://github.com/acme/api", []review.PullRequestInfo{pr}),
			review.NewRepositoryInfo("docs", "https://github.com/acme/docs", nil),
		},
	}
}

func newTestDaemon(t *testing.T, f *fakeFetcher, tokens *fakeTokens, opts ...Option) (*Daemon, *settings.Store) {
	t.Helper()
	store, err := settings.Open(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	cfg, err := config.Load("")
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(cfg, f, tokens, store, logger, opts...), store
}

func refreshNow(d *Daemon) {
	d.startRefresh(context.Background())
	d.wg.Wait()
}

func TestRefreshPublishesSnapshot(t *testing.T) {
	f := &fakeFetcher{snap: urgentSnapshot()}
	d, _ := newTestDaemon(t, f, &fakeTokens{token: "tok"})

	refreshNow(d)
	snap := d.GetSnapshot()

	assert.Equal(t, tui.StateUrgent, snap.State)
	assert.Equal(t, "me", snap.User)
	require.Len(t, snap.Repos, 2)
	assert.Equal(t, "🟥 api", snap.Repos[0].Line)
	assert.Equal(t, "https://github.com/acme/api/pulls", snap.Repos[0].URL)
	require.Len(t, snap.Repos[0].PRs, 1)
	assert.Equal(t, "https://github.com/acme/api/pull/3", snap.Repos[0].PRs[0].URL)
	assert.Equal(t, "🔴   (0👁) [0 / 1] ➤ Fix login", snap.Repos[0].PRs[0].Line)
	assert.Equal(t, "🔴 1 to review", snap.Summary)
	assert.Equal(t, 5*time.Minute, snap.RefreshInterval)
	assert.Equal(t, []string{"tok"}, f.tokens)
}

func TestRefreshStates(t *testing.T) {
	tests := []struct {
		name  string
		snap  fetch.Snapshot
		err   error
		token string
		want  tui.AppState
	}{
		{name: "no token", want: tui.StateInvalidCredentials},
		{name: "unauthorized", token: "tok", err: fmt.Errorf("refresh: %w", github.ErrUnauthorized), want: tui.StateInvalidCredentials},
		{name: "unreachable", token: "tok", err: fmt.Errorf("refresh: %w", github.ErrUnreachable), want: tui.StateNetworkError},
		{name: "no pull requests", token: "tok", snap: fetch.Snapshot{Repositories: []review.RepositoryInfo{review.NewRepositoryInfo("a", "", nil)}}, want: tui.StateNormal},
		{name: "nothing to do", token: "tok", snap: fetch.Snapshot{Repositories: []review.RepositoryInfo{
			review.NewRepositoryInfo("a", "", []review.PullRequestInfo{{ID: 1, Status: review.StatusApproved}}),
		}}, want: tui.StateNoActionNeeded},
		{name: "other error uses data", token: "tok", snap: urgentSnapshot(), err: errors.New("boom"), want: tui.StateUrgent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeFetcher{snap: tt.snap, err: tt.err}
			d, _ := newTestDaemon(t, f, &fakeTokens{token: tt.token})
			refreshNow(d)
			assert.Equal(t, tt.want, d.GetSnapshot().State)
			if tt.token == "" {
				assert.Zero(t, f.callCount(), "no fetch without a token")
			}
		})
	}
}

func TestFatalErrorKeepsPreviousData(t *testing.T) {
	f := &fakeFetcher{snap: urgentSnapshot()}
	d, _ := newTestDaemon(t, f, &fakeTokens{token: "tok"})
	refreshNow(d)

	f.mu.Lock()
	f.snap = fetch.Snapshot{}
	f.err = fmt.Errorf("refresh: %w", github.ErrUnreachable)
	f.mu.Unlock()
	refreshNow(d)

	snap := d.GetSnapshot()
	assert.Equal(t, tui.StateNetworkError, snap.State)
	assert.Len(t, snap.Repos, 2)
	assert.NotEmpty(t, snap.Error)
}

func TestAbortedSnapshotIsRetried(t *testing.T) {
	f := &fakeFetcher{snap: urgentSnapshot(), abortedCalls: 1}
	d, _ := newTestDaemon(t, f, &fakeTokens{token: "tok"})

	refreshNow(d)
	assert.Equal(t, 2, f.callCount())
	snap := d.GetSnapshot()
	assert.Equal(t, tui.StateUrgent, snap.State)
	assert.Len(t, snap.Repos, 1)
}

func TestSupersededAbortedSnapshotIsDiscarded(t *testing.T) {
	f := &fakeFetcher{snap: urgentSnapshot(), abortedCalls: 1}
	d, _ := newTestDaemon(t, f, &fakeTokens{token: "tok"})
	f.onSnapshot = func() {
		d.mu.Lock()
		d.generation++
		d.mu.Unlock()
	}

	refreshNow(d)
	assert.Equal(t, 1, f.callCount())
	snap := d.GetSnapshot()
	assert.Equal(t, tui.StateRefreshing, snap.State)
	assert.Empty(t, snap.Repos)
}

// blockingTokens blocks the first Token call until release is closed.
type blockingTokens struct {
	fakeTokens
	first   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (b *blockingTokens) Token() (string, error) {
	if b.first.CompareAndSwap(false, true) {
		close(b.entered)
		<-b.release
	}
	return b.fakeTokens.Token()
}

type staticAPI struct{}

func (staticAPI) CurrentUser(context.Context) (string, error) { return "me", nil }

func (staticAPI) ListRepositories(context.Context, string) ([]github.Repository, error) {
	return []github.Repository{{Owner: "acme", Name: "api", FullName: "acme/api", URL: "https://github.com/acme/api"}}, nil
}

func (staticAPI) InvalidateRepositories() {}

func (staticAPI) ListOpenPullRequests(context.Context, string, string) ([]github.PullRequest, error) {
	return []github.PullRequest{{Number: 3, Title: "Fix login", URL: "https://github.com/acme/api/pull/3", Author: "alice", BaseBranch: "main"}}, nil
}

func (staticAPI) ListReviews(context.Context, string, string, int) ([]review.Review, error) {
	return nil, nil
}

func (staticAPI) ListRequestedReviewers(context.Context, string, string, int) ([]string, error) {
	return nil, nil
}

func (staticAPI) BranchProtection(context.Context, string, string, string) (*review.BranchProtection, error) {
	return nil, nil
}

func TestDelayedOlderRefreshDoesNotAbortNewest(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orchestrator := fetch.New(func(string) fetch.API { return staticAPI{} }, pool.New(4), logger)
	tokens := &blockingTokens{
		fakeTokens: fakeTokens{token: "tok"},
		entered:    make(chan struct{}),
		release:    make(chan struct{}),
	}
	store, err := settings.Open(filepath.Join(t.TempDir(), "config.json"))
	require.NoError(t, err)
	cfg, err := config.Load("")
	require.NoError(t, err)
	d := New(cfg, orchestrator, tokens, store, logger)

	ctx := context.Background()
	d.startRefresh(ctx)
	<-tokens.entered
	d.startRefresh(ctx)
	close(tokens.release)
	d.wg.Wait()
	orchestrator.Wait()

	snap := d.GetSnapshot()
	assert.Equal(t, tui.StateNoActionNeeded, snap.State)
	require.Len(t, snap.Repos, 1)
	assert.Equal(t, "api", snap.Repos[0].Name)
	assert.Len(t, snap.Repos[0].PRs, 1)
}

func TestStalePublishIsDiscarded(t *testing.T) {
	d, _ := newTestDaemon(t, &fakeFetcher{}, &fakeTokens{token: "tok"})
	d.mu.Lock()
	d.generation = 2
	d.mu.Unlock()

	stale := urgentSnapshot()
	d.publish(1, tui.StateUrgent, &stale, "")
	assert.Empty(t, d.GetSnapshot().Repos)

	d.publish(2, tui.StateUrgent, &stale, "")
	assert.Len(t, d.GetSnapshot().Repos, 2)
}

func TestRefreshInvalidatesCache(t *testing.T) {
	f := &fakeFetcher{}
	d, _ := newTestDaemon(t, f, &fakeTokens{token: "tok"})

	d.Refresh()
	assert.Len(t, d.refreshCh, 1)
	d.Refresh()
	assert.Len(t, d.refreshCh, 1, "pending refreshes coalesce")

	<-d.refreshCh
	refreshNow(d)
	assert.Equal(t, 1, f.invalidates)

	refreshNow(d)
	assert.Equal(t, 1, f.invalidates, "timer refreshes reuse the cache")
}

func TestSetToken(t *testing.T) {
	tokens := &fakeTokens{}
	d, _ := newTestDaemon(t, &fakeFetcher{}, tokens)

	assert.ErrorIs(t, d.SetToken("   "), credentials.ErrEmptyToken)
	assert.ErrorIs(t, d.SetToken("ghp a"), credentials.ErrMalformedToken)
	assert.Empty(t, d.refreshCh)

	require.NoError(t, d.SetToken(" ghp_new \n"))
	assert.Equal(t, "ghp_new", tokens.token)
	assert.Len(t, d.refreshCh, 1)
	assert.True(t, d.forceReload.Load())
}

func TestSetRefreshInterval(t *testing.T) {
	d, store := newTestDaemon(t, &fakeFetcher{}, &fakeTokens{})

	assert.ErrorIs(t, d.SetRefreshInterval("0"), settings.ErrInvalidRefreshInterval)
	assert.ErrorIs(t, d.SetRefreshInterval("abc"), settings.ErrInvalidRefreshInterval)
	assert.Empty(t, d.intervalCh)

	require.NoError(t, d.SetRefreshInterval("3"))
	iv, ok := store.RefreshInterval()
	require.True(t, ok)
	assert.Equal(t, 3*time.Minute, iv)
	assert.Equal(t, 3*time.Minute, d.GetSnapshot().RefreshInterval)
	assert.Len(t, d.intervalCh, 1)
	assert.Len(t, d.refreshCh, 1)
}

func TestFilterOverride(t *testing.T) {
	f := &fakeFetcher{}
	d, store := newTestDaemon(t, f, &fakeTokens{token: "tok"}, WithFilterOverride("cli"))
	require.NoError(t, store.SetRepoSearchFilter("api"))

	refreshNow(d)
	assert.Equal(t, "cli", d.GetSnapshot().Filter)

	require.NoError(t, d.SetRepoSearchFilter("Web"))
	refreshNow(d)
	assert.Equal(t, "web", d.GetSnapshot().Filter)
	assert.Equal(t, []string{"cli", "web"}, f.calls)
}

func TestNotify(t *testing.T) {
	d, _ := newTestDaemon(t, &fakeFetcher{snap: urgentSnapshot()}, &fakeTokens{token: "tok"})

	d.notify()
	assert.Empty(t, d.GetSnapshot().Notice, "nothing to say before the first refresh")

	refreshNow(d)
	d.notify()
	assert.Contains(t, d.GetSnapshot().Notice, "🔴 1 to review")
}

func TestRunStopsCleanly(t *testing.T) {
	f := &fakeFetcher{snap: urgentSnapshot()}
	d, _ := newTestDaemon(t, f, &fakeTokens{token: "tok"})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	require.Eventually(t, func() bool {
		return d.GetSnapshot().State == tui.StateUrgent
	}, time.Second, 5*time.Millisecond)

	d.Refresh()
	require.Eventually(t, func() bool { return f.callCount() >= 2 }, time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, 1, f.aborts)
	assert.Equal(t, 1, f.waits)
}
