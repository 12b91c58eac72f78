package fetch

import (
	"sync"

	"github.com/marcin-skalski/pr-monitor/internal/github"
	"github.com/marcin-skalski/pr-monitor/internal/review"
)

// accumulator collects results of one cycle. Tasks add to it in any order.
type accumulator struct {
	mu    sync.Mutex
	repos map[string]*repoResult
}

type repoResult struct {
	repo github.Repository
	prs  []review.PullRequestInfo
}

func newAccumulator() *accumulator {
	return &accumulator{repos: make(map[string]*repoResult)}
}

func (a *accumulator) addRepository(repo github.Repository) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.repos[repo.FullName]; !ok {
		a.repos[repo.FullName] = &repoResult{repo: repo}
	}
}

func (a *accumulator) addPullRequest(fullName string, pr review.PullRequestInfo) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if r, ok := a.repos[fullName]; ok {
		r.prs = append(r.prs, pr)
	}
}

func (a *accumulator) pullRequestCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	n := 0
	for _, r := range a.repos {
		n += len(r.prs)
	}
	return n
}

// repositories builds the sorted repository list.
func (a *accumulator) repositories() []review.RepositoryInfo {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]review.RepositoryInfo, 0, len(a.repos))
	for _, r := range a.repos {
		out = append(out, review.NewRepositoryInfo(r.repo.Name, r.repo.URL, r.prs))
	}
	review.SortRepositories(out)
	return out
}
