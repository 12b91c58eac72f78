// Package github talks to the GitHub REST API on behalf of the authenticated user.
package github

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gh "github.com/google/go-github/v71/github"
	"golang.org/x/oauth2"

	"github.com/marcin-skalski/pr-monitor/internal/cache"
	"github.com/marcin-skalski/pr-monitor/internal/review"
)

const (
	perPage         = 100
	defaultCacheTTL = time.Hour
	defaultTimeout  = 30 * time.Second
)

// Repository is a repository the user can see.
type Repository struct {
	Owner    string
	Name     string
	FullName string
	URL      string
}

// PullRequest is an open pull request as listed by the API.
type PullRequest struct {
	Number              int
	Title               string
	URL                 string
	Author              string
	BaseBranch          string
	Draft               bool
	MaintainerCanModify bool
}

// Client is a GitHub API client bound to one token.
type Client struct {
	api    *gh.Client
	logger *slog.Logger

	baseURL       string
	httpClient    *http.Client
	retryAttempts uint
	retryDelay    time.Duration
	cacheTTL      time.Duration
	timeout       time.Duration

	repos *cache.Cache[string, []Repository]

	userMu sync.Mutex
	user   string
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithBaseURL points the client at a different API root, e.g. GitHub Enterprise or a test server.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets the HTTP client whose transport carries the requests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithRetry configures retries of rate-limited and server-error responses.
func WithRetry(attempts uint, delay time.Duration) Option {
	return func(c *Client) {
		c.retryAttempts = attempts
		c.retryDelay = delay
	}
}

// WithCacheTTL sets how long repository listings are cached.
func WithCacheTTL(ttl time.Duration) Option {
	return func(c *Client) {
		c.cacheTTL = ttl
	}
}

// WithTimeout bounds every HTTP request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
	}
}

// NewClient creates a client authenticating with token.
func NewClient(token string, opts ...Option) *Client {
	c := &Client{
		logger:        slog.Default(),
		retryAttempts: defaultRetryAttempts,
		retryDelay:    defaultRetryDelay,
		cacheTTL:      defaultCacheTTL,
		timeout:       defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}

	base := http.DefaultTransport
	if c.httpClient != nil && c.httpClient.Transport != nil {
		base = c.httpClient.Transport
	}
	transport := &RetryTransport{
		Base:     base,
		Attempts: c.retryAttempts,
		Delay:    c.retryDelay,
		Logger:   c.logger,
	}

	hc := &http.Client{Transport: transport, Timeout: c.timeout}
	if token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, hc)
		hc = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
		hc.Timeout = c.timeout
	}

	c.api = gh.NewClient(hc)
	if c.baseURL != "" {
		if u, err := parseBaseURL(c.baseURL); err != nil {
			c.logger.Warn("ignoring invalid api url", "url", c.baseURL, "error", err)
		} else {
			c.api.BaseURL = u
		}
	}

	c.repos = cache.New[string, []Repository](c.cacheTTL)

	c.logger.Debug("github client created", "api", c.api.BaseURL.String(), "token", MaskToken(token))
	return c
}

func parseBaseURL(raw string) (*url.URL, error) {
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("missing scheme or host")
	}
	return u, nil
}

// MaskToken hides all but the last four characters of a token.
func MaskToken(token string) string {
	if token == "" {
		return ""
	}
	if len(token) <= 4 {
		return "****"
	}
	return "****" + token[len(token)-4:]
}

// CurrentUser returns the login of the authenticated user. The result is
// remembered for the lifetime of the client.
func (c *Client) CurrentUser(ctx context.Context) (string, error) {
	c.userMu.Lock()
	defer c.userMu.Unlock()
	if c.user != "" {
		return c.user, nil
	}

	u, _, err := c.api.Users.Get(ctx, "")
	if err != nil {
		return "", classify("get current user", err)
	}
	c.user = u.GetLogin()
	return c.user, nil
}

// ListRepositories returns every repository the user owns, collaborates on or
// can see through an organization, whose name contains filter
// (case-insensitive). Results are cached per filter.
func (c *Client) ListRepositories(ctx context.Context, filter string) ([]Repository, error) {
	filter = strings.ToLower(filter)
	key := repoCacheKey(filter)
	if repos, ok := c.repos.Get(key); ok {
		c.logger.Debug("repository list cache hit", "key", key, "count", len(repos))
		return repos, nil
	}

	opts := &gh.RepositoryListByAuthenticatedUserOptions{
		Type:        "all",
		ListOptions: gh.ListOptions{PerPage: perPage},
	}
	var repos []Repository
	for {
		page, resp, err := c.api.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, classify("list repositories", err)
		}
		for _, r := range page {
			if filter != "" && !strings.Contains(strings.ToLower(r.GetName()), filter) {
				continue
			}
			repos = append(repos, Repository{
				Owner:    r.GetOwner().GetLogin(),
				Name:     r.GetName(),
				FullName: r.GetFullName(),
				URL:      r.GetHTMLURL(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	c.repos.Set(key, repos)
	c.logger.Debug("listed repositories", "key", key, "count", len(repos))
	return repos, nil
}

// InvalidateRepositories drops every cached repository listing.
func (c *Client) InvalidateRepositories() {
	c.repos.Clear()
}

func repoCacheKey(filter string) string {
	if filter == "" {
		return "repos_all"
	}
	return "repos_" + filter
}

// ListOpenPullRequests returns every open pull request of owner/repo.
func (c *Client) ListOpenPullRequests(ctx context.Context, owner, repo string) ([]PullRequest, error) {
	opts := &gh.PullRequestListOptions{
		State:       "open",
		ListOptions: gh.ListOptions{PerPage: perPage},
	}
	var prs []PullRequest
	for {
		page, resp, err := c.api.PullRequests.List(ctx, owner, repo, opts)
		if err != nil {
			return nil, classify(fmt.Sprintf("list pull requests of %s/%s", owner, repo), err)
		}
		for _, p := range page {
			prs = append(prs, PullRequest{
				Number:              p.GetNumber(),
				Title:               p.GetTitle(),
				URL:                 p.GetHTMLURL(),
				Author:              p.GetUser().GetLogin(),
				BaseBranch:          p.GetBase().GetRef(),
				Draft:               p.GetDraft(),
				MaintainerCanModify: p.GetMaintainerCanModify(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return prs, nil
}

// ListReviews returns the submitted reviews of a pull request, oldest first.
func (c *Client) ListReviews(ctx context.Context, owner, repo string, number int) ([]review.Review, error) {
	opts := &gh.ListOptions{PerPage: perPage}
	var reviews []review.Review
	for {
		page, resp, err := c.api.PullRequests.ListReviews(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, classify(fmt.Sprintf("list reviews of %s/%s#%d", owner, repo, number), err)
		}
		for _, r := range page {
			reviews = append(reviews, review.Review{
				Login:       r.GetUser().GetLogin(),
				State:       r.GetState(),
				SubmittedAt: r.GetSubmittedAt().Time,
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return reviews, nil
}

// ListRequestedReviewers returns the logins of users whose review is still requested.
// Requested teams are not included.
func (c *Client) ListRequestedReviewers(ctx context.Context, owner, repo string, number int) ([]string, error) {
	opts := &gh.ListOptions{PerPage: perPage}
	var logins []string
	for {
		reviewers, resp, err := c.api.PullRequests.ListReviewers(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, classify(fmt.Sprintf("list requested reviewers of %s/%s#%d", owner, repo, number), err)
		}
		for _, u := range reviewers.Users {
			logins = append(logins, u.GetLogin())
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return logins, nil
}

// BranchProtection returns the review rules of a branch, or nil when the
// branch is not protected or the token may not read its protection.
func (c *Client) BranchProtection(ctx context.Context, owner, repo, branch string) (*review.BranchProtection, error) {
	protection, _, err := c.api.Repositories.GetBranchProtection(ctx, owner, repo, branch)
	if err != nil {
		if errors.Is(err, gh.ErrBranchNotProtected) {
			return nil, nil
		}
		switch statusCode(err) {
		case http.StatusNotFound, http.StatusForbidden:
			c.logger.Debug("branch protection not readable", "repo", owner+"/"+repo, "branch", branch, "error", err)
			return nil, nil
		}
		return nil, classify(fmt.Sprintf("get branch protection of %s/%s@%s", owner, repo, branch), err)
	}

	rules := protection.GetRequiredPullRequestReviews()
	if rules == nil {
		return nil, nil
	}
	p := &review.BranchProtection{RequiredApprovingReviewCount: rules.RequiredApprovingReviewCount}
	if dr := rules.GetDismissalRestrictions(); dr != nil {
		for _, u := range dr.Users {
			p.DismissalUsers = append(p.DismissalUsers, u.GetLogin())
		}
	}
	return p, nil
}
