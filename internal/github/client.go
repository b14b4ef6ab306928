package github

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gofri/go-github-ratelimit/github_ratelimit"
	"github.com/google/go-github/v62/github"
	"golang.org/x/oauth2"

	custom_errors "github-commit-collector/internal/errors"
)

const (
	// perPage is the fixed page size for commit listing. A page shorter than
	// this signals exhaustion.
	perPage = 100

	// maxAttempts bounds retries of transient failures (429/5xx, network).
	maxAttempts = 3

	// quotaLowWater is the remaining-quota threshold at which the client
	// blocks until quotaResetSlack past the reported reset time.
	quotaLowWater   = 10
	quotaResetSlack = 60 * time.Second
)

// Client is a wrapper around the go-github client. It tracks the remaining
// API quota from the last response and serializes requests: one in-flight
// request at a time per instance, no internal concurrency.
type Client struct {
	gh     *github.Client
	logger *slog.Logger

	remaining int
	resetAt   time.Time

	retryInterval time.Duration
	sleep         func(time.Duration)
}

// NewClient creates and configures a new Client instance. The token is used
// for bearer authentication; secondary rate limits are handled by the
// rate-limit waiter transport.
func NewClient(token string, logger *slog.Logger) (*Client, error) {
	var base http.RoundTripper
	if token != "" {
		base = &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
		}
	}

	httpClient, err := github_ratelimit.NewRateLimitWaiterClient(base)
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limit transport: %w", err)
	}

	return &Client{
		gh:            github.NewClient(httpClient),
		logger:        logger,
		remaining:     5000,
		retryInterval: 500 * time.Millisecond,
		sleep:         time.Sleep,
	}, nil
}

// GetRepository fetches repository details.
func (c *Client) GetRepository(ctx context.Context, owner, name string) (*github.Repository, error) {
	var repo *github.Repository
	err := c.do(ctx, fmt.Sprintf("repository %s/%s", owner, name), func() (*github.Response, error) {
		var resp *github.Response
		var err error
		repo, resp, err = c.gh.Repositories.Get(ctx, owner, name)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return repo, nil
}

// Commits returns a lazy sequence of commit summaries, newest first, bounded
// server-side by the since/until window when non-zero. Pagination is
// transparent; the sequence ends when a page comes back shorter than the
// page size. The sequence is finite and not restartable.
func (c *Client) Commits(ctx context.Context, owner, name string, since, until time.Time) iter.Seq2[*github.RepositoryCommit, error] {
	return func(yield func(*github.RepositoryCommit, error) bool) {
		opts := &github.CommitsListOptions{
			ListOptions: github.ListOptions{PerPage: perPage},
		}
		if !since.IsZero() {
			opts.Since = since
		}
		if !until.IsZero() {
			opts.Until = until
		}

		for page := 1; ; page++ {
			opts.Page = page
			c.logger.Debug("Fetching commits page", "owner", owner, "repo", name, "page", page)

			var commits []*github.RepositoryCommit
			err := c.do(ctx, fmt.Sprintf("commits %s/%s", owner, name), func() (*github.Response, error) {
				var resp *github.Response
				var err error
				commits, resp, err = c.gh.Repositories.ListCommits(ctx, owner, name, opts)
				return resp, err
			})
			if err != nil {
				yield(nil, err)
				return
			}

			for _, commit := range commits {
				if !yield(commit, nil) {
					return
				}
			}

			if len(commits) < perPage {
				return
			}
		}
	}
}

// GetCommitDetail fetches one commit with per-file diffs and stats.
func (c *Client) GetCommitDetail(ctx context.Context, owner, name, sha string) (*github.RepositoryCommit, error) {
	var detail *github.RepositoryCommit
	err := c.do(ctx, fmt.Sprintf("commit %s", sha), func() (*github.Response, error) {
		var resp *github.Response
		var err error
		detail, resp, err = c.gh.Repositories.GetCommit(ctx, owner, name, sha, nil)
		return resp, err
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

// GetFileContent fetches the content of a file at a given revision. Content
// that cannot be retrieved (missing path, submodule, oversized file) is an
// expected outcome and yields (nil, nil): callers must treat absence as
// "unknown", not as an error. Only context cancellation is surfaced.
func (c *Client) GetFileContent(ctx context.Context, owner, name, ref, path string) ([]byte, error) {
	var fileContent *github.RepositoryContent
	err := c.do(ctx, fmt.Sprintf("content %s@%s", path, ref), func() (*github.Response, error) {
		var resp *github.Response
		var err error
		fileContent, _, resp, err = c.gh.Repositories.GetContents(ctx, owner, name, path,
			&github.RepositoryContentGetOptions{Ref: ref})
		return resp, err
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, err
		}
		c.logger.Warn("Failed to fetch file content", "path", path, "ref", ref, "error", err)
		return nil, nil
	}
	if fileContent == nil {
		// Path resolved to a directory or submodule.
		return nil, nil
	}

	decoded, err := fileContent.GetContent()
	if err != nil {
		c.logger.Warn("Failed to decode file content", "path", path, "ref", ref, "error", err)
		return nil, nil
	}
	return []byte(decoded), nil
}

// do executes one API call with the quota guard and the retry policy for
// transient failures. Fatal 4xx responses are classified and propagate
// immediately.
func (c *Client) do(ctx context.Context, resource string, fn func() (*github.Response, error)) error {
	c.waitForQuota(ctx)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.retryInterval
	policy := backoff.WithContext(backoff.WithMaxRetries(bo, maxAttempts-1), ctx)

	err := backoff.Retry(func() error {
		resp, err := fn()
		c.updateQuota(resp)
		if err == nil {
			return nil
		}
		if isTransient(err) {
			return err
		}
		return backoff.Permanent(classifyFatal(resource, err))
	}, policy)
	if err == nil {
		return nil
	}
	return classifyExhausted(err)
}

// waitForQuota blocks until past the reported quota reset when the remaining
// quota from the last response is at or below the low-water mark.
func (c *Client) waitForQuota(ctx context.Context) {
	if c.remaining > quotaLowWater || c.resetAt.IsZero() {
		return
	}
	wait := time.Until(c.resetAt.Add(quotaResetSlack))
	if wait <= 0 {
		return
	}
	c.logger.Warn("API quota low, sleeping until reset", "remaining", c.remaining, "wait", wait.String())
	c.sleep(wait)
}

func (c *Client) updateQuota(resp *github.Response) {
	if resp == nil {
		return
	}
	c.remaining = resp.Rate.Remaining
	c.resetAt = resp.Rate.Reset.Time
}

// isTransient reports whether err is worth retrying: rate limits, 429/5xx
// responses and transport-level failures.
func isTransient(err error) bool {
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusInternalServerError,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		}
		return false
	}
	// No structured response: transport-level failure.
	return true
}

// classifyFatal maps a non-retryable API error onto the error taxonomy.
func classifyFatal(resource string, err error) error {
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusNotFound:
			return &custom_errors.NotFoundError{Resource: resource, Err: err}
		case http.StatusUnauthorized, http.StatusForbidden:
			return &custom_errors.AuthError{Err: err}
		}
	}
	return err
}

// classifyExhausted wraps an error that survived all retries.
func classifyExhausted(err error) error {
	var authErr *custom_errors.AuthError
	var notFoundErr *custom_errors.NotFoundError
	if errors.As(err, &authErr) || errors.As(err, &notFoundErr) {
		return err
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &custom_errors.RateLimitedError{ResetAt: rateErr.Rate.Reset.Time, Err: err}
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &custom_errors.RateLimitedError{Err: err}
	}
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusTooManyRequests {
		return &custom_errors.RateLimitedError{Err: err}
	}
	return &custom_errors.TransientError{Err: err}
}
