// MIT License
//
// Copyright (c) 2025 Mike Lane
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in all
// copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.

package github

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
	"k8s.io/client-go/util/flowcontrol"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/contribfeed/internal/metrics"
)

// RetryConfig defines the retry behavior for API calls
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	BackoffFactor  float64
}

// githubClient implements the Client interface using go-github
type githubClient struct {
	client      *github.Client
	retryConfig *RetryConfig
	limiter     flowcontrol.RateLimiter
	timeout     time.Duration
	metrics     *metrics.Recorder
}

// NewClient creates a new GitHub client from opts
func NewClient(opts Options) (Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if opts.Token != "" {
		base := httpClient.Transport
		if base == nil {
			base = http.DefaultTransport
		}
		httpClient = &http.Client{
			Transport: &oauth2.Transport{
				Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: opts.Token}),
				Base:   base,
			},
			Timeout: httpClient.Timeout,
		}
	}

	gc := github.NewClient(httpClient)
	if opts.BaseURL != "" {
		baseURL, err := url.Parse(opts.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base url %q: %w", opts.BaseURL, err)
		}
		if !strings.HasSuffix(baseURL.Path, "/") {
			baseURL.Path += "/"
		}
		gc.BaseURL = baseURL
	}

	retry := opts.Retry
	if retry.MaxRetries < 0 {
		retry.MaxRetries = 0
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = DefaultRetryConfig().InitialBackoff
	}
	if retry.MaxBackoff <= 0 {
		retry.MaxBackoff = DefaultRetryConfig().MaxBackoff
	}

	var limiter flowcontrol.RateLimiter
	if opts.QPS > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = flowcontrol.NewTokenBucketRateLimiter(opts.QPS, burst)
	}

	return &githubClient{
		client:      gc,
		retryConfig: &retry,
		limiter:     limiter,
		timeout:     opts.Timeout,
		metrics:     opts.Metrics,
	}, nil
}

// CurrentUser returns the authenticated user. A 401 maps to ErrNotAuthenticated.
func (c *githubClient) CurrentUser(ctx context.Context) (*github.User, error) {
	var user *github.User

	err := c.executeWithRetry(ctx, EndpointUser, func(ctx context.Context) (*github.Response, error) {
		u, resp, err := c.client.Users.Get(ctx, "")
		user = u
		return resp, err
	})
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusUnauthorized {
			return nil, fmt.Errorf("%w: %s", ErrNotAuthenticated, ghErr.Message)
		}
		return nil, fmt.Errorf("failed to get authenticated user: %w", err)
	}

	return user, nil
}

// ListPullRequests reads one page of pull requests in every state
func (c *githubClient) ListPullRequests(ctx context.Context, owner, repo string, opts github.ListOptions) ([]*github.PullRequest, int, error) {
	var prs []*github.PullRequest
	listOpts := &github.PullRequestListOptions{
		State:       "all",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: opts,
	}

	next, err := c.page(ctx, EndpointPulls, func(ctx context.Context) (*github.Response, error) {
		page, resp, err := c.client.PullRequests.List(ctx, owner, repo, listOpts)
		prs = page
		return resp, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list pull requests of %s/%s: %w", owner, repo, err)
	}
	return prs, next, nil
}

// ListIssues reads one page of issues opened by creator
func (c *githubClient) ListIssues(ctx context.Context, owner, repo, creator string, opts github.ListOptions) ([]*github.Issue, int, error) {
	issues, next, err := c.listIssues(ctx, owner, repo, creator, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list issues of %s/%s: %w", owner, repo, err)
	}
	return issues, next, nil
}

// ListRecentIssues reads one page of issues from any author
func (c *githubClient) ListRecentIssues(ctx context.Context, owner, repo string, opts github.ListOptions) ([]*github.Issue, int, error) {
	issues, next, err := c.listIssues(ctx, owner, repo, "", opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list recent issues of %s/%s: %w", owner, repo, err)
	}
	return issues, next, nil
}

func (c *githubClient) listIssues(ctx context.Context, owner, repo, creator string, opts github.ListOptions) ([]*github.Issue, int, error) {
	var issues []*github.Issue
	listOpts := &github.IssueListByRepoOptions{
		State:       "all",
		Creator:     creator,
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: opts,
	}

	next, err := c.page(ctx, EndpointIssues, func(ctx context.Context) (*github.Response, error) {
		page, resp, err := c.client.Issues.ListByRepo(ctx, owner, repo, listOpts)
		issues = page
		return resp, err
	})
	return issues, next, err
}

// ListReviews reads one page of reviews of a pull request
func (c *githubClient) ListReviews(ctx context.Context, owner, repo string, number int, opts github.ListOptions) ([]*github.PullRequestReview, int, error) {
	var reviews []*github.PullRequestReview
	listOpts := opts

	next, err := c.page(ctx, EndpointReviews, func(ctx context.Context) (*github.Response, error) {
		page, resp, err := c.client.PullRequests.ListReviews(ctx, owner, repo, number, &listOpts)
		reviews = page
		return resp, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list reviews of %s/%s#%d: %w", owner, repo, number, err)
	}
	return reviews, next, nil
}

// ListIssueComments reads one page of comments of an issue or pull request
func (c *githubClient) ListIssueComments(ctx context.Context, owner, repo string, number int, opts github.ListOptions) ([]*github.IssueComment, int, error) {
	var comments []*github.IssueComment
	listOpts := &github.IssueListCommentsOptions{ListOptions: opts}

	next, err := c.page(ctx, EndpointComments, func(ctx context.Context) (*github.Response, error) {
		page, resp, err := c.client.Issues.ListComments(ctx, owner, repo, number, listOpts)
		comments = page
		return resp, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list comments of %s/%s#%d: %w", owner, repo, number, err)
	}
	return comments, next, nil
}

// ListUserEvents reads one page of the activity feed of login
func (c *githubClient) ListUserEvents(ctx context.Context, login string, publicOnly bool, opts github.ListOptions) ([]*github.Event, int, error) {
	var events []*github.Event
	listOpts := opts
	endpoint := EndpointEvents
	if publicOnly {
		endpoint = EndpointPublicEvents
	}

	next, err := c.page(ctx, endpoint, func(ctx context.Context) (*github.Response, error) {
		page, resp, err := c.client.Activity.ListEventsPerformedByUser(ctx, login, publicOnly, &listOpts)
		events = page
		return resp, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list %s of %s: %w", endpoint, login, err)
	}
	return events, next, nil
}

// ListUserRepositories reads one page of repositories of the authenticated user
func (c *githubClient) ListUserRepositories(ctx context.Context, opts github.ListOptions) ([]*github.Repository, int, error) {
	var repos []*github.Repository
	listOpts := &github.RepositoryListByAuthenticatedUserOptions{
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: opts,
	}

	next, err := c.page(ctx, EndpointRepos, func(ctx context.Context) (*github.Response, error) {
		page, resp, err := c.client.Repositories.ListByAuthenticatedUser(ctx, listOpts)
		repos = page
		return resp, err
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list repositories: %w", err)
	}
	return repos, next, nil
}

// page runs a single list call and returns the provider's next page
func (c *githubClient) page(ctx context.Context, endpoint string, call func(ctx context.Context) (*github.Response, error)) (int, error) {
	next := 0
	err := c.executeWithRetry(ctx, endpoint, func(ctx context.Context) (*github.Response, error) {
		resp, err := call(ctx)
		if resp != nil {
			next = resp.NextPage
		}
		return resp, err
	})
	return next, err
}

// executeWithRetry executes an operation with throttling, a per-attempt
// timeout and exponential backoff retry
func (c *githubClient) executeWithRetry(ctx context.Context, endpoint string, operation func(ctx context.Context) (*github.Response, error)) error {
	logger := log.FromContext(ctx)
	var lastErr error

	for attempt := 0; attempt <= c.retryConfig.MaxRetries; attempt++ {
		// Check if context is cancelled before attempting
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		lastErr = c.attempt(ctx, endpoint, operation)

		// Success
		if lastErr == nil {
			return nil
		}

		// Check if error is retryable
		if !c.isRetryableError(lastErr) {
			return lastErr
		}

		// Don't retry if we've exhausted attempts
		if attempt == c.retryConfig.MaxRetries {
			break
		}

		backoff, ok := c.retryDelay(lastErr, attempt)
		if !ok {
			return lastErr
		}
		logger.V(1).Info("Retrying GitHub request", "endpoint", endpoint, "attempt", attempt+1, "backoff", backoff, "error", lastErr.Error())

		// Wait with context cancellation support
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			// Continue to next retry
		}
	}

	return fmt.Errorf("operation failed after %d retries: %w", c.retryConfig.MaxRetries, lastErr)
}

// attempt runs one try of operation under the per-call timeout
func (c *githubClient) attempt(ctx context.Context, endpoint string, operation func(ctx context.Context) (*github.Response, error)) error {
	callCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	resp, err := operation(callCtx)

	status := "error"
	if resp != nil && resp.Response != nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	c.metrics.ObserveRequest(endpoint, status)

	return err
}

// isRetryableError determines if an error should trigger a retry
func (c *githubClient) isRetryableError(err error) bool {
	if err == nil {
		return false
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}

	// Check for GitHub API errors
	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		switch ghErr.Response.StatusCode {
		case http.StatusTooManyRequests,
			http.StatusBadGateway,
			http.StatusServiceUnavailable,
			http.StatusGatewayTimeout:
			return true
		case http.StatusForbidden:
			// Check if it's a rate limit error
			if ghErr.Message == "API rate limit exceeded" {
				return true
			}
		}
	}

	return false
}

// retryDelay returns how long to wait before the next attempt. Rate limits
// that reset later than MaxBackoff are not worth waiting for.
func (c *githubClient) retryDelay(err error, attempt int) (time.Duration, bool) {
	backoff := c.calculateBackoff(attempt)

	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) && abuseErr.RetryAfter != nil {
		if *abuseErr.RetryAfter > c.retryConfig.MaxBackoff {
			return 0, false
		}
		return max(backoff, *abuseErr.RetryAfter), true
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		if limited, wait := c.checkRateLimit(rateErr.Response); limited {
			if wait > c.retryConfig.MaxBackoff {
				return 0, false
			}
			return max(backoff, wait), true
		}
	}

	return backoff, true
}

// calculateBackoff calculates the backoff duration for a retry attempt
func (c *githubClient) calculateBackoff(attempt int) time.Duration {
	factor := c.retryConfig.BackoffFactor
	if factor < 1 {
		factor = 2.0
	}
	base := float64(c.retryConfig.InitialBackoff) * math.Pow(factor, float64(attempt))

	// Add jitter (±20%)
	jitter := (rand.Float64() * 0.4) - 0.2 // -0.2 to +0.2
	backoff := time.Duration(base * (1 + jitter))

	// Cap at max backoff
	if backoff > c.retryConfig.MaxBackoff {
		backoff = c.retryConfig.MaxBackoff
	}

	return backoff
}

// checkRateLimit checks response headers for rate limit information
func (c *githubClient) checkRateLimit(resp *http.Response) (bool, time.Duration) {
	if resp == nil {
		return false, 0
	}

	// Check primary rate limit
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	if remaining != "" {
		if rem, err := strconv.Atoi(remaining); err == nil && rem == 0 {
			// Rate limited - calculate wait time
			resetStr := resp.Header.Get("X-RateLimit-Reset")
			if resetStr != "" {
				if resetTime, err := strconv.ParseInt(resetStr, 10, 64); err == nil {
					waitTime := time.Until(time.Unix(resetTime, 0))
					if waitTime > 0 {
						return true, waitTime
					}
				}
			}
		}
	}

	// Check for secondary rate limit (403 without rate limit headers)
	if resp.StatusCode == http.StatusForbidden {
		// Default wait for secondary rate limit
		return true, 60 * time.Second
	}

	return false, 0
}
