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
	"net/http"
	"time"

	"github.com/google/go-github/v66/github"

	"github.com/mikelane/contribfeed/internal/metrics"
)

// ErrNotAuthenticated is returned when the API rejects the credential
var ErrNotAuthenticated = errors.New("not authenticated")

// Client interface defines the contract for reading activity from the GitHub API.
//
// Every List method reads exactly one page and returns the provider's next
// page number, which is 0 when the response carried no pagination links.
type Client interface {
	// CurrentUser returns the user the credential belongs to
	CurrentUser(ctx context.Context) (*github.User, error)
	// ListPullRequests lists pull requests of a repository in every state, most recently updated first
	ListPullRequests(ctx context.Context, owner, repo string, opts github.ListOptions) ([]*github.PullRequest, int, error)
	// ListIssues lists issues (and pull requests) of a repository opened by creator, most recently updated first
	ListIssues(ctx context.Context, owner, repo, creator string, opts github.ListOptions) ([]*github.Issue, int, error)
	// ListRecentIssues lists issues and pull requests of a repository regardless of author
	ListRecentIssues(ctx context.Context, owner, repo string, opts github.ListOptions) ([]*github.Issue, int, error)
	// ListReviews lists the reviews of a pull request
	ListReviews(ctx context.Context, owner, repo string, number int, opts github.ListOptions) ([]*github.PullRequestReview, int, error)
	// ListIssueComments lists the comments of an issue or pull request
	ListIssueComments(ctx context.Context, owner, repo string, number int, opts github.ListOptions) ([]*github.IssueComment, int, error)
	// ListUserEvents lists the activity feed of a user
	ListUserEvents(ctx context.Context, login string, publicOnly bool, opts github.ListOptions) ([]*github.Event, int, error)
	// ListUserRepositories lists repositories the authenticated user can access
	ListUserRepositories(ctx context.Context, opts github.ListOptions) ([]*github.Repository, int, error)
}

// Options configures NewClient
type Options struct {
	// Token is the bearer credential. Empty means anonymous access.
	Token string
	// BaseURL overrides the API root, e.g. for GitHub Enterprise or tests
	BaseURL string
	// Timeout bounds every single request attempt
	Timeout time.Duration
	// QPS and Burst configure the shared request throttle
	QPS   float32
	Burst int
	Retry RetryConfig
	// HTTPClient is the base transport. http.DefaultClient when nil.
	HTTPClient *http.Client
	Metrics    *metrics.Recorder
}

// DefaultOptions returns options suitable for api.github.com
func DefaultOptions() Options {
	return Options{
		Timeout: 30 * time.Second,
		QPS:     10,
		Burst:   20,
		Retry:   DefaultRetryConfig(),
	}
}

// DefaultRetryConfig returns the default retry behavior
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:     3,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
	}
}

// Endpoint labels used for metrics and logs
const (
	EndpointUser         = "user"
	EndpointPulls        = "pulls"
	EndpointIssues       = "issues"
	EndpointReviews      = "reviews"
	EndpointComments     = "comments"
	EndpointEvents       = "events"
	EndpointPublicEvents = "events_public"
	EndpointRepos        = "repos"
)
