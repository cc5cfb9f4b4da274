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

package fetcher

import (
	"context"
	"fmt"
	"strings"

	gh "github.com/google/go-github/v66/github"

	"github.com/mikelane/contribfeed/api/v1alpha1"
)

// Default limits
const (
	DefaultPageSize          = 100
	DefaultParentLimit       = 50
	DefaultParentConcurrency = 5
	DefaultFeedMaxPages      = 3
)

// RepoRef identifies a repository by owner and name
type RepoRef struct {
	Owner string
	Name  string
}

// ParseRepoRef parses an "owner/name" string
func ParseRepoRef(fullName string) (RepoRef, error) {
	owner, name, ok := strings.Cut(strings.TrimSpace(fullName), "/")
	if !ok || owner == "" || name == "" || strings.Contains(name, "/") {
		return RepoRef{}, fmt.Errorf("invalid repository %q: want owner/name", fullName)
	}
	return RepoRef{Owner: owner, Name: name}, nil
}

// FullName returns "owner/name"
func (r RepoRef) FullName() string {
	if r.Owner == "" && r.Name == "" {
		return ""
	}
	return r.Owner + "/" + r.Name
}

func (r RepoRef) String() string { return r.FullName() }

// Raw is one record as returned by the upstream API, tagged with where it
// came from. Exactly one of PullRequest, Issue, Review, Comment or FeedEvent
// is set.
type Raw struct {
	Family v1alpha1.Family
	Origin v1alpha1.Origin
	// Repo is the repository the fetcher ran for. Zero for feed records.
	Repo RepoRef

	PullRequest *gh.PullRequest
	Issue       *gh.Issue
	Review      *gh.PullRequestReview
	Comment     *gh.IssueComment
	FeedEvent   *gh.Event

	// ParentPullRequest is the pull request a review was read from
	ParentPullRequest *gh.PullRequest
	// ParentIssue is the issue or pull request a comment was read from
	ParentIssue *gh.Issue
}

// Fetcher reads every raw record of one family from a repository.
//
// Page failures end the fetch early: the records read so far are returned
// together with the error, which callers treat as a diagnostic.
type Fetcher interface {
	Family() v1alpha1.Family
	Fetch(ctx context.Context, repo RepoRef) ([]Raw, error)
}

// Options tunes pagination and fan-out of the repository fetchers
type Options struct {
	PageSize          int
	ParentLimit       int
	ParentConcurrency int
}

func (o Options) withDefaults() Options {
	if o.PageSize <= 0 || o.PageSize > 100 {
		o.PageSize = DefaultPageSize
	}
	if o.ParentLimit <= 0 {
		o.ParentLimit = DefaultParentLimit
	}
	if o.ParentConcurrency <= 0 {
		o.ParentConcurrency = DefaultParentConcurrency
	}
	return o
}
