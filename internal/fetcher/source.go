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

	gh "github.com/google/go-github/v66/github"
	"golang.org/x/sync/errgroup"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/contribfeed/api/v1alpha1"
	"github.com/mikelane/contribfeed/internal/github"
)

// PullRequestFetcher reads every pull request of a repository
type PullRequestFetcher struct {
	client github.Client
	opts   Options
}

// NewPullRequestFetcher creates a PullRequestFetcher
func NewPullRequestFetcher(client github.Client, opts Options) *PullRequestFetcher {
	return &PullRequestFetcher{client: client, opts: opts.withDefaults()}
}

func (f *PullRequestFetcher) Family() v1alpha1.Family { return v1alpha1.FamilyPullRequest }

// Fetch reads all pages of pull requests in every state
func (f *PullRequestFetcher) Fetch(ctx context.Context, repo RepoRef) ([]Raw, error) {
	prs, err := paginate(ctx, f.opts.PageSize, 0, "pulls "+repo.FullName(),
		func(ctx context.Context, o gh.ListOptions) ([]*gh.PullRequest, int, error) {
			return f.client.ListPullRequests(ctx, repo.Owner, repo.Name, o)
		})

	out := make([]Raw, 0, len(prs))
	for _, pr := range prs {
		out = append(out, Raw{
			Family:      v1alpha1.FamilyPullRequest,
			Origin:      v1alpha1.OriginRepository,
			Repo:        repo,
			PullRequest: pr,
		})
	}
	return out, err
}

// IssueFetcher reads every issue of a repository opened by one user
type IssueFetcher struct {
	client  github.Client
	creator string
	opts    Options
}

// NewIssueFetcher creates an IssueFetcher filtering on creator
func NewIssueFetcher(client github.Client, creator string, opts Options) *IssueFetcher {
	return &IssueFetcher{client: client, creator: creator, opts: opts.withDefaults()}
}

func (f *IssueFetcher) Family() v1alpha1.Family { return v1alpha1.FamilyIssue }

// Fetch reads all pages of issues created by the configured user. The
// endpoint also returns pull requests; those are left for the classifier.
func (f *IssueFetcher) Fetch(ctx context.Context, repo RepoRef) ([]Raw, error) {
	issues, err := paginate(ctx, f.opts.PageSize, 0, "issues "+repo.FullName(),
		func(ctx context.Context, o gh.ListOptions) ([]*gh.Issue, int, error) {
			return f.client.ListIssues(ctx, repo.Owner, repo.Name, f.creator, o)
		})

	out := make([]Raw, 0, len(issues))
	for _, issue := range issues {
		out = append(out, Raw{
			Family: v1alpha1.FamilyIssue,
			Origin: v1alpha1.OriginRepository,
			Repo:   repo,
			Issue:  issue,
		})
	}
	return out, err
}

// ReviewFetcher reads the reviews of the most recently updated pull requests
type ReviewFetcher struct {
	client github.Client
	opts   Options
}

// NewReviewFetcher creates a ReviewFetcher
func NewReviewFetcher(client github.Client, opts Options) *ReviewFetcher {
	return &ReviewFetcher{client: client, opts: opts.withDefaults()}
}

func (f *ReviewFetcher) Family() v1alpha1.Family { return v1alpha1.FamilyReview }

// Fetch lists the ParentLimit most recently updated pull requests and reads
// every review page of each.
func (f *ReviewFetcher) Fetch(ctx context.Context, repo RepoRef) ([]Raw, error) {
	parents, err := recentParents(ctx, f.opts, "review parents "+repo.FullName(),
		func(ctx context.Context, o gh.ListOptions) ([]*gh.PullRequest, int, error) {
			return f.client.ListPullRequests(ctx, repo.Owner, repo.Name, o)
		})
	if len(parents) == 0 {
		return nil, err
	}

	out, fanErr := fanOut(ctx, f.opts.ParentConcurrency, parents, func(ctx context.Context, pr *gh.PullRequest) ([]Raw, error) {
		reviews, err := paginate(ctx, f.opts.PageSize, 0, fmt.Sprintf("reviews %s#%d", repo.FullName(), pr.GetNumber()),
			func(ctx context.Context, o gh.ListOptions) ([]*gh.PullRequestReview, int, error) {
				return f.client.ListReviews(ctx, repo.Owner, repo.Name, pr.GetNumber(), o)
			})
		raws := make([]Raw, 0, len(reviews))
		for _, review := range reviews {
			raws = append(raws, Raw{
				Family:            v1alpha1.FamilyReview,
				Origin:            v1alpha1.OriginRepository,
				Repo:              repo,
				Review:            review,
				ParentPullRequest: pr,
			})
		}
		return raws, err
	})

	return out, utilerrors.NewAggregate([]error{err, fanErr})
}

// CommentFetcher reads the comments of the most recently updated issues and
// pull requests
type CommentFetcher struct {
	client github.Client
	opts   Options
}

// NewCommentFetcher creates a CommentFetcher
func NewCommentFetcher(client github.Client, opts Options) *CommentFetcher {
	return &CommentFetcher{client: client, opts: opts.withDefaults()}
}

func (f *CommentFetcher) Family() v1alpha1.Family { return v1alpha1.FamilyComment }

// Fetch lists the ParentLimit most recently updated issues (pull requests
// included) and reads every comment page of each.
func (f *CommentFetcher) Fetch(ctx context.Context, repo RepoRef) ([]Raw, error) {
	parents, err := recentParents(ctx, f.opts, "comment parents "+repo.FullName(),
		func(ctx context.Context, o gh.ListOptions) ([]*gh.Issue, int, error) {
			return f.client.ListRecentIssues(ctx, repo.Owner, repo.Name, o)
		})
	if len(parents) == 0 {
		return nil, err
	}

	out, fanErr := fanOut(ctx, f.opts.ParentConcurrency, parents, func(ctx context.Context, issue *gh.Issue) ([]Raw, error) {
		comments, err := paginate(ctx, f.opts.PageSize, 0, fmt.Sprintf("comments %s#%d", repo.FullName(), issue.GetNumber()),
			func(ctx context.Context, o gh.ListOptions) ([]*gh.IssueComment, int, error) {
				return f.client.ListIssueComments(ctx, repo.Owner, repo.Name, issue.GetNumber(), o)
			})
		raws := make([]Raw, 0, len(comments))
		for _, comment := range comments {
			raws = append(raws, Raw{
				Family:      v1alpha1.FamilyComment,
				Origin:      v1alpha1.OriginRepository,
				Repo:        repo,
				Comment:     comment,
				ParentIssue: issue,
			})
		}
		return raws, err
	})

	return out, utilerrors.NewAggregate([]error{err, fanErr})
}

// recentParents reads just enough pages to hold ParentLimit records
func recentParents[T any](ctx context.Context, opts Options, what string, list listFunc[T]) ([]T, error) {
	pageSize := min(opts.PageSize, opts.ParentLimit)
	parents, err := paginate(ctx, pageSize, pagesFor(opts.ParentLimit, pageSize), what, list)
	if len(parents) > opts.ParentLimit {
		parents = parents[:opts.ParentLimit]
	}
	return parents, err
}

// fanOut runs fn for every parent with at most limit in flight. Results keep
// the parent order regardless of completion order; a failing parent never
// cancels its siblings.
func fanOut[P any](ctx context.Context, limit int, parents []P, fn func(ctx context.Context, parent P) ([]Raw, error)) ([]Raw, error) {
	logger := log.FromContext(ctx)
	slots := make([][]Raw, len(parents))
	errs := make([]error, len(parents))

	g := new(errgroup.Group)
	g.SetLimit(limit)
	for i, parent := range parents {
		g.Go(func() error {
			raws, err := fn(ctx, parent)
			slots[i] = raws
			if err != nil {
				logger.V(1).Info("Parent fetch incomplete", "index", i, "error", err.Error())
				errs[i] = err
			}
			return nil
		})
	}
	_ = g.Wait()

	var out []Raw
	for _, s := range slots {
		out = append(out, s...)
	}
	return out, utilerrors.NewAggregate(errs)
}
