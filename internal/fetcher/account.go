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
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/contribfeed/api/v1alpha1"
	"github.com/mikelane/contribfeed/internal/github"
)

// Feed event types and the record family they describe
var feedFamilies = map[string]v1alpha1.Family{
	"PullRequestEvent":              v1alpha1.FamilyPullRequest,
	"IssuesEvent":                   v1alpha1.FamilyIssue,
	"PullRequestReviewEvent":        v1alpha1.FamilyReview,
	"IssueCommentEvent":             v1alpha1.FamilyComment,
	"PullRequestReviewCommentEvent": v1alpha1.FamilyComment,
}

// FeedFamily returns the record family of a feed event type, or "" for
// types that carry no contribution.
func FeedFamily(eventType string) v1alpha1.Family {
	return feedFamilies[eventType]
}

// AccountFetcher reads the activity feed of a user
type AccountFetcher struct {
	client   github.Client
	pageSize int
	maxPages int
}

// NewAccountFetcher creates an AccountFetcher. maxPages bounds each feed
// variant; the upstream serves at most 300 events per feed.
func NewAccountFetcher(client github.Client, pageSize, maxPages int) *AccountFetcher {
	if pageSize <= 0 || pageSize > 100 {
		pageSize = DefaultPageSize
	}
	if maxPages <= 0 {
		maxPages = DefaultFeedMaxPages
	}
	return &AccountFetcher{client: client, pageSize: pageSize, maxPages: maxPages}
}

// Fetch reads the authenticated feed and then the public feed of login and
// combines them, keeping the first occurrence of every feed event id. A
// failing variant is skipped; if both fail the result is empty. The returned
// error only describes what was skipped.
func (f *AccountFetcher) Fetch(ctx context.Context, login string) ([]Raw, error) {
	logger := log.FromContext(ctx).WithValues("login", login)

	seen := sets.New[string]()
	var out []Raw
	var errs []error

	for _, publicOnly := range []bool{false, true} {
		variant := github.EndpointEvents
		if publicOnly {
			variant = github.EndpointPublicEvents
		}

		events, err := paginate(ctx, f.pageSize, f.maxPages, variant+" "+login,
			func(ctx context.Context, o gh.ListOptions) ([]*gh.Event, int, error) {
				return f.client.ListUserEvents(ctx, login, publicOnly, o)
			})
		if err != nil {
			logger.Info("Activity feed variant unavailable", "variant", variant, "error", err.Error())
			errs = append(errs, fmt.Errorf("%s: %w", variant, err))
		}

		added := 0
		for _, ev := range events {
			if ev == nil {
				continue
			}
			if id := ev.GetID(); id != "" {
				if seen.Has(id) {
					continue
				}
				seen.Insert(id)
			}
			out = append(out, Raw{
				Family:    FeedFamily(ev.GetType()),
				Origin:    v1alpha1.OriginAccountActivity,
				FeedEvent: ev,
			})
			added++
		}
		logger.V(1).Info("Read activity feed", "variant", variant, "events", len(events), "new", added)
	}

	return out, utilerrors.NewAggregate(errs)
}
