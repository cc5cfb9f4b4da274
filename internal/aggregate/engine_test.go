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

package aggregate

import (
	"context"
	"fmt"
	"time"

	gh "github.com/google/go-github/v66/github"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/mikelane/contribfeed/api/v1alpha1"
	"github.com/mikelane/contribfeed/internal/github"
	"github.com/mikelane/contribfeed/internal/metrics"
	"github.com/mikelane/contribfeed/internal/normalize"
	"github.com/mikelane/contribfeed/internal/selector"
)

func eventIDs(events []v1alpha1.Event) []string {
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.ID)
	}
	return ids
}

var _ = Describe("Engine", func() {
	var (
		ctx    context.Context
		fake   *fakeGitHub
		opts   Options
		reg    *prometheus.Registry
		engine *Engine
	)

	BeforeEach(func() {
		ctx = context.Background()
		fake = newFakeGitHub("me")
		opts = DefaultOptions()
		opts.BatchDelay = time.Millisecond
		opts.IncludeAccountActivity = false
	})

	JustBeforeEach(func() {
		server := fake.start()
		DeferCleanup(server.Close)

		client, err := github.NewClient(github.Options{
			Token:   "github_pat_test123",
			BaseURL: server.URL,
			Timeout: 5 * time.Second,
			Retry: github.RetryConfig{
				MaxRetries:     0,
				InitialBackoff: time.Millisecond,
				MaxBackoff:     10 * time.Millisecond,
				BackoffFactor:  2,
			},
		})
		Expect(err).NotTo(HaveOccurred())

		reg = prometheus.NewRegistry()
		recorder, err := metrics.NewRecorder(reg)
		Expect(err).NotTo(HaveOccurred())

		engine = &Engine{
			Client:     client,
			Normalizer: normalize.New(normalize.Options{}),
			Selector:   selector.New(client, selector.LicensePolicy{}),
			Metrics:    recorder,
			Options:    opts,
		}
	})

	Describe("Scenario: every record family of a repository", func() {
		BeforeEach(func() {
			repo := "acme/widgets"
			fake.pulls[repo] = []*gh.PullRequest{
				pullRequest(repo, 1, "me", epoch),
				pullRequest(repo, 2, "someone", epoch.Add(time.Hour)),
			}
			fake.issues[repo] = []*gh.Issue{
				issue(repo, 3, "me", epoch.Add(2*time.Hour)),
				issue(repo, 4, "someone", epoch.Add(3*time.Hour)),
			}
			fake.reviews[repo+"#2"] = []*gh.PullRequestReview{review(repo, 50, 2, "me", epoch.Add(4*time.Hour))}
			fake.comments[repo+"#4"] = []*gh.IssueComment{comment(repo, 60, 4, "me", epoch.Add(5*time.Hour))}
		})

		It("returns one event per contribution, newest first", func() {
			result, err := engine.Aggregate(ctx, Request{Repositories: []string{"acme/widgets"}})
			Expect(err).NotTo(HaveOccurred())

			Expect(eventIDs(result.Events)).To(Equal([]string{"comment-60", "review-50", "issue-2003", "pr-1001"}))
			Expect(result.Total).To(Equal(4))
			Expect(result.Message).To(BeEmpty())

			rev := result.Events[1]
			Expect(rev.Kind).To(Equal(v1alpha1.KindReviewSubmitted))
			Expect(rev.Review.State).To(Equal(v1alpha1.ReviewStateApproved))
			Expect(rev.Review.PRTitle).To(Equal("Change 2"))

			cmt := result.Events[0]
			Expect(cmt.Comment.AssociatedWith.Type).To(Equal(v1alpha1.AssociatedIssue))
			Expect(cmt.Comment.AssociatedWith.Number).To(Equal(4))

			for _, e := range result.Events {
				Expect(e.Repository.FullName).To(Equal("acme/widgets"))
				Expect(e.Actor.Login).To(Equal("me"))
				Expect(e.Source).To(Equal(v1alpha1.OriginRepository))
			}
		})

		It("fills in the login of the authenticated user", func() {
			result, err := engine.Aggregate(ctx, Request{Repositories: []string{"acme/widgets"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Diagnostics.Login).To(Equal("me"))
			Expect(result.Diagnostics.RunID).NotTo(BeEmpty())
		})

		It("records skipped records by reason", func() {
			result, err := engine.Aggregate(ctx, Request{Repositories: []string{"acme/widgets"}})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Diagnostics.SkippedByReason).To(HaveKey("not_actor"))
			Expect(result.Diagnostics.Processed).To(Equal(result.Diagnostics.Skipped + len(result.Events)))
			Expect(testutil.GatherAndCount(reg, "contribfeed_run_duration_seconds")).To(Equal(1))
		})
	})

	Describe("Scenario: merge precedence", func() {
		BeforeEach(func() {
			opts.IncludeAccountActivity = true
			repo := "acme/widgets"
			fake.pulls[repo] = []*gh.PullRequest{merged(pullRequest(repo, 7, "me", epoch))}
			fake.feed = append(fake.feed, feedEvent("9001", "PullRequestEvent", "me", repo,
				`{"action":"closed","number":7,"pull_request":{"id":1007,"number":7,"url":"https://api.github.com/repos/acme/widgets/pulls/7"}}`,
				epoch.Add(time.Minute)))
		})

		It("keeps the more complete repository observation", func() {
			result, err := engine.Aggregate(ctx, Request{Repositories: []string{"acme/widgets"}})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Events).To(HaveLen(1))
			e := result.Events[0]
			Expect(e.ID).To(Equal("pr-1007"))
			Expect(e.Kind).To(Equal(v1alpha1.KindPRMerged))
			Expect(e.Source).To(Equal(v1alpha1.OriginRepository))
			Expect(e.PullRequest.Title).To(Equal("Change 7"))
		})
	})

	Describe("Scenario: contribution outside the selected repositories", func() {
		BeforeEach(func() {
			opts.IncludeAccountActivity = true
			fake.feed = append(fake.feed, feedEvent("9002", "IssueCommentEvent", "me", "other/proj",
				`{"action":"created",
				  "issue":{"number":3,"title":"Crash on start","html_url":"https://github.com/other/proj/issues/3"},
				  "comment":{"id":900,"body":"Same here","user":{"login":"me"},
				             "html_url":"https://github.com/other/proj/issues/3#issuecomment-900",
				             "created_at":"2025-03-02T00:00:00Z"}}`,
				epoch))
		})

		It("surfaces it from the account activity", func() {
			result, err := engine.Aggregate(ctx, Request{Repositories: []string{"acme/widgets"}})
			Expect(err).NotTo(HaveOccurred())

			Expect(eventIDs(result.Events)).To(Equal([]string{"comment-900"}))
			e := result.Events[0]
			Expect(e.Repository.FullName).To(Equal("other/proj"))
			Expect(e.Source).To(Equal(v1alpha1.OriginAccountActivity))
			Expect(e.Comment.AssociatedWith.Title).To(HaveValue(Equal("Crash on start")))
		})

		It("survives a failing feed", func() {
			fake.feedFails = true

			result, err := engine.Aggregate(ctx, Request{Repositories: []string{"acme/widgets"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Events).To(BeEmpty())
			Expect(result.Diagnostics.Failures).To(ContainElement(HaveField("Family", FamilyAccountActivity)))
		})
	})

	Describe("Scenario: pagination completeness", func() {
		BeforeEach(func() {
			opts.MaxEvents = 0
			repo := "acme/big"
			for n := 1; n <= 237; n++ {
				fake.pulls[repo] = append(fake.pulls[repo], pullRequest(repo, n, "me", epoch.Add(time.Duration(n)*time.Minute)))
			}
		})

		It("collects all 237 pull requests across three pages", func() {
			result, err := engine.Aggregate(ctx, Request{Repositories: []string{"acme/big"}})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Events).To(HaveLen(237))
			Expect(result.Total).To(Equal(237))
			Expect(result.Events[0].ID).To(Equal("pr-1237"))
			Expect(result.Events[236].ID).To(Equal("pr-1001"))
		})

		It("caps the returned events but reports the total", func() {
			engine.Options.MaxEvents = 100

			result, err := engine.Aggregate(ctx, Request{Repositories: []string{"acme/big"}})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Events).To(HaveLen(100))
			Expect(result.Total).To(Equal(237))
			for i := 1; i < len(result.Events); i++ {
				Expect(result.Events[i].Timestamp.After(result.Events[i-1].Timestamp)).To(BeFalse())
			}
		})
	})

	Describe("Scenario: partial failure isolation", func() {
		BeforeEach(func() {
			opts.BatchSize = 1
			for i, repo := range []string{"acme/one", "acme/two", "acme/three"} {
				fake.pulls[repo] = []*gh.PullRequest{pullRequest(repo, 10+i, "me", epoch.Add(time.Duration(i)*time.Hour))}
			}
			fake.failing.Insert("acme/two")
		})

		It("keeps the events of the healthy repositories", func() {
			result, err := engine.Aggregate(ctx, Request{Repositories: []string{"acme/one", "acme/two", "acme/three"}})
			Expect(err).NotTo(HaveOccurred())

			Expect(eventIDs(result.Events)).To(Equal([]string{"pr-1012", "pr-1010"}))
			Expect(result.Diagnostics.FailedRequests).To(Equal(4))
			Expect(result.Diagnostics.Failures).To(HaveEach(HaveField("Repository", "acme/two")))
		})
	})

	Describe("Scenario: rejected credential", func() {
		BeforeEach(func() {
			fake.unauthorized = true
		})

		It("fails the run with ErrNotAuthenticated", func() {
			result, err := engine.Aggregate(ctx, Request{Login: "me", Repositories: []string{"acme/widgets"}})
			Expect(err).To(MatchError(github.ErrNotAuthenticated))
			Expect(result).To(BeNil())
			Expect(fake.requested("/repos/")).To(BeZero())
		})
	})

	Describe("Scenario: nothing to report", func() {
		BeforeEach(func() {
			fake.pulls["acme/widgets"] = []*gh.PullRequest{pullRequest("acme/widgets", 1, "someone", epoch)}
		})

		It("explains the empty result", func() {
			result, err := engine.Aggregate(ctx, Request{Repositories: []string{"acme/widgets"}})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Events).To(BeEmpty())
			Expect(result.Events).NotTo(BeNil())
			Expect(result.Message).To(ContainSubstring("no contributions by me"))
		})

		It("reports invalid repository names", func() {
			result, err := engine.Aggregate(ctx, Request{Repositories: []string{"not-a-repo"}})
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Diagnostics.Failures).To(ConsistOf(HaveField("Repository", "not-a-repo")))
			Expect(result.Message).To(ContainSubstring("no repositories"))
		})
	})

	Describe("Scenario: repositories chosen by the selector", func() {
		BeforeEach(func() {
			unlicensed := licensedRepo("me/scratch")
			unlicensed.License = nil
			fake.repos = append(fake.repos, licensedRepo("me/tool"), unlicensed)
			fake.pulls["me/tool"] = []*gh.PullRequest{pullRequest("me/tool", 1, "me", epoch)}
		})

		It("aggregates only the repositories the policy accepts", func() {
			result, err := engine.Aggregate(ctx, Request{})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.Diagnostics.Repositories).To(Equal(1))
			Expect(eventIDs(result.Events)).To(Equal([]string{"pr-1001"}))
			Expect(fake.requested("/repos/me/scratch")).To(BeZero())
		})
	})

	Describe("Scenario: canceled context", func() {
		It("stops between batches", func() {
			engine.Options.BatchSize = 1
			engine.Options.BatchDelay = time.Second

			canceled, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
			defer cancel()

			repos := make([]string, 5)
			for i := range repos {
				repos[i] = fmt.Sprintf("acme/r%d", i)
			}
			_, err := engine.Aggregate(canceled, Request{Repositories: repos})
			Expect(err).To(MatchError(context.DeadlineExceeded))
		})
	})
})
