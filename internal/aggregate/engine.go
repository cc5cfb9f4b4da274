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

// Package aggregate runs one contribution aggregation: it fetches every
// record family from the selected repositories and the account activity
// feed, turns relevant records into events, merges duplicates and orders the
// result newest first.
package aggregate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	utilerrors "k8s.io/apimachinery/pkg/util/errors"
	"k8s.io/apimachinery/pkg/util/sets"
	logf "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/contribfeed/api/v1alpha1"
	"github.com/mikelane/contribfeed/internal/classify"
	"github.com/mikelane/contribfeed/internal/fetcher"
	"github.com/mikelane/contribfeed/internal/github"
	"github.com/mikelane/contribfeed/internal/merge"
	"github.com/mikelane/contribfeed/internal/metrics"
	"github.com/mikelane/contribfeed/internal/normalize"
	"github.com/mikelane/contribfeed/internal/selector"
)

// Default tuning
const (
	DefaultBatchSize   = 10
	DefaultBatchDelay  = 200 * time.Millisecond
	DefaultConcurrency = 8
	DefaultMaxEvents   = 100
)

// FamilyAccountActivity labels failures of the activity feed in Diagnostics
const FamilyAccountActivity = "account_activity"

// Request names whose contributions to aggregate and where to look.
// An empty Login means the authenticated user. Without Repositories the
// selector picks them.
type Request struct {
	Login        string   `json:"login,omitempty"`
	Repositories []string `json:"repositories,omitempty"`
}

// Failure records one fetch that did not complete
type Failure struct {
	Repository string `json:"repository,omitempty"`
	Family     string `json:"family"`
	Error      string `json:"error"`
}

// Diagnostics describe a single run
type Diagnostics struct {
	RunID           string         `json:"run_id"`
	Login           string         `json:"login"`
	Repositories    int            `json:"repositories"`
	Processed       int            `json:"processed"`
	Skipped         int            `json:"skipped"`
	SkippedByReason map[string]int `json:"skipped_by_reason,omitempty"`
	FailedRequests  int            `json:"failed_requests"`
	Failures        []Failure      `json:"failures,omitempty"`
}

// Result is the outcome of Aggregate. Total counts events before the
// MaxEvents cap.
type Result struct {
	Events      []v1alpha1.Event `json:"events"`
	Total       int              `json:"total"`
	Message     string           `json:"message,omitempty"`
	Diagnostics Diagnostics      `json:"diagnostics"`
}

// Options tunes an Engine
type Options struct {
	BatchSize   int
	BatchDelay  time.Duration
	Concurrency int
	// MaxEvents caps the returned events. 0 means unlimited.
	MaxEvents int

	IncludeAccountActivity bool
	FeedMaxPages           int

	Fetch fetcher.Options
}

// DefaultOptions returns the default engine tuning
func DefaultOptions() Options {
	return Options{
		BatchSize:              DefaultBatchSize,
		BatchDelay:             DefaultBatchDelay,
		Concurrency:            DefaultConcurrency,
		MaxEvents:              DefaultMaxEvents,
		IncludeAccountActivity: true,
		FeedMaxPages:           fetcher.DefaultFeedMaxPages,
	}
}

// Engine runs aggregations. It keeps no state between runs and may be used
// concurrently.
type Engine struct {
	Client     github.Client
	Normalizer *normalize.Normalizer
	// Selector picks repositories for requests naming none. Optional.
	Selector *selector.Selector
	Metrics  *metrics.Recorder
	Options  Options
}

// unit is one fetch of one family from one repository
type unit struct {
	repo    fetcher.RepoRef
	fetcher fetcher.Fetcher
	raws    []fetcher.Raw
	err     error
}

// run carries the state of one Aggregate call
type run struct {
	diag    Diagnostics
	skipped map[string]int
}

// Aggregate runs one aggregation for req. Only a rejected credential or a
// canceled context fail the run; everything else ends up in Diagnostics.
func (e *Engine) Aggregate(ctx context.Context, req Request) (*Result, error) {
	start := time.Now()
	opts := e.options()
	r := &run{
		diag:    Diagnostics{RunID: uuid.NewString()},
		skipped: map[string]int{},
	}
	log := logf.FromContext(ctx).WithValues("run", r.diag.RunID)
	ctx = logf.IntoContext(ctx, log)

	login, err := e.resolveLogin(ctx, req.Login)
	if err != nil {
		return nil, err
	}
	r.diag.Login = login
	log = log.WithValues("login", login)
	ctx = logf.IntoContext(ctx, log)

	repos := e.repositories(ctx, r, req.Repositories, login)
	r.diag.Repositories = len(repos)
	log.Info("Aggregation started", "repositories", len(repos), "accountActivity", opts.IncludeAccountActivity)

	// The feed is read alongside the repository batches.
	var feed errgroup.Group
	var feedRaws []fetcher.Raw
	var feedErr error
	if opts.IncludeAccountActivity {
		feed.Go(func() error {
			feedRaws, feedErr = fetcher.NewAccountFetcher(e.Client, opts.Fetch.PageSize, opts.FeedMaxPages).Fetch(ctx, login)
			return nil
		})
	}

	units, err := e.fetchRepositories(ctx, repos, login, opts)
	_ = feed.Wait()
	if err != nil {
		return nil, err
	}

	var repoEvents []v1alpha1.Event
	var errs []error
	for _, u := range units {
		if u.err != nil {
			r.fail(u.repo.FullName(), string(u.fetcher.Family()), u.err)
			errs = append(errs, fmt.Errorf("%s %s: %w", u.repo, u.fetcher.Family(), u.err))
		}
		repoEvents = append(repoEvents, e.process(ctx, r, u.raws, login)...)
	}
	if feedErr != nil {
		r.fail("", FamilyAccountActivity, feedErr)
		errs = append(errs, fmt.Errorf("%s: %w", FamilyAccountActivity, feedErr))
	}
	feedEvents := e.process(ctx, r, feedRaws, login)

	events := merge.Merge(repoEvents, feedEvents)
	merge.Order(events)

	result := &Result{Total: len(events)}
	if opts.MaxEvents > 0 && len(events) > opts.MaxEvents {
		events = events[:opts.MaxEvents]
	}
	if events == nil {
		events = []v1alpha1.Event{}
	}
	result.Events = events

	if len(r.skipped) > 0 {
		r.diag.SkippedByReason = r.skipped
	}
	result.Diagnostics = r.diag
	result.Message = message(result, opts)

	if agg := utilerrors.NewAggregate(errs); agg != nil {
		log.Error(agg, "Some fetches did not complete", "failures", len(r.diag.Failures))
	}

	e.Metrics.RecordEmitted(len(result.Events))
	e.Metrics.ObserveRun(time.Since(start))
	log.Info("Aggregation finished",
		"events", len(result.Events),
		"total", result.Total,
		"processed", r.diag.Processed,
		"skipped", r.diag.Skipped,
		"failedRequests", r.diag.FailedRequests,
		"duration", time.Since(start))

	return result, nil
}

// resolveLogin checks the credential and returns the login to aggregate
func (e *Engine) resolveLogin(ctx context.Context, login string) (string, error) {
	log := logf.FromContext(ctx)

	user, err := e.Client.CurrentUser(ctx)
	switch {
	case errors.Is(err, github.ErrNotAuthenticated):
		return "", fmt.Errorf("aggregate: %w", err)
	case err != nil && login == "":
		return "", fmt.Errorf("aggregate: resolve login: %w", err)
	case err != nil:
		log.Error(err, "Identity check failed, continuing with requested login")
		return login, nil
	}

	if login == "" {
		login = user.GetLogin()
	}
	if login == "" {
		return "", errors.New("aggregate: no login to aggregate for")
	}
	return login, nil
}

// repositories resolves the repositories of a request, deduplicated in
// request order
func (e *Engine) repositories(ctx context.Context, r *run, names []string, login string) []fetcher.RepoRef {
	log := logf.FromContext(ctx)

	if len(names) == 0 && e.Selector != nil {
		selected, err := e.Selector.Select(ctx, login)
		if err != nil {
			log.Error(err, "Repository selection failed")
			r.fail("", "selection", err)
		}
		names = selected
	}

	seen := sets.New[string]()
	var repos []fetcher.RepoRef
	for _, name := range names {
		ref, err := fetcher.ParseRepoRef(name)
		if err != nil {
			r.fail(name, "selection", err)
			continue
		}
		if seen.Has(ref.FullName()) {
			continue
		}
		seen.Insert(ref.FullName())
		repos = append(repos, ref)
	}
	return repos
}

// fetchRepositories runs every (repository, family) unit, batch by batch.
// Units are returned in repository then family order regardless of when
// they finished.
func (e *Engine) fetchRepositories(ctx context.Context, repos []fetcher.RepoRef, login string, opts Options) ([]*unit, error) {
	log := logf.FromContext(ctx)
	fetchers := []fetcher.Fetcher{
		fetcher.NewPullRequestFetcher(e.Client, opts.Fetch),
		fetcher.NewIssueFetcher(e.Client, login, opts.Fetch),
		fetcher.NewReviewFetcher(e.Client, opts.Fetch),
		fetcher.NewCommentFetcher(e.Client, opts.Fetch),
	}

	units := make([]*unit, 0, len(repos)*len(fetchers))
	for _, repo := range repos {
		for _, f := range fetchers {
			units = append(units, &unit{repo: repo, fetcher: f})
		}
	}

	step := opts.BatchSize * len(fetchers)
	for first := 0; first < len(units); first += step {
		if first > 0 && opts.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(opts.BatchDelay):
			}
		}

		batch := units[first:min(first+step, len(units))]
		log.V(1).Info("Fetching batch", "batch", first/step+1, "units", len(batch))

		g := new(errgroup.Group)
		g.SetLimit(opts.Concurrency)
		for _, u := range batch {
			g.Go(func() error {
				u.raws, u.err = u.fetcher.Fetch(ctx, u.repo)
				return nil
			})
		}
		_ = g.Wait()

		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return units, nil
}

// process classifies and normalizes raws, keeping the relevant events
func (e *Engine) process(ctx context.Context, r *run, raws []fetcher.Raw, login string) []v1alpha1.Event {
	log := logf.FromContext(ctx)
	var events []v1alpha1.Event

	for _, raw := range raws {
		r.diag.Processed++
		cls := classify.Classify(raw, login)
		family := string(raw.Family)
		if family == "" {
			family = "unknown"
		}
		e.Metrics.RecordProcessed(family)

		if !cls.Relevant {
			r.skip(e.Metrics, cls.Reason)
			continue
		}

		event, err := e.normalizer().Normalize(raw, cls)
		if err != nil {
			log.V(1).Info("Dropping record", "id", cls.EventID(), "error", err.Error())
			r.skip(e.Metrics, classify.ReasonInvalidEvent)
			continue
		}
		events = append(events, event)
	}
	return events
}

func (r *run) skip(m *metrics.Recorder, reason classify.Reason) {
	r.diag.Skipped++
	r.skipped[string(reason)]++
	m.RecordSkipped(string(reason))
}

func (r *run) fail(repo, family string, err error) {
	r.diag.FailedRequests++
	r.diag.Failures = append(r.diag.Failures, Failure{Repository: repo, Family: family, Error: err.Error()})
}

func (e *Engine) normalizer() *normalize.Normalizer {
	if e.Normalizer == nil {
		return normalize.New(normalize.Options{})
	}
	return e.Normalizer
}

func (e *Engine) options() Options {
	o := e.Options
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BatchDelay < 0 {
		o.BatchDelay = 0
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.MaxEvents < 0 {
		o.MaxEvents = 0
	}
	return o
}

// message explains an empty result
func message(res *Result, opts Options) string {
	if len(res.Events) > 0 {
		return ""
	}
	d := res.Diagnostics
	switch {
	case d.Repositories == 0 && !opts.IncludeAccountActivity:
		return fmt.Sprintf("no repositories to aggregate for %s", d.Login)
	case d.Processed == 0 && d.FailedRequests > 0:
		return fmt.Sprintf("no contributions found for %s: every request failed", d.Login)
	case d.Processed == 0:
		return fmt.Sprintf("no activity found for %s in %d repositories", d.Login, d.Repositories)
	}
	return fmt.Sprintf("no contributions by %s among %d records in %d repositories", d.Login, d.Processed, d.Repositories)
}
