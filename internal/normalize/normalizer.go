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

// Package normalize turns classified raw records into canonical events.
package normalize

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	gh "github.com/google/go-github/v66/github"
	"github.com/tidwall/gjson"

	"github.com/mikelane/contribfeed/api/v1alpha1"
	"github.com/mikelane/contribfeed/internal/classify"
	"github.com/mikelane/contribfeed/internal/fetcher"
)

// DefaultWebURL is the web root used to build missing URLs
const DefaultWebURL = "https://github.com"

// TimestampPolicy selects which instant represents a pull request or issue
type TimestampPolicy string

const (
	// TimestampUpdated uses the last update, falling back to creation
	TimestampUpdated TimestampPolicy = "updated"
	// TimestampCreated uses creation, falling back to the last update
	TimestampCreated TimestampPolicy = "created"
)

var (
	// ErrNotRelevant is returned for records the classifier rejected
	ErrNotRelevant = errors.New("record is not relevant")
	// ErrInvalidEvent is returned when the built event fails validation
	ErrInvalidEvent = errors.New("invalid event")
)

// Options configures a Normalizer
type Options struct {
	WebURL          string
	TimestampPolicy TimestampPolicy
}

// Normalizer builds events. It holds no per-run state and is safe for
// concurrent use.
type Normalizer struct {
	webURL string
	policy TimestampPolicy
}

// New creates a Normalizer
func New(opts Options) *Normalizer {
	web := strings.TrimRight(opts.WebURL, "/")
	if web == "" {
		web = DefaultWebURL
	}
	policy := opts.TimestampPolicy
	if policy != TimestampCreated {
		policy = TimestampUpdated
	}
	return &Normalizer{webURL: web, policy: policy}
}

// Normalize builds the canonical event for a relevant record. The event is
// validated before it is returned.
func (n *Normalizer) Normalize(raw fetcher.Raw, cls classify.Classification) (v1alpha1.Event, error) {
	if !cls.Relevant {
		return v1alpha1.Event{}, fmt.Errorf("%w: %s", ErrNotRelevant, cls.Reason)
	}

	var e v1alpha1.Event
	switch {
	case raw.PullRequest != nil:
		e = n.fromPullRequest(raw.PullRequest, cls)
	case raw.Issue != nil:
		e = n.fromIssue(raw.Issue, cls)
	case raw.Review != nil:
		e = n.fromReview(raw.Review, raw.ParentPullRequest, cls)
	case raw.Comment != nil:
		e = n.fromComment(raw.Comment, raw.ParentIssue, cls)
	case raw.FeedEvent != nil:
		e = n.fromFeedEvent(raw.FeedEvent, cls)
	default:
		return v1alpha1.Event{}, fmt.Errorf("%w: record has no payload", ErrInvalidEvent)
	}

	e.ID = cls.EventID()
	e.Kind = cls.Kind
	e.Source = raw.Origin
	if e.Actor.Login == "" {
		e.Actor.Login = cls.ActorLogin
	}
	n.completeRepository(&e.Repository, cls.FullName)

	if err := e.Validate(); err != nil {
		return v1alpha1.Event{}, fmt.Errorf("%w: %s: %w", ErrInvalidEvent, e.ID, err)
	}
	return e, nil
}

func (n *Normalizer) fromPullRequest(pr *gh.PullRequest, cls classify.Classification) v1alpha1.Event {
	var repo *gh.Repository
	if pr.Base != nil {
		repo = pr.Base.Repo
	}

	payload := &v1alpha1.PullRequestPayload{
		Number: pr.GetNumber(),
		Title:  pr.GetTitle(),
		Body:   optional(pr.GetBody()),
		State:  pullRequestState(cls.Kind),
		URL:    n.itemURL(pr.GetHTMLURL(), cls.FullName, "pull", pr.GetNumber()),
	}
	if pr.Base != nil {
		payload.BaseRef = pr.Base.GetRef()
	}
	if pr.Head != nil {
		payload.HeadRef = pr.Head.GetRef()
	}

	return v1alpha1.Event{
		Timestamp:   n.recordTime(pr.CreatedAt.GetTime(), pr.UpdatedAt.GetTime(), nil),
		Repository:  repositoryFrom(repo),
		Actor:       actorFrom(pr.User),
		PullRequest: payload,
	}
}

func (n *Normalizer) fromIssue(issue *gh.Issue, cls classify.Classification) v1alpha1.Event {
	payload := &v1alpha1.IssuePayload{
		Number: issue.GetNumber(),
		Title:  issue.GetTitle(),
		Body:   optional(issue.GetBody()),
		State:  issueState(cls.Kind),
		URL:    n.itemURL(issue.GetHTMLURL(), cls.FullName, "issues", issue.GetNumber()),
	}
	for _, l := range issue.Labels {
		if name := l.GetName(); name != "" {
			payload.Labels = append(payload.Labels, name)
		}
	}

	return v1alpha1.Event{
		Timestamp:  n.recordTime(issue.CreatedAt.GetTime(), issue.UpdatedAt.GetTime(), nil),
		Repository: repositoryFrom(issue.Repository),
		Actor:      actorFrom(issue.User),
		Issue:      payload,
	}
}

func (n *Normalizer) fromReview(review *gh.PullRequestReview, parent *gh.PullRequest, cls classify.Classification) v1alpha1.Event {
	payload := &v1alpha1.ReviewPayload{
		ReviewID: review.GetID(),
		State:    reviewState(review.GetState()),
		Body:     optional(review.GetBody()),
		PRNumber: parent.GetNumber(),
		PRTitle:  parent.GetTitle(),
		PRURL:    n.itemURL(parent.GetHTMLURL(), cls.FullName, "pull", parent.GetNumber()),
	}
	if payload.PRNumber == 0 {
		payload.PRNumber = numberFromURL(review.GetPullRequestURL())
		payload.PRURL = n.itemURL("", cls.FullName, "pull", payload.PRNumber)
	}
	payload.URL = review.GetHTMLURL()
	if payload.URL == "" {
		payload.URL = fmt.Sprintf("%s#pullrequestreview-%d", payload.PRURL, review.GetID())
	}

	var repo *gh.Repository
	var fallback *gh.Timestamp
	if parent != nil {
		fallback = parent.UpdatedAt
		if parent.Base != nil {
			repo = parent.Base.Repo
		}
	}

	return v1alpha1.Event{
		Timestamp:  firstTime(review.SubmittedAt.GetTime(), fallback.GetTime()),
		Repository: repositoryFrom(repo),
		Actor:      actorFrom(review.User),
		Review:     payload,
	}
}

func (n *Normalizer) fromComment(comment *gh.IssueComment, parent *gh.Issue, cls classify.Classification) v1alpha1.Event {
	assoc := v1alpha1.Association{Type: v1alpha1.AssociatedIssue}
	segment := "issues"
	var repo *gh.Repository
	if parent != nil {
		if parent.IsPullRequest() {
			assoc.Type = v1alpha1.AssociatedPR
			segment = "pull"
		}
		assoc.Number = parent.GetNumber()
		assoc.Title = optional(parent.GetTitle())
		repo = parent.Repository
	}
	if assoc.Number == 0 {
		assoc.Number = numberFromURL(comment.GetIssueURL())
	}
	if assoc.Number != 0 {
		u := n.itemURL(parent.GetHTMLURL(), cls.FullName, segment, assoc.Number)
		assoc.URL = &u
	}

	url := comment.GetHTMLURL()
	if url == "" && assoc.URL != nil {
		url = fmt.Sprintf("%s#issuecomment-%d", *assoc.URL, comment.GetID())
	}

	return v1alpha1.Event{
		Timestamp:  firstTime(comment.CreatedAt.GetTime(), comment.UpdatedAt.GetTime()),
		Repository: repositoryFrom(repo),
		Actor:      actorFrom(comment.User),
		Comment: &v1alpha1.CommentPayload{
			CommentID:      comment.GetID(),
			Body:           comment.GetBody(),
			URL:            url,
			AssociatedWith: assoc,
		},
	}
}

// recordTime applies the timestamp policy to a pull request or issue
func (n *Normalizer) recordTime(created, updated, feedCreated *time.Time) time.Time {
	if n.policy == TimestampCreated {
		return firstTime(created, updated, feedCreated)
	}
	return firstTime(updated, created, feedCreated)
}

// completeRepository fills the mandatory repository fields that can be
// derived from the full name
func (n *Normalizer) completeRepository(r *v1alpha1.Repository, fullName string) {
	if r.FullName == "" {
		r.FullName = fullName
	}
	owner, name, ok := strings.Cut(r.FullName, "/")
	if ok {
		if r.Owner == "" {
			r.Owner = owner
		}
		if r.Name == "" {
			r.Name = name
		}
	}
	if r.URL == "" && r.FullName != "" {
		r.URL = n.webURL + "/" + r.FullName
	}
}

// itemURL returns htmlURL, or builds <web>/<full>/<segment>/<number>
func (n *Normalizer) itemURL(htmlURL, fullName, segment string, number int) string {
	if htmlURL != "" {
		return htmlURL
	}
	if fullName == "" || number == 0 {
		return ""
	}
	return fmt.Sprintf("%s/%s/%s/%d", n.webURL, fullName, segment, number)
}

func repositoryFrom(r *gh.Repository) v1alpha1.Repository {
	if r == nil {
		return v1alpha1.Repository{}
	}
	return v1alpha1.Repository{
		ID:       r.GetID(),
		Name:     r.GetName(),
		FullName: r.GetFullName(),
		Owner:    r.GetOwner().GetLogin(),
		URL:      r.GetHTMLURL(),
		Language: optional(r.GetLanguage()),
	}
}

func actorFrom(u *gh.User) v1alpha1.Actor {
	return v1alpha1.Actor{Login: u.GetLogin(), AvatarURL: u.GetAvatarURL()}
}

func pullRequestState(kind v1alpha1.EventKind) string {
	switch kind {
	case v1alpha1.KindPRMerged:
		return v1alpha1.PRStateMerged
	case v1alpha1.KindPRClosed:
		return v1alpha1.PRStateClosed
	default:
		return v1alpha1.PRStateOpen
	}
}

func issueState(kind v1alpha1.EventKind) string {
	if kind == v1alpha1.KindIssueClosed {
		return v1alpha1.IssueStateClosed
	}
	return v1alpha1.IssueStateOpen
}

// reviewState maps upstream review states; dismissed and pending reviews
// count as comments
func reviewState(s string) string {
	switch strings.ToLower(s) {
	case v1alpha1.ReviewStateApproved:
		return v1alpha1.ReviewStateApproved
	case v1alpha1.ReviewStateChangesRequested:
		return v1alpha1.ReviewStateChangesRequested
	default:
		return v1alpha1.ReviewStateCommented
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func firstTime(candidates ...*time.Time) time.Time {
	for _, t := range candidates {
		if t != nil && !t.IsZero() {
			return t.UTC()
		}
	}
	return time.Time{}
}

// numberFromURL returns the trailing number of an issue or pull request URL
func numberFromURL(u string) int {
	if u == "" {
		return 0
	}
	num, err := strconv.Atoi(path.Base(u))
	if err != nil {
		return 0
	}
	return num
}

func gjsonTime(r gjson.Result) *time.Time {
	if !r.Exists() || r.String() == "" {
		return nil
	}
	t := r.Time()
	if t.IsZero() {
		return nil
	}
	return &t
}
