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

// Package classify decides what a raw upstream record is and whether it
// belongs to the user being aggregated.
//
// Classification is deterministic and has no side effects: the same record
// and login always produce the same Classification.
package classify

import (
	"strings"

	gh "github.com/google/go-github/v66/github"
	"github.com/tidwall/gjson"

	"github.com/mikelane/contribfeed/api/v1alpha1"
	"github.com/mikelane/contribfeed/internal/fetcher"
)

// Reason explains why a record was not turned into an event
type Reason string

const (
	ReasonNoRepository        Reason = "no_repository"
	ReasonUnknownShape        Reason = "unknown_shape"
	ReasonMissingID           Reason = "missing_id"
	ReasonNotActor            Reason = "not_actor"
	ReasonPullRequestInIssues Reason = "pull_request_in_issues"
	// ReasonInvalidEvent is assigned after normalization when the built event
	// fails validation
	ReasonInvalidEvent Reason = "invalid_event"
)

// Classification is the verdict on one raw record
type Classification struct {
	Kind       v1alpha1.EventKind
	Family     v1alpha1.Family
	UpstreamID int64
	Relevant   bool
	ActorLogin string
	FullName   string
	Reason     Reason
}

// EventID returns the canonical id of the classified record
func (c Classification) EventID() string {
	return v1alpha1.EventID(c.Family, c.UpstreamID)
}

func skip(c Classification, reason Reason) Classification {
	c.Relevant = false
	c.Reason = reason
	return c
}

// Classify decides the kind of raw and whether login is its actor.
func Classify(raw fetcher.Raw, login string) Classification {
	var c Classification
	switch {
	case raw.PullRequest != nil:
		c = classifyPullRequest(raw.PullRequest)
	case raw.Issue != nil:
		c = classifyIssue(raw.Issue)
	case raw.Review != nil:
		c = Classification{
			Kind:       v1alpha1.KindReviewSubmitted,
			Family:     v1alpha1.FamilyReview,
			UpstreamID: raw.Review.GetID(),
			ActorLogin: raw.Review.GetUser().GetLogin(),
		}
	case raw.Comment != nil:
		c = Classification{
			Kind:       v1alpha1.KindCommentCreated,
			Family:     v1alpha1.FamilyComment,
			UpstreamID: raw.Comment.GetID(),
			ActorLogin: raw.Comment.GetUser().GetLogin(),
		}
	case raw.FeedEvent != nil:
		c = classifyFeedEvent(raw.FeedEvent)
	default:
		return skip(c, ReasonUnknownShape)
	}

	if c.Reason != "" {
		return c
	}
	if c.Kind == "" {
		return skip(c, ReasonUnknownShape)
	}
	if c.UpstreamID == 0 {
		return skip(c, ReasonMissingID)
	}

	c.FullName = RepositoryFullName(raw)
	if c.FullName == "" {
		return skip(c, ReasonNoRepository)
	}
	if login == "" || !strings.EqualFold(c.ActorLogin, login) {
		return skip(c, ReasonNotActor)
	}

	c.Relevant = true
	return c
}

// PullRequestKind maps merge and state information to a pull request kind
func PullRequestKind(merged bool, state string) v1alpha1.EventKind {
	switch {
	case merged:
		return v1alpha1.KindPRMerged
	case strings.EqualFold(state, v1alpha1.PRStateClosed):
		return v1alpha1.KindPRClosed
	default:
		return v1alpha1.KindPROpened
	}
}

// IssueKind maps an issue state to an issue kind
func IssueKind(state string) v1alpha1.EventKind {
	if strings.EqualFold(state, v1alpha1.IssueStateClosed) {
		return v1alpha1.KindIssueClosed
	}
	return v1alpha1.KindIssueOpened
}

func classifyPullRequest(pr *gh.PullRequest) Classification {
	merged := pr.MergedAt != nil || pr.GetMerged()
	return Classification{
		Kind:       PullRequestKind(merged, pr.GetState()),
		Family:     v1alpha1.FamilyPullRequest,
		UpstreamID: pr.GetID(),
		ActorLogin: pr.GetUser().GetLogin(),
	}
}

func classifyIssue(issue *gh.Issue) Classification {
	c := Classification{
		Kind:       IssueKind(issue.GetState()),
		Family:     v1alpha1.FamilyIssue,
		UpstreamID: issue.GetID(),
		ActorLogin: issue.GetUser().GetLogin(),
	}
	if issue.IsPullRequest() {
		return skip(c, ReasonPullRequestInIssues)
	}
	return c
}

func classifyFeedEvent(ev *gh.Event) Classification {
	payload := FeedPayload(ev)
	actor := ev.GetActor().GetLogin()

	author := func(path string) string {
		if login := payload.Get(path).String(); login != "" {
			return login
		}
		return actor
	}

	switch ev.GetType() {
	case "PullRequestEvent":
		pr := payload.Get("pull_request")
		if !pr.Exists() {
			return skip(Classification{}, ReasonUnknownShape)
		}
		return Classification{
			Kind:       PullRequestKind(feedMerged(pr), feedPullRequestState(payload)),
			Family:     v1alpha1.FamilyPullRequest,
			UpstreamID: pr.Get("id").Int(),
			ActorLogin: author("pull_request.user.login"),
		}

	case "IssuesEvent":
		issue := payload.Get("issue")
		if !issue.Exists() {
			return skip(Classification{}, ReasonUnknownShape)
		}
		c := Classification{
			Kind:       IssueKind(feedIssueState(payload)),
			Family:     v1alpha1.FamilyIssue,
			UpstreamID: issue.Get("id").Int(),
			ActorLogin: author("issue.user.login"),
		}
		if issue.Get("pull_request").Exists() {
			return skip(c, ReasonPullRequestInIssues)
		}
		return c

	case "PullRequestReviewEvent":
		review := payload.Get("review")
		if !review.Exists() {
			return skip(Classification{}, ReasonUnknownShape)
		}
		return Classification{
			Kind:       v1alpha1.KindReviewSubmitted,
			Family:     v1alpha1.FamilyReview,
			UpstreamID: review.Get("id").Int(),
			ActorLogin: author("review.user.login"),
		}

	case "IssueCommentEvent", "PullRequestReviewCommentEvent":
		comment := payload.Get("comment")
		if !comment.Exists() {
			return skip(Classification{}, ReasonUnknownShape)
		}
		return Classification{
			Kind:       v1alpha1.KindCommentCreated,
			Family:     v1alpha1.FamilyComment,
			UpstreamID: comment.Get("id").Int(),
			ActorLogin: author("comment.user.login"),
		}
	}

	return skip(Classification{}, ReasonUnknownShape)
}

func feedMerged(pr gjson.Result) bool {
	if at := pr.Get("merged_at"); at.Exists() && at.Type != gjson.Null && at.String() != "" {
		return true
	}
	return pr.Get("merged").Bool()
}

// feedPullRequestState prefers the record state and falls back to the action
func feedPullRequestState(payload gjson.Result) string {
	if s := payload.Get("pull_request.state").String(); s != "" {
		return s
	}
	if payload.Get("action").String() == "closed" {
		return v1alpha1.PRStateClosed
	}
	return v1alpha1.PRStateOpen
}

func feedIssueState(payload gjson.Result) string {
	if s := payload.Get("issue.state").String(); s != "" {
		return s
	}
	if payload.Get("action").String() == "closed" {
		return v1alpha1.IssueStateClosed
	}
	return v1alpha1.IssueStateOpen
}
