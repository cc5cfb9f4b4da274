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

package normalize

import (
	"fmt"
	"time"

	gh "github.com/google/go-github/v66/github"
	"github.com/tidwall/gjson"

	"github.com/mikelane/contribfeed/api/v1alpha1"
	"github.com/mikelane/contribfeed/internal/classify"
)

// fromFeedEvent builds an event from an activity feed payload. Feed payloads
// are frequently trimmed, so every field is looked up and missing optional ones
// are left out.
func (n *Normalizer) fromFeedEvent(ev *gh.Event, cls classify.Classification) v1alpha1.Event {
	payload := classify.FeedPayload(ev)
	feedCreated := ev.CreatedAt.GetTime()

	e := v1alpha1.Event{Repository: feedRepository(ev, payload)}

	switch cls.Family {
	case v1alpha1.FamilyPullRequest:
		pr := payload.Get("pull_request")
		number := int(pr.Get("number").Int())
		e.Actor = feedActor(ev, pr.Get("user"))
		e.Timestamp = n.feedRecordTime(pr, feedCreated)
		e.PullRequest = &v1alpha1.PullRequestPayload{
			Number:  number,
			Title:   pr.Get("title").String(),
			Body:    optional(pr.Get("body").String()),
			State:   pullRequestState(cls.Kind),
			URL:     n.itemURL(pr.Get("html_url").String(), cls.FullName, "pull", number),
			BaseRef: pr.Get("base.ref").String(),
			HeadRef: pr.Get("head.ref").String(),
		}

	case v1alpha1.FamilyIssue:
		issue := payload.Get("issue")
		number := int(issue.Get("number").Int())
		p := &v1alpha1.IssuePayload{
			Number: number,
			Title:  issue.Get("title").String(),
			Body:   optional(issue.Get("body").String()),
			State:  issueState(cls.Kind),
			URL:    n.itemURL(issue.Get("html_url").String(), cls.FullName, "issues", number),
		}
		for _, l := range issue.Get("labels.#.name").Array() {
			if name := l.String(); name != "" {
				p.Labels = append(p.Labels, name)
			}
		}
		e.Actor = feedActor(ev, issue.Get("user"))
		e.Timestamp = n.feedRecordTime(issue, feedCreated)
		e.Issue = p

	case v1alpha1.FamilyReview:
		review := payload.Get("review")
		pr := payload.Get("pull_request")
		prNumber := int(pr.Get("number").Int())
		p := &v1alpha1.ReviewPayload{
			ReviewID: review.Get("id").Int(),
			State:    reviewState(review.Get("state").String()),
			Body:     optional(review.Get("body").String()),
			URL:      review.Get("html_url").String(),
			PRNumber: prNumber,
			PRTitle:  pr.Get("title").String(),
			PRURL:    n.itemURL(pr.Get("html_url").String(), cls.FullName, "pull", prNumber),
		}
		if p.URL == "" && p.PRURL != "" {
			p.URL = fmt.Sprintf("%s#pullrequestreview-%d", p.PRURL, p.ReviewID)
		}
		e.Actor = feedActor(ev, review.Get("user"))
		e.Timestamp = firstTime(gjsonTime(review.Get("submitted_at")), feedCreated)
		e.Review = p

	case v1alpha1.FamilyComment:
		comment := payload.Get("comment")
		assoc, parentURL := n.feedAssociation(ev.GetType(), payload, cls.FullName)
		url := comment.Get("html_url").String()
		if url == "" && parentURL != "" {
			url = fmt.Sprintf("%s#issuecomment-%d", parentURL, comment.Get("id").Int())
		}
		e.Actor = feedActor(ev, comment.Get("user"))
		e.Timestamp = firstTime(gjsonTime(comment.Get("created_at")), feedCreated)
		e.Comment = &v1alpha1.CommentPayload{
			CommentID:      comment.Get("id").Int(),
			Body:           comment.Get("body").String(),
			URL:            url,
			AssociatedWith: assoc,
		}
	}

	return e
}

// feedRecordTime applies the timestamp policy to a feed pull request or issue
func (n *Normalizer) feedRecordTime(record gjson.Result, feedCreated *time.Time) time.Time {
	return n.recordTime(gjsonTime(record.Get("created_at")), gjsonTime(record.Get("updated_at")), feedCreated)
}

func (n *Normalizer) feedAssociation(eventType string, payload gjson.Result, fullName string) (v1alpha1.Association, string) {
	parent := payload.Get("issue")
	assoc := v1alpha1.Association{Type: v1alpha1.AssociatedIssue}
	segment := "issues"
	if eventType == "PullRequestReviewCommentEvent" {
		parent = payload.Get("pull_request")
		assoc.Type = v1alpha1.AssociatedPR
		segment = "pull"
	} else if parent.Get("pull_request").Exists() {
		assoc.Type = v1alpha1.AssociatedPR
		segment = "pull"
	}

	assoc.Number = int(parent.Get("number").Int())
	assoc.Title = optional(parent.Get("title").String())
	parentURL := n.itemURL(parent.Get("html_url").String(), fullName, segment, assoc.Number)
	if parentURL != "" {
		assoc.URL = &parentURL
	}
	return assoc, parentURL
}

func feedRepository(ev *gh.Event, payload gjson.Result) v1alpha1.Repository {
	r := v1alpha1.Repository{}
	if ev.Repo != nil {
		r.ID = ev.Repo.GetID()
		r.FullName = ev.Repo.GetName()
	}

	// the pull request base carries the full repository object
	base := payload.Get("pull_request.base.repo")
	if full := base.Get("full_name").String(); full != "" && (r.FullName == "" || r.FullName == full) {
		r = v1alpha1.Repository{
			ID:       base.Get("id").Int(),
			Name:     base.Get("name").String(),
			FullName: full,
			Owner:    base.Get("owner.login").String(),
			URL:      base.Get("html_url").String(),
			Language: optional(base.Get("language").String()),
		}
	}
	return r
}

func feedActor(ev *gh.Event, user gjson.Result) v1alpha1.Actor {
	if login := user.Get("login").String(); login != "" {
		return v1alpha1.Actor{Login: login, AvatarURL: user.Get("avatar_url").String()}
	}
	return v1alpha1.Actor{Login: ev.GetActor().GetLogin(), AvatarURL: ev.GetActor().GetAvatarURL()}
}
