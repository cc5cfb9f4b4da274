/*
Copyright (c) 2025 Mike Lane

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

// Package v1alpha1 contains the canonical activity Event model shared by the
// aggregation engine and everything that consumes its output.
package v1alpha1

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// EventKind identifies what a single user action was.
type EventKind string

const (
	// KindPROpened is a pull request that is still open
	KindPROpened EventKind = "pr_opened"
	// KindPRClosed is a pull request that was closed without merging
	KindPRClosed EventKind = "pr_closed"
	// KindPRMerged is a pull request that was merged
	KindPRMerged EventKind = "pr_merged"
	// KindIssueOpened is an issue that is still open
	KindIssueOpened EventKind = "issue_opened"
	// KindIssueClosed is an issue that was closed
	KindIssueClosed EventKind = "issue_closed"
	// KindReviewSubmitted is a pull request review
	KindReviewSubmitted EventKind = "review_submitted"
	// KindCommentCreated is a comment on a pull request or issue
	KindCommentCreated EventKind = "comment_created"
)

// Family groups kinds that describe the same upstream record. A pull request
// observed as closed in one source and merged in another is one record.
type Family string

const (
	FamilyPullRequest Family = "pr"
	FamilyIssue       Family = "issue"
	FamilyReview      Family = "review"
	FamilyComment     Family = "comment"
)

// Origin records which fetcher produced an event.
type Origin string

const (
	// OriginRepository marks events read from per-repository endpoints
	OriginRepository Origin = "repository"
	// OriginAccountActivity marks events read from the account activity feed
	OriginAccountActivity Origin = "account_activity"
)

// PR states
const (
	PRStateOpen   = "open"
	PRStateClosed = "closed"
	PRStateMerged = "merged"
)

// Issue states
const (
	IssueStateOpen   = "open"
	IssueStateClosed = "closed"
)

// Review states
const (
	ReviewStateApproved         = "approved"
	ReviewStateChangesRequested = "changes_requested"
	ReviewStateCommented        = "commented"
)

// Comment association types
const (
	AssociatedPR    = "pr"
	AssociatedIssue = "issue"
)

// Family returns the record family of the kind, or "" for unknown kinds.
func (k EventKind) Family() Family {
	switch k {
	case KindPROpened, KindPRClosed, KindPRMerged:
		return FamilyPullRequest
	case KindIssueOpened, KindIssueClosed:
		return FamilyIssue
	case KindReviewSubmitted:
		return FamilyReview
	case KindCommentCreated:
		return FamilyComment
	default:
		return ""
	}
}

// KindFamily is the function form of EventKind.Family.
func KindFamily(kind EventKind) Family {
	return kind.Family()
}

// EventID derives the canonical event identifier for an upstream record.
func EventID(family Family, upstreamID int64) string {
	return string(family) + "-" + strconv.FormatInt(upstreamID, 10)
}

// Repository identifies the repository an event belongs to
type Repository struct {
	ID       int64   `json:"id,omitempty"`
	Name     string  `json:"name,omitempty"`
	FullName string  `json:"full_name"`
	Owner    string  `json:"owner_login,omitempty"`
	URL      string  `json:"url,omitempty"`
	Language *string `json:"language,omitempty"`
}

// Actor is the user associated with the action
type Actor struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// PullRequestPayload carries pull request details
type PullRequestPayload struct {
	Number  int     `json:"number"`
	Title   string  `json:"title"`
	Body    *string `json:"body,omitempty"`
	State   string  `json:"state"`
	URL     string  `json:"url"`
	BaseRef string  `json:"base_ref"`
	HeadRef string  `json:"head_ref"`
}

// IssuePayload carries issue details
type IssuePayload struct {
	Number int      `json:"number"`
	Title  string   `json:"title"`
	Body   *string  `json:"body,omitempty"`
	State  string   `json:"state"`
	URL    string   `json:"url"`
	Labels []string `json:"labels,omitempty"`
}

// ReviewPayload carries pull request review details
type ReviewPayload struct {
	ReviewID int64   `json:"review_id"`
	State    string  `json:"state"`
	Body     *string `json:"body,omitempty"`
	URL      string  `json:"url"`
	PRNumber int     `json:"pr_number"`
	PRTitle  string  `json:"pr_title"`
	PRURL    string  `json:"pr_url"`
}

// Association points a comment at the pull request or issue it was left on
type Association struct {
	Type   string  `json:"type"`
	Number int     `json:"number"`
	Title  *string `json:"title,omitempty"`
	URL    *string `json:"url,omitempty"`
}

// CommentPayload carries comment details
type CommentPayload struct {
	CommentID      int64       `json:"comment_id"`
	Body           string      `json:"body"`
	URL            string      `json:"url"`
	AssociatedWith Association `json:"associated_with"`
}

// Event is one normalized user action. Exactly one payload pointer is set,
// selected by Kind.
type Event struct {
	ID         string     `json:"id"`
	Kind       EventKind  `json:"kind"`
	Timestamp  time.Time  `json:"timestamp"`
	Repository Repository `json:"repository"`
	Actor      Actor      `json:"actor"`
	Source     Origin     `json:"source,omitempty"`

	PullRequest *PullRequestPayload `json:"pull_request,omitempty"`
	Issue       *IssuePayload       `json:"issue,omitempty"`
	Review      *ReviewPayload      `json:"review,omitempty"`
	Comment     *CommentPayload     `json:"comment,omitempty"`
}

// Validation errors
var (
	ErrMissingID         = errors.New("event id is empty")
	ErrMissingRepository = errors.New("repository full_name is empty")
	ErrPayloadMismatch   = errors.New("payload does not match event kind")
	ErrStateMismatch     = errors.New("payload state does not match event kind")
	ErrRelativeURL       = errors.New("url is not fully qualified")
)

// Validate checks the invariants every emitted event must satisfy
func (e *Event) Validate() error {
	if e.ID == "" {
		return ErrMissingID
	}
	if e.Repository.FullName == "" {
		return ErrMissingRepository
	}
	if !e.payloadMatchesKind() {
		return fmt.Errorf("%w: kind %s", ErrPayloadMismatch, e.Kind)
	}

	switch e.Kind {
	case KindPRMerged:
		if e.PullRequest.State != PRStateMerged {
			return fmt.Errorf("%w: %s with state %q", ErrStateMismatch, e.Kind, e.PullRequest.State)
		}
	case KindPRClosed:
		if e.PullRequest.State != PRStateClosed {
			return fmt.Errorf("%w: %s with state %q", ErrStateMismatch, e.Kind, e.PullRequest.State)
		}
	case KindPROpened:
		if e.PullRequest.State != PRStateOpen {
			return fmt.Errorf("%w: %s with state %q", ErrStateMismatch, e.Kind, e.PullRequest.State)
		}
	case KindIssueClosed:
		if e.Issue.State != IssueStateClosed {
			return fmt.Errorf("%w: %s with state %q", ErrStateMismatch, e.Kind, e.Issue.State)
		}
	case KindIssueOpened:
		if e.Issue.State != IssueStateOpen {
			return fmt.Errorf("%w: %s with state %q", ErrStateMismatch, e.Kind, e.Issue.State)
		}
	}

	for _, u := range e.urls() {
		if !isAbsoluteURL(u) {
			return fmt.Errorf("%w: %q", ErrRelativeURL, u)
		}
	}
	return nil
}

func (e *Event) payloadMatchesKind() bool {
	set := 0
	for _, present := range []bool{e.PullRequest != nil, e.Issue != nil, e.Review != nil, e.Comment != nil} {
		if present {
			set++
		}
	}
	if set != 1 {
		return false
	}

	switch e.Kind.Family() {
	case FamilyPullRequest:
		return e.PullRequest != nil
	case FamilyIssue:
		return e.Issue != nil
	case FamilyReview:
		return e.Review != nil
	case FamilyComment:
		return e.Comment != nil
	default:
		return false
	}
}

// urls returns every non-empty URL field of the event
func (e *Event) urls() []string {
	var out []string
	add := func(s string) {
		if s != "" {
			out = append(out, s)
		}
	}
	add(e.Repository.URL)
	add(e.Actor.AvatarURL)
	switch {
	case e.PullRequest != nil:
		add(e.PullRequest.URL)
	case e.Issue != nil:
		add(e.Issue.URL)
	case e.Review != nil:
		add(e.Review.URL)
		add(e.Review.PRURL)
	case e.Comment != nil:
		add(e.Comment.URL)
		if e.Comment.AssociatedWith.URL != nil {
			add(*e.Comment.AssociatedWith.URL)
		}
	}
	return out
}

func isAbsoluteURL(s string) bool {
	u, err := url.Parse(s)
	return err == nil && u.Scheme != "" && u.Host != ""
}

// Completeness counts the populated payload fields plus optional repository
// metadata.
func (e *Event) Completeness() int {
	n := e.PayloadCompleteness()
	for _, p := range []bool{e.Repository.ID != 0, e.Repository.Name != "", e.Repository.Owner != "",
		e.Repository.URL != "", e.Repository.Language != nil, e.Actor.AvatarURL != ""} {
		if p {
			n++
		}
	}
	return n
}

// PayloadCompleteness counts the populated fields of the kind-specific
// payload only. Two observations of the same record are compared by it.
func (e *Event) PayloadCompleteness() int {
	n := 0
	count := func(present ...bool) {
		for _, p := range present {
			if p {
				n++
			}
		}
	}

	switch {
	case e.PullRequest != nil:
		p := e.PullRequest
		count(p.Number != 0, p.Title != "", p.Body != nil, p.State != "", p.URL != "",
			p.BaseRef != "", p.HeadRef != "")
	case e.Issue != nil:
		p := e.Issue
		count(p.Number != 0, p.Title != "", p.Body != nil, p.State != "", p.URL != "",
			len(p.Labels) > 0)
	case e.Review != nil:
		p := e.Review
		count(p.ReviewID != 0, p.State != "", p.Body != nil, p.URL != "", p.PRNumber != 0,
			p.PRTitle != "", p.PRURL != "")
	case e.Comment != nil:
		p := e.Comment
		count(p.CommentID != 0, p.Body != "", p.URL != "", p.AssociatedWith.Type != "",
			p.AssociatedWith.Number != 0, p.AssociatedWith.Title != nil, p.AssociatedWith.URL != nil)
	}
	return n
}
