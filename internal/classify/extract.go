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

package classify

import (
	"regexp"

	gh "github.com/google/go-github/v66/github"
	"github.com/tidwall/gjson"

	"github.com/mikelane/contribfeed/internal/fetcher"
)

var (
	// https://github.com/<owner>/<repo>/pull/<n> or .../issues/<n>
	htmlURLPattern = regexp.MustCompile(`^https?://[^/]+/([^/]+)/([^/]+)/(?:pull|issues)/\d+`)
	// https://api.github.com/repos/<owner>/<repo>[/...] or <host>/api/v3/repos/...
	apiURLPattern = regexp.MustCompile(`^https?://[^/]+/(?:api/v3/)?repos/([^/]+)/([^/?#]+)(?:[/?#]|$)`)
)

// repoStrategy returns the repository full name of a record, or "" if it
// cannot tell
type repoStrategy func(raw fetcher.Raw, payload gjson.Result) string

// repoStrategies run in order; the first non-empty answer wins
var repoStrategies = []repoStrategy{
	fromRepositoryObject,
	fromURLs,
	fromParent,
}

// RepositoryFullName resolves the repository of a record through the ordered
// extraction strategies.
func RepositoryFullName(raw fetcher.Raw) string {
	payload := FeedPayload(raw.FeedEvent)
	for _, s := range repoStrategies {
		if name := s(raw, payload); name != "" {
			return name
		}
	}
	return ""
}

// FeedPayload parses the raw payload of a feed event. The zero Result is
// returned for nil events.
func FeedPayload(ev *gh.Event) gjson.Result {
	if ev == nil || ev.RawPayload == nil {
		return gjson.Result{}
	}
	return gjson.ParseBytes(*ev.RawPayload)
}

func fromRepositoryObject(raw fetcher.Raw, payload gjson.Result) string {
	switch {
	case raw.PullRequest != nil:
		if raw.PullRequest.Base != nil && raw.PullRequest.Base.Repo != nil {
			return raw.PullRequest.Base.Repo.GetFullName()
		}
	case raw.Issue != nil:
		if raw.Issue.Repository != nil {
			return raw.Issue.Repository.GetFullName()
		}
	case raw.FeedEvent != nil:
		if raw.FeedEvent.Repo != nil && raw.FeedEvent.Repo.GetName() != "" {
			return raw.FeedEvent.Repo.GetName()
		}
		return payload.Get("pull_request.base.repo.full_name").String()
	}
	return ""
}

func fromURLs(raw fetcher.Raw, payload gjson.Result) string {
	var candidates []string
	switch {
	case raw.PullRequest != nil:
		candidates = []string{raw.PullRequest.GetHTMLURL(), raw.PullRequest.GetURL()}
	case raw.Issue != nil:
		candidates = []string{raw.Issue.GetHTMLURL(), raw.Issue.GetRepositoryURL(), raw.Issue.GetURL()}
	case raw.Review != nil:
		candidates = []string{raw.Review.GetHTMLURL(), raw.Review.GetPullRequestURL()}
	case raw.Comment != nil:
		candidates = []string{raw.Comment.GetHTMLURL(), raw.Comment.GetIssueURL(), raw.Comment.GetURL()}
	case raw.FeedEvent != nil:
		for _, path := range []string{
			"pull_request.html_url", "issue.html_url", "review.html_url", "comment.html_url",
			"pull_request.url", "issue.repository_url", "review.pull_request_url",
			"comment.issue_url", "comment.pull_request_url",
		} {
			candidates = append(candidates, payload.Get(path).String())
		}
		if raw.FeedEvent.Repo != nil {
			candidates = append(candidates, raw.FeedEvent.Repo.GetURL())
		}
	}

	for _, c := range candidates {
		if name := repoFromURL(c); name != "" {
			return name
		}
	}
	return ""
}

func fromParent(raw fetcher.Raw, _ gjson.Result) string {
	if name := raw.Repo.FullName(); name != "" {
		return name
	}
	if pr := raw.ParentPullRequest; pr != nil {
		if pr.Base != nil && pr.Base.Repo != nil && pr.Base.Repo.GetFullName() != "" {
			return pr.Base.Repo.GetFullName()
		}
		if name := repoFromURL(pr.GetHTMLURL()); name != "" {
			return name
		}
	}
	if issue := raw.ParentIssue; issue != nil {
		if issue.Repository != nil && issue.Repository.GetFullName() != "" {
			return issue.Repository.GetFullName()
		}
		if name := repoFromURL(issue.GetRepositoryURL()); name != "" {
			return name
		}
	}
	return ""
}

// repoFromURL extracts owner/repo from a web or API URL. The web pattern
// runs first: an owner or repository may itself be named "repos".
func repoFromURL(u string) string {
	if u == "" {
		return ""
	}
	if m := htmlURLPattern.FindStringSubmatch(u); m != nil {
		return m[1] + "/" + m[2]
	}
	if m := apiURLPattern.FindStringSubmatch(u); m != nil {
		return m[1] + "/" + m[2]
	}
	return ""
}
