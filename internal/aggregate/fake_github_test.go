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
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	gh "github.com/google/go-github/v66/github"
	"k8s.io/apimachinery/pkg/util/sets"
)

var epoch = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// fakeGitHub serves the subset of the REST API the engine reads
type fakeGitHub struct {
	mu sync.Mutex

	login        string
	unauthorized bool
	feedFails    bool
	failing      sets.Set[string]

	pulls    map[string][]*gh.PullRequest
	issues   map[string][]*gh.Issue
	reviews  map[string][]*gh.PullRequestReview
	comments map[string][]*gh.IssueComment
	feed     []json.RawMessage
	repos    []*gh.Repository

	requests []string
}

func newFakeGitHub(login string) *fakeGitHub {
	return &fakeGitHub{
		login:    login,
		failing:  sets.New[string](),
		pulls:    map[string][]*gh.PullRequest{},
		issues:   map[string][]*gh.Issue{},
		reviews:  map[string][]*gh.PullRequestReview{},
		comments: map[string][]*gh.IssueComment{},
	}
}

func (f *fakeGitHub) start() *httptest.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		if f.unauthorized {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
			return
		}
		writeJSON(w, &gh.User{Login: ptr(f.login)})
	})
	mux.HandleFunc("GET /user/repos", func(w http.ResponseWriter, r *http.Request) {
		writePage(w, r, f.repos)
	})
	feed := func(w http.ResponseWriter, r *http.Request) {
		if f.feedFails {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"Server Error"}`))
			return
		}
		writePage(w, r, f.feed)
	}
	mux.HandleFunc("GET /users/{login}/events", feed)
	mux.HandleFunc("GET /users/{login}/events/public", feed)
	mux.HandleFunc("GET /repos/{owner}/{repo}/pulls", f.repo(func(w http.ResponseWriter, r *http.Request, name string) {
		writePage(w, r, f.pulls[name])
	}))
	mux.HandleFunc("GET /repos/{owner}/{repo}/pulls/{number}/reviews", f.repo(func(w http.ResponseWriter, r *http.Request, name string) {
		writePage(w, r, f.reviews[name+"#"+r.PathValue("number")])
	}))
	mux.HandleFunc("GET /repos/{owner}/{repo}/issues", f.repo(func(w http.ResponseWriter, r *http.Request, name string) {
		creator := r.URL.Query().Get("creator")
		var out []*gh.Issue
		for _, issue := range f.issues[name] {
			if creator == "" || strings.EqualFold(issue.GetUser().GetLogin(), creator) {
				out = append(out, issue)
			}
		}
		writePage(w, r, out)
	}))
	mux.HandleFunc("GET /repos/{owner}/{repo}/issues/{number}/comments", f.repo(func(w http.ResponseWriter, r *http.Request, name string) {
		writePage(w, r, f.comments[name+"#"+r.PathValue("number")])
	}))

	return httptest.NewServer(mux)
}

// repo wraps a repository handler with failure injection and request logging
func (f *fakeGitHub) repo(h func(w http.ResponseWriter, r *http.Request, name string)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.PathValue("owner") + "/" + r.PathValue("repo")
		f.mu.Lock()
		f.requests = append(f.requests, r.URL.Path)
		f.mu.Unlock()

		if f.failing.Has(name) {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"message":"Server Error"}`))
			return
		}
		h(w, r, name)
	}
}

func (f *fakeGitHub) requested(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, p := range f.requests {
		if strings.HasPrefix(p, prefix) {
			n++
		}
	}
	return n
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// writePage serves one page of items and links the next one
func writePage[T any](w http.ResponseWriter, r *http.Request, items []T) {
	perPage, _ := strconv.Atoi(r.URL.Query().Get("per_page"))
	if perPage <= 0 {
		perPage = 30
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}

	start := min((page-1)*perPage, len(items))
	end := min(start+perPage, len(items))
	if end < len(items) {
		next := *r.URL
		q := next.Query()
		q.Set("page", strconv.Itoa(page+1))
		next.RawQuery = q.Encode()
		w.Header().Set("Link", fmt.Sprintf(`<http://%s%s>; rel="next"`, r.Host, next.String()))
	}

	out := items[start:end]
	if out == nil {
		out = []T{}
	}
	writeJSON(w, out)
}

func pullRequest(repo string, number int, author string, updated time.Time) *gh.PullRequest {
	return &gh.PullRequest{
		ID:        ptr(int64(1000 + number)),
		Number:    ptr(number),
		State:     ptr("open"),
		Title:     ptr(fmt.Sprintf("Change %d", number)),
		HTMLURL:   ptr(fmt.Sprintf("https://github.com/%s/pull/%d", repo, number)),
		User:      &gh.User{Login: ptr(author)},
		CreatedAt: &gh.Timestamp{Time: updated.Add(-time.Hour)},
		UpdatedAt: &gh.Timestamp{Time: updated},
		Base: &gh.PullRequestBranch{
			Ref:  ptr("main"),
			Repo: &gh.Repository{FullName: ptr(repo)},
		},
		Head: &gh.PullRequestBranch{Ref: ptr(fmt.Sprintf("change-%d", number))},
	}
}

func merged(pr *gh.PullRequest) *gh.PullRequest {
	pr.State = ptr("closed")
	pr.Merged = ptr(true)
	pr.MergedAt = &gh.Timestamp{Time: pr.GetUpdatedAt().Time}
	return pr
}

func issue(repo string, number int, author string, updated time.Time) *gh.Issue {
	return &gh.Issue{
		ID:            ptr(int64(2000 + number)),
		Number:        ptr(number),
		State:         ptr("open"),
		Title:         ptr(fmt.Sprintf("Problem %d", number)),
		HTMLURL:       ptr(fmt.Sprintf("https://github.com/%s/issues/%d", repo, number)),
		RepositoryURL: ptr("https://api.github.com/repos/" + repo),
		User:          &gh.User{Login: ptr(author)},
		CreatedAt:     &gh.Timestamp{Time: updated.Add(-time.Hour)},
		UpdatedAt:     &gh.Timestamp{Time: updated},
	}
}

func review(repo string, id int64, number int, author string, submitted time.Time) *gh.PullRequestReview {
	return &gh.PullRequestReview{
		ID:             ptr(id),
		State:          ptr("APPROVED"),
		Body:           ptr("Looks good"),
		User:           &gh.User{Login: ptr(author)},
		HTMLURL:        ptr(fmt.Sprintf("https://github.com/%s/pull/%d#pullrequestreview-%d", repo, number, id)),
		PullRequestURL: ptr(fmt.Sprintf("https://api.github.com/repos/%s/pulls/%d", repo, number)),
		SubmittedAt:    &gh.Timestamp{Time: submitted},
	}
}

func comment(repo string, id int64, number int, author string, created time.Time) *gh.IssueComment {
	return &gh.IssueComment{
		ID:        ptr(id),
		Body:      ptr("Thanks!"),
		User:      &gh.User{Login: ptr(author)},
		HTMLURL:   ptr(fmt.Sprintf("https://github.com/%s/issues/%d#issuecomment-%d", repo, number, id)),
		IssueURL:  ptr(fmt.Sprintf("https://api.github.com/repos/%s/issues/%d", repo, number)),
		CreatedAt: &gh.Timestamp{Time: created},
	}
}

// feedEvent builds an activity feed entry
func feedEvent(id, eventType, actor, repo, payload string, created time.Time) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(
		`{"id":%q,"type":%q,"actor":{"login":%q},"repo":{"name":%q,"url":"https://api.github.com/repos/%s"},"payload":%s,"created_at":%q}`,
		id, eventType, actor, repo, repo, payload, created.Format(time.RFC3339)))
}

func licensedRepo(name string) *gh.Repository {
	owner, _, _ := strings.Cut(name, "/")
	return &gh.Repository{
		FullName: ptr(name),
		Private:  ptr(false),
		Owner:    &gh.User{Login: ptr(owner), Type: ptr("User")},
		License:  &gh.License{Key: ptr("mit"), SPDXID: ptr("MIT")},
	}
}

func ptr[T any](v T) *T { return &v }
