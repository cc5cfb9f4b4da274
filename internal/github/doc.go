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

// Package github provides read-only GitHub API access for activity aggregation.
//
// The client wraps go-github and adds the behavior every caller needs:
//
//   - Bearer authentication through an oauth2 static token source
//   - A shared token bucket throttle; callers wait, they never fail on it
//   - A timeout for every single request attempt
//   - Retry with exponential backoff and jitter for 429, 502, 503, 504 and
//     primary or secondary rate limits
//   - Per-endpoint request counters
//
// List methods read exactly one page so callers own the pagination policy:
//
//	client, err := github.NewClient(github.Options{Token: token})
//	if err != nil {
//	    return err
//	}
//	prs, next, err := client.ListPullRequests(ctx, "owner", "repo", gogithub.ListOptions{Page: 1, PerPage: 100})
//
// A 401 from CurrentUser is reported as ErrNotAuthenticated. Rate limits that
// reset later than the configured maximum backoff are returned to the caller
// instead of being waited out.
package github
