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

	gh "github.com/google/go-github/v66/github"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

// listFunc reads one page and returns the provider's next page (0 if unknown)
type listFunc[T any] func(ctx context.Context, opts gh.ListOptions) ([]T, int, error)

// paginate reads pages starting at 1 while they come back full. maxPages 0
// means no bound. A failed page ends the walk and its error is returned with
// everything read before it.
func paginate[T any](ctx context.Context, pageSize, maxPages int, what string, list listFunc[T]) ([]T, error) {
	logger := log.FromContext(ctx)
	var all []T

	page := 1
	for read := 0; maxPages == 0 || read < maxPages; read++ {
		if err := ctx.Err(); err != nil {
			return all, err
		}

		items, next, err := list(ctx, gh.ListOptions{Page: page, PerPage: pageSize})
		if err != nil {
			logger.Error(err, "Page request failed, keeping partial results", "what", what, "page", page, "kept", len(all))
			return all, err
		}
		all = append(all, items...)

		if len(items) < pageSize {
			break
		}
		if next > page {
			page = next
		} else {
			page++
		}
	}

	logger.V(1).Info("Pagination finished", "what", what, "records", len(all))
	return all, nil
}

// pagesFor returns how many pages of size pageSize hold n records
func pagesFor(n, pageSize int) int {
	return (n + pageSize - 1) / pageSize
}
