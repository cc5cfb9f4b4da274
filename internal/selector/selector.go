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

// Package selector picks the repositories to aggregate when a request does
// not name any.
package selector

import (
	"context"
	"fmt"

	gh "github.com/google/go-github/v66/github"
	"k8s.io/apimachinery/pkg/util/sets"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/contribfeed/internal/github"
)

const pageSize = 100

// Selector lists the authenticated user's repositories and filters them
// through a Policy
type Selector struct {
	client github.Client
	policy Policy
}

// New returns a Selector. A nil policy means LicensePolicy.
func New(client github.Client, policy Policy) *Selector {
	if policy == nil {
		policy = LicensePolicy{}
	}
	return &Selector{client: client, policy: policy}
}

// Select returns the full names of every accessible repository the policy
// accepts, most recently updated first.
func (s *Selector) Select(ctx context.Context, login string) ([]string, error) {
	logger := log.FromContext(ctx).WithValues("policy", s.policy.Name())

	seen := sets.New[string]()
	var selected []string
	listed := 0

	page := 1
	for {
		repos, next, err := s.client.ListUserRepositories(ctx, gh.ListOptions{Page: page, PerPage: pageSize})
		if err != nil {
			return nil, fmt.Errorf("list repositories page %d: %w", page, err)
		}
		listed += len(repos)

		for _, repo := range repos {
			name := repo.GetFullName()
			if name == "" || seen.Has(name) {
				continue
			}
			seen.Insert(name)
			if s.policy.Include(repo, login) {
				selected = append(selected, name)
			} else {
				logger.V(1).Info("Repository excluded", "repository", name)
			}
		}

		if len(repos) < pageSize {
			break
		}
		if next > page {
			page = next
		} else {
			page++
		}
	}

	logger.Info("Repositories selected", "listed", listed, "selected", len(selected))
	return selected, nil
}
