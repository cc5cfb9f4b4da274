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

package selector

import (
	"fmt"
	"strings"

	gh "github.com/google/go-github/v66/github"
	"k8s.io/apimachinery/pkg/util/sets"
)

// Policy names accepted by PolicyByName
const (
	PolicyLicense    = "license"
	PolicyPermissive = "permissive"
)

// OpenSourceTopics mark a repository as open source under PermissivePolicy
var OpenSourceTopics = sets.New("open-source", "opensource", "hacktoberfest", "oss", "open-source-project")

// Policy decides whether a repository takes part in aggregation for login
type Policy interface {
	Name() string
	Include(repo *gh.Repository, login string) bool
}

// LicensePolicy accepts public repositories carrying a real license
type LicensePolicy struct{}

func (LicensePolicy) Name() string { return PolicyLicense }

func (LicensePolicy) Include(repo *gh.Repository, _ string) bool {
	return !repo.GetPrivate() && hasLicense(repo)
}

// PermissivePolicy accepts public, licensed repositories that also look
// like open-source contribution targets.
type PermissivePolicy struct {
	MinStars int
	MinForks int
}

func (PermissivePolicy) Name() string { return PolicyPermissive }

func (p PermissivePolicy) Include(repo *gh.Repository, login string) bool {
	if repo.GetPrivate() || !hasLicense(repo) {
		return false
	}
	switch {
	case repo.GetOwner().GetType() == "Organization":
		return true
	case OpenSourceTopics.HasAny(lowered(repo.Topics)...):
		return true
	case strings.EqualFold(repo.GetOwner().GetLogin(), login) && !repo.GetFork():
		return true
	}
	return repo.GetStargazersCount() > p.MinStars || repo.GetForksCount() > p.MinForks
}

// PolicyByName returns the named policy. Thresholds only apply to the
// permissive policy.
func PolicyByName(name string, minStars, minForks int) (Policy, error) {
	switch strings.ToLower(name) {
	case "", PolicyLicense:
		return LicensePolicy{}, nil
	case PolicyPermissive:
		return PermissivePolicy{MinStars: minStars, MinForks: minForks}, nil
	}
	return nil, fmt.Errorf("unknown repository policy %q", name)
}

func hasLicense(repo *gh.Repository) bool {
	l := repo.GetLicense()
	if l == nil || l.GetKey() == "" {
		return false
	}
	switch strings.ToUpper(l.GetSPDXID()) {
	case "NOASSERTION", "NONE":
		return false
	}
	return true
}

func lowered(topics []string) []string {
	out := make([]string, len(topics))
	for i, t := range topics {
		out[i] = strings.ToLower(t)
	}
	return out
}
