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

// Package merge deduplicates overlapping observations of the same upstream
// record and orders the surviving events.
package merge

import (
	"sort"

	"github.com/mikelane/contribfeed/api/v1alpha1"
)

// Merge collapses events sharing an ID into one. The candidate with the
// more populated payload wins; ties prefer repository observations over
// account activity, then richer repository metadata, then the first one seen. Survivors keep the position where their
// ID was first seen.
func Merge(batches ...[]v1alpha1.Event) []v1alpha1.Event {
	index := make(map[string]int)
	var out []v1alpha1.Event

	for _, batch := range batches {
		for _, e := range batch {
			i, ok := index[e.ID]
			if !ok {
				index[e.ID] = len(out)
				out = append(out, e)
				continue
			}
			if prefer(e, out[i]) {
				out[i] = e
			}
		}
	}
	return out
}

// prefer reports whether candidate should replace current
func prefer(candidate, current v1alpha1.Event) bool {
	cc, cur := candidate.PayloadCompleteness(), current.PayloadCompleteness()
	if cc != cur {
		return cc > cur
	}
	if cr, rr := originRank(candidate.Source), originRank(current.Source); cr != rr {
		return cr > rr
	}
	return candidate.Completeness() > current.Completeness()
}

func originRank(o v1alpha1.Origin) int {
	if o == v1alpha1.OriginRepository {
		return 1
	}
	return 0
}

// Order sorts events by timestamp, newest first. Events with equal
// timestamps keep their relative order.
func Order(events []v1alpha1.Event) {
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].Timestamp.After(events[j].Timestamp)
	})
}
