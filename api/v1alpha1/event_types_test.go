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

package v1alpha1

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func strPtr(s string) *string { return &s }

func mergedPR() Event {
	return Event{
		ID:        EventID(FamilyPullRequest, 42),
		Kind:      KindPRMerged,
		Timestamp: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		Repository: Repository{
			ID:       7,
			Name:     "repo",
			FullName: "owner/repo",
			Owner:    "owner",
			URL:      "https://github.com/owner/repo",
		},
		Actor: Actor{Login: "alice", AvatarURL: "https://avatars.example.com/u/1"},
		PullRequest: &PullRequestPayload{
			Number:  12,
			Title:   "Add feature",
			State:   PRStateMerged,
			URL:     "https://github.com/owner/repo/pull/12",
			BaseRef: "main",
			HeadRef: "feature",
		},
	}
}

var _ = Describe("Event", func() {
	Context("identity", func() {
		It("derives ids from the record family", func() {
			Expect(EventID(FamilyPullRequest, 42)).To(Equal("pr-42"))
			Expect(EventID(FamilyIssue, 7)).To(Equal("issue-7"))
			Expect(EventID(FamilyReview, 9)).To(Equal("review-9"))
			Expect(EventID(FamilyComment, 1)).To(Equal("comment-1"))
		})

		It("maps every pull request kind to the same family", func() {
			for _, k := range []EventKind{KindPROpened, KindPRClosed, KindPRMerged} {
				Expect(KindFamily(k)).To(Equal(FamilyPullRequest))
			}
			Expect(KindFamily(KindIssueClosed)).To(Equal(FamilyIssue))
			Expect(KindFamily(KindReviewSubmitted)).To(Equal(FamilyReview))
			Expect(KindFamily(KindCommentCreated)).To(Equal(FamilyComment))
			Expect(KindFamily("push")).To(BeEmpty())
		})
	})

	Context("Validate", func() {
		It("accepts a well formed merged pull request", func() {
			e := mergedPR()
			Expect(e.Validate()).To(Succeed())
		})

		It("rejects an empty id", func() {
			e := mergedPR()
			e.ID = ""
			Expect(e.Validate()).To(MatchError(ErrMissingID))
		})

		It("rejects a missing repository full name", func() {
			e := mergedPR()
			e.Repository.FullName = ""
			Expect(e.Validate()).To(MatchError(ErrMissingRepository))
		})

		It("rejects a payload that does not match the kind", func() {
			e := mergedPR()
			e.Kind = KindIssueOpened
			Expect(e.Validate()).To(MatchError(ErrPayloadMismatch))
		})

		It("rejects two payloads at once", func() {
			e := mergedPR()
			e.Issue = &IssuePayload{Number: 1, State: IssueStateOpen, URL: "https://github.com/owner/repo/issues/1"}
			Expect(e.Validate()).To(MatchError(ErrPayloadMismatch))
		})

		It("rejects a merged kind with a closed state", func() {
			e := mergedPR()
			e.PullRequest.State = PRStateClosed
			Expect(e.Validate()).To(MatchError(ErrStateMismatch))
		})

		It("rejects an issue kind with the wrong state", func() {
			e := Event{
				ID:         EventID(FamilyIssue, 3),
				Kind:       KindIssueClosed,
				Repository: Repository{FullName: "owner/repo"},
				Issue:      &IssuePayload{Number: 3, State: IssueStateOpen, URL: "https://github.com/owner/repo/issues/3"},
			}
			Expect(e.Validate()).To(MatchError(ErrStateMismatch))
		})

		It("rejects relative urls", func() {
			e := mergedPR()
			e.PullRequest.URL = "/owner/repo/pull/12"
			Expect(e.Validate()).To(MatchError(ErrRelativeURL))
		})

		It("checks the associated url of comments", func() {
			e := Event{
				ID:         EventID(FamilyComment, 5),
				Kind:       KindCommentCreated,
				Repository: Repository{FullName: "owner/repo"},
				Comment: &CommentPayload{
					CommentID:      5,
					Body:           "hi",
					URL:            "https://github.com/owner/repo/issues/3#issuecomment-5",
					AssociatedWith: Association{Type: AssociatedIssue, Number: 3, URL: strPtr("issues/3")},
				},
			}
			Expect(e.Validate()).To(MatchError(ErrRelativeURL))
		})
	})

	Context("Completeness", func() {
		It("counts more populated fields higher", func() {
			full := mergedPR()
			sparse := mergedPR()
			sparse.Repository = Repository{FullName: "owner/repo"}
			sparse.PullRequest.BaseRef = ""
			sparse.PullRequest.HeadRef = ""

			Expect(full.Completeness()).To(BeNumerically(">", sparse.Completeness()))
		})

		It("counts an optional body", func() {
			e := mergedPR()
			before := e.Completeness()
			e.PullRequest.Body = strPtr("")
			Expect(e.Completeness()).To(Equal(before + 1))
		})

		It("leaves repository metadata out of the payload count", func() {
			full := mergedPR()
			bare := mergedPR()
			bare.Repository = Repository{FullName: "owner/repo"}

			Expect(bare.PayloadCompleteness()).To(Equal(full.PayloadCompleteness()))
			Expect(full.Completeness()).To(BeNumerically(">", bare.Completeness()))
		})
	})

	Context("JSON", func() {
		It("keeps mandatory fields and omits missing optional ones", func() {
			e := mergedPR()
			data, err := json.Marshal(e)
			Expect(err).NotTo(HaveOccurred())

			var decoded map[string]any
			Expect(json.Unmarshal(data, &decoded)).To(Succeed())
			Expect(decoded).To(HaveKeyWithValue("id", "pr-42"))
			Expect(decoded).To(HaveKeyWithValue("kind", "pr_merged"))
			Expect(decoded).To(HaveKey("timestamp"))
			Expect(decoded).NotTo(HaveKey("issue"))

			pr, ok := decoded["pull_request"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(pr).To(HaveKeyWithValue("base_ref", "main"))
			Expect(pr).NotTo(HaveKey("body"))

			repo, ok := decoded["repository"].(map[string]any)
			Expect(ok).To(BeTrue())
			Expect(repo).To(HaveKeyWithValue("full_name", "owner/repo"))
			Expect(repo).NotTo(HaveKey("language"))
		})
	})
})
