package story

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/fableforge/storyflow/flow"
	"github.com/fableforge/storyflow/guardrail"
	"github.com/fableforge/storyflow/ports"
)

// Decision is the value a reviewer (or the timeout sweeper) supplies
// to resume a suspended thread.
type Decision struct {
	Decision   string `json:"decision"`
	Comment    string `json:"comment,omitempty"`
	ReviewerID string `json:"reviewer_id,omitempty"`
}

// ReviewPayload is the snapshot handed to the review UI when a thread
// suspends.
type ReviewPayload struct {
	JobID            string                `json:"job_id"`
	StoryTitle       string                `json:"story_title"`
	StoryText        string                `json:"story_text"`
	AgeGroup         string                `json:"age_group"`
	Evaluation       *Evaluation           `json:"evaluation,omitempty"`
	GuardrailPassed  bool                  `json:"guardrail_passed"`
	GuardrailSummary string                `json:"guardrail_summary"`
	Violations       []guardrail.Violation `json:"violations,omitempty"`
	ImageURLs        []string              `json:"image_urls,omitempty"`
	VideoURLs        []string              `json:"video_urls,omitempty"`
}

// humanReviewGate suspends the thread on first entry with everything a
// reviewer needs, and applies the decision on resume. Only this node
// is suspendable.
func (w *workflow) humanReviewGate(_ context.Context, s State, inv flow.Invocation[Overlay]) flow.Result[Patch] {
	if inv.Resume == nil {
		return flow.Park[Patch](ReviewPayload{
			JobID:            s.JobID,
			StoryTitle:       s.StoryTitle,
			StoryText:        s.StoryText,
			AgeGroup:         s.AgeGroup,
			Evaluation:       s.Evaluation,
			GuardrailPassed:  s.GuardrailPassed,
			GuardrailSummary: s.GuardrailSummary,
			Violations:       s.Violations,
			ImageURLs:        s.FinalImageURLs,
			VideoURLs:        s.FinalVideoURLs,
		})
	}

	var d Decision
	if err := json.Unmarshal(inv.Resume, &d); err != nil {
		return flow.Fail[Patch](ports.MarkPermanent(fmt.Errorf("malformed review decision: %w", err)))
	}
	// A resume without an explicit verdict counts as a rejection.
	if d.Decision == "" {
		d.Decision = DecisionRejected
	}

	return flow.Ok(Patch{Review: &Review{
		Decision:   d.Decision,
		Comment:    d.Comment,
		ReviewerID: d.ReviewerID,
	}})
}

type publication struct {
	PublicationID string   `json:"publication_id"`
	JobID         string   `json:"job_id"`
	Title         string   `json:"title"`
	Story         string   `json:"story"`
	ImageURLs     []string `json:"image_urls,omitempty"`
	VideoURLs     []string `json:"video_urls,omitempty"`
	AssetIDs      []string `json:"asset_ids,omitempty"`
}

// publisher writes the approved story and its final media out through
// the blob store and records the publication ids. Terminal.
func (w *workflow) publisher(ctx context.Context, s State, _ flow.Invocation[Overlay]) flow.Result[Patch] {
	pubID := uuid.NewString()
	assets := make([]string, 0, len(s.FinalImageURLs)+len(s.FinalVideoURLs))
	for range s.FinalImageURLs {
		assets = append(assets, uuid.NewString())
	}
	for range s.FinalVideoURLs {
		assets = append(assets, uuid.NewString())
	}

	pub := publication{
		PublicationID: pubID,
		JobID:         s.JobID,
		Title:         s.StoryTitle,
		Story:         s.StoryText,
		ImageURLs:     s.FinalImageURLs,
		VideoURLs:     s.FinalVideoURLs,
		AssetIDs:      assets,
	}
	data, err := json.Marshal(pub)
	if err != nil {
		return flow.Fail[Patch](fmt.Errorf("encode publication: %w", err))
	}
	if _, err := w.blobs.Put(ctx, "publications/"+s.JobID+".json", "application/json", data); err != nil {
		return flow.Fail[Patch](err)
	}

	return flow.Ok(Patch{PublicationID: &pubID, PublishedAssets: &assets})
}

// markRejected records the human rejection. Terminal.
func (w *workflow) markRejected(_ context.Context, s State, _ flow.Invocation[Overlay]) flow.Result[Patch] {
	if s.Review != nil {
		return flow.Ok(Patch{})
	}
	return flow.Ok(Patch{Review: &Review{Decision: DecisionRejected}})
}

// markAutoRejected records a synthetic rejection on behalf of the
// guardrails, either from input moderation or from the aggregate
// verdict. Terminal.
func (w *workflow) markAutoRejected(_ context.Context, s State, _ flow.Invocation[Overlay]) flow.Result[Patch] {
	comment := s.GuardrailSummary
	if comment == "" {
		comment = guardrail.Summarize(s.Violations)
	}
	return flow.Ok(Patch{Review: &Review{
		Decision:   DecisionAutoRejected,
		Comment:    comment,
		ReviewerID: ReviewerGuardrail,
	}})
}
