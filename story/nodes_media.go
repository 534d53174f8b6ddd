package story

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/fableforge/storyflow/flow"
	"github.com/fableforge/storyflow/ports"
)

// generateSingleImage is a fan-out unit: one invocation per image
// prompt, each appending its result through the reducer fields.
// Handlers must be idempotent under replay; the engine skips units
// whose patch already committed, so a replayed invocation only costs a
// duplicate provider call, never a duplicate append.
func (w *workflow) generateSingleImage(ctx context.Context, _ State, inv flow.Invocation[Overlay]) flow.Result[Patch] {
	url, err := w.images.GenerateImage(ctx, inv.Overlay.Prompt)
	if err != nil {
		return flow.Fail[Patch](err)
	}

	return flow.Ok(Patch{
		ImageURLs: []string{url},
		ImageMeta: []MediaMeta{{
			Index:       inv.Overlay.Index,
			Prompt:      inv.Overlay.Prompt,
			Description: inv.Overlay.Description,
			URL:         url,
			AssetID:     uuid.NewString(),
		}},
	})
}

func (w *workflow) generateSingleVideo(ctx context.Context, _ State, inv flow.Invocation[Overlay]) flow.Result[Patch] {
	url, err := w.videos.GenerateVideo(ctx, inv.Overlay.Prompt)
	if err != nil {
		return flow.Fail[Patch](err)
	}

	return flow.Ok(Patch{
		VideoURLs: []string{url},
		VideoMeta: []MediaMeta{{
			Index:       inv.Overlay.Index,
			Prompt:      inv.Overlay.Prompt,
			Description: inv.Overlay.Description,
			URL:         url,
			AssetID:     uuid.NewString(),
		}},
	})
}

type manifestEntry struct {
	Index   int    `json:"index"`
	URL     string `json:"url"`
	AssetID string `json:"asset_id"`
	Prompt  string `json:"prompt"`
}

type manifest struct {
	JobID  string          `json:"job_id"`
	Title  string          `json:"title"`
	Images []manifestEntry `json:"images"`
	Videos []manifestEntry `json:"videos"`
}

// assembler is the fan-in after both generators. It validates that the
// merged media counts match what the prompters asked for, orders the
// assets by index, and persists a manifest through the blob store. A
// count mismatch means a unit committed twice or vanished, which no
// retry can fix.
func (w *workflow) assembler(ctx context.Context, s State, _ flow.Invocation[Overlay]) flow.Result[Patch] {
	if !s.GenerateImages && !s.GenerateVideos {
		return flow.Fail[Patch](ports.MarkPermanent(fmt.Errorf("job %s has no media kinds enabled", s.JobID)))
	}
	if s.GenerateImages && len(s.ImageMeta) != s.NumIllustrations {
		return flow.Fail[Patch](ports.MarkPermanent(fmt.Errorf(
			"job %s expected %d images, assembled %d", s.JobID, s.NumIllustrations, len(s.ImageMeta))))
	}
	if s.GenerateVideos && len(s.VideoMeta) != s.NumVideos {
		return flow.Fail[Patch](ports.MarkPermanent(fmt.Errorf(
			"job %s expected %d videos, assembled %d", s.JobID, s.NumVideos, len(s.VideoMeta))))
	}

	m := manifest{
		JobID:  s.JobID,
		Title:  s.StoryTitle,
		Images: manifestEntries(s.ImageMeta),
		Videos: manifestEntries(s.VideoMeta),
	}
	data, err := json.Marshal(m)
	if err != nil {
		return flow.Fail[Patch](fmt.Errorf("encode manifest: %w", err))
	}

	ref, err := w.blobs.Put(ctx, "manifests/"+s.JobID+".json", "application/json", data)
	if err != nil {
		return flow.Fail[Patch](err)
	}
	return flow.Ok(Patch{ManifestRef: &ref})
}

func manifestEntries(meta []MediaMeta) []manifestEntry {
	sorted := make([]MediaMeta, len(meta))
	copy(sorted, meta)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	out := make([]manifestEntry, 0, len(sorted))
	for _, m := range sorted {
		out = append(out, manifestEntry{Index: m.Index, URL: m.URL, AssetID: m.AssetID, Prompt: m.Prompt})
	}
	return out
}
