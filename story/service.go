package story

import (
	"context"
	"fmt"

	"github.com/oklog/ulid/v2"

	"github.com/fableforge/storyflow/flow"
	"github.com/fableforge/storyflow/flow/checkpoint"
	"github.com/fableforge/storyflow/guardrail"
	"github.com/fableforge/storyflow/ports"
)

// Dependencies are the provider ports the workflow runs against.
// Everything except PII is required; PII defaults to the built-in
// regex detector.
type Dependencies struct {
	Text       ports.TextLLM
	Vision     ports.VisionLLM
	Images     ports.ImageGen
	Videos     ports.VideoGen
	Moderation ports.Moderation
	PII        ports.PiiDetector
	Blobs      ports.BlobStore
}

func (d Dependencies) validate() error {
	missing := ""
	switch {
	case d.Text == nil:
		missing = "text llm"
	case d.Vision == nil:
		missing = "vision llm"
	case d.Images == nil:
		missing = "image generator"
	case d.Videos == nil:
		missing = "video generator"
	case d.Moderation == nil:
		missing = "moderation"
	case d.Blobs == nil:
		missing = "blob store"
	}
	if missing != "" {
		return fmt.Errorf("missing dependency: %s", missing)
	}
	return nil
}

// Request describes one story job.
type Request struct {
	Prompt           string `json:"prompt"`
	AgeGroup         string `json:"age_group"`
	NumIllustrations int    `json:"num_illustrations"`
	NumVideos        int    `json:"num_videos"`
	GenerateImages   bool   `json:"generate_images"`
	GenerateVideos   bool   `json:"generate_videos"`
}

func (r Request) validate() error {
	if r.Prompt == "" {
		return fmt.Errorf("prompt must not be empty")
	}
	switch r.AgeGroup {
	case guardrail.AgeGroup3to5, guardrail.AgeGroup6to8, guardrail.AgeGroup9to12:
	default:
		return fmt.Errorf("unknown age group %q", r.AgeGroup)
	}
	if !r.GenerateImages && !r.GenerateVideos {
		return fmt.Errorf("at least one media kind must be enabled")
	}
	if r.GenerateImages && r.NumIllustrations < 1 {
		return fmt.Errorf("num_illustrations must be >= 1 when images are enabled")
	}
	if r.GenerateVideos && r.NumVideos < 1 {
		return fmt.Errorf("num_videos must be >= 1 when videos are enabled")
	}
	return nil
}

// Service is the submit/resume facade over the engine: the job-queue
// layer calls Submit, the review UI calls Resume, and both read status
// through Status.
type Service struct {
	engine *flow.Engine[State, Patch, Overlay]
	cfg    Config
}

// NewService wires the workflow graph against the given providers and
// checkpoint store. Extra engine options are applied after the
// config-derived ones, so callers can override them.
func NewService(deps Dependencies, cfg Config, store checkpoint.Store[State], opts ...flow.Option) (*Service, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if store == nil {
		return nil, fmt.Errorf("checkpoint store is required")
	}
	cfg = cfg.normalized()

	pii := deps.PII
	if pii == nil {
		pii = guardrail.NewRegexPII()
	}

	w := &workflow{
		cfg:    cfg,
		text:   deps.Text,
		images: deps.Images,
		videos: deps.Videos,
		blobs:  deps.Blobs,
		checker: &guardrail.Checker{
			Moderation: deps.Moderation,
			PII:        pii,
			Text:       deps.Text,
			Vision:     deps.Vision,
			Thresholds: cfg.Thresholds(),
		},
	}

	reg, err := buildRegistry(w)
	if err != nil {
		return nil, err
	}

	engineOpts := append([]flow.Option{
		flow.WithMaxConcurrent(cfg.WorkerPoolSize),
		flow.WithResumeDeadline(cfg.ReviewDeadline),
	}, opts...)

	engine, err := flow.New(reg, Reduce, store, nodeInputModerator, engineOpts...)
	if err != nil {
		return nil, err
	}
	return &Service{engine: engine, cfg: cfg}, nil
}

// NewJobID returns a fresh sortable job id.
func NewJobID() string { return ulid.Make().String() }

// Submit starts a new job under a fresh id and drives it until it
// suspends, finishes, or fails.
func (s *Service) Submit(ctx context.Context, req Request) (flow.Outcome[State], error) {
	return s.SubmitWithID(ctx, NewJobID(), req)
}

// SubmitWithID starts (or recovers) a job under a caller-chosen id.
// Re-submitting an id that already ran returns the recorded outcome,
// which makes queue redelivery safe.
func (s *Service) SubmitWithID(ctx context.Context, jobID string, req Request) (flow.Outcome[State], error) {
	if err := req.validate(); err != nil {
		return flow.Outcome[State]{}, err
	}

	initial := State{
		JobID:            jobID,
		Prompt:           req.Prompt,
		AgeGroup:         req.AgeGroup,
		NumIllustrations: req.NumIllustrations,
		NumVideos:        req.NumVideos,
		GenerateImages:   req.GenerateImages,
		GenerateVideos:   req.GenerateVideos,
	}
	return s.engine.Run(ctx, jobID, initial)
}

// Resume delivers a review decision to a suspended job.
func (s *Service) Resume(ctx context.Context, jobID string, d Decision) (flow.Outcome[State], error) {
	return s.engine.Resume(ctx, jobID, d)
}

// Status returns the job's latest snapshot.
func (s *Service) Status(ctx context.Context, jobID string) (checkpoint.Snapshot[State], error) {
	return s.engine.Latest(ctx, jobID)
}

// Store exposes the checkpoint store, mainly for the sweeper.
func (s *Service) Store() checkpoint.Store[State] { return s.engine.Store() }
