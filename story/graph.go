package story

import (
	"time"

	"github.com/fableforge/storyflow/flow"
	"github.com/fableforge/storyflow/guardrail"
	"github.com/fableforge/storyflow/ports"
)

// Node names. The registry is the schema checkpoints are validated
// against, so renaming a node is a graph version change.
const (
	nodeInputModerator      = "input_moderator"
	nodeStoryWriter         = "story_writer"
	nodeImagePrompter       = "image_prompter"
	nodeVideoPrompter       = "video_prompter"
	nodeGenerateSingleImage = "generate_single_image"
	nodeGenerateSingleVideo = "generate_single_video"
	nodeAssembler           = "assembler"
	nodeStoryEvaluator      = "story_evaluator"
	nodeStoryGuardrail      = "story_guardrail"
	nodeImageGuardrail      = "image_guardrail_with_retry"
	nodeVideoGuardrail      = "video_guardrail_with_retry"
	nodeAggregator          = "guardrail_aggregator"
	nodeHumanReviewGate     = "human_review_gate"
	nodePublisher           = "publisher"
	nodeMarkRejected        = "mark_rejected"
	nodeMarkAutoRejected    = "mark_auto_rejected"
)

// workflow binds the node handlers to their dependencies.
type workflow struct {
	cfg     Config
	text    ports.TextLLM
	images  ports.ImageGen
	videos  ports.VideoGen
	blobs   ports.BlobStore
	checker *guardrail.Checker
}

func providerRetry() *flow.RetryPolicy {
	return &flow.RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Second,
		MaxDelay:    10 * time.Second,
	}
}

// buildRegistry wires the fixed story graph:
//
//	input_moderator -> story_writer -> {image_prompter, video_prompter}
//	  -> fan-out generators -> assembler
//	  -> {story_evaluator, story_guardrail, image_guardrail_with_retry*, video_guardrail_with_retry*}
//	  -> guardrail_aggregator -> human_review_gate -> publisher
//	                          \-> mark_auto_rejected   \-> mark_rejected
func buildRegistry(w *workflow) (*flow.Registry[State, Patch, Overlay], error) {
	reg := flow.NewRegistry[State, Patch, Overlay]()

	specs := []flow.NodeSpec[State, Patch, Overlay]{
		{
			Name:    nodeInputModerator,
			Handler: w.inputModerator,
			Retry:   providerRetry(),
			Route: func(s State) flow.Next[Overlay] {
				if !s.InputOK {
					return flow.Goto[Overlay](nodeMarkAutoRejected)
				}
				return flow.Goto[Overlay](nodeStoryWriter)
			},
		},
		{
			Name:    nodeStoryWriter,
			Handler: w.storyWriter,
			Retry:   providerRetry(),
			Timeout: 2 * time.Minute,
			Route: func(State) flow.Next[Overlay] {
				return flow.Fan[Overlay](nodeImagePrompter, nodeVideoPrompter)
			},
		},
		{
			Name:    nodeImagePrompter,
			Handler: w.imagePrompter,
			Retry:   providerRetry(),
			Route: func(s State) flow.Next[Overlay] {
				return dispatchPrompts(nodeGenerateSingleImage, s.ImagePrompts, s.ImageDescriptions)
			},
		},
		{
			Name:    nodeVideoPrompter,
			Handler: w.videoPrompter,
			Retry:   providerRetry(),
			Route: func(s State) flow.Next[Overlay] {
				return dispatchPrompts(nodeGenerateSingleVideo, s.VideoPrompts, s.VideoDescriptions)
			},
		},
		{
			Name:    nodeGenerateSingleImage,
			Kind:    flow.KindFanOut,
			Handler: w.generateSingleImage,
			Retry:   providerRetry(),
			Timeout: 3 * time.Minute,
			Route: func(State) flow.Next[Overlay] {
				return flow.Goto[Overlay](nodeAssembler)
			},
		},
		{
			Name:    nodeGenerateSingleVideo,
			Kind:    flow.KindFanOut,
			Handler: w.generateSingleVideo,
			Retry:   providerRetry(),
			Timeout: 20 * time.Minute,
			Route: func(State) flow.Next[Overlay] {
				return flow.Goto[Overlay](nodeAssembler)
			},
		},
		{
			Name:         nodeAssembler,
			Kind:         flow.KindFanIn,
			Handler:      w.assembler,
			Predecessors: []string{nodeGenerateSingleImage, nodeGenerateSingleVideo},
			Route:        routeAssembler,
		},
		{
			Name:    nodeStoryEvaluator,
			Handler: w.storyEvaluator,
			Retry:   providerRetry(),
			Route: func(State) flow.Next[Overlay] {
				return flow.Goto[Overlay](nodeAggregator)
			},
		},
		{
			Name:    nodeStoryGuardrail,
			Handler: w.storyGuardrail,
			Retry:   providerRetry(),
			Route: func(State) flow.Next[Overlay] {
				return flow.Goto[Overlay](nodeAggregator)
			},
		},
		{
			Name:    nodeImageGuardrail,
			Kind:    flow.KindFanOut,
			Handler: w.imageGuardrail,
			Retry:   providerRetry(),
			Timeout: 5 * time.Minute,
			Route: func(State) flow.Next[Overlay] {
				return flow.Goto[Overlay](nodeAggregator)
			},
		},
		{
			Name:    nodeVideoGuardrail,
			Kind:    flow.KindFanOut,
			Handler: w.videoGuardrail,
			Retry:   providerRetry(),
			Route: func(State) flow.Next[Overlay] {
				return flow.Goto[Overlay](nodeAggregator)
			},
		},
		{
			Name:    nodeAggregator,
			Kind:    flow.KindFanIn,
			Handler: w.guardrailAggregator,
			Predecessors: []string{
				nodeStoryEvaluator, nodeStoryGuardrail,
				nodeImageGuardrail, nodeVideoGuardrail,
			},
			Route: func(s State) flow.Next[Overlay] {
				if !s.GuardrailPassed && w.cfg.autoReject() {
					return flow.Goto[Overlay](nodeMarkAutoRejected)
				}
				return flow.Goto[Overlay](nodeHumanReviewGate)
			},
		},
		{
			Name:        nodeHumanReviewGate,
			Handler:     w.humanReviewGate,
			Suspendable: true,
			Route: func(s State) flow.Next[Overlay] {
				if s.Review != nil && s.Review.Decision == DecisionApproved {
					return flow.Goto[Overlay](nodePublisher)
				}
				return flow.Goto[Overlay](nodeMarkRejected)
			},
		},
		{
			Name:           nodePublisher,
			Handler:        w.publisher,
			Retry:          providerRetry(),
			TerminalStatus: flow.StatusCompleted,
		},
		{
			Name:           nodeMarkRejected,
			Handler:        w.markRejected,
			TerminalStatus: flow.StatusRejected,
		},
		{
			Name:           nodeMarkAutoRejected,
			Handler:        w.markAutoRejected,
			TerminalStatus: flow.StatusAutoRejected,
		},
	}

	for _, spec := range specs {
		if err := reg.Add(spec); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// dispatchPrompts turns a prompt list into one dispatch unit per
// prompt. An empty list drains the target so the assembler fan-in is
// not left waiting; no synthetic unit is injected.
func dispatchPrompts(target string, prompts, descriptions []string) flow.Next[Overlay] {
	if len(prompts) == 0 {
		return flow.Send[Overlay](nil, target)
	}

	units := make([]flow.Dispatch[Overlay], 0, len(prompts))
	for i, prompt := range prompts {
		overlay := Overlay{Index: i, Prompt: prompt}
		if i < len(descriptions) {
			overlay.Description = descriptions[i]
		}
		units = append(units, flow.Unit(target, i, overlay))
	}
	return flow.Send(units)
}

// routeAssembler fans out to the evaluation and guardrail cluster: the
// two story-level nodes always run; each assembled asset gets its own
// guardrail unit. Regenerated assets are excluded here because their
// units key by index and the original already owns that key.
func routeAssembler(s State) flow.Next[Overlay] {
	var imageUnits, videoUnits []flow.Dispatch[Overlay]
	for _, m := range s.ImageMeta {
		if m.Regenerated {
			continue
		}
		imageUnits = append(imageUnits, flow.Unit(nodeImageGuardrail, m.Index, Overlay{
			Index:       m.Index,
			Prompt:      m.Prompt,
			Description: m.Description,
			MediaURL:    m.URL,
		}))
	}
	for _, m := range s.VideoMeta {
		videoUnits = append(videoUnits, flow.Unit(nodeVideoGuardrail, m.Index, Overlay{
			Index:       m.Index,
			Prompt:      m.Prompt,
			Description: m.Description,
			MediaURL:    m.URL,
		}))
	}

	next := flow.Next[Overlay]{
		Many:  []string{nodeStoryEvaluator, nodeStoryGuardrail},
		Units: append(imageUnits, videoUnits...),
	}
	if len(imageUnits) == 0 {
		next.Drained = append(next.Drained, nodeImageGuardrail)
	}
	if len(videoUnits) == 0 {
		next.Drained = append(next.Drained, nodeVideoGuardrail)
	}
	return next
}
