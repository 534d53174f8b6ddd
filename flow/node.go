package flow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// NodeKind classifies how the executor schedules a node.
type NodeKind int

const (
	// KindLinear nodes run once when routed to.
	KindLinear NodeKind = iota

	// KindFanOut nodes are the target of dynamic dispatch units: one
	// handler invocation per unit, all units merged before the node
	// counts as complete. A fan-out node routed to with zero units is
	// complete immediately.
	KindFanOut

	// KindFanIn nodes run only after every declared predecessor has
	// completed.
	KindFanIn
)

// Invocation carries the per-invocation inputs a handler receives
// beyond the shared state.
type Invocation[O any] struct {
	// Overlay holds transient per-dispatch values (index, prompt,
	// source url). Zero for linear and fan-in nodes. Overlays are
	// never persisted.
	Overlay O

	// Unit is the dispatch unit key ("node#index") for fan-out work.
	// Empty otherwise.
	Unit string

	// Resume is the serialized external decision when re-entering a
	// suspended node. Nil on first entry; handlers branch on it.
	Resume json.RawMessage
}

// Suspend is the tagged value a handler returns to park the thread for
// an external decision. Payload must be JSON-serializable; it is
// persisted in the snapshot and surfaced to the reviewer.
type Suspend struct {
	Payload any
}

// Result is what a handler returns. Exactly one of the three outcomes
// applies: a patch to merge, a suspension, or an error.
type Result[P any] struct {
	Patch   P
	Suspend *Suspend
	Err     error
}

// Ok returns a successful result carrying patch.
func Ok[P any](patch P) Result[P] { return Result[P]{Patch: patch} }

// Fail returns a failed result.
func Fail[P any](err error) Result[P] { return Result[P]{Err: err} }

// Park returns a suspension result with the given review payload.
func Park[P any](payload any) Result[P] {
	return Result[P]{Suspend: &Suspend{Payload: payload}}
}

// Handler executes one node invocation against a read-only copy of the
// merged state and returns its result. Handlers must be idempotent:
// crash replay may invoke one whose patch never committed.
type Handler[S, P, O any] func(ctx context.Context, state S, inv Invocation[O]) Result[P]

// Dispatch is one unit of fan-out work addressed to a fan-out node.
type Dispatch[O any] struct {
	// To is the registry name of the target fan-out node.
	To string

	// Key identifies the unit inside the thread, by convention
	// "node#index". Committed unit keys are recorded in snapshots so
	// replay can skip them.
	Key string

	// Overlay carries the unit's transient inputs.
	Overlay O
}

// Unit builds a Dispatch with the conventional "node#index" key.
func Unit[O any](to string, index int, overlay O) Dispatch[O] {
	return Dispatch[O]{To: to, Key: fmt.Sprintf("%s#%d", to, index), Overlay: overlay}
}

// Next describes where execution goes after a node completes.
//
// Routers populate at most one of To/Many/(Units,Drained), or set
// Terminal. Units may address several distinct fan-out nodes; Drained
// names fan-out nodes that received zero units this run and therefore
// count as complete immediately (so downstream fan-ins are not left
// waiting).
type Next[O any] struct {
	To       string
	Many     []string
	Units    []Dispatch[O]
	Drained  []string
	Terminal bool
}

// Goto routes to a single successor.
func Goto[O any](to string) Next[O] { return Next[O]{To: to} }

// Fan routes to several successors in parallel.
func Fan[O any](names ...string) Next[O] { return Next[O]{Many: names} }

// Send routes dynamic dispatch units, plus fan-out nodes drained with
// zero units.
func Send[O any](units []Dispatch[O], drained ...string) Next[O] {
	return Next[O]{Units: units, Drained: drained}
}

// Stop marks the thread terminal after this node.
func Stop[O any]() Next[O] { return Next[O]{Terminal: true} }

func (n Next[O]) empty() bool {
	return n.To == "" && len(n.Many) == 0 && len(n.Units) == 0 &&
		len(n.Drained) == 0 && !n.Terminal
}

// Router chooses successors from the merged state after a node
// completes. Routers must be deterministic and side-effect free: the
// executor re-evaluates them during crash replay and resume.
type Router[S, O any] func(state S) Next[O]

// NodeSpec declares one node of the workflow graph.
type NodeSpec[S, P, O any] struct {
	// Name is the registry key. Immutable per engine version.
	Name string

	Kind NodeKind

	Handler Handler[S, P, O]

	// Route is evaluated after the node completes. Required unless
	// TerminalStatus is set.
	Route Router[S, O]

	// Predecessors lists the nodes a fan-in waits for. Required for
	// KindFanIn, forbidden otherwise.
	Predecessors []string

	// TerminalStatus, when non-empty, ends the thread with this status
	// after the node's patch commits. Terminal nodes have no Route.
	TerminalStatus Status

	// Suspendable marks nodes allowed to return a suspension.
	Suspendable bool

	// Retry, when set, retries transient handler errors with
	// exponential backoff before the thread fails.
	Retry *RetryPolicy

	// Timeout bounds one handler invocation. Zero uses the engine
	// default.
	Timeout time.Duration
}
