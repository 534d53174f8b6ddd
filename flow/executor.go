package flow

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/fableforge/storyflow/flow/checkpoint"
	"github.com/fableforge/storyflow/flow/emit"
)

// invocation is one scheduled handler call: a whole node, or a single
// fan-out dispatch unit.
type invocation[O any] struct {
	node    string
	unit    string
	overlay O
	resume  json.RawMessage
}

type execResult[P, O any] struct {
	inv     invocation[O]
	res     Result[P]
	elapsed time.Duration
}

// driveState is the per-drive bookkeeping owned by the scheduler
// goroutine. All merges and routing decisions happen on that one
// goroutine; workers only execute handlers against state copies.
type driveState[S, P, O any] struct {
	threadID  string
	state     S
	seq       int
	completed map[string]bool // whole node names and unit keys
	groups    map[string]int  // remaining in-flight units per fan-out node
	scheduled map[string]bool // whole nodes scheduled or finished
	pending   []invocation[O]

	terminal  Status
	suspended *suspensionResult
	failure   error
}

type suspensionResult struct {
	node    string
	payload any
}

// drive runs the scheduler loop from the given snapshot until the
// thread suspends, terminates, fails, or is cancelled. resumeNode,
// when set, is re-entered with resumeVal instead of being derived from
// routing.
func (e *Engine[S, P, O]) drive(ctx context.Context, snap checkpoint.Snapshot[S], resumeNode string, resumeVal json.RawMessage) (Outcome[S], error) {
	ds := &driveState[S, P, O]{
		threadID:  snap.ThreadID,
		state:     snap.State,
		seq:       snap.Seq,
		completed: make(map[string]bool, len(snap.Completed)),
		groups:    make(map[string]int),
		scheduled: make(map[string]bool),
	}
	for _, entry := range snap.Completed {
		ds.completed[entry] = true
	}

	if err := e.rebuild(ds, resumeNode, resumeVal); err != nil {
		return Outcome[S]{}, err
	}

	driveCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan execResult[P, O])
	running := 0

	for {
		if !ds.halted() {
			for len(ds.pending) > 0 && running < e.opts.MaxConcurrent {
				inv := ds.pending[0]
				ds.pending = ds.pending[1:]

				stateCopy, err := deepCopy(ds.state)
				if err != nil {
					ds.failure = &EngineError{Message: "failed to copy state", Code: "STATE_COPY", Err: err}
					break
				}
				running++
				go e.invoke(driveCtx, ds.threadID, stateCopy, inv, results)
			}
		} else {
			// Drop unstarted work; in-flight handlers drain below.
			ds.pending = nil
			cancel()
		}

		if running == 0 {
			break
		}

		res := <-results
		running--
		if err := e.handleResult(ctx, ds, res); err != nil {
			return Outcome[S]{}, err
		}
	}

	return e.finish(ctx, ds)
}

func (ds *driveState[S, P, O]) halted() bool {
	return ds.failure != nil || ds.suspended != nil || ds.terminal != ""
}

// rebuild recomputes the runnable frontier from the snapshot's
// completed set. Routers are deterministic over state, so replaying
// the routing of every committed node reconstructs exactly the work
// that had not committed when the snapshot was written.
func (e *Engine[S, P, O]) rebuild(ds *driveState[S, P, O], resumeNode string, resumeVal json.RawMessage) error {
	if resumeNode != "" {
		ds.scheduled[resumeNode] = true
		ds.pending = append(ds.pending, invocation[O]{node: resumeNode, resume: resumeVal})
	}

	for name := range ds.completed {
		if !strings.ContainsRune(name, '#') {
			ds.scheduled[name] = true
		}
	}

	if !ds.completed[e.start] && !ds.scheduled[e.start] {
		ds.scheduled[e.start] = true
		ds.pending = append(ds.pending, invocation[O]{node: e.start})
	}

	// Replay routing of already-committed nodes in a stable order.
	for _, name := range e.reg.Names() {
		if !ds.completed[name] {
			continue
		}
		spec, _ := e.reg.Get(name)
		if spec.TerminalStatus != "" {
			ds.terminal = spec.TerminalStatus
			continue
		}
		if err := e.applyRoute(ds, name); err != nil {
			return err
		}
	}
	return nil
}

// handleResult folds one handler result into the drive state:
// merge + snapshot on success, suspension capture, or failure.
func (e *Engine[S, P, O]) handleResult(ctx context.Context, ds *driveState[S, P, O], res execResult[P, O]) error {
	inv := res.inv

	switch {
	case res.res.Err != nil:
		nodeErr := &NodeError{Node: inv.node, Unit: inv.unit, Err: res.res.Err}
		if ds.failure == nil {
			ds.failure = nodeErr
		}
		return nil

	case res.res.Suspend != nil:
		spec, _ := e.reg.Get(inv.node)
		if !spec.Suspendable {
			if ds.failure == nil {
				ds.failure = &NodeError{
					Node: inv.node,
					Err:  &EngineError{Message: "node is not suspendable", Code: "INVALID_SUSPEND"},
				}
			}
			return nil
		}
		if ds.failure == nil && ds.suspended == nil {
			ds.suspended = &suspensionResult{node: inv.node, payload: res.res.Suspend.Payload}
		}
		return nil
	}

	if ds.halted() {
		// Late sibling of a failed or suspended drive: its patch still
		// merges so committed work is not lost, but no routing follows.
		return e.commit(ctx, ds, inv, res.res.Patch, false)
	}
	return e.commit(ctx, ds, inv, res.res.Patch, true)
}

// commit merges the patch under the thread's merge ordering, records
// completion, snapshots, and (when advance is true) routes onward.
func (e *Engine[S, P, O]) commit(ctx context.Context, ds *driveState[S, P, O], inv invocation[O], patch P, advance bool) error {
	ds.state = e.reducer(ds.state, patch)
	ds.seq++

	wholeDone := false
	if inv.unit != "" {
		ds.completed[inv.unit] = true
		ds.groups[inv.node]--
		if ds.groups[inv.node] <= 0 {
			ds.completed[inv.node] = true
			wholeDone = true
		}
	} else {
		ds.completed[inv.node] = true
		wholeDone = true
	}

	if err := e.snapshot(ctx, ds, StatusRunning, nil, ""); err != nil {
		return err
	}
	e.emit(ds.threadID, ds.seq, inv.node, "merge", map[string]interface{}{"unit": inv.unit})

	if !advance || !wholeDone {
		return nil
	}

	spec, _ := e.reg.Get(inv.node)
	if spec.TerminalStatus != "" {
		ds.terminal = spec.TerminalStatus
		return nil
	}
	if err := e.applyRoute(ds, inv.node); err != nil {
		ds.failure = err
	}
	return nil
}

// applyRoute evaluates a completed node's router and schedules its
// successors. Also re-checks fan-in readiness, which may have been
// unlocked by this completion.
func (e *Engine[S, P, O]) applyRoute(ds *driveState[S, P, O], node string) error {
	spec, ok := e.reg.Get(node)
	if !ok {
		return &EngineError{Message: "route from unregistered node " + node, Code: "UNKNOWN_NODE", Err: ErrUnknownNode}
	}

	next := spec.Route(ds.state)
	if next.empty() {
		return &EngineError{Message: "no route from node " + node, Code: "NO_ROUTE", Err: ErrNoRoute}
	}

	if next.Terminal {
		if ds.terminal == "" {
			ds.terminal = StatusCompleted
		}
		return nil
	}

	targets := next.Many
	if next.To != "" {
		targets = append(targets, next.To)
	}
	for _, t := range targets {
		if err := e.scheduleNode(ds, t); err != nil {
			return err
		}
	}

	if len(next.Units) > 0 || len(next.Drained) > 0 {
		if err := e.scheduleUnits(ds, next.Units, next.Drained); err != nil {
			return err
		}
	}

	return e.checkFanIns(ds)
}

// scheduleNode queues a linear node, or registers interest in a
// fan-in (which only runs once all its predecessors complete).
func (e *Engine[S, P, O]) scheduleNode(ds *driveState[S, P, O], name string) error {
	spec, ok := e.reg.Get(name)
	if !ok {
		return &EngineError{Message: "route to unregistered node " + name, Code: "UNKNOWN_NODE", Err: ErrUnknownNode}
	}
	if ds.completed[name] || ds.scheduled[name] {
		return nil
	}
	if spec.Kind == KindFanIn {
		// Readiness handled by checkFanIns.
		return nil
	}
	ds.scheduled[name] = true
	ds.pending = append(ds.pending, invocation[O]{node: name})
	return nil
}

// scheduleUnits queues fan-out dispatch units, skipping units whose
// keys already committed (crash replay), and completes drained or
// fully-committed targets immediately.
func (e *Engine[S, P, O]) scheduleUnits(ds *driveState[S, P, O], units []Dispatch[O], drained []string) error {
	perTarget := make(map[string][]Dispatch[O])
	for _, u := range units {
		if !e.reg.Has(u.To) {
			return &EngineError{Message: "dispatch to unregistered node " + u.To, Code: "UNKNOWN_NODE", Err: ErrUnknownNode}
		}
		perTarget[u.To] = append(perTarget[u.To], u)
	}

	for target, list := range perTarget {
		if ds.completed[target] {
			continue
		}
		ds.scheduled[target] = true
		remaining := 0
		for _, u := range list {
			if ds.completed[u.Key] {
				continue
			}
			remaining++
			ds.pending = append(ds.pending, invocation[O]{node: target, unit: u.Key, overlay: u.Overlay})
		}
		if remaining == 0 {
			if err := e.completeWithoutRun(ds, target); err != nil {
				return err
			}
			continue
		}
		ds.groups[target] += remaining
	}

	for _, target := range drained {
		if ds.completed[target] || !e.reg.Has(target) {
			continue
		}
		ds.scheduled[target] = true
		if err := e.completeWithoutRun(ds, target); err != nil {
			return err
		}
	}
	return nil
}

// completeWithoutRun marks a fan-out node complete with no work: all
// of its units committed in an earlier run, or the router sent none.
func (e *Engine[S, P, O]) completeWithoutRun(ds *driveState[S, P, O], node string) error {
	ds.completed[node] = true
	spec, _ := e.reg.Get(node)
	if spec.TerminalStatus != "" {
		ds.terminal = spec.TerminalStatus
		return nil
	}
	return e.applyRoute(ds, node)
}

// checkFanIns schedules every fan-in whose predecessors have all
// completed.
func (e *Engine[S, P, O]) checkFanIns(ds *driveState[S, P, O]) error {
	for _, name := range e.reg.Names() {
		spec, _ := e.reg.Get(name)
		if spec.Kind != KindFanIn || ds.completed[name] || ds.scheduled[name] {
			continue
		}
		ready := true
		for _, pred := range spec.Predecessors {
			if !ds.completed[pred] {
				ready = false
				break
			}
		}
		if ready {
			ds.scheduled[name] = true
			ds.pending = append(ds.pending, invocation[O]{node: name})
		}
	}
	return nil
}

// invoke runs one handler invocation with timeout and retry, then
// reports on the results channel.
func (e *Engine[S, P, O]) invoke(ctx context.Context, threadID string, state S, inv invocation[O], results chan<- execResult[P, O]) {
	spec, _ := e.reg.Get(inv.node)

	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = e.opts.NodeTimeout
	}

	e.opts.Metrics.handlerStarted()
	e.emit(threadID, 0, inv.node, "node_start", map[string]interface{}{"unit": inv.unit})
	started := e.opts.Clock()

	handlerInv := Invocation[O]{Overlay: inv.overlay, Unit: inv.unit, Resume: inv.resume}

	attempts := 1
	if spec.Retry != nil {
		attempts = spec.Retry.MaxAttempts
	}

	var res Result[P]
retryLoop:
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			e.opts.Metrics.retryAttempted(inv.node)
			e.emit(threadID, 0, inv.node, "node_retry", map[string]interface{}{
				"unit":    inv.unit,
				"attempt": attempt,
			})
			delay := computeBackoff(attempt-1, spec.Retry.BaseDelay, spec.Retry.MaxDelay)
			select {
			case <-ctx.Done():
				res = Result[P]{Err: ctx.Err()}
				break retryLoop
			case <-time.After(delay):
			}
		}

		res = e.invokeOnce(ctx, timeout, spec, state, handlerInv)
		if res.Err == nil {
			break
		}
		if spec.Retry == nil || !spec.Retry.shouldRetry(res.Err) {
			break
		}
	}

	elapsed := e.opts.Clock().Sub(started)
	status := "success"
	switch {
	case res.Err != nil:
		status = "error"
	case res.Suspend != nil:
		status = "suspended"
	}
	e.opts.Metrics.handlerFinished(inv.node, status, elapsed)

	meta := map[string]interface{}{
		"unit":        inv.unit,
		"duration_ms": elapsed.Milliseconds(),
	}
	if res.Err != nil {
		meta["error"] = res.Err.Error()
	}
	e.emit(threadID, 0, inv.node, "node_end", meta)

	results <- execResult[P, O]{inv: inv, res: res, elapsed: elapsed}
}

// invokeOnce runs the handler under a per-invocation deadline,
// converting a blown deadline into an error even if the handler does
// not return.
func (e *Engine[S, P, O]) invokeOnce(ctx context.Context, timeout time.Duration, spec NodeSpec[S, P, O], state S, inv Invocation[O]) Result[P] {
	invCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	done := make(chan Result[P], 1)
	go func() {
		done <- spec.Handler(invCtx, state, inv)
	}()

	select {
	case res := <-done:
		return res
	case <-invCtx.Done():
		return Result[P]{Err: invCtx.Err()}
	}
}

// finish writes the closing snapshot and builds the outcome.
func (e *Engine[S, P, O]) finish(ctx context.Context, ds *driveState[S, P, O]) (Outcome[S], error) {
	out := Outcome[S]{ThreadID: ds.threadID, State: ds.state}

	switch {
	case ds.failure != nil:
		status := StatusFailed
		if errors.Is(ds.failure, context.Canceled) {
			status = StatusCancelled
		}
		ds.seq++
		if err := e.snapshot(ctx, ds, status, nil, ds.failure.Error()); err != nil {
			return Outcome[S]{}, err
		}
		e.opts.Metrics.threadFinished(status)
		e.emit(ds.threadID, ds.seq, "", "thread_end", map[string]interface{}{
			"status": string(status),
			"error":  ds.failure.Error(),
		})

		out.Status = status
		out.Seq = ds.seq
		out.Failure = ds.failure
		return out, nil

	case ds.suspended != nil:
		payload, err := json.Marshal(ds.suspended.payload)
		if err != nil {
			return Outcome[S]{}, &EngineError{Message: "failed to marshal suspension payload", Code: "INVALID_SUSPEND", Err: err}
		}
		susp := &checkpoint.Suspension{
			Node:     ds.suspended.node,
			Payload:  payload,
			Deadline: e.opts.Clock().Add(e.opts.ResumeDeadline),
		}
		ds.seq++
		if err := e.snapshot(ctx, ds, StatusAwaitingReview, susp, ""); err != nil {
			return Outcome[S]{}, err
		}
		e.opts.Metrics.threadSuspended()
		e.emit(ds.threadID, ds.seq, ds.suspended.node, "suspended", nil)

		out.Status = StatusAwaitingReview
		out.Seq = ds.seq
		out.Suspension = susp
		return out, nil

	case ds.terminal != "":
		ds.seq++
		if err := e.snapshot(ctx, ds, ds.terminal, nil, ""); err != nil {
			return Outcome[S]{}, err
		}
		e.opts.Metrics.threadFinished(ds.terminal)
		e.emit(ds.threadID, ds.seq, "", "thread_end", map[string]interface{}{"status": string(ds.terminal)})

		out.Status = ds.terminal
		out.Seq = ds.seq
		return out, nil
	}

	// Frontier drained with no terminal: the graph is malformed.
	return Outcome[S]{}, &EngineError{Message: "frontier drained without terminal node", Code: "NO_ROUTE", Err: ErrNoRoute}
}

// snapshot persists the current drive state. Durability here is what
// lets a crashed process replay without redoing committed work.
func (e *Engine[S, P, O]) snapshot(ctx context.Context, ds *driveState[S, P, O], status Status, susp *checkpoint.Suspension, failure string) error {
	completed := make([]string, 0, len(ds.completed))
	for name := range ds.completed {
		completed = append(completed, name)
	}
	sort.Strings(completed)

	snap := checkpoint.Snapshot[S]{
		ThreadID:   ds.threadID,
		Seq:        ds.seq,
		Status:     string(status),
		State:      ds.state,
		Completed:  completed,
		Suspension: susp,
		Failure:    failure,
		CreatedAt:  e.opts.Clock(),
	}
	if err := e.store.Snapshot(ctx, snap); err != nil {
		return &EngineError{Message: "failed to write snapshot", Code: "STORE_ERROR", Err: err}
	}
	e.opts.Metrics.snapshotCommitted()
	return nil
}

func emitEvent(threadID string, seq int, node, msg string, meta map[string]interface{}) emit.Event {
	return emit.Event{ThreadID: threadID, Seq: seq, Node: node, Msg: msg, Meta: meta}
}
