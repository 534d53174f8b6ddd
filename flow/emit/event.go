// Package emit defines the observability event stream produced by the
// workflow engine. Every node start/end, merge commit, snapshot,
// suspension, resume, and terminal transition becomes an Event routed
// through an Emitter.
package emit

// Event is a single observability record correlated by thread id.
//
// Events are emitted synchronously from the engine but carry no
// engine state; emitters may log, trace, buffer, or drop them.
type Event struct {
	// ThreadID identifies the workflow thread that produced this event.
	ThreadID string

	// Seq is the snapshot sequence number current when the event fired.
	// Zero for events emitted before the first commit.
	Seq int

	// Node names the node the event concerns. Empty for thread-level
	// events (thread_start, thread_end, suspended, resumed).
	Node string

	// Msg is the event kind: "node_start", "node_end", "merge",
	// "snapshot", "suspended", "resumed", "thread_start", "thread_end".
	Msg string

	// Meta holds additional structured data. Common keys:
	//   - "duration_ms": handler execution time
	//   - "error": error detail for failed handlers
	//   - "status": terminal status on thread_end
	//   - "unit": dispatch unit key for fan-out handlers
	//   - "attempt": retry attempt number
	Meta map[string]interface{}
}
