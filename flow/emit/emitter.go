package emit

// Emitter receives observability events from workflow execution.
//
// Implementations must be safe for concurrent use: fan-out handlers
// emit from multiple goroutines. Emit must not panic and must not
// block the calling handler for long; slow backends should buffer or
// drop internally.
type Emitter interface {
	Emit(event Event)
}
