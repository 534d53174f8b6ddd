package flow

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by Engine entry points.
var (
	// ErrNoRoute means a non-terminal node produced no successor.
	ErrNoRoute = errors.New("node produced no route and is not terminal")

	// ErrUnknownNode means a snapshot or route names a node absent
	// from the registry. Raised on resume when the persisted graph
	// shape no longer matches the engine version.
	ErrUnknownNode = errors.New("unknown node")

	// ErrNotSuspended means Resume was called on a thread whose latest
	// snapshot carries no suspension.
	ErrNotSuspended = errors.New("thread is not awaiting review")

	// ErrThreadTerminal means the thread already reached a terminal
	// status.
	ErrThreadTerminal = errors.New("thread already terminal")

	// ErrInvalidRetryPolicy means a RetryPolicy fails validation.
	ErrInvalidRetryPolicy = errors.New("invalid retry policy")
)

// EngineError is a structured engine-level failure with a stable code
// for programmatic handling.
type EngineError struct {
	Message string
	Code    string
	Err     error
}

func (e *EngineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %v", e.Message, e.Code, e.Err)
	}
	return fmt.Sprintf("%s (%s)", e.Message, e.Code)
}

func (e *EngineError) Unwrap() error { return e.Err }

// NodeError wraps a handler failure with the node (and dispatch unit,
// for fan-out work) that produced it.
type NodeError struct {
	Node string
	Unit string
	Err  error
}

func (e *NodeError) Error() string {
	if e.Unit != "" {
		return fmt.Sprintf("node %s unit %s: %v", e.Node, e.Unit, e.Err)
	}
	return fmt.Sprintf("node %s: %v", e.Node, e.Err)
}

func (e *NodeError) Unwrap() error { return e.Err }

// permanentError marks an error as not retryable. The thread fails
// instead of retrying when one surfaces from a handler.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string   { return p.err.Error() }
func (p *permanentError) Unwrap() error   { return p.err }
func (p *permanentError) Permanent() bool { return true }

// Permanent wraps err so IsPermanent reports true. Wrapping nil
// returns nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent walks the error chain looking for a Permanent() bool
// marker. Provider adapters may implement the marker themselves
// instead of importing this package.
func IsPermanent(err error) bool {
	for err != nil {
		if p, ok := err.(interface{ Permanent() bool }); ok && p.Permanent() {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
