package ports

import "errors"

// PermanentError marks a provider failure that retrying cannot fix:
// rejected input, contract violations, exhausted quotas of the
// non-transient kind. The engine fails the thread instead of retrying
// when one propagates out of a handler.
type PermanentError struct {
	Err error
}

func (p *PermanentError) Error() string { return p.Err.Error() }

func (p *PermanentError) Unwrap() error { return p.Err }

// Permanent reports true so the engine's classification sees it
// without a package dependency.
func (p *PermanentError) Permanent() bool { return true }

// MarkPermanent wraps err as permanent. Wrapping nil returns nil.
func MarkPermanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent walks the chain for a Permanent() bool marker.
func IsPermanent(err error) bool {
	for err != nil {
		if p, ok := err.(interface{ Permanent() bool }); ok && p.Permanent() {
			return true
		}
		err = errors.Unwrap(err)
	}
	return false
}
