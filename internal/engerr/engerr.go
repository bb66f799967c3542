// Package engerr classifies engine errors per the six-class taxonomy:
// transient transport, stale/missing-entity, terminal placement, balance
// transient, consistency warning, and fatal. Call sites wrap a leaf error
// in the matching class so callers can branch with errors.Is/As instead of
// string matching.
package engerr

import "errors"

// Class identifies which of the six error classes an error belongs to.
type Class int

const (
	ClassTransient Class = iota + 1
	ClassStaleEntity
	ClassTerminal
	ClassBalanceTransient
	ClassConsistency
	ClassFatal
)

func (c Class) String() string {
	switch c {
	case ClassTransient:
		return "transient_transport"
	case ClassStaleEntity:
		return "stale_missing_entity"
	case ClassTerminal:
		return "terminal_placement"
	case ClassBalanceTransient:
		return "balance_transient"
	case ClassConsistency:
		return "consistency_warning"
	case ClassFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Error wraps a cause with a taxonomy class.
type Error struct {
	Class Class
	Op    string
	Err   error
}

func (e *Error) Error() string {
	if e.Op == "" {
		return e.Class.String() + ": " + e.Err.Error()
	}
	return e.Class.String() + " (" + e.Op + "): " + e.Err.Error()
}

func (e *Error) Unwrap() error { return e.Err }

func Wrap(class Class, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Class: class, Op: op, Err: err}
}

func Transient(op string, err error) error        { return Wrap(ClassTransient, op, err) }
func StaleEntity(op string, err error) error       { return Wrap(ClassStaleEntity, op, err) }
func Terminal(op string, err error) error          { return Wrap(ClassTerminal, op, err) }
func BalanceTransient(op string, err error) error  { return Wrap(ClassBalanceTransient, op, err) }
func Consistency(op string, err error) error       { return Wrap(ClassConsistency, op, err) }
func Fatal(op string, err error) error             { return Wrap(ClassFatal, op, err) }

// Is reports whether err (or any error it wraps) belongs to class.
func Is(err error, class Class) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

// ErrNotRetryable marks a terminal error explicitly (minimum order size,
// malformed params) so retry loops can short-circuit without inspecting
// the class.
var ErrNotRetryable = errors.New("not retryable")
