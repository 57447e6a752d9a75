package engine

import "sync"

// ErrorList is the driver-owned, stable-order registry of per-file
// errors (spec.md §7 "Propagation policy", §4.2 error_list()). It is
// written only by the single walker thread but may be read by the
// observer thread, so appends and reads share a mutex — the same
// locking shape as the "current directory path" guard (spec.md §5).
type ErrorList struct {
	mu     sync.Mutex
	errors []*Error
}

// Register appends err to the list. Safe to call from the walker
// thread; never called concurrently with itself in practice since the
// engine is single-threaded, but the lock makes concurrent reads safe.
func (l *ErrorList) Register(err *Error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	l.errors = append(l.errors, err)
	l.mu.Unlock()
}

// Snapshot returns a stable-order copy of the registered errors.
func (l *ErrorList) Snapshot() []*Error {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]*Error, len(l.errors))
	copy(out, l.errors)
	return out
}

// Len reports how many errors have been registered.
func (l *ErrorList) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.errors)
}
