// Package lifecycle holds the shared process lifecycle state. Handlers
// consult it so readiness flips and new live joins are refused while
// in-flight finalizations drain.
package lifecycle

import "sync/atomic"

type Lifecycle struct {
	draining atomic.Bool
}

// SetDraining flips the draining flag. Safe on a nil receiver so callers
// can skip wiring it in tests.
func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

// IsDraining reports whether shutdown has started.
func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}
