// Package lifecycle holds the process drain flag. The readiness endpoint
// reports not-ready once draining starts, so the load balancer pulls the
// instance before the listener closes.
package lifecycle

import "sync/atomic"

type Lifecycle struct {
	draining atomic.Bool
}

// SetDraining flips the drain flag. Safe on a nil receiver so handlers can
// run without a lifecycle in tests.
func (l *Lifecycle) SetDraining(draining bool) {
	if l == nil {
		return
	}
	l.draining.Store(draining)
}

func (l *Lifecycle) IsDraining() bool {
	if l == nil {
		return false
	}
	return l.draining.Load()
}
