// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package logging

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Throttle limits how often a noisy condition is logged. Calls that are
// refused are counted and reported with the next allowed call.
type Throttle struct {
	mu         sync.Mutex
	limiter    *rate.Limiter
	suppressed int
}

// NewThrottle allows perSecond events per second with bursts of burst
func NewThrottle(perSecond float64, burst int) *Throttle {
	if burst < 1 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &Throttle{limiter: rate.NewLimiter(limit, burst)}
}

// Allow reports whether the event should be logged now. When it should,
// suppressed is the number of events dropped since the last allowed one.
func (t *Throttle) Allow() (ok bool, suppressed int) {
	return t.AllowAt(time.Now())
}

// AllowAt is Allow at a given time
func (t *Throttle) AllowAt(now time.Time) (ok bool, suppressed int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.limiter.AllowN(now, 1) {
		t.suppressed++
		return false, 0
	}
	suppressed, t.suppressed = t.suppressed, 0
	return true, suppressed
}
