// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package sensors

import (
	"sync"
	"time"

	"github.com/relabs-tech/inertial_activity/internal/imu"
)

// latest holds the newest sample pushed by a background reader. Each sample
// is handed out at most once, and never once it is older than staleAfter.
type latest struct {
	staleAfter time.Duration
	now        func() time.Time

	mu       sync.Mutex
	sample   imu.Sample
	received time.Time
	fresh    bool
}

func newLatest(staleAfter time.Duration) *latest {
	return &latest{staleAfter: staleAfter, now: time.Now}
}

func (l *latest) put(s imu.Sample) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sample = s
	l.received = l.now()
	l.fresh = true
}

func (l *latest) take() (imu.Sample, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.fresh {
		return imu.Sample{}, imu.ErrNoFreshData
	}
	l.fresh = false
	if l.staleAfter > 0 && l.now().Sub(l.received) > l.staleAfter {
		return imu.Sample{}, imu.ErrNoFreshData
	}
	return l.sample, nil
}
