// Copyright 2026 The CrowdSync Authors
// SPDX-License-Identifier: Apache-2.0

package locality

import (
	"context"
	"strings"
	"sync"
)

// TrackerState is the candidate list for the current input.
type TrackerState struct {
	Input      string
	Candidates []Locality
	Loading    bool
	// Err is the last lookup error for Input, if any.
	Err error
}

// Tracker follows a pincode field as the user types. Every input of
// length six starts a lookup tagged with the input and a generation
// number; a response is applied only if the field still holds that
// exact input at that generation. Any other length clears the
// candidates without a lookup.
type Tracker struct {
	resolver *Resolver
	onChange func(TrackerState)

	mu         sync.Mutex
	state      TrackerState
	generation uint64
	inflight   sync.WaitGroup
}

// NewTracker returns a Tracker. onChange, if set, is called after
// every state change, outside the lock.
func NewTracker(resolver *Resolver, onChange func(TrackerState)) *Tracker {
	return &Tracker{resolver: resolver, onChange: onChange}
}

// Input records a new field value.
func (t *Tracker) Input(ctx context.Context, value string) {
	value = strings.TrimSpace(value)

	t.mu.Lock()
	t.generation++
	generation := t.generation
	t.state = TrackerState{Input: value}
	lookup := len(value) == 6
	if lookup {
		t.state.Loading = true
	}
	snapshot := t.snapshotLocked()
	if lookup {
		t.inflight.Add(1)
	}
	t.mu.Unlock()
	t.notify(snapshot)

	if !lookup {
		return
	}
	go func() {
		defer t.inflight.Done()
		candidates, err := t.resolver.Resolve(ctx, value)

		t.mu.Lock()
		if generation != t.generation || value != t.state.Input {
			t.mu.Unlock()
			t.resolver.logger.Debug("discarding stale pincode lookup", "pincode", value)
			return
		}
		t.state = TrackerState{Input: value, Candidates: candidates, Err: err}
		snapshot := t.snapshotLocked()
		t.mu.Unlock()
		t.notify(snapshot)
	}()
}

// Snapshot returns a copy of the current state.
func (t *Tracker) Snapshot() TrackerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Wait blocks until every started lookup has finished.
func (t *Tracker) Wait() {
	t.inflight.Wait()
}

func (t *Tracker) snapshotLocked() TrackerState {
	state := t.state
	state.Candidates = append([]Locality(nil), t.state.Candidates...)
	return state
}

func (t *Tracker) notify(state TrackerState) {
	if t.onChange != nil {
		t.onChange(state)
	}
}
