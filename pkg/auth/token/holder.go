// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package token

import "sync"

// Holder owns the current State. Callers read copies and replace the whole
// triple through the commit methods; the state is never updated partially.
//
// Every replacement advances a generation counter so that a slow refresh can
// detect that the session changed underneath it.
type Holder struct {
	mu         sync.RWMutex
	state      State
	generation uint64
}

// NewHolder returns an empty holder.
func NewHolder() *Holder {
	return &Holder{}
}

// Init installs the state loaded at startup.
func (h *Holder) Init(s State) {
	h.Commit(s)
}

// Reset clears the state.
func (h *Holder) Reset() {
	h.Commit(State{})
}

// State returns a copy of the current state.
func (h *Holder) State() State {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// Snapshot returns a copy of the current state together with its generation.
func (h *Holder) Snapshot() (State, uint64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state, h.generation
}

// Commit replaces the state unconditionally.
func (h *Holder) Commit(s State) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = s
	h.generation++
}

// CommitIf replaces the state only if no other commit happened since the
// snapshot with the given generation was taken. It reports whether the state
// was replaced.
func (h *Holder) CommitIf(generation uint64, s State) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.generation != generation {
		return false
	}
	h.state = s
	h.generation++
	return true
}
