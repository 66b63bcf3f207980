// Copyright 2026 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package session implements the per-connection correlation/cancellation
// state machine spec.md §5 describes: each compile/execute submission
// carries a correlation tag in the pipeline's comment field, cancellation
// looks that tag up via the external store's currentOp probe, and a
// cancelled session rejects further submissions until reset.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/docbridge/docbridge/internal/util"
)

// State is the session's cancellation state.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCancelled
)

// CurrentOpProbe looks up and kills the operation tagged by correlationTag,
// delegating to the document store's currentOp mechanism. Implemented by
// internal/docsource against a live *mongo.Client; kept as an interface
// here so this package has no I/O dependency of its own.
type CurrentOpProbe interface {
	Kill(ctx context.Context, correlationTag string) error
}

// Session tracks one submission's correlation tag and cancellation state.
// The zero value is not usable; construct with New.
type Session struct {
	probe CurrentOpProbe

	mu      sync.Mutex
	state   State
	current string // correlation tag of the in-flight submission, if any
}

// New constructs a Session bound to probe.
func New(probe CurrentOpProbe) *Session {
	return &Session{probe: probe, state: StateIdle}
}

// Begin mints a fresh correlation tag for a new submission and transitions
// to Running. It fails if the session is currently Cancelled.
func (s *Session) Begin() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateCancelled {
		return "", util.NewKindError(util.KindQueryCancelled, "session is cancelled", nil)
	}
	tag := uuid.NewString()
	s.current = tag
	s.state = StateRunning
	return tag, nil
}

// End transitions a Running session back to Idle once its submission
// completes normally.
func (s *Session) End(tag string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == tag && s.state == StateRunning {
		s.state = StateIdle
		s.current = ""
	}
}

// Cancel kills the in-flight operation (if any) via the probe and
// transitions the session to Cancelled, rejecting subsequent Begin calls
// until Reset.
func (s *Session) Cancel(ctx context.Context) error {
	s.mu.Lock()
	tag := s.current
	s.state = StateCancelled
	s.mu.Unlock()

	if tag == "" {
		return nil
	}
	if err := s.probe.Kill(ctx, tag); err != nil {
		return util.NewKindError(util.KindQueryCancelled, "cancelling in-flight operation", err)
	}
	return nil
}

// Reset clears a Cancelled session back to Idle so new submissions are
// accepted again.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateIdle
	s.current = ""
}

// State reports the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// WithDeadline runs fn with a context bounded by timeout, translating a
// failure that coincides with the deadline firing into a util.KindTimeout
// error, whatever the underlying cause. A timeout of zero or less runs fn
// unbounded.
func (s *Session) WithDeadline(ctx context.Context, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(ctx)
	if err != nil && ctx.Err() == context.DeadlineExceeded {
		return util.NewKindError(util.KindTimeout, "pipeline execution exceeded its deadline", err)
	}
	return err
}
