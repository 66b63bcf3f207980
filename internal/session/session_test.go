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
package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/docbridge/docbridge/internal/util"
)

type fakeProbe struct {
	killed []string
	err    error
}

func (f *fakeProbe) Kill(ctx context.Context, tag string) error {
	f.killed = append(f.killed, tag)
	return f.err
}

func TestBeginEndRoundTrip(t *testing.T) {
	s := New(&fakeProbe{})
	tag, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if tag == "" {
		t.Fatal("Begin returned an empty correlation tag")
	}
	if s.State() != StateRunning {
		t.Fatalf("State = %v, want Running", s.State())
	}
	s.End(tag)
	if s.State() != StateIdle {
		t.Fatalf("State = %v, want Idle after End", s.State())
	}
}

func TestCancelRejectsFurtherSubmissionsUntilReset(t *testing.T) {
	probe := &fakeProbe{}
	s := New(probe)
	tag, err := s.Begin()
	if err != nil {
		t.Fatalf("Begin: %v", err)
	}

	if err := s.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(probe.killed) != 1 || probe.killed[0] != tag {
		t.Fatalf("killed = %v, want [%s]", probe.killed, tag)
	}
	if s.State() != StateCancelled {
		t.Fatalf("State = %v, want Cancelled", s.State())
	}

	if _, err := s.Begin(); err == nil {
		t.Fatal("expected Begin to reject submissions while cancelled")
	}

	s.Reset()
	if s.State() != StateIdle {
		t.Fatalf("State = %v, want Idle after Reset", s.State())
	}
	if _, err := s.Begin(); err != nil {
		t.Fatalf("Begin after Reset: %v", err)
	}
}

func TestCancelWithNoInFlightSubmissionSkipsProbe(t *testing.T) {
	probe := &fakeProbe{}
	s := New(probe)
	if err := s.Cancel(context.Background()); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if len(probe.killed) != 0 {
		t.Fatalf("killed = %v, want none (no in-flight tag)", probe.killed)
	}
}

func TestWithDeadlineTranslatesTimeoutToKindTimeout(t *testing.T) {
	s := New(&fakeProbe{})
	err := s.WithDeadline(context.Background(), time.Millisecond, func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	var ke *util.KindError
	if !errors.As(err, &ke) || ke.Kind != util.KindTimeout {
		t.Fatalf("err = %v, want a KindTimeout error", err)
	}
}

func TestWithDeadlineZeroTimeoutRunsUnbounded(t *testing.T) {
	s := New(&fakeProbe{})
	called := false
	err := s.WithDeadline(context.Background(), 0, func(ctx context.Context) error {
		called = true
		return nil
	})
	if err != nil {
		t.Fatalf("WithDeadline: %v", err)
	}
	if !called {
		t.Fatal("fn was not called")
	}
}
