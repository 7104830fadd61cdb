// Copyright 2025 Google LLC
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

// Package bus defines the Event Bus Port: the sink the task manager
// publishes protocol events to, consumed by the (out of scope) SSE
// transport.
package bus

import (
	"context"
	"sync"

	"github.com/a2aproject/a2a-go/a2a"
)

// Bus is the local restatement of the bus port spec §4.7 requires:
// publish, a finished signal, and transport-level subscription. It is kept
// small and local so the task manager can be tested against a bare
// in-process fake without depending on the real eventqueue wiring.
type Bus interface {
	Publish(ctx context.Context, event a2a.Event) error
	Finished()
	On(name string, handler func(a2a.Event))
	Off(name string)
	Once(name string, handler func(a2a.Event))
}

// Local is an in-process Bus good enough for tests and for callers that
// don't need the real a2a-go transport wiring.
type Local struct {
	mu sync.Mutex

	events   []a2a.Event
	finished bool

	handlers    map[string]func(a2a.Event)
	onceHandled map[string]bool
}

// NewLocal constructs an empty Local bus.
func NewLocal() *Local {
	return &Local{handlers: make(map[string]func(a2a.Event))}
}

func (b *Local) Publish(ctx context.Context, event a2a.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)
	for name, h := range b.handlers {
		h(event)
		if b.onceHandled != nil && b.onceHandled[name] {
			delete(b.handlers, name)
			delete(b.onceHandled, name)
		}
	}
	return nil
}

func (b *Local) Finished() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.finished = true
}

// IsFinished reports whether Finished has been called, for test assertions.
func (b *Local) IsFinished() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finished
}

// Events returns the events published so far, in publish order.
func (b *Local) Events() []a2a.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]a2a.Event, len(b.events))
	copy(out, b.events)
	return out
}

func (b *Local) On(name string, handler func(a2a.Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = handler
}

func (b *Local) Off(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, name)
	if b.onceHandled != nil {
		delete(b.onceHandled, name)
	}
}

func (b *Local) Once(name string, handler func(a2a.Event)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = handler
	if b.onceHandled == nil {
		b.onceHandled = make(map[string]bool)
	}
	b.onceHandled[name] = true
}

var _ Bus = (*Local)(nil)
