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

package bus

import (
	"context"
	"testing"

	"github.com/a2aproject/a2a-go/a2a"
)

func TestLocal_PublishDeliversToHandlers(t *testing.T) {
	b := NewLocal()
	var seen []a2a.Event
	b.On("watch", func(e a2a.Event) { seen = append(seen, e) })

	evt := &a2a.TaskStatusUpdateEvent{TaskID: "t1"}
	if err := b.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if len(seen) != 1 {
		t.Fatalf("len(seen) = %d, want 1", len(seen))
	}
}

func TestLocal_Once(t *testing.T) {
	b := NewLocal()
	calls := 0
	b.Once("watch", func(a2a.Event) { calls++ })

	ctx := context.Background()
	b.Publish(ctx, &a2a.TaskStatusUpdateEvent{TaskID: "t1"})
	b.Publish(ctx, &a2a.TaskStatusUpdateEvent{TaskID: "t1"})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestLocal_Off(t *testing.T) {
	b := NewLocal()
	calls := 0
	b.On("watch", func(a2a.Event) { calls++ })
	b.Off("watch")

	b.Publish(context.Background(), &a2a.TaskStatusUpdateEvent{TaskID: "t1"})
	if calls != 0 {
		t.Errorf("calls = %d, want 0", calls)
	}
}

func TestLocal_Finished(t *testing.T) {
	b := NewLocal()
	if b.IsFinished() {
		t.Fatal("IsFinished() = true before Finished() called")
	}
	b.Finished()
	if !b.IsFinished() {
		t.Error("IsFinished() = false after Finished() called")
	}
}

func TestLocal_EventsReturnsPublishOrder(t *testing.T) {
	b := NewLocal()
	ctx := context.Background()
	b.Publish(ctx, &a2a.TaskStatusUpdateEvent{TaskID: "a"})
	b.Publish(ctx, &a2a.TaskStatusUpdateEvent{TaskID: "b"})

	events := b.Events()
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	if events[0].(*a2a.TaskStatusUpdateEvent).TaskID != "a" || events[1].(*a2a.TaskStatusUpdateEvent).TaskID != "b" {
		t.Errorf("events out of order: %#v", events)
	}
}

var _ Bus = (*Local)(nil)
