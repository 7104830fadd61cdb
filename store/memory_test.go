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

package store

import (
	"context"
	"errors"
	"testing"
)

func TestMemoryStore_StepIndexContiguity(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	runID, err := s.CreateRun(ctx, "echo")
	if err != nil {
		t.Fatalf("CreateRun() error = %v", err)
	}

	for i := 0; i < 3; i++ {
		if _, err := s.AddStep(ctx, runID, "Node", "default", i, "{}"); err != nil {
			t.Fatalf("AddStep(%d) error = %v", i, err)
		}
	}

	steps, err := s.GetStepsForRun(ctx, runID)
	if err != nil {
		t.Fatalf("GetStepsForRun() error = %v", err)
	}
	if len(steps) != 3 {
		t.Fatalf("len(steps) = %d, want 3", len(steps))
	}
	for i, step := range steps {
		if step.StepIndex != i {
			t.Errorf("steps[%d].StepIndex = %d, want %d", i, step.StepIndex, i)
		}
	}

	last, err := s.GetLastStep(ctx, runID)
	if err != nil {
		t.Fatalf("GetLastStep() error = %v", err)
	}
	if last.StepIndex != 2 {
		t.Errorf("GetLastStep().StepIndex = %d, want 2", last.StepIndex)
	}
}

func TestMemoryStore_AddStepDuplicateIndex(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	runID, _ := s.CreateRun(ctx, "echo")
	if _, err := s.AddStep(ctx, runID, "A2A_INIT", "", 0, "{}"); err != nil {
		t.Fatalf("AddStep() error = %v", err)
	}
	_, err := s.AddStep(ctx, runID, "A2A_INIT", "", 0, "{}")
	if !errors.Is(err, ErrStepIndexConflict) {
		t.Errorf("AddStep() error = %v, want ErrStepIndexConflict", err)
	}
}

func TestMemoryStore_DeleteRunCascades(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	runID, _ := s.CreateRun(ctx, "echo")
	if _, err := s.AddStep(ctx, runID, "A2A_INIT", "", 0, "{}"); err != nil {
		t.Fatalf("AddStep() error = %v", err)
	}
	if err := s.MapA2ATaskToRun(ctx, "task-1", runID); err != nil {
		t.Fatalf("MapA2ATaskToRun() error = %v", err)
	}
	if err := s.SaveTaskSnapshot(ctx, "task-1", `{"id":"task-1"}`); err != nil {
		t.Fatalf("SaveTaskSnapshot() error = %v", err)
	}

	if err := s.DeleteRun(ctx, runID); err != nil {
		t.Fatalf("DeleteRun() error = %v", err)
	}

	if _, err := s.GetRun(ctx, runID); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRun() after delete error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetRunIDForA2ATask(ctx, "task-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetRunIDForA2ATask() after delete error = %v, want ErrNotFound", err)
	}
	if _, err := s.GetTaskSnapshot(ctx, "task-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetTaskSnapshot() after delete error = %v, want ErrNotFound", err)
	}
}

func TestMemoryStore_MapA2ATaskToRunIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	runID, _ := s.CreateRun(ctx, "echo")
	if err := s.MapA2ATaskToRun(ctx, "task-1", runID); err != nil {
		t.Fatalf("MapA2ATaskToRun() error = %v", err)
	}
	if err := s.MapA2ATaskToRun(ctx, "task-1", runID); err != nil {
		t.Fatalf("MapA2ATaskToRun() second call error = %v", err)
	}
	got, err := s.GetRunIDForA2ATask(ctx, "task-1")
	if err != nil {
		t.Fatalf("GetRunIDForA2ATask() error = %v", err)
	}
	if got != runID {
		t.Errorf("GetRunIDForA2ATask() = %d, want %d", got, runID)
	}
}
