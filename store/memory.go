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
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process, map-backed Persistence Port, used by the
// tests. It is not durable; OpenSQLiteStore is the durable implementation
// and falls back to DefaultDBPath when POCKETMESH_DB_PATH is unset.
type MemoryStore struct {
	mu sync.Mutex

	nextRunID  int64
	nextStepID int64

	runs  map[int64]*Run
	steps map[int64]map[int]*Step // runID -> stepIndex -> step

	taskToRun map[string]int64
	snapshots map[string]string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:      make(map[int64]*Run),
		steps:     make(map[int64]map[int]*Step),
		taskToRun: make(map[string]int64),
		snapshots: make(map[string]string),
	}
}

func (m *MemoryStore) CreateRun(ctx context.Context, flowName string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextRunID++
	id := m.nextRunID
	m.runs[id] = &Run{ID: id, FlowName: flowName, CreatedAt: time.Now(), Status: RunStatusSubmitted}
	m.steps[id] = make(map[int]*Step)
	return id, nil
}

func (m *MemoryStore) GetRun(ctx context.Context, runID int64) (*Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.runs[runID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *r
	return &cp, nil
}

func (m *MemoryStore) UpdateRunStatus(ctx context.Context, runID int64, status RunStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	r, ok := m.runs[runID]
	if !ok {
		return ErrNotFound
	}
	r.Status = status
	return nil
}

func (m *MemoryStore) AddStep(ctx context.Context, runID int64, nodeName string, action string, stepIndex int, sharedStateJSON string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	runSteps, ok := m.steps[runID]
	if !ok {
		return 0, ErrNotFound
	}
	if _, exists := runSteps[stepIndex]; exists {
		return 0, ErrStepIndexConflict
	}

	m.nextStepID++
	step := &Step{
		ID:              m.nextStepID,
		RunID:           runID,
		NodeName:        nodeName,
		Action:          action,
		StepIndex:       stepIndex,
		SharedStateJSON: sharedStateJSON,
		CreatedAt:       time.Now(),
	}
	runSteps[stepIndex] = step
	return step.ID, nil
}

func (m *MemoryStore) GetStepsForRun(ctx context.Context, runID int64) ([]Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	runSteps, ok := m.steps[runID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]Step, 0, len(runSteps))
	for _, s := range runSteps {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StepIndex < out[j].StepIndex })
	return out, nil
}

func (m *MemoryStore) GetLastStep(ctx context.Context, runID int64) (*Step, error) {
	steps, err := m.GetStepsForRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		return nil, ErrNotFound
	}
	last := steps[len(steps)-1]
	return &last, nil
}

func (m *MemoryStore) GetStepByIndex(ctx context.Context, runID int64, stepIndex int) (*Step, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	runSteps, ok := m.steps[runID]
	if !ok {
		return nil, ErrNotFound
	}
	s, ok := runSteps[stepIndex]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *s
	return &cp, nil
}

// DeleteRun removes the run, its steps, and any task mapping/snapshot that
// points at it, as a single in-memory critical section (the in-process
// analogue of a transaction).
func (m *MemoryStore) DeleteRun(ctx context.Context, runID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.runs[runID]; !ok {
		return ErrNotFound
	}
	delete(m.runs, runID)
	delete(m.steps, runID)

	for taskID, mappedRun := range m.taskToRun {
		if mappedRun == runID {
			delete(m.taskToRun, taskID)
			delete(m.snapshots, taskID)
		}
	}
	return nil
}

func (m *MemoryStore) MapA2ATaskToRun(ctx context.Context, taskID string, runID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.taskToRun[taskID] = runID
	return nil
}

func (m *MemoryStore) GetRunIDForA2ATask(ctx context.Context, taskID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	runID, ok := m.taskToRun[taskID]
	if !ok {
		return 0, ErrNotFound
	}
	return runID, nil
}

func (m *MemoryStore) DeleteA2ATask(ctx context.Context, taskID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.taskToRun, taskID)
	delete(m.snapshots, taskID)
	return nil
}

func (m *MemoryStore) SaveTaskSnapshot(ctx context.Context, taskID string, snapshotJSON string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.snapshots[taskID] = snapshotJSON
	return nil
}

func (m *MemoryStore) GetTaskSnapshot(ctx context.Context, taskID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap, ok := m.snapshots[taskID]
	if !ok {
		return "", ErrNotFound
	}
	return snap, nil
}

var _ Port = (*MemoryStore)(nil)
