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

// Package store implements the Persistence Port: durable storage of runs,
// steps, task-to-run mappings, and task snapshots, plus an adapter onto the
// a2asrv.TaskStore contract.
package store

import (
	"context"
	"time"
)

// RunStatus mirrors the A2A task states a run can be in (spec §3).
type RunStatus string

const (
	RunStatusSubmitted     RunStatus = "submitted"
	RunStatusWorking       RunStatus = "working"
	RunStatusInputRequired RunStatus = "input-required"
	RunStatusCompleted     RunStatus = "completed"
	RunStatusCanceled      RunStatus = "canceled"
	RunStatusFailed        RunStatus = "failed"
	RunStatusRejected      RunStatus = "rejected"
	RunStatusAuthRequired  RunStatus = "auth-required"
	RunStatusUnknown       RunStatus = "unknown"
)

// Run is the persisted record of one flow execution.
type Run struct {
	ID        int64
	FlowName  string
	CreatedAt time.Time
	Status    RunStatus
}

// Step is one append-only, persisted record within a run (spec §3).
// SharedStateJSON is an opaque UTF-8 JSON blob; the store never interprets
// its contents.
type Step struct {
	ID              int64
	RunID           int64
	NodeName        string
	Action          string
	StepIndex       int
	SharedStateJSON string
	CreatedAt       time.Time
}

// ErrStepIndexConflict is returned by AddStep when (runID, stepIndex) is
// already occupied.
var ErrStepIndexConflict error = stepIndexConflictError{}

type stepIndexConflictError struct{}

func (stepIndexConflictError) Error() string { return "store: step index already occupied for run" }

// ErrNotFound is returned by lookups that find nothing for the given key.
var ErrNotFound error = notFoundError{}

type notFoundError struct{}

func (notFoundError) Error() string { return "store: not found" }

// Port is the persistence interface spec §4.4 requires. Implementations
// (MemoryStore, SQLiteStore) must serialize writes for a given run id.
type Port interface {
	CreateRun(ctx context.Context, flowName string) (runID int64, err error)
	GetRun(ctx context.Context, runID int64) (*Run, error)
	UpdateRunStatus(ctx context.Context, runID int64, status RunStatus) error

	AddStep(ctx context.Context, runID int64, nodeName string, action string, stepIndex int, sharedStateJSON string) (stepID int64, err error)
	GetStepsForRun(ctx context.Context, runID int64) ([]Step, error)
	GetLastStep(ctx context.Context, runID int64) (*Step, error)
	GetStepByIndex(ctx context.Context, runID int64, stepIndex int) (*Step, error)

	DeleteRun(ctx context.Context, runID int64) error

	MapA2ATaskToRun(ctx context.Context, taskID string, runID int64) error
	GetRunIDForA2ATask(ctx context.Context, taskID string) (int64, error)
	DeleteA2ATask(ctx context.Context, taskID string) error

	SaveTaskSnapshot(ctx context.Context, taskID string, snapshotJSON string) error
	GetTaskSnapshot(ctx context.Context, taskID string) (string, error)
}
