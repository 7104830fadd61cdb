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
	"encoding/json"
	"errors"

	"github.com/a2aproject/a2a-go/a2a"
)

// TaskStore adapts a Persistence Port to the a2asrv.TaskStore contract
// (spec §4.5): save persists the serialized task and, if a run is mapped
// to it, mirrors the task's status onto the run; load returns the
// deserialized snapshot.
type TaskStore struct {
	port Port
}

// NewTaskStore wraps port as an a2asrv.TaskStore-shaped adapter.
func NewTaskStore(port Port) *TaskStore {
	return &TaskStore{port: port}
}

// Save persists task under task.ID and, when a run is mapped to this task,
// updates that run's status to match task.Status.State. Safe to call when
// no run is mapped (the snapshot is still written).
func (t *TaskStore) Save(ctx context.Context, task *a2a.Task) error {
	blob, err := json.Marshal(task)
	if err != nil {
		return err
	}
	if err := t.port.SaveTaskSnapshot(ctx, string(task.ID), string(blob)); err != nil {
		return err
	}

	runID, err := t.port.GetRunIDForA2ATask(ctx, string(task.ID))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	}
	return t.port.UpdateRunStatus(ctx, runID, toRunStatus(task.Status.State))
}

// Load returns the deserialized snapshot for taskID, or ErrNotFound if none
// exists. Load never allocates or mutates runs.
func (t *TaskStore) Load(ctx context.Context, taskID string) (*a2a.Task, error) {
	blob, err := t.port.GetTaskSnapshot(ctx, taskID)
	if err != nil {
		return nil, err
	}
	var task a2a.Task
	if err := json.Unmarshal([]byte(blob), &task); err != nil {
		return nil, err
	}
	return &task, nil
}

// toRunStatus maps an A2A task state onto the run-status vocabulary, with
// passthrough for every defined state and RunStatusUnknown otherwise.
func toRunStatus(state a2a.TaskState) RunStatus {
	switch state {
	case a2a.TaskStateSubmitted:
		return RunStatusSubmitted
	case a2a.TaskStateWorking:
		return RunStatusWorking
	case a2a.TaskStateInputRequired:
		return RunStatusInputRequired
	case a2a.TaskStateCompleted:
		return RunStatusCompleted
	case a2a.TaskStateCanceled:
		return RunStatusCanceled
	case a2a.TaskStateFailed:
		return RunStatusFailed
	case a2a.TaskStateRejected:
		return RunStatusRejected
	case a2a.TaskStateAuthRequired:
		return RunStatusAuthRequired
	default:
		return RunStatusUnknown
	}
}
