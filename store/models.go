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

import "time"

// runRow is the GORM model backing the "runs" table (spec §6).
type runRow struct {
	ID        int64 `gorm:"primaryKey;autoIncrement"`
	FlowName  string
	CreatedAt time.Time
	Status    string
}

func (runRow) TableName() string { return "runs" }

// stepRow is the GORM model backing the "steps" table. (RunID, StepIndex)
// carries a unique index, so the storage layer rejects a duplicate step
// index within a run; it does not check that indexes are gap-free.
type stepRow struct {
	ID              int64 `gorm:"primaryKey;autoIncrement"`
	RunID           int64 `gorm:"index:idx_run_step,unique,priority:1"`
	NodeName        string
	Action          string
	StepIndex       int `gorm:"index:idx_run_step,unique,priority:2"`
	SharedStateJSON string
	CreatedAt       time.Time
}

func (stepRow) TableName() string { return "steps" }

// a2aTaskRow is the GORM model backing the "a2a_tasks" table: the
// task_id -> run_id mapping plus the side-by-side snapshot column.
type a2aTaskRow struct {
	TaskID       string `gorm:"primaryKey"`
	RunID        int64
	CreatedAt    time.Time
	SnapshotJSON string
}

func (a2aTaskRow) TableName() string { return "a2a_tasks" }

func toRun(r runRow) Run {
	return Run{ID: r.ID, FlowName: r.FlowName, CreatedAt: r.CreatedAt, Status: RunStatus(r.Status)}
}

func toStep(s stepRow) Step {
	return Step{
		ID:              s.ID,
		RunID:           s.RunID,
		NodeName:        s.NodeName,
		Action:          s.Action,
		StepIndex:       s.StepIndex,
		SharedStateJSON: s.SharedStateJSON,
		CreatedAt:       s.CreatedAt,
	}
}
