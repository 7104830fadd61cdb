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
	"os"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

// DefaultDBPathEnv is the environment variable naming the SQLite file path
// (spec §6). When unset, DefaultDBPath is used.
const DefaultDBPathEnv = "POCKETMESH_DB_PATH"

// DefaultDBPath is used when DefaultDBPathEnv is unset.
const DefaultDBPath = "./pocketmesh.sqlite"

// SQLiteStore is the concrete, durable Persistence Port: GORM over
// glebarez/sqlite (pure Go, no cgo). A process-wide mutex is not needed
// here; GORM serializes writes against the underlying *sql.DB connection
// pool, and callers are expected to serialize writes for a given run id
// per spec §5 (the task manager owns exactly one run at a time).
type SQLiteStore struct {
	db *gorm.DB
}

// OpenSQLiteStore opens (creating if necessary) the SQLite database at
// path, or at the path named by POCKETMESH_DB_PATH if path is empty, or at
// DefaultDBPath if neither is set. It migrates the runs/steps/a2a_tasks
// schema on open.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		path = os.Getenv(DefaultDBPathEnv)
	}
	if path == "" {
		path = DefaultDBPath
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(&runRow{}, &stepRow{}, &a2aTaskRow{}); err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateRun(ctx context.Context, flowName string) (int64, error) {
	row := runRow{FlowName: flowName, CreatedAt: time.Now(), Status: string(RunStatusSubmitted)}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, err
	}
	return row.ID, nil
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID int64) (*Run, error) {
	var row runRow
	if err := s.db.WithContext(ctx).First(&row, "id = ?", runID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	run := toRun(row)
	return &run, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID int64, status RunStatus) error {
	res := s.db.WithContext(ctx).Model(&runRow{}).Where("id = ?", runID).Update("status", string(status))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStore) AddStep(ctx context.Context, runID int64, nodeName string, action string, stepIndex int, sharedStateJSON string) (int64, error) {
	row := stepRow{
		RunID:           runID,
		NodeName:        nodeName,
		Action:          action,
		StepIndex:       stepIndex,
		SharedStateJSON: sharedStateJSON,
		CreatedAt:       time.Now(),
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		if isUniqueConstraintErr(err) {
			return 0, ErrStepIndexConflict
		}
		return 0, err
	}
	return row.ID, nil
}

func (s *SQLiteStore) GetStepsForRun(ctx context.Context, runID int64) ([]Step, error) {
	var rows []stepRow
	if err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("step_index asc").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]Step, len(rows))
	for i, r := range rows {
		out[i] = toStep(r)
	}
	return out, nil
}

func (s *SQLiteStore) GetLastStep(ctx context.Context, runID int64) (*Step, error) {
	var row stepRow
	err := s.db.WithContext(ctx).Where("run_id = ?", runID).Order("step_index desc").First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	step := toStep(row)
	return &step, nil
}

func (s *SQLiteStore) GetStepByIndex(ctx context.Context, runID int64, stepIndex int) (*Step, error) {
	var row stepRow
	err := s.db.WithContext(ctx).Where("run_id = ? AND step_index = ?", runID, stepIndex).First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	step := toStep(row)
	return &step, nil
}

// DeleteRun deletes the run, its steps, and any task mapping/snapshot in a
// single transaction (spec §4.4's all-or-nothing invariant).
func (s *SQLiteStore) DeleteRun(ctx context.Context, runID int64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&runRow{}, "id = ?", runID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Delete(&stepRow{}, "run_id = ?", runID).Error; err != nil {
			return err
		}
		return tx.Delete(&a2aTaskRow{}, "run_id = ?", runID).Error
	})
}

func (s *SQLiteStore) MapA2ATaskToRun(ctx context.Context, taskID string, runID int64) error {
	row := a2aTaskRow{TaskID: taskID, RunID: runID, CreatedAt: time.Now()}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *SQLiteStore) GetRunIDForA2ATask(ctx context.Context, taskID string) (int64, error) {
	var row a2aTaskRow
	err := s.db.WithContext(ctx).First(&row, "task_id = ?", taskID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, ErrNotFound
		}
		return 0, err
	}
	return row.RunID, nil
}

func (s *SQLiteStore) DeleteA2ATask(ctx context.Context, taskID string) error {
	return s.db.WithContext(ctx).Delete(&a2aTaskRow{}, "task_id = ?", taskID).Error
}

func (s *SQLiteStore) SaveTaskSnapshot(ctx context.Context, taskID string, snapshotJSON string) error {
	res := s.db.WithContext(ctx).Model(&a2aTaskRow{}).Where("task_id = ?", taskID).Update("snapshot_json", snapshotJSON)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		row := a2aTaskRow{TaskID: taskID, CreatedAt: time.Now(), SnapshotJSON: snapshotJSON}
		return s.db.WithContext(ctx).Create(&row).Error
	}
	return nil
}

func (s *SQLiteStore) GetTaskSnapshot(ctx context.Context, taskID string) (string, error) {
	var row a2aTaskRow
	err := s.db.WithContext(ctx).First(&row, "task_id = ?", taskID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	if row.SnapshotJSON == "" {
		return "", ErrNotFound
	}
	return row.SnapshotJSON, nil
}

func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") || strings.Contains(msg, "constraint failed: UNIQUE")
}

var _ Port = (*SQLiteStore)(nil)
