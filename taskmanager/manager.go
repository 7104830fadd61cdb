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

// Package taskmanager binds an incoming A2A task to a persisted flow run:
// it loads or initializes shared state, drives the flow orchestrator,
// translates its hooks into A2A protocol events on an event bus, and
// handles cooperative cancellation.
package taskmanager

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/a2aproject/a2a-go/a2asrv"

	"github.com/pocketmesh/pocketmesh/bus"
	"github.com/pocketmesh/pocketmesh/flow"
	"github.com/pocketmesh/pocketmesh/sharedstate"
	"github.com/pocketmesh/pocketmesh/store"
)

// metadataSkillIDKey is the inbound message metadata key carrying the
// caller's chosen skill id.
const metadataSkillIDKey = "skillId"

// Config wires a Manager's flow registry and persistence dependencies.
type Config struct {
	// Flows maps a skill id to the flow that serves it.
	Flows map[string]*flow.Flow
	// DefaultSkillID is used when the inbound message carries no skillId
	// metadata, standing in for "the agent card's first skill" since the
	// card generator lives outside this package.
	DefaultSkillID string
	Port           store.Port
	Tasks          *store.TaskStore
}

// Manager is the Task Manager / Executor: it owns the skill->flow mapping,
// the persistence port and task store, and the set of cancelling task ids.
type Manager struct {
	flows          map[string]*flow.Flow
	defaultSkillID string
	port           store.Port
	tasks          *store.TaskStore
	cancelling     *cancelSet
}

// New validates cfg and constructs a Manager.
func New(cfg Config) (*Manager, error) {
	if len(cfg.Flows) == 0 {
		return nil, fmt.Errorf("taskmanager: at least one flow is required")
	}
	if cfg.Port == nil {
		return nil, fmt.Errorf("taskmanager: Port is required")
	}
	if cfg.Tasks == nil {
		return nil, fmt.Errorf("taskmanager: Tasks is required")
	}
	return &Manager{
		flows:          cfg.Flows,
		defaultSkillID: cfg.DefaultSkillID,
		port:           cfg.Port,
		tasks:          cfg.Tasks,
		cancelling:     newCancelSet(),
	}, nil
}

func (m *Manager) resolveSkillID(msg *a2a.Message) string {
	if msg != nil {
		if id, ok := msg.Metadata[metadataSkillIDKey].(string); ok && id != "" {
			return id
		}
	}
	return m.defaultSkillID
}

// Execute binds reqCtx to a run and drives it to completion, publishing
// protocol events to eventBus as the flow progresses (spec §4.6.1).
func (m *Manager) Execute(ctx context.Context, reqCtx *a2asrv.RequestContext, eventBus bus.Bus) error {
	defer eventBus.Finished()

	skillID := m.resolveSkillID(reqCtx.Message)
	fl, ok := m.flows[skillID]
	if !ok {
		return &SkillNotFoundError{SkillID: skillID}
	}

	taskID := string(reqCtx.TaskID)
	contextID := string(reqCtx.ContextID)

	shared, runID, isNewTask, err := m.initializeOrLoad(ctx, taskID, contextID, skillID, reqCtx.Message)
	if err != nil {
		return err
	}

	task := &a2a.Task{ID: reqCtx.TaskID, ContextID: reqCtx.ContextID}
	if isNewTask {
		task.Status = a2a.TaskStatus{State: a2a.TaskStateSubmitted, Timestamp: time.Now()}
		if err := eventBus.Publish(ctx, a2a.NewSubmittedTask(task, reqCtx.Message)); err != nil {
			return err
		}
	} else {
		task.Status = a2a.TaskStatus{State: a2a.TaskStateWorking, Timestamp: time.Now()}
		if err := eventBus.Publish(ctx, a2a.NewStatusUpdateEvent(task, a2a.TaskStateWorking, nil)); err != nil {
			return err
		}
	}
	// Cancel loads the task by ID to find something to mark; persist a
	// snapshot now so an in-flight task is always cancellable, not just one
	// that has already reached a terminal state.
	if err := m.tasks.Save(ctx, task); err != nil {
		return err
	}

	var hookErr error
	onStatus := func(u flow.StatusUpdate) {
		if hookErr != nil || u.Node == "Flow" {
			return
		}
		ev := workingStatusEvent(task, statusMessageFromText(u.Message), u.Node, u.Step)
		if err := eventBus.Publish(ctx, ev); err != nil {
			hookErr = err
			return
		}
		if err := m.tasks.Save(ctx, task); err != nil {
			hookErr = err
			return
		}
		if u.State == "completed" {
			if err := m.persistTerminalStep(ctx, runID, u.Node, "", shared); err != nil {
				hookErr = err
			}
		}
	}
	onArtifact := func(raw any) {
		if hookErr != nil {
			return
		}
		artifact, err := normalizeHookArtifact(raw)
		if err != nil {
			hookErr = err
			return
		}
		sharedstate.AppendArtifact(shared, artifact)
		if err := eventBus.Publish(ctx, artifactEvent(task, artifact)); err != nil {
			hookErr = err
		}
	}
	fl.SetHooks(onStatus, onArtifact, m.cancelling.checker(taskID))
	defer fl.ClearHooks()

	_, runErr := fl.RunLifecycle(ctx, shared, flow.Params{})
	if runErr == nil {
		runErr = hookErr
	}

	if errors.Is(runErr, flow.ErrCancelled) {
		m.cancelling.unmark(taskID)
		// Status-hook saves made after Cancel overwrote its canceled
		// snapshot; restore it (and the mirrored run status) without
		// publishing a second terminal event.
		task.Status = a2a.TaskStatus{State: a2a.TaskStateCanceled, Timestamp: time.Now()}
		return m.tasks.Save(ctx, task)
	}
	if runErr != nil {
		return m.finishFailure(ctx, eventBus, task, shared, runID, runErr)
	}
	return m.finishSuccess(ctx, eventBus, task, shared, runID)
}

func (m *Manager) finishSuccess(ctx context.Context, eventBus bus.Bus, task *a2a.Task, shared flow.SharedState, runID int64) error {
	parts, err := composeFinalParts(shared)
	if err != nil {
		return m.finishFailure(ctx, eventBus, task, shared, runID, err)
	}
	finalMsg := a2a.NewMessageForTask(a2a.MessageRoleAgent, task, parts...)

	history := sharedstate.History(shared)
	if len(history) == 0 || !messagesEqual(&history[len(history)-1], finalMsg) {
		sharedstate.AppendHistory(shared, *finalMsg)
	}

	if err := eventBus.Publish(ctx, finalMsg); err != nil {
		return err
	}
	if err := eventBus.Publish(ctx, terminalStatusEvent(task, a2a.TaskStateCompleted, finalMsg)); err != nil {
		return err
	}

	if err := m.persistTerminalStep(ctx, runID, "A2A_FINAL", "completed", shared); err != nil {
		return err
	}

	task.Status = a2a.TaskStatus{State: a2a.TaskStateCompleted, Message: finalMsg, Timestamp: time.Now()}
	return m.tasks.Save(ctx, task)
}

func (m *Manager) finishFailure(ctx context.Context, eventBus bus.Bus, task *a2a.Task, shared flow.SharedState, runID int64, cause error) error {
	errMsg := a2a.NewMessageForTask(a2a.MessageRoleAgent, task, a2a.TextPart{Text: errorMessageText(cause)})
	sharedstate.AppendHistory(shared, *errMsg)

	if err := eventBus.Publish(ctx, terminalStatusEvent(task, a2a.TaskStateFailed, errMsg)); err != nil {
		return err
	}

	if err := m.persistTerminalStep(ctx, runID, "A2A_ERROR", "failed", shared); err != nil {
		return err
	}

	task.Status = a2a.TaskStatus{State: a2a.TaskStateFailed, Message: errMsg, Timestamp: time.Now()}
	return m.tasks.Save(ctx, task)
}

func (m *Manager) persistTerminalStep(ctx context.Context, runID int64, nodeName, action string, shared flow.SharedState) error {
	last, err := m.port.GetLastStep(ctx, runID)
	if err != nil {
		return err
	}
	blob, err := sharedstate.Marshal(shared)
	if err != nil {
		return err
	}
	_, err = m.port.AddStep(ctx, runID, nodeName, action, last.StepIndex+1, string(blob))
	return err
}

// initializeOrLoad implements spec §4.6.1 step 2: create-and-map a fresh
// run for a never-seen task id, or hydrate shared state from the last step
// of a mapped one.
func (m *Manager) initializeOrLoad(ctx context.Context, taskID, contextID, skillID string, message *a2a.Message) (flow.SharedState, int64, bool, error) {
	runID, err := m.port.GetRunIDForA2ATask(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		runID, err = m.port.CreateRun(ctx, skillID)
		if err != nil {
			return nil, 0, false, err
		}
		if err := m.port.MapA2ATaskToRun(ctx, taskID, runID); err != nil {
			return nil, 0, false, err
		}

		shared := flow.SharedState{}
		if message != nil {
			sharedstate.SetHistory(shared, []a2a.Message{*message})
		}
		sharedstate.SetIncomingMessage(shared, message)
		sharedstate.SetContextID(shared, contextID)
		sharedstate.SetTaskID(shared, taskID)
		sharedstate.SetSkillID(shared, skillID)

		blob, err := sharedstate.Marshal(shared)
		if err != nil {
			return nil, 0, false, err
		}
		if _, err := m.port.AddStep(ctx, runID, "A2A_INIT", "", 0, string(blob)); err != nil {
			return nil, 0, false, err
		}
		return shared, runID, true, nil
	}
	if err != nil {
		return nil, 0, false, err
	}

	last, err := m.port.GetLastStep(ctx, runID)
	if err != nil {
		return nil, 0, false, err
	}
	shared, err := sharedstate.Unmarshal([]byte(last.SharedStateJSON))
	if err != nil {
		return nil, 0, false, err
	}

	history := sharedstate.History(shared)
	if message != nil && (len(history) == 0 || !messagesEqual(&history[len(history)-1], message)) {
		history = append(history, *message)
	}
	sharedstate.SetHistory(shared, history)
	sharedstate.SetIncomingMessage(shared, message)
	sharedstate.SetContextID(shared, contextID)
	sharedstate.SetTaskID(shared, taskID)
	sharedstate.SetSkillID(shared, skillID)

	return shared, runID, false, nil
}

// Cancel implements spec §4.6.2: idempotent, cooperative cancellation of a
// task's in-flight (or already-finished) run.
func (m *Manager) Cancel(ctx context.Context, reqCtx *a2asrv.RequestContext, eventBus bus.Bus) error {
	defer eventBus.Finished()

	taskID := string(reqCtx.TaskID)
	task, err := m.tasks.Load(ctx, taskID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if isTerminalState(task.Status.State) {
		return nil
	}

	m.cancelling.mark(taskID)

	task.Status = a2a.TaskStatus{State: a2a.TaskStateCanceled, Timestamp: time.Now()}
	if err := m.tasks.Save(ctx, task); err != nil {
		return err
	}

	return eventBus.Publish(ctx, terminalStatusEvent(task, a2a.TaskStateCanceled, nil))
}

func isTerminalState(state a2a.TaskState) bool {
	switch state {
	case a2a.TaskStateCompleted, a2a.TaskStateFailed, a2a.TaskStateCanceled, a2a.TaskStateRejected:
		return true
	default:
		return false
	}
}
