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

package taskmanager

import (
	"fmt"

	"github.com/a2aproject/a2a-go/a2a"

	"github.com/pocketmesh/pocketmesh/a2aparts"
	"github.com/pocketmesh/pocketmesh/flow"
	"github.com/pocketmesh/pocketmesh/sharedstate"
)

// statusMessageFromText wraps plain text from a flow.StatusUpdate into an
// agent-authored A2A message, or nil when text is empty.
func statusMessageFromText(text string) *a2a.Message {
	if text == "" {
		return nil
	}
	return a2a.NewMessage(a2a.MessageRoleAgent, a2a.TextPart{Text: text})
}

// workingStatusEvent builds the intermediate status-update event published
// for every node transition the flow reports through onStatusUpdate. Nodes
// only ever drive the A2A-visible state to "working": only the executor
// decides terminal states.
func workingStatusEvent(task *a2a.Task, message *a2a.Message, node string, step int) *a2a.TaskStatusUpdateEvent {
	ev := a2a.NewStatusUpdateEvent(task, a2a.TaskStateWorking, message)
	ev.Final = false
	ev.Metadata = map[string]any{
		"node": node,
		"step": step,
	}
	return ev
}

// terminalStatusEvent builds the one trailing status-update event that
// closes out a run, successful, failed, or canceled.
func terminalStatusEvent(task *a2a.Task, state a2a.TaskState, message *a2a.Message) *a2a.TaskStatusUpdateEvent {
	ev := a2a.NewStatusUpdateEvent(task, state, message)
	ev.Final = true
	return ev
}

// artifactEvent turns a normalized a2a.Artifact into the protocol event
// carrying it, preserving the artifact's id, name, and description exactly
// (unlike a2a.NewArtifactEvent, which always mints a fresh artifact id).
func artifactEvent(task *a2a.Task, artifact a2a.Artifact) *a2a.TaskArtifactUpdateEvent {
	return &a2a.TaskArtifactUpdateEvent{
		TaskID:    task.ID,
		ContextID: task.ContextID,
		Artifact:  artifact,
		Append:    false,
		LastChunk: true,
	}
}

// normalizeHookArtifact converts whatever a flow.ArtifactHook received into
// an a2a.Artifact, accepting both already-typed values and the legacy
// type-keyed map shape (spec §4.6.1 step 4).
func normalizeHookArtifact(raw any) (a2a.Artifact, error) {
	return a2aparts.NormalizeArtifact(raw)
}

// composeFinalParts implements the terminal-message precedence rule (spec
// §4.6.1 step 6): an explicit __a2a_final_response_parts sequence wins, then
// a string "lastEcho" shared-state value, then a fixed fallback.
func composeFinalParts(shared flow.SharedState) ([]a2a.Part, error) {
	if parts, ok := sharedstate.FinalResponseParts(shared); ok {
		return parts, nil
	}
	if text, ok := shared["lastEcho"].(string); ok {
		return []a2a.Part{a2a.TextPart{Text: text}}, nil
	}
	return []a2a.Part{a2a.TextPart{Text: "Flow completed."}}, nil
}

// errorMessageText formats the synthetic failure message appended to
// history and carried by the terminal failed status event.
func errorMessageText(cause error) string {
	return fmt.Sprintf("PocketMesh flow failed: %s", cause.Error())
}

// messagesEqual reports whether two messages are role- and parts-identical,
// used to avoid appending a duplicate history entry (spec §4.6.1 steps 2
// and 6).
func messagesEqual(a, b *a2a.Message) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Role != b.Role || len(a.Parts) != len(b.Parts) {
		return false
	}
	for i := range a.Parts {
		if !partsEqual(a.Parts[i], b.Parts[i]) {
			return false
		}
	}
	return true
}

func partsEqual(a, b a2a.Part) bool {
	switch av := a.(type) {
	case a2a.TextPart:
		bv, ok := b.(a2a.TextPart)
		return ok && av.Text == bv.Text
	case a2a.DataPart:
		bv, ok := b.(a2a.DataPart)
		if !ok || len(av.Data) != len(bv.Data) {
			return false
		}
		for k, v := range av.Data {
			if bv.Data[k] != v {
				return false
			}
		}
		return true
	case a2a.FilePart:
		bv, ok := b.(a2a.FilePart)
		return ok && av.File == bv.File
	default:
		return false
	}
}
