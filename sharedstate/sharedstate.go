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

// Package sharedstate provides typed accessors for the reserved __a2a_*
// keys of a flow.SharedState, so the task manager and node code never poke
// at raw map entries directly.
package sharedstate

import (
	"encoding/json"

	"github.com/a2aproject/a2a-go/a2a"
	"github.com/mitchellh/mapstructure"

	"github.com/pocketmesh/pocketmesh/flow"
)

// Reserved shared-state keys carrying A2A context between the task manager
// and node code (spec §3).
const (
	KeyIncomingMessage = "__a2a_incoming_message"
	KeyHistory         = "__a2a_history"
	KeyFinalResponse   = "__a2a_final_response_parts"
	KeyContextID       = "__a2a_context_id"
	KeyTaskID          = "__a2a_task_id"
	KeySkillID         = "__a2a_skill_id"
	KeyArtifacts       = "__a2a_artifacts"
)

// IncomingMessage returns the current inbound message, if set.
func IncomingMessage(s flow.SharedState) *a2a.Message {
	m, _ := s[KeyIncomingMessage].(*a2a.Message)
	return m
}

// SetIncomingMessage sets the current inbound message.
func SetIncomingMessage(s flow.SharedState, msg *a2a.Message) {
	s[KeyIncomingMessage] = msg
}

// History returns the ordered message history, or nil if unset.
func History(s flow.SharedState) []a2a.Message {
	h, _ := s[KeyHistory].([]a2a.Message)
	return h
}

// SetHistory replaces the message history.
func SetHistory(s flow.SharedState, history []a2a.Message) {
	s[KeyHistory] = history
}

// AppendHistory appends msg to the existing history.
func AppendHistory(s flow.SharedState, msg a2a.Message) {
	s[KeyHistory] = append(History(s), msg)
}

// FinalResponseParts returns shared.__a2a_final_response_parts if it is a
// non-empty sequence of parts, and ok=false otherwise (spec §4.6.1 step 6's
// first precedence rule).
func FinalResponseParts(s flow.SharedState) (parts []a2a.Part, ok bool) {
	raw, present := s[KeyFinalResponse]
	if !present {
		return nil, false
	}
	switch v := raw.(type) {
	case []a2a.Part:
		if len(v) == 0 {
			return nil, false
		}
		return v, true
	case []any:
		if len(v) == 0 {
			return nil, false
		}
		out := make([]a2a.Part, 0, len(v))
		for _, p := range v {
			part, ok := p.(a2a.Part)
			if !ok {
				return nil, false
			}
			out = append(out, part)
		}
		return out, true
	default:
		return nil, false
	}
}

// SetFinalResponseParts sets the terminal agent message's parts explicitly.
func SetFinalResponseParts(s flow.SharedState, parts []a2a.Part) {
	s[KeyFinalResponse] = parts
}

// ContextID returns the A2A context id bound to this shared state.
func ContextID(s flow.SharedState) string {
	v, _ := s[KeyContextID].(string)
	return v
}

// SetContextID sets the A2A context id.
func SetContextID(s flow.SharedState, contextID string) {
	s[KeyContextID] = contextID
}

// TaskID returns the A2A task id bound to this shared state.
func TaskID(s flow.SharedState) string {
	v, _ := s[KeyTaskID].(string)
	return v
}

// SetTaskID sets the A2A task id.
func SetTaskID(s flow.SharedState, taskID string) {
	s[KeyTaskID] = taskID
}

// SkillID returns the selected skill id.
func SkillID(s flow.SharedState) string {
	v, _ := s[KeySkillID].(string)
	return v
}

// SetSkillID sets the selected skill id.
func SetSkillID(s flow.SharedState, skillID string) {
	s[KeySkillID] = skillID
}

// Artifacts returns the artifacts accumulated so far.
func Artifacts(s flow.SharedState) []a2a.Artifact {
	v, _ := s[KeyArtifacts].([]a2a.Artifact)
	return v
}

// AppendArtifact records a newly emitted artifact.
func AppendArtifact(s flow.SharedState, artifact a2a.Artifact) {
	s[KeyArtifacts] = append(Artifacts(s), artifact)
}

// Marshal serializes shared state to the opaque JSON blob the persistence
// port stores per step.
func Marshal(s flow.SharedState) ([]byte, error) {
	return json.Marshal(map[string]any(s))
}

// Unmarshal deserializes a step's shared-state blob, restoring the reserved
// __a2a_* keys to their concrete a2a types (a2a.Message and a2a.Artifact
// handle their own Part-kind polymorphism on the wire). Keys outside the
// reserved set are restored as plain any values, exactly as json.Unmarshal
// would produce them. __a2a_final_response_parts is intentionally left in
// its generic form: it only matters within the run that sets it, never
// across a resume.
func Unmarshal(data []byte) (flow.SharedState, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	out := make(flow.SharedState, len(raw))
	for k, v := range raw {
		switch k {
		case KeyIncomingMessage:
			var m *a2a.Message
			if err := json.Unmarshal(v, &m); err != nil {
				return nil, err
			}
			out[k] = m
		case KeyHistory:
			var h []a2a.Message
			if err := json.Unmarshal(v, &h); err != nil {
				return nil, err
			}
			out[k] = h
		case KeyArtifacts:
			var a []a2a.Artifact
			if err := json.Unmarshal(v, &a); err != nil {
				return nil, err
			}
			out[k] = a
		default:
			var val any
			if err := json.Unmarshal(v, &val); err != nil {
				return nil, err
			}
			out[k] = val
		}
	}
	return out, nil
}

// ToStruct decodes an arbitrary shared-state value (or sub-map) into a
// struct of type T, mirroring the adk-go a2a server's
// converters.FromMapStructure contract.
func ToStruct[T any](v any) (*T, error) {
	var out T
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: &out, TagName: "mapstructure"})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(v); err != nil {
		return nil, err
	}
	return &out, nil
}

// FromStruct encodes a struct into a map[string]any suitable for storage in
// shared state, mirroring converters.ToMapStructure.
func FromStruct(v any) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	var out map[string]any
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{Result: &out, TagName: "mapstructure"})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(v); err != nil {
		return nil, err
	}
	return out, nil
}
