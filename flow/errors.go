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

package flow

import (
	"errors"
	"fmt"
)

// ErrIllegalState is returned when an operation is attempted that the
// state machine forbids outright, e.g. calling Execute on a Flow.
var ErrIllegalState = errors.New("flow: illegal state")

// ErrCancelled signals cooperative cancellation of an in-progress
// orchestration. It is not a failure: callers treat it as a distinct
// control-flow outcome, never surfaced to users as a NodeFailure.
var ErrCancelled = errors.New("flow: cancelled")

// IllegalTransitionError is returned when a node's Finalize returns an
// action that has no corresponding successor edge.
type IllegalTransitionError struct {
	Node      string
	Action    string
	Available []string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("Action '%s' not found in successors of %s. Available: %v", e.Action, e.Node, e.Available)
}

// DuplicateActionError is returned when AddSuccessor is called twice for the
// same action on the same node.
type DuplicateActionError struct {
	Node   string
	Action string
}

func (e *DuplicateActionError) Error() string {
	return fmt.Sprintf("node %s already has a successor for action %q", e.Node, e.Action)
}

// NodeFailureError wraps an error raised by a node's lifecycle method with
// the node name and phase (prepare/execute/finalize) in which it occurred.
type NodeFailureError struct {
	Node  string
	Phase string
	Cause error
}

func (e *NodeFailureError) Error() string {
	return fmt.Sprintf("node %s failed in %s: %v", e.Node, e.Phase, e.Cause)
}

func (e *NodeFailureError) Unwrap() error {
	return e.Cause
}
