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

// Package flow implements the node graph executor: the prepare/execute/finalize
// lifecycle, bounded retry with fallback, batch/parallel item processing, and
// the status/artifact hooks an enclosing task manager observes a run through.
package flow

import (
	"context"
	"fmt"
)

// Action keys a node's successor edge. The empty string and the literal
// "default" are equivalent; Finalize results are normalized to "default"
// via NormalizeAction.
type Action string

// DefaultAction is the action used when a node's Finalize result is empty.
const DefaultAction Action = "default"

// NormalizeAction collapses an empty action to DefaultAction.
func NormalizeAction(a Action) Action {
	if a == "" {
		return DefaultAction
	}
	return a
}

// SharedState is the untyped, mutable, single-writer mapping nodes read and
// write across a run. See package sharedstate for typed accessors to the
// reserved __a2a_* keys.
type SharedState map[string]any

// Params is a flat mapping of runtime/default parameters merged and handed
// to a node's lifecycle methods.
type Params map[string]any

// Merge returns a new Params with entries of other overriding entries of p.
// Neither p nor other is mutated.
func (p Params) Merge(other Params) Params {
	out := make(Params, len(p)+len(other))
	for k, v := range p {
		out[k] = v
	}
	for k, v := range other {
		out[k] = v
	}
	return out
}

// ExecOptions configures a node's retry and batch-parallelism behavior.
type ExecOptions struct {
	// MaxRetries is the total number of execute attempts (not retries in
	// addition to one). Must be >= 1; a zero value is treated as 1.
	MaxRetries int
	// WaitSeconds is the real wall-clock wait between attempts.
	WaitSeconds float64
	// Parallel, for batch nodes, runs ExecuteItem concurrently across all
	// prepared items instead of sequentially.
	Parallel bool
}

// effective returns o with MaxRetries clamped to its floor of 1.
func (o ExecOptions) effective() ExecOptions {
	if o.MaxRetries < 1 {
		o.MaxRetries = 1
	}
	return o
}

// Node is a unit of computation in a flow graph. Implementations typically
// embed BaseNode to get successor wiring and options storage for free, and
// implement Prepare/Execute/Finalize on top of it.
type Node interface {
	// Name identifies the node in logs, traces, and persisted steps.
	Name() string

	// Prepare produces input for Execute. May mutate shared. Never retried.
	Prepare(ctx context.Context, shared SharedState, params Params) (any, error)

	// Execute performs the node's main work. Retried up to Options().MaxRetries
	// times by the orchestrator's retry harness. Not called by the
	// orchestrator for batch nodes (see ItemExecutor).
	Execute(ctx context.Context, prep any, shared SharedState, params Params, attempt int) (any, error)

	// Finalize records results into shared and returns the next action.
	// Never retried.
	Finalize(ctx context.Context, shared SharedState, prep any, exec any, params Params) (Action, error)

	// internals exposes the embedded BaseNode so the orchestrator and the
	// successor-wiring DFS can reach topology state generically across any
	// concrete Node implementation.
	internals() *BaseNode
}

// Fallback is implemented by nodes that want a replacement result instead of
// a propagated error once Execute has exhausted its retries.
type Fallback interface {
	ExecuteFallback(ctx context.Context, prep any, cause error, shared SharedState, params Params, attempt int) (any, error)
}

// ItemExecutor marks a node as a batch node: its scalar Execute is never
// called by the orchestrator, and Prepare must return an iterable sequence
// of items (a []any, or any slice or array — see materializeItems).
type ItemExecutor interface {
	ExecuteItem(ctx context.Context, item any, shared SharedState, params Params, attempt int) (any, error)
}

// ItemFallback is the batch-node analogue of Fallback, invoked per item.
type ItemFallback interface {
	ExecuteItemFallback(ctx context.Context, item any, cause error, shared SharedState, params Params, attempt int) (any, error)
}

// ArtifactResultKey is the map key under which execute/item results embed a
// legacy result-carried artifact. A node may signal an
// artifact either by calling Flow.OnArtifact directly during Execute, or by
// returning a map containing the reserved ArtifactResultKey — both paths
// must be detected by the orchestrator (spec §9, "Legacy result-carried
// artifacts").
const ArtifactResultKey = "__a2a_artifact"

// extractResultArtifact detects the legacy result-carried artifact shape: an
// execute/item result that is a map containing ArtifactResultKey.
func extractResultArtifact(result any) (any, bool) {
	m, ok := result.(map[string]any)
	if !ok {
		return nil, false
	}
	a, ok := m[ArtifactResultKey]
	return a, ok
}

// BaseNode provides successor wiring, default params, exec options, and the
// non-owning back-reference to the owning Flow. Embed it by value in a
// concrete node type and implement Prepare/Execute/Finalize on the outer
// type; internals() is then promoted automatically.
type BaseNode struct {
	name          string
	successors    map[Action]Node
	options       ExecOptions
	defaultParams Params

	// flow is a non-owning reference to the Flow this node was wired into.
	// Go's garbage collector tolerates the flow->node->flow cycle natively;
	// unlike a manual-memory-management target, no weak-pointer or handle
	// indirection is needed here.
	flow *Flow
}

// NewBaseNode constructs a BaseNode with the given name and options.
func NewBaseNode(name string, opts ExecOptions) BaseNode {
	return BaseNode{
		name:       name,
		successors: make(map[Action]Node),
		options:    opts.effective(),
	}
}

func (n *BaseNode) internals() *BaseNode { return n }

// Name returns the node's name.
func (n *BaseNode) Name() string { return n.name }

// Options returns the node's retry/parallel configuration.
func (n *BaseNode) Options() ExecOptions { return n.options }

// DefaultParams returns the node's own default params, merged under runtime
// params by the orchestrator (flow defaults < node defaults < runtime).
func (n *BaseNode) DefaultParams() Params { return n.defaultParams }

// SetDefaultParams replaces the node's default params.
func (n *BaseNode) SetDefaultParams(p Params) { n.defaultParams = p }

// Successors returns the action->node edges, for introspection (e.g.
// ExportDOT) and for the orchestrator's transition lookup.
func (n *BaseNode) Successors() map[Action]Node {
	return n.successors
}

// AddSuccessor wires target as the node reached when this node's Finalize
// returns action. Returns a DuplicateActionError if action is already wired.
// If this node is already attached to a Flow, the flow back-reference is
// propagated transitively into target's reachable subgraph.
func (n *BaseNode) AddSuccessor(action Action, target Node) error {
	if n.successors == nil {
		n.successors = make(map[Action]Node)
	}
	action = NormalizeAction(action)
	if _, exists := n.successors[action]; exists {
		return &DuplicateActionError{Node: n.name, Action: string(action)}
	}
	n.successors[action] = target
	if n.flow != nil {
		propagateFlow(n.flow, target, make(map[Node]bool))
	}
	return nil
}

// propagateFlow sets flow on node and every node reachable from it that
// doesn't already carry it, tolerating cycles via visited.
func propagateFlow(fl *Flow, node Node, visited map[Node]bool) {
	if node == nil || visited[node] {
		return
	}
	visited[node] = true
	base := node.internals()
	if base.flow == fl {
		return
	}
	base.flow = fl
	for _, succ := range base.successors {
		propagateFlow(fl, succ, visited)
	}
}

// ConnectTo wires target as the "default" action successor and returns
// target (as a Node) together with any wiring error.
func (n *BaseNode) ConnectTo(target Node) (Node, error) {
	return target, n.AddSuccessor(DefaultAction, target)
}

// ConnectAction wires target under the given action. An empty action is
// rejected — use ConnectTo for the default edge.
func (n *BaseNode) ConnectAction(action Action, target Node) (Node, error) {
	if action == "" {
		return nil, fmt.Errorf("flow: node %s: ConnectAction requires a non-empty action", n.name)
	}
	return target, n.AddSuccessor(action, target)
}
