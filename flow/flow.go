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
	"context"
	"fmt"
	"reflect"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/pocketmesh/pocketmesh/internal/flowtelemetry"
)

// StatusUpdate is the payload delivered to a Flow's OnStatusUpdate hook.
type StatusUpdate struct {
	Node    string
	State   string // "working" | "completed" | "failed"
	Message string
	Step    int
	Shared  SharedState
}

// StatusHook observes node and flow status transitions.
type StatusHook func(StatusUpdate)

// ArtifactHook observes artifacts emitted by a node, either via a direct
// call during Execute or via the legacy result-carried shape.
type ArtifactHook func(artifact any)

// CancelChecker reports whether the in-flight run should abort cooperatively
// between nodes. Set by the enclosing task manager; nil means never cancel.
type CancelChecker func() bool

// Config configures a new Flow.
type Config struct {
	Name    string
	Start   Node
	Options ExecOptions
}

// Flow is a rooted node graph with a designated start node. A Flow is
// itself a Node: it has Prepare/Finalize wrapping the orchestration walk,
// but Execute is forbidden (spec §3, "Flow ... execute is forbidden").
type Flow struct {
	BaseNode
	start Node

	onStatusUpdate StatusHook
	onArtifact     ArtifactHook
	isCancelled    CancelChecker
}

// New constructs a Flow rooted at cfg.Start and propagates the flow
// back-reference through the whole reachable subgraph.
func New(cfg Config) (*Flow, error) {
	if cfg.Start == nil {
		return nil, fmt.Errorf("flow: start node is required")
	}
	fl := &Flow{
		BaseNode: NewBaseNode(cfg.Name, cfg.Options),
		start:    cfg.Start,
	}
	fl.BaseNode.flow = fl
	propagateFlow(fl, cfg.Start, make(map[Node]bool))
	return fl, nil
}

// Start returns the flow's designated start node.
func (f *Flow) Start() Node { return f.start }

// SetHooks installs the observer slots an executing task manager uses to
// translate node-level events into its own protocol. Any of the three may
// be nil. Single-writer: the caller owns this Flow value for the duration
// of the run, so no locking is needed (spec §5).
func (f *Flow) SetHooks(onStatusUpdate StatusHook, onArtifact ArtifactHook, isCancelled CancelChecker) {
	f.onStatusUpdate = onStatusUpdate
	f.onArtifact = onArtifact
	f.isCancelled = isCancelled
}

// ClearHooks unsets all three observer slots. Callers must invoke this in a
// scope-exit handler after RunLifecycle returns, success or failure.
func (f *Flow) ClearHooks() {
	f.onStatusUpdate = nil
	f.onArtifact = nil
	f.isCancelled = nil
}

// Prepare is a no-op by default; a Flow's own prepare result is passed
// through unchanged to its own Finalize once orchestration completes.
func (f *Flow) Prepare(ctx context.Context, shared SharedState, params Params) (any, error) {
	return nil, nil
}

// Execute always fails: a Flow cannot be executed directly, only run via
// RunLifecycle.
func (f *Flow) Execute(ctx context.Context, prep any, shared SharedState, params Params, attempt int) (any, error) {
	return nil, fmt.Errorf("%w: flow cannot execute directly", ErrIllegalState)
}

// Finalize is a no-op by default, returning DefaultAction.
func (f *Flow) Finalize(ctx context.Context, shared SharedState, prep any, exec any, params Params) (Action, error) {
	return DefaultAction, nil
}

// RunLifecycle is the flow's entry point: prepare, walk the graph, finalize.
func (f *Flow) RunLifecycle(ctx context.Context, shared SharedState, params Params) (Action, error) {
	merged := f.DefaultParams().Merge(params)

	flowPrep, err := f.Prepare(ctx, shared, merged)
	if err != nil {
		return "", err
	}

	if err := f.orchestrate(ctx, shared, merged); err != nil {
		return "", err
	}

	action, err := f.Finalize(ctx, shared, flowPrep, nil, merged)
	if err != nil {
		return "", err
	}
	return NormalizeAction(action), nil
}

// orchestrate drives the graph starting at f.start, dispatching each node's
// lifecycle, emitting hooks, and resolving successor transitions.
func (f *Flow) orchestrate(ctx context.Context, shared SharedState, runtimeParams Params) error {
	current := f.start
	step := 0

	for current != nil {
		if f.isCancelled != nil && f.isCancelled() {
			return ErrCancelled
		}

		base := current.internals()
		finalParams := f.DefaultParams().Merge(base.DefaultParams()).Merge(runtimeParams)
		name := current.Name()

		f.emitStatus(StatusUpdate{
			Node:    name,
			State:   "working",
			Message: fmt.Sprintf("Starting node %s", name),
			Step:    step,
			Shared:  shared,
		})

		spanCtx, span := flowtelemetry.StartNodeSpan(ctx, name, step)

		var action Action
		var err error
		if itemExec, ok := current.(ItemExecutor); ok {
			action, err = f.runBatch(spanCtx, current, itemExec, shared, finalParams, base.Options(), step)
		} else {
			action, err = f.runScalar(spanCtx, current, shared, finalParams, base.Options())
		}

		flowtelemetry.EndNodeSpan(span, string(action), err)

		if err != nil {
			f.emitStatus(StatusUpdate{Node: name, State: "failed", Message: err.Error(), Step: step, Shared: shared})
			return err
		}

		f.emitStatus(StatusUpdate{Node: name, State: "completed", Step: step, Shared: shared})

		next, ok := base.Successors()[NormalizeAction(action)]
		if !ok {
			if len(base.Successors()) == 0 {
				current = nil
				break
			}
			available := make([]string, 0, len(base.Successors()))
			for a := range base.Successors() {
				available = append(available, string(a))
			}
			sort.Strings(available)
			return &IllegalTransitionError{Node: name, Action: string(action), Available: available}
		}

		current = next
		step++
	}

	f.emitStatus(StatusUpdate{Node: "Flow", State: "completed", Step: step, Shared: shared})
	return nil
}

// runScalar executes the prepare/execute/finalize lifecycle for a
// non-batch node, running Execute under the retry harness.
func (f *Flow) runScalar(ctx context.Context, node Node, shared SharedState, params Params, opts ExecOptions) (Action, error) {
	prep, err := node.Prepare(ctx, shared, params)
	if err != nil {
		return "", &NodeFailureError{Node: node.Name(), Phase: "prepare", Cause: err}
	}

	var fb fallbackFunc
	if fallback, ok := node.(Fallback); ok {
		fb = func(ctx context.Context, cause error, attempt int) (any, error) {
			return fallback.ExecuteFallback(ctx, prep, cause, shared, params, attempt)
		}
	}

	exec, err := retry(ctx, func(ctx context.Context, attempt int) (any, error) {
		return node.Execute(ctx, prep, shared, params, attempt)
	}, opts.MaxRetries, opts.WaitSeconds, fb, node.Name())
	if err != nil {
		return "", &NodeFailureError{Node: node.Name(), Phase: "execute", Cause: err}
	}

	if artifact, ok := extractResultArtifact(exec); ok {
		f.emitArtifact(artifact)
	}

	action, err := node.Finalize(ctx, shared, prep, exec, params)
	if err != nil {
		return "", &NodeFailureError{Node: node.Name(), Phase: "finalize", Cause: err}
	}
	return action, nil
}

// runBatch executes the prepare/executeItem*/finalize lifecycle for a
// batch node (one whose Prepare result is materialized into a sequence of
// items, each run through ExecuteItem under the retry harness).
func (f *Flow) runBatch(ctx context.Context, node Node, itemExec ItemExecutor, shared SharedState, params Params, opts ExecOptions, step int) (Action, error) {
	prep, err := node.Prepare(ctx, shared, params)
	if err != nil {
		return "", &NodeFailureError{Node: node.Name(), Phase: "prepare", Cause: err}
	}

	items, err := materializeItems(prep)
	if err != nil {
		return "", &NodeFailureError{Node: node.Name(), Phase: "prepare", Cause: err}
	}

	var itemFallback ItemFallback
	if fb, ok := node.(ItemFallback); ok {
		itemFallback = fb
	}

	n := len(items)
	runOne := func(ctx context.Context, idx int) (any, error) {
		item := items[idx]
		var fb fallbackFunc
		if itemFallback != nil {
			fb = func(ctx context.Context, cause error, attempt int) (any, error) {
				return itemFallback.ExecuteItemFallback(ctx, item, cause, shared, params, attempt)
			}
		}
		return retry(ctx, func(ctx context.Context, attempt int) (any, error) {
			return itemExec.ExecuteItem(ctx, item, shared, params, attempt)
		}, opts.MaxRetries, opts.WaitSeconds, fb, fmt.Sprintf("%s[%d]", node.Name(), idx))
	}

	results := make([]any, n)

	if opts.Parallel {
		g, gCtx := errgroup.WithContext(ctx)
		for idx := range items {
			f.emitStatus(StatusUpdate{Node: node.Name(), State: "working", Message: fmt.Sprintf("Processing batch item %d/%d", idx+1, n), Step: step, Shared: shared})
			idx := idx
			g.Go(func() error {
				result, err := runOne(gCtx, idx)
				if err != nil {
					return err
				}
				results[idx] = result
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return "", &NodeFailureError{Node: node.Name(), Phase: "execute", Cause: err}
		}
		for _, result := range results {
			if artifact, ok := extractResultArtifact(result); ok {
				f.emitArtifact(artifact)
			}
		}
	} else {
		for idx := range items {
			f.emitStatus(StatusUpdate{Node: node.Name(), State: "working", Message: fmt.Sprintf("Processing batch item %d/%d", idx+1, n), Step: step, Shared: shared})
			result, err := runOne(ctx, idx)
			if err != nil {
				return "", &NodeFailureError{Node: node.Name(), Phase: "execute", Cause: err}
			}
			results[idx] = result
			if artifact, ok := extractResultArtifact(result); ok {
				f.emitArtifact(artifact)
			}
		}
	}

	action, err := node.Finalize(ctx, shared, prep, results, params)
	if err != nil {
		return "", &NodeFailureError{Node: node.Name(), Phase: "finalize", Cause: err}
	}
	return action, nil
}

// materializeItems coerces a batch node's Prepare result into a []any. Any
// slice or array kind is accepted; a nil prep yields an empty batch.
func materializeItems(prep any) ([]any, error) {
	if prep == nil {
		return nil, nil
	}
	if items, ok := prep.([]any); ok {
		return items, nil
	}
	v := reflect.ValueOf(prep)
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		items := make([]any, v.Len())
		for i := range items {
			items[i] = v.Index(i).Interface()
		}
		return items, nil
	default:
		return nil, fmt.Errorf("batch node prepare result of type %T is not iterable", prep)
	}
}

func (f *Flow) emitStatus(u StatusUpdate) {
	if f.onStatusUpdate != nil {
		f.onStatusUpdate(u)
	}
}

// OnArtifact forwards artifact to the installed artifact hook, if any. Node
// code holding the Flow may call it during Execute to emit an artifact
// directly instead of returning it under ArtifactResultKey.
func (f *Flow) OnArtifact(artifact any) {
	f.emitArtifact(artifact)
}

func (f *Flow) emitArtifact(a any) {
	if f.onArtifact != nil {
		f.onArtifact(a)
	}
}
