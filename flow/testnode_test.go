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
	"errors"
)

// funcNode is a generic testing.Node driven entirely by injected closures,
// so test cases can express one-off node behavior without declaring a new
// named type each time.
type funcNode struct {
	BaseNode

	prepare  func(ctx context.Context, shared SharedState, params Params) (any, error)
	execute  func(ctx context.Context, prep any, shared SharedState, params Params, attempt int) (any, error)
	finalize func(ctx context.Context, shared SharedState, prep any, exec any, params Params) (Action, error)

	fallback func(ctx context.Context, prep any, cause error, shared SharedState, params Params, attempt int) (any, error)

	executeItem         func(ctx context.Context, item any, shared SharedState, params Params, attempt int) (any, error)
	executeItemFallback func(ctx context.Context, item any, cause error, shared SharedState, params Params, attempt int) (any, error)
}

func newFuncNode(name string, opts ExecOptions) *funcNode {
	return &funcNode{BaseNode: NewBaseNode(name, opts)}
}

func (n *funcNode) Prepare(ctx context.Context, shared SharedState, params Params) (any, error) {
	if n.prepare != nil {
		return n.prepare(ctx, shared, params)
	}
	return nil, nil
}

func (n *funcNode) Execute(ctx context.Context, prep any, shared SharedState, params Params, attempt int) (any, error) {
	if n.execute != nil {
		return n.execute(ctx, prep, shared, params, attempt)
	}
	return nil, nil
}

func (n *funcNode) Finalize(ctx context.Context, shared SharedState, prep any, exec any, params Params) (Action, error) {
	if n.finalize != nil {
		return n.finalize(ctx, shared, prep, exec, params)
	}
	return DefaultAction, nil
}

// funcNodeWithFallback is a funcNode that also implements Fallback; Go has
// no way to conditionally implement an interface on one struct, so the
// "optional fallback" test cases use this variant instead.
type funcNodeWithFallback struct {
	*funcNode
}

func (n funcNodeWithFallback) ExecuteFallback(ctx context.Context, prep any, cause error, shared SharedState, params Params, attempt int) (any, error) {
	return n.fallback(ctx, prep, cause, shared, params, attempt)
}

// funcBatchNode is the batch-node analogue of funcNode.
type funcBatchNode struct {
	*funcNode
}

func (n funcBatchNode) ExecuteItem(ctx context.Context, item any, shared SharedState, params Params, attempt int) (any, error) {
	return n.executeItem(ctx, item, shared, params, attempt)
}

// funcBatchNodeWithFallback adds ExecuteItemFallback on top of funcBatchNode.
type funcBatchNodeWithFallback struct {
	funcBatchNode
}

func (n funcBatchNodeWithFallback) ExecuteItemFallback(ctx context.Context, item any, cause error, shared SharedState, params Params, attempt int) (any, error) {
	return n.executeItemFallback(ctx, item, cause, shared, params, attempt)
}

var errBoom = errors.New("boom")

func collectStatuses(statuses *[]StatusUpdate) StatusHook {
	return func(u StatusUpdate) {
		*statuses = append(*statuses, u)
	}
}

func collectArtifacts(artifacts *[]any) ArtifactHook {
	return func(a any) {
		*artifacts = append(*artifacts, a)
	}
}
