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
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// Scenario 1: echo success.
func TestFlow_EchoSuccess(t *testing.T) {
	echo := newFuncNode("EchoNode", ExecOptions{MaxRetries: 1})
	echo.finalize = func(ctx context.Context, shared SharedState, prep any, exec any, params Params) (Action, error) {
		shared["lastEcho"] = "Echo: hello"
		return DefaultAction, nil
	}

	fl, err := New(Config{Name: "echo", Start: echo})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var statuses []StatusUpdate
	fl.SetHooks(collectStatuses(&statuses), nil, nil)
	defer fl.ClearHooks()

	shared := SharedState{}
	action, err := fl.RunLifecycle(context.Background(), shared, nil)
	if err != nil {
		t.Fatalf("RunLifecycle() error = %v", err)
	}
	if action != DefaultAction {
		t.Errorf("RunLifecycle() action = %v, want %v", action, DefaultAction)
	}
	if shared["lastEcho"] != "Echo: hello" {
		t.Errorf("shared[lastEcho] = %v, want %q", shared["lastEcho"], "Echo: hello")
	}

	wantStates := []string{"working", "completed", "completed"}
	var gotStates []string
	for _, s := range statuses {
		gotStates = append(gotStates, s.State)
	}
	if diff := cmp.Diff(wantStates, gotStates); diff != "" {
		t.Errorf("status sequence mismatch (-want +got):\n%s", diff)
	}
	if statuses[len(statuses)-1].Node != "Flow" {
		t.Errorf("final status node = %q, want %q", statuses[len(statuses)-1].Node, "Flow")
	}
}

// Scenario 2: retry then succeed.
func TestFlow_RetryThenSucceed(t *testing.T) {
	attempts := 0
	node := newFuncNode("FlakyNode", ExecOptions{MaxRetries: 2})
	node.execute = func(ctx context.Context, prep any, shared SharedState, params Params, attempt int) (any, error) {
		attempts++
		if attempt == 0 {
			return nil, errBoom
		}
		return "ok", nil
	}
	node.finalize = func(ctx context.Context, shared SharedState, prep any, exec any, params Params) (Action, error) {
		shared["flaky"] = exec
		return DefaultAction, nil
	}

	fl, err := New(Config{Name: "retry", Start: node})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	shared := SharedState{}
	if _, err := fl.RunLifecycle(context.Background(), shared, nil); err != nil {
		t.Fatalf("RunLifecycle() error = %v", err)
	}
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2", attempts)
	}
	if shared["flaky"] != "ok" {
		t.Errorf("shared[flaky] = %v, want ok", shared["flaky"])
	}
}

// Scenario 3: fallback.
func TestFlow_Fallback(t *testing.T) {
	base := newFuncNode("FlakyNode", ExecOptions{MaxRetries: 2})
	base.execute = func(ctx context.Context, prep any, shared SharedState, params Params, attempt int) (any, error) {
		return nil, errBoom
	}
	base.fallback = func(ctx context.Context, prep any, cause error, shared SharedState, params Params, attempt int) (any, error) {
		return "fallback", nil
	}
	base.finalize = func(ctx context.Context, shared SharedState, prep any, exec any, params Params) (Action, error) {
		shared["flaky"] = exec
		return DefaultAction, nil
	}
	node := funcNodeWithFallback{base}

	fl, err := New(Config{Name: "fallback", Start: node})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var statuses []StatusUpdate
	fl.SetHooks(collectStatuses(&statuses), nil, nil)
	defer fl.ClearHooks()

	shared := SharedState{}
	if _, err := fl.RunLifecycle(context.Background(), shared, nil); err != nil {
		t.Fatalf("RunLifecycle() error = %v", err)
	}
	if shared["flaky"] != "fallback" {
		t.Errorf("shared[flaky] = %v, want fallback", shared["flaky"])
	}
	for _, s := range statuses {
		if s.State == "failed" {
			t.Errorf("unexpected failed status: %+v", s)
		}
	}
}

// Scenario 4: missing successor.
func TestFlow_MissingSuccessor(t *testing.T) {
	a := newFuncNode("A", ExecOptions{MaxRetries: 1})
	b := newFuncNode("B", ExecOptions{MaxRetries: 1})
	a.finalize = func(ctx context.Context, shared SharedState, prep any, exec any, params Params) (Action, error) {
		return "missing", nil
	}
	if _, err := a.ConnectTo(b); err != nil {
		t.Fatalf("ConnectTo() error = %v", err)
	}

	fl, err := New(Config{Name: "missing", Start: a})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = fl.RunLifecycle(context.Background(), SharedState{}, nil)
	if err == nil {
		t.Fatal("RunLifecycle() error = nil, want IllegalTransitionError")
	}
	if !strings.Contains(err.Error(), `Action 'missing' not found`) {
		t.Errorf("error = %q, want substring %q", err.Error(), `Action 'missing' not found`)
	}
	var transErr *IllegalTransitionError
	if !errors.As(err, &transErr) {
		t.Fatalf("error is not *IllegalTransitionError: %v", err)
	}
	if diff := cmp.Diff([]string{"default"}, transErr.Available); diff != "" {
		t.Errorf("Available mismatch (-want +got):\n%s", diff)
	}
}

// Scenario 5: parallel batch with per-item fallback.
func TestFlow_ParallelBatchWithItemFallback(t *testing.T) {
	base := newFuncNode("BatchNode", ExecOptions{MaxRetries: 1, Parallel: true})
	base.prepare = func(ctx context.Context, shared SharedState, params Params) (any, error) {
		return []any{1, 2}, nil
	}
	base.executeItem = func(ctx context.Context, item any, shared SharedState, params Params, attempt int) (any, error) {
		return nil, errBoom
	}
	base.executeItemFallback = func(ctx context.Context, item any, cause error, shared SharedState, params Params, attempt int) (any, error) {
		return map[string]any{"value": item.(int) * 10}, nil
	}
	base.finalize = func(ctx context.Context, shared SharedState, prep any, exec any, params Params) (Action, error) {
		shared["batchResults"] = exec
		return DefaultAction, nil
	}
	node := funcBatchNodeWithFallback{funcBatchNode{base}}

	fl, err := New(Config{Name: "batch", Start: node})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	var statuses []StatusUpdate
	fl.SetHooks(collectStatuses(&statuses), nil, nil)
	defer fl.ClearHooks()

	shared := SharedState{}
	if _, err := fl.RunLifecycle(context.Background(), shared, nil); err != nil {
		t.Fatalf("RunLifecycle() error = %v", err)
	}

	results, ok := shared["batchResults"].([]any)
	if !ok {
		t.Fatalf("shared[batchResults] type = %T, want []any", shared["batchResults"])
	}
	want := []map[string]any{{"value": 10}, {"value": 20}}
	var got []map[string]any
	for _, r := range results {
		got = append(got, r.(map[string]any))
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("batch results mismatch (-want +got):\n%s", diff)
	}

	found := false
	for _, s := range statuses {
		if strings.Contains(s.Message, "Processing batch item") {
			found = true
			break
		}
	}
	if !found {
		t.Error("no status update matched \"Processing batch item ...\"")
	}
}

func TestFlow_SequentialBatchStopsAtFirstError(t *testing.T) {
	base := newFuncNode("BatchNode", ExecOptions{MaxRetries: 1, Parallel: false})
	var seen []int
	base.prepare = func(ctx context.Context, shared SharedState, params Params) (any, error) {
		return []any{1, 2, 3}, nil
	}
	base.executeItem = func(ctx context.Context, item any, shared SharedState, params Params, attempt int) (any, error) {
		seen = append(seen, item.(int))
		if item.(int) == 2 {
			return nil, errBoom
		}
		return item, nil
	}
	node := funcBatchNode{base}

	fl, err := New(Config{Name: "batch-seq", Start: node})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	_, err = fl.RunLifecycle(context.Background(), SharedState{}, nil)
	if err == nil {
		t.Fatal("RunLifecycle() error = nil, want NodeFailureError")
	}
	if diff := cmp.Diff([]int{1, 2}, seen); diff != "" {
		t.Errorf("items processed mismatch (-want +got):\n%s", diff)
	}
}

func TestFlow_DuplicateSuccessorAction(t *testing.T) {
	a := newFuncNode("A", ExecOptions{MaxRetries: 1})
	b := newFuncNode("B", ExecOptions{MaxRetries: 1})
	c := newFuncNode("C", ExecOptions{MaxRetries: 1})

	if _, err := a.ConnectTo(b); err != nil {
		t.Fatalf("ConnectTo() error = %v", err)
	}
	if _, err := a.ConnectTo(c); err == nil {
		t.Fatal("second ConnectTo() error = nil, want DuplicateActionError")
	}
}

func TestFlow_Cancellation(t *testing.T) {
	a := newFuncNode("A", ExecOptions{MaxRetries: 1})
	b := newFuncNode("B", ExecOptions{MaxRetries: 1})
	if _, err := a.ConnectTo(b); err != nil {
		t.Fatalf("ConnectTo() error = %v", err)
	}

	fl, err := New(Config{Name: "cancel", Start: a})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	cancelled := false
	fl.SetHooks(nil, nil, func() bool { return cancelled })
	defer fl.ClearHooks()

	a.finalize = func(ctx context.Context, shared SharedState, prep any, exec any, params Params) (Action, error) {
		cancelled = true
		return DefaultAction, nil
	}

	_, err = fl.RunLifecycle(context.Background(), SharedState{}, nil)
	if err != ErrCancelled {
		t.Errorf("RunLifecycle() error = %v, want %v", err, ErrCancelled)
	}
}

func TestExportDOT(t *testing.T) {
	a := newFuncNode("A", ExecOptions{MaxRetries: 1})
	b := newFuncNode("B", ExecOptions{MaxRetries: 1})
	if _, err := a.ConnectTo(b); err != nil {
		t.Fatalf("ConnectTo() error = %v", err)
	}
	fl, err := New(Config{Name: "dot", Start: a})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	dot, err := ExportDOT(fl)
	if err != nil {
		t.Fatalf("ExportDOT() error = %v", err)
	}
	for _, want := range []string{`"A"`, `"B"`} {
		if !strings.Contains(dot, want) {
			t.Errorf("ExportDOT() output missing %q:\n%s", want, dot)
		}
	}
}
