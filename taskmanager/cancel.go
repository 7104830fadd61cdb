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

import "sync"

// cancelSet is the process-local set of task ids an in-flight execute call
// must check cooperatively between orchestration steps.
type cancelSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newCancelSet() *cancelSet {
	return &cancelSet{ids: make(map[string]struct{})}
}

func (c *cancelSet) mark(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ids[taskID] = struct{}{}
}

func (c *cancelSet) unmark(taskID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.ids, taskID)
}

func (c *cancelSet) isCancelling(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.ids[taskID]
	return ok
}

// checker returns a flow.CancelChecker closure bound to taskID, suitable for
// Flow.SetHooks's third argument.
func (c *cancelSet) checker(taskID string) func() bool {
	return func() bool { return c.isCancelling(taskID) }
}
