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

import "fmt"

// SkillNotFoundError is returned when neither the inbound message's metadata
// nor the configured default skill resolves to a registered flow.
type SkillNotFoundError struct {
	SkillID string
}

func (e *SkillNotFoundError) Error() string {
	return fmt.Sprintf("taskmanager: no flow registered for skill %q", e.SkillID)
}
