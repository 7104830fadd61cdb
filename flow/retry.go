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
	"time"

	"github.com/pocketmesh/pocketmesh/internal/flowtelemetry"
)

// attemptFunc is a single retryable unit of work, given its zero-based
// attempt number.
type attemptFunc func(ctx context.Context, attempt int) (any, error)

// fallbackFunc replaces the final error once retries are exhausted.
type fallbackFunc func(ctx context.Context, cause error, attempt int) (any, error)

// retry runs fn for up to maxRetries attempts (the total attempt count, not
// retries in addition to one), waiting waitSeconds between attempts. If all
// attempts fail and fallback is non-nil, its result is returned instead of
// the last error. label is logged at warn level alongside each failed
// attempt.
func retry(ctx context.Context, fn attemptFunc, maxRetries int, waitSeconds float64, fallback fallbackFunc, label string) (any, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := fn(ctx, attempt)
		if err == nil {
			return result, nil
		}
		lastErr = err
		flowtelemetry.LogRetryAttempt(ctx, label, attempt, maxRetries, err)

		if attempt < maxRetries-1 && waitSeconds > 0 {
			if err := sleepCancellable(ctx, waitSeconds); err != nil {
				return nil, err
			}
		}
	}

	if fallback != nil {
		return fallback(ctx, lastErr, maxRetries-1)
	}
	return nil, lastErr
}

// sleepCancellable sleeps for seconds, returning early with ctx.Err() if the
// context is cancelled first.
func sleepCancellable(ctx context.Context, seconds float64) error {
	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
