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

// Package flowtelemetry centralizes the tracer and log vocabulary used by
// the flow package (node spans and retry-attempt logs).
package flowtelemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
	"go.opentelemetry.io/otel/trace"
)

const systemName = "pocketmesh.flow"

var (
	nodeNameKey   = attribute.Key("pocketmesh.node.name")
	nodeActionKey = attribute.Key("pocketmesh.node.action")
	nodeStepKey   = attribute.Key("pocketmesh.node.step")
)

var tracer trace.Tracer = otel.GetTracerProvider().Tracer(systemName)

var logger = global.GetLoggerProvider().Logger(systemName)

// StartNodeSpan starts a span covering one node's full prepare/execute/finalize
// lifecycle within a single orchestration step.
func StartNodeSpan(ctx context.Context, nodeName string, step int) (context.Context, trace.Span) {
	return tracer.Start(ctx, fmt.Sprintf("pocketmesh.node %s", nodeName), trace.WithAttributes(
		nodeNameKey.String(nodeName),
		nodeStepKey.Int(step),
	))
}

// EndNodeSpan records the resulting action (or the failure) and ends span.
func EndNodeSpan(span trace.Span, action string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(nodeActionKey.String(action))
	}
	span.End()
}

// LogRetryAttempt emits a warn-level structured log record for a failed
// node attempt, mirroring the level the retry harness is required to log at.
func LogRetryAttempt(ctx context.Context, label string, attempt, maxRetries int, cause error) {
	var rec log.Record
	rec.SetTimestamp(time.Now())
	rec.SetSeverity(log.SeverityWarn)
	rec.SetBody(log.StringValue(fmt.Sprintf("pocketmesh.retry: attempt failed for %s", label)))
	rec.AddAttributes(
		log.String("label", label),
		log.Int("attempt", attempt),
		log.Int("max_retries", maxRetries),
		log.String("error", cause.Error()),
	)
	logger.Emit(ctx, rec)
}
