// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package cloud

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Retry defaults used when a caller is built with zero values.
const (
	DefaultMaxAttempts = 3
	DefaultBaseDelay   = 2 * time.Second
)

// RetryExhaustedError is returned once every attempt has failed. It unwraps
// to the error of the last attempt.
type RetryExhaustedError struct {
	Operation string
	Attempts  int
	Last      error
}

func (e *RetryExhaustedError) Error() string {
	return fmt.Sprintf("%s failed after %d attempts: %v", e.Operation, e.Attempts, e.Last)
}

func (e *RetryExhaustedError) Unwrap() error {
	return e.Last
}

// RetryingCaller runs an operation up to MaxAttempts times, waiting
// BaseDelay multiplied by the attempt number after each failure.
type RetryingCaller struct {
	Operation    string
	MaxAttempts  int
	BaseDelay    time.Duration
	retryCounter metric.Int64Counter
}

// NewRetryingCaller builds a caller for the named operation. Non-positive
// arguments fall back to DefaultMaxAttempts and DefaultBaseDelay.
func NewRetryingCaller(operation string, maxAttempts int, baseDelay time.Duration) *RetryingCaller {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	counter, err := otel.Meter(meterName).Int64Counter(fmt.Sprintf("%s.counter.retry", operation))
	if err != nil {
		slog.Warn("failed to create retry counter", "operation", operation, "error", err)
	}
	return &RetryingCaller{
		Operation:    operation,
		MaxAttempts:  maxAttempts,
		BaseDelay:    baseDelay,
		retryCounter: counter,
	}
}

// Delay returns the wait after the given failed attempt (1-based).
func (c *RetryingCaller) Delay(attempt int) time.Duration {
	return c.BaseDelay * time.Duration(attempt)
}

// Retry calls op until it succeeds or the caller's attempts are used up. A
// cancelled context stops the backoff and returns the context error.
func Retry[T any](ctx context.Context, c *RetryingCaller, op func(context.Context) (T, error)) (T, error) {
	var zero T
	var last error
	for attempt := 1; attempt <= c.MaxAttempts; attempt++ {
		out, err := op(ctx)
		if err == nil {
			if attempt > 1 {
				slog.InfoContext(ctx, "call succeeded after retry", "operation", c.Operation, "attempt", attempt)
			}
			return out, nil
		}
		last = err
		slog.WarnContext(ctx, "call attempt failed",
			"operation", c.Operation,
			"attempt", attempt,
			"max_attempts", c.MaxAttempts,
			"error", err)
		if attempt == c.MaxAttempts {
			break
		}
		if c.retryCounter != nil {
			c.retryCounter.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", c.Operation)))
		}
		timer := time.NewTimer(c.Delay(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		case <-timer.C:
		}
	}
	slog.ErrorContext(ctx, "call failed on every attempt", "operation", c.Operation, "attempts", c.MaxAttempts, "error", last)
	return zero, &RetryExhaustedError{Operation: c.Operation, Attempts: c.MaxAttempts, Last: last}
}
