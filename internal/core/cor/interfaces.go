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

// Package cor (Chain of Responsibility) holds the building blocks used to run
// a workflow as an ordered sequence of commands sharing one Context. The
// optimization pipeline runs its phases as commands of a single chain, and the
// Pub/Sub listeners hand each received message to a command.
//
// Logic Flow:
//  1. A caller creates a Context, sets its Go context and stores the inputs
//     the first command needs (for example the run under its own key).
//  2. The caller builds a Chain and adds Commands in execution order.
//  3. Chain.Execute opens a span for the chain and one child span per command.
//  4. Before each command the chain stops if the Context was halted, or if it
//     holds an error and ContinueOnFailure is off.
//  5. A command whose IsExecutable check fails is recorded as an error under
//     its name instead of being run.
//  6. Commands report failures with AddError and end a run early without
//     failure with Halt.
//  7. The caller inspects HasErrors and FirstError once Execute returns.
//
// Interfaces:
//   - Context: shared state, errors and the Go context of one execution.
//   - Command: a single named step with its own tracer and counters.
//   - Chain: a Command that runs other Commands.
package cor

import (
	"context"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// CtxIn is the default key under which a command finds its primary input.
const CtxIn = "__IN__"

// Context is the shared state passed through a chain. Commands read their
// inputs from it, record their errors in it, and may halt the chain early.
type Context interface {
	// SetContext sets the Go context used for cancellation and trace propagation.
	SetContext(context context.Context)

	// GetContext returns the Go context of the command currently executing.
	GetContext() context.Context

	// Add stores a value under key and returns the Context for chaining.
	Add(key string, value interface{}) Context

	// Get returns the value stored under key, or nil.
	Get(key string) interface{}

	// Remove deletes the value stored under key.
	Remove(key string)

	// AddError records an error produced by the named command.
	AddError(key string, err error)

	// GetErrors returns every recorded error keyed by command name.
	GetErrors() map[string]error

	// FirstError returns the earliest recorded error, or nil.
	FirstError() error

	// HasErrors reports whether any command recorded an error.
	HasErrors() bool

	// Halt asks the chain to stop after the current command without treating
	// the stop as a failure.
	Halt()

	// IsHalted reports whether Halt was called.
	IsHalted() bool
}

// Executable is anything with execution logic driven by a Context.
type Executable interface {
	Execute(context Context)
}

// Command is a single unit of work in a chain.
type Command interface {
	Executable

	// GetName returns the command name used for spans and metrics.
	GetName() string

	// GetInputParam returns the key the command reads its input from.
	GetInputParam() string

	// IsExecutable is the precondition check run before Execute.
	IsExecutable(context Context) bool

	GetTracer() trace.Tracer
	GetMeter() metric.Meter
	GetSuccessCounter() metric.Int64Counter
	GetErrorCounter() metric.Int64Counter
}

// Chain is an ordered sequence of commands. A Chain is itself a Command so
// chains can be nested.
type Chain interface {
	Command

	// ContinueOnFailure controls whether later commands still run after one
	// of them records an error.
	ContinueOnFailure(bool) Chain

	// AddCommand appends a command to the execution sequence.
	AddCommand(command Command) Chain
}
