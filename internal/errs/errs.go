/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package errs defines Tachyon's closed set of error kinds (spec.md
// §7) as a single wrapped error type, the way the teacher attaches a
// small typed-error vocabulary to its cloud provider boundary
// (pkg/cloudprovider's NodeClaimNotFoundError / InsufficientCapacityError)
// rather than relying on sentinel values or bare strings.
package errs

import (
	"errors"
	"fmt"
)

// Kind is one of the nine error kinds spec.md §7 names. Planning and
// constraint failures are NOT represented here: they shrink the
// candidate set silently, per spec.md §7's explicit propagation rule.
type Kind string

const (
	BadRequest         Kind = "bad_request"
	NotFound           Kind = "not_found"
	ConflictGeneration Kind = "conflict_generation"
	ConflictUniqueness Kind = "conflict_uniqueness"
	OutOfCapacity      Kind = "out_of_capacity"
	InvalidState       Kind = "invalid_state"
	DeadlineExceeded   Kind = "deadline_exceeded"
	Transient          Kind = "transient"
	Fatal              Kind = "fatal"
)

// Error is the concrete error value returned across the C1-C9 API
// boundary. Callers should use errors.As to recover the Kind rather
// than string-matching Error().
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Wrapped)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Wrapped
}

// New constructs an *Error of the given kind.
func New(kind Kind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap constructs an *Error of the given kind around an existing error.
func Wrap(kind Kind, err error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Wrapped: err}
}

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// Retryable reports whether the caller's retry policy (which lives at
// the edge, per spec.md §9 "Optimistic concurrency retries") should
// consider retrying this error.
func Retryable(err error) bool {
	var e *Error
	if !errors.As(err, &e) {
		return false
	}
	return e.Kind == ConflictGeneration || e.Kind == Transient
}
