// Copyright 2026 Google LLC
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package util

import "fmt"

// ErrorKind is the closed enumeration of error kinds a caller-facing
// operation may fail with (§7). It is orthogonal to ErrorCategory: Kind
// tells the caller *what* went wrong, Category tells a transport layer how
// to report it.
type ErrorKind string

const (
	KindConnection                ErrorKind = "CONNECTION"
	KindAuthentication             ErrorKind = "AUTHENTICATION"
	KindSchemaSecurity             ErrorKind = "SCHEMA_SECURITY"
	KindSchemaNotFound             ErrorKind = "SCHEMA_NOT_FOUND"
	KindSchemaWriteFailed          ErrorKind = "SCHEMA_WRITE_FAILED"
	KindInvalidConnectionProperties ErrorKind = "INVALID_CONNECTION_PROPERTIES"
	KindUnsupportedFeature         ErrorKind = "UNSUPPORTED_FEATURE"
	KindQueryCompileError          ErrorKind = "QUERY_COMPILE_ERROR"
	KindQueryCancelled             ErrorKind = "QUERY_CANCELLED"
	KindTimeout                    ErrorKind = "TIMEOUT"
	KindTransient                  ErrorKind = "TRANSIENT"
	KindInternal                   ErrorKind = "INTERNAL"
)

// retryable is the subset of kinds a caller may retry without changing
// anything about the request (§7 "Transient vs terminal").
var retryable = map[ErrorKind]bool{
	KindTransient: true,
	KindTimeout:   true,
}

// Retryable reports whether err, or any error it wraps, carries a Kind a
// caller may retry unchanged.
func Retryable(err error) bool {
	var ke *KindError
	for err != nil {
		if k, ok := err.(*KindError); ok {
			ke = k
			break
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			break
		}
		err = u.Unwrap()
	}
	return ke != nil && retryable[ke.Kind]
}

// KindError is a ToolboxError additionally tagged with a closed ErrorKind,
// used throughout the schema store, catalog, and planner so callers can
// branch on failure semantics without string-matching messages.
type KindError struct {
	Kind  ErrorKind
	Msg   string
	Cause error
}

var _ ToolboxError = &KindError{}

func (e *KindError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Category maps a Kind onto the transport-facing category: everything the
// caller could plausibly have caused or must react to is a client error;
// everything else is a server error.
func (e *KindError) Category() ErrorCategory {
	switch e.Kind {
	case KindConnection, KindAuthentication, KindSchemaSecurity, KindSchemaNotFound,
		KindInvalidConnectionProperties, KindUnsupportedFeature, KindQueryCompileError, KindQueryCancelled:
		return CategoryAgent
	default:
		return CategoryServer
	}
}

func (e *KindError) Unwrap() error { return e.Cause }

// NewKindError constructs a KindError. cause may be nil.
func NewKindError(kind ErrorKind, msg string, cause error) *KindError {
	return &KindError{Kind: kind, Msg: msg, Cause: cause}
}
