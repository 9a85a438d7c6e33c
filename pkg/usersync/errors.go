// Copyright 2024 The Authors (see AUTHORS file)
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package usersync

import (
	"errors"
	"fmt"
)

// NotFoundError classifies a remote lookup miss. It is a normal state
// machine input, not a failure: every lookup that precedes a create-vs-update
// decision branches on it, and it is never surfaced to callers of Ensure*.
// Adapters construct it from their transport's structured status or error
// code, never by matching error message text.
type NotFoundError struct {
	// Provider is the adapter that performed the lookup, e.g. "github".
	Provider string
	// Resource is the kind of record looked up, e.g. "user" or "group".
	Resource string
	// Name is the canonical name or identifier that was looked up.
	Name string
}

// Error implements error.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s %q not found", e.Provider, e.Resource, e.Name)
}

// IsNotFound reports whether err classifies as a lookup miss anywhere in its
// chain. Any error for which this returns false is fatal for the operation
// that observed it.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
