/******************************************************************************
*
*  Copyright 2024 SAP SE
*
*  Licensed under the Apache License, Version 2.0 (the "License");
*  you may not use this file except in compliance with the License.
*  You may obtain a copy of the License at
*
*      http://www.apache.org/licenses/LICENSE-2.0
*
*  Unless required by applicable law or agreed to in writing, software
*  distributed under the License is distributed on an "AS IS" BASIS,
*  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
*  See the License for the specific language governing permissions and
*  limitations under the License.
*
******************************************************************************/

package restmachine

import (
	"fmt"
	"reflect"
)

// Scope is the lifetime of a dependency value.
type Scope string

const (
	// RequestScope values are computed at most once per request.
	RequestScope Scope = "request"
	// SessionScope values are computed at most once per Application and
	// shared by all requests. They must be safe for concurrent use.
	SessionScope Scope = "session"
)

// StateName identifies a decision point of the state machine that can be
// customized with a callback.
type StateName string

// Decision points that can be customized with a default callback.
const (
	StateServiceAvailable    StateName = "service_available"
	StateKnownMethod         StateName = "known_method"
	StateURITooLong          StateName = "uri_too_long"
	StateMethodAllowed       StateName = "method_allowed"
	StateMalformedRequest    StateName = "malformed_request"
	StateContentHeadersValid StateName = "content_headers_valid"
)

// Decision points that can be customized per route by a dependency. Of these,
// StateAuthorized and StateForbidden can also have a default callback.
const (
	StateAuthorized          StateName = "authorized"
	StateForbidden           StateName = "forbidden"
	StateResourceExists      StateName = "resource_exists"
	StateResourceFromRequest StateName = "resource_from_request"
	StateGenerateETag        StateName = "generate_etag"
	StateLastModified        StateName = "last_modified"
)

// isRouteState returns whether a dependency can be bound to this state.
func (s StateName) isRouteState() bool {
	switch s {
	case StateAuthorized, StateForbidden, StateResourceExists, StateResourceFromRequest, StateGenerateETag, StateLastModified:
		return true
	default:
		return false
	}
}

// ProviderFunc computes the value of a dependency from the values of the
// dependencies listed in its Needs.
type ProviderFunc func(Values) (any, error)

// HandlerFunc is the signature of route handlers and error handlers.
//
// A handler may return nil (204 No Content), a Result (to set status or
// headers while keeping content negotiation), a *Response (full control),
// or any other value, which is rendered by the negotiated renderer.
type HandlerFunc func(Values) (any, error)

// CallbackFunc is the signature of default callbacks.
type CallbackFunc func(Values) (bool, error)

// Dependency is a named value provider.
type Dependency struct {
	Name  string
	Scope Scope
	// State is set for dependencies that are bound to a decision point of the
	// state machine when a route handler needs them.
	State StateName
	// Needs lists the names of the values that Func receives, in resolution
	// order.
	Needs []string
	Func  ProviderFunc
}

// Validatable is implemented by values that can check their own consistency.
type Validatable interface {
	Validate() error
}

// Result can be returned by a handler to choose the status code and add
// headers. Value is rendered with the negotiated renderer.
//
// Unless Headers contains "ETag" or "Last-Modified", the response carries the
// validators that were computed before the handler ran. Handlers for PUT,
// PATCH and POST that modify the resource must therefore set the new
// validators themselves. DELETE responses never carry validators.
type Result struct {
	Status  int
	Value   any
	Headers map[string]string
}

// isTruthy decides the outcome of decision callbacks that return arbitrary
// values: nil, false, empty strings, empty collections, nil pointers and
// numeric zeros are false.
func isTruthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case string:
		return v != ""
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Func, reflect.Chan:
		return !rv.IsNil()
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() > 0
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return !rv.IsZero()
	default:
		return true
	}
}

// isNil returns whether the value is nil or a nil pointer.
func isNil(value any) bool {
	if value == nil {
		return true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
		return rv.IsNil()
	default:
		return false
	}
}

func (d *Dependency) String() string {
	if d.State != "" {
		return fmt.Sprintf("%s dependency %q", d.State, d.Name)
	}
	return fmt.Sprintf("%s dependency %q", d.Scope, d.Name)
}
