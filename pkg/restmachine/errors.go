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
	"errors"
	"fmt"
	"net/http"

	"github.com/sapcc/go-bits/errext"
)

// StatusError is an error that shall be reported to the client with a
// specific HTTP status. Handlers and dependencies return it to end request
// processing with a status of their choosing.
type StatusError struct {
	Status int
	Inner  error //optional
}

// ErrorWithStatus is a convenience function for constructing type StatusError.
func ErrorWithStatus(status int, msg string, args ...any) *StatusError {
	var err error
	if msg != "" {
		if len(args) > 0 {
			err = fmt.Errorf(msg, args...)
		} else {
			err = errors.New(msg)
		}
	}
	return &StatusError{Status: status, Inner: err}
}

// Error implements the builtin/error interface.
func (e *StatusError) Error() string {
	text := http.StatusText(e.Status)
	if e.Inner != nil {
		text += ": " + e.Inner.Error()
	}
	return text
}

// Unwrap implements the interface implicitly used by errors.Is and errors.As.
func (e *StatusError) Unwrap() error {
	return e.Inner
}

// ResolutionError is returned when a dependency name cannot be resolved. This
// always indicates a programming error, so it is reported as 500.
type ResolutionError struct {
	Name   string
	Reason string
}

// Error implements the builtin/error interface.
func (e *ResolutionError) Error() string {
	return fmt.Sprintf("cannot resolve dependency %q: %s", e.Name, e.Reason)
}

// UnsupportedMediaTypeError is returned by the builtin body parsers when the
// request body does not have the content type that the parser expects.
type UnsupportedMediaTypeError struct {
	ContentType string
	Expected    string
}

// Error implements the builtin/error interface.
func (e *UnsupportedMediaTypeError) Error() string {
	if e.ContentType == "" {
		return fmt.Sprintf("expected request body of type %s, but no Content-Type was given", e.Expected)
	}
	return fmt.Sprintf("expected request body of type %s, got %s", e.Expected, e.ContentType)
}

// BodyParsingError wraps errors from body parsers.
type BodyParsingError struct {
	ContentType string
	Inner       error
}

// Error implements the builtin/error interface.
func (e *BodyParsingError) Error() string {
	return fmt.Sprintf("cannot parse request body of type %s: %s", e.ContentType, e.Inner.Error())
}

// Unwrap implements the interface implicitly used by errors.Is and errors.As.
func (e *BodyParsingError) Unwrap() error {
	return e.Inner
}

// ValidationError is returned when the value returned by a provider
// registered with Validates() fails validation.
type ValidationError struct {
	Provider string
	Inner    error
}

// Error implements the builtin/error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation of %s failed: %s", e.Provider, e.Inner.Error())
}

// Unwrap implements the interface implicitly used by errors.Is and errors.As.
func (e *ValidationError) Unwrap() error {
	return e.Inner
}

// RegistrationError is returned by Application.Validate() and
// Application.Startup() when the registered routes and dependencies do not
// form a consistent graph.
type RegistrationError struct {
	Errors errext.ErrorSet
}

// Error implements the builtin/error interface.
func (e *RegistrationError) Error() string {
	return "invalid application setup: " + e.Errors.Join("; ")
}

// HTTPStatus returns the status code that the given error is reported with.
// Errors that do not carry a status are reported as 500.
func HTTPStatus(err error) int {
	if e, ok := errext.As[*StatusError](err); ok {
		return e.Status
	}
	if errext.IsOfType[*UnsupportedMediaTypeError](err) {
		return http.StatusUnsupportedMediaType
	}
	if errext.IsOfType[*BodyParsingError](err) {
		return http.StatusBadRequest
	}
	if errext.IsOfType[*ValidationError](err) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

// clientError reports whether the error message may be shown to the client.
func clientError(err error) bool {
	status := HTTPStatus(err)
	return status >= 400 && status < 500
}
