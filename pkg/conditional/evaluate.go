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

package conditional

import (
	"net/http"
	"time"
)

// Outcome is the result of Evaluate().
type Outcome int

const (
	// Proceed means that all preconditions hold (or none were given).
	Proceed Outcome = iota
	// NotModified means that a 304 response shall be generated.
	NotModified
	// PreconditionFailed means that a 412 response shall be generated.
	PreconditionFailed
)

// String implements the fmt.Stringer interface.
func (o Outcome) String() string {
	switch o {
	case NotModified:
		return "not_modified"
	case PreconditionFailed:
		return "precondition_failed"
	default:
		return "proceed"
	}
}

// Status returns the HTTP status code for this outcome, or 0 for Proceed.
func (o Outcome) Status() int {
	switch o {
	case NotModified:
		return http.StatusNotModified
	case PreconditionFailed:
		return http.StatusPreconditionFailed
	default:
		return 0
	}
}

// HeaderGetter is satisfied by http.Header and *headers.Headers.
type HeaderGetter interface {
	Get(name string) string
}

// Validators are the current validators of a resource. An empty ETag or a
// zero LastModified means that the respective validator is not available.
type Validators struct {
	ETag         string
	LastModified time.Time
}

// Evaluate decides between 304, 412 and proceeding for a request with the
// given method and headers, based on the current validators of the target
// resource (which must exist).
//
// For GET and HEAD, a matching If-None-Match (weak comparison) or an
// If-Modified-Since that is not before the last modification yields
// NotModified. For all other methods, a non-matching If-Match (strong
// comparison) or an If-Unmodified-Since that is before the last modification
// yields PreconditionFailed, as does a matching If-None-Match.
//
// If-None-Match always uses weak comparison, as RFC 9110 section 13.1.2
// requires, so a weak entity tag can yield NotModified. When If-Match is
// present, If-Unmodified-Since is not evaluated (RFC 9110 section 13.2.2).
//
// Timestamps are compared with one-second precision because HTTP dates
// cannot express anything finer.
func Evaluate(method string, hdr HeaderGetter, v Validators) Outcome {
	lastModified := v.LastModified.UTC().Truncate(time.Second)
	safe := method == http.MethodGet || method == http.MethodHead

	if !safe {
		if ifMatch := hdr.Get("If-Match"); ifMatch != "" {
			if !matchesAny(ParseETags(ifMatch), QuoteETagIfSet(v.ETag), true) {
				return PreconditionFailed
			}
		} else if ius, ok := ParseHTTPDate(hdr.Get("If-Unmodified-Since")); ok && !v.LastModified.IsZero() {
			if lastModified.After(ius) {
				return PreconditionFailed
			}
		}
	}

	if ifNoneMatch := hdr.Get("If-None-Match"); ifNoneMatch != "" {
		if matchesAny(ParseETags(ifNoneMatch), QuoteETagIfSet(v.ETag), false) {
			if safe {
				return NotModified
			}
			return PreconditionFailed
		}
		// If-Modified-Since is ignored when If-None-Match is present
		return Proceed
	}

	if safe {
		if ims, ok := ParseHTTPDate(hdr.Get("If-Modified-Since")); ok && !v.LastModified.IsZero() {
			if !lastModified.After(ims) {
				return NotModified
			}
		}
	}

	return Proceed
}

// QuoteETagIfSet is like QuoteETag, but leaves the empty string alone.
func QuoteETagIfSet(tag string) string {
	if tag == "" {
		return ""
	}
	return QuoteETag(tag)
}
