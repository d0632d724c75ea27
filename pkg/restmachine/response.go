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
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sapcc/restmachine/pkg/conditional"
	"github.com/sapcc/restmachine/pkg/headers"
	"github.com/sapcc/restmachine/pkg/render"
)

// Response is the output of Application.Execute(). Handlers may also return
// a *Response to take full control of status, headers and body.
type Response struct {
	Status  int
	Headers *headers.Headers
	// Body holds the response body, unless Stream is set.
	Body   []byte
	Stream io.Reader
	// The following fields are turned into the respective headers when the
	// response is finalized.
	ContentType  string
	ETag         string
	LastModified time.Time
}

// ResponseOptions contains the optional arguments of NewResponse().
type ResponseOptions struct {
	Headers      *headers.Headers
	ContentType  string
	ETag         string
	LastModified time.Time
	// Request and AvailableContentTypes are used to compute the Vary header.
	Request               *Request
	AvailableContentTypes []string
	// If PrecalculatedHeaders is true, Vary is not computed.
	PrecalculatedHeaders bool
}

// NewResponse builds a response. The body may be nil, a string, a []byte, an
// io.Reader (which is streamed to the client), or any other value, which is
// encoded as JSON.
//
// Content-Length is computed for all bodies except streams, and omitted for
// 204 and 304 responses. Vary is computed from the request and the available
// content types, unless the headers already contain Vary or
// opts.PrecalculatedHeaders is set.
func NewResponse(status int, body any, opts ResponseOptions) (*Response, error) {
	r := &Response{
		Status:       status,
		Headers:      opts.Headers.Clone(),
		ContentType:  opts.ContentType,
		ETag:         opts.ETag,
		LastModified: opts.LastModified,
	}
	switch b := body.(type) {
	case nil:
	case string:
		r.Body = []byte(b)
	case []byte:
		r.Body = b
	case io.Reader:
		r.Stream = b
	default:
		buf, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		r.Body = buf
		if r.ContentType == "" {
			r.ContentType = render.ContentTypeJSON
		}
	}
	r.finalize(opts.Request, opts.AvailableContentTypes, opts.PrecalculatedHeaders)
	return r, nil
}

// ReadBody returns the full response body, draining Stream if necessary.
func (r *Response) ReadBody() ([]byte, error) {
	if r.Stream == nil {
		return r.Body, nil
	}
	buf, err := io.ReadAll(r.Stream)
	if err != nil {
		return nil, err
	}
	r.Body = buf
	r.Stream = nil
	return buf, nil
}

// finalize computes the headers that are derived from the other fields.
func (r *Response) finalize(req *Request, availableTypes []string, precalculated bool) {
	if r.Headers == nil {
		r.Headers = headers.New()
	}
	if r.ContentType != "" && !r.Headers.Has("Content-Type") {
		r.Headers.Set("Content-Type", r.ContentType)
	}

	switch {
	case r.Status == http.StatusNoContent || r.Status == http.StatusNotModified:
		r.Headers.Del("Content-Length")
	case r.Stream != nil:
		// length is unknown
	default:
		r.Headers.Set("Content-Length", strconv.Itoa(len(r.Body)))
	}

	if r.ETag != "" {
		r.Headers.Set("ETag", conditional.QuoteETag(r.ETag))
	}
	if !r.LastModified.IsZero() {
		r.Headers.Set("Last-Modified", conditional.FormatHTTPDate(r.LastModified))
	}

	if !precalculated && !r.Headers.Has("Vary") {
		if vary := varyValue(req, availableTypes); vary != "" {
			r.Headers.Set("Vary", vary)
		}
	}
}

// varyValue computes the Vary header for a response: Authorization if the
// request was authenticated, Accept if more than one representation was
// available.
func varyValue(req *Request, availableTypes []string) string {
	var fields []string
	if req != nil && req.Headers.Has("Authorization") {
		fields = append(fields, "Authorization")
	}
	if len(availableTypes) > 1 {
		fields = append(fields, "Accept")
	}
	return strings.Join(fields, ", ")
}
