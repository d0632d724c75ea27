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
	"fmt"
	"net/http"
	"runtime/debug"
	"slices"

	"github.com/sapcc/go-bits/errext"
	"github.com/sapcc/go-bits/logg"

	"github.com/sapcc/restmachine/pkg/headers"
	"github.com/sapcc/restmachine/pkg/negotiation"
	"github.com/sapcc/restmachine/pkg/render"
)

type errorHandler struct {
	codes       []int  // empty = all error statuses
	contentType string // empty = value is rendered by the negotiated renderer
	needs       []string
	fn          HandlerFunc
}

func (h *errorHandler) handles(status int) bool {
	return len(h.codes) == 0 || slices.Contains(h.codes, status)
}

// HandlesError registers a handler that computes the body of error responses
// with the given status codes (or all error responses, if codes is empty).
// Its return value is rendered like a route handler's return value. The
// triggering error is available as the "exception" dependency.
func (a *Application) HandlesError(codes []int, needs []string, fn HandlerFunc) {
	a.checkNotValidated("error handler")
	a.errorHandlers = append(a.errorHandlers, &errorHandler{codes: codes, needs: needs, fn: fn})
}

// ErrorProvides registers a handler that computes the body of error
// responses with the given status codes in the given content type. It takes
// part in content negotiation for error responses. The handler shall return
// a string or []byte; other values are encoded as JSON.
func (a *Application) ErrorProvides(contentType string, codes []int, needs []string, fn HandlerFunc) {
	a.checkNotValidated("error handler for " + contentType)
	a.errorHandlers = append(a.errorHandlers, &errorHandler{codes: codes, contentType: contentType, needs: needs, fn: fn})
}

// errorResponse builds the response for an error status.
func (m *machine) errorResponse(status int, err error) *Response {
	if err == nil {
		err = &StatusError{Status: status}
	}
	m.res.exception = err

	// error handlers with a content type compete with the global renderers
	var (
		overrides []render.Renderer
		providers = make(map[string]*errorHandler)
		generic   *errorHandler
	)
	for _, h := range m.app.errorHandlers {
		if !h.handles(status) {
			continue
		}
		if h.contentType == "" {
			if generic == nil {
				generic = h
			}
			continue
		}
		ct := negotiation.BaseType(h.contentType)
		if _, exists := providers[ct]; !exists {
			providers[ct] = h
			overrides = append(overrides, render.Renderer{ContentType: h.contentType})
		}
	}
	renderer, ok := negotiation.Select(m.req.HeaderList("Accept"), overrides, m.app.renderers)
	if !ok {
		renderer = render.JSON()
	}

	resp := &Response{Status: status, Headers: headers.New(), ContentType: renderer.ContentType}
	var body []byte
	if h := providers[negotiation.BaseType(renderer.ContentType)]; h != nil {
		body, err = m.runErrorHandler(h, func(value any) ([]byte, error) {
			switch v := value.(type) {
			case string:
				return []byte(v), nil
			case []byte:
				return v, nil
			default:
				return json.Marshal(v)
			}
		})
	} else if generic != nil {
		body, err = m.runErrorHandler(generic, renderer.Render)
	} else {
		body, err = renderer.Render(m.defaultErrorBody(status))
	}
	if err != nil {
		logg.Error("cannot render error response for %s %s with status %d: %s", m.req.Method, m.req.Path, status, err.Error())
		body, _ = json.Marshal(map[string]any{"error": http.StatusText(status)})
		resp.ContentType = render.ContentTypeJSON
	}

	resp.Body = body
	resp.finalize(m.req, nil, false)
	return resp
}

// runErrorHandler calls an error handler and renders its result. Panics are
// reported as errors.
func (m *machine) runErrorHandler(h *errorHandler, renderFunc render.Func) (body []byte, err error) {
	defer func() {
		if r := recover(); r != nil {
			logg.Error("panic in error handler: %v\n%s", r, debug.Stack())
			body, err = nil, fmt.Errorf("panic in error handler: %v", r)
		}
	}()

	vals, err := m.res.values(h.needs)
	if err != nil {
		return nil, err
	}
	value, err := h.fn(vals)
	if err != nil {
		return nil, err
	}
	return renderFunc(value)
}

// defaultErrorBody is used when no error handler applies.
func (m *machine) defaultErrorBody(status int) map[string]any {
	body := map[string]any{"error": http.StatusText(status)}
	if status == http.StatusNotAcceptable {
		body["available_types"] = m.availableTypes
	}
	err := m.res.exception
	if e, ok := errext.As[*StatusError](err); ok && e.Inner == nil {
		return body
	}
	if clientError(err) {
		body["details"] = err.Error()
	}
	return body
}
