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
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/sapcc/go-bits/logg"

	"github.com/sapcc/restmachine/pkg/conditional"
	"github.com/sapcc/restmachine/pkg/headers"
	"github.com/sapcc/restmachine/pkg/negotiation"
	"github.com/sapcc/restmachine/pkg/render"
)

// Labels for the "decision" label of ResponsesCounter that do not correspond
// to a StateName.
const (
	decisionSetup       = "setup"
	decisionRouteLookup = "route_lookup"
	decisionNegotiation = "content_negotiation"
	decisionConditional = "conditional_request"
	decisionHandler     = "handler"
	decisionRenderer    = "renderer"
	decisionPanic       = "panic"
)

// machine holds the state of one Execute() call.
type machine struct {
	app   *Application
	req   *Request
	res   *resolver
	route *Route

	renderer       render.Renderer
	availableTypes []string
	vary           string
	etag           string
	lastModified   time.Time
	// the decision that produced the response
	decision string
}

// Execute processes a request and returns the response. It never panics:
// panics in handlers and dependencies are logged and reported as 500.
func (a *Application) Execute(req *Request) (resp *Response) {
	req.prepare()
	m := &machine{app: a, req: req, res: newResolver(a, req)}
	defer m.res.cleanup()

	defer func() {
		if r := recover(); r != nil {
			logg.Error("panic while processing %s %s: %v\n%s", req.Method, req.Path, r, debug.Stack())
			m.decision = decisionPanic
			resp = m.errorResponse(http.StatusInternalServerError, fmt.Errorf("panic: %v", r))
		}
		method := string(req.Method)
		if !req.Method.IsKnown() {
			method = "OTHER"
		}
		ResponsesCounter.WithLabelValues(method, strconv.Itoa(resp.Status), m.decision).Inc()
	}()

	return m.run()
}

// check describes one of the boolean decisions before and after routing.
type check struct {
	state    StateName
	fallback bool // outcome when no default callback is registered
	failWhen bool
	status   int
}

func (m *machine) run() *Response {
	a := m.app
	err := a.Validate()
	if err != nil {
		return m.failWith(decisionSetup, err)
	}

	resp := m.runChecks([]check{
		{StateServiceAvailable, true, false, http.StatusServiceUnavailable},
		{StateKnownMethod, m.req.Method.IsKnown(), false, http.StatusNotImplemented},
		{StateURITooLong, len(m.req.Path) > a.cfg.MaxURILength, true, http.StatusRequestURITooLong},
	})
	if resp != nil {
		return resp
	}

	route, pathParams, ok := a.router.match(m.req.Method, m.req.Path)
	if !ok {
		if a.router.hasPath(m.req.Path) {
			logg.Debug("%s %s: path exists only for other methods", m.req.Method, m.req.Path)
		}
		return m.fail(decisionRouteLookup, http.StatusNotFound, nil)
	}
	m.route = route
	for key, value := range pathParams {
		m.req.PathParams[key] = value
	}

	resp = m.runChecks([]check{
		{StateMethodAllowed, true, false, http.StatusMethodNotAllowed},
		{StateMalformedRequest, false, true, http.StatusBadRequest},
		{StateContentHeadersValid, true, false, http.StatusBadRequest},
	})
	if resp != nil {
		return resp
	}

	resp = m.checkAuthorized()
	if resp != nil {
		return resp
	}
	resp = m.checkForbidden()
	if resp != nil {
		return resp
	}

	m.availableTypes = negotiation.AvailableTypes(route.renderers, a.renderers)
	m.vary = varyValue(m.req, m.availableTypes)
	m.res.vary = m.vary
	renderer, ok := negotiation.Select(m.req.HeaderList("Accept"), route.renderers, a.renderers)
	if !ok {
		return m.fail(decisionNegotiation, http.StatusNotAcceptable, nil)
	}
	m.renderer = renderer

	for _, state := range []StateName{StateResourceExists, StateResourceFromRequest} {
		name, ok := route.callbacks[state]
		if !ok {
			continue
		}
		value, err := m.res.resolve(name)
		if err != nil {
			return m.failWith(string(state), err)
		}
		if !isTruthy(value) {
			return m.fail(string(state), http.StatusNotFound, nil)
		}
	}

	resp = m.evaluatePreconditions()
	if resp != nil {
		return resp
	}

	vals, err := m.res.values(route.Needs)
	if err != nil {
		return m.failWith(decisionHandler, err)
	}
	result, err := route.Handler(vals)
	if err != nil {
		return m.failWith(decisionHandler, err)
	}
	return m.respond(result)
}

func (m *machine) runChecks(checks []check) *Response {
	for _, c := range checks {
		outcome, err := m.decide(c.state, c.fallback)
		if err != nil {
			return m.failWith(string(c.state), err)
		}
		if outcome == c.failWhen {
			return m.fail(string(c.state), c.status, nil)
		}
	}
	return nil
}

// decide runs the default callback for a decision, if there is one.
func (m *machine) decide(state StateName, fallback bool) (bool, error) {
	cb := m.app.defaults[state]
	if cb == nil {
		return fallback, nil
	}
	vals, err := m.res.values(cb.needs)
	if err != nil {
		return false, err
	}
	return cb.fn(vals)
}

func (m *machine) checkAuthorized() *Response {
	if name, ok := m.route.callbacks[StateAuthorized]; ok {
		value, err := m.res.resolve(name)
		if err != nil {
			return m.failWith(string(StateAuthorized), err)
		}
		if !isTruthy(value) {
			return m.fail(string(StateAuthorized), http.StatusUnauthorized, nil)
		}
		return nil
	}
	return m.runChecks([]check{{StateAuthorized, true, false, http.StatusUnauthorized}})
}

func (m *machine) checkForbidden() *Response {
	if name, ok := m.route.callbacks[StateForbidden]; ok {
		value, err := m.res.resolve(name)
		if err != nil {
			return m.failWith(string(StateForbidden), err)
		}
		if isNil(value) {
			return m.fail(string(StateForbidden), http.StatusForbidden, nil)
		}
		return nil
	}
	return m.runChecks([]check{{StateForbidden, false, true, http.StatusForbidden}})
}

// evaluatePreconditions handles If-Match, If-None-Match, If-Modified-Since
// and If-Unmodified-Since for routes that have validators.
func (m *machine) evaluatePreconditions() *Response {
	etagName, hasETag := m.route.callbacks[StateGenerateETag]
	lastModifiedName, hasLastModified := m.route.callbacks[StateLastModified]
	if !hasETag && !hasLastModified {
		return nil
	}

	if hasETag {
		value, err := m.res.resolve(etagName)
		if err == nil {
			m.etag, err = asETag(etagName, value)
		}
		if err != nil {
			return m.failWith(string(StateGenerateETag), err)
		}
	}
	if hasLastModified {
		value, err := m.res.resolve(lastModifiedName)
		if err == nil {
			m.lastModified, err = asTime(lastModifiedName, value)
		}
		if err != nil {
			return m.failWith(string(StateLastModified), err)
		}
	}

	outcome := conditional.Evaluate(string(m.req.Method), listHeaders{m.req}, conditional.Validators{
		ETag:         m.etag,
		LastModified: m.lastModified,
	})
	switch outcome {
	case conditional.NotModified:
		m.decision = decisionConditional
		logg.Debug("%s %s: %s -> %d", m.req.Method, m.req.Path, outcome, outcome.Status())
		resp := &Response{Status: outcome.Status()}
		m.complete(resp)
		return resp
	case conditional.PreconditionFailed:
		return m.fail(decisionConditional, outcome.Status(), nil)
	default:
		return nil
	}
}

func asETag(name string, value any) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case *string:
		if v == nil {
			return "", nil
		}
		return *v, nil
	case fmt.Stringer:
		return v.String(), nil
	default:
		return "", fmt.Errorf("dependency %q returned %T, but entity tags must be strings", name, value)
	}
}

func asTime(name string, value any) (time.Time, error) {
	switch v := value.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v, nil
	case *time.Time:
		if v == nil {
			return time.Time{}, nil
		}
		return *v, nil
	default:
		return time.Time{}, fmt.Errorf("dependency %q returned %T, but modification times must be time.Time", name, value)
	}
}

// respond turns the handler result into the final response.
func (m *machine) respond(result any) *Response {
	m.decision = decisionHandler
	switch r := result.(type) {
	case nil:
		return m.render(http.StatusNoContent, nil, nil)
	case *Response:
		if r == nil {
			return m.render(http.StatusNoContent, nil, nil)
		}
		m.complete(r)
		return r
	case Result:
		status := r.Status
		if status == 0 {
			status = http.StatusOK
		}
		return m.render(status, r.Value, r.Headers)
	default:
		return m.render(http.StatusOK, result, nil)
	}
}

func (m *machine) render(status int, value any, extraHeaders map[string]string) *Response {
	resp := &Response{Status: status, Headers: headers.New()}
	if value != nil && status != http.StatusNoContent {
		body, err := m.renderer.Render(value)
		if err != nil {
			return m.failWith(decisionRenderer, fmt.Errorf("cannot render %T as %s: %w", value, m.renderer.ContentType, err))
		}
		resp.Body = body
		resp.ContentType = m.renderer.ContentType
	}
	for name, value := range extraHeaders {
		resp.Headers.Set(name, value)
	}
	m.complete(resp)
	return resp
}

// complete adds the headers that were computed during processing, unless the
// handler already set them, and finalizes the response.
func (m *machine) complete(resp *Response) {
	if resp.Headers == nil {
		resp.Headers = headers.New()
	}
	if h, ok := m.res.cache["response_headers"].(*headers.Headers); ok {
		for _, name := range h.Names() {
			if !resp.Headers.Has(name) {
				for _, value := range h.GetAll(name) {
					resp.Headers.Add(name, value)
				}
			}
		}
	}
	// after DELETE, the old validators describe a resource that is gone
	if m.req.Method != MethodDelete {
		if resp.ETag == "" && !resp.Headers.Has("ETag") {
			resp.ETag = m.etag
		}
		if resp.LastModified.IsZero() && !resp.Headers.Has("Last-Modified") {
			resp.LastModified = m.lastModified
		}
	}
	if m.vary != "" && !resp.Headers.Has("Vary") {
		resp.Headers.Set("Vary", m.vary)
	}
	resp.finalize(m.req, m.availableTypes, true)
}

// fail ends processing with an error status. The error is optional; it is
// available to error handlers as the "exception" dependency.
func (m *machine) fail(decision string, status int, err error) *Response {
	m.decision = decision
	logg.Debug("%s %s: %s -> %d", m.req.Method, m.req.Path, decision, status)
	if status >= 500 && err != nil {
		logg.Error("%s %s failed in %s: %s", m.req.Method, m.req.Path, decision, err.Error())
	}
	return m.errorResponse(status, err)
}

// failWith is like fail, but derives the status from the error.
func (m *machine) failWith(decision string, err error) *Response {
	return m.fail(decision, HTTPStatus(err), err)
}
