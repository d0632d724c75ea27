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
	"mime/multipart"
	"slices"
	"strings"

	"github.com/sapcc/go-bits/logg"
)

// Names that are resolved from the execution context instead of a provider.
const (
	nameRequest   = "request"
	nameContext   = "context"
	nameException = "exception"
)

// Aliases under which the parser for the request's content type can be
// requested.
var parserAliases = []string{"parsed_data", "parsed_body"}

// resolver resolves dependency names for one execution context: a request,
// or the startup/shutdown phase (where req is nil).
type resolver struct {
	app   *Application
	req   *Request
	cache map[string]any
	// names of the providers currently being evaluated, for cycle detection
	stack []string
	// set while an error handler runs
	exception error
	// precomputed Vary header, seeds the "response_headers" value
	vary string
	// parsed multipart forms whose temporary files are removed by cleanup()
	forms []*multipart.Form
}

func newResolver(app *Application, req *Request) *resolver {
	return &resolver{
		app:   app,
		req:   req,
		cache: make(map[string]any),
	}
}

// cleanup releases resources held by values that were resolved during the
// request.
func (r *resolver) cleanup() {
	for _, form := range r.forms {
		err := form.RemoveAll()
		if err != nil {
			logg.Error("cannot remove temporary files of multipart form for %s %s: %s", r.req.Method, r.req.Path, err.Error())
		}
	}
	r.forms = nil
}

// resolve returns the value for a name. The sources are checked in a fixed
// order: the request cache, the execution context, path parameters,
// registered dependencies, and finally the body parser for the request's
// content type.
func (r *resolver) resolve(name string) (any, error) {
	if value, ok := r.cache[name]; ok {
		return value, nil
	}

	switch name {
	case nameRequest:
		if r.req == nil {
			return nil, &ResolutionError{name, "no request is being processed"}
		}
		return r.req, nil
	case nameContext:
		if r.req == nil {
			return nil, &ResolutionError{name, "no request is being processed"}
		}
		return r.req.Context(), nil
	case nameException:
		return r.exception, nil
	}

	if r.req != nil {
		if value, ok := r.req.PathParams[name]; ok {
			return value, nil
		}
	}

	if d := r.app.dependency(name); d != nil {
		return r.resolveDependency(d)
	}

	if r.req != nil {
		if p := r.app.parsers[r.req.ContentType()]; p != nil && (p.Name == name || slices.Contains(parserAliases, name)) {
			return r.resolveParser(p)
		}
		if r.app.isParserName(name) {
			return nil, &UnsupportedMediaTypeError{
				ContentType: r.req.ContentType(),
				Expected:    strings.Join(r.app.parserContentTypes(name), " or "),
			}
		}
	}

	return nil, &ResolutionError{name, "no such path parameter or dependency"}
}

func (r *resolver) resolveDependency(d *Dependency) (any, error) {
	if slices.Contains(r.stack, d.Name) {
		cycle := append(slices.Clone(r.stack), d.Name)
		return nil, &ResolutionError{d.Name, "dependency cycle: " + strings.Join(cycle, " -> ")}
	}

	if d.Scope == SessionScope {
		return r.app.session.getOrCompute(d.Name, func() (any, error) {
			return r.invoke(d)
		})
	}

	value, err := r.invoke(d)
	if err != nil {
		return nil, err
	}
	r.cache[d.Name] = value
	return value, nil
}

// resolveParser runs a parser registered with Application.Accepts(). The
// result is cached under the parser's name, so that the aliases do not parse
// the body again.
func (r *resolver) resolveParser(p *Dependency) (any, error) {
	if value, ok := r.cache[p.Name]; ok {
		return value, nil
	}
	value, err := r.invoke(p)
	if err != nil {
		return nil, &BodyParsingError{ContentType: r.req.ContentType(), Inner: err}
	}
	r.cache[p.Name] = value
	return value, nil
}

func (r *resolver) invoke(d *Dependency) (any, error) {
	r.stack = append(r.stack, d.Name)
	defer func() { r.stack = r.stack[:len(r.stack)-1] }()

	vals, err := r.values(d.Needs)
	if err != nil {
		return nil, err
	}
	DependencyEvaluationsCounter.WithLabelValues(string(d.Scope)).Inc()
	return d.Func(vals)
}

// values resolves a Needs list from left to right.
func (r *resolver) values(needs []string) (Values, error) {
	result := Values{
		values: make(map[string]any, len(needs)),
		res:    r,
	}
	for _, name := range needs {
		value, err := r.resolve(name)
		if err != nil {
			return Values{}, err
		}
		result.values[name] = value
	}
	return result, nil
}
