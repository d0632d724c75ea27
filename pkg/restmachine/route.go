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
	"maps"
	"slices"
	"strings"

	"github.com/sapcc/restmachine/pkg/render"
)

// Route is a handler registered for a method and path template. Path
// templates use the gorilla/mux syntax, e.g. "/todos/{todo_id}" or
// "/todos/{todo_id:[0-9]+}".
type Route struct {
	Method  Method
	Path    string
	Needs   []string
	Handler HandlerFunc

	renderers  []render.Renderer
	pathParams []string
	// callbacks attached with Callback(), ETag() or LastModified()
	explicit map[StateName]string
	// state -> dependency name, filled by Application.Validate()
	callbacks map[StateName]string
}

// String returns e.g. "GET /todos/{todo_id}".
func (r *Route) String() string {
	return fmt.Sprintf("%s %s", r.Method, r.Path)
}

// Provides adds a renderer for the given content type to this route. It
// takes precedence over a global renderer for the same content type.
func (r *Route) Provides(contentType string, fn render.Func) *Route {
	r.renderers = append(r.renderers, render.Renderer{ContentType: contentType, Render: fn})
	return r
}

// Callback binds the named dependency to a decision point for this route.
// This is only needed when the handler does not itself need a dependency
// that was registered for that decision point.
func (r *Route) Callback(state StateName, name string) *Route {
	if r.explicit == nil {
		r.explicit = make(map[StateName]string)
	}
	r.explicit[state] = name
	return r
}

// ETag is a shorthand for r.Callback(StateGenerateETag, name).
//
// The callback runs before the handler. When an unsafe method changes the
// resource, the handler must report the new ETag in its Result.Headers.
func (r *Route) ETag(name string) *Route {
	return r.Callback(StateGenerateETag, name)
}

// LastModified is a shorthand for r.Callback(StateLastModified, name).
// As with ETag, unsafe-method handlers must report the new value themselves.
func (r *Route) LastModified(name string) *Route {
	return r.Callback(StateLastModified, name)
}

// bind fills r.callbacks from the state-tagged dependencies in r.Needs and
// the explicitly attached callbacks.
func (r *Route) bind(app *Application) error {
	r.callbacks = make(map[StateName]string)
	for _, name := range r.Needs {
		if slices.Contains(r.pathParams, name) {
			continue
		}
		d := app.dependency(name)
		if d == nil || d.State == "" {
			continue
		}
		if other, exists := r.callbacks[d.State]; exists {
			return fmt.Errorf("%s: both %q and %q are %s callbacks", r, other, name, d.State)
		}
		r.callbacks[d.State] = name
	}
	for _, state := range slices.Sorted(maps.Keys(r.explicit)) {
		if !state.isRouteState() {
			return fmt.Errorf("%s: cannot bind a dependency to %s", r, state)
		}
		r.callbacks[state] = r.explicit[state]
	}
	return nil
}

// allNeeds returns the names that must be resolvable for this route.
func (r *Route) allNeeds() []string {
	result := slices.Clone(r.Needs)
	for _, state := range slices.Sorted(maps.Keys(r.callbacks)) {
		result = append(result, r.callbacks[state])
	}
	return result
}

// RouteInfo describes a route for introspection.
type RouteInfo struct {
	Method       string            `json:"method"`
	Path         string            `json:"path"`
	Needs        []string          `json:"needs"`
	Callbacks    map[string]string `json:"callbacks,omitempty"`
	ContentTypes []string          `json:"content_types"`
}

// pathParamNames extracts the variable names from a path template.
func pathParamNames(path string) []string {
	var (
		result []string
		depth  int
		start  int
	)
	for idx, c := range path {
		switch c {
		case '{':
			if depth == 0 {
				start = idx + 1
			}
			depth++
		case '}':
			depth--
			if depth == 0 {
				name, _, _ := strings.Cut(path[start:idx], ":")
				result = append(result, strings.TrimSpace(name))
			}
		}
	}
	return result
}

// RouteGroup registers routes below a common path prefix. The Application
// itself is the RouteGroup with the empty prefix.
type RouteGroup struct {
	app    *Application
	prefix string
}

// Group returns a RouteGroup for routes below the given prefix, relative to
// the prefix of this group.
func (g *RouteGroup) Group(prefix string) *RouteGroup {
	return &RouteGroup{g.app, g.prefix + prefix}
}

// Handle registers a route. The handler receives the values of the names
// listed in needs.
func (g *RouteGroup) Handle(method Method, path string, needs []string, handler HandlerFunc) *Route {
	route := &Route{
		Method:     method,
		Path:       g.prefix + path,
		Needs:      needs,
		Handler:    handler,
		pathParams: pathParamNames(g.prefix + path),
	}
	g.app.addRoute(route)
	return route
}

// Get is a shorthand for g.Handle(MethodGet, ...).
func (g *RouteGroup) Get(path string, needs []string, handler HandlerFunc) *Route {
	return g.Handle(MethodGet, path, needs, handler)
}

// Post is a shorthand for g.Handle(MethodPost, ...).
func (g *RouteGroup) Post(path string, needs []string, handler HandlerFunc) *Route {
	return g.Handle(MethodPost, path, needs, handler)
}

// Put is a shorthand for g.Handle(MethodPut, ...).
func (g *RouteGroup) Put(path string, needs []string, handler HandlerFunc) *Route {
	return g.Handle(MethodPut, path, needs, handler)
}

// Delete is a shorthand for g.Handle(MethodDelete, ...).
func (g *RouteGroup) Delete(path string, needs []string, handler HandlerFunc) *Route {
	return g.Handle(MethodDelete, path, needs, handler)
}

// Patch is a shorthand for g.Handle(MethodPatch, ...).
func (g *RouteGroup) Patch(path string, needs []string, handler HandlerFunc) *Route {
	return g.Handle(MethodPatch, path, needs, handler)
}
