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

// Package restmachine processes HTTP requests with a webmachine-style
// decision graph. Routes, dependency providers and decision callbacks are
// registered on an Application; Application.Execute() then walks each
// request through service availability, method and URI checks, routing,
// authorization, content negotiation, resource existence and conditional
// request evaluation before calling the route handler.
//
// Handlers and providers declare the values they need by name. Names are
// resolved from the request, its path parameters, the registered
// dependencies and the body parsers, and each value is computed at most once
// per request (or once per Application for session-scoped dependencies).
package restmachine

import (
	"fmt"
	"net/http"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/sapcc/go-bits/errext"

	"github.com/sapcc/restmachine/pkg/negotiation"
	"github.com/sapcc/restmachine/pkg/render"
)

// DefaultMaxURILength is the default for Config.MaxURILength.
const DefaultMaxURILength = 2048

// Config contains the settings of an Application. The zero value is valid.
type Config struct {
	// Requests with longer paths are answered with 414. Defaults to
	// DefaultMaxURILength.
	MaxURILength int
	// Global renderers, in order of preference. Defaults to render.Defaults().
	Renderers []render.Renderer
}

// Application holds the registered routes, dependencies and callbacks, and
// processes requests with Execute().
//
// All registration must happen before the first call to Validate(),
// Startup() or Execute(). After that, Execute() is safe for concurrent use.
type Application struct {
	RouteGroup

	cfg          Config
	renderers    []render.Renderer
	router       *router
	routes       []*Route
	dependencies map[string]*Dependency
	builtins     map[string]*Dependency
	// content type -> parser registered with Accepts()
	parsers          map[string]*Dependency
	defaults         map[StateName]*defaultCallback
	errorHandlers    []*errorHandler
	startupNames     []string
	shutdownHandlers []*shutdownHandler
	setupErrors      errext.ErrorSet
	session          *sessionCache

	validated    atomic.Bool
	validateOnce sync.Once
	validateErr  error
	startupOnce  sync.Once
	startupErr   error
	shutdownOnce sync.Once
}

type defaultCallback struct {
	needs []string
	fn    CallbackFunc
}

// New creates an Application.
func New(cfg Config) *Application {
	if cfg.MaxURILength <= 0 {
		cfg.MaxURILength = DefaultMaxURILength
	}
	a := &Application{
		cfg:          cfg,
		renderers:    slices.Clone(cfg.Renderers),
		router:       newRouter(),
		dependencies: make(map[string]*Dependency),
		builtins:     builtinDependencies(),
		parsers:      make(map[string]*Dependency),
		defaults:     make(map[StateName]*defaultCallback),
		session:      newSessionCache(),
	}
	if len(a.renderers) == 0 {
		a.renderers = render.Defaults()
	}
	a.RouteGroup = RouteGroup{app: a}
	return a
}

func (a *Application) checkNotValidated(what string) {
	if a.validated.Load() {
		panic(fmt.Sprintf("restmachine: cannot register %s after the application was validated", what))
	}
}

func (a *Application) addRoute(route *Route) {
	a.checkNotValidated("route " + route.String())
	if !route.Method.IsKnown() {
		a.setupErrors.Addf("%s: unsupported method", route)
		return
	}
	err := a.router.add(route)
	if err != nil {
		a.setupErrors.Addf("%s: %s", route, err.Error())
		return
	}
	a.routes = append(a.routes, route)
}

// dependency returns the provider for the given name. User-registered
// providers take precedence over builtin ones.
func (a *Application) dependency(name string) *Dependency {
	if d, ok := a.dependencies[name]; ok {
		return d
	}
	return a.builtins[name]
}

// Register adds a dependency provider. Each name can only be registered once,
// but a registered dependency can replace a builtin one.
func (a *Application) Register(d Dependency) {
	a.checkNotValidated(fmt.Sprintf("dependency %q", d.Name))
	if d.Scope == "" {
		d.Scope = RequestScope
	}
	switch {
	case d.Name == "":
		a.setupErrors.Addf("cannot register a dependency without a name")
	case d.Func == nil:
		a.setupErrors.Addf("%s has no provider function", &d)
	case d.Name == nameRequest || d.Name == nameContext || d.Name == nameException:
		a.setupErrors.Addf("cannot register %s: the name is reserved", &d)
	case a.dependencies[d.Name] != nil:
		a.setupErrors.Addf("cannot register %s: the name is already taken", &d)
	case d.Scope != RequestScope && d.Scope != SessionScope:
		a.setupErrors.Addf("cannot register %s: unknown scope", &d)
	case d.State != "" && !d.State.isRouteState():
		a.setupErrors.Addf("cannot register %s: no dependency can be bound to this decision", &d)
	default:
		a.dependencies[d.Name] = &d
	}
}

// Dependency registers a request-scoped dependency.
func (a *Application) Dependency(name string, needs []string, fn ProviderFunc) {
	a.Register(Dependency{Name: name, Scope: RequestScope, Needs: needs, Func: fn})
}

// SessionDependency registers a dependency that is computed once and then
// shared by all requests.
func (a *Application) SessionDependency(name string, needs []string, fn ProviderFunc) {
	a.Register(Dependency{Name: name, Scope: SessionScope, Needs: needs, Func: fn})
}

// ResourceExists registers a dependency that is evaluated before the handler
// of each route that needs it. If it returns a falsy value, the request is
// answered with 404.
func (a *Application) ResourceExists(name string, needs []string, fn ProviderFunc) {
	a.Register(Dependency{Name: name, State: StateResourceExists, Needs: needs, Func: fn})
}

// ResourceFromRequest is like ResourceExists, but intended for the resources
// that are created from the request body by POST handlers.
func (a *Application) ResourceFromRequest(name string, needs []string, fn ProviderFunc) {
	a.Register(Dependency{Name: name, State: StateResourceFromRequest, Needs: needs, Func: fn})
}

// Authorized registers a dependency that decides the authorized check for
// each route that needs it. A falsy value yields 401.
func (a *Application) Authorized(name string, needs []string, fn ProviderFunc) {
	a.Register(Dependency{Name: name, State: StateAuthorized, Needs: needs, Func: fn})
}

// Forbidden registers a dependency that decides the forbidden check for each
// route that needs it. If it returns nil, the request is answered with 403.
// Otherwise the value is available to the handler.
func (a *Application) Forbidden(name string, needs []string, fn ProviderFunc) {
	a.Register(Dependency{Name: name, State: StateForbidden, Needs: needs, Func: fn})
}

// GenerateETag registers a dependency that computes the entity tag of the
// resource for conditional requests. It must return a string.
func (a *Application) GenerateETag(name string, needs []string, fn ProviderFunc) {
	a.Register(Dependency{Name: name, State: StateGenerateETag, Needs: needs, Func: fn})
}

// LastModified registers a dependency that computes the modification time
// of the resource for conditional requests. It must return a time.Time.
func (a *Application) LastModified(name string, needs []string, fn ProviderFunc) {
	a.Register(Dependency{Name: name, State: StateLastModified, Needs: needs, Func: fn})
}

// Validates registers a request-scoped dependency whose value is validated
// before it is handed out. Validation failures yield 422. Errors returned by
// fn that do not carry a status of their own are also reported as
// validation failures.
func Validates[T Validatable](a *Application, name string, needs []string, fn func(Values) (T, error)) {
	a.Register(Dependency{Name: name, Scope: RequestScope, Needs: needs, Func: func(v Values) (any, error) {
		value, err := fn(v)
		if err != nil {
			if HTTPStatus(err) != http.StatusInternalServerError {
				return nil, err
			}
			return nil, &ValidationError{Provider: name, Inner: err}
		}
		err = value.Validate()
		if err != nil {
			return nil, &ValidationError{Provider: name, Inner: err}
		}
		return value, nil
	}})
}

// Accepts registers a parser for request bodies of the given content type.
// Its value can be needed under the given name or as "parsed_data" or
// "parsed_body". It also replaces the builtin body parser for that content
// type. Parser errors yield 400.
func (a *Application) Accepts(contentType, name string, needs []string, fn ProviderFunc) {
	a.checkNotValidated(fmt.Sprintf("parser %q", name))
	contentType = negotiation.BaseType(contentType)
	if a.parsers[contentType] != nil {
		a.setupErrors.Addf("cannot register parser %q: there already is a parser for %s", name, contentType)
		return
	}
	a.parsers[contentType] = &Dependency{Name: name, Scope: RequestScope, Needs: needs, Func: fn}
}

// isParserName returns whether the name refers to a parser from Accepts().
func (a *Application) isParserName(name string) bool {
	if len(a.parsers) > 0 && slices.Contains(parserAliases, name) {
		return true
	}
	for _, p := range a.parsers {
		if p.Name == name {
			return true
		}
	}
	return false
}

// parserContentTypes lists the content types that can satisfy a parser name.
func (a *Application) parserContentTypes(name string) []string {
	var result []string
	for contentType, p := range a.parsers {
		if p.Name == name || slices.Contains(parserAliases, name) {
			result = append(result, contentType)
		}
	}
	slices.Sort(result)
	return result
}

// RequestIDGenerator replaces the builtin "request_id" dependency.
func (a *Application) RequestIDGenerator(needs []string, fn func(Values) (string, error)) {
	a.Dependency("request_id", needs, func(v Values) (any, error) { return fn(v) })
}

// TraceIDGenerator replaces the builtin "trace_id" dependency.
func (a *Application) TraceIDGenerator(needs []string, fn func(Values) (string, error)) {
	a.Dependency("trace_id", needs, func(v Values) (any, error) { return fn(v) })
}

// AddRenderer adds a global renderer. It replaces an existing global renderer
// for the same content type, and otherwise has the lowest preference.
func (a *Application) AddRenderer(r render.Renderer) {
	a.checkNotValidated("renderer for " + r.ContentType)
	for idx, existing := range a.renderers {
		if negotiation.BaseType(existing.ContentType) == negotiation.BaseType(r.ContentType) {
			a.renderers[idx] = r
			return
		}
	}
	a.renderers = append(a.renderers, r)
}

func (a *Application) setDefault(state StateName, needs []string, fn CallbackFunc) {
	a.checkNotValidated(fmt.Sprintf("default %s callback", state))
	a.defaults[state] = &defaultCallback{needs, fn}
}

// DefaultServiceAvailable sets the callback that decides whether requests are
// answered with 503.
func (a *Application) DefaultServiceAvailable(needs []string, fn CallbackFunc) {
	a.setDefault(StateServiceAvailable, needs, fn)
}

// DefaultKnownMethod sets the callback that decides whether requests are
// answered with 501. It replaces the check against the Method... constants.
func (a *Application) DefaultKnownMethod(needs []string, fn CallbackFunc) {
	a.setDefault(StateKnownMethod, needs, fn)
}

// DefaultURITooLong sets the callback that decides whether requests are
// answered with 414. It replaces the check against Config.MaxURILength.
func (a *Application) DefaultURITooLong(needs []string, fn CallbackFunc) {
	a.setDefault(StateURITooLong, needs, fn)
}

// DefaultMethodAllowed sets the callback that decides whether requests are
// answered with 405.
func (a *Application) DefaultMethodAllowed(needs []string, fn CallbackFunc) {
	a.setDefault(StateMethodAllowed, needs, fn)
}

// DefaultMalformedRequest sets the callback that decides whether requests are
// answered with 400 because they are malformed.
func (a *Application) DefaultMalformedRequest(needs []string, fn CallbackFunc) {
	a.setDefault(StateMalformedRequest, needs, fn)
}

// DefaultContentHeadersValid sets the callback that decides whether requests
// are answered with 400 because of invalid Content-* headers.
func (a *Application) DefaultContentHeadersValid(needs []string, fn CallbackFunc) {
	a.setDefault(StateContentHeadersValid, needs, fn)
}

// DefaultAuthorized sets the callback that decides whether requests are
// answered with 401 on routes without an Authorized dependency.
func (a *Application) DefaultAuthorized(needs []string, fn CallbackFunc) {
	a.setDefault(StateAuthorized, needs, fn)
}

// DefaultForbidden sets the callback that decides whether requests are
// answered with 403 on routes without a Forbidden dependency. Returning true
// means forbidden.
func (a *Application) DefaultForbidden(needs []string, fn CallbackFunc) {
	a.setDefault(StateForbidden, needs, fn)
}

// RouteInfos describes all registered routes, in registration order.
func (a *Application) RouteInfos() []RouteInfo {
	// validation binds the callbacks; an error is reported by Execute() or Startup()
	_ = a.Validate()
	result := make([]RouteInfo, len(a.routes))
	for idx, route := range a.routes {
		info := RouteInfo{
			Method:       string(route.Method),
			Path:         route.Path,
			Needs:        slices.Clone(route.Needs),
			ContentTypes: negotiation.AvailableTypes(route.renderers, a.renderers),
		}
		if len(route.callbacks) > 0 {
			info.Callbacks = make(map[string]string, len(route.callbacks))
			for state, name := range route.callbacks {
				info.Callbacks[string(state)] = name
			}
		}
		if info.Needs == nil {
			info.Needs = []string{}
		}
		result[idx] = info
	}
	return result
}
