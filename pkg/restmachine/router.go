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
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
)

// router matches requests to routes. It uses gorilla/mux for matching only;
// the mux handlers are never served.
type router struct {
	mux *mux.Router
}

// routeHandler links a mux route back to its Route.
type routeHandler struct {
	route *Route
}

// ServeHTTP implements the http.Handler interface.
func (h routeHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	http.NotFound(w, r)
}

// a method that no route is registered for
const probeMethod = "RESTMACHINE-PROBE"

func newRouter() *router {
	return &router{mux: mux.NewRouter()}
}

func (r *router) add(route *Route) error {
	return r.mux.NewRoute().
		Methods(string(route.Method)).
		Path(route.Path).
		Handler(routeHandler{route}).
		GetError()
}

// match returns the first route that matches method and path, and the path
// parameters extracted from the path.
func (r *router) match(method Method, path string) (*Route, map[string]string, bool) {
	var m mux.RouteMatch
	if !r.mux.Match(probe(string(method), path), &m) || m.MatchErr != nil {
		return nil, nil, false
	}
	h, ok := m.Handler.(routeHandler)
	if !ok {
		return nil, nil, false
	}
	return h.route, m.Vars, true
}

// hasPath returns whether any route matches the path, regardless of method.
func (r *router) hasPath(path string) bool {
	var m mux.RouteMatch
	r.mux.Match(probe(probeMethod, path), &m)
	return m.MatchErr == mux.ErrMethodMismatch
}

func probe(method, path string) *http.Request {
	return &http.Request{
		Method: method,
		URL:    &url.URL{Path: path},
		Header: make(http.Header),
	}
}
