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

	"github.com/sapcc/go-bits/errext"
)

// Validate checks that the registered routes and dependencies form a
// consistent graph, and binds the decision callbacks of each route. It
// reports names that cannot be resolved, dependency cycles, and session
// dependencies that need request-scoped values.
//
// Validate is called by Startup() and by the first Execute(). After it was
// called, no more registrations are allowed.
func (a *Application) Validate() error {
	a.validateOnce.Do(func() {
		a.validated.Store(true)
		a.validateErr = a.validate()
	})
	return a.validateErr
}

func (a *Application) validate() error {
	var errs errext.ErrorSet
	errs.Append(a.setupErrors)

	for _, route := range a.routes {
		err := route.bind(a)
		if err != nil {
			errs.Add(err)
			continue
		}
		v := a.newValidator(route.String(), route.pathParams)
		for _, name := range route.allNeeds() {
			v.check(name, nil, false)
		}
		errs.Append(v.errs)
	}

	for _, state := range slices.Sorted(maps.Keys(a.defaults)) {
		v := a.newValidator(fmt.Sprintf("default %s callback", state), nil)
		v.checkAll(a.defaults[state].needs, false)
		errs.Append(v.errs)
	}
	for idx, h := range a.errorHandlers {
		v := a.newValidator(fmt.Sprintf("error handler #%d", idx+1), nil)
		v.checkAll(h.needs, false)
		errs.Append(v.errs)
	}
	for _, name := range a.startupNames {
		v := a.newValidator(fmt.Sprintf("startup handler %q", name), nil)
		v.check(name, nil, false)
		errs.Append(v.errs)
	}
	for idx, h := range a.shutdownHandlers {
		v := a.newValidator(fmt.Sprintf("shutdown handler #%d", idx+1), nil)
		v.checkAll(h.needs, true)
		errs.Append(v.errs)
	}
	for _, p := range a.parsers {
		v := a.newValidator(fmt.Sprintf("parser %q", p.Name), nil)
		v.checkAll(p.Needs, false)
		errs.Append(v.errs)
	}

	if errs.IsEmpty() {
		return nil
	}
	return &RegistrationError{Errors: errs}
}

// validator checks the names needed by one route or handler.
type validator struct {
	app        *Application
	owner      string
	pathParams []string
	checked    map[string]bool
	errs       errext.ErrorSet
}

func (a *Application) newValidator(owner string, pathParams []string) *validator {
	return &validator{
		app:        a,
		owner:      owner,
		pathParams: pathParams,
		checked:    make(map[string]bool),
	}
}

func (v *validator) checkAll(names []string, sessionOnly bool) {
	for _, name := range names {
		v.check(name, nil, sessionOnly)
	}
}

// check verifies that the name can be resolved. The stack holds the
// dependencies through which the name was reached. If sessionOnly is set,
// the name must refer to a session-scoped dependency.
func (v *validator) check(name string, stack []string, sessionOnly bool) {
	where := v.owner
	if len(stack) > 0 {
		where += " (via " + strings.Join(stack, " -> ") + ")"
	}
	requestScoped := func() {
		v.errs.Addf("%s: %q is request-scoped and cannot be used here", where, name)
	}

	switch {
	case name == nameRequest || name == nameContext:
		if sessionOnly {
			requestScoped()
		}
		return
	case name == nameException:
		return
	case slices.Contains(v.pathParams, name):
		if sessionOnly {
			requestScoped()
		}
		return
	}

	if d := v.app.dependency(name); d != nil {
		if slices.Contains(stack, name) {
			v.errs.Addf("%s: dependency cycle: %s -> %s", v.owner, strings.Join(stack, " -> "), name)
			return
		}
		if sessionOnly && d.Scope != SessionScope {
			requestScoped()
			return
		}
		if v.checked[name] {
			return
		}
		v.checked[name] = true
		next := append(slices.Clip(stack), name)
		for _, need := range d.Needs {
			v.check(need, next, sessionOnly || d.Scope == SessionScope)
		}
		return
	}

	if v.app.isParserName(name) {
		if sessionOnly {
			requestScoped()
		}
		return
	}

	v.errs.Addf("%s: unknown dependency %q", where, name)
}
