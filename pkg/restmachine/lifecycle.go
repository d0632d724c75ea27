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
	"runtime/debug"

	"github.com/sapcc/go-bits/logg"
)

type shutdownHandler struct {
	needs []string
	fn    func(Values) error
}

// OnStartup registers a startup handler. Its return value is also available
// as a session-scoped dependency under the given name. Startup() runs all
// startup handlers in registration order. If Startup() is not called, the
// handler runs when its value is first needed.
func (a *Application) OnStartup(name string, needs []string, fn ProviderFunc) {
	a.SessionDependency(name, needs, fn)
	a.startupNames = append(a.startupNames, name)
}

// OnShutdown registers a shutdown handler. It can only need session-scoped
// values, since no request is being processed during shutdown.
func (a *Application) OnShutdown(needs []string, fn func(Values) error) {
	a.checkNotValidated("shutdown handler")
	a.shutdownHandlers = append(a.shutdownHandlers, &shutdownHandler{needs, fn})
}

// Startup validates the application and runs the startup handlers. Only the
// first call has an effect; later calls return the same result.
func (a *Application) Startup() error {
	a.startupOnce.Do(func() {
		a.startupErr = a.startup()
	})
	return a.startupErr
}

func (a *Application) startup() error {
	err := a.Validate()
	if err != nil {
		return err
	}

	res := newResolver(a, nil)
	for _, name := range a.startupNames {
		logg.Info("running startup handler %q", name)
		err := runProtected(func() error {
			_, err := res.resolve(name)
			return err
		})
		if err != nil {
			return fmt.Errorf("startup handler %q failed: %w", name, err)
		}
	}
	return nil
}

// Shutdown runs the shutdown handlers in registration order. Errors are
// logged, but do not stop the remaining handlers. Only the first call has an
// effect.
func (a *Application) Shutdown() {
	a.shutdownOnce.Do(func() {
		res := newResolver(a, nil)
		for idx, h := range a.shutdownHandlers {
			logg.Info("running shutdown handler #%d", idx+1)
			err := runProtected(func() error {
				vals, err := res.values(h.needs)
				if err != nil {
					return err
				}
				return h.fn(vals)
			})
			if err != nil {
				logg.Error("shutdown handler #%d failed: %s", idx+1, err.Error())
			}
		}
	})
}

// runProtected converts panics into errors.
func runProtected(action func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logg.Debug("recovered panic: %v\n%s", r, debug.Stack())
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return action()
}
