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

package test

import (
	"net/http"
	"testing"
	"time"

	"github.com/sapcc/go-bits/logg"
	"github.com/sapcc/go-bits/must"
	"github.com/sapcc/go-bits/osext"
	"golang.org/x/time/rate"

	"github.com/sapcc/restmachine/internal/todoapi"
	"github.com/sapcc/restmachine/pkg/adapters/nethttp"
	"github.com/sapcc/restmachine/pkg/restmachine"
)

// SetupOptions contains optional arguments for test.NewSetup().
type SetupOptions struct {
	JWTSecret string // if empty, authentication is disabled
	RateLimit rate.Limit
	RateBurst int
}

// Setup contains a running todo API for a unit test.
type Setup struct {
	Config  todoapi.Configuration
	Clock   *Clock
	App     *restmachine.Application
	Handler http.Handler
}

// NewSetup builds and starts the todo API for a unit test. It is shut down
// when the test ends.
func NewSetup(t *testing.T, optsPtr *SetupOptions) Setup {
	t.Helper()
	logg.ShowDebug = osext.GetenvBool("RESTMACHINE_DEBUG")

	var opts SetupOptions
	if optsPtr != nil {
		opts = *optsPtr
	}

	s := Setup{
		Config: todoapi.Configuration{
			JWTSecret: []byte(opts.JWTSecret),
			RateLimit: opts.RateLimit,
			RateBurst: opts.RateBurst,
		},
		Clock: &Clock{},
	}
	// tokens are issued with the mock clock, which starts at the epoch
	s.Clock.StepBy(24 * time.Hour)
	s.App = todoapi.NewApplication(s.Config, s.Clock.Now)
	must.SucceedT(t, s.App.Startup())
	t.Cleanup(s.App.Shutdown)
	s.Handler = nethttp.NewHandler(s.App)
	return s
}

// Token issues a bearer token for the given user that is valid for one hour.
func (s Setup) Token(t *testing.T, userName string) string {
	t.Helper()
	token := must.ReturnT(todoapi.IssueToken(s.Config.JWTSecret, userName, s.Clock.Now(), time.Hour))(t)
	return "Bearer " + token
}
