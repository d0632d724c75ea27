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

package serve

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sapcc/go-bits/respondwith"

	"github.com/sapcc/restmachine/pkg/adapters/nethttp"
	"github.com/sapcc/restmachine/pkg/restmachine"
)

// debugAPI serves endpoints for inspecting the application. It is only
// enabled where debugging is enabled (i.e. usually in dev/QA only).
type debugAPI struct {
	Enabled bool
	App     *restmachine.Application
}

// AddTo implements the httpapi.API interface.
func (d *debugAPI) AddTo(r *mux.Router) {
	if d.Enabled {
		r.Methods("GET").Path("/debug/reflect-headers").HandlerFunc(reflectHeaders)
		r.Methods("GET").Path("/debug/routes").HandlerFunc(d.listRoutes)
	}
}

func reflectHeaders(w http.ResponseWriter, r *http.Request) {
	// echo all request headers into the response body, in the form in which
	// the application sees them
	req := nethttp.NewRequest(r)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	for _, headerName := range req.Headers.Names() {
		for _, val := range req.Headers.GetAll(headerName) {
			fmt.Fprintf(w, "Request %s: %s\n", headerName, val)
		}
	}
}

func (d *debugAPI) listRoutes(w http.ResponseWriter, r *http.Request) {
	if respondwith.ErrorText(w, d.App.Validate()) {
		return
	}
	respondwith.JSON(w, http.StatusOK, map[string]any{"routes": d.App.RouteInfos()})
}
