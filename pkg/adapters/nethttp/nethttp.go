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

// Package nethttp serves a restmachine.Application with net/http.
package nethttp

import (
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sapcc/go-bits/httpapi"

	"github.com/sapcc/restmachine/pkg/headers"
	"github.com/sapcc/restmachine/pkg/restmachine"
)

// Handler is a http.Handler that processes all requests with an
// Application. It also implements httpapi.API, so that it can be combined
// with other APIs by httpapi.Compose().
type Handler struct {
	App *restmachine.Application
}

// NewHandler builds a Handler.
func NewHandler(app *restmachine.Application) *Handler {
	return &Handler{App: app}
}

// AddTo implements the httpapi.API interface. Each route of the application
// is registered individually, so that request metrics are labeled with the
// route's path template. Everything else that reaches this API is also
// processed by the application, which then reports 404 or 501 as
// appropriate. For that reason, this API must be given last to Compose().
func (h *Handler) AddTo(r *mux.Router) {
	for _, info := range h.App.RouteInfos() {
		r.Methods(info.Method).Path(info.Path).Handler(h.endpoint(info.Path))
	}
	r.PathPrefix("/").Handler(h.endpoint("unknown"))
}

func (h *Handler) endpoint(name string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpapi.IdentifyEndpoint(r, name)
		h.ServeHTTP(w, r)
	})
}

// ServeHTTP implements the http.Handler interface.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resp := h.App.Execute(NewRequest(r))
	WriteResponse(w, resp)
}

// NewRequest converts a net/http request. The request body is passed
// through without reading it.
func NewRequest(r *http.Request) *restmachine.Request {
	req := &restmachine.Request{
		Method:      restmachine.Method(r.Method),
		Path:        r.URL.Path,
		Headers:     headers.FromHTTP(r.Header),
		QueryParams: restmachine.ParseQuery(r.URL.RawQuery),
		TLS:         r.TLS != nil,
	}
	if r.Body != nil && r.Body != http.NoBody {
		req.Body = r.Body
	}
	// net/http moves the Host header into r.Host
	if r.Host != "" && !req.Headers.Has("Host") {
		req.Headers.Set("Host", r.Host)
	}
	if r.TLS != nil && len(r.TLS.PeerCertificates) > 0 {
		req.ClientCert = restmachine.NewClientCertificate(r.TLS.PeerCertificates[0])
	}
	return req.WithContext(r.Context())
}

// WriteResponse writes a response to a http.ResponseWriter. Errors while
// writing the body can only be caused by the client going away, so they are
// ignored.
func WriteResponse(w http.ResponseWriter, resp *restmachine.Response) {
	resp.Headers.WriteTo(w.Header())
	w.WriteHeader(resp.Status)
	if resp.Stream != nil {
		_, _ = io.Copy(w, resp.Stream)
		if closer, ok := resp.Stream.(io.Closer); ok {
			closer.Close()
		}
		return
	}
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}
