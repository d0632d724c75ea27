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

// Package fasthttp serves a restmachine.Application with
// github.com/valyala/fasthttp.
package fasthttp

import (
	"bytes"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/sapcc/restmachine/pkg/headers"
	"github.com/sapcc/restmachine/pkg/restmachine"
)

// NewRequestHandler returns a fasthttp.RequestHandler that processes all
// requests with the given Application.
func NewRequestHandler(app *restmachine.Application) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		resp := app.Execute(NewRequest(ctx))
		WriteResponse(ctx, resp)
	}
}

// NewRequest converts a fasthttp request. The result must not be used after
// the request handler has returned, since it refers to buffers owned by ctx.
func NewRequest(ctx *fasthttp.RequestCtx) *restmachine.Request {
	hdr := headers.New()
	ctx.Request.Header.VisitAll(func(key, value []byte) {
		hdr.Add(string(key), string(value))
	})

	req := &restmachine.Request{
		Method:      restmachine.Method(ctx.Method()),
		Path:        string(ctx.Path()),
		Headers:     hdr,
		QueryParams: restmachine.ParseQuery(string(ctx.QueryArgs().QueryString())),
		TLS:         ctx.IsTLS(),
	}
	if body := ctx.PostBody(); len(body) > 0 {
		req.Body = bytes.NewReader(body)
	}
	if state := ctx.TLSConnectionState(); state != nil && len(state.PeerCertificates) > 0 {
		req.ClientCert = restmachine.NewClientCertificate(state.PeerCertificates[0])
	}
	// RequestCtx implements context.Context
	return req.WithContext(ctx)
}

// WriteResponse writes a response into a fasthttp.RequestCtx.
func WriteResponse(ctx *fasthttp.RequestCtx, resp *restmachine.Response) {
	for _, name := range resp.Headers.Names() {
		switch strings.ToLower(name) {
		case "content-length":
			// computed by fasthttp from the body
			continue
		case "content-type":
			ctx.Response.Header.SetContentType(resp.Headers.Get(name))
			continue
		}
		for _, value := range resp.Headers.GetAll(name) {
			ctx.Response.Header.Add(name, value)
		}
	}
	ctx.SetStatusCode(resp.Status)
	if resp.Stream != nil {
		ctx.SetBodyStream(resp.Stream, -1)
		return
	}
	ctx.SetBody(resp.Body)
}
