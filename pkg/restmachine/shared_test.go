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

package restmachine_test

import (
	"strings"
	"testing"

	"github.com/sapcc/restmachine/pkg/headers"
	"github.com/sapcc/restmachine/pkg/restmachine"
)

// newRequest builds a request for Application.Execute(). The path may
// contain a query string.
func newRequest(method, path string, hdr map[string]string, body string) *restmachine.Request {
	h := headers.New()
	for name, value := range hdr {
		h.Set(name, value)
	}
	path, query, _ := strings.Cut(path, "?")
	req := &restmachine.Request{
		Method:      restmachine.Method(method),
		Path:        path,
		Headers:     h,
		QueryParams: restmachine.ParseQuery(query),
	}
	if body != "" {
		req.Body = strings.NewReader(body)
	}
	return req
}

// execute runs a request and returns the response with its body.
func execute(t *testing.T, app *restmachine.Application, method, path string, hdr map[string]string, body string) (*restmachine.Response, string) {
	t.Helper()
	resp := app.Execute(newRequest(method, path, hdr, body))
	buf, err := resp.ReadBody()
	if err != nil {
		t.Fatalf("%s %s: cannot read response body: %s", method, path, err.Error())
	}
	return resp, string(buf)
}

// executeWithLines is like execute, but sends each header value on its own
// field line, as clients may do for list-valued headers.
func executeWithLines(t *testing.T, app *restmachine.Application, method, path string, lines [][2]string) (*restmachine.Response, string) {
	t.Helper()
	req := newRequest(method, path, nil, "")
	for _, line := range lines {
		req.Headers.Add(line[0], line[1])
	}
	resp := app.Execute(req)
	buf, err := resp.ReadBody()
	if err != nil {
		t.Fatalf("%s %s: cannot read response body: %s", method, path, err.Error())
	}
	return resp, string(buf)
}

// expectStatus checks the status of a response and returns its body.
func expectStatus(t *testing.T, app *restmachine.Application, method, path string, hdr map[string]string, body string, expected int) string {
	t.Helper()
	resp, respBody := execute(t, app, method, path, hdr, body)
	if resp.Status != expected {
		t.Errorf("%s %s: expected status %d, got %d", method, path, expected, resp.Status)
		t.Logf("\tresponse body = %q", respBody)
	}
	return respBody
}

var acceptText = map[string]string{"Accept": "text/plain"}
