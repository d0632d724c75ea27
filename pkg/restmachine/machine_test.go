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
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/sapcc/go-bits/assert"

	"github.com/sapcc/restmachine/pkg/headers"
	"github.com/sapcc/restmachine/pkg/render"
	"github.com/sapcc/restmachine/pkg/restmachine"
)

func helloApp() *restmachine.Application {
	app := restmachine.New(restmachine.Config{MaxURILength: 30})
	app.Get("/hello", nil, func(restmachine.Values) (any, error) {
		return map[string]string{"message": "hi"}, nil
	})
	return app
}

func TestSimpleRequests(t *testing.T) {
	app := helloApp()

	resp, body := execute(t, app, "GET", "/hello", nil, "")
	assert.Equal(t, resp.Status, http.StatusOK)
	assert.Equal(t, body, `{"message":"hi"}`)
	assert.Equal(t, resp.Headers.Get("Content-Type"), "application/json")
	assert.Equal(t, resp.Headers.Get("Content-Length"), "16")
	assert.Equal(t, resp.Headers.Get("Vary"), "Accept")

	body = expectStatus(t, app, "GET", "/missing", nil, "", http.StatusNotFound)
	assert.Equal(t, body, `{"error":"Not Found"}`)

	// paths that only exist for other methods are not found either
	expectStatus(t, app, "POST", "/hello", nil, "", http.StatusNotFound)

	body = expectStatus(t, app, "BREW", "/hello", nil, "", http.StatusNotImplemented)
	assert.Equal(t, body, `{"error":"Not Implemented"}`)
	expectStatus(t, app, "HEAD", "/hello", nil, "", http.StatusNotImplemented)

	expectStatus(t, app, "GET", "/hello/"+strings.Repeat("a", 30), nil, "", http.StatusRequestURITooLong)
}

func TestDefaultCallbacks(t *testing.T) {
	testCases := []struct {
		Register func(*restmachine.Application, []string, restmachine.CallbackFunc)
		Outcome  bool
		Status   int
	}{
		{(*restmachine.Application).DefaultServiceAvailable, false, http.StatusServiceUnavailable},
		{(*restmachine.Application).DefaultKnownMethod, false, http.StatusNotImplemented},
		{(*restmachine.Application).DefaultURITooLong, true, http.StatusRequestURITooLong},
		{(*restmachine.Application).DefaultMethodAllowed, false, http.StatusMethodNotAllowed},
		{(*restmachine.Application).DefaultMalformedRequest, true, http.StatusBadRequest},
		{(*restmachine.Application).DefaultContentHeadersValid, false, http.StatusBadRequest},
		{(*restmachine.Application).DefaultAuthorized, false, http.StatusUnauthorized},
		{(*restmachine.Application).DefaultForbidden, true, http.StatusForbidden},
	}

	for _, tc := range testCases {
		// the failing outcome ends processing with the respective status
		app := helloApp()
		tc.Register(app, nil, func(restmachine.Values) (bool, error) { return tc.Outcome, nil })
		body := expectStatus(t, app, "GET", "/hello", nil, "", tc.Status)
		assert.Equal(t, body, fmt.Sprintf(`{"error":%q}`, http.StatusText(tc.Status)))

		// the other outcome lets the request through
		app = helloApp()
		tc.Register(app, nil, func(restmachine.Values) (bool, error) { return !tc.Outcome, nil })
		expectStatus(t, app, "GET", "/hello", nil, "", http.StatusOK)

		// errors decide the status on their own
		app = helloApp()
		tc.Register(app, nil, func(restmachine.Values) (bool, error) {
			return false, restmachine.ErrorWithStatus(http.StatusConflict, "")
		})
		expectStatus(t, app, "GET", "/hello", nil, "", http.StatusConflict)
	}
}

func TestCallbacksBeforeRouting(t *testing.T) {
	app := helloApp()
	app.DefaultServiceAvailable([]string{"request"}, func(v restmachine.Values) (bool, error) {
		return restmachine.Get[*restmachine.Request](v, "request").Header("X-Maintenance") == "", nil
	})
	// service availability is checked even for unknown paths
	expectStatus(t, app, "GET", "/missing", map[string]string{"X-Maintenance": "1"}, "", http.StatusServiceUnavailable)
	expectStatus(t, app, "GET", "/missing", nil, "", http.StatusNotFound)
}

func TestAuthorizedAndForbiddenDependencies(t *testing.T) {
	type permission struct{ Level string }

	app := restmachine.New(restmachine.Config{})
	app.Authorized("authenticated", []string{"headers"}, func(v restmachine.Values) (any, error) {
		return restmachine.Get[*headers.Headers](v, "headers").Get("Authorization") != "", nil
	})
	app.Forbidden("permission", []string{"headers"}, func(v restmachine.Values) (any, error) {
		switch level := restmachine.Get[*headers.Headers](v, "headers").Get("Authorization"); level {
		case "admin", "reader":
			return &permission{level}, nil
		default:
			return nil, nil
		}
	})
	app.Get("/secret", []string{"authenticated", "permission"}, func(v restmachine.Values) (any, error) {
		return "granted to " + restmachine.Get[*permission](v, "permission").Level, nil
	})

	expectStatus(t, app, "GET", "/secret", acceptText, "", http.StatusUnauthorized)
	body := expectStatus(t, app, "GET", "/secret", map[string]string{"Authorization": "guest"}, "", http.StatusForbidden)
	assert.Equal(t, body, `{"error":"Forbidden"}`)
	body = expectStatus(t, app, "GET", "/secret", map[string]string{"Authorization": "reader", "Accept": "text/plain"}, "", http.StatusOK)
	assert.Equal(t, body, "granted to reader")

	// the default callback is used for routes without a Forbidden dependency
	app = helloApp()
	app.DefaultForbidden(nil, func(restmachine.Values) (bool, error) { return true, nil })
	body = expectStatus(t, app, "GET", "/hello", nil, "", http.StatusForbidden)
	assert.Equal(t, strings.Contains(body, "Forbidden"), true)
}

func TestResourceExists(t *testing.T) {
	things := map[string]string{"1": "one"}
	app := restmachine.New(restmachine.Config{})
	app.ResourceExists("thing", []string{"thing_id"}, func(v restmachine.Values) (any, error) {
		thing, exists := things[restmachine.Get[string](v, "thing_id")]
		if !exists {
			return nil, nil
		}
		return thing, nil
	})
	app.Get("/things/{thing_id}", []string{"thing"}, func(v restmachine.Values) (any, error) {
		return restmachine.Get[string](v, "thing"), nil
	})

	body := expectStatus(t, app, "GET", "/things/1", acceptText, "", http.StatusOK)
	assert.Equal(t, body, "one")
	expectStatus(t, app, "GET", "/things/2", acceptText, "", http.StatusNotFound)

	infos := app.RouteInfos()
	assert.DeepEqual(t, "RouteInfos", infos, []restmachine.RouteInfo{{
		Method:       "GET",
		Path:         "/things/{thing_id}",
		Needs:        []string{"thing"},
		Callbacks:    map[string]string{"resource_exists": "thing"},
		ContentTypes: []string{"application/json", "text/html", "text/plain"},
	}})
}

func TestHandlerResults(t *testing.T) {
	app := restmachine.New(restmachine.Config{})
	app.Delete("/nothing", nil, func(restmachine.Values) (any, error) {
		return nil, nil
	})
	app.Post("/things", nil, func(restmachine.Values) (any, error) {
		return restmachine.Result{
			Status:  http.StatusCreated,
			Value:   map[string]int{"id": 1},
			Headers: map[string]string{"Location": "/things/1"},
		}, nil
	})
	app.Get("/custom", nil, func(restmachine.Values) (any, error) {
		return restmachine.NewResponse(http.StatusAccepted, "queued", restmachine.ResponseOptions{
			ContentType: "text/plain",
		})
	})
	app.Get("/failing", nil, func(restmachine.Values) (any, error) {
		return nil, restmachine.ErrorWithStatus(http.StatusConflict, "version %d is outdated", 3)
	})
	app.Get("/broken", nil, func(restmachine.Values) (any, error) {
		return nil, errors.New("database is on fire")
	})

	resp, body := execute(t, app, "DELETE", "/nothing", nil, "")
	assert.Equal(t, resp.Status, http.StatusNoContent)
	assert.Equal(t, body, "")
	assert.Equal(t, resp.Headers.Has("Content-Length"), false)

	resp, body = execute(t, app, "POST", "/things", nil, "")
	assert.Equal(t, resp.Status, http.StatusCreated)
	assert.Equal(t, body, `{"id":1}`)
	assert.Equal(t, resp.Headers.Get("Location"), "/things/1")

	resp, body = execute(t, app, "GET", "/custom", nil, "")
	assert.Equal(t, resp.Status, http.StatusAccepted)
	assert.Equal(t, body, "queued")
	assert.Equal(t, resp.Headers.Get("Content-Type"), "text/plain")

	// messages of client errors are shown, those of server errors are not
	body = expectStatus(t, app, "GET", "/failing", nil, "", http.StatusConflict)
	assert.Equal(t, body, `{"details":"Conflict: version 3 is outdated","error":"Conflict"}`)
	body = expectStatus(t, app, "GET", "/broken", nil, "", http.StatusInternalServerError)
	assert.Equal(t, body, `{"error":"Internal Server Error"}`)
}

func TestPanicRecovery(t *testing.T) {
	app := restmachine.New(restmachine.Config{})
	app.Dependency("exploding", nil, func(restmachine.Values) (any, error) {
		panic("boom")
	})
	app.Get("/handler", nil, func(restmachine.Values) (any, error) {
		panic("boom")
	})
	app.Get("/dependency", []string{"exploding"}, func(restmachine.Values) (any, error) {
		return "unreachable", nil
	})

	for _, path := range []string{"/handler", "/dependency"} {
		body := expectStatus(t, app, "GET", path, nil, "", http.StatusInternalServerError)
		assert.Equal(t, body, `{"error":"Internal Server Error"}`)
	}
	// the application keeps working
	expectStatus(t, app, "GET", "/missing", nil, "", http.StatusNotFound)
}

func TestContentNegotiation(t *testing.T) {
	app := helloApp()
	app.Get("/report", nil, func(restmachine.Values) (any, error) {
		return []string{"a", "b"}, nil
	}).Provides("text/csv", func(value any) ([]byte, error) {
		return []byte(strings.Join(value.([]string), "\n")), nil
	})

	resp, body := execute(t, app, "GET", "/hello", map[string]string{"Accept": "application/xml"}, "")
	assert.Equal(t, resp.Status, http.StatusNotAcceptable)
	assert.Equal(t, resp.Headers.Get("Content-Type"), "application/json")
	var data struct {
		Error          string   `json:"error"`
		AvailableTypes []string `json:"available_types"`
	}
	err := json.Unmarshal([]byte(body), &data)
	if err != nil {
		t.Fatal(err.Error())
	}
	assert.Equal(t, data.Error, "Not Acceptable")
	assert.DeepEqual(t, "available_types", data.AvailableTypes, []string{"application/json", "text/html", "text/plain"})

	resp, body = execute(t, app, "GET", "/hello", map[string]string{"Accept": "text/html"}, "")
	assert.Equal(t, resp.Headers.Get("Content-Type"), "text/html")
	assert.Equal(t, body, "<!DOCTYPE html>\n<html><body><dl><dt>message</dt><dd>hi</dd></dl></body></html>\n")

	// route-specific renderers are preferred
	resp, body = execute(t, app, "GET", "/report", nil, "")
	assert.Equal(t, resp.Headers.Get("Content-Type"), "text/csv")
	assert.Equal(t, body, "a\nb")
	resp, body = execute(t, app, "GET", "/report", map[string]string{"Accept": "application/json"}, "")
	assert.Equal(t, resp.Headers.Get("Content-Type"), "application/json")
	assert.Equal(t, body, `["a","b"]`)

	// Vary includes Authorization for authenticated requests
	resp, _ = execute(t, app, "GET", "/hello", map[string]string{"Authorization": "Bearer foo"}, "")
	assert.Equal(t, resp.Headers.Get("Vary"), "Authorization, Accept")

	// with a single renderer, the response does not vary by Accept
	app = restmachine.New(restmachine.Config{Renderers: []render.Renderer{render.JSON()}})
	app.Get("/hello", nil, func(restmachine.Values) (any, error) { return "hi", nil })
	resp, _ = execute(t, app, "GET", "/hello", nil, "")
	assert.Equal(t, resp.Headers.Has("Vary"), false)
}

func TestConditionalRequests(t *testing.T) {
	version := 1
	lastModified := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	app := restmachine.New(restmachine.Config{})
	app.GenerateETag("doc_etag", nil, func(restmachine.Values) (any, error) {
		return fmt.Sprintf("v%d", version), nil
	})
	app.LastModified("doc_modified", nil, func(restmachine.Values) (any, error) {
		return lastModified, nil
	})
	app.Get("/doc", nil, func(restmachine.Values) (any, error) {
		return map[string]int{"version": version}, nil
	}).ETag("doc_etag").LastModified("doc_modified")
	app.Put("/doc", nil, func(restmachine.Values) (any, error) {
		version++
		lastModified = lastModified.Add(time.Hour)
		return restmachine.Result{
			Value:   map[string]int{"version": version},
			Headers: map[string]string{"ETag": fmt.Sprintf(`"v%d"`, version)},
		}, nil
	}).ETag("doc_etag").LastModified("doc_modified")

	resp, body := execute(t, app, "GET", "/doc", nil, "")
	assert.Equal(t, resp.Status, http.StatusOK)
	assert.Equal(t, body, `{"version":1}`)
	assert.Equal(t, resp.Headers.Get("ETag"), `"v1"`)
	assert.Equal(t, resp.Headers.Get("Last-Modified"), "Mon, 01 Jan 2024 00:00:00 GMT")

	resp, body = execute(t, app, "GET", "/doc", map[string]string{"If-None-Match": `"v1"`}, "")
	assert.Equal(t, resp.Status, http.StatusNotModified)
	assert.Equal(t, body, "")
	assert.Equal(t, resp.Headers.Get("ETag"), `"v1"`)
	assert.Equal(t, resp.Headers.Has("Content-Length"), false)

	resp, _ = execute(t, app, "GET", "/doc", map[string]string{"If-Modified-Since": "Mon, 01 Jan 2024 00:00:00 GMT"}, "")
	assert.Equal(t, resp.Status, http.StatusNotModified)

	resp, body = execute(t, app, "PUT", "/doc", map[string]string{"If-Match": `"v1"`}, "")
	assert.Equal(t, resp.Status, http.StatusOK)
	assert.Equal(t, body, `{"version":2}`)
	assert.Equal(t, resp.Headers.Get("ETag"), `"v2"`)

	// a stale entity tag is rejected
	body = expectStatus(t, app, "PUT", "/doc", map[string]string{"If-Match": `"v1"`}, "", http.StatusPreconditionFailed)
	assert.Equal(t, body, `{"error":"Precondition Failed"}`)
	expectStatus(t, app, "PUT", "/doc", map[string]string{"If-Unmodified-Since": "Mon, 01 Jan 2024 00:00:00 GMT"}, "", http.StatusPreconditionFailed)

	resp, _ = execute(t, app, "GET", "/doc", map[string]string{"If-None-Match": `"v1"`}, "")
	assert.Equal(t, resp.Status, http.StatusOK)
	assert.Equal(t, resp.Headers.Get("ETag"), `"v2"`)
	assert.Equal(t, resp.Headers.Get("Last-Modified"), "Mon, 01 Jan 2024 01:00:00 GMT")
}

func TestRepeatedListHeaders(t *testing.T) {
	app := restmachine.New(restmachine.Config{})
	app.GenerateETag("doc_etag", nil, func(restmachine.Values) (any, error) {
		return "v1", nil
	})
	app.Get("/doc", nil, func(restmachine.Values) (any, error) {
		return "doc", nil
	}).ETag("doc_etag")
	app.Put("/doc", nil, func(restmachine.Values) (any, error) {
		return "updated", nil
	}).ETag("doc_etag")

	// Accept split across two field lines
	resp, body := executeWithLines(t, app, "GET", "/doc", [][2]string{
		{"Accept", "application/xml"},
		{"Accept", "text/plain"},
	})
	assert.Equal(t, resp.Status, http.StatusOK)
	assert.Equal(t, resp.Headers.Get("Content-Type"), "text/plain")
	assert.Equal(t, body, "doc")

	// the same applies to error responses
	resp, _ = executeWithLines(t, app, "GET", "/missing", [][2]string{
		{"Accept", "application/xml"},
		{"Accept", "text/html"},
	})
	assert.Equal(t, resp.Status, http.StatusNotFound)
	assert.Equal(t, resp.Headers.Get("Content-Type"), "text/html")

	// entity tag lists split across two field lines
	resp, _ = executeWithLines(t, app, "GET", "/doc", [][2]string{
		{"If-None-Match", `"v0"`},
		{"If-None-Match", `"v1"`},
	})
	assert.Equal(t, resp.Status, http.StatusNotModified)
	resp, _ = executeWithLines(t, app, "PUT", "/doc", [][2]string{
		{"If-Match", `"v0"`},
		{"If-Match", `"v1"`},
	})
	assert.Equal(t, resp.Status, http.StatusOK)
	resp, _ = executeWithLines(t, app, "PUT", "/doc", [][2]string{
		{"If-Match", `"v0"`},
		{"If-Match", `"v2"`},
	})
	assert.Equal(t, resp.Status, http.StatusPreconditionFailed)
}

func TestNoValidatorsAfterDelete(t *testing.T) {
	lastModified := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	app := restmachine.New(restmachine.Config{})
	app.GenerateETag("doc_etag", nil, func(restmachine.Values) (any, error) {
		return "v1", nil
	})
	app.LastModified("doc_modified", nil, func(restmachine.Values) (any, error) {
		return lastModified, nil
	})
	app.Delete("/doc", nil, func(restmachine.Values) (any, error) {
		return nil, nil
	}).ETag("doc_etag").LastModified("doc_modified")

	resp, _ := execute(t, app, "DELETE", "/doc", map[string]string{"If-Match": `"v1"`}, "")
	assert.Equal(t, resp.Status, http.StatusNoContent)
	assert.Equal(t, resp.Headers.Has("ETag"), false)
	assert.Equal(t, resp.Headers.Has("Last-Modified"), false)

	// preconditions are still evaluated against the current validators
	expectStatus(t, app, "DELETE", "/doc", map[string]string{"If-Match": `"v0"`}, "", http.StatusPreconditionFailed)
}

func TestInvalidValidators(t *testing.T) {
	app := restmachine.New(restmachine.Config{})
	app.GenerateETag("bad_etag", nil, func(restmachine.Values) (any, error) {
		return 42, nil
	})
	app.Get("/doc", nil, func(restmachine.Values) (any, error) {
		return "doc", nil
	}).ETag("bad_etag")

	expectStatus(t, app, "GET", "/doc", nil, "", http.StatusInternalServerError)
}
