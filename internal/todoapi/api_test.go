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

package todoapi_test

import (
	"net/http"
	"testing"
	"time"

	"github.com/sapcc/go-bits/assert"

	"github.com/sapcc/restmachine/internal/test"
)

func jsonHeaders(authorization string) map[string]string {
	hdr := map[string]string{
		"Accept":       "application/json",
		"Content-Type": "application/json",
	}
	if authorization != "" {
		hdr["Authorization"] = authorization
	}
	return hdr
}

func TestTodoLifecycle(t *testing.T) {
	s := test.NewSetup(t, &test.SetupOptions{JWTSecret: "secret"})
	alice := s.Token(t, "alice")
	bob := s.Token(t, "bob")

	// reads are public, writes need a token
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/todos",
		Header:       jsonHeaders(""),
		ExpectStatus: http.StatusOK,
		ExpectBody:   assert.StringData("[]"),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/todos",
		Header:       jsonHeaders(""),
		Body:         assert.JSONObject{"title": "Buy milk"},
		ExpectStatus: http.StatusUnauthorized,
		ExpectBody:   test.ErrorBody("Unauthorized"),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/todos",
		Header:       jsonHeaders("Bearer garbage"),
		Body:         assert.JSONObject{"title": "Buy milk"},
		ExpectStatus: http.StatusUnauthorized,
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/todos",
		Header:       jsonHeaders(alice),
		Body:         assert.JSONObject{"title": "Buy milk"},
		ExpectStatus: http.StatusCreated,
		ExpectHeader: map[string]string{
			"Location": "/todos/1",
			"ETag":     `"v1"`,
		},
		ExpectBody: assert.JSONObject{
			"id":         "1",
			"title":      "Buy milk",
			"done":       false,
			"owner":      "alice",
			"version":    1,
			"updated_at": "1970-01-02T00:00:00Z",
		},
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/todos/1",
		Header:       jsonHeaders(""),
		ExpectStatus: http.StatusOK,
		ExpectHeader: map[string]string{
			"ETag":          `"v1"`,
			"Last-Modified": "Fri, 02 Jan 1970 00:00:00 GMT",
		},
		ExpectBody: assert.JSONObject{
			"id":         "1",
			"title":      "Buy milk",
			"done":       false,
			"owner":      "alice",
			"version":    1,
			"updated_at": "1970-01-02T00:00:00Z",
		},
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/todos/1",
		Header:       map[string]string{"If-None-Match": `"v1"`},
		ExpectStatus: http.StatusNotModified,
		ExpectBody:   assert.StringData(""),
	}.Check(t, s.Handler)

	// only the owner may change a todo
	s.Clock.StepBy(time.Minute)
	update := assert.JSONObject{"title": "Buy oat milk", "done": true}
	hdr := jsonHeaders(bob)
	hdr["If-Match"] = `"v1"`
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/todos/1",
		Header:       hdr,
		Body:         update,
		ExpectStatus: http.StatusForbidden,
		ExpectBody:   test.ErrorBody("Forbidden"),
	}.Check(t, s.Handler)

	hdr = jsonHeaders(alice)
	hdr["If-Match"] = `"v1"`
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/todos/1",
		Header:       hdr,
		Body:         update,
		ExpectStatus: http.StatusOK,
		ExpectHeader: map[string]string{"ETag": `"v2"`},
		ExpectBody: assert.JSONObject{
			"id":         "1",
			"title":      "Buy oat milk",
			"done":       true,
			"owner":      "alice",
			"version":    2,
			"updated_at": "1970-01-02T00:01:00Z",
		},
	}.Check(t, s.Handler)

	// a second update based on the old version is rejected
	assert.HTTPRequest{
		Method:       "PUT",
		Path:         "/todos/1",
		Header:       hdr,
		Body:         assert.JSONObject{"title": "Buy soy milk"},
		ExpectStatus: http.StatusPreconditionFailed,
		ExpectBody:   test.ErrorBody("Precondition Failed"),
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "DELETE",
		Path:         "/todos/1",
		Header:       jsonHeaders(alice),
		ExpectStatus: http.StatusNoContent,
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/todos/1",
		Header:       jsonHeaders(""),
		ExpectStatus: http.StatusNotFound,
		ExpectBody:   test.ErrorBody("Not Found"),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "DELETE",
		Path:         "/todos/1",
		Header:       jsonHeaders(alice),
		ExpectStatus: http.StatusNotFound,
	}.Check(t, s.Handler)
}

func TestExpiredToken(t *testing.T) {
	s := test.NewSetup(t, &test.SetupOptions{JWTSecret: "secret"})
	token := s.Token(t, "alice")
	s.Clock.StepBy(2 * time.Hour)

	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/todos",
		Header:       jsonHeaders(token),
		Body:         assert.JSONObject{"title": "Buy milk"},
		ExpectStatus: http.StatusUnauthorized,
	}.Check(t, s.Handler)
}

func TestTodoInputValidation(t *testing.T) {
	s := test.NewSetup(t, nil)

	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/todos",
		Header:       jsonHeaders(""),
		Body:         assert.JSONObject{"title": "  "},
		ExpectStatus: http.StatusUnprocessableEntity,
		ExpectBody:   test.ErrorBody("title may not be empty"),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/todos",
		Header:       jsonHeaders(""),
		Body:         assert.JSONObject{"title": "Paint fence", "color": "red"},
		ExpectStatus: http.StatusUnprocessableEntity,
		ExpectBody:   test.ErrorBody(`unknown field "color"`),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/todos",
		Header:       jsonHeaders(""),
		Body:         assert.StringData(`{"title":`),
		ExpectStatus: http.StatusBadRequest,
		ExpectBody:   test.ErrorBody("cannot parse request body of type application/json"),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/todos",
		Header:       map[string]string{"Accept": "application/json", "Content-Type": "text/plain"},
		Body:         assert.StringData("Paint fence"),
		ExpectStatus: http.StatusUnsupportedMediaType,
		ExpectBody:   test.ErrorBody("expected request body of type application/json, got text/plain"),
	}.Check(t, s.Handler)

	// errors are rendered as text when the client does not ask for JSON
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/todos/42",
		ExpectStatus: http.StatusNotFound,
		ExpectHeader: map[string]string{"Content-Type": "text/plain"},
		ExpectBody:   assert.StringData("error: Not Found\n"),
	}.Check(t, s.Handler)

	// without a JWT secret, all requests act as the anonymous user
	assert.HTTPRequest{
		Method:       "POST",
		Path:         "/todos",
		Header:       map[string]string{"Accept": "application/json", "Content-Type": "application/yaml"},
		Body:         assert.StringData("title: Paint fence\ndone: true\n"),
		ExpectStatus: http.StatusCreated,
		ExpectBody:   test.BodyContains(`"owner":"anonymous"`),
	}.Check(t, s.Handler)
}

func TestListFormats(t *testing.T) {
	s := test.NewSetup(t, nil)
	for _, title := range []string{"Buy milk", "Walk dog, then cat"} {
		assert.HTTPRequest{
			Method:       "POST",
			Path:         "/todos",
			Header:       jsonHeaders(""),
			Body:         assert.JSONObject{"title": title, "done": title == "Buy milk"},
			ExpectStatus: http.StatusCreated,
		}.Check(t, s.Handler)
	}

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/todos",
		Header:       map[string]string{"Accept": "text/csv"},
		ExpectStatus: http.StatusOK,
		ExpectHeader: map[string]string{"Content-Type": "text/csv"},
		ExpectBody: assert.StringData("id,title,done,owner,version,updated_at\n" +
			"1,Buy milk,true,anonymous,1,\"Fri, 02 Jan 1970 00:00:00 GMT\"\n" +
			"2,\"Walk dog, then cat\",false,anonymous,1,\"Fri, 02 Jan 1970 00:00:00 GMT\"\n"),
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/todos?done=false",
		Header:       jsonHeaders(""),
		ExpectStatus: http.StatusOK,
		ExpectBody: assert.StringData(`[{"id":"2","title":"Walk dog, then cat","done":false,"owner":"anonymous",` +
			`"version":1,"updated_at":"1970-01-02T00:00:00Z"}]`),
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/todos?done=1",
		Header:       map[string]string{"Accept": "application/yaml"},
		ExpectStatus: http.StatusOK,
		ExpectHeader: map[string]string{"Content-Type": "application/yaml"},
		ExpectBody:   test.BodyContains("title: Buy milk\n"),
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/todos?done=maybe",
		Header:       jsonHeaders(""),
		ExpectStatus: http.StatusBadRequest,
		ExpectBody:   test.ErrorBody(`invalid value for done: "maybe"`),
	}.Check(t, s.Handler)

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/todos",
		Header:       map[string]string{"Accept": "image/png"},
		ExpectStatus: http.StatusNotAcceptable,
		ExpectBody:   test.BodyContains(`"available_types"`),
	}.Check(t, s.Handler)
}

func TestRateLimit(t *testing.T) {
	s := test.NewSetup(t, &test.SetupOptions{RateLimit: 0.001, RateBurst: 1})

	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/todos",
		Header:       jsonHeaders(""),
		ExpectStatus: http.StatusOK,
	}.Check(t, s.Handler)
	assert.HTTPRequest{
		Method:       "GET",
		Path:         "/todos",
		Header:       jsonHeaders(""),
		ExpectStatus: http.StatusServiceUnavailable,
		ExpectBody:   assert.JSONObject{"error": "Service Unavailable"},
	}.Check(t, s.Handler)
}
