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

// Package todoapi is an example application for package restmachine: a
// small todo list with authentication, rate limiting and conditional
// requests.
package todoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	. "github.com/majewsky/gg/option"
	"github.com/sapcc/go-bits/logg"
	"golang.org/x/time/rate"
	"gopkg.in/yaml.v3"

	"github.com/sapcc/restmachine/pkg/conditional"
	"github.com/sapcc/restmachine/pkg/render"
	"github.com/sapcc/restmachine/pkg/restmachine"
)

// NewApplication builds the todo API. The application still needs to be
// started with Startup().
func NewApplication(cfg Configuration, timeNow func() time.Time) *restmachine.Application {
	app := restmachine.New(restmachine.Config{})
	app.AddRenderer(render.YAML())
	app.Accepts(render.ContentTypeYAML, "yaml_body", []string{"raw_body"}, func(v restmachine.Values) (any, error) {
		var data any
		err := yaml.Unmarshal(restmachine.Get[[]byte](v, "raw_body"), &data)
		return data, err
	})

	// shared state
	app.OnStartup("store", nil, func(restmachine.Values) (any, error) {
		return NewStore(timeNow), nil
	})
	app.OnShutdown([]string{"store"}, func(v restmachine.Values) error {
		logg.Info("shutting down with %d todos in store", restmachine.Get[*Store](v, "store").Len())
		return nil
	})
	app.SessionDependency("limiter", nil, func(restmachine.Values) (any, error) {
		return cfg.newLimiter(), nil
	})
	app.DefaultServiceAvailable([]string{"limiter"}, func(v restmachine.Values) (bool, error) {
		return restmachine.Get[*rate.Limiter](v, "limiter").Allow(), nil
	})

	// authentication: reads are public, writes need a valid token
	app.Dependency("current_user", []string{"request"}, func(v restmachine.Values) (any, error) {
		req := restmachine.Get[*restmachine.Request](v, "request")
		user, err := cfg.authenticate(req.Header("Authorization"), timeNow)
		if err != nil {
			logg.Debug("rejecting token for %s %s: %s", req.Method, req.Path, err.Error())
			return nil, nil
		}
		if user != nil {
			req.SetExtension("user", user.Name)
		}
		return user, nil
	})
	app.DefaultAuthorized([]string{"request", "current_user"}, func(v restmachine.Values) (bool, error) {
		if restmachine.Get[*restmachine.Request](v, "request").Method == restmachine.MethodGet {
			return true, nil
		}
		return restmachine.Get[*User](v, "current_user") != nil, nil
	})

	// resources
	app.ResourceExists("todo", []string{"store", "todo_id"}, func(v restmachine.Values) (any, error) {
		todo, exists := restmachine.Get[*Store](v, "store").Get(restmachine.Get[string](v, "todo_id"))
		if !exists {
			return nil, nil
		}
		return todo, nil
	})
	app.Forbidden("write_access", []string{"todo", "current_user"}, func(v restmachine.Values) (any, error) {
		todo, exists := restmachine.Lookup[Todo](v, "todo")
		if !exists {
			// the resource_exists check reports this as 404
			return true, nil
		}
		user := restmachine.Get[*User](v, "current_user")
		if user == nil || (user != anonymousUser && user.Name != todo.Owner) {
			return nil, nil
		}
		return true, nil
	})
	app.GenerateETag("todo_etag", []string{"todo"}, func(v restmachine.Values) (any, error) {
		return restmachine.Get[Todo](v, "todo").ETag(), nil
	})
	app.LastModified("todo_modified", []string{"todo"}, func(v restmachine.Values) (any, error) {
		return restmachine.Get[Todo](v, "todo").UpdatedAt, nil
	})
	restmachine.Validates(app, "todo_input", []string{"json_body"}, decodeTodoInput)
	app.ResourceFromRequest("todo_draft", []string{"todo_input", "current_user"}, func(v restmachine.Values) (any, error) {
		input := restmachine.Get[TodoInput](v, "todo_input")
		return Todo{
			Title: input.Title,
			Done:  input.Done,
			Owner: restmachine.Get[*User](v, "current_user").Name,
		}, nil
	})

	// errors
	app.HandlesError(
		[]int{http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusNotFound,
			http.StatusPreconditionFailed, http.StatusUnsupportedMediaType, http.StatusUnprocessableEntity},
		[]string{"exception", "request_id"},
		func(v restmachine.Values) (any, error) {
			return map[string]any{
				"error":      restmachine.Get[error](v, "exception").Error(),
				"request_id": restmachine.Get[string](v, "request_id"),
			}, nil
		},
	)
	app.ErrorProvides(render.ContentTypeText, nil, []string{"exception"}, func(v restmachine.Values) (any, error) {
		return "error: " + restmachine.Get[error](v, "exception").Error() + "\n", nil
	})

	todos := app.Group("/todos")
	todos.Get("", []string{"store", "query_params"}, listTodos).
		Provides(contentTypeCSV, renderCSV)
	todos.Post("", []string{"store", "todo_draft"}, createTodo)
	todos.Get("/{todo_id}", []string{"todo"}, showTodo).
		ETag("todo_etag").LastModified("todo_modified")
	todos.Put("/{todo_id}", []string{"store", "todo", "write_access", "todo_input"}, updateTodo).
		ETag("todo_etag").LastModified("todo_modified")
	todos.Delete("/{todo_id}", []string{"store", "todo", "write_access"}, deleteTodo).
		ETag("todo_etag").LastModified("todo_modified")

	return app
}

// decodeTodoInput converts the parsed JSON or YAML body into a TodoInput.
func decodeTodoInput(v restmachine.Values) (TodoInput, error) {
	var input TodoInput
	buf, err := json.Marshal(restmachine.Get[any](v, "json_body"))
	if err != nil {
		return input, err
	}
	dec := json.NewDecoder(bytes.NewReader(buf))
	dec.DisallowUnknownFields()
	err = dec.Decode(&input)
	return input, err
}

func listTodos(v restmachine.Values) (any, error) {
	done := None[bool]()
	if str, exists := restmachine.Get[map[string]string](v, "query_params")["done"]; exists {
		value, err := strconv.ParseBool(str)
		if err != nil {
			return nil, restmachine.ErrorWithStatus(http.StatusBadRequest, "invalid value for done: %q", str)
		}
		done = Some(value)
	}
	return restmachine.Get[*Store](v, "store").List(done), nil
}

func createTodo(v restmachine.Values) (any, error) {
	todo := restmachine.Get[*Store](v, "store").Insert(restmachine.Get[Todo](v, "todo_draft"))
	return restmachine.Result{
		Status: http.StatusCreated,
		Value:  todo,
		Headers: map[string]string{
			"Location": "/todos/" + todo.ID,
			"ETag":     conditional.QuoteETag(todo.ETag()),
		},
	}, nil
}

func showTodo(v restmachine.Values) (any, error) {
	return restmachine.Get[Todo](v, "todo"), nil
}

func updateTodo(v restmachine.Values) (any, error) {
	id := restmachine.Get[Todo](v, "todo").ID
	todo, exists := restmachine.Get[*Store](v, "store").Update(id, restmachine.Get[TodoInput](v, "todo_input"))
	if !exists {
		// deleted concurrently
		return nil, restmachine.ErrorWithStatus(http.StatusNotFound, "todo %s was deleted", id)
	}
	return restmachine.Result{
		Value: todo,
		Headers: map[string]string{
			"ETag":          conditional.QuoteETag(todo.ETag()),
			"Last-Modified": conditional.FormatHTTPDate(todo.UpdatedAt),
		},
	}, nil
}

func deleteTodo(v restmachine.Values) (any, error) {
	id := restmachine.Get[Todo](v, "todo").ID
	restmachine.Get[*Store](v, "store").Delete(id)
	return nil, nil
}
