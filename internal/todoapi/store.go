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

package todoapi

import (
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	. "github.com/majewsky/gg/option"
)

// Todo is the resource served by this API.
type Todo struct {
	ID        string    `json:"id" yaml:"id"`
	Title     string    `json:"title" yaml:"title"`
	Done      bool      `json:"done" yaml:"done"`
	Owner     string    `json:"owner" yaml:"owner"`
	Version   int       `json:"version" yaml:"version"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// ETag returns the entity tag of the current version of this todo.
func (t Todo) ETag() string {
	return fmt.Sprintf("v%d", t.Version)
}

// TodoInput is the request body of POST and PUT requests.
type TodoInput struct {
	Title string `json:"title"`
	Done  bool   `json:"done"`
}

const maxTitleLength = 200

// Validate implements the restmachine.Validatable interface.
func (i TodoInput) Validate() error {
	switch {
	case strings.TrimSpace(i.Title) == "":
		return errors.New("title may not be empty")
	case utf8.RuneCountInString(i.Title) > maxTitleLength:
		return fmt.Errorf("title may not be longer than %d characters", maxTitleLength)
	default:
		return nil
	}
}

// Store holds the todos in memory. It is shared by all requests.
type Store struct {
	mutex   sync.Mutex
	todos   map[string]Todo
	lastID  int
	timeNow func() time.Time
}

// NewStore creates an empty Store.
func NewStore(timeNow func() time.Time) *Store {
	return &Store{
		todos:   make(map[string]Todo),
		timeNow: timeNow,
	}
}

// List returns all todos, ordered by ID. If done is given, only todos with
// that completion state are returned.
func (s *Store) List(done Option[bool]) []Todo {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	result := make([]Todo, 0, len(s.todos))
	for _, todo := range s.todos {
		if done.IsNoneOr(func(d bool) bool { return todo.Done == d }) {
			result = append(result, todo)
		}
	}
	slices.SortFunc(result, func(a, b Todo) int {
		idA, _ := strconv.Atoi(a.ID)
		idB, _ := strconv.Atoi(b.ID)
		return idA - idB
	})
	return result
}

// Get returns the todo with the given ID.
func (s *Store) Get(id string) (Todo, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	todo, ok := s.todos[id]
	return todo, ok
}

// Insert stores a new todo. ID, Version and UpdatedAt are filled in.
func (s *Store) Insert(todo Todo) Todo {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.lastID++
	todo.ID = strconv.Itoa(s.lastID)
	todo.Version = 1
	todo.UpdatedAt = s.timeNow().UTC()
	s.todos[todo.ID] = todo
	return todo
}

// Update replaces title and completion state of a todo and bumps its version.
func (s *Store) Update(id string, input TodoInput) (Todo, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	todo, ok := s.todos[id]
	if !ok {
		return Todo{}, false
	}
	todo.Title = input.Title
	todo.Done = input.Done
	todo.Version++
	todo.UpdatedAt = s.timeNow().UTC()
	s.todos[id] = todo
	return todo, true
}

// Delete removes a todo.
func (s *Store) Delete(id string) bool {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	_, ok := s.todos[id]
	delete(s.todos, id)
	return ok
}

// Len returns the number of todos.
func (s *Store) Len() int {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return len(s.todos)
}
