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

// Package headers contains a case-insensitive, order-preserving multimap for
// HTTP header fields.
package headers

import (
	"net/http"
	"slices"
	"strings"
)

// Headers is a case-insensitive multimap of HTTP header fields. Field names
// are remembered in the casing in which they were first added, and in the
// order in which they were first added.
//
// Reading methods are safe to call on a nil *Headers, which behaves like an
// empty instance. Headers is not safe for concurrent mutation.
type Headers struct {
	order  []string            // lowercase names, in first-added order
	names  map[string]string   // lowercase name -> original casing
	values map[string][]string // lowercase name -> all values
}

// Entry is a single header field as returned by Items().
type Entry struct {
	Name  string
	Value string
}

// New returns an empty Headers instance.
func New() *Headers {
	return &Headers{
		names:  make(map[string]string),
		values: make(map[string][]string),
	}
}

// FromHTTP copies a http.Header into a new Headers instance. Since
// http.Header does not remember insertion order, names are added in sorted
// order to keep the result deterministic.
func FromHTTP(h http.Header) *Headers {
	result := New()
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		for _, value := range h[name] {
			result.Add(name, value)
		}
	}
	return result
}

func (h *Headers) init() {
	if h.names == nil {
		h.names = make(map[string]string)
		h.values = make(map[string][]string)
	}
}

// Add appends a value for the given field name, keeping all existing values.
func (h *Headers) Add(name, value string) {
	h.init()
	key := strings.ToLower(name)
	if _, exists := h.values[key]; !exists {
		h.order = append(h.order, key)
		h.names[key] = name
	}
	h.values[key] = append(h.values[key], value)
}

// Set replaces all values for the given field name with a single value. If
// the field already exists, its original casing and position are kept.
func (h *Headers) Set(name, value string) {
	h.init()
	key := strings.ToLower(name)
	if _, exists := h.values[key]; !exists {
		h.order = append(h.order, key)
		h.names[key] = name
	}
	h.values[key] = []string{value}
}

// Get returns the first value for the given field name, or "" if the field
// does not exist.
func (h *Headers) Get(name string) string {
	if h == nil {
		return ""
	}
	vals := h.values[strings.ToLower(name)]
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// GetAll returns all values for the given field name, in the order in which
// they were added. The returned slice is a copy.
func (h *Headers) GetAll(name string) []string {
	if h == nil {
		return nil
	}
	vals := h.values[strings.ToLower(name)]
	if len(vals) == 0 {
		return nil
	}
	return append([]string(nil), vals...)
}

// Has returns whether the given field name exists.
func (h *Headers) Has(name string) bool {
	if h == nil {
		return false
	}
	_, exists := h.values[strings.ToLower(name)]
	return exists
}

// Del removes all values for the given field name.
func (h *Headers) Del(name string) {
	key := strings.ToLower(name)
	if _, exists := h.values[key]; !exists {
		return
	}
	delete(h.values, key)
	delete(h.names, key)
	for idx, k := range h.order {
		if k == key {
			h.order = append(h.order[:idx], h.order[idx+1:]...)
			break
		}
	}
}

// Len returns the number of distinct field names.
func (h *Headers) Len() int {
	if h == nil {
		return 0
	}
	return len(h.order)
}

// Names returns all field names in their original casing, in the order in
// which they were first added.
func (h *Headers) Names() []string {
	if h == nil {
		return nil
	}
	result := make([]string, len(h.order))
	for idx, key := range h.order {
		result[idx] = h.names[key]
	}
	return result
}

// Items returns one entry per field name holding the first value of that
// field, in the order in which the fields were first added.
func (h *Headers) Items() []Entry {
	if h == nil {
		return nil
	}
	result := make([]Entry, len(h.order))
	for idx, key := range h.order {
		result[idx] = Entry{Name: h.names[key], Value: h.values[key][0]}
	}
	return result
}

// Clone returns a deep copy of this instance. Cloning nil yields an empty
// instance.
func (h *Headers) Clone() *Headers {
	result := New()
	if h == nil {
		return result
	}
	result.order = append([]string(nil), h.order...)
	for key, name := range h.names {
		result.names[key] = name
	}
	for key, vals := range h.values {
		result.values[key] = append([]string(nil), vals...)
	}
	return result
}

// Merge adds all values from `other` into this instance. Fields present in
// `other` replace the fields of the same name in this instance.
func (h *Headers) Merge(other *Headers) {
	if other == nil {
		return
	}
	for _, key := range other.order {
		name := other.names[key]
		h.Del(name)
		for _, value := range other.values[key] {
			h.Add(name, value)
		}
	}
}

// WriteTo copies all fields into the given http.Header, replacing existing
// values of the same name.
func (h *Headers) WriteTo(target http.Header) {
	if h == nil {
		return
	}
	for _, key := range h.order {
		name := http.CanonicalHeaderKey(h.names[key])
		target[name] = append([]string(nil), h.values[key]...)
	}
}
