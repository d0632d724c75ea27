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

package restmachine

import (
	"fmt"
)

// Values holds the resolved values of the names listed in a Needs list.
type Values struct {
	values map[string]any
	res    *resolver
}

// Get returns the value of the given name with type T. It panics if the name
// was not listed in Needs or if its value does not have type T, since both
// are programming errors. A nil value yields the zero value of T.
func Get[T any](v Values, name string) T {
	raw, ok := v.values[name]
	if !ok {
		panic(fmt.Sprintf("restmachine: %q was not listed in Needs", name))
	}
	if raw == nil {
		var zero T
		return zero
	}
	value, ok := raw.(T)
	if !ok {
		var zero T
		panic(fmt.Sprintf("restmachine: %q has type %T, not %T", name, raw, zero))
	}
	return value
}

// Lookup is like Get, but returns false instead of panicking.
func Lookup[T any](v Values, name string) (T, bool) {
	value, ok := v.values[name].(T)
	return value, ok
}

// Has returns whether a value for the given name was resolved.
func (v Values) Has(name string) bool {
	_, ok := v.values[name]
	return ok
}
