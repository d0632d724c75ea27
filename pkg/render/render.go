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

// Package render contains the renderers that turn handler return values into
// response bodies.
package render

import (
	"encoding/json"
	"fmt"
	"html"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// Content types of the renderers in this package.
const (
	ContentTypeJSON = "application/json"
	ContentTypeHTML = "text/html"
	ContentTypeText = "text/plain"
	ContentTypeYAML = "application/yaml"
)

// Func renders a handler return value into a response body.
type Func func(value any) ([]byte, error)

// Renderer produces bodies of a single content type.
type Renderer struct {
	ContentType string
	Render      Func
}

// Defaults returns the renderers that every application starts out with, in
// order of preference.
func Defaults() []Renderer {
	return []Renderer{JSON(), HTML(), Text()}
}

// JSON renders values with encoding/json. Raw JSON messages are passed
// through unchanged.
func JSON() Renderer {
	return Renderer{ContentTypeJSON, func(value any) ([]byte, error) {
		switch v := value.(type) {
		case json.RawMessage:
			return v, nil
		default:
			return json.Marshal(value)
		}
	}}
}

// Text renders strings and byte slices as they are, and everything else with
// fmt.Sprint.
func Text() Renderer {
	return Renderer{ContentTypeText, func(value any) ([]byte, error) {
		switch v := value.(type) {
		case nil:
			return nil, nil
		case string:
			return []byte(v), nil
		case []byte:
			return v, nil
		default:
			return []byte(fmt.Sprint(v)), nil
		}
	}}
}

// HTML passes strings through unchanged (they are assumed to be markup
// already). Other values are rendered as a minimal HTML document with nested
// definition lists and unordered lists.
func HTML() Renderer {
	return Renderer{ContentTypeHTML, func(value any) ([]byte, error) {
		switch v := value.(type) {
		case string:
			return []byte(v), nil
		case []byte:
			return v, nil
		}
		generic, err := toGeneric(value)
		if err != nil {
			return nil, err
		}
		var sb strings.Builder
		sb.WriteString("<!DOCTYPE html>\n<html><body>")
		writeHTML(&sb, generic)
		sb.WriteString("</body></html>\n")
		return []byte(sb.String()), nil
	}}
}

// YAML renders values with gopkg.in/yaml.v3. Values are converted through
// their JSON representation first, so that the field names in the output
// follow the `json` struct tags.
func YAML() Renderer {
	return Renderer{ContentTypeYAML, func(value any) ([]byte, error) {
		generic, err := toGeneric(value)
		if err != nil {
			return nil, err
		}
		return yaml.Marshal(generic)
	}}
}

func toGeneric(value any) (any, error) {
	buf, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	var result any
	err = json.Unmarshal(buf, &result)
	return result, err
}

func writeHTML(sb *strings.Builder, value any) {
	switch v := value.(type) {
	case map[string]any:
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		slices.Sort(keys)
		sb.WriteString("<dl>")
		for _, key := range keys {
			sb.WriteString("<dt>")
			sb.WriteString(html.EscapeString(key))
			sb.WriteString("</dt><dd>")
			writeHTML(sb, v[key])
			sb.WriteString("</dd>")
		}
		sb.WriteString("</dl>")
	case []any:
		sb.WriteString("<ul>")
		for _, item := range v {
			sb.WriteString("<li>")
			writeHTML(sb, item)
			sb.WriteString("</li>")
		}
		sb.WriteString("</ul>")
	case nil:
		// nothing
	default:
		sb.WriteString(html.EscapeString(fmt.Sprint(v)))
	}
}
