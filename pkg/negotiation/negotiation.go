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

// Package negotiation selects a renderer for a request based on its Accept
// header.
package negotiation

import (
	"strconv"
	"strings"

	"github.com/sapcc/restmachine/pkg/render"
)

// DefaultAccept is assumed when a request does not have an Accept header.
const DefaultAccept = "*/*"

// MediaRange is one element of an Accept header.
type MediaRange struct {
	Type    string // e.g. "text" or "*"
	Subtype string // e.g. "html" or "*"
	Quality float64
}

// ParseAccept parses an Accept header into its media ranges, in the order in
// which they appear. Elements that cannot be parsed are skipped. An empty
// header is treated like DefaultAccept.
func ParseAccept(header string) []MediaRange {
	if strings.TrimSpace(header) == "" {
		header = DefaultAccept
	}

	var result []MediaRange
	for _, element := range strings.Split(header, ",") {
		params := strings.Split(element, ";")
		mediaType := strings.ToLower(strings.TrimSpace(params[0]))
		typ, subtype, ok := strings.Cut(mediaType, "/")
		if !ok || typ == "" || subtype == "" {
			// some clients send a bare "*"
			if mediaType != "*" {
				continue
			}
			typ, subtype = "*", "*"
		}

		quality := 1.0
		for _, param := range params[1:] {
			key, value, _ := strings.Cut(strings.TrimSpace(param), "=")
			if strings.ToLower(strings.TrimSpace(key)) != "q" {
				continue
			}
			q, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if err == nil && q >= 0 && q <= 1 {
				quality = q
			}
		}
		result = append(result, MediaRange{typ, subtype, quality})
	}
	return result
}

// specificity returns how specifically this range matches the given content
// type (3 = exact, 2 = type wildcard, 1 = full wildcard), or 0 if it does not
// match at all.
func (m MediaRange) specificity(contentType string) int {
	typ, subtype, _ := strings.Cut(BaseType(contentType), "/")
	switch {
	case m.Type == "*" && m.Subtype == "*":
		return 1
	case m.Type == typ && m.Subtype == "*":
		return 2
	case m.Type == typ && m.Subtype == subtype:
		return 3
	default:
		return 0
	}
}

// Quality returns the quality value that the given Accept ranges assign to a
// content type. The most specific matching range wins. Content types not
// matched by any range have quality 0.
func Quality(ranges []MediaRange, contentType string) float64 {
	bestSpecificity := 0
	quality := 0.0
	for _, m := range ranges {
		s := m.specificity(contentType)
		if s > bestSpecificity {
			bestSpecificity = s
			quality = m.Quality
		}
	}
	return quality
}

// Select picks the renderer for a request. Candidates are the route-specific
// overrides followed by the global renderers whose content type is not
// overridden. The candidate with the highest quality wins; on a tie, the
// earlier candidate wins, so overrides are preferred over global renderers,
// and global renderers are preferred in the order in which they were
// configured. If nothing is acceptable, ok is false.
func Select(accept string, overrides, globals []render.Renderer) (selected render.Renderer, ok bool) {
	ranges := ParseAccept(accept)
	bestQuality := 0.0
	for _, r := range Candidates(overrides, globals) {
		q := Quality(ranges, r.ContentType)
		if q > bestQuality {
			bestQuality = q
			selected = r
			ok = true
		}
	}
	return selected, ok
}

// Candidates returns the union of overrides and globals, where overrides
// replace global renderers for the same content type.
func Candidates(overrides, globals []render.Renderer) []render.Renderer {
	result := make([]render.Renderer, 0, len(overrides)+len(globals))
	seen := make(map[string]bool, len(overrides)+len(globals))
	for _, list := range [][]render.Renderer{overrides, globals} {
		for _, r := range list {
			ct := BaseType(r.ContentType)
			if seen[ct] {
				continue
			}
			seen[ct] = true
			result = append(result, r)
		}
	}
	return result
}

// AvailableTypes lists the content types of Candidates(overrides, globals).
func AvailableTypes(overrides, globals []render.Renderer) []string {
	candidates := Candidates(overrides, globals)
	result := make([]string, len(candidates))
	for idx, r := range candidates {
		result[idx] = r.ContentType
	}
	return result
}

// BaseType strips parameters (like "; charset=utf-8") from a media type and
// lowercases it.
func BaseType(mediaType string) string {
	base, _, _ := strings.Cut(mediaType, ";")
	return strings.ToLower(strings.TrimSpace(base))
}
