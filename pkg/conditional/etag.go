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

// Package conditional evaluates conditional request headers (If-Match,
// If-None-Match, If-Modified-Since, If-Unmodified-Since) against the current
// validators of a resource.
package conditional

import (
	"strings"
)

// Wildcard is the entity-tag list "*", which matches any current
// representation.
const Wildcard = "*"

// ParseETags splits the value of an If-Match or If-None-Match header into
// its entity tags. Bare tokens are normalized into their quoted form, weak
// tags ("W/...") are kept as they are. A lone "*" yields []string{"*"}.
func ParseETags(header string) []string {
	header = strings.TrimSpace(header)
	if header == "" {
		return nil
	}
	if header == Wildcard {
		return []string{Wildcard}
	}

	var result []string
	for _, field := range strings.Split(header, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if field == Wildcard || isWeak(field) {
			result = append(result, field)
			continue
		}
		result = append(result, QuoteETag(field))
	}
	return result
}

// QuoteETag returns the given entity tag in its quoted form. Weak tags and
// tags that are already quoted are returned unchanged.
func QuoteETag(tag string) string {
	if isWeak(tag) || isQuoted(tag) {
		return tag
	}
	return `"` + tag + `"`
}

// ETagsMatch compares two entity tags. With strong comparison, both tags
// must be strong and have identical opaque values. With weak comparison,
// only the opaque values need to be identical.
func ETagsMatch(a, b string, strong bool) bool {
	if strong && (isWeak(a) || isWeak(b)) {
		return false
	}
	return opaqueValue(a) == opaqueValue(b)
}

// matchesAny checks a parsed entity-tag list against the current entity tag.
// An empty current tag means that the resource has no entity tag, in which
// case only the wildcard matches.
func matchesAny(tags []string, current string, strong bool) bool {
	for _, tag := range tags {
		if tag == Wildcard {
			return true
		}
		if current != "" && ETagsMatch(tag, current, strong) {
			return true
		}
	}
	return false
}

func isWeak(tag string) bool {
	return strings.HasPrefix(tag, "W/")
}

func isQuoted(tag string) bool {
	return len(tag) >= 2 && tag[0] == '"' && tag[len(tag)-1] == '"'
}

func opaqueValue(tag string) string {
	tag = strings.TrimPrefix(tag, "W/")
	if isQuoted(tag) {
		return tag[1 : len(tag)-1]
	}
	return tag
}
