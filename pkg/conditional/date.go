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

package conditional

import (
	"net/http"
	"strings"
	"time"
)

// accepted in addition to the formats understood by http.ParseTime()
var extraDateFormats = []string{
	"Mon, 02-Jan-2006 15:04:05 MST",
	time.RFC1123,
	time.RFC1123Z,
}

// ParseHTTPDate parses the value of an If-Modified-Since or
// If-Unmodified-Since header. The result is always in UTC. Malformed values
// are reported as absent (ok = false) instead of as an error, so that a
// broken conditional header never fails the request.
func ParseHTTPDate(value string) (t time.Time, ok bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	parsed, err := http.ParseTime(value)
	if err == nil {
		return parsed.UTC(), true
	}
	for _, format := range extraDateFormats {
		parsed, err := time.Parse(format, value)
		if err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}

// FormatHTTPDate renders a timestamp in the IMF-fixdate format used by the
// Last-Modified header.
func FormatHTTPDate(t time.Time) string {
	return t.UTC().Format(http.TimeFormat)
}
