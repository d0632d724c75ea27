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

package test

import (
	"encoding/json"
	"strings"
	"testing"
)

// ErrorBody implements the assert.HTTPResponseBody interface for the JSON
// error bodies generated by restmachine. The "error" field must contain the
// given string.
type ErrorBody string

// AssertResponseBody implements the assert.HTTPResponseBody interface.
func (e ErrorBody) AssertResponseBody(t *testing.T, requestInfo string, responseBody []byte) bool {
	t.Helper()
	var data struct {
		Error string `json:"error"`
	}
	err := json.Unmarshal(responseBody, &data)
	if err != nil {
		t.Errorf("%s: cannot decode JSON: %s", requestInfo, err.Error())
		t.Logf("\tresponse body = %q", string(responseBody))
		return false
	}

	if !strings.Contains(data.Error, string(e)) {
		t.Errorf(requestInfo + ": got unexpected error")
		t.Logf("\texpected = %q\n", string(e))
		t.Logf("\tactual = %q\n", data.Error)
		return false
	}
	return true
}

// BodyContains implements the assert.HTTPResponseBody interface for
// arbitrary response bodies that must contain the given string.
type BodyContains string

// AssertResponseBody implements the assert.HTTPResponseBody interface.
func (b BodyContains) AssertResponseBody(t *testing.T, requestInfo string, responseBody []byte) bool {
	t.Helper()
	if !strings.Contains(string(responseBody), string(b)) {
		t.Errorf("%s: expected response body to contain %q", requestInfo, string(b))
		t.Logf("\tresponse body = %q", string(responseBody))
		return false
	}
	return true
}
