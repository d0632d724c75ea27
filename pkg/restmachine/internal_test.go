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
	"bytes"
	"errors"
	"mime/multipart"
	"net/http"
	"os"
	"sync"
	"testing"

	"github.com/sapcc/go-bits/assert"

	"github.com/sapcc/restmachine/pkg/headers"
)

func TestTruthiness(t *testing.T) {
	var nilPointer *int
	zero := 0
	testCases := []struct {
		Value    any
		Expected bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{"", false},
		{"x", true},
		{0, false},
		{0.0, false},
		{uint8(3), true},
		{nilPointer, false},
		{&zero, true},
		{[]string{}, false},
		{[]string{"a"}, true},
		{map[string]int{}, false},
		{struct{}{}, true},
	}
	for _, tc := range testCases {
		if isTruthy(tc.Value) != tc.Expected {
			t.Errorf("expected isTruthy(%#v) = %t", tc.Value, tc.Expected)
		}
	}

	assert.Equal(t, isNil(nil), true)
	assert.Equal(t, isNil(nilPointer), true)
	assert.Equal(t, isNil(false), false)
	assert.Equal(t, isNil(""), false)
}

func TestPathParamNames(t *testing.T) {
	assert.DeepEqual(t, "static", pathParamNames("/todos"), []string(nil))
	assert.DeepEqual(t, "params", pathParamNames("/users/{user_id}/todos/{todo_id:[0-9]+}"), []string{"user_id", "todo_id"})
	assert.DeepEqual(t, "nested braces", pathParamNames("/files/{name:[a-z]{3}}"), []string{"name"})
}

func TestSessionCache(t *testing.T) {
	c := newSessionCache()
	calls := 0
	compute := func() (any, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("first call fails")
		}
		return calls, nil
	}

	_, err := c.getOrCompute("value", compute)
	if err == nil {
		t.Fatal("expected first computation to fail")
	}

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			value, err := c.getOrCompute("value", compute)
			if err != nil || value != 2 {
				t.Errorf("unexpected result: %v, %v", value, err)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, calls, 2)
}

func TestDecodeText(t *testing.T) {
	assert.Equal(t, decodeText([]byte("caf\xc3\xa9"), "utf-8"), "café")
	assert.Equal(t, decodeText([]byte("caf\xe9"), "latin1"), "café")
	assert.Equal(t, decodeText([]byte("caf\xe9"), "bogus-charset"), "café")
	assert.Equal(t, decodeText([]byte("caf\xe9"), ""), "café")
	assert.Equal(t, decodeText([]byte("\x93quoted\x94"), "windows-1252"), "“quoted”")
}

func TestMultipartFilesAreRemoved(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("TMPDIR", tmpDir)
	// spool every uploaded file to disk
	oldLimit := maxMultipartMemory
	maxMultipartMemory = 0
	defer func() { maxMultipartMemory = oldLimit }()

	countFiles := func() int {
		entries, err := os.ReadDir(tmpDir)
		if err != nil {
			t.Fatal(err.Error())
		}
		return len(entries)
	}

	app := New(Config{})
	app.Post("/upload", []string{"multipart_body"}, func(v Values) (any, error) {
		form := Get[*multipart.Form](v, "multipart_body")
		return map[string]int{"files": len(form.File["upload"]), "on_disk": countFiles()}, nil
	})

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fw, err := w.CreateFormFile("upload", "hello.txt")
	if err != nil {
		t.Fatal(err.Error())
	}
	_, err = fw.Write([]byte("hello world"))
	if err != nil {
		t.Fatal(err.Error())
	}
	err = w.Close()
	if err != nil {
		t.Fatal(err.Error())
	}

	h := headers.New()
	h.Set("Content-Type", w.FormDataContentType())
	resp := app.Execute(&Request{Method: MethodPost, Path: "/upload", Headers: h, Body: &buf})
	body, err := resp.ReadBody()
	if err != nil {
		t.Fatal(err.Error())
	}
	assert.Equal(t, resp.Status, http.StatusOK)
	assert.Equal(t, string(body), `{"files":1,"on_disk":1}`)
	assert.Equal(t, countFiles(), 0)
}
