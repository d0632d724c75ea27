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
	"encoding/json"
	"mime"
	"mime/multipart"
	"unicode/utf8"

	uuid "github.com/satori/go.uuid"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/htmlindex"

	"github.com/sapcc/restmachine/pkg/headers"
)

// Content types understood by the builtin body parsers.
const (
	contentTypeJSON      = "application/json"
	contentTypeForm      = "application/x-www-form-urlencoded"
	contentTypeMultipart = "multipart/form-data"
	contentTypeText      = "text/plain"
)

// maximum memory used by multipart_body before spilling to temporary files
var maxMultipartMemory int64 = 32 << 20

func builtinDependencies() map[string]*Dependency {
	list := []*Dependency{
		{Name: "body", Needs: []string{nameRequest}, Func: func(v Values) (any, error) {
			req := Get[*Request](v, nameRequest)
			buf, err := req.ReadBody()
			if err != nil {
				return nil, err
			}
			return decodeText(buf, req.Charset()), nil
		}},
		{Name: "raw_body", Needs: []string{nameRequest}, Func: func(v Values) (any, error) {
			return Get[*Request](v, nameRequest).ReadBody()
		}},
		{Name: "query_params", Needs: []string{nameRequest}, Func: func(v Values) (any, error) {
			return Get[*Request](v, nameRequest).QueryParams, nil
		}},
		{Name: "path_params", Needs: []string{nameRequest}, Func: func(v Values) (any, error) {
			return Get[*Request](v, nameRequest).PathParams, nil
		}},
		{Name: "headers", Needs: []string{nameRequest}, Func: func(v Values) (any, error) {
			return Get[*Request](v, nameRequest).Headers, nil
		}},
		{Name: "json_body", Needs: []string{nameRequest}, Func: func(v Values) (any, error) {
			return v.res.parseBody(contentTypeJSON, func(req *Request, buf []byte) (any, error) {
				var data any
				err := json.Unmarshal(buf, &data)
				return data, err
			})
		}},
		{Name: "form_body", Needs: []string{nameRequest}, Func: func(v Values) (any, error) {
			return v.res.parseBody(contentTypeForm, func(req *Request, buf []byte) (any, error) {
				return ParseQuery(decodeText(buf, req.Charset())), nil
			})
		}},
		{Name: "multipart_body", Needs: []string{nameRequest}, Func: func(v Values) (any, error) {
			return v.res.parseBody(contentTypeMultipart, func(req *Request, buf []byte) (any, error) {
				_, params, err := mime.ParseMediaType(req.Header("Content-Type"))
				if err != nil {
					return nil, err
				}
				reader := multipart.NewReader(bytes.NewReader(buf), params["boundary"])
				form, err := reader.ReadForm(maxMultipartMemory)
				if err != nil {
					return nil, err
				}
				v.res.forms = append(v.res.forms, form)
				return form, nil
			})
		}},
		{Name: "text_body", Needs: []string{nameRequest}, Func: func(v Values) (any, error) {
			return v.res.parseBody(contentTypeText, func(req *Request, buf []byte) (any, error) {
				return decodeText(buf, req.Charset()), nil
			})
		}},
		{Name: "request_id", Func: func(Values) (any, error) {
			return uuid.NewV4().String(), nil
		}},
		{Name: "trace_id", Func: func(Values) (any, error) {
			return uuid.NewV4().String(), nil
		}},
		{Name: "response_headers", Func: func(v Values) (any, error) {
			h := headers.New()
			if v.res.vary != "" {
				h.Set("Vary", v.res.vary)
			}
			return h, nil
		}},
	}

	result := make(map[string]*Dependency, len(list))
	for _, d := range list {
		d.Scope = RequestScope
		result[d.Name] = d
	}
	return result
}

// parseBody implements the builtin body parsers. A parser registered with
// Application.Accepts() for the request's content type takes precedence.
func (r *resolver) parseBody(expected string, parse func(*Request, []byte) (any, error)) (any, error) {
	contentType := r.req.ContentType()
	if p := r.app.parsers[contentType]; p != nil {
		return r.resolveParser(p)
	}
	if contentType != expected {
		return nil, &UnsupportedMediaTypeError{ContentType: contentType, Expected: expected}
	}

	buf, err := r.req.ReadBody()
	if err != nil {
		return nil, err
	}
	value, err := parse(r.req, buf)
	if err != nil {
		return nil, &BodyParsingError{ContentType: contentType, Inner: err}
	}
	return value, nil
}

// decodeText decodes a request body with the declared charset. If the
// charset is unknown or the body is not valid in it, UTF-8 is tried, and
// then Latin-1, which accepts every byte sequence.
func decodeText(buf []byte, charset string) string {
	if charset != "" {
		enc, err := htmlindex.Get(charset)
		if err == nil {
			// the UTF-8 decoder replaces invalid sequences instead of failing,
			// so those are handled by the fallback below
			if name, _ := htmlindex.Name(enc); name != "utf-8" {
				decoded, err := enc.NewDecoder().Bytes(buf)
				if err == nil {
					return string(decoded)
				}
			}
		}
	}
	if utf8.Valid(buf) {
		return string(buf)
	}
	decoded, _ := charmap.ISO8859_1.NewDecoder().Bytes(buf)
	return string(decoded)
}
