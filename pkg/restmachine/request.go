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
	"context"
	"crypto/x509"
	"crypto/x509/pkix"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/sapcc/restmachine/pkg/headers"
	"github.com/sapcc/restmachine/pkg/negotiation"
)

// Method is an HTTP request method.
type Method string

// The methods that the state machine knows how to process. Requests with any
// other method are answered with 501.
const (
	MethodGet    Method = http.MethodGet
	MethodPost   Method = http.MethodPost
	MethodPut    Method = http.MethodPut
	MethodDelete Method = http.MethodDelete
	MethodPatch  Method = http.MethodPatch
)

var knownMethods = []Method{MethodGet, MethodPost, MethodPut, MethodDelete, MethodPatch}

// IsKnown returns whether this method is one of the Method... constants.
func (m Method) IsKnown() bool {
	return slices.Contains(knownMethods, m)
}

// Request is the input of Application.Execute(). It is built once per request
// by an adapter (or a test) and must not be shared between requests.
type Request struct {
	Method  Method
	Path    string
	Headers *headers.Headers
	// Body is read at most once, on first use by ReadBody(). A nil Body is
	// equivalent to an empty body.
	Body        io.Reader
	QueryParams map[string]string
	// PathParams are filled by the router.
	PathParams map[string]string
	TLS        bool
	ClientCert *ClientCertificate //optional
	// Extensions can be used by application code to attach request-scoped
	// data, e.g. the ID of the authenticated user.
	Extensions map[string]any

	ctx      context.Context
	body     []byte
	bodyErr  error
	bodyRead bool
}

// Context returns the context of this request. If no context was attached
// with WithContext, context.Background() is returned.
func (r *Request) Context() context.Context {
	if r.ctx == nil {
		return context.Background()
	}
	return r.ctx
}

// WithContext returns a shallow copy of this request with the given context.
func (r *Request) WithContext(ctx context.Context) *Request {
	result := *r
	result.ctx = ctx
	return &result
}

// Header returns the first value of the given request header.
func (r *Request) Header(name string) string {
	return r.Headers.Get(name)
}

// HeaderList returns all values of the given list-valued request header
// (e.g. Accept or If-Match) joined with ", ", which is equivalent to the
// header having been sent on a single field line.
func (r *Request) HeaderList(name string) string {
	return strings.Join(r.Headers.GetAll(name), ", ")
}

// listHeaders presents a request's headers to the conditional evaluator with
// repeated field lines combined.
type listHeaders struct {
	req *Request
}

func (l listHeaders) Get(name string) string {
	return l.req.HeaderList(name)
}

// ReadBody reads the full request body. Subsequent calls return the same
// result without reading again.
func (r *Request) ReadBody() ([]byte, error) {
	if !r.bodyRead {
		r.bodyRead = true
		if r.Body != nil {
			r.body, r.bodyErr = io.ReadAll(r.Body)
		}
	}
	return r.body, r.bodyErr
}

// ContentType returns the media type from the Content-Type header, without
// parameters and in lower case.
func (r *Request) ContentType() string {
	return negotiation.BaseType(r.Header("Content-Type"))
}

// Charset returns the charset parameter of the Content-Type header in lower
// case, or the empty string if there is none.
func (r *Request) Charset() string {
	contentType := r.Header("Content-Type")
	_, params, err := mime.ParseMediaType(contentType)
	if err == nil {
		return strings.ToLower(params["charset"])
	}
	// be lenient about broken parameter lists
	for _, param := range strings.Split(contentType, ";")[1:] {
		key, value, _ := strings.Cut(param, "=")
		if strings.EqualFold(strings.TrimSpace(key), "charset") {
			return strings.ToLower(strings.Trim(strings.TrimSpace(value), "\""))
		}
	}
	return ""
}

// SetExtension stores a value in r.Extensions.
func (r *Request) SetExtension(key string, value any) {
	if r.Extensions == nil {
		r.Extensions = make(map[string]any)
	}
	r.Extensions[key] = value
}

// Extension retrieves a value from r.Extensions.
func (r *Request) Extension(key string) (any, bool) {
	value, ok := r.Extensions[key]
	return value, ok
}

// prepare fills in the zero-valued fields that the state machine relies on.
func (r *Request) prepare() {
	if r.Headers == nil {
		r.Headers = headers.New()
	}
	if r.QueryParams == nil {
		r.QueryParams = make(map[string]string)
	}
	if r.PathParams == nil {
		r.PathParams = make(map[string]string)
	}
}

// ParseQuery parses a URL query string. When a key appears multiple times,
// the first value wins.
func ParseQuery(rawQuery string) map[string]string {
	// on error, url.ParseQuery still returns everything it could parse
	values, _ := url.ParseQuery(rawQuery)
	result := make(map[string]string, len(values))
	for key, list := range values {
		if len(list) > 0 {
			result[key] = list[0]
		}
	}
	return result
}

// NameAttribute is one field of a distinguished name, e.g. {"commonName", "example.org"}.
type NameAttribute struct {
	Field string
	Value string
}

// ClientCertificate describes the TLS client certificate presented with a
// request.
type ClientCertificate struct {
	Subject      []NameAttribute
	Issuer       []NameAttribute
	SerialNumber string
	NotBefore    time.Time
	NotAfter     time.Time
}

// NewClientCertificate extracts a ClientCertificate from a parsed X.509
// certificate. A nil certificate yields nil.
func NewClientCertificate(cert *x509.Certificate) *ClientCertificate {
	if cert == nil {
		return nil
	}
	result := &ClientCertificate{
		Subject:   nameAttributes(cert.Subject),
		Issuer:    nameAttributes(cert.Issuer),
		NotBefore: cert.NotBefore.UTC(),
		NotAfter:  cert.NotAfter.UTC(),
	}
	if cert.SerialNumber != nil {
		result.SerialNumber = cert.SerialNumber.String()
	}
	return result
}

// SubjectField returns the first value of the given field in the subject.
func (c *ClientCertificate) SubjectField(field string) string {
	if c == nil {
		return ""
	}
	for _, attr := range c.Subject {
		if attr.Field == field {
			return attr.Value
		}
	}
	return ""
}

var attributeNames = map[string]string{
	"2.5.4.3":                    "commonName",
	"2.5.4.5":                    "serialNumber",
	"2.5.4.6":                    "countryName",
	"2.5.4.7":                    "localityName",
	"2.5.4.8":                    "stateOrProvinceName",
	"2.5.4.9":                    "streetAddress",
	"2.5.4.10":                   "organizationName",
	"2.5.4.11":                   "organizationalUnitName",
	"0.9.2342.19200300.100.1.25": "domainComponent",
	"1.2.840.113549.1.9.1":       "emailAddress",
}

func nameAttributes(name pkix.Name) []NameAttribute {
	result := make([]NameAttribute, 0, len(name.Names))
	for _, atv := range name.Names {
		oid := atv.Type.String()
		field, ok := attributeNames[oid]
		if !ok {
			field = oid
		}
		result = append(result, NameAttribute{field, fmt.Sprint(atv.Value)})
	}
	return result
}
