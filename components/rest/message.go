/*
 * Copyright 2023 The RuleGo Authors.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


package rest

import (
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/julienschmidt/httprouter"
	"github.com/rulego/rulego-connectors/api/types"
)

// Headers set on exchanges created from http requests.
const (
	HeaderHttpMethod = "HttpMethod"
	HeaderHttpUri    = "HttpUri"
	HeaderHttpPath   = "HttpPath"
	HeaderHttpQuery  = "HttpQuery"
	// HeaderHttpResponseCode sets the status of the reply, 200 by default.
	HeaderHttpResponseCode = "HttpResponseCode"
)

// internalHeaderPrefixes mark headers that never leave the process.
var internalHeaderPrefixes = []string{"Http", "DynamicRouter"}

// requestOnlyHeaders are copied from requests but not echoed in responses.
var requestOnlyHeaders = map[string]bool{
	"Accept":            true,
	"Accept-Encoding":   true,
	"Authorization":     true,
	"Connection":        true,
	"Content-Length":    true,
	"Cookie":            true,
	"Host":              true,
	"Keep-Alive":        true,
	"Origin":            true,
	"Sec-Websocket-Key": true,
	"Te":                true,
	"Transfer-Encoding": true,
	"Upgrade":           true,
	"User-Agent":        true,
}

// IsInternalHeader reports whether key must be filtered from responses.
func IsInternalHeader(key string) bool {
	for _, prefix := range internalHeaderPrefixes {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return requestOnlyHeaders[http.CanonicalHeaderKey(key)]
}

// RequestHeaders copies the request line, http headers, path parameters and
// query parameters of r into message headers. Multiple values are joined
// with a comma.
func RequestHeaders(r *http.Request) types.Headers {
	headers := types.NewHeaders()
	for key, values := range r.Header {
		headers.PutValue(key, strings.Join(values, ","))
	}
	for key, values := range r.URL.Query() {
		headers.PutValue(key, strings.Join(values, ","))
	}
	for _, param := range httprouter.ParamsFromContext(r.Context()) {
		headers.PutValue(param.Key, param.Value)
	}
	headers.PutValue(HeaderHttpMethod, r.Method)
	headers.PutValue(HeaderHttpUri, r.RequestURI)
	headers.PutValue(HeaderHttpPath, r.URL.Path)
	headers.PutValue(HeaderHttpQuery, r.URL.RawQuery)
	return headers
}

// NewExchange reads r into a new exchange bound to the request context.
func NewExchange(r *http.Request) (*types.Exchange, error) {
	var body []byte
	if r.Body != nil {
		b, err := io.ReadAll(r.Body)
		if err != nil {
			return nil, err
		}
		body = b
	}
	dataType := types.TEXT
	if strings.Contains(r.Header.Get("Content-Type"), "json") {
		dataType = types.JSON
	}
	msg := types.NewMessage("", dataType, RequestHeaders(r), string(body))
	return types.NewExchange(r.Context(), msg), nil
}

// WriteResponse writes the message of exchange as the reply. A failed
// exchange is answered with 500 and the error text, or an empty body when
// mute is set.
func WriteResponse(w http.ResponseWriter, exchange *types.Exchange, mute bool) {
	if exchange.Err != nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		if !mute {
			_, _ = w.Write([]byte(exchange.Err.Error()))
		}
		return
	}
	msg := exchange.In
	for key, value := range msg.Headers {
		if IsInternalHeader(key) {
			continue
		}
		w.Header().Set(key, value)
	}
	if w.Header().Get("Content-Type") == "" {
		switch msg.DataType {
		case types.JSON:
			w.Header().Set("Content-Type", "application/json")
		case types.BINARY:
			w.Header().Set("Content-Type", "application/octet-stream")
		default:
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		}
	}
	status := http.StatusOK
	if v := msg.Headers.GetValue(HeaderHttpResponseCode); v != "" {
		if code, err := strconv.Atoi(v); err == nil && code >= 100 && code <= 999 {
			status = code
		}
	}
	w.WriteHeader(status)
	_, _ = w.Write([]byte(msg.Body))
}
