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

package types

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// DataType is the content type of a message body.
type DataType string

const (
	JSON   = DataType("JSON")
	TEXT   = DataType("TEXT")
	BINARY = DataType("BINARY")
)

// Headers carries message headers. Values are always strings; typed values
// travel as exchange properties.
type Headers map[string]string

// NewHeaders creates an empty header set.
func NewHeaders() Headers {
	return make(Headers)
}

// BuildHeaders copies the given map into a new header set.
func BuildHeaders(data map[string]string) Headers {
	headers := make(Headers, len(data))
	for k, v := range data {
		headers[k] = v
	}
	return headers
}

// Copy returns a deep copy.
func (h Headers) Copy() Headers {
	return BuildHeaders(h)
}

// Has reports whether the key is present.
func (h Headers) Has(key string) bool {
	_, ok := h[key]
	return ok
}

// GetValue returns the value for key, or "".
func (h Headers) GetValue(key string) string {
	return h[key]
}

// PutValue sets a value. Empty keys are ignored.
func (h Headers) PutValue(key, value string) {
	if key != "" {
		h[key] = value
	}
}

// Remove deletes a key.
func (h Headers) Remove(key string) {
	delete(h, key)
}

// Values returns the underlying map.
func (h Headers) Values() map[string]string {
	return h
}

// Message is the unit of data moved between endpoints.
type Message struct {
	// Ts is the creation time in unix milliseconds.
	Ts int64 `json:"ts"`
	// Id is unique for the whole lifetime of the message, copies keep it.
	Id string `json:"id"`
	// DataType describes Body.
	DataType DataType `json:"dataType"`
	// Type is an application level classification of the message.
	Type string `json:"type"`
	// Body is the payload.
	Body string `json:"body"`
	// Headers are the message headers.
	Headers Headers `json:"headers"`
}

// NewMessage creates a message with a fresh uuid.
func NewMessage(msgType string, dataType DataType, headers Headers, body string) Message {
	return newMessage("", 0, msgType, dataType, headers, body)
}

func newMessage(id string, ts int64, msgType string, dataType DataType, headers Headers, body string) Message {
	if ts <= 0 {
		ts = time.Now().UnixMilli()
	}
	if id == "" {
		uuId, _ := uuid.NewV4()
		id = uuId.String()
	}
	if headers == nil {
		headers = NewHeaders()
	}
	return Message{
		Ts:       ts,
		Id:       id,
		Type:     msgType,
		DataType: dataType,
		Body:     body,
		Headers:  headers,
	}
}

// Copy returns a deep copy of the message.
func (m *Message) Copy() Message {
	return newMessage(m.Id, m.Ts, m.Type, m.DataType, m.Headers.Copy(), m.Body)
}
