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

package servicenow

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/components/api"
	"github.com/rulego/rulego-connectors/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type instance struct {
	*httptest.Server
	tokenRequests atomic.Int32
	lastQuery     atomic.Value
	lastBody      atomic.Value
}

func newInstance(t *testing.T) *instance {
	inst := &instance{}
	mux := http.NewServeMux()
	auth := func(r *http.Request) bool {
		if user, pass, ok := r.BasicAuth(); ok {
			return user == "admin" && pass == "secret"
		}
		return r.Header.Get("Authorization") == "Bearer tok-1"
	}
	mux.HandleFunc("/oauth_token.do", func(w http.ResponseWriter, r *http.Request) {
		inst.tokenRequests.Add(1)
		_ = r.ParseForm()
		if r.PostForm.Get("grant_type") != "password" || r.PostForm.Get("client_secret") != "cs" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = io.WriteString(w, `{"access_token":"tok-1","expires_in":1800,"token_type":"Bearer"}`)
	})
	mux.HandleFunc("/api/now/table/incident", func(w http.ResponseWriter, r *http.Request) {
		if !auth(r) {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"message":"User Not Authenticated","detail":"Required to provide Auth information"},"status":"failure"}`)
			return
		}
		inst.lastQuery.Store(r.URL.RawQuery)
		switch r.Method {
		case http.MethodGet:
			w.Header().Set("X-Total-Count", "2")
			_, _ = io.WriteString(w, `{"result":[{"number":"INC1"},{"number":"INC2"}]}`)
		case http.MethodPost:
			b, _ := io.ReadAll(r.Body)
			inst.lastBody.Store(string(b))
			w.WriteHeader(http.StatusCreated)
			_, _ = io.WriteString(w, `{"result":{"sys_id":"new"}}`)
		}
	})
	mux.HandleFunc("/api/now/table/incident/abc", func(w http.ResponseWriter, r *http.Request) {
		inst.lastQuery.Store(r.URL.RawQuery)
		switch r.Method {
		case http.MethodGet:
			_, _ = io.WriteString(w, `{"result":{"sys_id":"abc","number":"INC1"}}`)
		case http.MethodPatch, http.MethodPut:
			b, _ := io.ReadAll(r.Body)
			inst.lastBody.Store(r.Method + " " + string(b))
			_, _ = io.WriteString(w, `{"result":{"sys_id":"abc"}}`)
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	mux.HandleFunc("/api/now/table/incident/missing", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":{"message":"No Record found","detail":"Record doesn't exist"},"status":"failure"}`)
	})
	mux.HandleFunc("/api/now/stats/incident", func(w http.ResponseWriter, r *http.Request) {
		inst.lastQuery.Store(r.URL.RawQuery)
		_, _ = io.WriteString(w, `{"result":{"stats":{"count":"42"}}}`)
	})
	mux.HandleFunc("/api/now/import/u_staging", func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"import_set":"ISET1","result":[{"status":"inserted"}]}`)
	})
	inst.Server = httptest.NewServer(mux)
	t.Cleanup(inst.Close)
	return inst
}

func newComponent(t *testing.T, inst *instance, defaults types.Configuration) *Component {
	c := &Component{}
	if defaults == nil {
		defaults = types.Configuration{}
	}
	defaults["instanceUrl"] = inst.URL
	require.Nil(t, c.Init(test.NewEngineContext(types.NewConfig()), defaults))
	return c
}

func call(t *testing.T, c *Component, remaining string, params types.Configuration, exchange *types.Exchange) error {
	endpoint, err := c.CreateEndpoint(Type+":"+remaining, remaining, params)
	require.Nil(t, err)
	producer, err := endpoint.CreateProducer()
	require.Nil(t, err)
	return producer.Process(exchange)
}

func TestTableRetrieve(t *testing.T) {
	inst := newInstance(t)
	c := newComponent(t, inst, types.Configuration{"userName": "admin", "password": "secret"})

	ex := types.NewExchangeWithBody(context.Background(), "")
	require.Nil(t, call(t, c, "dev/table/retrieve", types.Configuration{"tableName": "incident", "limit": "10", "query": "active=true"}, ex))
	assert.Equal(t, `[{"number":"INC1"},{"number":"INC2"}]`, ex.In.Body)
	assert.Equal(t, types.JSON, ex.In.DataType)
	assert.Equal(t, "2", ex.In.Headers.GetValue(HeaderTotalCount))
	assert.Equal(t, "200", ex.In.Headers.GetValue(HeaderStatusCode))
	assert.Equal(t, "sysparm_limit=10&sysparm_query=active%3Dtrue", inst.lastQuery.Load())

	// sysId from a header selects the single record overload
	ex = types.NewExchangeWithBody(context.Background(), "")
	ex.In.Headers.PutValue("ServiceNow.sysId", "abc")
	require.Nil(t, call(t, c, "dev", types.Configuration{"apiName": "table", "methodName": "retrieve", "tableName": "incident", "fields": "number"}, ex))
	assert.Equal(t, `{"sys_id":"abc","number":"INC1"}`, ex.In.Body)
	assert.Equal(t, "sysparm_fields=number", inst.lastQuery.Load())
}

func TestTableWrites(t *testing.T) {
	inst := newInstance(t)
	c := newComponent(t, inst, types.Configuration{"userName": "admin", "password": "secret"})

	ex := types.NewExchangeWithBody(context.Background(), `{"short_description":"disk full"}`)
	require.Nil(t, call(t, c, "dev/table/create", types.Configuration{"tableName": "incident", "inBody": "body"}, ex))
	assert.Equal(t, `{"sys_id":"new"}`, ex.In.Body)
	assert.Equal(t, "201", ex.In.Headers.GetValue(HeaderStatusCode))
	assert.Equal(t, `{"short_description":"disk full"}`, inst.lastBody.Load())

	ex = types.NewExchangeWithBody(context.Background(), `{"state":"2"}`)
	require.Nil(t, call(t, c, "dev/table/update", types.Configuration{"tableName": "incident", "sysId": "abc", "inBody": "body"}, ex))
	assert.Equal(t, `PATCH {"state":"2"}`, inst.lastBody.Load())

	ex = types.NewExchangeWithBody(context.Background(), `{"state":"3"}`)
	require.Nil(t, call(t, c, "dev/table/modify", types.Configuration{"tableName": "incident", "sysId": "abc", "inBody": "body"}, ex))
	assert.Equal(t, `PUT {"state":"3"}`, inst.lastBody.Load())

	ex = types.NewExchangeWithBody(context.Background(), "")
	require.Nil(t, call(t, c, "dev/table/delete", types.Configuration{"tableName": "incident", "sysId": "abc"}, ex))
	assert.Equal(t, "", ex.In.Body)
	assert.Equal(t, "204", ex.In.Headers.GetValue(HeaderStatusCode))
}

func TestAggregateAndImport(t *testing.T) {
	inst := newInstance(t)
	c := newComponent(t, inst, types.Configuration{"userName": "admin", "password": "secret"})

	ex := types.NewExchangeWithBody(context.Background(), "")
	require.Nil(t, call(t, c, "dev/aggregate/stats", types.Configuration{"tableName": "incident", "count": "true"}, ex))
	assert.Equal(t, `{"stats":{"count":"42"}}`, ex.In.Body)
	assert.Equal(t, "sysparm_count=true", inst.lastQuery.Load())

	ex = types.NewExchangeWithBody(context.Background(), `{"u_name":"x"}`)
	require.Nil(t, call(t, c, "dev/import/create", types.Configuration{"tableName": "u_staging", "inBody": "body"}, ex))
	assert.Equal(t, `[{"status":"inserted"}]`, ex.In.Body)
}

func TestServiceNowErrors(t *testing.T) {
	inst := newInstance(t)
	c := newComponent(t, inst, types.Configuration{"userName": "admin", "password": "secret"})

	ex := types.NewExchangeWithBody(context.Background(), "")
	err := call(t, c, "dev/table/retrieve", types.Configuration{"tableName": "incident", "sysId": "missing"}, ex)
	var snErr *Error
	require.True(t, errors.As(err, &snErr))
	assert.Equal(t, http.StatusNotFound, snErr.StatusCode)
	assert.Equal(t, "No Record found", snErr.Message)
	assert.Equal(t, "Record doesn't exist", snErr.Detail)
	var runtimeErr *api.RuntimeError
	assert.True(t, errors.As(ex.Err, &runtimeErr))

	bad := newComponent(t, inst, types.Configuration{"userName": "admin", "password": "wrong"})
	err = call(t, bad, "dev/table/retrieve", types.Configuration{"tableName": "incident"}, types.NewExchangeWithBody(context.Background(), ""))
	require.True(t, errors.As(err, &snErr))
	assert.Equal(t, http.StatusUnauthorized, snErr.StatusCode)
	assert.Equal(t, "User Not Authenticated", snErr.Message)

	// body is required by create
	err = call(t, c, "dev/table/create", types.Configuration{"tableName": "incident"}, types.NewExchangeWithBody(context.Background(), ""))
	var missing *api.MissingPropertiesError
	assert.True(t, errors.As(err, &missing))
}

func TestOauthTokenIsCached(t *testing.T) {
	inst := newInstance(t)
	c := newComponent(t, inst, types.Configuration{
		"userName": "admin", "password": "pw", "oauthClientId": "cid", "oauthClientSecret": "cs",
	})
	for i := 0; i < 3; i++ {
		ex := types.NewExchangeWithBody(context.Background(), "")
		require.Nil(t, call(t, c, "dev/table/retrieve", types.Configuration{"tableName": "incident"}, ex))
	}
	assert.Equal(t, int32(1), inst.tokenRequests.Load())
}

func TestCreateEndpointValidation(t *testing.T) {
	inst := newInstance(t)
	c := newComponent(t, inst, nil)
	for name, tc := range map[string]struct {
		remaining string
		params    types.Configuration
	}{
		"no instance": {"", types.Configuration{"userName": "a"}},
		"no user":     {"dev/table/retrieve", types.Configuration{"tableName": "incident"}},
		"no secret":   {"dev/table/retrieve", types.Configuration{"userName": "a", "oauthClientId": "x"}},
		"unknown api": {"dev/users/retrieve", types.Configuration{"userName": "a"}},
		"unknown arg": {"dev/table/delete", types.Configuration{"userName": "a", "limit": 3}},
		"no method":   {"dev/table", types.Configuration{"userName": "a"}},
		"bad method":  {"dev/table/truncate", types.Configuration{"userName": "a"}},
	} {
		_, err := c.CreateEndpoint(Type+":"+tc.remaining, tc.remaining, tc.params)
		assert.True(t, errors.Is(err, types.ErrIllegalArgument), name)
	}
	endpoint, err := c.CreateEndpoint("servicenow:dev/table/retrieve", "dev/table/retrieve", types.Configuration{"userName": "a"})
	require.Nil(t, err)
	other, err := c.CreateEndpoint("servicenow:dev/aggregate/stats", "dev/aggregate/stats", types.Configuration{"userName": "a"})
	require.Nil(t, err)
	assert.Same(t, endpoint.(*Endpoint).Client(), other.(*Endpoint).Client())
}

func TestDefaultInstanceUrl(t *testing.T) {
	c := &Component{}
	require.Nil(t, c.Init(test.NewEngineContext(types.NewConfig()), nil))
	endpoint, err := c.CreateEndpoint("servicenow:dev1/table/retrieve", "dev1/table/retrieve", types.Configuration{"userName": "a"})
	require.Nil(t, err)
	assert.Equal(t, "https://dev1.service-now.com", endpoint.(*Endpoint).Config.InstanceUrl)
	assert.Equal(t, "/api/now/v2/table/incident", NewClient(ClientConfig{ApiVersion: "v2"}, nil).ApiPath("table", "incident"))
}
