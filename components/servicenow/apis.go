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
	"net/http"
	"net/url"

	"github.com/rulego/rulego-connectors/components/api"
	"github.com/rulego/rulego-connectors/utils/cast"
)

// Api names.
const (
	ApiTable     = "table"
	ApiAggregate = "aggregate"
	ApiImport    = "import"
)

// sysparm names by argument name
var sysparms = map[string]string{
	"query":                "sysparm_query",
	"fields":               "sysparm_fields",
	"limit":                "sysparm_limit",
	"offset":               "sysparm_offset",
	"displayValue":         "sysparm_display_value",
	"excludeReferenceLink": "sysparm_exclude_reference_link",
	"view":                 "sysparm_view",
	"count":                "sysparm_count",
	"groupBy":              "sysparm_group_by",
	"orderBy":              "sysparm_order_by",
	"having":               "sysparm_having",
	"avgFields":            "sysparm_avg_fields",
	"sumFields":            "sysparm_sum_fields",
	"minFields":            "sysparm_min_fields",
	"maxFields":            "sysparm_max_fields",
}

var sysparmTypes = map[string]string{
	"limit":                cast.KindInt,
	"offset":               cast.KindInt,
	"excludeReferenceLink": cast.KindBool,
	"count":                cast.KindBool,
}

func sysparmArgs(names ...string) []api.ApiMethodArg {
	args := make([]api.ApiMethodArg, 0, len(names))
	for _, name := range names {
		kind, ok := sysparmTypes[name]
		if !ok {
			kind = cast.KindString
		}
		args = append(args, api.ApiMethodArg{Name: name, Type: kind})
	}
	return args
}

func query(args map[string]any) url.Values {
	q := url.Values{}
	for name, param := range sysparms {
		if v, ok := args[name]; ok {
			q.Set(param, cast.ToString(v))
		}
	}
	return q
}

func withArgs(args []api.ApiMethodArg, more ...api.ApiMethodArg) []api.ApiMethodArg {
	return append(append([]api.ApiMethodArg(nil), args...), more...)
}

var (
	tableNameArg = api.ApiMethodArg{Name: "tableName", Type: cast.KindString}
	sysIdArg     = api.ApiMethodArg{Name: "sysId", Type: cast.KindString}
	bodyArg      = api.ApiMethodArg{Name: "body", Type: cast.KindMap}

	listParams   = []string{"query", "fields", "limit", "offset", "displayValue", "excludeReferenceLink", "view"}
	recordParams = []string{"fields", "displayValue", "excludeReferenceLink", "view"}
	statsParams  = []string{"query", "count", "groupBy", "orderBy", "having", "avgFields", "sumFields", "minFields", "maxFields", "displayValue"}
)

func client(proxy any) *Client {
	return proxy.(*Client)
}

func str(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

func body(args map[string]any) any {
	if b, ok := args["body"]; ok {
		return b
	}
	return map[string]any{}
}

func tableApi() *api.ApiMethodHelper {
	return api.MustNewApiMethodHelper(ApiTable, []*api.ApiMethod{
		{
			Name: "retrieve",
			Args: withArgs([]api.ApiMethodArg{tableNameArg}, sysparmArgs(listParams...)...),
			Invoke: func(ctx context.Context, proxy any, args map[string]any) (any, error) {
				c := client(proxy)
				return c.Do(ctx, http.MethodGet, c.ApiPath("table", str(args, "tableName")), query(args), nil)
			},
		},
		{
			Name:     "retrieve",
			Args:     withArgs([]api.ApiMethodArg{tableNameArg, sysIdArg}, sysparmArgs(recordParams...)...),
			Priority: 1,
			Invoke: func(ctx context.Context, proxy any, args map[string]any) (any, error) {
				c := client(proxy)
				return c.Do(ctx, http.MethodGet, c.ApiPath("table", str(args, "tableName"), str(args, "sysId")), query(args), nil)
			},
		},
		{
			Name: "create",
			Args: []api.ApiMethodArg{tableNameArg, bodyArg},
			Invoke: func(ctx context.Context, proxy any, args map[string]any) (any, error) {
				c := client(proxy)
				return c.Do(ctx, http.MethodPost, c.ApiPath("table", str(args, "tableName")), query(args), body(args))
			},
		},
		{
			Name: "modify",
			Args: []api.ApiMethodArg{tableNameArg, sysIdArg, bodyArg},
			Invoke: func(ctx context.Context, proxy any, args map[string]any) (any, error) {
				c := client(proxy)
				return c.Do(ctx, http.MethodPut, c.ApiPath("table", str(args, "tableName"), str(args, "sysId")), query(args), body(args))
			},
		},
		{
			Name: "update",
			Args: []api.ApiMethodArg{tableNameArg, sysIdArg, bodyArg},
			Invoke: func(ctx context.Context, proxy any, args map[string]any) (any, error) {
				c := client(proxy)
				return c.Do(ctx, http.MethodPatch, c.ApiPath("table", str(args, "tableName"), str(args, "sysId")), query(args), body(args))
			},
		},
		{
			Name: "delete",
			Args: []api.ApiMethodArg{tableNameArg, sysIdArg},
			Invoke: func(ctx context.Context, proxy any, args map[string]any) (any, error) {
				c := client(proxy)
				return c.Do(ctx, http.MethodDelete, c.ApiPath("table", str(args, "tableName"), str(args, "sysId")), nil, nil)
			},
		},
	}, listParams...)
}

func aggregateApi() *api.ApiMethodHelper {
	return api.MustNewApiMethodHelper(ApiAggregate, []*api.ApiMethod{
		{
			Name: "stats",
			Args: withArgs([]api.ApiMethodArg{tableNameArg}, sysparmArgs(statsParams...)...),
			Invoke: func(ctx context.Context, proxy any, args map[string]any) (any, error) {
				c := client(proxy)
				return c.Do(ctx, http.MethodGet, c.ApiPath("stats", str(args, "tableName")), query(args), nil)
			},
		},
	}, statsParams...)
}

func importApi() *api.ApiMethodHelper {
	return api.MustNewApiMethodHelper(ApiImport, []*api.ApiMethod{
		{
			Name: "create",
			Args: []api.ApiMethodArg{tableNameArg, bodyArg},
			Invoke: func(ctx context.Context, proxy any, args map[string]any) (any, error) {
				c := client(proxy)
				return c.Do(ctx, http.MethodPost, c.ApiPath("import", str(args, "tableName")), nil, body(args))
			},
		},
		{
			Name: "retrieve",
			Args: []api.ApiMethodArg{tableNameArg, sysIdArg},
			Invoke: func(ctx context.Context, proxy any, args map[string]any) (any, error) {
				c := client(proxy)
				return c.Do(ctx, http.MethodGet, c.ApiPath("import", str(args, "tableName"), str(args, "sysId")), nil, nil)
			},
		},
	})
}

// Apis is the collection of the supported rest apis.
var Apis = api.NewApiCollection(tableApi(), aggregateApi(), importApi())
