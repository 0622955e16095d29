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

package api

import (
	"fmt"
	"strings"
	"time"

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/components/base"
	"github.com/rulego/rulego-connectors/utils/json"
)

// DefaultDelay is the polling interval of consumers without a schedule.
const DefaultDelay = time.Second

// EndpointConfiguration is shared by every api endpoint. Connectors embed it
// with `mapstructure:",squash"`.
type EndpointConfiguration struct {
	ApiName    string
	MethodName string
	// InBody names the argument filled with the message body.
	InBody string
	// ResultHeader stores the result in this header instead of the body.
	ResultHeader string
	// Schedule is a cron expression with seconds for consumers.
	Schedule string
	// Delay is the polling interval for consumers without Schedule.
	Delay time.Duration
	// SplitResult makes consumers emit one exchange per element of a slice
	// result.
	SplitResult bool
}

// SplitMethodPath splits "apiName/methodName". Missing parts are empty.
func SplitMethodPath(path string) (apiName, methodName string) {
	path = strings.Trim(path, "/")
	apiName, methodName, _ = strings.Cut(path, "/")
	return apiName, methodName
}

// Endpoint invokes one api method. Candidates are the overloads of the
// method accepting every endpoint argument.
type Endpoint struct {
	base.Endpoint
	Config     EndpointConfiguration
	Helper     *ApiMethodHelper
	Properties map[string]any
	Candidates []*ApiMethod
	// Proxy is the object methods are invoked on.
	Proxy any

	propertiesHelper *ApiMethodPropertiesHelper
	ctx              types.EngineContext
}

// NewEndpoint resolves the api and the candidate methods of config. params
// are the uri parameters; those naming api arguments become endpoint
// properties.
func NewEndpoint(ctx types.EngineContext, uri string, config EndpointConfiguration, params types.Configuration,
	collection *ApiCollection, propertiesHelper *ApiMethodPropertiesHelper, proxy any) (*Endpoint, error) {
	if config.ApiName == "" || config.MethodName == "" {
		return nil, fmt.Errorf("%w: apiName and methodName are required, uri=%s", types.ErrIllegalArgument, uri)
	}
	helper, err := collection.Helper(config.ApiName)
	if err != nil {
		return nil, err
	}
	if config.Delay < 0 {
		return nil, fmt.Errorf("%w: delay must not be negative", types.ErrIllegalArgument)
	}
	properties := propertiesHelper.EndpointProperties(params, helper)
	argNames := keys(properties)
	if config.InBody != "" {
		argNames = append(argNames, config.InBody)
	}
	candidates := helper.GetCandidateMethods(config.MethodName, argNames...)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no matching method for %s/%s with arguments %v",
			types.ErrIllegalArgument, config.ApiName, config.MethodName, argNames)
	}
	return &Endpoint{
		Endpoint:         base.NewEndpoint(uri),
		Config:           config,
		Helper:           helper,
		Properties:       properties,
		Candidates:       candidates,
		Proxy:            proxy,
		propertiesHelper: propertiesHelper,
		ctx:              ctx,
	}, nil
}

// FindMethod selects the candidate to call with argNames.
func (e *Endpoint) FindMethod(argNames []string) (*ApiMethod, error) {
	filtered := e.Helper.FilterMethods(e.Candidates, SuperSet, argNames...)
	switch len(filtered) {
	case 0:
		return nil, &MissingPropertiesError{
			Api:     e.Config.ApiName,
			Method:  e.Config.MethodName,
			Missing: e.Helper.GetMissingProperties(e.Config.MethodName, argNames...),
		}
	case 1:
		return filtered[0], nil
	default:
		method := e.Helper.GetHighestPriorityMethod(filtered)
		types.Warnf(e.ctx.Config().Logger, "Using highest priority method %s from methods %v", method, filtered)
		return method, nil
	}
}

func (e *Endpoint) CreateProducer() (types.Producer, error) {
	return &Producer{Producer: base.Producer{ProducerEndpoint: e}, endpoint: e}, nil
}

func (e *Endpoint) CreateConsumer(processor types.Processor) (types.Consumer, error) {
	method, err := e.FindMethod(keys(e.Properties))
	if err != nil {
		return nil, err
	}
	return &Consumer{
		Consumer: base.Consumer{ConsumerEndpoint: e, Processor: processor},
		endpoint: e,
		method:   method,
	}, nil
}

// Result lets an invoked method return headers together with its value.
type Result struct {
	Value   any
	Headers map[string]string
}

// SetResult stores result in header, or in the body when header is empty.
// Strings are stored as is, anything else as JSON.
func SetResult(exchange *types.Exchange, result any, header string) error {
	if r, ok := result.(*Result); ok {
		for k, v := range r.Headers {
			exchange.In.Headers.PutValue(k, v)
		}
		result = r.Value
	}
	var body string
	dataType := types.TEXT
	switch v := result.(type) {
	case nil:
	case string:
		body = v
	case []byte:
		body = string(v)
	default:
		s, err := json.MarshalString(v)
		if err != nil {
			return err
		}
		body, dataType = s, types.JSON
	}
	if header != "" {
		exchange.In.Headers.PutValue(header, body)
		return nil
	}
	exchange.In.Body = body
	exchange.In.DataType = dataType
	return nil
}

func keys(m map[string]any) []string {
	result := make([]string, 0, len(m))
	for k := range m {
		result = append(result, k)
	}
	return result
}
