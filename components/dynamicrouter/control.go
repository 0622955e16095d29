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

package dynamicrouter

import (
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/builtin/predicate"
	"github.com/rulego/rulego-connectors/components/base"
	"github.com/rulego/rulego-connectors/utils/cast"
	"github.com/rulego/rulego-connectors/utils/json"
	"github.com/rulego/rulego-connectors/utils/maps"
)

var _ types.Component = (*ControlComponent)(nil)

// ControlMessage manages a subscription. It is read from the uri
// parameters, then the control headers, then a json body, later sources
// overriding earlier ones.
type ControlMessage struct {
	Action             string `json:"action,omitempty" mapstructure:"action"`
	SubscribeChannel   string `json:"channel,omitempty" mapstructure:"subscribeChannel"`
	SubscriptionId     string `json:"id,omitempty" mapstructure:"subscriptionId"`
	DestinationUri     string `json:"destination,omitempty" mapstructure:"destinationUri"`
	Priority           *int   `json:"priority,omitempty" mapstructure:"priority"`
	Predicate          string `json:"predicate,omitempty" mapstructure:"predicate"`
	PredicateBean      string `json:"predicateBean,omitempty" mapstructure:"predicateBean"`
	ExpressionLanguage string `json:"language,omitempty" mapstructure:"expressionLanguage"`
}

func (m *ControlMessage) merge(other ControlMessage) {
	if other.Action != "" {
		m.Action = other.Action
	}
	if other.SubscribeChannel != "" {
		m.SubscribeChannel = other.SubscribeChannel
	}
	if other.SubscriptionId != "" {
		m.SubscriptionId = other.SubscriptionId
	}
	if other.DestinationUri != "" {
		m.DestinationUri = other.DestinationUri
	}
	if other.Priority != nil {
		m.Priority = other.Priority
	}
	if other.Predicate != "" {
		m.Predicate = other.Predicate
	}
	if other.PredicateBean != "" {
		m.PredicateBean = other.PredicateBean
	}
	if other.ExpressionLanguage != "" {
		m.ExpressionLanguage = other.ExpressionLanguage
	}
}

// ControlComponent handles dynamic-router-control:<action> endpoints. It
// manages the filters of the dynamic-router component of the same engine.
type ControlComponent struct {
	base.Component
}

func (c *ControlComponent) Type() string {
	return ControlType
}

func (c *ControlComponent) New() types.Component {
	return &ControlComponent{}
}

func (c *ControlComponent) CreateEndpoint(uri string, remaining string, params types.Configuration) (types.Endpoint, error) {
	var defaults ControlMessage
	if err := maps.Map2Struct(params, &defaults); err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrIllegalArgument, err)
	}
	if remaining != "" {
		defaults.Action = remaining
	}
	if defaults.Action != "" && !isAction(defaults.Action) {
		return nil, fmt.Errorf("%w: unknown control action %s", types.ErrIllegalArgument, defaults.Action)
	}
	// the router component is looked up here, not in Init, because the
	// engine holds its component lock while initialising
	component, err := c.EngineCtx.Component(Type)
	if err != nil {
		return nil, err
	}
	router, ok := component.(*Component)
	if !ok {
		return nil, fmt.Errorf("%w: %s component has type %T", types.ErrIllegalArgument, Type, component)
	}
	return &ControlEndpoint{
		Endpoint:      base.NewEndpoint(uri),
		Defaults:      defaults,
		filterService: router.FilterService(),
		config:        c.Config(),
	}, nil
}

func isAction(action string) bool {
	switch action {
	case ActionSubscribe, ActionUnsubscribe, ActionUpdate, ActionList, ActionStatistics:
		return true
	}
	return false
}

// ControlEndpoint applies control messages to the filter service.
type ControlEndpoint struct {
	base.Endpoint
	Defaults      ControlMessage
	filterService *FilterService
	config        types.Config
}

func (e *ControlEndpoint) CreateProducer() (types.Producer, error) {
	p := &controlProducer{endpoint: e}
	p.ProducerEndpoint = e
	return p, nil
}

// message builds the control message of exchange.
func (e *ControlEndpoint) message(exchange *types.Exchange) (ControlMessage, error) {
	msg := e.Defaults
	headers := exchange.In.Headers
	fromHeaders := ControlMessage{
		Action:             headers.GetValue(HeaderControlAction),
		SubscribeChannel:   headers.GetValue(HeaderControlSubscribeChannel),
		SubscriptionId:     headers.GetValue(HeaderControlSubscriptionId),
		DestinationUri:     headers.GetValue(HeaderControlDestinationUri),
		Predicate:          headers.GetValue(HeaderControlPredicate),
		PredicateBean:      headers.GetValue(HeaderControlPredicateBean),
		ExpressionLanguage: headers.GetValue(HeaderControlExpressionLanguage),
	}
	if v := headers.GetValue(HeaderControlPriority); v != "" {
		priority, err := cast.ToIntE(v)
		if err != nil {
			return msg, fmt.Errorf("%w: priority %s", types.ErrIllegalArgument, v)
		}
		fromHeaders.Priority = &priority
	}
	msg.merge(fromHeaders)
	if body := strings.TrimSpace(exchange.In.Body); strings.HasPrefix(body, "{") {
		var fromBody ControlMessage
		if err := json.Unmarshal([]byte(body), &fromBody); err != nil {
			return msg, fmt.Errorf("%w: control message body: %s", types.ErrIllegalArgument, err)
		}
		msg.merge(fromBody)
	}
	return msg, nil
}

type controlProducer struct {
	base.Producer
	endpoint *ControlEndpoint
}

func (p *controlProducer) Process(exchange *types.Exchange) error {
	msg, err := p.endpoint.message(exchange)
	if err != nil {
		return err
	}
	if msg.SubscribeChannel == "" {
		return fmt.Errorf("%w: control message requires a channel", types.ErrIllegalArgument)
	}
	switch msg.Action {
	case ActionSubscribe, ActionUpdate:
		filter, err := p.filter(msg, exchange.FromRouteId)
		if err != nil {
			return err
		}
		if msg.Action == ActionSubscribe {
			err = p.endpoint.filterService.AddFilterForChannel(filter, msg.SubscribeChannel)
		} else {
			err = p.endpoint.filterService.UpdateFilterForChannel(filter, msg.SubscribeChannel)
		}
		if err != nil {
			return err
		}
		exchange.In.Body = filter.Id
		exchange.In.DataType = types.TEXT
	case ActionUnsubscribe:
		if msg.SubscriptionId == "" {
			return fmt.Errorf("%w: unsubscribe requires a subscription id", types.ErrIllegalArgument)
		}
		removed := p.endpoint.filterService.RemoveFilterById(msg.SubscriptionId, msg.SubscribeChannel)
		exchange.In.Body = fmt.Sprint(removed)
		exchange.In.DataType = types.TEXT
	case ActionList:
		filters := p.endpoint.filterService.GetFiltersForChannel(msg.SubscribeChannel)
		infos := make([]FilterInfo, 0, len(filters))
		for _, f := range filters {
			infos = append(infos, f.info())
		}
		return setJSONBody(exchange, infos)
	case ActionStatistics:
		return setJSONBody(exchange, p.endpoint.filterService.GetStatisticsForChannel(msg.SubscribeChannel))
	default:
		return fmt.Errorf("%w: unknown control action %q", types.ErrIllegalArgument, msg.Action)
	}
	return nil
}

func (p *controlProducer) filter(msg ControlMessage, owner string) (*PrioritizedFilter, error) {
	if msg.DestinationUri == "" {
		return nil, fmt.Errorf("%w: %s requires a destination uri", types.ErrIllegalArgument, msg.Action)
	}
	id := msg.SubscriptionId
	if id == "" {
		if msg.Action == ActionUpdate {
			return nil, fmt.Errorf("%w: update requires a subscription id", types.ErrIllegalArgument)
		}
		uuId, _ := uuid.NewV4()
		id = uuId.String()
	}
	language, expression := msg.ExpressionLanguage, msg.Predicate
	if msg.PredicateBean != "" {
		language, expression = predicate.LanguageBean, msg.PredicateBean
	} else if expression == "" {
		return nil, fmt.Errorf("%w: %s requires a predicate or a predicate bean", types.ErrIllegalArgument, msg.Action)
	}
	if language == "" {
		language = predicate.LanguageExpr
	}
	pred, err := predicate.New(p.endpoint.config, language, expression)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", types.ErrIllegalArgument, err)
	}
	priority := DefaultPriority
	if msg.Priority != nil {
		priority = *msg.Priority
	}
	filter := p.endpoint.filterService.CreateFilter(id, priority, pred, msg.DestinationUri)
	filter.Owner = owner
	filter.Expression = expression
	filter.Language = language
	return filter, nil
}

func setJSONBody(exchange *types.Exchange, v interface{}) error {
	body, err := json.MarshalString(v)
	if err != nil {
		return err
	}
	exchange.In.Body = body
	exchange.In.DataType = types.JSON
	return nil
}
