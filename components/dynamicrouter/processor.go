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
	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/components/recipientlist"
)

var _ types.AsyncProcessor = (*Processor)(nil)

// Processor computes the recipients of an exchange on a channel and hands
// it to a recipient list reading HeaderRecipientList.
type Processor struct {
	channel            string
	recipientMode      string
	warnDroppedMessage bool
	filterService      *FilterService
	recipientList      *recipientlist.RecipientList
}

// NewProcessor creates the processor of a channel.
func NewProcessor(channel string, recipientMode string, warnDroppedMessage bool,
	filterService *FilterService, recipientList *recipientlist.RecipientList) *Processor {
	return &Processor{
		channel:            channel,
		recipientMode:      recipientMode,
		warnDroppedMessage: warnDroppedMessage,
		filterService:      filterService,
		recipientList:      recipientList,
	}
}

// PrepareExchange writes the recipients of exchange to HeaderRecipientList.
// The header is empty when no filter matched.
func (p *Processor) PrepareExchange(exchange *types.Exchange) error {
	recipients, err := p.filterService.GetMatchingEndpointsForExchangeByChannel(
		exchange, p.channel, p.recipientMode == ModeFirstMatch, p.warnDroppedMessage)
	if err != nil {
		return err
	}
	if exchange.In.Headers == nil {
		exchange.In.Headers = types.NewHeaders()
	}
	exchange.In.Headers.PutValue(HeaderRecipientList, recipients)
	return nil
}

func (p *Processor) Process(exchange *types.Exchange) error {
	if err := p.PrepareExchange(exchange); err != nil {
		exchange.Err = err
		return err
	}
	return p.recipientList.Process(exchange)
}

// ProcessAsync prepares exchange on the calling goroutine, then dispatches
// it asynchronously. A preparation error completes synchronously.
func (p *Processor) ProcessAsync(exchange *types.Exchange, callback types.AsyncCallback) bool {
	if err := p.PrepareExchange(exchange); err != nil {
		exchange.Err = err
		callback(true)
		return true
	}
	return p.recipientList.ProcessAsync(exchange, callback)
}

func (p *Processor) Start() error {
	return p.recipientList.Start()
}

func (p *Processor) Stop() error {
	return p.recipientList.Stop()
}

func (p *Processor) String() string {
	return "DynamicRouterProcessor[channel=" + p.channel + ", mode=" + p.recipientMode + "]"
}
