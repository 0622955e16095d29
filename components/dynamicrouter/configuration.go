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

	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/components/recipientlist"
	"github.com/rulego/rulego-connectors/utils/maps"
)

// Configuration of a dynamic-router endpoint. Recipient list options are
// passed through to the dispatcher.
type Configuration struct {
	// Channel is the uri remaining part.
	Channel string `mapstructure:"-"`
	// RecipientMode is firstMatch (default) or allMatch.
	RecipientMode string
	// Synchronous makes producers dispatch on the calling goroutine.
	Synchronous bool
	// WarnDroppedMessage logs exchanges no filter matched at WARN instead of DEBUG.
	WarnDroppedMessage bool

	recipientlist.Configuration `mapstructure:",squash"`
}

// NewConfiguration decodes endpoint parameters and validates them.
func NewConfiguration(channel string, params types.Configuration) (Configuration, error) {
	config := Configuration{RecipientMode: ModeFirstMatch}
	if err := maps.Map2Struct(params, &config); err != nil {
		return config, fmt.Errorf("%w: %s", types.ErrIllegalArgument, err)
	}
	config.Channel = channel
	if config.RecipientMode == "" {
		config.RecipientMode = ModeFirstMatch
	}
	return config, config.Validate()
}

// Validate checks the router options. Bean references are checked when the
// recipient list is created.
func (c Configuration) Validate() error {
	if c.Channel == "" {
		return fmt.Errorf("%w: dynamic router channel is required", types.ErrIllegalArgument)
	}
	if c.RecipientMode != ModeFirstMatch && c.RecipientMode != ModeAllMatch {
		return fmt.Errorf("%w: recipientMode must be %s or %s, got %s",
			types.ErrIllegalArgument, ModeFirstMatch, ModeAllMatch, c.RecipientMode)
	}
	return c.Configuration.Validate()
}
