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

package test

import (
	"fmt"
	"strings"
	"sync"

	"github.com/rulego/rulego-connectors/api/types"
)

// RecordingLogger keeps every logged line.
type RecordingLogger struct {
	lock  sync.Mutex
	lines []string
}

func (l *RecordingLogger) Printf(format string, v ...interface{}) {
	l.lock.Lock()
	defer l.lock.Unlock()
	l.lines = append(l.lines, fmt.Sprintf(format, v...))
}

// Lines returns the logged lines.
func (l *RecordingLogger) Lines() []string {
	l.lock.Lock()
	defer l.lock.Unlock()
	return append([]string(nil), l.lines...)
}

// Contains reports whether a logged line contains every part.
func (l *RecordingLogger) Contains(parts ...string) bool {
	for _, line := range l.Lines() {
		matched := true
		for _, p := range parts {
			if !strings.Contains(line, p) {
				matched = false
				break
			}
		}
		if matched {
			return true
		}
	}
	return false
}

// NewConfig returns a configuration logging at DEBUG into logger.
func NewConfig(logger *RecordingLogger, opts ...types.Option) types.Config {
	opts = append([]types.Option{types.WithLogger(types.NewLevelLogger(logger, types.DebugLevel))}, opts...)
	return types.NewConfig(opts...)
}

// Collector is a processor recording the bodies it receives.
type Collector struct {
	lock   sync.Mutex
	bodies []string
	// Reply replaces the body when set.
	Reply func(body string) (string, error)
}

func (c *Collector) Process(exchange *types.Exchange) error {
	c.lock.Lock()
	c.bodies = append(c.bodies, exchange.In.Body)
	c.lock.Unlock()
	if c.Reply != nil {
		body, err := c.Reply(exchange.In.Body)
		if err != nil {
			return err
		}
		exchange.In.Body = body
	}
	return nil
}

// Bodies returns the received bodies.
func (c *Collector) Bodies() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	return append([]string(nil), c.bodies...)
}

// Count returns the number of received exchanges.
func (c *Collector) Count() int {
	c.lock.Lock()
	defer c.lock.Unlock()
	return len(c.bodies)
}
