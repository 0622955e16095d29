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

//The schedule parameter takes a cron expression with seconds:
//
//Field name   | Mandatory? | Allowed values  | Allowed special characters
//----------   | ---------- | --------------  | --------------------------
//Seconds      | Yes        | 0-59            | * / , -
//Minutes      | Yes        | 0-59            | * / , -
//Hours        | Yes        | 0-23            | * / , -
//Day of month | Yes        | 1-31            | * / , - ?
//Month        | Yes        | 1-12 or JAN-DEC | * / , -
//Day of week  | Yes        | 0-6 or SUN-SAT  | * / , - ?
//
//or one of @yearly, @monthly, @weekly, @daily, @hourly and @every <duration>.

package api

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rulego/rulego-connectors/api/types"
	"github.com/rulego/rulego-connectors/components/base"
)

// Consumer polls the endpoint method on a schedule and emits the result.
type Consumer struct {
	base.Consumer
	endpoint *Endpoint
	method   *ApiMethod

	lock sync.Mutex
	cron *cron.Cron
}

// Method returns the method polled.
func (c *Consumer) Method() *ApiMethod {
	return c.method
}

func (c *Consumer) Start() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	if c.cron != nil {
		return nil
	}
	schedule := c.endpoint.Config.Schedule
	if schedule == "" {
		delay := c.endpoint.Config.Delay
		if delay <= 0 {
			delay = DefaultDelay
		}
		schedule = fmt.Sprintf("@every %s", delay)
	}
	c.Reset()
	scheduler := cron.New(cron.WithSeconds())
	if _, err := scheduler.AddFunc(schedule, c.handler); err != nil {
		return fmt.Errorf("%w: invalid schedule %q: %s", types.ErrIllegalArgument, schedule, err)
	}
	scheduler.Start()
	c.cron = scheduler
	return nil
}

func (c *Consumer) Stop() error {
	c.lock.Lock()
	scheduler := c.cron
	c.cron = nil
	c.lock.Unlock()
	if scheduler != nil {
		<-scheduler.Stop().Done()
	}
	c.Shutdown(base.DefaultShutdownTimeout)
	return nil
}

func (c *Consumer) handler() {
	if _, err := c.Poll(context.Background()); err != nil {
		types.Errorf(c.endpoint.ctx.Config().Logger, "api consumer %s poll error: %v", c.endpoint.Uri(), err)
	}
}

// Poll invokes the method once and hands the result to the processor. It
// returns the number of exchanges processed.
func (c *Consumer) Poll(ctx context.Context) (int, error) {
	e := c.endpoint
	result, err := e.Helper.InvokeMethod(ctx, e.Proxy, c.method, e.Properties)
	if err != nil {
		return 0, err
	}
	var headers map[string]string
	if r, ok := result.(*Result); ok {
		result, headers = r.Value, r.Headers
	}
	var values []any
	if e.Config.SplitResult && isSlice(result) {
		v := reflect.ValueOf(result)
		for i := 0; i < v.Len(); i++ {
			values = append(values, v.Index(i).Interface())
		}
	} else {
		values = []any{result}
	}
	n := 0
	for _, value := range values {
		exchange := types.NewExchangeWithBody(ctx, "")
		if err := SetResult(exchange, &Result{Value: value, Headers: headers}, e.Config.ResultHeader); err != nil {
			return n, err
		}
		if err := c.Handle(exchange); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

func isSlice(v any) bool {
	if v == nil {
		return false
	}
	if _, ok := v.([]byte); ok {
		return false
	}
	kind := reflect.TypeOf(v).Kind()
	return kind == reflect.Slice || kind == reflect.Array
}
