/*
 * Copyright 2024 The RuleGo Authors.
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

package base

import (
	"sync"
	"sync/atomic"
	"time"
)

// DefaultShutdownTimeout bounds how long Shutdown waits for in-flight work.
const DefaultShutdownTimeout = 10 * time.Second

// GracefulShutdown counts in-flight operations and lets a stopping consumer
// wait for them to drain. The zero value is ready to use and can be reset
// with Reset for a restart.
type GracefulShutdown struct {
	shuttingDown int32
	active       sync.WaitGroup
	activeCount  int64
}

// BeginOp registers an operation. It returns false once shutdown started.
func (g *GracefulShutdown) BeginOp() bool {
	if atomic.LoadInt32(&g.shuttingDown) == 1 {
		return false
	}
	g.active.Add(1)
	atomic.AddInt64(&g.activeCount, 1)
	return true
}

// EndOp completes an operation started with BeginOp.
func (g *GracefulShutdown) EndOp() {
	atomic.AddInt64(&g.activeCount, -1)
	g.active.Done()
}

// IsShuttingDown reports whether Shutdown was called.
func (g *GracefulShutdown) IsShuttingDown() bool {
	return atomic.LoadInt32(&g.shuttingDown) == 1
}

// ActiveOps returns the number of in-flight operations.
func (g *GracefulShutdown) ActiveOps() int64 {
	return atomic.LoadInt64(&g.activeCount)
}

// Shutdown rejects new operations and waits up to timeout for in-flight ones.
// It reports whether every operation completed in time.
func (g *GracefulShutdown) Shutdown(timeout time.Duration) bool {
	atomic.StoreInt32(&g.shuttingDown, 1)
	if timeout <= 0 {
		timeout = DefaultShutdownTimeout
	}
	done := make(chan struct{})
	go func() {
		g.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Reset accepts operations again after a Shutdown.
func (g *GracefulShutdown) Reset() {
	atomic.StoreInt32(&g.shuttingDown, 0)
}
