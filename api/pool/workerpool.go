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

// Package pool provides the goroutine pool used as the default executor for
// parallel recipient dispatch and asynchronous processing.
//
// The worker scheduling follows fasthttp's workerpool.go: idle workers are
// reused in FILO order and reaped after MaxIdleWorkerDuration.
package pool

import (
	"errors"
	"runtime"
	"sync"
	"time"
)

var (
	// ErrPoolFull is returned by Submit when every worker is busy.
	ErrPoolFull = errors.New("no idle workers")
	// ErrPoolStopped is returned by Submit after Stop.
	ErrPoolStopped = errors.New("pool is stopped")
)

// WorkerPool runs submitted tasks on a bounded set of reusable goroutines.
//
//	wp := &pool.WorkerPool{Name: "router", MaxWorkersCount: 64}
//	wp.Start()
//	defer wp.Stop()
//	_ = wp.Submit(func() { ... })
type WorkerPool struct {
	// Name identifies the pool in logs and statistics.
	Name string
	// MaxWorkersCount bounds the number of goroutines.
	MaxWorkersCount int
	// MaxIdleWorkerDuration is how long an idle worker is kept. Default 10s.
	MaxIdleWorkerDuration time.Duration

	lock         sync.Mutex
	workersCount int
	mustStop     bool
	ready        []*worker
	stopCh       chan struct{}
	workerPool   sync.Pool
	startOnce    sync.Once

	submitted uint64
	rejected  uint64
}

type worker struct {
	lastUseTime time.Time
	tasks       chan func()
}

// Stats is a snapshot of pool counters.
type Stats struct {
	Name      string
	Workers   int
	Idle      int
	Submitted uint64
	Rejected  uint64
}

// workerCap is 0 on a single cpu so Submit hands over immediately.
var workerCap = func() int {
	if runtime.GOMAXPROCS(0) == 1 {
		return 0
	}
	return 1
}()

// Start launches the idle worker reaper. Calling it more than once is a no-op.
func (wp *WorkerPool) Start() {
	wp.startOnce.Do(func() {
		wp.lock.Lock()
		wp.stopCh = make(chan struct{})
		wp.mustStop = false
		stopCh := wp.stopCh
		wp.lock.Unlock()
		wp.workerPool.New = func() interface{} {
			return &worker{tasks: make(chan func(), workerCap)}
		}
		go func() {
			var scratch []*worker
			ticker := time.NewTicker(wp.idleDuration())
			defer ticker.Stop()
			for {
				select {
				case <-stopCh:
					return
				case <-ticker.C:
					wp.reap(&scratch)
				}
			}
		}()
	})
}

// Stop rejects new tasks and terminates idle workers. Busy workers exit after
// finishing their current task.
func (wp *WorkerPool) Stop() {
	wp.lock.Lock()
	if wp.stopCh == nil || wp.mustStop {
		wp.lock.Unlock()
		return
	}
	close(wp.stopCh)
	wp.mustStop = true
	ready := wp.ready
	wp.ready = nil
	wp.lock.Unlock()
	for _, w := range ready {
		w.tasks <- nil
	}
}

// Release is Stop, satisfying types.Pool.
func (wp *WorkerPool) Release() {
	wp.Stop()
}

// Submit runs fn on an idle or new worker.
func (wp *WorkerPool) Submit(fn func()) error {
	w, err := wp.acquire()
	if err != nil {
		return err
	}
	w.tasks <- fn
	return nil
}

// Stats returns the current counters.
func (wp *WorkerPool) Stats() Stats {
	wp.lock.Lock()
	defer wp.lock.Unlock()
	return Stats{
		Name:      wp.Name,
		Workers:   wp.workersCount,
		Idle:      len(wp.ready),
		Submitted: wp.submitted,
		Rejected:  wp.rejected,
	}
}

func (wp *WorkerPool) idleDuration() time.Duration {
	if wp.MaxIdleWorkerDuration <= 0 {
		return 10 * time.Second
	}
	return wp.MaxIdleWorkerDuration
}

func (wp *WorkerPool) acquire() (*worker, error) {
	wp.lock.Lock()
	if wp.mustStop {
		wp.rejected++
		wp.lock.Unlock()
		return nil, ErrPoolStopped
	}
	if n := len(wp.ready); n > 0 {
		w := wp.ready[n-1]
		wp.ready[n-1] = nil
		wp.ready = wp.ready[:n-1]
		wp.submitted++
		wp.lock.Unlock()
		return w, nil
	}
	if wp.workersCount >= wp.MaxWorkersCount {
		wp.rejected++
		wp.lock.Unlock()
		return nil, ErrPoolFull
	}
	wp.workersCount++
	wp.submitted++
	wp.lock.Unlock()

	v := wp.workerPool.Get()
	if v == nil {
		// Submit before Start.
		v = &worker{tasks: make(chan func(), workerCap)}
	}
	w := v.(*worker)
	go func() {
		wp.run(w)
		wp.workerPool.Put(v)
	}()
	return w, nil
}

func (wp *WorkerPool) run(w *worker) {
	for fn := range w.tasks {
		if fn == nil {
			break
		}
		fn()
		if !wp.park(w) {
			break
		}
	}
	wp.lock.Lock()
	wp.workersCount--
	wp.lock.Unlock()
}

// park returns w to the idle list. It reports false when the pool is stopping.
func (wp *WorkerPool) park(w *worker) bool {
	w.lastUseTime = time.Now()
	wp.lock.Lock()
	defer wp.lock.Unlock()
	if wp.mustStop {
		return false
	}
	wp.ready = append(wp.ready, w)
	return true
}

// reap stops workers idle for longer than MaxIdleWorkerDuration. The idle
// list is ordered by lastUseTime, oldest first.
func (wp *WorkerPool) reap(scratch *[]*worker) {
	critical := time.Now().Add(-wp.idleDuration())

	wp.lock.Lock()
	ready := wp.ready
	n := len(ready)
	l, r := 0, n-1
	for l <= r {
		mid := (l + r) / 2
		if critical.After(ready[mid].lastUseTime) {
			l = mid + 1
		} else {
			r = mid - 1
		}
	}
	if r < 0 {
		wp.lock.Unlock()
		return
	}
	*scratch = append((*scratch)[:0], ready[:r+1]...)
	m := copy(ready, ready[r+1:])
	for i := m; i < n; i++ {
		ready[i] = nil
	}
	wp.ready = ready[:m]
	wp.lock.Unlock()

	// Outside the lock: a send may block until the worker wakes up.
	tmp := *scratch
	for i := range tmp {
		tmp[i].tasks <- nil
		tmp[i] = nil
	}
}
