// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package workerspool runs image decoding tasks with bounded parallelism.
package workerspool

import (
	"runtime"
	"sync"
)

// Pool of workers. A Pool can be reused after Wait returns.
type Pool struct {
	// maxParallelism is the maximum number of tasks running at the same time.
	maxParallelism int

	mu         sync.Mutex
	cond       sync.Cond // Signaled whenever numRunning is decreased.
	numRunning int
}

// New returns a new Pool running at most maxParallelism tasks at a time.
// If maxParallelism <= 0 it uses runtime.NumCPU().
func New(maxParallelism int) *Pool {
	if maxParallelism <= 0 {
		maxParallelism = runtime.NumCPU()
	}
	w := &Pool{maxParallelism: maxParallelism}
	w.cond = sync.Cond{L: &w.mu}
	return w
}

// MaxParallelism returns the maximum number of tasks running at the same time.
func (w *Pool) MaxParallelism() int {
	return w.maxParallelism
}

// WaitToStart waits until there is a worker available and runs task in a new goroutine.
func (w *Pool) WaitToStart(task func()) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.numRunning >= w.maxParallelism {
		w.cond.Wait()
	}
	w.numRunning++
	go func() {
		defer w.done()
		task()
	}()
}

func (w *Pool) done() {
	w.mu.Lock()
	w.numRunning--
	w.cond.Broadcast()
	w.mu.Unlock()
}

// Wait blocks until all started tasks are finished.
func (w *Pool) Wait() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for w.numRunning > 0 {
		w.cond.Wait()
	}
}

// Run calls fn(ii) for every ii in [0, n), at most MaxParallelism at a time, and returns when they are all done.
func (w *Pool) Run(n int, fn func(ii int)) {
	for ii := range n {
		w.WaitToStart(func() { fn(ii) })
	}
	w.Wait()
}
