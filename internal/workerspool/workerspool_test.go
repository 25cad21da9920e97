// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package workerspool

import (
	"runtime"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPool_Run(t *testing.T) {
	const maxParallelism, numTasks = 3, 50
	pool := New(maxParallelism)
	require.Equal(t, maxParallelism, pool.MaxParallelism())

	var running, maxRunning atomic.Int32
	results := make([]int, numTasks)
	pool.Run(numTasks, func(ii int) {
		n := running.Add(1)
		for {
			current := maxRunning.Load()
			if n <= current || maxRunning.CompareAndSwap(current, n) {
				break
			}
		}
		runtime.Gosched()
		time.Sleep(time.Millisecond)
		results[ii] = ii * ii
		running.Add(-1)
	})
	assert.Zero(t, running.Load())
	assert.LessOrEqual(t, int(maxRunning.Load()), maxParallelism)
	for ii, r := range results {
		assert.Equal(t, ii*ii, r)
	}

	// Pool is reusable.
	var count atomic.Int32
	pool.Run(10, func(int) { count.Add(1) })
	assert.Equal(t, int32(10), count.Load())
}

func TestPool_Default(t *testing.T) {
	assert.Equal(t, runtime.NumCPU(), New(0).MaxParallelism())
	assert.Equal(t, runtime.NumCPU(), New(-1).MaxParallelism())

	// Wait without tasks returns immediately.
	done := make(chan struct{})
	go func() {
		New(1).Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Wait blocked on an idle pool")
	}
}
