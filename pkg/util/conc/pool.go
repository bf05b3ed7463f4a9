// Licensed to the LF AI & Data foundation under one
// or more contributor license agreements. See the NOTICE file
// distributed with this work for additional information
// regarding copyright ownership. The ASF licenses this file
// to you under the Apache License, Version 2.0 (the
// "License"); you may not use this file except in compliance
// with the License. You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package conc

import (
	"runtime"

	ants "github.com/panjf2000/ants/v2"

	"github.com/lk2023060901/serialkit/pkg/util/merr"
)

// Pool 是基于 ants 的协程池，Submit 为每个任务返回一个 Future。
type Pool[T any] struct {
	inner *ants.Pool
	opt   *poolOption
}

// NewPool 创建容量为 cap 的协程池，cap <= 0 时使用 GOMAXPROCS。
func NewPool[T any](cap int, opts ...PoolOption) (*Pool[T], error) {
	if cap <= 0 {
		cap = runtime.GOMAXPROCS(0)
	}
	opt := defaultPoolOption()
	for _, o := range opts {
		o(opt)
	}
	pool, err := ants.NewPool(cap, opt.antsOptions()...)
	if err != nil {
		return nil, merr.WrapErrParameterInvalidMsg("create pool %s: %s", opt.name, err.Error())
	}
	return &Pool[T]{inner: pool, opt: opt}, nil
}

// Submit 提交一个任务。协程池已关闭或以非阻塞方式满载时，返回的 Future 立即失败。
func (pool *Pool[T]) Submit(method func() (T, error)) *Future[T] {
	future := newFuture[T]()
	err := pool.inner.Submit(func() {
		defer close(future.ch)
		defer func() {
			if x := recover(); x != nil {
				future.err = merr.WrapErrProtocolMisuse("task panicked", pool.opt.name)
				panic(x)
			}
		}()
		if pool.opt.preHandler != nil {
			pool.opt.preHandler()
		}
		future.value, future.err = method()
	})
	if err != nil {
		future.err = err
		close(future.ch)
	}
	return future
}

// Cap 返回协程池容量。
func (pool *Pool[T]) Cap() int {
	return pool.inner.Cap()
}

// Running 返回正在执行任务的 worker 数。
func (pool *Pool[T]) Running() int {
	return pool.inner.Running()
}

// Free 返回空闲 worker 数。
func (pool *Pool[T]) Free() int {
	return pool.inner.Free()
}

// Release 关闭协程池，已提交的任务会继续执行完毕。
func (pool *Pool[T]) Release() {
	pool.inner.Release()
}

// Resize 调整协程池容量。
func (pool *Pool[T]) Resize(size int) error {
	if size <= 0 {
		return merr.WrapErrParameterInvalid(1, size, "pool size must be positive")
	}
	pool.inner.Tune(size)
	return nil
}
