/*
Copyright 2024 The ember-csi-go Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package csicommon

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
)

func TestWorkerPoolBoundsConcurrency(t *testing.T) {
	t.Parallel()

	pool := newWorkerPool(2)

	var inFlight, maxInFlight int32
	release := make(chan struct{})

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		cur := atomic.AddInt32(&inFlight, 1)
		for {
			old := atomic.LoadInt32(&maxInFlight)
			if cur <= old || atomic.CompareAndSwapInt32(&maxInFlight, old, cur) {
				break
			}
		}
		<-release
		atomic.AddInt32(&inFlight, -1)

		return nil, nil
	}

	info := &grpc.UnaryServerInfo{FullMethod: "test"}

	done := make(chan struct{})
	for i := 0; i < 5; i++ {
		go func() {
			_, _ = pool.intercept(context.Background(), nil, info, handler)
			done <- struct{}{}
		}()
	}

	time.Sleep(50 * time.Millisecond)
	require.LessOrEqual(t, atomic.LoadInt32(&inFlight), int32(2))

	close(release)
	for i := 0; i < 5; i++ {
		<-done
	}

	require.LessOrEqual(t, atomic.LoadInt32(&maxInFlight), int32(2))
}

func TestWorkerPoolReleasesOnContextDone(t *testing.T) {
	t.Parallel()

	pool := newWorkerPool(1)
	blocked := make(chan struct{})
	release := make(chan struct{})

	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		close(blocked)
		<-release

		return nil, nil
	}
	info := &grpc.UnaryServerInfo{FullMethod: "test"}

	go func() {
		_, _ = pool.intercept(context.Background(), nil, info, handler)
	}()
	<-blocked

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := pool.intercept(ctx, nil, info, handler)
	require.Error(t, err)

	close(release)
}
