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

// Package idempotency implements the per-resource-id request serializer
// that keeps concurrent orchestrator retries for the same volume, snapshot
// or name safe.
package idempotency

import (
	"fmt"
	"sync"

	"k8s.io/apimachinery/pkg/util/sets"
)

// OperationAlreadyExistsFmt is the message format used when a duplicate
// request is rejected instead of queued.
const OperationAlreadyExistsFmt = "an operation with the given ID %s already exists"

// Mode selects how the Serializer behaves when a second caller arrives for
// a key that is already being served.
type Mode int

const (
	// QueueDuplicates blocks the second caller until the first releases the
	// key, then lets it proceed. This is the default.
	QueueDuplicates Mode = iota
	// AbortDuplicates rejects the second caller immediately.
	AbortDuplicates
)

// Serializer enforces mutual exclusion per extraction key across concurrent
// RPC handlers. A single Serializer is shared process-wide; handlers for
// distinct keys never block each other.
type Serializer struct {
	mode Mode

	mu      sync.Mutex
	queued  sets.Set[string]
	waiters map[string]chan struct{}
}

// NewSerializer returns a Serializer running in the given Mode.
func NewSerializer(mode Mode) *Serializer {
	return &Serializer{
		mode:    mode,
		queued:  sets.New[string](),
		waiters: make(map[string]chan struct{}),
	}
}

// Acquire blocks (in QueueDuplicates mode) or returns immediately (in
// AbortDuplicates mode) until the caller either holds the key exclusively
// or should be rejected. ok is false when the caller must abort the RPC
// with a "concurrent-conflicting-op" error; the caller must not call
// Release in that case.
//
// In QueueDuplicates mode a caller waits once for the current holder to
// finish, then re-checks the record: if it is now clear it is served, if a
// different caller grabbed it first this caller yields ABORTED rather than
// waiting indefinitely.
func (s *Serializer) Acquire(key string) (ok bool) {
	s.mu.Lock()
	if !s.queued.Has(key) {
		s.queued.Insert(key)
		s.mu.Unlock()

		return true
	}

	if s.mode == AbortDuplicates {
		s.mu.Unlock()

		return false
	}

	wait, ok := s.waiters[key]
	if !ok {
		wait = make(chan struct{})
		s.waiters[key] = wait
	}
	s.mu.Unlock()

	<-wait

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.queued.Has(key) {
		s.queued.Insert(key)

		return true
	}

	return false
}

// Release frees the key, waking any queued waiter.
func (s *Serializer) Release(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.queued.Delete(key)
	if wait, ok := s.waiters[key]; ok {
		delete(s.waiters, key)
		close(wait)
	}
}

// ErrorMessage formats the standard rejection message for key.
func ErrorMessage(key string) string {
	return fmt.Sprintf(OperationAlreadyExistsFmt, key)
}
