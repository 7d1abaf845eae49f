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

package identity

import (
	"context"
	"sync"

	"github.com/embercsi/ember-csi-go/internal/persistence"
)

// memStore is a minimal in-memory persistence.Store used by this
// package's tests, mirroring internal/node's and internal/controller's
// test doubles. Unlike internal/node's, it actually implements KeyValue
// storage since Probe exercises it directly.
type memStore struct {
	mu          sync.Mutex
	kvs         map[string]persistence.KeyValue
	failNextGet error
	failNextSet error
}

func newMemStore() *memStore {
	return &memStore{kvs: map[string]persistence.KeyValue{}}
}

func (s *memStore) GetVolumes(_ context.Context, persistence.VolumeFilter) ([]persistence.Volume, error) {
	return nil, nil
}

func (s *memStore) SetVolume(_ context.Context, persistence.Volume) error { return nil }

func (s *memStore) DeleteVolume(_ context.Context, string) error { return nil }

func (s *memStore) GetSnapshots(_ context.Context, persistence.SnapshotFilter) ([]persistence.Snapshot, error) {
	return nil, nil
}

func (s *memStore) SetSnapshot(_ context.Context, persistence.Snapshot) error { return nil }

func (s *memStore) DeleteSnapshot(_ context.Context, string) error { return nil }

func (s *memStore) GetConnections(_ context.Context, persistence.ConnectionFilter) ([]persistence.Connection, error) {
	return nil, nil
}

func (s *memStore) SetConnection(_ context.Context, persistence.Connection) error { return nil }

func (s *memStore) DeleteConnection(_ context.Context, string) error { return nil }

func (s *memStore) GetKeyValue(_ context.Context, key string) (persistence.KeyValue, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNextGet != nil {
		err := s.failNextGet
		s.failNextGet = nil

		return persistence.KeyValue{}, false, err
	}

	kv, ok := s.kvs[key]

	return kv, ok, nil
}

func (s *memStore) SetKeyValue(_ context.Context, kv persistence.KeyValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNextSet != nil {
		err := s.failNextSet
		s.failNextSet = nil

		return err
	}
	s.kvs[kv.Key] = kv

	return nil
}

func (s *memStore) DeleteKeyValue(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kvs, key)

	return nil
}

func (s *memStore) Close() error { return nil }

var _ persistence.Store = (*memStore)(nil)
