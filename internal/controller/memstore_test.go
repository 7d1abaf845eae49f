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

package controller

import (
	"context"
	"sync"

	"github.com/embercsi/ember-csi-go/internal/persistence"
)

// memStore is a minimal in-memory persistence.Store used by this
// package's tests, grounded on the field semantics persistence.Store's
// doc comment specifies (Get* never errors on absence, Delete* on an
// absent record is a no-op).
type memStore struct {
	mu          sync.Mutex
	volumes     map[string]persistence.Volume
	snapshots   map[string]persistence.Snapshot
	connections map[string]persistence.Connection
	kv          map[string]persistence.KeyValue
}

func newMemStore() *memStore {
	return &memStore{
		volumes:     map[string]persistence.Volume{},
		snapshots:   map[string]persistence.Snapshot{},
		connections: map[string]persistence.Connection{},
		kv:          map[string]persistence.KeyValue{},
	}
}

func (s *memStore) GetVolumes(_ context.Context, filter persistence.VolumeFilter) ([]persistence.Volume, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []persistence.Volume
	for _, v := range s.volumes {
		if filter.ID != "" && v.ID != filter.ID {
			continue
		}
		if filter.Name != "" && v.Name != filter.Name {
			continue
		}
		if filter.Backend != "" && v.BackendID != filter.Backend {
			continue
		}
		out = append(out, v)
	}

	return out, nil
}

func (s *memStore) SetVolume(_ context.Context, v persistence.Volume) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.volumes[v.ID] = v

	return nil
}

func (s *memStore) DeleteVolume(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.volumes, id)

	return nil
}

func (s *memStore) GetSnapshots(_ context.Context, filter persistence.SnapshotFilter) ([]persistence.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []persistence.Snapshot
	for _, sn := range s.snapshots {
		if filter.ID != "" && sn.ID != filter.ID {
			continue
		}
		if filter.Name != "" && sn.Name != filter.Name {
			continue
		}
		if filter.VolumeID != "" && sn.VolumeID != filter.VolumeID {
			continue
		}
		out = append(out, sn)
	}

	return out, nil
}

func (s *memStore) SetSnapshot(_ context.Context, sn persistence.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[sn.ID] = sn

	return nil
}

func (s *memStore) DeleteSnapshot(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, id)

	return nil
}

func (s *memStore) GetConnections(_ context.Context, filter persistence.ConnectionFilter) ([]persistence.Connection, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []persistence.Connection
	for _, c := range s.connections {
		if filter.ID != "" && c.ID != filter.ID {
			continue
		}
		if filter.VolumeID != "" && c.VolumeID != filter.VolumeID {
			continue
		}
		out = append(out, c)
	}

	return out, nil
}

func (s *memStore) SetConnection(_ context.Context, c persistence.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connections[c.ID] = c

	return nil
}

func (s *memStore) DeleteConnection(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.connections, id)

	return nil
}

func (s *memStore) GetKeyValue(_ context.Context, key string) (persistence.KeyValue, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kv, ok := s.kv[key]

	return kv, ok, nil
}

func (s *memStore) SetKeyValue(_ context.Context, kv persistence.KeyValue) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.kv[kv.Key] = kv

	return nil
}

func (s *memStore) DeleteKeyValue(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.kv, key)

	return nil
}

func (s *memStore) Close() error { return nil }

var _ persistence.Store = (*memStore)(nil)
