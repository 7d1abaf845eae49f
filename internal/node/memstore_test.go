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

package node

import (
	"context"
	"sync"

	"github.com/embercsi/ember-csi-go/internal/persistence"
)

// memStore is a minimal in-memory persistence.Store used by this
// package's tests, mirroring internal/controller's test double.
type memStore struct {
	mu          sync.Mutex
	volumes     map[string]persistence.Volume
	connections map[string]persistence.Connection
}

func newMemStore() *memStore {
	return &memStore{
		volumes:     map[string]persistence.Volume{},
		connections: map[string]persistence.Connection{},
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

func (s *memStore) GetSnapshots(_ context.Context, persistence.SnapshotFilter) ([]persistence.Snapshot, error) {
	return nil, nil
}

func (s *memStore) SetSnapshot(_ context.Context, persistence.Snapshot) error { return nil }

func (s *memStore) DeleteSnapshot(_ context.Context, string) error { return nil }

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

func (s *memStore) GetKeyValue(_ context.Context, string) (persistence.KeyValue, bool, error) {
	return persistence.KeyValue{}, false, nil
}

func (s *memStore) SetKeyValue(_ context.Context, persistence.KeyValue) error { return nil }

func (s *memStore) DeleteKeyValue(_ context.Context, string) error { return nil }

func (s *memStore) Close() error { return nil }

var _ persistence.Store = (*memStore)(nil)
