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

package persistence

import "context"

// VolumeFilter selects Volume records. Zero-value fields are ignored;
// all set fields are AND-combined.
type VolumeFilter struct {
	ID      string
	Name    string
	Backend string
}

// SnapshotFilter selects Snapshot records.
type SnapshotFilter struct {
	ID       string
	Name     string
	VolumeID string
}

// ConnectionFilter selects Connection records.
type ConnectionFilter struct {
	ID       string
	VolumeID string
}

// Store is the persistence abstraction over Volume, Snapshot, Connection
// and KeyValue records, implemented by the db (SQL) and crd (Kubernetes
// Custom Resource) backends.
//
// Get* calls with no matching record return an empty slice, never an
// error. Delete* on an absent record is a no-op.
type Store interface {
	GetVolumes(ctx context.Context, filter VolumeFilter) ([]Volume, error)
	SetVolume(ctx context.Context, v Volume) error
	DeleteVolume(ctx context.Context, id string) error

	GetSnapshots(ctx context.Context, filter SnapshotFilter) ([]Snapshot, error)
	SetSnapshot(ctx context.Context, s Snapshot) error
	DeleteSnapshot(ctx context.Context, id string) error

	GetConnections(ctx context.Context, filter ConnectionFilter) ([]Connection, error)
	SetConnection(ctx context.Context, c Connection) error
	DeleteConnection(ctx context.Context, id string) error

	GetKeyValue(ctx context.Context, key string) (KeyValue, bool, error)
	SetKeyValue(ctx context.Context, kv KeyValue) error
	DeleteKeyValue(ctx context.Context, key string) error

	// Close releases any resources (DB connections, k8s client caches)
	// held by the backend.
	Close() error
}
