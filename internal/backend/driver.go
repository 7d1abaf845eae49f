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

// Package backend defines the narrow interface the Controller and Node
// services drive an arbitrary block-storage backend (iSCSI, FC, NVMe-oF,
// Ceph, ...) through. The backend itself is deliberately out of scope;
// this package specifies only the surface consumed, grounded on the
// method shapes of internal/rbd.rbdVolume (Connect, Exists, deleteImage,
// extend, snapshot/clone calls).
package backend

import "context"

// ConnectorInfo is the set of identifiers a connector needs to attach a
// volume once the backend has exposed it to a host (target/portal/LUN,
// NVMe subsystem nqn, etc). Keys and values are backend-specific.
type ConnectorInfo map[string]string

// Stats summarizes backend-wide capacity, refreshed on demand by
// GetCapacity and Probe.
type Stats struct {
	FreeGB  int64
	TotalGB int64
}

// CreateParams carries the parameters CreateVolume extracts from the
// request (size plus the qos_/xtra_ prefixed parameter maps) through to
// the backend.
type CreateParams struct {
	SizeGB   int64
	QoS      map[string]string
	ExtraSpecs map[string]string
}

// Driver is the storage-backend surface the Controller and Node services
// consume. An implementation owns talking to the actual storage system;
// ember-csi-go owns CSI semantics, persistence and idempotency around it.
type Driver interface {
	// CreateVolume provisions a new volume of size params.SizeGB and
	// returns the backend-assigned volume id.
	CreateVolume(ctx context.Context, name string, params CreateParams) (backendID string, err error)

	// DeleteVolume removes a volume. Must be idempotent: deleting an
	// already-absent backendID returns nil.
	DeleteVolume(ctx context.Context, backendID string) error

	// CloneVolume creates a new volume as a copy of sourceBackendID,
	// resized to sizeGB if larger than the source.
	CloneVolume(ctx context.Context, name, sourceBackendID string, sizeGB int64) (backendID string, err error)

	// ExtendVolume grows a volume to sizeGB. Shrinking is never
	// requested; callers reject shrink attempts before calling this.
	ExtendVolume(ctx context.Context, backendID string, sizeGB int64) error

	// CreateSnapshot creates a point-in-time snapshot of a volume.
	CreateSnapshot(ctx context.Context, name, volumeBackendID string) (backendID string, err error)

	// DeleteSnapshot removes a snapshot. Idempotent like DeleteVolume.
	DeleteSnapshot(ctx context.Context, backendID string) error

	// CreateVolumeFromSnapshot creates a new volume sized sizeGB whose
	// initial contents come from a snapshot.
	CreateVolumeFromSnapshot(ctx context.Context, name, snapshotBackendID string, sizeGB int64) (backendID string, err error)

	// Connect exposes a volume to the named host and returns the
	// connector info the host-side Connector needs to attach it.
	Connect(ctx context.Context, backendID, hostID string) (ConnectorInfo, error)

	// Disconnect withdraws a volume's exposure to a host.
	Disconnect(ctx context.Context, backendID, hostID string) error

	// Stats reports backend-wide capacity. When refresh is true the
	// backend must bypass any cache.
	Stats(ctx context.Context, refresh bool) (Stats, error)

	// CheckForSetupError validates the backend is reachable and
	// correctly configured; used by Identity.Probe.
	CheckForSetupError(ctx context.Context) error
}
