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

// Package persistence defines the durable entity model (Volume, Snapshot,
// Connection, KeyValue) and the Store abstraction over the two supported
// backends (relational SQL and Kubernetes Custom Resources).
package persistence

import "time"

// VolumeStatus is the lifecycle state of a Volume record.
type VolumeStatus string

const (
	VolumeCreating VolumeStatus = "creating"
	VolumeAvailable VolumeStatus = "available"
	VolumeInUse     VolumeStatus = "in-use"
	VolumeDeleting  VolumeStatus = "deleting"
	VolumeDeleted   VolumeStatus = "deleted"
	VolumeError     VolumeStatus = "error"
)

// Terminal reports whether the status can no longer transition through a
// poll (success or error states).
func (s VolumeStatus) Terminal() bool {
	return s == VolumeAvailable || s == VolumeDeleted || s.IsError()
}

// IsError reports whether the status is one of the error* family.
func (s VolumeStatus) IsError() bool {
	return len(s) >= len("error") && s[:5] == "error"
}

// SnapshotStatus is the lifecycle state of a Snapshot record.
type SnapshotStatus string

const (
	SnapshotCreating  SnapshotStatus = "creating"
	SnapshotAvailable SnapshotStatus = "available"
	SnapshotDeleting  SnapshotStatus = "deleting"
	SnapshotDeleted   SnapshotStatus = "deleted"
	SnapshotError     SnapshotStatus = "error"
)

// AttachMode is the read/write mode a Connection was established with.
type AttachMode string

const (
	AttachRO AttachMode = "ro"
	AttachRW AttachMode = "rw"
)

// Volume is the durable record of a provisioned volume.
type Volume struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	SizeGB           int64             `json:"size_gb"`
	Status           VolumeStatus      `json:"status"`
	BackendID        string            `json:"backend_id"`
	SourceSnapshotID string            `json:"source_snapshot_id,omitempty"`
	SourceVolumeID   string            `json:"source_volume_id,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Snapshot is the durable record of a point-in-time volume snapshot.
type Snapshot struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	VolumeID   string         `json:"volume_id"`
	VolumeSize int64          `json:"volume_size"`
	Status     SnapshotStatus `json:"status"`
	BackendID  string         `json:"backend_id"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Connection is the durable record of a volume's attachment to a node,
// and (after NodePublish duplication) to a specific target path / pod.
type Connection struct {
	ID            string            `json:"id"`
	VolumeID      string            `json:"volume_id"`
	AttachedHost  string            `json:"attached_host"`
	ConnectorInfo map[string]string `json:"connector_info,omitempty"`
	ConnectionInfo map[string]string `json:"connection_info,omitempty"`
	Capability    string            `json:"capability"`
	Mountpoint    string            `json:"mountpoint,omitempty"`
	AttachMode    AttachMode        `json:"attach_mode"`
	InstanceUUID  string            `json:"instance_uuid,omitempty"`
	Status        string            `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
}

// KeyValue is an opaque key/value pair used for node-connector records and
// the Probe counter.
type KeyValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// nodeConnectorPrefix namespaces node-connector KeyValue records so they
// cannot collide with the Probe counter key or other future KeyValue uses.
const nodeConnectorPrefix = "node_connector:"

// NodeConnectorKey is the KeyValue key a node registers its connector
// properties under, and a controller resolves a node_id against before
// publishing a volume to it.
func NodeConnectorKey(nodeID string) string {
	return nodeConnectorPrefix + nodeID
}
