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

package db

import (
	"encoding/json"
	"time"

	"github.com/embercsi/ember-csi-go/internal/persistence"
)

func encodeMap(m map[string]string) string {
	if len(m) == 0 {
		return ""
	}
	b, _ := json.Marshal(m)

	return string(b)
}

func decodeMap(s string) map[string]string {
	if s == "" {
		return nil
	}
	m := make(map[string]string)
	_ = json.Unmarshal([]byte(s), &m)

	return m
}

func volumeToRow(v persistence.Volume) volumeRow {
	return volumeRow{
		ID:               v.ID,
		Name:             v.Name,
		SizeGB:           v.SizeGB,
		Status:           string(v.Status),
		BackendID:        v.BackendID,
		SourceSnapshotID: v.SourceSnapshotID,
		SourceVolumeID:   v.SourceVolumeID,
		Metadata:         encodeMap(v.Metadata),
		CreatedAt:        v.CreatedAt.UnixNano(),
	}
}

func rowToVolume(r volumeRow) persistence.Volume {
	return persistence.Volume{
		ID:               r.ID,
		Name:             r.Name,
		SizeGB:           r.SizeGB,
		Status:           persistence.VolumeStatus(r.Status),
		BackendID:        r.BackendID,
		SourceSnapshotID: r.SourceSnapshotID,
		SourceVolumeID:   r.SourceVolumeID,
		Metadata:         decodeMap(r.Metadata),
		CreatedAt:        time.Unix(0, r.CreatedAt).UTC(),
	}
}

func snapshotToRow(sn persistence.Snapshot) snapshotRow {
	return snapshotRow{
		ID:         sn.ID,
		Name:       sn.Name,
		VolumeID:   sn.VolumeID,
		VolumeSize: sn.VolumeSize,
		Status:     string(sn.Status),
		BackendID:  sn.BackendID,
		CreatedAt:  sn.CreatedAt.UnixNano(),
	}
}

func rowToSnapshot(r snapshotRow) persistence.Snapshot {
	return persistence.Snapshot{
		ID:         r.ID,
		Name:       r.Name,
		VolumeID:   r.VolumeID,
		VolumeSize: r.VolumeSize,
		Status:     persistence.SnapshotStatus(r.Status),
		BackendID:  r.BackendID,
		CreatedAt:  time.Unix(0, r.CreatedAt).UTC(),
	}
}

func connectionToRow(c persistence.Connection) connectionRow {
	return connectionRow{
		ID:             c.ID,
		VolumeID:       c.VolumeID,
		AttachedHost:   c.AttachedHost,
		ConnectorInfo:  encodeMap(c.ConnectorInfo),
		ConnectionInfo: encodeMap(c.ConnectionInfo),
		Capability:     c.Capability,
		Mountpoint:     c.Mountpoint,
		AttachMode:     string(c.AttachMode),
		InstanceUUID:   c.InstanceUUID,
		Status:         c.Status,
		CreatedAt:      c.CreatedAt.UnixNano(),
	}
}

func rowToConnection(r connectionRow) persistence.Connection {
	return persistence.Connection{
		ID:             r.ID,
		VolumeID:       r.VolumeID,
		AttachedHost:   r.AttachedHost,
		ConnectorInfo:  decodeMap(r.ConnectorInfo),
		ConnectionInfo: decodeMap(r.ConnectionInfo),
		Capability:     r.Capability,
		Mountpoint:     r.Mountpoint,
		AttachMode:     persistence.AttachMode(r.AttachMode),
		InstanceUUID:   r.InstanceUUID,
		Status:         r.Status,
		CreatedAt:      time.Unix(0, r.CreatedAt).UTC(),
	}
}
