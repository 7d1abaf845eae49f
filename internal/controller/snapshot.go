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

	"github.com/embercsi/ember-csi-go/internal/log"
	"github.com/embercsi/ember-csi-go/internal/persistence"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// CreateSnapshot is name-idempotent, reporting a cross-volume collision
// (an existing snapshot of the same name belonging to a different
// source volume) as ALREADY_EXISTS.
func (cs *Server) CreateSnapshot(ctx context.Context, req *csi.CreateSnapshotRequest) (*csi.CreateSnapshotResponse, error) {
	if req.GetName() == "" {
		return nil, status.Error(codes.InvalidArgument, "name is required")
	}
	if req.GetSourceVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "source_volume_id is required")
	}

	srcVols, err := cs.Store.GetVolumes(ctx, persistence.VolumeFilter{ID: req.GetSourceVolumeId()})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "lookup source volume: %v", err)
	}
	if len(srcVols) == 0 {
		return nil, status.Errorf(codes.NotFound, "source volume %q not found", req.GetSourceVolumeId())
	}
	srcVol := srcVols[0]

	existing, err := cs.Store.GetSnapshots(ctx, persistence.SnapshotFilter{Name: req.GetName()})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "lookup snapshot by name: %v", err)
	}
	if len(existing) > 0 {
		if existing[0].VolumeID != srcVol.ID {
			return nil, status.Errorf(codes.AlreadyExists,
				"snapshot %q already exists for a different source volume", req.GetName())
		}

		return toCreateSnapshotResponse(existing[0]), nil
	}

	log.DebugLog(ctx, "CreateSnapshot: name=%s source=%s", req.GetName(), srcVol.ID)

	backendID, err := cs.Backend.CreateSnapshot(ctx, req.GetName(), srcVol.BackendID)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "create snapshot at backend: %v", err)
	}

	snap := persistence.Snapshot{
		ID:         uuid.NewString(),
		Name:       req.GetName(),
		VolumeID:   srcVol.ID,
		VolumeSize: srcVol.SizeGB,
		Status:     persistence.SnapshotAvailable,
		BackendID:  backendID,
		CreatedAt:  now(),
	}

	if err := cs.Store.SetSnapshot(ctx, snap); err != nil {
		return nil, status.Errorf(codes.Internal, "persist snapshot: %v", err)
	}

	return toCreateSnapshotResponse(snap), nil
}

// toCreateSnapshotResponse builds the response's embedded *csi.Snapshot
// directly from our persistence record, never through a dynamic lookup.
func toCreateSnapshotResponse(s persistence.Snapshot) *csi.CreateSnapshotResponse {
	return &csi.CreateSnapshotResponse{
		Snapshot: &csi.Snapshot{
			SnapshotId:     s.ID,
			SourceVolumeId: s.VolumeID,
			SizeBytes:      s.VolumeSize * oneGiB,
			ReadyToUse:     s.Status == persistence.SnapshotAvailable,
		},
	}
}

// DeleteSnapshot treats an absent snapshot as success, and deleting the
// last snapshot of a soft-deleted volume cascades into deleting that
// volume's record too.
func (cs *Server) DeleteSnapshot(ctx context.Context, req *csi.DeleteSnapshotRequest) (*csi.DeleteSnapshotResponse, error) {
	if req.GetSnapshotId() == "" {
		return nil, status.Error(codes.InvalidArgument, "snapshot_id is required")
	}

	snaps, err := cs.Store.GetSnapshots(ctx, persistence.SnapshotFilter{ID: req.GetSnapshotId()})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "lookup snapshot: %v", err)
	}
	if len(snaps) == 0 {
		return &csi.DeleteSnapshotResponse{}, nil
	}
	snap := snaps[0]

	log.DebugLog(ctx, "DeleteSnapshot: id=%s", snap.ID)

	if err := cs.Backend.DeleteSnapshot(ctx, snap.BackendID); err != nil {
		return nil, status.Errorf(codes.Internal, "delete snapshot at backend: %v", err)
	}
	if err := cs.Store.DeleteSnapshot(ctx, snap.ID); err != nil {
		return nil, status.Errorf(codes.Internal, "remove snapshot record: %v", err)
	}

	vols, err := cs.Store.GetVolumes(ctx, persistence.VolumeFilter{ID: snap.VolumeID})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "lookup source volume: %v", err)
	}
	if len(vols) == 0 || vols[0].Status != persistence.VolumeDeleted {
		return &csi.DeleteSnapshotResponse{}, nil
	}

	remaining, err := cs.Store.GetSnapshots(ctx, persistence.SnapshotFilter{VolumeID: snap.VolumeID})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "lookup remaining snapshots: %v", err)
	}
	if len(remaining) > 0 {
		return &csi.DeleteSnapshotResponse{}, nil
	}

	if err := cs.Backend.DeleteVolume(ctx, vols[0].BackendID); err != nil {
		return nil, status.Errorf(codes.Internal, "delete cascaded volume at backend: %v", err)
	}
	if err := cs.Store.DeleteVolume(ctx, vols[0].ID); err != nil {
		return nil, status.Errorf(codes.Internal, "remove cascaded volume record: %v", err)
	}

	return &csi.DeleteSnapshotResponse{}, nil
}
