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

	"github.com/embercsi/ember-csi-go/internal/capability"
	"github.com/embercsi/ember-csi-go/internal/log"
	"github.com/embercsi/ember-csi-go/internal/persistence"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/google/uuid"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ControllerPublishVolume resolves the node, then either returns the
// existing connection idempotently (same node, same capability),
// rejects it (same node, different capability), or validates the new
// capability against what the volume was created for and against every
// other existing connection (per capability.Capability.Supports and
// IncompatibleConnections) before having the backend expose the volume
// to the requested node.
func (cs *Server) ControllerPublishVolume(
	ctx context.Context,
	req *csi.ControllerPublishVolumeRequest,
) (*csi.ControllerPublishVolumeResponse, error) {
	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "volume_id is required")
	}
	if req.GetNodeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "node_id is required")
	}
	if req.GetVolumeCapability() == nil {
		return nil, status.Error(codes.InvalidArgument, "volume_capability is required")
	}

	vols, err := cs.Store.GetVolumes(ctx, persistence.VolumeFilter{ID: req.GetVolumeId()})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "lookup volume: %v", err)
	}
	if len(vols) == 0 {
		return nil, status.Errorf(codes.NotFound, "volume %q not found", req.GetVolumeId())
	}
	vol := vols[0]

	if _, found, err := cs.Store.GetKeyValue(ctx, persistence.NodeConnectorKey(req.GetNodeId())); err != nil {
		return nil, status.Errorf(codes.Internal, "lookup node: %v", err)
	} else if !found {
		return nil, status.Errorf(codes.NotFound, "node %q does not exist", req.GetNodeId())
	}

	want := capability.FromCSI(req.GetVolumeCapability())
	if req.GetReadonly() {
		want.RoForced = true
	}
	if err := cs.Caps.Unsupported([]*csi.VolumeCapability{req.GetVolumeCapability()}); err != nil {
		return nil, err
	}

	conns, err := cs.Store.GetConnections(ctx, persistence.ConnectionFilter{VolumeID: vol.ID})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "lookup connections: %v", err)
	}

	existing := make([]capability.Capability, 0, len(conns))
	for i, c := range conns {
		existing = append(existing, capability.Decode(c.Capability))

		if c.AttachedHost != req.GetNodeId() {
			continue
		}

		if !existing[i].Equal(want) {
			return nil, status.Errorf(codes.AlreadyExists,
				"volume %q already published to node %q with a different capability", vol.ID, req.GetNodeId())
		}

		return &csi.ControllerPublishVolumeResponse{PublishContext: c.ConnectorInfo}, nil
	}

	if err := cs.Caps.Unsupported([]*csi.VolumeCapability{req.GetVolumeCapability()}); err != nil {
		return nil, err
	}

	if volCap, ok := vol.Metadata["capability"]; ok {
		if !capability.Decode(volCap).Supports(want) {
			return nil, status.Error(codes.InvalidArgument, "incompatible requested capability")
		}
	}

	if err := want.IncompatibleConnections(existing, -1); err != nil {
		return nil, err
	}

	log.DebugLog(ctx, "ControllerPublishVolume: volume=%s node=%s", vol.ID, req.GetNodeId())

	info, err := cs.Backend.Connect(ctx, vol.BackendID, req.GetNodeId())
	if err != nil {
		return nil, status.Errorf(codes.Internal, "connect volume at backend: %v", err)
	}

	attachMode := persistence.AttachRW
	if want.UsedAsRO() {
		attachMode = persistence.AttachRO
	}

	conn := persistence.Connection{
		ID:            uuid.NewString(),
		VolumeID:      vol.ID,
		AttachedHost:  req.GetNodeId(),
		ConnectorInfo: info,
		Capability:    want.Encode(),
		AttachMode:    attachMode,
		Status:        "attached",
		CreatedAt:     now(),
	}
	if err := cs.Store.SetConnection(ctx, conn); err != nil {
		return nil, status.Errorf(codes.Internal, "persist connection: %v", err)
	}

	vol.Status = persistence.VolumeInUse
	if err := cs.Store.SetVolume(ctx, vol); err != nil {
		return nil, status.Errorf(codes.Internal, "mark volume in-use: %v", err)
	}

	ctx2 := map[string]string(info)
	if cs.RequestMultipath {
		ctx2["multipath"] = "true"
	}

	return &csi.ControllerPublishVolumeResponse{PublishContext: ctx2}, nil
}

// ControllerUnpublishVolume withdraws every connection record held by the
// requested node (every node when node_id is empty), including duplicate
// records for the same node. The volume reverts to available once its
// last connection is removed.
func (cs *Server) ControllerUnpublishVolume(
	ctx context.Context,
	req *csi.ControllerUnpublishVolumeRequest,
) (*csi.ControllerUnpublishVolumeResponse, error) {
	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "volume_id is required")
	}

	vols, err := cs.Store.GetVolumes(ctx, persistence.VolumeFilter{ID: req.GetVolumeId()})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "lookup volume: %v", err)
	}
	if len(vols) == 0 {
		return &csi.ControllerUnpublishVolumeResponse{}, nil
	}
	vol := vols[0]

	conns, err := cs.Store.GetConnections(ctx, persistence.ConnectionFilter{VolumeID: vol.ID})
	if err != nil {
		return nil, status.Errorf(codes.Internal, "lookup connections: %v", err)
	}

	var targets []persistence.Connection
	remaining := 0
	for i := range conns {
		if req.GetNodeId() == "" || conns[i].AttachedHost == req.GetNodeId() {
			targets = append(targets, conns[i])

			continue
		}
		remaining++
	}
	if len(targets) == 0 {
		return &csi.ControllerUnpublishVolumeResponse{}, nil
	}

	disconnected := map[string]bool{}
	for _, target := range targets {
		log.DebugLog(ctx, "ControllerUnpublishVolume: volume=%s node=%s", vol.ID, target.AttachedHost)

		if !disconnected[target.AttachedHost] {
			if err := cs.Backend.Disconnect(ctx, vol.BackendID, target.AttachedHost); err != nil {
				return nil, status.Errorf(codes.Internal, "disconnect volume at backend: %v", err)
			}
			disconnected[target.AttachedHost] = true
		}

		if err := cs.Store.DeleteConnection(ctx, target.ID); err != nil {
			return nil, status.Errorf(codes.Internal, "remove connection record: %v", err)
		}
	}

	if remaining == 0 && vol.Status == persistence.VolumeInUse {
		vol.Status = persistence.VolumeAvailable
		if err := cs.Store.SetVolume(ctx, vol); err != nil {
			return nil, status.Errorf(codes.Internal, "mark volume available: %v", err)
		}
	}

	return &csi.ControllerUnpublishVolumeResponse{}, nil
}
