/*
Copyright 2018 The Ceph-CSI Authors.

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
	"os"

	"github.com/embercsi/ember-csi-go/internal/capability"
	"github.com/embercsi/ember-csi-go/internal/hostutil"
	"github.com/embercsi/ember-csi-go/internal/log"
	"github.com/embercsi/ember-csi-go/internal/persistence"
	"github.com/embercsi/ember-csi-go/internal/util"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// stageTransaction records what NodeStageVolume has done so far, so a
// failure partway through can be unwound in reverse order. Grounded on
// rbd.NodeServer's stageTransaction/undoStagingTransaction pair.
type stageTransaction struct {
	attached       bool
	devicePath     string
	privateMounted bool
	stagingCreated bool
	stagingMounted bool
}

func (ns *Server) undoStageTransaction(ctx context.Context, txn *stageTransaction, private, stagingPath string, info map[string]string) {
	if txn.stagingMounted {
		if err := ns.Host.Unmount(stagingPath); err != nil {
			log.ErrorLog(ctx, "node: failed to unmount staging path %s: %v", stagingPath, err)
		}
	}
	if txn.stagingCreated {
		if err := os.Remove(stagingPath); err != nil && !os.IsNotExist(err) {
			log.ErrorLog(ctx, "node: failed to remove staging path %s: %v", stagingPath, err)
		}
	}
	if txn.privateMounted {
		if err := ns.Host.Unmount(private); err != nil {
			log.ErrorLog(ctx, "node: failed to unmount private bind %s: %v", private, err)
		}
	}
	if txn.attached {
		if err := ns.Connector.Detach(ctx, info, txn.devicePath); err != nil {
			log.ErrorLog(ctx, "node: failed to detach device %s: %v", txn.devicePath, err)
		}
	}
}

// NodeStageVolume stages a published volume onto this node's private
// bind anchor and the requested staging path.
func (ns *Server) NodeStageVolume(ctx context.Context, req *csi.NodeStageVolumeRequest) (*csi.NodeStageVolumeResponse, error) {
	if req.GetVolumeId() == "" {
		return nil, status.Error(codes.InvalidArgument, "volume ID must be provided")
	}
	if req.GetStagingTargetPath() == "" {
		return nil, status.Error(codes.InvalidArgument, "staging target path must be provided")
	}
	if req.GetVolumeCapability() == nil {
		return nil, status.Error(codes.InvalidArgument, "volume capability must be provided")
	}

	volID := req.GetVolumeId()
	if acquired := ns.VolumeLocks.TryAcquire(volID); !acquired {
		return nil, status.Errorf(codes.Aborted, util.VolumeOperationAlreadyExistsFmt, volID)
	}
	defer ns.VolumeLocks.Release(volID)

	vols, err := ns.Store.GetVolumes(ctx, persistence.VolumeFilter{ID: volID})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}
	if len(vols) == 0 {
		return nil, status.Errorf(codes.NotFound, "volume %s not found", volID)
	}
	vol := vols[0]

	want := capability.FromCSI(req.GetVolumeCapability())
	if err := ns.Caps.Unsupported([]*csi.VolumeCapability{req.GetVolumeCapability()}); err != nil {
		return nil, err
	}

	stagingPath := req.GetStagingTargetPath() + "/" + volID
	private := ns.privateBindPath(volID)

	conn, err := ns.findNodeConnection(ctx, volID, stagingPath, want)
	if err != nil {
		return nil, err
	}

	txn := &stageTransaction{}
	var stageErr error
	defer func() {
		if stageErr != nil {
			ns.undoStageTransaction(ctx, txn, private, stagingPath, conn.ConnectorInfo)
		}
	}()

	if stageErr = hostutil.EnsureBlockTargetFile(private); stageErr != nil {
		return nil, status.Error(codes.Internal, stageErr.Error())
	}

	privateMounted, stageErrTmp := ns.Host.IsMountPoint(private)
	if stageErrTmp != nil {
		stageErr = stageErrTmp

		return nil, status.Error(codes.Internal, stageErr.Error())
	}

	if !privateMounted {
		var devicePath string
		devicePath, stageErr = ns.Connector.Attach(ctx, conn.ConnectorInfo, ns.AttachRetries)
		if stageErr != nil {
			return nil, status.Errorf(codes.Internal, "attach failed for volume %s: %v", volID, stageErr)
		}
		txn.attached = true
		txn.devicePath = devicePath
		if conn.ConnectorInfo == nil {
			conn.ConnectorInfo = map[string]string{}
		}
		conn.ConnectorInfo[deviceKey] = devicePath

		if stageErr = ns.Host.BindMount(devicePath, private, false); stageErr != nil {
			return nil, status.Error(codes.Internal, stageErr.Error())
		}
		txn.privateMounted = true
	}

	if want.IsBlock {
		if stageErr = hostutil.EnsureBlockTargetFile(stagingPath); stageErr != nil {
			return nil, status.Error(codes.Internal, stageErr.Error())
		}
		txn.stagingCreated = true

		stagingMounted, e := ns.Host.IsMountPoint(stagingPath)
		if e != nil {
			stageErr = e

			return nil, status.Error(codes.Internal, stageErr.Error())
		}
		if !stagingMounted {
			if stageErr = ns.Host.BindMount(private, stagingPath, want.UsedAsRO()); stageErr != nil {
				return nil, status.Error(codes.Internal, stageErr.Error())
			}
			txn.stagingMounted = true
		}
	} else {
		if stageErr = hostutil.EnsureDir(stagingPath); stageErr != nil {
			return nil, status.Error(codes.Internal, stageErr.Error())
		}
		txn.stagingCreated = true

		stagingMounted, e := ns.Host.IsMountPoint(stagingPath)
		if e != nil {
			stageErr = e

			return nil, status.Error(codes.Internal, stageErr.Error())
		}
		if !stagingMounted {
			existingFormat, e := ns.Host.DiskFormat(private)
			if e != nil {
				stageErr = e

				return nil, status.Error(codes.Internal, stageErr.Error())
			}
			if existingFormat != "" && existingFormat != want.FsType {
				return nil, status.Errorf(codes.AlreadyExists,
					"Cannot stage filesystem %s on device that already has filesystem %s", want.FsType, existingFormat)
			}
			if existingFormat == "" {
				if stageErr = ns.Host.Mkfs(ctx, private, want.FsType, nil); stageErr != nil {
					return nil, status.Error(codes.Internal, stageErr.Error())
				}
			}

			opts := append([]string(nil), want.MountFlags...)
			if want.UsedAsRO() {
				opts = append(opts, "ro")
			}
			if stageErr = ns.Host.MountFormatted(private, stagingPath, want.FsType, opts); stageErr != nil {
				return nil, status.Error(codes.Internal, stageErr.Error())
			}
			txn.stagingMounted = true
		}
	}

	if vol.Metadata == nil {
		vol.Metadata = map[string]string{}
	}
	vol.Metadata["requested_fs_type"] = want.FsType
	if stageErr = ns.Store.SetVolume(ctx, vol); stageErr != nil {
		return nil, status.Error(codes.Internal, stageErr.Error())
	}

	conn.Mountpoint = stagingPath
	if stageErr = ns.Store.SetConnection(ctx, conn); stageErr != nil {
		return nil, status.Error(codes.Internal, stageErr.Error())
	}

	log.DebugLog(ctx, "node: successfully staged volume %s at %s", volID, stagingPath)

	return &csi.NodeStageVolumeResponse{}, nil
}

// findNodeConnection locates the Connection ControllerPublishVolume
// created for this node, matched by attached_host and staging path
// alone: the capability a connection was published with is allowed to
// differ from the one requested here (NodeStageVolume detects and
// reports a fs-type mismatch itself, by probing the actual device).
func (ns *Server) findNodeConnection(ctx context.Context, volID, stagingPath string, want capability.Capability) (persistence.Connection, error) {
	conns, err := ns.Store.GetConnections(ctx, persistence.ConnectionFilter{VolumeID: volID})
	if err != nil {
		return persistence.Connection{}, status.Error(codes.Internal, err.Error())
	}

	nodeID := ns.Driver.NodeID()
	for _, c := range conns {
		if c.AttachedHost != nodeID {
			continue
		}
		if c.Mountpoint == "" || c.Mountpoint == stagingPath {
			return c, nil
		}
	}

	return persistence.Connection{}, status.Errorf(codes.FailedPrecondition,
		"volume %s is not published to node %s", volID, nodeID)
}
