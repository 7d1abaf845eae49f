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

	"github.com/embercsi/ember-csi-go/internal/hostutil"
	"github.com/embercsi/ember-csi-go/internal/persistence"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// NodeGetVolumeStats reports capacity usage for a published or staged
// volume. The path may be a publish path or a staging path; if the
// exact path given doesn't exist, the staging-name segment
// is retried once.
func (ns *Server) NodeGetVolumeStats(ctx context.Context, req *csi.NodeGetVolumeStatsRequest) (*csi.NodeGetVolumeStatsResponse, error) {
	volID := req.GetVolumeId()
	if volID == "" {
		return nil, status.Error(codes.InvalidArgument, "volume ID must be provided")
	}
	path := req.GetVolumePath()
	if path == "" {
		return nil, status.Error(codes.InvalidArgument, "volume path must be provided")
	}

	stat, err := os.Stat(path)
	if err != nil && os.IsNotExist(err) {
		alt := path + "/" + volID
		if altStat, altErr := os.Stat(alt); altErr == nil {
			path, stat, err = alt, altStat, nil
		}
	}
	if err != nil {
		return nil, status.Errorf(codes.NotFound, "volume path %s: %v", path, err)
	}

	if stat.Mode().IsDir() {
		total, used, available, err := hostutil.StatfsUsage(path)
		if err != nil {
			return nil, status.Error(codes.Internal, err.Error())
		}

		return &csi.NodeGetVolumeStatsResponse{
			Usage: []*csi.VolumeUsage{
				{Total: total, Used: used, Available: available, Unit: csi.VolumeUsage_BYTES},
			},
		}, nil
	}

	conns, err := ns.Store.GetConnections(ctx, persistence.ConnectionFilter{VolumeID: volID})
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	nodeID := ns.Driver.NodeID()
	var devicePath string
	for _, c := range conns {
		if c.AttachedHost == nodeID {
			if dp := c.ConnectorInfo[deviceKey]; dp != "" {
				devicePath = dp

				break
			}
		}
	}
	if devicePath == "" {
		return nil, status.Errorf(codes.NotFound, "no attached device found for volume %s", volID)
	}

	size, err := hostutil.BlockDeviceSize(devicePath)
	if err != nil {
		return nil, status.Error(codes.Internal, err.Error())
	}

	return &csi.NodeGetVolumeStatsResponse{
		Usage: []*csi.VolumeUsage{
			{Total: size, Unit: csi.VolumeUsage_BYTES},
		},
	}, nil
}
