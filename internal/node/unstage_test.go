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
	"testing"

	"github.com/embercsi/ember-csi-go/internal/capability"
	"github.com/embercsi/ember-csi-go/internal/persistence"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestNodeUnstageVolumeValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	_, err := srv.NodeUnstageVolume(ctx, &csi.NodeUnstageVolumeRequest{})
	require.Error(t, err)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

// TestNodeUnstageVolumeStillPublished covers the reference-counted
// replacement for the mountinfo-row-count heuristic: a Connection on
// this node whose mountpoint is a NodePublish target (distinct from the
// staging path) must block unstage with ABORTED.
func TestNodeUnstageVolumeStillPublished(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	staging := t.TempDir()
	stagingPath := staging + "/v1"
	want := capability.FromCSI(mountCap("ext4"))
	setupStagedConnection(t, store, "v1", stagingPath, want)

	published := persistence.Connection{
		ID:           "conn-published",
		VolumeID:     "v1",
		AttachedHost: testNodeID,
		Capability:   want.Encode(),
		Mountpoint:   "/var/lib/kubelet/pods/pod-a/volumes/vol",
		Status:       "published",
	}
	require.NoError(t, store.SetConnection(ctx, published))

	_, err := srv.NodeUnstageVolume(ctx, &csi.NodeUnstageVolumeRequest{
		VolumeId:          "v1",
		StagingTargetPath: staging,
	})
	require.Error(t, err)
	require.Equal(t, codes.Aborted, status.Code(err))
}

// TestNodeUnstageVolumeNoConnections exercises the path where no
// Connection record exists at all for this node (already torn down, or
// never staged): NodeUnstageVolume must still succeed so it stays
// idempotent, touching only whatever mount/file state actually exists
// on disk.
func TestNodeUnstageVolumeNoConnections(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	_, err := srv.NodeUnstageVolume(ctx, &csi.NodeUnstageVolumeRequest{
		VolumeId:          "v1",
		StagingTargetPath: t.TempDir(),
	})
	require.NoError(t, err)
}

func TestNodeUnstageVolumeClearsMountpoint(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	staging := t.TempDir()
	stagingPath := staging + "/v1"
	want := capability.FromCSI(mountCap("ext4"))
	setupStagedConnection(t, store, "v1", stagingPath, want)

	_, err := srv.NodeUnstageVolume(ctx, &csi.NodeUnstageVolumeRequest{
		VolumeId:          "v1",
		StagingTargetPath: staging,
	})
	require.NoError(t, err)

	conns, err := store.GetConnections(ctx, persistence.ConnectionFilter{VolumeID: "v1"})
	require.NoError(t, err)
	require.Len(t, conns, 1)
	require.Empty(t, conns[0].Mountpoint)
}
