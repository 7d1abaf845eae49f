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

	"github.com/container-storage-interface/spec/lib/go/csi"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestNodeExpandVolumeValidation(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	_, err := srv.NodeExpandVolume(ctx, &csi.NodeExpandVolumeRequest{})
	require.Error(t, err)
	require.Equal(t, codes.InvalidArgument, status.Code(err))

	_, err = srv.NodeExpandVolume(ctx, &csi.NodeExpandVolumeRequest{VolumeId: "v1"})
	require.Error(t, err)
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestNodeExpandVolumeNotStaged(t *testing.T) {
	srv, _ := newTestServer(t)
	ctx := context.Background()

	_, err := srv.NodeExpandVolume(ctx, &csi.NodeExpandVolumeRequest{
		VolumeId:          "v1",
		StagingTargetPath: t.TempDir(),
	})
	require.Error(t, err)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
}

// TestNodeExpandVolumeBlockSkipsFilesystemGrow covers block volumes:
// NodeExpandVolume must rescan the transport but never attempt a
// filesystem-grow step, since there is no filesystem on a block volume.
func TestNodeExpandVolumeBlockSkipsFilesystemGrow(t *testing.T) {
	srv, store := newTestServer(t)
	ctx := context.Background()

	staging := t.TempDir()
	stagingPath := staging + "/v1"
	setupStagedConnection(t, store, "v1", stagingPath, capability.FromCSI(blockCap()))

	_, err := srv.NodeExpandVolume(ctx, &csi.NodeExpandVolumeRequest{
		VolumeId:          "v1",
		StagingTargetPath: staging,
	})
	require.NoError(t, err)
}
