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

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestFindNodeConnectionMatchesFreshPublish(t *testing.T) {
	srv, store := newTestServer(t)
	want := capability.FromCSI(mountCap("ext4"))
	setupStagedConnection(t, store, "v1", "", want)

	conn, err := srv.findNodeConnection(context.Background(), "v1", "/staging/v1", want)
	require.NoError(t, err)
	require.Equal(t, testNodeID, conn.AttachedHost)
}

// TestFindNodeConnectionMatchesRetriedStage covers the idempotency case:
// a second NodeStageVolume call for an already-staged volume must still
// find the connection even though its mountpoint is already set to the
// staging path rather than empty.
func TestFindNodeConnectionMatchesRetriedStage(t *testing.T) {
	srv, store := newTestServer(t)
	want := capability.FromCSI(mountCap("ext4"))
	setupStagedConnection(t, store, "v1", "/staging/v1", want)

	conn, err := srv.findNodeConnection(context.Background(), "v1", "/staging/v1", want)
	require.NoError(t, err)
	require.Equal(t, "/staging/v1", conn.Mountpoint)
}

func TestFindNodeConnectionNoMatch(t *testing.T) {
	srv, _ := newTestServer(t)
	want := capability.FromCSI(mountCap("ext4"))

	_, err := srv.findNodeConnection(context.Background(), "v2", "/staging/v2", want)
	require.Error(t, err)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
}

// TestFindNodeConnectionIgnoresCapabilityMismatch covers the re-stage
// case: the connection published for this node carries whatever
// capability ControllerPublishVolume recorded, and matching it here
// must not depend on it equaling the capability requested by this
// NodeStageVolume call. A fs-type mismatch is detected later, by
// probing the actual device, not by rejecting the lookup itself.
func TestFindNodeConnectionIgnoresCapabilityMismatch(t *testing.T) {
	srv, store := newTestServer(t)
	setupStagedConnection(t, store, "v1", "", capability.FromCSI(mountCap("ext4")))

	conn, err := srv.findNodeConnection(context.Background(), "v1", "/staging/v1", capability.FromCSI(mountCap("xfs")))
	require.NoError(t, err)
	require.Equal(t, testNodeID, conn.AttachedHost)
}
