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

package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeCreateDeleteVolume(t *testing.T) {
	f := NewFake(100)
	ctx := context.Background()

	id, err := f.CreateVolume(ctx, "v1", CreateParams{SizeGB: 10})
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	stats, err := f.Stats(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(90), stats.FreeGB)

	require.NoError(t, f.DeleteVolume(ctx, id))
	stats, err = f.Stats(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, int64(100), stats.FreeGB)
}

func TestFakeCloneRequiresExistingSource(t *testing.T) {
	f := NewFake(100)
	_, err := f.CloneVolume(context.Background(), "v2", "nonexistent", 5)
	assert.Error(t, err)
}

func TestFakeSnapshotLifecycle(t *testing.T) {
	f := NewFake(100)
	ctx := context.Background()

	volID, err := f.CreateVolume(ctx, "v1", CreateParams{SizeGB: 10})
	require.NoError(t, err)

	snapID, err := f.CreateSnapshot(ctx, "s1", volID)
	require.NoError(t, err)

	newVolID, err := f.CreateVolumeFromSnapshot(ctx, "v2", snapID, 10)
	require.NoError(t, err)
	assert.NotEqual(t, volID, newVolID)

	require.NoError(t, f.DeleteSnapshot(ctx, snapID))
}

func TestFakeFailNextAffectsOnlyNextCall(t *testing.T) {
	f := NewFake(100)
	ctx := context.Background()
	boom := errors.New("boom")

	f.FailNext(boom)
	_, err := f.CreateVolume(ctx, "v1", CreateParams{SizeGB: 10})
	assert.ErrorIs(t, err, boom)

	_, err = f.CreateVolume(ctx, "v2", CreateParams{SizeGB: 10})
	assert.NoError(t, err)
}
