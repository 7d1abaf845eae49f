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
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/embercsi/ember-csi-go/internal/persistence"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()

	s, err := New(Config{Dialect: DialectSQLite, DSN: "file::memory:?cache=shared"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestVolumeRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	v := persistence.Volume{
		ID:        "vol-1",
		Name:      "my-volume",
		SizeGB:    10,
		Status:    persistence.VolumeAvailable,
		BackendID: "fake",
		Metadata:  map[string]string{"fs_type": "ext4"},
		CreatedAt: time.Now(),
	}
	require.NoError(t, s.SetVolume(ctx, v))

	got, err := s.GetVolumes(ctx, persistence.VolumeFilter{ID: "vol-1"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, v.Name, got[0].Name)
	assert.Equal(t, v.Metadata, got[0].Metadata)

	byName, err := s.GetVolumes(ctx, persistence.VolumeFilter{Name: "my-volume"})
	require.NoError(t, err)
	assert.Len(t, byName, 1)

	require.NoError(t, s.DeleteVolume(ctx, "vol-1"))
	gone, err := s.GetVolumes(ctx, persistence.VolumeFilter{ID: "vol-1"})
	require.NoError(t, err)
	assert.Empty(t, gone)
}

func TestGetVolumesMissingReturnsEmptyNotError(t *testing.T) {
	s := newTestStore(t)

	got, err := s.GetVolumes(context.Background(), persistence.VolumeFilter{ID: "nonexistent"})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestKeyValueRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.GetKeyValue(ctx, "probe")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetKeyValue(ctx, persistence.KeyValue{Key: "probe", Value: "1"}))
	kv, ok, err := s.GetKeyValue(ctx, "probe")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "1", kv.Value)

	require.NoError(t, s.SetKeyValue(ctx, persistence.KeyValue{Key: "probe", Value: "2"}))
	kv, _, err = s.GetKeyValue(ctx, "probe")
	require.NoError(t, err)
	assert.Equal(t, "2", kv.Value)
}

func TestConnectionsFilterByVolume(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetConnection(ctx, persistence.Connection{ID: "c1", VolumeID: "vol-1", AttachedHost: "node-1", CreatedAt: time.Now()}))
	require.NoError(t, s.SetConnection(ctx, persistence.Connection{ID: "c2", VolumeID: "vol-2", AttachedHost: "node-1", CreatedAt: time.Now()}))

	conns, err := s.GetConnections(ctx, persistence.ConnectionFilter{VolumeID: "vol-1"})
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "c1", conns[0].ID)
}
