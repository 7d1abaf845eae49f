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

package connector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeAttachDetach(t *testing.T) {
	f := NewFake()
	ctx := context.Background()

	dev, err := f.Attach(ctx, Info{"device": "/dev/sdb"}, 3)
	require.NoError(t, err)
	assert.Equal(t, "/dev/sdb", dev)
	assert.True(t, f.Attached[dev])

	require.NoError(t, f.Detach(ctx, Info{}, dev))
	assert.False(t, f.Attached[dev])
}

func TestFakeAttachDefaultsDevice(t *testing.T) {
	f := NewFake()
	dev, err := f.Attach(context.Background(), Info{}, 1)
	require.NoError(t, err)
	assert.Equal(t, "/dev/fake0", dev)
}
