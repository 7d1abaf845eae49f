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

package specversion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForVersionUnknownErrors(t *testing.T) {
	_, err := ForVersion("9.9.9")
	assert.Error(t, err)
}

func TestForVersionOldestHasNoExtras(t *testing.T) {
	p, err := ForVersion("0.2.0")
	require.NoError(t, err)
	assert.False(t, p.SupportsAccessibilityConstraints)
	assert.False(t, p.SupportsListVolumesPaging)
	assert.False(t, p.SupportsVolumeExpansion)
}

func TestForVersionLatestHasEverything(t *testing.T) {
	p, err := ForVersion("1.1.0")
	require.NoError(t, err)
	assert.True(t, p.SupportsAccessibilityConstraints)
	assert.True(t, p.SupportsListVolumesPaging)
	assert.True(t, p.SupportsVolumeExpansion)
}

func TestForVersionMidRange(t *testing.T) {
	p, err := ForVersion("1.0.0")
	require.NoError(t, err)
	assert.True(t, p.SupportsAccessibilityConstraints)
	assert.True(t, p.SupportsListVolumesPaging)
	assert.False(t, p.SupportsVolumeExpansion)
}
