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

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setBaseEnv(t *testing.T) {
	t.Helper()
	t.Setenv("CSI_ENDPOINT", "unix:///tmp/csi.sock")
	t.Setenv("CSI_MODE", "all")
	t.Setenv("X_CSI_PERSISTENCE_CONFIG", `{"storage":"db","connection":"file::memory:"}`)
	t.Setenv("X_CSI_BACKEND_CONFIG", `{"driver":"fake"}`)
	t.Setenv("X_CSI_EMBER_CONFIG", `{"plugin_name":"ember-csi.io","grpc_workers":4}`)
}

func TestLoadValidConfig(t *testing.T) {
	setBaseEnv(t)

	cfg, code, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ExitOK, code)
	assert.Equal(t, ModeAll, cfg.Mode)
	assert.Equal(t, "db", cfg.Persistence.Storage)
	assert.Equal(t, 4, cfg.Ember.GRPCWorkers)
	assert.Equal(t, "1.1.0", cfg.SpecVersion)
	assert.Equal(t, "ext4", cfg.DefaultMountFS)
}

func TestLoadRejectsBadMode(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("CSI_MODE", "bogus")

	_, code, err := Load()
	assert.Error(t, err)
	assert.Equal(t, ExitBadMode, code)
}

func TestLoadRejectsMissingBackend(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("X_CSI_BACKEND_CONFIG", "")

	_, code, err := Load()
	assert.Error(t, err)
	assert.Equal(t, ExitMissingBackend, code)
}

func TestLoadRejectsUnsupportedSpecVersion(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("X_CSI_SPEC_VERSION", "9.9.9")

	_, code, err := Load()
	assert.Error(t, err)
	assert.Equal(t, ExitBadSpecVersion, code)
}

func TestLoadRejectsZeroWorkers(t *testing.T) {
	setBaseEnv(t)
	t.Setenv("X_CSI_EMBER_CONFIG", `{"plugin_name":"ember-csi.io","grpc_workers":0}`)

	_, code, err := Load()
	assert.Error(t, err)
	assert.Equal(t, ExitWorkerMisconfiguration, code)
}

func TestEmberConfigDisables(t *testing.T) {
	c := EmberConfig{Disabled: []string{"snapshots"}}
	assert.True(t, c.Disables("snapshots"))
	assert.False(t, c.Disables("clones"))
}
