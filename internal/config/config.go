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

// Package config loads the plugin's environment-driven configuration,
// adapted from cmd/cephcsi.go's flag-parsed util.Config to
// os.Getenv/json.Unmarshal since this plugin is deployed as a sidecar
// container configured purely through its environment rather than a
// command line.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Mode selects which CSI services a process instance serves.
type Mode string

const (
	ModeController Mode = "controller"
	ModeNode       Mode = "node"
	ModeAll        Mode = "all"
)

// ExitCode enumerates the distinct process exit codes the plugin uses,
// one per configuration failure class.
type ExitCode int

const (
	ExitOK ExitCode = iota
	ExitBadMode
	ExitMissingBackend
	ExitInvalidSystemFiles
	ExitUnsupportedFsType
	ExitBadSpecVersion
	ExitTopologyError
	ExitInvalidPluginName
	ExitBadJSON
	ExitBadDebugMode
	ExitWorkerMisconfiguration
)

// PersistenceConfig is the JSON value of X_CSI_PERSISTENCE_CONFIG.
type PersistenceConfig struct {
	Storage    string `json:"storage"` // "db" or "crd"
	Connection string `json:"connection"`
	Namespace  string `json:"namespace"`
}

// EmberConfig is the JSON value of X_CSI_EMBER_CONFIG.
type EmberConfig struct {
	PluginName       string   `json:"plugin_name"`
	GRPCWorkers      int      `json:"grpc_workers"`
	RequestMultipath bool     `json:"request_multipath"`
	EnableProbe      bool     `json:"enable_probe"`
	StatePath        string   `json:"state_path"`
	FileLocksPath    string   `json:"file_locks_path"`
	Disabled         []string `json:"disabled"`
	LogLevel         int      `json:"log_level"`
	MetricsAddress   string   `json:"metrics_address"`
}

// Disables reports whether feature is listed in Disabled.
func (c EmberConfig) Disables(feature string) bool {
	for _, f := range c.Disabled {
		if f == feature {
			return true
		}
	}

	return false
}

// Config is the fully resolved plugin configuration, assembled from the
// environment variables the plugin reads at startup.
type Config struct {
	Endpoint string
	Mode     Mode

	SpecVersion string

	Persistence PersistenceConfig
	BackendJSON string
	Ember       EmberConfig

	NodeID        string
	StorageNwIP   string
	DefaultMountFS string
	Topologies    []map[string]string
	NodeTopology  map[string]string
	AbortDuplicates bool
	SystemFiles   string
}

var supportedSpecVersions = map[string]bool{
	"0.2.0": true, "0.3.0": true, "1.0.0": true, "1.1.0": true,
}

// Load reads Config from the process environment. On a validation
// failure it returns an error paired with the ExitCode the caller should
// terminate with.
func Load() (Config, ExitCode, error) {
	var cfg Config

	cfg.Endpoint = os.Getenv("CSI_ENDPOINT")

	cfg.Mode = Mode(os.Getenv("CSI_MODE"))
	switch cfg.Mode {
	case ModeController, ModeNode, ModeAll:
	default:
		return cfg, ExitBadMode, fmt.Errorf("config: unsupported CSI_MODE %q", cfg.Mode)
	}

	cfg.SpecVersion = os.Getenv("X_CSI_SPEC_VERSION")
	if cfg.SpecVersion == "" {
		cfg.SpecVersion = "1.1.0"
	}
	if !supportedSpecVersions[cfg.SpecVersion] {
		return cfg, ExitBadSpecVersion, fmt.Errorf("config: unsupported X_CSI_SPEC_VERSION %q", cfg.SpecVersion)
	}

	if raw := os.Getenv("X_CSI_PERSISTENCE_CONFIG"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.Persistence); err != nil {
			return cfg, ExitBadJSON, fmt.Errorf("config: parse X_CSI_PERSISTENCE_CONFIG: %w", err)
		}
	}
	if cfg.Persistence.Storage != "db" && cfg.Persistence.Storage != "crd" {
		return cfg, ExitMissingBackend, fmt.Errorf("config: X_CSI_PERSISTENCE_CONFIG.storage must be %q or %q", "db", "crd")
	}

	cfg.BackendJSON = os.Getenv("X_CSI_BACKEND_CONFIG")
	if cfg.BackendJSON == "" {
		return cfg, ExitMissingBackend, fmt.Errorf("config: X_CSI_BACKEND_CONFIG is required")
	}

	cfg.Ember = EmberConfig{GRPCWorkers: 10, EnableProbe: true, MetricsAddress: ":9090"}
	if raw := os.Getenv("X_CSI_EMBER_CONFIG"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.Ember); err != nil {
			return cfg, ExitBadJSON, fmt.Errorf("config: parse X_CSI_EMBER_CONFIG: %w", err)
		}
	}
	if cfg.Ember.PluginName == "" {
		return cfg, ExitInvalidPluginName, fmt.Errorf("config: X_CSI_EMBER_CONFIG.plugin_name is required")
	}
	if cfg.Ember.GRPCWorkers <= 0 {
		return cfg, ExitWorkerMisconfiguration, fmt.Errorf("config: grpc_workers must be positive, got %d", cfg.Ember.GRPCWorkers)
	}

	cfg.NodeID = os.Getenv("X_CSI_NODE_ID")
	cfg.StorageNwIP = os.Getenv("X_CSI_STORAGE_NW_IP")
	cfg.DefaultMountFS = os.Getenv("X_CSI_DEFAULT_MOUNT_FS")
	if cfg.DefaultMountFS == "" {
		cfg.DefaultMountFS = "ext4"
	}

	if raw := os.Getenv("X_CSI_TOPOLOGIES"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.Topologies); err != nil {
			return cfg, ExitTopologyError, fmt.Errorf("config: parse X_CSI_TOPOLOGIES: %w", err)
		}
	}
	if raw := os.Getenv("X_CSI_NODE_TOPOLOGY"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &cfg.NodeTopology); err != nil {
			return cfg, ExitTopologyError, fmt.Errorf("config: parse X_CSI_NODE_TOPOLOGY: %w", err)
		}
	}

	cfg.AbortDuplicates = strings.EqualFold(os.Getenv("X_CSI_ABORT_DUPLICATES"), "true")
	cfg.SystemFiles = os.Getenv("X_CSI_SYSTEM_FILES")

	return cfg, ExitOK, nil
}
