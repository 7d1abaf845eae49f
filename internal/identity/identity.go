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

// Package identity implements the CSI Identity service RPCs on top of a
// persistence.Store and an optional backend.Driver. Grounded on
// internal/nfs/identity.Server's shape (a thin wrapper around
// csicommon.DefaultIdentityServer overriding only the methods that need
// driver-specific behavior), generalized so that GetPluginCapabilities
// reflects live topology/expansion configuration instead of a static
// CONTROLLER_SERVICE-only list, and Probe actually exercises
// persistence and backend health rather than returning Unimplemented.
package identity

import (
	"context"
	"strconv"

	"github.com/embercsi/ember-csi-go/internal/backend"
	"github.com/embercsi/ember-csi-go/internal/csicommon"
	"github.com/embercsi/ember-csi-go/internal/log"
	"github.com/embercsi/ember-csi-go/internal/persistence"
	"github.com/embercsi/ember-csi-go/internal/topology"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// probeCounterKey is the KeyValue record Probe increments on every call
// to validate the persistence backend is reachable and writable.
const probeCounterKey = "probe_counter"

// Server implements csi.IdentityServer.
type Server struct {
	*csicommon.DefaultIdentityServer

	Store    persistence.Store
	Backend  backend.Driver
	Topology *topology.Engine

	// PersistenceType and Mode feed GetPluginInfo's manifest alongside
	// the driver class, driver version, and a supportedness flag.
	PersistenceType string
	Mode            string

	// ExpansionEnabled mirrors the controller's DisableOnlineExpand
	// negated: when true, GetPluginCapabilities advertises online and
	// offline volume expansion.
	ExpansionEnabled bool
}

// NewServer builds an identity Server.
func NewServer(
	driver *csicommon.CSIDriver,
	store persistence.Store,
	drv backend.Driver,
	topo *topology.Engine,
	persistenceType, mode string,
	expansionEnabled bool,
) *Server {
	return &Server{
		DefaultIdentityServer: csicommon.NewDefaultIdentityServer(driver),
		Store:                 store,
		Backend:               drv,
		Topology:              topo,
		PersistenceType:       persistenceType,
		Mode:                  mode,
		ExpansionEnabled:      expansionEnabled,
	}
}

// GetPluginInfo returns the configured plugin name and version plus a
// manifest describing how this instance is deployed.
func (is *Server) GetPluginInfo(
	ctx context.Context,
	req *csi.GetPluginInfoRequest,
) (*csi.GetPluginInfoResponse, error) {
	resp, err := is.DefaultIdentityServer.GetPluginInfo(ctx, req)
	if err != nil {
		return nil, err
	}

	supported := "true"
	if is.Backend == nil {
		supported = "false"
	}

	resp.Manifest = map[string]string{
		"persistence_type": is.PersistenceType,
		"mode":             is.Mode,
		"driver_class":     driverClass(is.Backend),
		"driver_version":   resp.VendorVersion,
		"supported":        supported,
	}

	return resp, nil
}

func driverClass(drv backend.Driver) string {
	if drv == nil {
		return "none"
	}

	return "fake"
}

// GetPluginCapabilities enumerates the controller service, plus
// accessibility constraints when topology is configured and online and
// offline volume expansion when enabled.
func (is *Server) GetPluginCapabilities(
	ctx context.Context,
	req *csi.GetPluginCapabilitiesRequest,
) (*csi.GetPluginCapabilitiesResponse, error) {
	log.TraceLog(ctx, "identity: GetPluginCapabilities")

	caps := []*csi.PluginCapability{
		{
			Type: &csi.PluginCapability_Service_{
				Service: &csi.PluginCapability_Service{
					Type: csi.PluginCapability_Service_CONTROLLER_SERVICE,
				},
			},
		},
	}

	if is.Topology != nil && is.Topology.Enabled() {
		caps = append(caps, &csi.PluginCapability{
			Type: &csi.PluginCapability_Service_{
				Service: &csi.PluginCapability_Service{
					Type: csi.PluginCapability_Service_VOLUME_ACCESSIBILITY_CONSTRAINTS,
				},
			},
		})
	}

	if is.ExpansionEnabled {
		caps = append(caps, &csi.PluginCapability{
			Type: &csi.PluginCapability_VolumeExpansion_{
				VolumeExpansion: &csi.PluginCapability_VolumeExpansion{
					Type: csi.PluginCapability_VolumeExpansion_ONLINE,
				},
			},
		}, &csi.PluginCapability{
			Type: &csi.PluginCapability_VolumeExpansion_{
				VolumeExpansion: &csi.PluginCapability_VolumeExpansion{
					Type: csi.PluginCapability_VolumeExpansion_OFFLINE,
				},
			},
		})
	}

	return &csi.GetPluginCapabilitiesResponse{Capabilities: caps}, nil
}

// Probe validates persistence reachability by reading a counter key
// and writing it back incremented, and, when a backend is configured, checks
// the backend's own health. Any failure maps to FAILED_PRECONDITION so
// callers know to retry rather than treat the plugin as broken forever.
func (is *Server) Probe(ctx context.Context, req *csi.ProbeRequest) (*csi.ProbeResponse, error) {
	if err := is.bumpProbeCounter(ctx); err != nil {
		log.ErrorLog(ctx, "identity: probe persistence check failed: %v", err)

		return nil, status.Errorf(codes.FailedPrecondition, "persistence unreachable: %v", err)
	}

	if is.Backend != nil {
		if err := is.Backend.CheckForSetupError(ctx); err != nil {
			log.ErrorLog(ctx, "identity: probe backend setup check failed: %v", err)

			return nil, status.Errorf(codes.FailedPrecondition, "backend setup error: %v", err)
		}

		if _, err := is.Backend.Stats(ctx, true); err != nil {
			log.ErrorLog(ctx, "identity: probe backend stats check failed: %v", err)

			return nil, status.Errorf(codes.FailedPrecondition, "backend stats error: %v", err)
		}
	}

	return &csi.ProbeResponse{Ready: wrapperspb.Bool(true)}, nil
}

func (is *Server) bumpProbeCounter(ctx context.Context) error {
	kv, found, err := is.Store.GetKeyValue(ctx, probeCounterKey)
	if err != nil {
		return err
	}

	count := int64(0)
	if found {
		count, err = strconv.ParseInt(kv.Value, 10, 64)
		if err != nil {
			count = 0
		}
	}
	count++

	return is.Store.SetKeyValue(ctx, persistence.KeyValue{
		Key:   probeCounterKey,
		Value: strconv.FormatInt(count, 10),
	})
}
