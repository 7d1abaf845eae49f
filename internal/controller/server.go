/*
Copyright 2018 The Ceph-CSI Authors.

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

// Package controller implements the CSI Controller service RPCs on top
// of a persistence.Store, a backend.Driver and the capability/topology
// value types. Grounded on internal/rbd.ControllerServer's shape
// (embeds *csicommon.DefaultControllerServer, one file per RPC family),
// generalized away from RBD-specific parameters.
package controller

import (
	"time"

	"github.com/embercsi/ember-csi-go/internal/backend"
	"github.com/embercsi/ember-csi-go/internal/capability"
	"github.com/embercsi/ember-csi-go/internal/csicommon"
	"github.com/embercsi/ember-csi-go/internal/persistence"
	"github.com/embercsi/ember-csi-go/internal/topology"
)

// pollInterval is how often CreateVolume/DeleteVolume poll the
// persistence store while waiting for a concurrent creating/deleting
// transition to settle.
const pollInterval = time.Second

// Server implements csi.ControllerServer.
type Server struct {
	*csicommon.DefaultControllerServer

	Store    persistence.Store
	Backend  backend.Driver
	Topology *topology.Engine
	Caps     capability.ServiceCapabilities

	// RequestMultipath mirrors X_CSI_EMBER_CONFIG.request_multipath,
	// forwarded into the connector info handed to ControllerPublishVolume.
	RequestMultipath bool

	// DisableOnlineExpand mirrors X_CSI_EMBER_CONFIG.disabled containing
	// "online_expand": when set, ControllerExpandVolume rejects growing a
	// volume that is currently in-use.
	DisableOnlineExpand bool
}

// NewServer builds a controller Server. Callers must have already
// registered the Controller RPC capabilities and volume access modes on
// driver (see cmd/ember-csi, which does so once for the whole process).
func NewServer(
	driver *csicommon.CSIDriver,
	store persistence.Store,
	drv backend.Driver,
	topo *topology.Engine,
	caps capability.ServiceCapabilities,
	requestMultipath bool,
	disableOnlineExpand bool,
) *Server {
	return &Server{
		DefaultControllerServer: csicommon.NewDefaultControllerServer(driver),
		Store:                   store,
		Backend:                 drv,
		Topology:                topo,
		Caps:                    caps,
		RequestMultipath:        requestMultipath,
		DisableOnlineExpand:     disableOnlineExpand,
	}
}
