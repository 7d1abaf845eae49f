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

// Package node implements the CSI Node service RPCs on top of a
// persistence.Store, a backend.Driver, a connector.Connector and a
// hostutil.Host. Grounded on internal/rbd.NodeServer's shape (embeds
// *csicommon.DefaultNodeServer, one file per RPC family, a
// stageTransaction-style rollback for NodeStage), generalized away from
// rbd-map specifics and onto a reference-counted Connection model used
// in place of mountinfo counting.
package node

import (
	"github.com/embercsi/ember-csi-go/internal/backend"
	"github.com/embercsi/ember-csi-go/internal/capability"
	"github.com/embercsi/ember-csi-go/internal/connector"
	"github.com/embercsi/ember-csi-go/internal/csicommon"
	"github.com/embercsi/ember-csi-go/internal/hostutil"
	"github.com/embercsi/ember-csi-go/internal/persistence"
	"github.com/embercsi/ember-csi-go/internal/util"
)

// Server implements csi.NodeServer.
type Server struct {
	*csicommon.DefaultNodeServer

	Store     persistence.Store
	Backend   backend.Driver
	Connector connector.Connector
	Host      *hostutil.Host
	Caps      capability.ServiceCapabilities

	// StatePath is the root of the private-bind anchor directory;
	// private devices live at StatePath/vols/<vol_id>.
	StatePath string

	// AttachRetries bounds how many times Connector.Attach is retried
	// while waiting for a device to appear (e.g. multipath settling).
	AttachRetries int

	// VolumeLocks serializes Node RPCs per volume ID, grounded on the
	// teacher's util.VolumeLocks used the same way across every
	// rbd.NodeServer RPC.
	VolumeLocks *util.VolumeLocks
}

// NewServer builds a node Server.
func NewServer(
	driver *csicommon.DefaultNodeServer,
	store persistence.Store,
	drv backend.Driver,
	conn connector.Connector,
	host *hostutil.Host,
	caps capability.ServiceCapabilities,
	statePath string,
	attachRetries int,
) *Server {
	return &Server{
		DefaultNodeServer: driver,
		Store:             store,
		Backend:           drv,
		Connector:         conn,
		Host:              host,
		Caps:              caps,
		StatePath:         statePath,
		AttachRetries:     attachRetries,
		VolumeLocks:       util.NewVolumeLocks(),
	}
}

// privateBindPath is the stable reattach anchor for a volume on this
// node: <state>/vols/<vol_id>.
func (ns *Server) privateBindPath(volID string) string {
	return ns.StatePath + "/vols/" + volID
}
