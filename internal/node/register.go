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
	"encoding/json"
	"fmt"

	"github.com/embercsi/ember-csi-go/internal/persistence"
)

// RegisterNode persists this node's connector properties under its node
// id so ControllerPublishVolume can resolve node_id (NOT_FOUND if unknown)
// before asking the backend to expose a volume to it. Called once at
// node-service startup: the node writes its own connector record, the
// controller only ever reads it.
func (ns *Server) RegisterNode(ctx context.Context, nodeID string, connectorProps map[string]string) error {
	value, err := json.Marshal(connectorProps)
	if err != nil {
		return fmt.Errorf("encode node connector properties: %w", err)
	}

	return ns.Store.SetKeyValue(ctx, persistence.KeyValue{
		Key:   persistence.NodeConnectorKey(nodeID),
		Value: string(value),
	})
}
