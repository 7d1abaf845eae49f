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

// Command ember-csi is the plugin entrypoint: it reads its configuration
// from the environment, wires the persistence, backend, connector and
// host surfaces together and serves whichever of the Identity/Controller/
// Node gRPC services CSI_MODE calls for. Grounded on cmd/cephcsi.go's and
// internal/rbd.Driver.Run's dispatch shape (build a CSIDriver, register
// capabilities once, construct the servers CSI_MODE needs, hand them to
// a NonBlockingGRPCServer), generalized from flag-parsed configuration
// to the env/JSON configuration this plugin is deployed with.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/embercsi/ember-csi-go/internal/backend"
	"github.com/embercsi/ember-csi-go/internal/capability"
	"github.com/embercsi/ember-csi-go/internal/config"
	"github.com/embercsi/ember-csi-go/internal/connector"
	"github.com/embercsi/ember-csi-go/internal/controller"
	"github.com/embercsi/ember-csi-go/internal/csicommon"
	"github.com/embercsi/ember-csi-go/internal/hostutil"
	"github.com/embercsi/ember-csi-go/internal/idempotency"
	"github.com/embercsi/ember-csi-go/internal/identity"
	"github.com/embercsi/ember-csi-go/internal/liveness"
	"github.com/embercsi/ember-csi-go/internal/log"
	"github.com/embercsi/ember-csi-go/internal/node"
	"github.com/embercsi/ember-csi-go/internal/persistence"
	"github.com/embercsi/ember-csi-go/internal/persistence/crd"
	"github.com/embercsi/ember-csi-go/internal/persistence/db"
	"github.com/embercsi/ember-csi-go/internal/specversion"
	"github.com/embercsi/ember-csi-go/internal/topology"

	"github.com/container-storage-interface/spec/lib/go/csi"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/client-go/rest"
	"k8s.io/klog/v2"
	ctrlclient "sigs.k8s.io/controller-runtime/pkg/client"

	v1alpha1 "github.com/embercsi/ember-csi-go/api/v1alpha1"
)

// driverVersion is the plugin's own version, reported through
// GetPluginInfo. It is distinct from the configured CSI spec version.
const driverVersion = "0.1.0"

func init() {
	klog.InitFlags(nil)
	if err := flag.Set("logtostderr", "true"); err != nil {
		klog.Exitf("failed to set logtostderr flag: %v", err)
	}
	flag.Parse()
}

func main() {
	cfg, exitCode, err := config.Load()
	if err != nil {
		klog.Errorf("config: %v", err)
		os.Exit(int(exitCode))
	}

	if cfg.Ember.LogLevel > 0 {
		if err := flag.Set("v", fmt.Sprintf("%d", cfg.Ember.LogLevel)); err != nil {
			klog.Warningf("failed to apply log_level %d: %v", cfg.Ember.LogLevel, err)
		}
	}

	profile, err := specversion.ForVersion(cfg.SpecVersion)
	if err != nil {
		klog.Errorf("specversion: %v", err)
		os.Exit(int(config.ExitBadSpecVersion))
	}

	store, err := buildStore(cfg)
	if err != nil {
		klog.Errorf("persistence: %v", err)
		os.Exit(int(config.ExitMissingBackend))
	}
	defer store.Close()

	drv := backend.NewFake(1 << 20)

	topo := topology.NewEngine(cfg.Topologies)

	driver := csicommon.NewCSIDriver(cfg.Ember.PluginName, driverVersion, cfg.NodeID)
	if driver == nil {
		klog.Errorf("failed to initialize CSI driver")
		os.Exit(int(config.ExitInvalidPluginName))
	}

	expandEnabled := profile.SupportsVolumeExpansion && !cfg.Ember.Disables("online_expand")

	if cfg.Mode == config.ModeController || cfg.Mode == config.ModeAll {
		driver.AddControllerServiceCapabilities([]csi.ControllerServiceCapability_RPC_Type{
			csi.ControllerServiceCapability_RPC_CREATE_DELETE_VOLUME,
			csi.ControllerServiceCapability_RPC_CREATE_DELETE_SNAPSHOT,
			csi.ControllerServiceCapability_RPC_CLONE_VOLUME,
			csi.ControllerServiceCapability_RPC_EXPAND_VOLUME,
			csi.ControllerServiceCapability_RPC_PUBLISH_UNPUBLISH_VOLUME,
			csi.ControllerServiceCapability_RPC_LIST_VOLUMES,
			csi.ControllerServiceCapability_RPC_GET_CAPACITY,
		})
		driver.AddVolumeCapabilityAccessModes([]csi.VolumeCapability_AccessMode_Mode{
			csi.VolumeCapability_AccessMode_SINGLE_NODE_WRITER,
			csi.VolumeCapability_AccessMode_MULTI_NODE_MULTI_WRITER,
		})
	}

	caps := capability.ServiceCapabilities{
		AccessModes: []csi.VolumeCapability_AccessMode_Mode{
			csi.VolumeCapability_AccessMode_SINGLE_NODE_WRITER,
			csi.VolumeCapability_AccessMode_MULTI_NODE_MULTI_WRITER,
		},
		FsTypes: []string{cfg.DefaultMountFS, "ext4", "xfs"},
	}

	var servers csicommon.Servers

	servers.IS = identity.NewServer(
		driver, store, drv, topo,
		cfg.Persistence.Storage, string(cfg.Mode),
		expandEnabled,
	)

	if cfg.Mode == config.ModeController || cfg.Mode == config.ModeAll {
		servers.CS = controller.NewServer(
			driver, store, drv, topo, caps,
			cfg.Ember.RequestMultipath,
			!expandEnabled,
		)
	}

	if cfg.Mode == config.ModeNode || cfg.Mode == config.ModeAll {
		driver.SetTopology(cfg.NodeTopology)

		nodeServer := node.NewServer(
			csicommon.NewDefaultNodeServer(driver, cfg.NodeTopology),
			store, drv, connector.NewFake(), hostutil.New(), caps,
			cfg.Ember.StatePath, 3,
		)
		servers.NS = nodeServer

		connectorProps := map[string]string{"multipath": fmt.Sprintf("%t", cfg.Ember.RequestMultipath)}
		if err := nodeServer.RegisterNode(context.Background(), cfg.NodeID, connectorProps); err != nil {
			klog.Errorf("failed to register node connector record: %v", err)
			os.Exit(int(config.ExitMissingBackend))
		}
	}

	mode := idempotency.QueueDuplicates
	if cfg.AbortDuplicates {
		mode = idempotency.AbortDuplicates
	}
	serializer := idempotency.NewSerializer(mode)

	opts := csicommon.MiddlewareServerOptionConfig{
		LogSlowOpInterval: 10 * time.Second,
		EnableMetrics:     cfg.Ember.EnableProbe,
		Serializer:        serializer,
		GRPCWorkers:       cfg.Ember.GRPCWorkers,
	}

	go liveness.NewServer(cfg.Ember.MetricsAddress, drv.CheckForSetupError).Run(context.Background(), 30*time.Second)

	log.DefaultLog("Starting ember-csi %s (CSI spec %s) in mode %s", driverVersion, profile.Version, cfg.Mode)

	gs := csicommon.NewNonBlockingGRPCServer()
	gs.Start(cfg.Endpoint, servers, opts)
	gs.Wait()
}

// buildStore constructs the configured persistence.Store, dialing a SQL
// database for "db" and a Kubernetes API client scoped to the
// v1alpha1 Ember* CRDs for "crd", per X_CSI_PERSISTENCE_CONFIG.
func buildStore(cfg config.Config) (persistence.Store, error) {
	switch cfg.Persistence.Storage {
	case "db":
		return db.New(db.Config{
			Dialect: dbDialect(cfg.Persistence.Connection),
			DSN:     cfg.Persistence.Connection,
		})
	case "crd":
		restConfig, err := rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("crd persistence requires an in-cluster config: %w", err)
		}

		scheme := runtime.NewScheme()
		if err := v1alpha1.AddToScheme(scheme); err != nil {
			return nil, fmt.Errorf("register v1alpha1 scheme: %w", err)
		}

		c, err := ctrlclient.New(restConfig, ctrlclient.Options{Scheme: scheme})
		if err != nil {
			return nil, fmt.Errorf("build controller-runtime client: %w", err)
		}

		return crd.New(c, cfg.Persistence.Namespace), nil
	default:
		return nil, fmt.Errorf("unsupported persistence storage %q", cfg.Persistence.Storage)
	}
}

// dbDialect infers the SQL dialect from the connection string's scheme,
// defaulting to sqlite for a bare file path.
func dbDialect(dsn string) db.Dialect {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return db.DialectPostgres
	}

	return db.DialectSQLite
}
