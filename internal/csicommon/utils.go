/*
Copyright 2017 The Kubernetes Authors.

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

package csicommon

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"sync/atomic"
	"time"

	"github.com/embercsi/ember-csi-go/internal/idempotency"
	"github.com/embercsi/ember-csi-go/internal/log"

	"github.com/container-storage-interface/spec/lib/go/csi"
	grpc_middleware "github.com/grpc-ecosystem/go-grpc-middleware"
	"github.com/kubernetes-csi/csi-lib-utils/protosanitizer"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"k8s.io/klog/v2"
)

func parseEndpoint(ep string) (string, string, error) {
	if strings.HasPrefix(strings.ToLower(ep), "unix://") || strings.HasPrefix(strings.ToLower(ep), "tcp://") {
		s := strings.SplitN(ep, "://", 2)
		if s[1] != "" {
			return s[0], s[1], nil
		}
	}

	return "", "", fmt.Errorf("invalid endpoint: %v", ep)
}

// NewVolumeCapabilityAccessMode wraps a single access mode.
func NewVolumeCapabilityAccessMode(mode csi.VolumeCapability_AccessMode_Mode) *csi.VolumeCapability_AccessMode {
	return &csi.VolumeCapability_AccessMode{Mode: mode}
}

// NewControllerServiceCapability wraps a single controller RPC capability.
func NewControllerServiceCapability(ctrlCap csi.ControllerServiceCapability_RPC_Type) *csi.ControllerServiceCapability {
	return &csi.ControllerServiceCapability{
		Type: &csi.ControllerServiceCapability_Rpc{
			Rpc: &csi.ControllerServiceCapability_RPC{
				Type: ctrlCap,
			},
		},
	}
}

// MiddlewareServerOptionConfig configures the interceptor chain every gRPC
// server in this plugin shares.
type MiddlewareServerOptionConfig struct {
	LogSlowOpInterval time.Duration
	EnableMetrics     bool
	// Serializer enforces the per-resource-id idempotency rule: a second
	// concurrent call naming the same volume/snapshot either queues
	// behind the first or aborts, depending on its Mode.
	Serializer *idempotency.Serializer
	// GRPCWorkers bounds how many RPC handlers may run concurrently
	// (X_CSI_EMBER_CONFIG.grpc_workers). Zero disables the bound.
	GRPCWorkers int
}

// NewMiddlewareServerOption builds the shared interceptor chain: inject a
// request-scoped log context, log the call, optionally log slow calls,
// serialize concurrent calls naming the same resource, and finally recover
// from panics so a single bad request cannot take the process down.
func NewMiddlewareServerOption(config MiddlewareServerOptionConfig) grpc.ServerOption {
	middleWare := []grpc.UnaryServerInterceptor{
		contextIDInjector,
		logGRPC,
	}

	if config.GRPCWorkers > 0 {
		pool := newWorkerPool(config.GRPCWorkers)
		middleWare = append(middleWare, pool.intercept)
	}

	if config.LogSlowOpInterval > 0 {
		middleWare = append(middleWare, func(
			ctx context.Context,
			req interface{},
			info *grpc.UnaryServerInfo,
			handler grpc.UnaryHandler,
		) (interface{}, error) {
			return logSlowGRPC(
				config.LogSlowOpInterval, ctx, req, info, handler,
			)
		})
	}

	if config.Serializer != nil {
		middleWare = append(middleWare, func(
			ctx context.Context,
			req interface{},
			info *grpc.UnaryServerInfo,
			handler grpc.UnaryHandler,
		) (interface{}, error) {
			return serializeGRPC(config.Serializer, ctx, req, info, handler)
		})
	}

	middleWare = append(middleWare, panicHandler)

	return grpc.UnaryInterceptor(grpc_middleware.ChainUnaryServer(middleWare...))
}

func getReqID(req interface{}) string {
	// if req is nil empty string will be returned
	reqID := ""
	switch r := req.(type) {
	case *csi.CreateVolumeRequest:
		reqID = r.GetName()
	case *csi.DeleteVolumeRequest:
		reqID = r.GetVolumeId()

	case *csi.CreateSnapshotRequest:
		reqID = r.GetName()
	case *csi.DeleteSnapshotRequest:
		reqID = r.GetSnapshotId()

	case *csi.ControllerPublishVolumeRequest:
		reqID = r.GetVolumeId()
	case *csi.ControllerUnpublishVolumeRequest:
		reqID = r.GetVolumeId()
	case *csi.ControllerExpandVolumeRequest:
		reqID = r.GetVolumeId()

	case *csi.NodeStageVolumeRequest:
		reqID = r.GetVolumeId()
	case *csi.NodeUnstageVolumeRequest:
		reqID = r.GetVolumeId()

	case *csi.NodePublishVolumeRequest:
		reqID = r.GetVolumeId()
	case *csi.NodeUnpublishVolumeRequest:
		reqID = r.GetVolumeId()

	case *csi.NodeExpandVolumeRequest:
		reqID = r.GetVolumeId()
	}

	return reqID
}

var id uint64

func contextIDInjector(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	atomic.AddUint64(&id, 1)
	ctx = context.WithValue(ctx, log.CtxKey, id)
	if reqID := getReqID(req); reqID != "" {
		ctx = context.WithValue(ctx, log.ReqID, reqID)
	}

	return handler(ctx, req)
}

func logGRPC(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	log.ExtendedLog(ctx, "GRPC call: %s", info.FullMethod)
	log.TraceLog(ctx, "GRPC request: %s", protosanitizer.StripSecrets(req))

	resp, err := handler(ctx, req)
	if err != nil {
		klog.Errorf(log.Log(ctx, "GRPC error: %v"), err)
	} else {
		log.TraceLog(ctx, "GRPC response: %s", protosanitizer.StripSecrets(resp))
	}

	return resp, err
}

// workerPool bounds concurrent RPC handler execution to a fixed size,
// implemented as a buffered-channel semaphore each handler
// acquires/releases around, grounded on logSlowGRPC/panicHandler's
// composition pattern of wrapping handler(ctx, req) with an additional
// concern.
type workerPool struct {
	slots chan struct{}
}

func newWorkerPool(size int) *workerPool {
	return &workerPool{slots: make(chan struct{}, size)}
}

func (p *workerPool) intercept(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	select {
	case p.slots <- struct{}{}:
	case <-ctx.Done():
		return nil, status.Error(codes.DeadlineExceeded, "worker pool: context done while waiting for a free slot")
	}
	defer func() { <-p.slots }()

	return handler(ctx, req)
}

func logSlowGRPC(
	logInterval time.Duration,
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	handlerFinished := make(chan struct{})
	callStartTime := time.Now()

	doLogSlowGRPC := func() {
		ticker := time.NewTicker(logInterval)
		defer ticker.Stop()

		for {
			select {
			case t := <-ticker.C:
				timePassed := t.Sub(callStartTime).Truncate(time.Second)
				log.ExtendedLog(ctx, "Slow GRPC call %s (%s)", info.FullMethod, timePassed)
				log.TraceLog(ctx, "Slow GRPC request: %s", protosanitizer.StripSecrets(req))
			case <-handlerFinished:
				return
			}
		}
	}

	go func() {
		select {
		case <-ctx.Done():
			doLogSlowGRPC()
		case <-handlerFinished:
			return
		}
	}()

	resp, err := handler(ctx, req)
	close(handlerFinished)

	return resp, err
}

// serializeGRPC enforces idempotency.Serializer around calls that name a
// resource (getReqID returns non-empty); calls that don't name one (e.g.
// ListVolumes, GetCapacity) pass through unserialized.
func serializeGRPC(
	s *idempotency.Serializer,
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (interface{}, error) {
	key := getReqID(req)
	if key == "" {
		return handler(ctx, req)
	}

	if !s.Acquire(key) {
		return nil, status.Error(codes.Aborted, idempotency.ErrorMessage(key))
	}
	defer s.Release(key)

	return handler(ctx, req)
}

//nolint:nonamedreturns // named return used to send recovered panic error.
func panicHandler(
	ctx context.Context,
	req interface{},
	info *grpc.UnaryServerInfo,
	handler grpc.UnaryHandler,
) (resp interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			klog.Errorf("panic occurred: %v", r)
			debug.PrintStack()
			err = status.Errorf(codes.Internal, "panic %v", r)
		}
	}()

	return handler(ctx, req)
}

// requirePositive returns x, or 0 if x is negative. The CSI spec forbids
// negative values in VolumeUsage entries.
func requirePositive(x int64) int64 {
	if x >= 0 {
		return x
	}

	return 0
}

// IsBlockMultiNode checks the volume capabilities for BlockMode and MultiNode.
func IsBlockMultiNode(caps []*csi.VolumeCapability) (bool, bool) {
	isMultiNode := false
	isBlock := false
	for _, capability := range caps {
		if capability.GetAccessMode().GetMode() == csi.VolumeCapability_AccessMode_MULTI_NODE_MULTI_WRITER {
			isMultiNode = true
		}
		if capability.GetBlock() != nil {
			isBlock = true
		}
	}

	return isBlock, isMultiNode
}

// IsFileRWO reports whether caps contains a mount-mode, single-node
// capability (SINGLE_NODE_WRITER or one of its _SINGLE/_MULTI_WRITER
// variants).
func IsFileRWO(caps []*csi.VolumeCapability) bool {
	for _, cap := range caps {
		if cap.GetAccessMode() != nil && cap.GetMount() != nil {
			switch cap.GetAccessMode().GetMode() { //nolint:exhaustive // only check what we want
			case csi.VolumeCapability_AccessMode_SINGLE_NODE_WRITER,
				csi.VolumeCapability_AccessMode_SINGLE_NODE_MULTI_WRITER,
				csi.VolumeCapability_AccessMode_SINGLE_NODE_SINGLE_WRITER:
				return true
			}
		}
	}

	return false
}

// IsReaderOnly reports whether caps contains a reader-only access mode,
// regardless of file or block mode.
func IsReaderOnly(caps []*csi.VolumeCapability) bool {
	for _, cap := range caps {
		if cap.GetAccessMode() != nil {
			switch cap.GetAccessMode().GetMode() { //nolint:exhaustive // only check what we want
			case csi.VolumeCapability_AccessMode_MULTI_NODE_READER_ONLY,
				csi.VolumeCapability_AccessMode_SINGLE_NODE_READER_ONLY:
				return true
			}
		}
	}

	return false
}

// IsBlockMultiWriter validates the volume capability slice against access
// modes and access type: the first return is true if any capability is a
// multi-writer mode (single- or multi-node), the second is true if any
// capability is block mode.
func IsBlockMultiWriter(caps []*csi.VolumeCapability) (bool, bool) {
	var multiWriter bool
	var block bool

	for _, cap := range caps {
		if cap.GetAccessMode() != nil {
			switch cap.GetAccessMode().GetMode() { //nolint:exhaustive // only check what we want
			case csi.VolumeCapability_AccessMode_MULTI_NODE_MULTI_WRITER,
				csi.VolumeCapability_AccessMode_SINGLE_NODE_MULTI_WRITER:
				multiWriter = true
			}
		}
		if cap.GetBlock() != nil {
			block = true
		}
	}

	return multiWriter, block
}
