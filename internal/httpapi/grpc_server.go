package httpapi

import (
	"context"
	"errors"
	"strings"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"ideaboard.app/internal/auth"
	"ideaboard.app/internal/obs"
)

const healthServicePrefix = "/grpc.health.v1.Health/"

// HealthReporter drives the standard gRPC health service from the readiness probe.
type HealthReporter struct {
	server    *health.Server
	readiness readinessChecker
}

// NewHealthReporter starts in NOT_SERVING until the first Refresh.
func NewHealthReporter(r readinessChecker) *HealthReporter {
	if r == nil {
		r = ReadyProbe{}
	}
	h := &HealthReporter{server: health.NewServer(), readiness: r}
	h.set(healthpb.HealthCheckResponse_NOT_SERVING)
	return h
}

// Refresh evaluates readiness once and publishes the result.
func (h *HealthReporter) Refresh(ctx context.Context) error {
	err := h.readiness.Check(ctx)
	if err != nil {
		h.set(healthpb.HealthCheckResponse_NOT_SERVING)
		obs.SetReady(false)
		return err
	}
	h.set(healthpb.HealthCheckResponse_SERVING)
	obs.SetReady(true)
	return nil
}

// Run refreshes every interval until ctx is done, then marks the service as
// shutting down.
func (h *HealthReporter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		if err := h.Refresh(checkCtx); err != nil && ctx.Err() == nil {
			obs.Warn("readiness check failed", map[string]any{"error": err})
		}
		cancel()
		select {
		case <-ctx.Done():
			h.server.Shutdown()
			return
		case <-ticker.C:
		}
	}
}

func (h *HealthReporter) set(st healthpb.HealthCheckResponse_ServingStatus) {
	h.server.SetServingStatus("", st)
	h.server.SetServingStatus(serviceName, st)
}

// NewGRPCServer builds the gRPC server: health service plus the auth interceptor
// for every other method.
func NewGRPCServer(guard *auth.Guard, h *HealthReporter, opts ...grpc.ServerOption) *grpc.Server {
	opts = append(opts, grpc.ChainUnaryInterceptor(UnaryAuthInterceptor(guard)))
	s := grpc.NewServer(opts...)
	healthpb.RegisterHealthServer(s, h.server)
	return s
}

// UnaryAuthInterceptor authenticates the "authorization" metadata with the same
// guard as HTTP and stores the principal in the handler context. Health checks
// pass through; health is the only service registered so far.
func UnaryAuthInterceptor(guard *auth.Guard) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if strings.HasPrefix(info.FullMethod, healthServicePrefix) {
			return handler(ctx, req)
		}
		if guard == nil {
			return nil, status.Error(codes.Unavailable, "authentication unavailable")
		}
		var header string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if vals := md.Get("authorization"); len(vals) > 0 {
				header = vals[0]
			}
		}
		principal, err := guard.Authenticate(ctx, header)
		if err != nil {
			return nil, grpcAuthError(err)
		}
		return handler(auth.ContextWithPrincipal(ctx, principal), req)
	}
}

func grpcAuthError(err error) error {
	switch {
	case errors.Is(err, auth.ErrUnauthorized):
		return status.Error(codes.Unauthenticated, "invalid token")
	case errors.Is(err, auth.ErrForbidden):
		return status.Error(codes.PermissionDenied, "forbidden")
	default:
		obs.Error("grpc authentication failed", map[string]any{"error": err})
		return status.Error(codes.Internal, "internal error")
	}
}
