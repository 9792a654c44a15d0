package grpc

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the health service name reported alongside the overall ("") status.
const ServiceName = "meiduo.mall"

const (
	defaultCheckInterval = 5 * time.Second
	defaultCheckTimeout  = 2 * time.Second
)

// PingFunc reports whether a dependency is reachable.
type PingFunc func(ctx context.Context) error

// HealthServer exposes grpc.health.v1.Health and keeps its status in sync
// with the reachability of the database and Redis.
type HealthServer struct {
	health   *health.Server
	deps     map[string]PingFunc
	interval time.Duration
	timeout  time.Duration
	log      zerolog.Logger
}

func NewHealthServer(deps map[string]PingFunc, log zerolog.Logger) *HealthServer {
	return &HealthServer{
		health:   health.NewServer(),
		deps:     deps,
		interval: defaultCheckInterval,
		timeout:  defaultCheckTimeout,
		log:      log,
	}
}

// NewServer builds the gRPC server with the health service and reflection registered.
func (h *HealthServer) NewServer() *grpc.Server {
	srv := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))
	healthpb.RegisterHealthServer(srv, h.health)
	// Enable reflection for grpcurl/grpcui
	reflection.Register(srv)
	return srv
}

// Run checks dependencies immediately and then on every interval until ctx is
// done, at which point every service is reported NOT_SERVING.
func (h *HealthServer) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.check(ctx)
	for {
		select {
		case <-ctx.Done():
			h.health.Shutdown()
			return
		case <-ticker.C:
			h.check(ctx)
		}
	}
}

func (h *HealthServer) check(ctx context.Context) {
	status := healthpb.HealthCheckResponse_SERVING
	for name, ping := range h.deps {
		pingCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := ping(pingCtx)
		cancel()
		if err != nil {
			h.log.Warn().Err(err).Str("dependency", name).Msg("health check failed")
			status = healthpb.HealthCheckResponse_NOT_SERVING
		}
	}
	h.health.SetServingStatus("", status)
	h.health.SetServingStatus(ServiceName, status)
}
