package health

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ServiceName is the gRPC health service name reported next to the
// overall ("") status.
const ServiceName = "oanda"

// Server provides HTTP endpoints and a gRPC health service.
type Server struct {
	monitor  *Monitor
	server   *http.Server
	grpcPort int
	grpc     *grpc.Server
	grpcHS   *grpchealth.Server
}

// NewServer creates a new health server. A zero grpcPort disables gRPC.
func NewServer(monitor *Monitor, port, grpcPort int) *Server {
	mux := http.NewServeMux()
	s := &Server{
		monitor: monitor,
		server: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		grpcPort: grpcPort,
		grpc:     grpc.NewServer(),
		grpcHS:   grpchealth.NewServer(),
	}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/health/detailed", s.handleDetailed)
	mux.Handle("/metrics", promhttp.Handler())

	healthpb.RegisterHealthServer(s.grpc, s.grpcHS)
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start starts the gRPC listener when enabled, then serves HTTP until Stop.
func (s *Server) Start() error {
	if s.grpcPort > 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", s.grpcPort))
		if err != nil {
			return fmt.Errorf("failed to listen on grpc port %d: %w", s.grpcPort, err)
		}
		go func() {
			if err := s.ServeGRPC(lis); err != nil {
				slog.Error("gRPC health server failed", "error", err)
			}
		}()
	}

	slog.Info("Health server listening", "addr", s.server.Addr, "grpc_port", s.grpcPort)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// ServeGRPC serves the gRPC health service on lis.
func (s *Server) ServeGRPC(lis net.Listener) error {
	return s.grpc.Serve(lis)
}

// Watch refreshes the gRPC serving status every interval until ctx is done.
func (s *Server) Watch(ctx context.Context, interval time.Duration) {
	s.Refresh(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Refresh(ctx)
		}
	}
}

// Refresh runs a health check and publishes it to gRPC clients.
func (s *Server) Refresh(ctx context.Context) SystemStatus {
	report := s.monitor.CheckHealth(ctx)

	serving := healthpb.HealthCheckResponse_SERVING
	if report.Status == StatusCritical {
		serving = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.grpcHS.SetServingStatus("", serving)
	s.grpcHS.SetServingStatus(ServiceName, serving)
	return report.Status
}

// Stop stops the gRPC server gracefully, forcing it when ctx expires, and
// shuts down HTTP.
func (s *Server) Stop(ctx context.Context) error {
	s.grpcHS.Shutdown()

	stopped := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-ctx.Done():
		slog.Warn("Graceful gRPC stop timed out, forcing shutdown")
		s.grpc.Stop()
	}

	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())

	response := map[string]string{"status": string(report.Status)}
	w.Header().Set("Content-Type", "application/json")

	if report.Status == StatusCritical {
		w.WriteHeader(http.StatusServiceUnavailable)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	_ = json.NewEncoder(w).Encode(response)
}

func (s *Server) handleDetailed(w http.ResponseWriter, r *http.Request) {
	report := s.monitor.CheckHealth(r.Context())
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}
