package grpcx

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/cwrk-planet/collab-service/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// RoomsService is the health service name reported alongside the overall status.
const RoomsService = "collab.v1.Rooms"

type Server struct {
	addr        string
	gs          *grpc.Server
	health      *health.Server
	stopTimeout time.Duration
}

func New(addr string, stopTimeout time.Duration) *Server {
	gs := grpc.NewServer(
		grpc.ChainUnaryInterceptor(UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(StreamServerInterceptor()),
	)

	hs := health.NewServer()
	healthpb.RegisterHealthServer(gs, hs)
	reflection.Register(gs)

	if stopTimeout <= 0 {
		stopTimeout = 10 * time.Second
	}
	s := &Server{addr: addr, gs: gs, health: hs, stopTimeout: stopTimeout}
	s.SetServing(true)
	return s
}

func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	logger.FromCtx(ctx).Info("grpc listening", "addr", ln.Addr().String())
	s.serve(ln)
	return nil
}

func (s *Server) serve(ln net.Listener) {
	go func() {
		if err := s.gs.Serve(ln); err != nil {
			slog.Error("grpc serve stopped", slog.Any("err", err))
		}
	}()
}

func (s *Server) SetServing(ok bool) {
	st := healthpb.HealthCheckResponse_SERVING
	if !ok {
		st = healthpb.HealthCheckResponse_NOT_SERVING
	}
	s.health.SetServingStatus("", st)
	s.health.SetServingStatus(RoomsService, st)
}

func (s *Server) MonitorReadiness(ctx context.Context, every time.Duration, check func(context.Context) error) {
	t := time.NewTicker(every)
	defer t.Stop()

	last := true
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
		}
		err := check(ctx)
		if ctx.Err() != nil {
			return
		}
		ok := err == nil
		if ok != last {
			logger.FromCtx(ctx).Warn("readiness changed", "serving", ok, "err", err)
			last = ok
		}
		s.SetServing(ok)
	}
}

func (s *Server) Stop(ctx context.Context) {
	s.health.Shutdown()

	done := make(chan struct{})
	go func() {
		s.gs.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		logger.FromCtx(ctx).Error("grpc graceful stop interrupted; forcing stop")
		s.gs.Stop()
	case <-time.After(s.stopTimeout):
		logger.FromCtx(ctx).Error("grpc graceful stop timeout; forcing stop")
		s.gs.Stop()
	}

	logger.FromCtx(ctx).Info("grpc stopped")
}
