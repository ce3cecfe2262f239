package grpcx

import (
	"context"
	"runtime/debug"
	"time"

	"github.com/cwrk-planet/collab-service/pkg/logger"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	requestIDKey = "x-request-id"
	defaultGuard = 10 * time.Second
)

// Unary logging + recovery + deadline guard (если у вызова нет deadline)
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (resp any, err error) {
		start := time.Now()
		ctx = withRequestLogger(ctx)

		if _, ok := ctx.Deadline(); !ok {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, defaultGuard)
			defer cancel()
		}

		defer func() {
			if r := recover(); r != nil {
				logger.FromCtx(ctx).Error("grpc unary panic",
					"method", info.FullMethod,
					"panic", r,
					"stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal server error")
			}
			logCall(ctx, "grpc unary", info.FullMethod, start, err)
		}()

		return handler(ctx, req)
	}
}

func StreamServerInterceptor() grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) (err error) {
		start := time.Now()
		ctx := withRequestLogger(ss.Context())

		defer func() {
			if r := recover(); r != nil {
				logger.FromCtx(ctx).Error("grpc stream panic",
					"method", info.FullMethod,
					"panic", r,
					"stack", string(debug.Stack()))
				err = status.Error(codes.Internal, "internal server error")
			}
			logCall(ctx, "grpc stream", info.FullMethod, start, err)
		}()

		return handler(srv, ss)
	}
}

func withRequestLogger(ctx context.Context) context.Context {
	md, _ := metadata.FromIncomingContext(ctx)
	if vals := md.Get(requestIDKey); len(vals) > 0 && vals[0] != "" {
		return logger.With(ctx, logger.FromCtx(ctx).With("req_id", vals[0]))
	}
	return ctx
}

func logCall(ctx context.Context, msg, method string, start time.Time, err error) {
	l := logger.FromCtx(ctx)
	code := status.Code(err)
	if code == codes.Internal || code == codes.Unknown {
		l.Error(msg, "method", method, "code", code.String(),
			"dur_ms", time.Since(start).Milliseconds(), "err", errString(err))
		return
	}
	// health probes are chatty
	l.Debug(msg, "method", method, "code", code.String(),
		"dur_ms", time.Since(start).Milliseconds(), "err", errString(err))
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
