package rpc

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/StricklySoft/storefront/pkg/auth"
	sserr "github.com/StricklySoft/storefront/pkg/errors"
	"github.com/StricklySoft/storefront/pkg/lifecycle"
)

// MetadataRequestID is the metadata key carrying the HTTP request id of
// the call that triggered the RPC.
const MetadataRequestID = "x-request-id"

// Messages of non-validation failures sent to callers.
const (
	MessageRateLimited = "rate limit exceeded"
	MessageInternal    = "internal error"
)

// RateLimiter throttles callers. *redis.Limiter implements it.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int64, window time.Duration) (bool, error)
}

// AuthServer implements [UserAuthServer] on top of an in-process token
// validator.
//
// Validation failures are returned as codes.InvalidArgument with the
// validator's reason as the status message. Callers forward that message
// verbatim.
type AuthServer struct {
	validator auth.TokenValidator
	limiter   RateLimiter
	limit     int64
	window    time.Duration
	logger    *slog.Logger
}

var _ UserAuthServer = (*AuthServer)(nil)

// NewAuthServer returns a server that validates with validator.
func NewAuthServer(validator auth.TokenValidator, logger *slog.Logger) *AuthServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthServer{validator: validator, logger: logger}
}

// WithRateLimit throttles each calling service, identified by its client
// certificate, to limit calls per window. A nil limiter or a non-positive
// limit disables throttling.
func (s *AuthServer) WithRateLimit(limiter RateLimiter, limit int64, window time.Duration) *AuthServer {
	s.limiter = limiter
	s.limit = limit
	s.window = window
	return s
}

// ValidateToken validates req.Token and returns the identity it carries.
func (s *AuthServer) ValidateToken(ctx context.Context, req *ValidateTokenRequest) (*ValidateTokenResponse, error) {
	if err := s.throttle(ctx); err != nil {
		return nil, err
	}

	identity, err := s.validator.Validate(ctx, req.Token)
	if err != nil {
		return nil, s.toStatus(ctx, err)
	}
	return &ValidateTokenResponse{
		UserID:  identity.UserID,
		Email:   identity.Email,
		IsAdmin: identity.IsAdmin,
	}, nil
}

// throttle fails open: a limiter error is logged and the call proceeds.
func (s *AuthServer) throttle(ctx context.Context) error {
	if s.limiter == nil || s.limit <= 0 {
		return nil
	}
	caller, _ := auth.CallerServiceFromContext(ctx)
	allowed, err := s.limiter.Allow(ctx, caller, s.limit, s.window)
	if err != nil {
		s.logger.WarnContext(ctx, "rpc: rate limiter unavailable", "caller", caller, "error", err)
		return nil
	}
	if !allowed {
		s.logger.WarnContext(ctx, "rpc: caller throttled", "caller", caller, "limit", s.limit)
		return status.Error(codes.ResourceExhausted, MessageRateLimited)
	}
	return nil
}

func (s *AuthServer) toStatus(ctx context.Context, err error) error {
	if sserr.IsAuthentication(err) {
		return status.Error(codes.InvalidArgument, sserr.FromError(err).Message)
	}
	s.logger.ErrorContext(ctx, "rpc: token validation failed", "error", err)
	return status.Error(codes.Internal, MessageInternal)
}

// NewServer returns a gRPC server with tracing, call logging and the
// caller identification interceptor installed. creds must require client
// certificates; see [ServerCredentials].
func NewServer(creds credentials.TransportCredentials, logger *slog.Logger, opts ...grpc.ServerOption) *grpc.Server {
	if logger == nil {
		logger = slog.Default()
	}
	base := []grpc.ServerOption{
		grpc.Creds(creds),
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ChainUnaryInterceptor(
			LoggingUnaryInterceptor(logger),
			auth.PeerServiceUnaryInterceptor(),
		),
	}
	return grpc.NewServer(append(base, opts...)...)
}

// Serve adapts s to [lifecycle.Builder.WithServer].
func Serve(s *grpc.Server) lifecycle.ServeFunc {
	return func(ln net.Listener) error {
		if err := s.Serve(ln); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return err
		}
		return nil
	}
}

// GracefulStop returns a stop hook that lets in-flight calls finish and
// closes every connection once ctx expires.
func GracefulStop(s *grpc.Server) lifecycle.Hook {
	return func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			s.GracefulStop()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			s.Stop()
			<-done
			return sserr.Wrap(ctx.Err(), sserr.CodeTimeout, "rpc: graceful stop timed out")
		}
	}
}

// LoggingUnaryInterceptor logs every call with its duration, status code,
// and the request id sent by the caller.
func LoggingUnaryInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		start := time.Now()
		resp, err := handler(ctx, req)

		level := slog.LevelInfo
		code := status.Code(err)
		switch code {
		case codes.OK, codes.InvalidArgument:
		case codes.Internal, codes.Unknown:
			level = slog.LevelError
		default:
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, "rpc call",
			"method", info.FullMethod,
			"code", code.String(),
			"duration", time.Since(start),
			"request_id", requestIDFromMetadata(ctx),
		)
		return resp, err
	}
}

func requestIDFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	if ids := md.Get(MetadataRequestID); len(ids) > 0 {
		return ids[0]
	}
	return ""
}
