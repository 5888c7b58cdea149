package rpc

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/StricklySoft/storefront/pkg/auth"
	sserr "github.com/StricklySoft/storefront/pkg/errors"
)

// Client-facing messages for dependency failures.
const (
	MessageAuthUnavailable = "Authentication service is unavailable"
	MessageAuthTimeout     = "Authentication service did not respond in time"
)

// Client validates tokens through the UserAuth service. It implements
// [auth.TokenValidator], so the request gate in the cart service uses it
// exactly like the in-process validator.
//
// Calls run behind a circuit breaker. Only transport and server failures
// count against it; a rejected token is a healthy answer.
type Client struct {
	stub    UserAuthClient
	conn    *grpc.ClientConn
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker[*ValidateTokenResponse]
	logger  *slog.Logger
}

var _ auth.TokenValidator = (*Client)(nil)

// Dial creates a client for cfg.Target() over creds. The connection is
// established lazily on the first call.
func Dial(cfg ClientConfig, creds credentials.TransportCredentials, logger *slog.Logger, opts ...grpc.DialOption) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	base := []grpc.DialOption{
		grpc.WithTransportCredentials(creds),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
	}
	conn, err := grpc.NewClient(cfg.Target(), append(base, opts...)...)
	if err != nil {
		return nil, sserr.Wrapf(err, sserr.CodeInternalConfiguration, "rpc: failed to create client for %s", cfg.Target())
	}
	c := NewClient(NewUserAuthClient(conn), cfg, logger)
	c.conn = conn
	return c, nil
}

// NewClient wraps stub. cfg supplies the timeout and breaker settings.
func NewClient(stub UserAuthClient, cfg ClientConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{stub: stub, timeout: cfg.Timeout, logger: logger}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = DefaultBreakerFailures
	}
	c.breaker = gobreaker.NewCircuitBreaker[*ValidateTokenResponse](gobreaker.Settings{
		Name:    ServiceName,
		Timeout: cfg.BreakerOpen,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: breakerSuccess,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("rpc: circuit breaker state changed",
				"breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// Validate sends authorization to the UserAuth service.
func (c *Client) Validate(ctx context.Context, authorization string) (auth.Identity, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	ctx = metadata.AppendToOutgoingContext(ctx, MetadataRequestID, requestID(ctx))

	resp, err := c.breaker.Execute(func() (*ValidateTokenResponse, error) {
		return c.stub.ValidateToken(ctx, &ValidateTokenRequest{Token: authorization})
	})
	if err != nil {
		return auth.Identity{}, c.fromStatus(ctx, err)
	}
	return auth.Identity{UserID: resp.UserID, Email: resp.Email, IsAdmin: resp.IsAdmin}, nil
}

// State returns the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Health reports the UserAuth dependency as unavailable while the breaker
// is open.
func (c *Client) Health(context.Context) error {
	if c.breaker.State() == gobreaker.StateOpen {
		return sserr.New(sserr.CodeUnavailableDependency, MessageAuthUnavailable)
	}
	return nil
}

// Close releases the connection created by [Dial].
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// fromStatus maps an RPC failure to the error the gate renders:
//
//	InvalidArgument                     -> 403 with the server's reason
//	ResourceExhausted, Unavailable,
//	open breaker                        -> 503
//	DeadlineExceeded                    -> 504
//	anything else                       -> 500
func (c *Client) fromStatus(ctx context.Context, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, MessageAuthUnavailable)
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.InvalidArgument:
		return sserr.Unauthenticated(sserr.CodeAuthenticationInvalid, st.Message())
	case codes.ResourceExhausted:
		return sserr.Wrap(err, sserr.CodeUnavailableOverloaded, MessageAuthUnavailable)
	case codes.Unavailable:
		return sserr.Wrap(err, sserr.CodeUnavailableDependency, MessageAuthUnavailable)
	case codes.DeadlineExceeded:
		return sserr.Wrap(err, sserr.CodeTimeoutDependency, MessageAuthTimeout)
	case codes.Canceled:
		return sserr.Wrap(err, sserr.CodeTimeout, MessageAuthTimeout)
	default:
		c.logger.ErrorContext(ctx, "rpc: ValidateToken failed", "code", st.Code().String(), "error", err)
		return sserr.Wrap(err, sserr.CodeInternal, sserr.MessageInternal)
	}
}

// breakerSuccess reports whether a call result says the server is
// healthy. Rejections and throttling are healthy answers.
func breakerSuccess(err error) bool {
	switch status.Code(err) {
	case codes.OK, codes.InvalidArgument, codes.ResourceExhausted, codes.Canceled:
		return true
	default:
		return false
	}
}

// requestID returns the chi request id of the inbound HTTP request, or a
// fresh one when the call did not originate from a request.
func requestID(ctx context.Context) string {
	if id := middleware.GetReqID(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}
