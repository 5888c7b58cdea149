package rpc

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully qualified name of the token validation service.
const ServiceName = "storefront.auth.UserAuth"

// MethodValidateToken is the full method name of ValidateToken.
const MethodValidateToken = "/" + ServiceName + "/ValidateToken"

// ValidateTokenRequest carries the raw Authorization header value,
// "Bearer <token>".
type ValidateTokenRequest struct {
	Token string `cbor:"token"`
}

// ValidateTokenResponse carries the identity embedded in a valid token.
type ValidateTokenResponse struct {
	UserID  int64  `cbor:"user_id"`
	Email   string `cbor:"email"`
	IsAdmin bool   `cbor:"is_admin"`
}

// UserAuthServer is the server API of the UserAuth service.
type UserAuthServer interface {
	ValidateToken(ctx context.Context, req *ValidateTokenRequest) (*ValidateTokenResponse, error)
}

// UserAuthClient is the client API of the UserAuth service.
type UserAuthClient interface {
	ValidateToken(ctx context.Context, req *ValidateTokenRequest, opts ...grpc.CallOption) (*ValidateTokenResponse, error)
}

type userAuthClient struct {
	cc grpc.ClientConnInterface
}

// NewUserAuthClient returns a UserAuth stub over cc. Every call is sent
// with the CBOR content subtype.
func NewUserAuthClient(cc grpc.ClientConnInterface) UserAuthClient {
	return &userAuthClient{cc: cc}
}

func (c *userAuthClient) ValidateToken(ctx context.Context, req *ValidateTokenRequest, opts ...grpc.CallOption) (*ValidateTokenResponse, error) {
	out := new(ValidateTokenResponse)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := c.cc.Invoke(ctx, MethodValidateToken, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// RegisterUserAuthServer registers srv on s.
func RegisterUserAuthServer(s grpc.ServiceRegistrar, srv UserAuthServer) {
	s.RegisterService(&UserAuthServiceDesc, srv)
}

func validateTokenHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ValidateTokenRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(UserAuthServer).ValidateToken(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: MethodValidateToken,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(UserAuthServer).ValidateToken(ctx, req.(*ValidateTokenRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// UserAuthServiceDesc describes the UserAuth service for grpc.Server.
var UserAuthServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*UserAuthServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ValidateToken",
			Handler:    validateTokenHandler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "storefront/auth/user_auth",
}
