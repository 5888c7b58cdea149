package auth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

// PeerCommonName returns the subject common name of the verified client
// certificate on ctx's gRPC peer.
func PeerCommonName(ctx context.Context) (string, bool) {
	p, ok := peer.FromContext(ctx)
	if !ok || p.AuthInfo == nil {
		return "", false
	}
	tlsInfo, ok := p.AuthInfo.(credentials.TLSInfo)
	if !ok || len(tlsInfo.State.VerifiedChains) == 0 || len(tlsInfo.State.VerifiedChains[0]) == 0 {
		return "", false
	}
	return tlsInfo.State.VerifiedChains[0][0].Subject.CommonName, true
}

// PeerServiceUnaryInterceptor records the calling service, named by the
// common name of its verified client certificate, with
// [ContextWithCallerService]. Calls without a verified certificate are
// refused with codes.Unauthenticated.
func PeerServiceUnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		_ *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		name, ok := PeerCommonName(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "client certificate required")
		}
		return handler(ContextWithCallerService(ctx, name), req)
	}
}
