package middleware

import (
	"context"
	"net/http"

	goRenew "github.com/MrEthical07/goRenew"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// RenewalMetadataKey carries the renewal marker in gRPC headers and trailers.
const RenewalMetadataKey = "x-auth-renewal"

// UnaryServerInterceptor validates the "authorization" metadata of every unary call.
// Rejections use codes.Unauthenticated; an expired token also gets the renewal marker in
// both header and trailer.
func UnaryServerInterceptor(v Validator, opts ...Option) grpc.UnaryServerInterceptor {
	o := guardOptions{mode: goRenew.ModeInherit}
	for _, opt := range opts {
		opt(&o)
	}

	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		res, err := authenticateRPC(ctx, v, o.mode)
		if err != nil {
			d := Classify(err)
			if d.Renew {
				md := metadata.Pairs(RenewalMetadataKey, RenewalValue)
				_ = grpc.SetHeader(ctx, md)
				_ = grpc.SetTrailer(ctx, md)
			}
			return nil, rpcError(d)
		}
		return handler(ContextWithAuthResult(ctx, res), req)
	}
}

// StreamServerInterceptor is UnaryServerInterceptor for streaming calls.
func StreamServerInterceptor(v Validator, opts ...Option) grpc.StreamServerInterceptor {
	o := guardOptions{mode: goRenew.ModeInherit}
	for _, opt := range opts {
		opt(&o)
	}

	return func(srv any, ss grpc.ServerStream, _ *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		res, err := authenticateRPC(ss.Context(), v, o.mode)
		if err != nil {
			d := Classify(err)
			if d.Renew {
				md := metadata.Pairs(RenewalMetadataKey, RenewalValue)
				_ = ss.SetHeader(md)
				ss.SetTrailer(md)
			}
			return rpcError(d)
		}
		return handler(srv, &authedStream{ServerStream: ss, ctx: ContextWithAuthResult(ss.Context(), res)})
	}
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authedStream) Context() context.Context { return s.ctx }

func authenticateRPC(ctx context.Context, v Validator, mode goRenew.ValidationMode) (*goRenew.AuthResult, error) {
	if v == nil {
		return nil, goRenew.ErrEngineNotReady
	}
	var token string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		for _, value := range md.Get("authorization") {
			if t, ok := bearerToken(value); ok {
				token = t
				break
			}
		}
	}
	return v.Validate(ctx, token, mode)
}

func rpcError(d Decision) error {
	c := codes.Unauthenticated
	switch d.Status {
	case http.StatusForbidden:
		c = codes.PermissionDenied
	case http.StatusServiceUnavailable:
		c = codes.Unavailable
	}
	return status.Error(c, d.Code)
}
