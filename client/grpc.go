package client

import (
	"context"

	"github.com/MrEthical07/goRenew/middleware"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set("authorization", "Bearer "+token)
	return metadata.NewOutgoingContext(ctx, md)
}

// UnaryClientInterceptor attaches the Renewer's access token to every call. An
// Unauthenticated status with the renewal marker in headers or trailers renews and replays
// the call once. A failed renewal returns an error wrapping ErrLoggedOut rather than a status.
func UnaryClientInterceptor(r *Renewer) grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		tokens, gen, err := r.Current(ctx)
		if err != nil {
			return err
		}

		var header, trailer metadata.MD
		first := append(opts[:len(opts):len(opts)], grpc.Header(&header), grpc.Trailer(&trailer))
		err = invoker(withAccessToken(ctx, tokens.AccessToken), method, req, reply, cc, first...)
		if status.Code(err) != codes.Unauthenticated || !renewalMarked(header, trailer) {
			return err
		}

		tokens, _, rerr := r.Renew(ctx, gen)
		if rerr != nil {
			return rerr
		}
		return invoker(withAccessToken(ctx, tokens.AccessToken), method, req, reply, cc, opts...)
	}
}

func renewalMarked(mds ...metadata.MD) bool {
	for _, md := range mds {
		for _, v := range md.Get(middleware.RenewalMetadataKey) {
			if v == middleware.RenewalValue {
				return true
			}
		}
	}
	return false
}
