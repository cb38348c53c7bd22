package auth

import (
	"context"
	"courier/domain"
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const (
	publicMethod    = "/courier.v1.Messaging/Login"
	protectedMethod = "/courier.v1.Messaging/SendToUser"
)

type fakeServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s fakeServerStream) Context() context.Context { return s.ctx }

func TestUnaryInterceptor(t *testing.T) {
	tokens := newTokenManager(t)
	resolver := NewResolver(tokens, publicMethod)
	interceptor := resolver.UnaryInterceptor()

	// Handler returning the context it received, to inspect the identity
	handler := func(ctx context.Context, _ any) (any, error) {
		return ctx, nil
	}

	t.Run("public method needs no token", func(t *testing.T) {
		req := require.New(t)
		res, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: publicMethod}, handler)
		req.NoError(err)
		req.NotNil(res)
	})

	t.Run("missing metadata", func(t *testing.T) {
		req := require.New(t)
		_, err := interceptor(context.Background(), nil, &grpc.UnaryServerInfo{FullMethod: protectedMethod}, handler)
		req.Equal(codes.Unauthenticated, status.Code(err))
	})

	t.Run("invalid token", func(t *testing.T) {
		req := require.New(t)
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer nope"))
		_, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: protectedMethod}, handler)
		req.Equal(codes.Unauthenticated, status.Code(err))
		req.Contains(err.Error(), "invalid or expired token")
	})

	t.Run("valid token injects the identity", func(t *testing.T) {
		req := require.New(t)
		token, err := tokens.Generate(domain.User("alice"))
		req.NoError(err)
		ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))

		res, err := interceptor(ctx, nil, &grpc.UnaryServerInfo{FullMethod: protectedMethod}, handler)

		req.NoError(err)
		identity, ok := IdentityFromContext(res.(context.Context))
		req.True(ok)
		req.Equal(domain.User("alice"), identity)
	})
}

func TestStreamInterceptor(t *testing.T) {
	req := require.New(t)
	tokens := newTokenManager(t)
	interceptor := NewResolver(tokens).StreamInterceptor()
	token, err := tokens.Generate(domain.Service("echo"))
	req.NoError(err)

	var seen domain.Identity
	handler := func(_ any, stream grpc.ServerStream) error {
		seen, _ = IdentityFromContext(stream.Context())
		return nil
	}
	ctx := metadata.NewIncomingContext(context.Background(), metadata.Pairs("authorization", "Bearer "+token))

	// When a stream opens with a valid token
	err = interceptor(nil, fakeServerStream{ctx: ctx}, &grpc.StreamServerInfo{FullMethod: "/courier.v1.Messaging/Connect"}, handler)

	// Then the handler sees the caller identity
	req.NoError(err)
	req.Equal(domain.Service("echo"), seen)

	// And a stream without a token is refused
	err = interceptor(nil, fakeServerStream{ctx: context.Background()}, &grpc.StreamServerInfo{FullMethod: "/courier.v1.Messaging/Connect"}, handler)
	req.Equal(codes.Unauthenticated, status.Code(err))
}
