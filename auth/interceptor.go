package auth

import (
	"context"
	"courier/domain"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity returns a context carrying the resolved caller identity.
func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFromContext returns the identity put there by the interceptors.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	identity, ok := ctx.Value(identityKey).(domain.Identity)
	return identity, ok
}

// Resolver turns the "authorization" metadata of a call into an identity.
type Resolver struct {
	tokens        *TokenManager
	publicMethods map[string]struct{}
}

// NewResolver lets publicMethods through without a token.
func NewResolver(tokens *TokenManager, publicMethods ...string) *Resolver {
	public := make(map[string]struct{}, len(publicMethods))
	for _, m := range publicMethods {
		public[m] = struct{}{}
	}
	return &Resolver{tokens: tokens, publicMethods: public}
}

func (r *Resolver) isPublic(method string) bool {
	_, ok := r.publicMethods[method]
	return ok
}

// Resolve validates the bearer token of the incoming call.
func (r *Resolver) Resolve(ctx context.Context) (domain.Identity, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return domain.Identity{}, status.Error(codes.Unauthenticated, "metadata is missing")
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return domain.Identity{}, status.Error(codes.Unauthenticated, "authorization token is missing")
	}
	identity, err := r.tokens.Validate(strings.TrimPrefix(values[0], "Bearer "))
	if err != nil {
		return domain.Identity{}, status.Error(codes.Unauthenticated, "invalid or expired token")
	}
	return identity, nil
}

func (r *Resolver) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if r.isPublic(info.FullMethod) {
			return handler(ctx, req)
		}
		identity, err := r.Resolve(ctx)
		if err != nil {
			return nil, err
		}
		return handler(WithIdentity(ctx, identity), req)
	}
}

func (r *Resolver) StreamInterceptor() grpc.StreamServerInterceptor {
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if r.isPublic(info.FullMethod) {
			return handler(srv, ss)
		}
		identity, err := r.Resolve(ss.Context())
		if err != nil {
			return err
		}
		return handler(srv, &identityStream{ServerStream: ss, ctx: WithIdentity(ss.Context(), identity)})
	}
}

// identityStream overrides the stream context with one carrying the identity.
type identityStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *identityStream) Context() context.Context {
	return s.ctx
}
