package rpc

import (
	"context"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type peerIdentityKey struct{}

// PeerIdentity is the bearer token presented by the calling ECA/operator, extracted into the
// context by AuthInterceptor so handlers can authorize per-peer operations.
func PeerIdentity(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(peerIdentityKey{}).(string)
	return v, ok
}

// AuthConfig names the methods exempt from authentication (health checks) and the bearer
// token validator.
type AuthConfig struct {
	Validate    func(ctx context.Context, token string) (identity string, err error)
	SkipMethods []string
}

// UnaryAuthInterceptor enforces AuthConfig on every unary RPC not in SkipMethods.
func UnaryAuthInterceptor(cfg AuthConfig) grpc.UnaryServerInterceptor {
	skip := toSkipSet(cfg.SkipMethods)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if skip[info.FullMethod] {
			return handler(ctx, req)
		}
		ctx, err := authenticate(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamAuthInterceptor is the streaming-RPC equivalent of UnaryAuthInterceptor.
func StreamAuthInterceptor(cfg AuthConfig) grpc.StreamServerInterceptor {
	skip := toSkipSet(cfg.SkipMethods)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		if skip[info.FullMethod] {
			return handler(srv, ss)
		}
		ctx, err := authenticate(ss.Context(), cfg)
		if err != nil {
			return err
		}
		return handler(srv, &authenticatedStream{ServerStream: ss, ctx: ctx})
	}
}

func authenticate(ctx context.Context, cfg AuthConfig) (context.Context, error) {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing metadata")
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing authorization header")
	}
	const prefix = "Bearer "
	if !strings.HasPrefix(values[0], prefix) {
		return nil, status.Error(codes.Unauthenticated, "invalid authorization format")
	}
	token := strings.TrimPrefix(values[0], prefix)
	identity, err := cfg.Validate(ctx, token)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "invalid token: %v", err)
	}
	return context.WithValue(ctx, peerIdentityKey{}, identity), nil
}

func toSkipSet(methods []string) map[string]bool {
	out := make(map[string]bool, len(methods))
	for _, m := range methods {
		out[m] = true
	}
	return out
}

type authenticatedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (s *authenticatedStream) Context() context.Context { return s.ctx }

// BearerCredentials attaches a fixed "authorization: Bearer <token>" header to every call,
// satisfying credentials.PerRPCCredentials for an ecad/cctl dial. token is the same
// "<peerId>" / "<peerId>:<clientSecret>" value AuthConfig.Validate expects server-side.
type BearerCredentials struct {
	Token            string
	transportSecured bool
}

// NewBearerCredentials builds client call credentials; requireTransportSecurity should match
// whether the dial uses TLS (it must, outside of tests, since bearer tokens are bearer
// secrets).
func NewBearerCredentials(token string, requireTransportSecurity bool) BearerCredentials {
	return BearerCredentials{Token: token, transportSecured: requireTransportSecurity}
}

func (c BearerCredentials) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + c.Token}, nil
}

func (c BearerCredentials) RequireTransportSecurity() bool { return c.transportSecured }
