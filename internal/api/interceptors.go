package api

import (
	"context"
	"strings"
	"time"

	"reservas/internal/domain"
	"reservas/internal/identity"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const (
	requestIDMetadataKey = "x-request-id"
	authorizationKey     = "authorization"
)

func ChainUnaryInterceptors(interceptors ...grpc.UnaryServerInterceptor) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		chained := handler
		for i := len(interceptors) - 1; i >= 0; i-- {
			current := interceptors[i]
			next := chained
			chained = func(currentCtx context.Context, currentReq any) (any, error) {
				return current(currentCtx, currentReq, info, next)
			}
		}
		return chained(ctx, req)
	}
}

// BearerInterceptor is the gRPC side of BearerAuth: token introspection, then
// a per-principal token bucket.
type BearerInterceptor struct {
	verifier domain.TokenVerifier
	limiter  *rateLimiter
	logger   *zerolog.Logger
}

func NewBearerInterceptor(verifier domain.TokenVerifier, limiter *rateLimiter, logger *zerolog.Logger) *BearerInterceptor {
	return &BearerInterceptor{verifier: verifier, limiter: limiter, logger: logger}
}

func (a *BearerInterceptor) Unary() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		principal := ""
		if a.verifier != nil {
			token, ok := bearerToken(first(metadataValues(ctx, authorizationKey)))
			if !ok {
				return nil, status.Error(codes.Unauthenticated, "missing bearer token")
			}
			active, err := a.verifier.VerifyToken(ctx, token)
			if err != nil {
				a.logger.Warn().Err(err).Str("method", info.FullMethod).Msg("token verification failed")
				return nil, grpcStatus(err)
			}
			if !active {
				return nil, status.Error(codes.Unauthenticated, "invalid or expired token")
			}
			if claims, err := identity.ParseClaims(token); err == nil {
				principal = claims.Principal()
			}
		}

		key := principal
		if key == "" {
			key = peerKey(ctx)
		}
		if !a.limiter.allow(key) {
			return nil, status.Error(codes.ResourceExhausted, "rate limit exceeded")
		}
		return handler(ctx, req)
	}
}

func LoggingUnaryInterceptor(logger *zerolog.Logger) grpc.UnaryServerInterceptor {
	base := zerolog.Nop()
	if logger != nil {
		base = logger.With().Str("component", "grpc").Logger()
	}

	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		requestID := requestIDFromMetadata(ctx)
		_ = grpc.SetHeader(ctx, metadata.Pairs(requestIDMetadataKey, requestID))

		start := time.Now()
		resp, err := handler(ctx, req)
		dur := time.Since(start)

		code := codes.OK
		if err != nil {
			code = status.Code(err)
		}

		base.Info().
			Str("request_id", requestID).
			Str("method", info.FullMethod).
			Str("remote", peerKey(ctx)).
			Str("code", code.String()).
			Dur("duration", dur).
			Msg("grpc request")

		return resp, err
	}
}

func requestIDFromMetadata(ctx context.Context) string {
	if id := first(metadataValues(ctx, requestIDMetadataKey)); id != "" {
		return id
	}
	return uuid.NewString()
}

func metadataValues(ctx context.Context, key string) []string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return nil
	}
	return md.Get(key)
}

func peerKey(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return clientKeyUnknown
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return strings.TrimSpace(vals[0])
}
