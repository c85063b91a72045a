package api

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strings"
	"time"

	"reservas/internal/domain"
	"reservas/internal/identity"
	"reservas/internal/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	requestIDHeader  = "X-Request-ID"
	clientKeyUnknown = "unknown"
)

type ctxKey struct{}

// requestInfo is shared by every layer of one request; auth fills Principal
// after routing, logging reads it on the way out.
type requestInfo struct {
	ID        string
	Principal string
}

func infoFrom(ctx context.Context) *requestInfo {
	if info, ok := ctx.Value(ctxKey{}).(*requestInfo); ok {
		return info
	}
	return &requestInfo{}
}

func requestIDFrom(ctx context.Context) string {
	return infoFrom(ctx).ID
}

func principalFrom(ctx context.Context) string {
	return infoFrom(ctx).Principal
}

// requestIDMiddleware adopts the caller's request id or mints one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, &requestInfo{ID: id})))
	})
}

func loggingMiddleware(logger *zerolog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		endpoint := r.Pattern
		if endpoint == "" {
			endpoint = "unmatched"
		}
		metrics.IncHTTP(endpoint)

		logger.Info().
			Str("request_id", requestIDFrom(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Str("principal", principalFrom(r.Context())).
			Dur("duration", time.Since(start)).
			Msg("http request")
	})
}

// BearerAuth verifies the Authorization header with the identity provider
// before the request reaches a handler.
type BearerAuth struct {
	verifier domain.TokenVerifier
	limiter  *rateLimiter
	logger   *zerolog.Logger
}

func NewBearerAuth(verifier domain.TokenVerifier, limiter *rateLimiter, logger *zerolog.Logger) *BearerAuth {
	return &BearerAuth{verifier: verifier, limiter: limiter, logger: logger}
}

// Wrap guards one routed handler. A nil verifier only rate-limits.
func (a *BearerAuth) Wrap(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if a.verifier != nil {
			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				writeError(w, http.StatusUnauthorized, "missing bearer token")
				return
			}
			active, err := a.verifier.VerifyToken(ctx, token)
			if err != nil {
				a.logger.Warn().Err(err).Str("request_id", requestIDFrom(ctx)).Msg("token verification failed")
				writeDomainError(w, err)
				return
			}
			if !active {
				writeError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}
			if claims, err := identity.ParseClaims(token); err == nil {
				infoFrom(ctx).Principal = claims.Principal()
			}
		}

		if !a.limiter.allow(clientKey(ctx, r)) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func clientKey(ctx context.Context, r *http.Request) string {
	if p := principalFrom(ctx); p != "" {
		return p
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil && host != "" {
		return host
	}
	return clientKeyUnknown
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
