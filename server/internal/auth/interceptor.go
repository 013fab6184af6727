package auth

import (
	"context"
	"crypto/subtle"
	"net/http"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/fleetpulse/fleetpulse/server/internal/config"
)

// Guard checks the shared API key presented by agents and API clients.
// A Guard with mode other than "apikey", or with an empty key, allows every call.
type Guard struct {
	mode   string
	header string
	key    string
}

// New builds a Guard from the server auth config, resolving the key from
// the environment.
func New(cfg config.AuthConfig) *Guard {
	return &Guard{mode: cfg.Mode, header: cfg.EffectiveHeader(), key: cfg.Key()}
}

// Enabled reports whether calls are actually checked.
func (g *Guard) Enabled() bool {
	return g.mode == "apikey" && g.key != ""
}

func (g *Guard) valid(presented string) bool {
	return presented != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(g.key)) == 1
}

// UnaryInterceptor returns a gRPC UnaryServerInterceptor that enforces the API
// key on every incoming call. A missing, empty, or incorrect key returns
// codes.Unauthenticated.
func (g *Guard) UnaryInterceptor() grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if !g.Enabled() {
			return handler(ctx, req)
		}

		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing metadata")
		}

		vals := md.Get(g.header)
		if len(vals) == 0 || !g.valid(vals[0]) {
			return nil, status.Error(codes.Unauthenticated, "invalid api key")
		}

		return handler(ctx, req)
	}
}

// Middleware wraps an http.Handler with the same API key check. The key is
// read from the configured header; browsers opening a WebSocket cannot set
// headers, so the "api_key" query parameter is accepted as a fallback.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !g.Enabled() {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get(g.header)
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}
		if !g.valid(key) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"error":"invalid api key"}` + "\n"))
			return
		}
		next.ServeHTTP(w, r)
	})
}
