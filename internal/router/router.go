package router

import (
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/guard"
	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/session"
	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/user"
	"github.com/ovaphlow/pitchfork/service-civic-auth/internal/user/entity"
)

// loggingResponseWriter wraps http.ResponseWriter to capture status and size.
type loggingResponseWriter struct {
	http.ResponseWriter
	status int
	size   int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.status = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Write(b []byte) (int, error) {
	if lrw.status == 0 {
		lrw.status = http.StatusOK
	}
	n, err := lrw.ResponseWriter.Write(b)
	lrw.size += n
	return n, err
}

// LoggingMiddleware logs each request at debug level. Headers and bodies are
// never logged, so bearer tokens and passwords stay out of the log.
func LoggingMiddleware(logger *zap.SugaredLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lrw := &loggingResponseWriter{ResponseWriter: w}
			next.ServeHTTP(lrw, r)
			dur := time.Since(start)
			status := lrw.status
			if status == 0 {
				status = http.StatusOK
			}
			logger.Debugw("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", status,
				"duration_ms", float64(dur.Microseconds())/1000.0,
				"size", lrw.size,
			)
		})
	}
}

// SecurityHeadersMiddleware sets common HTTP security headers. Token
// responses are marked no-store.
func SecurityHeadersMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("Cache-Control", "no-store")

			// Clickjacking protection
			w.Header().Set("X-Frame-Options", "DENY")

			// Referrer policy
			w.Header().Set("Referrer-Policy", "no-referrer-when-downgrade")

			w.Header().Set("Permissions-Policy", "camera=(), microphone=(), geolocation=()")

			if w.Header().Get("Content-Security-Policy") == "" {
				w.Header().Set("Content-Security-Policy", "default-src 'self'; object-src 'none'; base-uri 'self';")
			}

			// HSTS - instruct browsers to use HTTPS for future requests. Only set if request is over TLS.
			if r.TLS != nil {
				// 30 days by default
				w.Header().Set("Strict-Transport-Security", "max-age=2592000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RegisterRoutes mounts the account, session and profile endpoints on the
// standard library's http.ServeMux. Role-gated routes go through guard.Require.
func RegisterRoutes(logger *zap.SugaredLogger, users *user.Handler, sessions *session.Handler, verifier guard.Verifier) http.Handler {
	mux := http.NewServeMux()

	authenticated := guard.Require(verifier, logger)
	adminOnly := guard.Require(verifier, logger, entity.RoleAdmin)

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	mux.HandleFunc("POST /auth/signup", users.Signup)
	mux.HandleFunc("POST /auth/login", users.Login)
	mux.Handle("GET /auth/me", authenticated(http.HandlerFunc(sessions.Me)))

	mux.Handle("PATCH /profile/{id}/promote", adminOnly(http.HandlerFunc(users.Promote)))
	mux.Handle("GET /profile", adminOnly(http.HandlerFunc(users.List)))
	mux.HandleFunc("GET /profile/{id}", users.Profile)

	// wrap with security headers middleware then logging middleware
	return LoggingMiddleware(logger)(SecurityHeadersMiddleware()(mux))
}
