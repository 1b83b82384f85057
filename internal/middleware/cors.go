package middleware

import (
	"net/http"
	"strings"

	"go.uber.org/zap"
)

const (
	allowedMethods = "GET, POST, OPTIONS"
	allowedHeaders = "Accept, Authorization, Content-Type, X-Requested-With, Origin, X-Request-ID"
)

// CORSMiddleware lets the dashboard frontends call the API
type CORSMiddleware struct {
	AllowedOrigins []string
	logger         *zap.Logger
}

// NewCORSMiddleware creates a new CORS middleware
func NewCORSMiddleware(allowedOrigins []string, logger *zap.Logger) *CORSMiddleware {
	return &CORSMiddleware{
		AllowedOrigins: allowedOrigins,
		logger:         logger,
	}
}

func (m *CORSMiddleware) allowed(origin string) bool {
	for _, allowedOrigin := range m.AllowedOrigins {
		switch {
		case allowedOrigin == "*", allowedOrigin == origin:
			return true
		case strings.HasPrefix(allowedOrigin, "*."):
			// wildcard subdomains like *.example.com
			if strings.HasSuffix(origin, allowedOrigin[1:]) {
				return true
			}
		}
	}
	return false
}

// EnableCORS adds CORS headers to responses and answers preflight requests
func (m *CORSMiddleware) EnableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if origin != "" {
			if m.allowed(origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
				w.Header().Set("Access-Control-Allow-Methods", allowedMethods)
				w.Header().Set("Access-Control-Allow-Headers", allowedHeaders)
				w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")
				w.Header().Set("Access-Control-Max-Age", "86400")
			} else {
				m.logger.Warn("CORS: Origin not allowed",
					zap.String("origin", origin),
					zap.Strings("allowed_origins", m.AllowedOrigins))
			}
			w.Header().Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
