package api

import (
	"net/http"
	"slices"
)

// defaultAllowedOrigins are accepted when no origins are configured
var defaultAllowedOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173", // Vite default port
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}

func originsOrDefault(origins []string) []string {
	if len(origins) == 0 {
		return defaultAllowedOrigins
	}
	return origins
}

// CORSMiddleware adds CORS headers for the allowed origins
func CORSMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	origins := originsOrDefault(allowedOrigins)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); slices.Contains(origins, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Max-Age", "3600")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
