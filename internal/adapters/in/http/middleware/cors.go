// internal/adapters/in/http/middleware/cors.go
package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

// CORS allows the landing page origins. "*" (or an empty list) allows any origin
// without credentials.
func CORS(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	allowCreds := true
	for _, o := range origins {
		if o == "*" {
			allowCreds = false
		}
	}
	return cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: allowCreds,
		MaxAge:           600,
	})
}
