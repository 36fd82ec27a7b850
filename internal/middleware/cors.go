package middleware

import (
	"context"
	"net/http"

	"github.com/rs/cors"

	"srf-carbon/pkg/logging"
)

// NewCORS wraps handlers with the CORS policy for the given origins
func NewCORS(allowedOrigins []string, debug bool, logger *logging.StructuredLogger) func(http.Handler) http.Handler {
	methods := []string{http.MethodGet, http.MethodPost, http.MethodOptions}

	c := cors.New(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: methods,
		AllowedHeaders: []string{"Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
		Debug:          debug,
	})

	logger.Info(context.Background(), "[CORS] CORS middleware configured", logging.Fields{
		"allowed_origins": allowedOrigins,
		"allowed_methods": methods,
		"debug_mode":      debug,
	})

	return c.Handler
}
