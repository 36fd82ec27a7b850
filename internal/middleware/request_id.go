package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"srf-carbon/pkg/logging"
)

const requestIDHeader = "X-Request-ID"

// RequestID tags every request context with an ID, reusing a valid
// incoming X-Request-ID header.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}
