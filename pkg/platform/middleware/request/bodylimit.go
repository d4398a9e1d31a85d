package request

import (
	"net/http"
)

// BodyLimit caps request bodies at maxBytes with http.MaxBytesReader.
// Decoders see *http.MaxBytesError once the cap is crossed and
// answer 413. It must run before any body parsing.
func BodyLimit(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}
