package middleware

import (
	"net/http"
)

const DefaultMaxBodySize = 1 << 20 // 1MB

// BodyLimit rejects requests whose declared length exceeds maxSize and
// caps reads on everything else.
func BodyLimit(maxSize int64) func(http.Handler) http.Handler {
	if maxSize <= 0 {
		maxSize = DefaultMaxBodySize
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Body != nil && r.ContentLength > maxSize {
				writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{
					"error": "Request body too large",
				})
				return
			}

			r.Body = http.MaxBytesReader(w, r.Body, maxSize)
			next.ServeHTTP(w, r)
		})
	}
}
