// internal/httpmw/maxbody.go

package httpmw

import "net/http"

// MaxBody caps the request body at n bytes. The delivery API takes no
// bodies at all, so the cap stays tiny and any read past it fails with
// 413.
func MaxBody(n int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			r.Body = http.MaxBytesReader(w, r.Body, n)
			next.ServeHTTP(w, r)
		})
	}
}
