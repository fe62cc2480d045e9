package httpmw

import "net/http"

// Chain wraps h so the first middleware given is the outermost. Nil
// entries are skipped, which lets callers toggle optional middleware
// without rebuilding the slice.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		if mw := mws[i]; mw != nil {
			h = mw(h)
		}
	}
	return h
}
