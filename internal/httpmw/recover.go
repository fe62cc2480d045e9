package httpmw

import (
	"fmt"
	"net/http"

	"github.com/keithlinneman/chunkd/internal/log"
)

// Recover turns handler panics into logged 500s so one bad delivery
// cannot take the listener down. http.ErrAbortHandler is re-raised to
// keep its net/http meaning. onPanic, when non-nil, runs on every
// recovered panic and feeds the panic counter.
func Recover(logger log.Logger, onPanic func()) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rv := recover()
				if rv == nil {
					return
				}
				if rv == http.ErrAbortHandler {
					panic(rv)
				}

				logger.With("method", r.Method, "path", r.URL.Path).
					Error(r.Context(), panicError(rv), "recovered handler panic")

				if onPanic != nil {
					onPanic()
				}

				// If the handler already wrote headers this is a no-op
				// and the client sees a truncated body instead.
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
			}()

			next.ServeHTTP(w, r)
		})
	}
}

func panicError(rv any) error {
	if err, ok := rv.(error); ok {
		return err
	}
	return fmt.Errorf("panic: %v", rv)
}
