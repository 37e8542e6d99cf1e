package mid

import (
	"context"
	"net/http"

	"github.com/ardanlabs/forkchain/foundation/web"
)

// Cors sets the response headers needed for Cross-Origin Resource Sharing.
// The node only serves GET and POST, so a preflight request is answered
// here without reaching the route handler.
func Cors(origin string) web.Middleware {
	m := func(handler web.Handler) web.Handler {
		h := func(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Origin, Accept, Content-Type, Content-Length, Accept-Encoding")

			if r.Method == http.MethodOptions {
				w.Header().Set("Access-Control-Max-Age", "86400")
				return web.Respond(ctx, w, nil, http.StatusNoContent)
			}

			return handler(ctx, w, r)
		}

		return h
	}

	return m
}
