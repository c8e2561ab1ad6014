package web

import (
	"context"
	"net"
	"net/http"

	"github.com/JonMunkholm/labimport/internal/core"
)

// importContext detaches the run from the request lifetime so a client that
// hangs up does not abort an import halfway. Request values such as the
// request id are kept for logging.
func importContext(r *http.Request) context.Context {
	ctx := context.WithoutCancel(r.Context())
	return core.ContextWithTrigger(ctx, core.TriggerManual)
}

// clientIP returns the host part of RemoteAddr, which TrustedRealIP has
// already resolved.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
