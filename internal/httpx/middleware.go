package httpx

import (
	"log/slog"
	"net/http"
	"time"

	"messenger/internal/netutil"

	chimw "github.com/go-chi/chi/v5/middleware"
)

// LogRequests logs method, path, status, latency and caller of every request.
func LogRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		ip, _ := netutil.NormalizeIP(r.RemoteAddr)
		slog.Default().Info("http request",
			"request_id", chimw.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"remote_ip", ip,
			"user_agent", netutil.TruncateUserAgent(r.UserAgent()),
		)
	})
}
