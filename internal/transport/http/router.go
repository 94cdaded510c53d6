package http

import (
	"net/http"
	"time"

	"messenger/internal/httpx"
	"messenger/internal/netutil"
	obsmw "messenger/internal/observability/middleware"
	"messenger/internal/service"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type authenticator interface {
	Middleware(next http.Handler) http.Handler
}

type Services struct {
	Identity   service.IdentityService
	Activation service.ActivationService
	Sync       service.SyncService
	Chat       service.ChatService
}

type Options struct {
	CORSOrigins        []string
	RateLimitPerMinute int
	RequestTimeout     time.Duration
	// TrustProxyHeaders lets chi's RealIP rewrite the peer address from forwarding
	// headers. Only set it behind a proxy that overwrites them.
	TrustProxyHeaders bool
	// Metrics serves /metrics; promhttp.Handler() when nil.
	Metrics http.Handler
}

// clientIP keys the rate limiter on the peer address, which RealIP has already
// rewritten when proxy headers are trusted.
func clientIP(r *http.Request) string {
	if normalized, ok := netutil.NormalizeIP(r.RemoteAddr); ok {
		return normalized
	}
	return r.RemoteAddr
}

// NewRouter mounts every HTTP action. ws is served outside the request timeout since
// sockets outlive a request.
func NewRouter(svc Services, auth authenticator, ws http.Handler, opts Options) http.Handler {
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.RateLimitPerMinute <= 0 {
		opts.RateLimitPerMinute = 100
	}
	if opts.Metrics == nil {
		opts.Metrics = promhttp.Handler()
	}
	h := &handler{svc: svc}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if opts.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Recoverer)
	r.Use(obsmw.WithRequestAndTrace)
	r.Use(obsmw.WithMetrics)
	r.Use(httpx.LogRequests)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", opts.Metrics)

	if ws != nil {
		r.Get("/ws", ws.ServeHTTP)
	}

	r.Group(func(r chi.Router) {
		r.Use(chimw.Timeout(opts.RequestTimeout))
		r.Use(httprate.Limit(opts.RateLimitPerMinute, time.Minute,
			httprate.WithKeyFuncs(func(r *http.Request) (string, error) { return clientIP(r), nil })))

		r.Get("/activate-account", h.activateFromLink)

		r.Route("/v1/users", func(r chi.Router) {
			r.Post("/register", h.register)
			r.Post("/login", h.login)
			r.Post("/forgot-password", h.forgotPassword)
			r.Post("/request-enable-account", h.requestEnableAccount)
			r.Post("/enable-account", h.enableAccount)

			r.Group(func(r chi.Router) {
				r.Use(auth.Middleware)
				r.Get("/", h.listUsers)
				r.Post("/logout", h.logout)
				r.Get("/me", h.me)
				r.Patch("/me", h.updateProfile)
				r.Post("/me/password", h.updatePassword)
				r.Post("/me/disable", h.disableAccount)
			})
		})

		r.Route("/v1/admin", func(r chi.Router) {
			r.Post("/sync-user", h.syncUser)
			r.Post("/sweep", h.sweep)
		})

		r.Route("/v1/conversations", func(r chi.Router) {
			r.Use(auth.Middleware)
			r.Post("/", h.startConversation)
			r.Get("/", h.myConversations)
			r.Post("/{id}/messages", h.sendMessage)
			r.Get("/{id}/messages", h.history)
		})
	})

	return r
}
