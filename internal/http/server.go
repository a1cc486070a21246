package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	applog "bills/internal/log"
	"bills/internal/metrics"
	"bills/internal/middleware/ratelimit"
	"bills/internal/middleware/security"
	"bills/internal/middleware/trace"
)

// Options configures NewServer.
type Options struct {
	Addr               string
	RateLimitPerMinute int
	Logger             *applog.Logger
	// Notifier serves GET /ws; when nil the route is not mounted.
	Notifier http.Handler
}

type Server struct {
	http.Server
	bills    BillAPI
	limiter  *ratelimit.Limiter
	detector *security.Detector
	tracer   *trace.Middleware

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run http.Server.
func NewServer(opts Options, bills BillAPI) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	logger = logger.WithComponent(applog.ComponentHTTP)

	detector := security.NewDetector()
	s := &Server{
		bills:    bills,
		detector: detector,
		limiter: ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: opts.RateLimitPerMinute,
		}),
		tracer: trace.NewMiddleware(detector.ExtractClientIP),
	}

	mux := http.NewServeMux()
	api := func(h http.HandlerFunc) http.Handler { return security.NoStore(route(h)) }

	mux.Handle("GET /api/bills", api(s.handleDayView))
	mux.Handle("POST /api/bills", api(s.handleCreateBill))
	mux.Handle("PUT /api/bills/{id}", api(s.handleUpdateBill))
	mux.Handle("DELETE /api/bills/{id}", api(s.handleDeleteBill))
	mux.Handle("GET /api/calendar", api(s.handleCalendar))

	mux.Handle("GET /healthz", route(handleHealth))
	mux.Handle("GET /readyz", route(s.handleReady))
	mux.Handle("GET /metrics", route(metrics.Handler(s.middlewareRegistry()).ServeHTTP))
	if opts.Notifier != nil {
		mux.Handle("GET /ws", route(opts.Notifier.ServeHTTP))
	}

	onLimit := func(w http.ResponseWriter, r *http.Request) {
		applog.FromContext(r.Context()).WarnContext(r.Context(), "Rate limit exceeded",
			applog.FieldClientIP, detector.ExtractClientIP(r),
			applog.FieldMethod, r.Method,
			applog.FieldPath, r.URL.Path)
		TooManyRequestsError().Write(w)
	}

	var handler http.Handler = mux
	handler = s.limiter.Middleware(detector.ExtractClientIP, onLimit,
		http.MethodPost, http.MethodPut, http.MethodDelete)(handler)
	handler = applog.RequestIDMiddleware(trace.RequestIDFromRequest)(handler)
	handler = applog.Middleware(logger)(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = detector.Middleware(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// middlewareRegistry exposes this server's limiter and detector counters.
func (s *Server) middlewareRegistry() *prometheus.Registry {
	return metrics.NewMiddlewareRegistry(metrics.MiddlewareStats{
		RateLimited:        func() int64 { return s.limiter.GetMetrics().TotalHits },
		RateLimitedClients: func() int64 { return s.limiter.GetMetrics().ClientCount },
		Suspicious:         func() int64 { return s.detector.GetMetrics().SuspiciousRequests },
		InvalidClientIPs:   func() int64 { return s.detector.GetMetrics().InvalidIPAttempts },
	})
}

// route records the matched pattern for request metrics before running h.
func route(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		trace.RecordRoute(r)
		h(w, r)
	})
}

// Shutdown gracefully shuts down the server and its background routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
