package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/susu3304/minishop/internal/config"
	"github.com/susu3304/minishop/internal/order"
)

// Orders accepts orders arriving over HTTP.
type Orders interface {
	Accept(ctx context.Context, source string, p order.Payload) (bool, error)
}

type API struct {
	router    *mux.Router
	orders    Orders
	config    *config.Config
	jwtSecret []byte
	logger    *zap.Logger
	now       func() time.Time
	server    *http.Server
}

func New(cfg *config.Config, orders Orders, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	api := &API{
		router:    mux.NewRouter(),
		orders:    orders,
		config:    cfg,
		jwtSecret: []byte(cfg.JWTSecret),
		logger:    logger,
		now:       time.Now,
	}

	api.setupRoutes()
	return api
}

func (a *API) setupRoutes() {
	a.router.Use(a.logRequests)

	// Public endpoints
	a.router.HandleFunc("/healthz", a.handleHealth).Methods("GET")
	a.router.HandleFunc("/products.json", a.handleProducts).Methods("GET")

	// Relay copy of an order, authenticated by the shared X-Auth token
	a.router.HandleFunc("/api/orders", a.handleRelayOrder).Methods("POST")

	// Web-app session exchange
	a.router.HandleFunc("/api/webapp/session", a.handleSession).Methods("POST")

	// Protected endpoints
	protected := a.router.PathPrefix("/api/webapp").Subrouter()
	protected.Use(a.authMiddleware)

	protected.HandleFunc("/data", a.handleWebAppData).Methods("POST")
}

// Handler returns the router wrapped in CORS handling.
func (a *API) Handler() http.Handler {
	// Credentials are never sent cross-origin: the web app authenticates
	// with a bearer token or the X-Auth header.
	corsOptions := cors.Options{
		AllowedOrigins:   []string{a.config.CORSOrigin},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", order.AuthHeader},
		AllowCredentials: false,
	}
	return cors.New(corsOptions).Handler(a.router)
}

func (a *API) Start() error {
	a.server = &http.Server{
		Addr:              a.config.WebBind,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	a.logger.Info("API server listening", zap.String("addr", "http://"+a.config.WebBind))
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (a *API) Shutdown(ctx context.Context) error {
	if a.server == nil {
		return nil
	}
	return a.server.Shutdown(ctx)
}

func (a *API) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := a.now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		a.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("took", a.now().Sub(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
