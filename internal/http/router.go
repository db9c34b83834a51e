package http

import (
	"net/http"
	"time"

	"github.com/fjod/go_cart/commerce-service/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"
)

type RouterConfig struct {
	Cart           CartService
	Loyalty        LoyaltyService
	Logger         *zap.Logger
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
	RequestTimeout time.Duration
	// JWTSecret enables bearer-token checks on the loyalty routes when set.
	JWTSecret string
}

func NewRouter(cfg RouterConfig) http.Handler {
	cartHandler := NewCartHandler(cfg.Cart)
	loyaltyHandler := NewLoyaltyHandler(cfg.Loyalty)

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	r := chi.NewRouter()

	r.Use(otelhttp.NewMiddleware("commerce-http"))
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(timeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if cfg.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(cfg.Gatherer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		// {id} is the user on GET and the product on the item routes, whose
		// body carries userId.
		r.Route("/cart", func(r chi.Router) {
			r.Get("/{id}", cartHandler.GetCart)
			r.Post("/{id}", cartHandler.AddItem)
			r.Put("/{id}", cartHandler.UpdateItem)
			r.Delete("/{id}", cartHandler.RemoveItem)
		})

		r.Route("/users/{userId}", func(r chi.Router) {
			if cfg.JWTSecret != "" {
				r.Use(AuthMiddleware([]byte(cfg.JWTSecret)))
			}
			for _, path := range []string{"/loyalty", "/loyalti"} {
				r.Get(path, loyaltyHandler.GetBalance)
				r.Patch(path, loyaltyHandler.Redeem)
			}
		})
	})

	return r
}
