package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterOptions carries the endpoints served next to the API
type RouterOptions struct {
	AllowedOrigins []string
	TradeFeed      http.Handler // GET /ws, optional
	Metrics        http.Handler // GET /metrics, optional
}

// NewRouter mounts every route on a chi router
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(h.accessLog)

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if opts.TradeFeed != nil {
		r.Method(http.MethodGet, "/ws", opts.TradeFeed)
	}
	if opts.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", opts.Metrics)
	}

	r.Route("/auth", func(r chi.Router) {
		r.Post("/login", h.Login)
		r.With(h.JWTAuthMiddleware).Get("/validate", h.ValidateToken)
	})

	r.Route("/orders", func(r chi.Router) {
		r.With(h.TradingGate).Post("/", h.CreateOrder)
		r.Get("/", h.GetAllOrders)
		r.Get("/today", h.GetTodayOrders)
		r.Get("/status/{status}", h.GetOrdersByStatus)
		r.Get("/{id}", h.GetOrder)

		r.Group(func(r chi.Router) {
			r.Use(h.JWTAuthMiddleware)
			r.Patch("/{id}/status", h.UpdateOrderStatus)
			r.Put("/{id}/process", h.ProcessOrder)
			r.With(h.TradingGate).Post("/match", h.MatchOrders)
			r.With(h.TradingGate).Post("/match-order", h.MatchSpecificOrders)
		})
	})

	r.Route("/switch", func(r chi.Router) {
		r.Get("/", h.GetSwitch)
		r.With(h.JWTAuthMiddleware).Patch("/", h.UpdateSwitch)
	})

	r.Route("/trades", func(r chi.Router) {
		r.Get("/", h.GetAllTrades)
		r.Get("/daily-stats", h.GetDailyStats)
		r.Get("/paginated-daily-stats", h.GetPaginatedDailyStats)
		r.Get("/today-stats", h.GetTodayStats)
		r.Get("/today-match", h.GetTodayMatch)

		r.Group(func(r chi.Router) {
			r.Use(h.JWTAuthMiddleware)
			r.Post("/save-today-stats", h.SaveTodayStats)
			r.Post("/upload-daily-stats", h.UploadDailyStats)
		})
	})

	return r
}

func (h *Handler) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		h.logger.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
