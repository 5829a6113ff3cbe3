package httpapi

import (
	"context"
	"net/http"
	"time"

	"github.com/DoyleJ11/prize-draw-backend/internal/session"
	"github.com/DoyleJ11/prize-draw-backend/internal/storage"
	"github.com/DoyleJ11/prize-draw-backend/internal/ws"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type Sessions interface {
	Ensure(ctx context.Context, id string) (*session.Session, error)
	Remove(ctx context.Context, id string) error
}

type Gate interface {
	Authenticate(transportID, secret string) (string, error)
	Verify(token, transportID string) error
}

type Deps struct {
	Sessions Sessions
	Events   storage.EventRepository
	Gate     Gate
	Logger   *zap.Logger
	WS       ws.Options
}

func SetupRoutes(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = zap.NewNop()
	}
	if d.WS.Logger == nil {
		d.WS.Logger = log
	}
	h := &handlers{sessions: d.Sessions, events: d.Events, gate: d.Gate, log: log.Named("http")}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.log))
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz)
	r.Get("/ws", ws.Handler(d.Sessions, d.Gate, d.WS))

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(10 * time.Second))

		r.Post("/admin/login", h.Login)
		r.Get("/events/{id}", h.GetEvent)
		r.Get("/sessions/{id}", h.GetSession)

		// Admin routes
		r.Group(func(r chi.Router) {
			r.Use(requireAdmin(d.Gate))
			r.Post("/events", h.CreateEvent)
			r.Delete("/events/{id}", h.DeleteEvent)
		})
	})
	return r
}

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("elapsed", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
