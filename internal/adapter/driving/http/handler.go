package http

import (
	"context"
	"net/http"
	"os"

	"github.com/Wyydra/yarelay/internal/core/service"
	"github.com/Wyydra/yarelay/internal/logging"
	"github.com/Wyydra/yarelay/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
)

// Options tune the driving adapter.
type Options struct {
	StaticDir      string
	SendBuffer     int
	MaxFrameBytes  int64
	AllowedOrigins []string
	// MetricsHandler is mounted on /metrics when set.
	MetricsHandler http.Handler
	// Ready backs /readyz, typically a store ping.
	Ready func(ctx context.Context) error
}

type Handler struct {
	Presence *service.PresenceService
	Chat     *service.ChatService
	Call     *service.CallService
	Users    *service.UserService

	opts     Options
	metrics  *metrics.Recorder
	upgrader *websocket.Upgrader
}

func NewHandler(
	presence *service.PresenceService,
	chat *service.ChatService,
	call *service.CallService,
	users *service.UserService,
	m *metrics.Recorder,
	opts Options,
) *Handler {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.MaxFrameBytes <= 0 {
		opts.MaxFrameBytes = 64 * 1024
	}
	h := &Handler{
		Presence: presence,
		Chat:     chat,
		Call:     call,
		Users:    users,
		opts:     opts,
		metrics:  m,
	}
	h.upgrader = h.newUpgrader()
	return h
}

func (h *Handler) NewRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(logging.Middleware)
	r.Use(middleware.Recoverer)

	r.Get("/ws", h.ServeWS)
	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	if h.opts.MetricsHandler != nil {
		r.Handle("/metrics", h.opts.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/users", func(r chi.Router) {
			r.Post("/login", h.login)
			r.Get("/search", h.searchUsers)
			r.Get("/{id}", h.getUser)
		})
		r.Route("/contacts", func(r chi.Router) {
			r.Post("/add", h.addContact)
			r.Delete("/remove", h.removeContact)
			r.Get("/{userId}", h.listContacts)
		})
		r.Route("/messages", func(r chi.Router) {
			r.Get("/history/{roomId}", h.history)
			r.Put("/read", h.markRead)
		})
		r.Get("/invite/{code}", h.invite)
	})

	if dir := h.opts.StaticDir; dir != "" {
		if _, err := os.Stat(dir); err == nil {
			r.Handle("/*", http.FileServer(http.Dir(dir)))
		}
	}

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	if h.opts.Ready != nil {
		if err := h.opts.Ready(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
