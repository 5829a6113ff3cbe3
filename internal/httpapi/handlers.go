package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/DoyleJ11/prize-draw-backend/internal/session"
	"github.com/DoyleJ11/prize-draw-backend/internal/storage"
	"github.com/DoyleJ11/prize-draw-backend/internal/types"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.uber.org/zap"
)

const (
	codeAlphabet = "abcdefghijkmnpqrstuvwxyz23456789"
	codeLength   = 10
	maxBody      = 16 << 10
)

var validate = validator.New()

type handlers struct {
	sessions Sessions
	events   storage.EventRepository
	gate     Gate
	log      *zap.Logger
}

func GenerateCode() (string, error) {
	return gonanoid.Generate(codeAlphabet, codeLength)
}

type loginRequest struct {
	Secret string `json:"secret" validate:"required"`
}

type createEventRequest struct {
	Title         string `json:"title" validate:"required,max=200"`
	BackgroundURL string `json:"background_url" validate:"omitempty,url,max=2048"`
}

type sessionResponse struct {
	Session     string            `json:"session"`
	Version     int               `json:"version"`
	Subscribers int               `json:"subscribers"`
	State       *types.Snapshot   `json:"state"`
	Event       *session.Branding `json:"event,omitempty"`
}

func (h *handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decode(w, r, &req) {
		return
	}
	token, err := h.gate.Authenticate("", req.Secret)
	if err != nil {
		h.log.Warn("admin login failed", zap.String("remote", r.RemoteAddr))
		writeError(w, http.StatusUnauthorized, "invalid secret")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if !decode(w, r, &req) {
		return
	}

	var id string
	for {
		c, err := GenerateCode()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to generate id")
			return
		}
		_, err = h.events.FindEvent(r.Context(), c)
		if errors.Is(err, storage.ErrNotFound) {
			id = c
			break
		}
		if err != nil {
			h.log.Error("find event", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "storage unavailable")
			return
		}
		h.log.Info("collision on event id, regenerating")
	}

	ev := &storage.Event{ID: id, Title: strings.TrimSpace(req.Title), BackgroundURL: req.BackgroundURL}
	if err := h.events.CreateEvent(r.Context(), ev); err != nil {
		h.log.Error("create event", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create event")
		return
	}
	h.log.Info("event created", zap.String("event", id))
	writeJSON(w, http.StatusCreated, ev)
}

func (h *handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	ev, err := h.events.FindEvent(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		h.log.Error("find event", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "storage unavailable")
		return
	}
	writeJSON(w, http.StatusOK, ev)
}

// DeleteEvent removes the branding record and discards the session that
// shares its id.
func (h *handlers) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := h.events.DeleteEvent(r.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}
	if err != nil {
		h.log.Error("delete event", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete event")
		return
	}
	if err := h.sessions.Remove(r.Context(), id); err != nil {
		h.log.Error("remove session", zap.String("session", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to remove session")
		return
	}
	h.log.Info("event deleted", zap.String("event", id))
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	s, err := h.sessions.Ensure(r.Context(), id)
	if err != nil {
		h.log.Error("ensure session", zap.String("session", id), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "session unavailable")
		return
	}
	v, err := s.View(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "session closed")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{
		Session:     id,
		Version:     v.Version,
		Subscribers: v.NumSubscribers,
		State:       types.NewSnapshot(v.State),
		Event:       v.Branding,
	})
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func requireAdmin(gate Gate) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || gate.Verify(strings.TrimSpace(token), "") != nil {
				writeError(w, http.StatusUnauthorized, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("bad json: %v", err))
		return false
	}
	if err := validate.Struct(v); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
