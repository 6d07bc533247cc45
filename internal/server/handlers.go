// Package server implements the persisted backend: the HTTP surface
// every remote client polls against, backed by SQLite.
package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/teamdesk/messaging/internal/msg"
	"github.com/teamdesk/messaging/internal/presence"
	"github.com/teamdesk/messaging/internal/store"
)

// Handler serves the chatd API.
type Handler struct {
	store    *store.SQLite
	presence *presence.Recorder
	signals  *signalQueue
	logger   *zap.Logger
}

// NewHandler creates the API handler.
func NewHandler(st *store.SQLite, rec *presence.Recorder, logger *zap.Logger) *Handler {
	return &Handler{
		store:    st,
		presence: rec,
		signals:  newSignalQueue(),
		logger:   logger,
	}
}

// Router builds the chi router for the chatd API. CORS is wide open
// on purpose: the pollers are browser windows from the suite's
// origin, and chatd binds to the suite's internal network.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
	}))

	r.Route("/v1", func(r chi.Router) {
		r.Get("/threads/{a}/{b}", h.getThread)
		r.Delete("/threads/{a}/{b}", h.deleteThread)
		r.Post("/threads/{user}/{counterpart}/read", h.markRead)
		r.Post("/messages", h.postMessage)
		r.Delete("/messages/{id}", h.deleteMessage)
		r.Get("/conversations/{user}", h.getConversations)
		r.Post("/presence/heartbeat", h.heartbeat)
		r.Get("/presence", h.getPresence)
		r.Get("/users/{id}", h.getUser)
	})
	return r
}

func (h *Handler) getThread(w http.ResponseWriter, r *http.Request) {
	a, b := chi.URLParam(r, "a"), chi.URLParam(r, "b")
	thread, err := h.store.FetchThread(r.Context(), a, b)
	if err != nil {
		h.fail(w, "fetch thread", err)
		return
	}
	if thread == nil {
		thread = []msg.Message{}
	}
	h.respond(w, http.StatusOK, thread)
}

type sendRequest struct {
	From       string          `json:"from"`
	To         string          `json:"to"`
	Text       string          `json:"text"`
	Attachment *msg.Attachment `json:"attachment,omitempty"`
}

func (h *Handler) postMessage(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.From == "" || req.To == "" {
		http.Error(w, "from and to are required", http.StatusBadRequest)
		return
	}
	m, err := h.store.Send(r.Context(), req.From, req.To, req.Text, req.Attachment)
	if err != nil {
		h.fail(w, "send", err)
		return
	}
	h.respond(w, http.StatusCreated, m)
}

func (h *Handler) markRead(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	counterpart := chi.URLParam(r, "counterpart")
	if q := r.URL.Query().Get("user"); q != "" {
		user = q
	}
	if err := h.store.MarkRead(r.Context(), user, counterpart); err != nil {
		h.fail(w, "mark read", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	caller := r.URL.Query().Get("user")
	err := h.store.DeleteMessage(r.Context(), caller, id)
	if errors.Is(err, store.ErrUnauthorized) {
		http.Error(w, "not the sender", http.StatusForbidden)
		return
	}
	if err != nil {
		h.fail(w, "delete message", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) deleteThread(w http.ResponseWriter, r *http.Request) {
	a, b := chi.URLParam(r, "a"), chi.URLParam(r, "b")
	if err := h.store.DeleteThread(r.Context(), a, b); err != nil {
		h.fail(w, "delete thread", err)
		return
	}
	// Nudge both participants on their next heartbeat; their pollers
	// would notice anyway within one interval.
	h.signals.push(a, "thread.deleted:"+b)
	h.signals.push(b, "thread.deleted:"+a)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getConversations(w http.ResponseWriter, r *http.Request) {
	user := chi.URLParam(r, "user")
	convs, err := h.store.ListConversations(r.Context(), user)
	if err != nil {
		h.fail(w, "list conversations", err)
		return
	}
	if convs == nil {
		convs = []store.ThreadMessages{}
	}
	h.respond(w, http.StatusOK, convs)
}

type heartbeatRequest struct {
	UID    string `json:"uid"`
	Status string `json:"status"`
}

func (h *Handler) heartbeat(w http.ResponseWriter, r *http.Request) {
	var req heartbeatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UID == "" {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}
	if req.Status == "" {
		req.Status = "online"
	}
	h.presence.Beat(req.UID, req.Status)

	signals := h.signals.drain(req.UID)
	if signals == nil {
		signals = []string{}
	}
	h.respond(w, http.StatusOK, map[string]any{"pendingSignals": signals})
}

func (h *Handler) getPresence(w http.ResponseWriter, r *http.Request) {
	recs, _ := h.presence.Records(r.Context())
	if recs == nil {
		recs = []msg.PresenceRecord{}
	}
	h.respond(w, http.StatusOK, recs)
}

func (h *Handler) getUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	name, avatar, err := h.store.GetUser(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "unknown user", http.StatusNotFound)
		return
	}
	if err != nil {
		h.fail(w, "get user", err)
		return
	}
	h.respond(w, http.StatusOK, map[string]string{
		"id": id, "name": name, "avatar": avatar,
	})
}

func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("encode response", zap.Error(err))
	}
}

func (h *Handler) fail(w http.ResponseWriter, op string, err error) {
	h.logger.Error(op+" failed", zap.Error(err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}
