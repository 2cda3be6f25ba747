package relay

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"livecast/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

const blobContentType = "application/octet-stream"

// Handler exposes the relay HTTP surface: session documents, change
// notifications, and the blob store.
type Handler struct {
	repo    Repository
	blobs   BlobStore
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler backed by the given Repository and BlobStore.
// Metrics may be nil to disable metric recording (e.g. in tests).
func NewHandler(repo Repository, blobs BlobStore, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{repo: repo, blobs: blobs, log: log, metrics: m}
}

// Routes mounts all relay endpoints on r.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/sessions", h.CreateSession)
	r.Route("/sessions/{session_id}", func(r chi.Router) {
		r.Get("/", h.GetSession)
		r.Patch("/", h.UpdateSession)
		r.Post("/end", h.EndSession)
		r.Post("/viewers", h.AddViewer)
		r.Get("/watch", h.WatchSession)
	})
	r.Put("/blobs/*", h.PutBlob)
	r.Get("/blobs/*", h.GetBlob)
}

// CreateSession handles POST /sessions.
// Body: { "title": ..., "description": ..., "ownerId": ..., "ownerName": ... }.
func (h *Handler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var s Session
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		h.log.Debug("invalid session body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	created, err := h.repo.CreateSession(s)
	if err != nil {
		h.log.Error("create session failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.log.Info("session created",
		slog.String("session_id", created.ID),
		slog.String("owner_id", created.OwnerID))
	writeJSON(w, http.StatusCreated, created)
}

// GetSession handles GET /sessions/{session_id}.
func (h *Handler) GetSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	s, ok := h.repo.GetSession(id)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	// The stream key is only for the creator; it never leaves on reads.
	s.StreamKey = ""
	writeJSON(w, http.StatusOK, s)
}

// UpdateSession handles PATCH /sessions/{session_id}.
func (h *Handler) UpdateSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")

	var p SessionPatch
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		h.log.Debug("invalid patch body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s, err := h.repo.UpdateSession(id, p)
	if err != nil {
		switch {
		case errors.Is(err, ErrSessionNotFound):
			w.WriteHeader(http.StatusNotFound)
		case errors.Is(err, ErrSessionEnded):
			h.log.Info("update rejected, session ended", slog.String("session_id", id))
			w.WriteHeader(http.StatusConflict)
		default:
			h.log.Error("update session failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}

	s.StreamKey = ""
	writeJSON(w, http.StatusOK, s)
}

// EndSession handles POST /sessions/{session_id}/end. Idempotent.
func (h *Handler) EndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	if err := h.repo.EndSession(id); err != nil {
		h.log.Error("end session failed", slog.String("session_id", id), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	h.log.Info("session ended", slog.String("session_id", id))
	w.WriteHeader(http.StatusOK)
	if h.metrics != nil {
		h.metrics.IncSessionsEnded()
	}
}

// AddViewer handles POST /sessions/{session_id}/viewers.
func (h *Handler) AddViewer(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")
	s, err := h.repo.UpdateSession(id, SessionPatch{AddViewers: 1})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.log.Error("add viewer failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	s.StreamKey = ""
	writeJSON(w, http.StatusOK, s)
}

// WatchSession handles GET /sessions/{session_id}/watch: a server-sent-event
// stream of session snapshots, one per change, conflated to latest-wins.
// The stream closes after an ended snapshot is delivered.
func (h *Handler) WatchSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "session_id")

	flusher, ok := w.(http.Flusher)
	if !ok {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	snaps := make(chan Session, 1)
	unsubscribe, err := h.repo.Subscribe(id, func(s Session) {
		// Conflate: the mailbox only ever holds the freshest snapshot.
		select {
		case snaps <- s:
		default:
			select {
			case <-snaps:
			default:
			}
			select {
			case snaps <- s:
			default:
			}
		}
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.log.Error("watch subscribe failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case s := <-snaps:
			s.StreamKey = ""
			payload, err := json.Marshal(s)
			if err != nil {
				h.log.Error("snapshot encode failed", slog.String("error", err.Error()))
				return
			}
			if _, err := w.Write(append(append([]byte("data: "), payload...), '\n', '\n')); err != nil {
				return
			}
			flusher.Flush()
			if !s.IsLive {
				return
			}
		}
	}
}

// PutBlob handles PUT /blobs/{path}. Responds with the blob's locator.
func (h *Handler) PutBlob(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	if path == "" {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	locator, err := h.blobs.Put(path, data)
	if err != nil {
		h.log.Error("blob store failed", slog.String("path", path), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.log.Debug("blob stored", slog.String("path", path), slog.Int("size", len(data)))
	writeJSON(w, http.StatusCreated, map[string]string{"locator": locator})
}

// GetBlob handles GET /blobs/{path}.
func (h *Handler) GetBlob(w http.ResponseWriter, r *http.Request) {
	path := chi.URLParam(r, "*")
	data, ok := h.blobs.Get(path)
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", blobContentType)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
