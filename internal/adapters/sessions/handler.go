// Package sessions exposes experiments, saved sessions and their lab reports
// over a small JSON HTTP API.
package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"labbench/internal/blob"
	"labbench/internal/core"
	"labbench/internal/labreport"
	"labbench/pkg/domain"
)

// Catalog resolves experiment definitions by name.
type Catalog interface {
	Names() []string
	Lookup(name string) (domain.ExperimentConfig, bool)
}

// Handler serves /api/v1/experiments and /api/v1/sessions.
type Handler struct {
	Catalog Catalog
	Store   core.SessionStore
	// Reports is optional; without it publishing returns 404.
	Reports blob.Store
	Now     func() time.Time
}

// NewHandler constructs a session HTTP handler.
func NewHandler(c Catalog, store core.SessionStore, reports blob.Store) *Handler {
	return &Handler{Catalog: c, Store: store, Reports: reports, Now: func() time.Time { return time.Now().UTC() }}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.Catalog == nil || h.Store == nil {
		writeError(w, http.StatusInternalServerError, "session handler not configured")
		return
	}
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case path == "/api/v1/experiments":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"experiments": h.Catalog.Names()})
	case path == "/api/v1/sessions":
		if r.Method != http.MethodGet {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		h.handleList(w, r)
	case strings.HasPrefix(path, "/api/v1/sessions/"):
		h.handleSession(w, r, strings.TrimPrefix(path, "/api/v1/sessions/"))
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	summaries, err := h.Store.List(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": summaries})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request, remainder string) {
	segments := strings.Split(remainder, "/")
	id := segments[0]
	if id == "" || len(segments) > 2 {
		writeError(w, http.StatusNotFound, "session endpoint not found")
		return
	}
	if len(segments) == 1 {
		switch r.Method {
		case http.MethodGet:
			rec, err := h.Store.Load(r.Context(), id)
			if err != nil {
				writeStoreError(w, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"session": rec})
		case http.MethodDelete:
			existed, err := h.Store.Delete(r.Context(), id)
			if err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
			if !existed {
				writeError(w, http.StatusNotFound, "session not found")
				return
			}
			w.WriteHeader(http.StatusNoContent)
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}
	if segments[1] != "report" {
		writeError(w, http.StatusNotFound, "session endpoint not found")
		return
	}
	switch r.Method {
	case http.MethodGet:
		report, status, err := h.buildReport(r.Context(), id)
		if err != nil {
			writeError(w, status, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"report": report})
	case http.MethodPost:
		h.handlePublish(w, r, id)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (h *Handler) handlePublish(w http.ResponseWriter, r *http.Request, id string) {
	if h.Reports == nil {
		writeError(w, http.StatusNotFound, "report storage not configured")
		return
	}
	report, status, err := h.buildReport(r.Context(), id)
	if err != nil {
		writeError(w, status, err.Error())
		return
	}
	obj, err := labreport.Publish(r.Context(), h.Reports, report)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	payload := map[string]any{"object": obj}
	if url, err := h.Reports.PresignURL(r.Context(), obj.Key, 15*time.Minute); err == nil {
		payload["url"] = url
	}
	writeJSON(w, http.StatusCreated, payload)
}

// buildReport replays the saved snapshot into a fresh engine so the report
// reflects the definition's step titles.
func (h *Handler) buildReport(ctx context.Context, id string) (labreport.Report, int, error) {
	rec, err := h.Store.Load(ctx, id)
	if err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			return labreport.Report{}, http.StatusNotFound, err
		}
		return labreport.Report{}, http.StatusInternalServerError, err
	}
	cfg, ok := h.Catalog.Lookup(rec.Experiment)
	if !ok {
		return labreport.Report{}, http.StatusConflict, errors.New("unknown experiment " + rec.Experiment)
	}
	engine, err := core.NewEngine(cfg, core.WithSessionID(id))
	if err != nil {
		return labreport.Report{}, http.StatusInternalServerError, err
	}
	state, err := engine.Restore(ctx, rec.Snapshot)
	if err != nil {
		return labreport.Report{}, http.StatusConflict, err
	}
	return labreport.Build(cfg, id, state, h.Now()), http.StatusOK, nil
}

func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, domain.ErrSessionNotFound) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}
