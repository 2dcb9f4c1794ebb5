// Package handler exposes the trigger API: authenticated endpoints that
// validate a request, hand the work to the graph service and return what
// was queued. Nothing here talks to the remote API directly.
package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/graphwarden/warden-server-go/internal/httputil"
	"github.com/graphwarden/warden-server-go/internal/middleware"
	"github.com/graphwarden/warden-server-go/internal/service"
)

type GraphHandler struct {
	graphService *service.GraphService
}

func NewGraphHandler(graphService *service.GraphService) *GraphHandler {
	return &GraphHandler{graphService: graphService}
}

func (h *GraphHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/block", h.Block)
	r.Post("/sync", h.Sync)
	r.Get("/log", h.GetLog)

	return r
}

// POST /v1/block
// Queue block/mute actions against a target account.
func (h *GraphHandler) Block(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	var req struct {
		ScreenName     string `json:"screenName"`
		BlockAccount   bool   `json:"blockAccount"`
		MuteAccount    bool   `json:"muteAccount"`
		BlockFollowers bool   `json:"blockFollowers"`
		MuteFollowers  bool   `json:"muteFollowers"`
		DurationDays   *int   `json:"durationDays,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
		return
	}

	blockReq := service.BlockRequest{
		ScreenName:     req.ScreenName,
		BlockAccount:   req.BlockAccount,
		MuteAccount:    req.MuteAccount,
		BlockFollowers: req.BlockFollowers,
		MuteFollowers:  req.MuteFollowers,
	}
	if req.DurationDays != nil {
		d := time.Duration(*req.DurationDays) * 24 * time.Hour
		blockReq.Duration = &d
	}

	result, err := h.graphService.Block(r.Context(), user, blockReq)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, result)
}

// POST /v1/sync
// Trigger listing walks over the caller's own account.
func (h *GraphHandler) Sync(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	var req service.SyncRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
			return
		}
	}

	queued, err := h.graphService.Sync(r.Context(), user, req)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"queued": queued})
}

// GET /v1/log
// Page through the caller's audit trail, newest first.
func (h *GraphHandler) GetLog(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUser(r.Context())
	if user == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "Unauthorized"})
		return
	}

	params := ParsePagination(r)
	messages, err := h.graphService.GetLog(r.Context(), user.ID, params.Limit, params.Offset)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": messages,
		"limit":    params.Limit,
		"offset":   params.Offset,
	})
}
