// Package api exposes the concurrency core over HTTP: JSON endpoints for
// optimistic writes, conflict queries and resolution, and a websocket
// endpoint for live change subscriptions.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/finledger/collab/internal/auth"
	"github.com/finledger/collab/internal/conflicts"
	"github.com/finledger/collab/internal/domain"
	"github.com/finledger/collab/internal/middleware"
	"github.com/finledger/collab/internal/subscription"
	"github.com/finledger/collab/internal/versionloader"
)

// Handler routes the JSON query/command surface.
type Handler struct {
	detector   *conflicts.Detector
	service    *conflicts.Service
	authorizer auth.Authorizer
	metrics    *subscription.Metrics
}

// NewHandler creates the JSON API handler.
func NewHandler(
	detector *conflicts.Detector,
	service *conflicts.Service,
	authorizer auth.Authorizer,
	metrics *subscription.Metrics,
) *Handler {
	return &Handler{
		detector:   detector,
		service:    service,
		authorizer: authorizer,
		metrics:    metrics,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")
	switch {
	case r.Method == http.MethodPost && path == "/writes":
		h.handleProposeWrite(w, r)
	case r.Method == http.MethodGet && path == "/conflicts":
		h.handleListConflicts(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/resolve"):
		h.handleResolveConflict(w, r)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/dismiss"):
		h.handleDismissConflict(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(path, "/conflicts/"):
		h.handleGetConflict(w, r)
	case r.Method == http.MethodGet && path == "/versions":
		h.handleListVersions(w, r)
	case r.Method == http.MethodGet && path == "/metrics/subscriptions":
		h.handleMetricsSnapshot(w, r)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

type proposeWritePayload struct {
	EntityType      string         `json:"entityType"`
	EntityID        string         `json:"entityId"`
	WorkspaceID     string         `json:"workspaceId"`
	ExpectedVersion int64          `json:"expectedVersion"`
	Data            map[string]any `json:"data"`
}

type proposeWriteResponse struct {
	Accepted bool                   `json:"accepted"`
	Version  *domain.EntityVersion  `json:"version,omitempty"`
	Conflict *domain.EntityConflict `json:"conflict,omitempty"`
}

func (h *Handler) handleProposeWrite(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	var payload proposeWritePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	entityType, err := domain.ParseEntityType(payload.EntityType)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entityID, err := uuid.Parse(strings.TrimSpace(payload.EntityID))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid entityId: %v", err), http.StatusBadRequest)
		return
	}
	workspaceID, err := uuid.Parse(strings.TrimSpace(payload.WorkspaceID))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid workspaceId: %v", err), http.StatusBadRequest)
		return
	}

	if err := h.authorizer.CheckWorkspaceAccess(r.Context(), workspaceID, userID); err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	outcome, err := h.detector.ProposeWrite(r.Context(), conflicts.WriteProposal{
		EntityType:      entityType,
		EntityID:        entityID,
		WorkspaceID:     workspaceID,
		ExpectedVersion: payload.ExpectedVersion,
		Data:            payload.Data,
		Actor:           userID,
	})
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	// A conflicted write is a distinguishable result, not a generic failure:
	// the client routes it to conflict-resolution UI.
	if !outcome.Accepted {
		writeJSON(w, http.StatusConflict, proposeWriteResponse{Conflict: outcome.Conflict})
		return
	}
	writeJSON(w, http.StatusOK, proposeWriteResponse{Accepted: true, Version: outcome.Version})
}

type conflictListItem struct {
	domain.EntityConflict
	LatestVersionNumber *int64 `json:"latest_version_number,omitempty"`
}

func (h *Handler) handleListConflicts(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	workspaceID, err := uuid.Parse(strings.TrimSpace(r.URL.Query().Get("workspaceId")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid workspaceId: %v", err), http.StatusBadRequest)
		return
	}

	list, err := h.service.ListUnresolved(r.Context(), workspaceID, userID)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}

	items := make([]conflictListItem, len(list))
	for i, conflict := range list {
		items[i] = conflictListItem{EntityConflict: conflict}
	}

	// Attach each entity's latest version number so clients can tell whether
	// the record moved on since detection. Batched per entity type.
	if loader := middleware.VersionLoaderFromContext(r.Context()); loader != nil {
		thunks := make([]func() (any, error), len(list))
		for i, conflict := range list {
			thunks[i] = loader.Load(r.Context(), versionloader.Key(conflict.EntityType, conflict.EntityID))
		}
		for i, thunk := range thunks {
			data, err := thunk()
			if err != nil {
				continue
			}
			if version, ok := data.(domain.EntityVersion); ok {
				n := version.VersionNumber
				items[i].LatestVersionNumber = &n
			}
		}
	}

	writeJSON(w, http.StatusOK, items)
}

func (h *Handler) handleGetConflict(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(strings.TrimPrefix(strings.TrimSuffix(r.URL.Path, "/"), "/conflicts/"))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid conflict id: %v", err), http.StatusBadRequest)
		return
	}

	conflict, err := h.service.Get(r.Context(), id)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, conflict)
}

type resolveConflictPayload struct {
	ChosenVersion int64          `json:"chosenVersion"`
	MergeData     map[string]any `json:"mergeData,omitempty"`
}

func (h *Handler) handleResolveConflict(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	id, err := conflictIDFromPath(r.URL.Path, "/resolve")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var payload resolveConflictPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, fmt.Sprintf("invalid payload: %v", err), http.StatusBadRequest)
		return
	}

	resolved, err := h.service.Resolve(r.Context(), id, payload.ChosenVersion, userID, payload.MergeData)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, resolved)
}

func (h *Handler) handleDismissConflict(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}

	id, err := conflictIDFromPath(r.URL.Path, "/dismiss")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	dismissed, err := h.service.Dismiss(r.Context(), id, userID)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"dismissed": dismissed})
}

func (h *Handler) handleListVersions(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()

	entityType, err := domain.ParseEntityType(query.Get("entityType"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	entityID, err := uuid.Parse(strings.TrimSpace(query.Get("entityId")))
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid entityId: %v", err), http.StatusBadRequest)
		return
	}

	limit := 0
	if raw := query.Get("limit"); raw != "" {
		limit, err = strconv.Atoi(raw)
		if err != nil {
			http.Error(w, fmt.Sprintf("invalid limit: %v", err), http.StatusBadRequest)
			return
		}
	}

	versions, err := h.service.Versions(r.Context(), entityType, entityID, limit)
	if err != nil {
		http.Error(w, err.Error(), statusForError(err))
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (h *Handler) handleMetricsSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.metrics.Snapshot())
}

func conflictIDFromPath(path, action string) (uuid.UUID, error) {
	trimmed := strings.TrimSuffix(strings.TrimSuffix(path, "/"), action)
	id, err := uuid.Parse(strings.TrimPrefix(trimmed, "/conflicts/"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid conflict id: %w", err)
	}
	return id, nil
}

func statusForError(err error) int {
	switch {
	case domain.IsValidation(err):
		return http.StatusBadRequest
	case domain.IsNotFound(err):
		return http.StatusNotFound
	case domain.IsForbidden(err):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(payload)
}
