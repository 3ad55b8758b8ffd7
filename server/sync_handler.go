package server

import (
	"errors"
	"net/http"

	coresync "Resona/core/sync"
	"Resona/logger"
)

// PullHandler 触发一次拉取合并
func (h *APIHandler) PullHandler(w http.ResponseWriter, r *http.Request) {
	projectID := muxVar(r, "id")

	s, err := h.openSession(r.Context(), projectID)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := s.ws.Orchestrator().Pull(r.Context()); err != nil {
		if errors.Is(err, coresync.ErrSyncBusy) {
			http.Error(w, "A sync operation is already in progress", http.StatusConflict)
			return
		}
		logger.Error("pull failed",
			logger.String("projectId", projectID), logger.ErrorField(err))
		http.Error(w, "Pull failed", http.StatusInternalServerError)
		return
	}
	h.invalidateGraphCache(r, projectID)

	conflicts := s.ws.Conflicts()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"state":     s.ws.Orchestrator().State().String(),
		"conflicts": len(conflicts),
	})
}

// PushHandler 触发一次推送
func (h *APIHandler) PushHandler(w http.ResponseWriter, r *http.Request) {
	projectID := muxVar(r, "id")

	s, err := h.openSession(r.Context(), projectID)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := s.ws.Orchestrator().Push(r.Context()); err != nil {
		if errors.Is(err, coresync.ErrSyncBusy) {
			http.Error(w, "A sync operation is already in progress", http.StatusConflict)
			return
		}
		logger.Error("push failed",
			logger.String("projectId", projectID), logger.ErrorField(err))
		http.Error(w, "Push failed", http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"state": s.ws.Orchestrator().State().String(),
	})
}

// SyncStateHandler 返回同步状态机的当前状态
func (h *APIHandler) SyncStateHandler(w http.ResponseWriter, r *http.Request) {
	projectID := muxVar(r, "id")

	s, err := h.openSession(r.Context(), projectID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"state":   s.ws.Orchestrator().State().String(),
		"canUndo": s.ws.History().CanUndo(),
		"canRedo": s.ws.History().CanRedo(),
	})
}
