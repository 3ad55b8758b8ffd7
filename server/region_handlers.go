package server

import (
	"encoding/json"
	"net/http"

	"Resona/logger"
)

// PasteRegionHandler 在音轨上粘贴一个新区块
func (h *APIHandler) PasteRegionHandler(w http.ResponseWriter, r *http.Request) {
	projectID := muxVar(r, "id")

	var req struct {
		TrackID       string  `json:"trackId"`
		Start         float64 `json:"start"`
		End           float64 `json:"end"`
		OffsetStart   float64 `json:"offsetStart"`
		OffsetEnd     float64 `json:"offsetEnd"`
		TotalDuration float64 `json:"totalDuration"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.TrackID == "" {
		http.Error(w, "Track ID is required", http.StatusBadRequest)
		return
	}

	s, err := h.openSession(r.Context(), projectID)
	if err != nil {
		respondError(w, err)
		return
	}

	region, err := s.ws.PasteRegion(r.Context(), req.TrackID,
		req.Start, req.End, req.OffsetStart, req.OffsetEnd, req.TotalDuration)
	if err != nil {
		respondError(w, err)
		return
	}
	h.invalidateGraphCache(r, projectID)

	respondJSON(w, http.StatusCreated, region)
}

// DeleteRegionHandler 删除区块
func (h *APIHandler) DeleteRegionHandler(w http.ResponseWriter, r *http.Request) {
	projectID := muxVar(r, "id")
	regionID := muxVar(r, "region_id")

	s, err := h.openSession(r.Context(), projectID)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := s.ws.DeleteRegion(r.Context(), regionID); err != nil {
		respondError(w, err)
		return
	}
	h.invalidateGraphCache(r, projectID)

	w.WriteHeader(http.StatusNoContent)
}

// CropRegionStartHandler 调整区块的左边界
func (h *APIHandler) CropRegionStartHandler(w http.ResponseWriter, r *http.Request) {
	projectID := muxVar(r, "id")
	regionID := muxVar(r, "region_id")

	var req struct {
		Start       float64 `json:"start"`
		OffsetStart float64 `json:"offsetStart"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s, err := h.openSession(r.Context(), projectID)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := s.ws.CropRegionStart(r.Context(), regionID, req.Start, req.OffsetStart); err != nil {
		respondError(w, err)
		return
	}
	h.invalidateGraphCache(r, projectID)

	w.WriteHeader(http.StatusOK)
}

// CropRegionEndHandler 调整区块的右边界
func (h *APIHandler) CropRegionEndHandler(w http.ResponseWriter, r *http.Request) {
	projectID := muxVar(r, "id")
	regionID := muxVar(r, "region_id")

	var req struct {
		End       float64 `json:"end"`
		OffsetEnd float64 `json:"offsetEnd"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s, err := h.openSession(r.Context(), projectID)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := s.ws.CropRegionEnd(r.Context(), regionID, req.End, req.OffsetEnd); err != nil {
		respondError(w, err)
		return
	}
	h.invalidateGraphCache(r, projectID)

	w.WriteHeader(http.StatusOK)
}

// ShiftRegionHandler 在时间轴上移动区块
func (h *APIHandler) ShiftRegionHandler(w http.ResponseWriter, r *http.Request) {
	projectID := muxVar(r, "id")
	regionID := muxVar(r, "region_id")

	var req struct {
		Start float64 `json:"start"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s, err := h.openSession(r.Context(), projectID)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := s.ws.ShiftRegion(r.Context(), regionID, req.Start); err != nil {
		respondError(w, err)
		return
	}
	h.invalidateGraphCache(r, projectID)

	w.WriteHeader(http.StatusOK)
}

// SplitRegionHandler 在给定位置切开区块
func (h *APIHandler) SplitRegionHandler(w http.ResponseWriter, r *http.Request) {
	projectID := muxVar(r, "id")
	regionID := muxVar(r, "region_id")

	var req struct {
		At float64 `json:"at"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s, err := h.openSession(r.Context(), projectID)
	if err != nil {
		respondError(w, err)
		return
	}

	sibling, err := s.ws.SplitRegion(r.Context(), regionID, req.At)
	if err != nil {
		respondError(w, err)
		return
	}
	h.invalidateGraphCache(r, projectID)

	respondJSON(w, http.StatusCreated, sibling)
}

// UndoHandler 撤销最近一次操作
func (h *APIHandler) UndoHandler(w http.ResponseWriter, r *http.Request) {
	h.historyStep(w, r, true)
}

// RedoHandler 重做最近一次撤销的操作
func (h *APIHandler) RedoHandler(w http.ResponseWriter, r *http.Request) {
	h.historyStep(w, r, false)
}

func (h *APIHandler) historyStep(w http.ResponseWriter, r *http.Request, undo bool) {
	projectID := muxVar(r, "id")

	s, err := h.openSession(r.Context(), projectID)
	if err != nil {
		respondError(w, err)
		return
	}

	var result string
	if undo {
		res, err := s.ws.Undo(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}
		result = res.String()
	} else {
		res, err := s.ws.Redo(r.Context())
		if err != nil {
			respondError(w, err)
			return
		}
		result = res.String()
	}
	h.invalidateGraphCache(r, projectID)

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"result":  result,
		"canUndo": s.ws.History().CanUndo(),
		"canRedo": s.ws.History().CanRedo(),
	})
}

// GetConflictsHandler 列出当前被标记冲突的区块
func (h *APIHandler) GetConflictsHandler(w http.ResponseWriter, r *http.Request) {
	projectID := muxVar(r, "id")

	s, err := h.openSession(r.Context(), projectID)
	if err != nil {
		respondError(w, err)
		return
	}

	conflicts := s.ws.Conflicts()
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"conflicts": conflicts,
		"count":     len(conflicts),
	})
}

// ResolveConflictHandler 处理冲突裁决：accept 保留区块，reject 丢弃区块
func (h *APIHandler) ResolveConflictHandler(w http.ResponseWriter, r *http.Request) {
	projectID := muxVar(r, "id")
	regionID := muxVar(r, "region_id")

	var req struct {
		Resolution string `json:"resolution"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s, err := h.openSession(r.Context(), projectID)
	if err != nil {
		respondError(w, err)
		return
	}

	switch req.Resolution {
	case "accept":
		err = s.ws.AcceptConflict(r.Context(), regionID)
	case "reject":
		err = s.ws.RejectConflict(r.Context(), regionID)
	default:
		http.Error(w, "Resolution must be 'accept' or 'reject'", http.StatusBadRequest)
		return
	}
	if err != nil {
		respondError(w, err)
		return
	}
	h.invalidateGraphCache(r, projectID)

	logger.Info("conflict resolved",
		logger.String("projectId", projectID),
		logger.String("regionId", regionID),
		logger.String("resolution", req.Resolution))
	w.WriteHeader(http.StatusOK)
}
