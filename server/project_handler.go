package server

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"

	"Resona/cache"
	"Resona/logger"
	"Resona/model"
)

// CreateProjectHandler 创建新项目
func (h *APIHandler) CreateProjectHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "Project name is required", http.StatusBadRequest)
		return
	}

	project := &model.Project{
		ID:   uuid.NewString(),
		Name: req.Name,
	}
	if err := h.projectRepo.CreateProject(r.Context(), project); err != nil {
		logger.Error("failed to create project", logger.ErrorField(err))
		http.Error(w, "Failed to create project", http.StatusInternalServerError)
		return
	}

	logger.Info("project created",
		logger.String("projectId", project.ID),
		logger.String("name", project.Name))
	respondJSON(w, http.StatusCreated, project)
}

// GetProjectHandler 返回项目的完整音轨图
func (h *APIHandler) GetProjectHandler(w http.ResponseWriter, r *http.Request) {
	projectID := muxVar(r, "id")

	// 会话未打开时先查缓存，避免整图重建
	h.mu.Lock()
	_, open := h.sessions[projectID]
	h.mu.Unlock()
	if !open {
		if tracks, err := cache.GetProjectGraph(r.Context(), projectID); err == nil && tracks != nil {
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"projectId": projectID,
				"tracks":    tracks,
			})
			return
		}
	}

	s, err := h.openSession(r.Context(), projectID)
	if err != nil {
		respondError(w, err)
		return
	}

	tracks := s.ws.Graph().Tracks()
	if err := cache.SetProjectGraph(r.Context(), projectID, tracks); err != nil {
		logger.Warn("failed to cache project graph",
			logger.String("projectId", projectID), logger.ErrorField(err))
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"projectId": projectID,
		"tracks":    tracks,
	})
}

// AddTrackHandler handles audio asset uploads and creates the track.
// Expected multipart form fields:
// - trackFile: the audio file (WAV recommended)
// - name: track name
// - kind: "audio" or "midi" (optional, defaults to audio)
// - duration: asset duration in seconds
func (h *APIHandler) AddTrackHandler(w http.ResponseWriter, r *http.Request) {
	projectID := muxVar(r, "id")

	if err := r.ParseMultipartForm(256 << 20); err != nil { // 256MB max memory
		http.Error(w, fmt.Sprintf("Failed to parse multipart form: %v", err), http.StatusBadRequest)
		return
	}

	name := r.FormValue("name")
	if name == "" {
		http.Error(w, "Missing 'name' in form", http.StatusBadRequest)
		return
	}

	duration, err := strconv.ParseFloat(r.FormValue("duration"), 64)
	if err != nil || duration <= 0 {
		http.Error(w, "A positive 'duration' in seconds is required", http.StatusBadRequest)
		return
	}

	kind := model.TrackKindAudio
	if r.FormValue("kind") == string(model.TrackKindMidi) {
		kind = model.TrackKindMidi
	}

	var filePath string
	trackFile, trackHeader, err := r.FormFile("trackFile")
	if err == nil {
		defer trackFile.Close()
		ext := filepath.Ext(trackHeader.Filename)
		if ext == "" {
			ext = ".wav"
		}
		filePath = filepath.Join(h.cfg.AssetsDir, uuid.NewString()+ext)
		if err := saveUploadedFile(trackFile, filePath); err != nil {
			logger.Error("failed to save uploaded asset", logger.ErrorField(err))
			http.Error(w, "Failed to save asset file", http.StatusInternalServerError)
			return
		}
	} else if err != http.ErrMissingFile {
		http.Error(w, fmt.Sprintf("Error processing track file: %v", err), http.StatusBadRequest)
		return
	}

	s, err := h.openSession(r.Context(), projectID)
	if err != nil {
		respondError(w, err)
		return
	}

	track, err := s.ws.AddTrack(r.Context(), name, kind, filePath, duration)
	if err != nil {
		respondError(w, err)
		return
	}
	h.invalidateGraphCache(r, projectID)

	logger.Info("track added",
		logger.String("projectId", projectID),
		logger.String("trackId", track.ID),
		logger.String("name", track.Name),
		logger.Float64("duration", duration))
	respondJSON(w, http.StatusCreated, track)
}

// DeleteTrackHandler 删除音轨及其所有区块
func (h *APIHandler) DeleteTrackHandler(w http.ResponseWriter, r *http.Request) {
	projectID := muxVar(r, "id")
	trackID := muxVar(r, "track_id")

	s, err := h.openSession(r.Context(), projectID)
	if err != nil {
		respondError(w, err)
		return
	}

	if err := s.ws.DeleteTrack(r.Context(), trackID); err != nil {
		respondError(w, err)
		return
	}
	h.invalidateGraphCache(r, projectID)

	w.WriteHeader(http.StatusNoContent)
}

func (h *APIHandler) invalidateGraphCache(r *http.Request, projectID string) {
	if err := cache.InvalidateProjectGraph(r.Context(), projectID); err != nil {
		logger.Warn("failed to invalidate project graph cache",
			logger.String("projectId", projectID), logger.ErrorField(err))
	}
}

func saveUploadedFile(src io.Reader, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return fmt.Errorf("failed to create asset directory: %w", err)
	}
	destFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create destination file %s: %w", destPath, err)
	}
	defer destFile.Close()

	if _, err := io.Copy(destFile, src); err != nil {
		return fmt.Errorf("failed to copy uploaded file to %s: %w", destPath, err)
	}
	return nil
}
