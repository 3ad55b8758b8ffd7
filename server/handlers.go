package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	stdsync "sync"
	"time"

	"github.com/gorilla/mux"

	"Resona/changelog"
	"Resona/config"
	"Resona/core/auth"
	coresync "Resona/core/sync"
	"Resona/core/workspace"
	"Resona/db"
	"Resona/logger"
	"Resona/model"
	"Resona/notify"
	"Resona/repository"
	"Resona/storage"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	cfg *config.Config

	userRepo    repository.UserRepository
	projectRepo repository.ProjectRepository
	trackRepo   repository.TrackRepository
	regionRepo  repository.RegionRepository
	actionRepo  *repository.ActionRepository
	assets      *storage.AssetManager

	// 每个项目一个打开的会话
	mu       stdsync.Mutex
	sessions map[string]*session
}

// session holds everything serving one open project: the live
// workspace, its sync machine, and the event hub its clients listen on.
type session struct {
	ws    *workspace.Workspace
	hub   *notify.Hub
	store *repository.ProjectStore
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	cfg *config.Config,
	userRepo repository.UserRepository,
	projectRepo repository.ProjectRepository,
	trackRepo repository.TrackRepository,
	regionRepo repository.RegionRepository,
	actionRepo *repository.ActionRepository,
	assets *storage.AssetManager,
) *APIHandler {
	return &APIHandler{
		cfg:         cfg,
		userRepo:    userRepo,
		projectRepo: projectRepo,
		trackRepo:   trackRepo,
		regionRepo:  regionRepo,
		actionRepo:  actionRepo,
		assets:      assets,
		sessions:    make(map[string]*session),
	}
}

// openSession returns the session for the project, creating and loading
// it on first use.
func (h *APIHandler) openSession(ctx context.Context, projectID string) (*session, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if s, ok := h.sessions[projectID]; ok {
		return s, nil
	}

	project, err := h.projectRepo.GetProjectByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up project %s: %w", projectID, err)
	}
	if project == nil {
		return nil, workspace.ErrNotFound
	}

	hub := notify.NewHub(projectID)
	go hub.Run()

	store := repository.NewProjectStore(h.trackRepo, h.regionRepo)
	changes := changelog.NewStore(db.GormDB, projectID, h.cfg.ReplicaID)
	timeout := time.Duration(h.cfg.SyncTimeoutSeconds) * time.Second
	orch := coresync.NewOrchestrator(projectID, h.cfg.ReplicaID, timeout,
		changes, store, h.assets, hub)

	ws := workspace.New(projectID, h.cfg.ReplicaID, orch,
		h.trackRepo, h.regionRepo, h.actionRepo, changes)
	if err := ws.Load(ctx, store); err != nil {
		hub.Close()
		return nil, err
	}

	s := &session{ws: ws, hub: hub, store: store}
	h.sessions[projectID] = s

	logger.Info("project session opened",
		logger.String("projectId", projectID),
		logger.String("replicaId", h.cfg.ReplicaID))
	return s, nil
}

// closeSessions shuts down all open event hubs, used at server exit.
func (h *APIHandler) closeSessions() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.sessions {
		s.hub.Close()
		delete(h.sessions, id)
	}
}

// WSHandler 将客户端接入项目的事件 Hub
func (h *APIHandler) WSHandler(w http.ResponseWriter, r *http.Request) {
	projectID := muxVar(r, "id")
	s, err := h.openSession(r.Context(), projectID)
	if err != nil {
		respondError(w, err)
		return
	}
	s.hub.ServeWS(w, r)
}

func muxVar(r *http.Request, name string) string {
	return mux.Vars(r)[name]
}

func isNotFound(err error) bool {
	return errors.Is(err, workspace.ErrNotFound)
}

func isInvalid(err error) bool {
	return errors.Is(err, model.ErrInvalidInterval)
}

// respondJSON writes the value as a JSON response.
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v)
	}
}

// respondError maps workspace and validation errors onto HTTP statuses.
func respondError(w http.ResponseWriter, err error) {
	switch {
	case isNotFound(err):
		http.Error(w, err.Error(), http.StatusNotFound)
	case isInvalid(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// AuthMiddleware is a middleware function that checks for a valid JWT token
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ParseToken(parts[1], h.cfg.JWTSecret)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), userIDKey, claims.UserID)
		ctx = context.WithValue(ctx, usernameKey, claims.Username)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

type contextKey string

const (
	userIDKey   contextKey = "userID"
	usernameKey contextKey = "username"
)

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(ctx context.Context) (int64, error) {
	userID, ok := ctx.Value(userIDKey).(int64)
	if !ok {
		return 0, fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}
