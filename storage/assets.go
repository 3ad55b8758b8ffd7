package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"Resona/config"
	"Resona/logger"
	"Resona/model"
)

// AssetManager moves track audio assets between the local assets
// directory and the MinIO bucket. Objects are keyed by track id so a
// renamed local file still resolves.
type AssetManager struct {
	cfg *config.Config
}

// NewAssetManager creates an AssetManager. InitMinio must have been
// called first.
func NewAssetManager(cfg *config.Config) *AssetManager {
	return &AssetManager{cfg: cfg}
}

// LocalPath returns where the track's asset lives on disk.
func (m *AssetManager) LocalPath(track *model.Track) string {
	if track.FilePath != "" {
		return track.FilePath
	}
	return filepath.Join(m.cfg.AssetsDir, track.ID+".wav")
}

func (m *AssetManager) objectName(track *model.Track) string {
	return fmt.Sprintf("%s/%s", track.ProjectID, track.ID)
}

// EnsureLocal downloads the track's asset when it is not already on
// disk. Called during a merge for every newly inserted track.
func (m *AssetManager) EnsureLocal(ctx context.Context, track *model.Track) error {
	path := m.LocalPath(track)
	if _, err := os.Stat(path); err == nil {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("ensure asset dir: %w", err)
	}
	if err := DownloadObject(ctx, m.cfg.MinioBucket, m.objectName(track), path); err != nil {
		return fmt.Errorf("ensure local asset for track %s: %w", track.ID, err)
	}

	logger.Info("asset downloaded",
		logger.String("track", track.ID),
		logger.String("path", path))
	return nil
}

// Upload sends the track's asset to the bucket. Called before a push
// for every track not yet marked uploaded.
func (m *AssetManager) Upload(ctx context.Context, track *model.Track) error {
	path := m.LocalPath(track)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("asset file missing for track %s: %w", track.ID, err)
	}
	if err := UploadObject(ctx, m.cfg.MinioBucket, m.objectName(track), path); err != nil {
		return fmt.Errorf("upload asset for track %s: %w", track.ID, err)
	}
	return nil
}
