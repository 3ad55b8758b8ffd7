package repository

import (
	"context"
	"database/sql"
	"fmt"

	"Resona/db"
	"Resona/model"
)

// TrackRepository defines the interface for track data operations.
type TrackRepository interface {
	CreateTrack(ctx context.Context, track *model.Track) error
	GetTrackByID(ctx context.Context, id string) (*model.Track, error)
	GetTracksByProjectID(ctx context.Context, projectID string) ([]*model.Track, error)
	UpdateTrackUploaded(ctx context.Context, trackID string, uploaded bool) error
	ClearUploadedByPath(ctx context.Context, filePath string) error
	SoftDeleteTrack(ctx context.Context, trackID string) error
	UpdateTrackDeleted(ctx context.Context, trackID string, deleted bool) error
}

// mysqlTrackRepository implements TrackRepository for MySQL.
type mysqlTrackRepository struct {
	DB *sql.DB
}

// NewMySQLTrackRepository creates a new instance of mysqlTrackRepository.
func NewMySQLTrackRepository() TrackRepository {
	return &mysqlTrackRepository{DB: db.DB}
}

const trackColumns = "id, project_id, name, kind, volume, pan, file_path, uploaded, deleted, created_at, updated_at"

// CreateTrack adds a new track to the database.
func (r *mysqlTrackRepository) CreateTrack(ctx context.Context, track *model.Track) error {
	query := `INSERT INTO tracks (id, project_id, name, kind, volume, pan, file_path, uploaded, deleted)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	stmt, err := r.DB.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for CreateTrack: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, track.ID, track.ProjectID, track.Name, track.Kind,
		track.Volume, track.Pan, track.FilePath, track.Uploaded, track.Deleted)
	if err != nil {
		return fmt.Errorf("failed to execute CreateTrack: %w", err)
	}
	return nil
}

// GetTrackByID retrieves a single track, regions not attached.
func (r *mysqlTrackRepository) GetTrackByID(ctx context.Context, id string) (*model.Track, error) {
	query := "SELECT " + trackColumns + " FROM tracks WHERE id = ?"
	row := r.DB.QueryRowContext(ctx, query, id)

	track, err := scanTrack(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan track %s: %w", id, err)
	}
	return track, nil
}

// GetTracksByProjectID retrieves all tracks of a project, soft-deleted
// ones included so that merges and undo can still address them.
func (r *mysqlTrackRepository) GetTracksByProjectID(ctx context.Context, projectID string) ([]*model.Track, error) {
	query := "SELECT " + trackColumns + " FROM tracks WHERE project_id = ? ORDER BY created_at, id"
	rows, err := r.DB.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tracks for project %s: %w", projectID, err)
	}
	defer rows.Close()

	var tracks []*model.Track
	for rows.Next() {
		track, err := scanTrack(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan track row: %w", err)
		}
		tracks = append(tracks, track)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating track rows: %w", err)
	}
	return tracks, nil
}

// UpdateTrackUploaded flips the asset-uploaded marker.
func (r *mysqlTrackRepository) UpdateTrackUploaded(ctx context.Context, trackID string, uploaded bool) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE tracks SET uploaded = ? WHERE id = ?", uploaded, trackID)
	if err != nil {
		return fmt.Errorf("failed to update uploaded flag for track %s: %w", trackID, err)
	}
	return nil
}

// ClearUploadedByPath resets the uploaded marker for whichever track
// owns the asset file. No-op when no track references the path.
func (r *mysqlTrackRepository) ClearUploadedByPath(ctx context.Context, filePath string) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE tracks SET uploaded = 0 WHERE file_path = ?", filePath)
	if err != nil {
		return fmt.Errorf("failed to clear uploaded flag for path %s: %w", filePath, err)
	}
	return nil
}

// SoftDeleteTrack marks the track and all of its regions deleted.
func (r *mysqlTrackRepository) SoftDeleteTrack(ctx context.Context, trackID string) error {
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx for SoftDeleteTrack: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE tracks SET deleted = 1 WHERE id = ?", trackID); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to soft delete track %s: %w", trackID, err)
	}
	if _, err := tx.ExecContext(ctx, "UPDATE regions SET deleted = 1 WHERE track_id = ?", trackID); err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to soft delete regions of track %s: %w", trackID, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit SoftDeleteTrack: %w", err)
	}
	return nil
}

// UpdateTrackDeleted sets only the track's own deleted marker. Unlike
// SoftDeleteTrack it does not cascade to regions: undo restores each
// region that was live at delete time individually.
func (r *mysqlTrackRepository) UpdateTrackDeleted(ctx context.Context, trackID string, deleted bool) error {
	_, err := r.DB.ExecContext(ctx, "UPDATE tracks SET deleted = ? WHERE id = ?", deleted, trackID)
	if err != nil {
		return fmt.Errorf("failed to update deleted flag for track %s: %w", trackID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTrack(row rowScanner) (*model.Track, error) {
	var (
		t        model.Track
		filePath sql.NullString
	)
	err := row.Scan(&t.ID, &t.ProjectID, &t.Name, &t.Kind, &t.Volume, &t.Pan,
		&filePath, &t.Uploaded, &t.Deleted, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.FilePath = filePath.String
	return &t, nil
}
