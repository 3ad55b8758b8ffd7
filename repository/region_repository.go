package repository

import (
	"context"
	"database/sql"
	"fmt"

	"Resona/db"
	"Resona/model"
)

// RegionRepository defines the interface for region data operations.
type RegionRepository interface {
	CreateRegion(ctx context.Context, region *model.Region) error
	GetRegionByID(ctx context.Context, id string) (*model.Region, error)
	GetRegionsByProjectID(ctx context.Context, projectID string) ([]*model.Region, error)
	UpdateRegion(ctx context.Context, region *model.Region) error
	UpsertRegions(ctx context.Context, regions []*model.Region) error
}

// mysqlRegionRepository implements RegionRepository for MySQL.
type mysqlRegionRepository struct {
	DB *sql.DB
}

// NewMySQLRegionRepository creates a new instance of mysqlRegionRepository.
func NewMySQLRegionRepository() RegionRepository {
	return &mysqlRegionRepository{DB: db.DB}
}

const regionColumns = "id, track_id, project_id, `start`, `end`, offset_start, offset_end, " +
	"total_duration, created_by, conflicts, conflicts_with, deleted, created_at, updated_at"

// CreateRegion adds a new region to the database.
func (r *mysqlRegionRepository) CreateRegion(ctx context.Context, region *model.Region) error {
	query := "INSERT INTO regions (id, track_id, project_id, `start`, `end`, offset_start, offset_end, " +
		"total_duration, created_by, conflicts, conflicts_with, deleted) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)"
	stmt, err := r.DB.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to prepare statement for CreateRegion: %w", err)
	}
	defer stmt.Close()

	_, err = stmt.ExecContext(ctx, region.ID, region.TrackID, region.ProjectID,
		region.Start, region.End, region.OffsetStart, region.OffsetEnd,
		region.TotalDuration, region.CreatedBy, region.Conflicts,
		nullable(region.ConflictsWith), region.Deleted)
	if err != nil {
		return fmt.Errorf("failed to execute CreateRegion: %w", err)
	}
	return nil
}

// GetRegionByID retrieves a single region.
func (r *mysqlRegionRepository) GetRegionByID(ctx context.Context, id string) (*model.Region, error) {
	query := "SELECT " + regionColumns + " FROM regions WHERE id = ?"
	row := r.DB.QueryRowContext(ctx, query, id)

	region, err := scanRegion(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan region %s: %w", id, err)
	}
	return region, nil
}

// GetRegionsByProjectID retrieves all regions of a project, including
// soft-deleted ones.
func (r *mysqlRegionRepository) GetRegionsByProjectID(ctx context.Context, projectID string) ([]*model.Region, error) {
	query := "SELECT " + regionColumns + " FROM regions WHERE project_id = ? ORDER BY track_id, `start`, id"
	rows, err := r.DB.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query regions for project %s: %w", projectID, err)
	}
	defer rows.Close()

	var regions []*model.Region
	for rows.Next() {
		region, err := scanRegion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan region row: %w", err)
		}
		regions = append(regions, region)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed iterating region rows: %w", err)
	}
	return regions, nil
}

// UpdateRegion writes every mutable column of the region.
func (r *mysqlRegionRepository) UpdateRegion(ctx context.Context, region *model.Region) error {
	query := "UPDATE regions SET `start` = ?, `end` = ?, offset_start = ?, offset_end = ?, " +
		"conflicts = ?, conflicts_with = ?, deleted = ? WHERE id = ?"
	_, err := r.DB.ExecContext(ctx, query, region.Start, region.End,
		region.OffsetStart, region.OffsetEnd, region.Conflicts,
		nullable(region.ConflictsWith), region.Deleted, region.ID)
	if err != nil {
		return fmt.Errorf("failed to update region %s: %w", region.ID, err)
	}
	return nil
}

// UpsertRegions inserts or updates the given regions by primary key in
// one transaction. This is the persistence half of conflict flagging.
func (r *mysqlRegionRepository) UpsertRegions(ctx context.Context, regions []*model.Region) error {
	if len(regions) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx for UpsertRegions: %w", err)
	}

	query := "INSERT INTO regions (id, track_id, project_id, `start`, `end`, offset_start, offset_end, " +
		"total_duration, created_by, conflicts, conflicts_with, deleted) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?) " +
		"ON DUPLICATE KEY UPDATE `start` = VALUES(`start`), `end` = VALUES(`end`), " +
		"offset_start = VALUES(offset_start), offset_end = VALUES(offset_end), " +
		"conflicts = VALUES(conflicts), conflicts_with = VALUES(conflicts_with), deleted = VALUES(deleted)"
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("failed to prepare statement for UpsertRegions: %w", err)
	}
	defer stmt.Close()

	for _, region := range regions {
		_, err := stmt.ExecContext(ctx, region.ID, region.TrackID, region.ProjectID,
			region.Start, region.End, region.OffsetStart, region.OffsetEnd,
			region.TotalDuration, region.CreatedBy, region.Conflicts,
			nullable(region.ConflictsWith), region.Deleted)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to upsert region %s: %w", region.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit UpsertRegions: %w", err)
	}
	return nil
}

func scanRegion(row rowScanner) (*model.Region, error) {
	var (
		reg           model.Region
		conflictsWith sql.NullString
	)
	err := row.Scan(&reg.ID, &reg.TrackID, &reg.ProjectID, &reg.Start, &reg.End,
		&reg.OffsetStart, &reg.OffsetEnd, &reg.TotalDuration, &reg.CreatedBy,
		&reg.Conflicts, &conflictsWith, &reg.Deleted, &reg.CreatedAt, &reg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	reg.ConflictsWith = conflictsWith.String
	return &reg, nil
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
