package repository

import (
	"context"
	"database/sql"
	"fmt"

	"Resona/db"
	"Resona/model"
)

// ProjectRepository defines the interface for project data operations.
type ProjectRepository interface {
	CreateProject(ctx context.Context, project *model.Project) error
	GetProjectByID(ctx context.Context, id string) (*model.Project, error)
}

type mysqlProjectRepository struct {
	DB *sql.DB
}

// NewMySQLProjectRepository creates a new instance of mysqlProjectRepository.
func NewMySQLProjectRepository() ProjectRepository {
	return &mysqlProjectRepository{DB: db.DB}
}

func (r *mysqlProjectRepository) CreateProject(ctx context.Context, project *model.Project) error {
	query := `INSERT INTO projects (id, name) VALUES (?, ?)
	           ON DUPLICATE KEY UPDATE name = VALUES(name)`
	if _, err := r.DB.ExecContext(ctx, query, project.ID, project.Name); err != nil {
		return fmt.Errorf("failed to create project %s: %w", project.ID, err)
	}
	return nil
}

func (r *mysqlProjectRepository) GetProjectByID(ctx context.Context, id string) (*model.Project, error) {
	query := "SELECT id, name, created_at, updated_at FROM projects WHERE id = ?"
	row := r.DB.QueryRowContext(ctx, query, id)

	var p model.Project
	err := row.Scan(&p.ID, &p.Name, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan project %s: %w", id, err)
	}
	return &p, nil
}
