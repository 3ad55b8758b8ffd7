package repository

import (
	"context"
	"fmt"

	"Resona/core/history"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ActionRow is the persisted form of one action log entry, kept for
// cross-session undo durability. Stored through GORM like the other
// newer modules.
type ActionRow struct {
	ID        uint   `gorm:"primaryKey"`
	ProjectID string `gorm:"size:64;index:idx_actions_project_pos,unique,priority:1"`
	Position  int    `gorm:"index:idx_actions_project_pos,unique,priority:2"`
	Kind      string `gorm:"size:32"`
	Payload   []byte `gorm:"type:json"`
}

// TableName 指定表名
func (ActionRow) TableName() string { return "action_log" }

// ActionRepository persists and rehydrates a project's action log.
type ActionRepository struct {
	db *gorm.DB
}

// NewActionRepository creates a repository over the GORM connection.
func NewActionRepository(db *gorm.DB) *ActionRepository {
	return &ActionRepository{db: db}
}

// SaveLog replaces the persisted history of the project with the log's
// current actions. The redo tail is persisted too; only its cursor is
// session-local.
func (r *ActionRepository) SaveLog(ctx context.Context, log *history.Log) error {
	rows := make([]ActionRow, 0, log.Len())
	for i, a := range log.Actions() {
		payload, err := history.Encode(a)
		if err != nil {
			return fmt.Errorf("save action log: %w", err)
		}
		rows = append(rows, ActionRow{
			ProjectID: log.ProjectID(),
			Position:  i,
			Kind:      string(a.Kind()),
			Payload:   payload,
		})
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("project_id = ?", log.ProjectID()).Delete(&ActionRow{}).Error; err != nil {
			return fmt.Errorf("clear action log: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(&rows).Error; err != nil {
			return fmt.Errorf("write action log: %w", err)
		}
		return nil
	})
}

// LoadLog rehydrates the project's action log. The undo cursor resets
// to zero: the redo tail does not survive a restart.
func (r *ActionRepository) LoadLog(ctx context.Context, projectID string) (*history.Log, error) {
	var rows []ActionRow
	err := r.db.WithContext(ctx).
		Where("project_id = ?", projectID).
		Order("position").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("load action log for %s: %w", projectID, err)
	}

	actions := make([]history.Action, 0, len(rows))
	for _, row := range rows {
		a, err := history.Decode(history.Kind(row.Kind), row.Payload)
		if err != nil {
			return nil, fmt.Errorf("load action log for %s: %w", projectID, err)
		}
		actions = append(actions, a)
	}

	log := history.NewLog(projectID)
	log.Restore(actions)
	return log, nil
}
