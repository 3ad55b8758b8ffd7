// Package changelog implements the replicated changelog store client.
// Replicas exchange column-level change records through a shared store;
// a per-replica cursor marks the last common point, and each pull
// partitions everything after it into the changes we contributed and
// the changes other replicas contributed.
package changelog

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"Resona/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ChangeRow is the persisted form of one change record.
type ChangeRow struct {
	Seq        uint64    `gorm:"primaryKey;autoIncrement"`
	RecordID   string    `gorm:"size:64;uniqueIndex"`
	ProjectID  string    `gorm:"size:64;index"`
	Table      string    `gorm:"column:table_name;size:32"`
	Kind       string    `gorm:"size:16"`
	RowPK      string    `gorm:"size:64;index"`
	ColumnName string    `gorm:"size:32"`
	Value      string    `gorm:"size:767"`
	Author     string    `gorm:"size:64;index"`
	AppliedAt  time.Time `gorm:"index"`
	Pushed     bool
}

// TableName 指定表名
func (ChangeRow) TableName() string { return "change_records" }

// SyncPoint tracks, per replica and project, the last sequence number
// both sides agreed on — the common ancestor marker.
type SyncPoint struct {
	ID        uint   `gorm:"primaryKey"`
	ProjectID string `gorm:"size:64;uniqueIndex:idx_sync_point,priority:1"`
	ReplicaID string `gorm:"size:64;uniqueIndex:idx_sync_point,priority:2"`
	LastSeq   uint64
	UpdatedAt time.Time
}

// TableName 指定表名
func (SyncPoint) TableName() string { return "sync_points" }

// Store is a changelog store client bound to one project and replica.
type Store struct {
	db        *gorm.DB
	projectID string
	replicaID string
}

// NewStore creates a store client.
func NewStore(db *gorm.DB, projectID, replicaID string) *Store {
	return &Store{db: db, projectID: projectID, replicaID: replicaID}
}

// Migrate creates the changelog tables.
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&ChangeRow{}, &SyncPoint{}); err != nil {
		return fmt.Errorf("migrate changelog tables: %w", err)
	}
	return nil
}

// Record captures a local edit as a change record. Called by the edit
// surface for every column it mutates.
func (s *Store) Record(ctx context.Context, rec model.ChangeRecord) error {
	recordID := rec.ID
	if recordID == "" {
		recordID = uuid.NewString()
	}
	row := ChangeRow{
		RecordID:   recordID,
		ProjectID:  s.projectID,
		Table:      rec.Table,
		Kind:       string(rec.Kind),
		RowPK:      rec.PrimaryKey,
		ColumnName: rec.Column,
		Value:      rec.Value,
		Author:     s.replicaID,
		AppliedAt:  rec.AppliedAt,
	}
	if row.AppliedAt.IsZero() {
		row.AppliedAt = time.Now()
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("record change: %w", err)
	}
	return nil
}

// PullChanges returns the changes contributed by each side since the
// last common point and advances the cursor. Returns nil when nothing
// happened since.
func (s *Store) PullChanges(ctx context.Context) (*model.PullResult, error) {
	cursor, err := s.cursor(ctx)
	if err != nil {
		return nil, err
	}

	var rows []ChangeRow
	err = s.db.WithContext(ctx).
		Where("project_id = ? AND seq > ?", s.projectID, cursor.LastSeq).
		Order("seq").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("pull changes: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	result := &model.PullResult{
		CommonAncestor: strconv.FormatUint(cursor.LastSeq, 10),
	}
	for _, row := range rows {
		rec := row.toRecord()
		if row.Author == s.replicaID {
			result.ConcurrentChanges.Our = append(result.ConcurrentChanges.Our, rec)
		} else {
			result.ConcurrentChanges.Their = append(result.ConcurrentChanges.Their, rec)
		}
	}

	cursor.LastSeq = rows[len(rows)-1].Seq
	cursor.UpdatedAt = time.Now()
	if err := s.db.WithContext(ctx).Save(cursor).Error; err != nil {
		return nil, fmt.Errorf("advance sync cursor: %w", err)
	}
	return result, nil
}

// PendingChanges returns the local change set not yet pushed.
func (s *Store) PendingChanges(ctx context.Context) ([]model.ChangeRecord, error) {
	var rows []ChangeRow
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND author = ? AND pushed = ?", s.projectID, s.replicaID, false).
		Order("seq").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("pending changes: %w", err)
	}
	records := make([]model.ChangeRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records, nil
}

// PushChanges marks the handed-over change set as transmitted. Only
// the records actually in the set are marked: a record written after
// the set was read stays pending for the next push.
func (s *Store) PushChanges(ctx context.Context, changes []model.ChangeRecord) error {
	if len(changes) == 0 {
		return nil
	}
	ids := make([]string, 0, len(changes))
	for _, rec := range changes {
		if rec.ID != "" {
			ids = append(ids, rec.ID)
		}
	}
	err := s.db.WithContext(ctx).
		Model(&ChangeRow{}).
		Where("project_id = ? AND author = ? AND record_id IN ?", s.projectID, s.replicaID, ids).
		Update("pushed", true).Error
	if err != nil {
		return fmt.Errorf("push changes: %w", err)
	}
	return nil
}

func (s *Store) cursor(ctx context.Context) (*SyncPoint, error) {
	var point SyncPoint
	err := s.db.WithContext(ctx).
		Where("project_id = ? AND replica_id = ?", s.projectID, s.replicaID).
		First(&point).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		point = SyncPoint{ProjectID: s.projectID, ReplicaID: s.replicaID}
		if err := s.db.WithContext(ctx).Create(&point).Error; err != nil {
			return nil, fmt.Errorf("create sync cursor: %w", err)
		}
		return &point, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load sync cursor: %w", err)
	}
	return &point, nil
}

func (row ChangeRow) toRecord() model.ChangeRecord {
	return model.ChangeRecord{
		ID:         row.RecordID,
		Table:      row.Table,
		Kind:       model.ChangeKind(row.Kind),
		PrimaryKey: row.RowPK,
		Column:     row.ColumnName,
		Value:      row.Value,
		Author:     row.Author,
		AppliedAt:  row.AppliedAt,
	}
}
