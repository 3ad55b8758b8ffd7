package model

import "time"

// ChangeKind is the kind of a replicated change record.
type ChangeKind string

const (
	ChangeInsert ChangeKind = "insert"
	ChangeUpdate ChangeKind = "update"
	ChangeDelete ChangeKind = "delete"
)

// Table names used in change records.
const (
	TableTracks  = "tracks"
	TableRegions = "regions"
)

// ChangeRecord is one replicated column-level change, consumed
// read-only from the changelog store.
type ChangeRecord struct {
	ID         string     `json:"id,omitempty"` // Store-assigned record identity
	Table      string     `json:"table"`
	Kind       ChangeKind `json:"kind"`
	PrimaryKey string     `json:"primaryKey"`
	Column     string     `json:"column,omitempty"`
	Value      string     `json:"value,omitempty"` // Serialized column value
	Author     string     `json:"author"`          // Replica that made the change
	AppliedAt  time.Time  `json:"appliedAt"`
}

// ConcurrentChanges holds the disjoint change sets contributed by each
// side since the last common point.
type ConcurrentChanges struct {
	Our   []ChangeRecord `json:"our"`
	Their []ChangeRecord `json:"their"`
}

// PullResult is what the changelog store hands back for one pull.
type PullResult struct {
	ConcurrentChanges ConcurrentChanges `json:"concurrentChanges"`
	CommonAncestor    string            `json:"commonAncestor"`
}

// Empty reports whether the pull carried no changes at all.
func (p *PullResult) Empty() bool {
	return len(p.ConcurrentChanges.Our) == 0 && len(p.ConcurrentChanges.Their) == 0
}
