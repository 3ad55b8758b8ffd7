// Package sync implements the merge core: classifying replicated
// change records, projecting them onto the in-memory track graph,
// detecting region overlap conflicts between replicas, and the
// orchestrator that sequences pull, merge, persist, reload and push.
package sync

import "Resona/model"

// Classified partitions a flat list of change records by target table
// and change kind.
type Classified struct {
	Inserts map[string][]model.ChangeRecord
	Updates map[string][]model.ChangeRecord
	Deletes map[string][]model.ChangeRecord
}

// Classify partitions change records. Pure function, no state.
func Classify(changes []model.ChangeRecord) Classified {
	c := Classified{
		Inserts: make(map[string][]model.ChangeRecord),
		Updates: make(map[string][]model.ChangeRecord),
		Deletes: make(map[string][]model.ChangeRecord),
	}
	for _, rec := range changes {
		switch rec.Kind {
		case model.ChangeInsert:
			c.Inserts[rec.Table] = append(c.Inserts[rec.Table], rec)
		case model.ChangeUpdate:
			c.Updates[rec.Table] = append(c.Updates[rec.Table], rec)
		case model.ChangeDelete:
			c.Deletes[rec.Table] = append(c.Deletes[rec.Table], rec)
		}
	}
	return c
}

// HasTable reports whether any record, of any kind, targets the table.
func (c Classified) HasTable(table string) bool {
	return len(c.Inserts[table]) > 0 || len(c.Updates[table]) > 0 || len(c.Deletes[table]) > 0
}

// InsertedKeys returns the distinct primary keys inserted into the
// table, in first-seen order.
func (c Classified) InsertedKeys(table string) []string {
	seen := make(map[string]bool)
	var keys []string
	for _, rec := range c.Inserts[table] {
		if !seen[rec.PrimaryKey] {
			seen[rec.PrimaryKey] = true
			keys = append(keys, rec.PrimaryKey)
		}
	}
	return keys
}

// touchesTable reports whether any record in either side of the pull
// targets the table. This is the detector's fast no-op path.
func touchesTable(pull *model.PullResult, table string) bool {
	for _, rec := range pull.ConcurrentChanges.Our {
		if rec.Table == table {
			return true
		}
	}
	for _, rec := range pull.ConcurrentChanges.Their {
		if rec.Table == table {
			return true
		}
	}
	return false
}
