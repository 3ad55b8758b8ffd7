package history

import "Resona/model"

// Log is the append-only, truncate-on-branch action history for one
// project. undos counts how many actions at the tail are currently
// rolled back; 0 <= undos <= len(actions) always holds.
//
// The log is confined to the same single-threaded context as the sync
// merge path; it carries no locking of its own.
type Log struct {
	projectID string
	actions   []Action
	undos     int
}

// NewLog creates an empty action log for the project.
func NewLog(projectID string) *Log {
	return &Log{projectID: projectID}
}

// ProjectID returns the project this log belongs to.
func (l *Log) ProjectID() string { return l.projectID }

// Len returns the number of recorded actions, undone ones included.
func (l *Log) Len() int { return len(l.actions) }

// Undos returns how many actions at the tail are currently undone.
func (l *Log) Undos() int { return l.undos }

// CanUndo reports whether an applied action remains to roll back.
func (l *Log) CanUndo() bool { return len(l.actions)-l.undos > 0 }

// CanRedo reports whether an undone action remains to reapply.
func (l *Log) CanRedo() bool { return l.undos > 0 }

// Actions returns the recorded actions in order. The slice is shared;
// callers must not mutate it.
func (l *Log) Actions() []Action { return l.actions }

// Perform applies a new action and appends it to the history. Any
// undone suffix is discarded first: history is strictly linear, there
// is no redo branching.
func (l *Log) Perform(g *model.Graph, a Action) ApplyResult {
	if l.undos > 0 {
		l.actions = l.actions[:len(l.actions)-l.undos]
		l.undos = 0
	}
	res := a.apply(g)
	l.actions = append(l.actions, a)
	return res
}

// Record appends an action without applying it, for edits whose effect
// the edit surface has already made on the graph.
func (l *Log) Record(a Action) {
	if l.undos > 0 {
		l.actions = l.actions[:len(l.actions)-l.undos]
		l.undos = 0
	}
	l.actions = append(l.actions, a)
}

// Undo rolls back the most recent applied action by applying its
// inverse transform. No-op when nothing is left to undo.
func (l *Log) Undo(g *model.Graph) ApplyResult {
	if !l.CanUndo() {
		return NoHistory
	}
	l.undos++
	a := l.actions[len(l.actions)-l.undos]
	return a.invert(g)
}

// Redo reapplies the most recently undone action's forward transform.
// No-op when nothing is undone.
func (l *Log) Redo(g *model.Graph) ApplyResult {
	if l.undos == 0 {
		return NoHistory
	}
	l.undos--
	a := l.actions[len(l.actions)-l.undos-1]
	return a.apply(g)
}

// Restore replaces the log content, used when rehydrating history from
// the store. The redo tail does not survive a restart: undos resets to
// zero.
func (l *Log) Restore(actions []Action) {
	l.actions = actions
	l.undos = 0
}
