package sync

import (
	"context"
	"errors"
	"fmt"
	stdsync "sync"
	"time"

	"Resona/logger"
	"Resona/model"
)

// State is the orchestrator's position in the sync state machine.
type State int32

const (
	StateIdle State = iota
	StatePulling
	StateMerging
	StatePersisting
	StateReloading
	StatePushing
)

// String returns a human-readable representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePulling:
		return "pulling"
	case StateMerging:
		return "merging"
	case StatePersisting:
		return "persisting"
	case StateReloading:
		return "reloading"
	case StatePushing:
		return "pushing"
	default:
		return "unknown"
	}
}

// ErrSyncBusy is returned when a pull or push is requested while
// another sync operation is in flight. Only one operation runs at a
// time; the caller retries after the current one settles.
var ErrSyncBusy = errors.New("sync operation already in flight")

// ChangelogStore is the replicated changelog store, the external
// collaborator that exchanges change records between replicas.
type ChangelogStore interface {
	// PullChanges returns the changes contributed by each side since
	// the last common point, or nil when there is nothing new.
	PullChanges(ctx context.Context) (*model.PullResult, error)
	// PendingChanges returns the local change set not yet pushed.
	PendingChanges(ctx context.Context) ([]model.ChangeRecord, error)
	// PushChanges hands the local change set to the store.
	PushChanges(ctx context.Context, changes []model.ChangeRecord) error
}

// EntityStore persists entities and rehydrates the project graph.
type EntityStore interface {
	// SaveEntities upserts the given regions by primary key.
	SaveEntities(ctx context.Context, regions []*model.Region) error
	// ReloadProject rebuilds the full track graph from the store.
	ReloadProject(ctx context.Context, projectID string) ([]*model.Track, error)
}

// AssetStore moves binary audio assets between local disk and remote
// object storage.
type AssetStore interface {
	// EnsureLocal downloads the track's asset if it is not on disk.
	EnsureLocal(ctx context.Context, track *model.Track) error
	// Upload sends the track's asset to remote storage.
	Upload(ctx context.Context, track *model.Track) error
}

// Notifier receives sync lifecycle events; the UI subscribes through
// it. A nil notifier is allowed.
type Notifier interface {
	Notify(event string, payload interface{})
}

// Events emitted through the Notifier.
const (
	EventPullStarted       = "pull_started"
	EventConflictsDetected = "conflicts_detected"
	EventProjectReloaded   = "project_reloaded"
	EventPushComplete      = "push_complete"
)

// Orchestrator sequences pull -> merge -> conflict detection ->
// persist -> reload, and separately push with asset pre-checks, over
// one project.
//
// All steps run on the calling goroutine. Two locks implement the
// merge-in-progress guard: mu protects the state machine and the graph
// pointer, graphMu serializes graph access — a sync operation holds it
// for its full duration, a local edit holds it while it runs. Edits
// submitted through RunLocal while an operation is in flight are
// queued and drained before the guard lifts, and an edit already
// admitted at Idle blocks a starting operation until it finishes, so
// the conflict detector never runs over a graph that is concurrently
// being user-edited.
type Orchestrator struct {
	projectID string
	replicaID string
	timeout   time.Duration

	store    ChangelogStore
	entities EntityStore
	assets   AssetStore
	notifier Notifier

	mu      stdsync.Mutex
	state   State
	graph   *model.Graph
	pending []func()

	graphMu stdsync.Mutex
}

// NewOrchestrator creates an orchestrator for the project. The graph is
// the live in-memory state; timeout bounds each pull/push round trip.
func NewOrchestrator(projectID, replicaID string, timeout time.Duration,
	store ChangelogStore, entities EntityStore, assets AssetStore, notifier Notifier) *Orchestrator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Orchestrator{
		projectID: projectID,
		replicaID: replicaID,
		timeout:   timeout,
		store:     store,
		entities:  entities,
		assets:    assets,
		notifier:  notifier,
		state:     StateIdle,
		graph:     model.NewGraph(nil),
	}
}

// State returns the current machine state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Graph returns the live track graph.
func (o *Orchestrator) Graph() *model.Graph {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.graph
}

// SetGraph replaces the live graph, used at project load.
func (o *Orchestrator) SetGraph(g *model.Graph) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.graph = g
}

// RunLocal executes a local edit against the graph. When a sync
// operation is in flight the edit is queued and runs after the
// operation settles back to Idle; the return value reports whether it
// was admitted without queueing. An admitted edit holds the graph
// guard while it runs, so a sync operation starting concurrently
// waits for it.
func (o *Orchestrator) RunLocal(edit func()) bool {
	o.mu.Lock()
	if o.state != StateIdle {
		o.pending = append(o.pending, edit)
		o.mu.Unlock()
		logger.Debug("local edit queued behind sync operation",
			logger.String("state", o.state.String()))
		return false
	}
	o.mu.Unlock()

	o.graphMu.Lock()
	defer o.graphMu.Unlock()
	edit()
	return true
}

// Pull requests remote changes and merges them into the project.
// Failures are logged and the machine returns to Idle without retry; a
// future pull makes further progress.
func (o *Orchestrator) Pull(ctx context.Context) error {
	if !o.transition(StateIdle, StatePulling) {
		return ErrSyncBusy
	}
	// Waits for an already-admitted local edit to finish; held until
	// settle so no edit interleaves with the merge.
	o.graphMu.Lock()
	defer o.settle()

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	o.notify(EventPullStarted, nil)

	pull, err := o.store.PullChanges(ctx)
	if err != nil {
		logger.Error("pull failed", logger.ErrorField(err),
			logger.String("project", o.projectID))
		return fmt.Errorf("pull changes: %w", err)
	}
	if pull == nil || pull.Empty() {
		logger.Debug("pull returned no changes", logger.String("project", o.projectID))
		return nil
	}

	o.setState(StateMerging)

	// Their changes join the graph; ours are already applied locally.
	g := o.Graph()
	their := pull.ConcurrentChanges.Their
	classified := Classify(their)
	Apply(g, their)

	// Newly inserted tracks need their audio present before the
	// project can play them. A missing asset degrades to a warning.
	for _, key := range classified.InsertedKeys(model.TableTracks) {
		track, ok := g.Track(key)
		if !ok {
			continue
		}
		if err := o.assets.EnsureLocal(ctx, track); err != nil {
			logger.Warn("asset not available locally",
				logger.String("track", key), logger.ErrorField(err))
		}
	}

	flagged := DetectConflicts(g.Tracks(), pull, o.replicaID)

	o.setState(StatePersisting)
	if len(flagged) > 0 {
		o.notify(EventConflictsDetected, flagged)
		if err := o.entities.SaveEntities(ctx, flagged); err != nil {
			// Flags are lost when this write fails; the next pull
			// re-detects them.
			logger.Error("conflict flags not persisted",
				logger.ErrorField(err), logger.Int("regions", len(flagged)))
		}
	}

	o.setState(StateReloading)
	tracks, err := o.entities.ReloadProject(ctx, o.projectID)
	if err != nil {
		logger.Error("project reload failed", logger.ErrorField(err),
			logger.String("project", o.projectID))
		return fmt.Errorf("reload project: %w", err)
	}
	o.mu.Lock()
	o.graph = model.NewGraph(tracks)
	o.mu.Unlock()

	o.notify(EventProjectReloaded, nil)
	logger.Info("pull merged",
		logger.String("project", o.projectID),
		logger.Int("their_changes", len(their)),
		logger.Int("conflicts", len(flagged)))
	return nil
}

// Push uploads any assets not yet in remote storage, then hands the
// local change set to the store.
func (o *Orchestrator) Push(ctx context.Context) error {
	if !o.transition(StateIdle, StatePushing) {
		return ErrSyncBusy
	}
	o.graphMu.Lock()
	defer o.settle()

	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	for _, track := range o.Graph().Tracks() {
		if track.Uploaded || track.Deleted {
			continue
		}
		if err := o.assets.Upload(ctx, track); err != nil {
			logger.Error("asset upload failed", logger.ErrorField(err),
				logger.String("track", track.ID))
			return fmt.Errorf("upload asset for track %s: %w", track.ID, err)
		}
		track.Uploaded = true
	}

	changes, err := o.store.PendingChanges(ctx)
	if err != nil {
		logger.Error("reading pending changes failed", logger.ErrorField(err))
		return fmt.Errorf("pending changes: %w", err)
	}
	if len(changes) == 0 {
		logger.Debug("nothing to push", logger.String("project", o.projectID))
		return nil
	}

	if err := o.store.PushChanges(ctx, changes); err != nil {
		logger.Error("push failed", logger.ErrorField(err),
			logger.String("project", o.projectID))
		return fmt.Errorf("push changes: %w", err)
	}

	o.notify(EventPushComplete, nil)
	logger.Info("push complete",
		logger.String("project", o.projectID),
		logger.Int("changes", len(changes)))
	return nil
}

// transition moves from -> to atomically; false when the machine is not
// in from.
func (o *Orchestrator) transition(from, to State) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != from {
		return false
	}
	o.state = to
	return true
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

// settle returns the machine to Idle and drains edits queued while the
// operation was in flight. The drain happens before the graph guard
// lifts, so no other sync operation or edit interleaves with it.
func (o *Orchestrator) settle() {
	o.mu.Lock()
	o.state = StateIdle
	queued := o.pending
	o.pending = nil
	o.mu.Unlock()

	for _, edit := range queued {
		edit()
	}
	if len(queued) > 0 {
		logger.Debug("drained queued local edits", logger.Int("count", len(queued)))
	}
	o.graphMu.Unlock()
}

func (o *Orchestrator) notify(event string, payload interface{}) {
	if o.notifier != nil {
		o.notifier.Notify(event, payload)
	}
}
