package sync

import (
	"context"
	"errors"
	stdsync "sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Resona/model"
)

type fakeChangelog struct {
	pull     *model.PullResult
	pullErr  error
	pending  []model.ChangeRecord
	pushed   []model.ChangeRecord
	onPull   func()
	pullDone bool
}

func (f *fakeChangelog) PullChanges(ctx context.Context) (*model.PullResult, error) {
	if f.onPull != nil {
		f.onPull()
	}
	f.pullDone = true
	return f.pull, f.pullErr
}

func (f *fakeChangelog) PendingChanges(ctx context.Context) ([]model.ChangeRecord, error) {
	return f.pending, nil
}

func (f *fakeChangelog) PushChanges(ctx context.Context, changes []model.ChangeRecord) error {
	f.pushed = append(f.pushed, changes...)
	return nil
}

type fakeEntities struct {
	saved     []*model.Region
	saveErr   error
	reload    []*model.Track
	reloadErr error
}

func (f *fakeEntities) SaveEntities(ctx context.Context, regions []*model.Region) error {
	f.saved = append(f.saved, regions...)
	return f.saveErr
}

func (f *fakeEntities) ReloadProject(ctx context.Context, projectID string) ([]*model.Track, error) {
	return f.reload, f.reloadErr
}

type fakeAssets struct {
	ensured  []string
	uploaded []string
	failFor  string
}

func (f *fakeAssets) EnsureLocal(ctx context.Context, track *model.Track) error {
	f.ensured = append(f.ensured, track.ID)
	if track.ID == f.failFor {
		return errors.New("object not found")
	}
	return nil
}

func (f *fakeAssets) Upload(ctx context.Context, track *model.Track) error {
	f.uploaded = append(f.uploaded, track.ID)
	if track.ID == f.failFor {
		return errors.New("connection refused")
	}
	return nil
}

type recordedEvent struct {
	event   string
	payload interface{}
}

type fakeNotifier struct {
	events []recordedEvent
}

func (f *fakeNotifier) Notify(event string, payload interface{}) {
	f.events = append(f.events, recordedEvent{event, payload})
}

func (f *fakeNotifier) names() []string {
	out := make([]string, len(f.events))
	for i, e := range f.events {
		out[i] = e.event
	}
	return out
}

func newTestOrchestrator(store ChangelogStore, entities EntityStore, assets AssetStore, n Notifier) *Orchestrator {
	return NewOrchestrator("proj-1", "site-1", time.Second, store, entities, assets, n)
}

func TestPull_EmptyResultShortCircuits(t *testing.T) {
	store := &fakeChangelog{pull: &model.PullResult{}}
	entities := &fakeEntities{}
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(store, entities, &fakeAssets{}, notifier)

	require.NoError(t, o.Pull(context.Background()))

	assert.Equal(t, StateIdle, o.State())
	assert.True(t, store.pullDone)
	// Only the pull_started event: no merge, no reload.
	assert.Equal(t, []string{EventPullStarted}, notifier.names())
	assert.Empty(t, entities.saved)
}

func TestPull_MergesFlagsPersistsAndReloads(t *testing.T) {
	ours, err := model.NewRegion("track-1", "proj-1", "site-1", 0, 5, 10)
	require.NoError(t, err)
	ours.ID = "region-a"
	track := &model.Track{ID: "track-1", ProjectID: "proj-1", Uploaded: true, Regions: []*model.Region{ours}}

	store := &fakeChangelog{pull: &model.PullResult{
		ConcurrentChanges: model.ConcurrentChanges{
			Their: []model.ChangeRecord{
				{Table: model.TableRegions, Kind: model.ChangeInsert, PrimaryKey: "region-b", Author: "site-2"},
				{Table: model.TableRegions, Kind: model.ChangeUpdate, PrimaryKey: "region-b", Column: "track_id", Value: "track-1", Author: "site-2"},
				{Table: model.TableRegions, Kind: model.ChangeUpdate, PrimaryKey: "region-b", Column: "start", Value: "3", Author: "site-2"},
				{Table: model.TableRegions, Kind: model.ChangeUpdate, PrimaryKey: "region-b", Column: "end", Value: "8", Author: "site-2"},
			},
		},
		CommonAncestor: "41",
	}}
	reloaded := &model.Track{ID: "track-1", ProjectID: "proj-1"}
	entities := &fakeEntities{reload: []*model.Track{reloaded}}
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(store, entities, &fakeAssets{}, notifier)
	o.SetGraph(model.NewGraph([]*model.Track{track}))

	require.NoError(t, o.Pull(context.Background()))

	// The remote region lost and its flag was persisted.
	require.Len(t, entities.saved, 1)
	assert.Equal(t, "region-b", entities.saved[0].ID)
	assert.Equal(t, "region-a", entities.saved[0].ConflictsWith)

	// The graph was rebuilt from the store afterwards.
	assert.Equal(t, []*model.Track{reloaded}, o.Graph().Tracks())
	assert.Equal(t, StateIdle, o.State())
	assert.Equal(t,
		[]string{EventPullStarted, EventConflictsDetected, EventProjectReloaded},
		notifier.names())
}

func TestPull_EnsuresAssetsForInsertedTracks(t *testing.T) {
	store := &fakeChangelog{pull: &model.PullResult{
		ConcurrentChanges: model.ConcurrentChanges{
			Their: []model.ChangeRecord{
				{Table: model.TableTracks, Kind: model.ChangeInsert, PrimaryKey: "track-2", Author: "site-2"},
				{Table: model.TableTracks, Kind: model.ChangeUpdate, PrimaryKey: "track-2", Column: "name", Value: "Vox", Author: "site-2"},
			},
		},
	}}
	assets := &fakeAssets{failFor: "track-2"}
	entities := &fakeEntities{}
	o := newTestOrchestrator(store, entities, assets, nil)

	// A missing remote asset degrades to a warning, never a failed pull.
	require.NoError(t, o.Pull(context.Background()))
	assert.Equal(t, []string{"track-2"}, assets.ensured)
	assert.Equal(t, StateIdle, o.State())
}

func TestPull_StoreErrorReturnsToIdle(t *testing.T) {
	store := &fakeChangelog{pullErr: errors.New("connection reset")}
	o := newTestOrchestrator(store, &fakeEntities{}, &fakeAssets{}, nil)

	err := o.Pull(context.Background())
	require.Error(t, err)
	assert.Equal(t, StateIdle, o.State())

	// The machine recovers: a later pull proceeds.
	store.pullErr = nil
	store.pull = &model.PullResult{}
	require.NoError(t, o.Pull(context.Background()))
}

func TestPull_ReloadErrorReturnsToIdle(t *testing.T) {
	store := &fakeChangelog{pull: &model.PullResult{
		ConcurrentChanges: model.ConcurrentChanges{
			Their: []model.ChangeRecord{
				{Table: model.TableTracks, Kind: model.ChangeInsert, PrimaryKey: "track-2", Author: "site-2"},
			},
		},
	}}
	entities := &fakeEntities{reloadErr: errors.New("gone away")}
	o := newTestOrchestrator(store, entities, &fakeAssets{}, nil)

	require.Error(t, o.Pull(context.Background()))
	assert.Equal(t, StateIdle, o.State())
}

func TestPull_RejectsConcurrentOperations(t *testing.T) {
	store := &fakeChangelog{pull: &model.PullResult{}}
	o := newTestOrchestrator(store, &fakeEntities{}, &fakeAssets{}, nil)

	var innerPull, innerPush error
	store.onPull = func() {
		innerPull = o.Pull(context.Background())
		innerPush = o.Push(context.Background())
	}

	require.NoError(t, o.Pull(context.Background()))
	assert.ErrorIs(t, innerPull, ErrSyncBusy)
	assert.ErrorIs(t, innerPush, ErrSyncBusy)
}

func TestRunLocal_QueuesEditsDuringMerge(t *testing.T) {
	store := &fakeChangelog{pull: &model.PullResult{}}
	o := newTestOrchestrator(store, &fakeEntities{}, &fakeAssets{}, nil)

	var order []string
	store.onPull = func() {
		ran := o.RunLocal(func() { order = append(order, "edit") })
		assert.False(t, ran, "edit during a pull must be deferred")
		order = append(order, "pull")
	}

	require.NoError(t, o.Pull(context.Background()))
	// The queued edit ran after the machine settled, not mid-merge.
	assert.Equal(t, []string{"pull", "edit"}, order)

	ran := o.RunLocal(func() { order = append(order, "idle-edit") })
	assert.True(t, ran)
	assert.Equal(t, []string{"pull", "edit", "idle-edit"}, order)
}

func TestPull_WaitsForInFlightLocalEdit(t *testing.T) {
	store := &fakeChangelog{pull: &model.PullResult{}}
	o := newTestOrchestrator(store, &fakeEntities{}, &fakeAssets{}, nil)

	editStarted := make(chan struct{})
	editRelease := make(chan struct{})
	editDone := make(chan struct{})
	go func() {
		o.RunLocal(func() {
			close(editStarted)
			<-editRelease
		})
		close(editDone)
	}()
	<-editStarted

	pullDone := make(chan error, 1)
	go func() { pullDone <- o.Pull(context.Background()) }()

	// The merge must not proceed while the admitted edit is running.
	select {
	case <-pullDone:
		t.Fatal("pull completed while a local edit was still running")
	case <-time.After(50 * time.Millisecond):
	}
	assert.False(t, store.pullDone)

	close(editRelease)
	<-editDone
	require.NoError(t, <-pullDone)
	assert.Equal(t, StateIdle, o.State())
}

func TestRunLocal_SerializesConcurrentEdits(t *testing.T) {
	o := newTestOrchestrator(&fakeChangelog{}, &fakeEntities{}, &fakeAssets{}, nil)

	var wg stdsync.WaitGroup
	count := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.RunLocal(func() { count++ })
		}()
	}
	wg.Wait()

	assert.Equal(t, 32, count)
}

func TestPush_UploadsPendingAssetsAndChanges(t *testing.T) {
	t1 := &model.Track{ID: "track-1", Uploaded: false}
	t2 := &model.Track{ID: "track-2", Uploaded: true}
	t3 := &model.Track{ID: "track-3", Uploaded: false, Deleted: true}

	store := &fakeChangelog{pending: []model.ChangeRecord{
		{Table: model.TableRegions, Kind: model.ChangeUpdate, PrimaryKey: "r1", Column: "start", Value: "2", Author: "site-1"},
	}}
	assets := &fakeAssets{}
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(store, &fakeEntities{}, assets, notifier)
	o.SetGraph(model.NewGraph([]*model.Track{t1, t2, t3}))

	require.NoError(t, o.Push(context.Background()))

	// Only the live, not-yet-uploaded track goes out.
	assert.Equal(t, []string{"track-1"}, assets.uploaded)
	assert.True(t, t1.Uploaded)
	assert.Len(t, store.pushed, 1)
	assert.Equal(t, []string{EventPushComplete}, notifier.names())
	assert.Equal(t, StateIdle, o.State())
}

func TestPush_NothingPendingSkipsStore(t *testing.T) {
	store := &fakeChangelog{}
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(store, &fakeEntities{}, &fakeAssets{}, notifier)

	require.NoError(t, o.Push(context.Background()))
	assert.Empty(t, store.pushed)
	assert.Empty(t, notifier.events)
}

func TestPush_UploadFailureAborts(t *testing.T) {
	t1 := &model.Track{ID: "track-1"}
	assets := &fakeAssets{failFor: "track-1"}
	store := &fakeChangelog{pending: []model.ChangeRecord{
		{Table: model.TableRegions, Kind: model.ChangeUpdate, PrimaryKey: "r1", Author: "site-1"},
	}}
	o := newTestOrchestrator(store, &fakeEntities{}, assets, nil)
	o.SetGraph(model.NewGraph([]*model.Track{t1}))

	require.Error(t, o.Push(context.Background()))
	assert.False(t, t1.Uploaded)
	assert.Empty(t, store.pushed)
	assert.Equal(t, StateIdle, o.State())
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "pulling", StatePulling.String())
	assert.Equal(t, "merging", StateMerging.String())
	assert.Equal(t, "persisting", StatePersisting.String())
	assert.Equal(t, "reloading", StateReloading.String())
	assert.Equal(t, "pushing", StatePushing.String())
}
