// Package workspace is the edit surface over one open project: it
// validates edits, records them in the action log and the replicated
// changelog, persists entity state, and routes everything through the
// sync orchestrator's merge guard so edits never race an in-flight
// merge.
package workspace

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"Resona/core/history"
	coresync "Resona/core/sync"
	"Resona/logger"
	"Resona/model"
	"Resona/repository"
)

// ErrNotFound is returned when an edit references an entity that is not
// in the graph.
var ErrNotFound = errors.New("entity not found")

// HistoryStore persists and rehydrates the action log.
type HistoryStore interface {
	SaveLog(ctx context.Context, log *history.Log) error
	LoadLog(ctx context.Context, projectID string) (*history.Log, error)
}

// ChangeRecorder captures local edits into the replicated changelog.
type ChangeRecorder interface {
	Record(ctx context.Context, rec model.ChangeRecord) error
}

// Workspace binds a project's live graph, history and stores together.
type Workspace struct {
	projectID string
	replicaID string

	orch    *coresync.Orchestrator
	log     *history.Log
	tracks  repository.TrackRepository
	regions repository.RegionRepository
	actions HistoryStore
	changes ChangeRecorder
}

// New creates a workspace. Call Load before serving edits.
func New(projectID, replicaID string, orch *coresync.Orchestrator,
	tracks repository.TrackRepository, regions repository.RegionRepository,
	actions HistoryStore, changes ChangeRecorder) *Workspace {
	return &Workspace{
		projectID: projectID,
		replicaID: replicaID,
		orch:      orch,
		log:       history.NewLog(projectID),
		tracks:    tracks,
		regions:   regions,
		actions:   actions,
		changes:   changes,
	}
}

// Load rehydrates the graph and the persisted action history.
func (w *Workspace) Load(ctx context.Context, store coresync.EntityStore) error {
	tracks, err := store.ReloadProject(ctx, w.projectID)
	if err != nil {
		return fmt.Errorf("load workspace: %w", err)
	}
	w.orch.SetGraph(model.NewGraph(tracks))

	log, err := w.actions.LoadLog(ctx, w.projectID)
	if err != nil {
		return fmt.Errorf("load workspace history: %w", err)
	}
	w.log = log
	return nil
}

// Orchestrator exposes the sync machine for pull/push triggers.
func (w *Workspace) Orchestrator() *coresync.Orchestrator { return w.orch }

// Graph returns the live track graph.
func (w *Workspace) Graph() *model.Graph { return w.orch.Graph() }

// History returns the action log.
func (w *Workspace) History() *history.Log { return w.log }

// AddTrack creates a track with one default region spanning the whole
// asset, the shape every track starts its life in.
func (w *Workspace) AddTrack(ctx context.Context, name string, kind model.TrackKind, filePath string, duration float64) (*model.Track, error) {
	now := time.Now()
	track := &model.Track{
		ID:        uuid.NewString(),
		ProjectID: w.projectID,
		Name:      name,
		Kind:      kind,
		Volume:    1,
		FilePath:  filePath,
		CreatedAt: now,
		UpdatedAt: now,
	}
	region, err := model.NewRegion(track.ID, w.projectID, w.replicaID, 0, duration, duration)
	if err != nil {
		return nil, err
	}
	track.Regions = []*model.Region{region}

	var opErr error
	w.orch.RunLocal(func() {
		w.orch.Graph().AddTrack(track)

		bg := context.Background()
		if err := w.tracks.CreateTrack(bg, track); err != nil {
			opErr = err
			return
		}
		if err := w.regions.CreateRegion(bg, region); err != nil {
			opErr = err
			return
		}
		w.recordInsert(model.TableTracks, track.ID, map[string]string{
			"project_id": track.ProjectID,
			"name":       track.Name,
			"kind":       string(track.Kind),
			"file_path":  track.FilePath,
		})
		w.recordInsert(model.TableRegions, region.ID, regionColumns(region))
	})
	if opErr != nil {
		return nil, fmt.Errorf("add track: %w", opErr)
	}
	return track, nil
}

// PasteRegion creates a region on the track and records the paste so it
// can be undone.
func (w *Workspace) PasteRegion(ctx context.Context, trackID string, start, end, offsetStart, offsetEnd, totalDuration float64) (*model.Region, error) {
	region, err := model.NewRegion(trackID, w.projectID, w.replicaID, start, end, totalDuration)
	if err != nil {
		return nil, err
	}
	region.OffsetStart = offsetStart
	region.OffsetEnd = offsetEnd

	var opErr error
	w.orch.RunLocal(func() {
		g := w.orch.Graph()
		if _, ok := g.Track(trackID); !ok {
			opErr = fmt.Errorf("track %s: %w", trackID, ErrNotFound)
			return
		}
		g.AddRegion(region)
		w.log.Perform(g, history.RegionPaste{RegionID: region.ID})

		bg := context.Background()
		if err := w.regions.CreateRegion(bg, region); err != nil {
			opErr = err
			return
		}
		w.recordInsert(model.TableRegions, region.ID, regionColumns(region))
		opErr = w.saveHistory(bg)
	})
	if opErr != nil {
		return nil, fmt.Errorf("paste region: %w", opErr)
	}
	return region, nil
}

// DeleteRegion soft-deletes a region through the action log.
func (w *Workspace) DeleteRegion(ctx context.Context, regionID string) error {
	var opErr error
	w.orch.RunLocal(func() {
		g := w.orch.Graph()
		region, ok := g.Region(regionID)
		if !ok {
			opErr = fmt.Errorf("region %s: %w", regionID, ErrNotFound)
			return
		}
		w.log.Perform(g, history.RegionDelete{RegionID: regionID})
		opErr = w.persistRegion(region)
	})
	if opErr != nil {
		return fmt.Errorf("delete region: %w", opErr)
	}
	return nil
}

// CropRegionStart moves the region's left edge and trim offset.
func (w *Workspace) CropRegionStart(ctx context.Context, regionID string, newStart, newOffsetStart float64) error {
	var opErr error
	w.orch.RunLocal(func() {
		g := w.orch.Graph()
		region, ok := g.Region(regionID)
		if !ok {
			opErr = fmt.Errorf("region %s: %w", regionID, ErrNotFound)
			return
		}
		action := history.RegionCropStart{
			RegionID:       regionID,
			OldStart:       region.Start,
			NewStart:       newStart,
			OldOffsetStart: region.OffsetStart,
			NewOffsetStart: newOffsetStart,
		}
		if err := region.SetInterval(newStart, region.End); err != nil {
			opErr = err
			return
		}
		region.OffsetStart = newOffsetStart
		w.log.Record(action)
		opErr = w.persistRegion(region)
	})
	if opErr != nil {
		return fmt.Errorf("crop region start: %w", opErr)
	}
	return nil
}

// CropRegionEnd moves the region's right edge and trim offset.
func (w *Workspace) CropRegionEnd(ctx context.Context, regionID string, newEnd, newOffsetEnd float64) error {
	var opErr error
	w.orch.RunLocal(func() {
		g := w.orch.Graph()
		region, ok := g.Region(regionID)
		if !ok {
			opErr = fmt.Errorf("region %s: %w", regionID, ErrNotFound)
			return
		}
		action := history.RegionCropEnd{
			RegionID:     regionID,
			OldEnd:       region.End,
			NewEnd:       newEnd,
			OldOffsetEnd: region.OffsetEnd,
			NewOffsetEnd: newOffsetEnd,
		}
		if err := region.SetInterval(region.Start, newEnd); err != nil {
			opErr = err
			return
		}
		region.OffsetEnd = newOffsetEnd
		w.log.Record(action)
		opErr = w.persistRegion(region)
	})
	if opErr != nil {
		return fmt.Errorf("crop region end: %w", opErr)
	}
	return nil
}

// ShiftRegion moves a region along the timeline.
func (w *Workspace) ShiftRegion(ctx context.Context, regionID string, newStart float64) error {
	var opErr error
	w.orch.RunLocal(func() {
		g := w.orch.Graph()
		region, ok := g.Region(regionID)
		if !ok {
			opErr = fmt.Errorf("region %s: %w", regionID, ErrNotFound)
			return
		}
		length := region.End - region.Start
		action := history.RegionShift{
			RegionID: regionID,
			OldStart: region.Start,
			OldEnd:   region.End,
			NewStart: newStart,
			NewEnd:   newStart + length,
		}
		if err := region.SetInterval(action.NewStart, action.NewEnd); err != nil {
			opErr = err
			return
		}
		w.log.Record(action)
		opErr = w.persistRegion(region)
	})
	if opErr != nil {
		return fmt.Errorf("shift region: %w", opErr)
	}
	return nil
}

// SplitRegion cuts a region at the given timeline position. The source
// keeps the left part; a new sibling carries the right part.
func (w *Workspace) SplitRegion(ctx context.Context, regionID string, at float64) (*model.Region, error) {
	var (
		sibling *model.Region
		opErr   error
	)
	w.orch.RunLocal(func() {
		g := w.orch.Graph()
		source, ok := g.Region(regionID)
		if !ok {
			opErr = fmt.Errorf("region %s: %w", regionID, ErrNotFound)
			return
		}
		if at <= source.Start || at >= source.End {
			opErr = fmt.Errorf("split point %v outside region %s: %w", at, regionID, model.ErrInvalidInterval)
			return
		}

		sib, err := model.NewRegion(source.TrackID, w.projectID, w.replicaID,
			at, source.End, source.TotalDuration)
		if err != nil {
			opErr = err
			return
		}
		sib.OffsetStart = source.OffsetStart + (at - source.Start)
		sib.OffsetEnd = source.OffsetEnd
		g.AddRegion(sib)

		w.log.Perform(g, history.RegionSplit{
			SourceID:  source.ID,
			SiblingID: sib.ID,
			OldEnd:    source.End,
			NewEnd:    at,
		})

		bg := context.Background()
		if err := w.regions.CreateRegion(bg, sib); err != nil {
			opErr = err
			return
		}
		w.recordInsert(model.TableRegions, sib.ID, regionColumns(sib))
		if err := w.persistRegion(source); err != nil {
			opErr = err
			return
		}
		sibling = sib
	})
	if opErr != nil {
		return nil, fmt.Errorf("split region: %w", opErr)
	}
	return sibling, nil
}

// DeleteTrack soft-deletes a track together with its live regions.
func (w *Workspace) DeleteTrack(ctx context.Context, trackID string) error {
	var opErr error
	w.orch.RunLocal(func() {
		g := w.orch.Graph()
		track, ok := g.Track(trackID)
		if !ok {
			opErr = fmt.Errorf("track %s: %w", trackID, ErrNotFound)
			return
		}
		live := track.LiveRegions()
		regionIDs := make([]string, 0, len(live))
		for _, r := range live {
			regionIDs = append(regionIDs, r.ID)
		}
		w.log.Perform(g, history.TrackDelete{
			TrackIDs:  []string{trackID},
			RegionIDs: regionIDs,
		})

		bg := context.Background()
		if err := w.tracks.SoftDeleteTrack(bg, trackID); err != nil {
			opErr = err
			return
		}
		w.recordChange(model.ChangeDelete, model.TableTracks, trackID, "", "")
		for _, id := range regionIDs {
			w.recordChange(model.ChangeDelete, model.TableRegions, id, "", "")
		}
		opErr = w.saveHistory(bg)
	})
	if opErr != nil {
		return fmt.Errorf("delete track: %w", opErr)
	}
	return nil
}

// Undo rolls back the latest applied action and persists the entities
// it touched.
func (w *Workspace) Undo(ctx context.Context) (history.ApplyResult, error) {
	return w.step(func(g *model.Graph) (history.ApplyResult, history.Action) {
		if !w.log.CanUndo() {
			return history.NoHistory, nil
		}
		a := w.log.Actions()[w.log.Len()-w.log.Undos()-1]
		return w.log.Undo(g), a
	})
}

// Redo reapplies the most recently undone action.
func (w *Workspace) Redo(ctx context.Context) (history.ApplyResult, error) {
	return w.step(func(g *model.Graph) (history.ApplyResult, history.Action) {
		if !w.log.CanRedo() {
			return history.NoHistory, nil
		}
		a := w.log.Actions()[w.log.Len()-w.log.Undos()]
		return w.log.Redo(g), a
	})
}

func (w *Workspace) step(move func(g *model.Graph) (history.ApplyResult, history.Action)) (history.ApplyResult, error) {
	var (
		res   history.ApplyResult
		opErr error
	)
	w.orch.RunLocal(func() {
		g := w.orch.Graph()
		result, action := move(g)
		res = result
		if action == nil {
			return
		}
		// EntityMissing still moves the cursor; checkpoint either way.
		opErr = w.persistTouched(g, action)
	})
	if opErr != nil {
		return res, fmt.Errorf("history step: %w", opErr)
	}
	return res, nil
}

// Conflicts lists the live regions currently flagged by the detector.
func (w *Workspace) Conflicts() []*model.Region {
	var flagged []*model.Region
	for _, t := range w.orch.Graph().Tracks() {
		for _, r := range t.LiveRegions() {
			if r.Conflicts {
				flagged = append(flagged, r)
			}
		}
	}
	return flagged
}

// AcceptConflict keeps the flagged region and clears its marker. Only
// explicit user resolution clears conflict flags.
func (w *Workspace) AcceptConflict(ctx context.Context, regionID string) error {
	return w.resolveConflict(regionID, false)
}

// RejectConflict discards the flagged region: it is soft-deleted and
// its marker cleared.
func (w *Workspace) RejectConflict(ctx context.Context, regionID string) error {
	return w.resolveConflict(regionID, true)
}

func (w *Workspace) resolveConflict(regionID string, discard bool) error {
	var opErr error
	w.orch.RunLocal(func() {
		g := w.orch.Graph()
		region, ok := g.Region(regionID)
		if !ok {
			opErr = fmt.Errorf("region %s: %w", regionID, ErrNotFound)
			return
		}
		if !region.Conflicts {
			opErr = fmt.Errorf("region %s is not flagged", regionID)
			return
		}
		region.ClearConflict()
		if discard {
			region.Deleted = true
		}
		opErr = w.persistRegion(region)
	})
	if opErr != nil {
		return fmt.Errorf("resolve conflict: %w", opErr)
	}
	return nil
}

// persistRegion writes the region row, emits changelog updates for its
// mutable columns, and checkpoints the action history.
func (w *Workspace) persistRegion(region *model.Region) error {
	bg := context.Background()
	if err := w.regions.UpdateRegion(bg, region); err != nil {
		return err
	}
	for column, value := range mutableRegionColumns(region) {
		w.recordChange(model.ChangeUpdate, model.TableRegions, region.ID, column, value)
	}
	return w.saveHistory(bg)
}

// persistTouched persists every entity an undo/redo step touched.
func (w *Workspace) persistTouched(g *model.Graph, action history.Action) error {
	bg := context.Background()
	regionIDs, trackIDs := action.Touched()
	for _, id := range regionIDs {
		region, ok := g.Region(id)
		if !ok {
			continue
		}
		if err := w.regions.UpdateRegion(bg, region); err != nil {
			return err
		}
		for column, value := range mutableRegionColumns(region) {
			w.recordChange(model.ChangeUpdate, model.TableRegions, region.ID, column, value)
		}
	}
	for _, id := range trackIDs {
		track, ok := g.Track(id)
		if !ok {
			continue
		}
		if track.Deleted {
			if err := w.tracks.SoftDeleteTrack(bg, id); err != nil {
				return err
			}
			w.recordChange(model.ChangeDelete, model.TableTracks, id, "", "")
		} else {
			// The undelete must reach the tracks table too, or the
			// next reload re-deletes the track.
			if err := w.tracks.UpdateTrackDeleted(bg, id, false); err != nil {
				return err
			}
			w.recordChange(model.ChangeUpdate, model.TableTracks, id, "deleted", "false")
		}
	}
	return w.saveHistory(bg)
}

func (w *Workspace) saveHistory(ctx context.Context) error {
	if err := w.actions.SaveLog(ctx, w.log); err != nil {
		return err
	}
	return nil
}

// recordInsert emits an insert record followed by column updates, the
// shape the projector consumes on the other side.
func (w *Workspace) recordInsert(table, pk string, columns map[string]string) {
	w.recordChange(model.ChangeInsert, table, pk, "", "")
	for column, value := range columns {
		w.recordChange(model.ChangeUpdate, table, pk, column, value)
	}
}

func (w *Workspace) recordChange(kind model.ChangeKind, table, pk, column, value string) {
	rec := model.ChangeRecord{
		Table:      table,
		Kind:       kind,
		PrimaryKey: pk,
		Column:     column,
		Value:      value,
		Author:     w.replicaID,
		AppliedAt:  time.Now(),
	}
	if err := w.changes.Record(context.Background(), rec); err != nil {
		// A lost changelog record means the edit will not replicate
		// until a later edit touches the same column; logged, not
		// fatal.
		logger.Error("failed to record change", logger.ErrorField(err),
			logger.String("table", table), logger.String("pk", pk))
	}
}

func regionColumns(r *model.Region) map[string]string {
	cols := mutableRegionColumns(r)
	cols["track_id"] = r.TrackID
	cols["project_id"] = r.ProjectID
	cols["total_duration"] = formatFloat(r.TotalDuration)
	cols["created_by"] = r.CreatedBy
	return cols
}

func mutableRegionColumns(r *model.Region) map[string]string {
	return map[string]string{
		"start":          formatFloat(r.Start),
		"end":            formatFloat(r.End),
		"offset_start":   formatFloat(r.OffsetStart),
		"offset_end":     formatFloat(r.OffsetEnd),
		"conflicts":      strconv.FormatBool(r.Conflicts),
		"conflicts_with": r.ConflictsWith,
		"deleted":        strconv.FormatBool(r.Deleted),
	}
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
