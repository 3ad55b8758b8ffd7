package history

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Resona/model"
)

func buildGraph(t *testing.T) (*model.Graph, *model.Region) {
	t.Helper()
	region, err := model.NewRegion("track-1", "proj-1", "site-a", 2, 8, 20)
	require.NoError(t, err)
	track := &model.Track{ID: "track-1", ProjectID: "proj-1", Regions: []*model.Region{region}}
	return model.NewGraph([]*model.Track{track}), region
}

func TestLog_UndoRedoRegionDelete(t *testing.T) {
	g, region := buildGraph(t)
	l := NewLog("proj-1")

	res := l.Perform(g, RegionDelete{RegionID: region.ID})
	require.Equal(t, Applied, res)
	assert.True(t, region.Deleted)

	require.Equal(t, Applied, l.Undo(g))
	assert.False(t, region.Deleted)

	require.Equal(t, Applied, l.Redo(g))
	assert.True(t, region.Deleted)
}

func TestLog_UndoRedoCropStart(t *testing.T) {
	g, region := buildGraph(t)
	l := NewLog("proj-1")

	res := l.Perform(g, RegionCropStart{
		RegionID:       region.ID,
		OldStart:       2,
		NewStart:       4,
		OldOffsetStart: 0,
		NewOffsetStart: 2,
	})
	require.Equal(t, Applied, res)
	assert.Equal(t, 4.0, region.Start)
	assert.Equal(t, 2.0, region.OffsetStart)

	require.Equal(t, Applied, l.Undo(g))
	assert.Equal(t, 2.0, region.Start)
	assert.Equal(t, 0.0, region.OffsetStart)

	require.Equal(t, Applied, l.Redo(g))
	assert.Equal(t, 4.0, region.Start)
	assert.Equal(t, 2.0, region.OffsetStart)
}

func TestLog_UndoRedoShift(t *testing.T) {
	g, region := buildGraph(t)
	l := NewLog("proj-1")

	l.Perform(g, RegionShift{
		RegionID: region.ID,
		OldStart: 2, OldEnd: 8,
		NewStart: 10, NewEnd: 16,
	})
	assert.Equal(t, 10.0, region.Start)
	assert.Equal(t, 16.0, region.End)

	l.Undo(g)
	assert.Equal(t, 2.0, region.Start)
	assert.Equal(t, 8.0, region.End)
}

func TestLog_SplitAndUndoResurrectsSourceEnd(t *testing.T) {
	g, source := buildGraph(t)
	l := NewLog("proj-1")

	sibling, err := model.NewRegion("track-1", "proj-1", "site-a", 5, 8, 20)
	require.NoError(t, err)
	g.AddRegion(sibling)

	l.Perform(g, RegionSplit{
		SourceID:  source.ID,
		SiblingID: sibling.ID,
		OldEnd:    8,
		NewEnd:    5,
	})
	assert.Equal(t, 5.0, source.End)
	assert.False(t, sibling.Deleted)

	require.Equal(t, Applied, l.Undo(g))
	assert.Equal(t, 8.0, source.End)
	assert.True(t, sibling.Deleted)

	require.Equal(t, Applied, l.Redo(g))
	assert.Equal(t, 5.0, source.End)
	assert.False(t, sibling.Deleted)
}

func TestLog_TrackDeleteOnlyResurrectsListedRegions(t *testing.T) {
	live, _ := model.NewRegion("track-1", "proj-1", "site-a", 0, 2, 10)
	gone, _ := model.NewRegion("track-1", "proj-1", "site-a", 4, 6, 10)
	gone.Deleted = true
	track := &model.Track{ID: "track-1", Regions: []*model.Region{live, gone}}
	g := model.NewGraph([]*model.Track{track})
	l := NewLog("proj-1")

	// Only the regions live at delete time are recorded.
	l.Perform(g, TrackDelete{TrackIDs: []string{"track-1"}, RegionIDs: []string{live.ID}})
	assert.True(t, track.Deleted)
	assert.True(t, live.Deleted)

	l.Undo(g)
	assert.False(t, track.Deleted)
	assert.False(t, live.Deleted)
	// The previously deleted region stays deleted.
	assert.True(t, gone.Deleted)
}

func TestLog_PerformTruncatesUndoneTail(t *testing.T) {
	g, region := buildGraph(t)
	l := NewLog("proj-1")

	l.Perform(g, RegionShift{RegionID: region.ID, OldStart: 2, OldEnd: 8, NewStart: 3, NewEnd: 9})
	l.Perform(g, RegionShift{RegionID: region.ID, OldStart: 3, OldEnd: 9, NewStart: 4, NewEnd: 10})
	l.Perform(g, RegionDelete{RegionID: region.ID})
	require.Equal(t, 3, l.Len())

	l.Undo(g)
	l.Undo(g)
	require.Equal(t, 2, l.Undos())
	assert.True(t, l.CanRedo())

	// A fresh action discards the two undone entries.
	l.Perform(g, RegionShift{RegionID: region.ID, OldStart: 3, OldEnd: 9, NewStart: 7, NewEnd: 13})
	assert.Equal(t, 2, l.Len())
	assert.Equal(t, 0, l.Undos())
	assert.False(t, l.CanRedo())
	assert.Equal(t, 7.0, region.Start)
}

func TestLog_UndoBeyondHistory(t *testing.T) {
	g, region := buildGraph(t)
	l := NewLog("proj-1")

	assert.Equal(t, NoHistory, l.Undo(g))
	assert.Equal(t, NoHistory, l.Redo(g))

	l.Perform(g, RegionDelete{RegionID: region.ID})
	require.Equal(t, Applied, l.Undo(g))
	assert.Equal(t, NoHistory, l.Undo(g))
}

func TestLog_UndoMissingEntityIsNoop(t *testing.T) {
	g, region := buildGraph(t)
	l := NewLog("proj-1")

	l.Perform(g, RegionDelete{RegionID: region.ID})

	// Simulate a merge replacing the graph without the region.
	empty := model.NewGraph(nil)
	res := l.Undo(empty)
	assert.Equal(t, EntityMissing, res)
	// The cursor still moved: the entry is consumed either way.
	assert.Equal(t, 1, l.Undos())
}

func TestLog_RestoreResetsUndos(t *testing.T) {
	g, region := buildGraph(t)
	l := NewLog("proj-1")
	l.Perform(g, RegionDelete{RegionID: region.ID})
	l.Undo(g)

	l.Restore([]Action{RegionDelete{RegionID: region.ID}})
	assert.Equal(t, 1, l.Len())
	assert.Equal(t, 0, l.Undos())
	assert.True(t, l.CanUndo())
	assert.False(t, l.CanRedo())
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	actions := []Action{
		RegionDelete{RegionID: "r1"},
		RegionCropEnd{RegionID: "r2", OldEnd: 9, NewEnd: 6, OldOffsetEnd: 9, NewOffsetEnd: 6},
		RegionSplit{SourceID: "r3", SiblingID: "r4", OldEnd: 8, NewEnd: 5},
		TrackDelete{TrackIDs: []string{"t1"}, RegionIDs: []string{"r5", "r6"}},
	}

	for _, a := range actions {
		payload, err := Encode(a)
		require.NoError(t, err)

		got, err := Decode(a.Kind(), payload)
		require.NoError(t, err)
		assert.Equal(t, a, got)
	}
}

func TestDecode_UnknownKind(t *testing.T) {
	_, err := Decode(Kind("region-reverse"), []byte(`{}`))
	require.Error(t, err)
}
