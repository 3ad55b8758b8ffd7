package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Resona/model"
)

func TestApply_InsertTrackThenColumns(t *testing.T) {
	g := model.NewGraph(nil)

	Apply(g, []model.ChangeRecord{
		{Table: model.TableTracks, Kind: model.ChangeInsert, PrimaryKey: "t1", Author: "site-2"},
		{Table: model.TableTracks, Kind: model.ChangeUpdate, PrimaryKey: "t1", Column: "name", Value: "Bass"},
		{Table: model.TableTracks, Kind: model.ChangeUpdate, PrimaryKey: "t1", Column: "volume", Value: "0.8"},
	})

	track, ok := g.Track("t1")
	require.True(t, ok)
	assert.Equal(t, "Bass", track.Name)
	assert.Equal(t, 0.8, track.Volume)
	assert.Equal(t, model.TrackKindAudio, track.Kind)
}

func TestApply_InsertRegionAttachesToTrack(t *testing.T) {
	track := &model.Track{ID: "t1"}
	g := model.NewGraph([]*model.Track{track})

	Apply(g, []model.ChangeRecord{
		{Table: model.TableRegions, Kind: model.ChangeInsert, PrimaryKey: "r1", Author: "site-2"},
		{Table: model.TableRegions, Kind: model.ChangeUpdate, PrimaryKey: "r1", Column: "track_id", Value: "t1"},
		{Table: model.TableRegions, Kind: model.ChangeUpdate, PrimaryKey: "r1", Column: "start", Value: "1.5"},
		{Table: model.TableRegions, Kind: model.ChangeUpdate, PrimaryKey: "r1", Column: "end", Value: "4"},
	})

	region, ok := g.Region("r1")
	require.True(t, ok)
	assert.Equal(t, "site-2", region.CreatedBy)
	assert.Equal(t, 1.5, region.Start)
	assert.Equal(t, 4.0, region.End)
	// The region is reachable through its track once track_id lands.
	require.Len(t, track.Regions, 1)
	assert.Equal(t, "r1", track.Regions[0].ID)
}

func TestApply_DeleteTrackCascades(t *testing.T) {
	region, err := model.NewRegion("t1", "proj-1", "site-1", 0, 4, 10)
	require.NoError(t, err)
	track := &model.Track{ID: "t1", Regions: []*model.Region{region}}
	g := model.NewGraph([]*model.Track{track})

	Apply(g, []model.ChangeRecord{
		{Table: model.TableTracks, Kind: model.ChangeDelete, PrimaryKey: "t1"},
	})

	assert.True(t, track.Deleted)
	assert.True(t, region.Deleted)
}

func TestApply_UpdateUnknownEntityIsSkipped(t *testing.T) {
	g := model.NewGraph(nil)

	// Must not panic, must not create anything.
	Apply(g, []model.ChangeRecord{
		{Table: model.TableRegions, Kind: model.ChangeUpdate, PrimaryKey: "ghost", Column: "start", Value: "1"},
		{Table: model.TableTracks, Kind: model.ChangeDelete, PrimaryKey: "ghost"},
		{Table: "playlists", Kind: model.ChangeUpdate, PrimaryKey: "p1"},
	})

	_, ok := g.Region("ghost")
	assert.False(t, ok)
	_, ok = g.Track("ghost")
	assert.False(t, ok)
}

func TestApply_MalformedValueKeepsPrevious(t *testing.T) {
	region, err := model.NewRegion("t1", "proj-1", "site-1", 2, 4, 10)
	require.NoError(t, err)
	track := &model.Track{ID: "t1", Regions: []*model.Region{region}}
	g := model.NewGraph([]*model.Track{track})

	Apply(g, []model.ChangeRecord{
		{Table: model.TableRegions, Kind: model.ChangeUpdate, PrimaryKey: region.ID, Column: "start", Value: "not-a-number"},
	})

	assert.Equal(t, 2.0, region.Start)
}

func TestApply_TotalDurationImmutableOnceSet(t *testing.T) {
	region, err := model.NewRegion("t1", "proj-1", "site-1", 0, 4, 10)
	require.NoError(t, err)
	track := &model.Track{ID: "t1", Regions: []*model.Region{region}}
	g := model.NewGraph([]*model.Track{track})

	Apply(g, []model.ChangeRecord{
		{Table: model.TableRegions, Kind: model.ChangeUpdate, PrimaryKey: region.ID, Column: "total_duration", Value: "99"},
	})

	assert.Equal(t, 10.0, region.TotalDuration)
}

func TestApply_InsertIsIdempotent(t *testing.T) {
	g := model.NewGraph(nil)

	Apply(g, []model.ChangeRecord{
		{Table: model.TableTracks, Kind: model.ChangeInsert, PrimaryKey: "t1"},
		{Table: model.TableTracks, Kind: model.ChangeUpdate, PrimaryKey: "t1", Column: "name", Value: "Keys"},
		{Table: model.TableTracks, Kind: model.ChangeInsert, PrimaryKey: "t1"},
	})

	track, ok := g.Track("t1")
	require.True(t, ok)
	assert.Equal(t, "Keys", track.Name)
	assert.Len(t, g.Tracks(), 1)
}
