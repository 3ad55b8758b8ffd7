package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Resona/model"
)

func regionPull() *model.PullResult {
	return &model.PullResult{
		ConcurrentChanges: model.ConcurrentChanges{
			Their: []model.ChangeRecord{
				{Table: model.TableRegions, Kind: model.ChangeUpdate, PrimaryKey: "x", Author: "site-2"},
			},
		},
	}
}

func newTestRegion(t *testing.T, id, trackID, author string, start, end float64) *model.Region {
	t.Helper()
	r, err := model.NewRegion(trackID, "proj-1", author, start, end, 100)
	require.NoError(t, err)
	r.ID = id
	return r
}

func TestDetectConflicts_RemoteRegionLoses(t *testing.T) {
	ours := newTestRegion(t, "region-a", "track-1", "site-1", 0, 5)
	theirs := newTestRegion(t, "region-b", "track-1", "site-2", 3, 8)
	track := &model.Track{ID: "track-1", Regions: []*model.Region{ours, theirs}}

	flagged := DetectConflicts([]*model.Track{track}, regionPull(), "site-1")

	require.Len(t, flagged, 1)
	assert.Equal(t, "region-b", flagged[0].ID)
	assert.True(t, theirs.Conflicts)
	assert.Equal(t, "region-a", theirs.ConflictsWith)
	assert.False(t, ours.Conflicts)
}

func TestDetectConflicts_NoOverlapNoFlag(t *testing.T) {
	ours := newTestRegion(t, "region-a", "track-1", "site-1", 0, 5)
	theirs := newTestRegion(t, "region-b", "track-1", "site-2", 5, 9)
	track := &model.Track{ID: "track-1", Regions: []*model.Region{ours, theirs}}

	flagged := DetectConflicts([]*model.Track{track}, regionPull(), "site-1")
	assert.Empty(t, flagged)
	assert.False(t, ours.Conflicts)
	assert.False(t, theirs.Conflicts)
}

func TestDetectConflicts_EpsilonBoundary(t *testing.T) {
	// An incursion below epsilon counts as touching, not overlapping.
	ours := newTestRegion(t, "region-a", "track-1", "site-1", 0, 5.0000001)
	theirs := newTestRegion(t, "region-b", "track-1", "site-2", 5, 9)
	track := &model.Track{ID: "track-1", Regions: []*model.Region{ours, theirs}}

	flagged := DetectConflicts([]*model.Track{track}, regionPull(), "site-1")
	assert.Empty(t, flagged)

	// Just past epsilon the same pair overlaps and is flagged.
	ours2 := newTestRegion(t, "region-c", "track-2", "site-1", 0, 5)
	theirs2 := newTestRegion(t, "region-d", "track-2", "site-2", 4.99999, 9)
	track2 := &model.Track{ID: "track-2", Regions: []*model.Region{ours2, theirs2}}

	flagged = DetectConflicts([]*model.Track{track2}, regionPull(), "site-1")
	require.Len(t, flagged, 1)
	assert.Equal(t, "region-d", flagged[0].ID)
}

func TestDetectConflicts_SameAuthorNeverConflicts(t *testing.T) {
	a := newTestRegion(t, "region-a", "track-1", "site-2", 0, 5)
	b := newTestRegion(t, "region-b", "track-1", "site-2", 3, 8)
	track := &model.Track{ID: "track-1", Regions: []*model.Region{a, b}}

	flagged := DetectConflicts([]*model.Track{track}, regionPull(), "site-1")
	assert.Empty(t, flagged)
}

func TestDetectConflicts_DeletedRegionsIgnored(t *testing.T) {
	ours := newTestRegion(t, "region-a", "track-1", "site-1", 0, 5)
	theirs := newTestRegion(t, "region-b", "track-1", "site-2", 3, 8)
	theirs.Deleted = true
	track := &model.Track{ID: "track-1", Regions: []*model.Region{ours, theirs}}

	flagged := DetectConflicts([]*model.Track{track}, regionPull(), "site-1")
	assert.Empty(t, flagged)
}

func TestDetectConflicts_DifferentTracksNeverConflict(t *testing.T) {
	ours := newTestRegion(t, "region-a", "track-1", "site-1", 0, 5)
	theirs := newTestRegion(t, "region-b", "track-2", "site-2", 3, 8)
	t1 := &model.Track{ID: "track-1", Regions: []*model.Region{ours}}
	t2 := &model.Track{ID: "track-2", Regions: []*model.Region{theirs}}

	flagged := DetectConflicts([]*model.Track{t1, t2}, regionPull(), "site-1")
	assert.Empty(t, flagged)
}

func TestDetectConflicts_NeitherLocalTieBreaksOnID(t *testing.T) {
	a := newTestRegion(t, "region-a", "track-1", "site-2", 0, 5)
	b := newTestRegion(t, "region-b", "track-1", "site-3", 3, 8)
	track := &model.Track{ID: "track-1", Regions: []*model.Region{a, b}}

	flagged := DetectConflicts([]*model.Track{track}, regionPull(), "site-1")
	require.Len(t, flagged, 1)
	// The lexicographically smaller id loses regardless of scan order.
	assert.Equal(t, "region-a", flagged[0].ID)
	assert.Equal(t, "region-b", a.ConflictsWith)
	assert.False(t, b.Conflicts)
}

func TestDetectConflicts_SkipsWhenRegionsUntouched(t *testing.T) {
	ours := newTestRegion(t, "region-a", "track-1", "site-1", 0, 5)
	theirs := newTestRegion(t, "region-b", "track-1", "site-2", 3, 8)
	track := &model.Track{ID: "track-1", Regions: []*model.Region{ours, theirs}}

	pull := &model.PullResult{
		ConcurrentChanges: model.ConcurrentChanges{
			Their: []model.ChangeRecord{
				{Table: model.TableTracks, Kind: model.ChangeUpdate, PrimaryKey: "track-1", Author: "site-2"},
			},
		},
	}
	flagged := DetectConflicts([]*model.Track{track}, pull, "site-1")
	assert.Empty(t, flagged)
	assert.False(t, theirs.Conflicts)

	flagged = DetectConflicts([]*model.Track{track}, nil, "site-1")
	assert.Empty(t, flagged)
}

func TestDetectConflicts_Idempotent(t *testing.T) {
	ours := newTestRegion(t, "region-a", "track-1", "site-1", 0, 5)
	theirs := newTestRegion(t, "region-b", "track-1", "site-2", 3, 8)
	track := &model.Track{ID: "track-1", Regions: []*model.Region{ours, theirs}}

	first := DetectConflicts([]*model.Track{track}, regionPull(), "site-1")
	second := DetectConflicts([]*model.Track{track}, regionPull(), "site-1")

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
	assert.Equal(t, "region-a", theirs.ConflictsWith)
}

func TestDetectConflicts_MultipleOverlapsFlagOnce(t *testing.T) {
	theirs := newTestRegion(t, "region-x", "track-1", "site-2", 0, 10)
	ourA := newTestRegion(t, "region-a", "track-1", "site-1", 1, 3)
	ourB := newTestRegion(t, "region-b", "track-1", "site-1", 5, 7)
	track := &model.Track{ID: "track-1", Regions: []*model.Region{theirs, ourA, ourB}}

	flagged := DetectConflicts([]*model.Track{track}, regionPull(), "site-1")
	require.Len(t, flagged, 1)
	assert.Equal(t, "region-x", flagged[0].ID)
	assert.True(t, theirs.Conflicts)
}

func TestSweepOverlaps_MatchesPairwiseScan(t *testing.T) {
	ours := []*model.Region{
		newTestRegion(t, "o1", "track-1", "site-1", 0, 4),
		newTestRegion(t, "o2", "track-1", "site-1", 6, 9),
		newTestRegion(t, "o3", "track-1", "site-1", 12, 15),
	}
	theirs := []*model.Region{
		newTestRegion(t, "t1", "track-1", "site-2", 3, 7),
		newTestRegion(t, "t2", "track-1", "site-2", 9, 12),
		newTestRegion(t, "t3", "track-1", "site-2", 14, 20),
	}

	pairs := SweepOverlaps(ours, theirs)

	got := make(map[[2]string]bool)
	for _, p := range pairs {
		got[[2]string{p[0].ID, p[1].ID}] = true
	}
	want := map[[2]string]bool{
		{"o1", "t1"}: true, // 0-4 vs 3-7
		{"o2", "t1"}: true, // 6-9 vs 3-7
		{"o3", "t3"}: true, // 12-15 vs 14-20
	}
	// t2 (9-12) only touches o2 and o3 at their endpoints.
	assert.Equal(t, want, got)
}

func TestSweepOverlaps_Empty(t *testing.T) {
	assert.Empty(t, SweepOverlaps(nil, nil))
	r := []*model.Region{newTestRegion(t, "o1", "track-1", "site-1", 0, 4)}
	assert.Empty(t, SweepOverlaps(r, nil))
	assert.Empty(t, SweepOverlaps(nil, r))
}

func TestContiguousRuns(t *testing.T) {
	regions := []*model.Region{
		newTestRegion(t, "r3", "track-1", "site-1", 10, 12),
		newTestRegion(t, "r1", "track-1", "site-1", 0, 3),
		newTestRegion(t, "r2", "track-1", "site-1", 3, 6),
	}

	runs := ContiguousRuns(regions)
	require.Len(t, runs, 2)
	assert.Equal(t, "r1", runs[0][0].ID)
	assert.Equal(t, "r2", runs[0][1].ID)
	assert.Equal(t, "r3", runs[1][0].ID)

	assert.Nil(t, ContiguousRuns(nil))
}
