package changelog

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"Resona/model"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	s := NewStore(db, "proj-1", "site-1")
	require.NoError(t, s.Migrate())
	return s
}

func record(pk, column, value string) model.ChangeRecord {
	return model.ChangeRecord{
		Table:      model.TableRegions,
		Kind:       model.ChangeUpdate,
		PrimaryKey: pk,
		Column:     column,
		Value:      value,
	}
}

func TestPushChanges_MarksOnlyHandedRecords(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, record("r1", "start", "2")))
	require.NoError(t, s.Record(ctx, record("r1", "end", "5")))

	batch, err := s.PendingChanges(ctx)
	require.NoError(t, err)
	require.Len(t, batch, 2)
	assert.NotEmpty(t, batch[0].ID)

	// A record written between reading the batch and handing it over
	// must stay pending for the next push.
	require.NoError(t, s.Record(ctx, record("r1", "offset_start", "1")))

	require.NoError(t, s.PushChanges(ctx, batch))

	remaining, err := s.PendingChanges(ctx)
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	assert.Equal(t, "offset_start", remaining[0].Column)
}

func TestPullChanges_PartitionsByAuthorAndAdvancesCursor(t *testing.T) {
	s := newTestStore(t)
	peer := NewStore(s.db, "proj-1", "site-2")
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, record("r1", "start", "2")))
	require.NoError(t, peer.Record(ctx, record("r2", "end", "9")))

	pull, err := s.PullChanges(ctx)
	require.NoError(t, err)
	require.NotNil(t, pull)
	require.Len(t, pull.ConcurrentChanges.Our, 1)
	require.Len(t, pull.ConcurrentChanges.Their, 1)
	assert.Equal(t, "r1", pull.ConcurrentChanges.Our[0].PrimaryKey)
	assert.Equal(t, "r2", pull.ConcurrentChanges.Their[0].PrimaryKey)
	assert.Equal(t, "site-2", pull.ConcurrentChanges.Their[0].Author)

	// The cursor advanced past everything just pulled.
	pull, err = s.PullChanges(ctx)
	require.NoError(t, err)
	assert.Nil(t, pull)
}

func TestPendingChanges_SkipsOtherAuthors(t *testing.T) {
	s := newTestStore(t)
	peer := NewStore(s.db, "proj-1", "site-2")
	ctx := context.Background()

	require.NoError(t, peer.Record(ctx, record("r2", "end", "9")))

	batch, err := s.PendingChanges(ctx)
	require.NoError(t, err)
	assert.Empty(t, batch)
}
