package repository

import (
	"context"
	"fmt"

	"Resona/model"
)

// ProjectStore combines the track and region repositories into the
// persistence surface the sync orchestrator consumes: upsert flagged
// regions and rehydrate the full project graph after a merge.
type ProjectStore struct {
	tracks  TrackRepository
	regions RegionRepository
}

// NewProjectStore creates a ProjectStore over the given repositories.
func NewProjectStore(tracks TrackRepository, regions RegionRepository) *ProjectStore {
	return &ProjectStore{tracks: tracks, regions: regions}
}

// SaveEntities upserts the given regions by primary key.
func (s *ProjectStore) SaveEntities(ctx context.Context, regions []*model.Region) error {
	if err := s.regions.UpsertRegions(ctx, regions); err != nil {
		return fmt.Errorf("save entities: %w", err)
	}
	return nil
}

// ReloadProject rebuilds the in-memory track graph from authoritative
// store state, attaching each region to its owning track.
func (s *ProjectStore) ReloadProject(ctx context.Context, projectID string) ([]*model.Track, error) {
	tracks, err := s.tracks.GetTracksByProjectID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("reload project %s: %w", projectID, err)
	}
	regions, err := s.regions.GetRegionsByProjectID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("reload project %s: %w", projectID, err)
	}

	byTrack := make(map[string][]*model.Region)
	for _, r := range regions {
		byTrack[r.TrackID] = append(byTrack[r.TrackID], r)
	}
	for _, t := range tracks {
		t.Regions = byTrack[t.ID]
	}
	return tracks, nil
}
