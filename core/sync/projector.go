package sync

import (
	"strconv"

	"Resona/logger"
	"Resona/model"
)

// Apply projects a list of change records onto the live graph, in
// record order. Inserts materialize new entities, updates assign single
// columns, deletes set the soft-delete flag. Records referencing
// unknown entities or columns are logged and skipped; a merge never
// fails on a malformed record.
func Apply(g *model.Graph, changes []model.ChangeRecord) {
	for _, rec := range changes {
		switch rec.Table {
		case model.TableTracks:
			applyTrackChange(g, rec)
		case model.TableRegions:
			applyRegionChange(g, rec)
		default:
			logger.Debug("skipping change for unknown table",
				logger.String("table", rec.Table),
				logger.String("pk", rec.PrimaryKey))
		}
	}
}

func applyTrackChange(g *model.Graph, rec model.ChangeRecord) {
	switch rec.Kind {
	case model.ChangeInsert:
		if _, ok := g.Track(rec.PrimaryKey); ok {
			return
		}
		g.AddTrack(&model.Track{
			ID:        rec.PrimaryKey,
			Kind:      model.TrackKindAudio,
			Volume:    1,
			CreatedAt: rec.AppliedAt,
			UpdatedAt: rec.AppliedAt,
		})
		// Remaining columns arrive as update records for the same key.
		if rec.Column != "" {
			applyTrackChange(g, withKind(rec, model.ChangeUpdate))
		}
	case model.ChangeUpdate:
		t, ok := g.Track(rec.PrimaryKey)
		if !ok {
			logger.Warn("update for unknown track", logger.String("pk", rec.PrimaryKey))
			return
		}
		setTrackColumn(t, rec.Column, rec.Value)
		t.UpdatedAt = rec.AppliedAt
	case model.ChangeDelete:
		t, ok := g.Track(rec.PrimaryKey)
		if !ok {
			return
		}
		t.Deleted = true
		for _, r := range t.Regions {
			r.Deleted = true
		}
	}
}

func applyRegionChange(g *model.Graph, rec model.ChangeRecord) {
	switch rec.Kind {
	case model.ChangeInsert:
		if _, ok := g.Region(rec.PrimaryKey); ok {
			return
		}
		r := &model.Region{
			ID:        rec.PrimaryKey,
			CreatedBy: rec.Author,
			CreatedAt: rec.AppliedAt,
			UpdatedAt: rec.AppliedAt,
		}
		if rec.Column != "" {
			setRegionColumn(r, rec.Column, rec.Value)
		}
		g.AddRegion(r)
	case model.ChangeUpdate:
		r, ok := g.Region(rec.PrimaryKey)
		if !ok {
			logger.Warn("update for unknown region", logger.String("pk", rec.PrimaryKey))
			return
		}
		setRegionColumn(r, rec.Column, rec.Value)
		r.UpdatedAt = rec.AppliedAt
		// The owning track reference may arrive after the insert.
		if rec.Column == "track_id" {
			g.AttachRegion(r)
		}
	case model.ChangeDelete:
		r, ok := g.Region(rec.PrimaryKey)
		if !ok {
			return
		}
		r.Deleted = true
	}
}

func setTrackColumn(t *model.Track, column, value string) {
	switch column {
	case "project_id":
		t.ProjectID = value
	case "name":
		t.Name = value
	case "kind":
		t.Kind = model.TrackKind(value)
	case "volume":
		t.Volume = parseFloat(value, t.Volume)
	case "pan":
		t.Pan = parseFloat(value, t.Pan)
	case "file_path":
		t.FilePath = value
	case "uploaded":
		t.Uploaded = parseBool(value, t.Uploaded)
	case "deleted":
		t.Deleted = parseBool(value, t.Deleted)
	default:
		logger.Debug("unknown track column", logger.String("column", column))
	}
}

func setRegionColumn(r *model.Region, column, value string) {
	switch column {
	case "track_id":
		r.TrackID = value
	case "project_id":
		r.ProjectID = value
	case "start":
		r.Start = parseFloat(value, r.Start)
	case "end":
		r.End = parseFloat(value, r.End)
	case "offset_start":
		r.OffsetStart = parseFloat(value, r.OffsetStart)
	case "offset_end":
		r.OffsetEnd = parseFloat(value, r.OffsetEnd)
	case "total_duration":
		// Immutable once set; only the first assignment sticks.
		if r.TotalDuration == 0 {
			r.TotalDuration = parseFloat(value, 0)
		}
	case "created_by":
		r.CreatedBy = value
	case "conflicts":
		r.Conflicts = parseBool(value, r.Conflicts)
	case "conflicts_with":
		r.ConflictsWith = value
	case "deleted":
		r.Deleted = parseBool(value, r.Deleted)
	default:
		logger.Debug("unknown region column", logger.String("column", column))
	}
}

func withKind(rec model.ChangeRecord, kind model.ChangeKind) model.ChangeRecord {
	rec.Kind = kind
	return rec
}

func parseFloat(value string, fallback float64) float64 {
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		logger.Warn("malformed numeric column value", logger.String("value", value))
		return fallback
	}
	return f
}

func parseBool(value string, fallback bool) bool {
	b, err := strconv.ParseBool(value)
	if err != nil {
		logger.Warn("malformed boolean column value", logger.String("value", value))
		return fallback
	}
	return b
}
