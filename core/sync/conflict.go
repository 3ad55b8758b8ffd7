package sync

import (
	"sort"

	"Resona/model"
)

// DetectConflicts scans the track graph after a merge and returns the
// regions whose conflict flags must be persisted.
//
// For every track, every unordered pair of distinct, non-deleted
// regions authored by different replicas is tested for overlap with the
// epsilon-tolerant predicate. On overlap the region not authored by
// localReplica loses: its Conflicts flag is set and ConflictsWith
// points at the sibling. When neither region is local (should not occur
// in a two-party pull, but the rule must be deterministic) the region
// with the lexicographically smaller id loses.
//
// The scan is a no-op when neither side of the pull touched the regions
// table; that path returns before looking at the graph at all. The
// result is a pure function of authorship and intervals, so re-running
// the detector on an already-flagged graph changes nothing.
func DetectConflicts(tracks []*model.Track, pull *model.PullResult, localReplica string) []*model.Region {
	if pull == nil || !touchesTable(pull, model.TableRegions) {
		return nil
	}

	flagged := make(map[string]*model.Region)
	for _, track := range tracks {
		live := track.LiveRegions()
		for i := 0; i < len(live); i++ {
			for j := i + 1; j < len(live); j++ {
				r1, r2 := live[i], live[j]
				if r1.CreatedBy == r2.CreatedBy {
					continue
				}
				if !r1.Overlaps(r2) {
					continue
				}
				loser, winner := pickLoser(r1, r2, localReplica)
				loser.MarkConflict(winner.ID)
				flagged[loser.ID] = loser
			}
		}
	}

	out := make([]*model.Region, 0, len(flagged))
	for _, r := range flagged {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// pickLoser decides which side of an overlapping pair gets flagged.
func pickLoser(r1, r2 *model.Region, localReplica string) (loser, winner *model.Region) {
	switch {
	case r1.CreatedBy == localReplica:
		return r2, r1
	case r2.CreatedBy == localReplica:
		return r1, r2
	case r1.ID < r2.ID:
		return r1, r2
	default:
		return r2, r1
	}
}

// SweepOverlaps returns every overlapping cross-side pair using a
// sort-and-sweep pass instead of the quadratic scan: both sides are
// sorted by start, and for each region on one side the other side is
// advanced only while intervals can still overlap. Produces the same
// pairs as the pairwise scan; callers with large graphs can feed its
// output through the same flagging rule.
func SweepOverlaps(ours, theirs []*model.Region) [][2]*model.Region {
	a := sortedByStart(ours)
	b := sortedByStart(theirs)

	var pairs [][2]*model.Region
	lo := 0
	for _, ra := range a {
		// Regions ending at or before ra.Start cannot overlap ra, and
		// since starts are sorted they cannot overlap any later ra
		// either.
		for lo < len(b) && b[lo].End <= ra.Start+model.IntervalEpsilon {
			lo++
		}
		for k := lo; k < len(b); k++ {
			rb := b[k]
			if rb.Start >= ra.End-model.IntervalEpsilon {
				break
			}
			if ra.Overlaps(rb) {
				pairs = append(pairs, [2]*model.Region{ra, rb})
			}
		}
	}
	return pairs
}

// ContiguousRuns groups a track's regions into runs whose intervals
// touch or overlap within epsilon, so a user can accept or reject one
// contiguous span instead of many fragments. Batching policy only; raw
// detection never depends on it.
func ContiguousRuns(regions []*model.Region) [][]*model.Region {
	if len(regions) == 0 {
		return nil
	}
	sorted := sortedByStart(regions)

	var runs [][]*model.Region
	run := []*model.Region{sorted[0]}
	runEnd := sorted[0].End
	for _, r := range sorted[1:] {
		if r.Start <= runEnd+model.IntervalEpsilon {
			run = append(run, r)
			if r.End > runEnd {
				runEnd = r.End
			}
			continue
		}
		runs = append(runs, run)
		run = []*model.Region{r}
		runEnd = r.End
	}
	runs = append(runs, run)
	return runs
}

func sortedByStart(regions []*model.Region) []*model.Region {
	out := make([]*model.Region, len(regions))
	copy(out, regions)
	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}
