package model

// Graph is an indexed view over a project's tracks and regions. It is
// the explicit lookup table behind weak id-valued references: both the
// conflict detector and the action log resolve entities through it
// instead of holding owning pointers.
type Graph struct {
	order   []*Track
	tracks  map[string]*Track
	regions map[string]*Region
}

// NewGraph indexes the given tracks and every region they own.
func NewGraph(tracks []*Track) *Graph {
	g := &Graph{
		tracks:  make(map[string]*Track),
		regions: make(map[string]*Region),
	}
	for _, t := range tracks {
		g.AddTrack(t)
	}
	return g
}

// Tracks returns the tracks in insertion order.
func (g *Graph) Tracks() []*Track {
	return g.order
}

// Track looks up a track by id.
func (g *Graph) Track(id string) (*Track, bool) {
	t, ok := g.tracks[id]
	return t, ok
}

// Region looks up a region by id across all tracks.
func (g *Graph) Region(id string) (*Region, bool) {
	r, ok := g.regions[id]
	return r, ok
}

// AddTrack indexes a track and all of its regions.
func (g *Graph) AddTrack(t *Track) {
	if _, ok := g.tracks[t.ID]; ok {
		return
	}
	g.order = append(g.order, t)
	g.tracks[t.ID] = t
	for _, r := range t.Regions {
		g.regions[r.ID] = r
	}
}

// AttachRegion links an already indexed region to its owning track,
// used when the track reference arrives after the region itself.
func (g *Graph) AttachRegion(r *Region) {
	t, ok := g.tracks[r.TrackID]
	if !ok {
		return
	}
	for _, existing := range t.Regions {
		if existing.ID == r.ID {
			return
		}
	}
	t.Regions = append(t.Regions, r)
}

// AddRegion attaches a region to its owning track and indexes it.
// Regions whose track is unknown are indexed anyway so that undo/redo
// can still resolve them.
func (g *Graph) AddRegion(r *Region) {
	if _, ok := g.regions[r.ID]; ok {
		return
	}
	g.regions[r.ID] = r
	if t, ok := g.tracks[r.TrackID]; ok {
		t.Regions = append(t.Regions, r)
	}
}
