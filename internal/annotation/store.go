// Package annotation holds the ordered, in-memory collection of text
// annotations placed on a page.
//
// A Store is not safe for concurrent use. Callers serialize access; the
// session service does this with a per-session mutex.
package annotation

import (
	"iter"
	"slices"

	"pdf-text-overlay/internal/geometry"

	"github.com/google/uuid"
)

// ID identifies an annotation for the lifetime of a session.
type ID string

// Annotation is one text run placed on a page. Position is the top-left of
// the text in raster space.
type Annotation struct {
	ID        ID             `json:"id"`
	PageIndex int            `json:"page_index"`
	Position  geometry.Point `json:"position"`
	Text      string         `json:"text"`
	FontSize  float64        `json:"font_size"`
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	Text     *string         `json:"text,omitempty"`
	FontSize *float64        `json:"font_size,omitempty"`
	Position *geometry.Point `json:"position,omitempty"`
}

// FontBounds is the inclusive range font sizes are clamped to.
type FontBounds struct {
	Min float64
	Max float64
}

// Clamp returns size limited to the bounds.
func (b FontBounds) Clamp(size float64) float64 {
	if size < b.Min {
		return b.Min
	}
	if size > b.Max {
		return b.Max
	}
	return size
}

// Options configures a Store.
type Options struct {
	DefaultText     string
	DefaultFontSize float64
	Bounds          FontBounds
	// PlacementOffset is subtracted from the pointer position on Create so
	// the default text appears roughly centered on the pointer.
	PlacementOffset geometry.Point
	// NewID generates identifiers. Defaults to random UUIDs.
	NewID func() ID
}

// DefaultOptions returns the options used by the editor.
func DefaultOptions() Options {
	return Options{
		DefaultText:     "Your text",
		DefaultFontSize: 24,
		Bounds:          FontBounds{Min: 8, Max: 72},
		PlacementOffset: geometry.Point{X: 60, Y: 16},
	}
}

// Store is an insertion-ordered collection with at most one selected entry.
type Store struct {
	opts       Options
	items      []*Annotation
	selectedID ID
	issued     map[ID]struct{}
}

// NewStore creates an empty store.
func NewStore(opts Options) *Store {
	if opts.NewID == nil {
		opts.NewID = func() ID { return ID(uuid.NewString()) }
	}
	if opts.Bounds.Max < opts.Bounds.Min {
		opts.Bounds.Min, opts.Bounds.Max = opts.Bounds.Max, opts.Bounds.Min
	}
	return &Store{
		opts:   opts,
		issued: make(map[ID]struct{}),
	}
}

// Options returns the options the store was created with.
func (s *Store) Options() Options { return s.opts }

// Create inserts a new selected annotation near p and returns its id.
func (s *Store) Create(p geometry.Point) ID {
	id := s.nextID()
	s.items = append(s.items, &Annotation{
		ID:        id,
		PageIndex: 0,
		Position:  p.Sub(s.opts.PlacementOffset),
		Text:      s.opts.DefaultText,
		FontSize:  s.opts.Bounds.Clamp(s.opts.DefaultFontSize),
	})
	s.selectedID = id
	return id
}

// nextID never hands out an id twice, even if the generator repeats itself.
func (s *Store) nextID() ID {
	for {
		id := s.opts.NewID()
		if _, dup := s.issued[id]; dup || id == "" {
			continue
		}
		s.issued[id] = struct{}{}
		return id
	}
}

// Update merges patch into the annotation with the given id. It reports
// false if no such annotation exists.
func (s *Store) Update(id ID, patch Patch) bool {
	a := s.find(id)
	if a == nil {
		return false
	}
	if patch.Text != nil {
		a.Text = *patch.Text
	}
	if patch.FontSize != nil {
		a.FontSize = s.opts.Bounds.Clamp(*patch.FontSize)
	}
	if patch.Position != nil {
		a.Position = *patch.Position
	}
	return true
}

// Select makes id the only selected annotation. It reports false, leaving the
// selection unchanged, if no such annotation exists.
func (s *Store) Select(id ID) bool {
	if s.find(id) == nil {
		return false
	}
	s.selectedID = id
	return true
}

// ClearSelection deselects everything.
func (s *Store) ClearSelection() { s.selectedID = "" }

// Delete removes the annotation. It reports false if it did not exist.
func (s *Store) Delete(id ID) bool {
	i := s.indexOf(id)
	if i < 0 {
		return false
	}
	s.items = slices.Delete(s.items, i, i+1)
	if s.selectedID == id {
		s.selectedID = ""
	}
	return true
}

// Get returns a copy of the annotation.
func (s *Store) Get(id ID) (Annotation, bool) {
	a := s.find(id)
	if a == nil {
		return Annotation{}, false
	}
	return *a, true
}

// SelectedID returns the selected id, or "" when nothing is selected.
func (s *Store) SelectedID() ID { return s.selectedID }

// Selected returns a copy of the selected annotation.
func (s *Store) Selected() (Annotation, bool) {
	if s.selectedID == "" {
		return Annotation{}, false
	}
	return s.Get(s.selectedID)
}

// IsSelected reports whether id is the selected annotation.
func (s *Store) IsSelected(id ID) bool {
	return id != "" && s.selectedID == id
}

// Len returns the number of annotations.
func (s *Store) Len() int { return len(s.items) }

// ListForPage yields copies of the annotations on the page in insertion
// order. The sequence can be ranged over any number of times.
func (s *Store) ListForPage(pageIndex int) iter.Seq[Annotation] {
	return func(yield func(Annotation) bool) {
		for _, a := range s.items {
			if a.PageIndex != pageIndex {
				continue
			}
			if !yield(*a) {
				return
			}
		}
	}
}

// All yields every annotation in insertion order.
func (s *Store) All() iter.Seq[Annotation] {
	return func(yield func(Annotation) bool) {
		for _, a := range s.items {
			if !yield(*a) {
				return
			}
		}
	}
}

func (s *Store) find(id ID) *Annotation {
	if i := s.indexOf(id); i >= 0 {
		return s.items[i]
	}
	return nil
}

func (s *Store) indexOf(id ID) int {
	if id == "" {
		return -1
	}
	return slices.IndexFunc(s.items, func(a *Annotation) bool { return a.ID == id })
}
