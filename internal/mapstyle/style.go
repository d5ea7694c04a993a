package mapstyle

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/paulmach/orb/geojson"

	"mappls-navigation/internal/navigation"
)

var (
	ErrExists      = errors.New("already exists")
	ErrNotFound    = errors.New("does not exist")
	ErrSourceInUse = errors.New("source is used by a layer")
)

type Layer struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Source string         `json:"source"`
	Paint  map[string]any `json:"paint,omitempty"`
	Layout map[string]any `json:"layout,omitempty"`
}

type Source struct {
	ID   string                     `json:"id"`
	Data *geojson.FeatureCollection `json:"data"`
}

type Op string

const (
	OpAddSource    Op = "add_source"
	OpUpdateSource Op = "update_source"
	OpRemoveSource Op = "remove_source"
	OpAddLayer     Op = "add_layer"
	OpRemoveLayer  Op = "remove_layer"
)

// Change describes one mutation of the style, mirrored to the browser.
type Change struct {
	Op     Op      `json:"op"`
	ID     string  `json:"id"`
	Layer  *Layer  `json:"layer,omitempty"`
	Source *Source `json:"source,omitempty"`
}

type Listener func(Change)

// Style is the layer and source registry of one client's map.
// Layers keep insertion order, which is their draw order.
type Style struct {
	mu       sync.Mutex
	layers   []Layer
	sources  map[string]*Source
	listener Listener
}

var _ navigation.MapEngine = (*Style)(nil)

// New returns an empty style. listener may be nil.
func New(listener Listener) *Style {
	return &Style{sources: make(map[string]*Source), listener: listener}
}

func (s *Style) notify(c Change) {
	if s.listener != nil {
		s.listener(c)
	}
}

func (s *Style) AddSource(id string, data *geojson.FeatureCollection) error {
	s.mu.Lock()
	if _, ok := s.sources[id]; ok {
		s.mu.Unlock()
		return fmt.Errorf("source %q %w", id, ErrExists)
	}
	src := &Source{ID: id, Data: data}
	s.sources[id] = src
	s.mu.Unlock()

	s.notify(Change{Op: OpAddSource, ID: id, Source: src})
	return nil
}

func (s *Style) SetSourceData(id string, data *geojson.FeatureCollection) error {
	s.mu.Lock()
	src, ok := s.sources[id]
	if !ok {
		s.mu.Unlock()
		return fmt.Errorf("source %q %w", id, ErrNotFound)
	}
	src.Data = data
	s.mu.Unlock()

	s.notify(Change{Op: OpUpdateSource, ID: id, Source: &Source{ID: id, Data: data}})
	return nil
}

// SourceData returns the current data of source id.
func (s *Style) SourceData(id string) (*geojson.FeatureCollection, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.sources[id]
	if !ok {
		return nil, false
	}
	return src.Data, true
}

func (s *Style) AddLayer(layer Layer) error {
	s.mu.Lock()
	if s.indexLocked(layer.ID) >= 0 {
		s.mu.Unlock()
		return fmt.Errorf("layer %q %w", layer.ID, ErrExists)
	}
	if _, ok := s.sources[layer.Source]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("source %q for layer %q %w", layer.Source, layer.ID, ErrNotFound)
	}
	s.layers = append(s.layers, layer)
	s.mu.Unlock()

	s.notify(Change{Op: OpAddLayer, ID: layer.ID, Layer: &layer})
	return nil
}

func (s *Style) HasLayer(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.indexLocked(id) >= 0
}

func (s *Style) RemoveLayer(id string) error {
	s.mu.Lock()
	i := s.indexLocked(id)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("layer %q %w", id, ErrNotFound)
	}
	s.layers = slices.Delete(s.layers, i, i+1)
	s.mu.Unlock()

	s.notify(Change{Op: OpRemoveLayer, ID: id})
	return nil
}

func (s *Style) HasSource(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.sources[id]
	return ok
}

// RemoveSource fails while any layer still draws from the source.
func (s *Style) RemoveSource(id string) error {
	s.mu.Lock()
	if _, ok := s.sources[id]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("source %q %w", id, ErrNotFound)
	}
	for _, l := range s.layers {
		if l.Source == id {
			s.mu.Unlock()
			return fmt.Errorf("source %q: %w (%s)", id, ErrSourceInUse, l.ID)
		}
	}
	delete(s.sources, id)
	s.mu.Unlock()

	s.notify(Change{Op: OpRemoveSource, ID: id})
	return nil
}

func (s *Style) LayerIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.layers))
	for i, l := range s.layers {
		ids[i] = l.ID
	}
	return ids
}

func (s *Style) SourceIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.sources))
	for id := range s.sources {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

func (s *Style) indexLocked(id string) int {
	return slices.IndexFunc(s.layers, func(l Layer) bool { return l.ID == id })
}
