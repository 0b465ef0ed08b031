// Package library is the resource graph metadata is mapped onto: items,
// the media attached to them, their property values and the property catalog.
package library

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"

	"github.com/On-Jun9/MetaPipe/pkg/types"
)

// ErrNotFound is returned when an item or media does not exist.
var ErrNotFound = errors.New("library: resource not found")

var json = jsoniter.ConfigCompatibleWithStandardLibrary

type document struct {
	Items      map[string]types.Item    `json:"items"`
	Media      map[string]types.Media   `json:"media"`
	ItemMedia  map[string][]string      `json:"item_media"`
	Values     map[string][]types.Value `json:"values"`
	Properties []types.Property         `json:"properties"`
}

// Library is a JSON-file backed resource graph. Every mutation is persisted
// before it becomes visible; a failed write leaves memory unchanged.
type Library struct {
	mu       sync.RWMutex
	filePath string
	doc      document
	byTerm   map[string]types.Property
	now      func() time.Time
}

func New(filePath string) *Library {
	l := &Library{
		filePath: filePath,
		doc: document{
			Items:      map[string]types.Item{},
			Media:      map[string]types.Media{},
			ItemMedia:  map[string][]string{},
			Values:     map[string][]types.Value{},
			Properties: DefaultProperties(),
		},
		now: time.Now,
	}
	l.indexProperties()
	return l
}

// Load reads filePath. A missing file yields an empty library seeded with
// the default vocabulary.
func Load(filePath string) (*Library, error) {
	l := New(filePath)

	data, err := os.ReadFile(filePath)
	if os.IsNotExist(err) {
		return l, nil
	}
	if err != nil {
		return nil, err
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", filePath, err)
	}
	if doc.Items != nil {
		l.doc.Items = doc.Items
	}
	if doc.Media != nil {
		l.doc.Media = doc.Media
	}
	if doc.ItemMedia != nil {
		l.doc.ItemMedia = doc.ItemMedia
	}
	if doc.Values != nil {
		l.doc.Values = doc.Values
	}
	if len(doc.Properties) > 0 {
		l.doc.Properties = doc.Properties
	}
	l.indexProperties()
	return l, nil
}

func (l *Library) indexProperties() {
	l.byTerm = make(map[string]types.Property, len(l.doc.Properties))
	for _, p := range l.doc.Properties {
		l.byTerm[p.Term()] = p
	}
}

func (l *Library) save(doc document) error {
	if l.filePath == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.filePath), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	tmp := l.filePath + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	if err := os.Rename(tmp, l.filePath); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func valuesKey(kind types.ResourceKind, id string) string {
	return string(kind) + ":" + id
}

// FindPropertyByTerm resolves "prefix:localName".
func (l *Library) FindPropertyByTerm(term string) (types.Property, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	p, ok := l.byTerm[term]
	return p, ok
}

// Properties lists the catalog in ID order.
func (l *Library) Properties() []types.Property {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := append([]types.Property(nil), l.doc.Properties...)
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// AddProperty registers a property term. Registering an existing term
// returns the existing property.
func (l *Library) AddProperty(term, label string) (types.Property, error) {
	prefix, local, ok := types.SplitTerm(term)
	if !ok {
		return types.Property{}, fmt.Errorf("invalid term %q", term)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if p, ok := l.byTerm[term]; ok {
		return p, nil
	}
	maxID := 0
	for _, p := range l.doc.Properties {
		if p.ID > maxID {
			maxID = p.ID
		}
	}
	p := types.Property{ID: maxID + 1, VocabularyPrefix: prefix, LocalName: local, Label: label}

	next := l.doc
	next.Properties = append(append([]types.Property(nil), l.doc.Properties...), p)
	if err := l.save(next); err != nil {
		return types.Property{}, fmt.Errorf("failed to save library: %w", err)
	}
	l.doc = next
	l.byTerm[term] = p
	return p, nil
}

func (l *Library) Item(ctx context.Context, id string) (types.Item, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	it, ok := l.doc.Items[id]
	if !ok {
		return types.Item{}, fmt.Errorf("%w: item %s", ErrNotFound, id)
	}
	return it, nil
}

func (l *Library) Media(ctx context.Context, id string) (types.Media, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	m, ok := l.doc.Media[id]
	if !ok {
		return types.Media{}, fmt.Errorf("%w: media %s", ErrNotFound, id)
	}
	return m, nil
}

// ItemMedia returns the media of an item in attachment order.
func (l *Library) ItemMedia(ctx context.Context, itemID string) ([]types.Media, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if _, ok := l.doc.Items[itemID]; !ok {
		return nil, fmt.Errorf("%w: item %s", ErrNotFound, itemID)
	}
	ids := l.doc.ItemMedia[itemID]
	out := make([]types.Media, 0, len(ids))
	for _, id := range ids {
		if m, ok := l.doc.Media[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// AllMedia lists every media ordered by creation time.
func (l *Library) AllMedia(ctx context.Context) ([]types.Media, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]types.Media, 0, len(l.doc.Media))
	for _, m := range l.doc.Media {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// Values returns the values of a resource in insertion order.
func (l *Library) Values(ctx context.Context, kind types.ResourceKind, id string) ([]types.Value, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if !l.existsLocked(kind, id) {
		return nil, fmt.Errorf("%w: %s %s", ErrNotFound, kind, id)
	}
	return append([]types.Value(nil), l.doc.Values[valuesKey(kind, id)]...), nil
}

func (l *Library) existsLocked(kind types.ResourceKind, id string) bool {
	switch kind {
	case types.ResourceMedia:
		_, ok := l.doc.Media[id]
		return ok
	case types.ResourceItem:
		_, ok := l.doc.Items[id]
		return ok
	}
	return false
}

// ApplyChanges removes then adds values as one persisted batch.
func (l *Library) ApplyChanges(ctx context.Context, cs types.ChangeSet) error {
	if cs.Empty() {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, v := range cs.Add {
		if !l.existsLocked(v.ResourceKind, v.ResourceID) {
			return fmt.Errorf("%w: %s %s", ErrNotFound, v.ResourceKind, v.ResourceID)
		}
	}

	values := make(map[string][]types.Value, len(l.doc.Values))
	for k, vs := range l.doc.Values {
		values[k] = vs
	}

	removed := map[string]bool{}
	for _, v := range cs.Remove {
		removed[v.ID] = true
	}
	if len(removed) > 0 {
		for k, vs := range values {
			kept := make([]types.Value, 0, len(vs))
			for _, v := range vs {
				if !removed[v.ID] {
					kept = append(kept, v)
				}
			}
			values[k] = kept
		}
	}
	for _, v := range cs.Add {
		key := valuesKey(v.ResourceKind, v.ResourceID)
		values[key] = append(append([]types.Value(nil), values[key]...), v)
	}

	next := l.doc
	next.Values = values
	if err := l.save(next); err != nil {
		return fmt.Errorf("failed to save library: %w", err)
	}
	l.doc = next
	return nil
}

// CreateItem adds an item.
func (l *Library) CreateItem(ctx context.Context, title string) (types.Item, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	it := types.Item{ID: uuid.NewString(), Title: title, CreatedAt: l.now()}

	next := l.doc
	next.Items = copyMap(l.doc.Items)
	next.Items[it.ID] = it
	if err := l.save(next); err != nil {
		return types.Item{}, fmt.Errorf("failed to save library: %w", err)
	}
	l.doc = next
	return it, nil
}

// CreateMedia attaches m to its item. ID and CreatedAt are assigned when empty.
func (l *Library) CreateMedia(ctx context.Context, m types.Media) (types.Media, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.doc.Items[m.ItemID]; !ok {
		return types.Media{}, fmt.Errorf("%w: item %s", ErrNotFound, m.ItemID)
	}
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	if _, dup := l.doc.Media[m.ID]; dup {
		return types.Media{}, fmt.Errorf("media %s already exists", m.ID)
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = l.now()
	}

	next := l.doc
	next.Media = copyMap(l.doc.Media)
	next.Media[m.ID] = m
	next.ItemMedia = copyMap(l.doc.ItemMedia)
	next.ItemMedia[m.ItemID] = append(append([]string(nil), l.doc.ItemMedia[m.ItemID]...), m.ID)
	if err := l.save(next); err != nil {
		return types.Media{}, fmt.Errorf("failed to save library: %w", err)
	}
	l.doc = next
	return m, nil
}

// DeleteMedia removes a media and its values.
func (l *Library) DeleteMedia(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	m, ok := l.doc.Media[id]
	if !ok {
		return fmt.Errorf("%w: media %s", ErrNotFound, id)
	}

	next := l.doc
	next.Media = copyMap(l.doc.Media)
	delete(next.Media, id)
	next.Values = copyMap(l.doc.Values)
	delete(next.Values, valuesKey(types.ResourceMedia, id))
	next.ItemMedia = copyMap(l.doc.ItemMedia)
	ids := make([]string, 0, len(l.doc.ItemMedia[m.ItemID]))
	for _, mid := range l.doc.ItemMedia[m.ItemID] {
		if mid != id {
			ids = append(ids, mid)
		}
	}
	next.ItemMedia[m.ItemID] = ids

	if err := l.save(next); err != nil {
		return fmt.Errorf("failed to save library: %w", err)
	}
	l.doc = next
	return nil
}

func copyMap[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
