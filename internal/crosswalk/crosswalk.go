// Package crosswalk projects extracted metadata onto property values.
//
// A crosswalk is an ordered list of rules. Each rule reads one string from a
// metadata record with an RFC 6901 JSON Pointer and turns it into a literal
// value of one property on the media or on its parent item. Mapping never
// writes directly: it returns a ChangeSet that the resource graph applies as
// one batch, removals first.
package crosswalk

import (
	"context"
	"fmt"

	"github.com/go-openapi/jsonpointer"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/On-Jun9/MetaPipe/pkg/types"
)

// ValueReader returns the current values of a resource.
type ValueReader interface {
	Values(ctx context.Context, kind types.ResourceKind, id string) ([]types.Value, error)
}

// PropertyCatalog resolves property terms.
type PropertyCatalog interface {
	FindPropertyByTerm(term string) (types.Property, bool)
}

// Mapper applies a crosswalk to metadata records.
type Mapper struct {
	rules   []types.CrosswalkRule
	values  ValueReader
	catalog PropertyCatalog
	logger  *zap.Logger
	newID   func() string
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithLogger sets the logger used to report skipped rules.
func WithLogger(l *zap.Logger) Option {
	return func(m *Mapper) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithIDGenerator replaces the UUID generator for new values.
func WithIDGenerator(fn func() string) Option {
	return func(m *Mapper) {
		if fn != nil {
			m.newID = fn
		}
	}
}

// New returns a Mapper for rules. The rules slice is copied.
func New(rules []types.CrosswalkRule, values ValueReader, catalog PropertyCatalog, opts ...Option) *Mapper {
	m := &Mapper{
		rules:   append([]types.CrosswalkRule(nil), rules...),
		values:  values,
		catalog: catalog,
		logger:  zap.NewNop(),
		newID:   func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Rules returns a copy of the crosswalk.
func (m *Mapper) Rules() []types.CrosswalkRule {
	return append([]types.CrosswalkRule(nil), m.rules...)
}

type target struct {
	kind types.ResourceKind
	id   string
}

type clearKey struct {
	target
	propertyID int
}

// Map builds the change set that projects record onto media and its item.
//
// replace overrides every rule's own replace flag when non-nil. Removals are
// the values each cleared (resource, property) held before this pass, so
// values added by the pass are never removed by it. Rules that do not apply
// are skipped; only failures reading current values are returned.
func (m *Mapper) Map(ctx context.Context, media types.Media, record *types.MetadataRecord, replace *bool) (types.ChangeSet, error) {
	var cs types.ChangeSet
	if record == nil || len(record.Payload) == 0 {
		return cs, nil
	}

	var clearOrder []clearKey
	cleared := map[clearKey]bool{}

	for i, rule := range m.rules {
		log := m.logger.With(zap.Int("rule", i), zap.String("pointer", rule.Pointer), zap.String("term", rule.Term))

		v, ok := m.resolve(rule, record, log)
		if !ok {
			continue
		}
		prop, ok := m.catalog.FindPropertyByTerm(rule.Term)
		if !ok {
			log.Debug("skip rule: unknown term")
			continue
		}

		tgt := target{kind: rule.Resource, id: media.ID}
		if rule.Resource == types.ResourceItem {
			if media.ItemID == "" {
				log.Debug("skip rule: media has no item")
				continue
			}
			tgt.id = media.ItemID
		}

		cs.Add = append(cs.Add, types.Value{
			ID:           m.newID(),
			ResourceID:   tgt.id,
			ResourceKind: tgt.kind,
			PropertyID:   prop.ID,
			Term:         prop.Term(),
			Type:         types.ValueTypeLiteral,
			Value:        v,
			IsPublic:     true,
		})

		doReplace := rule.Replace
		if replace != nil {
			doReplace = *replace
		}
		if doReplace {
			key := clearKey{target: tgt, propertyID: prop.ID}
			if !cleared[key] {
				cleared[key] = true
				clearOrder = append(clearOrder, key)
			}
		}
	}

	if len(clearOrder) == 0 {
		return cs, nil
	}

	existing := map[target][]types.Value{}
	for _, key := range clearOrder {
		vals, ok := existing[key.target]
		if !ok {
			var err error
			vals, err = m.values.Values(ctx, key.kind, key.id)
			if err != nil {
				return types.ChangeSet{}, fmt.Errorf("failed to read %s %s values: %w", key.kind, key.id, err)
			}
			existing[key.target] = vals
		}
		for _, v := range vals {
			if v.PropertyID == key.propertyID {
				cs.Remove = append(cs.Remove, v)
			}
		}
	}
	return cs, nil
}

// resolve returns the string a rule points at, or false when the rule does
// not apply to this record.
func (m *Mapper) resolve(rule types.CrosswalkRule, record *types.MetadataRecord, log *zap.Logger) (string, bool) {
	if rule.Pointer == "" || rule.Term == "" || rule.Resource == "" {
		log.Debug("skip rule: missing field")
		return "", false
	}
	if !rule.Resource.Valid() {
		log.Debug("skip rule: unsupported resource", zap.String("resource", string(rule.Resource)))
		return "", false
	}

	p, err := jsonpointer.New(rule.Pointer)
	if err != nil {
		log.Debug("skip rule: invalid pointer", zap.Error(err))
		return "", false
	}
	tokens := p.DecodedTokens()
	if len(tokens) == 0 {
		log.Debug("skip rule: pointer has no metadata type")
		return "", false
	}

	metadataType := tokens[0]
	if _, ok := record.Payload[metadataType]; !ok {
		return "", false
	}
	if producer, _ := record.ExtractorFor(metadataType); rule.Extractor != "" && rule.Extractor != producer {
		log.Debug("skip rule: produced by another extractor", zap.String("extractor", producer))
		return "", false
	}

	doc := map[string]any(record.Payload)
	found, _, err := p.Get(doc)
	if err != nil {
		return "", false
	}
	s, ok := found.(string)
	if !ok {
		log.Debug("skip rule: value is not a string")
		return "", false
	}
	return s, true
}
