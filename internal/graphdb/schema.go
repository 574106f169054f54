package graphdb

import (
	"github.com/raydb/raydb/internal/delta"
	"github.com/raydb/raydb/internal/intern"
	"github.com/raydb/raydb/internal/snapshot"
)

// schemaRegistry is the dense-id namespace for one of labels, edge
// types, or property keys (spec §3 "ids are dense small integers
// assigned at first definition and immutable thereafter"). It wraps an
// intern.Interner, which already gives exactly that assignment
// discipline, seeded at open time from the snapshot's durable schema
// table plus the delta overlay's pending definitions.
type schemaRegistry struct {
	interner *intern.Interner
}

func newSchemaRegistry() *schemaRegistry {
	return &schemaRegistry{interner: intern.New()}
}

// seed pre-interns name in id order so ids line up with what was
// persisted; callers must seed in ascending id order starting from 0
// for this to hold (both the snapshot's schema table and replayed WAL
// DEFINE_* records are produced/ordered that way).
func (s *schemaRegistry) seed(name string) {
	s.interner.Intern(name)
}

// defineOrGet is the idempotent-by-name contract of spec §4.6
// "defineLabel/defineEtype/definePropkey: idempotent by name; returns
// existing id if defined."
func (s *schemaRegistry) defineOrGet(name string) (uint32, bool) {
	if id, ok := s.interner.Lookup(name); ok {
		return uint32(id), false
	}
	id := s.interner.Intern(name)
	return uint32(id), true
}

func (s *schemaRegistry) name(id uint32) (string, bool) {
	return s.interner.String(intern.ID(id))
}

// loadSchema seeds the three registries from the snapshot's durable
// schema table (if any) in ascending id order.
func loadSchema(snap *snapshot.Reader, labels, etypes, propkeys *schemaRegistry) error {
	if snap == nil {
		return nil
	}
	defs, err := snap.SchemaDefs()
	if err != nil {
		return err
	}
	byKind := map[snapshot.SchemaKind][]snapshot.SchemaEntry{}
	for _, d := range defs {
		byKind[d.Kind] = append(byKind[d.Kind], d)
	}
	seedKind := func(reg *schemaRegistry, kind snapshot.SchemaKind) {
		entries := byKind[kind]
		ordered := make([]string, len(entries))
		for _, e := range entries {
			ordered[e.ID] = e.Name
		}
		for _, name := range ordered {
			reg.seed(name)
		}
	}
	seedKind(labels, snapshot.SchemaLabel)
	seedKind(etypes, snapshot.SchemaEType)
	seedKind(propkeys, snapshot.SchemaPropKey)
	return nil
}

// pendingEntries returns every schema definition the three registries
// hold (those loaded from the snapshot and those defined since), used by
// the compactor to persist them into the next generation's snapshot.
func pendingEntries(labels, etypes, propkeys *schemaRegistry) []snapshot.SchemaEntry {
	var out []snapshot.SchemaEntry
	collect := func(reg *schemaRegistry, kind snapshot.SchemaKind) {
		for _, name := range reg.interner.All() {
			id, _ := reg.interner.Lookup(name)
			out = append(out, snapshot.SchemaEntry{Kind: kind, ID: uint32(id), Name: name})
		}
	}
	collect(labels, snapshot.SchemaLabel)
	collect(etypes, snapshot.SchemaEType)
	collect(propkeys, snapshot.SchemaPropKey)
	return out
}

// applyDeltaDefine records one definition in the overlay's schema-addition
// maps (spec §4.2 new_labels/new_etypes/new_propkeys). Nothing calls it:
// the compactor takes schema definitions from pendingEntries, not from
// the overlay.
func applyDeltaDefine(o *delta.Overlay, kind snapshot.SchemaKind, id uint32, name string) {
	switch kind {
	case snapshot.SchemaLabel:
		o.DefineLabel(id, name)
	case snapshot.SchemaEType:
		o.DefineEType(id, name)
	case snapshot.SchemaPropKey:
		o.DefinePropKey(id, name)
	}
}
