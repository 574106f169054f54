package snapshot

import "encoding/binary"

// SchemaKind discriminates the three dense id namespaces of spec §3
// ("label_id, name", "etype_id, name", "propkey_id, name").
type SchemaKind uint8

const (
	SchemaLabel SchemaKind = iota
	SchemaEType
	SchemaPropKey
)

// schemaEntrySize: kind(u8) + id(u32) + string_id(u32).
const schemaEntrySize = 1 + 4 + 4

// SchemaEntry is one durable (kind, id, name) record.
type SchemaEntry struct {
	Kind SchemaKind
	ID   uint32
	Name string
}

// EncodeSchemaDefs serializes entries, resolving each Name to a
// string_id via intern (typically the compactor's in-progress string
// table builder).
func EncodeSchemaDefs(entries []SchemaEntry, intern func(string) uint32) []byte {
	out := make([]byte, 0, len(entries)*schemaEntrySize)
	for _, e := range entries {
		b := make([]byte, schemaEntrySize)
		b[0] = byte(e.Kind)
		binary.LittleEndian.PutUint32(b[1:], e.ID)
		binary.LittleEndian.PutUint32(b[5:], intern(e.Name))
		out = append(out, b...)
	}
	return out
}

// SchemaDefs decodes the full schema table from the snapshot.
func (r *Reader) SchemaDefs() ([]SchemaEntry, error) {
	sec := r.section(SecSchemaDefs)
	n := len(sec) / schemaEntrySize
	out := make([]SchemaEntry, 0, n)
	for i := 0; i < n; i++ {
		off := i * schemaEntrySize
		kind := SchemaKind(sec[off])
		id := binary.LittleEndian.Uint32(sec[off+1:])
		strID := binary.LittleEndian.Uint32(sec[off+5:])
		name, err := r.String(strID)
		if err != nil {
			return nil, err
		}
		out = append(out, SchemaEntry{Kind: kind, ID: id, Name: name})
	}
	return out, nil
}
