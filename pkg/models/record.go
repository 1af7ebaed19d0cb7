package models

// GlideRow is one row as returned by the Glide table API: a loosely typed
// string-keyed map. It never propagates past the transformer.
type GlideRow map[string]any

// Record is one relational-shaped record produced by the transformer,
// keyed by relational column name. Fields dropped by per-field validation
// are simply absent.
type Record map[string]any

// RowID returns the record's Glide stable identifier, empty when unset.
func (r Record) RowID() string {
	v, ok := r[GlideRowIDColumn]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}
