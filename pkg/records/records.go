// Package records defines the loosely-typed record shape exchanged between
// parsers, transforms, and staging loaders.
package records

// Record is a single semi-structured record: one decoded JSON object from a
// song-metadata file or one line of an event log.
type Record map[string]any

// String returns the string value for key, or "" when the key is absent,
// nil, or not a string.
func (r Record) String(key string) string {
	if v, ok := r[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Has reports whether key is present with a non-nil value.
func (r Record) Has(key string) bool {
	v, ok := r[key]
	return ok && v != nil
}
