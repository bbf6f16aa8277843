package models

// Record is one flattened filing. Keys keep their insertion order and every
// record produced from the same schema carries the same keys.
type Record struct {
	keys   []string
	values map[string]string
}

// NewRecord creates an empty record with room for n fields.
func NewRecord(n int) *Record {
	return &Record{
		keys:   make([]string, 0, n),
		values: make(map[string]string, n),
	}
}

// Set stores value under key. A new key is appended to the key order;
// an existing key keeps its position.
func (r *Record) Set(key, value string) {
	if _, ok := r.values[key]; !ok {
		r.keys = append(r.keys, key)
	}

	r.values[key] = value
}

// Get returns the value for key and whether the key exists.
func (r *Record) Get(key string) (string, bool) {
	v, ok := r.values[key]

	return v, ok
}

// Value returns the value for key, or "" when the key is absent.
func (r *Record) Value(key string) string {
	return r.values[key]
}

// Keys returns a copy of the ordered key list.
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)

	return out
}

// Len returns the number of fields.
func (r *Record) Len() int {
	return len(r.keys)
}

// NonEmpty counts fields holding a non-empty value.
func (r *Record) NonEmpty() int {
	n := 0

	for _, k := range r.keys {
		if r.values[k] != "" {
			n++
		}
	}

	return n
}
