package httpresp

import "strings"

// Header is an ordered multimap of HTTP header fields. Unlike net/http's
// Header it remembers both the order in which names first appeared and the
// order of values within each name, and it keeps the caller's original
// casing for emission while folding case on lookup.
type Header struct {
	names   []string // canonical (first-seen) spellings, insertion order
	entries map[string][]string
}

// foldName lowercases ASCII letters only. Header names are ASCII per RFC
// 9110; non-ASCII bytes pass through unchanged.
func foldName(name string) string {
	return strings.Map(func(r rune) rune {
		if 'A' <= r && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, name)
}

// NewHeader builds a Header from alternating name/value pairs. It panics on
// an odd argument count; construction inputs are programmer-controlled.
func NewHeader(pairs ...string) *Header {
	if len(pairs)%2 != 0 {
		panic("httpresp: NewHeader requires name/value pairs")
	}
	h := &Header{}
	for i := 0; i < len(pairs); i += 2 {
		h.Add(pairs[i], pairs[i+1])
	}
	return h
}

// Add appends value under name, preserving any existing values. The first
// spelling of a name wins for emission; later Adds with different casing
// merge into the same field.
func (h *Header) Add(name, value string) {
	if h.entries == nil {
		h.entries = make(map[string][]string)
	}
	key := foldName(name)
	if _, seen := h.entries[key]; !seen {
		h.names = append(h.names, name)
	}
	h.entries[key] = append(h.entries[key], value)
}

// Set replaces all values under name with the single given value. A name
// that was not present is appended at the end of the order.
func (h *Header) Set(name, value string) {
	if h.entries == nil {
		h.entries = make(map[string][]string)
	}
	key := foldName(name)
	if _, seen := h.entries[key]; !seen {
		h.names = append(h.names, name)
	}
	h.entries[key] = []string{value}
}

// Get returns the first value for name, or "" if absent.
func (h *Header) Get(name string) string {
	if h == nil || h.entries == nil {
		return ""
	}
	vals := h.entries[foldName(name)]
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

// Values returns a copy of all values for name in insertion order.
func (h *Header) Values(name string) []string {
	if h == nil || h.entries == nil {
		return nil
	}
	vals := h.entries[foldName(name)]
	if len(vals) == 0 {
		return nil
	}
	out := make([]string, len(vals))
	copy(out, vals)
	return out
}

// Has reports whether name has at least one value.
func (h *Header) Has(name string) bool {
	if h == nil || h.entries == nil {
		return false
	}
	return len(h.entries[foldName(name)]) > 0
}

// Del removes all values for name.
func (h *Header) Del(name string) {
	if h == nil || h.entries == nil {
		return
	}
	key := foldName(name)
	if _, seen := h.entries[key]; !seen {
		return
	}
	delete(h.entries, key)
	for i, n := range h.names {
		if foldName(n) == key {
			h.names = append(h.names[:i], h.names[i+1:]...)
			break
		}
	}
}

// Names returns the field names in first-insertion order, spelled as they
// were first added.
func (h *Header) Names() []string {
	if h == nil {
		return nil
	}
	out := make([]string, len(h.names))
	copy(out, h.names)
	return out
}

// Len returns the number of distinct field names.
func (h *Header) Len() int {
	if h == nil {
		return 0
	}
	return len(h.names)
}

// Clone returns a deep copy. Clone of nil is an empty, usable Header.
func (h *Header) Clone() *Header {
	out := &Header{}
	if h == nil {
		return out
	}
	for _, name := range h.names {
		for _, v := range h.entries[foldName(name)] {
			out.Add(name, v)
		}
	}
	return out
}

// Flatten converts the multimap to the single-valued shape carried in
// synthesized error payloads: names ASCII-lowercased, multiple values for a
// name joined with ", " in insertion order. Name order itself is not
// represented in the result (it is a plain map); only value order within a
// name survives.
func (h *Header) Flatten() map[string]string {
	out := make(map[string]string)
	if h == nil {
		return out
	}
	for _, name := range h.names {
		key := foldName(name)
		out[key] = strings.Join(h.entries[key], ", ")
	}
	return out
}
