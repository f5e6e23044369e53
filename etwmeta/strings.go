package etwmeta

import "strings"

const (
	stringRefPrefix = "$(string."
	stringRefSuffix = ")"
)

// StringTable maps string ids to localized text.
type StringTable map[string]string

// Lookup returns the string with the given id.
func (t StringTable) Lookup(id string) (string, bool) {
	s, ok := t[id]
	return s, ok
}

// ResolveMessage resolves a message attribute. A value starting with '$' is a
// reference of the form $(string.<ID>) looked up in t; anything else is
// returned as is. The boolean is false for a reference that could not be
// matched, in which case the bare <ID> is returned.
func ResolveMessage(t StringTable, raw string) (string, bool) {
	if !strings.HasPrefix(raw, "$") {
		return raw, true
	}
	id, ok := stringRefID(raw)
	if !ok {
		return raw, false
	}
	if s, ok := t.Lookup(id); ok {
		return s, true
	}
	return id, false
}

// stringRefID strips the reference prefix and suffix by length.
func stringRefID(raw string) (string, bool) {
	if len(raw) < len(stringRefPrefix)+len(stringRefSuffix) {
		return "", false
	}
	return raw[len(stringRefPrefix) : len(raw)-len(stringRefSuffix)], true
}
