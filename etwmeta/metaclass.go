package etwmeta

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/0xrawsec/golang-utils/datastructs"
)

// RootClass is the meta-class every legacy provider class derives from.
const RootClass = "EventTrace"

// qualifier names, matched case-insensitively
const (
	qualGUID          = "guid"
	qualEventVersion  = "eventVersion"
	qualDescription   = "description"
	qualDisplayName   = "displayName"
	qualEventType     = "eventType"
	qualEventTypeName = "eventTypeName"
	qualWmiDataID     = "wmiDataId"
)

// MetaClass is a class of the legacy metadata hierarchy.
type MetaClass struct {
	Name       string
	Superclass string
	Qualifiers Qualifiers
	Properties []MetaProperty
}

// MetaProperty is a class property; Type is the declared type name.
type MetaProperty struct {
	Name       string
	Type       string
	Qualifiers Qualifiers
}

// ClassQuery answers subclass queries over a meta-class hierarchy.
// Subclasses returns the direct subclasses of superclass, in a stable order.
type ClassQuery interface {
	Subclasses(superclass string) ([]MetaClass, error)
}

// ProviderDirectory gives the display name and keywords of registered
// providers, information the class hierarchy does not carry.
type ProviderDirectory interface {
	ProviderName(guid GUID) string
	ProviderKeywords(guid GUID) []Keyword
}

// ParseLegacy builds a model for a legacy provider by walking the class
// hierarchy EventTrace -> provider -> category -> template classes. It fails
// with *ProviderNotFoundError when no EventTrace subclass has a matching guid
// qualifier. Query errors are returned wrapped.
func ParseLegacy(guid GUID, q ClassQuery, opts ...Option) (*Manifest, error) {
	o := newOptions(opts)

	prov, err := findProviderClass(guid, q, o)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		ProviderSymbol: prov.Name,
		ProviderGUID:   guid,
		StringTable:    make(StringTable),
		Events:         []Event{},
		Templates:      []Template{},
	}
	if o.directory != nil {
		m.ProviderName = o.directory.ProviderName(guid)
		m.Keywords = o.directory.ProviderKeywords(guid)
	}
	if m.ProviderName == "" {
		m.ProviderName = prov.Name
	}

	w := &walker{opts: o, m: m}

	categories, err := q.Subclasses(prov.Name)
	if err != nil {
		return nil, fmt.Errorf("query subclasses of %s: %w", prov.Name, err)
	}
	for _, cat := range categories {
		templates, err := q.Subclasses(cat.Name)
		if err != nil {
			return nil, fmt.Errorf("query subclasses of %s: %w", cat.Name, err)
		}
		w.category(cat, templates)
	}

	sort.SliceStable(m.Events, func(i, j int) bool {
		a, b := m.Events[i], m.Events[j]
		if a.TaskRef != b.TaskRef {
			return a.TaskRef < b.TaskRef
		}
		if a.ID != b.ID {
			return a.ID < b.ID
		}
		if a.Version != b.Version {
			return a.Version < b.Version
		}
		return a.Symbol < b.Symbol
	})

	slog.Debug("walked legacy provider", "model", lazyModelSummary{m})
	return m, nil
}

func findProviderClass(guid GUID, q ClassQuery, o *options) (*MetaClass, error) {
	classes, err := q.Subclasses(RootClass)
	if err != nil {
		return nil, fmt.Errorf("query subclasses of %s: %w", RootClass, err)
	}
	for i := range classes {
		v, ok := classes[i].Qualifiers.Lookup(qualGUID)
		if !ok {
			continue
		}
		s, ok := v.AsString()
		if !ok {
			o.skip("", CompMetaClass, "guid qualifier is "+v.Kind().String(), classes[i].Name)
			continue
		}
		g, err := ParseGUID(s)
		if err != nil {
			o.skip("", CompMetaClass, "malformed guid qualifier", classes[i].Name+" "+s)
			continue
		}
		if g.Equals(guid) {
			return &classes[i], nil
		}
	}
	return nil, &ProviderNotFoundError{GUID: guid}
}

type walker struct {
	opts *options
	m    *Manifest
}

// categoryInfo holds what a category class passes down to its templates.
type categoryInfo struct {
	version     int
	label       string
	description string
	displayName string
}

func (w *walker) category(cat MetaClass, templates []MetaClass) {
	info := categoryInfo{
		version:     w.version(cat, 0),
		label:       w.text(cat, qualGUID),
		description: w.text(cat, qualDescription),
		displayName: w.text(cat, qualDisplayName),
	}

	msg := info.displayName
	if msg == "" {
		msg = info.description
	}
	w.m.Tasks = append(w.m.Tasks, Task{Name: info.label, Symbol: cat.Name, Message: msg})

	for _, tc := range templates {
		w.template(info, tc)
	}
}

func (w *walker) template(cat categoryInfo, tc MetaClass) {
	version := w.version(tc, cat.version)

	description := cat.description
	if d, ok := tc.Qualifiers.Text(qualDescription); ok {
		description = d
	}

	var opcode string
	var opcodes []string
	if v, ok := tc.Qualifiers.Lookup(qualEventTypeName); ok {
		switch v.Kind() {
		case QualifierString:
			opcode, _ = v.AsString()
		case QualifierStringArray:
			opcodes, _ = v.AsStringArray()
		default:
			w.opts.skip(w.m.ProviderName, CompMetaClass, "eventTypeName is "+v.Kind().String(), tc.Name)
		}
	}

	raw := w.eventTypes(tc)
	for _, id := range uniqueSorted(raw) {
		op := opcode
		if len(opcodes) == len(raw) {
			for i := range raw {
				if raw[i] == id {
					op = opcodes[i]
					break
				}
			}
		}
		w.m.Events = append(w.m.Events, Event{
			ID:          id,
			Symbol:      tc.Name,
			Opcode:      op,
			Version:     version,
			TemplateRef: tc.Name,
			KeywordRef:  description,
			TaskRef:     cat.label,
		})
	}

	w.m.Templates = append(w.m.Templates, Template{ID: tc.Name, Items: w.items(tc)})

	if cat.description != "" {
		w.m.StringTable[tc.Name] = cat.description
	}
}

// version reads eventVersion, falling back to dflt when absent or unusable.
func (w *walker) version(c MetaClass, dflt int) int {
	v, ok := c.Qualifiers.Lookup(qualEventVersion)
	if !ok {
		return dflt
	}
	switch v.Kind() {
	case QualifierInt:
		n, _ := v.AsInt()
		if n < 0 {
			w.opts.skip(w.m.ProviderName, CompMetaClass, "negative eventVersion", c.Name)
			return dflt
		}
		return int(n)
	default:
		w.opts.skip(w.m.ProviderName, CompMetaClass, "eventVersion is "+v.Kind().String(), c.Name)
		return dflt
	}
}

func (w *walker) text(c MetaClass, name string) string {
	v, ok := c.Qualifiers.Lookup(name)
	if !ok {
		return ""
	}
	switch v.Kind() {
	case QualifierString:
		s, _ := v.AsString()
		return s
	default:
		w.opts.skip(w.m.ProviderName, CompMetaClass, name+" is "+v.Kind().String(), c.Name)
		return ""
	}
}

// eventTypes returns the declared event ids in declaration order.
func (w *walker) eventTypes(c MetaClass) []int {
	v, ok := c.Qualifiers.Lookup(qualEventType)
	if !ok {
		return nil
	}
	switch v.Kind() {
	case QualifierInt:
		n, _ := v.AsInt()
		return []int{int(n)}
	case QualifierIntArray:
		a, _ := v.AsIntArray()
		ids := make([]int, len(a))
		for i, n := range a {
			ids[i] = int(n)
		}
		return ids
	default:
		w.opts.skip(w.m.ProviderName, CompMetaClass, "eventType is "+v.Kind().String(), c.Name)
		return nil
	}
}

// items returns the properties carrying a wmiDataId, ordered by it. A repeated
// id keeps the last property.
func (w *walker) items(c MetaClass) []TemplateItem {
	byID := make(map[int64]TemplateItem)
	for _, p := range c.Properties {
		v, ok := p.Qualifiers.Lookup(qualWmiDataID)
		if !ok {
			continue
		}
		id, ok := v.AsInt()
		if !ok {
			w.opts.skip(w.m.ProviderName, CompTemplate, "wmiDataId is "+v.Kind().String(), c.Name+"."+p.Name)
			continue
		}
		byID[id] = TemplateItem{Name: p.Name, Type: p.Type}
	}

	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	items := make([]TemplateItem, 0, len(ids))
	for _, id := range ids {
		items = append(items, byID[id])
	}
	return items
}

func uniqueSorted(ids []int) []int {
	seen := datastructs.NewInitSet()
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if seen.Contains(id) {
			continue
		}
		seen.Add(id)
		out = append(out, id)
	}
	sort.Ints(out)
	return out
}
