package etwmeta

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/beevik/etree"
)

// element local names looked up in the manifest default namespace
const (
	elemStringTable = "stringTable"
	elemProvider    = "provider"
	elemEvent       = "event"
	elemKeyword     = "keyword"
	elemTemplate    = "template"
	elemTask        = "task"
	elemOpcode      = "opcode"
	elemData        = "data"
	elemStruct      = "struct"
)

var indexed = map[string]bool{
	elemStringTable: true,
	elemProvider:    true,
	elemEvent:       true,
	elemKeyword:     true,
	elemTemplate:    true,
	elemTask:        true,
}

// ParseManifest builds a model from instrumentation manifest XML. Malformed
// XML, a missing provider element or a missing or malformed provider GUID
// fail with a *ManifestParseError. Unusable string table entries are skipped
// and reported to the diagnostics sink.
func ParseManifest(xml string, opts ...Option) (*Manifest, error) {
	return parseManifest(xml, func(doc *etree.Document) error {
		return doc.ReadFromString(xml)
	}, opts)
}

// ParseManifestBytes is ParseManifest for a byte slice.
func ParseManifestBytes(xml []byte, opts ...Option) (*Manifest, error) {
	return parseManifest(string(xml), func(doc *etree.Document) error {
		return doc.ReadFromBytes(xml)
	}, opts)
}

func parseManifest(src string, read func(*etree.Document) error, opts []Option) (m *Manifest, err error) {
	o := newOptions(opts)

	doc := etree.NewDocument()
	if err = read(doc); err != nil {
		return nil, &ManifestParseError{Err: err}
	}
	if err = singleRoot(doc); err != nil {
		return nil, err
	}
	root := doc.Root()

	p := &manifestParser{
		opts:  o,
		ns:    defaultNamespace(root),
		elems: make(map[string][]*etree.Element),
	}
	p.index(root)

	m = &Manifest{Source: src, StringTable: make(StringTable)}

	if err = p.provider(m); err != nil {
		return nil, err
	}
	p.stringTable(m)
	if m.Events, err = p.events(m); err != nil {
		return nil, err
	}
	if m.Keywords, err = p.keywords(m); err != nil {
		return nil, err
	}
	m.Tasks = p.tasks(m)
	m.Templates = p.templates(m)

	slog.Debug("parsed manifest", "model", lazyModelSummary{m})
	return m, nil
}

// singleRoot rejects what etree tolerates at the top level: no element, a
// second element, or text outside the root.
func singleRoot(doc *etree.Document) error {
	roots := 0
	for _, tok := range doc.Child {
		switch t := tok.(type) {
		case *etree.Element:
			roots++
		case *etree.CharData:
			if !t.IsWhitespace() {
				return parseErr("", "text outside the root element: %q", t.Data)
			}
		}
	}
	switch roots {
	case 0:
		return parseErr("", "document has no root element")
	case 1:
		return nil
	default:
		return parseErr("", "document has %d root elements", roots)
	}
}

type manifestParser struct {
	opts  *options
	ns    string
	elems map[string][]*etree.Element
}

// defaultNamespace returns the namespace declared by xmlns on the root.
func defaultNamespace(root *etree.Element) string {
	for _, a := range root.Attr {
		if a.Space == "" && a.Key == "xmlns" {
			return a.Value
		}
	}
	return ""
}

// index collects, in document order, the descendants of root in the default
// namespace whose local names are looked up later.
func (p *manifestParser) index(root *etree.Element) {
	for _, c := range root.ChildElements() {
		if indexed[c.Tag] && c.NamespaceURI() == p.ns {
			p.elems[c.Tag] = append(p.elems[c.Tag], c)
		}
		p.index(c)
	}
}

func (p *manifestParser) descendants(e *etree.Element, local string) (out []*etree.Element) {
	for _, c := range e.ChildElements() {
		if c.Tag == local && c.NamespaceURI() == p.ns {
			out = append(out, c)
		}
		out = append(out, p.descendants(c, local)...)
	}
	return
}

// attr returns an unqualified attribute value.
func attr(e *etree.Element, key string) (string, bool) {
	for _, a := range e.Attr {
		if a.Space == "" && a.Key == key {
			return a.Value, true
		}
	}
	return "", false
}

func attrOr(e *etree.Element, key string) string {
	v, _ := attr(e, key)
	return v
}

// afterColon drops a qualifying prefix such as "win:".
func afterColon(s string) string {
	if i := strings.IndexByte(s, ':'); i >= 0 {
		return s[i+1:]
	}
	return s
}

func (p *manifestParser) provider(m *Manifest) error {
	provs := p.elems[elemProvider]
	if len(provs) == 0 {
		return parseErr("", "no provider element")
	}
	prov := provs[0]

	m.ProviderName = attrOr(prov, "name")
	m.ProviderSymbol = attrOr(prov, "symbol")

	sguid, ok := attr(prov, "guid")
	if !ok {
		return parseErr(m.ProviderName, "provider has no guid attribute")
	}
	g, err := ParseGUID(sguid)
	if err != nil {
		return parseErr(m.ProviderName, "provider guid %q: %w", sguid, err)
	}
	m.ProviderGUID = *g
	return nil
}

func (p *manifestParser) stringTable(m *Manifest) {
	tables := p.elems[elemStringTable]
	if len(tables) == 0 {
		return
	}
	for _, e := range p.allDescendants(tables[0]) {
		id, okID := attr(e, "id")
		value, okValue := attr(e, "value")
		switch {
		case !okID || id == "":
			p.opts.skip(m.ProviderName, CompStringTable, "missing id", e.Tag)
		case !okValue:
			p.opts.skip(m.ProviderName, CompStringTable, "missing value", id)
		default:
			if _, dup := m.StringTable[id]; dup {
				p.opts.skip(m.ProviderName, CompStringTable, "duplicate id", id)
				continue
			}
			m.StringTable[id] = value
		}
	}
}

func (p *manifestParser) allDescendants(e *etree.Element) (out []*etree.Element) {
	for _, c := range e.ChildElements() {
		out = append(out, c)
		out = append(out, p.allDescendants(c)...)
	}
	return
}

func (p *manifestParser) resolve(m *Manifest, raw string) string {
	s, ok := ResolveMessage(m.StringTable, raw)
	if !ok {
		p.opts.skip(m.ProviderName, CompMessage, "unresolved string reference", raw)
	}
	return s
}

func (p *manifestParser) events(m *Manifest) ([]Event, error) {
	elems := p.elems[elemEvent]
	events := make([]Event, 0, len(elems))
	for _, e := range elems {
		sval, ok := attr(e, "value")
		if !ok {
			return nil, parseErr(m.ProviderName, "event %q has no value", attrOr(e, "symbol"))
		}
		id, err := strconv.Atoi(strings.TrimSpace(sval))
		if err != nil {
			return nil, parseErr(m.ProviderName, "event value %q: %w", sval, err)
		}

		version := 0
		if sver, ok := attr(e, "version"); ok {
			if version, err = strconv.Atoi(strings.TrimSpace(sver)); err != nil || version < 0 {
				return nil, parseErr(m.ProviderName, "event %d version %q is not a non-negative integer", id, sver)
			}
		}

		events = append(events, Event{
			ID:          id,
			Symbol:      attrOr(e, "symbol"),
			Level:       afterColon(attrOr(e, "level")),
			Opcode:      afterColon(attrOr(e, "opcode")),
			Version:     version,
			TemplateRef: attrOr(e, "template"),
			KeywordRef:  attrOr(e, "keywords"),
			TaskRef:     attrOr(e, "task"),
		})
	}
	return events, nil
}

func (p *manifestParser) keywords(m *Manifest) ([]Keyword, error) {
	elems := p.elems[elemKeyword]
	keywords := make([]Keyword, 0, len(elems))
	for _, e := range elems {
		k := Keyword{Name: attrOr(e, "name")}
		if smask, ok := attr(e, "mask"); ok {
			mask, err := ParseMask(smask)
			if err != nil {
				return nil, parseErr(m.ProviderName, "keyword %q mask: %w", k.Name, err)
			}
			k.Mask = mask
		}
		k.Message = p.resolve(m, attrOr(e, "message"))
		keywords = append(keywords, k)
	}
	return keywords, nil
}

// ErrBadMask is returned by ParseMask for text that is not 0x prefixed hex.
var ErrBadMask = errors.New("mask is not 0x prefixed hexadecimal")

// ParseMask reads a keyword mask the way manifests write it, "0x" followed by
// up to 16 hex digits. Callers decide what an absent mask means.
func ParseMask(s string) (uint64, error) {
	s = strings.TrimSpace(s)
	if len(s) < 3 || s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return 0, ErrBadMask
	}
	return strconv.ParseUint(s[2:], 16, 64)
}

func (p *manifestParser) tasks(m *Manifest) []Task {
	elems := p.elems[elemTask]
	tasks := make([]Task, 0, len(elems))
	for _, e := range elems {
		t := Task{
			Name:      attrOr(e, "name"),
			Symbol:    attrOr(e, "symbol"),
			Value:     p.intAttr(m, e, CompTask, "value"),
			EventGUID: attrOr(e, "eventGUID"),
			Message:   p.resolve(m, attrOr(e, "message")),
		}
		for _, oe := range p.descendants(e, elemOpcode) {
			t.Opcodes = append(t.Opcodes, Opcode{
				Name:    attrOr(oe, "name"),
				Symbol:  attrOr(oe, "symbol"),
				Value:   p.intAttr(m, oe, CompTask, "value"),
				Message: p.resolve(m, attrOr(oe, "message")),
			})
		}
		tasks = append(tasks, t)
	}
	return tasks
}

// intAttr reads an optional integer attribute, 0 when absent or malformed.
func (p *manifestParser) intAttr(m *Manifest, e *etree.Element, comp, key string) int {
	s, ok := attr(e, key)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		p.opts.skip(m.ProviderName, comp, "malformed "+key, attrOr(e, "name")+"="+s)
		return 0
	}
	return n
}

func (p *manifestParser) templates(m *Manifest) []Template {
	elems := p.elems[elemTemplate]
	templates := make([]Template, 0, len(elems))
	for _, e := range elems {
		tid, ok := attr(e, "tid")
		if !ok || tid == "" {
			p.opts.skip(m.ProviderName, CompTemplate, "missing tid", e.GetPath())
			continue
		}
		t := Template{ID: tid}
		for _, c := range e.ChildElements() {
			if c.NamespaceURI() != p.ns {
				continue
			}
			switch c.Tag {
			case elemData:
				t.Items = append(t.Items, TemplateItem{Name: attrOr(c, "name"), Type: attrOr(c, "inType")})
			case elemStruct:
				t.Items = append(t.Items, TemplateItem{Name: attrOr(c, "name"), Type: elemStruct})
			}
		}
		templates = append(templates, t)
	}
	return templates
}
