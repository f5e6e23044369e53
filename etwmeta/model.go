package etwmeta

// Manifest is the normalized metadata of one provider, built once by
// ParseManifest or ParseLegacy and only read afterwards.
type Manifest struct {
	// Source is the manifest XML the model was parsed from, empty for legacy
	// providers.
	Source string

	ProviderName   string
	ProviderSymbol string
	ProviderGUID   GUID

	StringTable StringTable

	Events    []Event
	Keywords  []Keyword
	Tasks     []Task
	Templates []Template
}

// Event is one event definition. Refs are resolved lazily by consumers and
// may dangle.
type Event struct {
	ID      int
	Symbol  string
	Level   string
	Opcode  string
	Version int

	TemplateRef string
	KeywordRef  string
	TaskRef     string
}

type Keyword struct {
	Name    string
	Mask    uint64
	Message string
}

type Task struct {
	Name      string
	Symbol    string
	Value     int
	EventGUID string
	Message   string
	Opcodes   []Opcode
}

type Opcode struct {
	Name    string
	Symbol  string
	Value   int
	Message string
}

// Template is the ordered field layout of an event payload.
type Template struct {
	ID    string
	Items []TemplateItem
}

// TemplateItem is one field; Type is the declared type text, "win:UInt32" for
// manifests or a CIM type name such as "UInt32" for legacy classes.
type TemplateItem struct {
	Name string
	Type string
}

// Template returns the template with the given id.
func (m *Manifest) Template(id string) (Template, bool) {
	if id == "" {
		return Template{}, false
	}
	for _, t := range m.Templates {
		if t.ID == id {
			return t, true
		}
	}
	return Template{}, false
}

// Fields returns the payload fields of e, empty when its template is absent.
func (m *Manifest) Fields(e Event) []TemplateItem {
	if t, ok := m.Template(e.TemplateRef); ok {
		return t.Items
	}
	return nil
}

// Resolve resolves raw through the model's string table.
func (m *Manifest) Resolve(raw string) string {
	s, _ := ResolveMessage(m.StringTable, raw)
	return s
}

// Keyword returns the keyword with the given name.
func (m *Manifest) Keyword(name string) (Keyword, bool) {
	for _, k := range m.Keywords {
		if k.Name == name {
			return k, true
		}
	}
	return Keyword{}, false
}

// Legacy reports whether the model was derived from meta-classes.
func (m *Manifest) Legacy() bool {
	return m.Source == ""
}
