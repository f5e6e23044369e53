package etwmeta

import (
	"errors"
	"strings"
	"testing"

	"github.com/0xrawsec/toast"
	"github.com/tekert/golang-etwmeta/internal/test"
)

// classTree is an in-memory ClassQuery.
type classTree map[string][]MetaClass

func (c classTree) Subclasses(superclass string) ([]MetaClass, error) {
	for k, v := range c {
		if strings.EqualFold(k, superclass) {
			return v, nil
		}
	}
	return nil, nil
}

type failingQuery struct{ err error }

func (f failingQuery) Subclasses(string) ([]MetaClass, error) { return nil, f.err }

type staticDirectory struct {
	name     string
	keywords []Keyword
}

func (d staticDirectory) ProviderName(GUID) string { return d.name }

func (d staticDirectory) ProviderKeywords(GUID) []Keyword { return d.keywords }

const legacyGUID = "{9E814AAD-3204-11D2-9A82-006008A86939}"

func wmiProp(name, typ string, id int64) MetaProperty {
	return MetaProperty{Name: name, Type: typ, Qualifiers: Qualifiers{{Name: "WmiDataId", Value: IntValue(id)}}}
}

func legacyTree() classTree {
	return classTree{
		RootClass: {
			{Name: "OtherProvider", Qualifiers: Qualifiers{{Name: "Guid", Value: StringValue("{00000000-0000-0000-0000-000000000001}")}}},
			{Name: "BrokenGuid", Qualifiers: Qualifiers{{Name: "Guid", Value: StringValue("garbage")}}},
			{Name: "NoGuid"},
			{Name: "SampleTrace", Qualifiers: Qualifiers{{Name: "Guid", Value: StringValue(strings.ToLower(legacyGUID))}}},
		},
		"SampleTrace": {
			{Name: "Sample_V2", Qualifiers: Qualifiers{
				{Name: "EventVersion", Value: IntValue(2)},
				{Name: "Guid", Value: StringValue("B")},
				{Name: "Description", Value: StringValue("Thread events")},
				{Name: "DisplayName", Value: StringValue("Thread")},
			}},
			{Name: "Sample_A", Qualifiers: Qualifiers{
				{Name: "Guid", Value: StringValue("A")},
			}},
		},
		"Sample_V2": {
			{
				Name: "Sample_V2_TypeGroup1",
				Qualifiers: Qualifiers{
					{Name: "EventType", Value: IntArrayValue(3, 1, 3)},
					{Name: "EventTypeName", Value: StringArrayValue("DCStart", "Start", "DCStart")},
				},
				Properties: []MetaProperty{
					wmiProp("ThreadId", "UInt32", 2),
					wmiProp("ProcessId", "UInt32", 1),
					{Name: "Unmarked", Type: "String"},
				},
			},
			{
				Name: "Sample_V2_Old",
				Qualifiers: Qualifiers{
					{Name: "EventType", Value: IntValue(1)},
					{Name: "EventVersion", Value: IntValue(1)},
					{Name: "EventTypeName", Value: StringValue("Start")},
					{Name: "Description", Value: StringValue("old layout")},
				},
			},
		},
		"Sample_A": {
			{
				Name:       "Sample_A_Event",
				Qualifiers: Qualifiers{{Name: "eventtype", Value: IntValue(5)}},
				Properties: []MetaProperty{wmiProp("Data", "UInt8", 1), wmiProp("Override", "UInt16", 1)},
			},
			{Name: "Sample_A_NoTypes"},
		},
	}
}

func TestParseLegacy(t *testing.T) {
	t.Parallel()

	tt := test.FromT(t)
	guid := *MustParseGUID(legacyGUID)

	var diags Collector
	m, err := ParseLegacy(guid, legacyTree(),
		WithDiagnostics(&diags),
		WithProviderDirectory(staticDirectory{name: "Sample Trace", keywords: []Keyword{{Name: "k", Mask: 1}}}))
	tt.CheckErr(err)

	tt.Assert(m.Legacy())
	tt.Equal(m.ProviderName, "Sample Trace")
	tt.Equal(m.ProviderSymbol, "SampleTrace")
	tt.Equal(m.ProviderGUID, guid)
	tt.Equal(m.Keywords, []Keyword{{Name: "k", Mask: 1}})

	// sorted by category, then id, then version
	got := make([]string, 0, len(m.Events))
	for _, e := range m.Events {
		got = append(got, e.TaskRef+"/"+e.Symbol)
	}
	tt.Equal(got, []string{
		"A/Sample_A_Event",
		"B/Sample_V2_Old",
		"B/Sample_V2_TypeGroup1",
		"B/Sample_V2_TypeGroup1",
	})

	tt.Equal(m.Events[1], Event{
		ID: 1, Symbol: "Sample_V2_Old", Opcode: "Start", Version: 1,
		TemplateRef: "Sample_V2_Old", KeywordRef: "old layout", TaskRef: "B",
	})
	tt.Equal(m.Events[2], Event{
		ID: 1, Symbol: "Sample_V2_TypeGroup1", Opcode: "Start", Version: 2,
		TemplateRef: "Sample_V2_TypeGroup1", KeywordRef: "Thread events", TaskRef: "B",
	})
	tt.Equal(m.Events[3].ID, 3)
	tt.Equal(m.Events[3].Opcode, "DCStart")

	tt.Equal(m.Fields(m.Events[2]), []TemplateItem{
		{Name: "ProcessId", Type: "UInt32"},
		{Name: "ThreadId", Type: "UInt32"},
	})
	// repeated wmiDataId keeps the last property
	tt.Equal(m.Fields(m.Events[0]), []TemplateItem{{Name: "Override", Type: "UInt16"}})

	// a template without eventType still contributes a template
	_, ok := m.Template("Sample_A_NoTypes")
	tt.Assert(ok)
	tt.Equal(len(m.Templates), 4)

	tt.Equal(m.StringTable, StringTable{
		"Sample_V2_TypeGroup1": "Thread events",
		"Sample_V2_Old":        "Thread events",
	})

	tt.Equal(m.Tasks, []Task{
		{Name: "B", Symbol: "Sample_V2", Message: "Thread"},
		{Name: "A", Symbol: "Sample_A"},
	})

	// the malformed guid on an unrelated provider is reported, not fatal
	tt.Equal(diags.Count(CompMetaClass), 1)
}

func TestParseLegacyMultiID(t *testing.T) {
	t.Parallel()

	tt := toast.FromT(t)
	guid := *MustParseGUID(legacyGUID)

	tree := classTree{
		RootClass: {{Name: "P", Qualifiers: Qualifiers{{Name: "guid", Value: StringValue(legacyGUID)}}}},
		"P":       {{Name: "C"}},
		"C": {{Name: "T", Qualifiers: Qualifiers{
			{Name: "EventType", Value: IntArrayValue(10, 11, 12)},
			{Name: "EventTypeName", Value: StringValue("Info")},
		}}},
	}

	m, err := ParseLegacy(guid, tree)
	tt.CheckErr(err)
	tt.Assert(len(m.Events) == 3)
	for i, e := range m.Events {
		tt.Assert(e.ID == 10+i)
		tt.Assert(e.TemplateRef == "T")
		tt.Assert(e.Opcode == "Info")
	}
	// provider name falls back to the class name without a directory
	tt.Assert(m.ProviderName == "P")
	tt.Assert(len(m.StringTable) == 0)
}

func TestParseLegacyEmptyProvider(t *testing.T) {
	t.Parallel()

	tt := toast.FromT(t)
	guid := *MustParseGUID(legacyGUID)

	m, err := ParseLegacy(guid, classTree{
		RootClass: {{Name: "P", Qualifiers: Qualifiers{{Name: "Guid", Value: StringValue(legacyGUID)}}}},
	})
	tt.CheckErr(err)
	tt.Assert(len(m.Events) == 0)
	tt.Assert(len(m.Templates) == 0)
}

func TestParseLegacyNotFound(t *testing.T) {
	t.Parallel()

	tt := test.FromT(t)
	guid := *MustParseGUID("{DEADBEEF-0000-0000-0000-000000000000}")

	_, err := ParseLegacy(guid, legacyTree())
	tt.ExpectErr(err, ErrProviderNotFound)

	var nf *ProviderNotFoundError
	tt.Assert(errors.As(err, &nf))
	tt.Equal(nf.GUID, guid)
}

func TestParseLegacyQueryError(t *testing.T) {
	t.Parallel()

	tt := test.FromT(t)
	boom := errors.New("wmi unavailable")

	_, err := ParseLegacy(*MustParseGUID(legacyGUID), failingQuery{boom})
	tt.ExpectErr(err, boom)
	tt.Assert(!errors.Is(err, ErrProviderNotFound))
}

func TestParseLegacyBadQualifierKinds(t *testing.T) {
	t.Parallel()

	tt := test.FromT(t)
	guid := *MustParseGUID(legacyGUID)

	var diags Collector
	m, err := ParseLegacy(guid, classTree{
		RootClass: {{Name: "P", Qualifiers: Qualifiers{{Name: "Guid", Value: StringValue(legacyGUID)}}}},
		"P": {{Name: "C", Qualifiers: Qualifiers{
			{Name: "EventVersion", Value: StringValue("2")},
			{Name: "Description", Value: IntValue(3)},
		}}},
		"C": {{Name: "T", Qualifiers: Qualifiers{
			{Name: "EventType", Value: StringValue("1")},
			{Name: "EventVersion", Value: IntValue(-4)},
		}}},
	}, WithDiagnostics(&diags))
	tt.CheckErr(err)

	tt.Equal(len(m.Events), 0)
	tt.Equal(len(m.Templates), 1)
	tt.Equal(diags.Count(CompMetaClass), 4)
}
