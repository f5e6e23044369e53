package repair

import (
	"errors"
	"testing"

	"github.com/0xrawsec/toast"
	"github.com/tekert/golang-etwmeta/etwmeta"
	"github.com/tekert/golang-etwmeta/internal/test"
)

func TestDefault(t *testing.T) {
	tt := toast.FromT(t)

	table := Default()
	tt.Assert(table.Version >= 1)
	for _, p := range []string{
		"Microsoft-Windows-AppXDeployment-Server",
		"Microsoft-Windows-GroupPolicy",
		"Microsoft-Windows-NetworkProvider",
		"Microsoft-Windows-Ntfs",
	} {
		tt.Assert(table.Has(p))
	}
	tt.Assert(!table.Has("Microsoft-Windows-Kernel-File"))
}

func TestApply(t *testing.T) {
	tt := test.FromT(t)
	table := Default()

	in := `<string id="a" value="run "CHKDSK /SCAN" or "REPAIR-VOLUME <drive:> -SCAN" on <unknown>"/>`
	out, changed := table.Apply("Microsoft-Windows-Ntfs", in)
	tt.Assert(changed)
	tt.Equal(out, `<string id="a" value="run &quot;CHKDSK /SCAN&quot; or &quot;REPAIR-VOLUME &lt;drive:&gt; -SCAN&quot; on &lt;unknown&gt;"/>`)

	// other providers are untouched
	out, changed = table.Apply("Microsoft-Windows-GroupPolicy", in)
	tt.Assert(!changed)
	tt.Equal(out, in)
}

// A repaired manifest goes through the parser where the raw text does not.
func TestApplyMakesManifestParseable(t *testing.T) {
	tt := test.FromT(t)

	const broken = `<instrumentationManifest xmlns="http://schemas.microsoft.com/win/2004/08/events">
 <instrumentation><events>
  <provider name="Microsoft-Windows-GroupPolicy" guid="{AEA1B4FA-97D1-45F2-A64C-4D69FFFD92C9}">
   <events><event value="1" symbol="Mode" message="$(string.m)"/></events>
  </provider>
 </events></instrumentation>
 <localization><resources><stringTable>
  <string id="m" value="Loopback is "Merge" not "Replace""/>
 </stringTable></resources></localization>
</instrumentationManifest>`

	_, err := etwmeta.ParseManifest(broken)
	tt.Assert(errors.Is(err, etwmeta.ErrManifestParse), "raw text should not parse, got %v", err)

	fixed, changed := Default().Apply("Microsoft-Windows-GroupPolicy", broken)
	tt.Assert(changed)
	m, err := etwmeta.ParseManifest(fixed)
	tt.CheckErr(err)
	tt.Equal(m.StringTable["m"], `Loopback is "Merge" not "Replace"`)
}

func TestLoadAndMerge(t *testing.T) {
	tt := test.FromT(t)

	path := tt.TempFile("repairs.yaml", []byte(`
version: 3
entries:
  - provider: Contoso-Widget
    replace:
      - {old: '<b>', new: '&lt;b&gt;'}
`))
	user, err := Load(path)
	tt.CheckErr(err)

	table := Default()
	table.Merge(user)
	tt.Equal(table.Version, 3)
	tt.Assert(table.Has("Contoso-Widget"))

	out, changed := table.Apply("Contoso-Widget", `value="<b>"`)
	tt.Assert(changed)
	tt.Equal(out, `value="&lt;b&gt;"`)

	table.Merge(nil)
	tt.Equal(table.Version, 3)
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name, body string
	}{
		{"Syntax", "entries: [\n"},
		{"NoProvider", "entries:\n  - replace: [{old: a, new: b}]\n"},
		{"EmptyPattern", "entries:\n  - provider: x\n    replace: [{old: '', new: b}]\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			tt := test.FromT(t)
			_, err := Load(tt.TempFile("bad.yaml", []byte(tc.body)))
			tt.Assert(err != nil, "expected an error")
		})
	}

	_, err := Load("does-not-exist.yaml")
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}
