package report

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/tekert/golang-etwmeta/etwmeta"
	"github.com/tekert/golang-etwmeta/evtmeta"
	"github.com/tekert/golang-etwmeta/internal/test"
)

const provider = "Microsoft-Windows-Kernel-Process"

func sampleModel() *etwmeta.Manifest {
	return &etwmeta.Manifest{
		Source:       "<instrumentationManifest/>",
		ProviderName: provider,
		Events: []etwmeta.Event{
			{ID: 1, Symbol: "ProcessStart", Version: 0, Level: "win:Informational", Opcode: "win:Start",
				TemplateRef: "T_Start", KeywordRef: "WINEVENT_KEYWORD_PROCESS", TaskRef: "ProcessStart"},
			{ID: 2, Symbol: "ProcessStop", Version: 1, TemplateRef: "T_Missing", TaskRef: "ProcessStop"},
		},
		Keywords: []etwmeta.Keyword{
			{Name: "WINEVENT_KEYWORD_PROCESS", Mask: 0x10, Message: "process\r\nevents"},
		},
		Templates: []etwmeta.Template{
			{ID: "T_Start", Items: []etwmeta.TemplateItem{
				{Name: "ProcessID", Type: "win:UInt32"},
				{Name: "ImageName", Type: "win:UnicodeString"},
			}},
		},
	}
}

func helperMeta(t *testing.T) *evtmeta.ProviderMeta {
	meta, err := evtmeta.Parse(provider, []byte(`<Providers><Provider><EventMetadata>
		<Event><Id>1</Id><Version>0</Version><Channel>Microsoft-Windows-Kernel-Process/Analytic</Channel>
		<Message>Process &amp;quot;%1&amp;quot; started at &amp;lt;%2&amp;gt;.&#xD;&#xA;</Message></Event>
		</EventMetadata></Provider></Providers>`))
	if err != nil {
		t.Fatal(err)
	}
	return meta
}

func TestManifestLines(t *testing.T) {
	tt := test.FromT(t)

	lines := ManifestLines(provider, sampleModel(), helperMeta(t))
	tt.Equal(lines, []string{
		ManifestHeader,
		provider + "\t1\t0\tProcessStart(win:UInt32 ProcessID, win:UnicodeString ImageName)\twin:Start\tWINEVENT_KEYWORD_PROCESS\tProcessStart\twin:Informational\tMicrosoft-Windows-Kernel-Process/Analytic\tProcess \"%1\" started at <%2>.\\r\\n",
		provider + "\t2\t1\tProcessStop()\t\t\tProcessStop\t\t\t",
	})

	// without helper data the channel and message columns stay empty
	lines = ManifestLines(provider, sampleModel(), nil)
	tt.Assert(strings.HasSuffix(lines[1], "win:Informational\t\t"), "got %q", lines[1])
}

func TestLegacyLines(t *testing.T) {
	tt := test.FromT(t)

	m := &etwmeta.Manifest{
		ProviderName: "Windows Kernel Trace",
		Events: []etwmeta.Event{
			{ID: 1, Symbol: "Process_V2_TypeGroup1", Version: 2, Opcode: "Start",
				TemplateRef: "Process_V2_TypeGroup1", KeywordRef: "Process &lt;create&gt;", TaskRef: "{3D6FA8D0-FE05-11D0-9DDA-00C04FD7BA7C}"},
		},
		Templates: []etwmeta.Template{
			{ID: "Process_V2_TypeGroup1", Items: []etwmeta.TemplateItem{{Name: "ProcessId", Type: "UInt32"}}},
		},
	}
	tt.Equal(LegacyLines("Windows Kernel Trace", m), []string{
		LegacyHeader,
		"Windows Kernel Trace\t{3D6FA8D0-FE05-11D0-9DDA-00C04FD7BA7C}\t1\t2\tProcess_V2_TypeGroup1(UInt32 ProcessId)\tStart\tProcess <create>",
	})
}

func TestKeywordLines(t *testing.T) {
	tt := test.FromT(t)
	tt.Equal(KeywordLines(sampleModel()), []string{
		KeywordsHeader,
		"WINEVENT_KEYWORD_PROCESS\t0x0000000000000010\tprocess\\r\\nevents",
	})
}

func readFile(tt *test.T, path string, compressed bool) string {
	tt.Helper()
	f, err := os.Open(path)
	tt.CheckErr(err)
	defer f.Close()

	var r io.Reader = f
	if compressed {
		dec, err := zstd.NewReader(f)
		tt.CheckErr(err)
		defer dec.Close()
		r = dec
	}
	b, err := io.ReadAll(r)
	tt.CheckErr(err)
	return string(b)
}

func TestWriter(t *testing.T) {
	for _, compress := range []bool{false, true} {
		name := "plain"
		if compress {
			name = "zstd"
		}
		t.Run(name, func(t *testing.T) {
			tt := test.FromT(t)

			w, err := NewWriter(t.TempDir(), compress)
			tt.CheckErr(err)

			tt.CheckErr(w.Manifest(provider, sampleModel(), nil))
			tt.CheckErr(w.Legacy("Windows Kernel Trace: Ext", &etwmeta.Manifest{}))
			tt.CheckErr(w.Unknown("Some Provider"))

			got := readFile(tt, w.Path(ManifestDir, provider), compress)
			tt.Equal(strings.Split(strings.TrimSuffix(got, "\n"), "\n"), ManifestLines(provider, sampleModel(), nil))

			kw := filepath.Join(w.Dir, ManifestDir, provider+".keywords.tsv")
			if compress {
				kw += ".zst"
			}
			tt.Assert(strings.Contains(readFile(tt, kw, compress), "0x0000000000000010"))

			legacy := w.Path(MofDir, "Windows Kernel Trace: Ext")
			tt.Assert(strings.Contains(legacy, "Windows_Kernel_Trace-_Ext.tsv"), "got %s", legacy)
			tt.Equal(readFile(tt, legacy, compress), LegacyHeader+"\n")

			tt.Equal(readFile(tt, w.Path(UnknownDir, "Some Provider"), compress), "provider\nSome Provider\n")
		})
	}
}

func TestErrorDumps(t *testing.T) {
	tt := test.FromT(t)

	w, err := NewWriter(t.TempDir(), false)
	tt.CheckErr(err)

	path, err := w.ManifestError("Microsoft-Windows-Ntfs", "<broken")
	tt.CheckErr(err)
	tt.Equal(filepath.Base(path), "ERROR_Microsoft-Windows-Ntfs.xml")
	tt.Equal(readFile(tt, path, false), "<broken")

	path, err = w.HelperError("A B", []byte("<x"))
	tt.CheckErr(err)
	tt.Equal(filepath.Base(path), "ERROR_evtmeta_A_B.xml")
}

func TestVersion(t *testing.T) {
	tt := test.FromT(t)

	info := &host.InfoStat{
		Platform:        "Microsoft Windows 10 Pro",
		PlatformVersion: "10.0.19045",
		KernelVersion:   "10.0.19045 Build 19045",
		KernelArch:      "x86_64",
	}
	tt.Equal(VersionLine(info), "Microsoft Windows 10 Pro 10.0.19045 (10.0.19045 Build 19045 x86_64)")
	tt.Equal(VersionLine(nil), "unknown")

	w, err := NewWriter(t.TempDir(), false)
	tt.CheckErr(err)
	tt.CheckErr(w.WriteVersion(context.Background(), info))
	tt.Equal(readFile(tt, filepath.Join(w.Dir, VersionFile), false), VersionLine(info)+"\n")

	// the local host
	tt.CheckErr(w.WriteVersion(context.Background(), nil))
}

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestWriteLinesSurfacesWriteErrors(t *testing.T) {
	for _, compress := range []bool{false, true} {
		tt := test.FromT(t)
		err := writeLines(failingWriter{err: os.ErrClosed}, []string{ManifestHeader, "a\tb"}, compress)
		tt.ExpectErr(err, os.ErrClosed)
	}
}
