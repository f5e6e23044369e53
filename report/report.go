// Package report writes the grep-able provider listings: one TSV file per
// provider, one line per event, under manifest/, mof/ or unknown/ depending on
// where the provider's metadata came from.
package report

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/tekert/golang-etwmeta/etwmeta"
	"github.com/tekert/golang-etwmeta/etwmeta/pkg/hexf"
	"github.com/tekert/golang-etwmeta/evtmeta"
	"github.com/tekert/golang-etwmeta/registry"
)

// Output subdirectories.
const (
	ManifestDir = "manifest"
	MofDir      = "mof"
	UnknownDir  = "unknown"
)

const (
	ManifestHeader = "provider\tevent_id\tversion\tevent(fields)\topcode\tkeywords\ttask\tlevel\tevtlog_channel\tevtlog_message"
	LegacyHeader   = "provider\tcategory\tevent_id\tversion\tevent(fields)\tevent_type\tdescription"
	UnknownHeader  = "provider"
	KeywordsHeader = "name\tmask\tmessage"
)

var (
	entities      = strings.NewReplacer("&quot;", `"`, "&lt;", "<", "&gt;", ">")
	lineBreaks    = strings.NewReplacer("\r", `\r`, "\n", `\n`)
	tsvExtension  = ".tsv"
	zstdExtension = ".zst"
)

// Writer creates the report tree under Dir. Methods for distinct providers
// may run concurrently.
type Writer struct {
	Dir      string
	Compress bool
}

// NewWriter creates dir and its subdirectories.
func NewWriter(dir string, compress bool) (*Writer, error) {
	for _, sub := range []string{ManifestDir, MofDir, UnknownDir} {
		if err := os.MkdirAll(filepath.Join(dir, sub), 0o755); err != nil {
			return nil, err
		}
	}
	return &Writer{Dir: dir, Compress: compress}, nil
}

// FileName returns the report file name of provider name.
func (w *Writer) FileName(name string) string {
	fn := registry.FileStem(name) + tsvExtension
	if w.Compress {
		fn += zstdExtension
	}
	return fn
}

// Path returns where the report of provider name goes in subdirectory sub.
func (w *Writer) Path(sub, name string) string {
	return filepath.Join(w.Dir, sub, w.FileName(name))
}

// Fields renders the payload of e as "Type Name, Type Name".
func Fields(m *etwmeta.Manifest, e etwmeta.Event) string {
	var b strings.Builder
	for i, f := range m.Fields(e) {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(f.Type)
		b.WriteByte(' ')
		b.WriteString(f.Name)
	}
	return b.String()
}

// EscapeMessage keeps a message on one line.
func EscapeMessage(s string) string {
	return lineBreaks.Replace(s)
}

func line(cols ...string) string {
	return entities.Replace(strings.Join(cols, "\t"))
}

// ManifestLines returns the report lines of a manifest provider, header
// included. meta may be nil.
func ManifestLines(name string, m *etwmeta.Manifest, meta *evtmeta.ProviderMeta) []string {
	lines := make([]string, 0, len(m.Events)+1)
	lines = append(lines, ManifestHeader)
	for _, e := range m.Events {
		var channel, message string
		if em, ok := meta.Lookup(e.ID, e.Version); ok {
			channel = em.Channel
			message = EscapeMessage(em.Message)
		}
		lines = append(lines, line(
			name,
			fmt.Sprint(e.ID),
			fmt.Sprint(e.Version),
			e.Symbol+"("+Fields(m, e)+")",
			e.Opcode,
			e.KeywordRef,
			e.TaskRef,
			e.Level,
			channel,
			message,
		))
	}
	return lines
}

// LegacyLines returns the report lines of a legacy provider: the category is
// the event task, the event type its opcode and the description its keyword
// text.
func LegacyLines(name string, m *etwmeta.Manifest) []string {
	lines := make([]string, 0, len(m.Events)+1)
	lines = append(lines, LegacyHeader)
	for _, e := range m.Events {
		lines = append(lines, line(
			name,
			e.TaskRef,
			fmt.Sprint(e.ID),
			fmt.Sprint(e.Version),
			e.Symbol+"("+Fields(m, e)+")",
			e.Opcode,
			e.KeywordRef,
		))
	}
	return lines
}

// KeywordLines lists the keywords of m with their mask in hex.
func KeywordLines(m *etwmeta.Manifest) []string {
	lines := make([]string, 0, len(m.Keywords)+1)
	lines = append(lines, KeywordsHeader)
	for _, k := range m.Keywords {
		lines = append(lines, strings.Join([]string{
			k.Name,
			hexf.Num64p(k.Mask, false),
			EscapeMessage(k.Message),
		}, "\t"))
	}
	return lines
}

func (w *Writer) Manifest(name string, m *etwmeta.Manifest, meta *evtmeta.ProviderMeta) error {
	if err := w.write(w.Path(ManifestDir, name), ManifestLines(name, m, meta)); err != nil {
		return err
	}
	return w.keywords(ManifestDir, name, m)
}

func (w *Writer) Legacy(name string, m *etwmeta.Manifest) error {
	if err := w.write(w.Path(MofDir, name), LegacyLines(name, m)); err != nil {
		return err
	}
	return w.keywords(MofDir, name, m)
}

func (w *Writer) Unknown(name string) error {
	return w.write(w.Path(UnknownDir, name), []string{UnknownHeader, name})
}

func (w *Writer) keywords(sub, name string, m *etwmeta.Manifest) error {
	if len(m.Keywords) == 0 {
		return nil
	}
	fn := registry.FileStem(name) + ".keywords" + tsvExtension
	if w.Compress {
		fn += zstdExtension
	}
	return w.write(filepath.Join(w.Dir, sub, fn), KeywordLines(m))
}

// ManifestError saves the text of a manifest that failed to parse as
// ERROR_<name>.xml and returns its path.
func (w *Writer) ManifestError(name, xml string) (string, error) {
	path := filepath.Join(w.Dir, "ERROR_"+registry.FileStem(name)+".xml")
	return path, os.WriteFile(path, []byte(xml), 0o644)
}

// HelperError saves helper output that failed to parse.
func (w *Writer) HelperError(name string, raw []byte) (string, error) {
	path := filepath.Join(w.Dir, "ERROR_evtmeta_"+registry.FileStem(name)+".xml")
	return path, os.WriteFile(path, raw, 0o644)
}

func (w *Writer) write(path string, lines []string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	return writeLines(f, lines, w.Compress)
}

// writeLines writes one line per entry, through a zstd stream when compress
// is set. The stream is closed on every path.
func writeLines(dst io.Writer, lines []string, compress bool) (err error) {
	out := dst
	if compress {
		enc, err := zstd.NewWriter(dst)
		if err != nil {
			return err
		}
		defer func() {
			if cerr := enc.Close(); err == nil {
				err = cerr
			}
		}()
		out = enc
	}

	bw := bufio.NewWriter(out)
	for _, l := range lines {
		bw.WriteString(l)
		bw.WriteByte('\n')
	}
	return bw.Flush()
}
