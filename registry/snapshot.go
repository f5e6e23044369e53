// Package registry reads provider snapshots: a directory standing in for the
// provider registry of a host, with the provider list, their manifests and the
// legacy MOF classes.
//
// Layout:
//
//	providers.json | providers.yaml   provider index (optional)
//	manifests/<name>.xml | .man       manifest text, UTF-8 or UTF-16
//	mof/*.mof                         legacy class definitions
//
// Without an index the providers are discovered from the manifests and from
// the EventTrace subclasses of the MOF files.
package registry

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tekert/golang-etwmeta/etwmeta"
	"github.com/tekert/golang-etwmeta/etwmeta/mof"
	"github.com/tekert/golang-etwmeta/internal/textenc"
)

const (
	ManifestDir = "manifests"
	MofDir      = "mof"
)

var (
	// ErrNoManifest is returned for providers without a manifest.
	ErrNoManifest = errors.New("provider has no manifest")

	indexFiles        = []string{"providers.json", "providers.yaml", "providers.yml"}
	manifestExtension = []string{".xml", ".man"}
)

// Snapshot is a loaded snapshot directory. It implements
// etwmeta.ProviderDirectory.
type Snapshot struct {
	dir       string
	providers []Provider
	byGUID    map[etwmeta.GUID]int
	classes   *mof.Repository
}

var _ etwmeta.ProviderDirectory = (*Snapshot)(nil)

// Open loads the snapshot rooted at dir.
func Open(dir string) (s *Snapshot, err error) {
	s = &Snapshot{
		dir:     dir,
		byGUID:  make(map[etwmeta.GUID]int),
		classes: mof.NewRepository(),
	}

	if err = s.loadClasses(); err != nil {
		return nil, err
	}

	var providers []Provider
	if providers, err = s.loadIndex(); err != nil {
		return nil, err
	}
	if providers == nil {
		if providers, err = s.discover(); err != nil {
			return nil, err
		}
	}

	sort.SliceStable(providers, func(i, j int) bool {
		return strings.ToLower(providers[i].Name) < strings.ToLower(providers[j].Name)
	})
	for _, p := range providers {
		if p.GUID.IsZero() {
			s.providers = append(s.providers, p)
			continue
		}
		if _, dup := s.byGUID[p.GUID]; dup {
			slog.Warn("registry: duplicate provider guid, keeping first", "name", p.Name, "guid", p.GUID)
			continue
		}
		s.byGUID[p.GUID] = len(s.providers)
		s.providers = append(s.providers, p)
	}
	return s, nil
}

func (s *Snapshot) loadClasses() error {
	files, err := filepath.Glob(filepath.Join(s.dir, MofDir, "*.mof"))
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, f := range files {
		if err := s.classes.LoadFile(f); err != nil {
			return err
		}
	}
	return nil
}

// loadIndex returns nil providers when the snapshot has no index file.
func (s *Snapshot) loadIndex() ([]Provider, error) {
	for _, name := range indexFiles {
		b, err := os.ReadFile(filepath.Join(s.dir, name))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}

		var providers []Provider
		if strings.HasSuffix(name, ".json") {
			providers, err = parseJSONIndex(b)
		} else {
			providers, err = parseYAMLIndex(b)
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if providers == nil {
			providers = []Provider{}
		}
		return providers, nil
	}
	return nil, nil
}

// discover builds the provider list from the manifests and MOF classes.
func (s *Snapshot) discover() ([]Provider, error) {
	var providers []Provider
	seen := make(map[etwmeta.GUID]bool)

	entries, err := os.ReadDir(filepath.Join(s.dir, ManifestDir))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	for _, e := range entries {
		if e.IsDir() || !hasManifestExtension(e.Name()) {
			continue
		}
		text, err := s.readManifest(e.Name())
		if err != nil {
			return nil, err
		}
		m, err := etwmeta.ParseManifest(text)
		if err != nil {
			// still listed so the failure shows up in the run
			slog.Warn("registry: manifest does not parse, provider named after its file", "file", e.Name(), "error", err)
			providers = append(providers, Provider{
				Name:         strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())),
				ManifestFile: e.Name(),
			})
			continue
		}
		seen[m.ProviderGUID] = true
		providers = append(providers, Provider{
			Name:         m.ProviderName,
			GUID:         m.ProviderGUID,
			Keywords:     m.Keywords,
			ManifestFile: e.Name(),
		})
	}

	for g, class := range s.classes.ProviderGUIDs() {
		if !seen[g] {
			providers = append(providers, Provider{Name: class, GUID: g})
		}
	}
	return providers, nil
}

func hasManifestExtension(name string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range manifestExtension {
		if ext == e {
			return true
		}
	}
	return false
}

func (s *Snapshot) readManifest(rel string) (string, error) {
	b, err := os.ReadFile(filepath.Join(s.dir, ManifestDir, rel))
	if err != nil {
		return "", err
	}
	text, err := textenc.Decode(b)
	if err != nil {
		return "", fmt.Errorf("%s: %w", rel, err)
	}
	return text, nil
}

// Dir returns the snapshot root.
func (s *Snapshot) Dir() string { return s.dir }

// Providers returns the providers sorted by name.
func (s *Snapshot) Providers() []Provider {
	return s.providers
}

// Classes returns the legacy class hierarchy.
func (s *Snapshot) Classes() *mof.Repository {
	return s.classes
}

// Lookup returns the provider with the given GUID.
func (s *Snapshot) Lookup(g etwmeta.GUID) (Provider, bool) {
	if i, ok := s.byGUID[g]; ok {
		return s.providers[i], true
	}
	return Provider{}, false
}

// Manifest returns the manifest text of p, ErrNoManifest if there is none.
func (s *Snapshot) Manifest(p Provider) (string, error) {
	for _, rel := range s.manifestCandidates(p) {
		text, err := s.readManifest(rel)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		return text, err
	}
	return "", fmt.Errorf("%w: %s", ErrNoManifest, p.Name)
}

func (s *Snapshot) manifestCandidates(p Provider) []string {
	if p.ManifestFile != "" {
		return []string{p.ManifestFile}
	}
	var stems []string
	if p.Name != "" {
		stems = append(stems, p.Name, FileStem(p.Name))
	}
	if !p.GUID.IsZero() {
		stems = append(stems, p.GUID.String(), p.GUID.StringL())
	}
	out := make([]string, 0, len(stems)*len(manifestExtension))
	for _, stem := range stems {
		for _, ext := range manifestExtension {
			out = append(out, stem+ext)
		}
	}
	return out
}

// FileStem turns a provider name into a file name stem: spaces become
// underscores and colons become dashes.
func FileStem(name string) string {
	return strings.NewReplacer(" ", "_", ":", "-").Replace(name)
}

// ProviderName implements etwmeta.ProviderDirectory.
func (s *Snapshot) ProviderName(g etwmeta.GUID) string {
	p, _ := s.Lookup(g)
	return p.Name
}

// ProviderKeywords implements etwmeta.ProviderDirectory.
func (s *Snapshot) ProviderKeywords(g etwmeta.GUID) []etwmeta.Keyword {
	p, _ := s.Lookup(g)
	return p.Keywords
}
