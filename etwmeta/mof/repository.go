package mof

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/tekert/golang-etwmeta/etwmeta"
	"github.com/tekert/golang-etwmeta/internal/textenc"
)

// Repository is an in-memory class hierarchy. Class names are matched without
// regard to case, like WMI does. Safe for concurrent reads once loaded.
type Repository struct {
	sync.RWMutex
	classes []etwmeta.MetaClass
	byName  map[string]int
	bySuper map[string][]int
}

var _ etwmeta.ClassQuery = (*Repository)(nil)

func NewRepository() *Repository {
	return &Repository{
		byName:  make(map[string]int),
		bySuper: make(map[string][]int),
	}
}

// LoadFiles parses MOF files, UTF-8 or UTF-16, into one repository.
func LoadFiles(paths ...string) (*Repository, error) {
	r := NewRepository()
	for _, p := range paths {
		if err := r.LoadFile(p); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Repository) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	text, err := textenc.Decode(b)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err := r.Parse(text); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func key(name string) string {
	return strings.ToLower(name)
}

// Add inserts c or replaces the class with the same name.
func (r *Repository) Add(c etwmeta.MetaClass) {
	r.Lock()
	defer r.Unlock()

	if i, ok := r.byName[key(c.Name)]; ok {
		old := r.classes[i]
		r.classes[i] = c
		if key(old.Superclass) != key(c.Superclass) {
			r.unlinkLocked(old.Superclass, i)
			r.bySuper[key(c.Superclass)] = append(r.bySuper[key(c.Superclass)], i)
		}
		return
	}

	i := len(r.classes)
	r.classes = append(r.classes, c)
	r.byName[key(c.Name)] = i
	r.bySuper[key(c.Superclass)] = append(r.bySuper[key(c.Superclass)], i)
}

func (r *Repository) unlinkLocked(super string, idx int) {
	k := key(super)
	subs := r.bySuper[k]
	for j, i := range subs {
		if i == idx {
			r.bySuper[k] = append(subs[:j:j], subs[j+1:]...)
			return
		}
	}
}

// Subclasses returns the direct subclasses of superclass in definition order.
// An unknown superclass has no subclasses.
func (r *Repository) Subclasses(superclass string) ([]etwmeta.MetaClass, error) {
	r.RLock()
	defer r.RUnlock()

	idx := r.bySuper[key(superclass)]
	out := make([]etwmeta.MetaClass, 0, len(idx))
	for _, i := range idx {
		out = append(out, r.classes[i])
	}
	return out, nil
}

// Class returns the class with the given name.
func (r *Repository) Class(name string) (etwmeta.MetaClass, bool) {
	r.RLock()
	defer r.RUnlock()

	if i, ok := r.byName[key(name)]; ok {
		return r.classes[i], true
	}
	return etwmeta.MetaClass{}, false
}

func (r *Repository) Len() int {
	r.RLock()
	defer r.RUnlock()
	return len(r.classes)
}

// Merge adds every class of o to r.
func (r *Repository) Merge(o *Repository) {
	o.RLock()
	classes := make([]etwmeta.MetaClass, len(o.classes))
	copy(classes, o.classes)
	o.RUnlock()

	for _, c := range classes {
		r.Add(c)
	}
}

// ProviderGUIDs returns the GUIDs carried by direct EventTrace subclasses,
// the providers ParseLegacy can find in this repository.
func (r *Repository) ProviderGUIDs() map[etwmeta.GUID]string {
	classes, _ := r.Subclasses(etwmeta.RootClass)
	out := make(map[etwmeta.GUID]string, len(classes))
	for _, c := range classes {
		s, ok := c.Qualifiers.Text("guid")
		if !ok {
			continue
		}
		if g, err := etwmeta.ParseGUID(s); err == nil {
			out[*g] = c.Name
		}
	}
	return out
}
