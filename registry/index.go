package registry

import (
	"fmt"
	"strings"

	"github.com/tekert/golang-etwmeta/etwmeta"
	"github.com/valyala/fastjson"
	"gopkg.in/yaml.v3"
)

// Provider is one registered provider of a snapshot.
type Provider struct {
	Name     string
	GUID     etwmeta.GUID
	Keywords []etwmeta.Keyword
	// ManifestFile is the manifest path relative to the manifests directory,
	// empty when it has to be looked up by name or GUID.
	ManifestFile string
}

// yaml form of the provider index:
//
//	providers:
//	  - name: Microsoft-Windows-Kernel-File
//	    guid: "{EDD08927-9CC4-4E65-B970-C2560FB5C289}"
//	    keywords:
//	      - {name: KERNEL_FILE_KEYWORD_FILENAME, mask: "0x10"}
type yamlIndex struct {
	Providers []yamlProvider `yaml:"providers"`
}

type yamlProvider struct {
	Name     string        `yaml:"name"`
	GUID     string        `yaml:"guid"`
	Manifest string        `yaml:"manifest"`
	Keywords []yamlKeyword `yaml:"keywords"`
}

type yamlKeyword struct {
	Name    string `yaml:"name"`
	Mask    string `yaml:"mask"`
	Message string `yaml:"message"`
}

func parseYAMLIndex(b []byte) ([]Provider, error) {
	var idx yamlIndex
	if err := yaml.Unmarshal(b, &idx); err != nil {
		return nil, err
	}

	out := make([]Provider, 0, len(idx.Providers))
	for i, yp := range idx.Providers {
		g, err := etwmeta.ParseGUID(yp.GUID)
		if err != nil {
			return nil, fmt.Errorf("provider #%d (%s): %w", i, yp.Name, err)
		}
		p := Provider{Name: yp.Name, GUID: *g, ManifestFile: yp.Manifest}
		for _, yk := range yp.Keywords {
			mask, err := parseMask(yk.Mask)
			if err != nil {
				return nil, fmt.Errorf("provider %s keyword %s: %w", yp.Name, yk.Name, err)
			}
			p.Keywords = append(p.Keywords, etwmeta.Keyword{Name: yk.Name, Mask: mask, Message: yk.Message})
		}
		out = append(out, p)
	}
	return out, nil
}

// parseMask follows the manifest rule; an empty mask is 0.
func parseMask(s string) (uint64, error) {
	if strings.TrimSpace(s) == "" {
		return 0, nil
	}
	return etwmeta.ParseMask(s)
}

// parseJSONIndex reads {"providers": [...]} or a bare array. Masks may be
// numbers or "0x" strings.
func parseJSONIndex(b []byte) ([]Provider, error) {
	var p fastjson.Parser
	v, err := p.ParseBytes(b)
	if err != nil {
		return nil, err
	}

	var entries []*fastjson.Value
	switch v.Type() {
	case fastjson.TypeArray:
		entries, _ = v.Array()
	case fastjson.TypeObject:
		entries = v.GetArray("providers")
	default:
		return nil, fmt.Errorf("provider index must be an object or an array, got %s", v.Type())
	}

	out := make([]Provider, 0, len(entries))
	for i, e := range entries {
		name := string(e.GetStringBytes("name"))
		sguid := string(e.GetStringBytes("guid"))
		g, err := etwmeta.ParseGUID(sguid)
		if err != nil {
			return nil, fmt.Errorf("provider #%d (%s): %w", i, name, err)
		}
		prov := Provider{
			Name:         name,
			GUID:         *g,
			ManifestFile: string(e.GetStringBytes("manifest")),
		}
		for _, k := range e.GetArray("keywords") {
			mask, err := jsonMask(k.Get("mask"))
			if err != nil {
				return nil, fmt.Errorf("provider %s keyword %s: %w", name, k.GetStringBytes("name"), err)
			}
			prov.Keywords = append(prov.Keywords, etwmeta.Keyword{
				Name:    string(k.GetStringBytes("name")),
				Mask:    mask,
				Message: string(k.GetStringBytes("message")),
			})
		}
		out = append(out, prov)
	}
	return out, nil
}

func jsonMask(v *fastjson.Value) (uint64, error) {
	if v == nil {
		return 0, nil
	}
	switch v.Type() {
	case fastjson.TypeNumber:
		return v.Uint64()
	case fastjson.TypeString:
		sb, _ := v.StringBytes()
		return parseMask(string(sb))
	default:
		return 0, fmt.Errorf("mask must be a number or a string, got %s", v.Type())
	}
}
