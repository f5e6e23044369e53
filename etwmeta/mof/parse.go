// Package mof reads MOF class definitions, the text form of the WMI
// EventTrace class hierarchy that describes legacy providers, and serves them
// as an etwmeta.ClassQuery.
//
// Only what the hierarchy walk needs is understood: class qualifiers, class
// name and superclass, and properties with their qualifiers. Instances,
// methods and qualifier declarations are skipped.
package mof

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strconv"
	"strings"

	"github.com/tekert/golang-etwmeta/etwmeta"
)

var (
	// class Process_V2_TypeGroup1 : Process_V2
	classHeaderRE = regexp.MustCompile(`^class\s+(\w+)(?:\s*:\s*(\w+))?$`)
	// uint32 ProcessId | char16 Name[] | Win32_Foo ref Owner | uint8 Data[16] = 0
	propertyRE = regexp.MustCompile(`^(\w+)(\s+ref)?\s+(\w+)\s*(\[\s*\d*\s*\])?\s*(?:=.*)?$`)
	identRE    = regexp.MustCompile(`^\w+`)
)

// SyntaxError reports malformed MOF text.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("mof: line %d: %s", e.Line, e.Msg)
}

// Parse reads MOF text into a new Repository.
func Parse(src string) (*Repository, error) {
	r := NewRepository()
	if err := r.Parse(src); err != nil {
		return nil, err
	}
	return r, nil
}

// Parse adds the classes defined in src to r. A class defined again replaces
// the previous definition.
func (r *Repository) Parse(src string) error {
	s := &scanner{src: stripComments(src)}
	for {
		s.skipSpace()
		if s.eof() {
			return nil
		}
		line := s.line()

		var quals etwmeta.Qualifiers
		if s.peek() == '[' {
			inner, err := s.block('[', ']')
			if err != nil {
				return &SyntaxError{line, err.Error()}
			}
			if quals, err = parseQualifiers(inner); err != nil {
				return &SyntaxError{line, err.Error()}
			}
			s.skipSpace()
		}

		head, ok := s.until("{;")
		if !ok {
			return &SyntaxError{line, "unterminated declaration"}
		}
		head = collapse(head)
		if s.peek() == ';' {
			s.pos++
			continue
		}

		body, err := s.block('{', '}')
		if err != nil {
			return &SyntaxError{line, err.Error()}
		}
		s.skipSpace()
		if !s.eof() && s.peek() == ';' {
			s.pos++
		}

		m := classHeaderRE.FindStringSubmatch(head)
		if m == nil {
			slog.Debug("mof: skipping non class declaration", "line", line, "head", head)
			continue
		}
		props, err := parseProperties(body)
		if err != nil {
			return &SyntaxError{line, fmt.Sprintf("class %s: %v", m[1], err)}
		}
		r.Add(etwmeta.MetaClass{
			Name:       m[1],
			Superclass: m[2],
			Qualifiers: quals,
			Properties: props,
		})
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// parseProperties parses a class body made of declarations like:
//
//	[WmiDataId(1)] uint32 ProcessId;
//	[WmiDataId(2), format("w"), read] string Name;
func parseProperties(body string) (props []etwmeta.MetaProperty, err error) {
	s := &scanner{src: body}
	for {
		s.skipSpace()
		if s.eof() {
			return
		}

		var quals etwmeta.Qualifiers
		if s.peek() == '[' {
			inner, err := s.block('[', ']')
			if err != nil {
				return nil, err
			}
			if quals, err = parseQualifiers(inner); err != nil {
				return nil, err
			}
		}

		decl, ok := s.until(";")
		if !ok {
			return nil, errors.New("property declaration without ';'")
		}
		s.pos++
		decl = collapse(decl)
		if decl == "" || strings.Contains(decl, "(") {
			// methods
			continue
		}

		m := propertyRE.FindStringSubmatch(decl)
		if m == nil {
			return nil, fmt.Errorf("bad property declaration %q", decl)
		}
		typ := CIMType(m[1])
		if m[2] != "" {
			typ = cimReference
		}
		props = append(props, etwmeta.MetaProperty{Name: m[3], Type: typ, Qualifiers: quals})
	}
}

// parseQualifiers parses the inside of a qualifier list:
//
//	Dynamic, Guid("{...}") : amended, EventType{10, 11}, EventVersion(2)
func parseQualifiers(list string) (qs etwmeta.Qualifiers, err error) {
	for _, item := range splitTopLevel(list, ',') {
		if item = strings.TrimSpace(item); item == "" {
			continue
		}
		q, err := parseQualifier(item)
		if err != nil {
			return nil, err
		}
		qs = append(qs, q)
	}
	return
}

func parseQualifier(item string) (q etwmeta.Qualifier, err error) {
	q.Name = identRE.FindString(item)
	if q.Name == "" {
		return q, fmt.Errorf("bad qualifier %q", item)
	}
	rest := strings.TrimSpace(item[len(q.Name):])
	// flavors: ToSubclass, amended, ...
	if parts := splitTopLevel(rest, ':'); len(parts) > 1 {
		rest = strings.TrimSpace(parts[0])
	}

	switch {
	case rest == "":
		q.Value = etwmeta.BoolValue(true)
	case rest[0] == '(' && rest[len(rest)-1] == ')':
		q.Value, err = parseScalar(rest[1 : len(rest)-1])
	case rest[0] == '{' && rest[len(rest)-1] == '}':
		q.Value, err = parseArray(rest[1 : len(rest)-1])
	default:
		err = fmt.Errorf("bad value for qualifier %s: %q", q.Name, rest)
	}
	if err != nil {
		err = fmt.Errorf("qualifier %s: %w", q.Name, err)
	}
	return
}

func parseScalar(s string) (etwmeta.QualifierValue, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, `"`) {
		str, err := parseStrings(s)
		if err != nil {
			return etwmeta.QualifierValue{}, err
		}
		return etwmeta.StringValue(str), nil
	}
	switch strings.ToUpper(s) {
	case "TRUE":
		return etwmeta.BoolValue(true), nil
	case "FALSE":
		return etwmeta.BoolValue(false), nil
	}
	if n, err := strconv.ParseInt(s, 0, 64); err == nil {
		return etwmeta.IntValue(n), nil
	}
	// bare identifiers such as enum names
	return etwmeta.StringValue(s), nil
}

func parseArray(s string) (etwmeta.QualifierValue, error) {
	var elems []string
	for _, e := range splitTopLevel(s, ',') {
		if e = strings.TrimSpace(e); e != "" {
			elems = append(elems, e)
		}
	}

	ints := make([]int64, 0, len(elems))
	for _, e := range elems {
		n, err := strconv.ParseInt(e, 0, 64)
		if err != nil {
			break
		}
		ints = append(ints, n)
	}
	if len(ints) == len(elems) {
		return etwmeta.IntArrayValue(ints...), nil
	}

	strs := make([]string, 0, len(elems))
	for _, e := range elems {
		if !strings.HasPrefix(e, `"`) {
			return etwmeta.QualifierValue{}, fmt.Errorf("mixed array element %q", e)
		}
		str, err := parseStrings(e)
		if err != nil {
			return etwmeta.QualifierValue{}, err
		}
		strs = append(strs, str)
	}
	return etwmeta.StringArrayValue(strs...), nil
}

// parseStrings decodes one or more adjacent string literals, concatenated.
func parseStrings(s string) (string, error) {
	var b strings.Builder
	i := 0
	for {
		for i < len(s) && isSpace(s[i]) {
			i++
		}
		if i == len(s) {
			return b.String(), nil
		}
		if s[i] != '"' {
			return "", fmt.Errorf("unexpected %q after string literal", s[i:])
		}
		i++
		for {
			if i >= len(s) {
				return "", errors.New("unterminated string literal")
			}
			c := s[i]
			if c == '"' {
				i++
				break
			}
			if c == '\\' && i+1 < len(s) {
				i++
				switch s[i] {
				case 'n':
					b.WriteByte('\n')
				case 't':
					b.WriteByte('\t')
				case 'r':
					b.WriteByte('\r')
				case '"', '\\', '\'':
					b.WriteByte(s[i])
				default:
					b.WriteByte('\\')
					b.WriteByte(s[i])
				}
				i++
				continue
			}
			b.WriteByte(c)
			i++
		}
	}
}

// splitTopLevel splits s on sep outside of string literals and brackets.
func splitTopLevel(s string, sep byte) (parts []string) {
	depth, start := 0, 0
	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case inString:
			if c == '\\' {
				i++
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == '(' || c == '[' || c == '{':
			depth++
		case c == ')' || c == ']' || c == '}':
			depth--
		case c == sep && depth == 0:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// stripComments blanks comments and #pragma lines, keeping newlines so line
// numbers stay right.
func stripComments(src string) string {
	var b strings.Builder
	b.Grow(len(src))
	inString := false
	lineStart := true
	for i := 0; i < len(src); i++ {
		c := src[i]
		switch {
		case inString:
			b.WriteByte(c)
			if c == '\\' && i+1 < len(src) {
				i++
				b.WriteByte(src[i])
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
			b.WriteByte(c)
		case c == '/' && i+1 < len(src) && src[i+1] == '/':
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(src) && src[i+1] == '*':
			i += 2
			for i < len(src) && !(src[i] == '*' && i+1 < len(src) && src[i+1] == '/') {
				if src[i] == '\n' {
					b.WriteByte('\n')
				}
				i++
			}
			i++
			b.WriteByte(' ')
		case c == '#' && lineStart:
			for i < len(src) && src[i] != '\n' {
				i++
			}
			if i < len(src) {
				b.WriteByte('\n')
			}
		default:
			b.WriteByte(c)
		}
		if i < len(src) {
			if src[i] == '\n' {
				lineStart = true
			} else if !isSpace(src[i]) {
				lineStart = false
			}
		}
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

type scanner struct {
	src string
	pos int
}

func (s *scanner) eof() bool  { return s.pos >= len(s.src) }
func (s *scanner) peek() byte { return s.src[s.pos] }

func (s *scanner) line() int {
	return 1 + strings.Count(s.src[:s.pos], "\n")
}

func (s *scanner) skipSpace() {
	for !s.eof() && isSpace(s.src[s.pos]) {
		s.pos++
	}
}

// until advances to the first top-level byte in stops and returns the text
// before it.
func (s *scanner) until(stops string) (string, bool) {
	start := s.pos
	depth := 0
	inString := false
	for ; !s.eof(); s.pos++ {
		c := s.src[s.pos]
		switch {
		case inString:
			if c == '\\' {
				s.pos++
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case depth == 0 && strings.IndexByte(stops, c) >= 0:
			return s.src[start:s.pos], true
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
		}
	}
	return s.src[start:], false
}

// block reads a balanced block opened at the current position and returns its
// content without the delimiters.
func (s *scanner) block(open, close byte) (string, error) {
	if s.eof() || s.peek() != open {
		return "", fmt.Errorf("expected %q", open)
	}
	start := s.pos + 1
	depth := 0
	inString := false
	for ; !s.eof(); s.pos++ {
		c := s.src[s.pos]
		switch {
		case inString:
			if c == '\\' {
				s.pos++
			} else if c == '"' {
				inString = false
			}
		case c == '"':
			inString = true
		case c == open:
			depth++
		case c == close:
			depth--
			if depth == 0 {
				s.pos++
				return s.src[start : s.pos-1], nil
			}
		}
	}
	return "", fmt.Errorf("unterminated %q block", open)
}
