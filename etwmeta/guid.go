package etwmeta

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/tekert/golang-etwmeta/etwmeta/pkg/hexf"
)

var (
	nullGUID = GUID{}

	// ErrBadGUID is returned by ParseGUID on malformed input.
	ErrBadGUID = errors.New("bad GUID format")
)

// GUID identifies a trace provider.
// Example: {9E814AAD-3204-11D2-9A82-006008A86939} =
// GUID(0x9e814aad, 0x3204, 0x11d2, [8]byte{0x9a, 0x82, 0x00, 0x60, 0x08, 0xa8, 0x69, 0x39})
type GUID struct {
	Data1 uint32
	Data2 uint16
	Data3 uint16
	Data4 [8]byte
}

// IsZero checks if GUID is all zeros
func (g GUID) IsZero() bool {
	return g.Equals(nullGUID)
}

// String returns the UPPERCASE braced form, {XXXXXXXX-XXXX-XXXX-XXXX-XXXXXXXXXXXX}.
func (g GUID) String() string {
	return g.format(hexf.EncodeU)
}

// StringL returns the lowercase braced form.
func (g GUID) StringL() string {
	return g.format(hexf.Encode)
}

func (g GUID) format(enc func(dst, src []byte) int) string {
	var b [38]byte
	b[0] = '{'
	b[37] = '}'

	d1 := [4]byte{byte(g.Data1 >> 24), byte(g.Data1 >> 16), byte(g.Data1 >> 8), byte(g.Data1)}
	d2 := [2]byte{byte(g.Data2 >> 8), byte(g.Data2)}
	d3 := [2]byte{byte(g.Data3 >> 8), byte(g.Data3)}

	enc(b[1:9], d1[:])
	b[9] = '-'
	enc(b[10:14], d2[:])
	b[14] = '-'
	enc(b[15:19], d3[:])
	b[19] = '-'
	enc(b[20:24], g.Data4[:2])
	b[24] = '-'
	enc(b[25:37], g.Data4[2:])

	return string(b[:])
}

// Equals compares two GUIDs field by field.
func (g GUID) Equals(other GUID) bool {
	return g == other
}

const guidHex = `[A-F0-9]{8}-[A-F0-9]{4}-[A-F0-9]{4}-[A-F0-9]{4}-[A-F0-9]{12}`

var (
	// braces come in pairs or not at all
	guidRE = regexp.MustCompile(`^(?:\{` + guidHex + `\}|` + guidHex + `)$`)
)

// MustParseGUID parses a guid string into a GUID struct or panics
func MustParseGUID(sguid string) (guid *GUID) {
	var err error
	if guid, err = ParseGUID(sguid); err != nil {
		panic(err)
	}
	return
}

// ParseGUID parses a guid string, with or without braces, in any case.
func ParseGUID(guid string) (g *GUID, err error) {
	var u uint64

	g = &GUID{}
	guid = strings.ToUpper(strings.TrimSpace(guid))
	if !guidRE.MatchString(guid) {
		return nil, ErrBadGUID
	}
	guid = strings.Trim(guid, "{}")
	sp := strings.Split(guid, "-")

	if u, err = strconv.ParseUint(sp[0], 16, 32); err != nil {
		return nil, err
	}
	g.Data1 = uint32(u)
	if u, err = strconv.ParseUint(sp[1], 16, 16); err != nil {
		return nil, err
	}
	g.Data2 = uint16(u)
	if u, err = strconv.ParseUint(sp[2], 16, 16); err != nil {
		return nil, err
	}
	g.Data3 = uint16(u)
	if u, err = strconv.ParseUint(sp[3], 16, 16); err != nil {
		return nil, err
	}
	g.Data4[0] = uint8(u >> 8)
	g.Data4[1] = uint8(u & 0xff)
	if u, err = strconv.ParseUint(sp[4], 16, 64); err != nil {
		return nil, err
	}
	for i := 0; i < 6; i++ {
		g.Data4[2+i] = uint8(u >> (40 - 8*i))
	}

	return
}

// MarshalText encodes the GUID in its braced uppercase form.
func (g GUID) MarshalText() ([]byte, error) {
	return []byte(g.String()), nil
}

// UnmarshalText accepts anything ParseGUID does, used by the provider index
// and configuration decoders.
func (g *GUID) UnmarshalText(b []byte) error {
	p, err := ParseGUID(string(b))
	if err != nil {
		return err
	}
	*g = *p
	return nil
}
