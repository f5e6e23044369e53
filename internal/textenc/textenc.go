// Package textenc decodes metadata files that may be stored as UTF-16, the
// default encoding of manifests and MOF files dumped by OS tools.
package textenc

import (
	"errors"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var ErrOddLength = errors.New("utf-16 input has an odd number of bytes")

// Decode returns b as UTF-8 text. A UTF-8 or UTF-16 byte order mark selects
// the encoding; without one, a zero second byte is taken as UTF-16LE and
// anything else as UTF-8.
func Decode(b []byte) (string, error) {
	fallback := unicode.UTF8.NewDecoder()
	if looksUTF16LE(b) {
		if len(b)%2 != 0 {
			return "", ErrOddLength
		}
		fallback = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()
	}
	out, _, err := transform.Bytes(unicode.BOMOverride(fallback), b)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

func looksUTF16LE(b []byte) bool {
	return len(b) >= 2 && b[0] != 0 && b[1] == 0
}

// EncodeUTF16 encodes s as UTF-16LE with a byte order mark.
func EncodeUTF16(s string) ([]byte, error) {
	enc := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewEncoder()
	out, _, err := transform.Bytes(enc, []byte(s))
	return out, err
}
