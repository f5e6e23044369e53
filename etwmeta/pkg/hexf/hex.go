// Package hexf has allocation-light hex formatting for GUIDs and keyword masks.
package hexf

import (
	"encoding/binary"
)

var hextableUpper = [16]byte{'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', 'A', 'B', 'C', 'D', 'E', 'F'}
var hextableLower = [16]byte{'0', '1', '2', '3', '4', '5', '6', '7', '8', '9', 'a', 'b', 'c', 'd', 'e', 'f'}

// EncodeU writes the UPPERCASE hex encoding of src into dst and returns the
// number of bytes written, always len(src)*2.
func EncodeU(dst, src []byte) int {
	return encode(dst, src, &hextableUpper)
}

// Encode writes the lowercase hex encoding of src into dst.
func Encode(dst, src []byte) int {
	return encode(dst, src, &hextableLower)
}

func encode(dst, src []byte, hexTable *[16]byte) int {
	j := 0
	for _, v := range src {
		dst[j] = hexTable[v>>4]
		dst[j+1] = hexTable[v&0x0f]
		j += 2
	}
	return len(src) * 2
}

// encodeTrim encodes src dropping leading zero nibbles, "0" for all zeroes.
func encodeTrim(dst, src []byte, hexTable *[16]byte) int {
	i := 0
	for ; i < len(src) && src[i] == 0; i++ {
	}
	if i == len(src) {
		dst[0] = '0'
		return 1
	}

	j := 0
	if v := src[i]; v < 0x10 {
		dst[j] = hexTable[v]
		j++
		i++
	}
	for ; i < len(src); i++ {
		v := src[i]
		dst[j] = hexTable[v>>4]
		dst[j+1] = hexTable[v&0x0f]
		j += 2
	}
	return j
}

func prefixed(src []byte, trim bool, hexTable *[16]byte) string {
	dst := make([]byte, 2+len(src)*2)
	dst[0] = '0'
	dst[1] = 'x'
	var n int
	if trim {
		n = encodeTrim(dst[2:], src, hexTable)
	} else {
		n = encode(dst[2:], src, hexTable)
	}
	return string(dst[:n+2])
}

// Uint64Like is any 64 bit integer.
type Uint64Like interface {
	~uint64 | ~int64
}

// Num64p formats n as lowercase hex with a 0x prefix, the form manifests use
// for keyword masks.
func Num64p[T Uint64Like](n T, trim bool) string {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	return prefixed(b[:], trim, &hextableLower)
}
