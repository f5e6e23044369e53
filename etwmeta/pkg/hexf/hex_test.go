package hexf

import (
	"encoding/hex"
	"strings"
	"testing"
)

func TestEncode(t *testing.T) {
	tests := []struct {
		name  string
		input []byte
	}{
		{"Empty", []byte{}},
		{"SingleZero", []byte{0}},
		{"LeadingZeros", []byte{0, 0, 0x0a, 0x7b}},
		{"NoZeros", []byte{0xde, 0xad, 0xbe, 0xef}},
		{"MixedZeros", []byte{0, 0xab, 0, 0xcd}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			want := hex.EncodeToString(tc.input)

			dst := make([]byte, len(tc.input)*2)
			if n := Encode(dst, tc.input); string(dst[:n]) != want {
				t.Errorf("Encode() = %q, want %q", dst[:n], want)
			}
			if n := EncodeU(dst, tc.input); string(dst[:n]) != strings.ToUpper(want) {
				t.Errorf("EncodeU() = %q, want %q", dst[:n], strings.ToUpper(want))
			}
		})
	}
}

func TestMaskFormatting(t *testing.T) {
	tests := []struct {
		name string
		in   uint64
		trim bool
		want string
	}{
		{"Zero", 0, true, "0x0"},
		{"ZeroFull", 0, false, "0x0000000000000000"},
		{"SingleNibble", 0x10, true, "0x10"},
		{"OddNibbles", 0xabc, true, "0xabc"},
		{"HighBit", 0x8000000000000000, true, "0x8000000000000000"},
		{"Full", 0xdeadbeef, false, "0x00000000deadbeef"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Num64p(tc.in, tc.trim); got != tc.want {
				t.Errorf("Num64p(%#x) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}
