package utils

import (
	"bytes"
	"testing"
)

func TestHex4(t *testing.T) {
	tests := []struct {
		in   uint16
		want string
	}{
		{0x004B, "004B"},
		{0xFFFF, "FFFF"},
		{0, "0000"},
	}
	for _, tt := range tests {
		if got := Hex4(tt.in); got != tt.want {
			t.Errorf("Hex4(%#x) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestBytesToHex(t *testing.T) {
	if got := BytesToHex([]byte{0x00, 0x00, 0x80, 0x3F}); got != "0000803F" {
		t.Errorf("BytesToHex = %q, want 0000803F", got)
	}
	if got := BytesToHex(nil); got != "" {
		t.Errorf("BytesToHex(nil) = %q, want empty", got)
	}
}

func TestParseSpacedHex(t *testing.T) {
	got, err := ParseSpacedHex(" 4d 00 Ab\n")
	if err != nil {
		t.Fatalf("ParseSpacedHex error = %v", err)
	}
	if want := []byte{0x4D, 0x00, 0xAB}; !bytes.Equal(got, want) {
		t.Errorf("ParseSpacedHex = % X, want % X", got, want)
	}

	if got, err := ParseSpacedHex(""); err != nil || len(got) != 0 {
		t.Errorf("ParseSpacedHex(\"\") = % X, %v, want empty", got, err)
	}

	for _, in := range []string{"4", "zz", "4d0", "4d 0 0", "g1 00"} {
		if _, err := ParseSpacedHex(in); err == nil {
			t.Errorf("ParseSpacedHex(%q) error = nil, want non-nil", in)
		}
	}
}
