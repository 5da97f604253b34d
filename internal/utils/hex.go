package utils

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// Hex4 formats a uint16 as 4 upper-case hex digits, e.g. "004B".
func Hex4(v uint16) string {
	return fmt.Sprintf("%04X", v)
}

// BytesToHex converts a byte slice to an upper-case hex string without separators.
func BytesToHex(b []byte) string {
	return strings.ToUpper(hex.EncodeToString(b))
}

// ParseSpacedHex parses space separated byte values such as "4d 00 2a".
// Every field must be exactly one byte.
func ParseSpacedHex(s string) ([]byte, error) {
	fields := strings.Fields(s)
	for _, f := range fields {
		if len(f) != 2 {
			return nil, fmt.Errorf("invalid hex byte %q", f)
		}
	}
	out, err := hex.DecodeString(strings.Join(fields, ""))
	if err != nil {
		return nil, fmt.Errorf("parse hex %q: %w", s, err)
	}
	return out, nil
}
