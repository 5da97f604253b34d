package flower

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"
)

// Soil temperature calibration for the Pot. Coefficients and bounds are the
// sensor's empirical curve and must not be tuned.
const (
	soilTempA = 3.044e-8
	soilTempB = -8.038e-5
	soilTempC = 0.1149
	soilTempD = -30.49999999999999

	SoilTemperatureMin = -10.0
	SoilTemperatureMax = 55.0
)

// DecodeFunc turns a raw characteristic payload into a physical value.
type DecodeFunc func(b []byte) (float64, error)

func shortPayload(encoding string, want, got int) error {
	return &ParseError{
		Encoding: encoding,
		Err:      fmt.Errorf("payload too short: want %d bytes, got %d", want, got),
	}
}

// DecodeFloat32LE reads a little-endian IEEE-754 float32 widened to float64.
func DecodeFloat32LE(b []byte) (float64, error) {
	if len(b) < 4 {
		return 0, shortPayload("float32le", 4, len(b))
	}
	return float64(math.Float32frombits(binary.LittleEndian.Uint32(b[:4]))), nil
}

// DecodeUint16LE reads a little-endian unsigned 16-bit integer.
func DecodeUint16LE(b []byte) (uint64, error) {
	if len(b) < 2 {
		return 0, shortPayload("uint16le", 2, len(b))
	}
	return uint64(binary.LittleEndian.Uint16(b[:2])), nil
}

// DecodeUint8 reads the first byte as an unsigned value.
func DecodeUint8(b []byte) (uint64, error) {
	if len(b) < 1 {
		return 0, shortPayload("uint8", 1, len(b))
	}
	return uint64(b[0]), nil
}

// DecodeASCIITrim maps every byte to the code point of the same value after
// dropping the last strip bytes. No multi-byte decoding is attempted.
func DecodeASCIITrim(b []byte, strip int) (string, error) {
	if strip < 0 {
		return "", &ParseError{Encoding: "ascii", Err: fmt.Errorf("negative strip %d", strip)}
	}
	if len(b) < strip {
		return "", shortPayload("ascii", strip, len(b))
	}
	b = b[:len(b)-strip]
	var sb strings.Builder
	sb.Grow(len(b))
	for _, c := range b {
		sb.WriteRune(rune(c))
	}
	return sb.String(), nil
}

// DecodeFirmware extracts the version from a revision string such as
// "P_1.2.3-9-X": the second "_" field, then everything after its first "-"
// ("9-X").
func DecodeFirmware(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", &ParseError{Encoding: "firmware", Err: fmt.Errorf("invalid utf-8 %q", b)}
	}
	fields := strings.Split(string(b), "_")
	if len(fields) < 2 {
		return "", &ParseError{Encoding: "firmware", Err: fmt.Errorf("missing '_' in %q", b)}
	}
	_, version, ok := strings.Cut(fields[1], "-")
	if !ok {
		return "", &ParseError{Encoding: "firmware", Err: fmt.Errorf("missing '-' in %q", b)}
	}
	return version, nil
}

// SoilTemperatureCurve evaluates the unclamped calibration polynomial.
func SoilTemperatureCurve(x float64) float64 {
	return soilTempA*x*x*x + soilTempB*x*x + soilTempC*x + soilTempD
}

// CalibrateSoilTemperature converts a raw Pot soil temperature code to °C,
// clamped to [SoilTemperatureMin, SoilTemperatureMax].
func CalibrateSoilTemperature(raw uint64) float64 {
	v := SoilTemperatureCurve(float64(raw))
	return math.Max(SoilTemperatureMin, math.Min(SoilTemperatureMax, v))
}

// Round rounds the exact binary value of v to the given number of decimals,
// ties to even: Round(1.25, 1) is 1.2, Round(36.5, 0) is 36.
func Round(v float64, decimals int) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return v
	}
	r, err := strconv.ParseFloat(strconv.FormatFloat(v, 'f', decimals, 64), 64)
	if err != nil {
		return v
	}
	return r
}

func float32Rounded(decimals int) DecodeFunc {
	return func(b []byte) (float64, error) {
		v, err := DecodeFloat32LE(b)
		if err != nil {
			return 0, err
		}
		return Round(v, decimals), nil
	}
}

func uint16Value(b []byte) (float64, error) {
	v, err := DecodeUint16LE(b)
	return float64(v), err
}

func uint8Value(b []byte) (float64, error) {
	v, err := DecodeUint8(b)
	return float64(v), err
}

func soilTemperature(b []byte) (float64, error) {
	raw, err := DecodeUint16LE(b)
	if err != nil {
		return 0, err
	}
	return Round(CalibrateSoilTemperature(raw), 1), nil
}
