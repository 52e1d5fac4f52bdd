package common

import (
	"bytes"
	"encoding/hex"
	"fmt"
)

// HashLength is the number of bytes in a Hash.
const HashLength = 32

// Hash is a fixed-length content identifier. It is comparable and can be used
// directly as a map key.
type Hash [HashLength]byte

// BytesToHash returns a Hash from b. If b is longer than HashLength, only the
// last HashLength bytes are kept. Shorter inputs are left-padded with zeros.
func BytesToHash(b []byte) Hash {
	var h Hash
	if len(b) > HashLength {
		b = b[len(b)-HashLength:]
	}
	copy(h[HashLength-len(b):], b)
	return h
}

// HexToHash parses the string representation produced by Hash.String.
func HexToHash(s string) (Hash, error) {
	if len(s) < 2 || (s[:2] != "0X" && s[:2] != "0x") {
		return Hash{}, fmt.Errorf("hash %q is missing 0X prefix", s)
	}
	b, err := DecodeFromString(s)
	if err != nil {
		return Hash{}, err
	}
	if len(b) != HashLength {
		return Hash{}, fmt.Errorf("hash %q has %d bytes, want %d", s, len(b), HashLength)
	}
	return BytesToHash(b), nil
}

// Bytes returns a copy of the underlying bytes.
func (h Hash) Bytes() []byte {
	b := make([]byte, HashLength)
	copy(b, h[:])
	return b
}

// String returns the uppercase hex representation with 0X prefix.
func (h Hash) String() string {
	return EncodeToString(h[:])
}

// IsZero reports whether h is the zero Hash.
func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Less orders hashes by byte value.
func (h Hash) Less(o Hash) bool {
	return bytes.Compare(h[:], o[:]) < 0
}

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := HexToHash(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

//EncodeToString returns the UPPERCASE string representation of hexBytes with
//the 0X prefix
func EncodeToString(hexBytes []byte) string {
	return fmt.Sprintf("0X%X", hexBytes)
}

//DecodeFromString converts a hex string with 0X prefix to a byte slice
func DecodeFromString(hexString string) ([]byte, error) {
	if len(hexString) < 2 {
		return nil, fmt.Errorf("hex string %q is too short", hexString)
	}
	return hex.DecodeString(hexString[2:])
}
