// Package hashing defines the engine-native representation of content
// digests: a fixed-size SHA-256 fingerprint paired with the byte size of the
// fingerprinted content.
package hashing

import (
	"encoding/hex"
	"fmt"
)

// FingerprintSize is the byte length of a Fingerprint.
const FingerprintSize = 32

// Fingerprint is a SHA-256 content hash.
type Fingerprint [FingerprintSize]byte

// FingerprintFromHex parses a 64-character hex string into a Fingerprint.
func FingerprintFromHex(s string) (Fingerprint, error) {
	var fp Fingerprint
	if len(s) != FingerprintSize*2 {
		return fp, fmt.Errorf("hex string has length %d but must have length %d", len(s), FingerprintSize*2)
	}
	if _, err := hex.Decode(fp[:], []byte(s)); err != nil {
		return fp, fmt.Errorf("invalid hex: %v", err)
	}
	return fp, nil
}

// Hex returns the lowercase hex encoding of the fingerprint.
func (f Fingerprint) Hex() string {
	return hex.EncodeToString(f[:])
}

func (f Fingerprint) String() string {
	return f.Hex()
}

// Digest identifies content by fingerprint and size in bytes. Digests are
// comparable and cheap to copy.
type Digest struct {
	Fingerprint Fingerprint
	SizeBytes   int64
}

func (d Digest) String() string {
	return fmt.Sprintf("%s/%d", d.Fingerprint.Hex(), d.SizeBytes)
}
