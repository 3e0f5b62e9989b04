package model

import (
	"encoding/hex"
	"strconv"

	"golang.org/x/crypto/blake2b"
)

// Fingerprint is a cheap summary of a fetched page's content.
// Two fetches with equal fingerprints rendered identical content, which is how
// differently parameterized URLs of one identity are recognized as duplicates.
// The struct is comparable and is used directly as a map key.
type Fingerprint struct {
	// StatusCode is the HTTP status of the response.
	StatusCode int `json:"status_code"`
	// Length is the body length in bytes.
	Length int `json:"length"`
	// Hash is the hex-encoded BLAKE2b-256 digest of the body.
	Hash string `json:"hash"`
}

// NewFingerprint computes the fingerprint of a response.
func NewFingerprint(statusCode int, body []byte) Fingerprint {
	sum := blake2b.Sum256(body)
	return Fingerprint{
		StatusCode: statusCode,
		Length:     len(body),
		Hash:       hex.EncodeToString(sum[:]),
	}
}

// String returns "status/length/hash-prefix" for logs.
func (f Fingerprint) String() string {
	h := f.Hash
	if len(h) > 12 {
		h = h[:12]
	}
	return strconv.Itoa(f.StatusCode) + "/" + strconv.Itoa(f.Length) + "/" + h
}
