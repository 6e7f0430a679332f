package domain

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/sha3"

	dErrors "attestry/pkg/domain-errors"
)

// DigestSize is the byte length of proof hashes and email hashes.
const DigestSize = 32

// Digest is an opaque 32-byte hash. It travels as lowercase hex.
type Digest [DigestSize]byte

// ParseDigest accepts 64 hex characters with an optional 0x prefix.
func ParseDigest(s string) (Digest, error) {
	var d Digest
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	if len(s) != hex.EncodedLen(DigestSize) {
		return d, dErrors.New(dErrors.CodeInvalidInput, "digest must be 32 bytes of hex")
	}
	if _, err := hex.Decode(d[:], []byte(s)); err != nil {
		return d, dErrors.Wrap(err, dErrors.CodeInvalidInput, "digest is not valid hex")
	}
	return d, nil
}

// HashProof derives a proof hash from off-registry evidence, e.g. a work delivery payload.
func HashProof(data []byte) Digest {
	var d Digest
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	copy(d[:], h.Sum(nil))
	return d
}

func (d Digest) String() string { return hex.EncodeToString(d[:]) }

func (d Digest) IsZero() bool { return d == Digest{} }

func (d Digest) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Digest) UnmarshalText(b []byte) error {
	parsed, err := ParseDigest(string(b))
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}
