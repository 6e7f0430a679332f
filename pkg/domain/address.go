// Package domain provides type-safe identifiers shared by every registry layer.
package domain

import (
	"strings"

	dErrors "attestry/pkg/domain-errors"
)

// MaxAddressLength bounds the textual form of an Address.
const MaxAddressLength = 128

// Address identifies a registry participant (an account or a contract).
// Ownership of an Address is proven by the caller's credentials, never by the registry.
type Address string

// ParseAddress validates an address at a trust boundary (handlers, token subjects).
func ParseAddress(s string) (Address, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address cannot be empty")
	}
	if len(s) > MaxAddressLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "address is too long")
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c <= ' ' || c > '~' {
			return "", dErrors.New(dErrors.CodeInvalidInput, "address contains invalid characters")
		}
	}
	return Address(s), nil
}

func (a Address) String() string { return string(a) }

func (a Address) IsNil() bool { return a == "" }
