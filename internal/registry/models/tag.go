package models

import (
	dErrors "attestry/pkg/domain-errors"
)

// MaxTagLength bounds short identifier tags such as platforms and country codes.
const MaxTagLength = 32

// Tag is a short symbolic identifier: 1-32 characters of [A-Za-z0-9_].
type Tag string

// ParseTag validates a tag at a trust boundary.
func ParseTag(s string) (Tag, error) {
	if s == "" || len(s) > MaxTagLength {
		return "", dErrors.New(dErrors.CodeInvalidInput, "tag must be 1-32 characters")
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '_':
		default:
			return "", dErrors.New(dErrors.CodeInvalidInput, "tag may only contain letters, digits and underscores")
		}
	}
	return Tag(s), nil
}

func (t Tag) String() string { return string(t) }
