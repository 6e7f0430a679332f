package models

import (
	"unicode/utf8"

	"attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
)

const (
	MinDIDLength         = 10
	MaxMetadataURILength = 256
)

// ValidateDID is deliberately shallow: only the length is checked, not DID syntax.
func ValidateDID(did string) error {
	if utf8.RuneCountInString(did) < MinDIDLength {
		return dErrors.New(dErrors.CodeInvalidDID, "did must be at least 10 characters")
	}
	return nil
}

// ValidateMetadataURI requires 1-256 characters.
func ValidateMetadataURI(uri string) error {
	n := utf8.RuneCountInString(uri)
	if n == 0 || n > MaxMetadataURILength {
		return dErrors.New(dErrors.CodeInvalidMetadataURI, "metadata uri must be 1-256 characters")
	}
	return nil
}

// ValidateClaimOwnership allows only the recorded issuer to decide a claim.
func ValidateClaimOwnership(caller, issuer domain.Address) error {
	if caller != issuer {
		return dErrors.New(dErrors.CodeUnauthorizedApproval, "only the claim issuer may approve or reject it")
	}
	return nil
}
