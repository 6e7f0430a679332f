package models

import (
	"strings"

	"attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
)

// MaxLinkedAccounts bounds the linked account list on one profile.
const MaxLinkedAccounts = 16

// LinkedAccountRequest is the wire form of a LinkedAccount.
type LinkedAccountRequest struct {
	Platform string `json:"platform"`
	Handle   string `json:"handle"`
}

// ProfileFieldsRequest carries the mutable profile fields shared by register and update.
// Metadata URI rules are enforced by the service so they surface as registry errors.
type ProfileFieldsRequest struct {
	MetadataURI    string                 `json:"metadata_uri"`
	DisplayName    string                 `json:"display_name"`
	CountryCode    *string                `json:"country_code,omitempty"`
	EmailHash      *domain.Digest         `json:"email_hash,omitempty"`
	LinkedAccounts []LinkedAccountRequest `json:"linked_accounts,omitempty"`
}

// Normalize trims free-text fields.
func (r *ProfileFieldsRequest) Normalize() {
	if r == nil {
		return
	}
	r.MetadataURI = strings.TrimSpace(r.MetadataURI)
	r.DisplayName = strings.TrimSpace(r.DisplayName)
	if r.CountryCode != nil {
		cc := strings.ToUpper(strings.TrimSpace(*r.CountryCode))
		r.CountryCode = &cc
	}
	for i := range r.LinkedAccounts {
		r.LinkedAccounts[i].Platform = strings.ToLower(strings.TrimSpace(r.LinkedAccounts[i].Platform))
		r.LinkedAccounts[i].Handle = strings.TrimSpace(r.LinkedAccounts[i].Handle)
	}
}

// Validate checks tags and list bounds.
func (r *ProfileFieldsRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	_, err := r.Fields()
	return err
}

// Fields converts the request into typed profile fields.
func (r *ProfileFieldsRequest) Fields() (ProfileFields, error) {
	fields := ProfileFields{
		MetadataURI: r.MetadataURI,
		DisplayName: r.DisplayName,
		EmailHash:   r.EmailHash,
	}
	if r.CountryCode != nil {
		cc, err := ParseTag(*r.CountryCode)
		if err != nil {
			return ProfileFields{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid country_code")
		}
		fields.CountryCode = &cc
	}
	if len(r.LinkedAccounts) > MaxLinkedAccounts {
		return ProfileFields{}, dErrors.New(dErrors.CodeInvalidInput, "too many linked accounts")
	}
	for _, la := range r.LinkedAccounts {
		platform, err := ParseTag(la.Platform)
		if err != nil {
			return ProfileFields{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid linked account platform")
		}
		if la.Handle == "" {
			return ProfileFields{}, dErrors.New(dErrors.CodeInvalidInput, "linked account handle is required")
		}
		fields.LinkedAccounts = append(fields.LinkedAccounts, LinkedAccount{Platform: platform, Handle: la.Handle})
	}
	return fields, nil
}

// RegisterProfileRequest registers a profile for Owner.
type RegisterProfileRequest struct {
	Owner string `json:"owner"`
	ProfileFieldsRequest
}

func (r *RegisterProfileRequest) Normalize() {
	if r == nil {
		return
	}
	r.Owner = strings.TrimSpace(r.Owner)
	r.ProfileFieldsRequest.Normalize()
}

func (r *RegisterProfileRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if _, err := domain.ParseAddress(r.Owner); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid owner")
	}
	return r.ProfileFieldsRequest.Validate()
}

// UpdateProfileRequest replaces the mutable fields of the profile named in the path.
type UpdateProfileRequest struct {
	ProfileFieldsRequest
}

// LinkDIDRequest links a DID to the profile named in the path. The DID is passed
// through byte for byte; the service enforces its length rule.
type LinkDIDRequest struct {
	DID string `json:"did"`
}

// AddClaimRequest issues a claim from Issuer about Receiver. ClaimType is free text
// stored as sent, the empty string included.
type AddClaimRequest struct {
	Issuer    string        `json:"issuer"`
	Receiver  string        `json:"receiver"`
	ClaimType string        `json:"claim_type"`
	ProofHash domain.Digest `json:"proof_hash"`
}

func (r *AddClaimRequest) Normalize() {
	if r == nil {
		return
	}
	r.Issuer = strings.TrimSpace(r.Issuer)
	r.Receiver = strings.TrimSpace(r.Receiver)
}

func (r *AddClaimRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if _, err := domain.ParseAddress(r.Issuer); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid issuer")
	}
	if _, err := domain.ParseAddress(r.Receiver); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid receiver")
	}
	return nil
}

// DecideClaimRequest approves or rejects the claim named in the path.
type DecideClaimRequest struct {
	Issuer string `json:"issuer"`
}

func (r *DecideClaimRequest) Normalize() {
	if r == nil {
		return
	}
	r.Issuer = strings.TrimSpace(r.Issuer)
}

func (r *DecideClaimRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request is required")
	}
	if _, err := domain.ParseAddress(r.Issuer); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid issuer")
	}
	return nil
}
