package models

import (
	"slices"

	"attestry/pkg/domain"
)

// Profile is the registry record of one participant. At most one exists per
// Address; JoinedAt is fixed when the profile is registered.
type Profile struct {
	Owner          domain.Address
	MetadataURI    string
	DisplayName    string
	DID            *string
	CountryCode    *Tag
	EmailHash      *domain.Digest
	LinkedAccounts []LinkedAccount
	JoinedAt       uint64 // unix seconds
}

// LinkedAccount ties the profile to an identity on another platform (github, linkedin, ...).
type LinkedAccount struct {
	Platform Tag
	Handle   string
}

// ProfileFields are the mutable parts of a profile, supplied on register and update.
type ProfileFields struct {
	MetadataURI    string
	DisplayName    string
	CountryCode    *Tag
	EmailHash      *domain.Digest
	LinkedAccounts []LinkedAccount
}

// NewProfile builds a fresh profile. The DID is only ever set by LinkDID.
func NewProfile(owner domain.Address, fields ProfileFields, joinedAt uint64) *Profile {
	p := &Profile{Owner: owner, JoinedAt: joinedAt}
	p.Apply(fields)
	return p
}

// Apply replaces the mutable fields, leaving Owner, DID and JoinedAt untouched.
func (p *Profile) Apply(fields ProfileFields) {
	p.MetadataURI = fields.MetadataURI
	p.DisplayName = fields.DisplayName
	p.CountryCode = fields.CountryCode
	p.EmailHash = fields.EmailHash
	p.LinkedAccounts = slices.Clone(fields.LinkedAccounts)
}

// LinkDID sets or overwrites the decentralized identifier.
func (p *Profile) LinkDID(did string) {
	p.DID = &did
}
