package store

import (
	"attestry/internal/registry/models"
	"attestry/pkg/domain"
)

// Stored records use explicit JSON tags so domain struct changes never silently
// change the persisted shape.

type linkedAccountRecord struct {
	Platform string `json:"platform"`
	Handle   string `json:"handle"`
}

type profileRecord struct {
	Owner          string                `json:"owner"`
	MetadataURI    string                `json:"metadata_uri"`
	DisplayName    string                `json:"display_name,omitempty"`
	DID            *string               `json:"did,omitempty"`
	CountryCode    *string               `json:"country_code,omitempty"`
	EmailHash      *domain.Digest        `json:"email_hash,omitempty"`
	LinkedAccounts []linkedAccountRecord `json:"linked_accounts,omitempty"`
	JoinedAt       uint64                `json:"joined_at"`
}

func toProfileRecord(p *models.Profile) profileRecord {
	rec := profileRecord{
		Owner:       p.Owner.String(),
		MetadataURI: p.MetadataURI,
		DisplayName: p.DisplayName,
		DID:         p.DID,
		EmailHash:   p.EmailHash,
		JoinedAt:    p.JoinedAt,
	}
	if p.CountryCode != nil {
		cc := p.CountryCode.String()
		rec.CountryCode = &cc
	}
	for _, la := range p.LinkedAccounts {
		rec.LinkedAccounts = append(rec.LinkedAccounts, linkedAccountRecord{Platform: la.Platform.String(), Handle: la.Handle})
	}
	return rec
}

func (r profileRecord) toModel() *models.Profile {
	p := &models.Profile{
		Owner:       domain.Address(r.Owner),
		MetadataURI: r.MetadataURI,
		DisplayName: r.DisplayName,
		DID:         r.DID,
		EmailHash:   r.EmailHash,
		JoinedAt:    r.JoinedAt,
	}
	if r.CountryCode != nil {
		cc := models.Tag(*r.CountryCode)
		p.CountryCode = &cc
	}
	for _, la := range r.LinkedAccounts {
		p.LinkedAccounts = append(p.LinkedAccounts, models.LinkedAccount{Platform: models.Tag(la.Platform), Handle: la.Handle})
	}
	return p
}

type claimRecord struct {
	ID        uint64        `json:"id"`
	Issuer    string        `json:"issuer"`
	Receiver  string        `json:"receiver"`
	ClaimType string        `json:"claim_type"`
	ProofHash domain.Digest `json:"proof_hash"`
	Status    string        `json:"status"`
}

func toClaimRecord(c *models.Claim) claimRecord {
	return claimRecord{
		ID:        c.ID,
		Issuer:    c.Issuer.String(),
		Receiver:  c.Receiver.String(),
		ClaimType: c.ClaimType,
		ProofHash: c.ProofHash,
		Status:    string(c.Status),
	}
}

func (r claimRecord) toModel() *models.Claim {
	return &models.Claim{
		ID:        r.ID,
		Issuer:    domain.Address(r.Issuer),
		Receiver:  domain.Address(r.Receiver),
		ClaimType: r.ClaimType,
		ProofHash: r.ProofHash,
		Status:    models.ClaimStatus(r.Status),
	}
}
