package handler

import (
	"attestry/internal/registry/models"
	"attestry/pkg/domain"
)

type LinkedAccountResponse struct {
	Platform string `json:"platform"`
	Handle   string `json:"handle"`
}

type ProfileResponse struct {
	Owner          string                  `json:"owner"`
	MetadataURI    string                  `json:"metadata_uri"`
	DisplayName    string                  `json:"display_name,omitempty"`
	DID            *string                 `json:"did"`
	CountryCode    *string                 `json:"country_code,omitempty"`
	EmailHash      *domain.Digest          `json:"email_hash,omitempty"`
	LinkedAccounts []LinkedAccountResponse `json:"linked_accounts"`
	JoinedAt       uint64                  `json:"joined_at"`
}

type ClaimResponse struct {
	ID        uint64        `json:"id"`
	Issuer    string        `json:"issuer"`
	Receiver  string        `json:"receiver"`
	ClaimType string        `json:"claim_type"`
	ProofHash domain.Digest `json:"proof_hash"`
	Status    string        `json:"status"`
}

type ClaimListResponse struct {
	Claims []ClaimResponse `json:"claims"`
}

type AddClaimResponse struct {
	ClaimID uint64 `json:"claim_id"`
}

type DIDResponse struct {
	DID *string `json:"did"`
}

type ReputationResponse struct {
	Address string `json:"address"`
	Score   uint32 `json:"score"`
}

type TotalClaimsResponse struct {
	Total uint64 `json:"total"`
}

func toProfileResponse(p *models.Profile) ProfileResponse {
	resp := ProfileResponse{
		Owner:          p.Owner.String(),
		MetadataURI:    p.MetadataURI,
		DisplayName:    p.DisplayName,
		DID:            p.DID,
		EmailHash:      p.EmailHash,
		LinkedAccounts: make([]LinkedAccountResponse, 0, len(p.LinkedAccounts)),
		JoinedAt:       p.JoinedAt,
	}
	if p.CountryCode != nil {
		cc := p.CountryCode.String()
		resp.CountryCode = &cc
	}
	for _, la := range p.LinkedAccounts {
		resp.LinkedAccounts = append(resp.LinkedAccounts, LinkedAccountResponse{Platform: la.Platform.String(), Handle: la.Handle})
	}
	return resp
}

func toClaimResponse(c *models.Claim) ClaimResponse {
	return ClaimResponse{
		ID:        c.ID,
		Issuer:    c.Issuer.String(),
		Receiver:  c.Receiver.String(),
		ClaimType: c.ClaimType,
		ProofHash: c.ProofHash,
		Status:    string(c.Status),
	}
}

func toClaimListResponse(claims []*models.Claim) ClaimListResponse {
	out := ClaimListResponse{Claims: make([]ClaimResponse, 0, len(claims))}
	for _, c := range claims {
		out.Claims = append(out.Claims, toClaimResponse(c))
	}
	return out
}
