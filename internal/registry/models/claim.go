package models

import (
	"fmt"

	"attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
)

// ClaimStatus is the lifecycle state of a claim. Approved and Rejected are terminal.
type ClaimStatus string

const (
	ClaimStatusPending  ClaimStatus = "pending"
	ClaimStatusApproved ClaimStatus = "approved"
	ClaimStatusRejected ClaimStatus = "rejected"
)

// IsValid checks if the status is one of the supported enum values.
func (s ClaimStatus) IsValid() bool {
	return s == ClaimStatusPending || s == ClaimStatusApproved || s == ClaimStatusRejected
}

// IsTerminal reports whether no further transition is allowed.
func (s ClaimStatus) IsTerminal() bool {
	return s == ClaimStatusApproved || s == ClaimStatusRejected
}

// Claim is an attestation issued by one address about another.
// Everything except Status is immutable once issued.
type Claim struct {
	ID        uint64
	Issuer    domain.Address
	Receiver  domain.Address
	ClaimType string
	ProofHash domain.Digest
	Status    ClaimStatus
}

// NewClaim issues a pending claim.
func NewClaim(id uint64, issuer, receiver domain.Address, claimType string, proofHash domain.Digest) *Claim {
	return &Claim{
		ID:        id,
		Issuer:    issuer,
		Receiver:  receiver,
		ClaimType: claimType,
		ProofHash: proofHash,
		Status:    ClaimStatusPending,
	}
}

// Approve moves a pending claim to Approved.
func (c *Claim) Approve() error {
	if err := c.ensurePending(); err != nil {
		return err
	}
	c.Status = ClaimStatusApproved
	return nil
}

// Reject moves a pending claim to Rejected.
func (c *Claim) Reject() error {
	if err := c.ensurePending(); err != nil {
		return err
	}
	c.Status = ClaimStatusRejected
	return nil
}

func (c *Claim) ensurePending() error {
	switch c.Status {
	case ClaimStatusPending:
		return nil
	case ClaimStatusApproved:
		return dErrors.New(dErrors.CodeClaimAlreadyApproved, fmt.Sprintf("claim %d is already approved", c.ID))
	case ClaimStatusRejected:
		return dErrors.New(dErrors.CodeClaimAlreadyRejected, fmt.Sprintf("claim %d is already rejected", c.ID))
	default:
		return dErrors.New(dErrors.CodeInternal, fmt.Sprintf("claim %d has unknown status %q", c.ID, c.Status))
	}
}
