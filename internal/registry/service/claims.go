package service

import (
	"context"
	"fmt"
	"math"
	"slices"

	"go.opentelemetry.io/otel/attribute"

	"attestry/internal/registry/events"
	"attestry/internal/registry/models"
	"attestry/internal/registry/store"
	"attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
)

// AddClaim issues a pending claim from issuer about receiver and returns its id.
// Ids start at 0 and increase by one per call. Issuer and receiver may be equal.
func (s *Service) AddClaim(ctx context.Context, issuer, receiver domain.Address, claimType string, proofHash domain.Digest) (_ uint64, err error) {
	ctx, end := s.begin(ctx, "add_claim",
		attribute.String("issuer", issuer.String()),
		attribute.String("receiver", receiver.String()),
		attribute.String("claim_type", claimType),
	)
	defer func() { end(err) }()

	if err := s.auth.RequireAuth(ctx, issuer); err != nil {
		return 0, err
	}

	var id uint64
	err = s.store.RunInTx(ctx, func(tx *store.Tx) error {
		next, err := tx.NextClaimID(ctx)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to read claim counter")
		}
		if next == math.MaxUint64 {
			return dErrors.New(dErrors.CodeInternal, "claim id space exhausted")
		}
		existing, err := tx.Claim(ctx, next)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim")
		}
		if existing != nil {
			return dErrors.New(dErrors.CodeInternal, fmt.Sprintf("claim counter points at live claim %d", next))
		}
		claim := models.NewClaim(next, issuer, receiver, claimType, proofHash)
		if err := tx.PutClaim(claim); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save claim")
		}
		if err := appendIndex(ctx, tx.ClaimsByReceiver, tx.PutClaimsByReceiver, receiver, next); err != nil {
			return err
		}
		if err := appendIndex(ctx, tx.ClaimsByIssuer, tx.PutClaimsByIssuer, issuer, next); err != nil {
			return err
		}
		if err := tx.PutNextClaimID(next + 1); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to advance claim counter")
		}
		s.notify(tx, events.TopicClaimAdded, claimAggregate(next), events.ClaimAdded{
			ClaimID:   next,
			Issuer:    issuer.String(),
			Receiver:  receiver.String(),
			ClaimType: claimType,
		})
		id = next
		return nil
	})
	if err != nil {
		return 0, err
	}

	if s.metrics != nil {
		s.metrics.IncrementClaimsAdded(claimType)
	}
	s.logInfo(ctx, "claim added",
		"claim_id", id,
		"issuer", issuer.String(),
		"receiver", receiver.String(),
		"claim_type", claimType,
	)
	return id, nil
}

// ApproveClaim moves a pending claim to approved. Only its issuer may do so.
func (s *Service) ApproveClaim(ctx context.Context, issuer domain.Address, claimID uint64) error {
	return s.decide(ctx, "approve_claim", issuer, claimID, (*models.Claim).Approve, events.TopicClaimApproved)
}

// RejectClaim moves a pending claim to rejected. Only its issuer may do so.
func (s *Service) RejectClaim(ctx context.Context, issuer domain.Address, claimID uint64) error {
	return s.decide(ctx, "reject_claim", issuer, claimID, (*models.Claim).Reject, events.TopicClaimRejected)
}

// decide checks existence, then ownership, then status, so a non-issuer always sees
// UnauthorizedApproval whatever the claim's state.
func (s *Service) decide(ctx context.Context, op string, issuer domain.Address, claimID uint64, transition func(*models.Claim) error, topic events.Topic) (err error) {
	ctx, end := s.begin(ctx, op,
		attribute.String("issuer", issuer.String()),
		attribute.Int64("claim_id", int64(claimID)),
	)
	defer func() { end(err) }()

	if err := s.auth.RequireAuth(ctx, issuer); err != nil {
		return err
	}

	var decided *models.Claim
	err = s.store.RunInTx(ctx, func(tx *store.Tx) error {
		claim, err := tx.Claim(ctx, claimID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim")
		}
		if claim == nil {
			return dErrors.New(dErrors.CodeClaimNotFound, fmt.Sprintf("claim %d not found", claimID))
		}
		if err := models.ValidateClaimOwnership(issuer, claim.Issuer); err != nil {
			return err
		}
		if err := transition(claim); err != nil {
			return err
		}
		if err := tx.PutClaim(claim); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save claim")
		}
		s.notify(tx, topic, claimAggregate(claim.ID), events.ClaimDecided{
			ClaimID:  claim.ID,
			Issuer:   claim.Issuer.String(),
			Receiver: claim.Receiver.String(),
		})
		decided = claim
		return nil
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncrementClaimsDecided(string(decided.Status))
	}
	s.logInfo(ctx, "claim decided",
		"claim_id", decided.ID,
		"issuer", decided.Issuer.String(),
		"status", string(decided.Status),
	)
	return nil
}

func appendIndex(
	ctx context.Context,
	load func(context.Context, domain.Address) ([]uint64, error),
	save func(domain.Address, []uint64) error,
	addr domain.Address,
	id uint64,
) error {
	ids, err := load(ctx, addr)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim index")
	}
	if err := save(addr, append(slices.Clone(ids), id)); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save claim index")
	}
	return nil
}

func claimAggregate(id uint64) string {
	return fmt.Sprintf("claim:%d", id)
}
