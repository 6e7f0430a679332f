package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"attestry/internal/registry/models"
	"attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
	"attestry/pkg/requestcontext"
)

// Getters never authenticate and never mutate. Absence is a nil or empty result.

func (s *Service) GetProfile(ctx context.Context, addr domain.Address) (_ *models.Profile, err error) {
	ctx, end := s.begin(ctx, "get_profile", attribute.String("address", addr.String()))
	defer func() { end(err) }()

	profile, err := s.store.Profile(ctx, addr)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load profile")
	}
	return profile, nil
}

func (s *Service) GetDID(ctx context.Context, addr domain.Address) (_ *string, err error) {
	ctx, end := s.begin(ctx, "get_did", attribute.String("address", addr.String()))
	defer func() { end(err) }()

	profile, err := s.store.Profile(ctx, addr)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load profile")
	}
	if profile == nil {
		return nil, nil
	}
	return profile.DID, nil
}

func (s *Service) GetClaim(ctx context.Context, id uint64) (_ *models.Claim, err error) {
	ctx, end := s.begin(ctx, "get_claim", attribute.Int64("claim_id", int64(id)))
	defer func() { end(err) }()

	claim, err := s.store.Claim(ctx, id)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim")
	}
	return claim, nil
}

// GetUserClaims returns the claims received by addr in issuance order.
func (s *Service) GetUserClaims(ctx context.Context, addr domain.Address) (_ []*models.Claim, err error) {
	ctx, end := s.begin(ctx, "get_user_claims", attribute.String("address", addr.String()))
	defer func() { end(err) }()

	ids, err := s.store.ClaimsByReceiver(ctx, addr)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim index")
	}
	return s.loadClaims(ctx, ids)
}

// GetIssuerClaims returns the claims issued by addr in issuance order.
func (s *Service) GetIssuerClaims(ctx context.Context, addr domain.Address) (_ []*models.Claim, err error) {
	ctx, end := s.begin(ctx, "get_issuer_claims", attribute.String("address", addr.String()))
	defer func() { end(err) }()

	ids, err := s.store.ClaimsByIssuer(ctx, addr)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim index")
	}
	return s.loadClaims(ctx, ids)
}

// GetTotalClaims is the number of claims ever issued.
func (s *Service) GetTotalClaims(ctx context.Context) (_ uint64, err error) {
	ctx, end := s.begin(ctx, "get_total_claims")
	defer func() { end(err) }()

	next, err := s.store.NextClaimID(ctx)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read claim counter")
	}
	return next, nil
}

// GetReputationScore scores addr's approved received claims plus tenure at request time.
func (s *Service) GetReputationScore(ctx context.Context, addr domain.Address) (_ uint32, err error) {
	ctx, end := s.begin(ctx, "get_reputation_score", attribute.String("address", addr.String()))
	defer func() { end(err) }()

	profile, err := s.store.Profile(ctx, addr)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load profile")
	}
	if profile == nil {
		return 0, nil
	}
	ids, err := s.store.ClaimsByReceiver(ctx, addr)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim index")
	}
	claims, err := s.loadClaims(ctx, ids)
	if err != nil {
		return 0, err
	}

	score := s.rules.Score(profile, claims, requestcontext.NowUnix(ctx))
	if s.metrics != nil {
		s.metrics.IncrementReputationComputations()
	}
	return score, nil
}

// loadClaims resolves ids in order, skipping claims whose record has lapsed.
func (s *Service) loadClaims(ctx context.Context, ids []uint64) ([]*models.Claim, error) {
	claims := make([]*models.Claim, 0, len(ids))
	for _, id := range ids {
		claim, err := s.store.Claim(ctx, id)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load claim")
		}
		if claim != nil {
			claims = append(claims, claim)
		}
	}
	return claims, nil
}
