package service

import (
	"context"

	"go.opentelemetry.io/otel/attribute"

	"attestry/internal/registry/events"
	"attestry/internal/registry/models"
	"attestry/internal/registry/store"
	"attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
	"attestry/pkg/requestcontext"
)

// RegisterProfile creates the profile of owner. JoinedAt is the request time.
func (s *Service) RegisterProfile(ctx context.Context, owner domain.Address, fields models.ProfileFields) (_ *models.Profile, err error) {
	ctx, end := s.begin(ctx, "register_profile", attribute.String("owner", owner.String()))
	defer func() { end(err) }()

	if err := s.auth.RequireAuth(ctx, owner); err != nil {
		return nil, err
	}
	if err := models.ValidateMetadataURI(fields.MetadataURI); err != nil {
		return nil, err
	}

	var created *models.Profile
	err = s.store.RunInTx(ctx, func(tx *store.Tx) error {
		exists, err := tx.HasProfile(ctx, owner)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to check profile")
		}
		if exists {
			return dErrors.New(dErrors.CodeProfileAlreadyExists, "profile already exists")
		}
		created = models.NewProfile(owner, fields, requestcontext.NowUnix(ctx))
		if err := tx.PutProfile(created); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save profile")
		}
		s.notify(tx, events.TopicProfileRegistered, owner.String(), events.ProfileRegistered{
			Owner:       owner.String(),
			MetadataURI: created.MetadataURI,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementProfilesRegistered()
	}
	s.logInfo(ctx, "profile registered", "owner", owner.String(), "joined_at", created.JoinedAt)
	return created, nil
}

// UpdateProfileData replaces the mutable fields of an existing profile. Owner, DID
// and JoinedAt are kept.
func (s *Service) UpdateProfileData(ctx context.Context, owner domain.Address, fields models.ProfileFields) (_ *models.Profile, err error) {
	ctx, end := s.begin(ctx, "update_profile", attribute.String("owner", owner.String()))
	defer func() { end(err) }()

	if err := s.auth.RequireAuth(ctx, owner); err != nil {
		return nil, err
	}
	if err := models.ValidateMetadataURI(fields.MetadataURI); err != nil {
		return nil, err
	}

	var updated *models.Profile
	err = s.store.RunInTx(ctx, func(tx *store.Tx) error {
		profile, err := s.requireProfile(ctx, tx, owner)
		if err != nil {
			return err
		}
		profile.Apply(fields)
		if err := tx.PutProfile(profile); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save profile")
		}
		s.notify(tx, events.TopicProfileUpdated, owner.String(), events.ProfileUpdated{
			Owner:       owner.String(),
			MetadataURI: profile.MetadataURI,
		})
		updated = profile
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementProfilesUpdated()
	}
	s.logInfo(ctx, "profile updated", "owner", owner.String())
	return updated, nil
}

// LinkDID sets the profile's DID, overwriting any previous one.
func (s *Service) LinkDID(ctx context.Context, owner domain.Address, did string) (err error) {
	ctx, end := s.begin(ctx, "link_did", attribute.String("owner", owner.String()))
	defer func() { end(err) }()

	if err := s.auth.RequireAuth(ctx, owner); err != nil {
		return err
	}
	if err := models.ValidateDID(did); err != nil {
		return err
	}

	err = s.store.RunInTx(ctx, func(tx *store.Tx) error {
		profile, err := s.requireProfile(ctx, tx, owner)
		if err != nil {
			return err
		}
		profile.LinkDID(did)
		if err := tx.PutProfile(profile); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to save profile")
		}
		s.notify(tx, events.TopicDIDLinked, owner.String(), events.DIDLinked{Owner: owner.String(), DID: did})
		return nil
	})
	if err != nil {
		return err
	}

	if s.metrics != nil {
		s.metrics.IncrementDIDsLinked()
	}
	s.logInfo(ctx, "did linked", "owner", owner.String())
	return nil
}

func (s *Service) requireProfile(ctx context.Context, tx *store.Tx, owner domain.Address) (*models.Profile, error) {
	profile, err := tx.Profile(ctx, owner)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load profile")
	}
	if profile == nil {
		return nil, dErrors.New(dErrors.CodeProfileNotFound, "profile not found")
	}
	return profile, nil
}
