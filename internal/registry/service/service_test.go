package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"attestry/internal/registry/events"
	registrymetrics "attestry/internal/registry/metrics"
	"attestry/internal/registry/models"
	"attestry/internal/registry/service/mocks"
	"attestry/internal/registry/store"
	"attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
	"attestry/pkg/requestcontext"
	"attestry/pkg/testutil"
)

const (
	alice = domain.Address("GALICE")
	bob   = domain.Address("GBOB")
	carol = domain.Address("GCAROL")
)

type ServiceSuite struct {
	suite.Suite
	backend  *store.MemoryBackend
	adapter  *store.Adapter
	recorder *events.Recorder
	metrics  *registrymetrics.Metrics
	service  *Service
	now      time.Time
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) SetupTest() {
	s.backend = store.NewMemoryBackend()
	s.adapter = store.NewAdapter(s.backend)
	s.recorder = events.NewRecorder()
	s.metrics = registrymetrics.NewWithRegisterer(prometheus.NewRegistry())
	s.service = New(s.adapter, WithPublisher(s.recorder), WithMetrics(s.metrics))
	s.now = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
}

// as returns a context authenticated as caller at the suite clock.
func (s *ServiceSuite) as(caller domain.Address) context.Context {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	return requestcontext.WithCaller(ctx, caller)
}

func (s *ServiceSuite) anon() context.Context {
	return requestcontext.WithTime(context.Background(), s.now)
}

func fields(uri string) models.ProfileFields {
	return models.ProfileFields{MetadataURI: uri}
}

func (s *ServiceSuite) register(owner domain.Address) {
	_, err := s.service.RegisterProfile(s.as(owner), owner, fields("ipfs://"+owner.String()))
	s.Require().NoError(err)
}

func (s *ServiceSuite) addClaim(issuer, receiver domain.Address, claimType string) uint64 {
	id, err := s.service.AddClaim(s.as(issuer), issuer, receiver, claimType, domain.HashProof([]byte(claimType)))
	s.Require().NoError(err)
	return id
}

func (s *ServiceSuite) requireCode(err error, code dErrors.Code) {
	s.Require().Error(err)
	s.Truef(dErrors.HasCode(err, code), "expected %s, got %v", code, err)
}

func (s *ServiceSuite) TestRegisterProfile() {
	s.Run("registers and reads back", func() {
		_, err := s.service.RegisterProfile(s.as(alice), alice, fields("ipfs://x"))
		s.Require().NoError(err)

		profile, err := s.service.GetProfile(s.anon(), alice)
		s.Require().NoError(err)
		s.Require().NotNil(profile)
		s.Equal("ipfs://x", profile.MetadataURI)
		s.Nil(profile.DID)
		s.Equal(uint64(s.now.Unix()), profile.JoinedAt)
		s.Equal([]events.Topic{events.TopicProfileRegistered}, s.recorder.Topics())
		s.Equal(events.ProfileRegistered{Owner: "GALICE", MetadataURI: "ipfs://x"}, s.recorder.Events()[0].Payload)
		s.Equal(1.0, promtestutil.ToFloat64(s.metrics.ProfilesRegistered))
	})

	s.Run("second registration fails and leaves the first intact", func() {
		_, err := s.service.RegisterProfile(s.as(alice), alice, fields("ipfs://other"))
		s.requireCode(err, dErrors.CodeProfileAlreadyExists)

		profile, _ := s.service.GetProfile(s.anon(), alice)
		s.Equal("ipfs://x", profile.MetadataURI)
		s.Len(s.recorder.Events(), 1)
	})
}

func (s *ServiceSuite) TestRegisterProfileRejectsBadURIs() {
	for _, uri := range []string{"", strings.Repeat("u", 257)} {
		_, err := s.service.RegisterProfile(s.as(alice), alice, fields(uri))
		s.requireCode(err, dErrors.CodeInvalidMetadataURI)
	}
	_, err := s.service.RegisterProfile(s.as(bob), bob, fields(strings.Repeat("u", 256)))
	s.NoError(err)

	profile, err := s.service.GetProfile(s.anon(), alice)
	s.NoError(err)
	s.Nil(profile)
}

func (s *ServiceSuite) TestMutationsRequireTheNamedCaller() {
	s.register(alice)
	claimID := s.addClaim(alice, bob, "skill")

	cases := []struct {
		name string
		call func(ctx context.Context) error
	}{
		{"register", func(ctx context.Context) error {
			_, err := s.service.RegisterProfile(ctx, carol, fields("ipfs://c"))
			return err
		}},
		{"update", func(ctx context.Context) error {
			_, err := s.service.UpdateProfileData(ctx, alice, fields("ipfs://y"))
			return err
		}},
		{"link did", func(ctx context.Context) error {
			return s.service.LinkDID(ctx, alice, "did:example:alice")
		}},
		{"add claim", func(ctx context.Context) error {
			_, err := s.service.AddClaim(ctx, alice, bob, "skill", domain.Digest{})
			return err
		}},
		{"approve", func(ctx context.Context) error {
			return s.service.ApproveClaim(ctx, alice, claimID)
		}},
		{"reject", func(ctx context.Context) error {
			return s.service.RejectClaim(ctx, alice, claimID)
		}},
	}
	for _, tc := range cases {
		s.Run(tc.name+" anonymous", func() {
			s.requireCode(tc.call(s.anon()), dErrors.CodeUnauthorized)
		})
		s.Run(tc.name+" as someone else", func() {
			s.requireCode(tc.call(s.as(domain.Address("GMALLORY"))), dErrors.CodeUnauthorized)
		})
	}

	total, _ := s.service.GetTotalClaims(s.anon())
	s.Equal(uint64(1), total)
	claim, _ := s.service.GetClaim(s.anon(), claimID)
	s.Equal(models.ClaimStatusPending, claim.Status)
}

func (s *ServiceSuite) TestUpdateProfileData() {
	s.Run("missing profile", func() {
		_, err := s.service.UpdateProfileData(s.as(alice), alice, fields("ipfs://y"))
		s.requireCode(err, dErrors.CodeProfileNotFound)
	})

	s.Run("format is checked before existence", func() {
		_, err := s.service.UpdateProfileData(s.as(alice), alice, fields(""))
		s.requireCode(err, dErrors.CodeInvalidMetadataURI)
	})

	s.Run("keeps joined_at and did", func() {
		s.register(alice)
		s.Require().NoError(s.service.LinkDID(s.as(alice), alice, "did:example:alice"))

		s.now = s.now.Add(time.Hour)
		cc := models.Tag("AR")
		updated, err := s.service.UpdateProfileData(s.as(alice), alice, models.ProfileFields{
			MetadataURI:    "ipfs://y",
			DisplayName:    "Alice",
			CountryCode:    &cc,
			LinkedAccounts: []models.LinkedAccount{{Platform: "github", Handle: "alice"}},
		})
		s.Require().NoError(err)
		s.Equal("ipfs://y", updated.MetadataURI)

		profile, _ := s.service.GetProfile(s.anon(), alice)
		s.Equal(uint64(s.now.Add(-time.Hour).Unix()), profile.JoinedAt)
		s.Require().NotNil(profile.DID)
		s.Equal("did:example:alice", *profile.DID)
		s.Equal("Alice", profile.DisplayName)
		s.Equal(&cc, profile.CountryCode)
		s.Equal([]models.LinkedAccount{{Platform: "github", Handle: "alice"}}, profile.LinkedAccounts)
		s.Equal(events.TopicProfileUpdated, s.recorder.Topics()[len(s.recorder.Topics())-1])
	})

	s.Run("rejected update leaves profile unchanged", func() {
		_, err := s.service.UpdateProfileData(s.as(alice), alice, fields(strings.Repeat("x", 300)))
		s.requireCode(err, dErrors.CodeInvalidMetadataURI)
		profile, _ := s.service.GetProfile(s.anon(), alice)
		s.Equal("ipfs://y", profile.MetadataURI)
	})
}

func (s *ServiceSuite) TestLinkDID() {
	s.Run("missing profile", func() {
		s.requireCode(s.service.LinkDID(s.as(alice), alice, "did:example:alice"), dErrors.CodeProfileNotFound)
	})

	s.register(alice)

	s.Run("short dids fail and leave the did unset", func() {
		s.requireCode(s.service.LinkDID(s.as(alice), alice, "did:x:123"), dErrors.CodeInvalidDID)
		did, err := s.service.GetDID(s.anon(), alice)
		s.NoError(err)
		s.Nil(did)
	})

	s.Run("linking twice overwrites", func() {
		s.Require().NoError(s.service.LinkDID(s.as(alice), alice, "did:example:first"))
		s.Require().NoError(s.service.LinkDID(s.as(alice), alice, "did:example:second"))
		did, _ := s.service.GetDID(s.anon(), alice)
		s.Require().NotNil(did)
		s.Equal("did:example:second", *did)
	})

	s.Run("short did after a good one keeps the good one", func() {
		s.requireCode(s.service.LinkDID(s.as(alice), alice, "short"), dErrors.CodeInvalidDID)
		did, _ := s.service.GetDID(s.anon(), alice)
		s.Equal("did:example:second", *did)
	})

	s.Run("no profile means no did", func() {
		did, err := s.service.GetDID(s.anon(), carol)
		s.NoError(err)
		s.Nil(did)
	})
}

func (s *ServiceSuite) TestClaimIDsAreSequentialFromZero() {
	for i := range 5 {
		id := s.addClaim(alice, bob, "skill")
		s.Equal(uint64(i), id)
	}
	total, err := s.service.GetTotalClaims(s.anon())
	s.NoError(err)
	s.Equal(uint64(5), total)
	s.Equal(5.0, promtestutil.ToFloat64(s.metrics.ClaimsAdded.WithLabelValues("skill")))
}

func (s *ServiceSuite) TestClaimsStartPendingAndIndexBothSides() {
	id := s.addClaim(bob, alice, "job_completed")

	claim, err := s.service.GetClaim(s.anon(), id)
	s.Require().NoError(err)
	s.Equal(models.ClaimStatusPending, claim.Status)
	s.Equal(bob, claim.Issuer)
	s.Equal(alice, claim.Receiver)
	s.Equal(domain.HashProof([]byte("job_completed")), claim.ProofHash)

	s.Equal(events.ClaimAdded{ClaimID: 0, Issuer: "GBOB", Receiver: "GALICE", ClaimType: "job_completed"}, s.recorder.Events()[0].Payload)
}

func (s *ServiceSuite) TestClaimIndicesFollowIssuanceOrder() {
	a0 := s.addClaim(bob, alice, "skill")
	c1 := s.addClaim(bob, carol, "skill")
	a2 := s.addClaim(carol, alice, "job_completed")
	self := s.addClaim(alice, alice, "self")

	received, err := s.service.GetUserClaims(s.anon(), alice)
	s.Require().NoError(err)
	s.Equal([]uint64{a0, a2, self}, claimIDs(received))

	issued, err := s.service.GetIssuerClaims(s.anon(), bob)
	s.Require().NoError(err)
	s.Equal([]uint64{a0, c1}, claimIDs(issued))

	selfIssued, _ := s.service.GetIssuerClaims(s.anon(), alice)
	s.Equal([]uint64{self}, claimIDs(selfIssued))

	none, err := s.service.GetUserClaims(s.anon(), domain.Address("GNOBODY"))
	s.NoError(err)
	s.Empty(none)
}

func (s *ServiceSuite) TestClaimCounterOutlivesIdleYear() {
	id0 := s.addClaim(alice, bob, "skill")

	s.now = s.now.Add(364 * 24 * time.Hour)
	s.Require().NoError(s.service.ApproveClaim(s.as(alice), alice, id0))

	s.now = s.now.Add(2 * 24 * time.Hour)
	id1 := s.addClaim(carol, bob, "skill")
	s.Equal(uint64(1), id1)

	claim, err := s.service.GetClaim(s.anon(), id0)
	s.Require().NoError(err)
	s.Require().NotNil(claim)
	s.Equal(models.ClaimStatusApproved, claim.Status)
	s.Equal(alice, claim.Issuer)

	total, err := s.service.GetTotalClaims(s.anon())
	s.Require().NoError(err)
	s.Equal(uint64(2), total)
}

func (s *ServiceSuite) TestAddClaimNeverOverwritesALiveClaim() {
	seeded := models.NewClaim(0, alice, bob, "seeded", domain.HashProof([]byte("seeded")))
	s.Require().NoError(s.adapter.RunInTx(s.anon(), func(tx *store.Tx) error {
		return tx.PutClaim(seeded)
	}))
	s.recorder.Reset()

	_, err := s.service.AddClaim(s.as(carol), carol, bob, "skill", domain.Digest{})
	s.requireCode(err, dErrors.CodeInternal)

	claim, err := s.service.GetClaim(s.anon(), 0)
	s.Require().NoError(err)
	s.Equal("seeded", claim.ClaimType)
	s.Empty(s.recorder.Events())

	issued, err := s.service.GetIssuerClaims(s.anon(), carol)
	s.Require().NoError(err)
	s.Empty(issued)
}

func (s *ServiceSuite) TestClaimDecisions() {
	s.Run("approve then approve", func() {
		id := s.addClaim(bob, alice, "skill")
		s.Require().NoError(s.service.ApproveClaim(s.as(bob), bob, id))
		s.requireCode(s.service.ApproveClaim(s.as(bob), bob, id), dErrors.CodeClaimAlreadyApproved)
	})

	s.Run("approve then reject reports the approved state", func() {
		id := s.addClaim(bob, alice, "skill")
		s.Require().NoError(s.service.ApproveClaim(s.as(bob), bob, id))
		s.requireCode(s.service.RejectClaim(s.as(bob), bob, id), dErrors.CodeClaimAlreadyApproved)
		claim, _ := s.service.GetClaim(s.anon(), id)
		s.Equal(models.ClaimStatusApproved, claim.Status)
	})

	s.Run("reject then approve reports the rejected state", func() {
		id := s.addClaim(bob, alice, "skill")
		s.Require().NoError(s.service.RejectClaim(s.as(bob), bob, id))
		s.requireCode(s.service.ApproveClaim(s.as(bob), bob, id), dErrors.CodeClaimAlreadyRejected)
		s.requireCode(s.service.RejectClaim(s.as(bob), bob, id), dErrors.CodeClaimAlreadyRejected)
	})

	s.Run("missing claim", func() {
		s.requireCode(s.service.ApproveClaim(s.as(bob), bob, 999), dErrors.CodeClaimNotFound)
		s.requireCode(s.service.RejectClaim(s.as(bob), bob, 999), dErrors.CodeClaimNotFound)
	})

	s.Run("non-issuer is refused whatever the status", func() {
		pending := s.addClaim(bob, alice, "skill")
		approved := s.addClaim(bob, alice, "skill")
		s.Require().NoError(s.service.ApproveClaim(s.as(bob), bob, approved))
		rejected := s.addClaim(bob, alice, "skill")
		s.Require().NoError(s.service.RejectClaim(s.as(bob), bob, rejected))

		for _, id := range []uint64{pending, approved, rejected} {
			s.requireCode(s.service.ApproveClaim(s.as(carol), carol, id), dErrors.CodeUnauthorizedApproval)
			s.requireCode(s.service.RejectClaim(s.as(carol), carol, id), dErrors.CodeUnauthorizedApproval)
		}
		claim, _ := s.service.GetClaim(s.anon(), pending)
		s.Equal(models.ClaimStatusPending, claim.Status)
	})

	s.Run("decisions are published with the claim parties", func() {
		id := s.addClaim(bob, carol, "skill")
		s.recorder.Reset()
		s.Require().NoError(s.service.RejectClaim(s.as(bob), bob, id))
		s.Equal([]events.Topic{events.TopicClaimRejected}, s.recorder.Topics())
		s.Equal(events.ClaimDecided{ClaimID: id, Issuer: "GBOB", Receiver: "GCAROL"}, s.recorder.Events()[0].Payload)
	})
}

func (s *ServiceSuite) TestRacingApprovalsResolveToOneSuccess() {
	id := s.addClaim(bob, alice, "skill")

	var wg sync.WaitGroup
	results := make([]error, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if i%2 == 0 {
				results[i] = s.service.ApproveClaim(s.as(bob), bob, id)
			} else {
				results[i] = s.service.RejectClaim(s.as(bob), bob, id)
			}
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
			continue
		}
		s.True(dErrors.HasCode(err, dErrors.CodeClaimAlreadyApproved) || dErrors.HasCode(err, dErrors.CodeClaimAlreadyRejected), err)
	}
	s.Equal(1, successes)
}

func (s *ServiceSuite) TestReputationScore() {
	s.Run("unknown address scores zero", func() {
		score, err := s.service.GetReputationScore(s.anon(), alice)
		s.NoError(err)
		s.Zero(score)
	})

	s.register(alice)

	s.Run("new profile without approvals scores zero", func() {
		s.addClaim(bob, alice, "job_completed")
		score, _ := s.service.GetReputationScore(s.anon(), alice)
		s.Zero(score)
	})

	s.Run("approved claims count by type", func() {
		job := s.addClaim(bob, alice, "job_completed")
		s.Require().NoError(s.service.ApproveClaim(s.as(bob), bob, job))
		score, _ := s.service.GetReputationScore(s.anon(), alice)
		s.Equal(uint32(10), score)

		other := s.addClaim(carol, alice, "code_review")
		s.Require().NoError(s.service.ApproveClaim(s.as(carol), carol, other))
		rejected := s.addClaim(carol, alice, "job_completed")
		s.Require().NoError(s.service.RejectClaim(s.as(carol), carol, rejected))

		score, _ = s.service.GetReputationScore(s.anon(), alice)
		s.Equal(uint32(15), score)
	})

	s.Run("tenure adds a point per full week", func() {
		s.now = s.now.Add(15 * 24 * time.Hour)
		score, _ := s.service.GetReputationScore(s.anon(), alice)
		s.Equal(uint32(17), score)
	})
}

func (s *ServiceSuite) TestScenario() {
	_, err := s.service.RegisterProfile(s.as(alice), alice, fields("ipfs://x"))
	s.Require().NoError(err)
	profile, _ := s.service.GetProfile(s.anon(), alice)
	s.Equal("ipfs://x", profile.MetadataURI)
	s.Nil(profile.DID)

	id, err := s.service.AddClaim(s.as(bob), bob, alice, "job_completed", domain.HashProof([]byte("delivery")))
	s.Require().NoError(err)
	s.Equal(uint64(0), id)
	s.Require().NoError(s.service.ApproveClaim(s.as(bob), bob, id))

	score, err := s.service.GetReputationScore(s.anon(), alice)
	s.Require().NoError(err)
	s.GreaterOrEqual(score, uint32(10))
	s.Equal([]events.Topic{events.TopicProfileRegistered, events.TopicClaimAdded, events.TopicClaimApproved}, s.recorder.Topics())
}

func (s *ServiceSuite) TestLapsedClaimsAreSkipped() {
	id0 := s.addClaim(bob, alice, "skill")

	s.now = s.now.Add(200 * 24 * time.Hour)
	id1 := s.addClaim(bob, alice, "skill")

	// The index was rewritten by the second claim; claim 0's own record was not.
	s.now = s.now.Add(200 * 24 * time.Hour)
	received, err := s.service.GetUserClaims(s.anon(), alice)
	s.Require().NoError(err)
	s.Equal([]uint64{id1}, claimIDs(received))

	missing, err := s.service.GetClaim(s.anon(), id0)
	s.NoError(err)
	s.Nil(missing)
}

func (s *ServiceSuite) TestGettersDoNotAuthenticateOrMutate() {
	s.register(alice)
	before := s.recorder.Events()

	ctx := s.anon()
	_, _ = s.service.GetProfile(ctx, alice)
	_, _ = s.service.GetDID(ctx, alice)
	_, _ = s.service.GetClaim(ctx, 0)
	_, _ = s.service.GetUserClaims(ctx, alice)
	_, _ = s.service.GetIssuerClaims(ctx, alice)
	_, _ = s.service.GetTotalClaims(ctx)
	_, _ = s.service.GetReputationScore(ctx, alice)

	s.Equal(before, s.recorder.Events())
	exp, ok := s.backend.ExpiresAt(store.ProfileKey(alice).String())
	s.True(ok)
	s.Equal(s.now.Add(store.DefaultEntryTTL), exp)
}

func claimIDs(claims []*models.Claim) []uint64 {
	ids := make([]uint64, 0, len(claims))
	for _, c := range claims {
		ids = append(ids, c.ID)
	}
	return ids
}

// Notification behavior is pinned with a mock publisher.
func TestNotifications(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	ctxAs := func(addr domain.Address) context.Context {
		return requestcontext.WithCaller(requestcontext.WithTime(context.Background(), now), addr)
	}

	testutil.Given(t, "a publisher that fails", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		publisher := mocks.NewMockPublisher(ctrl)
		svc := New(store.NewAdapter(store.NewMemoryBackend()), WithPublisher(publisher))

		publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(errors.New("broker down"))

		testutil.When(t, "a profile is registered", func(t *testing.T) {
			_, err := svc.RegisterProfile(ctxAs(alice), alice, fields("ipfs://x"))

			testutil.Then(t, "the mutation still succeeds", func(t *testing.T) {
				if err != nil {
					t.Fatalf("expected success, got %v", err)
				}
				profile, _ := svc.GetProfile(ctxAs(alice), alice)
				if profile == nil {
					t.Fatal("profile should be stored")
				}
			})
		})
	})

	testutil.Given(t, "a failed operation", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		publisher := mocks.NewMockPublisher(ctrl)
		svc := New(store.NewAdapter(store.NewMemoryBackend()), WithPublisher(publisher))

		publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

		testutil.Then(t, "nothing is published", func(t *testing.T) {
			if err := svc.LinkDID(ctxAs(alice), alice, "did:example:alice"); !dErrors.HasCode(err, dErrors.CodeProfileNotFound) {
				t.Fatalf("expected profile_not_found, got %v", err)
			}
		})
	})

	testutil.Given(t, "a claim is added", func(t *testing.T) {
		ctrl := gomock.NewController(t)
		publisher := mocks.NewMockPublisher(ctrl)
		svc := New(store.NewAdapter(store.NewMemoryBackend()), WithPublisher(publisher))

		publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, e events.Event) error {
			if e.Topic != events.TopicClaimAdded || e.AggregateID != "claim:0" || !e.OccurredAt.Equal(now) {
				t.Errorf("unexpected event %+v", e)
			}
			// The commit is visible to the publisher.
			claim, err := svc.GetClaim(ctx, 0)
			if err != nil || claim == nil {
				t.Errorf("claim should be committed before publish: %v", err)
			}
			return nil
		})

		_, err := svc.AddClaim(ctxAs(bob), bob, alice, "skill", domain.Digest{})
		if err != nil {
			t.Fatalf("add claim: %v", err)
		}
	})
}

type gatedPublisher struct {
	release chan struct{}
	rec     *events.Recorder
}

func (g *gatedPublisher) Publish(ctx context.Context, e events.Event) error {
	<-g.release
	return g.rec.Publish(ctx, e)
}

// A stalled broker must not serialize mutations behind the writer lock.
func TestSlowDeliveryDoesNotBlockMutations(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	broker := &gatedPublisher{release: make(chan struct{}), rec: events.NewRecorder()}
	queue := events.NewQueue(broker)
	queue.Start()
	svc := New(store.NewAdapter(store.NewMemoryBackend()), WithPublisher(queue))

	owners := []domain.Address{alice, bob, carol, "GDAVE"}
	done := make(chan error, len(owners))
	for _, owner := range owners {
		go func(owner domain.Address) {
			ctx := requestcontext.WithCaller(requestcontext.WithTime(context.Background(), now), owner)
			_, err := svc.RegisterProfile(ctx, owner, fields("ipfs://"+owner.String()))
			done <- err
		}(owner)
	}
	for range owners {
		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("register: %v", err)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("registration waited on notification delivery")
		}
	}
	if n := len(broker.rec.Events()); n != 0 {
		t.Fatalf("nothing should be delivered while the broker is stalled, got %d", n)
	}

	close(broker.release)
	if err := queue.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if n := len(broker.rec.Events()); n != len(owners) {
		t.Fatalf("expected %d deliveries, got %d", len(owners), n)
	}
}

// Storage failures surface as internal errors and leave nothing half-written.
func TestStorageFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	auth := mocks.NewMockAuthenticator(ctrl)
	svc := New(st, WithAuthenticator(auth))
	ctx := context.Background()

	st.EXPECT().Profile(gomock.Any(), alice).Return(nil, errors.New("connection reset"))
	_, err := svc.GetProfile(ctx, alice)
	if !dErrors.HasCode(err, dErrors.CodeInternal) {
		t.Fatalf("expected internal error, got %v", err)
	}

	auth.EXPECT().RequireAuth(gomock.Any(), bob).Return(nil)
	st.EXPECT().RunInTx(gomock.Any(), gomock.Any()).Return(dErrors.New(dErrors.CodeTimeout, "transaction aborted"))
	_, err = svc.AddClaim(ctx, bob, alice, "skill", domain.Digest{})
	if !dErrors.HasCode(err, dErrors.CodeTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
}
