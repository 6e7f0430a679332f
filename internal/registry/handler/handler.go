package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"attestry/internal/registry/models"
	"attestry/pkg/domain"
	dErrors "attestry/pkg/domain-errors"
	"attestry/pkg/platform/httputil"
	"attestry/pkg/requestcontext"
)

// Service is the registry facade as seen by HTTP.
type Service interface {
	RegisterProfile(ctx context.Context, owner domain.Address, fields models.ProfileFields) (*models.Profile, error)
	UpdateProfileData(ctx context.Context, owner domain.Address, fields models.ProfileFields) (*models.Profile, error)
	LinkDID(ctx context.Context, owner domain.Address, did string) error
	AddClaim(ctx context.Context, issuer, receiver domain.Address, claimType string, proofHash domain.Digest) (uint64, error)
	ApproveClaim(ctx context.Context, issuer domain.Address, claimID uint64) error
	RejectClaim(ctx context.Context, issuer domain.Address, claimID uint64) error
	GetProfile(ctx context.Context, addr domain.Address) (*models.Profile, error)
	GetDID(ctx context.Context, addr domain.Address) (*string, error)
	GetClaim(ctx context.Context, id uint64) (*models.Claim, error)
	GetUserClaims(ctx context.Context, addr domain.Address) ([]*models.Claim, error)
	GetIssuerClaims(ctx context.Context, addr domain.Address) ([]*models.Claim, error)
	GetTotalClaims(ctx context.Context) (uint64, error)
	GetReputationScore(ctx context.Context, addr domain.Address) (uint32, error)
}

// Handler serves the registry API.
type Handler struct {
	service Service
	logger  *slog.Logger
}

func New(service Service, logger *slog.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// Register mounts the registry routes under /v1. Mutations sit behind requireAuth;
// reads are public.
func (h *Handler) Register(r chi.Router, requireAuth func(http.Handler) http.Handler) {
	r.Route("/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/profiles", h.HandleRegisterProfile)
			r.Put("/profiles/{address}", h.HandleUpdateProfile)
			r.Put("/profiles/{address}/did", h.HandleLinkDID)
			r.Post("/claims", h.HandleAddClaim)
			r.Post("/claims/{id}/approve", h.HandleApproveClaim)
			r.Post("/claims/{id}/reject", h.HandleRejectClaim)
		})

		r.Get("/profiles/{address}", h.HandleGetProfile)
		r.Get("/profiles/{address}/did", h.HandleGetDID)
		r.Get("/profiles/{address}/reputation", h.HandleGetReputation)
		r.Get("/profiles/{address}/claims/received", h.HandleGetReceivedClaims)
		r.Get("/profiles/{address}/claims/issued", h.HandleGetIssuedClaims)
		r.Get("/claims/total", h.HandleGetTotalClaims)
		r.Get("/claims/{id}", h.HandleGetClaim)
	})
}

func (h *Handler) HandleRegisterProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.RegisterProfileRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	fields, err := req.Fields()
	if err != nil {
		h.fail(ctx, w, err, "register profile")
		return
	}

	profile, err := h.service.RegisterProfile(ctx, domain.Address(req.Owner), fields)
	if err != nil {
		h.fail(ctx, w, err, "register profile")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, toProfileResponse(profile))
}

func (h *Handler) HandleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	owner, ok := h.addressParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.UpdateProfileRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	fields, err := req.Fields()
	if err != nil {
		h.fail(ctx, w, err, "update profile")
		return
	}

	profile, err := h.service.UpdateProfileData(ctx, owner, fields)
	if err != nil {
		h.fail(ctx, w, err, "update profile")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toProfileResponse(profile))
}

func (h *Handler) HandleLinkDID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	owner, ok := h.addressParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.LinkDIDRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := h.service.LinkDID(ctx, owner, req.DID); err != nil {
		h.fail(ctx, w, err, "link did")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DIDResponse{DID: &req.DID})
}

func (h *Handler) HandleAddClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[models.AddClaimRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	id, err := h.service.AddClaim(ctx, domain.Address(req.Issuer), domain.Address(req.Receiver), req.ClaimType, req.ProofHash)
	if err != nil {
		h.fail(ctx, w, err, "add claim")
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, AddClaimResponse{ClaimID: id})
}

func (h *Handler) HandleApproveClaim(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, "approve claim", h.service.ApproveClaim)
}

func (h *Handler) HandleRejectClaim(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, "reject claim", h.service.RejectClaim)
}

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request, op string, decide func(context.Context, domain.Address, uint64) error) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	id, ok := h.claimIDParam(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[models.DecideClaimRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := decide(ctx, domain.Address(req.Issuer), id); err != nil {
		h.fail(ctx, w, err, op)
		return
	}
	claim, err := h.service.GetClaim(ctx, id)
	if err != nil || claim == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toClaimResponse(claim))
}

func (h *Handler) HandleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, ok := h.addressParam(w, r)
	if !ok {
		return
	}
	profile, err := h.service.GetProfile(ctx, addr)
	if err != nil {
		h.fail(ctx, w, err, "get profile")
		return
	}
	if profile == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeProfileNotFound, "profile not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toProfileResponse(profile))
}

func (h *Handler) HandleGetDID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, ok := h.addressParam(w, r)
	if !ok {
		return
	}
	did, err := h.service.GetDID(ctx, addr)
	if err != nil {
		h.fail(ctx, w, err, "get did")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DIDResponse{DID: did})
}

func (h *Handler) HandleGetReputation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	addr, ok := h.addressParam(w, r)
	if !ok {
		return
	}
	score, err := h.service.GetReputationScore(ctx, addr)
	if err != nil {
		h.fail(ctx, w, err, "get reputation")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, ReputationResponse{Address: addr.String(), Score: score})
}

func (h *Handler) HandleGetReceivedClaims(w http.ResponseWriter, r *http.Request) {
	h.handleClaimList(w, r, "get received claims", h.service.GetUserClaims)
}

func (h *Handler) HandleGetIssuedClaims(w http.ResponseWriter, r *http.Request) {
	h.handleClaimList(w, r, "get issued claims", h.service.GetIssuerClaims)
}

func (h *Handler) handleClaimList(w http.ResponseWriter, r *http.Request, op string, list func(context.Context, domain.Address) ([]*models.Claim, error)) {
	ctx := r.Context()
	addr, ok := h.addressParam(w, r)
	if !ok {
		return
	}
	claims, err := list(ctx, addr)
	if err != nil {
		h.fail(ctx, w, err, op)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toClaimListResponse(claims))
}

func (h *Handler) HandleGetClaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id, ok := h.claimIDParam(w, r)
	if !ok {
		return
	}
	claim, err := h.service.GetClaim(ctx, id)
	if err != nil {
		h.fail(ctx, w, err, "get claim")
		return
	}
	if claim == nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeClaimNotFound, "claim not found"))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toClaimResponse(claim))
}

func (h *Handler) HandleGetTotalClaims(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	total, err := h.service.GetTotalClaims(ctx)
	if err != nil {
		h.fail(ctx, w, err, "get total claims")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, TotalClaimsResponse{Total: total})
}

func (h *Handler) addressParam(w http.ResponseWriter, r *http.Request) (domain.Address, bool) {
	addr, err := domain.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		httputil.WriteError(w, err)
		return "", false
	}
	return addr, true
}

func (h *Handler) claimIDParam(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "claim id must be a non-negative integer"))
		return 0, false
	}
	return id, true
}

// fail logs at a level matching the error class and writes the mapped response.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, err error, op string) {
	requestID := requestcontext.RequestID(ctx)
	if dErrors.CodeOf(err) == dErrors.CodeInternal {
		h.logger.ErrorContext(ctx, op+" failed",
			"request_id", requestID,
			"error", err,
		)
	} else {
		h.logger.WarnContext(ctx, op+" rejected",
			"request_id", requestID,
			"code", string(dErrors.CodeOf(err)),
		)
	}
	httputil.WriteError(w, err)
}
