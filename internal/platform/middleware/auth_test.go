package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"

	"attestry/pkg/domain"
	"attestry/pkg/requestcontext"
)

// MockTokenValidator is a testify mock for TokenValidator
type MockTokenValidator struct {
	mock.Mock
}

func (m *MockTokenValidator) ValidateToken(tokenString string) (*CallerClaims, error) {
	args := m.Called(tokenString)
	if claims := args.Get(0); claims != nil {
		return claims.(*CallerClaims), args.Error(1)
	}
	return nil, args.Error(1)
}

// captureHandler records whether it was reached and with which context.
type captureHandler struct {
	called  bool
	context context.Context
}

func (h *captureHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.called = true
	h.context = r.Context()
	w.WriteHeader(http.StatusOK)
}

type AuthMiddlewareTestSuite struct {
	suite.Suite
	validator   *MockTokenValidator
	nextHandler *captureHandler
	middleware  func(http.Handler) http.Handler
}

func TestAuthMiddlewareSuite(t *testing.T) {
	suite.Run(t, new(AuthMiddlewareTestSuite))
}

func (s *AuthMiddlewareTestSuite) SetupTest() {
	s.validator = new(MockTokenValidator)
	s.nextHandler = &captureHandler{}
	s.middleware = RequireAuth(s.validator, slog.Default())
}

func (s *AuthMiddlewareTestSuite) TearDownTest() {
	s.validator.AssertExpectations(s.T())
}

func (s *AuthMiddlewareTestSuite) makeRequest(authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/claims", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rr := httptest.NewRecorder()
	s.middleware(s.nextHandler).ServeHTTP(rr, req)
	return rr
}

func (s *AuthMiddlewareTestSuite) TestValidTokenSetsCaller() {
	s.validator.On("ValidateToken", "good-token").
		Return(&CallerClaims{Subject: "GALICE", JTI: "jti-1"}, nil).Once()

	rr := s.makeRequest("Bearer good-token")

	s.Equal(http.StatusOK, rr.Code)
	s.Require().True(s.nextHandler.called)
	s.Equal(domain.Address("GALICE"), requestcontext.Caller(s.nextHandler.context))
}

func (s *AuthMiddlewareTestSuite) TestMissingHeader() {
	rr := s.makeRequest("")

	s.Equal(http.StatusUnauthorized, rr.Code)
	s.False(s.nextHandler.called)
	s.Contains(rr.Body.String(), `"error":"unauthorized"`)
}

func (s *AuthMiddlewareTestSuite) TestWrongScheme() {
	rr := s.makeRequest("Basic dXNlcjpwYXNz")

	s.Equal(http.StatusUnauthorized, rr.Code)
	s.False(s.nextHandler.called)
}

func (s *AuthMiddlewareTestSuite) TestInvalidToken() {
	s.validator.On("ValidateToken", "expired").
		Return(nil, errors.New("token expired")).Once()

	rr := s.makeRequest("Bearer expired")

	s.Equal(http.StatusUnauthorized, rr.Code)
	s.False(s.nextHandler.called)
}

func (s *AuthMiddlewareTestSuite) TestMalformedSubject() {
	s.validator.On("ValidateToken", "blank-subject").
		Return(&CallerClaims{Subject: "  "}, nil).Once()

	rr := s.makeRequest("Bearer blank-subject")

	s.Equal(http.StatusUnauthorized, rr.Code)
	s.False(s.nextHandler.called)
}
