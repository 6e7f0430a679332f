package testutil

import (
	"net/http"

	"attestry/pkg/domain"
	"attestry/pkg/requestcontext"
)

// WithCaller marks the request as authenticated by addr, which is what
// the auth middleware does after validating a bearer token.
func WithCaller(req *http.Request, addr string) *http.Request {
	ctx := requestcontext.WithCaller(req.Context(), domain.Address(addr))
	return req.WithContext(ctx)
}
