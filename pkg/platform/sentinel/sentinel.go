package sentinel

import "errors"

// Sentinel errors for infrastructure facts. Backends and platform clients return
// these (optionally wrapped) so the registry service can translate them into domain errors.
//
// - ErrNotFound: key was never written or its liveness window lapsed
// - ErrInvalidState: stored value could not be decoded into the expected record
// - ErrUnavailable: backend or broker temporarily unavailable
//
// For validation errors (bad input, missing fields), use pkg/domain-errors directly.
var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrUnavailable  = errors.New("unavailable")
)
