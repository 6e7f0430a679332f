package domainerrors

import "errors"

// Code represents a domain error category independent of transport layer.
// These codes describe what went wrong in registry terms, not HTTP terms.
type Code string

const (
	CodeNotFound     Code = "not_found"
	CodeBadRequest   Code = "bad_request"
	CodeInvalidInput Code = "invalid_input"
	CodeValidation   Code = "validation_failed"
	CodeInternal     Code = "internal_error"
	CodeConflict     Code = "conflict"
	CodeUnauthorized Code = "unauthorized"
	CodeForbidden    Code = "forbidden"
	CodeTimeout      Code = "timeout"

	// Registry failure kinds. Each maps to a stable numeric contract code.
	CodeProfileAlreadyExists Code = "profile_already_exists"
	CodeProfileNotFound      Code = "profile_not_found"
	CodeClaimNotFound        Code = "claim_not_found"
	CodeUnauthorizedApproval Code = "unauthorized_approval"
	CodeClaimAlreadyApproved Code = "claim_already_approved"
	CodeInvalidDID           Code = "invalid_did"
	CodeInvalidMetadataURI   Code = "invalid_metadata_uri"
	CodeClaimAlreadyRejected Code = "claim_already_rejected"
)

// contractCodes are the numeric codes clients of the registry depend on.
// They are part of the external contract and must never be renumbered.
var contractCodes = map[Code]uint32{
	CodeProfileAlreadyExists: 1,
	CodeProfileNotFound:      2,
	CodeClaimNotFound:        3,
	CodeUnauthorizedApproval: 4,
	CodeClaimAlreadyApproved: 5,
	CodeInvalidDID:           6,
	CodeInvalidMetadataURI:   7,
	CodeClaimAlreadyRejected: 8,
}

// ContractCode returns the stable numeric code for a registry failure kind.
// The second result is false for generic codes that have no numeric form.
func (c Code) ContractCode() (uint32, bool) {
	n, ok := contractCodes[c]
	return n, ok
}

// Error wraps domain or infrastructure failures with a stable code.
// It is transport-agnostic and can be used across service, store, and other layers.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return string(e.Code)
}

// Unwrap implements error unwrapping for error chains.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is enables errors.Is() to match errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New creates a new domain error with the given code and message.
func New(code Code, msg string) error {
	return &Error{Code: code, Message: msg}
}

// Wrap creates a new domain error wrapping an existing error.
// If the wrapped error is already a domain error, the original code is preserved.
func Wrap(err error, code Code, msg string) error {
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Code: existing.Code, Message: msg, Err: err}
	}
	return &Error{Code: code, Message: msg, Err: err}
}

// HasCode checks if an error is a domain error with the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf returns the code of the outermost domain error in err's chain,
// or CodeInternal when err carries none.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}
