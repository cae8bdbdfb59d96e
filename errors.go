package dregistry

import "github.com/oceanhq/dregistry/internal/errs"

// Sentinel errors returned by Client methods. Match against these with
// errors.Is; the richer structured errors below carry additional detail
// and unwrap to one of these where it makes sense.
var (
	ErrInvalidPath       = errs.ErrInvalidPath
	ErrInvalidTag        = errs.ErrInvalidTag
	ErrTimeout           = errs.ErrTimeout
	ErrTokenTimeout      = errs.ErrTokenTimeout
	ErrTransport         = errs.ErrTransport
	ErrInvalidChallenge  = errs.ErrInvalidChallenge
	ErrAuth              = errs.ErrAuth
	ErrInvalidRedirect   = errs.ErrInvalidRedirect
	ErrMalformed         = errs.ErrMalformed
	ErrBadRequest        = errs.ErrBadRequest
	ErrMalformedManifest = errs.ErrMalformedManifest
	ErrLoopDetected      = errs.ErrLoopDetected
	ErrNoRetryAllowed    = errs.ErrNoRetryAllowed
	ErrIO                = errs.ErrIO
	ErrDigestMismatch    = errs.ErrDigestMismatch
	ErrBlobTooLarge      = errs.ErrBlobTooLarge
)

// BadRequestError is returned for a 400 response whose body parsed
// successfully into one or more structured error messages.
type BadRequestError = errs.BadRequestError

// UnexpectedStatusError is returned when the driver receives a status
// code outside its known transitions.
type UnexpectedStatusError = errs.UnexpectedStatusError

// MalformedManifestError carries the specific reason a manifest failed
// schema validation.
type MalformedManifestError = errs.MalformedManifestError
