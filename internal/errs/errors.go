// Package errs defines the sentinel and structured error values shared by
// every layer of the registry client. It has no dependencies on the rest
// of the module so that leaf packages (challenge, redirect, driver,
// manifest, blobsink) and the public facade can all depend on it without
// creating import cycles.
package errs

import (
	"errors"
	"fmt"
	"strings"
)

// Sentinel errors, one per error kind except an unexpected status,
// which is reported only as *UnexpectedStatusError. Callers should
// match on these with errors.Is rather than on the concrete structured
// types below.
var (
	ErrInvalidPath       = errors.New("dregistry: invalid path")
	ErrInvalidTag        = errors.New("dregistry: invalid tag")
	ErrTimeout           = errors.New("dregistry: timed out")
	ErrTokenTimeout      = errors.New("dregistry: token manager timed out")
	ErrTransport         = errors.New("dregistry: transport error")
	ErrInvalidChallenge  = errors.New("dregistry: invalid WWW-Authenticate challenge")
	ErrAuth              = errors.New("dregistry: authentication failed")
	ErrInvalidRedirect   = errors.New("dregistry: invalid redirect")
	ErrMalformed         = errors.New("dregistry: malformed error response")
	ErrBadRequest        = errors.New("dregistry: bad request")
	ErrMalformedManifest = errors.New("dregistry: malformed manifest")
	ErrLoopDetected      = errors.New("dregistry: loop detected")
	ErrNoRetryAllowed    = errors.New("dregistry: no retry allowed")
	ErrIO                = errors.New("dregistry: io error")
	ErrDigestMismatch    = errors.New("dregistry: digest mismatch")
	ErrBlobTooLarge      = errors.New("dregistry: blob too large")
)

// BadRequestError is returned for a 400 response whose body parsed
// successfully into one or more structured error messages. It unwraps
// to ErrBadRequest, distinct from ErrMalformed, so callers can tell a
// legitimate structured 400 apart from one whose body didn't parse.
type BadRequestError struct {
	Messages []string
}

func (e *BadRequestError) Error() string {
	return fmt.Sprintf("bad request: %s", strings.Join(e.Messages, ", "))
}

func (e *BadRequestError) Unwrap() error { return ErrBadRequest }

// UnexpectedStatusError is returned when the driver receives a status
// code it has no transition for.
type UnexpectedStatusError struct {
	Status int
}

func (e *UnexpectedStatusError) Error() string {
	return fmt.Sprintf("unexpected status %d", e.Status)
}

// MalformedManifestError carries the specific reason a manifest failed
// schema validation.
type MalformedManifestError struct {
	Context string
}

func (e *MalformedManifestError) Error() string {
	return fmt.Sprintf("malformed manifest: %s", e.Context)
}

func (e *MalformedManifestError) Unwrap() error { return ErrMalformedManifest }
