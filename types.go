package dregistry

import (
	"github.com/oceanhq/dregistry/auth"
	"github.com/oceanhq/dregistry/internal/fetch"
	"github.com/oceanhq/dregistry/internal/manifest"
)

// URL is a structured registry URL: scheme, host, port, path and an
// optional query string.
type URL = fetch.URL

// Credentials are opaque inputs forwarded verbatim to the Token
// Manager: either an opaque bearer token or a username/password pair.
type Credentials = auth.Credentials

// Token is an immutable bearer token returned by a TokenManager.
type Token = auth.Token

// TokenManager exchanges a (service, scope) pair, plus optional
// credentials, for a bearer token. The core treats it as an external
// collaborator: its own caching/refresh policy is its business, not
// the driver's.
type TokenManager = auth.Manager

// FileSystemLayerInfo describes one layer of a manifest.
type FileSystemLayerInfo = manifest.FileSystemLayerInfo

// Manifest is a decoded Docker Registry v1-style manifest.
type Manifest = manifest.Manifest
