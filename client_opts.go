package dregistry

import (
	"log/slog"
	"net/http"

	"github.com/oceanhq/dregistry/auth"
)

// Option configures a Client constructed by New.
type Option func(*Client)

// WithCredentials sets the credentials forwarded to the Token Manager
// whenever a 401 challenge must be satisfied.
func WithCredentials(creds Credentials) Option {
	return func(c *Client) {
		c.creds = &creds
	}
}

// WithLogger sets the logger used by the client, its driver, and its
// default token manager. The default is a discard logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets the HTTP client used for registry requests. The
// default is http.DefaultClient.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithTokenManager overrides the default HTTP-based Token Manager. Use
// this to supply a Token Manager with its own caching/refresh policy,
// or one backed by an out-of-band credential helper.
func WithTokenManager(tm TokenManager) Option {
	return func(c *Client) {
		c.tm = tm
	}
}

var _ TokenManager = (*auth.HTTPManager)(nil)
