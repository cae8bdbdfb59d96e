// Package fetch performs a single HTTP GET against a registry endpoint
// and hands back the response with its body unread, applying a deadline
// to the whole request including the caller's later body read.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/oceanhq/dregistry/internal/errs"
)

// DefaultPort is the SSL port assumed when a URL carries none.
const DefaultPort = 443

// URL is a structured registry URL: scheme, host, port, path and an
// optional query string. All registry URLs in this client use the
// https scheme.
type URL struct {
	Scheme string
	Host   string
	Port   uint16
	Path   string
	Query  string
}

// String renders the URL in its wire form.
func (u URL) String() string {
	var b strings.Builder
	b.WriteString(u.Scheme)
	b.WriteString("://")
	b.WriteString(u.Host)
	if u.Port != 0 && !(u.Scheme == "https" && u.Port == DefaultPort) {
		b.WriteString(":")
		b.WriteString(strconv.Itoa(int(u.Port)))
	}
	b.WriteString(u.Path)
	if u.Query != "" {
		b.WriteString("?")
		b.WriteString(u.Query)
	}
	return b.String()
}

const httpsPrefix = "https://"

// ParseURL parses an "https://host[:port][/path]" string into a URL.
// It is the grammar shared by the registry/auth endpoint configuration
// on the client facade and by the redirect resolver, which parses the
// same shape out of a Location header.
func ParseURL(raw string) (URL, error) {
	if !strings.HasPrefix(raw, httpsPrefix) {
		return URL{}, fmt.Errorf("%w: %q is not an https URL", errs.ErrInvalidRedirect, raw)
	}
	rest := raw[len(httpsPrefix):]

	authority := rest
	path := "/"
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		authority = rest[:idx]
		path = rest[idx:]
	}
	if authority == "" {
		return URL{}, fmt.Errorf("%w: %q has no host", errs.ErrInvalidRedirect, raw)
	}

	host := authority
	port := uint16(DefaultPort)
	if idx := strings.IndexByte(authority, ':'); idx >= 0 {
		host = authority[:idx]
		parsed, err := strconv.ParseUint(authority[idx+1:], 10, 16)
		if err != nil {
			return URL{}, fmt.Errorf("%w: invalid port in %q: %v", errs.ErrInvalidRedirect, raw, err)
		}
		port = uint16(parsed)
	}

	return URL{Scheme: "https", Host: host, Port: port, Path: path}, nil
}

// Doer is satisfied by *http.Client. It is the narrow interface the
// fetcher needs from the underlying HTTPS transport, and the seam tests
// use to substitute a fake transport.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Fetcher issues one-shot GETs against registry URLs.
type Fetcher struct {
	client Doer
}

// New creates a Fetcher backed by the given HTTP client. If client is
// nil, http.DefaultClient is used. A *http.Client is copied with
// redirect following turned off, so that 3xx responses reach the
// caller instead of being followed transparently; any other Doer must
// itself return 3xx responses as-is.
func New(client Doer) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if hc, ok := client.(*http.Client); ok {
		noFollow := *hc
		noFollow.CheckRedirect = func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		}
		client = &noFollow
	}
	return &Fetcher{client: client}
}

// Get issues a GET to u with the given headers, applying timeout to the
// whole round trip. The caller is responsible for closing the returned
// response's Body, including when reading it as a stream for a blob
// download (see the blobsink package).
//
// On context deadline expiry this returns an error wrapping
// errs.ErrTimeout; on any other transport failure it wraps
// errs.ErrTransport.
func (f *Fetcher) Get(ctx context.Context, u URL, headers http.Header, timeout time.Duration) (*http.Response, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		cancel()
		return nil, nil, fmt.Errorf("build request: %w", err)
	}
	for key, values := range headers {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}

	resp, err := f.client.Do(req)
	if err != nil {
		cancel()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, nil, fmt.Errorf("get %s: %w", u, errs.ErrTimeout)
		}
		return nil, nil, fmt.Errorf("get %s: %w: %v", u, errs.ErrTransport, err)
	}

	// cancel is deferred to the caller: it must be invoked only once the
	// response body has been fully read or closed, since cancelling the
	// context earlier would abort an in-flight body read.
	return resp, cancel, nil
}
