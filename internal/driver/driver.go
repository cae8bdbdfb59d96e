// Package driver implements the request state machine shared by manifest
// and blob downloads: anonymous probe, 401 challenge/token/retry, 307
// redirect/retry, 400 structured error, and termination safeguards that
// bound the whole dance to at most three HTTP requests.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/oceanhq/dregistry/auth"
	"github.com/oceanhq/dregistry/internal/challenge"
	"github.com/oceanhq/dregistry/internal/errs"
	"github.com/oceanhq/dregistry/internal/fetch"
	"github.com/oceanhq/dregistry/internal/redirect"
)

const (
	statusUnauthorized = "401 Unauthorized"
	statusRedirect     = "307 Temporary Redirect"
)

// Driver orchestrates one logical request against a registry endpoint.
type Driver struct {
	fetcher *fetch.Fetcher
	tm      auth.Manager
	creds   *auth.Credentials
	logger  *slog.Logger
}

// New creates a Driver. tm may be nil if the caller never expects a 401
// challenge (e.g. a registry configured for anonymous pulls); a 401 in
// that case fails with errs.ErrAuth rather than panicking.
func New(fetcher *fetch.Fetcher, tm auth.Manager, creds *auth.Credentials, logger *slog.Logger) *Driver {
	return &Driver{fetcher: fetcher, tm: tm, creds: creds, logger: logger}
}

func (d *Driver) log() *slog.Logger {
	if d.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return d.logger
}

// Drive performs one attempt against u and follows the 401/307
// transitions described in the client's state machine, recursing at
// most twice before it must terminate. The returned response's Body is
// open and it is the caller's responsibility to close it (the 200 path
// hands the stream back untouched so manifest and blob callers can read
// it directly).
func (d *Driver) Drive(ctx context.Context, u fetch.URL, headers http.Header, timeout time.Duration, allowRetry bool, lastStatus string) (*http.Response, error) {
	resp, cancel, err := d.fetcher.Get(ctx, u, headers, timeout)
	if err != nil {
		return nil, err
	}

	status := resp.Status

	switch resp.StatusCode {
	case http.StatusOK:
		// The caller now owns resp.Body and must close it; cancel must
		// only run once that happens, so hand it off via a wrapped body.
		resp.Body = &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}
		return resp, nil

	case http.StatusBadRequest:
		defer cancel()
		defer drain(resp.Body)
		return nil, parseBadRequest(resp.Body)
	}

	defer cancel()
	defer drain(resp.Body)

	if lastStatus != "" && lastStatus == status {
		return nil, fmt.Errorf("%w: received %s twice", errs.ErrLoopDetected, status)
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		if !allowRetry {
			return nil, fmt.Errorf("%w: received %s", errs.ErrNoRetryAllowed, status)
		}
		return d.handleUnauthorized(ctx, u, headers, resp.Header, timeout)

	case http.StatusTemporaryRedirect:
		if !allowRetry {
			return nil, fmt.Errorf("%w: received %s", errs.ErrNoRetryAllowed, status)
		}
		return d.handleRedirect(ctx, headers, resp.Header, timeout)

	default:
		return nil, &errs.UnexpectedStatusError{Status: resp.StatusCode}
	}
}

func (d *Driver) handleUnauthorized(ctx context.Context, u fetch.URL, headers http.Header, respHeader http.Header, timeout time.Duration) (*http.Response, error) {
	challengeValue := respHeader.Get("WWW-Authenticate")
	if challengeValue == "" {
		return nil, fmt.Errorf("%w: 401 response missing WWW-Authenticate", errs.ErrAuth)
	}
	attrs, err := challenge.ParseBearer(challengeValue)
	if err != nil {
		return nil, err
	}
	service, scope := attrs["service"], attrs["scope"]
	if service == "" || scope == "" {
		return nil, fmt.Errorf("%w: challenge missing service or scope", errs.ErrAuth)
	}
	if d.tm == nil {
		return nil, fmt.Errorf("%w: no token manager configured", errs.ErrAuth)
	}

	d.log().Debug("requesting token", "service", service, "scope", scope)
	tokenCtx, tokenCancel := context.WithTimeout(ctx, timeout)
	tok, err := d.tm.GetToken(tokenCtx, service, scope, d.creds)
	tokenCancel()
	if err != nil {
		return nil, err
	}

	retryHeaders := headers.Clone()
	if retryHeaders == nil {
		retryHeaders = make(http.Header)
	}
	retryHeaders.Set("Authorization", "Bearer "+tok.Raw)

	return d.Drive(ctx, u, retryHeaders, timeout, true, statusUnauthorized)
}

func (d *Driver) handleRedirect(ctx context.Context, headers http.Header, respHeader http.Header, timeout time.Duration) (*http.Response, error) {
	location := respHeader.Get("Location")
	if location == "" {
		return nil, fmt.Errorf("%w: 307 response missing Location", errs.ErrInvalidRedirect)
	}
	target, err := redirect.Parse(location)
	if err != nil {
		return nil, err
	}

	d.log().Debug("following redirect", "location", location)
	return d.Drive(ctx, target, headers, timeout, false, statusRedirect)
}

func parseBadRequest(body io.Reader) error {
	var payload struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return fmt.Errorf("%w: read body: %v", errs.ErrMalformed, err)
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return fmt.Errorf("%w: decode body: %v", errs.ErrMalformed, err)
	}
	if len(payload.Errors) == 0 {
		return fmt.Errorf("%w: no errors field in 400 body", errs.ErrMalformed)
	}

	messages := make([]string, 0, len(payload.Errors))
	for _, e := range payload.Errors {
		messages = append(messages, e.Message)
	}
	return &errs.BadRequestError{Messages: messages}
}

func drain(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// cancelOnClose cancels the request's context when the body is closed,
// so the timeout's deadline stays armed for the duration of a streamed
// blob read.
type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}
