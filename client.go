package dregistry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/oceanhq/dregistry/auth"
	"github.com/oceanhq/dregistry/internal/blobsink"
	"github.com/oceanhq/dregistry/internal/driver"
	"github.com/oceanhq/dregistry/internal/errs"
	"github.com/oceanhq/dregistry/internal/fetch"
	"github.com/oceanhq/dregistry/internal/manifest"
)

const (
	defaultManifestTimeout = 10 * time.Second
	defaultBlobTimeout     = 10 * time.Second
	defaultBlobMaxSize     = 4096
	defaultTag             = "latest"
)

// ErrClosed is returned by Client methods called after Close.
var ErrClosed = errors.New("dregistry: client closed")

// Client is the public entry point: get_manifest and get_blob. It owns
// an actor goroutine that serializes access to the Token Manager shared
// by every call on this client, per the single-writer discipline
// described in the client's concurrency model. Multiple Clients share
// nothing and may run fully in parallel.
type Client struct {
	registryURL fetch.URL
	authURL     fetch.URL
	creds       *Credentials
	logger      *slog.Logger
	httpClient  *http.Client
	tm          TokenManager

	driver *driver.Driver

	calls  chan actorCall
	closed chan struct{}
	wg     sync.WaitGroup
}

type actorCall struct {
	run    func(ctx context.Context) (any, error)
	ctx    context.Context
	result chan actorResult
}

type actorResult struct {
	val any
	err error
}

// New creates a Client for a single registry endpoint. registryURL and
// authURL must be of the form "https://host[:port][/path]".
func New(registryURL, authURL string, opts ...Option) (*Client, error) {
	regURL, err := fetch.ParseURL(registryURL)
	if err != nil {
		return nil, fmt.Errorf("registry URL: %w", err)
	}
	authParsed, err := fetch.ParseURL(authURL)
	if err != nil {
		return nil, fmt.Errorf("auth URL: %w", err)
	}

	c := &Client{
		registryURL: regURL,
		authURL:     authParsed,
		calls:       make(chan actorCall),
		closed:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.tm == nil {
		c.tm = auth.NewHTTPManager(toNetURL(c.authURL), c.httpClient, c.logger)
	}
	fetcher := fetch.New(httpDoer(c.httpClient))
	c.driver = driver.New(fetcher, c.tm, c.creds, c.logger)

	c.wg.Add(1)
	go c.run()

	return c, nil
}

func (c *Client) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return c.logger
}

// Close cancels any outstanding operations and waits for the client's
// actor to drain. It is safe to call exactly once.
func (c *Client) Close() error {
	close(c.closed)
	c.wg.Wait()
	return nil
}

func (c *Client) run() {
	defer c.wg.Done()
	for {
		select {
		case call := <-c.calls:
			ctx, cancel := context.WithCancel(call.ctx)
			go func() {
				select {
				case <-c.closed:
					cancel()
				case <-ctx.Done():
				}
			}()
			val, err := call.run(ctx)
			cancel()
			call.result <- actorResult{val: val, err: err}
		case <-c.closed:
			return
		}
	}
}

// dispatch serializes fn through the client's actor so that concurrent
// calls on this Client never race on Token Manager access. fn runs to
// completion before the actor picks up the next call, so this in
// practice serializes each call's whole HTTP round trip on one
// Client, not just its Token Manager access. That's a stricter bound
// than strictly necessary, but simple and correct; independent
// Clients still run fully in parallel.
func (c *Client) dispatch(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	resultCh := make(chan actorResult, 1)
	select {
	case c.calls <- actorCall{run: fn, ctx: ctx, result: resultCh}:
	case <-c.closed:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-resultCh:
		return res.val, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// GetManifest retrieves and decodes the manifest for path:tag.
//
// tag defaults to "latest" when empty, and timeout defaults to 10s when
// zero. path and tag must not contain spaces.
func (c *Client) GetManifest(ctx context.Context, repoPath, tag string, timeout time.Duration) (*Manifest, error) {
	if err := blobsink.ValidatePath(repoPath); err != nil {
		return nil, err
	}
	if tag == "" {
		tag = defaultTag
	}
	if err := blobsink.ValidatePath(tag); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrInvalidTag, err)
	}
	if timeout <= 0 {
		timeout = defaultManifestTimeout
	}

	u := c.registryURL
	u.Path = "/v2/" + repoPath + "/manifests/" + tag
	u.Query = ""

	val, err := c.dispatch(ctx, func(ctx context.Context) (any, error) {
		resp, err := c.driver.Drive(ctx, u, nil, timeout, true, "")
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		body, err := readAll(resp.Body)
		if err != nil {
			return nil, err
		}
		return manifest.Decode(body, resp.Header)
	})
	if err != nil {
		return nil, err
	}
	return val.(*Manifest), nil
}

// GetBlob downloads the blob named by repoPath and digest to filePath,
// verifying its digest when digest is non-empty and rejecting a
// download that exceeds maxSize while it streams.
//
// timeout defaults to 10s when zero; maxSize defaults to 4096 bytes
// when zero (deliberately small, so callers downloading real image
// layers are expected to override it).
func (c *Client) GetBlob(ctx context.Context, repoPath, digest, filePath string, timeout time.Duration, maxSize int64) (int64, error) {
	if err := blobsink.ValidatePath(repoPath); err != nil {
		return 0, err
	}
	if timeout <= 0 {
		timeout = defaultBlobTimeout
	}
	if maxSize == 0 {
		maxSize = defaultBlobMaxSize
	}

	u := c.registryURL
	u.Path = "/v2/" + repoPath + "/blobs/" + digest
	u.Query = ""

	val, err := c.dispatch(ctx, func(ctx context.Context) (any, error) {
		resp, err := c.driver.Drive(ctx, u, nil, timeout, true, "")
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()

		return blobsink.Write(resp.Body, filePath, digest, maxSize)
	})
	if err != nil {
		return 0, err
	}
	return val.(int64), nil
}
