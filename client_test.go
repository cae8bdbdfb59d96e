package dregistry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oceanhq/dregistry/auth"
)

func newTestClient(t *testing.T, srv *httptest.Server, opts ...Option) *Client {
	t.Helper()
	rc := &http.Client{Transport: &rewriteTransport{target: srv.Listener.Addr().String()}}
	allOpts := append([]Option{WithHTTPClient(rc)}, opts...)
	c, err := New("https://registry.example/", "https://registry.example/", allOpts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// rewriteTransport is an http.RoundTripper (rather than rewriteClient's
// Doer) so the same mechanism works for both the registry client and
// the Token Manager's own *http.Client.
type rewriteTransport struct {
	target string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	req.URL.Scheme = "http"
	req.URL.Host = t.target
	req.Host = t.target
	return http.DefaultTransport.RoundTrip(req)
}

// Anonymous manifest fetch.
func TestClient_GetManifest_Anonymous(t *testing.T) {
	t.Parallel()

	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		assert.Equal(t, "/v2/library/alpine/manifests/latest", r.URL.Path)
		w.Header().Set("Docker-Content-Digest", "sha256:abc")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"name":"library/alpine","fsLayers":[{"blobSum":"sha256:layer1"}],"history":[{"v1Compatibility":"{\"id\":\"id1\"}"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	m, err := c.GetManifest(context.Background(), "library/alpine", "", 0)
	require.NoError(t, err)
	assert.Equal(t, "library/alpine", m.Name)
	assert.Equal(t, "sha256:abc", m.Digest)
	require.Len(t, m.Layers, 1)
	assert.Equal(t, "sha256:layer1", m.Layers[0].BlobSum)
	assert.Equal(t, "id1", m.Layers[0].LayerID)
	assert.EqualValues(t, 1, requests.Load())
}

// Bearer token challenge/response dance.
func TestClient_GetManifest_BearerChallenge(t *testing.T) {
	t.Parallel()

	var registryRequests atomic.Int64
	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := registryRequests.Add(1)
		if n == 1 {
			w.Header().Set("WWW-Authenticate", `Bearer realm="https://auth.example/token",service="registry.example",scope="repository:library/alpine:pull"`)
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		assert.Equal(t, "Bearer TOK", r.Header.Get("Authorization"))
		w.Header().Set("Docker-Content-Digest", "sha256:abc")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"name":"library/alpine","fsLayers":[],"history":[]}`))
	}))
	defer registry.Close()

	var authRequests atomic.Int64
	authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authRequests.Add(1)
		assert.Equal(t, "registry.example", r.URL.Query().Get("service"))
		assert.Equal(t, "repository:library/alpine:pull", r.URL.Query().Get("scope"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"token":"TOK","expires_in":300}`))
	}))
	defer authSrv.Close()

	rc := &http.Client{Transport: &multiHostTransport{routes: map[string]string{
		"registry.example": registry.Listener.Addr().String(),
		"auth.example":     authSrv.Listener.Addr().String(),
	}}}

	c, err := New("https://registry.example/", "https://auth.example/", WithHTTPClient(rc))
	require.NoError(t, err)
	defer c.Close()

	m, err := c.GetManifest(context.Background(), "library/alpine", "latest", 0)
	require.NoError(t, err)
	assert.Equal(t, "library/alpine", m.Name)
	assert.EqualValues(t, 2, registryRequests.Load())
	assert.EqualValues(t, 1, authRequests.Load())
}

type multiHostTransport struct {
	routes map[string]string
}

func (t *multiHostTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	target, ok := t.routes[req.URL.Hostname()]
	if !ok {
		return nil, errors.New("no route for host " + req.URL.Hostname())
	}
	req = req.Clone(req.Context())
	req.URL.Scheme = "http"
	req.URL.Host = target
	req.Host = target
	return http.DefaultTransport.RoundTrip(req)
}

// 307 redirect on blob download.
func TestClient_GetBlob_Redirect(t *testing.T) {
	t.Parallel()

	content := "BLOBDATA"
	var cdnRequests atomic.Int64
	cdn := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cdnRequests.Add(1)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(content))
	}))
	defer cdn.Close()

	var registryRequests atomic.Int64
	registry := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		registryRequests.Add(1)
		w.Header().Set("Location", "https://cdn.example/layer.tar.gz")
		w.WriteHeader(http.StatusTemporaryRedirect)
	}))
	defer registry.Close()

	rc := &http.Client{Transport: &multiHostTransport{routes: map[string]string{
		"registry.example": registry.Listener.Addr().String(),
		"cdn.example":      cdn.Listener.Addr().String(),
	}}}

	c, err := New("https://registry.example/", "https://registry.example/", WithHTTPClient(rc))
	require.NoError(t, err)
	defer c.Close()

	dir := t.TempDir()
	target := filepath.Join(dir, "layer.tar.gz")

	digest := "" // skip verification; exercise the redirect path in isolation
	n, err := c.GetBlob(context.Background(), "library/alpine", digest, target, 0, 0)
	require.NoError(t, err)
	assert.EqualValues(t, len(content), n)

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, content, string(data))

	assert.EqualValues(t, 1, registryRequests.Load())
	assert.EqualValues(t, 1, cdnRequests.Load())
}

// 400 response carries structured errors.
func TestClient_GetManifest_BadRequest(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"errors":[{"message":"manifest unknown"}]}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	_, err := c.GetManifest(context.Background(), "library/alpine", "latest", 0)
	require.Error(t, err)

	var bad *BadRequestError
	require.True(t, errors.As(err, &bad))
	assert.Equal(t, []string{"manifest unknown"}, bad.Messages)
}

// repeated identical status triggers loop detection.
func TestClient_GetManifest_LoopDetected(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("WWW-Authenticate", `Bearer realm="https://registry.example/token",service="registry.example",scope="repository:library/alpine:pull"`)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	tm := &alwaysIssuesToken{}
	c := newTestClient(t, srv, WithTokenManager(tm))

	_, err := c.GetManifest(context.Background(), "library/alpine", "latest", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrLoopDetected))
}

type alwaysIssuesToken struct{}

func (*alwaysIssuesToken) GetToken(context.Context, string, string, *Credentials) (Token, error) {
	return Token{Raw: "TOK"}, nil
}

// A path or tag containing a space is rejected before any request
// is sent.
func TestClient_GetManifest_SpaceInPath(t *testing.T) {
	t.Parallel()

	var requests atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	}))
	defer srv.Close()

	c := newTestClient(t, srv)

	_, err := c.GetManifest(context.Background(), "library/al pine", "latest", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidPath))
	assert.EqualValues(t, 0, requests.Load())

	_, err = c.GetManifest(context.Background(), "library/alpine", "lat est", 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTag))
	assert.EqualValues(t, 0, requests.Load())
}

func TestClient_GetBlob_DigestVerified(t *testing.T) {
	t.Parallel()

	content := "LAYERBYTES"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(content))
	}))
	defer srv.Close()

	c := newTestClient(t, srv)
	dir := t.TempDir()
	target := filepath.Join(dir, "blob")

	const wrongDigest = "sha256:deadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeefdeadbeef"
	_, err := c.GetBlob(context.Background(), "library/alpine", wrongDigest, target, 0, 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDigestMismatch))
}

func TestClient_Close_RejectsSubsequentCalls(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	rc := &http.Client{Transport: &rewriteTransport{target: srv.Listener.Addr().String()}}
	c, err := New("https://registry.example/", "https://registry.example/", WithHTTPClient(rc))
	require.NoError(t, err)
	require.NoError(t, c.Close())

	_, err = c.GetManifest(context.Background(), "library/alpine", "latest", 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestClient_GetManifest_ContextCancelled(t *testing.T) {
	t.Parallel()

	block := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-block
	}))
	defer func() {
		close(block)
		srv.Close()
	}()

	c := newTestClient(t, srv)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := c.GetManifest(ctx, "library/alpine", "latest", 5*time.Second)
	require.Error(t, err)
}

var _ auth.Manager = (*alwaysIssuesToken)(nil)
