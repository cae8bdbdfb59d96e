package dregistry

import (
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/oceanhq/dregistry/internal/errs"
	"github.com/oceanhq/dregistry/internal/fetch"
)

// toNetURL converts the client's structured URL into a net/url.URL for
// handing to the Token Manager's HTTP implementation.
func toNetURL(u fetch.URL) url.URL {
	host := u.Host
	if u.Port != 0 && !(u.Scheme == "https" && u.Port == fetch.DefaultPort) {
		host = fmt.Sprintf("%s:%d", u.Host, u.Port)
	}
	return url.URL{
		Scheme:   u.Scheme,
		Host:     host,
		Path:     u.Path,
		RawQuery: u.Query,
	}
}

// httpDoer returns client if non-nil, else http.DefaultClient, as a
// fetch.Doer.
func httpDoer(client *http.Client) fetch.Doer {
	if client == nil {
		return http.DefaultClient
	}
	return client
}

func readAll(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", errs.ErrIO, err)
	}
	return data, nil
}
