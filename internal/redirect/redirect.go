// Package redirect parses the Location header of a 307 response into a
// structured URL.
package redirect

import (
	"github.com/oceanhq/dregistry/internal/fetch"
)

// Parse parses the value of a Location header.
//
// Known limitations, preserved deliberately: scheme is assumed to be
// https, there is no userinfo or query string handling, and a trailing
// slash is not required. Parsing the same Location value twice always
// yields an identical URL, since the grammar is a pure function of the
// input string.
func Parse(location string) (fetch.URL, error) {
	return fetch.ParseURL(location)
}
