// Package challenge parses the WWW-Authenticate header of a 401 response
// from a Docker registry into its Bearer attributes.
package challenge

import (
	"fmt"
	"strings"

	"github.com/oceanhq/dregistry/internal/errs"
)

// Attributes is the set of key/value pairs carried by a Bearer challenge,
// e.g. {"realm": "...", "service": "...", "scope": "..."}. Unknown keys
// are preserved but otherwise ignored by the driver.
type Attributes map[string]string

// ParseBearer parses the raw value of a WWW-Authenticate header.
//
// The value must be exactly two whitespace-separated tokens: the literal
// scheme "Bearer" followed by a comma-separated list of key="value"
// parameters. The tokenizer splits jointly on '=' and '"', so a value
// containing a comma inside its quotes will be misparsed; this is a
// known limitation carried over from the source this client was
// modeled on, not a bug to fix here.
func ParseBearer(value string) (Attributes, error) {
	fields := strings.Fields(value)
	if len(fields) != 2 {
		return nil, fmt.Errorf("%w: expected \"Bearer params\", got %q", errs.ErrInvalidChallenge, value)
	}
	if fields[0] != "Bearer" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", errs.ErrInvalidChallenge, fields[0])
	}

	attrs := make(Attributes)
	for _, param := range strings.Split(fields[1], ",") {
		parts := splitKeyValue(strings.TrimSpace(param))
		if len(parts) != 2 {
			return nil, fmt.Errorf("%w: malformed parameter %q", errs.ErrInvalidChallenge, param)
		}
		attrs[parts[0]] = parts[1]
	}
	return attrs, nil
}

// splitKeyValue splits a key="value" parameter on '=' and '"' jointly,
// stripping empty fields produced by the trailing quote.
func splitKeyValue(param string) []string {
	raw := strings.FieldsFunc(param, func(r rune) bool {
		return r == '=' || r == '"'
	})
	out := make([]string, 0, len(raw))
	for _, f := range raw {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
