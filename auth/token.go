// Package auth defines the Token Manager contract the driver relies on
// to exchange a Bearer challenge's service/scope for a usable token, and
// a concrete HTTP-based implementation of it.
package auth

import (
	"context"
	"time"
)

// Token is an immutable bearer token. Only Raw is consulted by the
// driver, which inserts it as "Authorization: Bearer <raw>".
type Token struct {
	Raw        string
	AcquiredAt time.Time
	ExpiresIn  time.Duration
	Scope      string
}

// Credentials are opaque inputs forwarded verbatim to the Token
// Manager. Exactly one of Token or Username/Password is expected to be
// set; the core never inspects either field itself.
type Credentials struct {
	Token    string
	Username string
	Password string
}

// Manager exchanges a (service, scope) pair, plus optional credentials,
// for a bearer token. Implementations may themselves round-trip to a
// separate authorization endpoint and must be safe for concurrent use,
// since one Manager is shared by every call on a Client.
//
// The core applies its own timeout on top of this call via the context
// deadline; GetToken should respect ctx cancellation.
type Manager interface {
	GetToken(ctx context.Context, service, scope string, creds *Credentials) (Token, error)
}
