package graph

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNoToken is returned when the credential source cannot produce a
// bearer token. It is fatal to the operation in progress, not to the
// process.
var ErrNoToken = errors.New("graph: no token available")

// TokenProvider supplies bearer tokens on demand. Callers re-derive the
// token for every outbound call rather than caching one, so long-lived
// connections survive token expiry.
type TokenProvider interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenProvider hands out a fixed token. Useful for tests and for
// CLI invocations with a pre-acquired token.
type StaticTokenProvider string

func (p StaticTokenProvider) Token(_ context.Context) (string, error) {
	if p == "" {
		return "", ErrNoToken
	}
	return string(p), nil
}
