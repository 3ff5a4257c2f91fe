// Package auth provides the bearer-token sources for each mail provider.
// Tokens are refreshed from a cache persisted in a kv.Store; the interactive
// login that seeds the cache runs once from cmd/setup-token.
package auth

import "errors"

// ErrNoCachedAccount means the persisted cache holds no usable login.
var ErrNoCachedAccount = errors.New("no cached credentials: run setup-token first")
