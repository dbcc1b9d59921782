package httpserver

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// ErrUnauthorized is returned by an Authenticator that rejects a request.
var ErrUnauthorized = errors.New("unauthorized")

// Principal identifies an authenticated caller.
type Principal struct {
	Name string
}

// Authenticator decides whether a request may proceed. It runs before any
// websocket upgrade, so a rejection never reaches application code.
type Authenticator interface {
	Authenticate(r *http.Request) (Principal, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(r *http.Request) (Principal, error)

// Authenticate implements Authenticator.
func (f AuthenticatorFunc) Authenticate(r *http.Request) (Principal, error) {
	return f(r)
}

// TokenAuthenticator accepts a static bearer token from the Authorization
// header or the token query parameter. Browsers cannot set headers on
// websocket handshakes, hence the query form.
type TokenAuthenticator struct {
	tokens []string
}

// NewTokenAuthenticator returns an authenticator for tokens. With no tokens
// every request is accepted.
func NewTokenAuthenticator(tokens []string) *TokenAuthenticator {
	var clean []string
	for _, t := range tokens {
		if t = strings.TrimSpace(t); t != "" {
			clean = append(clean, t)
		}
	}
	return &TokenAuthenticator{tokens: clean}
}

// Enabled reports whether any token is configured.
func (a *TokenAuthenticator) Enabled() bool {
	return len(a.tokens) > 0
}

// Authenticate implements Authenticator.
func (a *TokenAuthenticator) Authenticate(r *http.Request) (Principal, error) {
	if !a.Enabled() {
		return Principal{Name: "local"}, nil
	}

	token := r.URL.Query().Get("token")
	if h := r.Header.Get("Authorization"); h != "" {
		parts := strings.SplitN(h, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			return Principal{}, ErrUnauthorized
		}
		token = parts[1]
	}
	if token == "" {
		return Principal{}, ErrUnauthorized
	}

	for _, valid := range a.tokens {
		if subtle.ConstantTimeCompare([]byte(token), []byte(valid)) == 1 {
			return Principal{Name: "token"}, nil
		}
	}
	return Principal{}, ErrUnauthorized
}
