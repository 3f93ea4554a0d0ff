package syncservice

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var ErrUnauthorized = errors.New("unauthorized")

const (
	HeaderUserID    = "X-User-ID"
	HeaderUserEmail = "X-User-Email"
)

type Identity struct {
	UserID string
	Email  string
}

// Authenticator resolves the caller of a request.
type Authenticator interface {
	Authenticate(r *http.Request) (Identity, error)
}

// HeaderAuthenticator trusts the user id header. When Token is set the request must also carry it as a bearer token.
type HeaderAuthenticator struct {
	Token string
}

func (a HeaderAuthenticator) Authenticate(r *http.Request) (Identity, error) {
	if a.Token != "" {
		got, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(got), []byte(a.Token)) != 1 {
			return Identity{}, ErrUnauthorized
		}
	}
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	if id == "" {
		return Identity{}, ErrUnauthorized
	}
	return Identity{UserID: id, Email: r.Header.Get(HeaderUserEmail)}, nil
}
