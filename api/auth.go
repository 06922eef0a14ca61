package api

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v4"
)

// bearerAuth gates the bulk GET /blocks route behind a shared-secret
// HMAC bearer token (SPEC_FULL.md §6 SYNC_SHARED_SECRET). gossip.PeerClient,
// which the node uses for bootstrap and pull-sync fetches, sends no bearer
// token, so those fetches are refused by a peer that has a secret set.
type bearerAuth struct {
	secret []byte
}

func newBearerAuth(secret string) *bearerAuth {
	return &bearerAuth{secret: []byte(secret)}
}

func (a *bearerAuth) Check(r *http.Request) bool {
	header := r.Header.Get("Authorization")
	tokenStr, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	token, err := jwt.Parse(tokenStr, func(t *jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	return err == nil && token.Valid
}
