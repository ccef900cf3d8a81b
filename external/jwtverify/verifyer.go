// Package jwtverify implements external.Verifyer against a bearer JWT,
// matching flowmanager's original `_verify`: the token's "userid" claim
// must equal the spec's owner, and `permissions.max_dataset_num` carries
// the caller's dataset quota (spec.md §6, "Verifyer contract").
package jwtverify

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lestrrat-go/jwx/v2/jwk"
	jwxjwt "github.com/lestrrat-go/jwx/v2/jwt"

	"github.com/datopian/flowmanager/external"
)

// Verifyer validates bearer tokens against a JWKS endpoint (RS256) when
// jwksURL is set, falling back to a static HS256 secret for local/dev use
// when it is not — the same two-mode shape as the teacher's Auth
// middleware, lifted out of gin into a standalone port implementation.
type Verifyer struct {
	jwksURL string
	hmacKey []byte
	cache   *jwk.Cache
}

func New(jwksURL string, hmacKey []byte) *Verifyer {
	v := &Verifyer{jwksURL: jwksURL, hmacKey: hmacKey}
	if jwksURL != "" {
		c := jwk.NewCache(context.Background())
		if err := c.Register(jwksURL, jwk.WithMinRefreshInterval(15*time.Minute)); err != nil {
			panic("jwk cache register: " + err.Error())
		}
		v.cache = c
	}
	return v
}

func (v *Verifyer) ExtractPermissions(ctx context.Context, token string) (*external.Permissions, error) {
	if token == "" {
		return nil, nil
	}

	if v.cache != nil {
		return v.extractRS256(ctx, token)
	}
	return v.extractHS256(token)
}

func (v *Verifyer) extractRS256(ctx context.Context, token string) (*external.Permissions, error) {
	keySet, err := v.cache.Get(ctx, v.jwksURL)
	if err != nil {
		return nil, nil
	}
	tok, err := jwxjwt.Parse([]byte(token), jwxjwt.WithKeySet(keySet), jwxjwt.WithValidate(true))
	if err != nil {
		return nil, nil
	}
	return permissionsFromClaims(tok.PrivateClaims(), tok.Subject())
}

func (v *Verifyer) extractHS256(token string) (*external.Permissions, error) {
	parsed, err := jwt.Parse(token, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return v.hmacKey, nil
	})
	if err != nil || !parsed.Valid {
		return nil, nil
	}
	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return nil, nil
	}
	userid, _ := claims["userid"].(string)
	return permissionsFromClaims(claims, userid)
}

func permissionsFromClaims(claims map[string]any, userid string) (*external.Permissions, error) {
	if userid == "" {
		if v, ok := claims["userid"].(string); ok {
			userid = v
		}
	}
	if userid == "" {
		return nil, nil
	}

	maxDatasets := 0
	if perms, ok := claims["permissions"].(map[string]any); ok {
		switch n := perms["max_dataset_num"].(type) {
		case float64:
			maxDatasets = int(n)
		case int:
			maxDatasets = n
		}
	}

	return &external.Permissions{UserID: userid, MaxDatasetNum: maxDatasets}, nil
}
