package api

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrNonceMissing  = errors.New("security token is required")
	ErrNonceInvalid  = errors.New("security token is invalid")
	ErrNonceExpired  = errors.New("security token has expired, reload and try again")
	ErrNonceMismatch = errors.New("security token does not match this request")
)

// nonceClaims binds a token to one action and, for two step flows, to the
// digest of the payload the operator confirmed.
type nonceClaims struct {
	jwt.RegisteredClaims
	Action string `json:"act"`
	Digest string `json:"dig,omitempty"`
}

// Nonces issues and checks per action anti forgery tokens.
type Nonces struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewNonces(secret string, ttl time.Duration) *Nonces {
	return &Nonces{secret: []byte(secret), ttl: ttl, now: time.Now}
}

func (n *Nonces) Issue(action, digest string) (string, error) {
	now := n.now()
	claims := nonceClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(n.ttl)),
		},
		Action: action,
		Digest: digest,
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(n.secret)
	if err != nil {
		return "", fmt.Errorf("sign nonce: %w", err)
	}
	return token, nil
}

func (n *Nonces) Verify(token, action, digest string) error {
	if token == "" {
		return ErrNonceMissing
	}

	var parsed nonceClaims
	_, err := jwt.ParseWithClaims(token, &parsed, func(*jwt.Token) (any, error) {
		return n.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	if err != nil {
		return ErrNonceInvalid
	}

	if parsed.ExpiresAt == nil || !parsed.ExpiresAt.Time.After(n.now()) {
		return ErrNonceExpired
	}
	if parsed.Action != action || parsed.Digest != digest {
		return ErrNonceMismatch
	}
	return nil
}

// Digest fingerprints v by its JSON encoding.
func Digest(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
