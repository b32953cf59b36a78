package jwt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/ssh"

	"github.com/benmeehan/ak-mqtt/pkg/identity"
)

// DefaultLifetime is the validity window of every issued token.
const DefaultLifetime = 10 * time.Hour

// AuthToken is a signed, time-bounded credential presented as the MQTT password.
type AuthToken struct {
	Value     string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// ExpiresWithin reports whether the token expires within d of now.
func (t *AuthToken) ExpiresWithin(now time.Time, d time.Duration) bool {
	return !now.Add(d).Before(t.ExpiresAt)
}

// TokenIssuerInterface defines the token issuance used by the session layer.
type TokenIssuerInterface interface {
	Issue(creds *identity.Credentials) (*AuthToken, error)
}

// TokenIssuer signs device tokens with the device private key.
type TokenIssuer struct {
	Lifetime time.Duration
	Now      func() time.Time
}

// NewTokenIssuer returns an issuer using DefaultLifetime and the wall clock.
func NewTokenIssuer() *TokenIssuer {
	return &TokenIssuer{
		Lifetime: DefaultLifetime,
		Now:      time.Now,
	}
}

// Issue builds and signs a token for creds. The signing method is chosen from
// creds.Algorithm; the key material must match it.
func (ti *TokenIssuer) Issue(creds *identity.Credentials) (*AuthToken, error) {
	if creds == nil {
		return nil, fmt.Errorf("%w: no credentials", identity.ErrCredential)
	}

	method, err := signingMethod(creds.Algorithm)
	if err != nil {
		return nil, err
	}

	if len(creds.PrivateKey) == 0 {
		return nil, fmt.Errorf("%w: private key is empty", identity.ErrCredential)
	}

	key, err := parsePrivateKey(creds.Algorithm, creds.PrivateKey)
	if err != nil {
		return nil, err
	}

	// JWT timestamps have second resolution.
	issuedAt := ti.Now().UTC().Truncate(time.Second)
	expiresAt := issuedAt.Add(ti.Lifetime)

	claims := jwt.MapClaims{
		"sub": creds.DeviceID,
		"iat": issuedAt.Unix(),
		"exp": expiresAt.Unix(),
		"aud": creds.Audience,
	}

	token := jwt.NewWithClaims(method, claims)
	token.Header["typ"] = "JWT"

	signed, err := token.SignedString(key)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to sign token: %w", identity.ErrCredential, err)
	}

	return &AuthToken{
		Value:     signed,
		IssuedAt:  issuedAt,
		ExpiresAt: expiresAt,
	}, nil
}

func signingMethod(alg identity.Algorithm) (jwt.SigningMethod, error) {
	switch alg {
	case identity.AlgorithmES256:
		return jwt.SigningMethodES256, nil
	case identity.AlgorithmRS256:
		return jwt.SigningMethodRS256, nil
	default:
		return nil, fmt.Errorf("%w: %q", identity.ErrUnsupportedAlgorithm, alg)
	}
}

// parsePrivateKey accepts PKCS#1, PKCS#8, SEC1 and OpenSSH PEM encodings.
func parsePrivateKey(alg identity.Algorithm, pemBytes []byte) (interface{}, error) {
	raw, err := ssh.ParseRawPrivateKey(pemBytes)
	if err != nil {
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) {
			return nil, fmt.Errorf("%w: encrypted private keys are not supported", identity.ErrCredential)
		}
		return nil, fmt.Errorf("%w: failed to parse private key: %w", identity.ErrCredential, err)
	}

	switch alg {
	case identity.AlgorithmES256:
		key, ok := raw.(*ecdsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: ES256 requires an EC private key, got %T", identity.ErrCredential, raw)
		}
		if key.Curve != elliptic.P256() {
			return nil, fmt.Errorf("%w: ES256 requires a P-256 key, got %s", identity.ErrCredential, key.Curve.Params().Name)
		}
		return key, nil
	case identity.AlgorithmRS256:
		key, ok := raw.(*rsa.PrivateKey)
		if !ok {
			return nil, fmt.Errorf("%w: RS256 requires an RSA private key, got %T", identity.ErrCredential, raw)
		}
		return key, nil
	default:
		return nil, fmt.Errorf("%w: %q", identity.ErrUnsupportedAlgorithm, alg)
	}
}
