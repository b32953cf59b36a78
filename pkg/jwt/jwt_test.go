package jwt

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benmeehan/ak-mqtt/pkg/identity"
)

func ecPEM(t *testing.T, curve elliptic.Curve) (*ecdsa.PrivateKey, []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(curve, rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	return key, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
}

func rsaPEM(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	return key, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})
}

func parseClaims(t *testing.T, value string, publicKey interface{}) (*jwt.Token, jwt.MapClaims) {
	t.Helper()
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, err := parser.Parse(value, func(*jwt.Token) (interface{}, error) {
		return publicKey, nil
	})
	require.NoError(t, err)
	require.True(t, token.Valid)
	claims, ok := token.Claims.(jwt.MapClaims)
	require.True(t, ok)
	return token, claims
}

func TestTokenIssuer_Issue_ES256(t *testing.T) {
	key, keyPEM := ecPEM(t, elliptic.P256())
	now := time.Date(2026, 10, 19, 8, 30, 15, 123456789, time.UTC)

	issuer := NewTokenIssuer()
	issuer.Now = func() time.Time { return now }

	creds := &identity.Credentials{
		DeviceID:   "sensor-1",
		PrivateKey: keyPEM,
		Audience:   identity.AudienceFor("akenza.io", "sensor-1"),
		Algorithm:  identity.AlgorithmES256,
	}

	token, err := issuer.Issue(creds)
	require.NoError(t, err)
	assert.Equal(t, 36000*time.Second, token.ExpiresAt.Sub(token.IssuedAt))
	assert.Equal(t, now.Truncate(time.Second), token.IssuedAt)

	parsed, claims := parseClaims(t, token.Value, &key.PublicKey)
	assert.Equal(t, "ES256", parsed.Method.Alg())
	assert.Equal(t, "JWT", parsed.Header["typ"])
	assert.Equal(t, "sensor-1", claims["sub"])
	assert.Equal(t, "https://akenza.io/devices/sensor-1", claims["aud"])
	assert.Equal(t, float64(now.Unix()), claims["iat"])
	assert.Equal(t, float64(36000), claims["exp"].(float64)-claims["iat"].(float64))
}

func TestTokenIssuer_Issue_RS256(t *testing.T) {
	key, keyPEM := rsaPEM(t)

	creds := &identity.Credentials{
		DeviceID:   "sensor-2",
		PrivateKey: keyPEM,
		Audience:   identity.AudienceFor("example.org", "sensor-2"),
		Algorithm:  identity.AlgorithmRS256,
	}

	token, err := NewTokenIssuer().Issue(creds)
	require.NoError(t, err)

	parsed, claims := parseClaims(t, token.Value, &key.PublicKey)
	assert.Equal(t, "RS256", parsed.Method.Alg())
	assert.Equal(t, "https://example.org/devices/sensor-2", claims["aud"])
}

func TestTokenIssuer_Issue_LifetimeAndAudienceForAnyIdentity(t *testing.T) {
	_, keyPEM := ecPEM(t, elliptic.P256())
	issuer := NewTokenIssuer()

	cases := []struct{ audience, deviceID string }{
		{"akenza.io", "a"},
		{"broker.local", "device-with-dashes"},
		{"x.y.z", "0123456789abcdef"},
	}
	for _, tc := range cases {
		creds := &identity.Credentials{
			DeviceID:   tc.deviceID,
			PrivateKey: keyPEM,
			Audience:   identity.AudienceFor(tc.audience, tc.deviceID),
			Algorithm:  identity.AlgorithmES256,
		}
		token, err := issuer.Issue(creds)
		require.NoError(t, err)
		assert.Equal(t, int64(36000), token.ExpiresAt.Unix()-token.IssuedAt.Unix())

		parser := jwt.NewParser()
		claims := jwt.MapClaims{}
		_, _, err = parser.ParseUnverified(token.Value, claims)
		require.NoError(t, err)
		assert.Equal(t, "https://"+tc.audience+"/devices/"+tc.deviceID, claims["aud"])
	}
}

func TestTokenIssuer_Issue_Errors(t *testing.T) {
	_, ecKey := ecPEM(t, elliptic.P256())
	_, p384Key := ecPEM(t, elliptic.P384())
	_, rsaKey := rsaPEM(t)

	tests := []struct {
		name    string
		creds   *identity.Credentials
		wantErr error
	}{
		{"nil credentials", nil, identity.ErrCredential},
		{"unsupported algorithm", &identity.Credentials{DeviceID: "d", PrivateKey: ecKey, Algorithm: "HS256"}, identity.ErrUnsupportedAlgorithm},
		{"empty key", &identity.Credentials{DeviceID: "d", Algorithm: identity.AlgorithmES256}, identity.ErrCredential},
		{"garbage key", &identity.Credentials{DeviceID: "d", PrivateKey: []byte("nope"), Algorithm: identity.AlgorithmES256}, identity.ErrCredential},
		{"rsa key for ES256", &identity.Credentials{DeviceID: "d", PrivateKey: rsaKey, Algorithm: identity.AlgorithmES256}, identity.ErrCredential},
		{"ec key for RS256", &identity.Credentials{DeviceID: "d", PrivateKey: ecKey, Algorithm: identity.AlgorithmRS256}, identity.ErrCredential},
		{"P-384 key for ES256", &identity.Credentials{DeviceID: "d", PrivateKey: p384Key, Algorithm: identity.AlgorithmES256}, identity.ErrCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := NewTokenIssuer().Issue(tt.creds)
			assert.Nil(t, token)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestAuthToken_ExpiresWithin(t *testing.T) {
	now := time.Now()
	token := &AuthToken{IssuedAt: now, ExpiresAt: now.Add(2 * time.Hour)}

	assert.False(t, token.ExpiresWithin(now, time.Hour))
	assert.True(t, token.ExpiresWithin(now, 2*time.Hour))
	assert.True(t, token.ExpiresWithin(now.Add(90*time.Minute), time.Hour))
}
