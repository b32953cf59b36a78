package identity

import (
	"errors"
	"fmt"

	"github.com/benmeehan/ak-mqtt/pkg/file"
)

var (
	// ErrCredential is returned when the device identity or private key cannot be used.
	ErrCredential = errors.New("identity: invalid credentials")

	// ErrUnsupportedAlgorithm is returned for any signing algorithm other than ES256 or RS256.
	ErrUnsupportedAlgorithm = errors.New("identity: unsupported algorithm")
)

// Algorithm is a token signing algorithm.
type Algorithm string

const (
	AlgorithmES256 Algorithm = "ES256"
	AlgorithmRS256 Algorithm = "RS256"
)

// ParseAlgorithm validates name against the supported signing algorithms.
func ParseAlgorithm(name string) (Algorithm, error) {
	switch Algorithm(name) {
	case AlgorithmES256, AlgorithmRS256:
		return Algorithm(name), nil
	default:
		return "", fmt.Errorf("%w: %q (expected ES256 or RS256)", ErrUnsupportedAlgorithm, name)
	}
}

// Credentials is the immutable identity a device authenticates with.
type Credentials struct {
	DeviceID   string
	PrivateKey []byte
	Audience   string
	Algorithm  Algorithm
}

// AudienceFor returns the token audience for deviceID under audienceRoot.
func AudienceFor(audienceRoot, deviceID string) string {
	return "https://" + audienceRoot + "/devices/" + deviceID
}

// LoadCredentials builds the device Credentials. The algorithm is validated before the
// key file is touched, so an unsupported algorithm never causes file access.
func LoadCredentials(deviceID, privateKeyFile, audienceRoot, algorithm string, fileOps file.FileOperations) (*Credentials, error) {
	if deviceID == "" {
		return nil, fmt.Errorf("%w: device id is empty", ErrCredential)
	}

	alg, err := ParseAlgorithm(algorithm)
	if err != nil {
		return nil, err
	}

	exists, err := fileOps.IsFileExists(privateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to stat %s: %w", ErrCredential, privateKeyFile, err)
	}
	if !exists {
		return nil, fmt.Errorf("%w: the file %s does not exist", ErrCredential, privateKeyFile)
	}

	key, err := fileOps.ReadFileRaw(privateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read %s: %w", ErrCredential, privateKeyFile, err)
	}
	if len(key) == 0 {
		return nil, fmt.Errorf("%w: the file %s is empty", ErrCredential, privateKeyFile)
	}

	return &Credentials{
		DeviceID:   deviceID,
		PrivateKey: key,
		Audience:   AudienceFor(audienceRoot, deviceID),
		Algorithm:  alg,
	}, nil
}
