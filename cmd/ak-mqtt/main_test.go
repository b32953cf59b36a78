package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/benmeehan/ak-mqtt/internal/utils"
	"github.com/benmeehan/ak-mqtt/pkg/identity"
)

func TestRun_Help(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{"--help"}, &out)

	assert.ErrorIs(t, err, utils.ErrHelpRequested)
	assert.Equal(t, utils.ExitOK, utils.ExitCode(err))
	assert.Contains(t, out.String(), "--device_id")
	assert.Contains(t, out.String(), "--private_key_file")
}

func TestRun_Version(t *testing.T) {
	var out bytes.Buffer
	err := run([]string{"--version"}, &out)

	assert.Equal(t, utils.ExitOK, utils.ExitCode(err))
	assert.Contains(t, out.String(), "ak-mqtt v1.0.0")
}

func TestRun_ConfigErrorsExitWithConfigStatus(t *testing.T) {
	emptyKey := filepath.Join(t.TempDir(), "empty.pem")
	assert.NoError(t, os.WriteFile(emptyKey, nil, 0o600))

	tests := []struct {
		name    string
		args    []string
		wantErr error
	}{
		{"missing device id", []string{"-f", "key.pem"}, utils.ErrConfig},
		{"missing key file flag", []string{"-d", "sensor-1"}, utils.ErrConfig},
		{"unsupported algorithm", []string{"-d", "sensor-1", "-f", "/does/not/exist.pem", "-a", "HS256"}, identity.ErrUnsupportedAlgorithm},
		{"key file missing", []string{"-d", "sensor-1", "-f", "/does/not/exist.pem"}, identity.ErrCredential},
		{"key file empty", []string{"-d", "sensor-1", "-f", emptyKey}, identity.ErrCredential},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			err := run(tt.args, &out)

			assert.Error(t, err)
			if tt.wantErr != nil {
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
			}
			assert.Equal(t, utils.ExitConfig, utils.ExitCode(err))
		})
	}
}

func TestVersionString(t *testing.T) {
	original := version
	defer func() { version = original }()

	version = "2.3.4"
	assert.Equal(t, "ak-mqtt v2.3.4", versionString())

	version = "not-a-version"
	assert.Equal(t, "ak-mqtt not-a-version (unversioned build)", versionString())
}
