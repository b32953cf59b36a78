package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/benmeehan/ak-mqtt/pkg/identity"
	"github.com/benmeehan/ak-mqtt/pkg/jwt"
)

// MockTokenIssuer is a mock implementation of the TokenIssuerInterface.
type MockTokenIssuer struct {
	mock.Mock
}

func (m *MockTokenIssuer) Issue(creds *identity.Credentials) (*jwt.AuthToken, error) {
	args := m.Called(creds)
	token, _ := args.Get(0).(*jwt.AuthToken)
	return token, args.Error(1)
}
