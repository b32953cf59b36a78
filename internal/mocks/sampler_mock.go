package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockSampler is a mock implementation of the samplers.Sampler interface.
type MockSampler struct {
	mock.Mock
}

func (m *MockSampler) Name() string {
	return m.Called().String(0)
}

func (m *MockSampler) Sample(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockSampler) Description() string {
	return m.Called().String(0)
}
