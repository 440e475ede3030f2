package mocks

import (
	"context"

	"github.com/trocopix/trocopix/internal/gateway"

	"github.com/stretchr/testify/mock"
)

type MockGatewayClient struct {
	mock.Mock
}

func (m *MockGatewayClient) SubmitPayout(ctx context.Context, req *gateway.SubmitRequest) (*gateway.SubmitResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*gateway.SubmitResult)
	return result, args.Error(1)
}

func (m *MockGatewayClient) CheckStatus(ctx context.Context, gatewayTxID string) (gateway.ProviderStatus, error) {
	args := m.Called(ctx, gatewayTxID)
	return args.Get(0).(gateway.ProviderStatus), args.Error(1)
}

func (m *MockGatewayClient) Cancel(ctx context.Context, gatewayTxID, reason string) error {
	args := m.Called(ctx, gatewayTxID, reason)
	return args.Error(0)
}
