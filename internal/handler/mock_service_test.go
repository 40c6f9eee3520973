package handler_test

import (
	"context"

	"github.com/gofrs/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/vasiliy-maslov/storefront-payments/internal/lifecycle"
	"github.com/vasiliy-maslov/storefront-payments/internal/order"
)

type MockLifecycleService struct {
	mock.Mock
}

func (m *MockLifecycleService) PlaceOrder(ctx context.Context, d order.Draft) (*lifecycle.CheckoutResult, error) {
	args := m.Called(ctx, d)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lifecycle.CheckoutResult), args.Error(1)
}

func (m *MockLifecycleService) ReconcilePayment(ctx context.Context, paymentID string) (*lifecycle.ReconcileResult, error) {
	args := m.Called(ctx, paymentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*lifecycle.ReconcileResult), args.Error(1)
}

func (m *MockLifecycleService) SetFulfillmentStatus(ctx context.Context, id uuid.UUID, status order.Status, note string) (*order.Order, error) {
	args := m.Called(ctx, id, status, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockLifecycleService) GetOrder(ctx context.Context, id uuid.UUID) (*order.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*order.Order), args.Error(1)
}

func (m *MockLifecycleService) ListOrders(ctx context.Context, filter order.ListFilter) ([]order.Order, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}

func (m *MockLifecycleService) ListOrdersByEmail(ctx context.Context, email string) ([]order.Order, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]order.Order), args.Error(1)
}
