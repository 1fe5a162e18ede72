package database

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockDocumentRepository struct {
	mock.Mock
}

func (m *MockDocumentRepository) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
func (m *MockDocumentRepository) GetDocument(ctx context.Context, id string) (Document, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(Document), args.Error(1)
}
func (m *MockDocumentRepository) SaveSnapshot(ctx context.Context, doc Document) error {
	args := m.Called(ctx, doc)
	return args.Error(0)
}
func (m *MockDocumentRepository) Close() error {
	args := m.Called()
	return args.Error(0)
}
