package mocks

import (
	"context"
	"time"

	"github.com/BearBump/SafeCheck/internal/models"
	"github.com/stretchr/testify/mock"
)

type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateSubject(ctx context.Context, in models.SubjectCreateInput) (*models.Subject, error) {
	args := m.Called(ctx, in)
	return args.Get(0).(*models.Subject), args.Error(1)
}

func (m *MockRepository) GetSubject(ctx context.Context, id uint64) (*models.Subject, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(*models.Subject), args.Error(1)
}

func (m *MockRepository) CheckIn(ctx context.Context, id uint64, source string, now time.Time) (*models.CheckInEvent, error) {
	args := m.Called(ctx, id, source, now)
	return args.Get(0).(*models.CheckInEvent), args.Error(1)
}

func (m *MockRepository) ListAlertRecords(ctx context.Context, subjectID uint64, limit, offset int) ([]*models.AlertRecord, error) {
	args := m.Called(ctx, subjectID, limit, offset)
	return args.Get(0).([]*models.AlertRecord), args.Error(1)
}

func (m *MockRepository) ListCheckIns(ctx context.Context, subjectID uint64, limit, offset int) ([]*models.CheckInEvent, error) {
	args := m.Called(ctx, subjectID, limit, offset)
	return args.Get(0).([]*models.CheckInEvent), args.Error(1)
}

func (m *MockRepository) AddContact(ctx context.Context, subjectID uint64, name, phoneNumber string) (*models.TrustedContact, error) {
	args := m.Called(ctx, subjectID, name, phoneNumber)
	return args.Get(0).(*models.TrustedContact), args.Error(1)
}

func (m *MockRepository) ListContacts(ctx context.Context, subjectID uint64) ([]*models.TrustedContact, error) {
	args := m.Called(ctx, subjectID)
	return args.Get(0).([]*models.TrustedContact), args.Error(1)
}
