package mocks

import (
	"sync"

	"github.com/trocopix/trocopix/internal/models"
)

// MockNotifier records lifecycle events for assertions.
type MockNotifier struct {
	mu        sync.Mutex
	Completed []string
	Failed    []string
}

func (m *MockNotifier) PayoutCompleted(transaction *models.PixTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Completed = append(m.Completed, transaction.ID)
}

func (m *MockNotifier) PayoutFailed(transaction *models.PixTransaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Failed = append(m.Failed, transaction.ID)
}
