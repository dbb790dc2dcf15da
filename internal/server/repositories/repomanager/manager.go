// Package repomanager hands out record repositories and runs work inside a
// transaction, backed by memory or PostgreSQL.
package repomanager

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/silosync/internal/server/repositories/records"
)

type RepositoryManager interface {
	Records() records.Repository
	// WithTx runs fn with a repository whose writes commit together.
	WithTx(ctx context.Context, fn func(ctx context.Context, repo records.Repository) error) error
	Close() error
}

// InMemoryRepositoryManager serializes transactions with a mutex. Writes are
// not rolled back when fn fails.
type InMemoryRepositoryManager struct {
	mu      sync.Mutex
	records *records.MemoryRepository
}

func NewInMemoryRepositoryManager() *InMemoryRepositoryManager {
	return &InMemoryRepositoryManager{records: records.NewMemoryRepository()}
}

func (m *InMemoryRepositoryManager) Records() records.Repository {
	return m.records
}

func (m *InMemoryRepositoryManager) WithTx(ctx context.Context, fn func(ctx context.Context, repo records.Repository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(ctx, m.records)
}

func (m *InMemoryRepositoryManager) Close() error {
	return nil
}
