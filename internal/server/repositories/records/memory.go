package records

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/silosync/internal/client/models"
	"github.com/dmitrijs2005/silosync/internal/common"
)

// MemoryRepository keeps records in insertion order per kind.
type MemoryRepository struct {
	mu    sync.RWMutex
	kinds map[models.Kind]*bucket
}

type bucket struct {
	order []string
	byID  map[string]models.Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{kinds: make(map[models.Kind]*bucket)}
}

func (r *MemoryRepository) bucket(kind models.Kind) *bucket {
	b, ok := r.kinds[kind]
	if !ok {
		b = &bucket{byID: make(map[string]models.Record)}
		r.kinds[kind] = b
	}
	return b
}

func (r *MemoryRepository) List(_ context.Context, kind models.Kind) ([]models.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.kinds[kind]
	if !ok {
		return []models.Record{}, nil
	}
	out := make([]models.Record, 0, len(b.order))
	for _, id := range b.order {
		out = append(out, b.byID[id].Clone())
	}
	return out, nil
}

func (r *MemoryRepository) Get(_ context.Context, kind models.Kind, id string) (models.Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if b, ok := r.kinds[kind]; ok {
		if rec, ok := b.byID[id]; ok {
			return rec.Clone(), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *MemoryRepository) Insert(_ context.Context, kind models.Kind, rec models.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.bucket(kind)
	id := rec.ID()
	if _, exists := b.byID[id]; exists {
		return fmt.Errorf("%s %s already exists", kind.Singular(), id)
	}
	b.order = append(b.order, id)
	b.byID[id] = rec.Clone()
	return nil
}

func (r *MemoryRepository) Update(_ context.Context, kind models.Kind, rec models.Record) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.bucket(kind)
	if _, ok := b.byID[rec.ID()]; !ok {
		return common.ErrorNotFound
	}
	b.byID[rec.ID()] = rec.Clone()
	return nil
}

func (r *MemoryRepository) Delete(_ context.Context, kind models.Kind, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	b := r.bucket(kind)
	if _, ok := b.byID[id]; !ok {
		return common.ErrorNotFound
	}
	delete(b.byID, id)
	for i, v := range b.order {
		if v == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return nil
}
