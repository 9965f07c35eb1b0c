package repository

import (
	"context"
	"sync"
	"time"

	"github.com/sakashimaa/go-grocery/internal/inventory/domain"
)

type memoryEntry struct {
	mu    sync.Mutex
	entry domain.Entry
}

// MemoryRepository serializes mutations per product; different products never contend.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[string]*memoryEntry)}
}

func (r *MemoryRepository) lookup(productID string) (*memoryEntry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[productID]
	return e, ok
}

func (r *MemoryRepository) Upsert(_ context.Context, entry *domain.Entry) (domain.Change, error) {
	r.mu.Lock()
	e, ok := r.entries[entry.ProductID]
	if !ok {
		e = &memoryEntry{entry: domain.Entry{ProductID: entry.ProductID, Stock: entry.Stock}}
		r.entries[entry.ProductID] = e
	}
	r.mu.Unlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	before := e.entry.Stock
	e.entry = *entry
	e.entry.UpdatedAt = time.Now().UTC()

	return domain.Change{Entry: e.entry, Before: before, Created: !ok}, nil
}

func (r *MemoryRepository) GetByID(_ context.Context, productID string) (*domain.Entry, error) {
	e, ok := r.lookup(productID)
	if !ok {
		return nil, domain.ErrProductNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	snapshot := e.entry
	return &snapshot, nil
}

func (r *MemoryRepository) Decrement(_ context.Context, productID string, quantity int) (domain.Change, error) {
	e, ok := r.lookup(productID)
	if !ok {
		return domain.Change{}, domain.ErrProductNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if quantity > e.entry.Stock {
		return domain.Change{}, domain.ErrOutOfStock
	}

	before := e.entry.Stock
	e.entry.Stock -= quantity
	e.entry.UpdatedAt = time.Now().UTC()

	return domain.Change{Entry: e.entry, Before: before}, nil
}

func (r *MemoryRepository) Adjust(_ context.Context, productID string, delta int) (domain.Change, error) {
	e, ok := r.lookup(productID)
	if !ok {
		return domain.Change{}, domain.ErrProductNotFound
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	before := e.entry.Stock
	if delta > 0 && before > domain.MaxStock-delta {
		return domain.Change{}, domain.ErrStockOverflow
	}
	e.entry.Stock = max(before+delta, 0)
	e.entry.UpdatedAt = time.Now().UTC()

	return domain.Change{Entry: e.entry, Before: before}, nil
}
