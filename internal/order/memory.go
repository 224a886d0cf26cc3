package order

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryRepository keeps orders in process memory.
type MemoryRepository struct {
	mu     sync.Mutex
	orders map[string]Order
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{orders: make(map[string]Order)}
}

func (r *MemoryRepository) Create(_ context.Context, o *Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; ok {
		return fmt.Errorf("order %s: %w", o.ID, ErrDuplicate)
	}
	r.orders[o.ID] = copyOrder(o)
	return nil
}

func (r *MemoryRepository) Get(_ context.Context, id string) (*Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	out := copyOrder(&o)
	return &out, nil
}

func (r *MemoryRepository) UpdateStatus(_ context.Context, id string, status Status, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return fmt.Errorf("order %s: %w", id, ErrNotFound)
	}
	o.Status = status
	o.ReviewReason = reason
	o.UpdatedAt = time.Now().UTC()
	r.orders[id] = o
	return nil
}

func copyOrder(o *Order) Order {
	out := *o
	out.Items = append([]Item(nil), o.Items...)
	return out
}
