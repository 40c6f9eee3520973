package order

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/uuid"
)

// MemoryRepository keeps orders in process memory. Every read returns a copy
// and every write is a version-checked swap under the mutex.
type MemoryRepository struct {
	mu      sync.RWMutex
	orders  map[uuid.UUID]*Order
	numbers map[string]uuid.UUID
	now     func() time.Time
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders:  make(map[uuid.UUID]*Order),
		numbers: make(map[string]uuid.UUID),
		now:     time.Now,
	}
}

func (r *MemoryRepository) CreateOrder(ctx context.Context, o *Order) (uuid.UUID, error) {
	if err := ctx.Err(); err != nil {
		return uuid.Nil, err
	}
	if err := o.Validate(); err != nil {
		return uuid.Nil, fmt.Errorf("repository: refusing to write order: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.numbers[o.OrderNumber]; ok {
		return uuid.Nil, ErrDuplicateOrderNumber
	}
	if o.ID == uuid.Nil {
		id, err := uuid.NewV4()
		if err != nil {
			return uuid.Nil, fmt.Errorf("repository: failed to generate order ID: %w", err)
		}
		o.ID = id
	}
	if _, ok := r.orders[o.ID]; ok {
		return uuid.Nil, fmt.Errorf("repository: order %s already exists", o.ID)
	}
	o.Version = 1

	r.orders[o.ID] = o.Clone()
	r.numbers[o.OrderNumber] = o.ID
	return o.ID, nil
}

func (r *MemoryRepository) GetOrderByID(ctx context.Context, id uuid.UUID) (*Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	o, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	return o.Clone(), nil
}

// UpdateOrder runs fn on a copy outside the lock and publishes it only if no
// other writer got there first. Losing the race yields ErrConcurrentUpdate.
func (r *MemoryRepository) UpdateOrder(ctx context.Context, id uuid.UUID, fn UpdateFunc) (*Order, error) {
	current, err := r.GetOrderByID(ctx, id)
	if err != nil {
		return nil, err
	}

	next := current.Clone()
	changed, err := fn(next)
	if err != nil {
		return nil, err
	}
	if !changed {
		return current, nil
	}
	if err := next.Validate(); err != nil {
		return nil, fmt.Errorf("repository: refusing to write order: %w", err)
	}
	if next.UpdatedAt.IsZero() || !next.UpdatedAt.After(current.UpdatedAt) {
		next.UpdatedAt = r.now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.orders[id]
	if !ok {
		return nil, ErrOrderNotFound
	}
	if stored.Version != current.Version {
		return nil, ErrConcurrentUpdate
	}
	next.Version = current.Version + 1
	r.orders[id] = next.Clone()

	return next, nil
}

func (r *MemoryRepository) AppendStatusTransition(ctx context.Context, id uuid.UUID, status Status, note string) (*Order, error) {
	return r.UpdateOrder(ctx, id, appendTransition(status, note, r.now))
}

func (r *MemoryRepository) ListOrders(ctx context.Context, filter ListFilter) ([]Order, error) {
	return r.list(ctx, func(o *Order) bool {
		return filter.Status == "" || o.Status == filter.Status
	}, filter.Limit)
}

func (r *MemoryRepository) ListOrdersByEmail(ctx context.Context, email string) ([]Order, error) {
	return r.list(ctx, func(o *Order) bool {
		return o.UserEmail == email
	}, 0)
}

func (r *MemoryRepository) list(ctx context.Context, match func(*Order) bool, limit int) ([]Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	orders := make([]Order, 0, len(r.orders))
	for _, o := range r.orders {
		if match(o) {
			orders = append(orders, *o.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(orders, func(i, j int) bool {
		return orders[i].CreatedAt.After(orders[j].CreatedAt)
	})
	if limit > 0 && len(orders) > limit {
		orders = orders[:limit]
	}
	return orders, nil
}
