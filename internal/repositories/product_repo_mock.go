package repositories

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"apotek/internal/models"
	"apotek/internal/status"
)

// MockProductRepository is an in-memory implementation of ProductRepository.
// It stands in for the remote inventory API in tests and in local development
// when no API URL is configured, including the server-side semantics of the
// low-stock, expiring and categories endpoints.
type MockProductRepository struct {
	mu       sync.RWMutex
	products map[int64]models.Product
	order    []int64
	nextID   int64
	now      func() time.Time
}

// NewMockProductRepository creates an empty in-memory repository.
func NewMockProductRepository() *MockProductRepository {
	return &MockProductRepository{
		products: make(map[int64]models.Product),
		nextID:   1,
		now:      time.Now,
	}
}

// GetAll returns all products in insertion order.
func (r *MockProductRepository) GetAll(ctx context.Context) ([]models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]models.Product, 0, len(r.order))
	for _, id := range r.order {
		if p, ok := r.products[id]; ok {
			list = append(list, p)
		}
	}
	return list, nil
}

// GetByID returns a product by its ID.
func (r *MockProductRepository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	return &p, nil
}

// GetLowStock returns products at or below their minimum threshold,
// mirroring the remote API's dedicated endpoint.
func (r *MockProductRepository) GetLowStock(ctx context.Context) ([]models.Product, error) {
	all, _ := r.GetAll(ctx)
	list := make([]models.Product, 0)
	for _, p := range all {
		if status.ForStock(p.StockQuantity, p.MinimumStockThreshold) != status.StockIn {
			list = append(list, p)
		}
	}
	return list, nil
}

// GetExpiring returns products expired or inside the expiring-soon window,
// mirroring the remote API's dedicated endpoint.
func (r *MockProductRepository) GetExpiring(ctx context.Context) ([]models.Product, error) {
	all, _ := r.GetAll(ctx)
	now := r.now()
	list := make([]models.Product, 0)
	for _, p := range all {
		expiry, err := p.ExpiryTime()
		if err != nil {
			continue
		}
		if status.ForExpiry(expiry, now) != status.ExpiryValid {
			list = append(list, p)
		}
	}
	return list, nil
}

// GetCategories returns the distinct categories, sorted.
func (r *MockProductRepository) GetCategories(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	for _, p := range r.products {
		if p.Category != "" {
			seen[p.Category] = true
		}
	}
	categories := make([]string, 0, len(seen))
	for c := range seen {
		categories = append(categories, c)
	}
	sort.Strings(categories)
	return categories, nil
}

// Create stores a new product and assigns it an ID and timestamps.
func (r *MockProductRepository) Create(ctx context.Context, input *models.ProductInput) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	p := productFromInput(input)
	p.ID = r.nextID
	p.CreatedAt = now
	p.UpdatedAt = now
	r.nextID++
	r.products[p.ID] = p
	r.order = append(r.order, p.ID)
	return &p, nil
}

// Update replaces the submitted fields of an existing product.
func (r *MockProductRepository) Update(ctx context.Context, id int64, input *models.ProductInput) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.products[id]
	if !ok {
		return nil, fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	p := productFromInput(input)
	p.ID = id
	p.CreatedAt = existing.CreatedAt
	p.UpdatedAt = r.now()
	r.products[id] = p
	return &p, nil
}

// Delete removes a product by its ID.
func (r *MockProductRepository) Delete(ctx context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.products[id]; !ok {
		return fmt.Errorf("product %d: %w", id, ErrNotFound)
	}
	delete(r.products, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return nil
}

func productFromInput(input *models.ProductInput) models.Product {
	return models.Product{
		Name:                  input.Name,
		Description:           input.Description,
		Price:                 input.Price,
		StockQuantity:         input.StockQuantity,
		Category:              input.Category,
		Supplier:              input.Supplier,
		ExpiryDate:            input.ExpiryDate,
		MinimumStockThreshold: input.MinimumStockThreshold,
	}
}
