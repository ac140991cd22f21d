package services

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"apotek/internal/cache"
	"apotek/internal/models"
	"apotek/internal/repositories"
	"apotek/internal/status"

	"github.com/go-playground/validator/v10"
)

// AlertPublisher publishes stock alerts for products that a mutation left at
// or below their minimum threshold. A nil publisher disables alerts.
type AlertPublisher interface {
	PublishStockAlert(alert map[string]interface{}) error
}

// ValidationError carries the per-field messages of a rejected submission.
// It is produced before any network call is made.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Fields))
	for field, msg := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// InventoryServiceConfig tunes the derived-status rules and the category
// cache. Zero values fall back to the package defaults.
type InventoryServiceConfig struct {
	LowStockThreshold  int
	ExpiringSoonWindow time.Duration
	CategoryCacheTTL   time.Duration
	// Clock overrides time.Now, for tests that need to move "now".
	Clock func() time.Time
}

// InventoryService owns the product collection as the console sees it: it
// evaluates filters against the remote store, derives status indicators,
// validates submissions, and keeps the cache honest across mutations.
type InventoryService struct {
	repo      repositories.ProductRepository
	cache     *cache.CollectionCache
	tracker   *MutationTracker
	validate  *validator.Validate
	alerts    AlertPublisher
	threshold int
	window    time.Duration
	now       func() time.Time

	catMu       sync.Mutex
	categories  []string
	categoriesA time.Time
	categoryTTL time.Duration
}

// NewInventoryService creates an InventoryService over the given repository.
// The alert publisher may be nil.
func NewInventoryService(repo repositories.ProductRepository, alerts AlertPublisher, cfg InventoryServiceConfig) *InventoryService {
	threshold := cfg.LowStockThreshold
	if threshold <= 0 {
		threshold = status.DefaultMinimumStockThreshold
	}
	window := cfg.ExpiringSoonWindow
	if window <= 0 {
		window = status.DefaultExpiringSoonWindow
	}
	categoryTTL := cfg.CategoryCacheTTL
	if categoryTTL <= 0 {
		categoryTTL = 5 * time.Minute
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	return &InventoryService{
		repo:        repo,
		cache:       cache.New(),
		tracker:     NewMutationTracker(),
		validate:    validator.New(),
		alerts:      alerts,
		threshold:   threshold,
		window:      window,
		now:         now,
		categoryTTL: categoryTTL,
	}
}

// StatusFor derives both status indicators for a product at this instant.
// An unparseable expiry date reports as expired rather than valid; the
// repository rejects such records on ingress, so this only guards local data.
func (s *InventoryService) StatusFor(p *models.Product) (status.StockStatus, status.ExpiryStatus) {
	stock := status.ForStock(p.StockQuantity, s.effectiveThreshold(p))
	expiry, err := p.ExpiryTime()
	if err != nil {
		return stock, status.ExpiryExpired
	}
	return stock, status.ForExpiryWindow(expiry, s.now(), s.window)
}

func (s *InventoryService) effectiveThreshold(p *models.Product) int {
	if p.MinimumStockThreshold > 0 {
		return p.MinimumStockThreshold
	}
	return s.threshold
}

// ListProducts evaluates a filter spec and returns the collection the console
// should render. The low-stock and expiring-soon shortcuts delegate to the
// server's dedicated endpoints; every other predicate is applied locally and
// conjunctively. A failed fetch is returned as an error, never as an empty
// list.
//
// Only the raw upstream collection is cached, keyed by the fetch route. The
// client-side predicates run on every read: the status buckets depend on
// "now", so a filtered result must never outlive the render pass that
// computed it.
func (s *InventoryService) ListProducts(ctx context.Context, spec models.FilterSpec) ([]models.Product, error) {
	key := spec.RouteKey()
	products, ok := s.cache.GetList(key)
	if !ok {
		gen := s.cache.Generation()

		var err error
		switch key {
		case models.RouteLowStock:
			products, err = s.repo.GetLowStock(ctx)
		case models.RouteExpiring:
			products, err = s.repo.GetExpiring(ctx)
		default:
			products, err = s.repo.GetAll(ctx)
		}
		if err != nil {
			return nil, fmt.Errorf("failed to fetch products: %w", err)
		}
		s.cache.PutList(key, gen, products)
	}

	return s.applyFilters(products, spec), nil
}

// applyFilters applies the client-side predicates in sequence. All predicates
// are conjunctive, so order does not change the result, and upstream order is
// preserved.
func (s *InventoryService) applyFilters(products []models.Product, spec models.FilterSpec) []models.Product {
	filtered := make([]models.Product, 0, len(products))
	for i := range products {
		p := &products[i]
		if !containsFold(p.Category, spec.Category) {
			continue
		}
		if !containsFold(p.Supplier, spec.Supplier) {
			continue
		}
		if spec.Search != "" &&
			!containsFold(p.Name, spec.Search) &&
			!containsFold(p.Description, spec.Search) {
			continue
		}
		stock, expiry := s.StatusFor(p)
		if !matchesStockBucket(spec.StockStatus, stock) {
			continue
		}
		if !matchesExpiryBucket(spec.ExpiryStatus, expiry) {
			continue
		}
		filtered = append(filtered, *p)
	}
	return filtered
}

func containsFold(haystack, needle string) bool {
	if needle == "" {
		return true
	}
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

func matchesStockBucket(bucket string, st status.StockStatus) bool {
	switch bucket {
	case "", models.BucketAll:
		return true
	case models.BucketInStock:
		return st == status.StockIn
	case models.BucketLowStock:
		return st == status.StockLow
	case models.BucketOutOfStock:
		return st == status.StockOut
	default:
		return true
	}
}

func matchesExpiryBucket(bucket string, st status.ExpiryStatus) bool {
	switch bucket {
	case "", models.BucketAll:
		return true
	case models.BucketExpired:
		return st == status.ExpiryExpired
	case models.BucketExpiringSoon:
		return st == status.ExpiryExpiringSoon
	case models.BucketValid:
		return st == status.ExpiryValid
	default:
		return true
	}
}

// GetProduct retrieves a single product, serving from the cache when the
// entry has not been invalidated since it was fetched.
func (s *InventoryService) GetProduct(ctx context.Context, id int64) (*models.Product, error) {
	if cached, ok := s.cache.GetProduct(id); ok {
		return cached, nil
	}
	gen := s.cache.Generation()
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.cache.PutProduct(gen, *p)
	return p, nil
}

// CreateProduct validates a submission and creates it upstream. On success
// every cached collection is invalidated so the next read sees the new item.
func (s *InventoryService) CreateProduct(ctx context.Context, input *models.ProductInput) (*models.Product, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}
	m, err := s.tracker.Begin(MutationCreate, 0)
	if err != nil {
		return nil, err
	}
	created, err := s.repo.Create(ctx, input)
	if err != nil {
		s.tracker.Fail(m, err)
		log.Printf("create product failed: %v", err)
		return nil, fmt.Errorf("failed to create product: %w", err)
	}
	s.tracker.Succeed(m)
	s.cache.InvalidateLists()
	s.maybePublishAlert(created)
	return created, nil
}

// UpdateProduct validates a submission and updates the product upstream. On
// success the collections and the product's own cache entry are invalidated.
func (s *InventoryService) UpdateProduct(ctx context.Context, id int64, input *models.ProductInput) (*models.Product, error) {
	if err := s.validateInput(input); err != nil {
		return nil, err
	}
	m, err := s.tracker.Begin(MutationUpdate, id)
	if err != nil {
		return nil, err
	}
	updated, err := s.repo.Update(ctx, id, input)
	if err != nil {
		s.tracker.Fail(m, err)
		log.Printf("update product %d failed: %v", id, err)
		return nil, fmt.Errorf("failed to update product %d: %w", id, err)
	}
	s.tracker.Succeed(m)
	s.cache.InvalidateLists()
	s.cache.InvalidateProduct(id)
	s.maybePublishAlert(updated)
	return updated, nil
}

// DeleteProduct deletes the product upstream and invalidates the cache.
func (s *InventoryService) DeleteProduct(ctx context.Context, id int64) error {
	m, err := s.tracker.Begin(MutationDelete, id)
	if err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		s.tracker.Fail(m, err)
		log.Printf("delete product %d failed: %v", id, err)
		return fmt.Errorf("failed to delete product %d: %w", id, err)
	}
	s.tracker.Succeed(m)
	s.cache.InvalidateLists()
	s.cache.InvalidateProduct(id)
	return nil
}

// MutationState exposes the tracker for the handlers, which report 409 while
// a slot is pending.
func (s *InventoryService) MutationState(kind MutationKind, id int64) MutationState {
	return s.tracker.State(kind, id)
}

// Categories returns the known category names, cached for the configured TTL
// since the set changes slowly.
func (s *InventoryService) Categories(ctx context.Context) ([]string, error) {
	s.catMu.Lock()
	defer s.catMu.Unlock()

	if s.categories != nil && s.now().Sub(s.categoriesA) < s.categoryTTL {
		return s.categories, nil
	}
	categories, err := s.repo.GetCategories(ctx)
	if err != nil {
		if s.categories != nil {
			// Serve the stale set rather than blanking the filter options.
			log.Printf("refreshing categories failed, serving cached set: %v", err)
			return s.categories, nil
		}
		return nil, fmt.Errorf("failed to fetch categories: %w", err)
	}
	s.categories = categories
	s.categoriesA = s.now()
	return categories, nil
}

func (s *InventoryService) validateInput(input *models.ProductInput) error {
	err := s.validate.Struct(input)
	if err == nil {
		return nil
	}
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("failed to validate product input: %w", err)
	}
	fields := make(map[string]string, len(verrs))
	for _, fe := range verrs {
		fields[fieldName(fe.Field())] = messageFor(fe)
	}
	return &ValidationError{Fields: fields}
}

func fieldName(structField string) string {
	if structField == "" {
		return structField
	}
	return strings.ToLower(structField[:1]) + structField[1:]
}

func messageFor(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "gt":
		return fmt.Sprintf("must be greater than %s", fe.Param())
	case "gte":
		return fmt.Sprintf("must be at least %s", fe.Param())
	case "max":
		return fmt.Sprintf("must be at most %s characters", fe.Param())
	case "datetime":
		return "must be a date in YYYY-MM-DD form"
	default:
		return fmt.Sprintf("failed %s validation", fe.Tag())
	}
}

// maybePublishAlert sends a stock alert when the mutated product sits at or
// below its threshold. Alert failures are logged, never surfaced; the
// mutation itself already succeeded.
func (s *InventoryService) maybePublishAlert(p *models.Product) {
	if s.alerts == nil {
		return
	}
	stock := status.ForStock(p.StockQuantity, s.effectiveThreshold(p))
	if stock == status.StockIn {
		return
	}
	alert := map[string]interface{}{
		"product_id":     p.ID,
		"name":           p.Name,
		"stock_quantity": p.StockQuantity,
		"threshold":      s.effectiveThreshold(p),
		"status":         string(stock),
	}
	if err := s.alerts.PublishStockAlert(alert); err != nil {
		log.Printf("failed to publish stock alert for product %d: %v", p.ID, err)
	}
}
