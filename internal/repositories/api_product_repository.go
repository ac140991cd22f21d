package repositories

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"apotek/internal/models"
	"apotek/internal/translate"

	"golang.org/x/time/rate"
)

// APIConfig holds connection details for the remote inventory API.
type APIConfig struct {
	BaseURL string
	// Timeout applies per HTTP request. Zero means 10s.
	Timeout time.Duration
	// ReadRetries is how many extra attempts a failed GET gets. Mutations
	// are never retried automatically.
	ReadRetries int
	// RequestsPerSecond caps outgoing calls. Zero means no limit.
	RequestsPerSecond float64
}

// APIProductRepository implements ProductRepository over the remote inventory
// API's REST endpoints. All payloads cross the field translator in both
// directions, so the rest of the console only ever sees camelCase records.
type APIProductRepository struct {
	baseURL     string
	client      *http.Client
	limiter     *rate.Limiter
	readRetries int
}

// NewAPIProductRepository creates a repository talking to the given API.
func NewAPIProductRepository(cfg APIConfig) *APIProductRepository {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	readRetries := cfg.ReadRetries
	if readRetries < 0 {
		readRetries = 0
	}
	return &APIProductRepository{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		client:      &http.Client{Timeout: timeout},
		limiter:     limiter,
		readRetries: readRetries,
	}
}

// GetAll retrieves the full product collection.
func (r *APIProductRepository) GetAll(ctx context.Context) ([]models.Product, error) {
	return r.getList(ctx, "/products")
}

// GetLowStock retrieves the server's pre-filtered low-stock collection.
func (r *APIProductRepository) GetLowStock(ctx context.Context) ([]models.Product, error) {
	return r.getList(ctx, "/products/low-stock")
}

// GetExpiring retrieves the server's pre-filtered expiring collection.
func (r *APIProductRepository) GetExpiring(ctx context.Context) ([]models.Product, error) {
	return r.getList(ctx, "/products/expiring")
}

// GetByID retrieves a single product.
func (r *APIProductRepository) GetByID(ctx context.Context, id int64) (*models.Product, error) {
	body, err := r.doRead(ctx, fmt.Sprintf("/products/%d", id))
	if err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("failed to decode product %d: %w", id, err)
	}
	return decodeProduct(raw)
}

// GetCategories retrieves the known category names.
func (r *APIProductRepository) GetCategories(ctx context.Context) ([]string, error) {
	body, err := r.doRead(ctx, "/categories")
	if err != nil {
		return nil, err
	}
	var categories []string
	if err := json.Unmarshal(body, &categories); err != nil {
		return nil, fmt.Errorf("failed to decode categories: %w", err)
	}
	return categories, nil
}

// Create submits a new product and returns the created record.
func (r *APIProductRepository) Create(ctx context.Context, input *models.ProductInput) (*models.Product, error) {
	return r.write(ctx, http.MethodPost, "/products", input)
}

// Update submits changed fields for an existing product.
func (r *APIProductRepository) Update(ctx context.Context, id int64, input *models.ProductInput) (*models.Product, error) {
	return r.write(ctx, http.MethodPut, fmt.Sprintf("/products/%d", id), input)
}

// Delete removes a product.
func (r *APIProductRepository) Delete(ctx context.Context, id int64) error {
	resp, err := r.do(ctx, http.MethodDelete, fmt.Sprintf("/products/%d", id), nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("delete product %d: %w", id, ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("delete product %d: unexpected status %d", id, resp.StatusCode)
	}
	return nil
}

func (r *APIProductRepository) getList(ctx context.Context, path string) ([]models.Product, error) {
	body, err := r.doRead(ctx, path)
	if err != nil {
		return nil, err
	}
	var raws []map[string]interface{}
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, fmt.Errorf("failed to decode product list from %s: %w", path, err)
	}
	products := make([]models.Product, 0, len(raws))
	for _, raw := range raws {
		p, err := decodeProduct(raw)
		if err != nil {
			return nil, fmt.Errorf("malformed record in %s: %w", path, err)
		}
		products = append(products, *p)
	}
	return products, nil
}

// doRead performs a GET with the configured number of retries. Only network
// failures and 5xx responses are retried; a 404 is final.
func (r *APIProductRepository) doRead(ctx context.Context, path string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt <= r.readRetries; attempt++ {
		resp, err := r.do(ctx, http.MethodGet, path, nil)
		if err != nil {
			lastErr = err
			continue
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("failed to read response from %s: %w", path, err)
			continue
		}
		switch {
		case resp.StatusCode == http.StatusNotFound:
			return nil, fmt.Errorf("GET %s: %w", path, ErrNotFound)
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("GET %s: server error %d", path, resp.StatusCode)
			continue
		case resp.StatusCode >= 300:
			return nil, fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
		}
		return body, nil
	}
	return nil, lastErr
}

func (r *APIProductRepository) write(ctx context.Context, method, path string, input *models.ProductInput) (*models.Product, error) {
	payload, err := inputToServerPayload(input)
	if err != nil {
		return nil, err
	}
	resp, err := r.do(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrNotFound)
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}
	var raw map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("failed to decode response from %s %s: %w", method, path, err)
	}
	return decodeProduct(raw)
}

func (r *APIProductRepository) do(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to build request for %s %s: %w", method, path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("inventory API unreachable (%s %s): %w", method, path, err)
	}
	return resp, nil
}

// inputToServerPayload marshals a submission through the field translator so
// the wire carries the server's snake_case names.
func inputToServerPayload(input *models.ProductInput) ([]byte, error) {
	clientJSON, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal product input: %w", err)
	}
	var clientMap map[string]interface{}
	if err := json.Unmarshal(clientJSON, &clientMap); err != nil {
		return nil, fmt.Errorf("failed to remap product input: %w", err)
	}
	return json.Marshal(translate.ToServer(clientMap))
}

// decodeProduct translates a raw server record to the client convention and
// checks the minimal schema the console depends on. Records missing an id or
// name, or with an unparseable expiry date, are rejected rather than passed
// on with holes.
func decodeProduct(raw map[string]interface{}) (*models.Product, error) {
	clientJSON, err := json.Marshal(translate.ToClient(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode product record: %w", err)
	}
	var p models.Product
	if err := json.Unmarshal(clientJSON, &p); err != nil {
		return nil, fmt.Errorf("failed to decode product record: %w", err)
	}
	if p.ID == 0 {
		return nil, fmt.Errorf("product record has no id")
	}
	if p.Name == "" {
		return nil, fmt.Errorf("product record %d has no name", p.ID)
	}
	if _, err := p.ExpiryTime(); err != nil {
		return nil, fmt.Errorf("product record %d: %w", p.ID, err)
	}
	return &p, nil
}
