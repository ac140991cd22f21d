package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"apotek/internal/handlers"
	"apotek/internal/middleware"
	"apotek/internal/models"
	"apotek/internal/repositories"
	"apotek/internal/services"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

// fakeInventoryAPI simulates the remote inventory API: snake_case field
// names, price transmitted as a decimal string, dedicated low-stock and
// expiring endpoints. It can be told to fail so error paths are reachable.
type fakeInventoryAPI struct {
	mu       sync.Mutex
	products map[int64]map[string]interface{}
	order    []int64
	nextID   int64
	failAll  bool
	hits     int
}

func newFakeInventoryAPI() *fakeInventoryAPI {
	return &fakeInventoryAPI{
		products: make(map[int64]map[string]interface{}),
		nextID:   1,
	}
}

func (f *fakeInventoryAPI) add(name, description, category, supplier, expiry string, price float64, quantity int) int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.nextID
	f.nextID++
	f.products[id] = map[string]interface{}{
		"id":             id,
		"name":           name,
		"description":    description,
		"category":       category,
		"supplier":       supplier,
		"expiry_date":    expiry,
		"price":          fmt.Sprintf("%.2f", price), // string on purpose
		"stock_quantity": quantity,
	}
	f.order = append(f.order, id)
	return id
}

func (f *fakeInventoryAPI) list(pred func(map[string]interface{}) bool) []map[string]interface{} {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]interface{}, 0, len(f.order))
	for _, id := range f.order {
		p, ok := f.products[id]
		if ok && (pred == nil || pred(p)) {
			out = append(out, p)
		}
	}
	return out
}

func (f *fakeInventoryAPI) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		f.hits++
		fail := f.failAll
		f.mu.Unlock()
		if fail {
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		path := strings.TrimSuffix(r.URL.Path, "/")
		switch {
		case path == "/products" && r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(f.list(nil))
		case path == "/products/low-stock" && r.Method == http.MethodGet:
			json.NewEncoder(w).Encode(f.list(func(p map[string]interface{}) bool {
				return num(p["stock_quantity"]) <= 10
			}))
		case path == "/products/expiring" && r.Method == http.MethodGet:
			limit := time.Now().Add(30 * 24 * time.Hour).Format(models.ExpiryDateLayout)
			json.NewEncoder(w).Encode(f.list(func(p map[string]interface{}) bool {
				return p["expiry_date"].(string) < limit
			}))
		case path == "/categories" && r.Method == http.MethodGet:
			seen := map[string]bool{}
			categories := []string{}
			for _, p := range f.list(nil) {
				c := p["category"].(string)
				if !seen[c] {
					seen[c] = true
					categories = append(categories, c)
				}
			}
			json.NewEncoder(w).Encode(categories)
		case path == "/products" && r.Method == http.MethodPost:
			body, _ := io.ReadAll(r.Body)
			var payload map[string]interface{}
			json.Unmarshal(body, &payload)
			id := f.add(
				str(payload["name"]), str(payload["description"]),
				str(payload["category"]), str(payload["supplier"]),
				str(payload["expiry_date"]),
				num(payload["price"]), int(num(payload["stock_quantity"])),
			)
			w.WriteHeader(http.StatusCreated)
			f.mu.Lock()
			json.NewEncoder(w).Encode(f.products[id])
			f.mu.Unlock()
		case strings.HasPrefix(path, "/products/"):
			id, err := strconv.ParseInt(strings.TrimPrefix(path, "/products/"), 10, 64)
			if err != nil {
				http.NotFound(w, r)
				return
			}
			f.mu.Lock()
			p, ok := f.products[id]
			f.mu.Unlock()
			if !ok {
				http.NotFound(w, r)
				return
			}
			switch r.Method {
			case http.MethodGet:
				json.NewEncoder(w).Encode(p)
			case http.MethodPut:
				body, _ := io.ReadAll(r.Body)
				var payload map[string]interface{}
				json.Unmarshal(body, &payload)
				f.mu.Lock()
				for k, v := range payload {
					p[k] = v
				}
				json.NewEncoder(w).Encode(p)
				f.mu.Unlock()
			case http.MethodDelete:
				f.mu.Lock()
				delete(f.products, id)
				f.mu.Unlock()
				w.WriteHeader(http.StatusNoContent)
			default:
				http.NotFound(w, r)
			}
		default:
			http.NotFound(w, r)
		}
	})
}

func str(v interface{}) string {
	s, _ := v.(string)
	return s
}

func num(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int:
		return float64(n)
	case string:
		f, _ := strconv.ParseFloat(n, 64)
		return f
	default:
		return 0
	}
}

// setupApp wires a Fiber app against the fake remote API.
func setupApp(t *testing.T, upstream *httptest.Server) (*fiber.App, string) {
	t.Helper()

	repo := repositories.NewAPIProductRepository(repositories.APIConfig{
		BaseURL:     upstream.URL,
		Timeout:     2 * time.Second,
		ReadRetries: 0,
	})
	inventoryService := services.NewInventoryService(repo, nil, services.InventoryServiceConfig{})

	hash, err := services.HashPassword("dispense123")
	assert.NoError(t, err)
	authService := services.NewAuthService("pharmacist", hash, "test_jwt_secret")

	app := fiber.New()
	apiV1 := app.Group("/api/v1")
	handlers.NewAuthHandler(authService).RegisterRoutes(apiV1)
	handlers.NewProductHandler(inventoryService).RegisterRoutes(apiV1, middleware.AuthRequired(authService))

	// Log in once; most tests need a token for the mutation routes.
	loginBody, _ := json.Marshal(map[string]string{"username": "pharmacist", "password": "dispense123"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(loginBody))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	assert.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var loginResp map[string]string
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&loginResp))
	resp.Body.Close()

	return app, loginResp["token"]
}

func seededFake() *fakeInventoryAPI {
	far := time.Now().Add(200 * 24 * time.Hour).Format(models.ExpiryDateLayout)
	near := time.Now().Add(5 * 24 * time.Hour).Format(models.ExpiryDateLayout)
	fake := newFakeInventoryAPI()
	fake.add("Paracetamol 500mg", "Pain relief", "Analgesics", "Acme Pharma", far, 4.50, 120)
	fake.add("Vitamin C 1000mg", "Immune support", "Vitamins", "Acme Pharma", near, 7.25, 5)
	fake.add("Amoxicillin 250mg", "Antibiotic", "Antibiotics", "MediSupply", far, 12.00, 60)
	return fake
}

func TestMain(m *testing.M) {
	log.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func doJSON(t *testing.T, app *fiber.App, method, path, token string, payload interface{}) *http.Response {
	t.Helper()
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		assert.NoError(t, err)
		body = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, body)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req, -1)
	assert.NoError(t, err)
	return resp
}

func TestListProductsAnnotatesStatuses(t *testing.T) {
	fake := seededFake()
	upstream := httptest.NewServer(fake.handler())
	defer upstream.Close()
	app, _ := setupApp(t, upstream)

	resp := doJSON(t, app, http.MethodGet, "/api/v1/products", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var rows []map[string]interface{}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	assert.Len(t, rows, 3)

	// Upstream order preserved; statuses derived per row; price coerced from
	// the server's string form to a number.
	assert.Equal(t, "Paracetamol 500mg", rows[0]["name"])
	assert.Equal(t, "inStock", rows[0]["stockStatus"])
	assert.Equal(t, "valid", rows[0]["expiryStatus"])
	assert.Equal(t, 4.50, rows[0]["price"])

	assert.Equal(t, "lowStock", rows[1]["stockStatus"])
	assert.Equal(t, "expiringSoon", rows[1]["expiryStatus"])
}

func TestListProductsFilterParams(t *testing.T) {
	fake := seededFake()
	upstream := httptest.NewServer(fake.handler())
	defer upstream.Close()
	app, _ := setupApp(t, upstream)

	resp := doJSON(t, app, http.MethodGet, "/api/v1/products?category=vita&supplier=acme", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var rows []map[string]interface{}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	assert.Len(t, rows, 1)
	assert.Equal(t, "Vitamin C 1000mg", rows[0]["name"])
}

func TestListProductsUpstreamFailureIsBadGateway(t *testing.T) {
	fake := seededFake()
	fake.failAll = true
	upstream := httptest.NewServer(fake.handler())
	defer upstream.Close()
	app, _ := setupApp(t, upstream)

	resp := doJSON(t, app, http.MethodGet, "/api/v1/products", "", nil)
	defer resp.Body.Close()

	// Distinct from an empty 200: the console can tell failure from no rows.
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
}

func TestCreateUpdateDeleteFlow(t *testing.T) {
	fake := seededFake()
	upstream := httptest.NewServer(fake.handler())
	defer upstream.Close()
	app, token := setupApp(t, upstream)

	far := time.Now().Add(300 * 24 * time.Hour).Format(models.ExpiryDateLayout)
	newProduct := map[string]interface{}{
		"name":          "Ibuprofen 200mg",
		"description":   "Anti-inflammatory",
		"price":         3.75,
		"stockQuantity": 30,
		"category":      "Analgesics",
		"supplier":      "Acme Pharma",
		"expiryDate":    far,
	}

	// Create.
	resp := doJSON(t, app, http.MethodPost, "/api/v1/products", token, newProduct)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var created models.Product
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&created))
	resp.Body.Close()
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Ibuprofen 200mg", created.Name)

	// The list reflects the new item (cache was invalidated).
	resp = doJSON(t, app, http.MethodGet, "/api/v1/products", "", nil)
	var rows []map[string]interface{}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	resp.Body.Close()
	assert.Len(t, rows, 4)

	// Update.
	newProduct["stockQuantity"] = 7
	resp = doJSON(t, app, http.MethodPut, fmt.Sprintf("/api/v1/products/%d", created.ID), token, newProduct)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var updated models.Product
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&updated))
	resp.Body.Close()
	assert.Equal(t, 7, updated.StockQuantity)

	// The refreshed single read shows the new quantity and a low-stock badge.
	resp = doJSON(t, app, http.MethodGet, fmt.Sprintf("/api/v1/products/%d", created.ID), "", nil)
	var row map[string]interface{}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&row))
	resp.Body.Close()
	assert.Equal(t, "lowStock", row["stockStatus"])

	// Delete.
	resp = doJSON(t, app, http.MethodDelete, fmt.Sprintf("/api/v1/products/%d", created.ID), token, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, app, http.MethodGet, fmt.Sprintf("/api/v1/products/%d", created.ID), "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCreateWithZeroPriceIsRejectedBeforeAnyUpstreamCall(t *testing.T) {
	fake := seededFake()
	upstream := httptest.NewServer(fake.handler())
	defer upstream.Close()
	app, token := setupApp(t, upstream)

	fake.mu.Lock()
	before := fake.hits
	fake.mu.Unlock()

	payload := map[string]interface{}{
		"name":          "Free Sample",
		"price":         0,
		"stockQuantity": 10,
		"category":      "Samples",
		"supplier":      "Acme Pharma",
		"expiryDate":    "2030-01-01",
	}
	resp := doJSON(t, app, http.MethodPost, "/api/v1/products", token, payload)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	var body map[string]interface{}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	fields := body["fields"].(map[string]interface{})
	assert.Contains(t, fields, "price")

	fake.mu.Lock()
	after := fake.hits
	fake.mu.Unlock()
	assert.Equal(t, before, after, "validation failure must not reach the network")
}

func TestFailedDeleteKeepsProductInList(t *testing.T) {
	fake := seededFake()
	upstream := httptest.NewServer(fake.handler())
	defer upstream.Close()
	app, token := setupApp(t, upstream)

	// Warm the list, then make the upstream fail the delete.
	resp := doJSON(t, app, http.MethodGet, "/api/v1/products", "", nil)
	resp.Body.Close()
	fake.mu.Lock()
	fake.failAll = true
	fake.mu.Unlock()

	resp = doJSON(t, app, http.MethodDelete, "/api/v1/products/1", token, nil)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	resp.Body.Close()

	fake.mu.Lock()
	fake.failAll = false
	fake.mu.Unlock()

	resp = doJSON(t, app, http.MethodGet, "/api/v1/products", "", nil)
	var rows []map[string]interface{}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	resp.Body.Close()
	assert.Len(t, rows, 3, "the failed delete must not remove the row")
}

func TestMutationRoutesRequireAuth(t *testing.T) {
	fake := seededFake()
	upstream := httptest.NewServer(fake.handler())
	defer upstream.Close()
	app, _ := setupApp(t, upstream)

	resp := doJSON(t, app, http.MethodPost, "/api/v1/products", "", map[string]interface{}{"name": "X"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	resp = doJSON(t, app, http.MethodDelete, "/api/v1/products/1", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()

	// Reads stay open.
	resp = doJSON(t, app, http.MethodGet, "/api/v1/products", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestLowStockShortcutHitsDedicatedEndpoint(t *testing.T) {
	fake := seededFake()
	upstream := httptest.NewServer(fake.handler())
	defer upstream.Close()
	app, _ := setupApp(t, upstream)

	resp := doJSON(t, app, http.MethodGet, "/api/v1/products?lowStock=true", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var rows []map[string]interface{}
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
	assert.Len(t, rows, 1)
	assert.Equal(t, "Vitamin C 1000mg", rows[0]["name"])
}

func TestCategoriesEndpoint(t *testing.T) {
	fake := seededFake()
	upstream := httptest.NewServer(fake.handler())
	defer upstream.Close()
	app, _ := setupApp(t, upstream)

	resp := doJSON(t, app, http.MethodGet, "/api/v1/categories", "", nil)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var categories []string
	assert.NoError(t, json.NewDecoder(resp.Body).Decode(&categories))
	assert.ElementsMatch(t, []string{"Analgesics", "Vitamins", "Antibiotics"}, categories)
}
