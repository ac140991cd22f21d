package handlers

import (
	"errors"
	"log"
	"strconv"

	"apotek/internal/models"
	"apotek/internal/repositories"
	"apotek/internal/services"
	"apotek/internal/status"

	"github.com/gofiber/fiber/v2"
)

// ProductHandler exposes the console's product endpoints.
type ProductHandler struct {
	service *services.InventoryService
}

// NewProductHandler creates a new ProductHandler.
func NewProductHandler(service *services.InventoryService) *ProductHandler {
	return &ProductHandler{
		service: service,
	}
}

// RegisterRoutes registers the product routes. Reads are open; the mutation
// routes go through the supplied auth guard.
func (h *ProductHandler) RegisterRoutes(router fiber.Router, requireAuth fiber.Handler) {
	products := router.Group("/products")
	products.Get("/", h.HandleListProducts)
	products.Get("/:id", h.HandleGetProduct)
	products.Post("/", requireAuth, h.HandleCreateProduct)
	products.Put("/:id", requireAuth, h.HandleUpdateProduct)
	products.Delete("/:id", requireAuth, h.HandleDeleteProduct)

	router.Get("/categories", h.HandleGetCategories)
}

// productRow is a product annotated with both derived status indicators,
// computed at render time.
type productRow struct {
	models.Product
	StockStatus  status.StockStatus  `json:"stockStatus"`
	ExpiryStatus status.ExpiryStatus `json:"expiryStatus"`
}

// HandleListProducts evaluates the filter params and returns the annotated
// rows. An upstream fetch failure is a 502, never an empty 200, so the
// console can tell "no matches" from "fetch failed".
func (h *ProductHandler) HandleListProducts(c *fiber.Ctx) error {
	spec := models.FilterSpec{
		Search:           c.Query("search"),
		Category:         c.Query("category"),
		Supplier:         c.Query("supplier"),
		StockStatus:      c.Query("stockStatus"),
		ExpiryStatus:     c.Query("expiryStatus"),
		LowStockOnly:     c.QueryBool("lowStock"),
		ExpiringSoonOnly: c.QueryBool("expiringSoon"),
	}

	products, err := h.service.ListProducts(c.Context(), spec)
	if err != nil {
		log.Printf("Error listing products: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"message": "Could not retrieve products from the inventory API",
		})
	}

	rows := make([]productRow, 0, len(products))
	for i := range products {
		stock, expiry := h.service.StatusFor(&products[i])
		rows = append(rows, productRow{Product: products[i], StockStatus: stock, ExpiryStatus: expiry})
	}
	return c.JSON(rows)
}

// HandleGetProduct returns a single annotated product.
func (h *ProductHandler) HandleGetProduct(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Product id must be an integer",
		})
	}

	product, err := h.service.GetProduct(c.Context(), id)
	if err != nil {
		return h.renderError(c, err, "Could not retrieve product")
	}
	stock, expiry := h.service.StatusFor(product)
	return c.JSON(productRow{Product: *product, StockStatus: stock, ExpiryStatus: expiry})
}

// HandleCreateProduct validates and creates a product.
func (h *ProductHandler) HandleCreateProduct(c *fiber.Ctx) error {
	var input models.ProductInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
		})
	}

	created, err := h.service.CreateProduct(c.Context(), &input)
	if err != nil {
		return h.renderError(c, err, "Could not create product")
	}
	return c.Status(fiber.StatusCreated).JSON(created)
}

// HandleUpdateProduct validates and updates a product.
func (h *ProductHandler) HandleUpdateProduct(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Product id must be an integer",
		})
	}
	var input models.ProductInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Invalid request body",
		})
	}

	updated, err := h.service.UpdateProduct(c.Context(), id, &input)
	if err != nil {
		return h.renderError(c, err, "Could not update product")
	}
	return c.JSON(updated)
}

// HandleDeleteProduct deletes a product.
func (h *ProductHandler) HandleDeleteProduct(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"message": "Product id must be an integer",
		})
	}

	if err := h.service.DeleteProduct(c.Context(), id); err != nil {
		return h.renderError(c, err, "Could not delete product")
	}
	return c.JSON(fiber.Map{
		"message": "Product deleted successfully",
	})
}

// HandleGetCategories returns the category names for the filter options.
func (h *ProductHandler) HandleGetCategories(c *fiber.Ctx) error {
	categories, err := h.service.Categories(c.Context())
	if err != nil {
		log.Printf("Error listing categories: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"message": "Could not retrieve categories from the inventory API",
		})
	}
	return c.JSON(categories)
}

// renderError maps the service error taxonomy onto status codes: field
// validation 422, duplicate in-flight mutation 409, unknown product 404,
// everything else is an upstream failure.
func (h *ProductHandler) renderError(c *fiber.Ctx, err error, message string) error {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"message": "Validation failed",
			"fields":  verr.Fields,
		})
	}
	if errors.Is(err, services.ErrMutationPending) {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"message": "A change for this product is already in flight",
		})
	}
	if errors.Is(err, repositories.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"message": "Product not found",
		})
	}
	log.Printf("%s: %v", message, err)
	return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
		"message": message,
	})
}

func parseID(c *fiber.Ctx) (int64, error) {
	return strconv.ParseInt(c.Params("id"), 10, 64)
}
