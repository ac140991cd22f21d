package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/spf13/viper"
	"github.com/streadway/amqp"

	"apotek/internal/handlers"
	"apotek/internal/middleware"
	"apotek/internal/models"
	"apotek/internal/repositories"
	"apotek/internal/services"
	"apotek/pkg/rabbitmq"
)

// NewApp builds the console server from configuration. When
// INVENTORY_API_URL is empty the in-memory repository stands in for the
// remote API, which is the local development mode.
func NewApp(alerts services.AlertPublisher) (*fiber.App, *services.AuthService, error) {
	viper.SetDefault("APP_PORT", ":8080")
	viper.SetDefault("INVENTORY_API_URL", "")
	viper.SetDefault("INVENTORY_API_TIMEOUT", "10s")
	viper.SetDefault("INVENTORY_API_RETRIES", 1)
	viper.SetDefault("INVENTORY_API_RPS", 20.0)
	viper.SetDefault("JWT_SECRET", "change_me_in_production")
	viper.SetDefault("ADMIN_USERNAME", "admin")
	viper.SetDefault("ADMIN_PASSWORD_HASH", "")
	viper.SetDefault("LOW_STOCK_THRESHOLD", 10)
	viper.SetDefault("EXPIRY_WINDOW_DAYS", 30)
	viper.SetDefault("CATEGORY_CACHE_TTL", "5m")
	viper.AutomaticEnv()

	// --- Repository: remote API or the in-memory stand-in ---
	var productRepo repositories.ProductRepository
	if apiURL := viper.GetString("INVENTORY_API_URL"); apiURL != "" {
		productRepo = repositories.NewAPIProductRepository(repositories.APIConfig{
			BaseURL:           apiURL,
			Timeout:           viper.GetDuration("INVENTORY_API_TIMEOUT"),
			ReadRetries:       viper.GetInt("INVENTORY_API_RETRIES"),
			RequestsPerSecond: viper.GetFloat64("INVENTORY_API_RPS"),
		})
	} else {
		mockRepo := repositories.NewMockProductRepository()
		seedProducts(mockRepo)
		productRepo = mockRepo
	}

	// --- Services ---
	inventoryService := services.NewInventoryService(productRepo, alerts, services.InventoryServiceConfig{
		LowStockThreshold:  viper.GetInt("LOW_STOCK_THRESHOLD"),
		ExpiringSoonWindow: time.Duration(viper.GetInt("EXPIRY_WINDOW_DAYS")) * 24 * time.Hour,
		CategoryCacheTTL:   viper.GetDuration("CATEGORY_CACHE_TTL"),
	})
	passwordHash := viper.GetString("ADMIN_PASSWORD_HASH")
	if passwordHash == "" {
		// Development fallback: admin/admin. Set ADMIN_PASSWORD_HASH in any
		// real deployment.
		var err error
		passwordHash, err = services.HashPassword("admin")
		if err != nil {
			return nil, nil, err
		}
		log.Println("ADMIN_PASSWORD_HASH not set, using development credentials admin/admin")
	}
	authService := services.NewAuthService(
		viper.GetString("ADMIN_USERNAME"),
		passwordHash,
		viper.GetString("JWT_SECRET"),
	)

	// --- Handlers ---
	productHandler := handlers.NewProductHandler(inventoryService)
	authHandler := handlers.NewAuthHandler(authService)

	app := fiber.New()
	app.Use(logger.New())

	apiV1 := app.Group("/api/v1")
	authHandler.RegisterRoutes(apiV1)
	productHandler.RegisterRoutes(apiV1, middleware.AuthRequired(authService))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	return app, authService, nil
}

func main() {
	viper.SetDefault("RABBITMQ_URL", "")
	viper.AutomaticEnv()

	// --- Alert publisher (optional) ---
	var alerts services.AlertPublisher
	var mqClient *rabbitmq.Client
	if mqURL := viper.GetString("RABBITMQ_URL"); mqURL != "" {
		var err error
		mqClient, err = rabbitmq.NewClient(rabbitmq.Config{URL: mqURL})
		if err != nil {
			log.Fatalf("Failed to initialize RabbitMQ client: %v", err)
		}
		defer mqClient.Close()
		alerts = mqClient
	} else {
		log.Println("RABBITMQ_URL not set, stock alerts disabled")
	}

	app, _, err := NewApp(alerts)
	if err != nil {
		log.Fatalf("Failed to build app: %v", err)
	}

	// --- Stock alert consumer ---
	// A real deployment points a notification worker at the queue; running a
	// logging consumer here keeps alerts visible in development.
	if mqClient != nil {
		if err := mqClient.ConsumeStockAlerts(func(msg amqp.Delivery) error {
			log.Printf("Stock alert (tag %d): %s", msg.DeliveryTag, string(msg.Body))
			return nil
		}); err != nil {
			log.Printf("Failed to start stock alert consumer: %v", err)
		}
	}

	appPort := viper.GetString("APP_PORT")
	log.Printf("Starting server on port %s", appPort)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := app.Listen(appPort); err != nil {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	<-quit
	log.Println("Shutting down server...")

	if err := app.Shutdown(); err != nil {
		log.Printf("Error during Fiber shutdown: %v", err)
	}
	log.Println("Server gracefully stopped")
}

// seedProducts populates the in-memory repository for local development.
func seedProducts(repo repositories.ProductRepository) {
	nearExpiry := time.Now().Add(14 * 24 * time.Hour).Format(models.ExpiryDateLayout)
	farExpiry := time.Now().Add(365 * 24 * time.Hour).Format(models.ExpiryDateLayout)

	inputs := []models.ProductInput{
		{Name: "Paracetamol 500mg", Description: "Pain and fever relief", Price: 4.50, StockQuantity: 120, Category: "Analgesics", Supplier: "Acme Pharma", ExpiryDate: farExpiry},
		{Name: "Amoxicillin 250mg", Description: "Broad-spectrum antibiotic", Price: 12.00, StockQuantity: 8, Category: "Antibiotics", Supplier: "MediSupply", ExpiryDate: farExpiry, MinimumStockThreshold: 15},
		{Name: "Vitamin C 1000mg", Description: "Immune support", Price: 7.25, StockQuantity: 40, Category: "Vitamins", Supplier: "NutriWell", ExpiryDate: nearExpiry},
	}

	for i := range inputs {
		created, err := repo.Create(context.Background(), &inputs[i])
		if err != nil {
			log.Printf("Error seeding product %s: %v", inputs[i].Name, err)
			continue
		}
		log.Printf("Seeded product: %s (ID: %d)", created.Name, created.ID)
	}
}
