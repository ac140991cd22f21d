package repositories

import (
	"context"
	"errors"

	"apotek/internal/models"
)

// ErrNotFound is returned when the inventory API has no product for an id.
var ErrNotFound = errors.New("product not found")

// ProductRepository defines access to the product store. The real store is
// the remote inventory API; every call crosses the network and takes a
// context.
type ProductRepository interface {
	GetAll(ctx context.Context) ([]models.Product, error)
	GetByID(ctx context.Context, id int64) (*models.Product, error)
	GetLowStock(ctx context.Context) ([]models.Product, error)
	GetExpiring(ctx context.Context) ([]models.Product, error)
	GetCategories(ctx context.Context) ([]string, error)
	Create(ctx context.Context, input *models.ProductInput) (*models.Product, error)
	Update(ctx context.Context, id int64, input *models.ProductInput) (*models.Product, error)
	Delete(ctx context.Context, id int64) error
}
