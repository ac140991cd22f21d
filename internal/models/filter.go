package models

// Stock-status buckets a filter can ask for.
const (
	BucketAll        = "all"
	BucketInStock    = "inStock"
	BucketLowStock   = "lowStock"
	BucketOutOfStock = "outOfStock"
)

// Expiry-status buckets a filter can ask for.
const (
	BucketExpired      = "expired"
	BucketExpiringSoon = "expiringSoon"
	BucketValid        = "valid"
)

// FilterSpec is the set of predicates currently narrowing the product list.
// Every field is optional; an empty field imposes no constraint. The
// LowStockOnly and ExpiringSoonOnly shortcuts route the fetch to the server's
// dedicated endpoints instead of evaluating the bucket client-side.
type FilterSpec struct {
	Search           string `json:"search"`
	Category         string `json:"category"`
	Supplier         string `json:"supplier"`
	StockStatus      string `json:"stockStatus"`
	ExpiryStatus     string `json:"expiryStatus"`
	LowStockOnly     bool   `json:"lowStockOnly"`
	ExpiringSoonOnly bool   `json:"expiringSoonOnly"`
}

// Cache keys for the three upstream fetch routes.
const (
	RouteAll      = "all"
	RouteLowStock = "low-stock"
	RouteExpiring = "expiring"
)

// RouteKey names the upstream fetch this spec routes to, which is also the
// cache key for the raw collection. The client-side predicates are
// deliberately not part of the key: the status buckets depend on the current
// time, so they are re-applied on every read instead of being baked into a
// cache entry.
func (f FilterSpec) RouteKey() string {
	switch {
	case f.LowStockOnly:
		return RouteLowStock
	case f.ExpiringSoonOnly:
		return RouteExpiring
	default:
		return RouteAll
	}
}
