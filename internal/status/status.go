// Package status derives stock and expiry indicators for a product.
//
// The two families are independent and additive: a product always has exactly
// one stock status and exactly one expiry status, and both are rendered.
// Threshold comparison is inclusive: a quantity exactly at the minimum
// threshold counts as low stock.
package status

import "time"

// StockStatus classifies a product by remaining quantity.
type StockStatus string

const (
	StockIn  StockStatus = "inStock"
	StockLow StockStatus = "lowStock"
	StockOut StockStatus = "outOfStock"
)

// ExpiryStatus classifies a product by expiry date relative to now.
type ExpiryStatus string

const (
	ExpiryExpired      ExpiryStatus = "expired"
	ExpiryExpiringSoon ExpiryStatus = "expiringSoon"
	ExpiryValid        ExpiryStatus = "valid"
)

// DefaultMinimumStockThreshold applies when a product carries no threshold of
// its own.
const DefaultMinimumStockThreshold = 10

// DefaultExpiringSoonWindow is how far ahead of now an expiry date counts as
// "expiring soon".
const DefaultExpiringSoonWindow = 30 * 24 * time.Hour

// ForStock classifies a quantity against a minimum threshold. A non-positive
// threshold falls back to DefaultMinimumStockThreshold.
func ForStock(quantity, threshold int) StockStatus {
	if threshold <= 0 {
		threshold = DefaultMinimumStockThreshold
	}
	switch {
	case quantity == 0:
		return StockOut
	case quantity <= threshold:
		return StockLow
	default:
		return StockIn
	}
}

// ForExpiry classifies an expiry date relative to now using the default
// window. A date strictly before now is expired; a date from now up to but
// not including now+window is expiring soon.
func ForExpiry(expiry, now time.Time) ExpiryStatus {
	return ForExpiryWindow(expiry, now, DefaultExpiringSoonWindow)
}

// ForExpiryWindow is ForExpiry with an explicit expiring-soon window.
func ForExpiryWindow(expiry, now time.Time, window time.Duration) ExpiryStatus {
	if window <= 0 {
		window = DefaultExpiringSoonWindow
	}
	switch {
	case expiry.Before(now):
		return ExpiryExpired
	case expiry.Before(now.Add(window)):
		return ExpiryExpiringSoon
	default:
		return ExpiryValid
	}
}
