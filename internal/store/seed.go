package store

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/crypto/bcrypt"

	"retailpos/backend/internal/domain"
)

// Demo data loaded by the in-memory store and by `migrate -seed`.
var (
	DemoLocations = []domain.StoreLocation{
		{ID: "store-main", Name: "Main Street", Active: true},
		{ID: "store-north", Name: "North Mall", Active: true},
	}
	DemoSuppliers = []domain.Supplier{
		{ID: "sup-dairy", Name: "Valley Dairy Co", Active: true},
		{ID: "sup-bakery", Name: "Stone Oven Bakery", Active: true},
	}
	DemoProducts = []domain.Product{
		{ID: "prod-milk-1l", Name: "Whole Milk 1L", LotTrackingEnabled: true, QuantityPrecision: 0, SaleMode: domain.SaleModeUnit, Active: true},
		{ID: "prod-yogurt", Name: "Greek Yogurt 500g", LotTrackingEnabled: true, QuantityPrecision: 0, SaleMode: domain.SaleModeUnit, Active: true},
		{ID: "prod-bread", Name: "Sourdough Loaf", QuantityPrecision: 0, SaleMode: domain.SaleModeUnit, Active: true},
		{ID: "prod-coffee", Name: "Coffee Beans (kg)", QuantityPrecision: 3, SaleMode: domain.SaleModeWeight, Active: true},
		{ID: "prod-retired", Name: "Discontinued Item", SaleMode: domain.SaleModeUnit, Active: false},
	}
)

// DemoUsers returns the dev accounts with bcrypt-hashed passwords.
// SEED_ADMIN_PASSWORD, SEED_MANAGER_PASSWORD and SEED_CASHIER_PASSWORD
// override the defaults.
func DemoUsers(now time.Time) ([]domain.UserAccount, error) {
	accounts := []struct {
		username string
		password string
		role     string
	}{
		{"admin", envOr("SEED_ADMIN_PASSWORD", "admin123"), domain.RoleAdmin},
		{"manager", envOr("SEED_MANAGER_PASSWORD", "manager123"), domain.RoleManager},
		{"cashier", envOr("SEED_CASHIER_PASSWORD", "cashier123"), domain.RoleCashier},
	}

	users := make([]domain.UserAccount, 0, len(accounts))
	for _, a := range accounts {
		hash, err := bcrypt.GenerateFromPassword([]byte(a.password), bcrypt.DefaultCost)
		if err != nil {
			return nil, fmt.Errorf("hash password for %s: %w", a.username, err)
		}
		users = append(users, domain.UserAccount{
			Username:  a.username,
			Password:  string(hash),
			Role:      a.role,
			Active:    true,
			CreatedAt: now.UTC(),
		})
	}
	return users, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
