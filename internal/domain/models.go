package domain

import (
	"strings"
	"time"
)

const (
	RoleCashier = "cashier"
	RoleManager = "manager"
	RoleAdmin   = "admin"

	SystemActor = "system"
)

type SaleMode string

const (
	SaleModeUnit   SaleMode = "UNIT"
	SaleModeWeight SaleMode = "WEIGHT"
)

type Product struct {
	ID                 string   `json:"id"`
	Name               string   `json:"name"`
	LotTrackingEnabled bool     `json:"lot_tracking_enabled"`
	QuantityPrecision  int32    `json:"quantity_precision"`
	SaleMode           SaleMode `json:"sale_mode"`
	Active             bool     `json:"active"`
}

type StoreLocation struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type Supplier struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type UserAccount struct {
	Username  string
	Password  string
	Role      string
	Active    bool
	CreatedAt time.Time
}

type CashierCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type CashierUser struct {
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Actor is the authenticated principal behind a request. ManagerApproved is
// set when a manager PIN was presented alongside a cashier token.
type Actor struct {
	Username        string
	Role            string
	ManagerApproved bool
}

// Name falls back to "system" for unauthenticated internal calls.
func (a Actor) Name() string {
	name := strings.TrimSpace(a.Username)
	if name == "" {
		return SystemActor
	}
	return name
}

func (a Actor) IsManager() bool {
	return a.Role == RoleManager || a.Role == RoleAdmin
}

func (a Actor) CanOverrideExpiry() bool {
	return a.IsManager() || a.ManagerApproved
}
