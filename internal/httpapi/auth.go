package httpapi

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"retailpos/backend/internal/apperr"
	"retailpos/backend/internal/domain"
	"retailpos/backend/internal/store"
)

const (
	tokenIssuer = "retailpos"

	minUsernameLength = 4
	minPasswordLength = 6
)

var (
	errInvalidCredentials = errors.New("invalid credentials")
	errInactiveAccount    = errors.New("account is inactive")
	errInvalidToken       = errors.New("invalid or expired token")
)

// AuthManager signs access tokens for till staff and checks the manager PIN
// used to approve expired-lot overrides. Accounts are read from the user
// store into an in-process credential table.
type AuthManager struct {
	mu         sync.RWMutex
	secret     []byte
	tokenTTL   time.Duration
	managerPIN string
	userStore  UserStore
	users      map[string]credential
	now        func() time.Time
}

// UserStore is the slice of the repository the auth layer needs.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

type credential struct {
	hash    string
	role    string
	active  bool
	created time.Time
}

type accessClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, managerPIN string, userStore UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	a := &AuthManager{
		secret:    []byte(secret),
		tokenTTL:  tokenTTL,
		userStore: userStore,
		users:     make(map[string]credential),
		now:       func() time.Time { return time.Now().UTC() },
	}
	// An unset PIN stores no hash, so every approval attempt fails.
	if pin := strings.TrimSpace(managerPIN); pin != "" {
		if hashed, err := hashPassword(pin); err == nil {
			a.managerPIN = hashed
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a.refreshCredentials(ctx)
	return a
}

// Login exchanges a till login for a bearer token that carries the account
// role. Usernames are case-insensitive.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	a.refreshCredentials(ctx)
	username := normalizeUsername(req.Username)

	cred, ok := a.lookup(username)
	if !ok || !verifyPassword(cred.hash, req.Password) {
		return domain.LoginResponse{}, errInvalidCredentials
	}
	if !cred.active {
		return domain.LoginResponse{}, errInactiveAccount
	}

	issuedAt := a.now()
	expiresAt := issuedAt.Add(a.tokenTTL)
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   username,
			Issuer:    tokenIssuer,
			IssuedAt:  jwtlib.NewNumericDate(issuedAt),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		Role: cred.role,
	}).SignedString(a.secret)
	if err != nil {
		return domain.LoginResponse{}, err
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        cred.role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// ParseToken turns a bearer token back into the acting user. The token must
// be HS256, issued here, carry an expiry and name a subject.
func (a *AuthManager) ParseToken(raw string) (domain.Actor, error) {
	var claims accessClaims
	_, err := jwtlib.ParseWithClaims(raw, &claims,
		func(*jwtlib.Token) (any, error) { return a.secret, nil },
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(tokenIssuer),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil {
		return domain.Actor{}, errInvalidToken
	}
	if claims.Subject == "" || claims.Role == "" {
		return domain.Actor{}, errInvalidToken
	}
	return domain.Actor{Username: claims.Subject, Role: claims.Role}, nil
}

// ValidateManagerPIN reports whether pin approves a manager-only action on
// a cashier's till.
func (a *AuthManager) ValidateManagerPIN(pin string) bool {
	pin = strings.TrimSpace(pin)
	if pin == "" || a.managerPIN == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(a.managerPIN), []byte(pin)) == nil
}

// CreateCashier registers a new till account with the cashier role.
func (a *AuthManager) CreateCashier(ctx context.Context, req domain.CashierCreateRequest) (domain.CashierUser, error) {
	a.refreshCredentials(ctx)
	username := normalizeUsername(req.Username)
	if err := validateCashierInput(username, req.Password); err != nil {
		return domain.CashierUser{}, err
	}
	if _, exists := a.lookup(username); exists {
		return domain.CashierUser{}, apperr.Conflict("username already exists: %s", username)
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		return domain.CashierUser{}, err
	}
	account := domain.UserAccount{
		Username:  username,
		Password:  hash,
		Role:      domain.RoleCashier,
		Active:    true,
		CreatedAt: a.now(),
	}
	if a.userStore != nil {
		err := a.userStore.CreateUser(ctx, account)
		if errors.Is(err, store.ErrDuplicate) {
			return domain.CashierUser{}, apperr.Conflict("username already exists: %s", username)
		}
		if err != nil {
			return domain.CashierUser{}, err
		}
	}

	a.mu.Lock()
	a.users[username] = credentialFor(account, hash)
	a.mu.Unlock()

	return domain.CashierUser{
		Username:  account.Username,
		Role:      account.Role,
		Active:    account.Active,
		CreatedAt: account.CreatedAt,
	}, nil
}

// ListCashiers returns cashier accounts ordered by username.
func (a *AuthManager) ListCashiers(ctx context.Context) []domain.CashierUser {
	a.refreshCredentials(ctx)

	a.mu.RLock()
	cashiers := make([]domain.CashierUser, 0, len(a.users))
	for username, cred := range a.users {
		if cred.role != domain.RoleCashier {
			continue
		}
		cashiers = append(cashiers, domain.CashierUser{
			Username:  username,
			Role:      cred.role,
			Active:    cred.active,
			CreatedAt: cred.created,
		})
	}
	a.mu.RUnlock()

	slices.SortFunc(cashiers, func(x, y domain.CashierUser) int {
		return strings.Compare(x.Username, y.Username)
	})
	return cashiers
}

func (a *AuthManager) lookup(username string) (credential, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	cred, ok := a.users[username]
	return cred, ok
}

// refreshCredentials reloads accounts from the user store. Seeded accounts
// with a plain-text password are hashed and written back.
func (a *AuthManager) refreshCredentials(ctx context.Context) {
	if a.userStore == nil {
		return
	}
	accounts, err := a.userStore.ListUsers(ctx)
	if err != nil || len(accounts) == 0 {
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, account := range accounts {
		username := normalizeUsername(account.Username)
		if username == "" {
			continue
		}
		a.users[username] = credentialFor(account, a.upgradeLegacyPassword(ctx, username, account.Password))
	}
}

func (a *AuthManager) upgradeLegacyPassword(ctx context.Context, username string, stored string) string {
	if isPasswordHash(stored) {
		return stored
	}
	hashed, err := hashPassword(stored)
	if err != nil {
		return stored
	}
	_ = a.userStore.UpdateUserPassword(ctx, username, hashed)
	return hashed
}

func credentialFor(account domain.UserAccount, hash string) credential {
	return credential{
		hash:    hash,
		role:    account.Role,
		active:  account.Active,
		created: account.CreatedAt,
	}
}

func validateCashierInput(username string, password string) error {
	if len(username) < minUsernameLength {
		return apperr.Invalid("username must be at least %d characters", minUsernameLength)
	}
	if strings.ContainsAny(username, " \t\r\n") {
		return apperr.Invalid("username must not contain spaces")
	}
	if len(strings.TrimSpace(password)) < minPasswordLength {
		return apperr.Invalid("password must be at least %d characters", minPasswordLength)
	}
	return nil
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func verifyPassword(hash string, input string) bool {
	if strings.TrimSpace(input) == "" || !isPasswordHash(hash) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(input)) == nil
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

func isPasswordHash(value string) bool {
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(value, prefix) {
			return true
		}
	}
	return false
}
