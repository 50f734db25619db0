package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"laundrypos/backend/internal/domain"
	"laundrypos/backend/internal/xid"
)

const (
	roleAdmin   = "admin"
	roleCashier = "cashier"

	tokenIssuer = "laundrypos"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInactiveAccount    = errors.New("account is inactive")
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// UserStore persists back-office accounts. Passwords are stored as bcrypt
// hashes; plain values found on load are rehashed and written back.
type UserStore interface {
	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}

// AuthManager issues and verifies access tokens for back-office staff and
// holds the hashed manager PIN.
type AuthManager struct {
	secret     []byte
	tokenTTL   time.Duration
	managerPIN []byte
	users      UserStore

	mu       sync.RWMutex
	accounts map[string]domain.UserAccount
}

type accessClaims struct {
	jwtlib.RegisteredClaims
	Role string `json:"role"`
}

func NewAuthManager(secret string, tokenTTL time.Duration, managerPIN string, users UserStore) *AuthManager {
	if secret == "" {
		secret = "dev-change-me"
	}
	if tokenTTL <= 0 {
		tokenTTL = 8 * time.Hour
	}

	a := &AuthManager{
		secret:   []byte(secret),
		tokenTTL: tokenTTL,
		users:    users,
		accounts: make(map[string]domain.UserAccount),
	}
	// An unset PIN keeps managerPIN empty, which fails every check.
	if pin := strings.TrimSpace(managerPIN); pin != "" {
		hashed, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
		if err != nil {
			log.Printf("[auth] WARN: hashing manager pin failed: %v", err)
		} else {
			a.managerPIN = hashed
		}
	}
	a.refreshAccounts(context.Background())
	return a
}

// Login reloads accounts from the user store first so that cashiers created
// by another instance can sign in.
func (a *AuthManager) Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error) {
	a.refreshAccounts(ctx)

	username := normalizeUsername(req.Username)
	account, ok := a.account(username)
	if !ok || !passwordMatches(account.Password, req.Password) {
		return domain.LoginResponse{}, ErrInvalidCredentials
	}
	if !account.Active {
		return domain.LoginResponse{}, ErrInactiveAccount
	}

	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(a.tokenTTL)
	claims := accessClaims{
		RegisteredClaims: jwtlib.RegisteredClaims{
			ID:        xid.New("tok"),
			Subject:   username,
			Issuer:    tokenIssuer,
			IssuedAt:  jwtlib.NewNumericDate(issuedAt),
			ExpiresAt: jwtlib.NewNumericDate(expiresAt),
		},
		Role: account.Role,
	}
	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return domain.LoginResponse{}, fmt.Errorf("sign token: %w", err)
	}

	return domain.LoginResponse{
		AccessToken: token,
		Role:        account.Role,
		ExpiresAt:   expiresAt.Format(time.RFC3339),
	}, nil
}

// ParseToken verifies signature, issuer and expiry and returns the actor the
// token was issued to.
func (a *AuthManager) ParseToken(raw string) (domain.Actor, error) {
	claims := &accessClaims{}
	_, err := jwtlib.ParseWithClaims(raw, claims,
		func(*jwtlib.Token) (any, error) { return a.secret, nil },
		jwtlib.WithValidMethods([]string{jwtlib.SigningMethodHS256.Alg()}),
		jwtlib.WithIssuer(tokenIssuer),
		jwtlib.WithExpirationRequired(),
	)
	if err != nil {
		return domain.Actor{}, ErrInvalidToken
	}
	if claims.Subject == "" || (claims.Role != roleAdmin && claims.Role != roleCashier) {
		return domain.Actor{}, ErrInvalidToken
	}
	return domain.Actor{Username: claims.Subject, Role: claims.Role}, nil
}

func (a *AuthManager) ValidateManagerPIN(pin string) bool {
	input := strings.TrimSpace(pin)
	if input == "" || len(a.managerPIN) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(a.managerPIN, []byte(input)) == nil
}

func (a *AuthManager) CreateCashier(ctx context.Context, req domain.CashierCreateRequest) (domain.CashierUser, error) {
	a.refreshAccounts(ctx)

	username, err := validateCashier(req)
	if err != nil {
		return domain.CashierUser{}, err
	}
	if _, exists := a.account(username); exists {
		return domain.CashierUser{}, fmt.Errorf("username %s already exists", username)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return domain.CashierUser{}, fmt.Errorf("hash password: %w", err)
	}
	account := domain.UserAccount{
		Username:  username,
		Password:  string(hashed),
		Role:      roleCashier,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if a.users != nil {
		if err := a.users.CreateUser(ctx, account); err != nil {
			return domain.CashierUser{}, err
		}
	}

	a.mu.Lock()
	a.accounts[username] = account
	a.mu.Unlock()
	return toCashier(account), nil
}

func (a *AuthManager) ListCashiers(ctx context.Context) []domain.CashierUser {
	a.refreshAccounts(ctx)

	a.mu.RLock()
	result := make([]domain.CashierUser, 0, len(a.accounts))
	for _, account := range a.accounts {
		if account.Role == roleCashier {
			result = append(result, toCashier(account))
		}
	}
	a.mu.RUnlock()

	slices.SortFunc(result, func(x, y domain.CashierUser) int { return strings.Compare(x.Username, y.Username) })
	return result
}

func (a *AuthManager) account(username string) (domain.UserAccount, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	account, ok := a.accounts[username]
	return account, ok
}

// refreshAccounts reloads the account cache from the user store. A store
// error keeps the previous cache.
func (a *AuthManager) refreshAccounts(ctx context.Context) {
	if a.users == nil {
		return
	}
	stored, err := a.users.ListUsers(ctx)
	if err != nil {
		log.Printf("[auth] WARN: loading users failed: %v", err)
		return
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	for _, account := range stored {
		account.Username = normalizeUsername(account.Username)
		if account.Username == "" {
			continue
		}
		if !isPasswordHash(account.Password) {
			hashed, err := bcrypt.GenerateFromPassword([]byte(account.Password), bcrypt.DefaultCost)
			if err != nil {
				continue
			}
			account.Password = string(hashed)
			if err := a.users.UpdateUserPassword(ctx, account.Username, account.Password); err != nil {
				log.Printf("[auth] WARN: rehash write-back failed user=%s: %v", account.Username, err)
			}
		}
		a.accounts[account.Username] = account
	}
}

func validateCashier(req domain.CashierCreateRequest) (string, error) {
	username := normalizeUsername(req.Username)
	if len(username) < 4 {
		return "", errors.New("username must be at least 4 characters")
	}
	for _, r := range username {
		if !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '.' && r != '_' && r != '-' {
			return "", errors.New("username may only contain letters, digits, dots, dashes and underscores")
		}
	}
	if len(strings.TrimSpace(req.Password)) < 6 {
		return "", errors.New("password must be at least 6 characters")
	}
	return username, nil
}

func toCashier(account domain.UserAccount) domain.CashierUser {
	return domain.CashierUser{
		Username:  account.Username,
		Role:      account.Role,
		Active:    account.Active,
		CreatedAt: account.CreatedAt,
	}
}

func normalizeUsername(username string) string {
	return strings.ToLower(strings.TrimSpace(username))
}

func passwordMatches(stored string, input string) bool {
	if strings.TrimSpace(input) == "" || !isPasswordHash(stored) {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(stored), []byte(input)) == nil
}

func isPasswordHash(value string) bool {
	_, err := bcrypt.Cost([]byte(value))
	return err == nil
}
