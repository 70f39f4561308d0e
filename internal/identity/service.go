package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrAccountExists   = errors.New("account already exists")
	ErrAccountNotFound = errors.New("account not found")
	ErrInvalidPassword = errors.New("invalid password")
	ErrInvalidRole     = errors.New("invalid role")
)

// Service is the Postgres-backed account store behind the gateway's
// register and login endpoints.
type Service struct {
	db     *sql.DB
	tokens *TokenManager
}

// Account is a marketplace identity.
type Account struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// NewService creates an identity service over db.
func NewService(db *sql.DB, tokens *TokenManager) *Service {
	return &Service{db: db, tokens: tokens}
}

// Migrate creates the accounts table if missing.
func (s *Service) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS accounts (
			id            TEXT PRIMARY KEY,
			email         TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			role          TEXT NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL
		)`)
	if err != nil {
		return fmt.Errorf("failed to migrate accounts: %w", err)
	}
	return nil
}

// Register creates an account and returns it.
func (s *Service) Register(ctx context.Context, email, password string, role Role) (*Account, error) {
	if !role.Valid() {
		return nil, ErrInvalidRole
	}

	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM accounts WHERE email = $1)", email).Scan(&exists)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrAccountExists
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	account := &Account{
		ID:        uuid.New().String(),
		Email:     email,
		Role:      role,
		CreatedAt: time.Now(),
	}
	_, err = s.db.ExecContext(ctx,
		"INSERT INTO accounts (id, email, password_hash, role, created_at) VALUES ($1, $2, $3, $4, $5)",
		account.ID, account.Email, string(hash), account.Role, account.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// Login checks credentials and returns a signed token.
func (s *Service) Login(ctx context.Context, email, password string) (string, error) {
	var (
		id   string
		hash string
		role Role
	)
	err := s.db.QueryRowContext(ctx,
		"SELECT id, password_hash, role FROM accounts WHERE email = $1", email,
	).Scan(&id, &hash, &role)
	if err == sql.ErrNoRows {
		return "", ErrAccountNotFound
	}
	if err != nil {
		return "", err
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return "", ErrInvalidPassword
	}
	return s.tokens.Issue(id, role)
}

// Get returns the account for id.
func (s *Service) Get(ctx context.Context, id string) (*Account, error) {
	var account Account
	err := s.db.QueryRowContext(ctx,
		"SELECT id, email, role, created_at FROM accounts WHERE id = $1", id,
	).Scan(&account.ID, &account.Email, &account.Role, &account.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	return &account, nil
}
