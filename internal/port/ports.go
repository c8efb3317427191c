// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the service layer
// from concrete implementations.
package port

import (
	"context"

	"github.com/splitsmart/splitsmart-go/internal/domain"
)

// API is the backend REST contract the client depends on. The backend is
// authoritative: the client never recomputes what these calls return.
type API interface {
	Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, error)
	Login(ctx context.Context, creds domain.Credentials) (*domain.TokenResponse, error)
	Me(ctx context.Context) (*domain.User, error)

	ListGroups(ctx context.Context) ([]domain.Group, error)
	CreateGroup(ctx context.Context, req *domain.CreateGroupRequest) (*domain.Group, error)
	GetGroup(ctx context.Context, groupID int64) (*domain.Group, error)
	GetGroupBalances(ctx context.Context, groupID int64) ([]domain.Balance, error)
	GetGroupExpenses(ctx context.Context, groupID int64) ([]domain.Expense, error)
	AddExpense(ctx context.Context, groupID int64, req *domain.ExpenseCreate) (*domain.Expense, error)
}

// TokenSource supplies the current bearer token, or "" when unauthenticated.
type TokenSource interface {
	Token() string
}

// TokenStore persists the bearer token across restarts.
type TokenStore interface {
	Load() (string, error)
	Save(token string) error
	Clear() error
}
