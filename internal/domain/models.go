// Package domain holds the client-side representations of SplitSmart
// entities. The backend is authoritative for all of them: values arrive via
// the REST API and are never recomputed locally, only refetched.
package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User is a registered account, also used for group members.
type User struct {
	ID       int64  `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// Group is a shared-expense group including its member list.
type Group struct {
	ID              int64  `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	DefaultCurrency string `json:"default_currency,omitempty"`
	GroupPictureURL string `json:"group_picture_url,omitempty"`
	CreatedByID     int64  `json:"created_by_id"`
	Members         []User `json:"members"`
}

// Balance is one member's aggregate position within a group.
// Positive means the member is owed money; negative means they owe.
type Balance struct {
	UserID   int64   `json:"user_id"`
	Email    string  `json:"email,omitempty"`
	FullName string  `json:"full_name,omitempty"`
	Balance  float64 `json:"balance"`
}

// SplitTypeEqually is the only split type this client produces. The wire
// schema allows others, but they are created elsewhere.
const SplitTypeEqually = "equally"

// ExpenseSplit is one member's share of an expense, as returned by the API.
type ExpenseSplit struct {
	User       User    `json:"user"`
	OwedAmount float64 `json:"owed_amount"`
}

// Expense is a recorded expense within a group.
type Expense struct {
	ID          int64          `json:"id"`
	GroupID     int64          `json:"group_id"`
	Description string         `json:"description"`
	TotalAmount float64        `json:"total_amount"`
	Currency    string         `json:"currency"`
	SplitType   string         `json:"split_type"`
	PaidBy      User           `json:"paid_by"`
	CreatedAt   time.Time      `json:"created_at"`
	Splits      []ExpenseSplit `json:"splits"`
}

// --- Request payloads ---

// RegisterRequest creates a new account.
type RegisterRequest struct {
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Password string `json:"password"`
}

// Credentials is the login form. The backend expects it form-encoded with a
// "username" field carrying the email.
type Credentials struct {
	Username string
	Password string
}

// TokenResponse is the login result.
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
}

// CreateGroupRequest creates a new group.
type CreateGroupRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	DefaultCurrency string `json:"default_currency,omitempty"`
	GroupPictureURL string `json:"group_picture_url,omitempty"`
}

// ExpenseSplitCreate is one member's share in an expense being created.
// OwedAmount is serialized as a decimal string with exactly two fraction
// digits, matching what the backend validates.
type ExpenseSplitCreate struct {
	UserID     int64  `json:"user_id"`
	OwedAmount string `json:"owed_amount"`
}

// ExpenseCreate is the add-expense payload. Splits are computed client-side
// (equal division) before submission; the backend remains the arbiter of the
// persisted split.
type ExpenseCreate struct {
	Description string               `json:"description"`
	TotalAmount float64              `json:"total_amount"`
	Currency    string               `json:"currency"`
	SplitType   string               `json:"split_type"`
	PaidByID    int64                `json:"paid_by_id"`
	Splits      []ExpenseSplitCreate `json:"splits"`
}

// NewExpenseCreate builds the payload from an already-validated form.
func NewExpenseCreate(description string, total decimal.Decimal, currency string, paidByID int64, splits []ExpenseSplitCreate) *ExpenseCreate {
	return &ExpenseCreate{
		Description: description,
		TotalAmount: total.InexactFloat64(),
		Currency:    currency,
		SplitType:   SplitTypeEqually,
		PaidByID:    paidByID,
		Splits:      splits,
	}
}
