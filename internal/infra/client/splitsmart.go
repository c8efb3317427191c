// Package client implements the HTTP client for the SplitSmart backend API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/splitsmart/splitsmart-go/internal/domain"
	"github.com/splitsmart/splitsmart-go/internal/infra/observability"
	"github.com/splitsmart/splitsmart-go/internal/infra/resilience"
	"github.com/splitsmart/splitsmart-go/internal/port"
)

var tracer = otel.Tracer("client")

// Client calls the SplitSmart REST API. Every call goes through the circuit
// breaker and the bulkhead; there is no automatic retry (a failed call
// surfaces immediately, and retrying is an explicit refetch).
type Client struct {
	httpClient *http.Client
	baseURL    string
	tokens     port.TokenSource
	cb         *gobreaker.CircuitBreaker
	bulkhead   *resilience.Bulkhead
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// New creates a Client. baseURL includes the API prefix
// (e.g. "http://localhost:8000/api/v1").
func New(httpClient *http.Client, baseURL string, tokens port.TokenSource, cb *gobreaker.CircuitBreaker, bulkhead *resilience.Bulkhead, metrics *observability.Metrics, logger *zap.Logger) *Client {
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		cb:         cb,
		bulkhead:   bulkhead,
		metrics:    metrics,
		logger:     logger,
	}
}

// errorBody is the backend's structured error envelope. Detail is either a
// plain message or a list of field-level validation messages.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

// do executes one request and returns the raw response body.
// contentType "" means no body; JSON bodies are marshalled by the caller.
func (c *Client) do(ctx context.Context, op, method, path, contentType string, body []byte) ([]byte, error) {
	if err := c.bulkhead.Acquire(ctx); err != nil {
		return nil, err
	}
	defer c.bulkhead.Release()

	start := time.Now()
	defer func() {
		c.metrics.RecordRequestDuration(op, time.Since(start))
	}()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("api: request failed",
			zap.String("operation", op),
			zap.String("method", method),
			zap.String("path", path),
			zap.Error(err),
		)
		c.metrics.IncrAPIError(op)
		return nil, &domain.ErrNetwork{Op: op, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		c.metrics.IncrAPIError(op)
		return nil, &domain.ErrNetwork{Op: op, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.logger.Warn("api: non-2xx response",
			zap.String("operation", op),
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", resp.StatusCode),
		)
		c.metrics.IncrAPIError(op)

		var eb errorBody
		_ = json.Unmarshal(respBody, &eb)

		if resp.StatusCode == http.StatusUnauthorized {
			apiErr := &domain.ErrAPI{Status: resp.StatusCode, Detail: eb.Detail}
			return nil, &domain.ErrUnauthorized{Message: apiErr.Message()}
		}
		return nil, &domain.ErrAPI{Status: resp.StatusCode, Detail: eb.Detail}
	}

	c.logger.Debug("api: request OK",
		zap.String("operation", op),
		zap.String("method", method),
		zap.String("path", path),
		zap.Int("status", resp.StatusCode),
	)
	return respBody, nil
}

// execute runs the request through the circuit breaker, translating an open
// breaker into a typed error and passing every other error through
// unchanged.
func (c *Client) execute(ctx context.Context, op, method, path, contentType string, body []byte) ([]byte, error) {
	result, err := c.cb.Execute(func() (any, error) {
		return c.do(ctx, op, method, path, contentType, body)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &domain.ErrCircuitOpen{Service: "splitsmart-api"}
		}
		return nil, err
	}
	return result.([]byte), nil
}

func getJSON[T any](ctx context.Context, c *Client, op, path string) (T, error) {
	var out T
	body, err := c.execute(ctx, op, http.MethodGet, path, "", nil)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return out, &domain.ErrNetwork{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return out, nil
}

func postJSON[T any](ctx context.Context, c *Client, op, path string, payload any) (T, error) {
	var out T
	body, err := json.Marshal(payload)
	if err != nil {
		return out, err
	}
	respBody, err := c.execute(ctx, op, http.MethodPost, path, "application/json", body)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(respBody, &out); err != nil {
		return out, &domain.ErrNetwork{Op: op, Err: fmt.Errorf("decode response: %w", err)}
	}
	return out, nil
}

// Register creates a new account.
func (c *Client) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Client.Register")
	defer span.End()

	user, err := postJSON[domain.User](ctx, c, "register", "/register", req)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Login exchanges credentials for a bearer token. The backend expects the
// OAuth2 password form encoding, not JSON.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (*domain.TokenResponse, error) {
	ctx, span := tracer.Start(ctx, "Client.Login")
	defer span.End()

	form := url.Values{}
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)

	body, err := c.execute(ctx, "login", http.MethodPost, "/login",
		"application/x-www-form-urlencoded", []byte(form.Encode()))
	if err != nil {
		return nil, err
	}

	var token domain.TokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, &domain.ErrNetwork{Op: "login", Err: fmt.Errorf("decode response: %w", err)}
	}
	return &token, nil
}

// Me fetches the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Client.Me")
	defer span.End()

	user, err := getJSON[domain.User](ctx, c, "me", "/users/me")
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// ListGroups fetches all groups the user belongs to.
func (c *Client) ListGroups(ctx context.Context) ([]domain.Group, error) {
	ctx, span := tracer.Start(ctx, "Client.ListGroups")
	defer span.End()

	return getJSON[[]domain.Group](ctx, c, "list_groups", "/groups/")
}

// CreateGroup creates a new group.
func (c *Client) CreateGroup(ctx context.Context, req *domain.CreateGroupRequest) (*domain.Group, error) {
	ctx, span := tracer.Start(ctx, "Client.CreateGroup")
	defer span.End()

	group, err := postJSON[domain.Group](ctx, c, "create_group", "/groups/", req)
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// GetGroup fetches one group including its member list.
func (c *Client) GetGroup(ctx context.Context, groupID int64) (*domain.Group, error) {
	ctx, span := tracer.Start(ctx, "Client.GetGroup")
	defer span.End()
	span.SetAttributes(attribute.Int64("group.id", groupID))

	group, err := getJSON[domain.Group](ctx, c, "get_group", fmt.Sprintf("/groups/%d", groupID))
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// GetGroupBalances fetches the server-computed per-member balances.
func (c *Client) GetGroupBalances(ctx context.Context, groupID int64) ([]domain.Balance, error) {
	ctx, span := tracer.Start(ctx, "Client.GetGroupBalances")
	defer span.End()
	span.SetAttributes(attribute.Int64("group.id", groupID))

	return getJSON[[]domain.Balance](ctx, c, "get_balances", fmt.Sprintf("/groups/%d/balances", groupID))
}

// GetGroupExpenses fetches all expenses of a group.
func (c *Client) GetGroupExpenses(ctx context.Context, groupID int64) ([]domain.Expense, error) {
	ctx, span := tracer.Start(ctx, "Client.GetGroupExpenses")
	defer span.End()
	span.SetAttributes(attribute.Int64("group.id", groupID))

	return getJSON[[]domain.Expense](ctx, c, "get_expenses", fmt.Sprintf("/groups/%d/expenses", groupID))
}

// AddExpense records a new expense with its precomputed splits.
func (c *Client) AddExpense(ctx context.Context, groupID int64, req *domain.ExpenseCreate) (*domain.Expense, error) {
	ctx, span := tracer.Start(ctx, "Client.AddExpense")
	defer span.End()
	span.SetAttributes(attribute.Int64("group.id", groupID))

	expense, err := postJSON[domain.Expense](ctx, c, "add_expense", fmt.Sprintf("/groups/%d/expenses", groupID), req)
	if err != nil {
		return nil, err
	}
	return &expense, nil
}
