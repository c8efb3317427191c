package integration_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/splitsmart/splitsmart-go/internal/domain"
	"github.com/splitsmart/splitsmart-go/internal/infra/client"
	"github.com/splitsmart/splitsmart-go/internal/infra/observability"
	"github.com/splitsmart/splitsmart-go/internal/infra/resilience"
	"github.com/splitsmart/splitsmart-go/internal/infra/secrets"
	"github.com/splitsmart/splitsmart-go/internal/querycache"
	"github.com/splitsmart/splitsmart-go/internal/service"
)

// fakeBackend is an in-memory SplitSmart API. It counts list-groups calls so
// tests can tell cached reads from real refetches.
type fakeBackend struct {
	mu       sync.Mutex
	token    string
	users    []domain.User
	groups   []domain.Group
	expenses map[int64][]domain.Expense
	nextID   int64

	listGroupsCalls int
	lastExpenseReq  *domain.ExpenseCreate
}

func newFakeBackend() *fakeBackend {
	// Restore inspects the exp claim locally, so the token must be a real JWT.
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ada@example.com",
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte("fake-backend-secret"))
	if err != nil {
		panic(err)
	}
	members := []domain.User{
		{ID: 1, Email: "ada@example.com", FullName: "Ada"},
		{ID: 2, Email: "basia@example.com", FullName: "Basia"},
		{ID: 3, Email: "chidi@example.com", FullName: "Chidi"},
	}
	return &fakeBackend{
		token: token,
		users: members,
		groups: []domain.Group{
			{ID: 1, Name: "Trip", DefaultCurrency: "EUR", CreatedByID: 1, Members: members},
		},
		expenses: make(map[int64][]domain.Expense),
		nextID:   100,
	}
}

func (b *fakeBackend) router() http.Handler {
	r := chi.NewRouter()

	r.Post("/login", func(w http.ResponseWriter, req *http.Request) {
		if err := req.ParseForm(); err != nil || req.PostForm.Get("username") == "" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "username required"})
			return
		}
		if req.PostForm.Get("password") != "hunter2" {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Incorrect email or password"})
			return
		}
		writeJSON(w, http.StatusOK, domain.TokenResponse{AccessToken: b.token, TokenType: "bearer"})
	})

	r.Group(func(r chi.Router) {
		r.Use(b.requireAuth)

		r.Get("/users/me", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, b.users[0])
		})

		r.Get("/groups/", func(w http.ResponseWriter, req *http.Request) {
			b.mu.Lock()
			b.listGroupsCalls++
			groups := append([]domain.Group(nil), b.groups...)
			b.mu.Unlock()
			writeJSON(w, http.StatusOK, groups)
		})

		r.Post("/groups/", func(w http.ResponseWriter, req *http.Request) {
			var in domain.CreateGroupRequest
			if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid body"})
				return
			}
			b.mu.Lock()
			b.nextID++
			g := domain.Group{
				ID:              b.nextID,
				Name:            in.Name,
				Description:     in.Description,
				DefaultCurrency: in.DefaultCurrency,
				CreatedByID:     b.users[0].ID,
				Members:         []domain.User{b.users[0]},
			}
			b.groups = append(b.groups, g)
			b.mu.Unlock()
			writeJSON(w, http.StatusOK, g)
		})

		r.Get("/groups/{groupID}", func(w http.ResponseWriter, req *http.Request) {
			g, ok := b.findGroup(chiGroupID(req))
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Group not found"})
				return
			}
			writeJSON(w, http.StatusOK, g)
		})

		r.Get("/groups/{groupID}/balances", func(w http.ResponseWriter, req *http.Request) {
			writeJSON(w, http.StatusOK, b.balances(chiGroupID(req)))
		})

		r.Get("/groups/{groupID}/expenses", func(w http.ResponseWriter, req *http.Request) {
			b.mu.Lock()
			expenses := append([]domain.Expense(nil), b.expenses[chiGroupID(req)]...)
			b.mu.Unlock()
			writeJSON(w, http.StatusOK, expenses)
		})

		r.Post("/groups/{groupID}/expenses", func(w http.ResponseWriter, req *http.Request) {
			groupID := chiGroupID(req)
			g, ok := b.findGroup(groupID)
			if !ok {
				writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Group not found"})
				return
			}
			var in domain.ExpenseCreate
			if err := json.NewDecoder(req.Body).Decode(&in); err != nil {
				writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "invalid body"})
				return
			}

			b.mu.Lock()
			b.lastExpenseReq = &in
			b.nextID++
			exp := domain.Expense{
				ID:          b.nextID,
				GroupID:     groupID,
				Description: in.Description,
				TotalAmount: in.TotalAmount,
				Currency:    in.Currency,
				SplitType:   in.SplitType,
				PaidBy:      b.userByID(g, in.PaidByID),
				CreatedAt:   time.Now().UTC(),
			}
			for _, s := range in.Splits {
				owed, _ := strconv.ParseFloat(s.OwedAmount, 64)
				exp.Splits = append(exp.Splits, domain.ExpenseSplit{
					User:       b.userByID(g, s.UserID),
					OwedAmount: owed,
				})
			}
			b.expenses[groupID] = append(b.expenses[groupID], exp)
			b.mu.Unlock()
			writeJSON(w, http.StatusOK, exp)
		})
	})

	return r
}

func (b *fakeBackend) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Header.Get("Authorization") != "Bearer "+b.token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "Not authenticated"})
			return
		}
		next.ServeHTTP(w, req)
	})
}

func (b *fakeBackend) findGroup(id int64) (domain.Group, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, g := range b.groups {
		if g.ID == id {
			return g, true
		}
	}
	return domain.Group{}, false
}

func (b *fakeBackend) userByID(g domain.Group, id int64) domain.User {
	for _, m := range g.Members {
		if m.ID == id {
			return m
		}
	}
	return domain.User{ID: id}
}

// balances folds stored expenses: the payer is owed everyone else's share.
func (b *fakeBackend) balances(groupID int64) []domain.Balance {
	g, ok := b.findGroup(groupID)
	if !ok {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	totals := make(map[int64]float64, len(g.Members))
	for _, exp := range b.expenses[groupID] {
		for _, s := range exp.Splits {
			if s.User.ID == exp.PaidBy.ID {
				continue
			}
			totals[s.User.ID] -= s.OwedAmount
			totals[exp.PaidBy.ID] += s.OwedAmount
		}
	}

	out := make([]domain.Balance, 0, len(g.Members))
	for _, m := range g.Members {
		out = append(out, domain.Balance{
			UserID:   m.ID,
			Email:    m.Email,
			FullName: m.FullName,
			Balance:  totals[m.ID],
		})
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func chiGroupID(req *http.Request) int64 {
	id, _ := strconv.ParseInt(chi.URLParam(req, "groupID"), 10, 64)
	return id
}

// --- harness ---

type harness struct {
	backend *fakeBackend
	session *service.Session
	app     *service.App
}

func newHarness(t *testing.T) (*harness, func()) {
	t.Helper()

	backend := newFakeBackend()
	server := httptest.NewServer(backend.router())

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	cb := resilience.NewCircuitBreaker("test")
	bulkhead := resilience.NewBulkhead(8)
	httpClient := &http.Client{Timeout: 5 * time.Second}

	tokens := service.NewTokenHolder()
	api := client.New(httpClient, server.URL, tokens, cb, bulkhead, metrics, logger)
	cache := querycache.New(logger, metrics, 5*time.Second)

	store, err := secrets.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	h := &harness{
		backend: backend,
		session: service.NewSession(api, tokens, store, logger),
		app:     service.NewApp(api, cache, logger),
	}
	return h, server.Close
}

func waitFresh(t *testing.T, sub *querycache.Subscription) querycache.Event {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev := <-sub.Events():
			if ev.State == querycache.StateFresh {
				return ev
			}
		case <-deadline:
			t.Fatal("timed out waiting for entry to become fresh")
		}
	}
}

// TestIntegration_FullFlow drives login, group creation and expense entry
// against a fake backend over real HTTP, checking that each mutation refreshes
// exactly the views it affects.
func TestIntegration_FullFlow(t *testing.T) {
	h, cleanup := newHarness(t)
	defer cleanup()
	ctx := context.Background()

	// --- Login ---
	user, err := h.session.Login(ctx, domain.Credentials{Username: "ada@example.com", Password: "hunter2"})
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if user == nil || user.FullName != "Ada" {
		t.Fatalf("Login returned user %+v, want Ada", user)
	}

	// --- Groups list, held subscribed like an open screen ---
	groups, groupsSub, err := h.app.Groups(ctx)
	if err != nil {
		t.Fatalf("Groups: %v", err)
	}
	defer groupsSub.Close()
	if len(groups) != 1 || groups[0].Name != "Trip" {
		t.Fatalf("Groups = %+v, want one group Trip", groups)
	}

	// --- Create a group: the subscribed list refreshes without a manual refetch ---
	created, err := h.app.CreateGroup(ctx, &domain.CreateGroupRequest{Name: "Flat", DefaultCurrency: "EUR"})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	ev := waitFresh(t, groupsSub)
	refreshed, ok := ev.Value.([]domain.Group)
	if !ok || len(refreshed) != 2 {
		t.Fatalf("groups after create = %+v, want Trip and Flat", ev.Value)
	}
	if refreshed[1].ID != created.ID {
		t.Errorf("refreshed list missing created group %d", created.ID)
	}

	h.backend.mu.Lock()
	listCalls := h.backend.listGroupsCalls
	h.backend.mu.Unlock()
	if listCalls != 2 {
		t.Errorf("listGroupsCalls = %d, want 2 (initial + invalidation refetch)", listCalls)
	}

	// --- Open the Trip group: balances and expenses start empty ---
	trip, tripSub, err := h.app.GroupDetails(ctx, 1)
	if err != nil {
		t.Fatalf("GroupDetails: %v", err)
	}
	defer tripSub.Close()

	balances, balSub, err := h.app.GroupBalances(ctx, 1)
	if err != nil {
		t.Fatalf("GroupBalances: %v", err)
	}
	defer balSub.Close()
	for _, b := range balances {
		if b.Balance != 0 {
			t.Fatalf("initial balance for user %d = %v, want 0", b.UserID, b.Balance)
		}
	}

	_, expSub, err := h.app.GroupExpenses(ctx, 1)
	if err != nil {
		t.Fatalf("GroupExpenses: %v", err)
	}
	defer expSub.Close()

	// --- Add a 30.00 expense split three ways ---
	expense, err := h.app.AddExpense(ctx, trip, service.ExpenseForm{
		Description: "Dinner",
		Amount:      "30.00",
		PaidByID:    1,
	})
	if err != nil {
		t.Fatalf("AddExpense: %v", err)
	}
	if expense.SplitType != domain.SplitTypeEqually {
		t.Errorf("SplitType = %q, want %q", expense.SplitType, domain.SplitTypeEqually)
	}

	h.backend.mu.Lock()
	sent := h.backend.lastExpenseReq
	h.backend.mu.Unlock()
	if sent == nil || len(sent.Splits) != 3 {
		t.Fatalf("backend received splits %+v, want 3", sent)
	}
	for i, s := range sent.Splits {
		if s.OwedAmount != "10.00" {
			t.Errorf("split[%d].OwedAmount = %q, want \"10.00\"", i, s.OwedAmount)
		}
	}
	if sent.Currency != "EUR" {
		t.Errorf("Currency = %q, want group default EUR", sent.Currency)
	}

	// --- Balances and expenses refresh; the groups list does not ---
	balEv := waitFresh(t, balSub)
	newBalances := balEv.Value.([]domain.Balance)
	for _, b := range newBalances {
		want := -10.0
		if b.UserID == 1 {
			want = 20.0
		}
		if b.Balance != want {
			t.Errorf("balance for user %d = %v, want %v", b.UserID, b.Balance, want)
		}
	}

	expEv := waitFresh(t, expSub)
	newExpenses := expEv.Value.([]domain.Expense)
	if len(newExpenses) != 1 || newExpenses[0].Description != "Dinner" {
		t.Fatalf("expenses after add = %+v, want the Dinner expense", newExpenses)
	}

	h.backend.mu.Lock()
	listCalls = h.backend.listGroupsCalls
	h.backend.mu.Unlock()
	if listCalls != 2 {
		t.Errorf("listGroupsCalls = %d after AddExpense, want unchanged 2", listCalls)
	}
}

// TestIntegration_SessionRestore verifies the persisted token survives a
// process restart and authenticates the next session.
func TestIntegration_SessionRestore(t *testing.T) {
	backend := newFakeBackend()
	server := httptest.NewServer(backend.router())
	defer server.Close()

	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	httpClient := &http.Client{Timeout: 5 * time.Second}
	dir := t.TempDir()
	ctx := context.Background()

	newSession := func() *service.Session {
		tokens := service.NewTokenHolder()
		api := client.New(httpClient, server.URL, tokens,
			resilience.NewCircuitBreaker("test"), resilience.NewBulkhead(8), metrics, logger)
		store, err := secrets.NewFileStore(dir)
		if err != nil {
			t.Fatalf("NewFileStore: %v", err)
		}
		return service.NewSession(api, tokens, store, logger)
	}

	first := newSession()
	if _, err := first.Login(ctx, domain.Credentials{Username: "ada@example.com", Password: "hunter2"}); err != nil {
		t.Fatalf("Login: %v", err)
	}

	second := newSession()
	if !second.Restore(ctx) {
		t.Fatal("Restore = false after login in a previous session")
	}
	if u := second.User(); u == nil || u.FullName != "Ada" {
		t.Errorf("restored user = %+v, want Ada", second.User())
	}
}
