// Package service implements the application services: authenticated session
// handling and the cached group/expense operations the screens consume.
package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/splitsmart/splitsmart-go/internal/calculator"
	"github.com/splitsmart/splitsmart-go/internal/domain"
	"github.com/splitsmart/splitsmart-go/internal/port"
	"github.com/splitsmart/splitsmart-go/internal/querycache"
)

var tracer = otel.Tracer("service")

// App exposes the group and expense operations. Reads go through the query
// cache with the tags declared in tags.go; the two mutations declare exactly
// the tags whose views they affect.
type App struct {
	api    port.API
	cache  *querycache.Store
	logger *zap.Logger
}

// NewApp creates the service with all dependencies injected.
func NewApp(api port.API, cache *querycache.Store, logger *zap.Logger) *App {
	return &App{api: api, cache: cache, logger: logger}
}

// Groups returns the cached groups list, fetching it when absent or stale.
func (a *App) Groups(ctx context.Context) ([]domain.Group, *querycache.Subscription, error) {
	return querycache.QueryAs(ctx, a.cache, keyGroups,
		[]querycache.Tag{groupsTag()},
		func(ctx context.Context) ([]domain.Group, error) {
			return a.api.ListGroups(ctx)
		})
}

// GroupDetails returns one group including members.
func (a *App) GroupDetails(ctx context.Context, groupID int64) (*domain.Group, *querycache.Subscription, error) {
	return querycache.QueryAs(ctx, a.cache, keyGroupDetails(groupID),
		[]querycache.Tag{groupDetailsTag(groupID)},
		func(ctx context.Context) (*domain.Group, error) {
			return a.api.GetGroup(ctx, groupID)
		})
}

// GroupBalances returns the server-computed balances for a group. The
// client only ever reads these; it never recomputes them.
func (a *App) GroupBalances(ctx context.Context, groupID int64) ([]domain.Balance, *querycache.Subscription, error) {
	return querycache.QueryAs(ctx, a.cache, keyGroupBalances(groupID),
		[]querycache.Tag{groupBalancesTag(groupID)},
		func(ctx context.Context) ([]domain.Balance, error) {
			return a.api.GetGroupBalances(ctx, groupID)
		})
}

// GroupExpenses returns all expenses of a group.
func (a *App) GroupExpenses(ctx context.Context, groupID int64) ([]domain.Expense, *querycache.Subscription, error) {
	return querycache.QueryAs(ctx, a.cache, keyGroupExpenses(groupID),
		[]querycache.Tag{groupExpensesTag(groupID)},
		func(ctx context.Context) ([]domain.Expense, error) {
			return a.api.GetGroupExpenses(ctx, groupID)
		})
}

// RefetchGroups is the explicit, user-triggered refresh of the groups list.
func (a *App) RefetchGroups(ctx context.Context) error {
	_, err := a.cache.Refetch(ctx, keyGroups)
	return err
}

// GroupOverview is everything the group-detail screen shows.
type GroupOverview struct {
	Group    *domain.Group
	Balances []domain.Balance
	Expenses []domain.Expense

	subs []*querycache.Subscription
}

// Subscriptions returns the live subscriptions backing the overview.
func (o *GroupOverview) Subscriptions() []*querycache.Subscription {
	return o.subs
}

// Close releases all subscriptions held by the overview.
func (o *GroupOverview) Close() {
	for _, s := range o.subs {
		if s != nil {
			s.Close()
		}
	}
}

// LoadGroupOverview fetches detail, balances and expenses concurrently.
func (a *App) LoadGroupOverview(ctx context.Context, groupID int64) (*GroupOverview, error) {
	ctx, span := tracer.Start(ctx, "App.LoadGroupOverview")
	defer span.End()

	o := &GroupOverview{subs: make([]*querycache.Subscription, 3)}
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		group, sub, err := a.GroupDetails(gCtx, groupID)
		o.Group, o.subs[0] = group, sub
		return err
	})
	g.Go(func() error {
		balances, sub, err := a.GroupBalances(gCtx, groupID)
		o.Balances, o.subs[1] = balances, sub
		return err
	})
	g.Go(func() error {
		expenses, sub, err := a.GroupExpenses(gCtx, groupID)
		o.Expenses, o.subs[2] = expenses, sub
		return err
	})

	if err := g.Wait(); err != nil {
		o.Close()
		return nil, err
	}
	return o, nil
}

// CreateGroup creates a group and invalidates the groups list, so any
// subscribed list view refetches before it is shown again.
func (a *App) CreateGroup(ctx context.Context, req *domain.CreateGroupRequest) (*domain.Group, error) {
	ctx, span := tracer.Start(ctx, "App.CreateGroup")
	defer span.End()

	if strings.TrimSpace(req.Name) == "" {
		return nil, &domain.ErrValidation{Field: "name", Message: "group name is required"}
	}
	if req.DefaultCurrency != "" && len(req.DefaultCurrency) != 3 {
		return nil, &domain.ErrValidation{Field: "default_currency", Message: "currency must be a 3-letter code"}
	}

	result, err := a.cache.Mutate(ctx,
		func(ctx context.Context) (any, error) {
			return a.api.CreateGroup(ctx, req)
		},
		[]querycache.Tag{groupsTag()},
	)
	if err != nil {
		return nil, err
	}

	group := result.(*domain.Group)
	a.logger.Info("group created",
		zap.Int64("group_id", group.ID),
		zap.String("name", group.Name),
	)
	return group, nil
}

// ExpenseForm is the raw add-expense input as entered on the screen.
type ExpenseForm struct {
	Description string
	Amount      string
	PaidByID    int64
}

// AddExpense validates the form, computes the equal split client-side and
// submits it. On success it invalidates the group's balances and expenses —
// and nothing else: group metadata and the groups list are unaffected by a
// new expense. Validation failures block submission before any network call.
func (a *App) AddExpense(ctx context.Context, group *domain.Group, form ExpenseForm) (*domain.Expense, error) {
	ctx, span := tracer.Start(ctx, "App.AddExpense")
	defer span.End()

	if strings.TrimSpace(form.Description) == "" {
		return nil, &domain.ErrValidation{Field: "description", Message: "description is required"}
	}
	total, err := calculator.ParseAmount(form.Amount)
	if err != nil {
		return nil, err
	}
	if form.PaidByID == 0 {
		return nil, &domain.ErrValidation{Field: "paid_by", Message: "select who paid"}
	}

	memberIDs := make([]int64, 0, len(group.Members))
	payerIsMember := false
	for _, m := range group.Members {
		memberIDs = append(memberIDs, m.ID)
		if m.ID == form.PaidByID {
			payerIsMember = true
		}
	}
	if !payerIsMember {
		return nil, &domain.ErrValidation{Field: "paid_by", Message: "payer must be a group member"}
	}

	splits, err := calculator.EqualSplit(total, memberIDs)
	if err != nil {
		return nil, err
	}

	currency := group.DefaultCurrency
	if currency == "" {
		currency = "USD"
	}
	payload := domain.NewExpenseCreate(strings.TrimSpace(form.Description), total, currency, form.PaidByID, splits)

	result, err := a.cache.Mutate(ctx,
		func(ctx context.Context) (any, error) {
			return a.api.AddExpense(ctx, group.ID, payload)
		},
		[]querycache.Tag{
			groupBalancesTag(group.ID),
			groupExpensesTag(group.ID),
		},
	)
	if err != nil {
		return nil, err
	}

	expense := result.(*domain.Expense)
	a.logger.Info("expense added",
		zap.Int64("group_id", group.ID),
		zap.Int64("expense_id", expense.ID),
		zap.Float64("total_amount", expense.TotalAmount),
	)
	return expense, nil
}
