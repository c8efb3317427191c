package ui

import (
	"context"
	"strconv"

	"github.com/splitsmart/splitsmart-go/internal/domain"
	"github.com/splitsmart/splitsmart-go/internal/service"
)

// runGroupDetail shows one group's members, balances and expenses. The
// overview re-queries on every loop pass: after an expense is added the
// balances and expenses entries have been invalidated, so the re-query
// serves freshly fetched values while untouched entries come from cache.
func (u *UI) runGroupDetail(ctx context.Context, groupID int64) error {
	for {
		overview, err := u.app.LoadGroupOverview(ctx, groupID)
		if err != nil {
			if authFailed(err) {
				return errAuthExpired
			}
			u.notice(err)
			u.printf("[r] Retry  [b] Back\n")
			choice, ok := u.prompt(">")
			if !ok {
				return errQuit
			}
			if choice == "b" {
				return nil
			}
			continue
		}

		u.renderOverview(overview)
		u.printf("[a] Add expense  [r] Refresh  [b] Back\n")
		choice, ok := u.prompt(">")

		group := overview.Group
		overview.Close() // navigating away unsubscribes

		if !ok {
			return errQuit
		}

		switch choice {
		case "b":
			return nil
		case "a":
			if err := u.runAddExpense(ctx, group); err != nil {
				return err
			}
		case "r":
			// Loop around: the entries were just released, so the next
			// overview load refetches everything for this group.
		}
	}
}

func (u *UI) renderOverview(o *service.GroupOverview) {
	g := o.Group
	u.printf("\n%s", g.Name)
	if g.Description != "" {
		u.printf(" — %s", g.Description)
	}
	u.printf("\n")

	u.printf("Members:\n")
	for _, m := range g.Members {
		u.printf("  - %s\n", m.FullName)
	}

	u.printf("Balances:\n")
	if len(o.Balances) == 0 {
		u.printf("  (all settled)\n")
	}
	for _, b := range o.Balances {
		switch {
		case b.Balance > 0:
			u.printf("  %s is owed %.2f %s\n", b.FullName, b.Balance, g.DefaultCurrency)
		case b.Balance < 0:
			u.printf("  %s owes %.2f %s\n", b.FullName, -b.Balance, g.DefaultCurrency)
		default:
			u.printf("  %s is settled\n", b.FullName)
		}
	}

	u.printf("Expenses:\n")
	if len(o.Expenses) == 0 {
		u.printf("  (no expenses yet)\n")
	}
	for _, e := range o.Expenses {
		u.printf("  %s — %.2f %s, paid by %s (%s)\n",
			e.Description, e.TotalAmount, e.Currency, e.PaidBy.FullName,
			e.CreatedAt.Format("2006-01-02"))
	}
}

// runAddExpense is the expense-entry form. Validation failures keep the
// user on the form; only a valid payload reaches the backend.
func (u *UI) runAddExpense(ctx context.Context, group *domain.Group) error {
	u.printf("\nAdd expense to %q\n", group.Name)

	description, ok := u.prompt("Description:")
	if !ok {
		return errQuit
	}
	currency := group.DefaultCurrency
	if currency == "" {
		currency = "USD"
	}
	amount, ok := u.prompt("Amount (" + currency + "):")
	if !ok {
		return errQuit
	}

	u.printf("Paid by:\n")
	for i, m := range group.Members {
		u.printf("  %d. %s\n", i+1, m.FullName)
	}
	payerChoice, ok := u.prompt(">")
	if !ok {
		return errQuit
	}

	var paidByID int64
	if idx, err := strconv.Atoi(payerChoice); err == nil && idx >= 1 && idx <= len(group.Members) {
		paidByID = group.Members[idx-1].ID
	}

	expense, err := u.app.AddExpense(ctx, group, service.ExpenseForm{
		Description: description,
		Amount:      amount,
		PaidByID:    paidByID,
	})
	if err != nil {
		if authFailed(err) {
			return errAuthExpired
		}
		u.notice(err)
		return nil
	}

	u.printf("Expense %q saved: %d-way split of %.2f %s.\n",
		expense.Description, len(group.Members), expense.TotalAmount, expense.Currency)
	return nil
}
