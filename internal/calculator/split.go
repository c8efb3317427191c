// Package calculator implements the pure expense-splitting computation.
// It runs client-side during expense entry to build the payload sent to the
// backend; the backend remains the final arbiter of the persisted split.
package calculator

import (
	"strings"

	"github.com/shopspring/decimal"

	"github.com/splitsmart/splitsmart-go/internal/domain"
)

// fractionDigits is how many decimal places owed amounts carry on the wire.
const fractionDigits = 2

// ParseAmount parses user-entered amount text into a decimal. It rejects
// anything that is not a plain finite number.
func ParseAmount(input string) (decimal.Decimal, error) {
	trimmed := strings.TrimSpace(input)
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return decimal.Zero, &domain.ErrInvalidAmount{Input: input}
	}
	return d, nil
}

// EqualSplit divides total equally among members, rounding each share to two
// decimal digits (half away from zero). The returned splits preserve the
// member ordering of the input.
//
// Every member receives the same rounded share, so the shares can sum to up
// to 0.01*(n-1) away from total (e.g. 10.00 over 3 members yields 3x 3.33 =
// 9.99). The residual is intentionally not redistributed: the backend
// accepts it and observable behavior matches the shipped clients.
func EqualSplit(total decimal.Decimal, members []int64) ([]domain.ExpenseSplitCreate, error) {
	if total.LessThanOrEqual(decimal.Zero) {
		return nil, &domain.ErrInvalidAmount{Input: total.String()}
	}
	if len(members) == 0 {
		return nil, &domain.ErrEmptyMemberSet{}
	}

	share := total.Div(decimal.NewFromInt(int64(len(members)))).Round(fractionDigits)
	owed := share.StringFixed(fractionDigits)

	splits := make([]domain.ExpenseSplitCreate, 0, len(members))
	for _, id := range members {
		splits = append(splits, domain.ExpenseSplitCreate{
			UserID:     id,
			OwedAmount: owed,
		})
	}
	return splits, nil
}
