package calculator_test

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/splitsmart/splitsmart-go/internal/calculator"
	"github.com/splitsmart/splitsmart-go/internal/domain"
)

func TestEqualSplit(t *testing.T) {
	tests := []struct {
		name     string
		total    string
		members  []int64
		wantOwed string
	}{
		{name: "exact division", total: "30.00", members: []int64{1, 2, 3}, wantOwed: "10.00"},
		{name: "single member gets the whole amount", total: "12.34", members: []int64{7}, wantOwed: "12.34"},
		{name: "two members half each", total: "21.50", members: []int64{1, 2}, wantOwed: "10.75"},
		{name: "half cent rounds up", total: "0.03", members: []int64{1, 2}, wantOwed: "0.02"},
		{name: "sub-cent amounts keep two digits", total: "0.01", members: []int64{1, 2}, wantOwed: "0.01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			total := decimal.RequireFromString(tt.total)
			splits, err := calculator.EqualSplit(total, tt.members)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			if len(splits) != len(tt.members) {
				t.Fatalf("expected %d splits, got %d", len(tt.members), len(splits))
			}
			for i, s := range splits {
				if s.UserID != tt.members[i] {
					t.Errorf("split %d: expected member %d, got %d", i, tt.members[i], s.UserID)
				}
				if s.OwedAmount != tt.wantOwed {
					t.Errorf("split %d: expected owed %q, got %q", i, tt.wantOwed, s.OwedAmount)
				}
			}
		})
	}
}

// The shares are each rounded independently, so they can sum to less than
// the total. 10.00 over three members yields 3x 3.33 = 9.99, and that is
// exactly what gets sent to the backend.
func TestEqualSplit_RoundingResidual(t *testing.T) {
	splits, err := calculator.EqualSplit(decimal.RequireFromString("10.00"), []int64{1, 2, 3})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	sum := decimal.Zero
	for _, s := range splits {
		if s.OwedAmount != "3.33" {
			t.Errorf("expected owed '3.33', got %q", s.OwedAmount)
		}
		sum = sum.Add(decimal.RequireFromString(s.OwedAmount))
	}

	if !sum.Equal(decimal.RequireFromString("9.99")) {
		t.Errorf("expected shares to sum to 9.99, got %s", sum)
	}
}

func TestEqualSplit_RejectsNonPositiveAmounts(t *testing.T) {
	for _, total := range []string{"0", "-5"} {
		_, err := calculator.EqualSplit(decimal.RequireFromString(total), []int64{1})
		var invalid *domain.ErrInvalidAmount
		if !errors.As(err, &invalid) {
			t.Errorf("total %s: expected ErrInvalidAmount, got %v", total, err)
		}
	}
}

func TestEqualSplit_RejectsEmptyMemberSet(t *testing.T) {
	_, err := calculator.EqualSplit(decimal.RequireFromString("10"), nil)
	var empty *domain.ErrEmptyMemberSet
	if !errors.As(err, &empty) {
		t.Fatalf("expected ErrEmptyMemberSet, got %v", err)
	}
}

func TestParseAmount(t *testing.T) {
	if _, err := calculator.ParseAmount(" 12.50 "); err != nil {
		t.Fatalf("expected valid amount, got %v", err)
	}

	for _, input := range []string{"", "abc", "12,50", "1e", "NaN"} {
		_, err := calculator.ParseAmount(input)
		var invalid *domain.ErrInvalidAmount
		if !errors.As(err, &invalid) {
			t.Errorf("input %q: expected ErrInvalidAmount, got %v", input, err)
		}
	}
}
