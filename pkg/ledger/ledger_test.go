package ledger

import (
	"reflect"
	"testing"
	"time"

	"github.com/mcclellann/snpLoans/pkg/models"
	"github.com/shopspring/decimal"
)

type goldenRow struct {
	month                               string
	opening, interest, payment, closing int64
}

func newLoan(amount, rate int64, start string) *models.Loan {
	return &models.Loan{
		AmountBorrowed: decimal.NewFromInt(amount),
		InterestRate:   decimal.NewFromInt(rate),
		StartDate:      start,
	}
}

func withBalance(loan *models.Loan, balance int64) *models.Loan {
	loan.Balance = decimal.NewNullDecimal(decimal.NewFromInt(balance))
	return loan
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
}

func assertRows(t *testing.T, got []models.StatementRow, want []goldenRow) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("Expected %d rows, got %d", len(want), len(got))
	}
	for i, w := range want {
		g := got[i]
		if g.Month != w.month {
			t.Errorf("Row %d: expected month %s, got %s", i, w.month, g.Month)
		}
		checks := []struct {
			name string
			got  decimal.Decimal
			want int64
		}{
			{"opening", g.Opening, w.opening},
			{"interest", g.Interest, w.interest},
			{"payment", g.Payment, w.payment},
			{"closing", g.Closing, w.closing},
		}
		for _, c := range checks {
			if !c.got.Equal(decimal.NewFromInt(c.want)) {
				t.Errorf("Row %d (%s): expected %s %d, got %s", i, w.month, c.name, c.want, c.got)
			}
		}
	}
}

// assertLedgerInvariants checks the chain, non-negativity and no-overpayment
// rules that every generated statement keeps.
func assertLedgerInvariants(t *testing.T, rows []models.StatementRow) {
	t.Helper()
	for i, row := range rows {
		for _, v := range []decimal.Decimal{row.Opening, row.Interest, row.Payment, row.Closing} {
			if v.IsNegative() {
				t.Errorf("Row %d (%s) has a negative amount: %+v", i, row.Month, row)
			}
		}
		owed := row.Opening.Add(row.Interest)
		if row.Payment.GreaterThan(owed) {
			t.Errorf("Row %d (%s) pays %s of %s owed", i, row.Month, row.Payment, owed)
		}
		if want := decimal.Max(decimal.Zero, owed.Sub(row.Payment)); !row.Closing.Equal(want) {
			t.Errorf("Row %d (%s): expected closing %s, got %s", i, row.Month, want, row.Closing)
		}
		if i > 0 && !row.Opening.Equal(rows[i-1].Closing) {
			t.Errorf("Row %d (%s) opens at %s but previous month closed at %s", i, row.Month, row.Opening, rows[i-1].Closing)
		}
	}
}

func TestSeed(t *testing.T) {
	tests := []struct {
		username string
		want     uint32
	}{
		{"", 0},
		{"user01", 3458935564},
		{"user02", 3458935565},
		{"manager", 835260333},
		{"Ramesh", 2440519868},
		{"a\U0001F600b", 1809382},
	}
	for _, tc := range tests {
		if got := Seed(tc.username); got != tc.want {
			t.Errorf("Seed(%q) = %d; want %d", tc.username, got, tc.want)
		}
	}
}

func TestBuildForLoan_ReconcilesToKnownBalance(t *testing.T) {
	loan := withBalance(newLoan(50000, 12, "2025-01-01"), 42000)

	rows := BuildForLoan("user01", loan, date(2025, time.June, 15))

	assertRows(t, rows, []goldenRow{
		{"2025-01", 50000, 500, 2714, 47786},
		{"2025-02", 47786, 478, 3135, 45129},
		{"2025-03", 45129, 451, 3580, 42000},
		{"2025-04", 42000, 420, 420, 42000},
		{"2025-05", 42000, 420, 420, 42000},
		{"2025-06", 42000, 420, 420, 42000},
	})
	assertLedgerInvariants(t, rows)
}

func TestBuildForLoan_TargetBelowHistory(t *testing.T) {
	loan := withBalance(newLoan(50000, 12, "2025-01-01"), 30000)

	rows := BuildForLoan("user01", loan, date(2025, time.June, 1))

	assertRows(t, rows, []goldenRow{
		{"2025-01", 50000, 500, 2714, 47786},
		{"2025-02", 47786, 478, 3135, 45129},
		{"2025-03", 45129, 451, 4021, 41559},
		{"2025-04", 41559, 416, 2796, 39179},
		{"2025-05", 39179, 392, 3424, 36147},
		{"2025-06", 36147, 361, 6508, 30000},
	})
	assertLedgerInvariants(t, rows)
}

func TestBuildForLoan_WithoutTarget(t *testing.T) {
	rows := BuildForLoan("user01", newLoan(50000, 12, "2025-01-01"), date(2025, time.June, 30))
	assertRows(t, rows, []goldenRow{
		{"2025-01", 50000, 500, 2714, 47786},
		{"2025-02", 47786, 478, 3135, 45129},
		{"2025-03", 45129, 451, 4021, 41559},
		{"2025-04", 41559, 416, 2796, 39179},
		{"2025-05", 39179, 392, 3424, 36147},
		{"2025-06", 36147, 361, 3114, 33394},
	})

	loan := &models.Loan{
		AmountBorrowed: decimal.NewFromInt(120000),
		InterestRate:   decimal.RequireFromString("9.5"),
		StartDate:      "2024-11-20",
	}
	rows = BuildForLoan("user02", loan, date(2025, time.March, 3))
	assertRows(t, rows, []goldenRow{
		{"2024-11", 120000, 950, 6514, 114436},
		{"2024-12", 114436, 906, 7851, 107491},
		{"2025-01", 107491, 851, 8515, 99827},
		{"2025-02", 99827, 790, 6843, 93774},
		{"2025-03", 93774, 742, 7018, 87498},
	})
	assertLedgerInvariants(t, rows)
}

func TestBuildForLoan_Deterministic(t *testing.T) {
	loan := withBalance(newLoan(80000, 11, "2023-04-01"), 25000)
	asOf := date(2025, time.October, 9)

	first := BuildForLoan("user07", loan, asOf)
	second := BuildForLoan("user07", loan, asOf)
	if !reflect.DeepEqual(first, second) {
		t.Error("Expected identical statements for identical input")
	}

	other := BuildForLoan("user08", loan, asOf)
	if reflect.DeepEqual(first, other) {
		t.Error("Expected a different history for a different username")
	}
}

func TestBuildForLoan_Invariants(t *testing.T) {
	loans := map[string]*models.Loan{
		"small":           newLoan(5000, 14, "2024-01-01"),
		"large":           newLoan(300000, 8, "2022-06-15"),
		"paid off":        newLoan(4000, 10, "2020-01-01"),
		"target":          withBalance(newLoan(150000, 12, "2023-09-01"), 61000),
		"high target":     withBalance(newLoan(10000, 12, "2025-01-01"), 60000),
		"negative target": withBalance(newLoan(1000, 12, "2025-01-01"), -500),
	}
	for name, loan := range loans {
		t.Run(name, func(t *testing.T) {
			rows := BuildForLoan("user03", loan, date(2025, time.August, 20))
			if len(rows) == 0 {
				t.Fatal("Expected rows")
			}
			assertLedgerInvariants(t, rows)
		})
	}
}

func TestBuildForLoan_NegativeTargetClosesAtZero(t *testing.T) {
	loan := withBalance(newLoan(1000, 12, "2025-01-01"), -500)

	rows := BuildForLoan("user01", loan, date(2025, time.February, 1))

	if len(rows) != 2 {
		t.Fatalf("Expected 2 rows, got %d", len(rows))
	}
	last := rows[1]
	if owed := last.Opening.Add(last.Interest); !last.Payment.Equal(owed) {
		t.Errorf("Expected final payment to settle %s owed, got %s", owed, last.Payment)
	}
	if !last.Closing.IsZero() {
		t.Errorf("Expected closing 0, got %s", last.Closing)
	}
	assertLedgerInvariants(t, rows)
}

func TestBuildForLoan_NoPaymentAfterPayoff(t *testing.T) {
	rows := BuildForLoan("user04", newLoan(4000, 10, "2020-01-01"), date(2021, time.January, 1))
	last := rows[len(rows)-1]
	if !last.Closing.IsZero() || !last.Payment.IsZero() {
		t.Errorf("Expected a settled loan to stay at zero, got %+v", last)
	}
}

func TestBuildForLoan_EdgeCases(t *testing.T) {
	t.Run("nil loan", func(t *testing.T) {
		rows := BuildForLoan("user01", nil, date(2025, time.June, 1))
		if rows == nil || len(rows) != 0 {
			t.Errorf("Expected an empty, non-nil statement, got %v", rows)
		}
	})

	t.Run("user without loan", func(t *testing.T) {
		if rows := Build(&models.User{Username: "user01"}, date(2025, time.June, 1)); len(rows) != 0 {
			t.Errorf("Expected no rows, got %d", len(rows))
		}
	})

	t.Run("future start", func(t *testing.T) {
		rows := BuildForLoan("x", newLoan(0, 0, "2030-01-01"), date(2025, time.June, 1))
		assertRows(t, rows, []goldenRow{{"2030-01", 0, 0, 0, 0}})
	})

	t.Run("start in current month", func(t *testing.T) {
		rows := BuildForLoan("user01", newLoan(20000, 10, "2025-06-28"), date(2025, time.June, 2))
		if len(rows) != 1 || rows[0].Month != "2025-06" {
			t.Errorf("Expected a single 2025-06 row, got %+v", rows)
		}
	})

	t.Run("negative amount", func(t *testing.T) {
		rows := BuildForLoan("", newLoan(-500, 0, "2025-06-01"), date(2025, time.June, 1))
		assertRows(t, rows, []goldenRow{{"2025-06", 0, 0, 0, 0}})
	})

	t.Run("malformed start date", func(t *testing.T) {
		rows := BuildForLoan("user01", newLoan(50000, 12, "not a date"), date(2025, time.March, 10))
		if len(rows) != 3 || rows[0].Month != "2025-01" {
			t.Errorf("Expected three rows from the fallback month, got %+v", rows)
		}
	})

	t.Run("missing rate uses default", func(t *testing.T) {
		asOf := date(2025, time.May, 1)
		got := BuildForLoan("user05", newLoan(60000, 0, "2025-01-01"), asOf)
		want := BuildForLoan("user05", newLoan(60000, 10, "2025-01-01"), asOf)
		if !reflect.DeepEqual(got, want) {
			t.Error("Expected a zero rate to behave as 10%")
		}
	})
}

func TestParseStartDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
		ok   bool
	}{
		{"2024-03-15", time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), true},
		{"2024-03", time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC), true},
		{"2024-03-15T10:00:00Z", time.Date(2024, time.March, 15, 10, 0, 0, 0, time.UTC), true},
		{"", FallbackStartDate, false},
		{"15/03/2024", FallbackStartDate, false},
	}
	for _, tc := range tests {
		got, ok := ParseStartDate(tc.in)
		if !got.Equal(tc.want) || ok != tc.ok {
			t.Errorf("ParseStartDate(%q) = %v, %v; want %v, %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestSummarize(t *testing.T) {
	loan := withBalance(newLoan(50000, 12, "2025-01-01"), 42000)
	rows := BuildForLoan("user01", loan, date(2025, time.June, 15))

	summary := Summarize(loan, rows)

	if summary.Months != 6 {
		t.Errorf("Expected 6 months, got %d", summary.Months)
	}
	if !summary.TotalInterest.Equal(decimal.NewFromInt(2689)) {
		t.Errorf("Expected total interest 2689, got %s", summary.TotalInterest)
	}
	if !summary.TotalPaid.Equal(decimal.NewFromInt(10689)) {
		t.Errorf("Expected total paid 10689, got %s", summary.TotalPaid)
	}
	if !summary.Balance.Equal(decimal.NewFromInt(42000)) {
		t.Errorf("Expected balance 42000, got %s", summary.Balance)
	}

	empty := Summarize(loan, nil)
	if !empty.Balance.Equal(decimal.NewFromInt(42000)) {
		t.Errorf("Expected the loan balance without rows, got %s", empty.Balance)
	}
}
