package ledger

import (
	"math"
	"strings"
	"time"

	"github.com/mcclellann/snpLoans/pkg/models"
	"github.com/shopspring/decimal"
)

const (
	defaultInterestRate = 10   // Annual percent when the loan carries none
	minBasePayment      = 1000 // Floor for the typical monthly installment
	basePaymentShare    = 0.06 // Typical installment as a share of the amount borrowed
	paymentFactorMin    = 0.85 // Lowest multiplier applied to the typical installment
	paymentFactorSpan   = 0.5  // Multipliers fall in [0.85, 1.35)
	monthsInYear        = 12
)

// FallbackStartDate is used for loans whose start date is missing or cannot
// be parsed.
var FallbackStartDate = time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)

var startDateLayouts = []string{
	"2006-01-02",
	time.RFC3339,
	"2006-01",
}

// ParseStartDate reads a loan start date. The second result is false when
// the value was unusable and FallbackStartDate was returned instead.
func ParseStartDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	for _, layout := range startDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return FallbackStartDate, false
}

// Build generates the monthly statement of a user's loan from its start
// month through the month of asOf. A user without a loan has an empty
// statement.
func Build(user *models.User, asOf time.Time) []models.StatementRow {
	if user == nil {
		return []models.StatementRow{}
	}
	return BuildForLoan(user.Username, user.Loan, asOf)
}

// BuildForLoan generates a synthetic but internally consistent history for
// loan. The same username, loan and month always produce the same rows:
// payments are drawn from a generator seeded by the username. When the loan
// carries a known balance, no month pays the balance below it and the last
// month closes on it.
func BuildForLoan(username string, loan *models.Loan, asOf time.Time) []models.StatementRow {
	if loan == nil {
		return []models.StatementRow{}
	}

	rate := annualRate(loan) / 100
	start, _ := ParseStartDate(loan.StartDate)
	start = monthStart(start)
	n := max(1, monthsInclusive(start, monthStart(asOf)))

	amount := loan.AmountBorrowed.InexactFloat64()
	balance := roundHalfUp(amount)
	base := math.Max(minBasePayment, roundHalfUp(amount*basePaymentShare))

	target, hasTarget := 0.0, loan.Balance.Valid
	if hasTarget {
		// A balance below zero cannot be reached without overpaying.
		target = math.Max(0, loan.Balance.Decimal.InexactFloat64())
	}

	rnd := newStatementRand(username)
	rows := make([]models.StatementRow, 0, n)
	for i := 0; i < n; i++ {
		opening := math.Max(0, roundHalfUp(balance))
		interest := roundHalfUp(opening * rate / monthsInYear)
		owed := opening + interest

		var payment float64
		if i == n-1 && hasTarget {
			payment = math.Max(0, roundHalfUp(owed-target))
		} else {
			// Explicit conversion keeps the multiply and add from fusing.
			factor := paymentFactorMin + float64(rnd.Float64()*paymentFactorSpan)
			payment = math.Min(roundHalfUp(base*factor), owed)
			if hasTarget {
				payment = math.Min(payment, math.Max(0, roundHalfUp(owed-target)))
			}
		}
		closing := math.Max(0, roundHalfUp(owed-payment))

		rows = append(rows, models.StatementRow{
			Month:    MonthLabel(start.AddDate(0, i, 0)),
			Opening:  decimal.NewFromFloat(opening),
			Interest: decimal.NewFromFloat(interest),
			Payment:  decimal.NewFromFloat(payment),
			Closing:  decimal.NewFromFloat(closing),
		})
		balance = closing
	}
	return rows
}

// Summarize totals a statement for the detail view. With no rows the
// balance falls back to the loan's known balance.
func Summarize(loan *models.Loan, rows []models.StatementRow) models.StatementSummary {
	summary := models.StatementSummary{Months: len(rows)}
	if loan != nil {
		summary.Borrowed = loan.AmountBorrowed
		if loan.Balance.Valid {
			summary.Balance = loan.Balance.Decimal
		}
	}
	for _, row := range rows {
		summary.TotalPaid = summary.TotalPaid.Add(row.Payment)
		summary.TotalInterest = summary.TotalInterest.Add(row.Interest)
	}
	if len(rows) > 0 {
		summary.Balance = rows[len(rows)-1].Closing
	}
	return summary
}

// MonthLabel formats the month of t as YYYY-MM.
func MonthLabel(t time.Time) string {
	return t.Format("2006-01")
}

func annualRate(loan *models.Loan) float64 {
	if loan.InterestRate.IsZero() {
		return defaultInterestRate
	}
	return loan.InterestRate.InexactFloat64()
}

// monthStart truncates t to the first day of its month, keeping the
// calendar month t has in its own location.
func monthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func monthsInclusive(from, to time.Time) int {
	return (to.Year()-from.Year())*monthsInYear + int(to.Month()-from.Month()) + 1
}

// roundHalfUp rounds to the nearest integer with ties toward positive
// infinity.
func roundHalfUp(x float64) float64 {
	r := math.Floor(x)
	if x-r >= 0.5 {
		r++
	}
	return r
}
