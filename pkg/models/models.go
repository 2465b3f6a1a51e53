package models

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleUser    Role = "user"
	RoleManager Role = "manager"
)

type Profile struct {
	Name    string `json:"name"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
	Email   string `json:"email"`
}

// User is one entry of the portal roster (data/users.json).
type User struct {
	Username string  `json:"username"`
	Role     Role    `json:"role"`
	Password string  `json:"password"` // Plaintext demo secret or a bcrypt hash
	Profile  Profile `json:"profile"`
	Loan     *Loan   `json:"loan,omitempty"`
}

// Account returns the user without its password, suitable for responses.
func (u *User) Account() Account {
	return Account{
		Username: u.Username,
		Role:     u.Role,
		Profile:  u.Profile,
		Loan:     u.Loan,
	}
}

type Account struct {
	Username string  `json:"username"`
	Role     Role    `json:"role"`
	Profile  Profile `json:"profile"`
	Loan     *Loan   `json:"loan,omitempty"`
}

// Loan holds the borrower facts a statement is generated from. The JSON
// names follow the roster files. Numeric fields that cannot be read as
// numbers decode to zero instead of failing the whole roster.
type Loan struct {
	AmountBorrowed decimal.Decimal     `json:"amount_borrowed"`
	InterestRate   decimal.Decimal     `json:"interest"`   // Annual percent, zero means unset
	StartDate      string              `json:"start_date"` // Parsed leniently by the ledger
	Balance        decimal.NullDecimal `json:"balance"`    // Known current balance, valid only when given as a JSON number
	LastPayment    string              `json:"last_payment"`
}

type loanJSON struct {
	AmountBorrowed json.RawMessage `json:"amount_borrowed"`
	InterestRate   json.RawMessage `json:"interest"`
	StartDate      json.RawMessage `json:"start_date"`
	Balance        json.RawMessage `json:"balance"`
	LastPayment    json.RawMessage `json:"last_payment"`
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *Loan) UnmarshalJSON(data []byte) error {
	var raw loanJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	l.AmountBorrowed = lenientDecimal(raw.AmountBorrowed)
	l.InterestRate = lenientDecimal(raw.InterestRate)
	l.StartDate = lenientString(raw.StartDate)
	l.LastPayment = lenientString(raw.LastPayment)
	l.Balance = decimal.NullDecimal{}
	if d, ok := jsonNumber(raw.Balance); ok {
		l.Balance = decimal.NewNullDecimal(d)
	}
	return nil
}

// MarshalJSON implements json.Marshaler. Amounts are written as JSON
// numbers so the output can be fed back in as roster data.
func (l Loan) MarshalJSON() ([]byte, error) {
	out := map[string]any{
		"amount_borrowed": json.Number(l.AmountBorrowed.String()),
		"interest":        json.Number(l.InterestRate.String()),
	}
	if l.StartDate != "" {
		out["start_date"] = l.StartDate
	}
	if l.Balance.Valid {
		out["balance"] = json.Number(l.Balance.Decimal.String())
	}
	if l.LastPayment != "" {
		out["last_payment"] = l.LastPayment
	}
	return json.Marshal(out)
}

// jsonNumber reports the value of raw only when it is a JSON number literal.
func jsonNumber(raw json.RawMessage) (decimal.Decimal, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' || raw[0] == 'n' || raw[0] == 't' || raw[0] == 'f' {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(string(raw))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// lenientDecimal accepts numbers and numeric strings; anything else is zero.
func lenientDecimal(raw json.RawMessage) decimal.Decimal {
	if d, ok := jsonNumber(raw); ok {
		return d
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func lenientString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}

// Session is the authenticated identity held between login and logout.
type Session struct {
	ID        uuid.UUID `json:"id"`
	Username  string    `json:"username"`
	Role      Role      `json:"role"`
	Profile   Profile   `json:"profile"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// StatementRow is one month of a generated loan statement. All amounts are
// whole currency units.
type StatementRow struct {
	Month    string          `json:"month"` // YYYY-MM
	Opening  decimal.Decimal `json:"opening"`
	Interest decimal.Decimal `json:"interest"`
	Payment  decimal.Decimal `json:"payment"`
	Closing  decimal.Decimal `json:"closing"`
}

type StatementSummary struct {
	Borrowed      decimal.Decimal `json:"borrowed"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	TotalInterest decimal.Decimal `json:"total_interest"`
	Balance       decimal.Decimal `json:"balance"`
	Months        int             `json:"months"`
}
