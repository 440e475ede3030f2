package money

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"math"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var ErrInvalidAmount = errors.New("invalid monetary amount")

// System-wide payout bounds: the smallest and largest amount a single
// payout may carry.
var (
	MinPayout = Money{amount: decimal.New(1, -2)}    // 0.01
	MaxPayout = Money{amount: decimal.New(9999, -2)} // 99.99
)

var brPrinter = message.NewPrinter(language.BrazilianPortuguese)

// Money is a fixed-point amount with exactly two decimal places.
// All monetary values in the system share this representation so that
// arithmetic never touches binary floats.
type Money struct {
	amount decimal.Decimal
}

// New parses a decimal string such as "12.34". It fails with
// ErrInvalidAmount when the input is not a number or carries more than
// two decimal places.
func New(value string) (Money, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return Money{}, fmt.Errorf("%w: %q", ErrInvalidAmount, value)
	}

	return fromDecimal(d)
}

// NewFromFloat converts a float input, rejecting non-finite values and
// values that are not representable with two decimal places.
func NewFromFloat(value float64) (Money, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Money{}, fmt.Errorf("%w: non-finite value", ErrInvalidAmount)
	}

	return fromDecimal(decimal.NewFromFloat(value))
}

// NewFromCents builds a Money from an integer number of minor units.
func NewFromCents(cents int64) Money {
	return Money{amount: decimal.New(cents, -2)}
}

func fromDecimal(d decimal.Decimal) (Money, error) {
	if !d.Equal(d.Round(2)) {
		return Money{}, fmt.Errorf("%w: more than two decimal places", ErrInvalidAmount)
	}

	return Money{amount: d}, nil
}

// NewPayout parses an amount and enforces the system-wide payout bounds.
func NewPayout(value string) (Money, error) {
	m, err := New(value)
	if err != nil {
		return Money{}, err
	}

	if m.LessThan(MinPayout) || m.GreaterThan(MaxPayout) {
		return Money{}, fmt.Errorf("%w: amount %s outside payout bounds [%s, %s]",
			ErrInvalidAmount, m.String(), MinPayout.String(), MaxPayout.String())
	}

	return m, nil
}

func (m Money) Add(other Money) Money {
	return Money{amount: m.amount.Add(other.amount)}
}

func (m Money) Sub(other Money) Money {
	return Money{amount: m.amount.Sub(other.amount)}
}

func (m Money) Cmp(other Money) int {
	return m.amount.Cmp(other.amount)
}

func (m Money) Equal(other Money) bool {
	return m.amount.Equal(other.amount)
}

func (m Money) LessThan(other Money) bool {
	return m.amount.LessThan(other.amount)
}

func (m Money) GreaterThan(other Money) bool {
	return m.amount.GreaterThan(other.amount)
}

func (m Money) IsZero() bool {
	return m.amount.IsZero()
}

func (m Money) IsNegative() bool {
	return m.amount.IsNegative()
}

func (m Money) Decimal() decimal.Decimal {
	return m.amount
}

// String returns the plain wire format, e.g. "12.34".
func (m Money) String() string {
	return m.amount.StringFixed(2)
}

// Display renders the amount for Brazilian users, e.g. "R$ 12,34".
// Presentation only; never parsed back.
func (m Money) Display() string {
	f, _ := m.amount.Float64()
	return brPrinter.Sprintf("R$ %.2f", f)
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.amount.StringFixed(2) + `"`), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	s := string(data)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = s[1 : len(s)-1]
	}

	parsed, err := New(s)
	if err != nil {
		return err
	}

	*m = parsed
	return nil
}

func (m *Money) Scan(value any) error {
	var d decimal.Decimal
	if err := d.Scan(value); err != nil {
		return err
	}

	m.amount = d
	return nil
}

func (m Money) Value() (driver.Value, error) {
	return m.amount.StringFixed(2), nil
}
