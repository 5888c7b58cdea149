package models

import (
	"database/sql/driver"

	"github.com/shopspring/decimal"
)

// Money is a decimal amount rendered with two fraction digits. It scans
// from NUMERIC columns.
type Money struct {
	decimal.Decimal
}

// NewMoney parses s, e.g. "19.90".
func NewMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{d}, nil
}

// MustMoney is [NewMoney] for constants; it panics on malformed input.
func MustMoney(s string) Money {
	m, err := NewMoney(s)
	if err != nil {
		panic(err)
	}
	return m
}

// Times returns m multiplied by n.
func (m Money) Times(n int) Money {
	return Money{m.Mul(decimal.NewFromInt(int64(n)))}
}

// Plus returns m + o.
func (m Money) Plus(o Money) Money {
	return Money{m.Add(o.Decimal)}
}

// String returns the amount with two decimals.
func (m Money) String() string {
	return m.StringFixed(2)
}

// MarshalJSON renders the amount as a JSON string, e.g. "19.90".
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(`"` + m.String() + `"`), nil
}

// Value implements driver.Valuer.
func (m Money) Value() (driver.Value, error) {
	return m.String(), nil
}
