package model

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money is an amount in minor currency units (cents) with its ISO currency code.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

// Mul returns m multiplied by a quantity.
func (m Money) Mul(qty int) Money {
	return Money{Amount: m.Amount * int64(qty), Currency: m.Currency}
}

// Add sums two amounts. An empty currency adopts the other side's currency.
func (m Money) Add(o Money) Money {
	currency := m.Currency
	if currency == "" {
		currency = o.Currency
	}
	return Money{Amount: m.Amount + o.Amount, Currency: currency}
}

// String renders the amount with two decimals, e.g. "PKR 1250.00".
func (m Money) String() string {
	sign := ""
	amount := m.Amount
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	s := fmt.Sprintf("%s%d.%02d", sign, amount/100, amount%100)
	if m.Currency == "" {
		return s
	}
	return m.Currency + " " + s
}

// CentDigits is the number of decimals Money.Amount carries.
const CentDigits = 2

// ParseCents converts a decimal amount in major units to hundredths:
// "99.00" → 9900, "1234.56" → 123456. Unparseable input is zero.
func ParseCents(s string) int64 {
	if s == "" {
		return 0
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(f * 100))
}

// ParseMinorUnits converts an integer amount expressed in a currency's own
// minor unit to hundredths. digits is the currency's decimal places: 2 for
// USD, 0 for JPY, 3 for KWD. "8900" with 2 digits → 8900; "1250" with 0
// digits → 125000; "1500" with 3 digits → 150.
func ParseMinorUnits(s string, digits int) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		// Some plugins render minor units with a trailing ".00".
		f, ferr := strconv.ParseFloat(s, 64)
		if ferr != nil {
			return 0
		}
		n = int64(f)
	}
	switch {
	case digits < CentDigits:
		return n * pow10(CentDigits-digits)
	case digits > CentDigits:
		return n / pow10(digits-CentDigits)
	default:
		return n
	}
}

func pow10(n int) int64 {
	p := int64(1)
	for range n {
		p *= 10
	}
	return p
}
