package model

import (
	"bytes"
	"database/sql/driver"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Price limits: five significant digits, two of them after the decimal point.
const (
	PriceMaxDigits     = 5
	PriceDecimalPlaces = 2
	maxPriceCents      = 99999
)

// ErrInvalidPrice is returned for prices that are malformed or out of range.
var ErrInvalidPrice = errors.New("invalid price")

// Price is a non-negative decimal amount stored as whole cents.
//
// It marshals to a JSON string ("5.25") and accepts either a JSON number or a
// string on input. In the database it is an integer column.
type Price int64

// ParsePrice parses a plain decimal such as "5", "5.5" or "5.25".
func ParsePrice(s string) (Price, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty value", ErrInvalidPrice)
	}

	whole, frac, hasDot := strings.Cut(s, ".")
	if whole == "" {
		whole = "0"
	}
	if !isDigits(whole) || (hasDot && !isDigits(frac)) {
		return 0, fmt.Errorf("%w: %q is not a valid number", ErrInvalidPrice, s)
	}
	if len(frac) > PriceDecimalPlaces {
		return 0, fmt.Errorf("%w: no more than %d decimal places allowed", ErrInvalidPrice, PriceDecimalPlaces)
	}

	whole = strings.TrimLeft(whole, "0")
	if len(whole) > PriceMaxDigits-PriceDecimalPlaces {
		return 0, fmt.Errorf("%w: no more than %d digits in total", ErrInvalidPrice, PriceMaxDigits)
	}

	frac += strings.Repeat("0", PriceDecimalPlaces-len(frac))
	cents, err := strconv.ParseInt(whole+frac, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidPrice, err)
	}
	if cents > maxPriceCents {
		return 0, fmt.Errorf("%w: no more than %d digits in total", ErrInvalidPrice, PriceMaxDigits)
	}
	return Price(cents), nil
}

// MustParsePrice is ParsePrice for constants in tests and fixtures.
func MustParsePrice(s string) Price {
	p, err := ParsePrice(s)
	if err != nil {
		panic(err)
	}
	return p
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// Cents returns the amount in cents.
func (p Price) Cents() int64 { return int64(p) }

// String renders the price with exactly two decimal places.
func (p Price) String() string {
	return fmt.Sprintf("%d.%02d", int64(p)/100, int64(p)%100)
}

func (p Price) MarshalJSON() ([]byte, error) {
	return []byte(strconv.Quote(p.String())), nil
}

func (p *Price) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}

	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		unquoted, err := strconv.Unquote(raw)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidPrice, err)
		}
		raw = unquoted
	}

	parsed, err := ParsePrice(raw)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Value stores the price as integer cents.
func (p Price) Value() (driver.Value, error) {
	return int64(p), nil
}

// Scan reads integer cents back from the database.
func (p *Price) Scan(src any) error {
	switch v := src.(type) {
	case int64:
		*p = Price(v)
	case []byte:
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			return fmt.Errorf("model: scanning price: %w", err)
		}
		*p = Price(n)
	case nil:
		*p = 0
	default:
		return fmt.Errorf("model: cannot scan %T into Price", src)
	}
	return nil
}
