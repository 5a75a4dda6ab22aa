package models

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Money is an amount in cents.
type Money int64

// Dollars builds a Money value from whole dollars and cents.
func Dollars(dollars, cents int64) Money {
	return Money(dollars*100 + cents)
}

// ParseMoney parses "12", "12.5" or "12.50" (an optional leading "$" is allowed).
func ParseMoney(raw string) (Money, error) {
	s := strings.TrimPrefix(strings.TrimSpace(raw), "$")
	if s == "" {
		return 0, fmt.Errorf("empty amount")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if f < 0 {
		return 0, fmt.Errorf("negative amount %q", raw)
	}
	return Money(math.Round(f * 100)), nil
}

// Decimal renders the amount as "10.00".
func (m Money) Decimal() string {
	sign := ""
	v := int64(m)
	if v < 0 {
		sign = "-"
		v = -v
	}
	return fmt.Sprintf("%s%d.%02d", sign, v/100, v%100)
}

func (m Money) String() string {
	return "$" + m.Decimal()
}

func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal()), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	parsed, err := ParseMoney(strings.Trim(string(data), `"`))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

// UnmarshalYAML accepts prices written as plain numbers in config files.
func (m *Money) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	parsed, err := ParseMoney(raw)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}
