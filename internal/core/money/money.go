// Package money converts between the processor's integer minor units and the
// back office's decimal major units without a binary floating-point step.
package money

import (
	"encoding/json"
	"fmt"
	"strings"

	errors "github.com/frahmantamala/finverse-reconciler/internal"
	"github.com/shopspring/decimal"
)

// minorUnitScale is the number of minor units per major unit, as a power of ten.
const minorUnitScale = 2

// ToMajorUnits renders minor units as a decimal string with exactly two
// fractional digits, e.g. 5 -> "0.05" and -12345 -> "-123.45".
func ToMajorUnits(minor int64) string {
	return decimal.NewFromInt(minor).Shift(-minorUnitScale).StringFixed(minorUnitScale)
}

// ParseMinorUnits accepts a JSON number holding an integer count of minor units.
// Fractions, exponents that leave a fraction, and non-numeric text fail with
// ErrInvalidAmount.
func ParseMinorUnits(n json.Number) (int64, error) {
	raw := strings.TrimSpace(n.String())
	if raw == "" {
		return 0, errors.ErrInvalidAmount.WithCause(fmt.Errorf("amount is empty"))
	}

	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, errors.ErrInvalidAmount.WithCause(fmt.Errorf("amount %q: %w", raw, err))
	}
	if !d.IsInteger() {
		return 0, errors.ErrInvalidAmount.WithCause(fmt.Errorf("amount %q has a fractional part", raw))
	}
	if !d.BigInt().IsInt64() {
		return 0, errors.ErrInvalidAmount.WithCause(fmt.Errorf("amount %q overflows int64", raw))
	}

	return d.IntPart(), nil
}

// MajorUnitsFromJSON validates a minor-unit JSON number and converts it.
func MajorUnitsFromJSON(n json.Number) (string, error) {
	minor, err := ParseMinorUnits(n)
	if err != nil {
		return "", err
	}
	return ToMajorUnits(minor), nil
}
