package units

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// MinorUnitDecimals is the number of decimal places between the minor and
// major unit of the custodied currency (wei per ether).
const MinorUnitDecimals = 18

var minorPerMajor = decimal.New(1, MinorUnitDecimals)

// Rescale converts an integer amount expressed with fromDecimals implied
// decimal places to one expressed with toDecimals. Growing precision is
// exact; shrinking precision floor-divides, so the fractional remainder is
// silently discarded.
func Rescale(amount decimal.Decimal, fromDecimals, toDecimals int32) (decimal.Decimal, error) {
	if fromDecimals < 0 || toDecimals < 0 {
		return decimal.Zero, fmt.Errorf("negative decimal precision: from=%d to=%d", fromDecimals, toDecimals)
	}
	if fromDecimals == toDecimals {
		return amount, nil
	}
	if fromDecimals > toDecimals {
		divisor := decimal.New(1, fromDecimals-toDecimals)
		q, _ := amount.QuoRem(divisor, 0)
		return q, nil
	}
	return amount.Mul(decimal.New(1, toDecimals-fromDecimals)), nil
}

// ToMajorUnit converts a minor-unit amount to major units, flooring away
// any sub-unit remainder. The conversion is lossy and not invertible:
// ToMajorUnit(FromMajorUnit(x)) == x, but the reverse round trip is not
// guaranteed.
func ToMajorUnit(amountMinor decimal.Decimal) decimal.Decimal {
	q, _ := amountMinor.QuoRem(minorPerMajor, 0)
	return q
}

// FromMajorUnit converts a major-unit amount to minor units.
func FromMajorUnit(amountMajor decimal.Decimal) decimal.Decimal {
	return amountMajor.Mul(minorPerMajor)
}
