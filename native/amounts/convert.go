package amounts

import (
	"fmt"
	"math/big"
	"strings"
)

// CanonicalDecimals is the fixed internal precision all price and fee math
// operates on, regardless of the native precision of the paired tokens.
const CanonicalDecimals uint8 = 18

// MaxDecimals bounds the token precisions accepted by the conversion helpers.
const MaxDecimals uint8 = 18

// ErrDecimalsOutOfRange indicates a token precision outside the supported
// 0-18 range.
var ErrDecimalsOutOfRange = fmt.Errorf("amounts: decimals exceed %d", MaxDecimals)

// Pow10 returns 10^n as a big integer.
func Pow10(n uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
}

// Convert rescales amount from one token precision to another. Equal
// precisions return a defensive copy. Shrinking divides by the power-of-ten
// gap and truncates toward zero: redemption payouts round down in the
// protocol's favour. Growing multiplies by the gap. All arithmetic is on
// big integers so a 10^18 intermediate cannot overflow.
func Convert(amount *big.Int, fromDecimals, toDecimals uint8) (*big.Int, error) {
	if fromDecimals > MaxDecimals || toDecimals > MaxDecimals {
		return nil, ErrDecimalsOutOfRange
	}
	if amount == nil {
		return big.NewInt(0), nil
	}
	switch {
	case fromDecimals == toDecimals:
		return new(big.Int).Set(amount), nil
	case fromDecimals > toDecimals:
		return new(big.Int).Quo(amount, Pow10(fromDecimals-toDecimals)), nil
	default:
		return new(big.Int).Mul(amount, Pow10(toDecimals-fromDecimals)), nil
	}
}

// ToCanonical rescales a token-native amount to the canonical 18 digit
// precision.
func ToCanonical(amount *big.Int, decimals uint8) (*big.Int, error) {
	return Convert(amount, decimals, CanonicalDecimals)
}

// FromCanonical rescales a canonical-precision amount back to a token-native
// precision, flooring when the target is coarser.
func FromCanonical(amount *big.Int, decimals uint8) (*big.Int, error) {
	return Convert(amount, CanonicalDecimals, decimals)
}

// Parse decodes a non-negative decimal integer string into a big integer.
// Used by the gateway to accept amounts without float round-trips.
func Parse(value string) (*big.Int, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return nil, fmt.Errorf("amounts: value required")
	}
	parsed, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("amounts: invalid amount %q", value)
	}
	if parsed.Sign() < 0 {
		return nil, fmt.Errorf("amounts: amount %q must not be negative", value)
	}
	return parsed, nil
}
