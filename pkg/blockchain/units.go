package blockchain

import (
	"math/big"
	"strings"
)

// FormatUnits renders an integer amount with the given number of decimals
// without going through floating point, e.g. FormatUnits(1500, 3) == "1.5".
func FormatUnits(amount *big.Int, decimals int) string {
	if amount == nil {
		return "0"
	}
	if decimals <= 0 {
		return amount.String()
	}

	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)
	divisor := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)

	whole, frac := new(big.Int).QuoRem(abs, divisor, new(big.Int))

	var b strings.Builder
	if neg {
		b.WriteByte('-')
	}
	b.WriteString(whole.String())

	if frac.Sign() != 0 {
		fracStr := frac.String()
		fracStr = strings.Repeat("0", decimals-len(fracStr)) + fracStr
		b.WriteByte('.')
		b.WriteString(strings.TrimRight(fracStr, "0"))
	}

	return b.String()
}

// FormatEther renders wei as ether.
func FormatEther(wei *big.Int) string {
	return FormatUnits(wei, 18)
}
