package payments

import (
	"strings"

	"github.com/shopspring/decimal"
)

// FormatCurrency renders minor units as dollars with thousands separators,
// e.g. 123456 -> "$1,234.56". A nil amount renders as "Unknown".
func FormatCurrency(amount *int64) string {
	if amount == nil {
		return "Unknown"
	}
	d := decimal.New(*amount, -2)
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Abs()
	}
	whole, frac, _ := strings.Cut(d.StringFixed(2), ".")
	return sign + "$" + groupThousands(whole) + "." + frac
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func formatAmountRaw(amount *int64) string {
	if amount == nil {
		return "Unknown"
	}
	return decimal.NewFromInt(*amount).String()
}
