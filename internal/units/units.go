// Package units converts between wei amounts and the ether decimals shown to people.
// Only input parsing and rendering use it; cached state always holds wei.
package units

import (
	"math/big"
	"strings"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

const etherDecimals = 18

// ParseEther turns a decimal ether string such as "1.5" into wei.
func ParseEther(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty amount")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid amount %q", s)
	}
	if d.IsNegative() {
		return nil, errors.Errorf("negative amount %q", s)
	}
	wei := d.Shift(etherDecimals)
	if !wei.Equal(wei.Truncate(0)) {
		return nil, errors.Errorf("amount %q has more than %d decimals", s, etherDecimals)
	}
	return wei.BigInt(), nil
}

// FormatEther renders wei as ether with grouped thousands, e.g. 1234.5 ETH -> "1,234.5".
func FormatEther(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	p := message.NewPrinter(language.English)
	x := decimal.NewFromBigInt(wei, -etherDecimals)
	intPart := x.Truncate(0)
	var grouped string
	if whole := intPart.BigInt(); whole.IsInt64() {
		grouped = p.Sprintf("%v", whole.Int64())
	} else {
		grouped = groupThousands(whole.String())
	}
	if x.Equal(intPart) {
		return grouped
	}
	parts := strings.Split(x.String(), ".")
	if len(parts) != 2 {
		return grouped
	}
	if x.IsNegative() && intPart.IsZero() {
		grouped = "-" + grouped
	}
	return grouped + "." + parts[1]
}

// groupThousands inserts commas into a decimal integer too large for the printer's int64 path.
func groupThousands(digits string) string {
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}
	var b strings.Builder
	head := len(digits) % 3
	if head == 0 {
		head = 3
	}
	b.WriteString(digits[:head])
	for i := head; i < len(digits); i += 3 {
		b.WriteByte(',')
		b.WriteString(digits[i : i+3])
	}
	return sign + b.String()
}
