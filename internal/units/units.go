package units

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"
)

// ByteQuantity is a non-negative byte count.
type ByteQuantity uint64

type SymbolSet string

const (
	Customary    SymbolSet = "customary"
	CustomaryExt SymbolSet = "customary_ext"
	IEC          SymbolSet = "iec"
	IECExt       SymbolSet = "iec_ext"
)

var symbolTables = map[SymbolSet][]string{
	Customary:    {"B", "K", "M", "G", "T", "P", "E", "Z", "Y"},
	CustomaryExt: {"byte", "kilo", "mega", "giga", "tera", "peta", "exa", "zetta", "iotta"},
	IEC:          {"Bi", "Ki", "Mi", "Gi", "Ti", "Pi", "Ei", "Zi", "Yi"},
	IECExt:       {"byte", "kibi", "mebi", "gibi", "tebi", "pebi", "exbi", "zebi", "yobi"},
}

// lookup order when a symbol appears in more than one table
var tableOrder = []SymbolSet{Customary, CustomaryExt, IEC, IECExt}

var ErrNegativeBytes = errors.New("byte count must be >= 0")

// ParseError reports a magnitude string that could not be interpreted.
type ParseError struct {
	Input  string
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("can't interpret %q", e.Input)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Symbols returns a copy of the symbol table for set, base unit first.
func Symbols(set SymbolSet) ([]string, bool) {
	table, ok := symbolTables[set]
	if !ok {
		return nil, false
	}
	return append([]string(nil), table...), true
}

// HumanToBytes converts strings like "5g", "10.5G", "3 kibi" or "100" into an
// exact byte count. A bare number is bytes; lowercase k, m and g alias K, M
// and G. Fractional bytes are truncated.
func HumanToBytes(s string) (*big.Int, error) {
	i := 0
	for i < len(s) && (isDigit(s[i]) || s[i] == '.') {
		i++
	}
	numPart := s[:i]
	symbol := strings.TrimSpace(s[i:])

	if numPart == "" {
		return nil, &ParseError{Input: s, Reason: "missing numeric magnitude"}
	}
	whole, frac, _ := strings.Cut(numPart, ".")
	if whole+frac == "" || strings.Contains(frac, ".") {
		return nil, &ParseError{Input: s, Reason: "invalid numeric magnitude"}
	}

	shift, ok := lookupShift(symbol)
	if !ok {
		return nil, &ParseError{Input: s, Reason: fmt.Sprintf("unknown unit symbol %q", symbol)}
	}

	// digits * 2^shift / 10^len(frac)
	n, ok := new(big.Int).SetString(whole+frac, 10)
	if !ok {
		return nil, &ParseError{Input: s, Reason: "invalid numeric magnitude"}
	}
	n.Lsh(n, uint(shift))
	if len(frac) > 0 {
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(len(frac))), nil)
		n.Quo(n, scale)
	}
	return n, nil
}

// ParseByteQuantity is HumanToBytes narrowed to a ByteQuantity. Counts of
// 2^64 bytes or more are a *ParseError.
func ParseByteQuantity(s string) (ByteQuantity, error) {
	n, err := HumanToBytes(s)
	if err != nil {
		return 0, err
	}
	if !n.IsUint64() {
		return 0, &ParseError{Input: s, Reason: "value exceeds the representable byte range"}
	}
	return ByteQuantity(n.Uint64()), nil
}

func lookupShift(symbol string) (int, bool) {
	if symbol == "" {
		return 0, true
	}
	for _, set := range tableOrder {
		for idx, candidate := range symbolTables[set] {
			if candidate == symbol {
				return 10 * idx, true
			}
		}
	}
	switch symbol {
	case "k", "m", "g":
		upper := strings.ToUpper(symbol)
		for idx, candidate := range symbolTables[Customary] {
			if candidate == upper {
				return 10 * idx, true
			}
		}
	}
	return 0, false
}

// BytesToHuman renders n with one decimal place using the largest prefix of
// set that n reaches, e.g. 5368709120 -> "5.0 G".
func BytesToHuman(n *big.Int, set SymbolSet) (string, error) {
	if n == nil || n.Sign() < 0 {
		return "", fmt.Errorf("bytes to human %v: %w", n, ErrNegativeBytes)
	}
	table, ok := symbolTables[set]
	if !ok {
		return "", fmt.Errorf("unknown symbol set %q", set)
	}
	return render(n, table), nil
}

// FormatBytes renders b with the customary symbols.
func FormatBytes(b ByteQuantity) string {
	return render(b.Big(), symbolTables[Customary])
}

// FormatMean renders a possibly fractional or undefined byte figure. NaN and
// infinities render as "0".
func FormatMean(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return "0"
	}
	n, _ := big.NewFloat(v).Int(nil)
	return render(n, symbolTables[Customary])
}

func render(n *big.Int, table []string) string {
	for idx := len(table) - 1; idx >= 1; idx-- {
		threshold := new(big.Int).Lsh(big.NewInt(1), uint(10*idx))
		if n.Cmp(threshold) >= 0 {
			q, _ := new(big.Rat).SetFrac(n, threshold).Float64()
			return fmt.Sprintf("%.1f %s", q, table[idx])
		}
	}
	return fmt.Sprintf("%.1f %s", float64(n.Int64()), table[0])
}

// Big returns b as a big.Int for BytesToHuman.
func (b ByteQuantity) Big() *big.Int {
	return new(big.Int).SetUint64(uint64(b))
}

// String implements fmt.Stringer.
func (b ByteQuantity) String() string {
	return FormatBytes(b)
}

// DecimalGB is b divided by 10^9, the scale capacity tiers are expressed in.
func (b ByteQuantity) DecimalGB() float64 {
	return float64(b) / 1e9
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}
