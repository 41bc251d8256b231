package uifmt

import (
	"fmt"
	"math"
	"strconv"

	"grid_monitor/internal/units"
)

const undefined = "NaN"

func Ratio(used, total int) string {
	return fmt.Sprintf("%d/%d", used, total)
}

// Count renders slot counts, which are floats in qstat output.
func Count(v float64) string {
	if math.IsNaN(v) {
		return undefined
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// Average renders an average with fixed precision; an undefined average
// renders as NaN.
func Average(v float64, precision int) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return undefined
	}
	return strconv.FormatFloat(v, 'f', precision, 64)
}

func Hours(v float64) string {
	return Average(v, 2)
}

// Mem renders a byte figure with customary symbols. Undefined means render
// as 0.
func Mem(v float64) string {
	return units.FormatMean(v)
}

func Bytes(b units.ByteQuantity) string {
	return units.FormatBytes(b)
}

func MemPair(used, total units.ByteQuantity) string {
	return fmt.Sprintf("%s/%s", compact(used), compact(total))
}

// compact drops the space FormatBytes puts before the symbol.
func compact(b units.ByteQuantity) string {
	s := units.FormatBytes(b)
	if n := len(s); n > 2 && s[n-2] == ' ' {
		return s[:n-2] + s[n-1:]
	}
	return s
}
