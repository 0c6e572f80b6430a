package formatting

import (
	"fmt"
	"strings"
)

// Separator returns a horizontal rule of the given width
func Separator(width int) string {
	return strings.Repeat("=", width)
}

// Money formats a dollar amount with sign
func Money(v float64) string {
	if v < 0 {
		return fmt.Sprintf("-$%.2f", -v)
	}
	return fmt.Sprintf("$%.2f", v)
}

// Percent formats a percentage with one decimal
func Percent(v float64) string {
	return fmt.Sprintf("%.1f%%", v)
}
