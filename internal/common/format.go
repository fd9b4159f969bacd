package common

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/shopspring/decimal"
)

// Report widths used by the cmd tools.
const (
	DefaultWidth = 80
	WideWidth    = 100
)

// out is where report helpers write; tests swap it.
var out io.Writer = os.Stdout

func rule(width int) string {
	return strings.Repeat("=", width)
}

// PrintHeader prints a report title framed by rules.
func PrintHeader(title string, width int) {
	fmt.Fprintf(out, "\n%s\n%s\n%s\n", rule(width), title, rule(width))
}

// PrintFooter prints a summary line framed by rules, followed by a blank line.
func PrintFooter(message string, width int) {
	fmt.Fprintf(out, "\n%s\n%s\n%s\n\n", rule(width), message, rule(width))
}

// PrintBoxSeparator prints a sub-section divider inside a box listing.
func PrintBoxSeparator(width int) {
	fmt.Fprintln(out, "├"+strings.Repeat("─", width))
}

func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "│  "
}

// BoxDetailPrefix indents a detail line under the item printed with
// BoxPrefix(isLast), keeping the tree rail for non-last items.
func BoxDetailPrefix(isLast bool) string {
	if isLast {
		return "   "
	}
	return "│  "
}

// FormatAmount renders a token amount with two decimals, e.g. "10.59 NCR".
func FormatAmount(amount decimal.Decimal, token string) string {
	return amount.StringFixed(2) + " " + token
}

// ShortId truncates long identifiers for table output.
func ShortId(id string) string {
	if id == "" {
		return "none"
	}
	if len(id) > 8 {
		return id[:8] + "..."
	}
	return id
}
