package ingest

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// purchasedAtLayout is the canonical DD-MM-YYYY form receipts are stored in.
const purchasedAtLayout = "02-01-2006"

// NormalizeAmount converts a free-form amount string into a decimal. Every
// rune outside [0-9.-] is stripped first, so "$1,937.66" becomes 1937.66 and
// "USD 12" becomes 12. Thousand separators and decimal points are not
// distinguished beyond that character filter; "1.234" passes through as-is.
func NormalizeAmount(raw string) (decimal.Decimal, error) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" {
		return decimal.Decimal{}, fmt.Errorf("no numeric content in %q", raw)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parsing amount %q: %w", cleaned, err)
	}
	return d, nil
}

// dateLayouts are tried in order. Day-first layouts come before month-first
// ones, so ambiguous input like "07/03/2024" reads as 7 March.
var dateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"01/02/2006",
	"02-01-2006",
	"January 2, 2006",
	"Jan 2, 2006",
	"2 January 2006",
	"02.01.2006",
	time.RFC3339,
}

// NormalizeDate parses a free-form date and reformats it as DD-MM-YYYY. When
// no layout matches, the fallback date is used; the stored value is then
// low-confidence rather than the ingestion failing.
func NormalizeDate(raw string, fallback time.Time) string {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, raw); err == nil {
			return d.Format(purchasedAtLayout)
		}
	}
	return fallback.Format(purchasedAtLayout)
}
