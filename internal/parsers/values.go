package parsers

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
)

// parseAmount reads amounts as exports write them: currency symbols,
// thousands separators, "(1,200.00)" or a trailing "Dr" for negatives and a
// trailing "Cr" for positives
func parseAmount(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" || s == "-" {
		return decimal.Zero, nil
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	upper := strings.ToUpper(s)
	switch {
	case strings.HasSuffix(upper, "DR"):
		negative = !negative
		s = s[:len(s)-2]
	case strings.HasSuffix(upper, "CR"):
		s = s[:len(s)-2]
	}

	s = strings.NewReplacer("₹", "", "Rs.", "", "INR", "", "$", "", ",", "", " ", "").Replace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("no digits in amount %q", raw)
	}

	amount, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", raw, err)
	}
	if negative {
		amount = amount.Neg()
	}
	return amount, nil
}

// parseDate tries each layout format and returns the calendar day in UTC
func parseDate(raw string, formats []string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, fmt.Errorf("date is empty")
	}
	for _, format := range formats {
		if t, err := time.Parse(format, s); err == nil {
			return models.TruncateDay(t), nil
		}
	}
	// exports sometimes append a time of day
	if i := strings.IndexAny(s, " T"); i > 0 {
		for _, format := range formats {
			if t, err := time.Parse(format, s[:i]); err == nil {
				return models.TruncateDay(t), nil
			}
		}
	}
	return time.Time{}, fmt.Errorf("date %q matches none of %v", raw, formats)
}

// parseDirection maps a type column to a direction. ok is false for values
// that name neither side.
func parseDirection(raw string) (models.TransactionDirection, bool) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "DR", "D", "DEBIT", "WITHDRAWAL", "PAYMENT", "OUT":
		return models.DirectionDebit, true
	case "CR", "C", "CREDIT", "DEPOSIT", "RECEIPT", "IN":
		return models.DirectionCredit, true
	default:
		return "", false
	}
}

// parseFiled reads a filing status. An empty value counts as filed, since
// the statement only lists what counterparties reported.
func parseFiled(raw string) bool {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "N", "NO", "NOT FILED", "FALSE", "0", "PENDING":
		return false
	default:
		return true
	}
}

// normalizePeriod accepts "2024-03", "032024" and "Mar-2024" and returns
// the YYYY-MM form return entries are stored with
func normalizePeriod(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	for _, format := range []string{"2006-01", "012006", "Jan-2006", "January 2006", "01/2006"} {
		if t, err := time.Parse(format, s); err == nil {
			return t.Format("2006-01"), nil
		}
	}
	return "", fmt.Errorf("return period %q is not a month", raw)
}
