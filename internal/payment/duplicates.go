package payment

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
)

// DuplicateGroup is a set of bank transactions that look like one statement
// line imported more than once
type DuplicateGroup struct {
	GroupID        string                      `json:"groupId"`
	TransactionIDs []string                    `json:"transactionIds"`
	Amount         decimal.Decimal             `json:"amount"`
	Direction      models.TransactionDirection `json:"direction"`
	Confidence     float64                     `json:"confidence"`
	Reason         string                      `json:"reason"`
}

// DetectDuplicates groups transactions with the same amount and direction
// dated at most windowDays apart. Two lines carrying different non-empty
// references are never duplicates. Groups follow the input order of their
// first transaction.
func DetectDuplicates(txns []*models.BankTransaction, windowDays int) []DuplicateGroup {
	var groups []DuplicateGroup
	processed := make(map[int]bool)

	for i, first := range txns {
		if processed[i] {
			continue
		}
		members := []*models.BankTransaction{first}
		for j := i + 1; j < len(txns); j++ {
			if processed[j] {
				continue
			}
			if isPotentialDuplicate(first, txns[j], windowDays) {
				members = append(members, txns[j])
				processed[j] = true
			}
		}
		processed[i] = true

		if len(members) < 2 {
			continue
		}
		ids := make([]string, len(members))
		for k, t := range members {
			ids[k] = t.ID
		}
		groups = append(groups, DuplicateGroup{
			GroupID:        "DUP_" + first.ID,
			TransactionIDs: ids,
			Amount:         first.Amount,
			Direction:      first.Direction,
			Confidence:     duplicateConfidence(members, windowDays),
			Reason:         duplicateReason(members),
		})
	}
	return groups
}

func isPotentialDuplicate(a, b *models.BankTransaction, windowDays int) bool {
	if !a.Amount.Equal(b.Amount) || a.Direction != b.Direction {
		return false
	}
	if daysApart(a, b) > windowDays {
		return false
	}
	refA, refB := normalizeRef(a.Reference), normalizeRef(b.Reference)
	return refA == "" || refB == "" || refA == refB
}

// duplicateConfidence averages, over the members after the first, a score
// of amount and direction (0.6), date proximity (0.2 same day, 0.1 inside
// the window) and a shared reference (0.2)
func duplicateConfidence(members []*models.BankTransaction, windowDays int) float64 {
	first := members[0]
	total := 0.0
	for _, t := range members[1:] {
		score := 0.6
		switch days := daysApart(first, t); {
		case days == 0:
			score += 0.2
		case days <= windowDays:
			score += 0.1
		}
		if ref := normalizeRef(first.Reference); ref != "" && ref == normalizeRef(t.Reference) {
			score += 0.2
		}
		total += score
	}
	return models.RoundScore(total / float64(len(members)-1))
}

func duplicateReason(members []*models.BankTransaction) string {
	dates := make([]string, 0, len(members))
	seen := map[string]bool{}
	for _, t := range members {
		d := t.Date.Format(dayKeyLayout)
		if !seen[d] {
			seen[d] = true
			dates = append(dates, d)
		}
	}
	sort.Strings(dates)
	return fmt.Sprintf("%d %s transactions of %s on %s",
		len(members), strings.ToLower(string(members[0].Direction)), members[0].Amount.StringFixed(2), strings.Join(dates, ", "))
}

func daysApart(a, b *models.BankTransaction) int {
	return models.AbsDays(a.Date, b.Date)
}

func normalizeRef(ref string) string {
	return strings.ToUpper(strings.Join(strings.Fields(ref), ""))
}
