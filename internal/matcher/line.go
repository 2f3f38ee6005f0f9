package matcher

import (
	"math"
	"strings"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
)

// LineItemMatcher scores invoice lines against purchase order lines
type LineItemMatcher struct {
	config *Config
}

// LineMatchOutcome is the result of pairing all lines of two documents
type LineMatchOutcome struct {
	Pairs            []models.MatchCandidatePair
	Records          []models.LineMatchRecord
	UnmatchedPO      []models.LineItem
	UnmatchedInvoice []models.LineItem
}

// NewLineItemMatcher creates a line matcher. A nil config uses DefaultConfig.
func NewLineItemMatcher(config *Config) *LineItemMatcher {
	if config == nil {
		config = DefaultConfig()
	}
	return &LineItemMatcher{config: config}
}

// ScoreCandidate computes the weighted signal score of one PO line against one invoice line
func (m *LineItemMatcher) ScoreCandidate(poLine, invLine models.LineItem) models.MatchCandidatePair {
	w := m.config.Weights
	var signals models.LineSignals

	if poLine.CatalogID != "" && poLine.CatalogID == invLine.CatalogID {
		signals.SKU = w.SKU
	} else if descriptionsOverlap(poLine.Description, invLine.Description) {
		signals.Description = w.Description
	}

	if poLine.HSNCode != "" && strings.EqualFold(strings.TrimSpace(poLine.HSNCode), strings.TrimSpace(invLine.HSNCode)) {
		signals.HSN = w.HSN
	}

	qtyVar := models.VariancePercent(poLine.Quantity, invLine.Quantity)
	signals.Quantity = tieredPoints(w.Quantity, qtyVar, m.config.QtyTolerancePct)

	priceVar := models.VariancePercent(poLine.UnitPrice, invLine.UnitPrice)
	signals.Price = tieredPoints(w.Price, priceVar, m.config.PriceTolerancePct)

	return models.MatchCandidatePair{
		POLine:      poLine,
		InvoiceLine: invLine,
		Score:       models.RoundScore(signals.Total()),
		Signals:     signals,
	}
}

// BestCandidate returns the highest-scoring PO line in pool and its index, or
// nil and -1 when nothing reaches the minimum line score. Ties keep the
// earliest PO line.
func (m *LineItemMatcher) BestCandidate(invLine models.LineItem, pool []models.LineItem) (*models.MatchCandidatePair, int) {
	bestIdx := -1
	var best models.MatchCandidatePair

	for i, poLine := range pool {
		pair := m.ScoreCandidate(poLine, invLine)
		if bestIdx == -1 || pair.Score > best.Score {
			best = pair
			bestIdx = i
		}
	}

	if bestIdx == -1 || best.Score < m.config.MinLineScore {
		return nil, -1
	}
	return &best, bestIdx
}

// MatchLines assigns PO lines to invoice lines greedily in invoice-line order.
// A claimed PO line leaves the pool for the remaining invoice lines.
func (m *LineItemMatcher) MatchLines(poLines, invoiceLines []models.LineItem) LineMatchOutcome {
	pool := make([]models.LineItem, len(poLines))
	copy(pool, poLines)

	var outcome LineMatchOutcome
	for _, invLine := range invoiceLines {
		pair, idx := m.BestCandidate(invLine, pool)
		if pair == nil {
			outcome.UnmatchedInvoice = append(outcome.UnmatchedInvoice, invLine)
			continue
		}

		pool = append(pool[:idx], pool[idx+1:]...)
		outcome.Pairs = append(outcome.Pairs, *pair)
		outcome.Records = append(outcome.Records, m.BuildRecord(*pair))
	}

	outcome.UnmatchedPO = pool
	return outcome
}

// BuildRecord turns a winning pair into a line match record
func (m *LineItemMatcher) BuildRecord(pair models.MatchCandidatePair) models.LineMatchRecord {
	po, inv := pair.POLine, pair.InvoiceLine
	qtyVarPct := models.VariancePercent(po.Quantity, inv.Quantity)
	priceVarPct := models.VariancePercent(po.UnitPrice, inv.UnitPrice)

	return models.LineMatchRecord{
		POLineID:         po.ID,
		InvoiceLineID:    inv.ID,
		QtyVariance:      inv.Quantity.Sub(po.Quantity),
		QtyVariancePct:   models.RoundScore(qtyVarPct),
		PriceVariance:    inv.UnitPrice.Sub(po.UnitPrice),
		PriceVariancePct: models.RoundScore(priceVarPct),
		AmountVariance:   inv.Total().Sub(po.Total()),
		QtyWithinTol:     qtyVarPct <= m.config.QtyTolerancePct,
		PriceWithinTol:   priceVarPct <= m.config.PriceTolerancePct,
		Signals:          pair.Signals,
		Score:            pair.Score,
		Class:            m.Classify(pair.Score),
	}
}

// Classify maps a line score onto EXACT, PARTIAL or NO_MATCH
func (m *LineItemMatcher) Classify(score float64) models.LineMatchClass {
	switch {
	case score >= m.config.ExactLineScore:
		return models.LineMatchExact
	case score >= m.config.PartialLineScore:
		return models.LineMatchPartial
	default:
		return models.LineMatchNone
	}
}

// tieredPoints gives full weight within tolerance and decays one point per
// percentage point of variance outside it.
func tieredPoints(weight, variancePct, tolerancePct float64) float64 {
	if variancePct <= tolerancePct {
		return weight
	}
	return math.Max(0, weight-variancePct)
}

func descriptionsOverlap(a, b string) bool {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}
