package models

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Discrepancy is one detected difference between two records
type Discrepancy struct {
	Type     DiscrepancyType  `json:"type"`
	Severity Severity         `json:"severity"`
	Message  string           `json:"message"`
	LineID   string           `json:"lineId,omitempty"`
	Expected *decimal.Decimal `json:"expected,omitempty"`
	Actual   *decimal.Decimal `json:"actual,omitempty"`
	Variance *float64         `json:"variance,omitempty"`
}

// NewDiscrepancy builds a discrepancy without numeric detail
func NewDiscrepancy(t DiscrepancyType, sev Severity, message string) Discrepancy {
	return Discrepancy{Type: t, Severity: sev, Message: message}
}

// WithValues attaches expected and actual values and the variance between them
func (d Discrepancy) WithValues(expected, actual decimal.Decimal, variance float64) Discrepancy {
	d.Expected = &expected
	d.Actual = &actual
	v := RoundScore(variance)
	d.Variance = &v
	return d
}

func (d Discrepancy) String() string {
	return fmt.Sprintf("[%s] %s: %s", d.Severity, d.Type, d.Message)
}

// HasHighSeverity reports whether any discrepancy is HIGH
func HasHighSeverity(ds []Discrepancy) bool {
	for _, d := range ds {
		if d.Severity == SeverityHigh {
			return true
		}
	}
	return false
}

// LineSignals is the per-signal breakdown of a line score
type LineSignals struct {
	SKU         float64 `json:"sku"`
	Description float64 `json:"description"`
	HSN         float64 `json:"hsn"`
	Quantity    float64 `json:"quantity"`
	Price       float64 `json:"price"`
}

// Total sums the signals
func (s LineSignals) Total() float64 {
	return s.SKU + s.Description + s.HSN + s.Quantity + s.Price
}

// MatchCandidatePair is a transient PO line / invoice line scoring
type MatchCandidatePair struct {
	POLine      LineItem
	InvoiceLine LineItem
	Score       float64
	Signals     LineSignals
}

// LineMatchRecord is the result of pairing one PO line with one invoice line
type LineMatchRecord struct {
	POLineID         string          `json:"poLineId"`
	InvoiceLineID    string          `json:"invoiceLineId"`
	QtyVariance      decimal.Decimal `json:"qtyVariance"`
	QtyVariancePct   float64         `json:"qtyVariancePct"`
	PriceVariance    decimal.Decimal `json:"priceVariance"`
	PriceVariancePct float64         `json:"priceVariancePct"`
	AmountVariance   decimal.Decimal `json:"amountVariance"`
	QtyWithinTol     bool            `json:"qtyWithinTolerance"`
	PriceWithinTol   bool            `json:"priceWithinTolerance"`
	Signals          LineSignals     `json:"signals"`
	Score            float64         `json:"score"`
	Class            LineMatchClass  `json:"class"`
}

// Resolution records a reviewer's decision on a queued match
type Resolution struct {
	ResolvedBy string    `json:"resolvedBy"`
	ResolvedAt time.Time `json:"resolvedAt"`
	Note       string    `json:"note,omitempty"`
}

// DocumentMatchRecord is the verdict for one PO to invoice pairing
type DocumentMatchRecord struct {
	OrgID                 string            `json:"orgId"`
	PurchaseOrderID       string            `json:"purchaseOrderId"`
	InvoiceID             string            `json:"invoiceId"`
	Score                 float64           `json:"score"`
	MatchType             DocumentMatchType `json:"matchType"`
	LineMatches           []LineMatchRecord `json:"lineMatches"`
	UnmatchedPOLines      []string          `json:"unmatchedPoLines,omitempty"`
	UnmatchedInvoiceLines []string          `json:"unmatchedInvoiceLines,omitempty"`
	Discrepancies         []Discrepancy     `json:"discrepancies"`
	TotalValueMatch       bool              `json:"totalValueMatch"`
	TotalGSTMatch         bool              `json:"totalGstMatch"`
	ValueVariancePct      float64           `json:"valueVariancePct"`
	GSTVariancePct        float64           `json:"gstVariancePct"`
	Reasons               []string          `json:"reasons"`
	NeedsReview           bool              `json:"needsReview"`
	AutoApprove           bool              `json:"autoApprove"`
	Resolution            *Resolution       `json:"resolution,omitempty"`
}

// PaymentSignals is the per-signal breakdown of a payment candidate score
type PaymentSignals struct {
	Amount      float64 `json:"amount"`
	Reference   float64 `json:"reference"`
	Description float64 `json:"description"`
	Date        float64 `json:"date"`
}

// Total sums the signals
func (s PaymentSignals) Total() float64 {
	return s.Amount + s.Reference + s.Description + s.Date
}

// PaymentCandidate is one invoice scored against a bank transaction
type PaymentCandidate struct {
	InvoiceID     string           `json:"invoiceId"`
	InvoiceNumber string           `json:"invoiceNumber"`
	Outstanding   decimal.Decimal  `json:"outstanding"`
	Difference    decimal.Decimal  `json:"difference"`
	Signals       PaymentSignals   `json:"signals"`
	Score         float64          `json:"score"`
	MatchType     PaymentMatchType `json:"matchType"`
	Reasons       []string         `json:"reasons"`
}

// PaymentMatchResult ranks candidate invoices for one bank transaction
type PaymentMatchResult struct {
	OrgID         string              `json:"orgId"`
	TransactionID string              `json:"transactionId"`
	Candidates    []PaymentCandidate  `json:"candidates"`
	BestMatch     *PaymentCandidate   `json:"bestMatch,omitempty"`
	Confidence    float64             `json:"confidence"`
	MatchType     PaymentMatchType    `json:"matchType,omitempty"`
	AutoMatch     bool                `json:"autoMatch"`
	NeedsReview   bool                `json:"needsReview"`
	SplitProposal []AllocationRequest `json:"splitProposal,omitempty"`
	Reasons       []string            `json:"reasons"`
}

// AllocationRequest asks for amount of a transaction to be applied to an invoice
type AllocationRequest struct {
	InvoiceID string          `json:"invoiceId"`
	Amount    decimal.Decimal `json:"amount"`
}

// InvoicePaymentUpdate is the new settlement state of an invoice
type InvoicePaymentUpdate struct {
	InvoiceID string `json:"invoiceId"`
	// PreviousPaid is the paid amount the update was computed from. Stores
	// refuse the update when the invoice no longer carries it.
	PreviousPaid decimal.Decimal `json:"previousPaid"`
	AmountPaid   decimal.Decimal `json:"amountPaid"`
	Status       PaymentStatus   `json:"status"`
}

// AllocationPlan is a self-consistent set of writes for one transaction
type AllocationPlan struct {
	OrgID             string                 `json:"orgId"`
	TransactionID     string                 `json:"transactionId"`
	Allocations       []PaymentAllocation    `json:"allocations"`
	InvoiceUpdates    []InvoicePaymentUpdate `json:"invoiceUpdates"`
	TransactionStatus TransactionStatus      `json:"transactionStatus"`
	Confidence        float64                `json:"confidence"`
}

// ReversalPlan undoes allocations of one transaction
type ReversalPlan struct {
	OrgID             string                 `json:"orgId"`
	TransactionID     string                 `json:"transactionId"`
	Removed           []PaymentAllocation    `json:"removed"`
	InvoiceUpdates    []InvoicePaymentUpdate `json:"invoiceUpdates"`
	TransactionStatus TransactionStatus      `json:"transactionStatus"`
}

// GSTMatchRecord is the result of matching one return entry against the books
type GSTMatchRecord struct {
	OrgID         string        `json:"orgId"`
	EntryID       string        `json:"entryId"`
	InvoiceID     string        `json:"invoiceId,omitempty"`
	Score         float64       `json:"score"`
	Class         GSTMatchClass `json:"class"`
	Discrepancies []Discrepancy `json:"discrepancies"`
	ITCStatus     ITCStatus     `json:"itcStatus"`
	Reasons       []string      `json:"reasons"`
}

// Matched reports whether a books invoice was found
func (r *GSTMatchRecord) Matched() bool {
	return r.InvoiceID != ""
}

// GSTReturnSummary aggregates the results of a whole return period
type GSTReturnSummary struct {
	OrgID           string           `json:"orgId"`
	GSTIN           string           `json:"gstin,omitempty"`
	Period          string           `json:"period"`
	Records         []GSTMatchRecord `json:"records"`
	Matched         int              `json:"matched"`
	Unmatched       int              `json:"unmatched"`
	MissingInBooks  int              `json:"missingInBooks"`
	MissingInGSTR   int              `json:"missingInGstr"`
	MissingInvoices []string         `json:"missingInvoices,omitempty"`
	FiledTax        decimal.Decimal  `json:"filedTax"`
	ClaimedTax      decimal.Decimal  `json:"claimedTax"`
	ITCDelta        decimal.Decimal  `json:"itcDelta"`
}

// DiscountEvaluation compares an invoice's discount with the agreed terms
type DiscountEvaluation struct {
	OrgID            string          `json:"orgId"`
	InvoiceID        string          `json:"invoiceId"`
	TermID           string          `json:"termId,omitempty"`
	ExpectedDiscount decimal.Decimal `json:"expectedDiscount"`
	ActualDiscount   decimal.Decimal `json:"actualDiscount"`
	Difference       decimal.Decimal `json:"difference"`
	Class            DiscountClass   `json:"class"`
	Reasons          []string        `json:"reasons"`
}

// PenaltyEvaluation is the late-payment penalty owed on an invoice
type PenaltyEvaluation struct {
	OrgID       string          `json:"orgId"`
	InvoiceID   string          `json:"invoiceId"`
	TermID      string          `json:"termId,omitempty"`
	PaymentDate time.Time       `json:"paymentDate"`
	DaysLate    int             `json:"daysLate"`
	Penalty     decimal.Decimal `json:"penalty"`
	Reasons     []string        `json:"reasons"`
}

// SKUMatch is a catalog entry proposed for a free-text description
type SKUMatch struct {
	CatalogID   string  `json:"catalogId"`
	Tier        SKUTier `json:"tier"`
	Confidence  float64 `json:"confidence"`
	MatchedText string  `json:"matchedText,omitempty"`
}

// SKUResolution is the outcome of running the resolution cascade
type SKUResolution struct {
	Description string     `json:"description"`
	BestMatch   *SKUMatch  `json:"bestMatch,omitempty"`
	Candidates  []SKUMatch `json:"candidates"`
	NeedsReview bool       `json:"needsReview"`
}
