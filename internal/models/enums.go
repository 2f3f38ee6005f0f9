package models

// TransactionDirection is the side of the bank account a transaction hit
type TransactionDirection string

const (
	// DirectionDebit is money leaving the account (pays purchase invoices)
	DirectionDebit TransactionDirection = "DEBIT"
	// DirectionCredit is money entering the account (settles sales invoices)
	DirectionCredit TransactionDirection = "CREDIT"
)

func (d TransactionDirection) String() string { return string(d) }

// IsValid checks if the direction is known
func (d TransactionDirection) IsValid() bool {
	return d == DirectionDebit || d == DirectionCredit
}

// InvoiceKind distinguishes vendor bills from customer invoices
type InvoiceKind string

const (
	InvoiceKindPurchase InvoiceKind = "PURCHASE"
	InvoiceKindSales    InvoiceKind = "SALES"
)

func (k InvoiceKind) String() string { return string(k) }

// IsValid checks if the kind is known
func (k InvoiceKind) IsValid() bool {
	return k == InvoiceKindPurchase || k == InvoiceKindSales
}

// KindForDirection maps a bank transaction direction onto the invoice kind it settles
func KindForDirection(d TransactionDirection) InvoiceKind {
	if d == DirectionCredit {
		return InvoiceKindSales
	}
	return InvoiceKindPurchase
}

// POStatus is the fulfilment state of a purchase order
type POStatus string

const (
	POStatusOpen               POStatus = "OPEN"
	POStatusPartiallyFulfilled POStatus = "PARTIALLY_FULFILLED"
	POStatusFulfilled          POStatus = "FULFILLED"
	POStatusCancelled          POStatus = "CANCELLED"
)

// IsReconcilable reports whether invoices may still be matched against the PO
func (s POStatus) IsReconcilable() bool {
	return s == POStatusOpen || s == POStatusPartiallyFulfilled
}

// PaymentStatus is the settlement state of an invoice
type PaymentStatus string

const (
	PaymentStatusUnpaid        PaymentStatus = "UNPAID"
	PaymentStatusPartiallyPaid PaymentStatus = "PARTIALLY_PAID"
	PaymentStatusPaid          PaymentStatus = "PAID"
)

// IsOpen reports whether the invoice still has an outstanding balance to match
func (s PaymentStatus) IsOpen() bool {
	return s == PaymentStatusUnpaid || s == PaymentStatusPartiallyPaid
}

// TransactionStatus is the reconciliation state of a bank transaction
type TransactionStatus string

const (
	TransactionUnmatched       TransactionStatus = "UNMATCHED"
	TransactionAutoMatched     TransactionStatus = "AUTO_MATCHED"
	TransactionManuallyMatched TransactionStatus = "MANUALLY_MATCHED"
)

// LineMatchClass classifies a single PO line to invoice line pairing
type LineMatchClass string

const (
	LineMatchExact   LineMatchClass = "EXACT"
	LineMatchPartial LineMatchClass = "PARTIAL"
	LineMatchNone    LineMatchClass = "NO_MATCH"
)

// DocumentMatchType classifies a PO to invoice pairing
type DocumentMatchType string

const (
	DocumentMatchExact        DocumentMatchType = "EXACT"
	DocumentMatchPartialQty   DocumentMatchType = "PARTIAL_QTY"
	DocumentMatchPartialValue DocumentMatchType = "PARTIAL_VALUE"
	DocumentMatchPartialBoth  DocumentMatchType = "PARTIAL_BOTH"
	DocumentMatchNone         DocumentMatchType = "NO_MATCH"
)

// DiscrepancyType tags a detected difference between two records
type DiscrepancyType string

const (
	DiscrepancyShortSupply          DiscrepancyType = "SHORT_SUPPLY"
	DiscrepancyExcessSupply         DiscrepancyType = "EXCESS_SUPPLY"
	DiscrepancyQtyVariance          DiscrepancyType = "QTY_VARIANCE"
	DiscrepancyPriceVariance        DiscrepancyType = "PRICE_VARIANCE"
	DiscrepancyValueVariance        DiscrepancyType = "VALUE_VARIANCE"
	DiscrepancyAmountMismatch       DiscrepancyType = "AMOUNT_MISMATCH"
	DiscrepancyGSTMismatch          DiscrepancyType = "GST_MISMATCH"
	DiscrepancyGSTStructureMismatch DiscrepancyType = "GST_STRUCTURE_MISMATCH"
	DiscrepancyDateMismatch         DiscrepancyType = "DATE_MISMATCH"
	DiscrepancyMissingInBooks       DiscrepancyType = "MISSING_IN_BOOKS"
	DiscrepancyInvalidValue         DiscrepancyType = "INVALID_VALUE"
)

// Severity ranks discrepancies for review routing
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Rank orders severities, higher is worse
func (s Severity) Rank() int {
	switch s {
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	default:
		return 0
	}
}

// PaymentMatchType classifies a bank transaction to invoice pairing
type PaymentMatchType string

const (
	PaymentMatchExact     PaymentMatchType = "EXACT"
	PaymentMatchFuzzy     PaymentMatchType = "FUZZY"
	PaymentMatchReference PaymentMatchType = "REFERENCE"
	PaymentMatchPartial   PaymentMatchType = "PARTIAL"
	PaymentMatchSplit     PaymentMatchType = "SPLIT"
)

// GSTMatchClass classifies a return entry to books invoice pairing
type GSTMatchClass string

const (
	GSTMatchExact   GSTMatchClass = "EXACT"
	GSTMatchPartial GSTMatchClass = "PARTIAL"
	GSTMatchNone    GSTMatchClass = "NO_MATCH"
)

// ITCStatus is the input-tax-credit eligibility of a return entry
type ITCStatus string

const (
	ITCAvailable ITCStatus = "AVAILABLE"
	ITCNotFiled  ITCStatus = "NOT_FILED"
	ITCMismatch  ITCStatus = "MISMATCH"
)

// DiscountKind is the commercial nature of a discount term
type DiscountKind string

const (
	DiscountTrade       DiscountKind = "TRADE_DISCOUNT"
	DiscountVolume      DiscountKind = "VOLUME_DISCOUNT"
	DiscountCash        DiscountKind = "CASH_DISCOUNT"
	DiscountLatePenalty DiscountKind = "LATE_PAYMENT_PENALTY"
)

// DiscountValueType says how a term or slab value is applied
type DiscountValueType string

const (
	ValuePercentage DiscountValueType = "PERCENTAGE"
	ValueAmount     DiscountValueType = "AMOUNT"
	ValueSlab       DiscountValueType = "SLAB"
)

// DiscountClass classifies the actual discount against the expected one
type DiscountClass string

const (
	DiscountCorrect         DiscountClass = "CORRECT"
	DiscountUnderDiscounted DiscountClass = "UNDER_DISCOUNTED"
	DiscountOverDiscounted  DiscountClass = "OVER_DISCOUNTED"
	DiscountNeedsReview     DiscountClass = "NEEDS_REVIEW"
)

// SKUTier is the resolution tier that produced a catalog match
type SKUTier string

const (
	SKUTierExact SKUTier = "EXACT"
	SKUTierAlias SKUTier = "ALIAS"
	SKUTierFuzzy SKUTier = "FUZZY"
	SKUTierAI    SKUTier = "AI"
)
