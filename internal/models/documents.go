package models

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
)

// LineItem is one row of a purchase order or invoice
type LineItem struct {
	ID             string          `json:"id"`
	Description    string          `json:"description"`
	CatalogID      string          `json:"catalogId,omitempty"`
	HSNCode        string          `json:"hsnCode,omitempty"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unitPrice"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

// Total returns quantity times unit price
func (l LineItem) Total() decimal.Decimal {
	return l.Quantity.Mul(l.UnitPrice)
}

// HasNegativeValue reports dirty line data that is flagged rather than rejected
func (l LineItem) HasNegativeValue() bool {
	return l.Quantity.IsNegative() || l.UnitPrice.IsNegative()
}

func (l LineItem) String() string {
	return fmt.Sprintf("LineItem{ID: %s, Desc: %q, Qty: %s, Price: %s}",
		l.ID, l.Description, l.Quantity.String(), l.UnitPrice.String())
}

// PurchaseOrder is a buyer's commitment to purchase from a vendor
type PurchaseOrder struct {
	ID       string          `json:"id"`
	OrgID    string          `json:"orgId"`
	VendorID string          `json:"vendorId"`
	Number   string          `json:"number"`
	Date     time.Time       `json:"date"`
	Status   POStatus        `json:"status"`
	Lines    []LineItem      `json:"lines"`
	Subtotal decimal.Decimal `json:"subtotal"`
	TaxTotal decimal.Decimal `json:"taxTotal"`
	Total    decimal.Decimal `json:"total"`
}

// Validate performs basic structural validation
func (po *PurchaseOrder) Validate() error {
	if strings.TrimSpace(po.ID) == "" {
		return fmt.Errorf("purchase order ID cannot be empty")
	}
	if strings.TrimSpace(po.VendorID) == "" {
		return fmt.Errorf("purchase order %s has no vendor", po.ID)
	}
	return nil
}

// Invoice is a purchase (vendor) or sales (customer) invoice in the books
type Invoice struct {
	ID            string          `json:"id"`
	OrgID         string          `json:"orgId"`
	Kind          InvoiceKind     `json:"kind"`
	PartyID       string          `json:"partyId"`
	PartyGSTIN    string          `json:"partyGstin,omitempty"`
	Number        string          `json:"number"`
	Date          time.Time       `json:"date"`
	DueDate       time.Time       `json:"dueDate"`
	Lines         []LineItem      `json:"lines"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	CGST          decimal.Decimal `json:"cgst"`
	SGST          decimal.Decimal `json:"sgst"`
	IGST          decimal.Decimal `json:"igst"`
	Total         decimal.Decimal `json:"total"`
	AmountPaid    decimal.Decimal `json:"amountPaid"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
}

// Validate performs basic structural validation
func (inv *Invoice) Validate() error {
	if strings.TrimSpace(inv.ID) == "" {
		return fmt.Errorf("invoice ID cannot be empty")
	}
	if !inv.Kind.IsValid() {
		return fmt.Errorf("invalid invoice kind: %s", inv.Kind)
	}
	if inv.Total.IsNegative() {
		return fmt.Errorf("invoice %s total cannot be negative", inv.ID)
	}
	return nil
}

// TaxTotal returns CGST + SGST + IGST
func (inv *Invoice) TaxTotal() decimal.Decimal {
	return inv.CGST.Add(inv.SGST).Add(inv.IGST)
}

// Outstanding returns the unpaid balance
func (inv *Invoice) Outstanding() decimal.Decimal {
	return inv.Total.Sub(inv.AmountPaid)
}

// LineDiscountTotal sums the discount recorded on each line
func (inv *Invoice) LineDiscountTotal() decimal.Decimal {
	total := decimal.Zero
	for _, l := range inv.Lines {
		total = total.Add(l.DiscountAmount)
	}
	return total
}

// CatalogIDs returns the distinct catalog references of the lines
func (inv *Invoice) CatalogIDs() map[string]struct{} {
	ids := make(map[string]struct{})
	for _, l := range inv.Lines {
		if l.CatalogID != "" {
			ids[l.CatalogID] = struct{}{}
		}
	}
	return ids
}

// BankTransaction is one line of a bank statement
type BankTransaction struct {
	ID          string               `json:"id"`
	OrgID       string               `json:"orgId"`
	Date        time.Time            `json:"date"`
	Amount      decimal.Decimal      `json:"amount"`
	Direction   TransactionDirection `json:"direction"`
	Reference   string               `json:"reference,omitempty"`
	Description string               `json:"description,omitempty"`
	Status      TransactionStatus    `json:"status"`
}

// Validate performs basic structural validation
func (t *BankTransaction) Validate() error {
	if strings.TrimSpace(t.ID) == "" {
		return fmt.Errorf("transaction ID cannot be empty")
	}
	if !t.Amount.IsPositive() {
		return fmt.Errorf("transaction %s amount must be positive", t.ID)
	}
	if !t.Direction.IsValid() {
		return fmt.Errorf("invalid transaction direction: %s", t.Direction)
	}
	if t.Date.IsZero() {
		return fmt.Errorf("transaction %s date cannot be zero", t.ID)
	}
	return nil
}

// GSTEntry is one invoice reported by a counterparty in a tax-authority return
type GSTEntry struct {
	ID                string          `json:"id"`
	OrgID             string          `json:"orgId"`
	ReturnPeriod      string          `json:"returnPeriod"`
	CounterpartyGSTIN string          `json:"counterpartyGstin"`
	InvoiceNumber     string          `json:"invoiceNumber"`
	InvoiceDate       time.Time       `json:"invoiceDate"`
	InvoiceValue      decimal.Decimal `json:"invoiceValue"`
	TaxableValue      decimal.Decimal `json:"taxableValue"`
	CGST              decimal.Decimal `json:"cgst"`
	SGST              decimal.Decimal `json:"sgst"`
	IGST              decimal.Decimal `json:"igst"`
	Filed             bool            `json:"filed"`
}

// TaxTotal returns CGST + SGST + IGST
func (e *GSTEntry) TaxTotal() decimal.Decimal {
	return e.CGST.Add(e.SGST).Add(e.IGST)
}

// CatalogEntry is a product or service the organization trades in
type CatalogEntry struct {
	ID      string   `json:"id"`
	OrgID   string   `json:"orgId"`
	Code    string   `json:"code"`
	Name    string   `json:"name"`
	HSNCode string   `json:"hsnCode,omitempty"`
	Aliases []string `json:"aliases,omitempty"`
	Active  bool     `json:"active"`
}

// HasAlias reports whether alias is already recorded, ignoring case and spacing
func (c *CatalogEntry) HasAlias(alias string) bool {
	key := AliasKey(alias)
	for _, a := range c.Aliases {
		if AliasKey(a) == key {
			return true
		}
	}
	return false
}

// AliasKey is the comparison form of an alias
func AliasKey(alias string) string {
	return strings.ToLower(strings.Join(strings.Fields(alias), " "))
}

// NormalizeNumber lower-cases a document number and strips everything but
// letters and digits, so "INV/2024-001" and "inv2024001" compare equal
func NormalizeNumber(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// DiscountSlab is one bracket of a tiered discount table
type DiscountSlab struct {
	Min       decimal.Decimal   `json:"min"`
	Max       *decimal.Decimal  `json:"max,omitempty"`
	ValueType DiscountValueType `json:"valueType"`
	Value     decimal.Decimal   `json:"value"`
}

// Contains reports min <= amount < max, with a nil max open-ended
func (s DiscountSlab) Contains(amount decimal.Decimal) bool {
	if amount.LessThan(s.Min) {
		return false
	}
	return s.Max == nil || amount.LessThan(*s.Max)
}

// DiscountTerm is a contractual discount or penalty agreed with a vendor
type DiscountTerm struct {
	ID                string            `json:"id"`
	OrgID             string            `json:"orgId"`
	VendorID          string            `json:"vendorId"`
	Name              string            `json:"name,omitempty"`
	Kind              DiscountKind      `json:"kind"`
	ValueType         DiscountValueType `json:"valueType"`
	Value             decimal.Decimal   `json:"value"`
	Slabs             []DiscountSlab    `json:"slabs,omitempty"`
	MinOrderValue     decimal.Decimal   `json:"minOrderValue"`
	CatalogIDs        []string          `json:"catalogIds,omitempty"`
	PaymentWithinDays int               `json:"paymentWithinDays,omitempty"`
	PenaltyPercent    decimal.Decimal   `json:"penaltyPercent"`
	ValidFrom         time.Time         `json:"validFrom"`
	ValidTo           *time.Time        `json:"validTo,omitempty"`
	Active            bool              `json:"active"`
}

// ValidOn reports validFrom <= date <= validTo, compared by calendar day
func (t *DiscountTerm) ValidOn(date time.Time) bool {
	if !t.Active {
		return false
	}
	day := TruncateDay(date)
	if day.Before(TruncateDay(t.ValidFrom)) {
		return false
	}
	return t.ValidTo == nil || !day.After(TruncateDay(*t.ValidTo))
}

// PaymentAllocation is the part of a bank transaction applied to one invoice
type PaymentAllocation struct {
	TransactionID string          `json:"transactionId"`
	InvoiceID     string          `json:"invoiceId"`
	Amount        decimal.Decimal `json:"amount"`
	BalanceBefore decimal.Decimal `json:"balanceBefore"`
	BalanceAfter  decimal.Decimal `json:"balanceAfter"`
	// PaidOn is the date of the bank transaction, AllocatedAt when the
	// allocation was recorded
	PaidOn      time.Time `json:"paidOn"`
	AllocatedAt time.Time `json:"allocatedAt"`
}
