package gormstore

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
)

type purchaseOrderRow struct {
	OrgID    string          `gorm:"primaryKey;size:64"`
	ID       string          `gorm:"primaryKey;size:64"`
	VendorID string          `gorm:"size:64;index:idx_purchase_orders_vendor"`
	Number   string          `gorm:"size:128"`
	Date     time.Time       `gorm:"not null"`
	Status   string          `gorm:"size:32;not null"`
	Lines    datatypes.JSON  `gorm:"not null"`
	Subtotal decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	TaxTotal decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Total    decimal.Decimal `gorm:"type:numeric(20,4);not null"`
}

func (purchaseOrderRow) TableName() string { return "purchase_orders" }

type invoiceRow struct {
	OrgID         string          `gorm:"primaryKey;size:64"`
	ID            string          `gorm:"primaryKey;size:64"`
	Kind          string          `gorm:"size:16;not null;index:idx_invoices_kind_date,priority:1"`
	PartyID       string          `gorm:"size:64;index:idx_invoices_party"`
	PartyGSTIN    string          `gorm:"column:party_gstin;size:15;index:idx_invoices_gstin"`
	Number        string          `gorm:"size:128"`
	Date          time.Time       `gorm:"not null;index:idx_invoices_kind_date,priority:2"`
	DueDate       time.Time
	Lines         datatypes.JSON  `gorm:"not null"`
	Subtotal      decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	CGST          decimal.Decimal `gorm:"column:cgst;type:numeric(20,4);not null"`
	SGST          decimal.Decimal `gorm:"column:sgst;type:numeric(20,4);not null"`
	IGST          decimal.Decimal `gorm:"column:igst;type:numeric(20,4);not null"`
	Total         decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	AmountPaid    decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	PaymentStatus string          `gorm:"size:32;not null"`
}

func (invoiceRow) TableName() string { return "invoices" }

type transactionRow struct {
	OrgID       string          `gorm:"primaryKey;size:64"`
	ID          string          `gorm:"primaryKey;size:64"`
	Date        time.Time       `gorm:"not null;index"`
	Amount      decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Direction   string          `gorm:"size:8;not null"`
	Reference   string          `gorm:"size:256"`
	Description string
	Status      string `gorm:"size:32;not null;index"`
}

func (transactionRow) TableName() string { return "bank_transactions" }

type gstEntryRow struct {
	OrgID             string          `gorm:"primaryKey;size:64"`
	ID                string          `gorm:"primaryKey;size:64"`
	ReturnPeriod      string          `gorm:"size:7;not null;index:idx_gst_entries_period"`
	CounterpartyGSTIN string          `gorm:"column:counterparty_gstin;size:15;index:idx_gst_entries_gstin"`
	InvoiceNumber     string          `gorm:"size:128"`
	InvoiceDate       time.Time       `gorm:"not null"`
	InvoiceValue      decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	TaxableValue      decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	CGST              decimal.Decimal `gorm:"column:cgst;type:numeric(20,4);not null"`
	SGST              decimal.Decimal `gorm:"column:sgst;type:numeric(20,4);not null"`
	IGST              decimal.Decimal `gorm:"column:igst;type:numeric(20,4);not null"`
	Filed             bool
}

func (gstEntryRow) TableName() string { return "gst_entries" }

type catalogEntryRow struct {
	OrgID   string `gorm:"primaryKey;size:64"`
	ID      string `gorm:"primaryKey;size:64"`
	Code    string `gorm:"size:64;index"`
	Name    string `gorm:"not null"`
	HSNCode string `gorm:"column:hsn_code;size:16"`
	Active  bool   `gorm:"not null"`
}

func (catalogEntryRow) TableName() string { return "catalog_entries" }

// catalogAliasRow holds one alias per row. The unique index makes
// concurrent additions of the same alias collapse into one.
type catalogAliasRow struct {
	ID             uint      `gorm:"primaryKey"`
	OrgID          string    `gorm:"size:64;not null;uniqueIndex:idx_catalog_aliases_key,priority:1"`
	CatalogEntryID string    `gorm:"size:64;not null;uniqueIndex:idx_catalog_aliases_key,priority:2"`
	AliasKey       string    `gorm:"not null;uniqueIndex:idx_catalog_aliases_key,priority:3"`
	Alias          string    `gorm:"not null"`
	CreatedAt      time.Time `gorm:"not null"`
}

func (catalogAliasRow) TableName() string { return "catalog_aliases" }

type discountTermRow struct {
	OrgID             string          `gorm:"primaryKey;size:64"`
	ID                string          `gorm:"primaryKey;size:64"`
	VendorID          string          `gorm:"size:64;not null;index"`
	Name              string          `gorm:"size:128"`
	Kind              string          `gorm:"size:32;not null"`
	ValueType         string          `gorm:"size:16;not null"`
	Value             decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	Slabs             datatypes.JSON
	MinOrderValue     decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	CatalogIDs        datatypes.JSON  `gorm:"column:catalog_ids"`
	PaymentWithinDays int
	PenaltyPercent    decimal.Decimal `gorm:"type:numeric(10,4);not null"`
	ValidFrom         time.Time       `gorm:"not null"`
	ValidTo           *time.Time
	Active            bool `gorm:"not null"`
}

func (discountTermRow) TableName() string { return "discount_terms" }

type allocationRow struct {
	ID            uint            `gorm:"primaryKey"`
	OrgID         string          `gorm:"size:64;not null;index:idx_allocations_txn,priority:1;index:idx_allocations_invoice,priority:1"`
	TransactionID string          `gorm:"size:64;not null;index:idx_allocations_txn,priority:2"`
	InvoiceID     string          `gorm:"size:64;not null;index:idx_allocations_invoice,priority:2"`
	Amount        decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	BalanceBefore decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	BalanceAfter  decimal.Decimal `gorm:"type:numeric(20,4);not null"`
	PaidOn        *time.Time
	AllocatedAt   time.Time `gorm:"not null"`
}

func (allocationRow) TableName() string { return "payment_allocations" }

type resultRow struct {
	OrgID       string         `gorm:"primaryKey;size:64"`
	ResultKey   string         `gorm:"primaryKey;size:36"`
	Kind        string         `gorm:"size:32;not null;index"`
	SubjectIDs  datatypes.JSON `gorm:"column:subject_ids;not null"`
	Score       float64
	Class       string `gorm:"size:32"`
	NeedsReview bool   `gorm:"not null;index"`
	Payload     datatypes.JSON `gorm:"not null"`
	CreatedAt   time.Time      `gorm:"not null"`
	UpdatedAt   time.Time      `gorm:"not null"`
}

func (resultRow) TableName() string { return "match_results" }

func allRows() []interface{} {
	return []interface{}{
		&purchaseOrderRow{},
		&invoiceRow{},
		&transactionRow{},
		&gstEntryRow{},
		&catalogEntryRow{},
		&catalogAliasRow{},
		&discountTermRow{},
		&allocationRow{},
		&resultRow{},
	}
}

func mustJSON(v interface{}) datatypes.JSON {
	b, err := json.Marshal(v)
	if err != nil {
		// only plain model structs are encoded here
		panic(err)
	}
	return datatypes.JSON(b)
}

func fromJSON(raw datatypes.JSON, v interface{}) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

func newPurchaseOrderRow(po *models.PurchaseOrder) *purchaseOrderRow {
	return &purchaseOrderRow{
		OrgID:    po.OrgID,
		ID:       po.ID,
		VendorID: po.VendorID,
		Number:   po.Number,
		Date:     po.Date.UTC(),
		Status:   string(po.Status),
		Lines:    mustJSON(nonNilLines(po.Lines)),
		Subtotal: po.Subtotal,
		TaxTotal: po.TaxTotal,
		Total:    po.Total,
	}
}

func (r *purchaseOrderRow) model() (*models.PurchaseOrder, error) {
	po := &models.PurchaseOrder{
		ID:       r.ID,
		OrgID:    r.OrgID,
		VendorID: r.VendorID,
		Number:   r.Number,
		Date:     r.Date.UTC(),
		Status:   models.POStatus(r.Status),
		Subtotal: r.Subtotal,
		TaxTotal: r.TaxTotal,
		Total:    r.Total,
	}
	return po, fromJSON(r.Lines, &po.Lines)
}

func newInvoiceRow(inv *models.Invoice) *invoiceRow {
	return &invoiceRow{
		OrgID:         inv.OrgID,
		ID:            inv.ID,
		Kind:          string(inv.Kind),
		PartyID:       inv.PartyID,
		PartyGSTIN:    inv.PartyGSTIN,
		Number:        inv.Number,
		Date:          inv.Date.UTC(),
		DueDate:       inv.DueDate.UTC(),
		Lines:         mustJSON(nonNilLines(inv.Lines)),
		Subtotal:      inv.Subtotal,
		CGST:          inv.CGST,
		SGST:          inv.SGST,
		IGST:          inv.IGST,
		Total:         inv.Total,
		AmountPaid:    inv.AmountPaid,
		PaymentStatus: string(inv.PaymentStatus),
	}
}

func (r *invoiceRow) model() (*models.Invoice, error) {
	inv := &models.Invoice{
		ID:            r.ID,
		OrgID:         r.OrgID,
		Kind:          models.InvoiceKind(r.Kind),
		PartyID:       r.PartyID,
		PartyGSTIN:    r.PartyGSTIN,
		Number:        r.Number,
		Date:          r.Date.UTC(),
		DueDate:       r.DueDate.UTC(),
		Subtotal:      r.Subtotal,
		CGST:          r.CGST,
		SGST:          r.SGST,
		IGST:          r.IGST,
		Total:         r.Total,
		AmountPaid:    r.AmountPaid,
		PaymentStatus: models.PaymentStatus(r.PaymentStatus),
	}
	return inv, fromJSON(r.Lines, &inv.Lines)
}

func newTransactionRow(t *models.BankTransaction) *transactionRow {
	status := t.Status
	if status == "" {
		status = models.TransactionUnmatched
	}
	return &transactionRow{
		OrgID:       t.OrgID,
		ID:          t.ID,
		Date:        t.Date.UTC(),
		Amount:      t.Amount,
		Direction:   string(t.Direction),
		Reference:   t.Reference,
		Description: t.Description,
		Status:      string(status),
	}
}

func (r *transactionRow) model() *models.BankTransaction {
	return &models.BankTransaction{
		ID:          r.ID,
		OrgID:       r.OrgID,
		Date:        r.Date.UTC(),
		Amount:      r.Amount,
		Direction:   models.TransactionDirection(r.Direction),
		Reference:   r.Reference,
		Description: r.Description,
		Status:      models.TransactionStatus(r.Status),
	}
}

func newGSTEntryRow(e *models.GSTEntry) *gstEntryRow {
	return &gstEntryRow{
		OrgID:             e.OrgID,
		ID:                e.ID,
		ReturnPeriod:      e.ReturnPeriod,
		CounterpartyGSTIN: e.CounterpartyGSTIN,
		InvoiceNumber:     e.InvoiceNumber,
		InvoiceDate:       e.InvoiceDate.UTC(),
		InvoiceValue:      e.InvoiceValue,
		TaxableValue:      e.TaxableValue,
		CGST:              e.CGST,
		SGST:              e.SGST,
		IGST:              e.IGST,
		Filed:             e.Filed,
	}
}

func (r *gstEntryRow) model() *models.GSTEntry {
	return &models.GSTEntry{
		ID:                r.ID,
		OrgID:             r.OrgID,
		ReturnPeriod:      r.ReturnPeriod,
		CounterpartyGSTIN: r.CounterpartyGSTIN,
		InvoiceNumber:     r.InvoiceNumber,
		InvoiceDate:       r.InvoiceDate.UTC(),
		InvoiceValue:      r.InvoiceValue,
		TaxableValue:      r.TaxableValue,
		CGST:              r.CGST,
		SGST:              r.SGST,
		IGST:              r.IGST,
		Filed:             r.Filed,
	}
}

func newDiscountTermRow(t *models.DiscountTerm) *discountTermRow {
	slabs := t.Slabs
	if slabs == nil {
		slabs = []models.DiscountSlab{}
	}
	ids := t.CatalogIDs
	if ids == nil {
		ids = []string{}
	}
	return &discountTermRow{
		OrgID:             t.OrgID,
		ID:                t.ID,
		VendorID:          t.VendorID,
		Name:              t.Name,
		Kind:              string(t.Kind),
		ValueType:         string(t.ValueType),
		Value:             t.Value,
		Slabs:             mustJSON(slabs),
		MinOrderValue:     t.MinOrderValue,
		CatalogIDs:        mustJSON(ids),
		PaymentWithinDays: t.PaymentWithinDays,
		PenaltyPercent:    t.PenaltyPercent,
		ValidFrom:         t.ValidFrom.UTC(),
		ValidTo:           t.ValidTo,
		Active:            t.Active,
	}
}

func (r *discountTermRow) model() (*models.DiscountTerm, error) {
	t := &models.DiscountTerm{
		ID:                r.ID,
		OrgID:             r.OrgID,
		VendorID:          r.VendorID,
		Name:              r.Name,
		Kind:              models.DiscountKind(r.Kind),
		ValueType:         models.DiscountValueType(r.ValueType),
		Value:             r.Value,
		MinOrderValue:     r.MinOrderValue,
		PaymentWithinDays: r.PaymentWithinDays,
		PenaltyPercent:    r.PenaltyPercent,
		ValidFrom:         r.ValidFrom.UTC(),
		Active:            r.Active,
	}
	if r.ValidTo != nil {
		to := r.ValidTo.UTC()
		t.ValidTo = &to
	}
	if err := fromJSON(r.Slabs, &t.Slabs); err != nil {
		return nil, err
	}
	if len(t.Slabs) == 0 {
		t.Slabs = nil
	}
	if err := fromJSON(r.CatalogIDs, &t.CatalogIDs); err != nil {
		return nil, err
	}
	if len(t.CatalogIDs) == 0 {
		t.CatalogIDs = nil
	}
	return t, nil
}

func newAllocationRow(orgID string, a models.PaymentAllocation) *allocationRow {
	return &allocationRow{
		OrgID:         orgID,
		TransactionID: a.TransactionID,
		InvoiceID:     a.InvoiceID,
		Amount:        a.Amount,
		BalanceBefore: a.BalanceBefore,
		BalanceAfter:  a.BalanceAfter,
		PaidOn:        optionalDate(a.PaidOn),
		AllocatedAt:   a.AllocatedAt.UTC(),
	}
}

func (r *allocationRow) model() models.PaymentAllocation {
	a := models.PaymentAllocation{
		TransactionID: r.TransactionID,
		InvoiceID:     r.InvoiceID,
		Amount:        r.Amount,
		BalanceBefore: r.BalanceBefore,
		BalanceAfter:  r.BalanceAfter,
		AllocatedAt:   r.AllocatedAt.UTC(),
	}
	if r.PaidOn != nil {
		a.PaidOn = r.PaidOn.UTC()
	}
	return a
}

func optionalDate(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

func (r *resultRow) model() (*models.StoredResult, error) {
	result := &models.StoredResult{
		Key:         r.ResultKey,
		OrgID:       r.OrgID,
		Kind:        models.ResultKind(r.Kind),
		Score:       r.Score,
		Class:       r.Class,
		NeedsReview: r.NeedsReview,
		Payload:     json.RawMessage(r.Payload),
		CreatedAt:   r.CreatedAt.UTC(),
		UpdatedAt:   r.UpdatedAt.UTC(),
	}
	return result, fromJSON(r.SubjectIDs, &result.SubjectIDs)
}

func nonNilLines(lines []models.LineItem) []models.LineItem {
	if lines == nil {
		return []models.LineItem{}
	}
	return lines
}
