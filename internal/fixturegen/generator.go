// Package fixturegen builds synthetic but internally consistent datasets:
// purchase orders with their invoices, the bank statement that pays them and
// the GST return that reports them. Runs with the same seed produce the same
// files, so they double as demo data and as load for batch runs.
package fixturegen

import (
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	"github.com/mohit-ambani/auditflow-sub000/internal/store"
	"github.com/mohit-ambani/auditflow-sub000/internal/validation"
)

// Config shapes a generated dataset. Ratios are per purchase order.
type Config struct {
	OrgID          string    `json:"org_id" mapstructure:"org_id" validate:"required"`
	Vendors        int       `json:"vendors" mapstructure:"vendors" validate:"gte=1,lte=1000"`
	PurchaseOrders int       `json:"purchase_orders" mapstructure:"purchase_orders" validate:"gte=1,lte=100000"`
	StartDate      time.Time `json:"start_date" mapstructure:"start_date"`
	Seed           int64     `json:"seed" mapstructure:"seed"`

	// ShortSupplyRatio of invoices bill less than ordered on one line
	ShortSupplyRatio float64 `json:"short_supply_ratio" mapstructure:"short_supply_ratio" validate:"gte=0,lte=1"`
	// PaidRatio of invoices have a matching debit on the statement
	PaidRatio float64 `json:"paid_ratio" mapstructure:"paid_ratio" validate:"gte=0,lte=1"`
	// ReportedRatio of invoices appear in the GST return; MisreportedRatio of
	// those carry a wrong invoice value
	ReportedRatio    float64 `json:"reported_ratio" mapstructure:"reported_ratio" validate:"gte=0,lte=1"`
	MisreportedRatio float64 `json:"misreported_ratio" mapstructure:"misreported_ratio" validate:"gte=0,lte=1"`
}

// DefaultConfig returns a small dataset with a realistic mix of problems
func DefaultConfig(orgID string) *Config {
	return &Config{
		OrgID:            orgID,
		Vendors:          5,
		PurchaseOrders:   50,
		StartDate:        time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Seed:             1,
		ShortSupplyRatio: 0.2,
		PaidRatio:        0.7,
		ReportedRatio:    0.9,
		MisreportedRatio: 0.1,
	}
}

// Validate checks the dataset shape
func (c *Config) Validate() error {
	return validation.Struct("fixturegen", c)
}

// Dataset is one generated scenario. Fixtures seed a store; Statement and
// Return are written as CSV for the import commands.
type Dataset struct {
	Fixtures  *store.Fixtures
	Statement []*models.BankTransaction
	Return    []*models.GSTEntry
	Periods   []string
}

type catalogItem struct {
	code, name, hsn, alias string
	price                  int64
}

var catalog = []catalogItem{
	{"SKU-ROD-12", "Steel Rod 12mm", "7214", "TMT bar 12 mm", 62},
	{"SKU-CEM-53", "Portland Cement 53 Grade", "2523", "OPC 53 cement bag", 385},
	{"SKU-WIRE-2", "Copper Wire 2.5 sqmm", "8544", "Cu wire 2.5mm", 2150},
	{"SKU-PNT-20", "Exterior Emulsion Paint 20L", "3209", "Paint ext 20 ltr", 5400},
	{"SKU-BOLT-8", "Hex Bolt M8 x 40", "7318", "M8 bolt 40mm", 6},
	{"SKU-PIPE-25", "PVC Pipe 25mm", "3917", "PVC 1 inch pipe", 180},
	{"SKU-SAND-1", "River Sand (per cft)", "2505", "Sand cft", 55},
	{"SKU-GLV-L", "Nitrile Gloves Large", "4015", "Gloves L nitrile", 240},
}

// Generator builds datasets from a Config
type Generator struct {
	config *Config
	rng    *rand.Rand
}

// NewGenerator validates config and seeds the generator
func NewGenerator(config *Config) (*Generator, error) {
	if config == nil {
		return nil, fmt.Errorf("fixturegen: config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &Generator{config: config, rng: rand.New(rand.NewSource(config.Seed))}, nil
}

// Generate builds the dataset
func (g *Generator) Generate() *Dataset {
	cfg := g.config
	start := cfg.StartDate
	if start.IsZero() {
		start = DefaultConfig(cfg.OrgID).StartDate
	}

	ds := &Dataset{Fixtures: &store.Fixtures{}}
	for i, item := range catalog {
		ds.Fixtures.Catalog = append(ds.Fixtures.Catalog, &models.CatalogEntry{
			ID:      fmt.Sprintf("cat-%02d", i+1),
			OrgID:   cfg.OrgID,
			Code:    item.code,
			Name:    item.name,
			HSNCode: item.hsn,
			Aliases: []string{item.alias},
			Active:  true,
		})
	}

	// the first vendor offers a 2% trade discount and charges 1.5% a month late
	ds.Fixtures.DiscountTerms = append(ds.Fixtures.DiscountTerms,
		&models.DiscountTerm{
			ID: "term-trade", OrgID: cfg.OrgID, VendorID: vendorID(0), Name: "Trade 2%",
			Kind: models.DiscountTrade, ValueType: models.ValuePercentage, Value: decimal.NewFromInt(2),
			ValidFrom: start.AddDate(0, -1, 0), Active: true,
		},
		&models.DiscountTerm{
			ID: "term-late", OrgID: cfg.OrgID, VendorID: vendorID(0), Name: "Late fee 1.5%",
			Kind: models.DiscountLatePenalty, PenaltyPercent: decimal.RequireFromString("1.5"),
			ValidFrom: start.AddDate(0, -1, 0), Active: true,
		},
	)

	periods := map[string]bool{}
	for i := 0; i < cfg.PurchaseOrders; i++ {
		vendor := i % cfg.Vendors
		poDate := start.AddDate(0, 0, g.rng.Intn(60))
		po := g.purchaseOrder(i, vendor, poDate)
		inv := g.invoice(i, vendor, po)
		ds.Fixtures.PurchaseOrders = append(ds.Fixtures.PurchaseOrders, po)
		ds.Fixtures.Invoices = append(ds.Fixtures.Invoices, inv)

		if g.rng.Float64() < cfg.PaidRatio {
			ds.Statement = append(ds.Statement, g.payment(i, inv))
		}
		if g.rng.Float64() < cfg.ReportedRatio {
			entry := g.returnEntry(i, vendor, inv)
			ds.Return = append(ds.Return, entry)
			periods[entry.ReturnPeriod] = true
		}
	}
	for p := range periods {
		ds.Periods = append(ds.Periods, p)
	}
	sort.Strings(ds.Periods)
	return ds
}

func (g *Generator) purchaseOrder(i, vendor int, date time.Time) *models.PurchaseOrder {
	n := 1 + g.rng.Intn(3)
	picks := g.rng.Perm(len(catalog))[:n]

	po := &models.PurchaseOrder{
		ID:       fmt.Sprintf("po-%05d", i+1),
		OrgID:    g.config.OrgID,
		VendorID: vendorID(vendor),
		Number:   fmt.Sprintf("PO/%d/%05d", date.Year(), i+1),
		Date:     date,
		Status:   models.POStatusOpen,
	}
	for k, idx := range picks {
		item := catalog[idx]
		po.Lines = append(po.Lines, models.LineItem{
			ID:          fmt.Sprintf("%s-l%d", po.ID, k+1),
			Description: item.name,
			CatalogID:   fmt.Sprintf("cat-%02d", idx+1),
			HSNCode:     item.hsn,
			Quantity:    decimal.NewFromInt(int64(10 * (1 + g.rng.Intn(20)))),
			UnitPrice:   decimal.NewFromInt(item.price),
		})
	}
	po.Subtotal = linesTotal(po.Lines)
	po.TaxTotal = models.PercentOf(po.Subtotal, decimal.NewFromInt(18))
	po.Total = po.Subtotal.Add(po.TaxTotal)
	return po
}

func (g *Generator) invoice(i, vendor int, po *models.PurchaseOrder) *models.Invoice {
	date := po.Date.AddDate(0, 0, 3+g.rng.Intn(8))
	inv := &models.Invoice{
		ID:            fmt.Sprintf("inv-%05d", i+1),
		OrgID:         g.config.OrgID,
		Kind:          models.InvoiceKindPurchase,
		PartyID:       po.VendorID,
		PartyGSTIN:    vendorGSTIN(vendor),
		Number:        fmt.Sprintf("V%d/%d/%04d", vendor+1, date.Year(), i+1),
		Date:          date,
		DueDate:       date.AddDate(0, 0, 30),
		PaymentStatus: models.PaymentStatusUnpaid,
	}

	short := g.rng.Float64() < g.config.ShortSupplyRatio
	for k, l := range po.Lines {
		line := l
		line.ID = fmt.Sprintf("%s-l%d", inv.ID, k+1)
		// the description drifts from the catalog name the way vendors write it
		line.Description = catalog[catalogIndex(l.CatalogID)].alias
		if short && k == 0 {
			line.Quantity = line.Quantity.Mul(decimal.RequireFromString("0.8")).Floor()
		}
		inv.Lines = append(inv.Lines, line)
	}
	inv.Subtotal = linesTotal(inv.Lines)
	half := models.PercentOf(inv.Subtotal, decimal.NewFromInt(9))
	inv.CGST, inv.SGST = half, half
	inv.Total = inv.Subtotal.Add(half).Add(half)
	return inv
}

func (g *Generator) payment(i int, inv *models.Invoice) *models.BankTransaction {
	return &models.BankTransaction{
		ID:          fmt.Sprintf("txn-%05d", i+1),
		OrgID:       g.config.OrgID,
		Date:        inv.Date.AddDate(0, 0, 5+g.rng.Intn(25)),
		Amount:      inv.Total,
		Direction:   models.DirectionDebit,
		Reference:   fmt.Sprintf("NEFT%08d", g.rng.Intn(100000000)),
		Description: "NEFT DR " + inv.Number,
		Status:      models.TransactionUnmatched,
	}
}

func (g *Generator) returnEntry(i, vendor int, inv *models.Invoice) *models.GSTEntry {
	entry := &models.GSTEntry{
		ID:                fmt.Sprintf("gst-%05d", i+1),
		OrgID:             g.config.OrgID,
		ReturnPeriod:      inv.Date.Format("2006-01"),
		CounterpartyGSTIN: vendorGSTIN(vendor),
		InvoiceNumber:     inv.Number,
		InvoiceDate:       inv.Date,
		InvoiceValue:      inv.Total,
		TaxableValue:      inv.Subtotal,
		CGST:              inv.CGST,
		SGST:              inv.SGST,
		IGST:              decimal.Zero,
		Filed:             true,
	}
	if g.rng.Float64() < g.config.MisreportedRatio {
		entry.InvoiceValue = entry.InvoiceValue.Add(decimal.NewFromInt(int64(100 + g.rng.Intn(900))))
	}
	return entry
}

func vendorID(n int) string {
	return fmt.Sprintf("vendor-%03d", n+1)
}

// vendorGSTIN builds a well-formed Maharashtra GSTIN unique per vendor
func vendorGSTIN(n int) string {
	return fmt.Sprintf("27AAB%c%c%04dA1Z%d", 'A'+n%26, 'A'+(n/26)%26, n%10000, n%10)
}

func catalogIndex(id string) int {
	var idx int
	if _, err := fmt.Sscanf(id, "cat-%02d", &idx); err != nil || idx < 1 || idx > len(catalog) {
		return 0
	}
	return idx - 1
}

func linesTotal(lines []models.LineItem) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(l.Total())
	}
	return total
}
