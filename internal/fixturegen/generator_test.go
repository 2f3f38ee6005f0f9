package fixturegen

import (
	"context"
	"reflect"
	"testing"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	"github.com/mohit-ambani/auditflow-sub000/internal/parsers"
	"github.com/mohit-ambani/auditflow-sub000/internal/reconciler"
	"github.com/mohit-ambani/auditflow-sub000/internal/store"
	"github.com/mohit-ambani/auditflow-sub000/internal/store/memory"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

func generate(t *testing.T, modify func(*Config)) *Dataset {
	t.Helper()
	cfg := DefaultConfig("org-gen")
	if modify != nil {
		modify(cfg)
	}
	g, err := NewGenerator(cfg)
	if err != nil {
		t.Fatalf("NewGenerator: %v", err)
	}
	return g.Generate()
}

func TestNewGenerator_Validation(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
	}{
		{"missing org", func(c *Config) { c.OrgID = "" }},
		{"no vendors", func(c *Config) { c.Vendors = 0 }},
		{"no purchase orders", func(c *Config) { c.PurchaseOrders = 0 }},
		{"ratio above one", func(c *Config) { c.PaidRatio = 1.5 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig("org-gen")
			tt.modify(cfg)
			if _, err := NewGenerator(cfg); err == nil {
				t.Error("expected a validation error")
			}
		})
	}
	if _, err := NewGenerator(nil); err == nil {
		t.Error("expected an error for a nil config")
	}
}

func TestGenerate_Deterministic(t *testing.T) {
	a := generate(t, nil)
	b := generate(t, nil)
	if !reflect.DeepEqual(a, b) {
		t.Error("the same seed must produce the same dataset")
	}

	c := generate(t, func(c *Config) { c.Seed = 2 })
	if reflect.DeepEqual(a.Statement, c.Statement) {
		t.Error("a different seed should change the statement")
	}
}

func TestGenerate_Shape(t *testing.T) {
	ds := generate(t, func(c *Config) {
		c.PurchaseOrders = 20
		c.PaidRatio = 1
		c.ReportedRatio = 0
	})

	if len(ds.Fixtures.PurchaseOrders) != 20 || len(ds.Fixtures.Invoices) != 20 {
		t.Fatalf("expected 20 purchase orders and invoices, got %d/%d",
			len(ds.Fixtures.PurchaseOrders), len(ds.Fixtures.Invoices))
	}
	if len(ds.Statement) != 20 {
		t.Errorf("every invoice should be paid, got %d statement lines", len(ds.Statement))
	}
	if len(ds.Return) != 0 || len(ds.Periods) != 0 {
		t.Errorf("no invoice should be reported, got %d entries", len(ds.Return))
	}

	gstins := map[string]string{}
	for i, inv := range ds.Fixtures.Invoices {
		po := ds.Fixtures.PurchaseOrders[i]
		if inv.PartyID != po.VendorID {
			t.Errorf("%s is billed by %s but ordered from %s", inv.ID, inv.PartyID, po.VendorID)
		}
		if !inv.Total.Equal(inv.Subtotal.Add(inv.TaxTotal())) {
			t.Errorf("%s total does not add up", inv.ID)
		}
		if prev, ok := gstins[inv.PartyID]; ok && prev != inv.PartyGSTIN {
			t.Errorf("vendor %s has two GSTINs", inv.PartyID)
		}
		gstins[inv.PartyID] = inv.PartyGSTIN
		if len(inv.PartyGSTIN) != 15 {
			t.Errorf("malformed GSTIN %q", inv.PartyGSTIN)
		}
		if !ds.Statement[i].Amount.Equal(inv.Total) || ds.Statement[i].Date.Before(inv.Date) {
			t.Errorf("payment %s does not settle %s", ds.Statement[i].ID, inv.ID)
		}
	}
}

func TestWriteFiles_ImportsCleanly(t *testing.T) {
	ds := generate(t, nil)
	paths, err := ds.WriteFiles(t.TempDir())
	if err != nil {
		t.Fatalf("WriteFiles: %v", err)
	}

	fixtures, err := store.LoadFixturesFile(paths[0])
	if err != nil {
		t.Fatalf("fixtures do not load: %v", err)
	}
	if len(fixtures.Invoices) != len(ds.Fixtures.Invoices) || len(fixtures.Catalog) != len(catalog) {
		t.Errorf("fixtures lost records on the way to disk")
	}

	layout, err := parsers.DetectBankLayout(paths[1])
	if err != nil {
		t.Fatalf("statement layout not detected: %v", err)
	}
	bank, err := parsers.NewBankStatementParser("org-gen", layout, nil)
	if err != nil {
		t.Fatalf("NewBankStatementParser: %v", err)
	}
	txns, stats, err := bank.ParseFile(context.Background(), paths[1])
	if err != nil {
		t.Fatalf("statement does not parse: %v", err)
	}
	if len(txns) != len(ds.Statement) || stats.HasErrors() {
		t.Errorf("parsed %d of %d statement lines: %s", len(txns), len(ds.Statement), stats)
	}

	ret, err := parsers.NewGSTReturnParser("org-gen", "", nil, nil)
	if err != nil {
		t.Fatalf("NewGSTReturnParser: %v", err)
	}
	entries, stats, err := ret.ParseFile(context.Background(), paths[2])
	if err != nil {
		t.Fatalf("return does not parse: %v", err)
	}
	if len(entries) != len(ds.Return) || stats.HasErrors() {
		t.Errorf("parsed %d of %d return entries: %s", len(entries), len(ds.Return), stats)
	}
}

func TestGenerate_Reconciles(t *testing.T) {
	ds := generate(t, func(c *Config) { c.PurchaseOrders = 15 })
	ctx := context.Background()

	st := memory.New()
	if err := store.Seed(ctx, st, ds.Fixtures); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	svc, err := reconciler.NewService(nil, st, logger.NewNopLogger())
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}

	for i, inv := range ds.Fixtures.Invoices {
		po := ds.Fixtures.PurchaseOrders[i]
		record, err := svc.ReconcileDocuments(ctx, "org-gen", po.ID, inv.ID)
		if err != nil {
			t.Fatalf("ReconcileDocuments %s: %v", inv.ID, err)
		}
		short := !inv.Subtotal.Equal(po.Subtotal)
		if short && record.MatchType == models.DocumentMatchExact {
			t.Errorf("%s was short supplied but matched exactly", inv.ID)
		}
		if !short && record.MatchType != models.DocumentMatchExact {
			t.Errorf("%s should match %s exactly, got %s (%v)", inv.ID, po.ID, record.MatchType, record.Reasons)
		}
	}
}
