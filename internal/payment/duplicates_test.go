package payment

import (
	"testing"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
)

func TestDetectDuplicates(t *testing.T) {
	dup := func(id, amount, ref string, offsetDays int) *models.BankTransaction {
		txn := createTestTxn(id, amount, models.DirectionDebit, ref, "")
		txn.Date = baseDate.AddDate(0, 0, offsetDays)
		return txn
	}

	tests := []struct {
		name       string
		txns       []*models.BankTransaction
		window     int
		wantGroups [][]string
		wantConf   []float64
	}{
		{
			name:       "same line imported twice",
			txns:       []*models.BankTransaction{dup("t1", "500", "UTR1", 0), dup("t2", "500", "utr 1", 0)},
			window:     1,
			wantGroups: [][]string{{"t1", "t2"}},
			wantConf:   []float64{1},
		},
		{
			name:       "next day without references",
			txns:       []*models.BankTransaction{dup("t1", "500", "", 0), dup("t2", "500", "", 1)},
			window:     1,
			wantGroups: [][]string{{"t1", "t2"}},
			wantConf:   []float64{0.7},
		},
		{
			name:   "outside the window",
			txns:   []*models.BankTransaction{dup("t1", "500", "", 0), dup("t2", "500", "", 2)},
			window: 1,
		},
		{
			name:   "different references",
			txns:   []*models.BankTransaction{dup("t1", "500", "UTR1", 0), dup("t2", "500", "UTR2", 0)},
			window: 1,
		},
		{
			name:   "different amounts",
			txns:   []*models.BankTransaction{dup("t1", "500", "", 0), dup("t2", "500.01", "", 0)},
			window: 1,
		},
		{
			name: "three way group and a separate pair",
			txns: []*models.BankTransaction{
				dup("t1", "100", "", 0), dup("t2", "200", "", 0), dup("t3", "100", "", 0),
				dup("t4", "200", "", 0), dup("t5", "100", "", 0),
			},
			window:     0,
			wantGroups: [][]string{{"t1", "t3", "t5"}, {"t2", "t4"}},
			wantConf:   []float64{0.8, 0.8},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			groups := DetectDuplicates(tt.txns, tt.window)
			if len(groups) != len(tt.wantGroups) {
				t.Fatalf("got %d groups, want %d: %+v", len(groups), len(tt.wantGroups), groups)
			}
			for i, g := range groups {
				if len(g.TransactionIDs) != len(tt.wantGroups[i]) {
					t.Fatalf("group %d = %v, want %v", i, g.TransactionIDs, tt.wantGroups[i])
				}
				for j, id := range g.TransactionIDs {
					if id != tt.wantGroups[i][j] {
						t.Errorf("group %d = %v, want %v", i, g.TransactionIDs, tt.wantGroups[i])
					}
				}
				if g.Confidence != tt.wantConf[i] {
					t.Errorf("group %d confidence = %v, want %v", i, g.Confidence, tt.wantConf[i])
				}
			}
		})
	}
}

func TestDetectDuplicates_Direction(t *testing.T) {
	debit := createTestTxn("t1", "500", models.DirectionDebit, "", "")
	credit := createTestTxn("t2", "500", models.DirectionCredit, "", "")
	if groups := DetectDuplicates([]*models.BankTransaction{debit, credit}, 1); len(groups) != 0 {
		t.Errorf("a debit and a credit are not duplicates: %+v", groups)
	}
}
