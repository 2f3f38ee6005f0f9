// Package gormstore implements store.Store on a relational database through
// gorm. PostgreSQL is the production backend; SQLite serves local runs and
// tests.
package gormstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	"github.com/mohit-ambani/auditflow-sub000/internal/store"
	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

var _ store.Store = (*Store)(nil)

// Store is a gorm backed store.Store
type Store struct {
	db     *gorm.DB
	logger logger.Logger
	now    func() time.Time
}

// New wraps an open connection. The schema is expected to exist; see Migrate.
func New(db *gorm.DB, log logger.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.OrGlobal(log, "gorm-store"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Open connects through dialector and migrates the schema
func Open(ctx context.Context, dialector gorm.Dialector, log logger.Logger) (*Store, error) {
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                                   gormlogger.Default.LogMode(gormlogger.Silent),
		DisableForeignKeyConstraintWhenMigrating: true,
		NowFunc:                                  func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, apperrors.StorageError(apperrors.CodeConnectionFailed, "the database", err)
	}
	s := New(db, log)
	if err := s.Migrate(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres connects to PostgreSQL with a pooled connection
func OpenPostgres(ctx context.Context, dsn string, log logger.Logger) (*Store, error) {
	s, err := Open(ctx, postgres.Open(dsn), log)
	if err != nil {
		return nil, err
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, apperrors.StorageError(apperrors.CodeConnectionFailed, "the database", err)
	}
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(50)
	sqlDB.SetConnMaxLifetime(10 * time.Minute)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	return s, nil
}

// OpenSQLite opens or creates a SQLite database file. SQLite allows a single
// writer, so the pool is limited to one connection.
func OpenSQLite(ctx context.Context, path string, log logger.Logger) (*Store, error) {
	s, err := Open(ctx, sqlite.Open(path), log)
	if err != nil {
		return nil, err
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return nil, apperrors.StorageError(apperrors.CodeConnectionFailed, "the database", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	_ = s.db.Exec("PRAGMA busy_timeout = 5000").Error
	return s, nil
}

// Migrate creates or updates every table
func (s *Store) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(allRows()...); err != nil {
		return apperrors.StorageError(apperrors.CodeWriteFailed, "migrate schema", err)
	}
	return nil
}

// Close releases the connection pool
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetPurchaseOrder implements store.Reader
func (s *Store) GetPurchaseOrder(ctx context.Context, orgID, id string) (*models.PurchaseOrder, error) {
	var row purchaseOrderRow
	if err := s.first(ctx, &row, orgID, id, "purchase order"); err != nil {
		return nil, err
	}
	po, err := row.model()
	if err != nil {
		return nil, decodeErr("purchase order", err)
	}
	return po, nil
}

// GetInvoice implements store.Reader
func (s *Store) GetInvoice(ctx context.Context, orgID, id string) (*models.Invoice, error) {
	var row invoiceRow
	if err := s.first(ctx, &row, orgID, id, "invoice"); err != nil {
		return nil, err
	}
	inv, err := row.model()
	if err != nil {
		return nil, decodeErr("invoice", err)
	}
	return inv, nil
}

// GetTransaction implements store.Reader
func (s *Store) GetTransaction(ctx context.Context, orgID, id string) (*models.BankTransaction, error) {
	var row transactionRow
	if err := s.first(ctx, &row, orgID, id, "bank transaction"); err != nil {
		return nil, err
	}
	return row.model(), nil
}

// GetGSTEntry implements store.Reader
func (s *Store) GetGSTEntry(ctx context.Context, orgID, id string) (*models.GSTEntry, error) {
	var row gstEntryRow
	if err := s.first(ctx, &row, orgID, id, "gst entry"); err != nil {
		return nil, err
	}
	return row.model(), nil
}

// GetCatalogEntry implements store.Reader
func (s *Store) GetCatalogEntry(ctx context.Context, orgID, id string) (*models.CatalogEntry, error) {
	var row catalogEntryRow
	if err := s.first(ctx, &row, orgID, id, "catalog entry"); err != nil {
		return nil, err
	}
	entries, err := s.withAliases(ctx, orgID, []catalogEntryRow{row})
	if err != nil {
		return nil, err
	}
	return entries[0], nil
}

// ListPurchaseOrders returns matching orders by date, then id
func (s *Store) ListPurchaseOrders(ctx context.Context, orgID string, filter models.POFilter) ([]*models.PurchaseOrder, error) {
	q := s.db.WithContext(ctx).Where("org_id = ?", orgID)
	if filter.VendorID != "" {
		q = q.Where("vendor_id = ?", filter.VendorID)
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, len(filter.Statuses))
		for i, st := range filter.Statuses {
			statuses[i] = string(st)
		}
		q = q.Where("status IN ?", statuses)
	}

	var rows []purchaseOrderRow
	if err := q.Order("date, id").Find(&rows).Error; err != nil {
		return nil, queryErr("list purchase orders", err)
	}
	out := make([]*models.PurchaseOrder, 0, len(rows))
	for i := range rows {
		po, err := rows[i].model()
		if err != nil {
			return nil, decodeErr("purchase order", err)
		}
		out = append(out, po)
	}
	return out, nil
}

// ListInvoices returns matching invoices by date, then id
func (s *Store) ListInvoices(ctx context.Context, orgID string, filter models.InvoiceFilter) ([]*models.Invoice, error) {
	q := s.db.WithContext(ctx).Where("org_id = ?", orgID)
	if filter.Kind != "" {
		q = q.Where("kind = ?", string(filter.Kind))
	}
	if filter.PartyID != "" {
		q = q.Where("party_id = ?", filter.PartyID)
	}
	if filter.PartyGSTIN != "" {
		q = q.Where("party_gstin = ?", filter.PartyGSTIN)
	}
	q = dayRange(q, "date", filter.From, filter.To)
	if len(filter.PaymentStatuses) > 0 {
		statuses := make([]string, len(filter.PaymentStatuses))
		for i, st := range filter.PaymentStatuses {
			statuses[i] = string(st)
		}
		q = q.Where("payment_status IN ?", statuses)
	}

	var rows []invoiceRow
	if err := q.Order("date, id").Find(&rows).Error; err != nil {
		return nil, queryErr("list invoices", err)
	}
	out := make([]*models.Invoice, 0, len(rows))
	for i := range rows {
		inv, err := rows[i].model()
		if err != nil {
			return nil, decodeErr("invoice", err)
		}
		out = append(out, inv)
	}
	return out, nil
}

// ListTransactions returns matching transactions by date, then id
func (s *Store) ListTransactions(ctx context.Context, orgID string, filter models.TransactionFilter) ([]*models.BankTransaction, error) {
	q := s.db.WithContext(ctx).Where("org_id = ?", orgID)
	if filter.Status != "" {
		q = q.Where("status = ?", string(filter.Status))
	}
	q = dayRange(q, "date", filter.From, filter.To)

	var rows []transactionRow
	if err := q.Order("date, id").Find(&rows).Error; err != nil {
		return nil, queryErr("list transactions", err)
	}
	out := make([]*models.BankTransaction, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

// ListGSTEntries returns the entries of a period by invoice date, then id
func (s *Store) ListGSTEntries(ctx context.Context, orgID string, filter models.GSTEntryFilter) ([]*models.GSTEntry, error) {
	q := s.db.WithContext(ctx).Where("org_id = ?", orgID)
	if filter.Period != "" {
		q = q.Where("return_period = ?", filter.Period)
	}
	if filter.GSTIN != "" {
		q = q.Where("counterparty_gstin = ?", filter.GSTIN)
	}

	var rows []gstEntryRow
	if err := q.Order("invoice_date, id").Find(&rows).Error; err != nil {
		return nil, queryErr("list gst entries", err)
	}
	out := make([]*models.GSTEntry, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

// ListCatalog returns catalog entries by code, then id
func (s *Store) ListCatalog(ctx context.Context, orgID string, filter models.CatalogFilter) ([]*models.CatalogEntry, error) {
	q := s.db.WithContext(ctx).Where("org_id = ?", orgID)
	if filter.ActiveOnly {
		q = q.Where("active = ?", true)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}

	var rows []catalogEntryRow
	if err := q.Order("code, id").Find(&rows).Error; err != nil {
		return nil, queryErr("list catalog", err)
	}
	return s.withAliases(ctx, orgID, rows)
}

// ListDiscountTerms returns a vendor's terms by id
func (s *Store) ListDiscountTerms(ctx context.Context, orgID, vendorID string) ([]*models.DiscountTerm, error) {
	var rows []discountTermRow
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND vendor_id = ?", orgID, vendorID).
		Order("id").
		Find(&rows).Error
	if err != nil {
		return nil, queryErr("list discount terms", err)
	}
	out := make([]*models.DiscountTerm, 0, len(rows))
	for i := range rows {
		term, err := rows[i].model()
		if err != nil {
			return nil, decodeErr("discount term", err)
		}
		out = append(out, term)
	}
	return out, nil
}

// ListAllocations returns allocations in the order they were made
func (s *Store) ListAllocations(ctx context.Context, orgID string, filter models.AllocationFilter) ([]models.PaymentAllocation, error) {
	q := s.db.WithContext(ctx).Where("org_id = ?", orgID)
	if filter.TransactionID != "" {
		q = q.Where("transaction_id = ?", filter.TransactionID)
	}
	if filter.InvoiceID != "" {
		q = q.Where("invoice_id = ?", filter.InvoiceID)
	}

	var rows []allocationRow
	if err := q.Order("id").Find(&rows).Error; err != nil {
		return nil, queryErr("list allocations", err)
	}
	out := make([]models.PaymentAllocation, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].model())
	}
	return out, nil
}

// SavePurchaseOrder implements store.Writer
func (s *Store) SavePurchaseOrder(ctx context.Context, po *models.PurchaseOrder) error {
	if err := po.Validate(); err != nil {
		return apperrors.ValidationError(apperrors.CodeMissingField, "purchase_order", po.ID, err)
	}
	return s.upsert(ctx, "save purchase order", newPurchaseOrderRow(po))
}

// SaveInvoice implements store.Writer
func (s *Store) SaveInvoice(ctx context.Context, inv *models.Invoice) error {
	if err := inv.Validate(); err != nil {
		return apperrors.ValidationError(apperrors.CodeMissingField, "invoice", inv.ID, err)
	}
	return s.upsert(ctx, "save invoice", newInvoiceRow(inv))
}

// SaveTransaction implements store.Writer. A transaction without a status is
// stored as unmatched.
func (s *Store) SaveTransaction(ctx context.Context, txn *models.BankTransaction) error {
	if err := txn.Validate(); err != nil {
		return apperrors.ValidationError(apperrors.CodeInvalidAmount, "transaction", txn.ID, err)
	}
	return s.upsert(ctx, "save transaction", newTransactionRow(txn))
}

// SaveGSTEntry implements store.Writer
func (s *Store) SaveGSTEntry(ctx context.Context, entry *models.GSTEntry) error {
	return s.upsert(ctx, "save gst entry", newGSTEntryRow(entry))
}

// SaveCatalogEntry implements store.Writer. The entry's aliases replace those
// already recorded.
func (s *Store) SaveCatalogEntry(ctx context.Context, entry *models.CatalogEntry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		row := &catalogEntryRow{
			OrgID:   entry.OrgID,
			ID:      entry.ID,
			Code:    entry.Code,
			Name:    entry.Name,
			HSNCode: entry.HSNCode,
			Active:  entry.Active,
		}
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error; err != nil {
			return apperrors.StorageError(apperrors.CodeWriteFailed, "save catalog entry", err)
		}
		err := tx.Where("org_id = ? AND catalog_entry_id = ?", entry.OrgID, entry.ID).
			Delete(&catalogAliasRow{}).Error
		if err != nil {
			return apperrors.StorageError(apperrors.CodeWriteFailed, "replace catalog aliases", err)
		}
		for _, alias := range entry.Aliases {
			if _, err := s.insertAlias(tx, entry.OrgID, entry.ID, alias); err != nil {
				return err
			}
		}
		return nil
	})
}

// SaveDiscountTerm implements store.Writer
func (s *Store) SaveDiscountTerm(ctx context.Context, term *models.DiscountTerm) error {
	return s.upsert(ctx, "save discount term", newDiscountTermRow(term))
}

// AppendAlias implements store.Writer
func (s *Store) AppendAlias(ctx context.Context, orgID, catalogID, alias string) (bool, error) {
	var added bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row catalogEntryRow
		if err := s.firstIn(tx, &row, orgID, catalogID, "catalog entry"); err != nil {
			return err
		}
		var err error
		added, err = s.insertAlias(tx, orgID, catalogID, alias)
		return err
	})
	return added, err
}

// insertAlias relies on the unique alias key, so a concurrent insert of the
// same alias is a no-op rather than an error
func (s *Store) insertAlias(tx *gorm.DB, orgID, catalogID, alias string) (bool, error) {
	row := &catalogAliasRow{
		OrgID:          orgID,
		CatalogEntryID: catalogID,
		AliasKey:       models.AliasKey(alias),
		Alias:          alias,
		CreatedAt:      s.now(),
	}
	result := tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "org_id"},
			{Name: "catalog_entry_id"},
			{Name: "alias_key"},
		},
		DoNothing: true,
	}).Create(row)
	if result.Error != nil {
		return false, apperrors.StorageError(apperrors.CodeWriteFailed, "append alias", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// ApplyAllocationPlan implements store.Writer in one database transaction
func (s *Store) ApplyAllocationPlan(ctx context.Context, plan *models.AllocationPlan) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkPlanTargets(tx, plan.OrgID, plan.TransactionID, plan.InvoiceUpdates); err != nil {
			return err
		}
		if len(plan.Allocations) > 0 {
			rows := make([]*allocationRow, 0, len(plan.Allocations))
			for _, a := range plan.Allocations {
				rows = append(rows, newAllocationRow(plan.OrgID, a))
			}
			if err := tx.Create(&rows).Error; err != nil {
				return apperrors.StorageError(apperrors.CodeWriteFailed, "insert allocations", err)
			}
		}
		return applySettlement(tx, plan.OrgID, plan.TransactionID, plan.InvoiceUpdates, plan.TransactionStatus)
	})
}

// ApplyReversalPlan implements store.Writer in one database transaction
func (s *Store) ApplyReversalPlan(ctx context.Context, plan *models.ReversalPlan) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.checkPlanTargets(tx, plan.OrgID, plan.TransactionID, plan.InvoiceUpdates); err != nil {
			return err
		}
		for _, a := range plan.Removed {
			err := tx.Where("org_id = ? AND transaction_id = ? AND invoice_id = ?", plan.OrgID, a.TransactionID, a.InvoiceID).
				Delete(&allocationRow{}).Error
			if err != nil {
				return apperrors.StorageError(apperrors.CodeWriteFailed, "delete allocations", err)
			}
		}
		return applySettlement(tx, plan.OrgID, plan.TransactionID, plan.InvoiceUpdates, plan.TransactionStatus)
	})
}

func (s *Store) checkPlanTargets(tx *gorm.DB, orgID, transactionID string, updates []models.InvoicePaymentUpdate) error {
	var txn transactionRow
	if err := s.firstIn(tx, &txn, orgID, transactionID, "bank transaction"); err != nil {
		return err
	}
	// postgres holds the invoice rows until commit so a concurrent plan
	// waits and then sees the new paid amount; sqlite serializes writers
	locked := tx
	if tx.Dialector.Name() == "postgres" {
		locked = tx.Clauses(clause.Locking{Strength: "UPDATE"}).Session(&gorm.Session{})
	}
	for _, u := range updates {
		var inv invoiceRow
		if err := s.firstIn(locked, &inv, orgID, u.InvoiceID, "invoice"); err != nil {
			return err
		}
		if !inv.AmountPaid.Equal(u.PreviousPaid) {
			return store.StalePlanError(orgID, u, inv.AmountPaid)
		}
	}
	return nil
}

func applySettlement(tx *gorm.DB, orgID, transactionID string, updates []models.InvoicePaymentUpdate, status models.TransactionStatus) error {
	for _, u := range updates {
		err := tx.Model(&invoiceRow{}).
			Where("org_id = ? AND id = ?", orgID, u.InvoiceID).
			Updates(map[string]interface{}{
				"amount_paid":    u.AmountPaid,
				"payment_status": string(u.Status),
			}).Error
		if err != nil {
			return apperrors.StorageError(apperrors.CodeWriteFailed, "update invoice settlement", err)
		}
	}
	if status == "" {
		return nil
	}
	err := tx.Model(&transactionRow{}).
		Where("org_id = ? AND id = ?", orgID, transactionID).
		Update("status", string(status)).Error
	if err != nil {
		return apperrors.StorageError(apperrors.CodeWriteFailed, "update transaction status", err)
	}
	return nil
}

// SaveResult implements store.ResultStore. The insert and the update share
// one statement, so concurrent saves of the same key converge on one row.
func (s *Store) SaveResult(ctx context.Context, result *models.StoredResult) error {
	if result.Key == "" {
		return apperrors.ValidationError(apperrors.CodeMissingField, "key", "", nil)
	}
	subjects := result.SubjectIDs
	if subjects == nil {
		subjects = []string{}
	}
	payload := result.Payload
	if len(payload) == 0 {
		payload = json.RawMessage("{}")
	}
	now := s.now()
	row := &resultRow{
		OrgID:       result.OrgID,
		ResultKey:   result.Key,
		Kind:        string(result.Kind),
		SubjectIDs:  mustJSON(subjects),
		Score:       result.Score,
		Class:       result.Class,
		NeedsReview: result.NeedsReview,
		Payload:     datatypes.JSON(payload),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "org_id"}, {Name: "result_key"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"kind", "subject_ids", "score", "class", "needs_review", "payload", "updated_at",
		}),
	}).Create(row).Error
	if err != nil {
		return apperrors.StorageError(apperrors.CodeWriteFailed, "save match result", err)
	}
	return nil
}

// GetResult implements store.ResultStore
func (s *Store) GetResult(ctx context.Context, orgID, resultKey string) (*models.StoredResult, error) {
	var row resultRow
	err := s.db.WithContext(ctx).Where("org_id = ? AND result_key = ?", orgID, resultKey).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.NotFoundError("match result", resultKey, orgID)
	}
	if err != nil {
		return nil, queryErr("get match result", err)
	}
	result, err := row.model()
	if err != nil {
		return nil, decodeErr("match result", err)
	}
	return result, nil
}

// ListResults returns the results of one kind, oldest first. An empty kind
// lists every result.
func (s *Store) ListResults(ctx context.Context, orgID string, kind models.ResultKind) ([]*models.StoredResult, error) {
	q := s.db.WithContext(ctx).Where("org_id = ?", orgID)
	if kind != "" {
		q = q.Where("kind = ?", string(kind))
	}
	var rows []resultRow
	if err := q.Order("created_at, result_key").Find(&rows).Error; err != nil {
		return nil, queryErr("list match results", err)
	}
	out := make([]*models.StoredResult, 0, len(rows))
	for i := range rows {
		result, err := rows[i].model()
		if err != nil {
			return nil, decodeErr("match result", err)
		}
		out = append(out, result)
	}
	return out, nil
}

func (s *Store) upsert(ctx context.Context, op string, row interface{}) error {
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error; err != nil {
		return apperrors.StorageError(apperrors.CodeWriteFailed, op, err)
	}
	return nil
}

func (s *Store) first(ctx context.Context, dest interface{}, orgID, id, kind string) error {
	return s.firstIn(s.db.WithContext(ctx), dest, orgID, id, kind)
}

func (s *Store) firstIn(tx *gorm.DB, dest interface{}, orgID, id, kind string) error {
	err := tx.Where("org_id = ? AND id = ?", orgID, id).First(dest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperrors.NotFoundError(kind, id, orgID)
	}
	if err != nil {
		return queryErr("get "+kind, err)
	}
	return nil
}

func (s *Store) withAliases(ctx context.Context, orgID string, rows []catalogEntryRow) ([]*models.CatalogEntry, error) {
	out := make([]*models.CatalogEntry, 0, len(rows))
	if len(rows) == 0 {
		return out, nil
	}
	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	var aliases []catalogAliasRow
	err := s.db.WithContext(ctx).
		Where("org_id = ? AND catalog_entry_id IN ?", orgID, ids).
		Order("id").
		Find(&aliases).Error
	if err != nil {
		return nil, queryErr("list catalog aliases", err)
	}
	byEntry := make(map[string][]string, len(rows))
	for _, a := range aliases {
		byEntry[a.CatalogEntryID] = append(byEntry[a.CatalogEntryID], a.Alias)
	}

	for _, row := range rows {
		out = append(out, &models.CatalogEntry{
			ID:      row.ID,
			OrgID:   row.OrgID,
			Code:    row.Code,
			Name:    row.Name,
			HSNCode: row.HSNCode,
			Aliases: byEntry[row.ID],
			Active:  row.Active,
		})
	}
	return out, nil
}

// dayRange constrains column to the inclusive calendar days [from, to]
func dayRange(q *gorm.DB, column string, from, to time.Time) *gorm.DB {
	if !from.IsZero() {
		q = q.Where(column+" >= ?", models.TruncateDay(from))
	}
	if !to.IsZero() {
		q = q.Where(column+" < ?", models.TruncateDay(to).AddDate(0, 0, 1))
	}
	return q
}

func queryErr(op string, err error) error {
	return apperrors.StorageError(apperrors.CodeQueryFailed, op, err)
}

func decodeErr(kind string, err error) error {
	return apperrors.StorageError(apperrors.CodeDataInconsistent, "decode "+kind, err)
}
