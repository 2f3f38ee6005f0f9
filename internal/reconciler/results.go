package reconciler

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

// DocumentMatchKey is the idempotency key of a PO to invoice verdict
func DocumentMatchKey(orgID, poID, invoiceID string) string {
	return models.IdempotencyKey(models.ResultDocumentMatch, orgID, poID, invoiceID)
}

// GSTMatchKey is the idempotency key of a return entry verdict
func GSTMatchKey(orgID, entryID string) string {
	return models.IdempotencyKey(models.ResultGSTMatch, orgID, entryID)
}

// DiscountEvaluationKey is the idempotency key of an invoice discount check
func DiscountEvaluationKey(orgID, invoiceID string) string {
	return models.IdempotencyKey(models.ResultDiscountEvaluation, orgID, invoiceID)
}

// SaveDocumentMatch upserts record and returns its key. A human resolution
// already recorded for the same pair is carried over to the new verdict.
func (s *Service) SaveDocumentMatch(ctx context.Context, record *models.DocumentMatchRecord) (string, error) {
	key := DocumentMatchKey(record.OrgID, record.PurchaseOrderID, record.InvoiceID)
	needsReview := record.NeedsReview

	if record.Resolution == nil {
		previous, err := s.documentMatch(ctx, record.OrgID, key)
		switch {
		case err == nil && previous.Resolution != nil:
			record.Resolution = previous.Resolution
		case err != nil && !apperrors.IsNotFound(err):
			return "", err
		}
	}
	if record.Resolution != nil {
		needsReview = false
	}

	return key, s.saveResult(ctx, &models.StoredResult{
		Key:         key,
		OrgID:       record.OrgID,
		Kind:        models.ResultDocumentMatch,
		SubjectIDs:  []string{record.PurchaseOrderID, record.InvoiceID},
		Score:       record.Score,
		Class:       string(record.MatchType),
		NeedsReview: needsReview,
	}, record)
}

// SaveGSTMatch upserts record and returns its key
func (s *Service) SaveGSTMatch(ctx context.Context, record *models.GSTMatchRecord) (string, error) {
	key := GSTMatchKey(record.OrgID, record.EntryID)
	subjects := []string{record.EntryID}
	if record.InvoiceID != "" {
		subjects = append(subjects, record.InvoiceID)
	}
	return key, s.saveResult(ctx, &models.StoredResult{
		Key:         key,
		OrgID:       record.OrgID,
		Kind:        models.ResultGSTMatch,
		SubjectIDs:  subjects,
		Score:       record.Score,
		Class:       string(record.Class),
		NeedsReview: record.Class != models.GSTMatchExact,
	}, record)
}

// SaveDiscountEvaluation upserts eval and returns its key
func (s *Service) SaveDiscountEvaluation(ctx context.Context, eval *models.DiscountEvaluation) (string, error) {
	key := DiscountEvaluationKey(eval.OrgID, eval.InvoiceID)
	return key, s.saveResult(ctx, &models.StoredResult{
		Key:         key,
		OrgID:       eval.OrgID,
		Kind:        models.ResultDiscountEvaluation,
		SubjectIDs:  []string{eval.InvoiceID},
		Class:       string(eval.Class),
		NeedsReview: eval.Class != models.DiscountCorrect,
	}, eval)
}

// SaveAllocation records an applied plan. The key covers the transaction and
// every allocation of the plan, so replaying the same plan upserts one row.
func (s *Service) SaveAllocation(ctx context.Context, plan *models.AllocationPlan) (string, error) {
	ids := []string{plan.TransactionID}
	subjects := []string{plan.TransactionID}
	for _, a := range plan.Allocations {
		ids = append(ids, a.InvoiceID+"="+a.Amount.StringFixed(2))
		subjects = append(subjects, a.InvoiceID)
	}
	key := models.IdempotencyKey(models.ResultPaymentAllocation, plan.OrgID, ids...)
	return key, s.saveResult(ctx, &models.StoredResult{
		Key:         key,
		OrgID:       plan.OrgID,
		Kind:        models.ResultPaymentAllocation,
		SubjectIDs:  subjects,
		Score:       plan.Confidence,
		Class:       string(plan.TransactionStatus),
		NeedsReview: plan.TransactionStatus == models.TransactionManuallyMatched,
	}, plan)
}

// ResolveDocumentMatch records a reviewer's decision on a persisted verdict
// and takes it out of the review queue
func (s *Service) ResolveDocumentMatch(ctx context.Context, orgID, key, resolvedBy, note string) (*models.DocumentMatchRecord, error) {
	resolvedBy = strings.TrimSpace(resolvedBy)
	if resolvedBy == "" {
		return nil, apperrors.ValidationError(apperrors.CodeMissingField, "resolved_by", resolvedBy, nil).
			WithSuggestion("Name the reviewer resolving the match")
	}

	record, err := s.documentMatch(ctx, orgID, key)
	if err != nil {
		return nil, err
	}
	record.Resolution = &models.Resolution{
		ResolvedBy: resolvedBy,
		ResolvedAt: s.now(),
		Note:       strings.TrimSpace(note),
	}
	if _, err := s.SaveDocumentMatch(ctx, record); err != nil {
		return nil, err
	}

	s.logger.WithFields(logger.Fields{
		"org_id":      orgID,
		"key":         key,
		"resolved_by": resolvedBy,
	}).Info("Document match resolved")
	return record, nil
}

// DocumentMatch loads a persisted verdict by key
func (s *Service) DocumentMatch(ctx context.Context, orgID, key string) (*models.DocumentMatchRecord, error) {
	return s.documentMatch(ctx, orgID, key)
}

// ReviewQueue lists persisted results of kind that still need a reviewer,
// lowest score first. An empty kind covers every kind.
func (s *Service) ReviewQueue(ctx context.Context, orgID string, kind models.ResultKind) ([]*models.StoredResult, error) {
	results, err := s.store.ListResults(ctx, orgID, kind)
	if err != nil {
		return nil, err
	}
	queue := make([]*models.StoredResult, 0, len(results))
	for _, r := range results {
		if r.NeedsReview {
			queue = append(queue, r)
		}
	}
	sort.SliceStable(queue, func(i, j int) bool { return queue[i].Score < queue[j].Score })
	return queue, nil
}

func (s *Service) documentMatch(ctx context.Context, orgID, key string) (*models.DocumentMatchRecord, error) {
	stored, err := s.store.GetResult(ctx, orgID, key)
	if err != nil {
		return nil, err
	}
	if stored.Kind != models.ResultDocumentMatch {
		return nil, apperrors.ValidationError(apperrors.CodeInvalidData, "key", key, nil).
			WithContext("kind", stored.Kind).
			WithSuggestion("Use the key of a document match result")
	}
	var record models.DocumentMatchRecord
	if err := json.Unmarshal(stored.Payload, &record); err != nil {
		return nil, apperrors.StorageError(apperrors.CodeDataInconsistent, "decode document match", err)
	}
	return &record, nil
}

func (s *Service) saveResult(ctx context.Context, result *models.StoredResult, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return apperrors.InternalError(apperrors.CodeUnexpectedError, "encode match result", err)
	}
	result.Payload = raw
	if err := s.store.SaveResult(ctx, result); err != nil {
		return err
	}
	s.logger.WithFields(logger.Fields{
		"org_id":       result.OrgID,
		"kind":         result.Kind,
		"key":          result.Key,
		"needs_review": result.NeedsReview,
	}).Debug("Match result saved")
	return nil
}

func (s *Service) persistDocumentMatch(ctx context.Context, record *models.DocumentMatchRecord) error {
	if !s.config.PersistResults {
		return nil
	}
	_, err := s.SaveDocumentMatch(ctx, record)
	return err
}

func (s *Service) persistGSTMatch(ctx context.Context, record *models.GSTMatchRecord) error {
	if !s.config.PersistResults {
		return nil
	}
	_, err := s.SaveGSTMatch(ctx, record)
	return err
}

func (s *Service) persistDiscountEvaluation(ctx context.Context, eval *models.DiscountEvaluation) error {
	if !s.config.PersistResults {
		return nil
	}
	_, err := s.SaveDiscountEvaluation(ctx, eval)
	return err
}

func (s *Service) persistAllocation(ctx context.Context, plan *models.AllocationPlan) error {
	if !s.config.PersistResults {
		return nil
	}
	_, err := s.SaveAllocation(ctx, plan)
	return err
}
