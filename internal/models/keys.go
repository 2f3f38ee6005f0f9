package models

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ResultSchemaVersion is mixed into idempotency keys. Bump it when scoring
// changes so reruns produce new rows instead of overwriting old verdicts.
const ResultSchemaVersion = "v1"

// ResultKind names the kind of persisted match result
type ResultKind string

const (
	ResultDocumentMatch      ResultKind = "document_match"
	ResultGSTMatch           ResultKind = "gst_match"
	ResultDiscountEvaluation ResultKind = "discount_evaluation"
	ResultPaymentAllocation  ResultKind = "payment_allocation"
)

var keyNamespace = uuid.NewSHA1(uuid.NameSpaceOID, []byte("auditflow.reconciliation"))

// IdempotencyKey derives a stable key from the result kind and the ids of the
// input records, so reconciling the same pair twice upserts one row.
func IdempotencyKey(kind ResultKind, orgID string, ids ...string) string {
	parts := append([]string{ResultSchemaVersion, string(kind), orgID}, ids...)
	return uuid.NewSHA1(keyNamespace, []byte(strings.Join(parts, "|"))).String()
}

// StoredResult is a persisted match result. Payload holds the JSON encoding
// of the result object; the remaining fields are indexed copies used for
// listing and review queues.
type StoredResult struct {
	Key         string          `json:"key"`
	OrgID       string          `json:"orgId"`
	Kind        ResultKind      `json:"kind"`
	SubjectIDs  []string        `json:"subjectIds"`
	Score       float64         `json:"score"`
	Class       string          `json:"class"`
	NeedsReview bool            `json:"needsReview"`
	Payload     json.RawMessage `json:"payload"`
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
}
