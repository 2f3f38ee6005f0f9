package sku

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

// CatalogSource is the part of the store the resolver reads and appends
// aliases to
type CatalogSource interface {
	GetCatalogEntry(ctx context.Context, orgID, id string) (*models.CatalogEntry, error)
	ListCatalog(ctx context.Context, orgID string, filter models.CatalogFilter) ([]*models.CatalogEntry, error)
	AppendAlias(ctx context.Context, orgID, catalogID, alias string) (bool, error)
}

// OracleRequest is what an oracle sees of a description and the catalog
type OracleRequest struct {
	Description string
	HSNCode     string
	Catalog     []*models.CatalogEntry
}

// Suggestion is one catalog entry proposed by an oracle
type Suggestion struct {
	CatalogID  string  `json:"id"`
	Confidence float64 `json:"confidence"`
}

// Oracle proposes catalog entries for descriptions the local tiers could not
// resolve
type Oracle interface {
	Suggest(ctx context.Context, req OracleRequest) ([]Suggestion, error)
}

// OracleRecorder observes oracle calls
type OracleRecorder interface {
	ObserveOracle(outcome string, elapsed time.Duration)
}

// Oracle call outcomes reported to the recorder
const (
	OracleOK      = "ok"
	OracleEmpty   = "empty"
	OracleError   = "error"
	OracleTimeout = "timeout"
)

// Query is a line description to resolve
type Query struct {
	Description string
	Code        string
	HSNCode     string
}

// Resolver runs the resolution cascade
type Resolver struct {
	config   *Config
	source   CatalogSource
	oracle   Oracle
	recorder OracleRecorder
	searcher SearcherFactory
	logger   logger.Logger
}

// ResolverOption customizes a Resolver
type ResolverOption func(*Resolver)

// WithOracle enables the oracle tier
func WithOracle(o Oracle) ResolverOption {
	return func(r *Resolver) {
		r.oracle = o
	}
}

// WithOracleRecorder reports oracle outcomes and latency
func WithOracleRecorder(rec OracleRecorder) ResolverOption {
	return func(r *Resolver) {
		r.recorder = rec
	}
}

// WithSearcher replaces the trigram index used by the fuzzy tier
func WithSearcher(f SearcherFactory) ResolverOption {
	return func(r *Resolver) {
		r.searcher = f
	}
}

// NewResolver creates a resolver. A nil config uses DefaultConfig; source may
// be nil when only ResolveWithCatalog is used.
func NewResolver(config *Config, source CatalogSource, log logger.Logger, opts ...ResolverOption) *Resolver {
	if config == nil {
		config = DefaultConfig()
	}
	r := &Resolver{
		config:   config,
		source:   source,
		searcher: NewTrigramSearcher,
		logger:   logger.OrGlobal(log, "sku-resolver"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve loads the active catalog of an organization and resolves q
func (r *Resolver) Resolve(ctx context.Context, orgID string, q Query) (*models.SKUResolution, error) {
	catalog, err := r.activeCatalog(ctx, orgID)
	if err != nil {
		return nil, err
	}
	return r.ResolveWithCatalog(ctx, q, catalog), nil
}

// ResolveLines resolves every line of a document in order against one
// catalog snapshot
func (r *Resolver) ResolveLines(ctx context.Context, orgID string, lines []models.LineItem) ([]*models.SKUResolution, error) {
	catalog, err := r.activeCatalog(ctx, orgID)
	if err != nil {
		return nil, err
	}

	results := make([]*models.SKUResolution, 0, len(lines))
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return nil, apperrors.InternalError(apperrors.CodeTimeout, "sku line resolution", err)
		}
		results = append(results, r.ResolveWithCatalog(ctx, Query{
			Description: line.Description,
			Code:        line.CatalogID,
			HSNCode:     line.HSNCode,
		}, catalog))
	}
	return results, nil
}

// ResolveWithCatalog runs the cascade against the active entries of catalog.
// Only the oracle tier uses ctx.
func (r *Resolver) ResolveWithCatalog(ctx context.Context, q Query, catalog []*models.CatalogEntry) *models.SKUResolution {
	catalog = activeOnly(catalog)
	if m := r.exactMatch(q, catalog); m != nil {
		return r.finish(q, []models.SKUMatch{*m})
	}

	searcher := r.searcher(catalog)
	fuzzy := searcher.Search(q.Description, r.config.FuzzyThreshold, r.config.MaxFuzzyCandidates)
	if len(fuzzy) > 0 && fuzzy[0].Confidence >= r.config.ResolvedThreshold {
		return r.finish(q, fuzzy)
	}

	if r.oracle == nil || strings.TrimSpace(q.Description) == "" {
		return r.finish(q, fuzzy)
	}
	return r.finish(q, mergeMatches(fuzzy, r.askOracle(ctx, q, catalog)))
}

func (r *Resolver) exactMatch(q Query, catalog []*models.CatalogEntry) *models.SKUMatch {
	if code := strings.TrimSpace(q.Code); code != "" {
		for _, entry := range catalog {
			if strings.EqualFold(strings.TrimSpace(entry.Code), code) {
				return &models.SKUMatch{CatalogID: entry.ID, Tier: models.SKUTierExact, Confidence: 1, MatchedText: entry.Code}
			}
		}
	}

	key := models.AliasKey(q.Description)
	if key == "" {
		return nil
	}
	for _, entry := range catalog {
		if models.AliasKey(entry.Name) == key {
			return &models.SKUMatch{CatalogID: entry.ID, Tier: models.SKUTierExact, Confidence: 1, MatchedText: entry.Name}
		}
	}
	for _, entry := range catalog {
		if entry.HasAlias(q.Description) {
			return &models.SKUMatch{CatalogID: entry.ID, Tier: models.SKUTierAlias, Confidence: r.config.AliasConfidence, MatchedText: q.Description}
		}
	}
	return nil
}

// askOracle never fails: errors and malformed answers count as no suggestion
func (r *Resolver) askOracle(ctx context.Context, q Query, catalog []*models.CatalogEntry) []models.SKUMatch {
	snapshot := catalog
	if len(snapshot) > r.config.OracleCatalogLimit {
		snapshot = snapshot[:r.config.OracleCatalogLimit]
	}
	known := make(map[string]*models.CatalogEntry, len(snapshot))
	for _, entry := range snapshot {
		known[entry.ID] = entry
	}

	callCtx := ctx
	if r.config.OracleTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, r.config.OracleTimeout)
		defer cancel()
	}

	start := time.Now()
	suggestions, err := r.oracle.Suggest(callCtx, OracleRequest{
		Description: q.Description,
		HSNCode:     q.HSNCode,
		Catalog:     snapshot,
	})
	elapsed := time.Since(start)

	if err != nil {
		outcome := OracleError
		if errors.Is(err, context.DeadlineExceeded) {
			outcome = OracleTimeout
		}
		r.observe(outcome, elapsed)
		r.logger.WithError(err).WithFields(logger.Fields{
			"description": q.Description,
			"elapsed":     elapsed.String(),
		}).Warn("SKU oracle failed, falling back to fuzzy candidates")
		return nil
	}

	var matches []models.SKUMatch
	for _, s := range suggestions {
		entry, ok := known[s.CatalogID]
		if !ok {
			continue
		}
		matches = append(matches, models.SKUMatch{
			CatalogID:   entry.ID,
			Tier:        models.SKUTierAI,
			Confidence:  roundConfidence(clampConfidence(s.Confidence)),
			MatchedText: entry.Name,
		})
		if len(matches) == r.config.OracleMaxResults {
			break
		}
	}

	if len(matches) == 0 {
		r.observe(OracleEmpty, elapsed)
	} else {
		r.observe(OracleOK, elapsed)
	}
	return matches
}

func (r *Resolver) observe(outcome string, elapsed time.Duration) {
	if r.recorder != nil {
		r.recorder.ObserveOracle(outcome, elapsed)
	}
}

func (r *Resolver) finish(q Query, candidates []models.SKUMatch) *models.SKUResolution {
	if candidates == nil {
		candidates = []models.SKUMatch{}
	}
	result := &models.SKUResolution{
		Description: q.Description,
		Candidates:  candidates,
		NeedsReview: true,
	}
	if len(candidates) > 0 {
		best := candidates[0]
		result.BestMatch = &best
		result.NeedsReview = best.Confidence < r.config.ReviewThreshold
	}
	return result
}

// LearnAlias records alias as a confirmed name of a catalog entry. It reports
// whether the alias was new; learning a known alias is a no-op.
func (r *Resolver) LearnAlias(ctx context.Context, orgID, catalogID, alias string) (bool, error) {
	if r.source == nil {
		return false, apperrors.InternalError(apperrors.CodeUnexpectedError, "alias learning without a catalog source", nil)
	}
	alias = strings.Join(strings.Fields(alias), " ")
	if alias == "" {
		return false, apperrors.ValidationError(apperrors.CodeMissingField, "alias", alias, nil)
	}

	entry, err := r.source.GetCatalogEntry(ctx, orgID, catalogID)
	if err != nil {
		return false, err
	}
	if entry.HasAlias(alias) || models.AliasKey(entry.Name) == models.AliasKey(alias) {
		return false, nil
	}

	added, err := r.source.AppendAlias(ctx, orgID, catalogID, alias)
	if err != nil {
		return false, err
	}
	if added {
		r.logger.WithFields(logger.Fields{
			"org_id":     orgID,
			"catalog_id": catalogID,
			"alias":      alias,
		}).Info("Learned SKU alias")
	}
	return added, nil
}

func (r *Resolver) activeCatalog(ctx context.Context, orgID string) ([]*models.CatalogEntry, error) {
	if r.source == nil {
		return nil, apperrors.InternalError(apperrors.CodeUnexpectedError, "sku resolution without a catalog source", nil)
	}
	return r.source.ListCatalog(ctx, orgID, models.CatalogFilter{ActiveOnly: true})
}

func activeOnly(catalog []*models.CatalogEntry) []*models.CatalogEntry {
	out := make([]*models.CatalogEntry, 0, len(catalog))
	for _, entry := range catalog {
		if entry.Active {
			out = append(out, entry)
		}
	}
	return out
}

// mergeMatches dedupes by catalog id keeping the higher confidence
func mergeMatches(groups ...[]models.SKUMatch) []models.SKUMatch {
	byID := make(map[string]models.SKUMatch)
	var order []string
	for _, group := range groups {
		for _, m := range group {
			current, ok := byID[m.CatalogID]
			if !ok {
				order = append(order, m.CatalogID)
				byID[m.CatalogID] = m
				continue
			}
			if m.Confidence > current.Confidence {
				byID[m.CatalogID] = m
			}
		}
	}

	merged := make([]models.SKUMatch, 0, len(order))
	for _, id := range order {
		merged = append(merged, byID[id])
	}
	sortMatches(merged)
	return merged
}
