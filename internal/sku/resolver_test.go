package sku

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
	apperrors "github.com/mohit-ambani/auditflow-sub000/pkg/errors"
	"github.com/mohit-ambani/auditflow-sub000/pkg/logger"
)

func createTestCatalog() []*models.CatalogEntry {
	return []*models.CatalogEntry{
		{ID: "c1", OrgID: "org-1", Code: "CEM-OPC-53", Name: "OPC 53 Grade Cement 50kg", Aliases: []string{"Ultratech OPC 53"}, Active: true},
		{ID: "c2", OrgID: "org-1", Code: "TMT-12", Name: "TMT Steel Bar 12mm", HSNCode: "7214", Active: true},
		{ID: "c3", OrgID: "org-1", Code: "SND-R", Name: "River Sand", Active: false},
		{ID: "c4", OrgID: "org-1", Code: "CEM-PPC", Name: "Portland Pozzolana Cement 50kg", Active: true},
	}
}

type stubOracle struct {
	calls       int
	lastRequest OracleRequest
	suggest     func(ctx context.Context, req OracleRequest) ([]Suggestion, error)
}

func (o *stubOracle) Suggest(ctx context.Context, req OracleRequest) ([]Suggestion, error) {
	o.calls++
	o.lastRequest = req
	if o.suggest == nil {
		return nil, nil
	}
	return o.suggest(ctx, req)
}

func suggesting(s ...Suggestion) func(context.Context, OracleRequest) ([]Suggestion, error) {
	return func(context.Context, OracleRequest) ([]Suggestion, error) {
		return s, nil
	}
}

type recordingObserver struct {
	outcomes []string
}

func (r *recordingObserver) ObserveOracle(outcome string, _ time.Duration) {
	r.outcomes = append(r.outcomes, outcome)
}

func newTestResolver(config *Config, oracle Oracle, rec OracleRecorder) *Resolver {
	opts := []ResolverOption{}
	if oracle != nil {
		opts = append(opts, WithOracle(oracle))
	}
	if rec != nil {
		opts = append(opts, WithOracleRecorder(rec))
	}
	return NewResolver(config, nil, logger.NewNopLogger(), opts...)
}

func TestResolve_ExactTiers(t *testing.T) {
	tests := []struct {
		name       string
		query      Query
		wantID     string
		wantTier   models.SKUTier
		confidence float64
	}{
		{"catalog code ignores case", Query{Description: "something else", Code: "cem-opc-53"}, "c1", models.SKUTierExact, 1},
		{"name ignores case and spacing", Query{Description: "opc 53  grade cement 50KG"}, "c1", models.SKUTierExact, 1},
		{"alias", Query{Description: "ultratech opc 53"}, "c1", models.SKUTierAlias, 0.95},
		{"code wins over name", Query{Description: "TMT Steel Bar 12mm", Code: "CEM-PPC"}, "c4", models.SKUTierExact, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			oracle := &stubOracle{}
			r := newTestResolver(nil, oracle, nil)

			result := r.ResolveWithCatalog(context.Background(), tt.query, createTestCatalog())
			if result.BestMatch == nil {
				t.Fatal("expected a match")
			}
			if result.BestMatch.CatalogID != tt.wantID || result.BestMatch.Tier != tt.wantTier || result.BestMatch.Confidence != tt.confidence {
				t.Errorf("expected %s %s %.2f, got %+v", tt.wantID, tt.wantTier, tt.confidence, *result.BestMatch)
			}
			if result.NeedsReview {
				t.Error("expected exact tiers not to need review")
			}
			if oracle.calls != 0 {
				t.Errorf("expected no oracle call, got %d", oracle.calls)
			}
		})
	}
}

func TestResolve_FuzzyResolvedSkipsOracle(t *testing.T) {
	oracle := &stubOracle{}
	r := newTestResolver(nil, oracle, nil)

	result := r.ResolveWithCatalog(context.Background(), Query{Description: "TMT Steel Bar 12 mm"}, createTestCatalog())
	if result.BestMatch == nil || result.BestMatch.CatalogID != "c2" || result.BestMatch.Tier != models.SKUTierFuzzy {
		t.Fatalf("expected fuzzy c2, got %+v", result.BestMatch)
	}
	// one deletion over 19 runes
	if result.BestMatch.Confidence != 0.9474 {
		t.Errorf("expected confidence 0.9474, got %v", result.BestMatch.Confidence)
	}
	if oracle.calls != 0 {
		t.Errorf("expected the cascade to stop before the oracle, got %d calls", oracle.calls)
	}
}

func TestResolve_OracleMergesWithFuzzy(t *testing.T) {
	oracle := &stubOracle{suggest: suggesting(
		Suggestion{CatalogID: "c2", Confidence: 0.92},
		Suggestion{CatalogID: "ghost", Confidence: 0.99},
		Suggestion{CatalogID: "c4", Confidence: 0.4},
	)}
	rec := &recordingObserver{}
	r := newTestResolver(nil, oracle, rec)

	result := r.ResolveWithCatalog(context.Background(), Query{Description: "TMT Steel Rod 12mm", HSNCode: "7214"}, createTestCatalog())
	if oracle.calls != 1 {
		t.Fatalf("expected one oracle call, got %d", oracle.calls)
	}
	if oracle.lastRequest.HSNCode != "7214" {
		t.Errorf("expected HSN code to reach the oracle, got %q", oracle.lastRequest.HSNCode)
	}
	if len(oracle.lastRequest.Catalog) != 3 {
		t.Errorf("expected only active entries in the snapshot, got %d", len(oracle.lastRequest.Catalog))
	}

	if len(result.Candidates) != 2 {
		t.Fatalf("expected c2 deduped and ghost dropped, got %+v", result.Candidates)
	}
	best := result.Candidates[0]
	if best.CatalogID != "c2" || best.Tier != models.SKUTierAI || best.Confidence != 0.92 {
		t.Errorf("expected the higher AI confidence to replace the fuzzy one, got %+v", best)
	}
	if result.Candidates[1].CatalogID != "c4" {
		t.Errorf("expected c4 second, got %+v", result.Candidates[1])
	}
	if result.NeedsReview {
		t.Error("expected 0.92 not to need review")
	}
	if len(rec.outcomes) != 1 || rec.outcomes[0] != OracleOK {
		t.Errorf("expected one ok observation, got %v", rec.outcomes)
	}
}

func TestResolve_FuzzyKeptWhenHigher(t *testing.T) {
	oracle := &stubOracle{suggest: suggesting(Suggestion{CatalogID: "c2", Confidence: 0.6})}
	r := newTestResolver(nil, oracle, nil)

	result := r.ResolveWithCatalog(context.Background(), Query{Description: "TMT Steel Rod 12mm"}, createTestCatalog())
	if result.BestMatch == nil || result.BestMatch.Tier != models.SKUTierFuzzy || result.BestMatch.Confidence != 0.8333 {
		t.Errorf("expected fuzzy 0.8333 to survive the merge, got %+v", result.BestMatch)
	}
}

func TestResolve_OracleFailureFallsBack(t *testing.T) {
	tests := []struct {
		name    string
		config  *Config
		suggest func(context.Context, OracleRequest) ([]Suggestion, error)
		outcome string
	}{
		{
			name: "error",
			suggest: func(context.Context, OracleRequest) ([]Suggestion, error) {
				return nil, errors.New("connection refused")
			},
			outcome: OracleError,
		},
		{
			name: "timeout",
			config: func() *Config {
				c := DefaultConfig()
				c.OracleTimeout = 10 * time.Millisecond
				return c
			}(),
			suggest: func(ctx context.Context, _ OracleRequest) ([]Suggestion, error) {
				<-ctx.Done()
				return nil, ctx.Err()
			},
			outcome: OracleTimeout,
		},
		{
			name:    "empty answer",
			suggest: suggesting(),
			outcome: OracleEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordingObserver{}
			r := newTestResolver(tt.config, &stubOracle{suggest: tt.suggest}, rec)

			result := r.ResolveWithCatalog(context.Background(), Query{Description: "TMT Steel Rod 12mm"}, createTestCatalog())
			if result.BestMatch == nil || result.BestMatch.CatalogID != "c2" || result.BestMatch.Tier != models.SKUTierFuzzy {
				t.Errorf("expected fuzzy fallback, got %+v", result.BestMatch)
			}
			if len(rec.outcomes) != 1 || rec.outcomes[0] != tt.outcome {
				t.Errorf("expected outcome %s, got %v", tt.outcome, rec.outcomes)
			}
		})
	}
}

func TestResolve_OracleAnswerBounds(t *testing.T) {
	catalog := createTestCatalog()
	catalog = append(catalog,
		&models.CatalogEntry{ID: "c5", Name: "Binding Wire", Active: true},
		&models.CatalogEntry{ID: "c6", Name: "Fly Ash Bricks", Active: true},
	)
	oracle := &stubOracle{suggest: suggesting(
		Suggestion{CatalogID: "c5", Confidence: 1.7},
		Suggestion{CatalogID: "c6", Confidence: -0.3},
		Suggestion{CatalogID: "c4", Confidence: 0.5},
		Suggestion{CatalogID: "c1", Confidence: 0.45},
	)}
	r := newTestResolver(nil, oracle, nil)

	result := r.ResolveWithCatalog(context.Background(), Query{Description: "galvanised item"}, catalog)
	if len(result.Candidates) != 3 {
		t.Fatalf("expected at most 3 oracle entries, got %+v", result.Candidates)
	}
	if result.Candidates[0].CatalogID != "c5" || result.Candidates[0].Confidence != 1 {
		t.Errorf("expected confidence clamped to 1, got %+v", result.Candidates[0])
	}
	if last := result.Candidates[2]; last.CatalogID != "c6" || last.Confidence != 0 {
		t.Errorf("expected confidence clamped to 0, got %+v", last)
	}
}

func TestResolve_OracleSnapshotLimit(t *testing.T) {
	config := DefaultConfig()
	config.OracleCatalogLimit = 2
	oracle := &stubOracle{suggest: suggesting(Suggestion{CatalogID: "c4", Confidence: 0.9})}
	r := newTestResolver(config, oracle, nil)

	result := r.ResolveWithCatalog(context.Background(), Query{Description: "unknown product"}, createTestCatalog())
	if len(oracle.lastRequest.Catalog) != 2 {
		t.Errorf("expected a snapshot of 2 entries, got %d", len(oracle.lastRequest.Catalog))
	}
	if len(result.Candidates) != 0 {
		t.Errorf("expected suggestions outside the snapshot to be dropped, got %+v", result.Candidates)
	}
}

func TestResolve_NoMatch(t *testing.T) {
	r := newTestResolver(nil, nil, nil)

	for _, q := range []Query{{Description: "Copper wire 2.5 sq mm"}, {Description: "River Sand"}, {}} {
		result := r.ResolveWithCatalog(context.Background(), q, createTestCatalog())
		if result.BestMatch != nil {
			t.Errorf("%q: expected no match, got %+v", q.Description, result.BestMatch)
		}
		if !result.NeedsReview || result.Candidates == nil {
			t.Errorf("%q: expected review with an empty candidate list", q.Description)
		}
	}
}

func TestResolve_Deterministic(t *testing.T) {
	r := newTestResolver(nil, nil, nil)
	first := r.ResolveWithCatalog(context.Background(), Query{Description: "cement 50kg"}, createTestCatalog())
	for i := 0; i < 5; i++ {
		again := r.ResolveWithCatalog(context.Background(), Query{Description: "cement 50kg"}, createTestCatalog())
		if len(again.Candidates) != len(first.Candidates) {
			t.Fatalf("run %d: candidate count changed", i)
		}
		for j := range again.Candidates {
			if again.Candidates[j] != first.Candidates[j] {
				t.Errorf("run %d: candidate %d changed: %+v vs %+v", i, j, again.Candidates[j], first.Candidates[j])
			}
		}
	}
}

type fakeCatalogSource struct {
	entries map[string]*models.CatalogEntry
	appends int
}

func newFakeCatalogSource() *fakeCatalogSource {
	s := &fakeCatalogSource{entries: make(map[string]*models.CatalogEntry)}
	for _, e := range createTestCatalog() {
		s.entries[e.ID] = e
	}
	return s
}

func (s *fakeCatalogSource) GetCatalogEntry(_ context.Context, orgID, id string) (*models.CatalogEntry, error) {
	if e, ok := s.entries[id]; ok && e.OrgID == orgID {
		return e, nil
	}
	return nil, apperrors.NotFoundError("catalog entry", id, orgID)
}

func (s *fakeCatalogSource) ListCatalog(_ context.Context, orgID string, filter models.CatalogFilter) ([]*models.CatalogEntry, error) {
	var out []*models.CatalogEntry
	for _, e := range createTestCatalog() {
		e = s.entries[e.ID]
		if e.OrgID == orgID && (!filter.ActiveOnly || e.Active) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *fakeCatalogSource) AppendAlias(_ context.Context, _ string, catalogID, alias string) (bool, error) {
	s.appends++
	e := s.entries[catalogID]
	if e.HasAlias(alias) {
		return false, nil
	}
	e.Aliases = append(e.Aliases, alias)
	return true, nil
}

func TestLearnAlias(t *testing.T) {
	source := newFakeCatalogSource()
	r := NewResolver(nil, source, logger.NewNopLogger())
	ctx := context.Background()

	added, err := r.LearnAlias(ctx, "org-1", "c2", "  Saria   12 mm ")
	if err != nil || !added {
		t.Fatalf("expected alias to be added, got %v %v", added, err)
	}
	added, err = r.LearnAlias(ctx, "org-1", "c2", "saria 12 MM")
	if err != nil || added {
		t.Errorf("expected learning the same alias to be a no-op, got %v %v", added, err)
	}
	added, _ = r.LearnAlias(ctx, "org-1", "c2", "tmt steel bar 12mm")
	if added {
		t.Error("expected the entry name not to be stored as an alias")
	}
	if got := source.entries["c2"].Aliases; len(got) != 1 || got[0] != "Saria 12 mm" {
		t.Errorf("expected one normalized alias, got %v", got)
	}

	result, err := r.Resolve(ctx, "org-1", Query{Description: "SARIA 12 MM"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.BestMatch == nil || result.BestMatch.Tier != models.SKUTierAlias || result.BestMatch.CatalogID != "c2" {
		t.Errorf("expected learned alias to resolve, got %+v", result.BestMatch)
	}

	if _, err := r.LearnAlias(ctx, "org-1", "c2", "   "); !apperrors.HasCode(err, apperrors.CodeMissingField) {
		t.Errorf("expected missing field error, got %v", err)
	}
	if _, err := r.LearnAlias(ctx, "org-2", "c2", "rebar"); !apperrors.IsNotFound(err) {
		t.Errorf("expected not found for another organization, got %v", err)
	}
}

func TestResolveLines(t *testing.T) {
	r := NewResolver(nil, newFakeCatalogSource(), logger.NewNopLogger())
	lines := []models.LineItem{
		{ID: "l1", Description: "Cement bags", CatalogID: "CEM-OPC-53"},
		{ID: "l2", Description: "TMT Steel Bar 12 mm"},
		{ID: "l3", Description: "River Sand"},
	}

	results, err := r.ResolveLines(context.Background(), "org-1", lines)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected a result per line, got %d", len(results))
	}
	if results[0].BestMatch.CatalogID != "c1" || results[1].BestMatch.CatalogID != "c2" {
		t.Errorf("unexpected matches %+v %+v", results[0].BestMatch, results[1].BestMatch)
	}
	if !results[2].NeedsReview {
		t.Error("expected inactive entry to leave the line for review")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.ResolveLines(ctx, "org-1", lines); err == nil {
		t.Error("expected a cancelled context to stop the batch")
	}
}

func TestSimilarity(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"cement", "cement", 1},
		{"Cement", "  CEMENT ", 1},
		{"kitten", "sitting", 1 - 3.0/7},
		{"", "cement", 0},
		{"abc", "xyz", 0},
	}
	for _, tt := range tests {
		if got := Similarity(tt.a, tt.b); math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("Similarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestTrigramIndex(t *testing.T) {
	ix := NewTrigramIndex(createTestCatalog())

	stats := ix.GetIndexStats()
	if stats.Entries != 3 || stats.Texts != 4 {
		t.Errorf("expected 3 active entries with 4 texts, got %+v", stats)
	}

	matches := ix.Search("ultratech opc-53", 0.75, 5)
	if len(matches) != 1 || matches[0].CatalogID != "c1" || matches[0].MatchedText != "Ultratech OPC 53" {
		t.Errorf("expected alias text to match once per entry, got %+v", matches)
	}

	if got := ix.Search("cement", 0.1, 1); len(got) != 1 {
		t.Errorf("expected limit to apply, got %d", len(got))
	}
}

func TestTrigramIndex_AgreesWithFullScan(t *testing.T) {
	catalog := createTestCatalog()
	ix := NewTrigramIndex(catalog)
	queries := []string{"TMT Steel Rod 12mm", "tmt bar", "opc 53 grade cement", "Portland cement 50 kg", "x", "ab"}

	for _, q := range queries {
		got := make(map[string]float64)
		for _, m := range ix.Search(q, 0.75, 0) {
			got[m.CatalogID] = m.Confidence
		}

		for _, entry := range catalog {
			if !entry.Active {
				continue
			}
			best := roundConfidence(Similarity(q, entry.Name))
			for _, a := range entry.Aliases {
				best = math.Max(best, roundConfidence(Similarity(q, a)))
			}
			if best >= 0.75 && got[entry.ID] != best {
				t.Errorf("%q: index missed %s at %v", q, entry.ID, best)
			}
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Errorf("expected default config to be valid, got %v", err)
	}
	bad := DefaultConfig()
	bad.FuzzyThreshold = 0.9
	if err := bad.Validate(); err == nil {
		t.Error("expected fuzzy threshold above resolved threshold to be rejected")
	}
	zero := DefaultConfig()
	zero.OracleMaxResults = 0
	if err := zero.Validate(); err == nil {
		t.Error("expected zero oracle results to be rejected")
	}
}
