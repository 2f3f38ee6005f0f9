package sku

import (
	"sort"

	"github.com/mohit-ambani/auditflow-sub000/internal/models"
)

// CandidateSearcher finds catalog entries whose name or alias resembles a
// description
type CandidateSearcher interface {
	Search(description string, threshold float64, limit int) []models.SKUMatch
}

// SearcherFactory builds a searcher over a catalog snapshot
type SearcherFactory func(catalog []*models.CatalogEntry) CandidateSearcher

// exactPrefilterFloor is the lowest threshold at which trigram prefiltering
// cannot drop a qualifying text. With two characters of padding on each
// side, a string of n runes has n+2 trigrams and each edit destroys at most
// three, so any pair within distance n/3 shares one.
const exactPrefilterFloor = 0.75

type indexedText struct {
	catalogID string
	text      string
	runes     []rune
}

// TrigramIndex is an in-memory index over the names and aliases of active
// catalog entries. Levenshtein similarity is only computed for texts sharing
// a trigram with the query.
type TrigramIndex struct {
	texts []indexedText
	grams map[string][]int
}

// IndexStats describes the size of the index
type IndexStats struct {
	Entries  int `json:"entries"`
	Texts    int `json:"texts"`
	Trigrams int `json:"trigrams"`
}

// NewTrigramIndex indexes the active entries of catalog
func NewTrigramIndex(catalog []*models.CatalogEntry) *TrigramIndex {
	ix := &TrigramIndex{grams: make(map[string][]int)}
	for _, entry := range catalog {
		if !entry.Active {
			continue
		}
		ix.add(entry.ID, entry.Name)
		for _, alias := range entry.Aliases {
			ix.add(entry.ID, alias)
		}
	}
	return ix
}

// NewTrigramSearcher is the default SearcherFactory
func NewTrigramSearcher(catalog []*models.CatalogEntry) CandidateSearcher {
	return NewTrigramIndex(catalog)
}

func (ix *TrigramIndex) add(catalogID, text string) {
	key := models.AliasKey(text)
	if key == "" {
		return
	}
	pos := len(ix.texts)
	ix.texts = append(ix.texts, indexedText{catalogID: catalogID, text: text, runes: []rune(key)})
	for _, g := range trigrams(key) {
		ix.grams[g] = append(ix.grams[g], pos)
	}
}

// Search returns at most limit entries scoring at least threshold, best
// first. Each entry appears once with its best-scoring text.
func (ix *TrigramIndex) Search(description string, threshold float64, limit int) []models.SKUMatch {
	query := models.AliasKey(description)
	if query == "" {
		return nil
	}
	queryRunes := []rune(query)

	best := make(map[string]models.SKUMatch)
	for _, pos := range ix.candidates(query, threshold) {
		t := ix.texts[pos]
		score := roundConfidence(similarity(queryRunes, t.runes))
		if score < threshold {
			continue
		}
		if current, ok := best[t.catalogID]; ok && current.Confidence >= score {
			continue
		}
		best[t.catalogID] = models.SKUMatch{
			CatalogID:   t.catalogID,
			Tier:        models.SKUTierFuzzy,
			Confidence:  score,
			MatchedText: t.text,
		}
	}

	matches := make([]models.SKUMatch, 0, len(best))
	for _, m := range best {
		matches = append(matches, m)
	}
	sortMatches(matches)
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches
}

// candidates returns text positions in index order
func (ix *TrigramIndex) candidates(query string, threshold float64) []int {
	if threshold < exactPrefilterFloor {
		all := make([]int, len(ix.texts))
		for i := range all {
			all[i] = i
		}
		return all
	}

	seen := make(map[int]bool)
	var out []int
	for _, g := range trigrams(query) {
		for _, pos := range ix.grams[g] {
			if !seen[pos] {
				seen[pos] = true
				out = append(out, pos)
			}
		}
	}
	sort.Ints(out)
	return out
}

// GetIndexStats returns statistics about the index
func (ix *TrigramIndex) GetIndexStats() IndexStats {
	entries := make(map[string]struct{})
	for _, t := range ix.texts {
		entries[t.catalogID] = struct{}{}
	}
	return IndexStats{
		Entries:  len(entries),
		Texts:    len(ix.texts),
		Trigrams: len(ix.grams),
	}
}

func trigrams(s string) []string {
	padded := []rune("  " + s + "  ")
	seen := make(map[string]bool, len(padded))
	out := make([]string, 0, len(padded))
	for i := 0; i+3 <= len(padded); i++ {
		g := string(padded[i : i+3])
		if !seen[g] {
			seen[g] = true
			out = append(out, g)
		}
	}
	return out
}

var tierRank = map[models.SKUTier]int{
	models.SKUTierExact: 0,
	models.SKUTierAlias: 1,
	models.SKUTierFuzzy: 2,
	models.SKUTierAI:    3,
}

// sortMatches orders by confidence, then tier, then catalog id
func sortMatches(matches []models.SKUMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		a, b := matches[i], matches[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if tierRank[a.Tier] != tierRank[b.Tier] {
			return tierRank[a.Tier] < tierRank[b.Tier]
		}
		return a.CatalogID < b.CatalogID
	})
}
