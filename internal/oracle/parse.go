package oracle

import (
	"encoding/json"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/mohit-ambani/auditflow-sub000/internal/sku"
)

// rawSuggestion accepts the key spellings completion models tend to produce
type rawSuggestion struct {
	ID         string   `json:"id"`
	CatalogID  string   `json:"catalogId"`
	CatalogID2 string   `json:"catalog_id"`
	Confidence *float64 `json:"confidence"`
	Score      *float64 `json:"score"`
}

func (r rawSuggestion) suggestion() (sku.Suggestion, bool) {
	id := firstNonEmpty(r.ID, r.CatalogID, r.CatalogID2)
	if id == "" {
		return sku.Suggestion{}, false
	}
	conf := r.Confidence
	if conf == nil {
		conf = r.Score
	}
	if conf == nil {
		return sku.Suggestion{}, false
	}
	return sku.Suggestion{CatalogID: id, Confidence: clamp(*conf)}, true
}

// linePattern matches "c-12: 0.8", "id=c-12 confidence=0.8" and similar
var linePattern = regexp.MustCompile(`(?i)(?:id\s*[:=]\s*)?["']?([A-Za-z0-9][A-Za-z0-9_.\-]*)["']?\s*[,:=\-]*\s*(?:confidence\s*[:=]\s*)?([01](?:\.\d+)?|\.\d+)\b`)

// ParseSuggestions extracts at most max suggestions from free text. A JSON
// array anywhere in the text is preferred; otherwise every line of the form
// "<id>: <confidence>" is read. Malformed input yields no suggestions.
func ParseSuggestions(text string, max int) []sku.Suggestion {
	if max <= 0 {
		return nil
	}
	if out, ok := parseJSON(text, max); ok {
		return out
	}

	var out []sku.Suggestion
	seen := make(map[string]bool)
	for _, line := range strings.Split(text, "\n") {
		m := linePattern.FindStringSubmatch(strings.TrimSpace(line))
		if m == nil || strings.EqualFold(m[1], "confidence") || seen[m[1]] {
			continue
		}
		conf, err := strconv.ParseFloat(m[2], 64)
		if err != nil {
			continue
		}
		seen[m[1]] = true
		out = append(out, sku.Suggestion{CatalogID: m[1], Confidence: clamp(conf)})
		if len(out) == max {
			break
		}
	}
	return out
}

func parseJSON(text string, max int) ([]sku.Suggestion, bool) {
	start := strings.Index(text, "[")
	end := strings.LastIndex(text, "]")
	if start < 0 || end <= start {
		return nil, false
	}

	var raw []rawSuggestion
	if err := json.Unmarshal([]byte(text[start:end+1]), &raw); err != nil {
		return nil, false
	}

	out := make([]sku.Suggestion, 0, len(raw))
	seen := make(map[string]bool)
	for _, r := range raw {
		s, ok := r.suggestion()
		if !ok || seen[s.CatalogID] {
			continue
		}
		seen[s.CatalogID] = true
		out = append(out, s)
		if len(out) == max {
			break
		}
	}
	return out, true
}

func clamp(c float64) float64 {
	if math.IsNaN(c) {
		return 0
	}
	return math.Max(0, math.Min(1, c))
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
