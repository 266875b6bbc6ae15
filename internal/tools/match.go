package tools

import (
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/calebstour/caleb-sales-agent/internal/extract"
	"github.com/calebstour/caleb-sales-agent/internal/store"
)

const maxMatches = 5

// scoredPasseio is a catalog entry with its match score against a
// search term.
type scoredPasseio struct {
	passeio store.Passeio
	score   int
	hits    int
}

func passeioHaystack(p store.Passeio) string {
	return extract.Normalize(p.Nome + " " + p.Categoria + " " + p.Local + " " + p.Descricao)
}

func queryTokens(query string) []string {
	seen := make(map[string]bool)
	var tokens []string
	for _, t := range strings.Fields(query) {
		if len(t) >= 3 && !seen[t] {
			seen[t] = true
			tokens = append(tokens, t)
		}
	}
	return tokens
}

// scorePasseios ranks catalog entries against a free-text term. Each
// matched token is worth 100; an exact substring match of the whole
// query adds 50 plus a small bonus for appearing early in the text.
// Entries with no token hits are dropped; at most maxMatches survive.
func scorePasseios(passeios []store.Passeio, term string) []scoredPasseio {
	query := extract.Normalize(term)
	if query == "" {
		return nil
	}
	tokens := queryTokens(query)

	var results []scoredPasseio
	for _, p := range passeios {
		hay := passeioHaystack(p)
		hits := 0
		for _, t := range tokens {
			if strings.Contains(hay, t) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := hits * 100
		if idx := strings.Index(hay, query); idx >= 0 {
			score += 50 + max(0, 30-idx)
		}
		results = append(results, scoredPasseio{passeio: p, score: score, hits: hits})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })
	if len(results) > maxMatches {
		results = results[:maxMatches]
	}
	return results
}

// scoreKnowledge ranks knowledge chunks the same way, with a smaller
// exact-match bonus.
func scoreKnowledge(chunks []store.KnowledgeChunk, term string, limit int) []store.KnowledgeChunk {
	query := extract.Normalize(term)
	if query == "" {
		return nil
	}
	tokens := queryTokens(query)

	type scored struct {
		chunk store.KnowledgeChunk
		score int
	}
	var results []scored
	for _, c := range chunks {
		hay := extract.Normalize(c.Title + " " + c.Slug + " " + strings.Join(c.Tags, " ") + " " + c.Content)
		hits := 0
		for _, t := range tokens {
			if strings.Contains(hay, t) {
				hits++
			}
		}
		if hits == 0 {
			continue
		}
		score := hits * 100
		if idx := strings.Index(hay, query); idx >= 0 {
			score += 40 + max(0, 20-idx)
		}
		results = append(results, scored{chunk: c, score: score})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].score > results[j].score })
	if limit < 1 {
		limit = 1
	}
	if len(results) > limit {
		results = results[:limit]
	}

	out := make([]store.KnowledgeChunk, len(results))
	for i, r := range results {
		out[i] = r.chunk
	}
	return out
}

// strParam returns the first non-empty string value among the aliased
// keys, trimmed. Non-string scalars are formatted.
func strParam(params map[string]any, keys ...string) string {
	for _, key := range keys {
		v, present := params[key]
		if !present || v == nil {
			continue
		}
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64, int, bool:
			s = fmt.Sprint(t)
		default:
			continue
		}
		if s = strings.TrimSpace(s); s != "" {
			return s
		}
	}
	return ""
}

var firstInt = regexp.MustCompile(`\d+`)

// intParam coerces a numeric parameter, accepting JSON numbers and
// digit-bearing strings.
func intParam(params map[string]any, keys ...string) (int, bool) {
	for _, key := range keys {
		v, present := params[key]
		if !present || v == nil {
			continue
		}
		switch t := v.(type) {
		case float64:
			if !math.IsNaN(t) && !math.IsInf(t, 0) {
				return int(t), true
			}
		case int:
			return t, true
		case string:
			if m := firstInt.FindString(t); m != "" {
				var n int
				fmt.Sscanf(m, "%d", &n)
				return n, true
			}
		}
	}
	return 0, false
}

// pickPaymentType resolves the charge type from the model's (often
// loosely named) parameter, defaulting to PIX.
func pickPaymentType(params map[string]any) string {
	raw := strings.ToLower(strParam(params, "tipo_pagamento", "tipoPagamento", "tipo", "forma_pagamento", "forma"))
	if strings.Contains(raw, "boleto") {
		return store.TipoBoleto
	}
	return store.TipoPix
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

var timeRe = regexp.MustCompile(`\b([01]?\d|2[0-3])\s*[:h]\s*([0-5]\d)\b`)

// FormatHorarios extracts HH:MM times from the free-text schedule
// field, joining multiple times with "ou".
func FormatHorarios(raw string) string {
	var times []string
	seen := make(map[string]bool)
	for _, m := range timeRe.FindAllStringSubmatch(raw, -1) {
		var h int
		fmt.Sscanf(m[1], "%d", &h)
		t := fmt.Sprintf("%02d:%s", h, m[2])
		if !seen[t] {
			seen[t] = true
			times = append(times, t)
		}
	}
	if len(times) > 0 {
		return strings.Join(times, " ou ")
	}
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		return trimmed
	}
	return "A confirmar"
}

func FormatPontoEncontro(raw string) string {
	if trimmed := strings.TrimSpace(raw); trimmed != "" {
		return trimmed
	}
	return "A confirmar"
}
