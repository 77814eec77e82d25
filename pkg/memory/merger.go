package memory

import (
	"crypto/sha1"
	"encoding/hex"
	"sort"
	"strings"
)

// Merger implements the Result Merger (spec §4.F): deduplicate, rank,
// truncate, aggregate errors.
type Merger struct {
	MaxItems       int
	DedupThreshold float64
	Strategy       MergeStrategy
}

func NewMerger(strategy MergeStrategy, maxItems int, dedupThreshold float64) *Merger {
	if maxItems <= 0 {
		maxItems = 20
	}
	if dedupThreshold <= 0 {
		dedupThreshold = 0.9
	}
	if strategy == "" {
		strategy = StrategyRelevance
	}
	return &Merger{MaxItems: maxItems, DedupThreshold: dedupThreshold, Strategy: strategy}
}

// Merge runs the full spec §4.F algorithm over the executor's
// per-adapter outcomes and produces a QueryResult.
func (m *Merger) Merge(query string, intent IntentClassification, outcomes []namedOutcomeView) QueryResult {
	errs := map[string]string{}
	var pool []MemoryItem
	var sourcesQueried []string
	var totalLatency float64

	for _, o := range outcomes {
		sourcesQueried = append(sourcesQueried, o.Name)
		if o.Err != nil {
			errs[o.Name] = o.Err.Error()
			continue
		}
		pool = append(pool, o.Result.Items...)
		totalLatency += o.Result.LatencyMs
	}

	deduped := m.dedup(pool)
	m.sort(deduped, intent)

	totalCount := len(deduped)
	if len(deduped) > m.MaxItems {
		deduped = deduped[:m.MaxItems]
	}

	return QueryResult{
		Query:          query,
		Intent:         intent.Intent,
		SourcesQueried: sourcesQueried,
		Items:          deduped,
		TotalCount:     totalCount,
		LatencyMs:      totalLatency,
		Errors:         errs,
	}
}

// namedOutcomeView decouples the merger from the executor's internal
// named-outcome type so it can be driven directly or through the
// facade.
type namedOutcomeView struct {
	Name   string
	Result AdapterResult
	Err    error
}

func viewsFromExecutor(raw []namedOutcome) []namedOutcomeView {
	out := make([]namedOutcomeView, len(raw))
	for i, r := range raw {
		out[i] = namedOutcomeView{Name: r.Name, Result: r.Outcome.Result, Err: r.Outcome.Err}
	}
	return out
}

// dedup removes duplicates: same source, same type, and Jaccard
// similarity of the first-200-lowercased-char word sets >= threshold.
// A 16-char hash pre-check over source:type:summary:content[:100] catches
// exact duplicates cheaply before the similarity computation runs
// (spec §4.F step 2).
func (m *Merger) dedup(items []MemoryItem) []MemoryItem {
	seenHash := map[string]int{} // hash -> index into kept
	var kept []MemoryItem

	for _, item := range items {
		h := fastHash(item)
		if idx, ok := seenHash[h]; ok {
			kept[idx] = preferHigherRelevance(kept[idx], item)
			continue
		}

		dupIdx := -1
		for i, existing := range kept {
			if existing.Source == item.Source && existing.Type == item.Type &&
				jaccard(wordSet(firstN(existing.Content, 200)), wordSet(firstN(item.Content, 200))) >= m.DedupThreshold {
				dupIdx = i
				break
			}
		}
		if dupIdx >= 0 {
			kept[dupIdx] = preferHigherRelevance(kept[dupIdx], item)
			continue
		}

		seenHash[h] = len(kept)
		kept = append(kept, item)
	}
	return kept
}

func preferHigherRelevance(a, b MemoryItem) MemoryItem {
	if b.Relevance > a.Relevance {
		return b
	}
	return a // on tie, keep the earlier one (a)
}

func fastHash(item MemoryItem) string {
	h := sha1.Sum([]byte(item.Source + ":" + item.Type + ":" + item.Summary + ":" + firstN(item.Content, 100)))
	return hex.EncodeToString(h[:])[:16]
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return strings.ToLower(s)
	}
	return strings.ToLower(s[:n])
}

func wordSet(s string) map[string]bool {
	set := map[string]bool{}
	for _, w := range strings.Fields(s) {
		set[w] = true
	}
	return set
}

func jaccard(a, b map[string]bool) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1.0
	}
	intersection := 0
	for w := range a {
		if b[w] {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func (m *Merger) sort(items []MemoryItem, intent IntentClassification) {
	switch m.Strategy {
	case StrategyRecency:
		sort.SliceStable(items, func(i, j int) bool {
			ti, tj := items[i].Timestamp, items[j].Timestamp
			switch {
			case ti == nil && tj == nil:
				return items[i].Relevance > items[j].Relevance
			case ti == nil:
				return false // nil treated as earliest
			case tj == nil:
				return true
			case !ti.Equal(*tj):
				return ti.After(*tj)
			default:
				return items[i].Relevance > items[j].Relevance
			}
		})
	case StrategySourcePriority:
		// Boolean boost: items from any suggested source sort first; the
		// order of sources within SourcesSuggested is not used.
		suggested := map[string]bool{}
		for _, s := range intent.SourcesSuggested {
			suggested[s] = true
		}
		sort.SliceStable(items, func(i, j int) bool {
			bi, bj := boolToInt(suggested[items[i].Source]), boolToInt(suggested[items[j].Source])
			if bi != bj {
				return bi > bj
			}
			return items[i].Relevance > items[j].Relevance
		})
	default: // relevance
		sort.SliceStable(items, func(i, j int) bool {
			return items[i].Relevance > items[j].Relevance
		})
	}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
