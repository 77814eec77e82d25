package memory

import (
	"fmt"
	"sort"
	"strings"
)

// codeTypes are the MemoryItem.Type values rendered inside a fenced
// code block rather than as plain prose (spec §4.G "code fences
// inferred from metadata").
var codeTypes = map[string]bool{
	"code_snippet": true,
	"pipeline":     true,
}

const (
	defaultBudget     = 8000
	compactBudget     = 2000
	perSourceMinChars = 200
)

// Format renders a QueryResult as Markdown intended for an LLM prompt:
// an intent header, one section per source, code fences inferred from
// item type, and a fixed character budget enforced by truncating the
// least-relevant items per section first (spec §4.G).
func Format(result QueryResult) string {
	return render(result, defaultBudget)
}

// FormatCompact is the same rendering with a much smaller budget,
// meant for inline continuation prompts rather than full context.
func FormatCompact(result QueryResult) string {
	return render(result, compactBudget)
}

func render(result QueryResult, budget int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "## Memory query: %s\n", result.Query)
	if result.Intent != "" {
		fmt.Fprintf(&b, "_intent: %s_\n", result.Intent)
	}
	b.WriteString("\n")

	if len(result.Items) == 0 {
		b.WriteString("No results.\n")
		appendErrors(&b, result.Errors)
		return b.String()
	}

	grouped := groupBySource(result.Items)
	sources := make([]string, 0, len(grouped))
	for s := range grouped {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	remaining := budget - b.Len()
	perSection := remaining
	if len(sources) > 0 {
		perSection = remaining / len(sources)
	}
	if perSection < perSourceMinChars {
		perSection = perSourceMinChars
	}

	for _, source := range sources {
		if b.Len() >= budget {
			fmt.Fprintf(&b, "\n_(truncated: remaining sources omitted)_\n")
			break
		}
		writeSection(&b, source, grouped[source], perSection)
	}

	appendErrors(&b, result.Errors)
	return b.String()
}

func groupBySource(items []MemoryItem) map[string][]MemoryItem {
	out := map[string][]MemoryItem{}
	for _, item := range items {
		out[item.Source] = append(out[item.Source], item)
	}
	return out
}

func writeSection(b *strings.Builder, source string, items []MemoryItem, budget int) {
	fmt.Fprintf(b, "### %s\n", source)
	start := b.Len()

	for i, item := range items {
		if b.Len()-start >= budget {
			fmt.Fprintf(b, "_(%d more item(s) from %s truncated)_\n", len(items)-i, source)
			break
		}
		writeItem(b, item)
	}
	b.WriteString("\n")
}

func writeItem(b *strings.Builder, item MemoryItem) {
	fmt.Fprintf(b, "- **%s** (relevance %.2f)\n", item.Summary, item.Relevance)
	if item.Content == "" {
		return
	}
	if codeTypes[item.Type] {
		lang := languageHint(item)
		fmt.Fprintf(b, "```%s\n%s\n```\n", lang, strings.TrimRight(item.Content, "\n"))
		return
	}
	fmt.Fprintf(b, "%s\n", item.Content)
}

func languageHint(item MemoryItem) string {
	if item.Metadata == nil {
		return ""
	}
	if lang, ok := item.Metadata["language"].(string); ok {
		return lang
	}
	return ""
}

func appendErrors(b *strings.Builder, errs map[string]string) {
	if len(errs) == 0 {
		return
	}
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Strings(names)

	b.WriteString("\n### Errors\n")
	for _, name := range names {
		fmt.Fprintf(b, "- %s: %s\n", name, errs[name])
	}
}
