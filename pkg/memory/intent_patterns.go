package memory

import "regexp"

func mustPatterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, 0, len(exprs))
	for _, e := range exprs {
		out = append(out, regexp.MustCompile(e))
	}
	return out
}

// DefaultIntentPatterns is the always-available keyword/regex fallback
// table (spec §4.C-2). Declaration order breaks ties when scores are
// equal. Operators may supply their own table; this is the shipped
// default.
func DefaultIntentPatterns() []IntentPattern {
	return []IntentPattern{
		{
			Intent:   "status_check",
			Patterns: mustPatterns(`(?i)what am i working on`, `(?i)current (status|work|task)`, `(?i)working on`),
			Sources:  []string{"yaml"},
			Weight:   3.0,
		},
		{
			Intent:   "code_lookup",
			Patterns: mustPatterns(`(?i)find (the )?(function|method|class|code)`, `(?i)where is .* (defined|implemented)`),
			Sources:  []string{"codesearch"},
			Weight:   3.0,
		},
		{
			Intent:   "troubleshooting",
			Patterns: mustPatterns(`(?i)why (is|did|does)`, `(?i)error|exception|failing|broken|crash`),
			Sources:  []string{"logs", "yaml"},
			Weight:   2.0,
		},
		{
			Intent:   "documentation",
			Patterns: mustPatterns(`(?i)how do i`, `(?i)documentation|docs|readme`),
			Sources:  []string{"docs"},
			Weight:   2.0,
		},
		{
			Intent:   "history",
			Patterns: mustPatterns(`(?i)what did i (do|work on)`, `(?i)(last|previous) (week|sprint|time)`),
			Sources:  []string{"history"},
			Weight:   2.0,
		},
		{
			Intent:   "pattern_lookup",
			Patterns: mustPatterns(`(?i)similar (issue|pattern|bug)`, `(?i)have we seen this before`),
			Sources:  []string{"vector"},
			Weight:   2.0,
		},
		{
			Intent:   "issue_context",
			Patterns: mustPatterns(`(?i)\b[A-Z]{2,}-\d+\b`, `(?i)find issue`, `(?i)ticket`),
			Sources:  []string{"jira"},
			Weight:   3.0,
		},
		{
			Intent:   "gitlab",
			Patterns: mustPatterns(`(?i)merge request`, `(?i)\bmr\b`, `(?i)gitlab`),
			Sources:  []string{"gitlab"},
			Weight:   3.0,
		},
		{
			Intent:   "github",
			Patterns: mustPatterns(`(?i)pull request`, `(?i)\bpr\b`, `(?i)github`),
			Sources:  []string{"github"},
			Weight:   3.0,
		},
		{
			Intent:   "calendar",
			Patterns: mustPatterns(`(?i)meeting`, `(?i)calendar`, `(?i)schedule`),
			Sources:  []string{"calendar"},
			Weight:   3.0,
		},
		{
			Intent:   "email",
			Patterns: mustPatterns(`(?i)email`, `(?i)inbox`),
			Sources:  []string{"email"},
			Weight:   3.0,
		},
		{
			Intent:   "files",
			Patterns: mustPatterns(`(?i)\bfile\b`, `(?i)directory`, `(?i)path`),
			Sources:  []string{"files"},
			Weight:   2.0,
		},
	}
}
