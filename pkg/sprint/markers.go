package sprint

import (
	"regexp"
	"strings"
)

// BotStatus is the background-execution status marker the headless
// agent emits (spec §4.J).
type BotStatus string

const (
	BotStatusCompleted BotStatus = "COMPLETED"
	BotStatusBlocked   BotStatus = "BLOCKED"
	BotStatusFailed    BotStatus = "FAILED"
	BotStatusNone      BotStatus = ""
)

var statusMarkerRe = regexp.MustCompile(`\[SPRINT_BOT_STATUS:\s*(COMPLETED|BLOCKED|FAILED)(?:\s+(?:reason|error):\s*([^\]]*))?\]`)

// ParseStatusMarker extracts the bracketed status marker from agent
// stdout, plus its optional reason/error suffix (spec §4.J).
func ParseStatusMarker(output string) (status BotStatus, detail string) {
	m := statusMarkerRe.FindStringSubmatch(output)
	if m == nil {
		return BotStatusNone, ""
	}
	return BotStatus(m[1]), strings.TrimSpace(m[2])
}

var (
	commitRe = regexp.MustCompile(`\[([0-9a-f]{7,40})\]`)
	fileRe   = regexp.MustCompile(`(?:modified|created|deleted):\s*([^\s]+)`)
	branchRe = regexp.MustCompile(`branch[:\s]+([A-Za-z0-9._/-]+)`)
	mrRe     = regexp.MustCompile(`(?:MR|merge request)\s*#?(\d+)`)
)

// ExtractOutcome pulls commit hashes, file paths, branch names, and
// merge-request identifiers out of agent stdout (spec §4.J).
func ExtractOutcome(output string) WorkLogOutcome {
	return WorkLogOutcome{
		Commits:         dedupeMatches(commitRe, output),
		FilesChanged:    dedupeMatches(fileRe, output),
		BranchesCreated: dedupeMatches(branchRe, output),
		MergeRequests:   dedupeMatches(mrRe, output),
	}
}

func dedupeMatches(re *regexp.Regexp, text string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range re.FindAllStringSubmatch(text, -1) {
		v := m[1]
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// ReviewMarker is the Review Checker's closed-set status marker (spec
// §4.N).
type ReviewMarker string

const (
	ReviewReadyToMerge     ReviewMarker = "READY_TO_MERGE"
	ReviewApprovedWithHold ReviewMarker = "APPROVED_WITH_HOLD"
	ReviewNeedsApproval    ReviewMarker = "NEEDS_APPROVAL"
	ReviewCIFailing        ReviewMarker = "CI_FAILING"
	ReviewChangesRequested ReviewMarker = "CHANGES_REQUESTED"
	ReviewNoMR             ReviewMarker = "NO_MR"
	ReviewNone             ReviewMarker = ""
)

var reviewMarkerRe = regexp.MustCompile(`\[(READY_TO_MERGE|APPROVED_WITH_HOLD|NEEDS_APPROVAL|CI_FAILING|CHANGES_REQUESTED|NO_MR)\]`)
var mrIDRe = regexp.MustCompile(`\[MR_ID:\s*(\d+)\]`)

// ParseReviewMarker extracts the review status marker and an optional
// MR id (spec §4.N step 1).
func ParseReviewMarker(output string) (marker ReviewMarker, mrID string) {
	m := reviewMarkerRe.FindStringSubmatch(output)
	if m == nil {
		return ReviewNone, ""
	}
	marker = ReviewMarker(m[1])
	if idMatch := mrIDRe.FindStringSubmatch(output); idMatch != nil {
		mrID = idMatch[1]
	}
	return marker, mrID
}

// MergeResult is the merge/close outcome marker (spec §4.N step 3).
type MergeResult string

const (
	MergeSuccess     MergeResult = "SUCCESS"
	MergeFailed      MergeResult = "MERGE_FAILED"
	MergeCloseFailed MergeResult = "CLOSE_FAILED"
	MergeNone        MergeResult = ""
)

var mergeResultRe = regexp.MustCompile(`\[MERGE_RESULT:\s*(SUCCESS|MERGE_FAILED|CLOSE_FAILED)\]`)

// ParseMergeResult extracts the merge/close result marker.
func ParseMergeResult(output string) MergeResult {
	m := mergeResultRe.FindStringSubmatch(output)
	if m == nil {
		return MergeNone
	}
	return MergeResult(m[1])
}

// HoldPhrases is the fixed set of "do not merge" phrases spec §4.N
// requires detecting, at minimum.
var HoldPhrases = []string{
	"don't merge", "do not merge", "hold off", "hold merge",
	"wait until", "needs more work", "wip", "work in progress",
}

// ContainsHoldPhrase reports whether text (case-insensitively)
// contains one of HoldPhrases.
func ContainsHoldPhrase(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range HoldPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
