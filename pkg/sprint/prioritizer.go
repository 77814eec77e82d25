package sprint

import (
	"sort"
	"strings"
	"time"
)

// PrioritizerWeights are the configurable component weights (spec
// §4.I, defaults priority 0.4, points 0.3, age 0.2, type 0.1).
type PrioritizerWeights struct {
	Priority float64
	Points   float64
	Age      float64
	Type     float64
}

func DefaultPrioritizerWeights() PrioritizerWeights {
	return PrioritizerWeights{Priority: 0.4, Points: 0.3, Age: 0.2, Type: 0.1}
}

var priorityScores = map[Priority]float64{
	PriorityBlocker:  100,
	PriorityCritical: 80,
	PriorityMajor:    50,
	PriorityMinor:    20,
	PriorityTrivial:  10,
}

var typeScores = map[string]float64{
	"bug": 30, "defect": 30, "incident": 25, "task": 20,
	"story": 15, "feature": 10, "improvement": 10, "epic": 5,
}

func priorityScore(p Priority) float64 {
	if s, ok := priorityScores[p]; ok {
		return s
	}
	return 30
}

func typeScore(issueType string) float64 {
	if s, ok := typeScores[strings.ToLower(issueType)]; ok {
		return s
	}
	return 15
}

func pointsScore(points int, hasPoints bool) float64 {
	if !hasPoints || points <= 0 {
		return 10
	}
	switch {
	case points <= 2:
		return 40
	case points <= 5:
		return 30
	case points <= 8:
		return 20
	default:
		return 10
	}
}

func ageScore(created time.Time, now time.Time) float64 {
	if created.IsZero() {
		return 0
	}
	age := now.Sub(created)
	switch {
	case age > 30*24*time.Hour:
		return 30
	case age >= 15*24*time.Hour:
		return 20
	case age >= 8*24*time.Hour:
		return 10
	case age <= 7*24*time.Hour:
		return 5
	default:
		return 5
	}
}

// Prioritize computes a weighted score for each issue and assigns
// Rank 1..n by descending score (spec §4.I Prioritizer). It mutates
// issues in place and also returns the slice for convenience.
func Prioritize(issues []SprintIssue, weights PrioritizerWeights, now time.Time) []SprintIssue {
	type scored struct {
		idx   int
		score float64
	}
	scores := make([]scored, len(issues))

	for i := range issues {
		issue := &issues[i]
		score := weights.Priority*priorityScore(issue.Priority) +
			weights.Points*pointsScore(issue.StoryPoints, issue.StoryPoints > 0) +
			weights.Age*ageScore(issue.Created, now) +
			weights.Type*typeScore(issue.IssueType)

		if issue.ApprovalStatus == ApprovalBlocked {
			score *= 0.3
		}
		if issue.WaitingReason != "" {
			score *= 0.5
		}
		scores[i] = scored{idx: i, score: score}
	}

	// stable sort keeps declaration order on ties (spec §4.I).
	sort.SliceStable(scores, func(a, b int) bool { return scores[a].score > scores[b].score })

	for rank, s := range scores {
		issues[s.idx].Rank = rank + 1
	}
	return issues
}

// DefaultActionableStatuses is the default actionable set used by
// IsActionable when config doesn't override it.
var DefaultActionableStatuses = []string{"new", "refinement", "to do", "open", "backlog"}

// IsActionable reports whether issue's jira status (lowercased) is in
// actionableSet (spec §4.I is_actionable).
func IsActionable(issue SprintIssue, actionableSet []string) bool {
	status := strings.ToLower(issue.JiraStatus)
	for _, s := range actionableSet {
		if strings.ToLower(s) == status {
			return true
		}
	}
	return false
}
