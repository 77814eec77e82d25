package sprint

import (
	"strings"

	"github.com/tmc/langchaingo/prompts"
)

// workPromptTemplate is the skeleton fed to the headless agent for
// background execution. Composition rules beyond this skeleton live
// in operator-maintained workflow config, not here (spec §4.I
// build_work_prompt: "composition rules ... are not specified here").
const workPromptTemplate = `You are working on issue {{.Key}} ({{.IssueType}}): {{.Summary}}

Priority: {{.Priority}}
Story points: {{.StoryPoints}}
{{if .PriorityReasoning}}Priority reasoning:
{{.PriorityReasoning}}
{{end}}
Implement the change described above. When finished, print exactly one
status marker:

  [SPRINT_BOT_STATUS: COMPLETED]
  [SPRINT_BOT_STATUS: BLOCKED reason: <why>]
  [SPRINT_BOT_STATUS: FAILED error: <what went wrong>]

Report commit hashes in brackets, e.g. [abc1234], and list modified
files as "modified: <path>" on their own line.
`

var workPrompt = prompts.NewPromptTemplate(workPromptTemplate, []string{
	"Key", "IssueType", "Summary", "Priority", "StoryPoints", "PriorityReasoning",
})

func init() {
	workPrompt.TemplateFormat = prompts.TemplateFormatGoTemplate
}

// BuildWorkPrompt implements spec §4.I build_work_prompt.
func BuildWorkPrompt(issue SprintIssue) (string, error) {
	return workPrompt.Format(map[string]interface{}{
		"Key":               issue.Key,
		"IssueType":         issue.IssueType,
		"Summary":           issue.Summary,
		"Priority":          issue.Priority,
		"StoryPoints":       issue.StoryPoints,
		"PriorityReasoning": strings.Join(issue.PriorityReasoning, "\n"),
	})
}

// continuationPromptTemplate wraps History.BuildContinuationPrompt's
// Markdown body with an instruction header when it is being fed back
// to the agent as the start of a new invocation, rather than rendered
// for a human UI.
const continuationPromptTemplate = `Resume the work described below. Read the continuation context
carefully before making further changes.

{{.Body}}
`

var continuationPrompt = prompts.NewPromptTemplate(continuationPromptTemplate, []string{"Body"})

func init() {
	continuationPrompt.TemplateFormat = prompts.TemplateFormatGoTemplate
}

// BuildContinuationAgentPrompt wraps body (as produced by
// History.BuildContinuationPrompt) for resumption by the headless
// agent.
func BuildContinuationAgentPrompt(body string) (string, error) {
	return continuationPrompt.Format(map[string]interface{}{"Body": body})
}
