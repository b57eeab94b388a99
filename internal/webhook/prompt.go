package webhook

import (
	"fmt"
	"strings"

	"github.com/mbleigh/raymond"

	"github.com/agentmesh/core/internal/meshtypes"
)

// instructionsBlock is the fixed tail every composed prompt ends with.
const instructionsBlock = `
---
Instructions:
1. Use the external chat CLI to reply to the originating issue/PR.
2. For code-change intents, invoke the work-task creation tool.
3. Always leave a reply so the mentioner is notified.
`

// Free-text fields use triple-stash so Handlebars does not HTML-escape
// quotes or angle brackets out of a quoted title/body.
const commentPromptTemplate = `**Repository:** {{repo}}
**Issue/PR:** #{{number}} {{{title}}}
**Author:** {{author}}
**URL:** {{url}}

Mention body:
` + "```" + `
{{{body}}}
` + "```" + `
` + instructionsBlock

const issuesPromptTemplate = `**Repository:** {{repo}}
**Issue:** #{{number}} {{{title}}}
**Author:** {{author}}
**URL:** {{url}}
**Labels:** {{labels}}

Mention body:
` + "```" + `
{{{body}}}
` + "```" + `
` + instructionsBlock

// PromptContext carries the fields templates quote, extracted from a
// webhook payload via gjson in the dispatcher.
type PromptContext struct {
	Repo      string
	Number    int64
	Title     string
	Author    string
	URL       string
	Body      string
	Labels    []string
	EventKind meshtypes.EventKind
}

// ComposePrompt renders the fixed per-event Handlebars template with the
// mention's quoted fields plus the standard instructions tail.
func ComposePrompt(pc PromptContext) (string, error) {
	tpl := commentPromptTemplate
	if pc.EventKind == meshtypes.EventIssues {
		tpl = issuesPromptTemplate
	}

	ctx := map[string]interface{}{
		"repo":   pc.Repo,
		"number": pc.Number,
		"title":  pc.Title,
		"author": pc.Author,
		"url":    pc.URL,
		"body":   pc.Body,
		"labels": strings.Join(pc.Labels, ", "),
	}

	rendered, err := raymond.Render(tpl, ctx)
	if err != nil {
		return "", fmt.Errorf("webhook: render prompt template: %w", err)
	}
	return rendered, nil
}

// WorkTaskDescription builds the description for work-task creation:
// "GitHub webhook: " followed by the first line of the mention body.
func WorkTaskDescription(body string) string {
	return "GitHub webhook: " + firstLine(body)
}

func firstLine(body string) string {
	if idx := strings.IndexByte(body, '\n'); idx >= 0 {
		return body[:idx]
	}
	return body
}
