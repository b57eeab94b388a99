package webhook

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/agentmesh/core/internal/meshtypes"
)

// MapEventKind maps a GitHub event name + payload to an EventKind. The
// empty EventKind signals "drop".
func MapEventKind(eventName string, payload []byte) meshtypes.EventKind {
	switch eventName {
	case "issue_comment":
		if gjson.GetBytes(payload, "issue.pull_request").Exists() {
			return meshtypes.EventIssueCommentPR
		}
		return meshtypes.EventIssueComment
	case "issues":
		return meshtypes.EventIssues
	case "pull_request_review_comment":
		return meshtypes.EventPullRequestReviewComment
	default:
		return ""
	}
}

// MentionBody extracts the body field the mention check runs against, per
// event kind: comment body for issue_comment/pull_request_review_comment,
// issue body for issues. Returns ("", false) if absent.
func MentionBody(kind meshtypes.EventKind, payload []byte) (string, bool) {
	var path string
	switch kind {
	case meshtypes.EventIssueComment, meshtypes.EventIssueCommentPR, meshtypes.EventPullRequestReviewComment:
		path = "comment.body"
	case meshtypes.EventIssues:
		path = "issue.body"
	default:
		return "", false
	}
	v := gjson.GetBytes(payload, path)
	if !v.Exists() {
		return "", false
	}
	return v.String(), true
}

// CommentAuthor extracts the login of whoever authored the mention body,
// for the self-mention loop guard.
func CommentAuthor(kind meshtypes.EventKind, payload []byte) string {
	switch kind {
	case meshtypes.EventIssueComment, meshtypes.EventIssueCommentPR, meshtypes.EventPullRequestReviewComment:
		return gjson.GetBytes(payload, "comment.user.login").String()
	case meshtypes.EventIssues:
		return gjson.GetBytes(payload, "issue.user.login").String()
	}
	return ""
}

func mentionPattern(user string) *regexp.Regexp {
	// Word-boundary check: preceded by start/space/non-word, followed by
	// end/space/non-word, case-insensitive.
	return regexp.MustCompile(`(?i)(^|[\s\W])@` + regexp.QuoteMeta(user) + `($|[\s\W])`)
}

// ContainsMention reports whether body mentions @user with a word-boundary
// check, case-insensitively.
func ContainsMention(body, user string) bool {
	if user == "" {
		return false
	}
	return mentionPattern(user).MatchString(body)
}

// SelfMention reports whether author is the mentioned user (case
// insensitive). Skipping self-mentions prevents an agent from triggering
// itself in a loop.
func SelfMention(author, mentionUser string) bool {
	return author != "" && strings.EqualFold(author, mentionUser)
}

// workTaskPatterns are the fixed, case-insensitive regexes that classify a
// mention as a code-change request.
var workTaskPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)fix (this|the|that)`),
	regexp.MustCompile(`(?i)implement this`),
	regexp.MustCompile(`(?i)please (fix|implement|add|create|update|refactor)`),
	regexp.MustCompile(`(?i)(create|open) a pr`),
	regexp.MustCompile(`(?i)make (this|the|these) change`),
}

// WorkMode is the decided dispatch mode for a mention.
type WorkMode string

const (
	ModeWorkTask WorkMode = "work_task"
	ModeSession  WorkMode = "session"
)

// ClassifyWorkMode decides work_task vs session per the fixed pattern set.
func ClassifyWorkMode(body string) WorkMode {
	for _, p := range workTaskPatterns {
		if p.MatchString(body) {
			return ModeWorkTask
		}
	}
	return ModeSession
}

// Labels extracts the label names on an "issues" event payload, used in
// prompt composition.
func Labels(payload []byte) []string {
	var labels []string
	gjson.GetBytes(payload, "issue.labels.#.name").ForEach(func(_, v gjson.Result) bool {
		labels = append(labels, v.String())
		return true
	})
	return labels
}
