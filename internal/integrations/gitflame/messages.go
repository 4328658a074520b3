package gitflame

import (
	"github.com/morezero/actions-dispatcher/pkg/format"
)

// FormatCreatedIssue renders the "Create issue" result for chat.
func FormatCreatedIssue(result map[string]any) (string, map[string]any, error) {
	var repo string
	if r, ok := result["repository"].(map[string]any); ok {
		repo = format.Scalar(r["name"])
	}
	title := format.Scalar(result["title"])
	body := format.Scalar(result["body"])

	msg := "The following GitFlame Issue was created:\n" +
		"Repository: " + repo + "\n" +
		"Issue title: " + title + "\n" +
		"Issue body:\n" + body
	return msg, map[string]any{
		"Issue repository": repo,
		"Issue title":      title,
		"Issue body":       body,
	}, nil
}
