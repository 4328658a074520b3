package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectDispatch        = "actions.dispatch"
	SubjectDispatchedEvent = "actions.dispatched"
)

// BuildDispatchSubject builds the request subject a team's dispatcher listens on.
// An empty team yields SubjectDispatch.
func BuildDispatchSubject(team string) string {
	if team == "" {
		return SubjectDispatch
	}
	return fmt.Sprintf("actions.%s.dispatch", SanitizeToken(team))
}

// BuildDispatchedSubject builds the granular dispatched-event subject for one action.
func BuildDispatchedSubject(system, action string) string {
	return fmt.Sprintf("%s.%s.%s", SubjectDispatchedEvent, SanitizeToken(system), SanitizeToken(action))
}

// SanitizeToken turns a free-form name into a single subject token: lower case, with
// whitespace, dots and wildcards replaced by underscores.
func SanitizeToken(s string) string {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', '.', '*', '>':
			return '_'
		}
		return r
	}, s)
}
