// Package testsystem registers the diagnostic "Test" system used to check the dispatch path
// end to end without touching any external service.
package testsystem

import (
	"context"
	"regexp"

	"github.com/morezero/actions-dispatcher/pkg/action"
	"github.com/morezero/actions-dispatcher/pkg/format"
	"github.com/morezero/actions-dispatcher/pkg/registry"
)

// SystemName is the registry system for diagnostic actions.
const SystemName = "Test"

// PingInput is echoed back unchanged.
type PingInput struct {
	Name string `json:"name" desc:"Any text; returned as is"`
}

// PingOutput mirrors PingInput.
type PingOutput struct {
	Name string `json:"name"`
}

// DocumentInput carries a chat message that should contain one Google document link.
type DocumentInput struct {
	Name string `json:"name" desc:"Message text containing a Google document URL"`
}

// DocumentOutput holds the extracted document id. Name is empty when the message does not
// contain exactly one document link.
type DocumentOutput struct {
	Name string `json:"name"`
}

// ReportInput is the text to report.
type ReportInput struct {
	Text string `json:"text"`
}

// ReportOutput reports business failures through ErrorCode instead of returning an error.
type ReportOutput struct {
	Response  string `json:"response"`
	ErrorCode int    `json:"error_code"`
}

// Register adds the Test system's actions to reg.
func Register(reg *registry.Registry) error {
	if err := registry.Add(reg, registry.Options{
		System:      SystemName,
		Action:      "ping",
		Description: "Echo the input name",
	}, Ping); err != nil {
		return err
	}
	if err := registry.Add(reg, registry.Options{
		System:      SystemName,
		Action:      "test_action",
		Description: "Extract a Google document id from a message",
		Formatter:   FormatDocument,
	}, ExtractDocument); err != nil {
		return err
	}
	return registry.Add(reg, registry.Options{
		System:      SystemName,
		Action:      "report",
		Description: "Echo text back; fails softly via error_code without Test credentials",
		Formatter:   FormatReport,
	}, Report)
}

// Ping returns its input.
func Ping(_ context.Context, _ action.AuthContext, in PingInput) (PingOutput, error) {
	return PingOutput{Name: in.Name}, nil
}

var (
	urlPattern   = regexp.MustCompile(`https?://[^\s]+`)
	docIDPattern = regexp.MustCompile(`/d/([^/]+)/`)
)

// DocumentID returns the single Google document id referenced in text. ok is false when
// text references none or several.
func DocumentID(text string) (id string, ok bool) {
	var ids []string
	for _, u := range urlPattern.FindAllString(text, -1) {
		if m := docIDPattern.FindStringSubmatch(u); m != nil {
			ids = append(ids, m[1])
		}
	}
	if len(ids) != 1 {
		return "", false
	}
	return ids[0], true
}

// ExtractDocument pulls the document id out of the message.
func ExtractDocument(_ context.Context, _ action.AuthContext, in DocumentInput) (DocumentOutput, error) {
	id, _ := DocumentID(in.Name)
	return DocumentOutput{Name: id}, nil
}

// FormatDocument renders the extracted id.
func FormatDocument(result map[string]any) (string, map[string]any, error) {
	name := format.Scalar(result["name"])
	return "The following Test was created:\nTest name: " + name,
		map[string]any{"Test name": name}, nil
}

// Report echoes the text when the caller sent Test credentials, and otherwise returns
// error_code 1.
func Report(_ context.Context, auth action.AuthContext, in ReportInput) (ReportOutput, error) {
	if !auth.Has(SystemName) {
		return ReportOutput{Response: "Not authenticated", ErrorCode: 1}, nil
	}
	return ReportOutput{Response: in.Text}, nil
}

// FormatReport branches on error_code.
func FormatReport(result map[string]any) (string, map[string]any, error) {
	response := format.Scalar(result["response"])
	if _, failed := format.ErrorCode(result); failed {
		msg := "Error: \n" + response
		return msg, map[string]any{"error": msg}, nil
	}
	msg := "Message: \n" + response
	return msg, map[string]any{"message": msg}, nil
}
