// Package extract registers LLM-backed actions that pull issue fields out of free-form
// user requests.
package extract

import (
	"context"
	"fmt"

	"github.com/morezero/actions-dispatcher/internal/integrations/llm"
	"github.com/morezero/actions-dispatcher/pkg/action"
	"github.com/morezero/actions-dispatcher/pkg/blocking"
	"github.com/morezero/actions-dispatcher/pkg/registry"
)

// SystemName groups the extraction actions with the issue tracker they feed.
const SystemName = "GitFlame"

const defaultTemperature = 0.1

// Input is the raw text the user sent.
type Input struct {
	UserRequest string `json:"user_request" desc:"Free-form user request"`
}

// Output is the extracted text.
type Output struct {
	Answer string `json:"answer"`
}

// Action completes a prompt template against the user's request. It declares its own
// action name, so it registers without an explicit one.
type Action struct {
	name        string
	template    string
	stop        []string
	maxTokens   int
	temperature float64
	llm         llm.Completer
	pool        *blocking.Pool
}

// ActionName implements action.Named.
func (a *Action) ActionName() string {
	return a.name
}

// Execute runs the completion on the blocking pool and waits for it.
func (a *Action) Execute(ctx context.Context, _ action.AuthContext, input any) (any, error) {
	in, err := action.As[Input](input)
	if err != nil {
		return nil, err
	}
	req := llm.Request{
		Prompt:      llm.PreparePrompt(a.template, in.UserRequest),
		Stop:        a.stop,
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	}
	answer, err := blocking.Run(ctx, a.pool, func(ctx context.Context) (string, error) {
		return a.llm.Complete(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("%s failed: %w", a.name, err)
	}
	return Output{Answer: answer}, nil
}

const titleTemplate = `<Prompt>
<Instruction>
Write a one-sentence English title for the user review below.
</Instruction>
<User review>{USER_REQUEST}</User review>
<Answer>`

const bodyTemplate = `<Prompt>
<Instruction>
Rewrite the user request below as a technical problem description. Keep only the parts relevant to the problem and keep the original language.
</Instruction>
<User request>{USER_REQUEST}</User request>
<Answer>`

// IssueTitle builds the extract_issue_title action.
func IssueTitle(c llm.Completer, pool *blocking.Pool) *Action {
	return &Action{
		name:        "extract_issue_title",
		template:    titleTemplate,
		stop:        []string{"</Answer>"},
		maxTokens:   50,
		temperature: defaultTemperature,
		llm:         c,
		pool:        pool,
	}
}

// IssueBody builds the extract_issue_body action.
func IssueBody(c llm.Completer, pool *blocking.Pool) *Action {
	return &Action{
		name:        "extract_issue_body",
		template:    bodyTemplate,
		stop:        []string{"</Answer>"},
		maxTokens:   1000,
		temperature: defaultTemperature,
		llm:         c,
		pool:        pool,
	}
}

// Register adds both extraction actions to reg under SystemName.
func Register(reg *registry.Registry, c llm.Completer, pool *blocking.Pool) error {
	for _, a := range []*Action{IssueTitle(c, pool), IssueBody(c, pool)} {
		if err := registry.AddAction[Input, Output](reg, registry.Options{
			System:      SystemName,
			Description: "Extract issue text from a user request with the LLM",
		}, a); err != nil {
			return err
		}
	}
	return nil
}
