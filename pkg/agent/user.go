package agent

import (
	"context"
	"fmt"
	"log"

	"ai-elearning-be/pkg/llm"
	"ai-elearning-be/pkg/router"
)

// UserAgent maps free text onto user directory operations.
type UserAgent struct {
	provider llm.LLMProvider
	logger   *log.Logger
}

var _ router.UserAgent = &UserAgent{}

func NewUserAgent(provider llm.LLMProvider, logger *log.Logger) *UserAgent {
	return &UserAgent{provider: provider, logger: logger}
}

const userDetectPrompt = `You are a user-account operation extractor.
Return ONLY minified JSON: {"operation":"...","parameters":{...}}

Allowed operations:
- "get_user_by_id"  parameters: {"user_id"}
- "get_users"       parameters: {}
- "create_user"     parameters: {"email","first_name","last_name","user_password","phone"}
- "update_user"     parameters: {"user_id", ...changed fields}
- "delete_user"     parameters: {"user_id"}
- "chat"            parameters: {"input"}  (when no account operation fits)

User message: %s`

func (a *UserAgent) DetectOperation(ctx context.Context, input string) (router.Operation, error) {
	raw, err := a.provider.Generate(ctx, fmt.Sprintf(userDetectPrompt, input), llm.WithTemperature(0.1))
	if err != nil {
		return router.Operation{}, fmt.Errorf("user detection: %w", err)
	}

	obj, ok := parseObject(raw)
	if !ok || stringField(obj, "operation") == "" {
		a.logger.Printf("[USER] unparseable detection output, falling back to chat")
		return router.Operation{Kind: router.OpChat, Parameters: map[string]any{"input": input}}, nil
	}

	return router.Operation{
		Kind:       stringField(obj, "operation"),
		Parameters: mapField(obj, "parameters"),
	}, nil
}
