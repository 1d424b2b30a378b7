package agent

import (
	"context"
	"fmt"
	"log"

	"ai-elearning-be/pkg/llm"
	"ai-elearning-be/pkg/router"
)

// ChatAgent is the generic conversational fallback.
type ChatAgent struct {
	provider llm.LLMProvider
	logger   *log.Logger
}

var _ router.ChatAgent = &ChatAgent{}

func NewChatAgent(provider llm.LLMProvider, logger *log.Logger) *ChatAgent {
	return &ChatAgent{provider: provider, logger: logger}
}

func (a *ChatAgent) Chat(ctx context.Context, input, history string) (string, error) {
	messages := []llm.Message{
		{Role: "system", Content: "You are a helpful e-learning assistant. Answer concisely.\n\nConversation so far:\n" + history},
		{Role: "user", Content: input},
	}
	reply, err := a.provider.Chat(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("chat: %w", err)
	}
	return reply, nil
}
