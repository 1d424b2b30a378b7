package agent

import (
	"context"
	"fmt"
	"log"
	"strings"

	"ai-elearning-be/pkg/cache"
	"ai-elearning-be/pkg/llm"
	"ai-elearning-be/pkg/memory"
	"ai-elearning-be/pkg/router"
)

// SummarizeAgent answers summary and comprehension questions about an
// uploaded document. When the turn carries no fresh text it falls back to
// the document cached for this subject/session, so follow-up questions
// keep working after the upload request completed.
type SummarizeAgent struct {
	provider  llm.LLMProvider
	extractor router.PDFExtractor
	documents *cache.DocumentCache
	memory    *memory.AgentMemory
	logger    *log.Logger
}

var _ router.SummarizeAgent = &SummarizeAgent{}

func NewSummarizeAgent(provider llm.LLMProvider, extractor router.PDFExtractor, documents *cache.DocumentCache, agentMemory *memory.AgentMemory, logger *log.Logger) *SummarizeAgent {
	return &SummarizeAgent{
		provider:  provider,
		extractor: extractor,
		documents: documents,
		memory:    agentMemory,
		logger:    logger,
	}
}

func (a *SummarizeAgent) Summarize(ctx context.Context, text, userMessage, subjectID, sessionID string) (string, error) {
	source := strings.TrimSpace(text)
	if source == "" && a.documents != nil && a.extractor != nil {
		if payload, _, key := a.documents.Retrieve(subjectID, sessionID); payload != nil {
			extracted, err := a.extractor.ExtractText(payload)
			if err != nil {
				a.logger.Printf("[SUMMARIZE] failed to extract cached document %s: %v", key, err)
			} else {
				source = strings.TrimSpace(extracted)
				a.logger.Printf("[SUMMARIZE] using cached document for key %s", key)
			}
		}
	}
	if source == "" {
		return "I have no document to work with. Upload a PDF or paste the text you want summarized.", nil
	}

	history := ""
	if a.memory != nil {
		if last := a.memory.LastRecord(ctx, subjectID, sessionID); last != nil {
			history = fmt.Sprintf("Previous question: %s\nPrevious answer: %s\n", last.Query, last.Response)
		}
	}

	prompt := fmt.Sprintf(
		"You are a document assistant. Using the document below, answer the user's request.\n%s\nDocument:\n%s\n\nRequest: %s",
		history, memory.Truncate(source, 12000), userMessage)

	answer, err := a.provider.Generate(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("summarize: %w", err)
	}

	if a.memory != nil {
		a.memory.Save(ctx, subjectID, sessionID, userMessage, answer, nil)
	}
	return answer, nil
}
