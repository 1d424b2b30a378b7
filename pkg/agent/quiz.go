package agent

import (
	"context"
	"fmt"
	"log"

	"ai-elearning-be/pkg/llm"
	"ai-elearning-be/pkg/router"
)

// quizAttempts bounds the parse-and-retry loop for quiz generation.
const quizAttempts = 3

// QuizAgent generates multiple-choice quizzes over course chapters.
type QuizAgent struct {
	provider llm.LLMProvider
	logger   *log.Logger
}

var _ router.QuizAgent = &QuizAgent{}

func NewQuizAgent(provider llm.LLMProvider, logger *log.Logger) *QuizAgent {
	return &QuizAgent{provider: provider, logger: logger}
}

const quizPrompt = `You are a quiz generator. For the chapter content below, return ONLY
minified JSON:
{"questions":[{"question":"...","options":["...","...","...","..."],"answer_index":0}]}
Write 5 questions, exactly 4 options each, one correct answer.

Chapter content:
%s`

// GenerateQuiz produces one quiz per chapter. Malformed model output is
// retried a fixed number of times before the chapter is skipped.
func (a *QuizAgent) GenerateQuiz(ctx context.Context, chapters []any) (any, error) {
	if len(chapters) == 0 {
		return nil, fmt.Errorf("no chapters to generate a quiz from")
	}

	quizzes := make([]map[string]any, 0, len(chapters))
	for i, chapter := range chapters {
		content := chapterContent(chapter)
		if content == "" {
			continue
		}

		var quiz map[string]any
		for attempt := 1; attempt <= quizAttempts; attempt++ {
			raw, err := a.provider.Generate(ctx, fmt.Sprintf(quizPrompt, content), llm.WithTemperature(0.5))
			if err != nil {
				a.logger.Printf("[QUIZ] chapter %d attempt %d failed: %v", i, attempt, err)
				continue
			}
			if parsed, ok := parseObject(raw); ok && parsed["questions"] != nil {
				quiz = parsed
				break
			}
			a.logger.Printf("[QUIZ] chapter %d attempt %d produced malformed output", i, attempt)
		}
		if quiz == nil {
			continue
		}

		quiz["chapter_index"] = i
		if m, ok := chapter.(map[string]any); ok {
			if title, ok := m["title"].(string); ok {
				quiz["chapter_title"] = title
			}
		}
		quizzes = append(quizzes, quiz)
	}

	if len(quizzes) == 0 {
		return nil, fmt.Errorf("quiz generation produced no usable quiz")
	}
	return quizzes, nil
}

func chapterContent(chapter any) string {
	switch c := chapter.(type) {
	case string:
		return c
	case map[string]any:
		if content, ok := c["content"].(string); ok {
			return content
		}
	}
	return ""
}
