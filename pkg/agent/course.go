package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"ai-elearning-be/pkg/llm"
	"ai-elearning-be/pkg/memory"
	"ai-elearning-be/pkg/router"
)

// CourseAgent maps free text onto course directory operations and builds
// course drafts out of uploaded documents.
type CourseAgent struct {
	provider  llm.LLMProvider
	extractor router.PDFExtractor
	logger    *log.Logger
}

var _ router.CourseAgent = &CourseAgent{}

func NewCourseAgent(provider llm.LLMProvider, extractor router.PDFExtractor, logger *log.Logger) *CourseAgent {
	return &CourseAgent{provider: provider, extractor: extractor, logger: logger}
}

const courseDetectPrompt = `You are a course-operation extractor for an e-learning platform.
Read the user message and return ONLY a minified JSON object:
{"operation":"...","parameters":{...}}

Allowed operations:
- "create_course"            parameters: {"title","description","tags"}
- "update_course"            parameters: {"course_id", ...changed fields}
- "delete_course"            parameters: {"course_id"}
- "get_course_by_id"         parameters: {"course_id"}
- "search_courses_advanced"  parameters: {"title","tags","min_price","max_price"}
- "answer_course"            parameters: {"question","course_title"}
- "chat"                     parameters: {"input"}

Omit parameters you cannot extract. No markdown, JSON only.`

func (a *CourseAgent) DetectOperation(ctx context.Context, input, history, memories string) (router.Operation, error) {
	prompt := fmt.Sprintf("%s\n\nHistory:\n%s\n\nKnown context:\n%s\n\nUser message:\n%s",
		courseDetectPrompt, history, memories, input)

	raw, err := a.provider.Generate(ctx, prompt, llm.WithTemperature(0.1))
	if err != nil {
		return router.Operation{}, fmt.Errorf("course detection: %w", err)
	}

	obj, ok := parseObject(raw)
	if !ok || stringField(obj, "operation") == "" {
		a.logger.Printf("[COURSE] unparseable detection output, falling back to chat")
		return router.Operation{Kind: router.OpChat, Parameters: map[string]any{"input": input, "history": history}}, nil
	}

	op := router.Operation{
		Kind:       stringField(obj, "operation"),
		Parameters: mapField(obj, "parameters"),
	}
	if op.Kind == router.OpChat && op.Parameters["input"] == nil {
		op.Parameters["input"] = input
	}
	return op, nil
}

const courseStructurePrompt = `You are a course designer. Turn the raw document text below into a
structured course. Return ONLY minified JSON:
{"title":"...","description":"...","chapters":[{"title":"...","content":"<h3>...</h3><p>...</p>"}]}
Chapter content is rich HTML (h3 sections, p, ul/li). 3 to 8 chapters.`

// ProcessPDF extracts the document text and asks the model for a course
// draft. The draft is returned to the caller for the validation gate; no
// side effect happens here.
func (a *CourseAgent) ProcessPDF(ctx context.Context, pdfData []byte) (map[string]any, error) {
	text, err := a.extractor.ExtractText(pdfData)
	if err != nil {
		return nil, fmt.Errorf("extract pdf: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("the document contains no extractable text")
	}

	raw, err := a.provider.Generate(ctx,
		courseStructurePrompt+"\n\nDocument text:\n"+memory.Truncate(text, 12000),
		llm.WithTemperature(0.3))
	if err != nil {
		return nil, fmt.Errorf("structure course: %w", err)
	}

	draft, ok := parseObject(raw)
	if !ok || stringField(draft, "title") == "" {
		return nil, fmt.Errorf("could not build a course draft from the document")
	}
	return draft, nil
}

func (a *CourseAgent) AnswerAboutMemories(ctx context.Context, exchanges []memory.Exchange, question string) (string, error) {
	var b strings.Builder
	for _, exchange := range exchanges {
		for _, m := range exchange.Messages {
			b.WriteString(m.Role)
			b.WriteString(": ")
			b.WriteString(m.Content)
			b.WriteString("\n")
		}
	}

	prompt := fmt.Sprintf(
		"Answer the user's question using only their conversation history below.\n\nHistory:\n%s\nQuestion: %s",
		memory.Truncate(b.String(), memory.MaxContextChars), question)
	return a.provider.Generate(ctx, prompt)
}

func (a *CourseAgent) AnswerCourseQuestion(ctx context.Context, question, courseTitle string) (string, error) {
	prompt := fmt.Sprintf(
		"You are a teaching assistant for the course %q. Answer the student's question clearly.\n\nQuestion: %s",
		courseTitle, question)
	return a.provider.Generate(ctx, prompt)
}

// PDFSuggestions is the canned answer when a document arrives without a
// message. Students get consumption options, instructors get authoring ones.
func (a *CourseAgent) PDFSuggestions(role string) string {
	suggestions := []string{
		"Summarize this document",
		"Ask a question about its content",
	}
	if role == "instructor" || role == "professor" {
		suggestions = append(suggestions,
			"Create a course from this document",
			"Generate a quiz from its chapters")
	}

	encoded, err := json.Marshal(suggestions)
	if err != nil {
		return "I received your document. Ask me to summarize it or create a course from it."
	}
	return "I received your document. Here is what I can do with it: " + string(encoded)
}
