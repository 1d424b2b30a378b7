package service

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"ai-elearning-be/pkg/cache"
	"ai-elearning-be/pkg/memory"
	"ai-elearning-be/pkg/router"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type noopLogger struct{}

func (noopLogger) Debug(module, message string, details map[string]interface{}) {}
func (noopLogger) Info(module, message string, details map[string]interface{})  {}
func (noopLogger) Warn(module, message string, details map[string]interface{})  {}
func (noopLogger) Error(module, message string, details map[string]interface{}) {}

func (noopLogger) Std(module string) *log.Logger {
	return log.New(io.Discard, "", 0)
}

func (noopLogger) Sync() error { return nil }

type stubClassifier struct {
	label string
}

func (s *stubClassifier) Classify(ctx context.Context, message, role string, hasAttachment bool, historyText, lastAgentUsed string) string {
	return s.label
}

type stubCourseAgent struct {
	suggestions string
}

func (s *stubCourseAgent) DetectOperation(ctx context.Context, input, history, memories string) (router.Operation, error) {
	return router.Operation{Kind: router.OpChat}, nil
}

func (s *stubCourseAgent) ProcessPDF(ctx context.Context, pdf []byte) (map[string]any, error) {
	return map[string]any{}, nil
}

func (s *stubCourseAgent) AnswerAboutMemories(ctx context.Context, exchanges []memory.Exchange, question string) (string, error) {
	return "", nil
}

func (s *stubCourseAgent) AnswerCourseQuestion(ctx context.Context, question, courseTitle string) (string, error) {
	return "", nil
}

func (s *stubCourseAgent) PDFSuggestions(role string) string {
	return s.suggestions
}

type stubSummarizer struct {
	reply    string
	lastText string
}

func (s *stubSummarizer) Summarize(ctx context.Context, text, userMessage, subjectID, sessionID string) (string, error) {
	s.lastText = text
	return s.reply, nil
}

type stubExtractor struct {
	lastData []byte
}

func (s *stubExtractor) ExtractText(data []byte) (string, error) {
	s.lastData = data
	return "lecture notes on consensus", nil
}

func TestSendChatReusesCachedDocument(t *testing.T) {
	stdLog := log.New(io.Discard, "", 0)
	store := memory.NewConversationStore(nil, stdLog)

	courseAgent := &stubCourseAgent{suggestions: "You can ask me to summarize this PDF."}
	summarizer := &stubSummarizer{reply: "consensus in a nutshell"}
	extractor := &stubExtractor{}

	rt := router.NewRouter(router.Collaborators{
		Classifier: &stubClassifier{label: "summarize"},
		Course:     courseAgent,
		Summarize:  summarizer,
		Extractor:  extractor,
	}, store, memory.NewAgentMemory("system", store, stdLog), stdLog)

	docCache := cache.NewDocumentCache(time.Minute)
	svc := NewChatService(rt, courseAgent, store, docCache, nil, nil, nil, nil, "", nil, nil, noopLogger{})

	// First turn: a bare upload is cached and answered with suggestions.
	payload := []byte("%PDF-1.4 raw document")
	res, err := svc.SendChat(context.Background(), "user-1", "student", "conv-1", "", payload)
	require.NoError(t, err)
	require.Len(t, res.Operations, 1)
	assert.Equal(t, courseAgent.suggestions, res.Operations[0].Response)

	// Second turn: no attachment, but the instruction must still reach the
	// document cached by the first turn.
	res, err = svc.SendChat(context.Background(), "user-1", "student", "conv-1", "summarize the document", nil)
	require.NoError(t, err)
	assert.Empty(t, res.Error)
	assert.Equal(t, payload, extractor.lastData, "the cached upload must be fed back into the turn")
	assert.Equal(t, "lecture notes on consensus", summarizer.lastText)
	assert.Equal(t, "consensus in a nutshell", res.Reply)
}

func TestCourseTextFlattensDraft(t *testing.T) {
	course := map[string]interface{}{
		"title":       "Distributed Systems",
		"description": "Consensus, replication and failure models.",
		"chapters": []interface{}{
			map[string]interface{}{"title": "Consensus", "content": "Paxos and Raft."},
			"Replication strategies",
		},
	}

	text := courseText(course)

	assert.Contains(t, text, "Distributed Systems")
	assert.Contains(t, text, "Consensus, replication and failure models.")
	assert.Contains(t, text, "Paxos and Raft.")
	assert.Contains(t, text, "Replication strategies")
}

func TestCourseTextEmptyDraft(t *testing.T) {
	assert.Equal(t, "", courseText(map[string]interface{}{}))
	assert.Equal(t, "", courseText(map[string]interface{}{"chapters": []interface{}{}}))
}
