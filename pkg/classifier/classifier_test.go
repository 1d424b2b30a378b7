package classifier

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"

	"ai-elearning-be/pkg/llm"

	"github.com/stretchr/testify/assert"
)

func TestParseLabel(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "clean json", raw: `{"category":"course"}`, want: "course"},
		{name: "fenced json", raw: "```json\n{\"category\":\"summarize\"}\n```", want: "summarize"},
		{name: "bare quoted string", raw: `"schedule_session"`, want: "schedule_session"},
		{name: "chatter around json", raw: `Sure! Here you go: {"category": "quiz"} hope that helps`, want: "quiz"},
		{name: "out of vocabulary", raw: `{"category":"nonsense_label"}`, want: "chat"},
		{name: "malformed output", raw: `category is probably course`, want: "chat"},
		{name: "empty output", raw: "", want: "chat"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ParseLabel(tt.raw))
		})
	}
}

type fakeProvider struct {
	reply string
	err   error
}

func (f *fakeProvider) Chat(ctx context.Context, history []llm.Message, options ...llm.Option) (string, error) {
	return f.reply, f.err
}

func (f *fakeProvider) Generate(ctx context.Context, prompt string, options ...llm.Option) (string, error) {
	return f.reply, f.err
}

func TestClassifyProviderFailureDefaultsToChat(t *testing.T) {
	c := NewIntentClassifier(&fakeProvider{err: errors.New("connection refused")}, log.New(io.Discard, "", 0))
	assert.Equal(t, "chat", c.Classify(context.Background(), "create a course", "instructor", false, "", ""))
}

func TestClassifyEmptyMessage(t *testing.T) {
	c := NewIntentClassifier(&fakeProvider{reply: `{"category":"course"}`}, log.New(io.Discard, "", 0))
	assert.Equal(t, "chat", c.Classify(context.Background(), "   ", "student", false, "", ""))
}

func TestClassifyHappyPath(t *testing.T) {
	c := NewIntentClassifier(&fakeProvider{reply: `{"category":"show_calendar"}`}, log.New(io.Discard, "", 0))
	assert.Equal(t, "show_calendar", c.Classify(context.Background(), "what is on my agenda", "student", false, "", ""))
}
