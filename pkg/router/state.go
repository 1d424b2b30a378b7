package router

import (
	"context"

	"ai-elearning-be/pkg/memory"
)

// Operation kinds form a closed vocabulary. The dispatcher switches on
// these exhaustively; anything else lands in the unknown-operation arm.
const (
	OpProcessPDF      = "process_pdf"
	OpShowCalendar    = "show_calendar"
	OpScheduleSession = "schedule_session"
	OpGetCourseByID   = "get_course_by_id"
	OpSearchCourses   = "search_courses_advanced"
	OpCreateCourse    = "create_course"
	OpUpdateCourse    = "update_course"
	OpDeleteCourse    = "delete_course"
	OpChat            = "chat"
	OpResponse        = "response"
	OpSummarize       = "summarize"
	OpQA              = "qa"
	OpQuiz            = "quiz"
	OpAnswerCourse    = "answer_course"
	OpGetUserMemories = "get_user_memories"
)

// Operation is the routed, parameterized action selected for one turn.
type Operation struct {
	Kind       string         `json:"operation"`
	Parameters map[string]any `json:"parameters"`
}

// Result is one entry in the turn's result list. ValidationRequired marks
// a side effect as drafted but not committed; the commit happens through a
// separate confirmation call.
type Result struct {
	Response           any            `json:"response,omitempty"`
	Error              string         `json:"error,omitempty"`
	ValidationRequired bool           `json:"validation_required,omitempty"`
	Operation          string         `json:"operation,omitempty"`
	Data               map[string]any `json:"data,omitempty"`
}

// GraphState is the transient per-turn state. It lives for the duration of
// one request and is never shared between turns.
type GraphState struct {
	Messages   []memory.Message
	Detected   []Operation
	Pending    []Operation
	Results    []Result
	Error      string
	Attachment []byte
	UserRole   string
	UserID     string
	SessionID  string
	RAGContext string
	History    []string
}

// Classifier maps one user message to a label from the closed vocabulary.
// Implementations coerce anything unparseable to "chat".
type Classifier interface {
	Classify(ctx context.Context, message, role string, hasAttachment bool, historyText, lastAgentUsed string) string
}

// CourseAgent covers the generative course operations.
type CourseAgent interface {
	DetectOperation(ctx context.Context, input, history, memories string) (Operation, error)
	ProcessPDF(ctx context.Context, pdf []byte) (map[string]any, error)
	AnswerAboutMemories(ctx context.Context, exchanges []memory.Exchange, question string) (string, error)
	AnswerCourseQuestion(ctx context.Context, question, courseTitle string) (string, error)
	PDFSuggestions(role string) string
}

// ScheduleAgent extracts a live-session operation from free text.
type ScheduleAgent interface {
	DetectOperation(ctx context.Context, input string) (Operation, error)
}

// UserAgent extracts a user-account operation from free text.
type UserAgent interface {
	DetectOperation(ctx context.Context, input string) (Operation, error)
}

// ChatAgent produces a free-form answer for the fallback path.
type ChatAgent interface {
	Chat(ctx context.Context, input, history string) (string, error)
}

// SummarizeAgent answers questions about previously ingested documents.
type SummarizeAgent interface {
	Summarize(ctx context.Context, text, userMessage, subjectID, sessionID string) (string, error)
}

// QuizAgent generates quizzes over course chapters.
type QuizAgent interface {
	GenerateQuiz(ctx context.Context, chapters []any) (any, error)
}

// CourseDirectory is the read/write surface of the course directory
// service used by the dispatcher.
type CourseDirectory interface {
	GetCourseByID(ctx context.Context, courseID string) (map[string]any, error)
	SearchCourses(ctx context.Context, params map[string]any) (map[string]any, error)
	UpdateCourse(ctx context.Context, params map[string]any) (map[string]any, error)
	DeleteCourse(ctx context.Context, courseID string) (map[string]any, error)
}

// UserDirectory dispatches user CRUD operations by name.
type UserDirectory interface {
	Invoke(ctx context.Context, operation string, params map[string]any) (map[string]any, error)
}

// CalendarReader queries scheduled live sessions.
type CalendarReader interface {
	QuerySessions(ctx context.Context, filters map[string]any) (map[string]any, error)
}

// PDFExtractor turns an uploaded document into plain text.
type PDFExtractor interface {
	ExtractText(data []byte) (string, error)
}
