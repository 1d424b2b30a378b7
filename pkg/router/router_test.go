package router

import (
	"context"
	"io"
	"log"
	"testing"

	"ai-elearning-be/pkg/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClassifier struct {
	label string
	calls int
}

func (f *fakeClassifier) Classify(ctx context.Context, message, role string, hasAttachment bool, historyText, lastAgentUsed string) string {
	f.calls++
	return f.label
}

type fakeCourseAgent struct {
	detectOp      Operation
	detectErr     error
	processResult map[string]any
	processErr    error
	memAnswer     string
	courseAnswer  string
	suggestions   string
}

func (f *fakeCourseAgent) DetectOperation(ctx context.Context, input, history, memories string) (Operation, error) {
	return f.detectOp, f.detectErr
}

func (f *fakeCourseAgent) ProcessPDF(ctx context.Context, pdf []byte) (map[string]any, error) {
	return f.processResult, f.processErr
}

func (f *fakeCourseAgent) AnswerAboutMemories(ctx context.Context, exchanges []memory.Exchange, question string) (string, error) {
	return f.memAnswer, nil
}

func (f *fakeCourseAgent) AnswerCourseQuestion(ctx context.Context, question, courseTitle string) (string, error) {
	return f.courseAnswer, nil
}

func (f *fakeCourseAgent) PDFSuggestions(role string) string {
	return f.suggestions
}

type fakeScheduleAgent struct {
	op  Operation
	err error
}

func (f *fakeScheduleAgent) DetectOperation(ctx context.Context, input string) (Operation, error) {
	return f.op, f.err
}

type fakeUserAgent struct {
	op  Operation
	err error
}

func (f *fakeUserAgent) DetectOperation(ctx context.Context, input string) (Operation, error) {
	return f.op, f.err
}

type fakeChatAgent struct {
	reply     string
	err       error
	lastInput string
}

func (f *fakeChatAgent) Chat(ctx context.Context, input, history string) (string, error) {
	f.lastInput = input
	return f.reply, f.err
}

type fakeSummarizeAgent struct {
	summary     string
	err         error
	lastText    string
	lastMessage string
}

func (f *fakeSummarizeAgent) Summarize(ctx context.Context, text, userMessage, subjectID, sessionID string) (string, error) {
	f.lastText = text
	f.lastMessage = userMessage
	return f.summary, f.err
}

type fakeQuizAgent struct {
	quiz any
	err  error
}

func (f *fakeQuizAgent) GenerateQuiz(ctx context.Context, chapters []any) (any, error) {
	return f.quiz, f.err
}

type fakeCourseDirectory struct {
	courses      map[string]map[string]any
	updateCalled bool
	deleteCalled bool
}

func (f *fakeCourseDirectory) GetCourseByID(ctx context.Context, courseID string) (map[string]any, error) {
	if course, ok := f.courses[courseID]; ok {
		return map[string]any{"course": course}, nil
	}
	return map[string]any{}, nil
}

func (f *fakeCourseDirectory) SearchCourses(ctx context.Context, params map[string]any) (map[string]any, error) {
	return map[string]any{"courses": []any{}}, nil
}

func (f *fakeCourseDirectory) UpdateCourse(ctx context.Context, params map[string]any) (map[string]any, error) {
	f.updateCalled = true
	return map[string]any{"updated": true}, nil
}

func (f *fakeCourseDirectory) DeleteCourse(ctx context.Context, courseID string) (map[string]any, error) {
	f.deleteCalled = true
	return map[string]any{"deleted": true}, nil
}

type fakeUserDirectory struct {
	lastOp string
}

func (f *fakeUserDirectory) Invoke(ctx context.Context, operation string, params map[string]any) (map[string]any, error) {
	f.lastOp = operation
	return map[string]any{"ok": true}, nil
}

type fakeCalendar struct{}

func (f *fakeCalendar) QuerySessions(ctx context.Context, filters map[string]any) (map[string]any, error) {
	return map[string]any{"sessions": []any{}}, nil
}

type fakeExtractor struct {
	text string
}

func (f *fakeExtractor) ExtractText(data []byte) (string, error) {
	return f.text, nil
}

type routerFixture struct {
	router     *Router
	store      *memory.ConversationStore
	classifier *fakeClassifier
	course     *fakeCourseAgent
	schedule   *fakeScheduleAgent
	user       *fakeUserAgent
	chat       *fakeChatAgent
	summarize  *fakeSummarizeAgent
	courses    *fakeCourseDirectory
	users      *fakeUserDirectory
}

func newFixture(label string) *routerFixture {
	logger := log.New(io.Discard, "", 0)
	store := memory.NewConversationStore(nil, logger)

	f := &routerFixture{
		store:      store,
		classifier: &fakeClassifier{label: label},
		course:     &fakeCourseAgent{suggestions: "You can ask me to summarize or create a course from this PDF."},
		schedule:   &fakeScheduleAgent{},
		user:       &fakeUserAgent{},
		chat:       &fakeChatAgent{reply: "hello there"},
		summarize:  &fakeSummarizeAgent{summary: "a summary"},
		courses:    &fakeCourseDirectory{courses: map[string]map[string]any{}},
		users:      &fakeUserDirectory{},
	}

	f.router = NewRouter(Collaborators{
		Classifier: f.classifier,
		Course:     f.course,
		Schedule:   f.schedule,
		User:       f.user,
		Chat:       f.chat,
		Summarize:  f.summarize,
		Quiz:       &fakeQuizAgent{quiz: "a quiz"},
		Courses:    f.courses,
		Users:      f.users,
		Calendar:   &fakeCalendar{},
		Extractor:  &fakeExtractor{text: "extracted"},
	}, store, memory.NewAgentMemory("system", store, logger), logger)
	return f
}

func newState(message, role string) *GraphState {
	return &GraphState{
		Messages:  []memory.Message{{Role: memory.RoleUser, Content: message}},
		UserRole:  role,
		UserID:    "user-1",
		SessionID: "conv-1",
	}
}

func TestStudentCannotDeleteCourse(t *testing.T) {
	f := newFixture("course")
	f.course.detectOp = Operation{Kind: OpDeleteCourse, Parameters: map[string]any{"course_id": "5"}}

	state := newState("delete course 5", "student")
	f.router.Run(context.Background(), state)

	require.Empty(t, state.Error)
	require.Len(t, state.Results, 1)
	assert.Equal(t, "You are not allowed to modify courses.", state.Results[0].Response)
	assert.False(t, f.courses.deleteCalled, "delete must never reach the directory for a student")
}

func TestUnknownLabelFallsBackToChat(t *testing.T) {
	f := newFixture("nonsense_label")

	state := newState("tell me something", "student")
	f.router.Detect(context.Background(), state)

	require.Len(t, state.Detected, 1)
	assert.Equal(t, OpChat, state.Detected[0].Kind)
	assert.Equal(t, "tell me something", state.Detected[0].Parameters["input"])
}

func TestScheduleSessionValidationGate(t *testing.T) {
	f := newFixture("schedule_session")
	f.schedule.op = Operation{Kind: OpScheduleSession, Parameters: map[string]any{
		"course_id":  float64(3),
		"start_time": "2026-08-30T10:00:00Z",
		"end_time":   "2026-08-30T12:00:00Z",
	}}

	state := newState("schedule a session tomorrow", "instructor")
	f.router.Run(context.Background(), state)

	require.Empty(t, state.Error)
	require.Len(t, state.Results, 1)
	res := state.Results[0]
	assert.True(t, res.ValidationRequired)
	assert.Equal(t, OpScheduleSession, res.Operation)
	require.NotNil(t, res.Data["session_data"])

	// The drafted result is still persisted as part of the exchange.
	exchanges := f.store.Recent(context.Background(), "user-1", "conv-1", 10)
	require.Len(t, exchanges, 1)
	assert.Equal(t, "exchange", exchanges[0].Meta["stage"])
	assert.Equal(t, "instructor", exchanges[0].Meta["user_role"])

	foundUser := false
	for _, m := range exchanges[0].Messages {
		if m.Role == memory.RoleUser {
			foundUser = true
			assert.Equal(t, "schedule a session tomorrow", m.Content)
		}
	}
	assert.True(t, foundUser)
}

func TestScheduleSessionRejectsInvertedDates(t *testing.T) {
	f := newFixture("schedule_session")
	f.schedule.op = Operation{Kind: OpScheduleSession, Parameters: map[string]any{
		"start_time": "2026-08-30T12:00:00Z",
		"end_time":   "2026-08-30T10:00:00Z",
	}}

	state := newState("schedule a session", "professor")
	f.router.Run(context.Background(), state)

	assert.NotEmpty(t, state.Error)
	assert.Empty(t, state.Results)
	assert.Empty(t, f.store.Recent(context.Background(), "user-1", "conv-1", 10),
		"a halted turn must not persist an exchange")
}

func TestScheduleSessionDeniedForStudents(t *testing.T) {
	f := newFixture("schedule_session")

	state := newState("schedule a session tomorrow", "student")
	f.router.Run(context.Background(), state)

	require.Len(t, state.Results, 1)
	assert.Equal(t, "Only instructors can schedule a live session.", state.Results[0].Response)
}

func TestAttachmentWithoutMessageSuggests(t *testing.T) {
	f := newFixture("chat")

	state := newState("", "instructor")
	state.Attachment = []byte("%PDF-1.4 fake")
	f.router.Run(context.Background(), state)

	assert.Zero(t, f.classifier.calls, "suggestion short-circuit must skip the classifier")
	require.Len(t, state.Results, 1)
	assert.Equal(t, f.course.suggestions, state.Results[0].Response)
}

func TestProcessPDFRequiresPrivilegedRole(t *testing.T) {
	f := newFixture("process_pdf")

	state := newState("import this file", "student")
	state.Attachment = []byte("%PDF-1.4 fake")
	f.router.Run(context.Background(), state)

	require.Len(t, state.Results, 1)
	assert.Equal(t, "You are not allowed to import a PDF.", state.Results[0].Response)
}

func TestProcessPDFDraftsCourseCreation(t *testing.T) {
	f := newFixture("process_pdf")
	f.course.processResult = map[string]any{"title": "Algebra 101", "chapters": []any{}}

	state := newState("import this file", "instructor")
	state.Attachment = []byte("%PDF-1.4 fake")
	f.router.Run(context.Background(), state)

	require.Empty(t, state.Error)
	require.Len(t, state.Results, 1)
	res := state.Results[0]
	assert.True(t, res.ValidationRequired)
	assert.Equal(t, OpCreateCourse, res.Operation)
	courseData, ok := res.Data["course_data"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "instructor", courseData["user_role"])
}

func TestOwnershipDeniesForeignCourse(t *testing.T) {
	f := newFixture("course")
	f.course.detectOp = Operation{Kind: OpUpdateCourse, Parameters: map[string]any{"course_id": "9"}}
	f.courses.courses["9"] = map[string]any{"owner_id": "someone-else"}

	state := newState("update course 9", "instructor")
	f.router.Run(context.Background(), state)

	require.Len(t, state.Results, 1)
	assert.Equal(t, "you can only modify your own courses", state.Results[0].Error)
	assert.False(t, f.courses.updateCalled)
}

func TestOwnershipFailOpenForOrphanedCourse(t *testing.T) {
	f := newFixture("course")
	f.course.detectOp = Operation{Kind: OpUpdateCourse, Parameters: map[string]any{"course_id": "9"}}
	f.courses.courses["9"] = map[string]any{"title": "orphan"}

	state := newState("update course 9", "instructor")
	f.router.Run(context.Background(), state)

	require.Empty(t, state.Error)
	assert.True(t, f.courses.updateCalled, "a course with no resolvable owner is treated as permitted")
}

func TestUnknownOperationKindProducesErrorResult(t *testing.T) {
	f := newFixture("user")
	f.user.op = Operation{Kind: "frobnicate", Parameters: map[string]any{}}

	state := newState("do something odd", "instructor")
	f.router.Run(context.Background(), state)

	require.Empty(t, state.Error)
	require.Len(t, state.Results, 1)
	assert.Equal(t, "unknown operation: frobnicate", state.Results[0].Error)

	// The turn still persists its history.
	assert.Len(t, f.store.Recent(context.Background(), "user-1", "conv-1", 10), 1)
}

func TestUserOperationDispatchedByName(t *testing.T) {
	f := newFixture("user")
	f.user.op = Operation{Kind: "get_user_by_id", Parameters: map[string]any{"user_id": "7"}}

	state := newState("show my profile", "student")
	f.router.Run(context.Background(), state)

	require.Empty(t, state.Error)
	assert.Equal(t, "get_user_by_id", f.users.lastOp)
}

func TestChatTurnPersistsExchange(t *testing.T) {
	f := newFixture("chat")
	f.chat.reply = "the capital of France is Paris"

	state := newState("what is the capital of France?", "student")
	f.router.Run(context.Background(), state)

	require.Len(t, state.Results, 1)
	assert.Equal(t, f.chat.reply, state.Results[0].Response)
	assert.Equal(t, "what is the capital of France?", f.chat.lastInput)

	exchanges := f.store.Recent(context.Background(), "user-1", "conv-1", 10)
	require.Len(t, exchanges, 1)
	assert.Equal(t, "student", exchanges[0].Meta["user_role"])
}

func TestSummarizeUsesExtractedAttachmentText(t *testing.T) {
	f := newFixture("summarize")

	state := newState("summarize the document", "student")
	state.Attachment = []byte("%PDF-1.4 fake")
	f.router.Run(context.Background(), state)

	require.Empty(t, state.Error)
	require.Len(t, state.Results, 1)
	assert.Equal(t, "a summary", state.Results[0].Response)
	assert.Equal(t, "extracted", f.summarize.lastText,
		"the attachment must reach the summarizer as extracted text, not raw bytes")
	assert.Equal(t, "summarize the document", f.summarize.lastMessage)
}

func TestStringParamCoercion(t *testing.T) {
	params := map[string]any{
		"text":  "hello",
		"count": float64(3),
		"flag":  true,
		"nilly": nil,
	}

	cases := []struct {
		key  string
		want string
	}{
		{"text", "hello"},
		{"count", "3"},
		{"flag", "true"},
		{"nilly", ""},
		{"missing", ""},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, stringParam(params, tc.key), "key %q", tc.key)
	}
}
