package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"ai-elearning-be/pkg/memory"
)

const maxHistory = 10

// Collaborators bundles the external agents and services the router
// dispatches to. Any of them may be nil in tests; the corresponding
// operation then degrades to the chat fallback or an error result.
type Collaborators struct {
	Classifier Classifier
	Course     CourseAgent
	Schedule   ScheduleAgent
	User       UserAgent
	Chat       ChatAgent
	Summarize  SummarizeAgent
	Quiz       QuizAgent
	Courses    CourseDirectory
	Users      UserDirectory
	Calendar   CalendarReader
	Extractor  PDFExtractor
}

// Router is the per-turn state machine. Detect classifies the incoming
// message into exactly one Operation; Execute dispatches it and persists
// the exchange. Two transitions per turn, no loops.
type Router struct {
	c      Collaborators
	store  *memory.ConversationStore
	system *memory.AgentMemory
	logger *log.Logger
}

func NewRouter(c Collaborators, store *memory.ConversationStore, system *memory.AgentMemory, logger *log.Logger) *Router {
	return &Router{
		c:      c,
		store:  store,
		system: system,
		logger: logger,
	}
}

// Run processes one turn start to finish.
func (r *Router) Run(ctx context.Context, state *GraphState) *GraphState {
	r.Detect(ctx, state)
	r.Execute(ctx, state)
	return state
}

// Detect classifies the last user message and maps the label to exactly
// one Operation. Authorization gates rewrite disallowed operations into
// plain response operations rather than failing the turn.
func (r *Router) Detect(ctx context.Context, state *GraphState) {
	last := lastUserMessage(state)
	role := normalizeRole(state.UserRole)
	hasAttachment := len(state.Attachment) > 0

	// Attachment with no message: suggest what to do with it, skip the
	// classifier entirely.
	if hasAttachment && strings.TrimSpace(last) == "" {
		op := responseOp(r.c.Course.PDFSuggestions(role))
		state.Detected = []Operation{op}
		state.Pending = []Operation{op}
		state.History = nil
		return
	}

	histCtx := r.buildHistory(ctx, state)

	memInfo := ""
	if r.system != nil && state.UserID != "" {
		prefs := r.system.Preferences(ctx, state.UserID)
		topics := make([]string, 0, len(prefs.TopicsOfInterest))
		for _, t := range prefs.TopicsOfInterest {
			topics = append(topics, t.Topic)
		}
		memInfo = fmt.Sprintf("User preferences: format=%s, detail=%s, topics=%s\n",
			prefs.FormatPreference, prefs.DetailLevel, strings.Join(topics, ", "))
	}

	intro := strings.TrimSpace(fmt.Sprintf(
		"You are an intelligent assistant.\n%s\n%s\nAvailable knowledge:\n%s",
		memInfo, histCtx, state.RAGContext))
	state.Messages = append(
		[]memory.Message{{Role: memory.RoleSystem, Content: memory.Truncate(intro, memory.MaxContextChars)}},
		state.Messages...)

	label := OpChat
	if strings.TrimSpace(last) != "" && r.c.Classifier != nil {
		label = r.c.Classifier.Classify(ctx, last, role, hasAttachment, histCtx, "")
	}
	r.logger.Printf("[ROUTER] subject=%s label=%s", state.UserID, label)

	op := r.mapLabel(ctx, state, label, last, role, hasAttachment, histCtx)

	// Students never mutate courses, however the operation was produced.
	if role == "student" && isMutatingCourse(op.Kind) {
		op = responseOp("You are not allowed to modify courses.")
	}

	state.Detected = []Operation{op}
	state.Pending = []Operation{op}
}

func (r *Router) mapLabel(ctx context.Context, state *GraphState, label, last, role string, hasAttachment bool, histCtx string) Operation {
	switch label {
	case OpProcessPDF:
		switch {
		case !hasAttachment:
			return responseOp("No PDF attached.")
		case !isPrivileged(role):
			return responseOp("You are not allowed to import a PDF.")
		default:
			return Operation{Kind: OpProcessPDF, Parameters: map[string]any{}}
		}

	case OpSummarize:
		text := last
		if hasAttachment && r.c.Extractor != nil {
			extracted, err := r.c.Extractor.ExtractText(state.Attachment)
			if err != nil {
				r.logger.Printf("[ROUTER] PDF extraction failed: %v", err)
			} else {
				text = extracted
			}
		}
		return Operation{Kind: OpSummarize, Parameters: map[string]any{"text": text, "user_message": last}}

	case OpQA:
		return Operation{Kind: OpQA, Parameters: map[string]any{"question": last}}

	case OpQuiz:
		return Operation{Kind: OpQuiz, Parameters: map[string]any{}}

	case OpShowCalendar:
		return Operation{Kind: OpShowCalendar, Parameters: map[string]any{}}

	case OpScheduleSession:
		if !isPrivileged(role) {
			return responseOp("Only instructors can schedule a live session.")
		}
		op, err := r.c.Schedule.DetectOperation(ctx, last)
		if err != nil {
			r.logger.Printf("[ROUTER] schedule detection failed, falling back to chat: %v", err)
			return chatOp(last, histCtx)
		}
		return op

	case OpGetUserMemories:
		exchanges := r.store.Recent(ctx, state.UserID, "", maxHistory)
		answer, err := r.c.Course.AnswerAboutMemories(ctx, exchanges, last)
		if err != nil {
			r.logger.Printf("[ROUTER] memory answer failed, falling back to chat: %v", err)
			return chatOp(last, histCtx)
		}
		return responseOp(answer)

	case "user":
		op, err := r.c.User.DetectOperation(ctx, last)
		if err != nil {
			r.logger.Printf("[ROUTER] user detection failed, falling back to chat: %v", err)
			return chatOp(last, histCtx)
		}
		return op

	case "course":
		op, err := r.c.Course.DetectOperation(ctx, last, histCtx, state.RAGContext)
		if err != nil {
			r.logger.Printf("[ROUTER] course detection failed, falling back to chat: %v", err)
			return chatOp(last, histCtx)
		}
		return op

	default:
		return chatOp(last, histCtx)
	}
}

// Execute pops the single pending operation and dispatches it. Collaborator
// failures land in state.Error and stop the turn before persistence; denial
// and unknown-operation cases produce Results and still persist.
func (r *Router) Execute(ctx context.Context, state *GraphState) {
	if state.Error != "" || len(state.Pending) == 0 {
		return
	}
	defer func() {
		if rec := recover(); rec != nil {
			state.Error = fmt.Sprintf("dispatch panic: %v", rec)
		}
	}()

	op := state.Pending[0]
	state.Pending = state.Pending[1:]
	params := op.Parameters
	if params == nil {
		params = map[string]any{}
	}
	role := normalizeRole(state.UserRole)

	switch op.Kind {
	case OpShowCalendar:
		sessions, err := r.c.Calendar.QuerySessions(ctx, params)
		if err != nil {
			state.Error = err.Error()
			return
		}
		state.Results = append(state.Results, Result{Data: sessions})

	case OpProcessPDF:
		if len(state.Attachment) == 0 {
			state.Error = "no PDF attached"
			return
		}
		courseData, err := r.c.Course.ProcessPDF(ctx, state.Attachment)
		if err != nil {
			state.Error = err.Error()
			return
		}
		courseData["user_role"] = role
		state.Results = append(state.Results, Result{
			ValidationRequired: true,
			Operation:          OpCreateCourse,
			Data:               map[string]any{"course_data": courseData},
		})

	case OpSummarize:
		summary, err := r.c.Summarize.Summarize(ctx,
			stringParam(params, "text"), stringParam(params, "user_message"),
			state.UserID, state.SessionID)
		if err != nil {
			state.Error = err.Error()
			return
		}
		state.Results = append(state.Results, Result{Response: summary})

	case OpCreateCourse:
		params["owner_id"] = state.UserID
		state.Results = append(state.Results, Result{
			ValidationRequired: true,
			Operation:          OpCreateCourse,
			Data:               map[string]any{"course_data": params},
		})

	case OpUpdateCourse, OpDeleteCourse:
		r.executeCourseMutation(ctx, state, op.Kind, params, role)

	case OpGetCourseByID:
		course, err := r.c.Courses.GetCourseByID(ctx, stringParam(params, "course_id"))
		if err != nil {
			state.Error = err.Error()
			return
		}
		state.Results = append(state.Results, Result{Data: course})

	case OpSearchCourses:
		found, err := r.c.Courses.SearchCourses(ctx, params)
		if err != nil {
			state.Error = err.Error()
			return
		}
		state.Results = append(state.Results, Result{Data: found})

	case OpScheduleSession:
		start := stringParam(params, "start_time")
		end := stringParam(params, "end_time")
		if start == "" || end == "" {
			state.Error = "start_time and end_time are required"
			return
		}
		if start >= end {
			state.Error = "end time must be after start time"
			return
		}
		state.Results = append(state.Results, Result{
			ValidationRequired: true,
			Operation:          OpScheduleSession,
			Data:               map[string]any{"session_data": params},
		})

	case OpQuiz:
		chapters, _ := params["chapters"].([]any)
		quiz, err := r.c.Quiz.GenerateQuiz(ctx, chapters)
		if err != nil {
			state.Error = err.Error()
			return
		}
		state.Results = append(state.Results, Result{Response: quiz})

	case OpChat:
		text, err := r.c.Chat.Chat(ctx, stringParam(params, "input"), stringParam(params, "history"))
		if err != nil {
			state.Error = err.Error()
			return
		}
		state.Results = append(state.Results, Result{Response: text})

	case OpAnswerCourse:
		answer, err := r.c.Course.AnswerCourseQuestion(ctx,
			stringParam(params, "question"), stringParam(params, "course_title"))
		if err != nil {
			state.Error = err.Error()
			return
		}
		state.Results = append(state.Results, Result{Response: answer})

	case OpResponse:
		state.Results = append(state.Results, Result{Response: stringParam(params, "response")})

	default:
		if isUserOperation(op.Kind) {
			res, err := r.c.Users.Invoke(ctx, op.Kind, params)
			if err != nil {
				state.Error = err.Error()
				return
			}
			state.Results = append(state.Results, Result{Data: res})
		} else {
			state.Results = append(state.Results, Result{Error: "unknown operation: " + op.Kind})
		}
	}

	r.persist(ctx, state, role)
}

// executeCourseMutation enforces the ownership check before update/delete.
// A course whose owner cannot be resolved is treated as permitted; orphaned
// records stay editable by any instructor. Policy decision to revisit.
func (r *Router) executeCourseMutation(ctx context.Context, state *GraphState, kind string, params map[string]any, role string) {
	if role == "student" {
		state.Results = append(state.Results, Result{Error: "students are not allowed to modify courses"})
		return
	}

	courseID := stringParam(params, "course_id")
	if courseID == "" {
		state.Results = append(state.Results, Result{Error: "course_id is required"})
		return
	}

	owner := ""
	if wrapped, err := r.c.Courses.GetCourseByID(ctx, courseID); err == nil {
		if course, ok := wrapped["course"].(map[string]any); ok {
			if v, present := course["owner_id"]; present && v != nil {
				owner = fmt.Sprintf("%v", v)
			}
		}
	} else {
		r.logger.Printf("[ROUTER] owner lookup failed for course %s: %v", courseID, err)
	}

	if owner != "" && owner != state.UserID && isPrivileged(role) {
		state.Results = append(state.Results, Result{Error: "you can only modify your own courses"})
		return
	}

	var res map[string]any
	var err error
	switch kind {
	case OpUpdateCourse:
		res, err = r.c.Courses.UpdateCourse(ctx, params)
	default:
		res, err = r.c.Courses.DeleteCourse(ctx, courseID)
	}
	if err != nil {
		state.Error = err.Error()
		return
	}
	state.Results = append(state.Results, Result{Data: res})
}

// persist joins the turn's results into one assistant text and writes the
// exchange. A validation-gated draft is persisted like any other result so
// history shows that a draft was proposed.
func (r *Router) persist(ctx context.Context, state *GraphState, role string) {
	if state.Error != "" || len(state.Results) == 0 {
		return
	}

	parts := make([]string, 0, len(state.Results))
	for _, res := range state.Results {
		if res.Response != nil {
			parts = append(parts, fmt.Sprintf("%v", res.Response))
			continue
		}
		encoded, err := json.Marshal(res)
		if err != nil {
			parts = append(parts, fmt.Sprintf("%+v", res))
			continue
		}
		parts = append(parts, string(encoded))
	}
	assistant := strings.Join(parts, "\n")

	userMsg := lastUserMessage(state)
	if strings.TrimSpace(userMsg) == "" && strings.TrimSpace(assistant) == "" {
		return
	}

	r.store.Save(ctx, memory.SavePayload{
		SubjectID:     state.UserID,
		SessionID:     state.SessionID,
		UserText:      userMsg,
		AssistantText: assistant,
		Meta:          map[string]interface{}{"stage": "exchange", "user_role": role},
	})
}

func (r *Router) buildHistory(ctx context.Context, state *GraphState) string {
	var raw []string
	var b strings.Builder
	for _, exchange := range r.store.Recent(ctx, state.UserID, state.SessionID, maxHistory) {
		for _, m := range exchange.Messages {
			entry := capitalize(m.Role) + ": " + m.Content
			raw = append(raw, entry)
			b.WriteString(entry)
			b.WriteString("\n")
		}
	}
	state.History = raw
	return memory.Truncate(b.String(), memory.MaxContextChars)
}

func lastUserMessage(state *GraphState) string {
	for i := len(state.Messages) - 1; i >= 0; i-- {
		if state.Messages[i].Role == memory.RoleUser {
			return state.Messages[i].Content
		}
	}
	return ""
}

func normalizeRole(role string) string {
	role = strings.ToLower(strings.TrimSpace(role))
	if role == "" {
		return "public"
	}
	return role
}

func isPrivileged(role string) bool {
	return role == "instructor" || role == "professor"
}

func isMutatingCourse(kind string) bool {
	return kind == OpCreateCourse || kind == OpUpdateCourse || kind == OpDeleteCourse
}

func isUserOperation(kind string) bool {
	for _, prefix := range []string{"get_user", "create_user", "update_user", "delete_user"} {
		if strings.HasPrefix(kind, prefix) {
			return true
		}
	}
	return false
}

func responseOp(text string) Operation {
	return Operation{Kind: OpResponse, Parameters: map[string]any{"response": text}}
}

func chatOp(input, history string) Operation {
	return Operation{Kind: OpChat, Parameters: map[string]any{"input": input, "history": history}}
}

// stringParam reads a parameter as a string, rendering non-string values
// and returning "" for absent or nil entries.
func stringParam(params map[string]any, key string) string {
	v, ok := params[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
