package agent

import (
	"context"
	"fmt"
	"log"
	"time"

	"ai-elearning-be/pkg/llm"
	"ai-elearning-be/pkg/router"
)

// ScheduleAgent extracts a live-session intent: either creating a new
// session (routed through the validation gate) or querying existing ones
// (routed to the calendar reader).
type ScheduleAgent struct {
	provider llm.LLMProvider
	logger   *log.Logger
	now      func() time.Time
}

var _ router.ScheduleAgent = &ScheduleAgent{}

func NewScheduleAgent(provider llm.LLMProvider, logger *log.Logger) *ScheduleAgent {
	return &ScheduleAgent{provider: provider, logger: logger, now: time.Now}
}

const scheduleDetectPrompt = `You are an intent router for live-session management.
Return ONLY valid minified JSON, no markdown.

Current date: %s

1. If the user wants to CREATE a new live session, return:
{"operation":"create","session":{"course_id":123|null,"room_name":"...","start_time":"YYYY-MM-DDTHH:MM:SSZ","end_time":"YYYY-MM-DDTHH:MM:SSZ"}}

2. If the user wants to CONSULT or QUERY live sessions, return:
{"operation":"query","filters":{"P_INSTRUCTOR_ID":null,"P_ROOM_NAME":null,"P_COURSE_TITLE":null,"P_START_DATE_FROM":null,"P_START_DATE_TO":null,"P_DATE_TYPE":"START","P_ORDER_BY":"ASC","P_LIMIT":null}}

Resolve relative dates ("tomorrow", "next monday") against the current date.

User message: %s`

func (a *ScheduleAgent) DetectOperation(ctx context.Context, input string) (router.Operation, error) {
	prompt := fmt.Sprintf(scheduleDetectPrompt, a.now().UTC().Format(time.RFC3339), input)

	raw, err := a.provider.Generate(ctx, prompt, llm.WithTemperature(0.3))
	if err != nil {
		return router.Operation{}, fmt.Errorf("schedule detection: %w", err)
	}

	obj, ok := parseObject(raw)
	if !ok {
		return router.Operation{}, fmt.Errorf("unparseable schedule detection output")
	}

	switch stringField(obj, "operation") {
	case "create":
		return router.Operation{Kind: router.OpScheduleSession, Parameters: mapField(obj, "session")}, nil
	case "query":
		return router.Operation{Kind: router.OpShowCalendar, Parameters: mapField(obj, "filters")}, nil
	default:
		return router.Operation{}, fmt.Errorf("unknown schedule intent")
	}
}
