package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"

	"ai-elearning-be/pkg/llm"
)

// DefaultLabel is the fail-safe category. Any classifier failure, any
// unparseable model output and any out-of-vocabulary label collapse to it.
const DefaultLabel = "chat"

var validLabels = map[string]struct{}{
	"process_pdf":       {},
	"show_calendar":     {},
	"schedule_session":  {},
	"answer_course":     {},
	"get_user_memories": {},
	"user":              {},
	"course":            {},
	"chat":              {},
	"summarize":         {},
	"qa":                {},
	"quiz":              {},
}

var categoryPattern = regexp.MustCompile(`"category"\s*:\s*"([^"]+)"`)

const routingPrompt = `You are an operation router for an e-learning chatbot.
Your only job: read the user message plus context and return EXACTLY one
compact JSON object with a single key: "category".

ALLOWED CATEGORIES
- "process_pdf"       -> create a course, only when a PDF is attached.
- "show_calendar"     -> consult the agenda / calendar.
- "schedule_session"  -> create or query a live session.
- "get_user_memories" -> show the user's conversation history.
- "user"              -> operations on the user account.
- "course"            -> course creation and search.
- "summarize"         -> summary / question / explanation about the PDF.
- "chat"              -> anything else.

CONTEXT PROVIDED
role            = role of the user
pdf_present     = true / false
message         = raw user message
history         = recent conversation history
last_agent_used = agent that answered previously (or null)

EXAMPLES
- message = "Schedule a session tomorrow"    -> {"category":"schedule_session"}
- message = "Summarize the attached content" -> {"category":"summarize"}
- message = "Import this PDF file"           -> {"category":"process_pdf"}
- message = "Create new course about .NET"   -> {"category":"course"}

Pick the category that best matches the INTENT of the message, even when a
PDF is attached. Use last_agent_used for follow-up requests.

OUTPUT RULE
Reply with minified JSON only: {"category":"..."}.
`

// IntentClassifier maps a user message to one label of the closed routing
// vocabulary using an LLM. It never returns an error to its caller.
type IntentClassifier struct {
	provider llm.LLMProvider
	logger   *log.Logger
}

func NewIntentClassifier(provider llm.LLMProvider, logger *log.Logger) *IntentClassifier {
	return &IntentClassifier{provider: provider, logger: logger}
}

func (c *IntentClassifier) Classify(ctx context.Context, message, role string, hasAttachment bool, historyText, lastAgentUsed string) string {
	if strings.TrimSpace(message) == "" {
		return DefaultLabel
	}

	prompt := fmt.Sprintf(`%s
Context:
- role            = %s
- pdf_present     = %t
- message         = """%s"""
- history         = """%s"""
- last_agent_used = %s
`, routingPrompt, role, hasAttachment, strings.TrimSpace(message), strings.TrimSpace(historyText), orNull(lastAgentUsed))

	raw, err := c.provider.Generate(ctx, prompt, llm.WithTemperature(0))
	if err != nil {
		c.logger.Printf("[CLASSIFIER] provider error, defaulting to %s: %v", DefaultLabel, err)
		return DefaultLabel
	}

	label := ParseLabel(raw)
	c.logger.Printf("[CLASSIFIER] message=%q label=%s", truncateLog(message), label)
	return label
}

// ParseLabel extracts a category from raw model output. Markdown fences
// are stripped, a bare JSON string is accepted, and as a last resort the
// category is fished out with a regex. Anything outside the vocabulary
// becomes the default label.
func ParseLabel(raw string) string {
	cleaned := stripFences(raw)

	label := ""
	var asObject map[string]any
	if err := json.Unmarshal([]byte(cleaned), &asObject); err == nil {
		if v, ok := asObject["category"].(string); ok {
			label = v
		}
	} else {
		var asString string
		if err := json.Unmarshal([]byte(cleaned), &asString); err == nil {
			label = asString
		} else if match := categoryPattern.FindStringSubmatch(cleaned); match != nil {
			label = match[1]
		}
	}

	label = strings.TrimSpace(strings.Trim(label, `"`))
	if _, ok := validLabels[label]; !ok {
		return DefaultLabel
	}
	return label
}

func stripFences(raw string) string {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	return strings.TrimSpace(cleaned)
}

func orNull(s string) string {
	if s == "" {
		return "null"
	}
	return s
}

func truncateLog(s string) string {
	if len(s) > 80 {
		return s[:80] + "..."
	}
	return s
}
