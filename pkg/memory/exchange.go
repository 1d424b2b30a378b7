package memory

import (
	"sort"
	"time"
)

// Message roles mirror the wire format used by the LLM providers.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const (
	// MaxAssistantChars caps the assistant text persisted per exchange.
	MaxAssistantChars = 800
	// MaxContextChars bounds both stored system messages and the
	// reconstructed prompt context.
	MaxContextChars = 3000
)

// timestampLayout keeps fixed-width fractional seconds so that string
// comparison of timestamps matches chronological order.
const timestampLayout = "2006-01-02T15:04:05.000000Z07:00"

// Message is one role-tagged piece of an exchange.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Exchange is one persisted user/assistant turn with metadata.
type Exchange struct {
	SubjectID string                 `json:"user_id"`
	SessionID string                 `json:"conversation_id"`
	Messages  []Message              `json:"messages"`
	Timestamp string                 `json:"timestamp"`
	Seq       int64                  `json:"seq,omitempty"`
	Meta      map[string]interface{} `json:"meta,omitempty"`
}

// FormatTimestamp renders t in the stored timestamp layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}

// sortNewestFirst orders exchanges by timestamp descending, ties broken by
// insertion order (higher sequence first).
func sortNewestFirst(exchanges []Exchange) {
	sort.SliceStable(exchanges, func(i, j int) bool {
		if exchanges[i].Timestamp != exchanges[j].Timestamp {
			return exchanges[i].Timestamp > exchanges[j].Timestamp
		}
		return exchanges[i].Seq > exchanges[j].Seq
	})
}

// Truncate clips s to at most n characters.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

// ReconstructMessages expands exchanges into role-tagged messages for a
// prompt context, walking newest-first and stopping once the running
// character budget is exceeded. The cut is exchange-granular: the exchange
// that crosses the budget is still included whole, and no exchange is ever
// split across the cut. A non-positive maxChars uses MaxContextChars.
func ReconstructMessages(exchanges []Exchange, maxChars int) []Message {
	if maxChars <= 0 {
		maxChars = MaxContextChars
	}

	ordered := make([]Exchange, len(exchanges))
	copy(ordered, exchanges)
	sortNewestFirst(ordered)

	var out []Message
	total := 0
	for _, ex := range ordered {
		for _, msg := range ex.Messages {
			if msg.Content == "" {
				continue
			}
			out = append(out, msg)
			total += len(msg.Content)
		}
		if total >= maxChars {
			break
		}
	}
	return out
}
