package memory

import (
	"context"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// metaAgentType and metaAgentMemory tag exchanges written through an
// AgentMemory so they can be filtered back out of the shared store.
const (
	metaAgentType   = "agent_type"
	metaAgentMemory = "agent_memory"
)

// AgentRecord is one query/response pair written by a specific agent.
type AgentRecord struct {
	AgentType string                 `json:"agent_type"`
	SubjectID string                 `json:"user_id"`
	SessionID string                 `json:"conversation_id"`
	Query     string                 `json:"query"`
	Response  string                 `json:"response"`
	Timestamp string                 `json:"timestamp"`
	Meta      map[string]interface{} `json:"metadata,omitempty"`
}

// TopicCount is one aggregated topic frequency.
type TopicCount struct {
	Topic string `json:"topic"`
	Count int    `json:"count"`
}

// Interaction is one clipped entry of the preference digest.
type Interaction struct {
	Query           string `json:"query"`
	ResponseSummary string `json:"response_summary"`
}

// Preference is the derived view of how a subject likes to be answered.
// It is recomputed per call and never persisted.
type Preference struct {
	FormatPreference   string        `json:"format_preference"`
	DetailLevel        string        `json:"detail_level"`
	TopicsOfInterest   []TopicCount  `json:"topics_of_interest"`
	InteractionHistory []Interaction `json:"interaction_history"`
}

// AgentMemory is a per-agent projection over the shared ConversationStore.
// Every write is tagged with the agent type; reads filter the shared log
// back down to this agent's records. A small write-through cache answers
// Recent immediately after a same-process write without a remote round
// trip. The cache is advisory: dropping it loses no data, the store stays
// the source of truth.
type AgentMemory struct {
	mu        sync.Mutex
	agentType string
	store     *ConversationStore
	cache     *gocache.Cache
	logger    *log.Logger
}

// NewAgentMemory creates a memory view for one agent type.
func NewAgentMemory(agentType string, store *ConversationStore, logger *log.Logger) *AgentMemory {
	return &AgentMemory{
		agentType: agentType,
		store:     store,
		cache:     gocache.New(1*time.Hour, 10*time.Minute),
		logger:    logger,
	}
}

// Save persists one query/response pair through the shared store, tagged
// for this agent, and mirrors it into the advisory cache.
func (a *AgentMemory) Save(ctx context.Context, subjectID, sessionID, query, response string, meta map[string]interface{}) bool {
	if subjectID == "" || response == "" {
		a.logger.Printf("[%s-memory] nothing to save", a.agentType)
		return false
	}

	tagged := map[string]interface{}{
		metaAgentType:   a.agentType,
		metaAgentMemory: true,
	}
	for k, v := range meta {
		tagged[k] = v
	}

	record := AgentRecord{
		AgentType: a.agentType,
		SubjectID: subjectID,
		SessionID: sessionID,
		Query:     query,
		Response:  response,
		Timestamp: FormatTimestamp(time.Now()),
		Meta:      meta,
	}

	cacheKey := subjectID + ":" + sessionID
	a.mu.Lock()
	var records []AgentRecord
	if x, found := a.cache.Get(cacheKey); found {
		records = x.([]AgentRecord)
	}
	a.cache.Set(cacheKey, append(records, record), gocache.DefaultExpiration)
	a.mu.Unlock()

	return a.store.Save(ctx, SavePayload{
		SubjectID:     subjectID,
		SessionID:     sessionID,
		UserText:      query,
		AssistantText: response,
		Meta:          tagged,
	})
}

// Recent returns this agent's latest records for a subject, newest first.
func (a *AgentMemory) Recent(ctx context.Context, subjectID, sessionID string, limit int) []AgentRecord {
	if limit <= 0 {
		limit = 5
	}

	if sessionID != "" {
		if x, found := a.cache.Get(subjectID + ":" + sessionID); found {
			records := x.([]AgentRecord)
			out := make([]AgentRecord, len(records))
			copy(out, records)
			sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
			if len(out) > limit {
				out = out[:limit]
			}
			return out
		}
	}

	// Over-fetch so the agent-type filter still fills the limit.
	exchanges := a.store.Recent(ctx, subjectID, sessionID, limit*2)

	var out []AgentRecord
	for _, ex := range exchanges {
		if ex.Meta == nil {
			continue
		}
		if ex.Meta[metaAgentType] != a.agentType {
			continue
		}
		if tagged, ok := ex.Meta[metaAgentMemory].(bool); !ok || !tagged {
			continue
		}

		record := AgentRecord{
			AgentType: a.agentType,
			SubjectID: ex.SubjectID,
			SessionID: ex.SessionID,
			Timestamp: ex.Timestamp,
		}
		for _, msg := range ex.Messages {
			switch msg.Role {
			case RoleUser:
				if record.Query == "" {
					record.Query = msg.Content
				}
			case RoleAssistant:
				if record.Response == "" {
					record.Response = msg.Content
				}
			}
		}
		out = append(out, record)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp > out[j].Timestamp })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// LastRecord returns the most recent record, or nil when there is none.
func (a *AgentMemory) LastRecord(ctx context.Context, subjectID, sessionID string) *AgentRecord {
	recent := a.Recent(ctx, subjectID, sessionID, 1)
	if len(recent) == 0 {
		return nil
	}
	return &recent[0]
}

// Preferences analyses the subject's last 10 records for this agent and
// derives formatting and topic preferences. Deterministic for the same
// input records.
func (a *AgentMemory) Preferences(ctx context.Context, subjectID string) Preference {
	records := a.Recent(ctx, subjectID, "", 10)
	return derivePreference(records)
}

func derivePreference(records []AgentRecord) Preference {
	pref := Preference{
		FormatPreference:   "default",
		DetailLevel:        "medium",
		TopicsOfInterest:   []TopicCount{},
		InteractionHistory: []Interaction{},
	}
	if len(records) == 0 {
		return pref
	}

	bullet, paragraph := 0, 0
	detailed, concise := 0, 0
	topics := map[string]int{}

	for _, rec := range records {
		if rec.Query != "" && rec.Response != "" {
			summary := rec.Response
			if len(summary) > 100 {
				summary = summary[:100] + "..."
			}
			pref.InteractionHistory = append(pref.InteractionHistory, Interaction{
				Query:           rec.Query,
				ResponseSummary: summary,
			})
		}

		if strings.Contains(rec.Response, "•") || strings.Contains(rec.Response, "-") {
			bullet++
		} else {
			paragraph++
		}
		if len(rec.Response) > 500 {
			detailed++
		} else {
			concise++
		}

		if rec.Meta == nil {
			continue
		}
		switch tagged := rec.Meta["topics"].(type) {
		case []string:
			for _, topic := range tagged {
				topics[topic]++
			}
		case []interface{}:
			for _, topic := range tagged {
				if s, ok := topic.(string); ok {
					topics[s]++
				}
			}
		}
	}

	if bullet > paragraph {
		pref.FormatPreference = "bullet"
	} else {
		pref.FormatPreference = "paragraph"
	}
	if detailed > concise {
		pref.DetailLevel = "high"
	} else {
		pref.DetailLevel = "low"
	}

	counts := make([]TopicCount, 0, len(topics))
	for topic, count := range topics {
		counts = append(counts, TopicCount{Topic: topic, Count: count})
	}
	sort.Slice(counts, func(i, j int) bool {
		if counts[i].Count != counts[j].Count {
			return counts[i].Count > counts[j].Count
		}
		return counts[i].Topic < counts[j].Topic
	})
	if len(counts) > 3 {
		counts = counts[:3]
	}
	pref.TopicsOfInterest = counts

	if len(pref.InteractionHistory) > 5 {
		pref.InteractionHistory = pref.InteractionHistory[:5]
	}
	return pref
}

// ClearCache drops the advisory cache. Safe at any time.
func (a *AgentMemory) ClearCache() {
	a.cache.Flush()
}
