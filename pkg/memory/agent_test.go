package memory

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentMemorySaveTagsExchange(t *testing.T) {
	store := NewConversationStore(nil, testLogger())
	agent := NewAgentMemory("summarize", store, testLogger())

	ok := agent.Save(context.Background(), "user-1", "conv-1", "summarize this", "a summary", nil)
	require.True(t, ok)

	exchanges := store.Recent(context.Background(), "user-1", "conv-1", 5)
	require.Len(t, exchanges, 1)
	assert.Equal(t, "summarize", exchanges[0].Meta[metaAgentType])
	assert.Equal(t, true, exchanges[0].Meta[metaAgentMemory])
}

func TestAgentMemorySaveRejectsEmptyResponse(t *testing.T) {
	store := NewConversationStore(nil, testLogger())
	agent := NewAgentMemory("qa", store, testLogger())

	assert.False(t, agent.Save(context.Background(), "user-1", "conv-1", "question", "", nil))
	assert.False(t, agent.Save(context.Background(), "", "conv-1", "question", "answer", nil))
}

func TestAgentMemoryRecentFiltersOtherAgents(t *testing.T) {
	store := NewConversationStore(nil, testLogger())
	summarize := NewAgentMemory("summarize", store, testLogger())
	quiz := NewAgentMemory("quiz", store, testLogger())

	require.True(t, summarize.Save(context.Background(), "user-1", "conv-1", "q1", "r1", nil))
	require.True(t, quiz.Save(context.Background(), "user-1", "conv-1", "q2", "r2", nil))

	// Plain exchanges without agent tags never leak into the view.
	require.True(t, store.Save(context.Background(), SavePayload{
		SubjectID: "user-1",
		SessionID: "conv-1",
		UserText:  "plain chat",
		Meta:      map[string]interface{}{"stage": "exchange"},
	}))

	// Bypass the advisory cache to exercise the store filter.
	quiz.ClearCache()
	records := quiz.Recent(context.Background(), "user-1", "conv-1", 5)
	require.Len(t, records, 1)
	assert.Equal(t, "q2", records[0].Query)
	assert.Equal(t, "r2", records[0].Response)
}

func TestAgentMemoryRecentUsesWriteThroughCache(t *testing.T) {
	// The remote index rejects reads: only the advisory cache can answer.
	idx := &fakeIndex{failScan: true}
	store := NewConversationStore(idx, testLogger())
	agent := NewAgentMemory("qa", store, testLogger())

	require.True(t, agent.Save(context.Background(), "user-1", "conv-1", "question", "answer", nil))

	records := agent.Recent(context.Background(), "user-1", "conv-1", 5)
	require.Len(t, records, 1)
	assert.Equal(t, "answer", records[0].Response)
}

func TestAgentMemoryLastRecord(t *testing.T) {
	store := NewConversationStore(nil, testLogger())
	agent := NewAgentMemory("qa", store, testLogger())

	assert.Nil(t, agent.LastRecord(context.Background(), "user-1", "conv-1"))

	require.True(t, agent.Save(context.Background(), "user-1", "conv-1", "first", "one", nil))
	require.True(t, agent.Save(context.Background(), "user-1", "conv-1", "second", "two", nil))

	last := agent.LastRecord(context.Background(), "user-1", "conv-1")
	require.NotNil(t, last)
	assert.Equal(t, "second", last.Query)
}

func TestDerivePreferenceDefaults(t *testing.T) {
	pref := derivePreference(nil)
	assert.Equal(t, "default", pref.FormatPreference)
	assert.Equal(t, "medium", pref.DetailLevel)
	assert.Empty(t, pref.TopicsOfInterest)
	assert.Empty(t, pref.InteractionHistory)
}

func TestDerivePreferenceAnalysis(t *testing.T) {
	records := []AgentRecord{
		{Query: "q1", Response: "• point one\n• point two", Meta: map[string]interface{}{"topics": []string{"go", "testing"}}},
		{Query: "q2", Response: "- item a\n- item b", Meta: map[string]interface{}{"topics": []string{"go"}}},
		{Query: "q3", Response: strings.Repeat("detailed prose without lists ", 30), Meta: map[string]interface{}{"topics": []string{"go", "sql"}}},
	}

	pref := derivePreference(records)
	assert.Equal(t, "bullet", pref.FormatPreference)
	assert.Equal(t, "low", pref.DetailLevel)

	require.NotEmpty(t, pref.TopicsOfInterest)
	assert.Equal(t, TopicCount{Topic: "go", Count: 3}, pref.TopicsOfInterest[0])
	assert.LessOrEqual(t, len(pref.TopicsOfInterest), 3)

	require.Len(t, pref.InteractionHistory, 3)
	assert.LessOrEqual(t, len(pref.InteractionHistory[2].ResponseSummary), 103)
}

func TestDerivePreferenceDeterministic(t *testing.T) {
	records := []AgentRecord{
		{Query: "q", Response: "r", Meta: map[string]interface{}{"topics": []string{"a", "b"}}},
		{Query: "q", Response: "r", Meta: map[string]interface{}{"topics": []string{"b", "a"}}},
	}

	first := derivePreference(records)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, derivePreference(records))
	}
}
