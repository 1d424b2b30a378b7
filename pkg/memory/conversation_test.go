package memory

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeIndex is an in-memory Index whose failure modes can be toggled.
type fakeIndex struct {
	failUpsert bool
	failScan   bool
	failBatch  bool
	items      []Exchange
	batchCalls int
}

func (f *fakeIndex) Upsert(_ context.Context, exchange Exchange) error {
	if f.failUpsert {
		return errors.New("connection refused")
	}
	f.items = append(f.items, exchange)
	return nil
}

func (f *fakeIndex) UpsertBatch(_ context.Context, exchanges []Exchange) error {
	f.batchCalls++
	if f.failBatch {
		return errors.New("connection refused")
	}
	f.items = append(f.items, exchanges...)
	return nil
}

func (f *fakeIndex) Recent(_ context.Context, subjectID, sessionID string, limit int) ([]Exchange, error) {
	if f.failScan {
		return nil, errors.New("connection refused")
	}
	var out []Exchange
	for _, ex := range f.items {
		if ex.SubjectID != subjectID {
			continue
		}
		if sessionID != "" && ex.SessionID != sessionID {
			continue
		}
		out = append(out, ex)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestSaveRejectsEmptyExchange(t *testing.T) {
	store := NewConversationStore(nil, testLogger())

	assert.False(t, store.Save(context.Background(), SavePayload{SubjectID: "user-1"}))
	assert.False(t, store.Save(context.Background(), SavePayload{UserText: "hello"}))
	assert.True(t, store.Save(context.Background(), SavePayload{
		SubjectID: "user-1",
		Meta:      map[string]interface{}{"stage": "exchange"},
	}))
}

func TestSaveFallbackTransparency(t *testing.T) {
	idx := &fakeIndex{failUpsert: true}
	store := NewConversationStore(idx, testLogger())

	ok := store.Save(context.Background(), SavePayload{
		SubjectID:     "user-1",
		SessionID:     "conv-1",
		UserText:      "hello",
		AssistantText: "hi there",
	})
	require.True(t, ok, "save must not surface backend failures")

	// The remote is also down for reads; the local tier must answer.
	idx.failScan = true
	recent := store.Recent(context.Background(), "user-1", "conv-1", 5)
	require.Len(t, recent, 1)
	assert.Equal(t, "user-1", recent[0].SubjectID)
	assert.Equal(t, "hello", recent[0].Messages[0].Content)
}

func TestSaveTruncatesAssistantText(t *testing.T) {
	store := NewConversationStore(nil, testLogger())
	long := strings.Repeat("x", MaxAssistantChars+200)

	require.True(t, store.Save(context.Background(), SavePayload{
		SubjectID:     "user-1",
		AssistantText: long,
	}))

	recent := store.Recent(context.Background(), "user-1", "", 1)
	require.Len(t, recent, 1)
	assert.Len(t, recent[0].Messages[0].Content, MaxAssistantChars)
}

func TestRecentRetriesWithoutSessionFilter(t *testing.T) {
	idx := &fakeIndex{}
	store := NewConversationStore(idx, testLogger())

	require.True(t, store.Save(context.Background(), SavePayload{
		SubjectID: "user-1",
		SessionID: "conv-old",
		UserText:  "hello",
	}))

	// The client rotated its conversation id; the subject-only retry
	// must still recover the history.
	recent := store.Recent(context.Background(), "user-1", "conv-new", 5)
	require.Len(t, recent, 1)
	assert.Equal(t, "conv-old", recent[0].SessionID)
}

func TestRecentNewestFirst(t *testing.T) {
	store := NewConversationStore(nil, testLogger())
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	store.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	for i := 0; i < 3; i++ {
		require.True(t, store.Save(context.Background(), SavePayload{
			SubjectID: "user-1",
			SessionID: "conv-1",
			UserText:  fmt.Sprintf("message %d", i),
		}))
	}

	recent := store.Recent(context.Background(), "user-1", "conv-1", 5)
	require.Len(t, recent, 3)
	assert.Equal(t, "message 2", recent[0].Messages[0].Content)
	assert.Equal(t, "message 0", recent[2].Messages[0].Content)
}

func TestReconciliationFlushesBacklog(t *testing.T) {
	idx := &fakeIndex{failUpsert: true}
	store := NewConversationStore(idx, testLogger())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	// Outage: two exchanges land in the local tier.
	for i := 0; i < 2; i++ {
		require.True(t, store.Save(context.Background(), SavePayload{
			SubjectID: "user-1",
			UserText:  fmt.Sprintf("offline %d", i),
		}))
	}
	assert.Equal(t, 2, store.LocalBacklog())

	// Backend recovers; the next successful write past the interval
	// flushes the backlog in one batch.
	idx.failUpsert = false
	now = now.Add(6 * time.Minute)
	require.True(t, store.Save(context.Background(), SavePayload{
		SubjectID: "user-1",
		UserText:  "online again",
	}))

	assert.Equal(t, 0, store.LocalBacklog())
	assert.Equal(t, 1, idx.batchCalls)
	assert.Len(t, idx.items, 3)
}

func TestReconciliationKeepsBacklogOnFailure(t *testing.T) {
	idx := &fakeIndex{failUpsert: true}
	store := NewConversationStore(idx, testLogger())
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.True(t, store.Save(context.Background(), SavePayload{
		SubjectID: "user-1",
		UserText:  "offline",
	}))

	idx.failUpsert = false
	idx.failBatch = true
	now = now.Add(6 * time.Minute)
	require.True(t, store.Save(context.Background(), SavePayload{
		SubjectID: "user-1",
		UserText:  "online",
	}))

	assert.Equal(t, 1, store.LocalBacklog(), "failed flush must leave the local tier intact")
}

func TestReconstructMessagesBudget(t *testing.T) {
	// 10 exchanges of ~1000 chars each: a 3000-char budget must keep a
	// newest-first prefix, never split an exchange, and overflow by at
	// most one exchange.
	var exchanges []Exchange
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 10; i++ {
		exchanges = append(exchanges, Exchange{
			SubjectID: "user-1",
			Timestamp: FormatTimestamp(base.Add(time.Duration(i) * time.Minute)),
			Seq:       int64(i),
			Messages: []Message{
				{Role: RoleUser, Content: strings.Repeat("q", 200)},
				{Role: RoleAssistant, Content: fmt.Sprintf("%d:%s", i, strings.Repeat("a", 798))},
			},
		})
	}

	msgs := ReconstructMessages(exchanges, MaxContextChars)

	total := 0
	for _, m := range msgs {
		total += len(m.Content)
	}
	assert.LessOrEqual(t, total, MaxContextChars+1000)
	assert.Equal(t, 0, len(msgs)%2, "no exchange may be split across the cut")

	// Newest exchange (index 9) comes first.
	require.NotEmpty(t, msgs)
	assert.True(t, strings.HasPrefix(msgs[1].Content, "9:"))
}

func TestReconstructMessagesSkipsEmptyContent(t *testing.T) {
	exchanges := []Exchange{{
		SubjectID: "user-1",
		Timestamp: FormatTimestamp(time.Now()),
		Messages: []Message{
			{Role: RoleUser, Content: ""},
			{Role: RoleAssistant, Content: "answer"},
		},
	}}

	msgs := ReconstructMessages(exchanges, 0)
	require.Len(t, msgs, 1)
	assert.Equal(t, RoleAssistant, msgs[0].Role)
}
