package memory

import (
	"context"
	"log"
	"sync"
	"time"
)

// reconcileInterval is the minimum gap between attempts to flush the local
// tier back to the remote index.
const reconcileInterval = 5 * time.Minute

// SavePayload carries everything needed to persist one exchange.
type SavePayload struct {
	SubjectID     string
	SessionID     string
	UserText      string
	AssistantText string
	SystemText    string
	Meta          map[string]interface{}
}

// ConversationStore is the dual-tier exchange log. Writes go to the remote
// index first; on any failure they land in an in-process per-subject list
// instead, and Save still reports success. Durability is best-effort and a
// backend outage is never surfaced as a user-facing error.
//
// Reconciliation is opportunistic: it runs inline after a successful remote
// write when enough time has passed since the last attempt, never from a
// background loop. A silent outage followed by no further writes therefore
// never flushes the backlog; that behavior is intentional and kept.
type ConversationStore struct {
	mu       sync.Mutex
	index    Index
	local    map[string][]Exchange
	lastSync time.Time
	seq      int64
	logger   *log.Logger
	now      func() time.Time
}

// NewConversationStore builds a store over the given remote index. A nil
// index puts the store into local-only mode.
func NewConversationStore(index Index, logger *log.Logger) *ConversationStore {
	return &ConversationStore{
		index:  index,
		local:  make(map[string][]Exchange),
		logger: logger,
		now:    time.Now,
	}
}

// Save persists one exchange. It returns false only when there is nothing
// to persist (no subject, or no message content and no meta); backend
// failures degrade to the local tier and still report true.
func (s *ConversationStore) Save(ctx context.Context, p SavePayload) bool {
	if p.SubjectID == "" {
		s.logger.Printf("[MEMORY] save rejected: missing subject")
		return false
	}
	if p.UserText == "" && p.AssistantText == "" && p.SystemText == "" && len(p.Meta) == 0 {
		s.logger.Printf("[MEMORY] save rejected: nothing to persist")
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var messages []Message
	if p.SystemText != "" {
		messages = append(messages, Message{Role: RoleSystem, Content: Truncate(p.SystemText, MaxContextChars)})
	}
	if p.UserText != "" {
		messages = append(messages, Message{Role: RoleUser, Content: p.UserText})
	}
	if p.AssistantText != "" {
		messages = append(messages, Message{Role: RoleAssistant, Content: Truncate(p.AssistantText, MaxAssistantChars)})
	}

	s.seq++
	exchange := Exchange{
		SubjectID: p.SubjectID,
		SessionID: p.SessionID,
		Messages:  messages,
		Timestamp: FormatTimestamp(s.now()),
		Seq:       s.seq,
		Meta:      p.Meta,
	}

	if s.index == nil {
		s.local[p.SubjectID] = append(s.local[p.SubjectID], exchange)
		return true
	}

	if err := s.index.Upsert(ctx, exchange); err != nil {
		s.logger.Printf("[MEMORY] remote upsert failed, keeping local: %v", err)
		s.local[p.SubjectID] = append(s.local[p.SubjectID], exchange)
		return true
	}

	s.reconcileLocked(ctx)
	return true
}

// reconcileLocked flushes the local tier to the remote index when the
// reconcile interval has elapsed. On failure the local tier stays intact
// for the next trigger. Caller must hold s.mu.
func (s *ConversationStore) reconcileLocked(ctx context.Context) {
	if s.index == nil || len(s.local) == 0 {
		return
	}
	now := s.now()
	if now.Sub(s.lastSync) < reconcileInterval {
		return
	}
	s.lastSync = now

	var backlog []Exchange
	for _, entries := range s.local {
		backlog = append(backlog, entries...)
	}

	if err := s.index.UpsertBatch(ctx, backlog); err != nil {
		s.logger.Printf("[MEMORY] reconciliation failed, %d exchanges kept local: %v", len(backlog), err)
		return
	}

	s.local = make(map[string][]Exchange)
	s.logger.Printf("[MEMORY] reconciled %d local exchanges to remote", len(backlog))
}

// Recent returns up to limit exchanges for a subject, newest first. The
// remote index is queried with the session filter first; an empty result
// retries with the subject filter alone (recovers conversations whose
// session tag diverged). When the remote is unavailable or both queries
// error, the local tier answers, filtered by subject only. Recent never
// returns an error.
func (s *ConversationStore) Recent(ctx context.Context, subjectID, sessionID string, limit int) []Exchange {
	if limit <= 0 {
		limit = 5
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index == nil {
		return s.localRecentLocked(subjectID, limit)
	}

	exchanges, err := s.index.Recent(ctx, subjectID, sessionID, limit)
	if err == nil && len(exchanges) == 0 && sessionID != "" {
		exchanges, err = s.index.Recent(ctx, subjectID, "", limit)
	}
	if err != nil {
		s.logger.Printf("[MEMORY] remote scan failed, using local tier: %v", err)
		return s.localRecentLocked(subjectID, limit)
	}

	sortNewestFirst(exchanges)
	if len(exchanges) > limit {
		exchanges = exchanges[:limit]
	}
	return exchanges
}

// localRecentLocked answers Recent from the local tier. Caller must hold s.mu.
func (s *ConversationStore) localRecentLocked(subjectID string, limit int) []Exchange {
	entries := s.local[subjectID]
	out := make([]Exchange, len(entries))
	copy(out, entries)
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// LocalBacklog reports how many exchanges are waiting in the local tier.
func (s *ConversationStore) LocalBacklog() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, entries := range s.local {
		n += len(entries)
	}
	return n
}
