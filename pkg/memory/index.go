package memory

import "context"

// Index is the remote persistent tier behind ConversationStore: a
// vector-indexed store that accepts opaque exchange payloads and answers
// filtered scans. Implementations must bound every call with a timeout;
// the store treats a timeout like any other connectivity failure.
type Index interface {
	// Upsert persists one exchange payload.
	Upsert(ctx context.Context, exchange Exchange) error

	// UpsertBatch persists several exchanges in one round trip. It is
	// used by reconciliation to flush the local tier.
	UpsertBatch(ctx context.Context, exchanges []Exchange) error

	// Recent returns up to limit exchanges for a subject, optionally
	// restricted to one session. Order is unspecified; callers sort.
	Recent(ctx context.Context, subjectID, sessionID string, limit int) ([]Exchange, error)
}
