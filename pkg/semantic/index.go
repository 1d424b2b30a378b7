package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"ai-elearning-be/pkg/embedding"
	"ai-elearning-be/pkg/memory"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// queryTimeout bounds every round trip to the backend; a timeout is
// handled by callers exactly like a connectivity failure.
const queryTimeout = 10 * time.Second

// EmbeddingDim matches the nomic-embed-text model served by Ollama.
const EmbeddingDim = 768

// ExchangeRecord is the persisted row for one conversation exchange. The
// payload column carries the full exchange as an opaque document; subject,
// session and ordering fields are duplicated as columns for filtering.
type ExchangeRecord struct {
	Id        uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	SubjectId string          `gorm:"type:varchar(64);not null;index"`
	SessionId string          `gorm:"type:varchar(64);index"`
	Payload   datatypes.JSON  `gorm:"type:jsonb"`
	Embedding pgvector.Vector `gorm:"type:vector(768)"`
	Stamp     string          `gorm:"type:varchar(40);index"`
	Seq       int64           `gorm:"index"`
	CreatedAt time.Time       `gorm:"autoCreateTime"`
}

func (ExchangeRecord) TableName() string {
	return "conversation_exchanges"
}

// ScoredExchange pairs an exchange with its similarity score.
type ScoredExchange struct {
	Exchange memory.Exchange
	Score    float64
}

// Index is the pgvector-backed implementation of memory.Index. Exchange
// text is embedded on write so conversation history stays semantically
// searchable; when no embedder is configured (or embedding fails) a zero
// vector is stored and the row still participates in filtered scans.
type Index struct {
	db       *gorm.DB
	embedder embedding.EmbeddingProvider
	logger   *log.Logger
}

var _ memory.Index = &Index{}

// NewIndex creates the index over an existing gorm connection. embedder
// may be nil.
func NewIndex(db *gorm.DB, embedder embedding.EmbeddingProvider, logger *log.Logger) *Index {
	return &Index{db: db, embedder: embedder, logger: logger}
}

// Migrate creates the exchange table. The vector extension must already
// be installed on the target database.
func (i *Index) Migrate() error {
	return i.db.AutoMigrate(&ExchangeRecord{})
}

func (i *Index) Upsert(ctx context.Context, exchange memory.Exchange) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	record, err := i.toRecord(ctx, exchange)
	if err != nil {
		return err
	}
	return i.db.WithContext(ctx).Create(record).Error
}

func (i *Index) UpsertBatch(ctx context.Context, exchanges []memory.Exchange) error {
	if len(exchanges) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	records := make([]*ExchangeRecord, 0, len(exchanges))
	for _, exchange := range exchanges {
		record, err := i.toRecord(ctx, exchange)
		if err != nil {
			return err
		}
		records = append(records, record)
	}
	return i.db.WithContext(ctx).Create(records).Error
}

func (i *Index) Recent(ctx context.Context, subjectID, sessionID string, limit int) ([]memory.Exchange, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	query := i.db.WithContext(ctx).
		Where("subject_id = ?", subjectID).
		Order("stamp DESC").Order("seq DESC").
		Limit(limit)
	if sessionID != "" {
		query = query.Where("session_id = ?", sessionID)
	}

	var records []*ExchangeRecord
	if err := query.Find(&records).Error; err != nil {
		return nil, err
	}

	exchanges := make([]memory.Exchange, 0, len(records))
	for _, record := range records {
		var exchange memory.Exchange
		if err := json.Unmarshal(record.Payload, &exchange); err != nil {
			i.logger.Printf("[SEMANTIC] skipping malformed payload %s: %v", record.Id, err)
			continue
		}
		exchanges = append(exchanges, exchange)
	}
	return exchanges, nil
}

// Search returns the subject's exchanges most similar to the query text,
// cosine-ordered. Used by RAG enrichment, not by the store's read path.
func (i *Index) Search(ctx context.Context, subjectID, query string, topK int) ([]ScoredExchange, error) {
	if i.embedder == nil {
		return nil, fmt.Errorf("semantic search requires an embedding provider")
	}
	if topK <= 0 {
		topK = 5
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	vector, err := i.embedder.GetEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	type row struct {
		ExchangeRecord
		Similarity float64
	}
	var rows []row

	queryVector := pgvector.NewVector(vector)
	err = i.db.WithContext(ctx).
		Table("conversation_exchanges").
		Select("conversation_exchanges.*, 1 - (embedding <=> ?) as similarity", queryVector).
		Where("subject_id = ?", subjectID).
		Order("similarity DESC").
		Limit(topK).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]ScoredExchange, 0, len(rows))
	for _, r := range rows {
		var exchange memory.Exchange
		if err := json.Unmarshal(r.Payload, &exchange); err != nil {
			continue
		}
		out = append(out, ScoredExchange{Exchange: exchange, Score: r.Similarity})
	}
	return out, nil
}

func (i *Index) toRecord(ctx context.Context, exchange memory.Exchange) (*ExchangeRecord, error) {
	payload, err := json.Marshal(exchange)
	if err != nil {
		return nil, fmt.Errorf("marshal exchange: %w", err)
	}

	vector := make([]float32, EmbeddingDim)
	if i.embedder != nil {
		text := ""
		for _, msg := range exchange.Messages {
			text += msg.Content + "\n"
		}
		if embedded, err := i.embedder.GetEmbedding(ctx, text); err != nil {
			i.logger.Printf("[SEMANTIC] embedding failed, storing zero vector: %v", err)
		} else if len(embedded) == EmbeddingDim {
			vector = embedded
		}
	}

	return &ExchangeRecord{
		Id:        uuid.New(),
		SubjectId: exchange.SubjectID,
		SessionId: exchange.SessionID,
		Payload:   datatypes.JSON(payload),
		Embedding: pgvector.NewVector(vector),
		Stamp:     exchange.Timestamp,
		Seq:       exchange.Seq,
	}, nil
}
