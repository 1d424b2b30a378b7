package semantic

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"ai-elearning-be/pkg/embedding"
	"ai-elearning-be/pkg/utils"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"
)

const (
	// chunkSize keeps each embedded slice well inside the model context.
	chunkSize    = 1500
	chunkOverlap = 200
)

// CourseChunkRecord is one embedded slice of course material.
type CourseChunkRecord struct {
	Id         uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	CourseId   string          `gorm:"type:varchar(64);not null;index"`
	Title      string          `gorm:"type:varchar(255)"`
	ChunkIndex int             `gorm:"not null"`
	Content    string          `gorm:"type:text"`
	Embedding  pgvector.Vector `gorm:"type:vector(768)"`
	CreatedAt  time.Time       `gorm:"autoCreateTime"`
}

func (CourseChunkRecord) TableName() string {
	return "course_chunks"
}

// ScoredChunk pairs a chunk with its similarity to a query.
type ScoredChunk struct {
	CourseId string
	Title    string
	Content  string
	Score    float64
}

// DocumentIndex stores course material as embedded chunks so course
// questions can be answered with retrieved context.
type DocumentIndex struct {
	db       *gorm.DB
	embedder embedding.EmbeddingProvider
	logger   *log.Logger
}

func NewDocumentIndex(db *gorm.DB, embedder embedding.EmbeddingProvider, logger *log.Logger) *DocumentIndex {
	return &DocumentIndex{db: db, embedder: embedder, logger: logger}
}

func (d *DocumentIndex) Migrate() error {
	return d.db.AutoMigrate(&CourseChunkRecord{})
}

// IndexCourse replaces all chunks for a course with freshly embedded ones.
func (d *DocumentIndex) IndexCourse(ctx context.Context, courseID, title, content string) error {
	if d.embedder == nil {
		return fmt.Errorf("no embedder configured")
	}

	chunks := utils.SplitText(content, chunkSize, chunkOverlap)

	records := make([]*CourseChunkRecord, 0, len(chunks))
	for i, chunk := range chunks {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		vec, err := d.embedder.GetEmbedding(ctx, chunk)
		if err != nil {
			return fmt.Errorf("embed chunk %d of course %s: %w", i, courseID, err)
		}
		records = append(records, &CourseChunkRecord{
			Id:         uuid.New(),
			CourseId:   courseID,
			Title:      title,
			ChunkIndex: i,
			Content:    chunk,
			Embedding:  pgvector.NewVector(vec),
		})
	}

	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("course_id = ?", courseID).Delete(&CourseChunkRecord{}).Error; err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}
		return tx.Create(&records).Error
	})
}

// Search returns the topK chunks most similar to the query across all
// courses, cosine ordered.
func (d *DocumentIndex) Search(ctx context.Context, query string, topK int) ([]ScoredChunk, error) {
	if d.embedder == nil {
		return nil, fmt.Errorf("no embedder configured")
	}
	if topK <= 0 {
		topK = 5
	}

	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	vec, err := d.embedder.GetEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	var rows []struct {
		CourseChunkRecord
		Similarity float64
	}
	err = d.db.WithContext(ctx).
		Model(&CourseChunkRecord{}).
		Select("*, 1 - (embedding <=> ?) as similarity", pgvector.NewVector(vec)).
		Order("similarity DESC").
		Limit(topK).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	out := make([]ScoredChunk, 0, len(rows))
	for _, row := range rows {
		out = append(out, ScoredChunk{
			CourseId: row.CourseId,
			Title:    row.Title,
			Content:  row.Content,
			Score:    row.Similarity,
		})
	}
	return out, nil
}
