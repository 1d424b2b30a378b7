package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"ai-elearning-be/internal/dto"
	"ai-elearning-be/internal/pkg/logger"
	"ai-elearning-be/internal/websocket"
	"ai-elearning-be/pkg/cache"
	"ai-elearning-be/pkg/directory"
	"ai-elearning-be/pkg/events"
	"ai-elearning-be/pkg/memory"
	"ai-elearning-be/pkg/nats"
	"ai-elearning-be/pkg/router"
	"ai-elearning-be/pkg/semantic"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
)

type IChatService interface {
	SendChat(ctx context.Context, userID, role, conversationID, msg string, attachment []byte) (*dto.ChatResponse, error)
	ValidateCommit(ctx context.Context, userID string, req *dto.ValidateCommitRequest) (*dto.ValidateCommitResponse, error)
	GetHistory(ctx context.Context, userID, conversationID string, limit int) ([]dto.HistoryItemResponse, error)
	GetSuggestions(role string) string
}

type chatService struct {
	router    *router.Router
	course    router.CourseAgent
	store     *memory.ConversationStore
	documents *cache.DocumentCache
	docIndex  *semantic.DocumentIndex
	exchanges *semantic.Index
	dir       *directory.Client
	pubSub    *gochannel.GoChannel
	topicName string
	publisher *nats.Publisher
	hub       *websocket.Hub
	log       logger.ILogger
}

func NewChatService(
	rt *router.Router,
	course router.CourseAgent,
	store *memory.ConversationStore,
	documents *cache.DocumentCache,
	docIndex *semantic.DocumentIndex,
	exchanges *semantic.Index,
	dir *directory.Client,
	pubSub *gochannel.GoChannel,
	topicName string,
	publisher *nats.Publisher,
	hub *websocket.Hub,
	log logger.ILogger,
) IChatService {
	return &chatService{
		router:    rt,
		course:    course,
		store:     store,
		documents: documents,
		docIndex:  docIndex,
		exchanges: exchanges,
		dir:       dir,
		pubSub:    pubSub,
		topicName: topicName,
		publisher: publisher,
		hub:       hub,
		log:       log,
	}
}

// SendChat runs one conversational turn through the router and maps the
// outcome into the response envelope.
func (s *chatService) SendChat(ctx context.Context, userID, role, conversationID, msg string, attachment []byte) (*dto.ChatResponse, error) {
	if conversationID == "" {
		conversationID = uuid.New().String()
	}

	cachedKey := cache.Key(userID, conversationID)
	if len(attachment) > 0 {
		// Cache the raw document so a later summarize turn can reuse it
		// without a re-upload. A bare upload stays pending until an
		// instruction arrives for it.
		s.documents.Store(userID, conversationID, attachment, msg == "")
		if s.hub != nil {
			s.hub.SendProgress(userID, "document_received", 20)
		}
	} else if cached, _, key := s.documents.Retrieve(userID, conversationID); len(cached) > 0 {
		// An attachment-less turn still targets the document cached by an
		// earlier upload in this conversation.
		attachment = cached
		cachedKey = key
	}

	state := &router.GraphState{
		Messages:   []memory.Message{{Role: memory.RoleUser, Content: msg}},
		Attachment: attachment,
		UserRole:   role,
		UserID:     userID,
		SessionID:  conversationID,
		RAGContext: s.retrieveContext(ctx, userID, msg),
	}

	state = s.router.Run(ctx, state)

	if state.Error == "" && len(state.Detected) > 0 && state.Detected[0].Kind == router.OpProcessPDF {
		s.documents.UpdateStatus(cachedKey, false)
	}

	res := &dto.ChatResponse{
		ConversationId: conversationID,
		Error:          state.Error,
	}

	var replies []string
	for _, r := range state.Results {
		res.Operations = append(res.Operations, dto.OperationResultDTO{
			Operation:          r.Operation,
			Response:           r.Response,
			Error:              r.Error,
			ValidationRequired: r.ValidationRequired,
			Data:               r.Data,
		})
		if r.Response != nil {
			replies = append(replies, fmt.Sprintf("%v", r.Response))
		}
	}
	res.Reply = strings.Join(replies, "\n")

	if state.Error == "" && len(state.Results) > 0 && s.publisher != nil {
		if err := s.publisher.Publish(ctx, events.NewExchangeSaved(userID, conversationID, "")); err != nil {
			s.log.Warn("ChatService", "Failed to publish exchange event", map[string]interface{}{"error": err.Error()})
		}
	}

	return res, nil
}

// ValidateCommit executes a drafted operation the user has confirmed.
func (s *chatService) ValidateCommit(ctx context.Context, userID string, req *dto.ValidateCommitRequest) (*dto.ValidateCommitResponse, error) {
	switch req.Operation {
	case "create_course":
		result, err := s.dir.CreateCourse(ctx, req.Data)
		if err != nil {
			return nil, fmt.Errorf("create course: %w", err)
		}
		s.enqueueCourseIndexing(userID, req.Data)
		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, events.NewCourseDrafted(userID, req.Data)); err != nil {
				s.log.Warn("ChatService", "Failed to publish course event", map[string]interface{}{"error": err.Error()})
			}
		}
		return &dto.ValidateCommitResponse{Operation: req.Operation, Result: result}, nil

	case "schedule_session":
		result, err := s.dir.CreateSession(ctx, req.Data)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		if s.publisher != nil {
			if err := s.publisher.Publish(ctx, events.NewSessionScheduled(userID, req.Data)); err != nil {
				s.log.Warn("ChatService", "Failed to publish session event", map[string]interface{}{"error": err.Error()})
			}
		}
		return &dto.ValidateCommitResponse{Operation: req.Operation, Result: result}, nil

	default:
		return nil, fmt.Errorf("operation %q does not support validation commits", req.Operation)
	}
}

func (s *chatService) GetHistory(ctx context.Context, userID, conversationID string, limit int) ([]dto.HistoryItemResponse, error) {
	if limit <= 0 {
		limit = 20
	}

	exchanges := s.store.Recent(ctx, userID, conversationID, limit)

	var out []dto.HistoryItemResponse
	for _, ex := range exchanges {
		for _, m := range ex.Messages {
			if m.Role == memory.RoleSystem {
				continue
			}
			out = append(out, dto.HistoryItemResponse{
				Role:      m.Role,
				Content:   m.Content,
				Stamp:     ex.Timestamp,
				SessionId: ex.SessionID,
			})
		}
	}
	return out, nil
}

// GetSuggestions returns the role-tailored list of things the assistant
// can do with an uploaded document.
func (s *chatService) GetSuggestions(role string) string {
	return s.course.PDFSuggestions(role)
}

// retrieveContext pulls the closest course chunks and the user's most
// similar past exchanges for the message so the detection and answering
// prompts see relevant material.
func (s *chatService) retrieveContext(ctx context.Context, userID, msg string) string {
	if strings.TrimSpace(msg) == "" {
		return ""
	}

	var parts []string

	if s.docIndex != nil {
		chunks, err := s.docIndex.Search(ctx, msg, 3)
		if err != nil {
			s.log.Warn("ChatService", "Course context retrieval failed", map[string]interface{}{"error": err.Error()})
		}
		for _, chunk := range chunks {
			parts = append(parts, fmt.Sprintf("[%s] %s", chunk.Title, chunk.Content))
		}
	}

	if s.exchanges != nil {
		scored, err := s.exchanges.Search(ctx, userID, msg, 3)
		if err != nil {
			s.log.Warn("ChatService", "Exchange context retrieval failed", map[string]interface{}{"error": err.Error()})
		}
		for _, hit := range scored {
			for _, m := range hit.Exchange.Messages {
				if m.Role == memory.RoleSystem {
					continue
				}
				parts = append(parts, fmt.Sprintf("[%s] %s", m.Role, m.Content))
			}
		}
	}

	if len(parts) == 0 {
		return ""
	}
	return memory.Truncate(strings.Join(parts, "\n\n"), memory.MaxContextChars)
}

func (s *chatService) enqueueCourseIndexing(userID string, course map[string]interface{}) {
	if s.pubSub == nil {
		return
	}

	title, _ := course["title"].(string)
	content := courseText(course)
	if content == "" {
		return
	}

	courseID, _ := course["course_id"].(string)
	if courseID == "" {
		courseID = uuid.New().String()
	}

	payload, err := json.Marshal(dto.PublishIndexCourseMessage{
		CourseId: courseID,
		Title:    title,
		Content:  content,
		UserId:   userID,
	})
	if err != nil {
		return
	}

	if err := s.pubSub.Publish(s.topicName, message.NewMessage(watermill.NewUUID(), payload)); err != nil {
		s.log.Warn("ChatService", "Failed to enqueue course indexing", map[string]interface{}{"error": err.Error()})
	}
}

// courseText flattens a course draft (title, description, chapters) into
// one indexable document.
func courseText(course map[string]interface{}) string {
	var b strings.Builder

	if title, ok := course["title"].(string); ok && title != "" {
		b.WriteString(title)
		b.WriteString("\n\n")
	}
	if desc, ok := course["description"].(string); ok && desc != "" {
		b.WriteString(desc)
		b.WriteString("\n\n")
	}

	chapters, _ := course["chapters"].([]interface{})
	for _, ch := range chapters {
		switch v := ch.(type) {
		case string:
			b.WriteString(v)
			b.WriteString("\n")
		case map[string]interface{}:
			if t, ok := v["title"].(string); ok {
				b.WriteString(t)
				b.WriteString("\n")
			}
			if c, ok := v["content"].(string); ok {
				b.WriteString(c)
				b.WriteString("\n")
			}
		}
	}

	return strings.TrimSpace(b.String())
}
