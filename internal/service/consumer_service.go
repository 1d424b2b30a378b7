package service

import (
	"context"
	"encoding/json"
	"log"

	"ai-elearning-be/internal/dto"
	"ai-elearning-be/internal/websocket"
	"ai-elearning-be/pkg/semantic"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
)

type IConsumerService interface {
	Consume(ctx context.Context) error
}

// consumerService drains the course-indexing queue: each message carries
// the material of one course to chunk, embed and store for retrieval.
type consumerService struct {
	pubSub    *gochannel.GoChannel
	topicName string
	docIndex  *semantic.DocumentIndex
	hub       *websocket.Hub
}

func NewConsumerService(
	pubSub *gochannel.GoChannel,
	topicName string,
	docIndex *semantic.DocumentIndex,
	hub *websocket.Hub,
) IConsumerService {
	return &consumerService{
		pubSub:    pubSub,
		topicName: topicName,
		docIndex:  docIndex,
		hub:       hub,
	}
}

func (cs *consumerService) Consume(ctx context.Context) error {
	messages, err := cs.pubSub.Subscribe(ctx, cs.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			cs.processMessage(ctx, msg)
		}
	}()

	return nil
}

func (cs *consumerService) processMessage(ctx context.Context, msg *message.Message) {
	var payload dto.PublishIndexCourseMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		log.Printf("[ERROR] Failed to unmarshal indexing message: %v", err)
		msg.Ack() // invalid payloads never become valid, do not retry
		return
	}

	log.Printf("[INFO] Indexing course material for CourseId: %s", payload.CourseId)

	if cs.hub != nil && payload.UserId != "" {
		cs.hub.SendProgress(payload.UserId, "indexing", 50)
	}

	if err := cs.docIndex.IndexCourse(ctx, payload.CourseId, payload.Title, payload.Content); err != nil {
		log.Printf("[ERROR] Failed to index course %s: %v", payload.CourseId, err)
		msg.Nack()
		return
	}

	if cs.hub != nil && payload.UserId != "" {
		cs.hub.SendProgress(payload.UserId, "indexed", 100)
	}

	log.Printf("[SUCCESS] Course indexed: %s", payload.CourseId)
	msg.Ack()
}
