package service

import (
	"context"
	"fmt"
	"time"

	"ai-elearning-be/internal/dto"
	"ai-elearning-be/internal/pkg/logger"
	"ai-elearning-be/internal/pkg/mailer"
	"ai-elearning-be/internal/websocket"
	"ai-elearning-be/pkg/directory"
	"ai-elearning-be/pkg/events"
	"ai-elearning-be/pkg/nats"
)

type IReminderService interface {
	CreateReminder(ctx context.Context, req *dto.CreateReminderRequest) (*dto.CreateReminderResponse, error)
	DispatchDue(ctx context.Context) error
}

// reminderService persists session reminders in the directory and fires
// them over the websocket hub, falling back to email when the user has no
// live connection.
type reminderService struct {
	dir       *directory.Client
	hub       *websocket.Hub
	mail      mailer.IEmailService
	publisher *nats.Publisher
	logger    logger.ILogger
}

func NewReminderService(dir *directory.Client, hub *websocket.Hub, mail mailer.IEmailService, publisher *nats.Publisher, log logger.ILogger) IReminderService {
	return &reminderService{
		dir:       dir,
		hub:       hub,
		mail:      mail,
		publisher: publisher,
		logger:    log,
	}
}

func (s *reminderService) CreateReminder(ctx context.Context, req *dto.CreateReminderRequest) (*dto.CreateReminderResponse, error) {
	reminderTime, err := time.Parse(time.RFC3339, req.ReminderTime)
	if err != nil {
		return nil, fmt.Errorf("invalid reminder_time: %w", err)
	}

	payload := map[string]any{
		"user_id":       req.UserId,
		"session_id":    req.SessionId,
		"reminder_time": reminderTime.UTC().Format(time.RFC3339),
		"status":        "active",
	}
	if _, err := s.dir.CreateReminder(ctx, payload); err != nil {
		return nil, fmt.Errorf("persist reminder: %w", err)
	}

	delay := time.Until(reminderTime)
	if delay <= 0 {
		s.fire(req.UserId, req.SessionId, req.SessionTitle, req.Email)
	} else {
		time.AfterFunc(delay, func() {
			s.fire(req.UserId, req.SessionId, req.SessionTitle, req.Email)
		})
	}

	return &dto.CreateReminderResponse{
		Status:    "Reminder scheduled",
		UserId:    req.UserId,
		SessionId: req.SessionId,
	}, nil
}

// DispatchDue scans stored reminders and fires every active one whose time
// has passed. It backs the periodic sweep that catches reminders scheduled
// by other instances or lost to a restart.
func (s *reminderService) DispatchDue(ctx context.Context) error {
	reminders, err := s.dir.ListReminders(ctx)
	if err != nil {
		return fmt.Errorf("list reminders: %w", err)
	}

	now := time.Now().UTC()
	for _, entry := range reminders {
		r, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if status, _ := r["status"].(string); status != "active" {
			continue
		}

		stamp, _ := r["reminder_time"].(string)
		at, err := time.Parse(time.RFC3339, stamp)
		if err != nil || at.After(now) {
			continue
		}

		userID := fmt.Sprintf("%v", r["user_id"])
		sessionID := fmt.Sprintf("%v", r["session_id"])
		s.fire(userID, sessionID, "", "")

		if id, ok := r["id"].(string); ok && id != "" {
			if err := s.dir.UpdateReminderStatus(ctx, id, "sent"); err != nil {
				s.logger.Warn("ReminderService", "Failed to mark reminder sent", map[string]interface{}{"id": id, "error": err.Error()})
			}
		}
	}

	return nil
}

func (s *reminderService) fire(userID, sessionID, sessionTitle, email string) {
	message := fmt.Sprintf("Your session %s is about to start!", sessionID)
	if sessionTitle != "" {
		message = fmt.Sprintf("Your session '%s' is about to start!", sessionTitle)
	}

	if s.publisher != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.publisher.Publish(ctx, events.NewReminderDue(userID, message, sessionID)); err != nil {
			s.logger.Warn("ReminderService", "Failed to publish reminder event", map[string]interface{}{"error": err.Error()})
		}
		cancel()
	}

	if s.hub != nil && s.hub.IsOnline(userID) {
		s.hub.SendReminder(userID, message)
		s.logger.Info("ReminderService", "Reminder delivered over websocket", map[string]interface{}{"user_id": userID, "session_id": sessionID})
		return
	}

	if s.mail != nil && email != "" {
		if err := s.mail.SendSessionReminder(email, sessionTitle, sessionID); err != nil {
			s.logger.Error("ReminderService", "Reminder email failed", map[string]interface{}{"user_id": userID, "error": err.Error()})
		}
		return
	}

	s.logger.Warn("ReminderService", "No delivery channel for reminder", map[string]interface{}{"user_id": userID, "session_id": sessionID})
}
