package dto

// ChatRequest carries the text part of a chat turn. The PDF attachment, if
// any, arrives as a multipart file alongside it.
type ChatRequest struct {
	Message string `form:"message" json:"message"`
}

type OperationResultDTO struct {
	Operation          string                 `json:"operation,omitempty"`
	Response           interface{}            `json:"response,omitempty"`
	Error              string                 `json:"error,omitempty"`
	ValidationRequired bool                   `json:"validation_required,omitempty"`
	Data               map[string]interface{} `json:"data,omitempty"`
}

type ChatResponse struct {
	ConversationId string               `json:"conversation_id"`
	Reply          string               `json:"reply,omitempty"`
	Operations     []OperationResultDTO `json:"operations,omitempty"`
	Error          string               `json:"error,omitempty"`
}

// ValidateCommitRequest is the confirmation payload for a drafted operation
// that required user validation before touching the directory.
type ValidateCommitRequest struct {
	Operation string                 `json:"operation" validate:"required,oneof=create_course schedule_session"`
	Data      map[string]interface{} `json:"data" validate:"required"`
}

type ValidateCommitResponse struct {
	Operation string                 `json:"operation"`
	Result    map[string]interface{} `json:"result,omitempty"`
}

type HistoryItemResponse struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	Stamp     string `json:"stamp"`
	SessionId string `json:"session_id,omitempty"`
}

type CreateReminderRequest struct {
	UserId       string `json:"user_id" validate:"required"`
	SessionId    string `json:"session_id" validate:"required"`
	ReminderTime string `json:"reminder_time" validate:"required"`
	Email        string `json:"email,omitempty" validate:"omitempty,email"`
	SessionTitle string `json:"session_title,omitempty"`
}

type CreateReminderResponse struct {
	Status    string `json:"status"`
	UserId    string `json:"user_id"`
	SessionId string `json:"session_id"`
}
