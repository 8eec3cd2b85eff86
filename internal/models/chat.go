package models

import (
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a chat message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// ChatMessage represents one entry of a chat transcript
type ChatMessage struct {
	ID        string           `json:"id"`
	Role      Role             `json:"role" binding:"oneof=user assistant"`
	Content   string           `json:"content"`
	CreatedAt time.Time        `json:"createdAt"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// MessageMetadata carries attachment details for messages produced by file analysis
type MessageMetadata struct {
	FileName string `json:"fileName,omitempty"`
	FileType string `json:"fileType,omitempty"`
}

// NewChatMessage creates a message with a fresh id
func NewChatMessage(role Role, content string, createdAt time.Time) ChatMessage {
	return ChatMessage{
		ID:        uuid.NewString(),
		Role:      role,
		Content:   content,
		CreatedAt: createdAt,
	}
}
