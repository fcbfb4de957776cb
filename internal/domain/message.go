package domain

import (
	"time"

	"github.com/google/uuid"
)

type Message struct {
	ID           uuid.UUID  `json:"id"`
	GroupID      uuid.UUID  `json:"group_id"`
	SenderID     uuid.UUID  `json:"sender_id"`
	SenderName   string     `json:"sender_name"`
	SenderAvatar *string    `json:"sender_avatar,omitempty"`
	Content      string     `json:"content"`
	Type         string     `json:"type"`
	ReplyToID    *uuid.UUID `json:"reply_to_id,omitempty"`
	ReplyPreview *string    `json:"reply_preview,omitempty"`
	FileURL      *string    `json:"file_url,omitempty"`
	FileName     *string    `json:"file_name,omitempty"`
	FileSize     *int64     `json:"file_size,omitempty"`
	IsEdited     bool       `json:"is_edited"`
	IsDeleted    bool       `json:"is_deleted"`
	CreatedAt    time.Time  `json:"created_at"`
}

type FileMeta struct {
	URL  string `json:"url"`
	Name string `json:"name"`
	Size int64  `json:"size"`
}

const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeVideo = "video"
	MessageTypeAudio = "audio"
	MessageTypeFile  = "file"
)

// DeletedMessagePlaceholder подставляется вместо содержимого при soft delete;
// строки никогда не удаляются физически, чтобы не рвать reply-цепочки
const DeletedMessagePlaceholder = "This message was deleted"

func IsValidMessageType(t string) bool {
	switch t {
	case MessageTypeText, MessageTypeImage, MessageTypeVideo, MessageTypeAudio, MessageTypeFile:
		return true
	}
	return false
}
