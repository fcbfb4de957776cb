package domain

import (
	"time"

	"github.com/google/uuid"
)

// NotificationIntent — эфемерная запись для офлайн-участника;
// ядро её не хранит, только передаёт во внешнее хранилище уведомлений
type NotificationIntent struct {
	ID           uuid.UUID `json:"id"`
	TargetUserID uuid.UUID `json:"target_user_id"`
	GroupID      uuid.UUID `json:"group_id"`
	MessageID    uuid.UUID `json:"message_id"`
	SenderName   string    `json:"sender_name"`
	Preview      string    `json:"preview"`
	CreatedAt    time.Time `json:"created_at"`
}

// NotificationPreviewLimit ограничивает длину превью в рунах
const NotificationPreviewLimit = 120

func TruncatePreview(content string) string {
	runes := []rune(content)
	if len(runes) <= NotificationPreviewLimit {
		return content
	}
	return string(runes[:NotificationPreviewLimit-1]) + "…"
}
