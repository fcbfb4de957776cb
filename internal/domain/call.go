package domain

import (
	"time"

	"github.com/google/uuid"
)

// CallSession существует только в памяти шлюза: не более одной на группу
type CallSession struct {
	GroupID   uuid.UUID `json:"group_id"`
	Type      string    `json:"type"`
	StartedBy uuid.UUID `json:"started_by"`
	StartedAt time.Time `json:"started_at"`
}

type CallParticipant struct {
	UserID       uuid.UUID `json:"user_id"`
	ConnectionID uuid.UUID `json:"connection_id"`
	DisplayName  string    `json:"display_name"`
	JoinedAt     time.Time `json:"joined_at"`
}

const (
	CallTypeAudio = "audio"
	CallTypeVideo = "video"
)

func IsValidCallType(t string) bool {
	return t == CallTypeAudio || t == CallTypeVideo
}
