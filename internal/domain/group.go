package domain

import (
	"time"

	"github.com/google/uuid"
)

// Group хранится во внешнем CRUD-сервисе; шлюзу нужны только
// идентификация и состав участников для авторизации и fan-out
type Group struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	OwnerID     uuid.UUID `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
}

type GroupMember struct {
	GroupID  uuid.UUID `json:"group_id"`
	UserID   uuid.UUID `json:"user_id"`
	Role     string    `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

const (
	GroupRoleOwner  = "owner"
	GroupRoleMember = "member"
)
