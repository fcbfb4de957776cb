package gateway

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"study_space/internal/domain"
)

// Входящие события
const (
	EventJoinGroup         = "join-group"
	EventLeaveGroup        = "leave-group"
	EventSendMessage       = "send-message"
	EventEditMessage       = "edit-message"
	EventDeleteMessage     = "delete-message"
	EventLoadHistory       = "load-history"
	EventSearchMessages    = "search-messages"
	EventTypingStart       = "typing-start"
	EventTypingStop        = "typing-stop"
	EventReadReceipt       = "read-receipt"
	EventStartCall         = "start-call"
	EventJoinCall          = "join-call"
	EventLeaveCall         = "leave-call"
	EventEndCall           = "end-call"
	EventSignal            = "signal"
	EventToggleMedia       = "toggle-media"
	EventToggleScreenShare = "toggle-screen-share"
)

// Исходящие события
const (
	EventJoined             = "joined"
	EventUserJoined         = "user-joined"
	EventUserLeft           = "user-left"
	EventMessageNew         = "message-new"
	EventMessageEdited      = "message-edited"
	EventMessageDeleted     = "message-deleted"
	EventMessagesLoaded     = "messages-loaded"
	EventSearchResults      = "search-results"
	EventTypingStarted      = "typing-started"
	EventTypingStopped      = "typing-stopped"
	EventReadReceiptSeen    = "read-receipt"
	EventCallStarted        = "call-started"
	EventCallPeers          = "call-peers"
	EventCallUserJoined     = "call-user-joined"
	EventCallUserLeft       = "call-user-left"
	EventCallEnded          = "call-ended"
	EventMediaToggled       = "media-toggled"
	EventScreenShareToggled = "screen-share-toggled"
	EventError              = "error"
)

// Frame — кадр протокола в обе стороны
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encodeFrame(event string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: event, Data: raw})
}

type GroupRef struct {
	GroupID uuid.UUID `json:"group_id"`
}

type SendMessagePayload struct {
	GroupID   uuid.UUID        `json:"group_id"`
	Content   string           `json:"content"`
	Type      string           `json:"type"`
	ReplyToID *uuid.UUID       `json:"reply_to_id,omitempty"`
	File      *domain.FileMeta `json:"file,omitempty"`
}

type EditMessagePayload struct {
	MessageID uuid.UUID `json:"message_id"`
	Content   string    `json:"content"`
}

type DeleteMessagePayload struct {
	MessageID uuid.UUID `json:"message_id"`
}

type LoadHistoryPayload struct {
	GroupID uuid.UUID  `json:"group_id"`
	Cursor  *uuid.UUID `json:"cursor,omitempty"`
	Limit   int        `json:"limit"`
}

type SearchMessagesPayload struct {
	GroupID uuid.UUID `json:"group_id"`
	Query   string    `json:"query"`
	Limit   int       `json:"limit"`
}

type ReadReceiptPayload struct {
	GroupID   uuid.UUID `json:"group_id"`
	MessageID uuid.UUID `json:"message_id"`
}

type StartCallPayload struct {
	GroupID uuid.UUID `json:"group_id"`
	Type    string    `json:"type"`
}

type SignalPayload struct {
	GroupID uuid.UUID       `json:"group_id"`
	To      uuid.UUID       `json:"to"`
	Payload json.RawMessage `json:"payload"`
}

type ToggleMediaPayload struct {
	GroupID uuid.UUID `json:"group_id"`
	Kind    string    `json:"kind"`
	Enabled bool      `json:"enabled"`
}

type ToggleScreenSharePayload struct {
	GroupID uuid.UUID `json:"group_id"`
	Enabled bool      `json:"enabled"`
}

type JoinedPayload struct {
	GroupID     uuid.UUID   `json:"group_id"`
	OnlineCount int         `json:"online_count"`
	OnlineUsers []uuid.UUID `json:"online_users"`
}

type PresencePayload struct {
	GroupID     uuid.UUID `json:"group_id"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
	OnlineCount int       `json:"online_count"`
}

type TypingPayload struct {
	GroupID     uuid.UUID `json:"group_id"`
	UserID      uuid.UUID `json:"user_id"`
	DisplayName string    `json:"display_name"`
}

type ReadReceiptSeenPayload struct {
	GroupID   uuid.UUID `json:"group_id"`
	MessageID uuid.UUID `json:"message_id"`
	UserID    uuid.UUID `json:"user_id"`
	ReadAt    time.Time `json:"read_at"`
}

type MessageDeletedPayload struct {
	GroupID   uuid.UUID `json:"group_id"`
	MessageID uuid.UUID `json:"message_id"`
}

type MessagesLoadedPayload struct {
	GroupID    uuid.UUID         `json:"group_id"`
	Messages   []*domain.Message `json:"messages"`
	NextCursor *uuid.UUID        `json:"next_cursor,omitempty"`
	HasMore    bool              `json:"has_more"`
}

type SearchResultsPayload struct {
	GroupID  uuid.UUID         `json:"group_id"`
	Query    string            `json:"query"`
	Messages []*domain.Message `json:"messages"`
}

type CallStartedPayload struct {
	GroupID     uuid.UUID `json:"group_id"`
	Type        string    `json:"type"`
	StartedBy   uuid.UUID `json:"started_by"`
	StartedName string    `json:"started_name"`
	StartedAt   time.Time `json:"started_at"`
}

type CallPeersPayload struct {
	GroupID uuid.UUID                 `json:"group_id"`
	Type    string                    `json:"type"`
	Peers   []*domain.CallParticipant `json:"peers"`
}

type CallPeerPayload struct {
	GroupID      uuid.UUID `json:"group_id"`
	UserID       uuid.UUID `json:"user_id"`
	ConnectionID uuid.UUID `json:"connection_id"`
	DisplayName  string    `json:"display_name"`
}

type CallEndedPayload struct {
	GroupID   uuid.UUID  `json:"group_id"`
	EndedBy   *uuid.UUID `json:"ended_by,omitempty"`
	EndedName string     `json:"ended_name,omitempty"`
}

type SignalForwardPayload struct {
	GroupID          uuid.UUID       `json:"group_id"`
	FromConnectionID uuid.UUID       `json:"from_connection_id"`
	FromUserID       uuid.UUID       `json:"from_user_id"`
	Payload          json.RawMessage `json:"payload"`
}

type MediaToggledPayload struct {
	GroupID uuid.UUID `json:"group_id"`
	UserID  uuid.UUID `json:"user_id"`
	Kind    string    `json:"kind"`
	Enabled bool      `json:"enabled"`
}

type ScreenShareToggledPayload struct {
	GroupID uuid.UUID `json:"group_id"`
	UserID  uuid.UUID `json:"user_id"`
	Enabled bool      `json:"enabled"`
}

type ErrorPayload struct {
	Event   string `json:"event,omitempty"`
	Message string `json:"message"`
}
