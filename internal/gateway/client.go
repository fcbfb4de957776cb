package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"study_space/internal/config"
	"study_space/internal/domain"
	"study_space/internal/service"
	apperrors "study_space/pkg/errors"
	"study_space/pkg/logger"
)

var (
	ErrBackpressure       = errors.New("backpressure")
	ErrConnectionClosed   = errors.New("connection closed")
	ErrConnectionNotFound = errors.New("connection not found")
)

// MembershipStore — внешний источник состава групп
type MembershipStore interface {
	IsMember(ctx context.Context, userID, groupID uuid.UUID) (bool, error)
}

// Client — одно аутентифицированное соединение. Горутина read pump
// единственная мутирует joined, поэтому набор не требует замка
type Client struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	DisplayName string

	hub     *Hub
	chat    service.ChatService
	calls   *CallCoordinator
	members MembershipStore
	cfg     config.WebSocketConfig
	log     logger.Logger

	conn *websocket.Conn
	send chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	closeMu sync.RWMutex
	closed  bool

	joined map[uuid.UUID]bool
}

func NewClient(
	hub *Hub,
	conn *websocket.Conn,
	user *domain.User,
	chat service.ChatService,
	calls *CallCoordinator,
	members MembershipStore,
	cfg config.WebSocketConfig,
	log logger.Logger,
) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.New()

	return &Client{
		ID:          id,
		UserID:      user.ID,
		DisplayName: user.DisplayName,
		hub:         hub,
		chat:        chat,
		calls:       calls,
		members:     members,
		cfg:         cfg,
		log:         log.With("connection_id", id, "user_id", user.ID),
		conn:        conn,
		send:        make(chan []byte, cfg.SendQueueSize),
		ctx:         ctx,
		cancel:      cancel,
		joined:      make(map[uuid.UUID]bool),
	}
}

// Run регистрирует соединение и блокируется до отключения
func (c *Client) Run() {
	c.hub.register(c)
	go c.writePump()
	c.readPump()
}

func (c *Client) TrySend(data []byte) error {
	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return ErrConnectionClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

func (c *Client) Close() {
	c.closeMu.Lock()
	if c.closed {
		c.closeMu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	c.closeMu.Unlock()

	c.cancel()
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// teardown выполняет полную очистку: комнаты, звонки, реестр соединений.
// Частичная очистка — баг корректности, поэтому всё в одном месте
func (c *Client) teardown() {
	c.calls.DropConnection(c)

	for groupID := range c.joined {
		count, userGone := c.hub.LeaveRoom(groupID, c)
		if userGone {
			c.hub.BroadcastEvent(groupID, EventUserLeft, PresencePayload{
				GroupID:     groupID,
				UserID:      c.UserID,
				DisplayName: c.DisplayName,
				OnlineCount: count,
			})
		}
	}
	c.joined = make(map[uuid.UUID]bool)

	c.hub.unregister(c)
	c.Close()
	c.log.Info("Connection closed")
}

func (c *Client) readPump() {
	defer c.teardown()

	c.conn.SetReadLimit(c.cfg.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.cfg.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.log.Error("WebSocket read error", "error", err)
			}
			return
		}
		c.dispatch(data)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) dispatch(data []byte) {
	var frame Frame
	if err := json.Unmarshal(data, &frame); err != nil {
		// Кадр не разобрался — имя события может быть и пустым
		c.sendError(frame.Event, apperrors.ErrBadRequest)
		return
	}

	switch frame.Event {
	case EventJoinGroup:
		c.handleJoinGroup(frame.Data)
	case EventLeaveGroup:
		c.handleLeaveGroup(frame.Data)
	case EventSendMessage:
		c.handleSendMessage(frame.Data)
	case EventEditMessage:
		c.handleEditMessage(frame.Data)
	case EventDeleteMessage:
		c.handleDeleteMessage(frame.Data)
	case EventLoadHistory:
		c.handleLoadHistory(frame.Data)
	case EventSearchMessages:
		c.handleSearchMessages(frame.Data)
	case EventTypingStart:
		c.handleTyping(frame.Data, EventTypingStarted)
	case EventTypingStop:
		c.handleTyping(frame.Data, EventTypingStopped)
	case EventReadReceipt:
		c.handleReadReceipt(frame.Data)
	case EventStartCall:
		c.handleStartCall(frame.Data)
	case EventJoinCall:
		c.handleCallRef(EventJoinCall, frame.Data, c.calls.JoinCall)
	case EventLeaveCall:
		c.handleCallRef(EventLeaveCall, frame.Data, c.calls.LeaveCall)
	case EventEndCall:
		c.handleCallRef(EventEndCall, frame.Data, c.calls.EndCall)
	case EventSignal:
		c.handleSignal(frame.Data)
	case EventToggleMedia:
		c.handleToggleMedia(frame.Data)
	case EventToggleScreenShare:
		c.handleToggleScreenShare(frame.Data)
	default:
		c.log.Warn("Unknown event", "event", frame.Event)
		c.sendError(frame.Event, apperrors.ErrBadRequest)
	}
}

func (c *Client) isJoined(groupID uuid.UUID) bool {
	return c.joined[groupID]
}

func (c *Client) handleJoinGroup(data json.RawMessage) {
	var p GroupRef
	if err := json.Unmarshal(data, &p); err != nil || p.GroupID == uuid.Nil {
		c.sendError(EventJoinGroup, apperrors.ErrBadRequest)
		return
	}

	// Идемпотентность per-connection: повторный join отвечает свежим ack
	if !c.isJoined(p.GroupID) {
		ok, err := c.members.IsMember(c.ctx, c.UserID, p.GroupID)
		if err != nil {
			c.sendError(EventJoinGroup, apperrors.ErrStoreUnavailable)
			return
		}
		if !ok {
			c.sendError(EventJoinGroup, apperrors.ErrNotAMember)
			return
		}

		count, users, firstConn := c.hub.joinRoom(p.GroupID, c)
		c.joined[p.GroupID] = true

		// Регистрация в комнате happens-before рассылки и ack
		if firstConn {
			c.hub.BroadcastEventExcept(p.GroupID, c.ID, EventUserJoined, PresencePayload{
				GroupID:     p.GroupID,
				UserID:      c.UserID,
				DisplayName: c.DisplayName,
				OnlineCount: count,
			})
		}
		c.sendEvent(EventJoined, JoinedPayload{
			GroupID:     p.GroupID,
			OnlineCount: count,
			OnlineUsers: users,
		})
		c.log.Info("Joined group", "group_id", p.GroupID, "online", count)
		return
	}

	c.sendEvent(EventJoined, JoinedPayload{
		GroupID:     p.GroupID,
		OnlineCount: c.hub.OnlineCount(p.GroupID),
		OnlineUsers: c.hub.OnlineUserIDs(p.GroupID),
	})
}

func (c *Client) handleLeaveGroup(data json.RawMessage) {
	var p GroupRef
	if err := json.Unmarshal(data, &p); err != nil || !c.isJoined(p.GroupID) {
		return
	}

	delete(c.joined, p.GroupID)
	count, userGone := c.hub.LeaveRoom(p.GroupID, c)
	if userGone {
		c.hub.BroadcastEvent(p.GroupID, EventUserLeft, PresencePayload{
			GroupID:     p.GroupID,
			UserID:      c.UserID,
			DisplayName: c.DisplayName,
			OnlineCount: count,
		})
	}
	c.log.Info("Left group", "group_id", p.GroupID, "online", count)
}

func (c *Client) handleSendMessage(data json.RawMessage) {
	var p SendMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(EventSendMessage, apperrors.ErrBadRequest)
		return
	}

	if !c.isJoined(p.GroupID) {
		c.sendError(EventSendMessage, apperrors.ErrNotAMember)
		return
	}

	_, err := c.chat.SendMessage(c.ctx, p.GroupID, c.UserID, service.SendMessageInput{
		Content:   p.Content,
		Type:      p.Type,
		ReplyToID: p.ReplyToID,
		File:      p.File,
	})
	if err != nil {
		c.sendError(EventSendMessage, err)
	}
}

func (c *Client) handleEditMessage(data json.RawMessage) {
	var p EditMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(EventEditMessage, apperrors.ErrBadRequest)
		return
	}

	if _, err := c.chat.EditMessage(c.ctx, p.MessageID, c.UserID, p.Content); err != nil {
		c.sendError(EventEditMessage, err)
	}
}

func (c *Client) handleDeleteMessage(data json.RawMessage) {
	var p DeleteMessagePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(EventDeleteMessage, apperrors.ErrBadRequest)
		return
	}

	if err := c.chat.DeleteMessage(c.ctx, p.MessageID, c.UserID); err != nil {
		c.sendError(EventDeleteMessage, err)
	}
}

func (c *Client) handleLoadHistory(data json.RawMessage) {
	var p LoadHistoryPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(EventLoadHistory, apperrors.ErrBadRequest)
		return
	}

	page, err := c.chat.LoadHistory(c.ctx, p.GroupID, c.UserID, p.Cursor, p.Limit)
	if err != nil {
		c.sendError(EventLoadHistory, err)
		return
	}

	c.sendEvent(EventMessagesLoaded, MessagesLoadedPayload{
		GroupID:    p.GroupID,
		Messages:   page.Messages,
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	})
}

func (c *Client) handleSearchMessages(data json.RawMessage) {
	var p SearchMessagesPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(EventSearchMessages, apperrors.ErrBadRequest)
		return
	}

	messages, err := c.chat.SearchMessages(c.ctx, p.GroupID, c.UserID, p.Query, p.Limit)
	if err != nil {
		c.sendError(EventSearchMessages, err)
		return
	}

	c.sendEvent(EventSearchResults, SearchResultsPayload{
		GroupID:  p.GroupID,
		Query:    p.Query,
		Messages: messages,
	})
}

func (c *Client) handleTyping(data json.RawMessage, outEvent string) {
	var p GroupRef
	if err := json.Unmarshal(data, &p); err != nil || !c.isJoined(p.GroupID) {
		return
	}

	c.hub.BroadcastEventExcept(p.GroupID, c.ID, outEvent, TypingPayload{
		GroupID:     p.GroupID,
		UserID:      c.UserID,
		DisplayName: c.DisplayName,
	})
}

func (c *Client) handleReadReceipt(data json.RawMessage) {
	var p ReadReceiptPayload
	if err := json.Unmarshal(data, &p); err != nil || !c.isJoined(p.GroupID) {
		return
	}

	c.hub.BroadcastEventExcept(p.GroupID, c.ID, EventReadReceiptSeen, ReadReceiptSeenPayload{
		GroupID:   p.GroupID,
		MessageID: p.MessageID,
		UserID:    c.UserID,
		ReadAt:    time.Now(),
	})
}

func (c *Client) handleStartCall(data json.RawMessage) {
	var p StartCallPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(EventStartCall, apperrors.ErrBadRequest)
		return
	}

	if err := c.calls.StartCall(c.ctx, c, p.GroupID, p.Type); err != nil {
		c.sendError(EventStartCall, err)
	}
}

// handleCallRef — общий вход join-call/leave-call/end-call: все три
// принимают только группу, ошибка подписывается исходным событием
func (c *Client) handleCallRef(event string, data json.RawMessage, op func(context.Context, *Client, uuid.UUID) error) {
	var p GroupRef
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(event, apperrors.ErrBadRequest)
		return
	}

	if err := op(c.ctx, c, p.GroupID); err != nil {
		c.sendError(event, err)
	}
}

func (c *Client) handleSignal(data json.RawMessage) {
	var p SignalPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(EventSignal, apperrors.ErrBadRequest)
		return
	}

	if err := c.calls.RelaySignal(c, p); err != nil {
		c.sendError(EventSignal, err)
	}
}

func (c *Client) handleToggleMedia(data json.RawMessage) {
	var p ToggleMediaPayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(EventToggleMedia, apperrors.ErrBadRequest)
		return
	}

	if err := c.calls.ToggleMedia(c, p.GroupID, p.Kind, p.Enabled); err != nil {
		c.sendError(EventToggleMedia, err)
	}
}

func (c *Client) handleToggleScreenShare(data json.RawMessage) {
	var p ToggleScreenSharePayload
	if err := json.Unmarshal(data, &p); err != nil {
		c.sendError(EventToggleScreenShare, apperrors.ErrBadRequest)
		return
	}

	if err := c.calls.ToggleScreenShare(c, p.GroupID, p.Enabled); err != nil {
		c.sendError(EventToggleScreenShare, err)
	}
}

func (c *Client) sendEvent(event string, payload interface{}) {
	data, err := encodeFrame(event, payload)
	if err != nil {
		c.log.Error("Failed to encode event", "error", err, "event", event)
		return
	}
	if err := c.TrySend(data); err != nil {
		c.log.Warn("Dropping slow connection", "event", event)
		go c.Close()
	}
}

// sendError сообщает об ошибке только инициатору, никогда в комнату
func (c *Client) sendError(event string, err error) {
	c.sendEvent(EventError, ErrorPayload{
		Event:   event,
		Message: err.Error(),
	})
}
