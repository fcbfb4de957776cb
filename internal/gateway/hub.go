package gateway

import (
	"sync"

	"github.com/google/uuid"
	"study_space/internal/domain"
	"study_space/pkg/logger"
)

// Hub держит реестр живых соединений и комнаты групп.
// Замки на уровне комнаты, чтобы трафик разных групп не сериализовался
type Hub struct {
	mu    sync.RWMutex
	rooms map[uuid.UUID]*room
	conns map[uuid.UUID]*Client
	log   logger.Logger
}

// room — broadcast-область одной группы: userID -> connectionID -> клиент
type room struct {
	mu      sync.RWMutex
	members map[uuid.UUID]map[uuid.UUID]*Client

	// closed выставляется под mu до удаления комнаты из rooms:
	// опоздавший joinRoom не должен прописаться в комнату-сироту
	closed bool
}

func NewHub(log logger.Logger) *Hub {
	return &Hub{
		rooms: make(map[uuid.UUID]*room),
		conns: make(map[uuid.UUID]*Client),
		log:   log,
	}
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.conns[c.ID] = c
	h.mu.Unlock()
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	delete(h.conns, c.ID)
	h.mu.Unlock()
}

// Connection — прямой поиск соединения для point-to-point signaling
func (h *Hub) Connection(connectionID uuid.UUID) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[connectionID]
	return c, ok
}

func (h *Hub) getOrCreateRoom(groupID uuid.UUID) *room {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.rooms[groupID]
	if !ok {
		r = &room{members: make(map[uuid.UUID]map[uuid.UUID]*Client)}
		h.rooms[groupID] = r
	}
	return r
}

func (h *Hub) getRoom(groupID uuid.UUID) (*room, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	r, ok := h.rooms[groupID]
	return r, ok
}

// joinRoom регистрирует соединение в комнате и возвращает состояние после
// регистрации: ack отправляется уже с учётом нового участника. Третий
// результат — первое ли это соединение пользователя в комнате
func (h *Hub) joinRoom(groupID uuid.UUID, c *Client) (int, []uuid.UUID, bool) {
	for {
		r := h.getOrCreateRoom(groupID)

		r.mu.Lock()
		// Комната могла опустеть и закрыться между getOrCreateRoom
		// и взятием её замка — тогда берём/создаём комнату заново
		if r.closed {
			r.mu.Unlock()
			continue
		}

		conns, ok := r.members[c.UserID]
		if !ok {
			conns = make(map[uuid.UUID]*Client)
			r.members[c.UserID] = conns
		}
		firstConn := len(conns) == 0
		conns[c.ID] = c
		count := len(r.members)
		users := make([]uuid.UUID, 0, count)
		for userID := range r.members {
			users = append(users, userID)
		}
		r.mu.Unlock()

		return count, users, firstConn
	}
}

// LeaveRoom убирает соединение; второй результат — ушёл ли пользователь
// из комнаты совсем (это было его последнее соединение)
func (h *Hub) LeaveRoom(groupID uuid.UUID, c *Client) (int, bool) {
	r, ok := h.getRoom(groupID)
	if !ok {
		return 0, false
	}

	r.mu.Lock()
	userGone := false
	if conns, ok := r.members[c.UserID]; ok {
		delete(conns, c.ID)
		if len(conns) == 0 {
			delete(r.members, c.UserID)
			userGone = true
		}
	}
	count := len(r.members)
	// Закрытие фиксируется под замком комнаты: после этого в неё
	// уже никто не пропишется, удалять из rooms можно безопасно
	if count == 0 {
		r.closed = true
	}
	closed := r.closed
	r.mu.Unlock()

	if closed {
		h.mu.Lock()
		if h.rooms[groupID] == r {
			delete(h.rooms, groupID)
		}
		h.mu.Unlock()
	}

	return count, userGone
}

// OnlineCount — количество различных пользователей с >=1 соединением
func (h *Hub) OnlineCount(groupID uuid.UUID) int {
	r, ok := h.getRoom(groupID)
	if !ok {
		return 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

func (h *Hub) OnlineUserIDs(groupID uuid.UUID) []uuid.UUID {
	r, ok := h.getRoom(groupID)
	if !ok {
		return nil
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	users := make([]uuid.UUID, 0, len(r.members))
	for userID := range r.members {
		users = append(users, userID)
	}
	return users
}

// BroadcastEvent шлёт событие всем соединениям комнаты. Fan-out
// best-effort per-recipient: отказ одного получателя не прерывает остальных
func (h *Hub) BroadcastEvent(groupID uuid.UUID, event string, payload interface{}) {
	h.broadcast(groupID, uuid.Nil, event, payload)
}

// BroadcastEventExcept — то же, но без соединения-инициатора
func (h *Hub) BroadcastEventExcept(groupID, exceptConnID uuid.UUID, event string, payload interface{}) {
	h.broadcast(groupID, exceptConnID, event, payload)
}

func (h *Hub) broadcast(groupID, exceptConnID uuid.UUID, event string, payload interface{}) {
	r, ok := h.getRoom(groupID)
	if !ok {
		return
	}

	data, err := encodeFrame(event, payload)
	if err != nil {
		h.log.Error("Failed to encode event", "error", err, "event", event)
		return
	}

	// Под RLock комнаты: рассылка видит либо до-, либо после-мутационный
	// состав, но никогда частично обновлённый
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, conns := range r.members {
		for connID, c := range conns {
			if connID == exceptConnID {
				continue
			}
			if err := c.TrySend(data); err != nil {
				h.log.Warn("Dropping slow connection", "connection_id", connID, "user_id", c.UserID, "event", event)
				go c.Close()
			}
		}
	}
}

// SendToConnection доставляет событие ровно одному соединению
func (h *Hub) SendToConnection(connectionID uuid.UUID, event string, payload interface{}) error {
	c, ok := h.Connection(connectionID)
	if !ok {
		return ErrConnectionNotFound
	}

	data, err := encodeFrame(event, payload)
	if err != nil {
		return err
	}

	return c.TrySend(data)
}

// BroadcastMessageNew и далее — реализация service.RoomBroadcaster

func (h *Hub) BroadcastMessageNew(message *domain.Message) {
	h.BroadcastEvent(message.GroupID, EventMessageNew, message)
}

func (h *Hub) BroadcastMessageEdited(message *domain.Message) {
	h.BroadcastEvent(message.GroupID, EventMessageEdited, message)
}

// BroadcastMessageDeleted шлёт только идентификатор: плейсхолдер
// по проводу не повторяется
func (h *Hub) BroadcastMessageDeleted(groupID, messageID uuid.UUID) {
	h.BroadcastEvent(groupID, EventMessageDeleted, MessageDeletedPayload{
		GroupID:   groupID,
		MessageID: messageID,
	})
}
