package gateway

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"study_space/internal/domain"
	apperrors "study_space/pkg/errors"
	"study_space/pkg/logger"
)

// OfflineNotifier создаёт записи для участников, которых нет в комнате
type OfflineNotifier interface {
	NotifyCallStarted(ctx context.Context, groupID, starterID uuid.UUID, starterName, callType string)
}

// CallCoordinator — таблица активных звонков: не более одного на группу.
// Всё состояние локально, ошибки операций синхронны и без ретраев
type CallCoordinator struct {
	mu    sync.RWMutex
	calls map[uuid.UUID]*callState

	hub      *Hub
	members  MembershipStore
	notifier OfflineNotifier
	log      logger.Logger
}

type callState struct {
	mu           sync.Mutex
	session      domain.CallSession
	participants map[uuid.UUID]*domain.CallParticipant
	ended        bool
}

func NewCallCoordinator(hub *Hub, members MembershipStore, notifier OfflineNotifier, log logger.Logger) *CallCoordinator {
	return &CallCoordinator{
		calls:    make(map[uuid.UUID]*callState),
		hub:      hub,
		members:  members,
		notifier: notifier,
		log:      log,
	}
}

func (cc *CallCoordinator) getCall(groupID uuid.UUID) (*callState, bool) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	state, ok := cc.calls[groupID]
	return state, ok
}

func (cc *CallCoordinator) removeCall(groupID uuid.UUID, state *callState) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	if cc.calls[groupID] == state {
		delete(cc.calls, groupID)
	}
}

func (cc *CallCoordinator) StartCall(ctx context.Context, c *Client, groupID uuid.UUID, callType string) error {
	if !domain.IsValidCallType(callType) {
		return apperrors.ErrBadRequest
	}

	ok, err := cc.members.IsMember(ctx, c.UserID, groupID)
	if err != nil {
		return apperrors.ErrStoreUnavailable
	}
	if !ok {
		return apperrors.ErrNotAMember
	}

	now := time.Now()
	state := &callState{
		session: domain.CallSession{
			GroupID:   groupID,
			Type:      callType,
			StartedBy: c.UserID,
			StartedAt: now,
		},
		participants: map[uuid.UUID]*domain.CallParticipant{
			c.ID: {
				UserID:       c.UserID,
				ConnectionID: c.ID,
				DisplayName:  c.DisplayName,
				JoinedAt:     now,
			},
		},
	}

	cc.mu.Lock()
	if _, exists := cc.calls[groupID]; exists {
		cc.mu.Unlock()
		return apperrors.ErrCallInProgress
	}
	cc.calls[groupID] = state
	cc.mu.Unlock()

	cc.hub.BroadcastEvent(groupID, EventCallStarted, CallStartedPayload{
		GroupID:     groupID,
		Type:        callType,
		StartedBy:   c.UserID,
		StartedName: c.DisplayName,
		StartedAt:   now,
	})
	cc.notifier.NotifyCallStarted(ctx, groupID, c.UserID, c.DisplayName, callType)

	cc.log.Info("Call started", "group_id", groupID, "type", callType, "user_id", c.UserID)
	return nil
}

// JoinCall возвращает новому участнику список пиров с идентификаторами
// соединений, чтобы signaling адресовался точечно
func (cc *CallCoordinator) JoinCall(ctx context.Context, c *Client, groupID uuid.UUID) error {
	state, ok := cc.getCall(groupID)
	if !ok {
		return apperrors.ErrNoActiveCall
	}

	isMember, err := cc.members.IsMember(ctx, c.UserID, groupID)
	if err != nil {
		return apperrors.ErrStoreUnavailable
	}
	if !isMember {
		return apperrors.ErrNotAMember
	}

	state.mu.Lock()
	if state.ended {
		state.mu.Unlock()
		return apperrors.ErrNoActiveCall
	}

	peers := make([]*domain.CallParticipant, 0, len(state.participants))
	peerConns := make([]uuid.UUID, 0, len(state.participants))
	for connID, p := range state.participants {
		if connID == c.ID {
			continue
		}
		peers = append(peers, p)
		peerConns = append(peerConns, connID)
	}

	state.participants[c.ID] = &domain.CallParticipant{
		UserID:       c.UserID,
		ConnectionID: c.ID,
		DisplayName:  c.DisplayName,
		JoinedAt:     time.Now(),
	}
	callType := state.session.Type
	state.mu.Unlock()

	c.sendEvent(EventCallPeers, CallPeersPayload{
		GroupID: groupID,
		Type:    callType,
		Peers:   peers,
	})

	joined := CallPeerPayload{
		GroupID:      groupID,
		UserID:       c.UserID,
		ConnectionID: c.ID,
		DisplayName:  c.DisplayName,
	}
	for _, connID := range peerConns {
		if err := cc.hub.SendToConnection(connID, EventCallUserJoined, joined); err != nil {
			cc.log.Warn("Failed to notify call participant", "error", err, "connection_id", connID)
		}
	}

	cc.log.Info("Call joined", "group_id", groupID, "user_id", c.UserID)
	return nil
}

func (cc *CallCoordinator) LeaveCall(ctx context.Context, c *Client, groupID uuid.UUID) error {
	state, ok := cc.getCall(groupID)
	if !ok {
		return apperrors.ErrNoActiveCall
	}

	left, remaining := cc.leave(state, c)
	if !left {
		return apperrors.ErrNotInCall
	}

	if remaining == nil {
		cc.removeCall(groupID, state)
		cc.hub.BroadcastEvent(groupID, EventCallEnded, CallEndedPayload{GroupID: groupID})
		cc.log.Info("Call ended, last participant left", "group_id", groupID)
		return nil
	}

	gone := CallPeerPayload{
		GroupID:      groupID,
		UserID:       c.UserID,
		ConnectionID: c.ID,
		DisplayName:  c.DisplayName,
	}
	for _, connID := range remaining {
		if err := cc.hub.SendToConnection(connID, EventCallUserLeft, gone); err != nil {
			cc.log.Warn("Failed to notify call participant", "error", err, "connection_id", connID)
		}
	}
	return nil
}

// leave убирает соединение из звонка; remaining == nil означает,
// что звонок опустел и помечен завершённым
func (cc *CallCoordinator) leave(state *callState, c *Client) (bool, []uuid.UUID) {
	state.mu.Lock()
	defer state.mu.Unlock()

	if state.ended {
		return false, nil
	}
	if _, ok := state.participants[c.ID]; !ok {
		return false, nil
	}
	delete(state.participants, c.ID)

	if len(state.participants) == 0 {
		state.ended = true
		return true, nil
	}

	remaining := make([]uuid.UUID, 0, len(state.participants))
	for connID := range state.participants {
		remaining = append(remaining, connID)
	}
	return true, remaining
}

// EndCall — принудительное завершение любым участником
func (cc *CallCoordinator) EndCall(ctx context.Context, c *Client, groupID uuid.UUID) error {
	state, ok := cc.getCall(groupID)
	if !ok {
		return apperrors.ErrNoActiveCall
	}

	state.mu.Lock()
	if state.ended {
		state.mu.Unlock()
		return apperrors.ErrNoActiveCall
	}
	if _, ok := state.participants[c.ID]; !ok {
		state.mu.Unlock()
		return apperrors.ErrNotInCall
	}
	state.ended = true
	state.participants = make(map[uuid.UUID]*domain.CallParticipant)
	state.mu.Unlock()

	cc.removeCall(groupID, state)

	endedBy := c.UserID
	cc.hub.BroadcastEvent(groupID, EventCallEnded, CallEndedPayload{
		GroupID:   groupID,
		EndedBy:   &endedBy,
		EndedName: c.DisplayName,
	})

	cc.log.Info("Call force-ended", "group_id", groupID, "user_id", c.UserID)
	return nil
}

// RelaySignal пересылает полезную нагрузку как есть, точечно и только
// между участниками одного звонка: содержимое не интерпретируется
func (cc *CallCoordinator) RelaySignal(c *Client, p SignalPayload) error {
	state, ok := cc.getCall(p.GroupID)
	if !ok {
		return apperrors.ErrNoActiveCall
	}

	state.mu.Lock()
	_, senderIn := state.participants[c.ID]
	_, targetIn := state.participants[p.To]
	ended := state.ended
	state.mu.Unlock()

	if ended {
		return apperrors.ErrNoActiveCall
	}
	if !senderIn {
		return apperrors.ErrNotInCall
	}
	if !targetIn {
		return apperrors.ErrPeerNotConnected
	}

	return cc.hub.SendToConnection(p.To, EventSignal, SignalForwardPayload{
		GroupID:          p.GroupID,
		FromConnectionID: c.ID,
		FromUserID:       c.UserID,
		Payload:          p.Payload,
	})
}

func (cc *CallCoordinator) ToggleMedia(c *Client, groupID uuid.UUID, kind string, enabled bool) error {
	if kind != domain.CallTypeAudio && kind != domain.CallTypeVideo {
		return apperrors.ErrBadRequest
	}

	return cc.broadcastToPeers(c, groupID, EventMediaToggled, MediaToggledPayload{
		GroupID: groupID,
		UserID:  c.UserID,
		Kind:    kind,
		Enabled: enabled,
	})
}

func (cc *CallCoordinator) ToggleScreenShare(c *Client, groupID uuid.UUID, enabled bool) error {
	return cc.broadcastToPeers(c, groupID, EventScreenShareToggled, ScreenShareToggledPayload{
		GroupID: groupID,
		UserID:  c.UserID,
		Enabled: enabled,
	})
}

// broadcastToPeers шлёт подсказку состояния остальным участникам звонка;
// состояние медиа не хранится и не валидируется
func (cc *CallCoordinator) broadcastToPeers(c *Client, groupID uuid.UUID, event string, payload interface{}) error {
	state, ok := cc.getCall(groupID)
	if !ok {
		return apperrors.ErrNoActiveCall
	}

	state.mu.Lock()
	if state.ended {
		state.mu.Unlock()
		return apperrors.ErrNoActiveCall
	}
	if _, ok := state.participants[c.ID]; !ok {
		state.mu.Unlock()
		return apperrors.ErrNotInCall
	}
	peerConns := make([]uuid.UUID, 0, len(state.participants))
	for connID := range state.participants {
		if connID != c.ID {
			peerConns = append(peerConns, connID)
		}
	}
	state.mu.Unlock()

	for _, connID := range peerConns {
		if err := cc.hub.SendToConnection(connID, event, payload); err != nil {
			cc.log.Warn("Failed to notify call participant", "error", err, "connection_id", connID)
		}
	}
	return nil
}

// DropConnection выполняет leave для всех звонков соединения при отключении
func (cc *CallCoordinator) DropConnection(c *Client) {
	cc.mu.RLock()
	affected := make(map[uuid.UUID]*callState)
	for groupID, state := range cc.calls {
		affected[groupID] = state
	}
	cc.mu.RUnlock()

	for groupID, state := range affected {
		left, remaining := cc.leave(state, c)
		if !left {
			continue
		}

		if remaining == nil {
			cc.removeCall(groupID, state)
			cc.hub.BroadcastEvent(groupID, EventCallEnded, CallEndedPayload{GroupID: groupID})
			cc.log.Info("Call ended, last participant disconnected", "group_id", groupID)
			continue
		}

		gone := CallPeerPayload{
			GroupID:      groupID,
			UserID:       c.UserID,
			ConnectionID: c.ID,
			DisplayName:  c.DisplayName,
		}
		for _, connID := range remaining {
			if err := cc.hub.SendToConnection(connID, EventCallUserLeft, gone); err != nil {
				cc.log.Warn("Failed to notify call participant", "error", err, "connection_id", connID)
			}
		}
	}
}
