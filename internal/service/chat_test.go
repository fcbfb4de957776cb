package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"study_space/internal/domain"
	apperrors "study_space/pkg/errors"
	"study_space/pkg/logger"
)

// opLog фиксирует порядок обращений к хранилищу и рассылке
type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(op string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
}

func (l *opLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.ops))
	copy(out, l.ops)
	return out
}

type fakeMessageRepo struct {
	mu         sync.Mutex
	messages   map[uuid.UUID]*domain.Message
	order      []uuid.UUID
	log        *opLog
	failCreate bool
	getErr     error

	// afterGet выполняется после успешного GetByID: позволяет вклинить
	// конкурентную операцию между проверкой и взятием группового замка
	afterGet func()
}

func newFakeMessageRepo(log *opLog) *fakeMessageRepo {
	return &fakeMessageRepo{messages: make(map[uuid.UUID]*domain.Message), log: log}
}

func (r *fakeMessageRepo) Create(_ context.Context, message *domain.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failCreate {
		return errors.New("connection refused")
	}
	stored := *message
	r.messages[message.ID] = &stored
	r.order = append(r.order, message.ID)
	r.log.add("create")
	return nil
}

func (r *fakeMessageRepo) GetByID(_ context.Context, messageID uuid.UUID) (*domain.Message, error) {
	r.mu.Lock()
	if r.getErr != nil {
		r.mu.Unlock()
		return nil, r.getErr
	}
	stored, ok := r.messages[messageID]
	if !ok {
		r.mu.Unlock()
		return nil, apperrors.ErrMessageNotFound
	}
	out := *stored
	r.mu.Unlock()

	if r.afterGet != nil {
		hook := r.afterGet
		r.afterGet = nil
		hook()
	}
	return &out, nil
}

func (r *fakeMessageRepo) UpdateContent(_ context.Context, messageID uuid.UUID, content string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.messages[messageID]
	if !ok || stored.IsDeleted {
		return apperrors.ErrMessageNotFound
	}
	stored.Content = content
	stored.IsEdited = true
	r.log.add("update")
	return nil
}

func (r *fakeMessageRepo) SoftDelete(_ context.Context, messageID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.messages[messageID]
	if !ok || stored.IsDeleted {
		return apperrors.ErrMessageNotFound
	}
	stored.IsDeleted = true
	stored.Content = domain.DeletedMessagePlaceholder
	stored.FileURL, stored.FileName, stored.FileSize = nil, nil, nil
	r.log.add("soft-delete")
	return nil
}

func (r *fakeMessageRepo) ListBefore(_ context.Context, groupID uuid.UUID, cursor *uuid.UUID, limit int) ([]*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// История группы в хронологическом порядке вставки
	chrono := make([]*domain.Message, 0)
	for _, id := range r.order {
		if m := r.messages[id]; m.GroupID == groupID {
			chrono = append(chrono, m)
		}
	}
	if cursor != nil {
		cut := -1
		for i, m := range chrono {
			if m.ID == *cursor {
				cut = i
				break
			}
		}
		if cut < 0 {
			return nil, nil
		}
		chrono = chrono[:cut]
	}

	out := make([]*domain.Message, 0, limit)
	for i := len(chrono) - 1; i >= 0 && len(out) < limit; i-- {
		m := *chrono[i]
		out = append(out, &m)
	}
	return out, nil
}

func (r *fakeMessageRepo) Search(_ context.Context, groupID uuid.UUID, query string, limit int) ([]*domain.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*domain.Message, 0)
	for i := len(r.order) - 1; i >= 0 && len(out) < limit; i-- {
		m := r.messages[r.order[i]]
		if m.GroupID != groupID || m.IsDeleted {
			continue
		}
		if strings.Contains(strings.ToLower(m.Content), strings.ToLower(query)) {
			found := *m
			out = append(out, &found)
		}
	}
	return out, nil
}

type fakeGroupRepo struct {
	mu      sync.Mutex
	members map[uuid.UUID][]uuid.UUID
	err     error
}

func newFakeGroupRepo() *fakeGroupRepo {
	return &fakeGroupRepo{members: make(map[uuid.UUID][]uuid.UUID)}
}

func (r *fakeGroupRepo) add(groupID, userID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.members[groupID] = append(r.members[groupID], userID)
}

func (r *fakeGroupRepo) GetByID(_ context.Context, groupID uuid.UUID) (*domain.Group, error) {
	return &domain.Group{ID: groupID}, nil
}

func (r *fakeGroupRepo) IsMember(_ context.Context, userID, groupID uuid.UUID) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	for _, id := range r.members[groupID] {
		if id == userID {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeGroupRepo) ListMemberIDs(_ context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	out := make([]uuid.UUID, len(r.members[groupID]))
	copy(out, r.members[groupID])
	return out, nil
}

type fakeBroadcaster struct {
	mu      sync.Mutex
	log     *opLog
	new     []*domain.Message
	edited  []*domain.Message
	deleted []uuid.UUID
}

func (b *fakeBroadcaster) BroadcastMessageNew(message *domain.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.new = append(b.new, message)
	b.log.add("broadcast-new")
}

func (b *fakeBroadcaster) BroadcastMessageEdited(message *domain.Message) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.edited = append(b.edited, message)
	b.log.add("broadcast-edited")
}

func (b *fakeBroadcaster) BroadcastMessageDeleted(_, messageID uuid.UUID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, messageID)
	b.log.add("broadcast-deleted")
}

type fakeNotifService struct {
	mu       sync.Mutex
	log      *opLog
	messages []*domain.Message
	calls    int
}

func (n *fakeNotifService) NotifyMessage(_ context.Context, message *domain.Message) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages = append(n.messages, message)
	n.log.add("notify")
}

func (n *fakeNotifService) NotifyCallStarted(_ context.Context, _, _ uuid.UUID, _, _ string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls++
}

type chatFixture struct {
	chat        ChatService
	messageRepo *fakeMessageRepo
	groupRepo   *fakeGroupRepo
	broadcaster *fakeBroadcaster
	notifier    *fakeNotifService
	ops         *opLog
	groupID     uuid.UUID
	senderID    uuid.UUID
}

func newChatFixture() *chatFixture {
	ops := &opLog{}
	f := &chatFixture{
		messageRepo: newFakeMessageRepo(ops),
		groupRepo:   newFakeGroupRepo(),
		broadcaster: &fakeBroadcaster{log: ops},
		notifier:    &fakeNotifService{log: ops},
		ops:         ops,
		groupID:     uuid.New(),
		senderID:    uuid.New(),
	}
	f.groupRepo.add(f.groupID, f.senderID)
	f.chat = NewChatService(f.messageRepo, f.groupRepo, f.notifier, f.broadcaster, logger.New("error"))
	return f
}

func (f *chatFixture) send(t *testing.T, content string) *domain.Message {
	t.Helper()
	msg, err := f.chat.SendMessage(context.Background(), f.groupID, f.senderID, SendMessageInput{Content: content})
	if err != nil {
		t.Fatalf("SendMessage(%q) failed: %v", content, err)
	}
	return msg
}

func TestChatService_SendPersistsBeforeBroadcast(t *testing.T) {
	f := newChatFixture()

	msg := f.send(t, "hello")

	want := []string{"create", "broadcast-new", "notify"}
	got := f.ops.list()
	if len(got) != len(want) {
		t.Fatalf("expected ops %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected ops %v, got %v", want, got)
		}
	}
	if len(f.broadcaster.new) != 1 || f.broadcaster.new[0].ID != msg.ID {
		t.Errorf("expected broadcast of the persisted message")
	}
	if len(f.notifier.messages) != 1 {
		t.Errorf("expected exactly one offline fallback per send, got %d", len(f.notifier.messages))
	}
}

func TestChatService_SendStoreFailureAbortsBroadcast(t *testing.T) {
	f := newChatFixture()
	f.messageRepo.failCreate = true

	_, err := f.chat.SendMessage(context.Background(), f.groupID, f.senderID, SendMessageInput{Content: "hi"})
	if err != apperrors.ErrStoreUnavailable {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if len(f.ops.list()) != 0 {
		t.Errorf("nothing may reach the room on a failed write, ops=%v", f.ops.list())
	}
}

func TestChatService_SendRequiresMembership(t *testing.T) {
	f := newChatFixture()

	_, err := f.chat.SendMessage(context.Background(), f.groupID, uuid.New(), SendMessageInput{Content: "hi"})
	if err != apperrors.ErrNotAMember {
		t.Fatalf("expected ErrNotAMember, got %v", err)
	}

	f.groupRepo.err = errors.New("connection refused")
	_, err = f.chat.SendMessage(context.Background(), f.groupID, f.senderID, SendMessageInput{Content: "hi"})
	if err != apperrors.ErrStoreUnavailable {
		t.Fatalf("expected ErrStoreUnavailable on store error, got %v", err)
	}
}

func TestChatService_SendValidation(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	cases := []struct {
		name  string
		input SendMessageInput
	}{
		{"empty", SendMessageInput{Content: ""}},
		{"whitespace only", SendMessageInput{Content: "   \n\t"}},
		{"too long", SendMessageInput{Content: strings.Repeat("я", maxMessageLength+1)}},
		{"unknown type", SendMessageInput{Content: "hi", Type: "carrier-pigeon"}},
	}
	for _, tc := range cases {
		if _, err := f.chat.SendMessage(ctx, f.groupID, f.senderID, tc.input); err != apperrors.ErrBadRequest {
			t.Errorf("%s: expected ErrBadRequest, got %v", tc.name, err)
		}
	}

	// Файл без текста допустим
	file := &domain.FileMeta{URL: "https://files.local/a.pdf", Name: "a.pdf", Size: 1024}
	msg, err := f.chat.SendMessage(ctx, f.groupID, f.senderID, SendMessageInput{Type: domain.MessageTypeFile, File: file})
	if err != nil {
		t.Fatalf("file-only message failed: %v", err)
	}
	if msg.FileName == nil || *msg.FileName != "a.pdf" {
		t.Errorf("expected file meta to persist, got %+v", msg)
	}
}

func TestChatService_SendReplyMustTargetSameGroup(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	parent := f.send(t, "parent")

	otherGroup := uuid.New()
	f.groupRepo.add(otherGroup, f.senderID)

	_, err := f.chat.SendMessage(ctx, otherGroup, f.senderID, SendMessageInput{Content: "re", ReplyToID: &parent.ID})
	if err != apperrors.ErrBadRequest {
		t.Errorf("expected ErrBadRequest for cross-group reply, got %v", err)
	}

	missing := uuid.New()
	_, err = f.chat.SendMessage(ctx, f.groupID, f.senderID, SendMessageInput{Content: "re", ReplyToID: &missing})
	if err != apperrors.ErrMessageNotFound {
		t.Errorf("expected ErrMessageNotFound for dangling reply, got %v", err)
	}

	if _, err := f.chat.SendMessage(ctx, f.groupID, f.senderID, SendMessageInput{Content: "re", ReplyToID: &parent.ID}); err != nil {
		t.Errorf("valid reply failed: %v", err)
	}
}

func TestChatService_EditOnlyBySender(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	msg := f.send(t, "original")
	opsBefore := len(f.ops.list())

	intruder := uuid.New()
	f.groupRepo.add(f.groupID, intruder)

	_, err := f.chat.EditMessage(ctx, msg.ID, intruder, "hacked")
	if err != apperrors.ErrNotAuthorized {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if len(f.ops.list()) != opsBefore {
		t.Error("rejected edit must not touch the store or the room")
	}

	stored, _ := f.messageRepo.GetByID(ctx, msg.ID)
	if stored.Content != "original" {
		t.Errorf("content must be intact, got %q", stored.Content)
	}
}

func TestChatService_EditBroadcastsWithoutNotify(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	msg := f.send(t, "original")
	notifBefore := len(f.notifier.messages)

	updated, err := f.chat.EditMessage(ctx, msg.ID, f.senderID, "fixed")
	if err != nil {
		t.Fatalf("EditMessage failed: %v", err)
	}
	if updated.Content != "fixed" || !updated.IsEdited {
		t.Errorf("expected updated content with edited flag, got %+v", updated)
	}
	if len(f.broadcaster.edited) != 1 {
		t.Errorf("expected one edited broadcast, got %d", len(f.broadcaster.edited))
	}
	// Фолбэк уведомлений только для новых сообщений
	if len(f.notifier.messages) != notifBefore {
		t.Error("edit must not trigger offline fallback")
	}
}

func TestChatService_EditDeletedMessage(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	msg := f.send(t, "doomed")
	if err := f.chat.DeleteMessage(ctx, msg.ID, f.senderID); err != nil {
		t.Fatalf("DeleteMessage failed: %v", err)
	}

	if _, err := f.chat.EditMessage(ctx, msg.ID, f.senderID, "resurrect"); err != apperrors.ErrMessageNotFound {
		t.Errorf("expected ErrMessageNotFound for deleted message, got %v", err)
	}
}

func TestChatService_EditRacingDeleteCannotResurrect(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	msg := f.send(t, "secret")

	// Удаление коммитится между проверкой сообщения и записью правки
	f.messageRepo.afterGet = func() {
		if err := f.chat.DeleteMessage(ctx, msg.ID, f.senderID); err != nil {
			t.Fatalf("DeleteMessage failed: %v", err)
		}
	}

	if _, err := f.chat.EditMessage(ctx, msg.ID, f.senderID, "resurrected"); err != apperrors.ErrMessageNotFound {
		t.Fatalf("expected ErrMessageNotFound for edit losing to delete, got %v", err)
	}

	stored, _ := f.messageRepo.GetByID(ctx, msg.ID)
	if !stored.IsDeleted || stored.Content != domain.DeletedMessagePlaceholder {
		t.Errorf("placeholder must survive a racing edit, got %+v", stored)
	}
	if len(f.broadcaster.edited) != 0 {
		t.Error("losing edit must not broadcast")
	}
}

func TestChatService_EditMapsStoreErrors(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	msg := f.send(t, "payload")
	f.messageRepo.getErr = errors.New(`ERROR: connection to server at "127.0.0.1" failed (SQLSTATE 08006)`)

	if _, err := f.chat.EditMessage(ctx, msg.ID, f.senderID, "new"); err != apperrors.ErrStoreUnavailable {
		t.Errorf("expected ErrStoreUnavailable for raw store error, got %v", err)
	}
	if err := f.chat.DeleteMessage(ctx, msg.ID, f.senderID); err != apperrors.ErrStoreUnavailable {
		t.Errorf("expected ErrStoreUnavailable for raw store error, got %v", err)
	}
}

func TestChatService_DeleteSetsPlaceholder(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	msg := f.send(t, "secret")

	if err := f.chat.DeleteMessage(ctx, msg.ID, f.senderID); err != nil {
		t.Fatalf("DeleteMessage failed: %v", err)
	}

	stored, _ := f.messageRepo.GetByID(ctx, msg.ID)
	if !stored.IsDeleted || stored.Content != domain.DeletedMessagePlaceholder {
		t.Errorf("expected placeholder after soft delete, got %+v", stored)
	}
	if len(f.broadcaster.deleted) != 1 || f.broadcaster.deleted[0] != msg.ID {
		t.Errorf("expected id-only deletion broadcast, got %v", f.broadcaster.deleted)
	}

	// Повторное удаление — как отсутствующее сообщение
	if err := f.chat.DeleteMessage(ctx, msg.ID, f.senderID); err != apperrors.ErrMessageNotFound {
		t.Errorf("expected ErrMessageNotFound on double delete, got %v", err)
	}
}

func TestChatService_DeleteOnlyBySender(t *testing.T) {
	f := newChatFixture()

	msg := f.send(t, "mine")
	intruder := uuid.New()
	f.groupRepo.add(f.groupID, intruder)

	if err := f.chat.DeleteMessage(context.Background(), msg.ID, intruder); err != apperrors.ErrNotAuthorized {
		t.Fatalf("expected ErrNotAuthorized, got %v", err)
	}
	if len(f.broadcaster.deleted) != 0 {
		t.Error("rejected delete must not broadcast")
	}
}

func TestChatService_LoadHistoryPagination(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	const total = 25
	sent := make([]uuid.UUID, 0, total)
	for i := 0; i < total; i++ {
		msg := f.send(t, strings.Repeat("x", i+1))
		sent = append(sent, msg.ID)
	}

	// Листаем всю историю по курсору страницами по 10
	collected := make([]uuid.UUID, 0, total)
	var cursor *uuid.UUID
	for page := 0; ; page++ {
		res, err := f.chat.LoadHistory(ctx, f.groupID, f.senderID, cursor, 10)
		if err != nil {
			t.Fatalf("LoadHistory page %d failed: %v", page, err)
		}

		// Внутри страницы порядок от старых к новым
		for i := 1; i < len(res.Messages); i++ {
			if res.Messages[i-1].CreatedAt.After(res.Messages[i].CreatedAt) {
				t.Errorf("page %d not in chronological order", page)
			}
		}
		for _, m := range res.Messages {
			collected = append(collected, m.ID)
		}

		if !res.HasMore && len(res.Messages) < 10 {
			break
		}
		if res.NextCursor == nil {
			t.Fatalf("page %d: has_more without cursor", page)
		}
		cursor = res.NextCursor
	}

	if len(collected) != total {
		t.Fatalf("expected %d messages across pages, got %d", total, len(collected))
	}
	// Каждое сообщение ровно один раз, страницы идут от новых к старым
	seen := make(map[uuid.UUID]bool)
	for _, id := range collected {
		if seen[id] {
			t.Fatalf("message %s returned twice", id)
		}
		seen[id] = true
	}
	for _, id := range sent {
		if !seen[id] {
			t.Errorf("message %s missing from paginated history", id)
		}
	}
}

func TestChatService_LoadHistoryDefaults(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	for i := 0; i < 60; i++ {
		f.send(t, "m")
	}

	res, err := f.chat.LoadHistory(ctx, f.groupID, f.senderID, nil, 0)
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(res.Messages) != 50 || !res.HasMore {
		t.Errorf("expected default page of 50 with has_more, got %d has_more=%v", len(res.Messages), res.HasMore)
	}

	if _, err := f.chat.LoadHistory(ctx, f.groupID, uuid.New(), nil, 10); err != apperrors.ErrNotAMember {
		t.Errorf("expected ErrNotAMember, got %v", err)
	}
}

func TestChatService_LoadHistoryIncludesDeletedPlaceholders(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	f.send(t, "first")
	doomed := f.send(t, "second")
	if err := f.chat.DeleteMessage(ctx, doomed.ID, f.senderID); err != nil {
		t.Fatalf("DeleteMessage failed: %v", err)
	}

	res, err := f.chat.LoadHistory(ctx, f.groupID, f.senderID, nil, 10)
	if err != nil {
		t.Fatalf("LoadHistory failed: %v", err)
	}
	if len(res.Messages) != 2 {
		t.Fatalf("deleted messages must stay in history, got %d", len(res.Messages))
	}
	last := res.Messages[1]
	if !last.IsDeleted || last.Content != domain.DeletedMessagePlaceholder {
		t.Errorf("expected placeholder in history, got %+v", last)
	}
}

func TestChatService_SearchMessages(t *testing.T) {
	f := newChatFixture()
	ctx := context.Background()

	f.send(t, "Graph theory homework")
	f.send(t, "lunch plans")
	deleted := f.send(t, "graph coloring notes")
	if err := f.chat.DeleteMessage(ctx, deleted.ID, f.senderID); err != nil {
		t.Fatalf("DeleteMessage failed: %v", err)
	}

	found, err := f.chat.SearchMessages(ctx, f.groupID, f.senderID, "graph", 10)
	if err != nil {
		t.Fatalf("SearchMessages failed: %v", err)
	}
	if len(found) != 1 || found[0].Content != "Graph theory homework" {
		t.Errorf("expected one live match, got %+v", found)
	}

	if _, err := f.chat.SearchMessages(ctx, f.groupID, f.senderID, "   ", 10); err != apperrors.ErrBadRequest {
		t.Errorf("expected ErrBadRequest for blank query, got %v", err)
	}
	if _, err := f.chat.SearchMessages(ctx, f.groupID, uuid.New(), "graph", 10); err != apperrors.ErrNotAMember {
		t.Errorf("expected ErrNotAMember, got %v", err)
	}
}
