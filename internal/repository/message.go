package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"study_space/internal/domain"
	apperrors "study_space/pkg/errors"
	"study_space/pkg/logger"
)

type MessageRepository interface {
	Create(ctx context.Context, message *domain.Message) error
	GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error)
	UpdateContent(ctx context.Context, messageID uuid.UUID, content string) error
	SoftDelete(ctx context.Context, messageID uuid.UUID) error
	ListBefore(ctx context.Context, groupID uuid.UUID, cursor *uuid.UUID, limit int) ([]*domain.Message, error)
	Search(ctx context.Context, groupID uuid.UUID, query string, limit int) ([]*domain.Message, error)
}

type messageRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewMessageRepository(db *pgxpool.Pool, log logger.Logger) MessageRepository {
	return &messageRepository{db: db, log: log}
}

// Общий SELECT: данные отправителя и превью сообщения, на которое отвечают
const messageColumns = `
	m.id, m.group_id, m.sender_id, u.display_name, u.avatar_url,
	m.content, m.type, m.reply_to_id, r.content, r.is_deleted,
	m.file_url, m.file_name, m.file_size, m.is_edited, m.is_deleted, m.created_at
`

const messageJoins = `
	FROM messages m
	JOIN users u ON u.id = m.sender_id
	LEFT JOIN messages r ON r.id = m.reply_to_id
`

func (r *messageRepository) Create(ctx context.Context, message *domain.Message) error {
	query := `
		INSERT INTO messages (id, group_id, sender_id, content, type, reply_to_id, file_url, file_name, file_size, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at
	`

	err := r.db.QueryRow(ctx, query,
		message.ID, message.GroupID, message.SenderID, message.Content, message.Type,
		message.ReplyToID, message.FileURL, message.FileName, message.FileSize, message.CreatedAt,
	).Scan(&message.CreatedAt)

	if err != nil {
		r.log.Error("Failed to create message", "error", err, "group_id", message.GroupID)
		return err
	}

	return nil
}

func (r *messageRepository) GetByID(ctx context.Context, messageID uuid.UUID) (*domain.Message, error) {
	query := `SELECT ` + messageColumns + messageJoins + `WHERE m.id = $1`

	message, err := scanMessage(r.db.QueryRow(ctx, query, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrMessageNotFound
		}
		r.log.Error("Failed to get message", "error", err, "message_id", messageID)
		return nil, err
	}

	return message, nil
}

func (r *messageRepository) UpdateContent(ctx context.Context, messageID uuid.UUID, content string) error {
	// Guard по is_deleted закрывает гонку edit/delete: правка,
	// проигравшая удалению, не должна воскресить содержимое
	query := `
		UPDATE messages
		SET content = $2, is_edited = TRUE
		WHERE id = $1 AND is_deleted = FALSE
	`

	tag, err := r.db.Exec(ctx, query, messageID, content)
	if err != nil {
		r.log.Error("Failed to update message", "error", err, "message_id", messageID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrMessageNotFound
	}

	return nil
}

func (r *messageRepository) SoftDelete(ctx context.Context, messageID uuid.UUID) error {
	query := `
		UPDATE messages
		SET content = $2, is_deleted = TRUE, file_url = NULL, file_name = NULL, file_size = NULL
		WHERE id = $1 AND is_deleted = FALSE
	`

	tag, err := r.db.Exec(ctx, query, messageID, domain.DeletedMessagePlaceholder)
	if err != nil {
		r.log.Error("Failed to delete message", "error", err, "message_id", messageID)
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrMessageNotFound
	}

	return nil
}

// ListBefore возвращает страницу строго старше курсора, от новых к старым.
// Удалённые сообщения не фильтруются: их содержимое уже заменено плейсхолдером
func (r *messageRepository) ListBefore(ctx context.Context, groupID uuid.UUID, cursor *uuid.UUID, limit int) ([]*domain.Message, error) {
	query := `
		SELECT ` + messageColumns + messageJoins + `
		WHERE m.group_id = $1
		  AND ($2::uuid IS NULL OR (m.created_at, m.id) < (SELECT created_at, id FROM messages WHERE id = $2))
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, groupID, cursor, limit)
	if err != nil {
		r.log.Error("Failed to list messages", "error", err, "group_id", groupID)
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

func (r *messageRepository) Search(ctx context.Context, groupID uuid.UUID, query string, limit int) ([]*domain.Message, error) {
	sql := `
		SELECT ` + messageColumns + messageJoins + `
		WHERE m.group_id = $1
		  AND m.is_deleted = FALSE
		  AND m.content ILIKE '%' || $2 || '%' ESCAPE '\'
		ORDER BY m.created_at DESC, m.id DESC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, sql, groupID, escapeLikePattern(query), limit)
	if err != nil {
		r.log.Error("Failed to search messages", "error", err, "group_id", groupID)
		return nil, err
	}
	defer rows.Close()

	return scanMessages(rows)
}

// escapeLikePattern экранирует метасимволы LIKE: поиск подстроки,
// а не шаблона — '%' и '_' в запросе пользователя буквальны
func escapeLikePattern(query string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(query)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*domain.Message, error) {
	message := &domain.Message{}
	var replyContent *string
	var replyDeleted *bool

	err := row.Scan(
		&message.ID, &message.GroupID, &message.SenderID, &message.SenderName, &message.SenderAvatar,
		&message.Content, &message.Type, &message.ReplyToID, &replyContent, &replyDeleted,
		&message.FileURL, &message.FileName, &message.FileSize, &message.IsEdited, &message.IsDeleted, &message.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if message.ReplyToID != nil && replyContent != nil {
		preview := domain.TruncatePreview(*replyContent)
		if replyDeleted != nil && *replyDeleted {
			preview = domain.DeletedMessagePlaceholder
		}
		message.ReplyPreview = &preview
	}

	return message, nil
}

func scanMessages(rows pgx.Rows) ([]*domain.Message, error) {
	var messages []*domain.Message
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, message)
	}
	return messages, rows.Err()
}
