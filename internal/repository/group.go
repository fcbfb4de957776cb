package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"study_space/internal/domain"
	apperrors "study_space/pkg/errors"
	"study_space/pkg/logger"
)

// GroupRepository — граница с внешним хранилищем групп:
// шлюз только читает состав, CRUD групп живёт в другом сервисе
type GroupRepository interface {
	GetByID(ctx context.Context, groupID uuid.UUID) (*domain.Group, error)
	IsMember(ctx context.Context, userID, groupID uuid.UUID) (bool, error)
	ListMemberIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error)
}

type groupRepository struct {
	db  *pgxpool.Pool
	log logger.Logger
}

func NewGroupRepository(db *pgxpool.Pool, log logger.Logger) GroupRepository {
	return &groupRepository{db: db, log: log}
}

func (r *groupRepository) GetByID(ctx context.Context, groupID uuid.UUID) (*domain.Group, error) {
	query := `
		SELECT id, name, description, owner_id, created_at
		FROM groups
		WHERE id = $1
	`

	group := &domain.Group{}
	err := r.db.QueryRow(ctx, query, groupID).Scan(
		&group.ID, &group.Name, &group.Description, &group.OwnerID, &group.CreatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrGroupNotFound
		}
		r.log.Error("Failed to get group", "error", err, "group_id", groupID)
		return nil, err
	}

	return group, nil
}

func (r *groupRepository) IsMember(ctx context.Context, userID, groupID uuid.UUID) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM group_members
			WHERE group_id = $1 AND user_id = $2
		)
	`

	var exists bool
	if err := r.db.QueryRow(ctx, query, groupID, userID).Scan(&exists); err != nil {
		r.log.Error("Failed to check membership", "error", err, "group_id", groupID, "user_id", userID)
		return false, err
	}

	return exists, nil
}

func (r *groupRepository) ListMemberIDs(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	query := `
		SELECT user_id FROM group_members
		WHERE group_id = $1
	`

	rows, err := r.db.Query(ctx, query, groupID)
	if err != nil {
		r.log.Error("Failed to list group members", "error", err, "group_id", groupID)
		return nil, err
	}
	defer rows.Close()

	var members []uuid.UUID
	for rows.Next() {
		var userID uuid.UUID
		if err := rows.Scan(&userID); err != nil {
			r.log.Error("Failed to scan member", "error", err)
			return nil, err
		}
		members = append(members, userID)
	}

	return members, rows.Err()
}
