// Package repository содержит репозитории для работы с базой данных.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"dlass/internal/model"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// AssignmentRepository реализует интерфейс для работы с заданиями
type AssignmentRepository struct {
	db     bun.IDB
	logger *zap.Logger
}

var _ model.AssignmentRepository = (*AssignmentRepository)(nil)

// NewAssignmentRepository создает новый репозиторий заданий
func NewAssignmentRepository(db bun.IDB, logger *zap.Logger) *AssignmentRepository {
	return &AssignmentRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID возвращает задание по ID
func (r *AssignmentRepository) GetByID(ctx context.Context, id int64) (*model.Assignment, error) {
	assignment := new(model.Assignment)

	err := r.db.NewSelect().
		Model(assignment).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query assignment by ID: %w", err)
	}

	return assignment, nil
}

// FindByKey возвращает задание, созданное в сутки ключа
func (r *AssignmentRepository) FindByKey(ctx context.Context, key model.AssignmentKey) (*model.Assignment, error) {
	start, end := key.Day.Bounds()
	assignment := new(model.Assignment)

	err := r.db.NewSelect().
		Model(assignment).
		Where("whiteboard_id = ?", key.WhiteboardID).
		Where("subject = ?", key.Subject).
		Where("created_at >= ?", start).
		Where("created_at < ?", end).
		Order("created_at ASC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query assignment for day %s: %w", key.Day, err)
	}

	return assignment, nil
}

// LatestBySubject возвращает последнее созданное задание предмета
func (r *AssignmentRepository) LatestBySubject(ctx context.Context, whiteboardID int64, subject string) (*model.Assignment, error) {
	assignment := new(model.Assignment)

	err := r.db.NewSelect().
		Model(assignment).
		Where("whiteboard_id = ? AND subject = ?", whiteboardID, subject).
		Order("created_at DESC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query latest assignment: %w", err)
	}

	return assignment, nil
}

// ListByWhiteboard возвращает задания доски по убыванию created_at
func (r *AssignmentRepository) ListByWhiteboard(ctx context.Context, whiteboardID int64) ([]model.Assignment, error) {
	var assignments []model.Assignment

	err := r.db.NewSelect().
		Model(&assignments).
		Where("whiteboard_id = ?", whiteboardID).
		Order("created_at DESC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}

	return assignments, nil
}

// ListForMigration возвращает задания доски в порядке вставки
func (r *AssignmentRepository) ListForMigration(ctx context.Context, whiteboardID int64) ([]model.Assignment, error) {
	var assignments []model.Assignment

	err := r.db.NewSelect().
		Model(&assignments).
		Where("whiteboard_id = ?", whiteboardID).
		Order("id ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to query assignments for migration: %w", err)
	}

	return assignments, nil
}

// Create создает новое задание
func (r *AssignmentRepository) Create(ctx context.Context, assignment *model.Assignment) error {
	_, err := r.db.NewInsert().
		Model(assignment).
		Returning("*").
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to create assignment: %w", err)
	}

	return nil
}

// Update обновляет задание
func (r *AssignmentRepository) Update(ctx context.Context, assignment *model.Assignment) error {
	_, err := r.db.NewUpdate().
		Model(assignment).
		WherePK().
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update assignment: %w", err)
	}

	return nil
}

// Delete удаляет задание
func (r *AssignmentRepository) Delete(ctx context.Context, id int64) error {
	_, err := r.db.NewDelete().
		Model((*model.Assignment)(nil)).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to delete assignment: %w", err)
	}

	return nil
}
