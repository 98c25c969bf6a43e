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

// ClassTeacherRepository реализует интерфейс для работы с привязками учителей
type ClassTeacherRepository struct {
	db     bun.IDB
	logger *zap.Logger
}

var _ model.ClassTeacherRepository = (*ClassTeacherRepository)(nil)

// NewClassTeacherRepository создает новый репозиторий привязок учителей
func NewClassTeacherRepository(db bun.IDB, logger *zap.Logger) *ClassTeacherRepository {
	return &ClassTeacherRepository{
		db:     db,
		logger: logger,
	}
}

// Get возвращает привязку учителя к классу
func (r *ClassTeacherRepository) Get(ctx context.Context, classID, teacherID int64) (*model.ClassTeacher, error) {
	ct := new(model.ClassTeacher)

	err := r.db.NewSelect().
		Model(ct).
		Where("class_id = ? AND teacher_id = ?", classID, teacherID).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query class teacher: %w", err)
	}

	return ct, nil
}

// Create создает привязку, при конфликте обновляет предметы и статус
func (r *ClassTeacherRepository) Create(ctx context.Context, ct *model.ClassTeacher) error {
	_, err := r.db.NewInsert().
		Model(ct).
		On("CONFLICT (class_id, teacher_id) DO UPDATE").
		Set("subjects = EXCLUDED.subjects").
		Set("approved = EXCLUDED.approved").
		Returning("*").
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to create class teacher: %w", err)
	}

	return nil
}
