// Package repository содержит репозитории для работы с базой данных.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"dlass/internal/model"

	"github.com/uptrace/bun"
	"go.uber.org/zap"
)

// WhiteboardRepository реализует интерфейс для работы с досками
type WhiteboardRepository struct {
	db     bun.IDB
	logger *zap.Logger
}

var _ model.WhiteboardRepository = (*WhiteboardRepository)(nil)

// NewWhiteboardRepository создает новый репозиторий досок
func NewWhiteboardRepository(db bun.IDB, logger *zap.Logger) *WhiteboardRepository {
	return &WhiteboardRepository{
		db:     db,
		logger: logger,
	}
}

// GetByID возвращает доску по ID
func (r *WhiteboardRepository) GetByID(ctx context.Context, id int64) (*model.Whiteboard, error) {
	whiteboard := new(model.Whiteboard)

	err := r.db.NewSelect().
		Model(whiteboard).
		Where("id = ?", id).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query whiteboard by ID: %w", err)
	}

	return whiteboard, nil
}

// ListRemoteEnabled возвращает доски с включенным удаленным режимом
func (r *WhiteboardRepository) ListRemoteEnabled(ctx context.Context) ([]model.Whiteboard, error) {
	var whiteboards []model.Whiteboard

	err := r.db.NewSelect().
		Model(&whiteboards).
		Where("use_remote = ?", true).
		Order("id ASC").
		Scan(ctx)

	if err != nil {
		return nil, fmt.Errorf("failed to query remote whiteboards: %w", err)
	}

	return whiteboards, nil
}

// Create создает новую доску
func (r *WhiteboardRepository) Create(ctx context.Context, whiteboard *model.Whiteboard) error {
	_, err := r.db.NewInsert().
		Model(whiteboard).
		Returning("*").
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to create whiteboard: %w", err)
	}

	return nil
}

// Update обновляет доску
func (r *WhiteboardRepository) Update(ctx context.Context, whiteboard *model.Whiteboard) error {
	_, err := r.db.NewUpdate().
		Model(whiteboard).
		WherePK().
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update whiteboard: %w", err)
	}

	return nil
}

// TouchLastSync обновляет время последней синхронизации
func (r *WhiteboardRepository) TouchLastSync(ctx context.Context, id int64, at time.Time) error {
	_, err := r.db.NewUpdate().
		Model((*model.Whiteboard)(nil)).
		Set("remote_last_sync = ?", at).
		Where("id = ?", id).
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update last sync time: %w", err)
	}

	return nil
}

// remoteColumns столбцы настроек удаленного хранилища
var remoteColumns = []string{
	"use_remote",
	"remote_namespace",
	"remote_password",
	"remote_auth_token",
	"remote_connected",
	"remote_last_sync",
}

// SaveRemoteSync записывает только столбцы удаленного режима
func (r *WhiteboardRepository) SaveRemoteSync(ctx context.Context, id int64, rs model.RemoteSync) error {
	whiteboard := &model.Whiteboard{ID: id, RemoteSync: rs}

	res, err := r.db.NewUpdate().
		Model(whiteboard).
		Column(remoteColumns...).
		WherePK().
		Exec(ctx)

	if err != nil {
		return fmt.Errorf("failed to update remote settings: %w", err)
	}

	updated, err := affected(res)
	if err != nil {
		return err
	}
	if !updated {
		return fmt.Errorf("whiteboard %d: %w", id, model.ErrNotFound)
	}

	return nil
}

// RefreshRemoteToken сохраняет новый токен, если настройки не менялись с момента чтения
func (r *WhiteboardRepository) RefreshRemoteToken(ctx context.Context, id int64, seen model.RemoteSync, token string) (bool, error) {
	res, err := r.guardedRemoteUpdate(id, seen).
		Set("remote_auth_token = ?", token).
		Set("remote_connected = ?", true).
		Exec(ctx)

	if err != nil {
		return false, fmt.Errorf("failed to save refreshed token: %w", err)
	}

	return affected(res)
}

// MarkRemoteDisconnected снимает признак соединения, если настройки не менялись с момента чтения
func (r *WhiteboardRepository) MarkRemoteDisconnected(ctx context.Context, id int64, seen model.RemoteSync) (bool, error) {
	res, err := r.guardedRemoteUpdate(id, seen).
		Set("remote_auth_token = NULL").
		Set("remote_connected = ?", false).
		Exec(ctx)

	if err != nil {
		return false, fmt.Errorf("failed to mark whiteboard disconnected: %w", err)
	}

	return affected(res)
}

// guardedRemoteUpdate обновляет строку, только пока удаленный режим включен с теми же учетными данными
func (r *WhiteboardRepository) guardedRemoteUpdate(id int64, seen model.RemoteSync) *bun.UpdateQuery {
	return r.db.NewUpdate().
		Model((*model.Whiteboard)(nil)).
		Where("id = ?", id).
		Where("use_remote = ?", true).
		Where("remote_namespace IS NOT DISTINCT FROM ?", seen.Namespace).
		Where("remote_password IS NOT DISTINCT FROM ?", seen.Password)
}

// SetAccessToken сохраняет токен доступа, если он еще не задан
func (r *WhiteboardRepository) SetAccessToken(ctx context.Context, id int64, token string, at time.Time) (bool, error) {
	res, err := r.db.NewUpdate().
		Model((*model.Whiteboard)(nil)).
		Set("access_token = ?", token).
		Set("token_created_at = ?", at).
		Where("id = ?", id).
		WhereGroup(" AND ", func(q *bun.UpdateQuery) *bun.UpdateQuery {
			return q.Where("access_token IS NULL").WhereOr("access_token = ''")
		}).
		Exec(ctx)

	if err != nil {
		return false, fmt.Errorf("failed to save access token: %w", err)
	}

	return affected(res)
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return n > 0, nil
}
