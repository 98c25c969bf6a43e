package service

import (
	"context"
	"fmt"

	"dlass/internal/calendar"
	"dlass/internal/external/kv"
	"dlass/internal/model"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ConnectRequest учетные данные пространства имен удаленного хранилища
type ConnectRequest struct {
	Namespace string `json:"namespace" validate:"required,max=100"`
	Password  string `json:"password" validate:"required,max=100"`
}

// ConnectResult результат подключения доски
type ConnectResult struct {
	Namespace string          `json:"namespace"`
	Migration MigrationResult `json:"migration"`
	Warning   string          `json:"warning,omitempty"`
}

// WhiteboardSyncService управляет подключением доски к удаленному хранилищу
type WhiteboardSyncService struct {
	store     model.Store
	remote    RemoteStore
	migration *MigrationService
	clock     calendar.Clock
	validate  *validator.Validate
	logger    *zap.Logger
}

// NewWhiteboardSyncService создает новый сервис синхронизации досок
func NewWhiteboardSyncService(deps Dependencies, migration *MigrationService) *WhiteboardSyncService {
	return &WhiteboardSyncService{
		store:     deps.Store,
		remote:    deps.Remote,
		migration: migration,
		clock:     deps.Clock,
		validate:  newValidator(),
		logger:    deps.Logger,
	}
}

// TestConnection проверяет учетные данные без сохранения
func (s *WhiteboardSyncService) TestConnection(ctx context.Context, req ConnectRequest) (kv.Session, error) {
	if err := validateStruct(s.validate, req); err != nil {
		return kv.Session{}, err
	}

	session, err := s.remote.Authenticate(ctx, req.Namespace, req.Password)
	if err != nil {
		s.logger.Info("Remote store connection test failed",
			zap.String("namespace", req.Namespace),
			zap.Error(err))
		return kv.Session{}, err
	}

	return session, nil
}

// Connect аутентифицирует доску, сохраняет учетные данные и переносит локальные задания.
// Сбой миграции возвращается предупреждением, подключение при этом сохраняется.
func (s *WhiteboardSyncService) Connect(ctx context.Context, actor model.Actor, whiteboardID int64, req ConnectRequest) (*ConnectResult, error) {
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	wb, err := s.ownedWhiteboard(ctx, actor, whiteboardID)
	if err != nil {
		return nil, err
	}

	session, err := s.remote.Authenticate(ctx, req.Namespace, req.Password)
	if err != nil {
		s.logger.Warn("Failed to connect whiteboard to remote store",
			zap.Int64("whiteboard_id", whiteboardID),
			zap.String("namespace", req.Namespace),
			zap.Error(err))
		return nil, err
	}

	wb.Connect(req.Namespace, req.Password, session.Token, s.clock.Now())
	if err := s.store.Whiteboards().SaveRemoteSync(ctx, wb.ID, wb.RemoteSync); err != nil {
		return nil, model.WrapStorage("save remote settings", err)
	}

	s.logger.Info("Whiteboard connected to remote store",
		zap.Int64("whiteboard_id", whiteboardID),
		zap.String("namespace", req.Namespace))

	result := &ConnectResult{Namespace: req.Namespace}

	migration, err := s.migration.Migrate(ctx, wb)
	switch {
	case err != nil:
		result.Warning = fmt.Sprintf("migration failed: %v", err)
	case !migration.Success:
		result.Warning = "migration failed: " + migration.Reason
	case len(migration.Skipped) > 0:
		result.Warning = fmt.Sprintf("%d day groups were not migrated", len(migration.Skipped))
	}
	result.Migration = migration

	return result, nil
}

// Disconnect отключает доску от удаленного хранилища и очищает учетные данные
func (s *WhiteboardSyncService) Disconnect(ctx context.Context, actor model.Actor, whiteboardID int64) error {
	wb, err := s.ownedWhiteboard(ctx, actor, whiteboardID)
	if err != nil {
		return err
	}

	wb.Reset()
	if err := s.store.Whiteboards().SaveRemoteSync(ctx, wb.ID, wb.RemoteSync); err != nil {
		return model.WrapStorage("clear remote settings", err)
	}

	s.logger.Info("Whiteboard disconnected from remote store", zap.Int64("whiteboard_id", whiteboardID))
	return nil
}

// Migrate повторно переносит локальные задания подключенной доски
func (s *WhiteboardSyncService) Migrate(ctx context.Context, actor model.Actor, whiteboardID int64) (MigrationResult, error) {
	wb, err := s.ownedWhiteboard(ctx, actor, whiteboardID)
	if err != nil {
		return MigrationResult{}, err
	}
	return s.migration.Migrate(ctx, wb)
}

// EnsureAccessToken возвращает токен доступа доски, создавая его при первом обращении
func (s *WhiteboardSyncService) EnsureAccessToken(ctx context.Context, whiteboardID int64) (string, error) {
	var token string

	err := s.store.RunInTx(ctx, func(ctx context.Context, repos model.Repositories) error {
		wb, err := loadWhiteboard(ctx, repos, whiteboardID)
		if err != nil {
			return err
		}

		if wb.AccessToken != nil && *wb.AccessToken != "" {
			token = *wb.AccessToken
			return nil
		}

		token = uuid.NewString()
		saved, err := repos.Whiteboards().SetAccessToken(ctx, whiteboardID, token, s.clock.Now())
		if err != nil {
			return model.WrapStorage("save access token", err)
		}
		if !saved {
			// Токен успел создать другой запрос
			wb, err = loadWhiteboard(ctx, repos, whiteboardID)
			if err != nil {
				return err
			}
			if wb.AccessToken == nil {
				return fmt.Errorf("access token of whiteboard %d disappeared", whiteboardID)
			}
			token = *wb.AccessToken
			return nil
		}

		s.logger.Info("Generated whiteboard access token", zap.Int64("whiteboard_id", whiteboardID))
		return nil
	})
	if err != nil {
		return "", model.WrapStorage("ensure access token", err)
	}

	return token, nil
}

// ownedWhiteboard возвращает доску, если учитель ее классный руководитель
func (s *WhiteboardSyncService) ownedWhiteboard(ctx context.Context, actor model.Actor, whiteboardID int64) (*model.Whiteboard, error) {
	wb, err := loadWhiteboard(ctx, s.store, whiteboardID)
	if err != nil {
		return nil, err
	}
	if wb.ClassOwnerID != actor.TeacherID {
		return nil, model.NewPermissionError("only the class owner can configure the remote store")
	}
	return wb, nil
}
