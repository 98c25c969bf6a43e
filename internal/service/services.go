package service

import (
	"time"

	"dlass/internal/calendar"
	"dlass/internal/metrics"
	"dlass/internal/model"
	"dlass/internal/notify"

	"go.uber.org/zap"
)

// Dependencies общие зависимости сервисов
type Dependencies struct {
	Store    model.Store
	Remote   RemoteStore
	Events   notify.Publisher
	Metrics  *metrics.Metrics
	Clock    calendar.Clock
	Location *time.Location
	Logger   *zap.Logger

	// RemoteTimeout ограничивает обращения к удаленному хранилищу внутри транзакции
	RemoteTimeout time.Duration
}

// DefaultRemoteTimeout срок пары get+put по умолчанию
const DefaultRemoteTimeout = 10 * time.Second

// Services содержит все сервисы приложения
type Services struct {
	Assignments *AssignmentService
	Migration   *MigrationService
	Whiteboards *WhiteboardSyncService
	Monitor     *ConnectionMonitor
}

// NewServices создает все сервисы
func NewServices(deps Dependencies, monitorCron string) *Services {
	if deps.Location == nil {
		deps.Location = time.UTC
	}
	if deps.Clock == nil {
		deps.Clock = calendar.SystemClock{Location: deps.Location}
	}
	if deps.RemoteTimeout <= 0 {
		deps.RemoteTimeout = DefaultRemoteTimeout
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewMetrics(deps.Logger)
	}

	migration := NewMigrationService(deps)

	return &Services{
		Assignments: NewAssignmentService(deps),
		Migration:   migration,
		Whiteboards: NewWhiteboardSyncService(deps, migration),
		Monitor:     NewConnectionMonitor(deps, monitorCron),
	}
}
