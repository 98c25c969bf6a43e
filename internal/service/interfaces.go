package service

import (
	"context"

	"dlass/internal/external/kv"
	"dlass/internal/notify"
)

// RemoteStore определяет интерфейс удаленного хранилища документов дня
type RemoteStore interface {
	Authenticate(ctx context.Context, namespace, password string) (kv.Session, error)
	GetDocument(ctx context.Context, session kv.Session, dayKey string) (kv.Document, error)
	PutDocument(ctx context.Context, session kv.Session, dayKey string, doc kv.Document) error
	Info(ctx context.Context, session kv.Session) (map[string]interface{}, error)
}

var _ RemoteStore = (*kv.Client)(nil)

// EventPublisher публикует события доски
type EventPublisher = notify.Publisher

// MonitorInterface определяет интерфейс для монитора соединений
type MonitorInterface interface {
	Start() error
	Stop()
	RunOnce(ctx context.Context) MonitorReport
}
