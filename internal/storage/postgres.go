// Package storage содержит работу с базой данных.
package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"dlass/internal/model"
	"dlass/internal/storage/repository"

	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	"go.uber.org/zap"
)

// Postgres представляет подключение к PostgreSQL
type Postgres struct {
	db     *bun.DB
	logger *zap.Logger
}

var _ model.Store = (*Postgres)(nil)

// NewPostgres создает новое подключение к PostgreSQL с retry логикой
func NewPostgres(databaseURL string, logger *zap.Logger) (*Postgres, error) {
	const maxRetries = 10
	const retryDelay = 5 * time.Second

	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		logger.Info("Attempting to connect to database",
			zap.Int("attempt", attempt),
			zap.Int("max_retries", maxRetries))

		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(databaseURL)))

		sqldb.SetMaxOpenConns(25)
		sqldb.SetMaxIdleConns(10)
		sqldb.SetConnMaxLifetime(5 * time.Minute)
		sqldb.SetConnMaxIdleTime(1 * time.Minute)

		db := bun.NewDB(sqldb, pgdialect.New())

		// Отладка запросов в режиме разработки
		if logger.Core().Enabled(zap.DebugLevel) {
			db.AddQueryHook(bundebug.NewQueryHook(
				bundebug.WithVerbose(true),
				bundebug.FromEnv("BUNDEBUG"),
			))
		}

		pingCtx, pingCancel := context.WithTimeout(context.Background(), 10*time.Second)
		lastErr = db.PingContext(pingCtx)
		pingCancel()

		if lastErr != nil {
			logger.Warn("Failed to connect to database",
				zap.Int("attempt", attempt),
				zap.Error(lastErr))

			if err := db.Close(); err != nil {
				logger.Warn("Failed to close database connection", zap.Error(err))
			}

			if attempt == maxRetries {
				break
			}

			logger.Info("Retrying connection", zap.Duration("delay", retryDelay))
			time.Sleep(retryDelay)
			continue
		}

		logger.Info("Connected to PostgreSQL database with Bun ORM", zap.Int("attempt", attempt))

		return &Postgres{
			db:     db,
			logger: logger,
		}, nil
	}

	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", maxRetries, lastErr)
}

// InitSchema создает таблицы, если их нет
func (p *Postgres) InitSchema(ctx context.Context) error {
	models := []interface{}{
		(*model.Whiteboard)(nil),
		(*model.Assignment)(nil),
		(*model.ClassTeacher)(nil),
	}

	for _, m := range models {
		if _, err := p.db.NewCreateTable().Model(m).IfNotExists().Exec(ctx); err != nil {
			return fmt.Errorf("failed to create table for %T: %w", m, err)
		}
	}

	indexes := []struct {
		name    string
		model   interface{}
		columns []string
	}{
		{"idx_assignments_whiteboard_subject_created", (*model.Assignment)(nil), []string{"whiteboard_id", "subject", "created_at"}},
		{"idx_whiteboards_use_remote", (*model.Whiteboard)(nil), []string{"use_remote"}},
	}

	for _, idx := range indexes {
		if _, err := p.db.NewCreateIndex().
			Model(idx.model).
			Index(idx.name).
			Column(idx.columns...).
			IfNotExists().
			Exec(ctx); err != nil {
			return fmt.Errorf("failed to create index %s: %w", idx.name, err)
		}
	}

	p.logger.Info("Database schema is ready")
	return nil
}

// RunInTx выполняет fn в транзакции
func (p *Postgres) RunInTx(ctx context.Context, fn func(ctx context.Context, repos model.Repositories) error) error {
	return p.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, repositories{idb: tx, logger: p.logger})
	})
}

// Ping проверяет подключение
func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Close закрывает соединение с базой данных
func (p *Postgres) Close() error {
	return p.db.Close()
}

// GetDB возвращает подключение к базе данных
func (p *Postgres) GetDB() *bun.DB {
	return p.db
}

// Assignments возвращает репозиторий заданий
func (p *Postgres) Assignments() model.AssignmentRepository {
	return repository.NewAssignmentRepository(p.db, p.logger)
}

// Whiteboards возвращает репозиторий досок
func (p *Postgres) Whiteboards() model.WhiteboardRepository {
	return repository.NewWhiteboardRepository(p.db, p.logger)
}

// ClassTeachers возвращает репозиторий привязок учителей
func (p *Postgres) ClassTeachers() model.ClassTeacherRepository {
	return repository.NewClassTeacherRepository(p.db, p.logger)
}

// repositories репозитории поверх транзакции
type repositories struct {
	idb    bun.IDB
	logger *zap.Logger
}

func (r repositories) Assignments() model.AssignmentRepository {
	return repository.NewAssignmentRepository(r.idb, r.logger)
}

func (r repositories) Whiteboards() model.WhiteboardRepository {
	return repository.NewWhiteboardRepository(r.idb, r.logger)
}

func (r repositories) ClassTeachers() model.ClassTeacherRepository {
	return repository.NewClassTeacherRepository(r.idb, r.logger)
}
