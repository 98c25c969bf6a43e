package service

import (
	"context"
	"time"

	"dlass/internal/calendar"
	"dlass/internal/external/kv"
	"dlass/internal/metrics"
	"dlass/internal/model"

	"go.uber.org/zap"
)

// MigrationResult итог переноса локальных заданий в удаленное хранилище
type MigrationResult struct {
	Migrated int      `json:"migrated"`
	Groups   int      `json:"groups"`
	Skipped  []string `json:"skipped,omitempty"`
	Success  bool     `json:"success"`
	Reason   string   `json:"reason,omitempty"`
}

// MigrationService переносит локальные задания в документы дней.
// Локальные строки не удаляются.
type MigrationService struct {
	store   model.Store
	remote  RemoteStore
	metrics *metrics.Metrics
	loc     *time.Location
	logger  *zap.Logger
}

// NewMigrationService создает новый сервис миграции
func NewMigrationService(deps Dependencies) *MigrationService {
	return &MigrationService{
		store:   deps.Store,
		remote:  deps.Remote,
		metrics: deps.Metrics,
		loc:     deps.Location,
		logger:  deps.Logger,
	}
}

// dayGroup задания одного дня срока сдачи
type dayGroup struct {
	key         string
	assignments []model.Assignment
}

// Migrate группирует задания доски по ключу дня срока сдачи и записывает каждую группу
// одним чтением и одной записью. Группа пропускается при сбое чтения или записи.
func (s *MigrationService) Migrate(ctx context.Context, wb *model.Whiteboard) (MigrationResult, error) {
	mode := ResolveMode(wb)
	session, ok := mode.Session()
	if !ok {
		return MigrationResult{Reason: "remote store is not connected"}, nil
	}

	assignments, err := s.store.Assignments().ListForMigration(ctx, wb.ID)
	if err != nil {
		return MigrationResult{}, model.WrapStorage("list assignments for migration", err)
	}

	groups := groupByDueDay(assignments, s.loc)
	result := MigrationResult{Groups: len(groups)}

	s.logger.Info("Starting migration to remote store",
		zap.Int64("whiteboard_id", wb.ID),
		zap.Int("assignments", len(assignments)),
		zap.Int("groups", len(groups)))

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if err := s.migrateGroup(ctx, session, group); err != nil {
			result.Skipped = append(result.Skipped, group.key)
			s.logger.Warn("Skipping migration group",
				zap.Int64("whiteboard_id", wb.ID),
				zap.String("day_key", group.key),
				zap.Int("assignments", len(group.assignments)),
				zap.Error(err))
			continue
		}

		result.Migrated += len(group.assignments)
	}

	result.Success = true
	s.metrics.RecordMigration(result.Migrated, len(result.Skipped))

	s.logger.Info("Migration completed",
		zap.Int64("whiteboard_id", wb.ID),
		zap.Int("migrated", result.Migrated),
		zap.Int("skipped_groups", len(result.Skipped)))

	return result, nil
}

// migrateGroup накладывает записи группы на документ дня; поздние строки побеждают
func (s *MigrationService) migrateGroup(ctx context.Context, session kv.Session, group dayGroup) error {
	doc, err := s.remote.GetDocument(ctx, session, group.key)
	if err != nil {
		return err
	}

	for _, a := range group.assignments {
		entry := kv.HomeworkEntry{
			Content: a.Description,
			Title:   a.Title,
			DueDate: calendar.FormatISO(a.DueDate, s.loc),
		}
		if err := doc.SetEntry(a.Subject, entry); err != nil {
			return err
		}
	}

	return s.remote.PutDocument(ctx, session, group.key, doc)
}

// groupByDueDay группирует задания по ключу дня, сохраняя порядок первого появления
func groupByDueDay(assignments []model.Assignment, loc *time.Location) []dayGroup {
	index := make(map[string]int)
	var groups []dayGroup

	for _, a := range assignments {
		key := calendar.DayKey(a.DueDate, loc)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, dayGroup{key: key})
		}
		groups[i].assignments = append(groups[i].assignments, a)
	}

	return groups
}
