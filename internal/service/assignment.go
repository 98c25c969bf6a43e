// Package service содержит бизнес-логику приложения.
package service

import (
	"context"
	"fmt"
	"time"

	"dlass/internal/calendar"
	"dlass/internal/external/kv"
	"dlass/internal/metrics"
	"dlass/internal/model"
	"dlass/internal/notify"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// RemoteAssignmentID идентификатор заданий, прочитанных из удаленного хранилища
const RemoteAssignmentID = "remote"

// PublishRequest запрос публикации задания
type PublishRequest struct {
	WhiteboardID int64  `json:"-"`
	Subject      string `json:"subject" validate:"required,max=50"`
	Title        string `json:"title" validate:"required,max=100"`
	Description  string `json:"description" validate:"required"`
	DueDate      string `json:"due_date" validate:"required"`
}

// PublishResult результат публикации
type PublishResult struct {
	AssignmentID int64       `json:"assignment_id"`
	IsUpdate     bool        `json:"is_update"`
	StorageType  StorageType `json:"storage_type"`
}

// AssignmentView задание в ответах Check и List
type AssignmentView struct {
	ID          interface{} `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Subject     string      `json:"subject"`
	DueDate     string      `json:"due_date,omitempty"`
	CreatedAt   string      `json:"created_at,omitempty"`
	TeacherID   int64       `json:"teacher_id,omitempty"`
	CanDelete   bool        `json:"can_delete"`
}

// AssignmentService публикует, читает и удаляет задания в локальном или удаленном хранилище
type AssignmentService struct {
	store    model.Store
	remote   RemoteStore
	events   notify.Publisher
	metrics  *metrics.Metrics
	clock    calendar.Clock
	loc      *time.Location
	validate *validator.Validate
	logger   *zap.Logger

	// remoteTimeout общий срок пары get+put внутри открытой транзакции
	remoteTimeout time.Duration
}

// NewAssignmentService создает новый сервис заданий
func NewAssignmentService(deps Dependencies) *AssignmentService {
	if deps.RemoteTimeout <= 0 {
		deps.RemoteTimeout = DefaultRemoteTimeout
	}

	return &AssignmentService{
		store:    deps.Store,
		remote:   deps.Remote,
		events:   deps.Events,
		metrics:  deps.Metrics,
		clock:    deps.Clock,
		loc:      deps.Location,
		validate: newValidator(),
		logger:   deps.Logger,

		remoteTimeout: deps.RemoteTimeout,
	}
}

// publishOutcome то, что нужно отправить после фиксации транзакции
type publishOutcome struct {
	result    PublishResult
	eventType notify.EventType
	payload   notify.AssignmentPayload
}

// Publish публикует задание на доску
func (s *AssignmentService) Publish(ctx context.Context, actor model.Actor, req PublishRequest) (*PublishResult, error) {
	if err := validateStruct(s.validate, req); err != nil {
		return nil, err
	}

	dueDate, err := calendar.Parse(req.DueDate, s.loc)
	if err != nil {
		return nil, model.NewValidationError("due_date", "invalid date format")
	}

	var outcome publishOutcome
	err = s.store.RunInTx(ctx, func(ctx context.Context, repos model.Repositories) error {
		wb, err := loadWhiteboard(ctx, repos, req.WhiteboardID)
		if err != nil {
			return err
		}

		acc, err := resolveAccess(ctx, repos, wb, actor)
		if err != nil {
			return err
		}
		if !acc.allowed() {
			return model.NewPermissionError("teacher %d cannot publish on whiteboard %d", actor.TeacherID, wb.ID)
		}
		if !acc.teaches(req.Subject) {
			return model.NewPermissionError("teacher %d is not assigned subject %q", actor.TeacherID, req.Subject)
		}

		mode := ResolveMode(wb)
		if mode.IsRemote() {
			return s.publishRemote(ctx, repos, mode, actor, req, dueDate, &outcome)
		}
		return s.publishLocal(ctx, repos, acc, actor, req, dueDate, &outcome)
	})
	if err != nil {
		s.logger.Warn("Failed to publish assignment",
			zap.Int64("whiteboard_id", req.WhiteboardID),
			zap.String("subject", req.Subject),
			zap.Error(err))
		return nil, model.WrapStorage("publish assignment", err)
	}

	s.metrics.RecordPublish(string(outcome.result.StorageType), outcome.result.IsUpdate)
	s.events.Publish(req.WhiteboardID, outcome.eventType, outcome.payload)

	s.logger.Info("Assignment published",
		zap.Int64("whiteboard_id", req.WhiteboardID),
		zap.Int64("assignment_id", outcome.result.AssignmentID),
		zap.String("subject", req.Subject),
		zap.Bool("is_update", outcome.result.IsUpdate),
		zap.String("storage_type", string(outcome.result.StorageType)))

	return &outcome.result, nil
}

// publishLocal выполняет upsert по ключу (доска, предмет, сутки создания)
func (s *AssignmentService) publishLocal(ctx context.Context, repos model.Repositories, acc access, actor model.Actor, req PublishRequest, dueDate time.Time, out *publishOutcome) error {
	now := s.clock.Now()
	key := model.AssignmentKey{
		WhiteboardID: req.WhiteboardID,
		Subject:      req.Subject,
		Day:          calendar.DayOf(now, s.loc),
	}

	existing, err := repos.Assignments().FindByKey(ctx, key)
	if err != nil {
		return model.WrapStorage("find assignment", err)
	}

	if existing != nil {
		if !acc.canModify(actor, existing) {
			return model.NewPermissionError("teacher %d cannot update assignment %d", actor.TeacherID, existing.ID)
		}

		existing.Title = req.Title
		existing.Description = req.Description
		existing.DueDate = dueDate
		existing.UpdatedAt = now
		if err := repos.Assignments().Update(ctx, existing); err != nil {
			return model.WrapStorage("update assignment", err)
		}

		out.result = PublishResult{AssignmentID: existing.ID, IsUpdate: true, StorageType: StorageLocal}
		out.eventType = notify.EventUpdateAssignment
		out.payload = s.payload(existing, StorageLocal)
		out.payload.CreatedAt = ""
		return nil
	}

	assignment := s.newAssignment(actor, req, dueDate, now)
	if err := repos.Assignments().Create(ctx, assignment); err != nil {
		return model.WrapStorage("create assignment", err)
	}

	out.result = PublishResult{AssignmentID: assignment.ID, StorageType: StorageLocal}
	out.eventType = notify.EventNewAssignment
	out.payload = s.payload(assignment, StorageLocal)
	out.payload.UpdatedAt = ""
	return nil
}

// publishRemote пишет журнальную строку и заменяет запись предмета в документе дня срока сдачи.
// Любой сбой удаленного хранилища удаляет журнальную строку.
func (s *AssignmentService) publishRemote(ctx context.Context, repos model.Repositories, mode StorageMode, actor model.Actor, req PublishRequest, dueDate time.Time, out *publishOutcome) error {
	now := s.clock.Now()
	session, _ := mode.Session()

	assignment := s.newAssignment(actor, req, dueDate, now)
	if err := repos.Assignments().Create(ctx, assignment); err != nil {
		return model.WrapStorage("create assignment", err)
	}

	remoteCtx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()

	dayKey := calendar.DayKey(dueDate, s.loc)
	doc, err := s.remote.GetDocument(remoteCtx, session, dayKey)
	if err != nil {
		return s.rollbackAudit(ctx, repos, assignment, dayKey, err)
	}

	entry := kv.HomeworkEntry{
		Content: req.Description,
		Title:   req.Title,
		DueDate: calendar.FormatISO(dueDate, s.loc),
	}
	if err := doc.SetEntry(req.Subject, entry); err != nil {
		return s.rollbackAudit(ctx, repos, assignment, dayKey, err)
	}

	if err := s.remote.PutDocument(remoteCtx, session, dayKey, doc); err != nil {
		return s.rollbackAudit(ctx, repos, assignment, dayKey, err)
	}

	// Документ уже записан; сбой здесь откатывает журнальную строку как любая локальная ошибка
	if err := repos.Whiteboards().TouchLastSync(ctx, req.WhiteboardID, now); err != nil {
		return model.WrapStorage("update last sync", err)
	}

	out.result = PublishResult{AssignmentID: assignment.ID, StorageType: StorageRemote}
	out.eventType = notify.EventNewAssignment
	out.payload = s.payload(assignment, StorageRemote)
	out.payload.UpdatedAt = ""
	return nil
}

// rollbackAudit удаляет журнальную строку и возвращает PublishError
func (s *AssignmentService) rollbackAudit(ctx context.Context, repos model.Repositories, assignment *model.Assignment, dayKey string, cause error) error {
	s.metrics.RecordRollback()

	s.logger.Warn("Remote store rejected assignment, rolling back audit row",
		zap.Int64("assignment_id", assignment.ID),
		zap.String("day_key", dayKey),
		zap.Error(cause))

	if err := repos.Assignments().Delete(ctx, assignment.ID); err != nil {
		s.logger.Error("Failed to delete audit row",
			zap.Int64("assignment_id", assignment.ID),
			zap.Error(err))
	}

	return &model.PublishError{Err: cause}
}

// Check возвращает текущее задание предмета или nil
func (s *AssignmentService) Check(ctx context.Context, actor model.Actor, whiteboardID int64, subject string) (*AssignmentView, error) {
	wb, acc, err := s.authorize(ctx, actor, whiteboardID)
	if err != nil {
		return nil, err
	}

	if subject == "" {
		return nil, model.NewValidationError("subject", "is required")
	}
	if !acc.teaches(subject) {
		return nil, model.NewPermissionError("teacher %d is not assigned subject %q", actor.TeacherID, subject)
	}

	mode := ResolveMode(wb)
	if mode.IsRemote() {
		session, _ := mode.Session()
		dayKey := calendar.DayKey(s.clock.Now(), s.loc)

		doc, err := s.remote.GetDocument(ctx, session, dayKey)
		if err != nil {
			s.metrics.RecordRemoteFailure()
			s.logger.Warn("Failed to read remote document for check",
				zap.Int64("whiteboard_id", whiteboardID),
				zap.String("day_key", dayKey),
				zap.Error(err))
			return nil, nil
		}

		entry, ok := doc.Entry(subject)
		if !ok {
			return nil, nil
		}
		view := s.remoteView(subject, entry, actor)
		return &view, nil
	}

	assignment, err := s.store.Assignments().LatestBySubject(ctx, whiteboardID, subject)
	if err != nil {
		return nil, model.WrapStorage("check assignment", err)
	}
	if assignment == nil {
		return nil, nil
	}

	return &AssignmentView{
		ID:          assignment.ID,
		Title:       assignment.Title,
		Description: assignment.Description,
		Subject:     assignment.Subject,
		DueDate:     calendar.Format(assignment.DueDate, s.loc),
		TeacherID:   assignment.TeacherID,
		CanDelete:   acc.canModify(actor, assignment),
	}, nil
}

// List возвращает задания доски
func (s *AssignmentService) List(ctx context.Context, actor model.Actor, whiteboardID int64) ([]AssignmentView, error) {
	wb, acc, err := s.authorize(ctx, actor, whiteboardID)
	if err != nil {
		return nil, err
	}

	mode := ResolveMode(wb)
	if mode.IsRemote() {
		session, _ := mode.Session()
		dayKey := calendar.DayKey(s.clock.Now(), s.loc)

		doc, err := s.remote.GetDocument(ctx, session, dayKey)
		if err != nil {
			s.metrics.RecordRemoteFailure()
			return nil, fmt.Errorf("failed to list remote assignments: %w", err)
		}

		subjects := doc.Subjects()
		views := make([]AssignmentView, 0, len(subjects))
		for _, subject := range subjects {
			entry, ok := doc.Entry(subject)
			if !ok {
				continue
			}
			views = append(views, s.remoteView(subject, entry, actor))
		}
		return views, nil
	}

	assignments, err := s.store.Assignments().ListByWhiteboard(ctx, whiteboardID)
	if err != nil {
		return nil, model.WrapStorage("list assignments", err)
	}

	views := make([]AssignmentView, 0, len(assignments))
	for i := range assignments {
		a := &assignments[i]
		views = append(views, AssignmentView{
			ID:          a.ID,
			Title:       a.Title,
			Description: a.Description,
			Subject:     a.Subject,
			DueDate:     calendar.Format(a.DueDate, s.loc),
			CreatedAt:   calendar.Format(a.CreatedAt, s.loc),
			TeacherID:   a.TeacherID,
			CanDelete:   acc.canModify(actor, a),
		})
	}
	return views, nil
}

// Delete удаляет задание. В удаленном режиме запись предмета убирается из документа
// дня срока сдачи без гарантий, локальная строка удаляется всегда.
func (s *AssignmentService) Delete(ctx context.Context, actor model.Actor, assignmentID int64) error {
	var (
		whiteboardID int64
		subject      string
		storageType  StorageType
	)

	err := s.store.RunInTx(ctx, func(ctx context.Context, repos model.Repositories) error {
		assignment, err := repos.Assignments().GetByID(ctx, assignmentID)
		if err != nil {
			return model.WrapStorage("load assignment", err)
		}
		if assignment == nil {
			return fmt.Errorf("assignment %d: %w", assignmentID, model.ErrNotFound)
		}

		wb, err := loadWhiteboard(ctx, repos, assignment.WhiteboardID)
		if err != nil {
			return err
		}

		if wb.ClassOwnerID != actor.TeacherID && assignment.TeacherID != actor.TeacherID {
			return model.NewPermissionError("teacher %d cannot delete assignment %d", actor.TeacherID, assignmentID)
		}

		mode := ResolveMode(wb)
		if mode.IsRemote() {
			s.removeRemoteEntry(ctx, mode, assignment)
		}

		if err := repos.Assignments().Delete(ctx, assignment.ID); err != nil {
			return model.WrapStorage("delete assignment", err)
		}

		whiteboardID = wb.ID
		subject = assignment.Subject
		storageType = mode.Type()
		return nil
	})
	if err != nil {
		return model.WrapStorage("delete assignment", err)
	}

	s.metrics.RecordDelete(string(storageType))
	s.events.Publish(whiteboardID, notify.EventDeleteAssignment, notify.AssignmentPayload{
		ID:          assignmentID,
		Subject:     subject,
		StorageType: string(storageType),
	})

	s.logger.Info("Assignment deleted",
		zap.Int64("assignment_id", assignmentID),
		zap.Int64("whiteboard_id", whiteboardID),
		zap.String("storage_type", string(storageType)))

	return nil
}

// removeRemoteEntry убирает предмет из документа дня, ошибки только логируются
func (s *AssignmentService) removeRemoteEntry(ctx context.Context, mode StorageMode, assignment *model.Assignment) {
	session, _ := mode.Session()
	dayKey := calendar.DayKey(assignment.DueDate, s.loc)

	ctx, cancel := context.WithTimeout(ctx, s.remoteTimeout)
	defer cancel()

	doc, err := s.remote.GetDocument(ctx, session, dayKey)
	if err != nil {
		s.metrics.RecordRemoteDeleteFailure()
		s.logger.Warn("Failed to fetch remote document for delete",
			zap.Int64("assignment_id", assignment.ID),
			zap.String("day_key", dayKey),
			zap.Error(err))
		return
	}

	if !doc.RemoveEntry(assignment.Subject) {
		return
	}

	if err := s.remote.PutDocument(ctx, session, dayKey, doc); err != nil {
		s.metrics.RecordRemoteDeleteFailure()
		s.logger.Warn("Failed to save remote document after delete",
			zap.Int64("assignment_id", assignment.ID),
			zap.String("day_key", dayKey),
			zap.Error(err))
	}
}

// CanView проверяет, что учитель имеет доступ к доске
func (s *AssignmentService) CanView(ctx context.Context, actor model.Actor, whiteboardID int64) error {
	_, _, err := s.authorize(ctx, actor, whiteboardID)
	return err
}

// authorize загружает доску и проверяет, что учитель имеет к ней доступ
func (s *AssignmentService) authorize(ctx context.Context, actor model.Actor, whiteboardID int64) (*model.Whiteboard, access, error) {
	wb, err := loadWhiteboard(ctx, s.store, whiteboardID)
	if err != nil {
		return nil, access{}, err
	}

	acc, err := resolveAccess(ctx, s.store, wb, actor)
	if err != nil {
		return nil, access{}, err
	}
	if !acc.allowed() {
		return nil, access{}, model.NewPermissionError("teacher %d has no access to whiteboard %d", actor.TeacherID, whiteboardID)
	}

	return wb, acc, nil
}

func (s *AssignmentService) newAssignment(actor model.Actor, req PublishRequest, dueDate, now time.Time) *model.Assignment {
	return &model.Assignment{
		Title:        req.Title,
		Description:  req.Description,
		Subject:      req.Subject,
		DueDate:      dueDate,
		WhiteboardID: req.WhiteboardID,
		TeacherID:    actor.TeacherID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func (s *AssignmentService) payload(a *model.Assignment, storageType StorageType) notify.AssignmentPayload {
	return notify.AssignmentPayload{
		ID:          a.ID,
		Title:       a.Title,
		Description: a.Description,
		Subject:     a.Subject,
		DueDate:     calendar.Format(a.DueDate, s.loc),
		CreatedAt:   calendar.Format(a.CreatedAt, s.loc),
		UpdatedAt:   calendar.Format(a.UpdatedAt, s.loc),
		TeacherID:   a.TeacherID,
		StorageType: string(storageType),
	}
}

// remoteView строит представление записи удаленного документа
func (s *AssignmentService) remoteView(subject string, entry kv.HomeworkEntry, actor model.Actor) AssignmentView {
	view := AssignmentView{
		ID:          RemoteAssignmentID,
		Title:       entry.Title,
		Description: entry.Content,
		Subject:     subject,
		CreatedAt:   calendar.Format(s.clock.Now(), s.loc),
		TeacherID:   actor.TeacherID,
		CanDelete:   true,
	}
	if entry.DueDate != "" {
		if due, err := calendar.Parse(entry.DueDate, s.loc); err == nil {
			view.DueDate = calendar.Format(due, s.loc)
		} else {
			view.DueDate = entry.DueDate
		}
	}
	return view
}
