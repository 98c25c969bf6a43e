// Package memory содержит хранилище в памяти с теми же контрактами, что и Postgres.
// Транзакции выполняются по одной и при ошибке откатывают только свои записи.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"dlass/internal/model"
)

// Store хранилище в памяти
type Store struct {
	mu   sync.Mutex
	txMu sync.Mutex

	assignments   map[int64]model.Assignment
	whiteboards   map[int64]model.Whiteboard
	classTeachers map[int64]model.ClassTeacher

	nextAssignmentID   int64
	nextWhiteboardID   int64
	nextClassTeacherID int64

	// FailOn позволяет тестам имитировать сбой операции, ключ вида "assignments.create"
	FailOn map[string]error
}

var _ model.Store = (*Store)(nil)

// New создает пустое хранилище
func New() *Store {
	return &Store{
		assignments:   map[int64]model.Assignment{},
		whiteboards:   map[int64]model.Whiteboard{},
		classTeachers: map[int64]model.ClassTeacher{},
		FailOn:        map[string]error{},
	}
}

// RunInTx выполняет fn, откатывая изменения при ошибке.
// Следующая транзакция ждет завершения текущей.
func (s *Store) RunInTx(ctx context.Context, fn func(ctx context.Context, repos model.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &txRepos{s: s, j: &journal{}}
	if err := fn(ctx, tx); err != nil {
		s.rollback(tx.j)
		return err
	}

	return nil
}

// Ping всегда успешен
func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close ничего не делает
func (s *Store) Close() error {
	return nil
}

// Assignments возвращает репозиторий заданий
func (s *Store) Assignments() model.AssignmentRepository {
	return assignmentRepo{s: s}
}

// Whiteboards возвращает репозиторий досок
func (s *Store) Whiteboards() model.WhiteboardRepository {
	return whiteboardRepo{s: s}
}

// ClassTeachers возвращает репозиторий привязок учителей
func (s *Store) ClassTeachers() model.ClassTeacherRepository {
	return classTeacherRepo{s: s}
}

// AssignmentCount возвращает число строк заданий
func (s *Store) AssignmentCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.assignments)
}

// journal хранит отмену записей одной транзакции
type journal struct {
	undo []func()
}

// record вызывается под s.mu; вне транзакции j == nil
func (j *journal) record(undo func()) {
	if j != nil {
		j.undo = append(j.undo, undo)
	}
}

func (s *Store) rollback(j *journal) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
}

// txRepos репозитории внутри транзакции
type txRepos struct {
	s *Store
	j *journal
}

func (t *txRepos) Assignments() model.AssignmentRepository {
	return assignmentRepo{s: t.s, j: t.j}
}

func (t *txRepos) Whiteboards() model.WhiteboardRepository {
	return whiteboardRepo{s: t.s, j: t.j}
}

func (t *txRepos) ClassTeachers() model.ClassTeacherRepository {
	return classTeacherRepo{s: t.s, j: t.j}
}

func (s *Store) fail(op string) error {
	if err, ok := s.FailOn[op]; ok && err != nil {
		return fmt.Errorf("memory store %s: %w", op, err)
	}
	return nil
}

type assignmentRepo struct {
	s *Store
	j *journal
}

func (r assignmentRepo) GetByID(ctx context.Context, id int64) (*model.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fail("assignments.get"); err != nil {
		return nil, err
	}
	a, ok := r.s.assignments[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r assignmentRepo) FindByKey(ctx context.Context, key model.AssignmentKey) (*model.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fail("assignments.find"); err != nil {
		return nil, err
	}
	var found *model.Assignment
	for _, a := range r.s.sortedAssignments(func(x, y model.Assignment) bool { return x.CreatedAt.Before(y.CreatedAt) }) {
		a := a
		if key.Matches(&a) {
			found = &a
			break
		}
	}
	return found, nil
}

func (r assignmentRepo) LatestBySubject(ctx context.Context, whiteboardID int64, subject string) (*model.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, a := range r.s.sortedAssignments(createdDesc) {
		if a.WhiteboardID == whiteboardID && a.Subject == subject {
			a := a
			return &a, nil
		}
	}
	return nil, nil
}

func (r assignmentRepo) ListByWhiteboard(ctx context.Context, whiteboardID int64) ([]model.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fail("assignments.list"); err != nil {
		return nil, err
	}
	var out []model.Assignment
	for _, a := range r.s.sortedAssignments(createdDesc) {
		if a.WhiteboardID == whiteboardID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r assignmentRepo) ListForMigration(ctx context.Context, whiteboardID int64) ([]model.Assignment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fail("assignments.list"); err != nil {
		return nil, err
	}
	var out []model.Assignment
	for _, a := range r.s.sortedAssignments(func(x, y model.Assignment) bool { return x.ID < y.ID }) {
		if a.WhiteboardID == whiteboardID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (r assignmentRepo) Create(ctx context.Context, a *model.Assignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fail("assignments.create"); err != nil {
		return err
	}
	r.s.nextAssignmentID++
	a.ID = r.s.nextAssignmentID
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = a.CreatedAt
	}
	r.s.assignments[a.ID] = *a

	id := a.ID
	r.j.record(func() { delete(r.s.assignments, id) })
	return nil
}

func (r assignmentRepo) Update(ctx context.Context, a *model.Assignment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fail("assignments.update"); err != nil {
		return err
	}
	prev, ok := r.s.assignments[a.ID]
	if !ok {
		return fmt.Errorf("assignment %d: %w", a.ID, model.ErrNotFound)
	}
	r.s.assignments[a.ID] = *a
	r.j.record(func() { r.s.assignments[prev.ID] = prev })
	return nil
}

func (r assignmentRepo) Delete(ctx context.Context, id int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fail("assignments.delete"); err != nil {
		return err
	}
	if prev, ok := r.s.assignments[id]; ok {
		delete(r.s.assignments, id)
		r.j.record(func() { r.s.assignments[prev.ID] = prev })
	}
	return nil
}

func createdDesc(x, y model.Assignment) bool {
	if x.CreatedAt.Equal(y.CreatedAt) {
		return x.ID > y.ID
	}
	return x.CreatedAt.After(y.CreatedAt)
}

// sortedAssignments вызывается под s.mu
func (s *Store) sortedAssignments(less func(x, y model.Assignment) bool) []model.Assignment {
	out := make([]model.Assignment, 0, len(s.assignments))
	for _, a := range s.assignments {
		out = append(out, a)
	}
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

type whiteboardRepo struct {
	s *Store
	j *journal
}

func (r whiteboardRepo) GetByID(ctx context.Context, id int64) (*model.Whiteboard, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fail("whiteboards.get"); err != nil {
		return nil, err
	}
	wb, ok := r.s.whiteboards[id]
	if !ok {
		return nil, nil
	}
	return &wb, nil
}

func (r whiteboardRepo) ListRemoteEnabled(ctx context.Context) ([]model.Whiteboard, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var out []model.Whiteboard
	for _, wb := range r.s.whiteboards {
		if wb.UseRemote {
			out = append(out, wb)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r whiteboardRepo) Create(ctx context.Context, wb *model.Whiteboard) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	r.s.nextWhiteboardID++
	wb.ID = r.s.nextWhiteboardID
	if wb.CreatedAt.IsZero() {
		wb.CreatedAt = time.Now()
	}
	r.s.whiteboards[wb.ID] = *wb

	id := wb.ID
	r.j.record(func() { delete(r.s.whiteboards, id) })
	return nil
}

func (r whiteboardRepo) Update(ctx context.Context, wb *model.Whiteboard) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fail("whiteboards.update"); err != nil {
		return err
	}
	prev, ok := r.s.whiteboards[wb.ID]
	if !ok {
		return fmt.Errorf("whiteboard %d: %w", wb.ID, model.ErrNotFound)
	}
	r.s.whiteboards[wb.ID] = *wb
	r.recordWhiteboard(prev)
	return nil
}

func (r whiteboardRepo) TouchLastSync(ctx context.Context, id int64, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fail("whiteboards.touch"); err != nil {
		return err
	}
	wb, ok := r.s.whiteboards[id]
	if !ok {
		return fmt.Errorf("whiteboard %d: %w", id, model.ErrNotFound)
	}
	r.recordWhiteboard(wb)
	wb.LastSync = &at
	r.s.whiteboards[id] = wb
	return nil
}

func (r whiteboardRepo) SaveRemoteSync(ctx context.Context, id int64, rs model.RemoteSync) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fail("whiteboards.update"); err != nil {
		return err
	}
	wb, ok := r.s.whiteboards[id]
	if !ok {
		return fmt.Errorf("whiteboard %d: %w", id, model.ErrNotFound)
	}
	r.recordWhiteboard(wb)
	wb.RemoteSync = rs
	r.s.whiteboards[id] = wb
	return nil
}

func (r whiteboardRepo) RefreshRemoteToken(ctx context.Context, id int64, seen model.RemoteSync, token string) (bool, error) {
	return r.updateRemote(id, seen, func(rs *model.RemoteSync) {
		rs.AuthToken = &token
		rs.Connected = true
	})
}

func (r whiteboardRepo) MarkRemoteDisconnected(ctx context.Context, id int64, seen model.RemoteSync) (bool, error) {
	return r.updateRemote(id, seen, func(rs *model.RemoteSync) {
		rs.MarkDisconnected()
	})
}

// updateRemote применяет fn, если удаленный режим включен и учетные данные не менялись
func (r whiteboardRepo) updateRemote(id int64, seen model.RemoteSync, fn func(rs *model.RemoteSync)) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fail("whiteboards.update"); err != nil {
		return false, err
	}
	wb, ok := r.s.whiteboards[id]
	if !ok || !wb.UseRemote || !wb.SameCredentials(seen) {
		return false, nil
	}
	r.recordWhiteboard(wb)
	fn(&wb.RemoteSync)
	r.s.whiteboards[id] = wb
	return true, nil
}

func (r whiteboardRepo) SetAccessToken(ctx context.Context, id int64, token string, at time.Time) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if err := r.s.fail("whiteboards.update"); err != nil {
		return false, err
	}
	wb, ok := r.s.whiteboards[id]
	if !ok || (wb.AccessToken != nil && *wb.AccessToken != "") {
		return false, nil
	}
	r.recordWhiteboard(wb)
	wb.AccessToken = &token
	wb.TokenCreatedAt = &at
	r.s.whiteboards[id] = wb
	return true, nil
}

// recordWhiteboard запоминает прежнюю строку для отката, вызывается под s.mu
func (r whiteboardRepo) recordWhiteboard(prev model.Whiteboard) {
	r.j.record(func() { r.s.whiteboards[prev.ID] = prev })
}

type classTeacherRepo struct {
	s *Store
	j *journal
}

func (r classTeacherRepo) Get(ctx context.Context, classID, teacherID int64) (*model.ClassTeacher, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, ct := range r.s.classTeachers {
		if ct.ClassID == classID && ct.TeacherID == teacherID {
			ct := ct
			return &ct, nil
		}
	}
	return nil, nil
}

func (r classTeacherRepo) Create(ctx context.Context, ct *model.ClassTeacher) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for id, existing := range r.s.classTeachers {
		if existing.ClassID == ct.ClassID && existing.TeacherID == ct.TeacherID {
			prev := existing
			ct.ID = id
			r.s.classTeachers[id] = *ct
			r.j.record(func() { r.s.classTeachers[prev.ID] = prev })
			return nil
		}
	}
	r.s.nextClassTeacherID++
	ct.ID = r.s.nextClassTeacherID
	r.s.classTeachers[ct.ID] = *ct

	id := ct.ID
	r.j.record(func() { delete(r.s.classTeachers, id) })
	return nil
}
