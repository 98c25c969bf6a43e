package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"dlass/internal/calendar"
	"dlass/internal/external/kv"
	"dlass/internal/metrics"
	"dlass/internal/model"
	"dlass/internal/notify"
	"dlass/internal/storage/memory"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeRemote хранит документы дней в памяти и позволяет имитировать сбои
type fakeRemote struct {
	mu sync.Mutex

	docs     map[string][]byte
	password string
	token    string

	getErr  map[string]error
	putErr  map[string]error
	authErr error
	infoErr error

	// authHook и getHook вызываются до обработки запроса, вне блокировки
	authHook func()
	getHook  func(ctx context.Context) error

	gets []string
	puts []string
}

var _ RemoteStore = (*fakeRemote)(nil)

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		docs:     map[string][]byte{},
		password: "secret",
		token:    "tok1",
		getErr:   map[string]error{},
		putErr:   map[string]error{},
	}
}

func (f *fakeRemote) Authenticate(ctx context.Context, namespace, password string) (kv.Session, error) {
	if f.authHook != nil {
		f.authHook()
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.authErr != nil {
		return kv.Session{}, f.authErr
	}
	if password != f.password {
		return kv.Session{}, &kv.AuthError{Reason: "HTTP 401: invalid password"}
	}
	return kv.Session{Namespace: namespace, Token: f.token}, nil
}

func (f *fakeRemote) GetDocument(ctx context.Context, session kv.Session, dayKey string) (kv.Document, error) {
	if f.getHook != nil {
		if err := f.getHook(ctx); err != nil {
			return kv.Document{}, err
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if !session.Valid() {
		return kv.Document{}, kv.ErrNotAuthenticated
	}
	f.gets = append(f.gets, dayKey)
	if err := f.lookup(f.getErr, dayKey); err != nil {
		return kv.Document{}, err
	}

	raw, ok := f.docs[dayKey]
	if !ok {
		return kv.EmptyDocument(), nil
	}
	var doc kv.Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return kv.Document{}, err
	}
	return doc, nil
}

func (f *fakeRemote) PutDocument(ctx context.Context, session kv.Session, dayKey string, doc kv.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !session.Valid() {
		return kv.ErrNotAuthenticated
	}
	f.puts = append(f.puts, dayKey)
	if err := f.lookup(f.putErr, dayKey); err != nil {
		return err
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	f.docs[dayKey] = raw
	return nil
}

func (f *fakeRemote) Info(ctx context.Context, session kv.Session) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return map[string]interface{}{"namespace": session.Namespace}, nil
}

func (f *fakeRemote) lookup(errs map[string]error, dayKey string) error {
	if err, ok := errs[dayKey]; ok {
		return err
	}
	return errs["*"]
}

// doc возвращает сохраненный документ дня
func (f *fakeRemote) doc(t *testing.T, dayKey string) (kv.Document, bool) {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()

	raw, ok := f.docs[dayKey]
	if !ok {
		return kv.Document{}, false
	}
	var doc kv.Document
	require.NoError(t, json.Unmarshal(raw, &doc))
	return doc, true
}

func (f *fakeRemote) putCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.puts)
}

type fixture struct {
	store   *memory.Store
	remote  *fakeRemote
	hub     *notify.Hub
	metrics *metrics.Metrics
	clock   *calendar.FixedClock
	loc     *time.Location
	svc     *Services

	wb      *model.Whiteboard
	owner   model.Actor
	teacher model.Actor
}

const (
	ownerID   int64 = 1
	teacherID int64 = 2
	classID   int64 = 10
)

func newFixture(t *testing.T) *fixture {
	t.Helper()

	loc := time.FixedZone("CST", 8*3600)
	f := &fixture{
		store:   memory.New(),
		remote:  newFakeRemote(),
		hub:     notify.NewHub(16, zap.NewNop()),
		metrics: metrics.NewMetrics(zap.NewNop()),
		clock:   &calendar.FixedClock{T: time.Date(2024, 1, 15, 10, 0, 0, 0, loc)},
		loc:     loc,
		owner:   model.Actor{TeacherID: ownerID, Name: "owner"},
		teacher: model.Actor{TeacherID: teacherID, Name: "math teacher"},
	}

	f.svc = NewServices(Dependencies{
		Store:    f.store,
		Remote:   f.remote,
		Events:   f.hub,
		Metrics:  f.metrics,
		Clock:    f.clock,
		Location: loc,
		Logger:   zap.NewNop(),
	}, "@every 1m")

	ctx := context.Background()
	f.wb = &model.Whiteboard{Name: "7A", BoardID: "B7A", SecretKey: "s", ClassID: classID, ClassOwnerID: ownerID}
	require.NoError(t, f.store.Whiteboards().Create(ctx, f.wb))
	require.NoError(t, f.store.ClassTeachers().Create(ctx, &model.ClassTeacher{
		ClassID: classID, TeacherID: teacherID, Subjects: "math, english", Approved: true,
	}))

	return f
}

// connect переводит доску в удаленный режим
func (f *fixture) connect(t *testing.T) {
	t.Helper()
	wb := f.whiteboard(t)
	wb.Connect("classA", "secret", "tok1", f.clock.Now())
	require.NoError(t, f.store.Whiteboards().Update(context.Background(), wb))
}

func (f *fixture) whiteboard(t *testing.T) *model.Whiteboard {
	t.Helper()
	wb, err := f.store.Whiteboards().GetByID(context.Background(), f.wb.ID)
	require.NoError(t, err)
	require.NotNil(t, wb)
	return wb
}

func (f *fixture) publish(t *testing.T, actor model.Actor, subject, title, due string) (*PublishResult, error) {
	t.Helper()
	return f.svc.Assignments.Publish(context.Background(), actor, PublishRequest{
		WhiteboardID: f.wb.ID,
		Subject:      subject,
		Title:        title,
		Description:  title + " content",
		DueDate:      due,
	})
}

// drain возвращает все накопленные события канала
func drain(events <-chan notify.Event) []notify.Event {
	var out []notify.Event
	for {
		select {
		case ev := <-events:
			out = append(out, ev)
		default:
			return out
		}
	}
}
