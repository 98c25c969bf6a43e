package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"dlass/internal/external/kv"
	"dlass/internal/model"
	"dlass/internal/notify"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPublish_LocalUpsertWithinCreationDay(t *testing.T) {
	f := newFixture(t)
	events, cancel := f.hub.Subscribe(f.wb.ID)
	defer cancel()

	first, err := f.publish(t, f.owner, "math", "HW1", "2024-01-16 18:00")
	require.NoError(t, err)
	assert.False(t, first.IsUpdate)
	assert.Equal(t, StorageLocal, first.StorageType)

	f.clock.Advance(6 * time.Hour)
	second, err := f.publish(t, f.owner, "math", "HW1 revised", "2024-01-17 18:00")
	require.NoError(t, err)
	assert.True(t, second.IsUpdate)
	assert.Equal(t, first.AssignmentID, second.AssignmentID)

	stored, err := f.store.Assignments().GetByID(context.Background(), first.AssignmentID)
	require.NoError(t, err)
	assert.Equal(t, "HW1 revised", stored.Title)
	assert.Equal(t, "20240117", stored.DueDate.In(f.loc).Format("20060102"))

	f.clock.Advance(24 * time.Hour)
	third, err := f.publish(t, f.owner, "math", "HW2", "2024-01-18 18:00")
	require.NoError(t, err)
	assert.False(t, third.IsUpdate)
	assert.NotEqual(t, first.AssignmentID, third.AssignmentID)
	assert.Equal(t, 2, f.store.AssignmentCount())

	got := drain(events)
	require.Len(t, got, 3)
	assert.Equal(t, notify.EventNewAssignment, got[0].Type)
	assert.Equal(t, notify.EventUpdateAssignment, got[1].Type)
	assert.Equal(t, "local", got[1].Payload.StorageType)
	assert.Equal(t, int64(3), f.metrics.Publishes("local"))
}

func TestPublish_LocalUpdateRequiresOwnerOrAuthor(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	other := model.Actor{TeacherID: 3}
	require.NoError(t, f.store.ClassTeachers().Create(ctx, &model.ClassTeacher{
		ClassID: classID, TeacherID: other.TeacherID, Subjects: "math", Approved: true,
	}))

	created, err := f.publish(t, f.teacher, "math", "HW1", "2024-01-16")
	require.NoError(t, err)

	_, err = f.publish(t, other, "math", "HW1 hijack", "2024-01-16")
	var permErr *model.PermissionError
	require.ErrorAs(t, err, &permErr)

	updated, err := f.publish(t, f.owner, "math", "HW1 by owner", "2024-01-16")
	require.NoError(t, err)
	assert.Equal(t, created.AssignmentID, updated.AssignmentID)

	stored, err := f.store.Assignments().GetByID(ctx, created.AssignmentID)
	require.NoError(t, err)
	assert.Equal(t, teacherID, stored.TeacherID)
}

func TestPublish_Validation(t *testing.T) {
	f := newFixture(t)

	tests := []struct {
		name  string
		req   PublishRequest
		field string
	}{
		{
			name:  "missing title",
			req:   PublishRequest{Subject: "math", Description: "d", DueDate: "2024-01-16"},
			field: "title",
		},
		{
			name:  "missing subject",
			req:   PublishRequest{Title: "t", Description: "d", DueDate: "2024-01-16"},
			field: "subject",
		},
		{
			name:  "title too long",
			req:   PublishRequest{Subject: "math", Title: string(make([]byte, 101)), Description: "d", DueDate: "2024-01-16"},
			field: "title",
		},
		{
			name:  "unparseable due date",
			req:   PublishRequest{Subject: "math", Title: "t", Description: "d", DueDate: "next friday"},
			field: "due_date",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.WhiteboardID = f.wb.ID
			_, err := f.svc.Assignments.Publish(context.Background(), f.owner, tt.req)

			var valErr *model.ValidationError
			require.ErrorAs(t, err, &valErr)
			assert.Equal(t, tt.field, valErr.Field)
		})
	}
	assert.Equal(t, 0, f.store.AssignmentCount())
}

func TestPublish_Permissions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.publish(t, model.Actor{TeacherID: 99}, "math", "HW", "2024-01-16")
	var permErr *model.PermissionError
	assert.ErrorAs(t, err, &permErr)

	_, err = f.publish(t, f.teacher, "physics", "HW", "2024-01-16")
	assert.ErrorAs(t, err, &permErr)

	require.NoError(t, f.store.ClassTeachers().Create(ctx, &model.ClassTeacher{
		ClassID: classID, TeacherID: 4, Subjects: "math", Approved: false,
	}))
	_, err = f.publish(t, model.Actor{TeacherID: 4}, "math", "HW", "2024-01-16")
	assert.ErrorAs(t, err, &permErr)

	_, err = f.svc.Assignments.Publish(ctx, f.owner, PublishRequest{
		WhiteboardID: 404, Subject: "math", Title: "t", Description: "d", DueDate: "2024-01-16",
	})
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.Equal(t, 0, f.store.AssignmentCount())
}

func TestPublish_LocalStorageFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.store.FailOn["assignments.create"] = errors.New("disk full")

	_, err := f.publish(t, f.owner, "math", "HW", "2024-01-16")

	var storageErr *model.LocalStorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, 0, f.store.AssignmentCount())
}

func TestPublish_RemoteWritesDueDayDocument(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	events, cancel := f.hub.Subscribe(f.wb.ID)
	defer cancel()

	f.clock.Advance(time.Hour)
	res, err := f.publish(t, f.teacher, "math", "HW1", "2024-01-15 18:00")
	require.NoError(t, err)
	assert.Equal(t, StorageRemote, res.StorageType)
	assert.False(t, res.IsUpdate)
	assert.Equal(t, 1, f.store.AssignmentCount())

	doc, ok := f.remote.doc(t, "20240115")
	require.True(t, ok)
	entry, ok := doc.Entry("math")
	require.True(t, ok)
	assert.Equal(t, kv.HomeworkEntry{Content: "HW1 content", Title: "HW1", DueDate: "2024-01-15T18:00:00"}, entry)

	wb := f.whiteboard(t)
	require.NotNil(t, wb.LastSync)
	assert.True(t, wb.LastSync.Equal(f.clock.Now()))

	got := drain(events)
	require.Len(t, got, 1)
	assert.Equal(t, notify.EventNewAssignment, got[0].Type)
	assert.Equal(t, "remote", got[0].Payload.StorageType)
	assert.Equal(t, int64(1), f.metrics.Publishes("remote"))
}

func TestPublish_RemoteFailureRemovesAuditRow(t *testing.T) {
	failures := map[string]error{
		"save rejected": &kv.SaveError{Status: 500, Body: "boom"},
		"timeout":       &kv.TimeoutError{Op: "put", Err: context.DeadlineExceeded},
		"unreachable":   &kv.UnreachableError{Op: "put", Err: errors.New("connection refused")},
		"token expired": kv.ErrNotAuthenticated,
	}

	for name, failure := range failures {
		t.Run("put "+name, func(t *testing.T) {
			f := newFixture(t)
			f.connect(t)
			f.remote.putErr["20240116"] = failure
			events, cancel := f.hub.Subscribe(f.wb.ID)
			defer cancel()

			_, err := f.publish(t, f.owner, "math", "HW", "2024-01-16 18:00")

			var pubErr *model.PublishError
			require.ErrorAs(t, err, &pubErr)
			assert.ErrorIs(t, err, failure)
			assert.Equal(t, 0, f.store.AssignmentCount())
			assert.Empty(t, drain(events))
			assert.Equal(t, int64(1), f.metrics.Rollbacks())

			_, stored := f.remote.doc(t, "20240116")
			assert.False(t, stored)
		})
	}

	t.Run("get failure", func(t *testing.T) {
		f := newFixture(t)
		f.connect(t)
		f.remote.getErr["*"] = &kv.FetchError{Status: 502, Body: "bad gateway"}

		_, err := f.publish(t, f.owner, "math", "HW", "2024-01-16 18:00")

		var pubErr *model.PublishError
		require.ErrorAs(t, err, &pubErr)
		assert.Equal(t, 0, f.store.AssignmentCount())
		assert.Zero(t, f.remote.putCount())
	})
}

func TestPublish_RemoteRoundTripSameDay(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	_, err := f.publish(t, f.teacher, "math", "HW1", "2024-01-15 18:00")
	require.NoError(t, err)

	view, err := f.svc.Assignments.Check(context.Background(), f.teacher, f.wb.ID, "math")
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, RemoteAssignmentID, view.ID)
	assert.Equal(t, "HW1", view.Title)
	assert.Equal(t, "HW1 content", view.Description)
	assert.Equal(t, "2024-01-15 18:00:00", view.DueDate)
	assert.True(t, view.CanDelete)
}

func TestPublish_RemoteFutureDueDateInvisibleToday(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	ctx := context.Background()

	_, err := f.publish(t, f.teacher, "math", "HW future", "2024-01-17 08:00")
	require.NoError(t, err)

	_, ok := f.remote.doc(t, "20240117")
	assert.True(t, ok, "write goes to the due-date day document")

	view, err := f.svc.Assignments.Check(ctx, f.teacher, f.wb.ID, "math")
	require.NoError(t, err)
	assert.Nil(t, view, "reads use today's document")

	list, err := f.svc.Assignments.List(ctx, f.teacher, f.wb.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	f.clock.Advance(48 * time.Hour)
	view, err = f.svc.Assignments.Check(ctx, f.teacher, f.wb.ID, "math")
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, "HW future", view.Title)
}

func TestPublish_RemoteSubjectsShareDayDocument(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	_, err := f.publish(t, f.teacher, "math", "Math HW", "2024-01-15 18:00")
	require.NoError(t, err)
	_, err = f.publish(t, f.teacher, "english", "English HW", "2024-01-15 20:00")
	require.NoError(t, err)

	doc, ok := f.remote.doc(t, "20240115")
	require.True(t, ok)
	assert.Equal(t, []string{"english", "math"}, doc.Subjects())

	math, _ := doc.Entry("math")
	english, _ := doc.Entry("english")
	assert.Equal(t, "Math HW", math.Title)
	assert.Equal(t, "English HW", english.Title)

	list, err := f.svc.Assignments.List(context.Background(), f.teacher, f.wb.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "english", list[0].Subject)
	assert.Equal(t, "math", list[1].Subject)
	for _, v := range list {
		assert.Equal(t, RemoteAssignmentID, v.ID)
		assert.Equal(t, teacherID, v.TeacherID)
		assert.True(t, v.CanDelete)
	}
}

func TestCheck_Local(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	view, err := f.svc.Assignments.Check(ctx, f.teacher, f.wb.ID, "math")
	require.NoError(t, err)
	assert.Nil(t, view)

	_, err = f.publish(t, f.teacher, "math", "Old", "2024-01-15")
	require.NoError(t, err)
	f.clock.Advance(24 * time.Hour)
	latest, err := f.publish(t, f.teacher, "math", "New", "2024-01-16")
	require.NoError(t, err)

	view, err = f.svc.Assignments.Check(ctx, f.teacher, f.wb.ID, "math")
	require.NoError(t, err)
	require.NotNil(t, view)
	assert.Equal(t, latest.AssignmentID, view.ID)
	assert.Equal(t, "New", view.Title)

	_, err = f.svc.Assignments.Check(ctx, f.teacher, f.wb.ID, "")
	var valErr *model.ValidationError
	assert.ErrorAs(t, err, &valErr)

	_, err = f.svc.Assignments.Check(ctx, f.teacher, f.wb.ID, "physics")
	var permErr *model.PermissionError
	assert.ErrorAs(t, err, &permErr)

	view, err = f.svc.Assignments.Check(ctx, f.owner, f.wb.ID, "physics")
	require.NoError(t, err)
	assert.Nil(t, view)
}

func TestCheck_RemoteFetchFailureReturnsNothing(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.remote.getErr["*"] = &kv.UnreachableError{Op: "get", Err: errors.New("down")}

	view, err := f.svc.Assignments.Check(context.Background(), f.teacher, f.wb.ID, "math")
	require.NoError(t, err)
	assert.Nil(t, view)
}

func TestList_Local(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mine, err := f.publish(t, f.teacher, "math", "Math", "2024-01-16")
	require.NoError(t, err)
	f.clock.Advance(time.Minute)
	owners, err := f.publish(t, f.owner, "english", "English", "2024-01-16")
	require.NoError(t, err)

	list, err := f.svc.Assignments.List(ctx, f.teacher, f.wb.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)

	assert.Equal(t, owners.AssignmentID, list[0].ID)
	assert.False(t, list[0].CanDelete)
	assert.Equal(t, mine.AssignmentID, list[1].ID)
	assert.True(t, list[1].CanDelete)
	assert.Equal(t, "2024-01-15 10:00:00", list[1].CreatedAt)

	list, err = f.svc.Assignments.List(ctx, f.owner, f.wb.ID)
	require.NoError(t, err)
	for _, v := range list {
		assert.True(t, v.CanDelete)
	}

	_, err = f.svc.Assignments.List(ctx, model.Actor{TeacherID: 77}, f.wb.ID)
	var permErr *model.PermissionError
	assert.ErrorAs(t, err, &permErr)
}

func TestList_RemoteFetchFailureSurfaces(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.remote.getErr["*"] = &kv.FetchError{Status: 500}

	_, err := f.svc.Assignments.List(context.Background(), f.owner, f.wb.ID)
	require.Error(t, err)
	assert.True(t, kv.IsRemoteError(err))
}

func TestDelete_Local(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	events, cancel := f.hub.Subscribe(f.wb.ID)
	defer cancel()

	res, err := f.publish(t, f.teacher, "math", "HW", "2024-01-16")
	require.NoError(t, err)
	drain(events)

	err = f.svc.Assignments.Delete(ctx, model.Actor{TeacherID: 55}, res.AssignmentID)
	var permErr *model.PermissionError
	require.ErrorAs(t, err, &permErr)

	require.NoError(t, f.svc.Assignments.Delete(ctx, f.teacher, res.AssignmentID))
	assert.Equal(t, 0, f.store.AssignmentCount())

	got := drain(events)
	require.Len(t, got, 1)
	assert.Equal(t, notify.EventDeleteAssignment, got[0].Type)
	assert.Equal(t, res.AssignmentID, got[0].Payload.ID)
	assert.Equal(t, "local", got[0].Payload.StorageType)

	err = f.svc.Assignments.Delete(ctx, f.owner, res.AssignmentID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestDelete_RemoteTrimsDueDayDocument(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	ctx := context.Background()

	math, err := f.publish(t, f.teacher, "math", "Math", "2024-01-16 18:00")
	require.NoError(t, err)
	_, err = f.publish(t, f.teacher, "english", "English", "2024-01-16 18:00")
	require.NoError(t, err)

	require.NoError(t, f.svc.Assignments.Delete(ctx, f.owner, math.AssignmentID))

	doc, ok := f.remote.doc(t, "20240116")
	require.True(t, ok)
	assert.Equal(t, []string{"english"}, doc.Subjects())
	assert.Equal(t, 1, f.store.AssignmentCount())
}

func TestDelete_RemoteUnavailableStillDeletesRow(t *testing.T) {
	for name, setup := range map[string]func(r *fakeRemote){
		"fetch fails": func(r *fakeRemote) {
			r.getErr["*"] = &kv.UnreachableError{Op: "get", Err: errors.New("down")}
		},
		"put fails": func(r *fakeRemote) {
			r.putErr["*"] = &kv.TimeoutError{Op: "put", Err: context.DeadlineExceeded}
		},
	} {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			f.connect(t)
			events, cancel := f.hub.Subscribe(f.wb.ID)
			defer cancel()

			res, err := f.publish(t, f.teacher, "math", "HW", "2024-01-16 18:00")
			require.NoError(t, err)
			drain(events)

			setup(f.remote)
			require.NoError(t, f.svc.Assignments.Delete(context.Background(), f.teacher, res.AssignmentID))

			assert.Equal(t, 0, f.store.AssignmentCount())
			got := drain(events)
			require.Len(t, got, 1)
			assert.Equal(t, "remote", got[0].Payload.StorageType)
		})
	}
}

func TestPublish_RemoteLastSyncFailureRollsBack(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.store.FailOn["whiteboards.touch"] = errors.New("disk full")
	events, cancel := f.hub.Subscribe(f.wb.ID)
	defer cancel()

	_, err := f.publish(t, f.teacher, "math", "HW1", "2024-01-15 18:00")

	var storageErr *model.LocalStorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, 0, f.store.AssignmentCount(), "audit row rolled back with the transaction")
	assert.Empty(t, drain(events))
	assert.Zero(t, f.metrics.Publishes("remote"))
}

func TestPublish_RemoteCallsShareDeadline(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	f.svc.Assignments = NewAssignmentService(Dependencies{
		Store:         f.store,
		Remote:        f.remote,
		Events:        f.hub,
		Metrics:       f.metrics,
		Clock:         f.clock,
		Location:      f.loc,
		Logger:        zap.NewNop(),
		RemoteTimeout: 20 * time.Millisecond,
	})
	f.remote.getHook = func(ctx context.Context) error {
		<-ctx.Done()
		return &kv.TimeoutError{Op: "get", Err: ctx.Err()}
	}

	started := time.Now()
	_, err := f.publish(t, f.teacher, "math", "HW1", "2024-01-15 18:00")

	var publishErr *model.PublishError
	require.ErrorAs(t, err, &publishErr)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(started), 5*time.Second)
	assert.Equal(t, 0, f.store.AssignmentCount())
	assert.Zero(t, f.remote.putCount())
}
