package service

import (
	"context"
	"testing"
	"time"

	"dlass/internal/external/kv"
	"dlass/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// seedLocal создает локальные задания с заданными сроками сдачи в порядке вставки
func seedLocal(t *testing.T, f *fixture, rows []model.Assignment) {
	t.Helper()
	ctx := context.Background()
	for i := range rows {
		rows[i].WhiteboardID = f.wb.ID
		rows[i].TeacherID = teacherID
		rows[i].CreatedAt = f.clock.Now().Add(time.Duration(i) * time.Minute)
		require.NoError(t, f.store.Assignments().Create(ctx, &rows[i]))
	}
}

func (f *fixture) due(day, hour int) time.Time {
	return time.Date(2024, 1, day, hour, 0, 0, 0, f.loc)
}

func TestMigrate_OnePutPerDueDay(t *testing.T) {
	f := newFixture(t)
	seedLocal(t, f, []model.Assignment{
		{Subject: "math", Title: "M1", Description: "m1", DueDate: f.due(15, 18)},
		{Subject: "english", Title: "E1", Description: "e1", DueDate: f.due(15, 20)},
		{Subject: "math", Title: "M2", Description: "m2", DueDate: f.due(16, 18)},
		{Subject: "physics", Title: "P1", Description: "p1", DueDate: f.due(17, 9)},
		{Subject: "math", Title: "M1 late", Description: "m1 late", DueDate: f.due(15, 21)},
	})
	f.connect(t)

	result, err := f.svc.Migration.Migrate(context.Background(), f.whiteboard(t))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 3, result.Groups)
	assert.Equal(t, 5, result.Migrated)
	assert.Empty(t, result.Skipped)
	assert.Equal(t, 3, f.remote.putCount())
	assert.Equal(t, []string{"20240115", "20240116", "20240117"}, f.remote.puts)

	doc, ok := f.remote.doc(t, "20240115")
	require.True(t, ok)
	assert.Equal(t, []string{"english", "math"}, doc.Subjects())
	math, _ := doc.Entry("math")
	assert.Equal(t, kv.HomeworkEntry{Content: "m1 late", Title: "M1 late", DueDate: "2024-01-15T21:00:00"}, math)

	assert.Equal(t, 5, f.store.AssignmentCount(), "local rows are kept")
}

func TestMigrate_SkipsFailedGroups(t *testing.T) {
	f := newFixture(t)
	seedLocal(t, f, []model.Assignment{
		{Subject: "math", Title: "M1", Description: "m1", DueDate: f.due(15, 18)},
		{Subject: "english", Title: "E1", Description: "e1", DueDate: f.due(16, 18)},
		{Subject: "physics", Title: "P1", Description: "p1", DueDate: f.due(16, 19)},
		{Subject: "art", Title: "A1", Description: "a1", DueDate: f.due(17, 9)},
	})
	f.connect(t)
	f.remote.getErr["20240116"] = &kv.FetchError{Status: 500}
	f.remote.putErr["20240117"] = &kv.SaveError{Status: 507}

	result, err := f.svc.Migration.Migrate(context.Background(), f.whiteboard(t))
	require.NoError(t, err)

	assert.True(t, result.Success)
	assert.Equal(t, 1, result.Migrated)
	assert.Equal(t, []string{"20240116", "20240117"}, result.Skipped)
	assert.Equal(t, []string{"20240115", "20240117"}, f.remote.puts)

	_, ok := f.remote.doc(t, "20240116")
	assert.False(t, ok)
}

func TestMigrate_PreservesExistingDocumentContent(t *testing.T) {
	f := newFixture(t)
	f.connect(t)

	existing := kv.EmptyDocument()
	require.NoError(t, existing.SetEntry("history", kv.HomeworkEntry{Content: "h", Title: "H"}))
	require.NoError(t, f.remote.PutDocument(context.Background(), kv.Session{Token: "tok1"}, "20240115", existing))

	seedLocal(t, f, []model.Assignment{
		{Subject: "math", Title: "M1", Description: "m1", DueDate: f.due(15, 18)},
	})

	_, err := f.svc.Migration.Migrate(context.Background(), f.whiteboard(t))
	require.NoError(t, err)

	doc, _ := f.remote.doc(t, "20240115")
	assert.Equal(t, []string{"history", "math"}, doc.Subjects())
}

func TestMigrate_RequiresConnection(t *testing.T) {
	f := newFixture(t)
	seedLocal(t, f, []model.Assignment{{Subject: "math", Title: "M", Description: "m", DueDate: f.due(15, 18)}})

	result, err := f.svc.Migration.Migrate(context.Background(), f.whiteboard(t))
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.NotEmpty(t, result.Reason)
	assert.Zero(t, f.remote.putCount())
}
