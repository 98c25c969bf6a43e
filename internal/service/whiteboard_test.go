package service

import (
	"context"
	"errors"
	"testing"

	"dlass/internal/external/kv"
	"dlass/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWhiteboardSync_TestConnection(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	session, err := f.svc.Whiteboards.TestConnection(ctx, ConnectRequest{Namespace: "classA", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "tok1", session.Token)

	_, err = f.svc.Whiteboards.TestConnection(ctx, ConnectRequest{Namespace: "classA", Password: "wrong"})
	var authErr *kv.AuthError
	assert.ErrorAs(t, err, &authErr)

	_, err = f.svc.Whiteboards.TestConnection(ctx, ConnectRequest{Namespace: "classA"})
	var valErr *model.ValidationError
	require.ErrorAs(t, err, &valErr)
	assert.Equal(t, "password", valErr.Field)
}

func TestWhiteboardSync_ConnectMigratesLocalAssignments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.publish(t, f.teacher, "math", "HW1", "2024-01-16 18:00")
	require.NoError(t, err)

	result, err := f.svc.Whiteboards.Connect(ctx, f.owner, f.wb.ID, ConnectRequest{Namespace: "classA", Password: "secret"})
	require.NoError(t, err)
	assert.Empty(t, result.Warning)
	assert.True(t, result.Migration.Success)
	assert.Equal(t, 1, result.Migration.Migrated)

	wb := f.whiteboard(t)
	assert.True(t, wb.UseRemote)
	assert.True(t, wb.Connected)
	assert.Equal(t, "tok1", wb.Token())
	ns, pw, ok := wb.Credentials()
	require.True(t, ok)
	assert.Equal(t, "classA", ns)
	assert.Equal(t, "secret", pw)
	assert.True(t, ResolveMode(wb).IsRemote())

	doc, ok := f.remote.doc(t, "20240116")
	require.True(t, ok)
	assert.Equal(t, []string{"math"}, doc.Subjects())
}

func TestWhiteboardSync_ConnectReportsMigrationWarning(t *testing.T) {
	f := newFixture(t)

	_, err := f.publish(t, f.teacher, "math", "HW1", "2024-01-16 18:00")
	require.NoError(t, err)
	f.remote.putErr["*"] = &kv.SaveError{Status: 500}

	result, err := f.svc.Whiteboards.Connect(context.Background(), f.owner, f.wb.ID, ConnectRequest{Namespace: "classA", Password: "secret"})
	require.NoError(t, err)
	assert.NotEmpty(t, result.Warning)
	assert.Equal(t, 0, result.Migration.Migrated)
	assert.True(t, f.whiteboard(t).Connected)
}

func TestWhiteboardSync_ConnectFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := ConnectRequest{Namespace: "classA", Password: "secret"}

	_, err := f.svc.Whiteboards.Connect(ctx, f.teacher, f.wb.ID, req)
	var permErr *model.PermissionError
	require.ErrorAs(t, err, &permErr)

	f.remote.authErr = &kv.UnreachableError{Op: "authenticate", Err: errors.New("down")}
	_, err = f.svc.Whiteboards.Connect(ctx, f.owner, f.wb.ID, req)
	assert.True(t, kv.IsRemoteError(err))

	wb := f.whiteboard(t)
	assert.False(t, wb.UseRemote)
	assert.False(t, wb.Connected)
	assert.Empty(t, wb.Token())
}

func TestWhiteboardSync_Disconnect(t *testing.T) {
	f := newFixture(t)
	f.connect(t)
	ctx := context.Background()

	err := f.svc.Whiteboards.Disconnect(ctx, f.teacher, f.wb.ID)
	var permErr *model.PermissionError
	require.ErrorAs(t, err, &permErr)

	require.NoError(t, f.svc.Whiteboards.Disconnect(ctx, f.owner, f.wb.ID))

	wb := f.whiteboard(t)
	assert.Equal(t, model.RemoteSync{}, wb.RemoteSync)
	assert.False(t, ResolveMode(wb).IsRemote())
}

func TestWhiteboardSync_EnsureAccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.svc.Whiteboards.EnsureAccessToken(ctx, f.wb.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	second, err := f.svc.Whiteboards.EnsureAccessToken(ctx, f.wb.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	wb := f.whiteboard(t)
	require.NotNil(t, wb.TokenCreatedAt)

	_, err = f.svc.Whiteboards.EnsureAccessToken(ctx, 404)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestWhiteboardSync_ConnectKeepsConcurrentAccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var token string
	f.remote.authHook = func() {
		var err error
		token, err = f.svc.Whiteboards.EnsureAccessToken(ctx, f.wb.ID)
		require.NoError(t, err)
	}

	_, err := f.svc.Whiteboards.Connect(ctx, f.owner, f.wb.ID, ConnectRequest{Namespace: "classA", Password: "secret"})
	require.NoError(t, err)

	wb := f.whiteboard(t)
	require.NotNil(t, wb.AccessToken)
	assert.Equal(t, token, *wb.AccessToken)
	assert.True(t, wb.Connected)
}

func TestWhiteboardSync_DisconnectKeepsAccessToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.connect(t)

	token, err := f.svc.Whiteboards.EnsureAccessToken(ctx, f.wb.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.Whiteboards.Disconnect(ctx, f.owner, f.wb.ID))

	wb := f.whiteboard(t)
	require.NotNil(t, wb.AccessToken)
	assert.Equal(t, token, *wb.AccessToken)
	assert.False(t, wb.UseRemote)
}
