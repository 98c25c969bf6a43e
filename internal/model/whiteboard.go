// Package model содержит модели данных.
//
// Группа: ENTITIES - Основные сущности
// Содержит: Whiteboard, RemoteSync, WhiteboardRepository
package model

import (
	"context"
	"time"

	"github.com/uptrace/bun"
)

// RemoteSync настройки синхронизации доски с удаленным хранилищем.
//
// Connected=true означает, что AuthToken получен успешной аутентификацией.
// UseRemote=true при Connected=false допустимо: удаленный режим желаем,
// но соединения нет.
type RemoteSync struct {
	UseRemote bool       `bun:"use_remote,notnull,default:false" json:"use_remote"`
	Namespace *string    `bun:"remote_namespace,type:varchar(100)" json:"remote_namespace,omitempty"`
	Password  *string    `bun:"remote_password,type:varchar(100)" json:"-"`
	AuthToken *string    `bun:"remote_auth_token,type:text" json:"-"`
	Connected bool       `bun:"remote_connected,notnull,default:false" json:"remote_connected"`
	LastSync  *time.Time `bun:"remote_last_sync" json:"remote_last_sync,omitempty"`
}

// Connect сохраняет учетные данные и токен успешной аутентификации
func (r *RemoteSync) Connect(namespace, password, token string, at time.Time) {
	r.UseRemote = true
	r.Namespace = &namespace
	r.Password = &password
	r.AuthToken = &token
	r.Connected = true
	r.LastSync = &at
}

// MarkDisconnected снимает признак соединения, сохраняя желаемый режим
func (r *RemoteSync) MarkDisconnected() {
	r.Connected = false
	r.AuthToken = nil
}

// Reset полностью отключает удаленное хранилище
func (r *RemoteSync) Reset() {
	*r = RemoteSync{}
}

// Credentials возвращает сохраненные namespace и пароль
func (r RemoteSync) Credentials() (string, string, bool) {
	if r.Namespace == nil || r.Password == nil || *r.Namespace == "" || *r.Password == "" {
		return "", "", false
	}
	return *r.Namespace, *r.Password, true
}

// SameCredentials проверяет, что namespace и пароль совпадают с other
func (r RemoteSync) SameCredentials(other RemoteSync) bool {
	return equalPtr(r.Namespace, other.Namespace) && equalPtr(r.Password, other.Password)
}

func equalPtr(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// Token возвращает сохраненный токен
func (r RemoteSync) Token() string {
	if r.AuthToken == nil {
		return ""
	}
	return *r.AuthToken
}

// Whiteboard представляет белую доску класса
type Whiteboard struct {
	bun.BaseModel `bun:"table:whiteboards"`

	ID             int64      `bun:"id,pk,autoincrement" json:"id"`
	Name           string     `bun:"name,notnull,type:varchar(100)" json:"name"`
	BoardID        string     `bun:"board_id,unique,notnull,type:varchar(20)" json:"board_id"`
	SecretKey      string     `bun:"secret_key,notnull,type:varchar(50)" json:"-"`
	ClassID        int64      `bun:"class_id,notnull" json:"class_id"`
	ClassOwnerID   int64      `bun:"class_owner_id,notnull" json:"class_owner_id"`
	AccessToken    *string    `bun:"access_token,unique,type:varchar(100)" json:"-"`
	TokenCreatedAt *time.Time `bun:"token_created_at" json:"token_created_at,omitempty"`
	CreatedAt      time.Time  `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`

	RemoteSync
}

// WhiteboardRepository определяет интерфейс для работы с досками
type WhiteboardRepository interface {
	GetByID(ctx context.Context, id int64) (*Whiteboard, error)
	// ListRemoteEnabled возвращает доски с UseRemote=true
	ListRemoteEnabled(ctx context.Context) ([]Whiteboard, error)
	Create(ctx context.Context, whiteboard *Whiteboard) error
	Update(ctx context.Context, whiteboard *Whiteboard) error
	// TouchLastSync обновляет время последней синхронизации
	TouchLastSync(ctx context.Context, id int64, at time.Time) error
	// SaveRemoteSync записывает только столбцы удаленного режима
	SaveRemoteSync(ctx context.Context, id int64, rs RemoteSync) error
	// RefreshRemoteToken сохраняет токен и Connected=true, только если удаленный режим
	// все еще включен и учетные данные совпадают с seen. false, если строка не изменилась.
	RefreshRemoteToken(ctx context.Context, id int64, seen RemoteSync, token string) (bool, error)
	// MarkRemoteDisconnected снимает Connected и токен при тех же условиях, что RefreshRemoteToken
	MarkRemoteDisconnected(ctx context.Context, id int64, seen RemoteSync) (bool, error)
	// SetAccessToken сохраняет токен доступа, если он еще не задан
	SetAccessToken(ctx context.Context, id int64, token string, at time.Time) (bool, error)
}
