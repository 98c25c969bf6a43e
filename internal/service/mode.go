package service

import (
	"dlass/internal/external/kv"
	"dlass/internal/model"
)

// StorageType метка хранилища в событиях и ответах
type StorageType string

const (
	StorageLocal  StorageType = "local"
	StorageRemote StorageType = "remote"
)

// StorageMode режим хранения доски: локальный или удаленный с сессией.
// Нулевое значение означает локальный режим.
type StorageMode struct {
	remote  bool
	session kv.Session
}

// LocalMode возвращает локальный режим
func LocalMode() StorageMode {
	return StorageMode{}
}

// RemoteMode возвращает удаленный режим с сессией
func RemoteMode(session kv.Session) StorageMode {
	return StorageMode{remote: true, session: session}
}

// IsRemote сообщает, удаленный ли режим
func (m StorageMode) IsRemote() bool {
	return m.remote
}

// Session возвращает сессию удаленного режима
func (m StorageMode) Session() (kv.Session, bool) {
	return m.session, m.remote
}

// Type возвращает метку хранилища
func (m StorageMode) Type() StorageType {
	if m.remote {
		return StorageRemote
	}
	return StorageLocal
}

// ResolveMode определяет режим хранения доски.
// Удаленный режим только при UseRemote, Connected и наличии токена.
func ResolveMode(wb *model.Whiteboard) StorageMode {
	if wb == nil || !wb.UseRemote || !wb.Connected {
		return LocalMode()
	}

	token := wb.Token()
	if token == "" {
		return LocalMode()
	}

	namespace, _, _ := wb.Credentials()
	return RemoteMode(kv.Session{Namespace: namespace, Token: token})
}
