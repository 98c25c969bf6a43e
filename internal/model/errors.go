// Package model содержит доменные ошибки.
//
// Группа: BASE - Базовые компоненты
// Содержит: ValidationError, PermissionError, LocalStorageError, PublishError, ErrNotFound
package model

import (
	"errors"
	"fmt"
)

// ErrNotFound сущность не найдена
var ErrNotFound = errors.New("not found")

// ValidationError представляет ошибку валидации
type ValidationError struct {
	Field   string
	Message string
}

func (ve *ValidationError) Error() string {
	if ve.Field == "" {
		return "validation error: " + ve.Message
	}
	return fmt.Sprintf("validation error for field '%s': %s", ve.Field, ve.Message)
}

// PermissionError нет прав на доску или предмет
type PermissionError struct {
	Reason string
}

func (pe *PermissionError) Error() string {
	return "permission denied: " + pe.Reason
}

// LocalStorageError непредвиденная ошибка локального хранилища
type LocalStorageError struct {
	Op  string
	Err error
}

func (le *LocalStorageError) Error() string {
	return fmt.Sprintf("local storage failed during %s: %v", le.Op, le.Err)
}

func (le *LocalStorageError) Unwrap() error { return le.Err }

// PublishError публикация отклонена удаленным хранилищем, локальные изменения откатаны
type PublishError struct {
	Err error
}

func (pe *PublishError) Error() string {
	return "failed to save assignment to remote store: " + pe.Err.Error()
}

func (pe *PublishError) Unwrap() error { return pe.Err }

// NewValidationError создает ошибку валидации поля
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NewPermissionError создает ошибку прав доступа
func NewPermissionError(format string, args ...interface{}) error {
	return &PermissionError{Reason: fmt.Sprintf(format, args...)}
}

// WrapStorage оборачивает ошибку хранилища, не трогая доменные ошибки
func WrapStorage(op string, err error) error {
	if err == nil {
		return nil
	}

	var (
		validationErr *ValidationError
		permissionErr *PermissionError
		storageErr    *LocalStorageError
		publishErr    *PublishError
	)
	if errors.Is(err, ErrNotFound) ||
		errors.As(err, &validationErr) ||
		errors.As(err, &permissionErr) ||
		errors.As(err, &storageErr) ||
		errors.As(err, &publishErr) {
		return err
	}

	return &LocalStorageError{Op: op, Err: err}
}
