package kv

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
)

// ErrNotAuthenticated возвращается при обращении без токена или с отклоненным токеном
var ErrNotAuthenticated = errors.New("not authenticated with remote store")

// AuthError ошибка аутентификации в удаленном хранилище
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "remote authentication failed: " + e.Reason
}

// TimeoutError превышен таймаут запроса
type TimeoutError struct {
	Op  string
	Err error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("remote %s timed out: %v", e.Op, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// UnreachableError сервер удаленного хранилища недоступен
type UnreachableError struct {
	Op  string
	Err error
}

func (e *UnreachableError) Error() string {
	return fmt.Sprintf("remote store unreachable during %s: %v", e.Op, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// FetchError неуспешный ответ при чтении документа
type FetchError struct {
	Status int
	Body   string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch document: HTTP %d: %s", e.Status, e.Body)
}

// SaveError неуспешный ответ при сохранении документа
type SaveError struct {
	Status int
	Body   string
}

func (e *SaveError) Error() string {
	return fmt.Sprintf("failed to save document: HTTP %d: %s", e.Status, e.Body)
}

// IsRemoteError проверяет, относится ли ошибка к границе удаленного хранилища
func IsRemoteError(err error) bool {
	var (
		authErr        *AuthError
		timeoutErr     *TimeoutError
		unreachableErr *UnreachableError
		fetchErr       *FetchError
		saveErr        *SaveError
	)
	return errors.Is(err, ErrNotAuthenticated) ||
		errors.As(err, &authErr) ||
		errors.As(err, &timeoutErr) ||
		errors.As(err, &unreachableErr) ||
		errors.As(err, &fetchErr) ||
		errors.As(err, &saveErr)
}

// classifyTransportError разделяет таймауты и ошибки соединения
func classifyTransportError(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("remote %s canceled: %w", op, err)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return &TimeoutError{Op: op, Err: err}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Timeout() {
		return &TimeoutError{Op: op, Err: err}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &TimeoutError{Op: op, Err: err}
	}

	return &UnreachableError{Op: op, Err: err}
}
