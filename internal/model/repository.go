// Package model содержит базовые интерфейсы хранилища.
//
// Группа: BASE - Базовые компоненты
// Содержит: Repositories, Store
package model

import "context"

// Repositories набор репозиториев, привязанных к соединению или транзакции
type Repositories interface {
	Assignments() AssignmentRepository
	Whiteboards() WhiteboardRepository
	ClassTeachers() ClassTeacherRepository
}

// Store локальное реляционное хранилище с границей транзакции
type Store interface {
	Repositories

	// RunInTx выполняет fn в транзакции. Ошибка fn откатывает транзакцию.
	RunInTx(ctx context.Context, fn func(ctx context.Context, repos Repositories) error) error
	Ping(ctx context.Context) error
	Close() error
}
