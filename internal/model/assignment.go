// Package model содержит модели данных.
//
// Группа: ENTITIES - Основные сущности
// Содержит: Assignment, AssignmentKey, AssignmentRepository
package model

import (
	"context"
	"time"

	"dlass/internal/calendar"

	"github.com/uptrace/bun"
)

// Assignment представляет домашнее задание, опубликованное на белой доске.
// В удаленном режиме строка остается как журнальная копия.
type Assignment struct {
	bun.BaseModel `bun:"table:assignments"`

	ID           int64     `bun:"id,pk,autoincrement" json:"id"`
	Title        string    `bun:"title,notnull,type:varchar(100)" json:"title"`
	Description  string    `bun:"description,notnull,type:text" json:"description"`
	Subject      string    `bun:"subject,notnull,type:varchar(50)" json:"subject"`
	DueDate      time.Time `bun:"due_date,notnull" json:"due_date"`
	WhiteboardID int64     `bun:"whiteboard_id,notnull" json:"whiteboard_id"`
	TeacherID    int64     `bun:"teacher_id,notnull" json:"teacher_id"`
	CreatedAt    time.Time `bun:"created_at,notnull,default:current_timestamp" json:"created_at"`
	UpdatedAt    time.Time `bun:"updated_at,notnull,default:current_timestamp" json:"updated_at"`
}

// AssignmentKey ключ локального upsert: доска, предмет и сутки создания.
// Сутки создания задают окно дедупликации и не связаны с due_date.
type AssignmentKey struct {
	WhiteboardID int64
	Subject      string
	Day          calendar.Day
}

// Matches проверяет, попадает ли задание под ключ
func (k AssignmentKey) Matches(a *Assignment) bool {
	return a.WhiteboardID == k.WhiteboardID && a.Subject == k.Subject && k.Day.Contains(a.CreatedAt)
}

// AssignmentRepository определяет интерфейс для работы с заданиями
type AssignmentRepository interface {
	GetByID(ctx context.Context, id int64) (*Assignment, error)
	// FindByKey возвращает задание, созданное в сутки ключа, или nil
	FindByKey(ctx context.Context, key AssignmentKey) (*Assignment, error)
	// LatestBySubject возвращает последнее созданное задание предмета за любой день или nil
	LatestBySubject(ctx context.Context, whiteboardID int64, subject string) (*Assignment, error)
	// ListByWhiteboard возвращает задания доски по убыванию created_at
	ListByWhiteboard(ctx context.Context, whiteboardID int64) ([]Assignment, error)
	// ListForMigration возвращает задания доски в порядке вставки
	ListForMigration(ctx context.Context, whiteboardID int64) ([]Assignment, error)
	Create(ctx context.Context, assignment *Assignment) error
	Update(ctx context.Context, assignment *Assignment) error
	Delete(ctx context.Context, id int64) error
}
