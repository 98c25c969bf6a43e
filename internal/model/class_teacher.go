// Package model содержит модели данных.
//
// Группа: ENTITIES - Основные сущности
// Содержит: ClassTeacher, ClassTeacherRepository, Actor
package model

import (
	"context"
	"strings"

	"github.com/uptrace/bun"
)

// ClassTeacher привязка учителя-предметника к классу
type ClassTeacher struct {
	bun.BaseModel `bun:"table:class_teachers"`

	ID        int64  `bun:"id,pk,autoincrement" json:"id"`
	ClassID   int64  `bun:"class_id,notnull,unique:class_teacher" json:"class_id"`
	TeacherID int64  `bun:"teacher_id,notnull,unique:class_teacher" json:"teacher_id"`
	Subjects  string `bun:"subjects,notnull,default:''" json:"subjects"`
	Approved  bool   `bun:"approved,notnull,default:false" json:"approved"`
}

// SubjectList возвращает назначенные предметы
func (ct ClassTeacher) SubjectList() []string {
	var subjects []string
	for _, s := range strings.Split(ct.Subjects, ",") {
		if s = strings.TrimSpace(s); s != "" {
			subjects = append(subjects, s)
		}
	}
	return subjects
}

// Teaches проверяет, назначен ли предмет
func (ct ClassTeacher) Teaches(subject string) bool {
	for _, s := range ct.SubjectList() {
		if s == subject {
			return true
		}
	}
	return false
}

// ClassTeacherRepository определяет интерфейс для работы с привязками учителей
type ClassTeacherRepository interface {
	// Get возвращает привязку или nil
	Get(ctx context.Context, classID, teacherID int64) (*ClassTeacher, error)
	Create(ctx context.Context, ct *ClassTeacher) error
}

// Actor учитель, выполняющий запрос
type Actor struct {
	TeacherID int64
	Name      string
}
