package service

import (
	"context"
	"fmt"

	"dlass/internal/model"
)

// access права учителя на доску
type access struct {
	owner    bool
	teaching bool
	subjects []string
}

func (a access) allowed() bool {
	return a.owner || a.teaching
}

// teaches проверяет право на предмет. Классный руководитель ведет все предметы класса.
func (a access) teaches(subject string) bool {
	if a.owner {
		return true
	}
	for _, s := range a.subjects {
		if s == subject {
			return true
		}
	}
	return false
}

// canModify проверяет право изменять задание: руководитель или автор
func (a access) canModify(actor model.Actor, assignment *model.Assignment) bool {
	return a.owner || assignment.TeacherID == actor.TeacherID
}

// resolveAccess вычисляет права учителя на доску
func resolveAccess(ctx context.Context, repos model.Repositories, wb *model.Whiteboard, actor model.Actor) (access, error) {
	if wb.ClassOwnerID == actor.TeacherID {
		return access{owner: true}, nil
	}

	ct, err := repos.ClassTeachers().Get(ctx, wb.ClassID, actor.TeacherID)
	if err != nil {
		return access{}, model.WrapStorage("load class teacher", err)
	}
	if ct == nil || !ct.Approved {
		return access{}, nil
	}

	subjects := ct.SubjectList()
	return access{teaching: len(subjects) > 0, subjects: subjects}, nil
}

// loadWhiteboard возвращает доску или ErrNotFound
func loadWhiteboard(ctx context.Context, repos model.Repositories, id int64) (*model.Whiteboard, error) {
	wb, err := repos.Whiteboards().GetByID(ctx, id)
	if err != nil {
		return nil, model.WrapStorage("load whiteboard", err)
	}
	if wb == nil {
		return nil, fmt.Errorf("whiteboard %d: %w", id, model.ErrNotFound)
	}
	return wb, nil
}
