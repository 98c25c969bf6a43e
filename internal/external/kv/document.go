package kv

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

const (
	fieldHomework   = "homework"
	fieldAttendance = "attendance"
)

// defaultAttendance значение attendance для нового документа
var defaultAttendance = json.RawMessage(`{"late":[],"absent":[],"exclude":[]}`)

// HomeworkEntry запись задания одного предмета в документе дня
type HomeworkEntry struct {
	Content string `json:"content"`
	Title   string `json:"title"`
	DueDate string `json:"due_date"`
}

// Document документ дня удаленного хранилища.
// Записи предметов, attendance и неизвестные поля верхнего уровня
// хранятся в исходном виде и возвращаются при сохранении без изменений.
type Document struct {
	Homework   map[string]json.RawMessage
	Attendance json.RawMessage
	Extra      map[string]json.RawMessage
}

// EmptyDocument возвращает канонический пустой документ
func EmptyDocument() Document {
	return Document{
		Homework:   map[string]json.RawMessage{},
		Attendance: append(json.RawMessage(nil), defaultAttendance...),
	}
}

// Entry возвращает запись предмета
func (d Document) Entry(subject string) (HomeworkEntry, bool) {
	raw, ok := d.Homework[subject]
	if !ok {
		return HomeworkEntry{}, false
	}

	var entry HomeworkEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return HomeworkEntry{}, false
	}
	return entry, true
}

// SetEntry полностью заменяет запись предмета
func (d *Document) SetEntry(subject string, entry HomeworkEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to encode homework entry: %w", err)
	}
	if d.Homework == nil {
		d.Homework = map[string]json.RawMessage{}
	}
	d.Homework[subject] = raw
	return nil
}

// RemoveEntry удаляет запись предмета, возвращает false если ее не было
func (d *Document) RemoveEntry(subject string) bool {
	if _, ok := d.Homework[subject]; !ok {
		return false
	}
	delete(d.Homework, subject)
	return true
}

// Subjects возвращает предметы документа в алфавитном порядке
func (d Document) Subjects() []string {
	subjects := make([]string, 0, len(d.Homework))
	for subject := range d.Homework {
		subjects = append(subjects, subject)
	}
	sort.Strings(subjects)
	return subjects
}

// MarshalJSON всегда пишет оба поля верхнего уровня
func (d Document) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(d.Extra)+2)
	for k, v := range d.Extra {
		out[k] = v
	}

	homework := d.Homework
	if homework == nil {
		homework = map[string]json.RawMessage{}
	}
	raw, err := json.Marshal(homework)
	if err != nil {
		return nil, err
	}
	out[fieldHomework] = raw

	if isEmptyJSON(d.Attendance) {
		out[fieldAttendance] = defaultAttendance
	} else {
		out[fieldAttendance] = d.Attendance
	}

	return json.Marshal(out)
}

// UnmarshalJSON нормализует отсутствующие поля верхнего уровня
func (d *Document) UnmarshalJSON(data []byte) error {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return fmt.Errorf("document is not a JSON object: %w", err)
	}

	doc := EmptyDocument()

	if raw, ok := fields[fieldHomework]; ok && !isEmptyJSON(raw) {
		if err := json.Unmarshal(raw, &doc.Homework); err != nil {
			return fmt.Errorf("invalid homework field: %w", err)
		}
		if doc.Homework == nil {
			doc.Homework = map[string]json.RawMessage{}
		}
	}
	delete(fields, fieldHomework)

	if raw, ok := fields[fieldAttendance]; ok && !isEmptyJSON(raw) {
		doc.Attendance = raw
	}
	delete(fields, fieldAttendance)

	if len(fields) > 0 {
		doc.Extra = fields
	}

	*d = doc
	return nil
}

func isEmptyJSON(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}
