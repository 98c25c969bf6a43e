// Package calendar содержит работу с гражданским временем приложения:
// текущее время в часовом поясе, календарные сутки, ключ дня и разбор дат.
//
// Ключ дня (YYYYMMDD) выводится только здесь и используется всеми местами,
// которые адресуют документ удаленного хранилища.
package calendar

import (
	"fmt"
	"strings"
	"time"
)

// Форматы вывода
const (
	KeyLayout     = "20060102"
	ISOLayout     = "2006-01-02T15:04:05"
	DisplayLayout = "2006-01-02 15:04:05"
)

// Clock источник текущего времени
type Clock interface {
	Now() time.Time
}

// SystemClock возвращает текущее время в заданном часовом поясе
type SystemClock struct {
	Location *time.Location
}

// Now возвращает текущее время
func (c SystemClock) Now() time.Time {
	if c.Location == nil {
		return time.Now()
	}
	return time.Now().In(c.Location)
}

// FixedClock всегда возвращает одно и то же время
type FixedClock struct {
	T time.Time
}

// Now возвращает зафиксированное время
func (c *FixedClock) Now() time.Time {
	return c.T
}

// Advance сдвигает часы вперед
func (c *FixedClock) Advance(d time.Duration) {
	c.T = c.T.Add(d)
}

// Day гражданские сутки в часовом поясе
type Day struct {
	Year     int
	Month    time.Month
	Day      int
	Location *time.Location
}

// DayOf возвращает сутки, которым принадлежит момент t в часовом поясе loc
func DayOf(t time.Time, loc *time.Location) Day {
	if loc == nil {
		loc = t.Location()
	}
	local := t.In(loc)
	return Day{Year: local.Year(), Month: local.Month(), Day: local.Day(), Location: loc}
}

// Key возвращает ключ дня в формате YYYYMMDD
func (d Day) Key() string {
	return fmt.Sprintf("%04d%02d%02d", d.Year, int(d.Month), d.Day)
}

// Bounds возвращает полуоткрытый интервал [00:00, следующие 00:00)
func (d Day) Bounds() (time.Time, time.Time) {
	loc := d.Location
	if loc == nil {
		loc = time.UTC
	}
	start := time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// Contains проверяет, попадает ли момент t в сутки
func (d Day) Contains(t time.Time) bool {
	start, end := d.Bounds()
	return !t.Before(start) && t.Before(end)
}

// String возвращает сутки в формате YYYY-MM-DD
func (d Day) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, int(d.Month), d.Day)
}

// DayKey возвращает ключ дня для момента t
func DayKey(t time.Time, loc *time.Location) string {
	return DayOf(t, loc).Key()
}

// FormatISO форматирует момент как наивный ISO в часовом поясе loc
func FormatISO(t time.Time, loc *time.Location) string {
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(ISOLayout)
}

// Format форматирует момент для ответов API
func Format(t time.Time, loc *time.Location) string {
	if t.IsZero() {
		return ""
	}
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(DisplayLayout)
}

// naiveLayouts форматы без часового пояса, трактуются в loc
var naiveLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
	"20060102 15:04:05",
	"20060102 15:04",
	"20060102",
}

// Parse разбирает строку даты. Значения без часового пояса трактуются в loc,
// значения с Z или смещением переводятся в loc.
func Parse(value string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}

	s := strings.TrimSpace(value)
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}

	if strings.Contains(s, "T") {
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			return t.In(loc), nil
		}
		s = strings.Replace(s, "T", " ", 1)
	}

	// Дробные секунды отбрасываются
	if i := strings.Index(s, "."); i > 0 {
		s = s[:i]
	}

	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unsupported date format: %q", value)
}
