// Package notify содержит канал событий реального времени для досок.
// Доставка без гарантий: если буфер подписчика заполнен, событие для него отбрасывается.
package notify

import (
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType тип события
type EventType string

const (
	EventNewAssignment    EventType = "new_assignment"
	EventUpdateAssignment EventType = "update_assignment"
	EventDeleteAssignment EventType = "delete_assignment"
)

// AssignmentPayload данные события о задании
type AssignmentPayload struct {
	ID          interface{} `json:"id,omitempty"`
	Title       string      `json:"title,omitempty"`
	Description string      `json:"description,omitempty"`
	Subject     string      `json:"subject"`
	DueDate     string      `json:"due_date,omitempty"`
	CreatedAt   string      `json:"created_at,omitempty"`
	UpdatedAt   string      `json:"updated_at,omitempty"`
	TeacherID   int64       `json:"teacher_id,omitempty"`
	StorageType string      `json:"storage_type"`
}

// Event событие канала доски
type Event struct {
	ID           string            `json:"event_id"`
	Type         EventType         `json:"type"`
	WhiteboardID int64             `json:"whiteboard_id"`
	Payload      AssignmentPayload `json:"payload"`
	At           time.Time         `json:"at"`
}

// Channel возвращает имя канала доски
func Channel(whiteboardID int64) string {
	return "whiteboard_" + strconv.FormatInt(whiteboardID, 10)
}

// Publisher публикует события
type Publisher interface {
	Publish(whiteboardID int64, eventType EventType, payload AssignmentPayload)
}

// Hub рассылает события подписчикам доски
type Hub struct {
	mu          sync.RWMutex
	subscribers map[int64]map[uint64]chan Event
	nextID      uint64
	buffer      int
	dropped     int64
	logger      *zap.Logger
}

// NewHub создает новый хаб событий
func NewHub(buffer int, logger *zap.Logger) *Hub {
	if buffer <= 0 {
		buffer = 16
	}
	return &Hub{
		subscribers: make(map[int64]map[uint64]chan Event),
		buffer:      buffer,
		logger:      logger,
	}
}

// Subscribe подписывает на события доски, cancel закрывает канал
func (h *Hub) Subscribe(whiteboardID int64) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	ch := make(chan Event, h.buffer)

	if h.subscribers[whiteboardID] == nil {
		h.subscribers[whiteboardID] = make(map[uint64]chan Event)
	}
	h.subscribers[whiteboardID][id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if subs, ok := h.subscribers[whiteboardID]; ok {
				delete(subs, id)
				if len(subs) == 0 {
					delete(h.subscribers, whiteboardID)
				}
			}
			close(ch)
		})
	}

	return ch, cancel
}

// Publish отправляет событие всем подписчикам доски без блокировки
func (h *Hub) Publish(whiteboardID int64, eventType EventType, payload AssignmentPayload) {
	event := Event{
		ID:           uuid.NewString(),
		Type:         eventType,
		WhiteboardID: whiteboardID,
		Payload:      payload,
		At:           time.Now(),
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	delivered := 0
	for _, ch := range h.subscribers[whiteboardID] {
		select {
		case ch <- event:
			delivered++
		default:
			h.dropped++
		}
	}

	h.logger.Debug("Event published",
		zap.String("channel", Channel(whiteboardID)),
		zap.String("type", string(eventType)),
		zap.Int("delivered", delivered))
}

// SubscriberCount возвращает число подписчиков доски
func (h *Hub) SubscriberCount(whiteboardID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[whiteboardID])
}

// Dropped возвращает число отброшенных событий
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}
