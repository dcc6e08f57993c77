package mocks

import (
	"fmt"
	"sync"
)

// Notification is one recorded host message.
type Notification struct {
	Level   string // "info", "warning" or "error"
	Message string
}

// Notifier records messages sent to the host notification boundary.
type Notifier struct {
	mu       sync.Mutex
	messages []Notification
}

// NewNotifier creates an empty recording notifier.
func NewNotifier() *Notifier {
	return &Notifier{}
}

func (m *Notifier) add(level, format string, args ...interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, Notification{Level: level, Message: fmt.Sprintf(format, args...)})
}

func (m *Notifier) Info(format string, args ...interface{})    { m.add("info", format, args...) }
func (m *Notifier) Warning(format string, args ...interface{}) { m.add("warning", format, args...) }
func (m *Notifier) Error(format string, args ...interface{})   { m.add("error", format, args...) }

// Messages returns all recorded notifications in order.
func (m *Notifier) Messages() []Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	result := make([]Notification, len(m.messages))
	copy(result, m.messages)
	return result
}

// Level returns the messages recorded at one level.
func (m *Notifier) Level(level string) []string {
	var out []string
	for _, n := range m.Messages() {
		if n.Level == level {
			out = append(out, n.Message)
		}
	}
	return out
}
