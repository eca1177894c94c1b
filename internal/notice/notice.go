// Package notice carries non-fatal, user-visible messages (a failed toggle,
// a feed refresh that kept the previous snapshot) from the core to whatever
// renders them.
package notice

import (
	"encoding/json"
	"log"
	"sync"
	"time"
)

type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

type Notice struct {
	Type    string    `json:"type"`
	Level   Level     `json:"level"`
	Source  string    `json:"source"`
	Subject string    `json:"subject,omitempty"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

func Error(source, subject, message string) Notice {
	return Notice{Type: "notice", Level: LevelError, Source: source, Subject: subject, Message: message, At: time.Now()}
}

type Sink interface {
	Notify(n Notice)
}

type SinkFunc func(n Notice)

func (f SinkFunc) Notify(n Notice) { f(n) }

// Discard drops every notice.
var Discard Sink = SinkFunc(func(Notice) {})

// Log writes notices to the standard logger.
var Log Sink = SinkFunc(func(n Notice) {
	log.Printf("notice [%s] %s %s: %s", n.Level, n.Source, n.Subject, n.Message)
})

type multi []Sink

func (m multi) Notify(n Notice) {
	for _, s := range m {
		s.Notify(n)
	}
}

func Multi(sinks ...Sink) Sink {
	out := make(multi, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

// Broadcast encodes notices as JSON and hands them to send, typically a
// stream hub bound to one view.
func Broadcast(send func(payload []byte)) Sink {
	return SinkFunc(func(n Notice) {
		payload, err := json.Marshal(n)
		if err != nil {
			log.Printf("notice encode error: %v", err)
			return
		}
		send(payload)
	})
}

// Buffer keeps the most recent notices for polling renderers.
type Buffer struct {
	mu    sync.Mutex
	size  int
	items []Notice
}

func NewBuffer(size int) *Buffer {
	if size <= 0 {
		size = 50
	}
	return &Buffer{size: size}
}

func (b *Buffer) Notify(n Notice) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items = append(b.items, n)
	if len(b.items) > b.size {
		b.items = append([]Notice(nil), b.items[len(b.items)-b.size:]...)
	}
}

func (b *Buffer) Recent() []Notice {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Notice(nil), b.items...)
}
