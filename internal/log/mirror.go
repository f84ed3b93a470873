package log

import (
	"bytes"
	"encoding/json"
	"sync"
	"time"
)

const (
	defaultMirrorSize = 200
	maxPartialBytes   = 64 * 1024
)

// Entry is one decoded log line.
type Entry struct {
	Time      time.Time `json:"time"`
	Level     string    `json:"level"`
	Component string    `json:"component,omitempty"`
	Message   string    `json:"message"`
}

// Mirror keeps recent log entries and forwards new ones to subscribers.
// It is an io.Writer fed with zerolog JSON output.
type Mirror struct {
	mu      sync.Mutex
	partial bytes.Buffer
	recent  []Entry
	size    int
	nextID  int
	subs    map[int]func(Entry)
}

func NewMirror(size int) *Mirror {
	if size <= 0 {
		size = defaultMirrorSize
	}
	return &Mirror{size: size, subs: make(map[int]func(Entry))}
}

// Write accepts whole or partial JSON lines.
func (m *Mirror) Write(p []byte) (int, error) {
	m.mu.Lock()
	m.partial.Write(p)
	var entries []Entry
	for {
		data := m.partial.Bytes()
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			break
		}
		line := append([]byte(nil), data[:idx]...)
		m.partial.Next(idx + 1)
		if entry, ok := decodeEntry(line); ok {
			entries = append(entries, entry)
		}
	}
	if m.partial.Len() > maxPartialBytes {
		m.partial.Reset()
	}
	for _, entry := range entries {
		m.recent = append(m.recent, entry)
		if len(m.recent) > m.size {
			m.recent = m.recent[len(m.recent)-m.size:]
		}
	}
	subs := make([]func(Entry), 0, len(m.subs))
	for _, fn := range m.subs {
		subs = append(subs, fn)
	}
	m.mu.Unlock()

	for _, entry := range entries {
		for _, fn := range subs {
			fn(entry)
		}
	}
	return len(p), nil
}

// Recent returns a copy of the retained entries, oldest first.
func (m *Mirror) Recent() []Entry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.recent))
	copy(out, m.recent)
	return out
}

// Clear drops the retained entries.
func (m *Mirror) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recent = nil
}

// Subscribe registers fn for every new entry and returns its cancel func.
// fn runs on the logging goroutine and must not log through the same logger.
func (m *Mirror) Subscribe(fn func(Entry)) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := m.nextID
	m.nextID++
	m.subs[id] = fn
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.subs, id)
	}
}

func decodeEntry(line []byte) (Entry, bool) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return Entry{}, false
	}
	var entry Entry
	if err := json.Unmarshal(line, &entry); err != nil {
		return Entry{}, false
	}
	return entry, true
}
