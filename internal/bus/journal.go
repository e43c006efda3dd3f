package bus

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/procurepro/tbe/internal/pkg/errors"
	"github.com/procurepro/tbe/internal/pkg/logger"
)

// maxJournalLine bounds a single journal entry. Outcome payloads of large
// bid sets can be several hundred kilobytes.
const maxJournalLine = 4 * 1024 * 1024

// JournalEntry is one published event as recorded on disk.
type JournalEntry struct {
	Topic      string    `json:"topic"`
	Event      Event     `json:"event"`
	RecordedAt time.Time `json:"recorded_at"`
}

// JournalFilter narrows Read. Zero fields match everything.
type JournalFilter struct {
	Since time.Time
	Topic string
	Key   string
	Limit int
}

func (f JournalFilter) match(e JournalEntry) bool {
	if !f.Since.IsZero() && !e.RecordedAt.After(f.Since) {
		return false
	}
	if f.Topic != "" && e.Topic != f.Topic {
		return false
	}
	return f.Key == "" || e.Event.Key == f.Key
}

// Journal appends every published event to a JSON lines file so evaluation
// decisions can be audited and replayed.
type Journal struct {
	path    string
	mu      sync.Mutex
	file    *os.File
	encoder *json.Encoder
	now     func() time.Time
}

// OpenJournal opens (or creates) the journal at path.
func OpenJournal(path string) (*Journal, error) {
	if path == "" {
		return nil, errors.New(errors.CodeValidation, "journal path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{
		path:    path,
		file:    file,
		encoder: json.NewEncoder(file),
		now:     time.Now,
	}, nil
}

// Path returns the journal file location.
func (j *Journal) Path() string {
	return j.path
}

// Append records one event and syncs the file.
func (j *Journal) Append(topic string, event Event) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return errors.New(errors.CodeUnavailable, "journal is closed")
	}
	entry := JournalEntry{Topic: topic, Event: event, RecordedAt: j.now().UTC()}
	if err := j.encoder.Encode(entry); err != nil {
		return fmt.Errorf("encode journal entry: %w", err)
	}
	return j.file.Sync()
}

// Read returns matching entries in the order they were recorded. Malformed
// lines are skipped.
func (j *Journal) Read(f JournalFilter) ([]JournalEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	file, err := os.Open(j.path)
	if err != nil {
		if os.IsNotExist(err) {
			return []JournalEntry{}, nil
		}
		return nil, fmt.Errorf("open journal: %w", err)
	}
	defer file.Close()

	entries := []JournalEntry{}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxJournalLine)
	for scanner.Scan() {
		var e JournalEntry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		if !f.match(e) {
			continue
		}
		entries = append(entries, e)
		if f.Limit > 0 && len(entries) >= f.Limit {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan journal: %w", err)
	}
	return entries, nil
}

// Replay republishes matching entries to b in recorded order and returns
// how many were published.
func (j *Journal) Replay(ctx context.Context, b Bus, f JournalFilter) (int, error) {
	entries, err := j.Read(f)
	if err != nil {
		return 0, err
	}
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		if err := b.Publish(ctx, e.Topic, e.Event); err != nil {
			return i, fmt.Errorf("replay event %s: %w", e.Event.ID, err)
		}
	}
	return len(entries), nil
}

// Close closes the journal file. Further appends fail.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	j.encoder = nil
	if err != nil {
		return fmt.Errorf("close journal: %w", err)
	}
	return nil
}

// JournaledBus records every event in a Journal before handing it to the
// inner bus. A journal failure is logged and does not block publishing.
type JournaledBus struct {
	inner   Bus
	journal *Journal
	log     *logger.Logger
}

// NewJournaledBus wraps inner. A nil logger discards journal failures.
func NewJournaledBus(inner Bus, journal *Journal, log *logger.Logger) *JournaledBus {
	if log == nil {
		log = logger.Discard()
	}
	return &JournaledBus{inner: inner, journal: journal, log: log}
}

// Publish journals the event, then publishes it.
func (b *JournaledBus) Publish(ctx context.Context, topic string, event Event) error {
	if err := b.journal.Append(topic, event); err != nil {
		b.log.Warn("failed to journal event", "topic", topic, "event_id", event.ID, "error", err.Error())
	}
	return b.inner.Publish(ctx, topic, event)
}

// Subscribe delegates to the inner bus.
func (b *JournaledBus) Subscribe(ctx context.Context, topic string, handler Handler) error {
	return b.inner.Subscribe(ctx, topic, handler)
}

// Journal returns the underlying journal.
func (b *JournaledBus) Journal() *Journal {
	return b.journal
}

// Close closes the inner bus and the journal.
func (b *JournaledBus) Close() error {
	err := b.inner.Close()
	if jerr := b.journal.Close(); err == nil {
		err = jerr
	}
	return err
}
