package logger

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"
)

// Publisher ships a batch of digest entries to an external sink.
type Publisher interface {
	PublishMessage(ctx context.Context, topic string, payload interface{}) error
}

type DigestConfig struct {
	FlushInterval  time.Duration
	CountThreshold int // distinct entries before an early flush
	Topic          string
	Publisher      Publisher
}

// DigestEntry is one distinct (level, message, fields, caller) tuple and how often it fired.
type DigestEntry struct {
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields"`
	Caller    string                 `json:"caller"`
	Count     int                    `json:"count"`
	FirstSeen time.Time              `json:"first_seen"`
	LastSeen  time.Time              `json:"last_seen"`
}

// ErrorDigest deduplicates warn/error logs and publishes them in batches.
type ErrorDigest struct {
	cfg     DigestConfig
	entries map[string]*DigestEntry
	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewErrorDigest(cfg *DigestConfig) *ErrorDigest {
	c := *cfg
	if c.FlushInterval <= 0 {
		c.FlushInterval = 30 * time.Second
	}
	if c.CountThreshold <= 0 {
		c.CountThreshold = 100
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &ErrorDigest{
		cfg:     c,
		entries: make(map[string]*DigestEntry),
		cancel:  cancel,
	}

	d.wg.Add(1)
	go d.loop(ctx)
	return d
}

func (d *ErrorDigest) Add(level, message string, fields map[string]interface{}, caller string) {
	now := time.Now()
	key := digestKey(level, message, fields, caller)

	d.mu.Lock()
	defer d.mu.Unlock()

	if e, ok := d.entries[key]; ok {
		e.Count++
		e.LastSeen = now
	} else {
		d.entries[key] = &DigestEntry{
			Level:     level,
			Message:   message,
			Fields:    fields,
			Caller:    caller,
			Count:     1,
			FirstSeen: now,
			LastSeen:  now,
		}
	}

	if len(d.entries) >= d.cfg.CountThreshold {
		d.flushLocked()
	}
}

// Snapshot returns the pending entries ordered by first occurrence.
func (d *ErrorDigest) Snapshot() []DigestEntry {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pendingLocked()
}

func (d *ErrorDigest) pendingLocked() []DigestEntry {
	out := make([]DigestEntry, 0, len(d.entries))
	for _, e := range d.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FirstSeen.Before(out[j].FirstSeen) })
	return out
}

func digestKey(level, message string, fields map[string]interface{}, caller string) string {
	data := struct {
		Level   string                 `json:"level"`
		Message string                 `json:"message"`
		Fields  map[string]interface{} `json:"fields"`
		Caller  string                 `json:"caller"`
	}{level, message, fields, caller}

	b, _ := json.Marshal(data)
	return fmt.Sprintf("%x", sha256.Sum256(b))
}

func (d *ErrorDigest) loop(ctx context.Context) {
	defer d.wg.Done()

	ticker := time.NewTicker(d.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.mu.Lock()
			d.flushLocked()
			d.mu.Unlock()
		case <-ctx.Done():
			d.mu.Lock()
			batch := d.pendingLocked()
			d.entries = make(map[string]*DigestEntry)
			d.mu.Unlock()
			d.publish(batch)
			return
		}
	}
}

func (d *ErrorDigest) flushLocked() {
	if len(d.entries) == 0 {
		return
	}
	batch := d.pendingLocked()
	d.entries = make(map[string]*DigestEntry)

	go d.publish(batch)
}

func (d *ErrorDigest) publish(batch []DigestEntry) {
	if len(batch) == 0 || d.cfg.Publisher == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := d.cfg.Publisher.PublishMessage(ctx, d.cfg.Topic, batch); err != nil {
		fmt.Fprintf(os.Stderr, "log digest publish failed: %v\n", err)
	}
}

// Close performs a final flush and stops the background loop.
func (d *ErrorDigest) Close() {
	d.cancel()
	d.wg.Wait()
}
