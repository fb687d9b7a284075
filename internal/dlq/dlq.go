// Package dlq keeps rows the pipeline could not turn into alerts so they can
// be inspected later.
package dlq

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/telhawk-systems/flowhawk/common/logging"
)

const fileName = "skipped_rows.jsonl"

// ErrDisabled is returned by reads on a nil Queue.
var ErrDisabled = errors.New("dlq not enabled")

// SkippedRow captures one rejected row.
type SkippedRow struct {
	Timestamp time.Time         `json:"timestamp"`
	Source    string            `json:"source"`
	Kind      string            `json:"kind"`
	Reason    string            `json:"reason"`
	Error     string            `json:"error"`
	Row       map[string]string `json:"row"`
}

// Queue appends skipped rows to a JSON-lines file. A nil *Queue accepts
// writes and drops them.
type Queue struct {
	path    string
	logger  *logging.Logger
	mu      sync.Mutex
	written uint64
}

// NewQueue creates a queue under dir.
func NewQueue(dir string, logger *logging.Logger) (*Queue, error) {
	if dir == "" {
		dir = "./data/dlq"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create dlq directory: %w", err)
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Queue{path: filepath.Join(dir, fileName), logger: logger}, nil
}

// Write records a skipped row.
func (q *Queue) Write(ctx context.Context, entry SkippedRow) error {
	if q == nil {
		return nil
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal dlq entry: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	f, err := os.OpenFile(q.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open dlq file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write dlq entry: %w", err)
	}
	q.written++
	q.logger.DebugContext(ctx, "dlq: row skipped",
		logging.Source(entry.Source),
		"reason", entry.Reason,
	)
	return nil
}

// Stats summarizes the queue.
type Stats struct {
	Enabled bool   `json:"enabled"`
	Written uint64 `json:"written"`
	Pending int    `json:"pending"`
	Path    string `json:"path,omitempty"`
}

func (q *Queue) Stats() Stats {
	if q == nil {
		return Stats{}
	}
	entries, _ := q.List(context.Background(), 0)

	q.mu.Lock()
	defer q.mu.Unlock()
	return Stats{Enabled: true, Written: q.written, Pending: len(entries), Path: q.path}
}

// List returns up to limit entries, oldest first; limit <= 0 returns all.
// Unreadable lines are skipped.
func (q *Queue) List(ctx context.Context, limit int) ([]SkippedRow, error) {
	if q == nil {
		return nil, ErrDisabled
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	f, err := os.Open(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open dlq file: %w", err)
	}
	defer f.Close()

	var out []SkippedRow
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for sc.Scan() {
		if limit > 0 && len(out) >= limit {
			break
		}
		var entry SkippedRow
		if err := json.Unmarshal(sc.Bytes(), &entry); err != nil {
			q.logger.WarnContext(ctx, "dlq: unreadable entry", logging.Error(err))
			continue
		}
		out = append(out, entry)
	}
	if err := sc.Err(); err != nil {
		return out, fmt.Errorf("read dlq file: %w", err)
	}
	return out, nil
}

// Purge removes every entry.
func (q *Queue) Purge(ctx context.Context) error {
	if q == nil {
		return ErrDisabled
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if err := os.Remove(q.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("purge dlq: %w", err)
	}
	q.logger.InfoContext(ctx, "dlq: purged")
	return nil
}
