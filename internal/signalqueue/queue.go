// Package signalqueue is the durable hand-off between the analyzer and
// executor processes: an append-only JSONL log written with fsync, read
// by a consumer that tracks a byte offset cursor. Delivery is
// at-least-once; the executor's dedup ledger is what makes execution
// exactly-once.
package signalqueue

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"mft-core/internal/decision"
)

const (
	logName    = "decisions.log"
	cursorName = "decisions.cursor"
)

type entry struct {
	Decision   decision.Decision `json:"decision"`
	AppendedAt time.Time         `json:"appended_at"`
}

// Writer appends decisions durably. Safe for one producer process.
type Writer struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewWriter opens (creating if needed) the decision log in dir.
func NewWriter(dir string) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create signal directory: %w", err)
	}
	path := filepath.Join(dir, logName)
	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open decision log: %w", err)
	}
	return &Writer{file: file, path: path}, nil
}

// Append writes one decision and syncs to disk before returning, so an
// emitted decision survives a crash of the producer.
func (w *Writer) Append(d decision.Decision) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := json.Marshal(entry{Decision: d, AppendedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	if _, err := w.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append decision: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return fmt.Errorf("sync decision log: %w", err)
	}
	return nil
}

// Close releases the log file.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.file == nil {
		return nil
	}
	err := w.file.Close()
	w.file = nil
	return err
}

// Reader consumes the decision log. The cursor is committed only after
// the caller has handled a batch, which is what makes redelivery (and
// not loss) the failure mode.
type Reader struct {
	path       string
	cursorPath string
	offset     int64 // committed high-water mark
	pending    int64 // offset after the last Poll, not yet committed
}

// NewReader opens the log for consumption, resuming from the persisted
// cursor when one exists.
func NewReader(dir string) (*Reader, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create signal directory: %w", err)
	}
	r := &Reader{
		path:       filepath.Join(dir, logName),
		cursorPath: filepath.Join(dir, cursorName),
	}

	data, err := os.ReadFile(r.cursorPath)
	if err == nil {
		if off, perr := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64); perr == nil {
			r.offset = off
		} else {
			log.Printf("⚠️ invalid signal cursor, rereading from start: %v", perr)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read signal cursor: %w", err)
	}
	r.pending = r.offset
	return r, nil
}

// Poll returns decisions appended since the committed cursor. A missing
// log file means no producer has written yet and is not an error.
// Unparseable lines are skipped with a log line, matching the recovery
// behavior of the order WAL.
func (r *Reader) Poll() ([]decision.Decision, error) {
	file, err := os.Open(r.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open decision log: %w", err)
	}
	defer file.Close()

	if _, err := file.Seek(r.offset, 0); err != nil {
		return nil, fmt.Errorf("seek decision log: %w", err)
	}

	var out []decision.Decision
	pos := r.offset
	reader := bufio.NewReader(file)
	for {
		line, err := reader.ReadBytes('\n')
		if err != nil {
			// A partial trailing line belongs to an in-flight append;
			// leave it for the next poll.
			break
		}
		pos += int64(len(line))

		var e entry
		if uerr := json.Unmarshal(line, &e); uerr != nil {
			log.Printf("⚠️ decision log parse error (skipping): %v", uerr)
			continue
		}
		out = append(out, e.Decision)
	}

	r.pending = pos
	return out, nil
}

// Commit durably advances the cursor past the last polled batch.
func (r *Reader) Commit() error {
	if r.pending == r.offset {
		return nil
	}
	tmp := r.cursorPath + ".tmp"
	if err := os.WriteFile(tmp, []byte(strconv.FormatInt(r.pending, 10)), 0o644); err != nil {
		return fmt.Errorf("write signal cursor: %w", err)
	}
	if err := os.Rename(tmp, r.cursorPath); err != nil {
		return fmt.Errorf("replace signal cursor: %w", err)
	}
	r.offset = r.pending
	return nil
}

// Lag reports how many bytes of log remain past the committed cursor.
func (r *Reader) Lag() int64 {
	info, err := os.Stat(r.path)
	if err != nil {
		return 0
	}
	lag := info.Size() - r.offset
	if lag < 0 {
		return 0
	}
	return lag
}
