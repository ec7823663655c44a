package event

import (
	"bufio"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// maxLineSize bounds a single JSONL record when reading logs back.
const maxLineSize = 1 << 20

// Writer streams events as line-delimited JSON.
type Writer struct {
	bw  *bufio.Writer
	enc *json.Encoder
}

// NewWriter returns a Writer emitting one JSON object per line to w.
func NewWriter(w io.Writer) *Writer {
	bw := bufio.NewWriter(w)
	return &Writer{bw: bw, enc: json.NewEncoder(bw)}
}

// Write appends one event record.
func (w *Writer) Write(e Event) error {
	if err := w.enc.Encode(e); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	return nil
}

// Flush writes any buffered records to the underlying writer.
func (w *Writer) Flush() error {
	return w.bw.Flush()
}

// ReadAll decodes a JSONL event stream. Blank lines are skipped; a
// malformed line fails the whole read with its line number.
func ReadAll(r io.Reader) ([]Event, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var events []Event
	line := 0
	for sc.Scan() {
		line++
		raw := bytes.TrimSpace(sc.Bytes())
		if len(raw) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		events = append(events, e)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	return events, nil
}

// WriteFile writes events as JSONL to path, creating parent directories.
func WriteFile(path string, events []Event) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("create log directory: %w", err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create log file: %w", err)
	}
	w := NewWriter(f)
	for i := range events {
		if err := w.Write(events[i]); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("flush log file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close log file: %w", err)
	}
	return nil
}

// ReadFile reads a JSONL event log from path.
func ReadFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()
	return ReadAll(f)
}

// Digest returns the SHA-256 of the canonical JSONL encoding of events,
// hex-encoded. Two runs with equal parameters produce equal digests; the
// digest is the reproducibility fingerprint recorded alongside a run.
func Digest(events []Event) (string, error) {
	h := sha256.New()
	enc := json.NewEncoder(h)
	for i := range events {
		if err := enc.Encode(events[i]); err != nil {
			return "", fmt.Errorf("encode event %d: %w", i, err)
		}
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
