// Package fsjsonl is the filesystem-backed runlog.Store: one events.jsonl
// file per run plus a companion events.idx.jsonl index, laid out under
// sessions/<session_key>/runs/<run_id>/events.jsonl.
package fsjsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/agentcore/runtime/pkg/runlog"
)

// Store persists event streams as JSONL files under root.
type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New constructs a Store rooted at dir.
func New(dir string) *Store {
	return &Store{root: dir, locks: make(map[string]*sync.Mutex)}
}

func (s *Store) streamDir(id runlog.StreamID) string {
	return filepath.Join(s.root, "sessions", id.SessionKey, "runs", id.RunID)
}

func (s *Store) eventsPath(id runlog.StreamID) string {
	return filepath.Join(s.streamDir(id), "events.jsonl")
}

func (s *Store) indexPath(id runlog.StreamID) string {
	return filepath.Join(s.streamDir(id), "events.idx.jsonl")
}

func (s *Store) lockFor(id runlog.StreamID) *sync.Mutex {
	key := id.SessionKey + "/" + id.RunID
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

// Append implements runlog.Store.
func (s *Store) Append(ctx context.Context, id runlog.StreamID, event runlog.Event) error {
	return s.AppendBatch(ctx, id, []runlog.Event{event})
}

// AppendBatch implements runlog.Store: all events validate before any
// write; the per-stream lock serializes concurrent appenders FIFO by
// submission so readers never observe a torn batch.
func (s *Store) AppendBatch(_ context.Context, id runlog.StreamID, events []runlog.Event) error {
	for i, e := range events {
		if err := e.Validate(); err != nil {
			return fmt.Errorf("event %d: %w", i, err)
		}
	}

	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	dir := s.streamDir(id)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &runlog.IOError{Op: "mkdir", Err: err}
	}

	f, err := os.OpenFile(s.eventsPath(id), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return &runlog.IOError{Op: "open", Err: err}
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	for _, e := range events {
		b, err := json.Marshal(e)
		if err != nil {
			return &runlog.IOError{Op: "marshal", Err: err}
		}
		if _, err := w.Write(b); err != nil {
			return &runlog.IOError{Op: "write", Err: err}
		}
		if err := w.WriteByte('\n'); err != nil {
			return &runlog.IOError{Op: "write", Err: err}
		}
	}
	if err := w.Flush(); err != nil {
		return &runlog.IOError{Op: "flush", Err: err}
	}
	return f.Sync()
}

// readAll reads every well-formed line; malformed trailing lines are
// skipped rather than surfaced as an error.
func (s *Store) readAll(id runlog.StreamID) ([]runlog.Event, error) {
	f, err := os.Open(s.eventsPath(id))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, &runlog.IOError{Op: "open", Err: err}
	}
	defer f.Close()

	var out []runlog.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e runlog.Event
		if err := json.Unmarshal(line, &e); err != nil {
			continue // skip malformed line, resilient to partial corruption at tail
		}
		out = append(out, e)
	}
	return out, nil
}

// ReadStream implements runlog.Store.
func (s *Store) ReadStream(_ context.Context, id runlog.StreamID) ([]runlog.Event, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	return s.readAll(id)
}

// ReadPage implements runlog.Store, with the same 1-based line-number
// cursor scheme as the in-memory store.
func (s *Store) ReadPage(_ context.Context, id runlog.StreamID, cursor string, limit int, includeTokens bool) (runlog.Page, error) {
	start := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return runlog.Page{}, fmt.Errorf("runlog: invalid cursor %q", cursor)
		}
		start = n
	}

	lock := s.lockFor(id)
	lock.Lock()
	all, err := s.readAll(id)
	lock.Unlock()
	if err != nil {
		return runlog.Page{}, err
	}

	if start > len(all) {
		start = len(all)
	}
	lim := clampLimit(limit)

	var page []runlog.Event
	idx := start
	for idx < len(all) && len(page) < lim {
		e := all[idx]
		idx++
		if !includeTokens && e.Type == runlog.TypeLLMToken {
			continue
		}
		page = append(page, e)
	}

	next := ""
	if idx < len(all) {
		next = strconv.Itoa(idx)
	}
	return runlog.Page{Events: page, NextCursor: next}, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return 50
	}
	if limit > runlog.MaxPageSize {
		return runlog.MaxPageSize
	}
	return limit
}

// indexEntry is one companion-file record.
type indexEntry struct {
	ByteOffset int64  `json:"byte_offset"`
	LineNumber int    `json:"line_number"`
	TS         string `json:"ts"`
}

// BuildIndex implements runlog.Store: writes an index entry every everyN
// events to accelerate pagination on long logs.
func (s *Store) BuildIndex(_ context.Context, id runlog.StreamID, everyN int) error {
	if everyN <= 0 {
		everyN = 100
	}
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()

	f, err := os.Open(s.eventsPath(id))
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return &runlog.IOError{Op: "open", Err: err}
	}
	defer f.Close()

	idxF, err := os.Create(s.indexPath(id))
	if err != nil {
		return &runlog.IOError{Op: "create-index", Err: err}
	}
	defer idxF.Close()

	w := bufio.NewWriter(idxF)
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var offset int64
	lineNo := 0
	for scanner.Scan() {
		line := scanner.Bytes()
		lineLen := int64(len(line)) + 1
		if lineNo%everyN == 0 {
			var e runlog.Event
			ts := ""
			if json.Unmarshal(line, &e) == nil {
				ts = e.TS.Format("2006-01-02T15:04:05.000Z07:00")
			}
			entry := indexEntry{ByteOffset: offset, LineNumber: lineNo, TS: ts}
			b, _ := json.Marshal(entry)
			w.Write(b)
			w.WriteByte('\n')
		}
		offset += lineLen
		lineNo++
	}
	return w.Flush()
}

// Count implements runlog.Store.
func (s *Store) Count(_ context.Context, id runlog.StreamID) (int, error) {
	lock := s.lockFor(id)
	lock.Lock()
	defer lock.Unlock()
	all, err := s.readAll(id)
	if err != nil {
		return 0, err
	}
	return len(all), nil
}

// Exists implements runlog.Store.
func (s *Store) Exists(_ context.Context, id runlog.StreamID) (bool, error) {
	_, err := os.Stat(s.eventsPath(id))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, &runlog.IOError{Op: "stat", Err: err}
	}
	return true, nil
}
