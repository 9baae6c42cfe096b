// Package journal keeps an optional flat, append-only log of completed turns.
// It is a crash-recovery aid beside the relational store, never the source of
// truth: writes are best-effort and the broker only logs journal failures.
package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Record is one fully completed conversational turn.
type Record struct {
	UserID   int64     `json:"user_id"`
	Username string    `json:"username,omitempty"`
	InputSeq int64     `json:"input_seq"`
	ReplySeq int64     `json:"reply_seq"`
	Input    string    `json:"input"`
	Reply    string    `json:"reply"`
	At       time.Time `json:"at"`
}

// Journal appends JSON lines to a single file, one record per turn.
type Journal struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
}

func Open(path string) (*Journal, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{file: f, enc: json.NewEncoder(f)}, nil
}

func (j *Journal) Append(rec Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(rec); err != nil {
		return fmt.Errorf("append journal record: %w", err)
	}
	return nil
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}

// Replay reads a journal file from the start and calls fn for every record.
// Unparseable trailing data (a torn write from a crash) ends the replay
// without an error.
func Replay(path string, fn func(Record) error) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer f.Close()

	s := bufio.NewScanner(f)
	s.Buffer(make([]byte, 64*1024), 1<<22)
	for s.Scan() {
		var rec Record
		if err := json.Unmarshal(s.Bytes(), &rec); err != nil {
			return nil
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return s.Err()
}
