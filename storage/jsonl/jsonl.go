// Package jsonl appends exchange events to a JSON Lines file.
package jsonl

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/defistate/defistate-dex-go/dex"
	"github.com/defistate/defistate-dex-go/storage"
)

// EventFile writes one JSON object per event.
//
// Deduplication is left to readers: a repeated batch produces repeated lines with the same
// id.
type EventFile struct {
	path string
	mu   sync.Mutex
}

// Compile-time interface check.
var _ storage.EventWriter = (*EventFile)(nil)

func NewEventFile(path string) *EventFile {
	return &EventFile{path: path}
}

// WriteEvents appends a batch of events as JSON lines.
func (f *EventFile) WriteEvents(_ context.Context, events []dex.Event) error {
	if len(events) == 0 {
		return nil
	}

	dir := filepath.Dir(f.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	for _, ev := range events {
		line, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("marshal event: %w", err)
		}
		if _, err := writer.Write(line); err != nil {
			return fmt.Errorf("write event: %w", err)
		}
		if err := writer.WriteByte('\n'); err != nil {
			return fmt.Errorf("write newline: %w", err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return file.Sync()
}

// ReadEvents loads every event in the file, keeping the first occurrence of each id.
func ReadEvents(path string) ([]dex.Event, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var events []dex.Event
	seen := make(map[string]struct{})
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		var ev dex.Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if _, ok := seen[ev.ID.String()]; ok {
			continue
		}
		seen[ev.ID.String()] = struct{}{}
		events = append(events, ev)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return events, nil
}
