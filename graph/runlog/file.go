package runlog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
)

// FileStore writes one JSON Lines file per thread under a directory.
//
// Appends to the same thread are serialized by a per-thread mutex; distinct
// threads write to distinct files without contention. Malformed lines are
// skipped on read.
type FileStore struct {
	dir    string
	logger *zap.Logger
	locks  sync.Map // threadID -> *sync.Mutex
}

// NewFileStore creates dir if needed and returns a FileStore rooted there.
func NewFileStore(dir string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run log directory: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{dir: dir, logger: logger.With(zap.String("component", "runlog"))}, nil
}

func (f *FileStore) path(threadID string) (string, error) {
	if threadID == "" || strings.ContainsAny(threadID, `/\`) || threadID == "." || threadID == ".." {
		return "", fmt.Errorf("invalid thread ID for file store: %q", threadID)
	}
	return filepath.Join(f.dir, threadID+".jsonl"), nil
}

func (f *FileStore) lock(threadID string) *sync.Mutex {
	mu, _ := f.locks.LoadOrStore(threadID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// Append implements Store.
func (f *FileStore) Append(_ context.Context, entry NodeRunLog) error {
	path, err := f.path(entry.ThreadID)
	if err != nil {
		return err
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal run log: %w", err)
	}
	line = append(line, '\n')

	mu := f.lock(entry.ThreadID)
	mu.Lock()
	defer mu.Unlock()

	file, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open run log: %w", err)
	}
	if _, err := file.Write(line); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write run log: %w", err)
	}
	return file.Close()
}

// List implements Store.
func (f *FileStore) List(_ context.Context, threadID string, filter Filter) ([]NodeRunLog, error) {
	path, err := f.path(threadID)
	if err != nil {
		return nil, err
	}

	mu := f.lock(threadID)
	mu.Lock()
	defer mu.Unlock()

	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return []NodeRunLog{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open run log: %w", err)
	}
	defer func() { _ = file.Close() }()

	out := make([]NodeRunLog, 0)
	reader := bufio.NewReader(file)
	for lineNo := 1; ; lineNo++ {
		line, readErr := reader.ReadBytes('\n')
		if line = bytes.TrimSpace(line); len(line) > 0 {
			var entry NodeRunLog
			if err := json.Unmarshal(line, &entry); err != nil {
				f.logger.Warn("skipping malformed run log line",
					zap.String("thread_id", threadID),
					zap.Int("line", lineNo),
					zap.Error(err))
			} else if filter.matches(entry) {
				out = append(out, entry)
			}
		}
		if errors.Is(readErr, io.EOF) {
			break
		}
		if readErr != nil {
			return nil, fmt.Errorf("failed to read run log: %w", readErr)
		}
	}
	return out, nil
}

// Threads lists the thread IDs that have a log file.
func (f *FileStore) Threads() ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to list run logs: %w", err)
	}
	var ids []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			ids = append(ids, strings.TrimSuffix(e.Name(), ".jsonl"))
		}
	}
	return ids, nil
}
