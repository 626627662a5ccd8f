package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// defaultMaxBytes is the rotation threshold for the NDJSON trail file.
const defaultMaxBytes = 64 << 20

// FileLogger appends audit records as newline-delimited JSON. Used alongside
// the database writer so a storage outage still leaves a local trail. When the
// file grows past the rotation threshold it is renamed with a timestamp suffix
// and a fresh file is started.
type FileLogger struct {
	mu       sync.Mutex
	path     string
	file     *os.File
	size     int64
	maxBytes int64
}

// NewFileLogger opens (or creates) an append-only NDJSON trail at path.
func NewFileLogger(path string) (*FileLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create audit log directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open audit log file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat audit log file: %w", err)
	}
	return &FileLogger{
		path:     path,
		file:     file,
		size:     info.Size(),
		maxBytes: defaultMaxBytes,
	}, nil
}

// Log appends one record as a single JSON line.
func (l *FileLogger) Log(ctx context.Context, record *Record) error {
	stamp(ctx, record)

	line, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode audit record: %w", err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.size > 0 && l.size+int64(len(line)) > l.maxBytes {
		if err := l.rotate(); err != nil {
			return err
		}
	}

	n, err := l.file.Write(line)
	l.size += int64(n)
	if err != nil {
		return fmt.Errorf("failed to append audit record: %w", err)
	}
	return nil
}

// rotate closes the active file, renames it with a timestamp suffix, and
// starts a fresh one. Callers hold the mutex.
func (l *FileLogger) rotate() error {
	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync audit log before rotation: %w", err)
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("failed to close audit log before rotation: %w", err)
	}

	rotated := fmt.Sprintf("%s.%s", l.path, time.Now().UTC().Format("20060102T150405.000000000"))
	if err := os.Rename(l.path, rotated); err != nil {
		return fmt.Errorf("failed to rotate audit log: %w", err)
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to reopen audit log after rotation: %w", err)
	}
	l.file = file
	l.size = 0
	return nil
}

// Close syncs and closes the trail file.
func (l *FileLogger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.file.Sync(); err != nil {
		return err
	}
	return l.file.Close()
}
