// Package session persists conversation turns as append-only JSONL files,
// one file per session key.
package session

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"parley/internal/gateway"
)

const (
	defaultSessionDirName = ".parley/sessions"
	sessionFileExt        = ".jsonl"
	maxJSONLLineSize      = 1024 * 1024
)

var (
	ErrStoreDirRequired  = errors.New("session directory is required")
	ErrSessionKeyEmpty   = errors.New("session key is required")
	ErrInvalidSessionKey = errors.New("invalid session key")
	ErrRoleRequired      = errors.New("record role is required")
	ErrSessionNotFound   = errors.New("session not found")
)

// UsageRecord is the per-turn token/cost snapshot persisted with a record.
type UsageRecord struct {
	TotalTokens int64   `json:"total_tokens"`
	CostUSD     float64 `json:"cost_usd"`
}

// Record is one append-only line in a session JSONL file.
type Record struct {
	Role    gateway.Role           `json:"role"`
	Content []gateway.ContentBlock `json:"content,omitempty"`
	Usage   *UsageRecord           `json:"usage,omitempty"`
	TS      int64                  `json:"ts"`
}

// SessionInfo describes one session file on disk.
type SessionInfo struct {
	Key       string
	Path      string
	UpdatedAt time.Time
	SizeBytes int64
}

// Store persists session records as append-only JSONL files.
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore constructs a session store rooted at dir.
func NewStore(dir string) (*Store, error) {
	root := strings.TrimSpace(dir)
	if root == "" {
		return nil, ErrStoreDirRequired
	}
	return &Store{dir: root}, nil
}

// DefaultDir returns the canonical sessions directory under a home root.
func DefaultDir(homeRoot string) string {
	return filepath.Join(homeRoot, defaultSessionDirName)
}

// Append appends one record to a session file.
func (s *Store) Append(ctx context.Context, sessionKey string, record Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path, err := s.sessionPath(sessionKey)
	if err != nil {
		return err
	}

	record.Role = gateway.Role(strings.TrimSpace(string(record.Role)))
	if record.Role == "" {
		return ErrRoleRequired
	}
	if record.TS <= 0 {
		record.TS = time.Now().UnixMilli()
	}

	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal session record: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create session dir %s: %w", s.dir, err)
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open session file %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	if _, err := file.Write(raw); err != nil {
		return fmt.Errorf("append session record: %w", err)
	}
	if _, err := file.Write([]byte("\n")); err != nil {
		return fmt.Errorf("append session newline: %w", err)
	}
	return nil
}

// Load reads all records from one session file.
func (s *Store) Load(ctx context.Context, sessionKey string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path, err := s.sessionPath(sessionKey)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, strings.TrimSpace(sessionKey))
		}
		return nil, fmt.Errorf("open session file %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxJSONLLineSize)

	records := make([]Record, 0, 64)
	lineNum := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var record Record
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, fmt.Errorf("decode session line %d: %w", lineNum, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		if errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("decode session line too large (> %d bytes): %w", maxJSONLLineSize, err)
		}
		if errors.Is(err, io.EOF) {
			return records, nil
		}
		return nil, fmt.Errorf("scan session file: %w", err)
	}

	return records, nil
}

// List returns known session files sorted by newest first.
func (s *Store) List(ctx context.Context) ([]SessionInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	items, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read session dir %s: %w", s.dir, err)
	}

	out := make([]SessionInfo, 0, len(items))
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if item.IsDir() || filepath.Ext(item.Name()) != sessionFileExt {
			continue
		}

		info, err := item.Info()
		if err != nil {
			return nil, fmt.Errorf("read session file info %s: %w", item.Name(), err)
		}

		key := strings.TrimSuffix(item.Name(), sessionFileExt)
		out = append(out, SessionInfo{
			Key:       key,
			Path:      filepath.Join(s.dir, item.Name()),
			UpdatedAt: info.ModTime(),
			SizeBytes: info.Size(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].Key > out[j].Key
		}
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *Store) sessionPath(sessionKey string) (string, error) {
	key := strings.TrimSpace(sessionKey)
	if key == "" {
		return "", ErrSessionKeyEmpty
	}
	if strings.ContainsAny(key, `/\`) || key == "." || key == ".." {
		return "", fmt.Errorf("%w: %s", ErrInvalidSessionKey, key)
	}
	return filepath.Join(s.dir, key+sessionFileExt), nil
}
