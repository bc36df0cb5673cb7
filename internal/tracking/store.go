// Package tracking persists the pipeline's tracking state and decides which
// source rows are eligible for processing.
package tracking

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/daviddao/deskflow/internal/types"
)

// FileStore keeps the tracking state in a single JSON document.
type FileStore struct {
	path   string
	logger *zap.Logger
}

// NewFileStore returns a store backed by the file at path.
func NewFileStore(path string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{path: path, logger: logger}
}

// Load reads the tracking state. It never fails: a missing or unreadable
// file yields the default state, and a field holding the wrong type yields
// the default for that field alone.
func (s *FileStore) Load() *types.State {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		s.logger.Info("no tracking file, starting fresh", zap.String("path", s.path))
		return types.DefaultState()
	}
	if err != nil {
		s.logger.Error("read tracking file", zap.String("path", s.path), zap.Error(err))
		return types.DefaultState()
	}

	st, defaulted, err := types.DecodeState(data)
	if err != nil {
		s.logger.Error("corrupt tracking file, using defaults", zap.String("path", s.path), zap.Error(err))
		return types.DefaultState()
	}
	for _, key := range defaulted {
		s.logger.Warn("unexpected value in tracking file, using default for field",
			zap.String("path", s.path), zap.String("field", key))
	}
	return st
}

// Save writes the state atomically: the document goes to a temp file in the
// same directory, which is then renamed over the target.
func (s *FileStore) Save(st *types.State) error {
	if st == nil {
		return fmt.Errorf("save tracking state: nil state")
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		return fmt.Errorf("encode tracking state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create tracking directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return fmt.Errorf("write tracking state: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync tracking state: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace tracking file: %w", err)
	}

	s.logger.Debug("tracking state saved",
		zap.String("path", s.path),
		zap.Int("tickets", len(st.EmailToIssue)),
		zap.Int("flagged", len(st.FlaggedRequests)))
	return nil
}
