package project

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/loomworks/loom/types"
)

const (
	projectFileName = "loom.json"
	tmpFileName     = "loom.json.tmp"
)

// FileStore persists a project as one JSON document under a root directory.
type FileStore struct {
	root   string
	logger *zap.Logger
}

// NewFileStore creates a FileStore rooted at dir.
func NewFileStore(dir string, logger *zap.Logger) *FileStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FileStore{root: dir, logger: logger.With(zap.String("component", "project_file"))}
}

// Path returns the project file location.
func (s *FileStore) Path() string {
	return filepath.Join(s.root, projectFileName)
}

// Exists reports whether a project file is present.
func (s *FileStore) Exists() bool {
	_, err := os.Stat(s.Path())
	return err == nil
}

// Save writes the project atomically: the document lands in a temp file
// first and replaces the previous one by rename, so a crash mid-write
// never leaves a torn project on disk.
func (s *FileStore) Save(p *Project) error {
	if err := os.MkdirAll(s.root, 0o755); err != nil {
		return types.NewError(types.ErrProjectUnavailable, "create project directory").WithCause(err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return types.NewError(types.ErrProjectUnavailable, "encode project").WithCause(err)
	}

	tmp := filepath.Join(s.root, tmpFileName)
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return types.NewError(types.ErrProjectUnavailable, "write project file").WithCause(err)
	}
	if err := os.Rename(tmp, s.Path()); err != nil {
		return types.NewError(types.ErrProjectUnavailable, "commit project file").WithCause(err)
	}

	s.logger.Debug("project saved", zap.String("path", s.Path()), zap.Int("bytes", len(data)))
	return nil
}

// Load reads the project document.
func (s *FileStore) Load() (*Project, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		return nil, types.NewError(types.ErrProjectUnavailable, "read project file").WithCause(err)
	}
	var p Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, types.NewError(types.ErrProjectUnavailable, "parse project file").WithCause(err)
	}
	return &p, nil
}

// InitOrLoad loads an existing project or initializes a fresh one with the
// given name.
func (s *FileStore) InitOrLoad(name string) (*Project, error) {
	if s.Exists() {
		return s.Load()
	}
	p := New(name)
	if err := s.Save(p); err != nil {
		return nil, err
	}
	return p, nil
}

// IsNotFound reports whether a load failed because no project exists yet.
func IsNotFound(err error) bool {
	var typed *types.Error
	return errors.As(err, &typed) && errors.Is(typed.Cause, os.ErrNotExist)
}
